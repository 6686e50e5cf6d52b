package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/engine"
)

// MockProfiler is an in-memory profiler engine. Like the real engine,
// starting a running profiler or stopping a stopped one is an error.
type MockProfiler struct {
	mu        sync.Mutex
	running   bool
	libraries []engine.SharedLibrary
	platform  engine.Platform
	calls     []string

	// StartErr and ProfileErr make the matching call fail when set.
	StartErr   error
	ProfileErr error

	// ProfileDelay blocks GetProfile.
	ProfileDelay time.Duration
}

// NewMockProfiler creates a stopped profiler reporting libs as loaded.
func NewMockProfiler(libs ...engine.SharedLibrary) *MockProfiler {
	return &MockProfiler{
		libraries: libs,
		platform:  engine.Platform{Platform: "Linux", Arch: "x86_64"},
	}
}

// SetRunning forces the engine state.
func (m *MockProfiler) SetRunning(running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = running
}

// Calls returns the engine commands issued so far, in order. Queries are
// not recorded.
func (m *MockProfiler) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Count returns how many times command was issued.
func (m *MockProfiler) Count(command string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == command {
			n++
		}
	}
	return n
}

func (m *MockProfiler) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "start")
	if m.StartErr != nil {
		return m.StartErr
	}
	if m.running {
		return errors.New("already running")
	}
	m.running = true
	return nil
}

func (m *MockProfiler) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "stop")
	if !m.running {
		return errors.New("not running")
	}
	m.running = false
	return nil
}

func (m *MockProfiler) IsRunning(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running, nil
}

func (m *MockProfiler) GetProfile(ctx context.Context) (*engine.Profile, error) {
	m.mu.Lock()
	m.calls = append(m.calls, "profile")
	delay, err := m.ProfileDelay, m.ProfileErr
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &engine.Profile{
		Data:        []byte(`{"samples":[1,2,3]}`),
		Format:      engine.FormatPprof,
		SampleCount: 3,
		CapturedAt:  time.Now(),
	}, nil
}

func (m *MockProfiler) SharedLibraries(_ context.Context) ([]engine.SharedLibrary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]engine.SharedLibrary(nil), m.libraries...), nil
}

func (m *MockProfiler) Platform() engine.Platform {
	return m.platform
}
