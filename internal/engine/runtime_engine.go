package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime/pprof"
	"slices"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/rs/zerolog"
)

// ThreadLabel is the pprof label matched against thread filters.
const ThreadLabel = "thread"

// FormatPprof marks Profile.Data as a gzipped pprof protobuf.
const FormatPprof = "pprof"

var supportedFeatures = []string{"stackwalk", "threads", "leaf", "js", "memory"}

// RuntimeEngine samples the current process with the Go runtime CPU
// profiler. The runtime samples at a fixed rate, so the requested interval
// is recorded but not applied.
type RuntimeEngine struct {
	logger   zerolog.Logger
	platform Platform

	mu      sync.Mutex
	running bool
	buf     *bytes.Buffer
	started time.Time
	entries int
	threads []string
}

// NewRuntimeEngine creates a stopped engine.
func NewRuntimeEngine(logger zerolog.Logger) *RuntimeEngine {
	return &RuntimeEngine{
		logger:   logger.With().Str("component", "runtime_engine").Logger(),
		platform: HostPlatform(),
	}
}

// Start begins CPU sampling. It fails if the engine is running, the
// configuration is invalid, or another consumer owns the CPU profiler.
func (e *RuntimeEngine) Start(_ context.Context, entries int, intervalSeconds float64, features, threads []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("%w: already running", ErrEngineRejected)
	}
	if entries <= 0 {
		return fmt.Errorf("%w: buffer entries must be positive, got %d", ErrEngineRejected, entries)
	}
	if intervalSeconds <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %g", ErrEngineRejected, intervalSeconds)
	}
	for _, f := range features {
		if !slices.Contains(supportedFeatures, f) {
			return fmt.Errorf("%w: unsupported feature %q", ErrEngineRejected, f)
		}
	}

	buf := &bytes.Buffer{}
	if err := pprof.StartCPUProfile(buf); err != nil {
		return fmt.Errorf("%w: %w", ErrEngineRejected, err)
	}

	e.running = true
	e.buf = buf
	e.started = time.Now()
	e.entries = entries
	e.threads = nil
	if slices.Contains(features, "threads") {
		e.threads = slices.Clone(threads)
	}

	e.logger.Info().
		Int("entries", entries).
		Float64("interval_s", intervalSeconds).
		Strs("threads", e.threads).
		Msg("CPU sampling started")
	return nil
}

// Stop ends sampling and discards the buffer.
func (e *RuntimeEngine) Stop(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return fmt.Errorf("%w: not running", ErrEngineQueryFailed)
	}

	pprof.StopCPUProfile()
	e.running = false
	e.buf = nil

	e.logger.Info().Msg("CPU sampling stopped")
	return nil
}

// IsRunning reports whether sampling is active.
func (e *RuntimeEngine) IsRunning(_ context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running, nil
}

// GetProfile rotates the sample buffer and returns its contents. Sampling
// continues into a fresh buffer.
func (e *RuntimeEngine) GetProfile(_ context.Context) (*Profile, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil, fmt.Errorf("%w: not running", ErrEngineQueryFailed)
	}

	pprof.StopCPUProfile()
	raw := e.buf.Bytes()
	capturedAt := time.Now()
	duration := capturedAt.Sub(e.started)

	next := &bytes.Buffer{}
	if err := pprof.StartCPUProfile(next); err != nil {
		e.running = false
		e.buf = nil
		e.logger.Warn().Err(err).Msg("Failed to resume sampling after capture")
	} else {
		e.buf = next
		e.started = capturedAt
	}

	p, err := profile.ParseData(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse CPU profile: %w", ErrEngineQueryFailed, err)
	}

	filterThreads(p, e.threads)
	truncateSamples(p, e.entries)
	p = p.Compact()

	var out bytes.Buffer
	if err := p.Write(&out); err != nil {
		return nil, fmt.Errorf("%w: failed to encode profile: %w", ErrEngineQueryFailed, err)
	}

	return &Profile{
		Data:        out.Bytes(),
		Format:      FormatPprof,
		SampleCount: len(p.Sample),
		CapturedAt:  capturedAt,
		Duration:    duration,
	}, nil
}

// SharedLibraries lists the native modules mapped into this process.
func (e *RuntimeEngine) SharedLibraries(ctx context.Context) ([]SharedLibrary, error) {
	return LoadedLibraries(ctx, int32(os.Getpid())) // #nosec G115 -- pids fit in int32.
}

// Platform returns the host platform.
func (e *RuntimeEngine) Platform() Platform {
	return e.platform
}

// filterThreads keeps samples labelled with one of threads. Samples without
// a thread label are kept.
func filterThreads(p *profile.Profile, threads []string) {
	if len(threads) == 0 {
		return
	}

	kept := p.Sample[:0]
	for _, s := range p.Sample {
		labels := s.Label[ThreadLabel]
		if len(labels) == 0 || slices.ContainsFunc(labels, func(l string) bool {
			return slices.Contains(threads, l)
		}) {
			kept = append(kept, s)
		}
	}
	p.Sample = kept
}

// truncateSamples keeps the newest entries samples, like a ring buffer.
func truncateSamples(p *profile.Profile, entries int) {
	if entries > 0 && len(p.Sample) > entries {
		p.Sample = p.Sample[len(p.Sample)-entries:]
	}
}
