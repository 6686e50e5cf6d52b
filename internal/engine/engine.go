// Package engine wraps the sampling profiler behind a small command surface:
// start, stop, is-running, capture, and shared-library enumeration.
//
// The Engine interface is the boundary to the sampler itself. Control binds
// an Engine to the fixed ProfilerSettings and classifies its failures into
// ErrEngineRejected and ErrEngineQueryFailed. The live engine state reported
// by IsRunning is authoritative; callers must not cache it.
package engine

import (
	"context"
	"errors"
	"runtime"
	"time"
)

var (
	// ErrEngineRejected is returned when the engine refuses a start request.
	ErrEngineRejected = errors.New("engine rejected configuration")

	// ErrEngineQueryFailed is returned when a state query or capture fails.
	ErrEngineQueryFailed = errors.New("engine query failed")
)

// Engine is the sampling profiler. Calls may block; none can be cancelled
// once issued.
type Engine interface {
	Start(ctx context.Context, entries int, intervalSeconds float64, features, threads []string) error
	Stop(ctx context.Context) error
	IsRunning(ctx context.Context) (bool, error)
	GetProfile(ctx context.Context) (*Profile, error)
	SharedLibraries(ctx context.Context) ([]SharedLibrary, error)
	Platform() Platform
}

// Platform identifies the OS and CPU architecture using symbol-server names.
type Platform struct {
	Platform string `json:"platform"`
	Arch     string `json:"arch"`
}

// HostPlatform returns the platform of the running process.
func HostPlatform() Platform {
	return Platform{
		Platform: platformName(runtime.GOOS),
		Arch:     archName(runtime.GOARCH),
	}
}

func platformName(goos string) string {
	switch goos {
	case "linux", "android":
		return "Linux"
	case "darwin":
		return "Darwin"
	case "windows":
		return "WINNT"
	default:
		return goos
	}
}

func archName(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "386":
		return "x86"
	case "arm64":
		return "aarch64"
	default:
		return goarch
	}
}

// SharedLibrary is one loaded native module. PdbName and BreakpadID form
// the symbol lookup key.
type SharedLibrary struct {
	Name       string `json:"name"`
	PdbName    string `json:"pdbName"`
	BreakpadID string `json:"breakpadId"`
	Path       string `json:"path,omitempty"`
}

// Profile is a captured sample buffer. Data is opaque to everything but the
// viewer.
type Profile struct {
	Data        []byte        `json:"data"`
	Format      string        `json:"format"`
	SampleCount int           `json:"sampleCount"`
	CapturedAt  time.Time     `json:"capturedAt"`
	Duration    time.Duration `json:"duration"`
}
