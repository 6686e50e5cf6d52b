package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/config"
)

// Control issues commands to an Engine with the daemon's fixed settings.
type Control struct {
	engine   Engine
	settings config.ProfilerSettings
	logger   zerolog.Logger
}

// NewControl creates a Control for engine.
func NewControl(engine Engine, settings config.ProfilerSettings, logger zerolog.Logger) *Control {
	return &Control{
		engine:   engine,
		settings: settings,
		logger:   logger.With().Str("component", "profiler_control").Logger(),
	}
}

// Settings returns the sampling configuration used by Start.
func (c *Control) Settings() config.ProfilerSettings {
	return c.settings
}

// Start begins sampling. Rejections are returned as-is and never retried.
func (c *Control) Start(ctx context.Context) error {
	s := c.settings
	c.logger.Debug().
		Int("entries", s.BufferEntries).
		Float64("interval_ms", s.SamplingIntervalMs).
		Strs("features", s.Features).
		Strs("threads", s.Threads).
		Msg("Starting profiler engine")

	if err := c.engine.Start(ctx, s.BufferEntries, s.IntervalSeconds(), s.Features, s.Threads); err != nil {
		return classify("start", ErrEngineRejected, err)
	}
	return nil
}

// Stop ends sampling. The engine does not guarantee that stopping a stopped
// engine is harmless, so callers check IsRunning first.
func (c *Control) Stop(ctx context.Context) error {
	if err := c.engine.Stop(ctx); err != nil {
		return classify("stop", ErrEngineQueryFailed, err)
	}
	return nil
}

// IsRunning reports the live engine state.
func (c *Control) IsRunning(ctx context.Context) (bool, error) {
	running, err := c.engine.IsRunning(ctx)
	if err != nil {
		return false, classify("query", ErrEngineQueryFailed, err)
	}
	return running, nil
}

// GetProfile captures the current buffer without stopping the engine.
func (c *Control) GetProfile(ctx context.Context) (*Profile, error) {
	profile, err := c.engine.GetProfile(ctx)
	if err != nil {
		return nil, classify("capture", ErrEngineQueryFailed, err)
	}
	if profile == nil {
		return nil, fmt.Errorf("failed to capture profile: %w: engine returned no profile", ErrEngineQueryFailed)
	}
	return profile, nil
}

// SharedLibraries enumerates the loaded native modules.
func (c *Control) SharedLibraries(ctx context.Context) ([]SharedLibrary, error) {
	libs, err := c.engine.SharedLibraries(ctx)
	if err != nil {
		return nil, classify("enumerate libraries of", ErrEngineQueryFailed, err)
	}
	return libs, nil
}

// Platform returns the engine's static platform info.
func (c *Control) Platform() Platform {
	return c.engine.Platform()
}

// classify wraps err with kind unless the engine already classified it.
func classify(op string, kind, err error) error {
	if errors.Is(err, ErrEngineRejected) || errors.Is(err, ErrEngineQueryFailed) {
		return fmt.Errorf("failed to %s profiler: %w", op, err)
	}
	return fmt.Errorf("failed to %s profiler: %w: %w", op, kind, err)
}
