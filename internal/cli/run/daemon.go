package run

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/config"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/engine"
	cleanup "github.com/digitarald/Gecko-Profiler-Addon/internal/errors"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/history"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/httpapi"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/retry"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/session"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/symbols"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/viewer"
)

// Daemon owns every long-lived component of a running profiler session.
type Daemon struct {
	cfg    *config.Config
	logger zerolog.Logger

	control      *engine.Control
	store        *symbols.Store
	history      *history.Store
	hub          *viewer.Hub
	orchestrator *session.Orchestrator
	server       *httpapi.Server
}

// Options override daemon collaborators, mostly for tests.
type Options struct {
	// Engine replaces the in-process runtime engine.
	Engine engine.Engine

	// Launcher replaces the configured browser command.
	Launcher viewer.Launcher

	// Notifier replaces log-backed notifications.
	Notifier session.Notifier
}

// NewDaemon builds the daemon from cfg without starting anything.
func NewDaemon(cfg *config.Config, opts Options, logger zerolog.Logger) (*Daemon, error) {
	d := &Daemon{cfg: cfg, logger: logger}

	eng := opts.Engine
	if eng == nil {
		eng = engine.NewRuntimeEngine(logger)
	}
	d.control = engine.NewControl(eng, cfg.Profiler, logger)

	sources, err := symbolSources(cfg.Symbols, logger)
	if err != nil {
		return nil, err
	}
	d.store, err = symbols.NewStore(symbols.Options{
		CacheEntries:     cfg.Symbols.CacheEntries,
		PrimeConcurrency: cfg.Symbols.PrimeConcurrency,
	}, logger, sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to create symbol store: %w", err)
	}

	var recorder session.Recorder
	var lister httpapi.HistoryLister
	if cfg.History.Enabled {
		d.history, err = history.Open(cfg.History.DatabasePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		recorder, lister = d.history, d.history
	}

	launcher := opts.Launcher
	if launcher == nil {
		launcher = &viewer.BrowserLauncher{Command: cfg.Viewer.BrowserCommand, Logger: logger}
	}
	d.hub = viewer.NewHub(viewer.HubConfig{
		ChannelBaseURL: "ws://" + cfg.Viewer.ListenAddr,
		OpenTimeout:    cfg.Viewer.OpenTimeout,
	}, launcher, logger.With().Str("component", "viewer_hub").Logger())

	d.orchestrator, err = session.New(session.Deps{
		Profiler: d.control,
		Symbols:  d.store,
		Opener:   d.hub,
		Delivery: viewer.NewChannel(d.store, logger.With().Str("component", "delivery").Logger()),
		Notifier: opts.Notifier,
		Recorder: recorder,
	}, session.OptionsFromConfig(cfg), logger)
	if err != nil {
		d.closeHistory()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	d.server, err = httpapi.New(httpapi.Config{
		ListenAddr:    cfg.Viewer.ListenAddr,
		ReportURL:     cfg.Viewer.ReportURL,
		Controller:    d.orchestrator,
		History:       lister,
		ViewerHandler: d.hub.HandleAttach,
		Logger:        logger,
	})
	if err != nil {
		d.closeHistory()
		return nil, fmt.Errorf("failed to create control API: %w", err)
	}

	return d, nil
}

// symbolSources returns the disk cache followed by the remote server, so
// remote fetches are written through to disk.
func symbolSources(cfg config.SymbolsConfig, logger zerolog.Logger) ([]symbols.Source, error) {
	var sources []symbols.Source
	if cfg.CacheDir != "" {
		disk, err := symbols.NewDiskSource(cfg.CacheDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open symbol cache: %w", err)
		}
		sources = append(sources, disk)
	}
	if cfg.ServerURL != "" {
		remote, err := symbols.NewHTTPSource(cfg.ServerURL, &http.Client{}, retry.Config{
			MaxRetries:     cfg.FetchRetries,
			InitialBackoff: cfg.FetchBackoff,
			MaxBackoff:     5 * time.Second,
			Jitter:         0.1,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure symbol server: %w", err)
		}
		sources = append(sources, remote)
	}
	if len(sources) == 0 {
		logger.Warn().Msg("No symbol sources configured; viewers will get error replies")
	}
	return sources, nil
}

// Start serves the control API and, when configured, starts the engine.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.server.Start(); err != nil {
		return err
	}
	d.hub.SetChannelBaseURL("ws://" + d.server.Addr())

	if d.cfg.Session.StartOnLaunch {
		if err := d.orchestrator.Start(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to start profiler on launch")
		}
	}

	d.logger.Info().
		Str("addr", d.server.Addr()).
		Str("report_url", d.cfg.Viewer.ReportURL).
		Bool("auto_capture", d.cfg.Session.AutoCapture).
		Bool("history", d.history != nil).
		Msg("Profiler daemon started")
	return nil
}

// Addr returns the control API address.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// Stop shuts everything down. A running engine is stopped so the process
// does not exit mid-sample.
func (d *Daemon) Stop(ctx context.Context) error {
	var errs []error
	if err := d.server.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("control API: %w", err))
	}
	if err := d.orchestrator.Close(); err != nil {
		errs = append(errs, fmt.Errorf("session: %w", err))
	}
	if err := d.hub.Close(); err != nil {
		d.logger.Debug().Err(err).Msg("Error closing viewers")
	}
	if running, err := d.control.IsRunning(ctx); err == nil && running {
		if err := d.control.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("profiler: %w", err))
		}
	}
	d.closeHistory()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	d.logger.Info().Msg("Profiler daemon stopped")
	return nil
}

func (d *Daemon) closeHistory() {
	if d.history == nil {
		return
	}
	cleanup.DeferClose(d.logger, d.history, "Failed to close history")
	d.history = nil
}
