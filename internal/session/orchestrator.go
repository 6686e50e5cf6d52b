// Package session owns the profiling session: starting and stopping the
// engine, restarting it after navigations, and running collection cycles
// that capture a profile, prime the symbol store, open a viewer, and hand
// the profile over.
//
// At most one collection cycle runs at a time. Triggers that arrive while
// one is in flight (collect, start/stop, restart) are ignored rather than
// queued, and nothing cancels a cycle once it has begun.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/config"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/engine"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/history"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/symbols"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/viewer"
)

var (
	// ErrCollectionInProgress is returned for triggers ignored while a
	// collection cycle runs.
	ErrCollectionInProgress = errors.New("collection in progress")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// Profiler is the engine command surface. *engine.Control implements it.
type Profiler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning(ctx context.Context) (bool, error)
	GetProfile(ctx context.Context) (*engine.Profile, error)
	SharedLibraries(ctx context.Context) ([]engine.SharedLibrary, error)
	Platform() engine.Platform
}

// SymbolStore is implemented by *symbols.Store.
type SymbolStore interface {
	Prime(ctx context.Context, libs []engine.SharedLibrary, platform engine.Platform) (symbols.PrimeResult, error)
	GetSymbols(ctx context.Context, req symbols.Request) (*symbols.Table, error)
}

// Deliverer is implemented by *viewer.Channel.
type Deliverer interface {
	Deliver(ctx context.Context, profile *engine.Profile, sourceURL string, vc viewer.Context) (*viewer.Subscription, error)
}

// Recorder is implemented by *history.Store.
type Recorder interface {
	RecordCycle(ctx context.Context, c history.Cycle) error
}

// Deps are the orchestrator's collaborators. Recorder may be nil.
type Deps struct {
	Profiler Profiler
	Symbols  SymbolStore
	Opener   viewer.Opener
	Delivery Deliverer
	Notifier Notifier
	Recorder Recorder
}

// Options tune the orchestrator.
type Options struct {
	// ReportURL is where viewers are opened. Page loads under it never
	// trigger a capture.
	ReportURL string

	AutoCapture         bool
	AutoCaptureDelay    time.Duration
	RestartDelay        time.Duration
	RestartAfterCollect bool
}

// OptionsFromConfig extracts Options from the daemon configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReportURL:           cfg.Viewer.ReportURL,
		AutoCapture:         cfg.Session.AutoCapture,
		AutoCaptureDelay:    cfg.Session.AutoCaptureDelay,
		RestartDelay:        cfg.Session.RestartDelay,
		RestartAfterCollect: cfg.Session.RestartAfterCollect,
	}
}

// Status is a snapshot of the session.
type Status struct {
	Session
	EngineRunning      bool           `json:"engineRunning"`
	EngineError        string         `json:"engineError,omitempty"`
	LastURL            string         `json:"lastUrl,omitempty"`
	PendingAutoCapture bool           `json:"pendingAutoCapture"`
	Viewers            int            `json:"viewers"`
	CompletedCycles    int            `json:"completedCycles"`
	LastCycle          *history.Cycle `json:"lastCycle,omitempty"`
}

// LibrarySymbols is the outcome of resolving one library.
type LibrarySymbols struct {
	Library engine.SharedLibrary `json:"library"`
	Symbols int                  `json:"symbols"`
	Error   string               `json:"error,omitempty"`
}

// Orchestrator runs the session state machine. It is safe for concurrent
// use; its lock is never held across engine, symbol, or viewer calls.
type Orchestrator struct {
	profiler Profiler
	symbols  SymbolStore
	opener   viewer.Opener
	delivery Deliverer
	notifier Notifier
	recorder Recorder
	opts     Options
	logger   zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu           sync.Mutex
	state        State
	autoCapture  bool
	lastURL      string
	autoTimer    *time.Timer
	restartTimer *time.Timer
	subs         map[string]*viewer.Subscription
	completed    int
	lastCycle    *history.Cycle
	closed       bool
}

// New creates an orchestrator in the Idle state.
func New(deps Deps, opts Options, logger zerolog.Logger) (*Orchestrator, error) {
	switch {
	case deps.Profiler == nil:
		return nil, errors.New("profiler is required")
	case deps.Symbols == nil:
		return nil, errors.New("symbol store is required")
	case deps.Opener == nil:
		return nil, errors.New("viewer opener is required")
	case deps.Delivery == nil:
		return nil, errors.New("delivery channel is required")
	}
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{Logger: logger}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		profiler:    deps.Profiler,
		symbols:     deps.Symbols,
		opener:      deps.Opener,
		delivery:    deps.Delivery,
		notifier:    deps.Notifier,
		recorder:    deps.Recorder,
		opts:        opts,
		logger:      logger.With().Str("component", "session").Logger(),
		baseCtx:     ctx,
		cancel:      cancel,
		autoCapture: opts.AutoCapture,
		subs:        make(map[string]*viewer.Subscription),
	}, nil
}

// Session returns the current session record.
func (o *Orchestrator) Session() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionLocked()
}

func (o *Orchestrator) sessionLocked() Session {
	return Session{
		State:              o.state,
		Active:             o.state == StateCollecting,
		AutoCaptureEnabled: o.autoCapture,
	}
}

// setState moves to `to` if the current state is one of from. Callers hold mu.
func (o *Orchestrator) setStateLocked(to State, from ...State) bool {
	for _, f := range from {
		if o.state == f {
			o.logger.Debug().Stringer("from", o.state).Stringer("to", to).Msg("State transition")
			o.state = to
			return true
		}
	}
	return false
}

// enter reserves a background slot; false once closed.
func (o *Orchestrator) enter() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.wg.Add(1)
	return true
}

// settle aligns a transitional state with the engine after a failed command.
func (o *Orchestrator) settle(ctx context.Context) {
	running, err := o.profiler.IsRunning(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case err != nil:
		o.setStateLocked(StateIdle, StateStarting, StateStopping)
	case running:
		o.setStateLocked(StateRunning, StateStarting, StateStopping)
	default:
		o.setStateLocked(StateIdle, StateStarting, StateStopping)
	}
}

// Start starts the engine: Idle → Starting → Running.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.state == StateCollecting {
		o.mu.Unlock()
		o.logger.Debug().Msg("Ignoring start while collecting")
		return ErrCollectionInProgress
	}
	o.setStateLocked(StateStarting, o.state)
	o.mu.Unlock()

	if err := o.profiler.Start(ctx); err != nil {
		o.settle(ctx)
		o.logger.Error().Err(err).Msg("Failed to start profiler")
		return err
	}

	o.mu.Lock()
	o.setStateLocked(StateRunning, StateStarting)
	o.mu.Unlock()

	o.notifier.Notify(NotifyStarted)
	o.logger.Info().Msg("Profiler started")
	return nil
}

// Stop stops the engine if it is running: Running → Stopping → Idle.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.isCollecting() {
		o.logger.Debug().Msg("Ignoring stop while collecting")
		return ErrCollectionInProgress
	}
	running, err := o.profiler.IsRunning(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("Failed to query profiler state")
		return err
	}
	if !running {
		o.mu.Lock()
		o.setStateLocked(StateIdle, StateRunning)
		o.mu.Unlock()
		return nil
	}
	return o.stop(ctx)
}

func (o *Orchestrator) stop(ctx context.Context) error {
	o.mu.Lock()
	if o.state == StateCollecting {
		o.mu.Unlock()
		return ErrCollectionInProgress
	}
	o.setStateLocked(StateStopping, o.state)
	o.mu.Unlock()

	if err := o.profiler.Stop(ctx); err != nil {
		o.settle(ctx)
		o.logger.Error().Err(err).Msg("Failed to stop profiler")
		return err
	}

	o.mu.Lock()
	o.setStateLocked(StateIdle, StateStopping)
	o.mu.Unlock()

	o.logger.Info().Msg("Profiler stopped")
	return nil
}

// ToggleStartStop stops a running engine or starts a stopped one. It is
// ignored while collecting.
func (o *Orchestrator) ToggleStartStop(ctx context.Context) error {
	if o.isCollecting() {
		o.logger.Debug().Msg("Ignoring start/stop toggle while collecting")
		return ErrCollectionInProgress
	}

	running, err := o.profiler.IsRunning(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("Failed to query profiler state")
		return err
	}
	if !running {
		return o.Start(ctx)
	}

	o.notifier.Notify(NotifyStopped)
	return o.stop(ctx)
}

// Restart stops a running engine and starts it again after the restart
// delay. It does nothing while collecting or when the engine is stopped.
func (o *Orchestrator) Restart(ctx context.Context) error {
	if o.isCollecting() {
		o.logger.Debug().Msg("Ignoring restart while collecting")
		return nil
	}

	running, err := o.profiler.IsRunning(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("Failed to query profiler state")
		return err
	}
	if !running {
		return nil
	}

	if err := o.stop(ctx); err != nil {
		if errors.Is(err, ErrCollectionInProgress) {
			return nil
		}
		return err
	}
	o.scheduleStart(o.opts.RestartDelay)
	return nil
}

// scheduleStart starts the engine after delay, replacing any pending start.
func (o *Orchestrator) scheduleStart(delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if o.restartTimer != nil {
		o.restartTimer.Stop()
	}
	o.restartTimer = time.AfterFunc(delay, func() {
		if !o.enter() {
			return
		}
		defer o.wg.Done()

		ctx := o.baseCtx
		if running, err := o.profiler.IsRunning(ctx); err == nil && running {
			o.mu.Lock()
			o.setStateLocked(StateRunning, StateIdle)
			o.mu.Unlock()
			return
		}
		if err := o.Start(ctx); err != nil && !errors.Is(err, ErrCollectionInProgress) && !errors.Is(err, ErrClosed) {
			o.logger.Warn().Err(err).Msg("Deferred profiler start failed")
		}
	})
}

func (o *Orchestrator) isCollecting() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateCollecting
}

// OnTabOpen handles a tab-open navigation event by restarting the engine.
func (o *Orchestrator) OnTabOpen(ctx context.Context, pageURL string) error {
	o.logger.Debug().Str("url", pageURL).Msg("Tab opened")
	return o.Restart(ctx)
}

// OnTabLoad handles a page-load event. When auto-capture is on and the page
// is a network page outside the report viewer, a collection is scheduled
// after the auto-capture delay; a newer load replaces a pending one.
// It reports whether a collection was scheduled.
func (o *Orchestrator) OnTabLoad(pageURL string) bool {
	eligible := isNetworkURL(pageURL) && !o.isReportURL(pageURL)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	if eligible {
		o.lastURL = pageURL
	}
	if !o.autoCapture || !eligible {
		o.logger.Debug().Str("url", pageURL).Bool("auto_capture", o.autoCapture).Msg("Page load ignored")
		return false
	}

	if o.autoTimer != nil {
		o.autoTimer.Stop()
	}
	o.autoTimer = time.AfterFunc(o.opts.AutoCaptureDelay, o.autoCollect)
	o.logger.Debug().Str("url", pageURL).Dur("delay", o.opts.AutoCaptureDelay).Msg("Scheduled automatic capture")
	return true
}

func (o *Orchestrator) autoCollect() {
	o.mu.Lock()
	o.autoTimer = nil
	o.mu.Unlock()

	if err := o.TriggerCollect(); err != nil && !errors.Is(err, ErrCollectionInProgress) && !errors.Is(err, ErrClosed) {
		o.logger.Warn().Err(err).Msg("Automatic capture failed to start")
	}
}

func isNetworkURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (o *Orchestrator) isReportURL(raw string) bool {
	return o.opts.ReportURL != "" && strings.HasPrefix(raw, o.opts.ReportURL)
}

// ToggleAutoCapture flips capture-on-page-load and returns the new value.
func (o *Orchestrator) ToggleAutoCapture() bool {
	o.mu.Lock()
	o.autoCapture = !o.autoCapture
	enabled := o.autoCapture
	if !enabled && o.autoTimer != nil {
		o.autoTimer.Stop()
		o.autoTimer = nil
	}
	o.mu.Unlock()

	if enabled {
		o.notifier.Notify(NotifyAutoCaptureEnabled)
	} else {
		o.notifier.Notify(NotifyAutoCaptureDisabled)
	}
	o.logger.Info().Bool("auto_capture", enabled).Msg("Auto capture toggled")
	return enabled
}

// ResolveLibraries resolves symbols for every loaded library whose pdb
// name starts with prefix. Per-library failures are reported in the result.
func (o *Orchestrator) ResolveLibraries(ctx context.Context, prefix string) ([]LibrarySymbols, error) {
	libs, err := o.profiler.SharedLibraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate shared libraries: %w", err)
	}
	matched := symbols.MatchPrefix(libs, prefix)
	platform := o.profiler.Platform()

	results := make([]LibrarySymbols, len(matched))
	var g errgroup.Group
	for i, lib := range matched {
		g.Go(func() error {
			results[i].Library = lib
			table, err := o.symbols.GetSymbols(ctx, symbols.RequestFor(lib, platform))
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Symbols = table.Len()
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// Status returns a snapshot of the session. The engine is queried live.
func (o *Orchestrator) Status(ctx context.Context) Status {
	running, err := o.profiler.IsRunning(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{
		Session:            o.sessionLocked(),
		EngineRunning:      running,
		LastURL:            o.lastURL,
		PendingAutoCapture: o.autoTimer != nil,
		Viewers:            len(o.subs),
		CompletedCycles:    o.completed,
	}
	if err != nil {
		st.EngineError = err.Error()
	}
	if o.lastCycle != nil {
		c := *o.lastCycle
		st.LastCycle = &c
	}
	return st
}

// Close cancels pending timers, closes viewer subscriptions, and waits for
// background work. The engine is left as is.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	if o.autoTimer != nil {
		o.autoTimer.Stop()
		o.autoTimer = nil
	}
	if o.restartTimer != nil {
		o.restartTimer.Stop()
	}
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
	return nil
}
