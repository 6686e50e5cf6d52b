package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/engine"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/history"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/symbols"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/viewer"
)

type cycle struct {
	record history.Cycle
	prev   State
}

// beginCollect claims the collecting state. Callers that get a cycle must
// call wg.Done when it finishes.
func (o *Orchestrator) beginCollect() (*cycle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrClosed
	}
	if o.state == StateCollecting {
		o.logger.Debug().Msg("Ignoring collect while collecting")
		return nil, ErrCollectionInProgress
	}

	c := &cycle{
		prev: o.state,
		record: history.Cycle{
			ID:        uuid.NewString(),
			StartedAt: time.Now().UTC(),
			SourceURL: o.lastURL,
		},
	}
	o.setStateLocked(StateCollecting, o.state)
	o.wg.Add(1)
	return c, nil
}

// Collect runs one collection cycle and returns its record once the
// profile has been delivered. Concurrent calls fail with
// ErrCollectionInProgress.
func (o *Orchestrator) Collect(ctx context.Context) (*history.Cycle, error) {
	c, err := o.beginCollect()
	if err != nil {
		return nil, err
	}
	defer o.wg.Done()

	record, err := o.runCollect(ctx, c)
	return &record, err
}

// TriggerCollect starts a collection cycle in the background.
func (o *Orchestrator) TriggerCollect() error {
	c, err := o.beginCollect()
	if err != nil {
		return err
	}
	go func() {
		defer o.wg.Done()
		if _, err := o.runCollect(o.baseCtx, c); err != nil {
			o.logger.Warn().Err(err).Str("cycle_id", c.record.ID).Msg("Collection cycle failed")
		}
	}()
	return nil
}

func (o *Orchestrator) runCollect(ctx context.Context, c *cycle) (history.Cycle, error) {
	logger := o.logger.With().Str("cycle_id", c.record.ID).Logger()
	logger.Info().Str("url", c.record.SourceURL).Msg("Collecting profile")

	profile, err := o.profiler.GetProfile(ctx)
	if err != nil {
		o.mu.Lock()
		o.setStateLocked(c.prev, StateCollecting)
		o.mu.Unlock()
		return o.fail(ctx, c, fmt.Errorf("failed to capture profile: %w", err))
	}
	c.record.ProfileBytes = len(profile.Data)
	c.record.SampleCount = profile.SampleCount

	if running, err := o.profiler.IsRunning(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to query profiler state after capture")
	} else if running {
		if err := o.profiler.Stop(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to stop profiler after capture")
		}
	}

	vc, primed, err := o.openAndPrime(ctx, c)
	o.mu.Lock()
	o.setStateLocked(StateIdle, StateCollecting)
	o.mu.Unlock()
	if err != nil {
		return o.fail(ctx, c, err)
	}
	c.record.Primed = primed.Primed
	c.record.ViewerID = vc.ID()

	sub, err := o.delivery.Deliver(ctx, profile, c.record.SourceURL, vc)
	if err != nil {
		_ = vc.Close()
		return o.fail(ctx, c, err)
	}
	o.track(sub)

	c.record.Status = history.StatusDelivered
	c.record.FinishedAt = time.Now().UTC()
	o.record(ctx, c.record)
	logger.Info().
		Str("viewer_id", c.record.ViewerID).
		Int("bytes", c.record.ProfileBytes).
		Int("primed", c.record.Primed).
		Dur("duration", c.record.Duration()).
		Msg("Collection cycle complete")

	if o.opts.RestartAfterCollect {
		o.scheduleStart(o.opts.RestartDelay)
	}
	return c.record, nil
}

// openAndPrime opens the viewer while the symbol store is primed with the
// loaded libraries. A priming shortfall never fails the cycle.
func (o *Orchestrator) openAndPrime(ctx context.Context, c *cycle) (viewer.Context, symbols.PrimeResult, error) {
	var (
		vc     viewer.Context
		primed symbols.PrimeResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		opened, err := o.opener.Open(gctx, o.opts.ReportURL)
		if err != nil {
			if !errors.Is(err, viewer.ErrViewerOpenFailed) {
				err = fmt.Errorf("%w: %w", viewer.ErrViewerOpenFailed, err)
			}
			return err
		}
		vc = opened
		return nil
	})
	g.Go(func() error {
		libs, err := o.profiler.SharedLibraries(gctx)
		if err != nil {
			o.logger.Warn().Err(err).Msg("Failed to enumerate shared libraries")
			return nil
		}
		c.record.Libraries = libraryNames(libs)

		// Prime reports partial results on cancellation; only the counts matter.
		primed, _ = o.symbols.Prime(gctx, libs, o.profiler.Platform())
		return nil
	})

	if err := g.Wait(); err != nil {
		if vc != nil {
			_ = vc.Close()
		}
		return nil, primed, err
	}
	return vc, primed, nil
}

func libraryNames(libs []engine.SharedLibrary) []string {
	names := make([]string, 0, len(libs))
	for _, lib := range libs {
		names = append(names, lib.PdbName)
	}
	return names
}

func (o *Orchestrator) fail(ctx context.Context, c *cycle, err error) (history.Cycle, error) {
	c.record.Status = history.StatusFailed
	c.record.Error = err.Error()
	c.record.FinishedAt = time.Now().UTC()
	o.record(ctx, c.record)
	return c.record, err
}

// record stores the cycle and counts it when it was delivered.
func (o *Orchestrator) record(ctx context.Context, rec history.Cycle) {
	o.mu.Lock()
	if rec.Status == history.StatusDelivered {
		o.completed++
	}
	last := rec
	o.lastCycle = &last
	o.mu.Unlock()

	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordCycle(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn().Err(err).Str("cycle_id", rec.ID).Msg("Failed to record collection cycle")
	}
}

// track keeps sub until it ends so Close can shut it down.
func (o *Orchestrator) track(sub *viewer.Subscription) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		_ = sub.Close()
		return
	}
	o.subs[sub.ID()] = sub
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		select {
		case <-sub.Done():
		case <-o.baseCtx.Done():
			_ = sub.Close()
		}
		if err := sub.Err(); err != nil {
			o.logger.Debug().Err(err).Str("viewer_id", sub.ID()).Msg("Viewer subscription ended")
		}

		o.mu.Lock()
		delete(o.subs, sub.ID())
		o.mu.Unlock()
	}()
}
