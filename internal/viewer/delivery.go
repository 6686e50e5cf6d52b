package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/engine"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/symbols"
)

// SymbolResolver answers symbol-table requests. *symbols.Store implements it.
type SymbolResolver interface {
	GetSymbols(ctx context.Context, req symbols.Request) (*symbols.Table, error)
}

// Channel hands profiles to viewer contexts.
type Channel struct {
	resolver SymbolResolver
	logger   zerolog.Logger
}

// NewChannel creates a delivery channel answering symbol requests from
// resolver.
func NewChannel(resolver SymbolResolver, logger zerolog.Logger) *Channel {
	return &Channel{resolver: resolver, logger: logger}
}

// Deliver sends Init{profile, sourceURL} to vc and starts serving its
// GetSymbolTable requests. If Init cannot be sent nothing else is sent and
// the error wraps ErrChannelSendFailed. The returned Subscription owns vc.
func (c *Channel) Deliver(ctx context.Context, profile *engine.Profile, sourceURL string, vc Context) (*Subscription, error) {
	logger := c.logger.With().Str("viewer_id", vc.ID()).Logger()

	msg, err := NewMessage(MessageInit, Init{Profile: profile, URL: sourceURL})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelSendFailed, err)
	}
	if err := vc.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelSendFailed, err)
	}
	logger.Info().Str("url", sourceURL).Int("bytes", len(profile.Data)).Msg("Profile delivered")

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &Subscription{
		vc:       vc,
		resolver: c.resolver,
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go sub.run(subCtx)
	return sub, nil
}

// Subscription serves one viewer context's symbol requests. It ends when
// the context closes or Close is called.
type Subscription struct {
	vc       Context
	resolver SymbolResolver
	logger   zerolog.Logger
	cancel   context.CancelFunc
	done     chan struct{}

	sendMu  sync.Mutex
	handled atomic.Int64
	failed  atomic.Int64
	err     error
}

// ID returns the viewer context ID.
func (s *Subscription) ID() string {
	return s.vc.ID()
}

// Done is closed once the subscription has stopped and every in-flight
// reply has been attempted.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns why the subscription stopped: nil for a normal close.
// Valid after Done.
func (s *Subscription) Err() error {
	<-s.done
	return s.err
}

// Handled returns the number of requests answered so far, and how many of
// those were error replies.
func (s *Subscription) Handled() (total, failed int64) {
	return s.handled.Load(), s.failed.Load()
}

// Close stops serving, closes the viewer context, and waits for in-flight
// replies.
func (s *Subscription) Close() error {
	s.cancel()
	err := s.vc.Close()
	<-s.done
	return err
}

func (s *Subscription) run(ctx context.Context) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		s.cancel()
		close(s.done)
	}()

	for {
		msg, err := s.vc.Receive(ctx)
		if err != nil {
			if !errors.Is(err, ErrContextClosed) && ctx.Err() == nil {
				s.err = err
				s.logger.Warn().Err(err).Msg("Viewer channel failed")
			}
			s.logger.Debug().Msg("Viewer subscription ended")
			return
		}

		if msg.Name != MessageGetSymbolTable {
			s.logger.Debug().Str("message", msg.Name).Msg("Ignoring unexpected viewer message")
			continue
		}

		var req GetSymbolTable
		if err := msg.Decode(&req); err != nil {
			s.logger.Warn().Err(err).Msg("Malformed symbol request")
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.reply(ctx, GetSymbolTableReply{Status: StatusError, Error: err.Error()})
			}()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, req)
		}()
	}
}

func (s *Subscription) handle(ctx context.Context, req GetSymbolTable) {
	reply := GetSymbolTableReply{PdbName: req.PdbName, BreakpadID: req.BreakpadID}

	table, err := s.resolver.GetSymbols(ctx, symbols.Request{PdbName: req.PdbName, BreakpadID: req.BreakpadID})
	if err != nil {
		reply.Status = StatusError
		reply.Error = err.Error()
		s.logger.Debug().
			Err(err).
			Str("pdb_name", req.PdbName).
			Str("breakpad_id", req.BreakpadID).
			Msg("Symbol request failed")
	} else {
		reply.Status = StatusSuccess
		reply.Result = table
	}
	s.reply(ctx, reply)
}

func (s *Subscription) reply(ctx context.Context, reply GetSymbolTableReply) {
	s.handled.Add(1)
	if reply.Status == StatusError {
		s.failed.Add(1)
	}

	msg, err := NewMessage(MessageGetSymbolTableReply, reply)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode symbol reply")
		return
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.vc.Send(ctx, msg); err != nil {
		s.logger.Debug().Err(err).Str("pdb_name", reply.PdbName).Msg("Failed to send symbol reply")
	}
}
