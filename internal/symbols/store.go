package symbols

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/elastic/go-freelru"
	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/engine"
)

// Options configures a Store.
type Options struct {
	// CacheEntries bounds the in-memory table cache.
	CacheEntries uint32

	// PrimeConcurrency bounds parallel fetches during Prime.
	PrimeConcurrency int
}

// PrimeResult summarizes a Prime call.
type PrimeResult struct {
	Requested int `json:"requested"`
	Primed    int `json:"primed"`
	Failed    int `json:"failed"`
}

// Store resolves symbol tables, caching successes in memory. It is safe
// for concurrent use.
type Store struct {
	sources          []Source
	cache            *lru.SyncedLRU[Key, *Table]
	group            singleflight.Group
	primeConcurrency int
	logger           zerolog.Logger

	mu    sync.RWMutex
	known map[Key]Request
}

func hashKey(k Key) uint32 {
	return uint32(xxh3.HashString(k.PdbName + "\x00" + k.BreakpadID))
}

// NewStore creates a store that consults sources in order.
func NewStore(opts Options, logger zerolog.Logger, sources ...Source) (*Store, error) {
	if opts.CacheEntries == 0 {
		return nil, errors.New("symbol cache needs at least one entry")
	}
	cache, err := lru.NewSynced[Key, *Table](opts.CacheEntries, hashKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create symbol cache: %w", err)
	}
	if opts.PrimeConcurrency <= 0 {
		opts.PrimeConcurrency = 1
	}
	return &Store{
		sources:          sources,
		cache:            cache,
		primeConcurrency: opts.PrimeConcurrency,
		logger:           logger,
		known:            make(map[Key]Request),
	}, nil
}

// Cached reports whether a table for key is in memory.
func (s *Store) Cached(key Key) bool {
	return s.cache.Contains(key)
}

// Len returns the number of cached tables.
func (s *Store) Len() int {
	return s.cache.Len()
}

// GetSymbols returns the table for req. Only PdbName and BreakpadID are
// required; missing metadata is filled in from earlier Prime calls.
// Concurrent requests for the same module share one fetch.
func (s *Store) GetSymbols(ctx context.Context, req Request) (*Table, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key := req.Key()
	if t, ok := s.cache.Get(key); ok {
		return t, nil
	}
	req = s.withMetadata(req)

	// The shared fetch outlives any one caller so a cancelled caller does
	// not fail the others waiting on the same module.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key.String(), func() (any, error) {
		if t, ok := s.cache.Get(key); ok {
			return t, nil
		}
		t, err := s.fetch(fetchCtx, req)
		if err != nil {
			return nil, err
		}
		s.cache.Add(key, t)
		return t, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("symbol lookup for %s abandoned: %w", key, ctx.Err())
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		s.logger.Trace().Str("pdb_name", key.PdbName).Str("breakpad_id", key.BreakpadID).Msg("Joined in-flight symbol fetch")
	}
	v := res.Val
	return v.(*Table), nil
}

func (s *Store) fetch(ctx context.Context, req Request) (*Table, error) {
	key := req.Key()
	if len(s.sources) == 0 {
		return nil, &LookupError{Key: key, Kind: ErrSymbolNotFound, Err: errors.New("no symbol sources configured")}
	}

	start := time.Now()
	var (
		errs        []error
		unreachable bool
	)
	for i, src := range s.sources {
		data, err := src.Fetch(ctx, req)
		if err != nil {
			if errors.Is(err, ErrSourceUnreachable) {
				unreachable = true
			}
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}

		t, err := ParseBreakpad(bytes.NewReader(data), req.BreakpadID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}

		s.writeThrough(i, req, data)
		s.logger.Debug().
			Str("pdb_name", req.PdbName).
			Str("breakpad_id", req.BreakpadID).
			Str("source", src.Name()).
			Int("symbols", t.Len()).
			Dur("duration", time.Since(start)).
			Msg("Resolved symbol table")
		return t, nil
	}

	kind := ErrSymbolNotFound
	if unreachable {
		kind = ErrSourceUnreachable
	}
	return nil, &LookupError{Key: key, Kind: kind, Err: errors.Join(errs...)}
}

// writeThrough stores data in the writable sources consulted before the
// one that produced it.
func (s *Store) writeThrough(found int, req Request, data []byte) {
	for _, src := range s.sources[:found] {
		w, ok := src.(Writer)
		if !ok {
			continue
		}
		if err := w.Put(req, data); err != nil {
			s.logger.Warn().
				Err(err).
				Str("pdb_name", req.PdbName).
				Str("source", src.Name()).
				Msg("Failed to cache symbol file")
		}
	}
}

func (s *Store) remember(req Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known[req.Key()] = req
}

func (s *Store) withMetadata(req Request) Request {
	s.mu.RLock()
	known, ok := s.known[req.Key()]
	s.mu.RUnlock()
	if !ok {
		return req
	}
	if req.Name == "" {
		req.Name = known.Name
	}
	if req.Platform == "" {
		req.Platform = known.Platform
	}
	if req.Arch == "" {
		req.Arch = known.Arch
	}
	return req
}

// Prime resolves every library ahead of viewer requests. Failures are
// logged and counted; they never stop the batch. The returned error is
// non-nil only when ctx ends first.
func (s *Store) Prime(ctx context.Context, libs []engine.SharedLibrary, platform engine.Platform) (PrimeResult, error) {
	var (
		primed, failed atomic.Int64
		seen           = make(map[Key]struct{}, len(libs))
		g              errgroup.Group
	)
	g.SetLimit(s.primeConcurrency)

	for _, lib := range libs {
		req := RequestFor(lib, platform)
		if err := req.Validate(); err != nil {
			failed.Add(1)
			s.logger.Debug().Err(err).Str("library", lib.Name).Msg("Skipping library without symbol key")
			continue
		}
		key := req.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		s.remember(req)

		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if _, err := s.GetSymbols(ctx, req); err != nil {
				failed.Add(1)
				s.logger.Warn().
					Err(err).
					Str("pdb_name", req.PdbName).
					Str("breakpad_id", req.BreakpadID).
					Msg("Failed to prime symbols")
				return nil
			}
			primed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	result := PrimeResult{
		Requested: len(libs),
		Primed:    int(primed.Load()),
		Failed:    int(failed.Load()),
	}
	s.logger.Info().
		Int("requested", result.Requested).
		Int("primed", result.Primed).
		Int("failed", result.Failed).
		Msg("Primed symbol store")

	return result, ctx.Err()
}
