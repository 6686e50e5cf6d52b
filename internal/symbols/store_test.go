package symbols

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/engine"
)

// fakeSource serves .sym files from memory and counts fetches.
type fakeSource struct {
	name  string
	files map[Key]string
	err   error
	delay time.Duration
	calls atomic.Int32

	mu       sync.Mutex
	requests []Request
}

func newFakeSource(name string) *fakeSource {
	return &fakeSource{name: name, files: make(map[Key]string)}
}

func (f *fakeSource) add(pdbName, breakpadID string) {
	f.files[Key{PdbName: pdbName, BreakpadID: breakpadID}] = fmt.Sprintf(
		"MODULE Linux x86_64 %s %s\nFUNC 1000 10 0 %s_main\nPUBLIC 2000 0 %s_exit\n",
		breakpadID, pdbName, pdbName, pdbName)
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, req Request) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.files[req.Key()]
	if !ok {
		return nil, ErrSymbolNotFound
	}
	return []byte(data), nil
}

func (f *fakeSource) lastRequest() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestStore(t *testing.T, sources ...Source) *Store {
	t.Helper()
	store, err := NewStore(Options{CacheEntries: 128, PrimeConcurrency: 4}, zerolog.Nop(), sources...)
	require.NoError(t, err)
	return store
}

func TestNewStore_RequiresCapacity(t *testing.T) {
	_, err := NewStore(Options{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestStore_GetSymbols_CachesSuccess(t *testing.T) {
	remote := newFakeSource("remote")
	remote.add("libnss3.so", "ABC123")
	store := newTestStore(t, remote)

	req := Request{PdbName: "libnss3.so", BreakpadID: "ABC123"}
	table, err := store.GetSymbols(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	again, err := store.GetSymbols(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, table, again)
	assert.Equal(t, int32(1), remote.calls.Load())
	assert.True(t, store.Cached(req.Key()))
}

func TestStore_GetSymbols_NotFound(t *testing.T) {
	remote := newFakeSource("remote")
	store := newTestStore(t, remote)

	_, err := store.GetSymbols(context.Background(), Request{PdbName: "unknown.so", BreakpadID: "FFFF"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSymbolNotFound)
	assert.NotErrorIs(t, err, ErrSourceUnreachable)

	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, Key{PdbName: "unknown.so", BreakpadID: "FFFF"}, lookupErr.Key)

	_, err = store.GetSymbols(context.Background(), Request{PdbName: "unknown.so", BreakpadID: "FFFF"})
	require.Error(t, err)
	assert.Equal(t, int32(2), remote.calls.Load(), "failures are not cached")
}

func TestStore_GetSymbols_Unreachable(t *testing.T) {
	disk := newFakeSource("disk")
	remote := newFakeSource("remote")
	remote.err = fmt.Errorf("%w: connection refused", ErrSourceUnreachable)
	store := newTestStore(t, disk, remote)

	_, err := store.GetSymbols(context.Background(), Request{PdbName: "libnss3.so", BreakpadID: "ABC123"})
	assert.ErrorIs(t, err, ErrSourceUnreachable)
	assert.NotErrorIs(t, err, ErrSymbolNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStore_GetSymbols_NoSources(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSymbols(context.Background(), Request{PdbName: "libnss3.so", BreakpadID: "ABC123"})
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestStore_GetSymbols_InvalidRequest(t *testing.T) {
	remote := newFakeSource("remote")
	store := newTestStore(t, remote)

	_, err := store.GetSymbols(context.Background(), Request{PdbName: "libnss3.so"})
	assert.ErrorIs(t, err, ErrSymbolNotFound)
	assert.Equal(t, int32(0), remote.calls.Load())
}

func TestStore_GetSymbols_MismatchedModuleID(t *testing.T) {
	remote := newFakeSource("remote")
	remote.files[Key{PdbName: "libnss3.so", BreakpadID: "ABC123"}] = "MODULE Linux x86_64 DEF456 libnss3.so\nPUBLIC 1000 0 x\n"
	store := newTestStore(t, remote)

	_, err := store.GetSymbols(context.Background(), Request{PdbName: "libnss3.so", BreakpadID: "ABC123"})
	assert.ErrorIs(t, err, ErrSymbolNotFound)
	assert.ErrorContains(t, err, "does not match")
}

func TestStore_WriteThrough(t *testing.T) {
	disk, err := NewDiskSource(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	remote := newFakeSource("remote")
	remote.add("libnss3.so", "ABC123")

	req := Request{PdbName: "libnss3.so", BreakpadID: "ABC123"}
	_, err = newTestStore(t, disk, remote).GetSymbols(context.Background(), req)
	require.NoError(t, err)
	assert.FileExists(t, disk.Path(req))

	// A fresh store with the same disk cache no longer needs the remote.
	offline := newFakeSource("remote")
	offline.err = ErrSourceUnreachable
	table, err := newTestStore(t, disk, offline).GetSymbols(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, int32(0), offline.calls.Load())
}

func TestStore_GetSymbols_ConcurrentRequestsShareFetch(t *testing.T) {
	remote := newFakeSource("remote")
	remote.add("libxul.so", "ABC123")
	remote.delay = 50 * time.Millisecond
	store := newTestStore(t, remote)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.GetSymbols(context.Background(), Request{PdbName: "libxul.so", BreakpadID: "ABC123"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), remote.calls.Load())
}

func TestStore_GetSymbols_CancelledCallerDoesNotFailOthers(t *testing.T) {
	remote := newFakeSource("remote")
	remote.add("libnss3.so", "ABC123")
	remote.delay = 200 * time.Millisecond
	store := newTestStore(t, remote)
	req := Request{PdbName: "libnss3.so", BreakpadID: "ABC123"}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := store.GetSymbols(firstCtx, req)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return remote.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	secondDone := make(chan struct{})
	var (
		table     *Table
		secondErr error
	)
	go func() {
		defer close(secondDone)
		table, secondErr = store.GetSymbols(context.Background(), req)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	err := <-firstErr
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrSymbolNotFound)

	<-secondDone
	require.NoError(t, secondErr)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, int32(1), remote.calls.Load())
	assert.True(t, store.Cached(req.Key()))
}

func TestStore_Prime(t *testing.T) {
	remote := newFakeSource("remote")
	remote.add("libnss3.so", "ABC123")
	remote.add("libxul.so", "DEF456")
	store := newTestStore(t, remote)

	libs := []engine.SharedLibrary{
		{Name: "libnss3.so", PdbName: "libnss3.so", BreakpadID: "ABC123"},
		{Name: "libxul.so", PdbName: "libxul.so", BreakpadID: "DEF456"},
		{Name: "libxul.so", PdbName: "libxul.so", BreakpadID: "DEF456"},
		{Name: "libmissing.so", PdbName: "libmissing.so", BreakpadID: "000"},
		{Name: "anonymous"},
	}
	result, err := store.Prime(context.Background(), libs, engine.Platform{Platform: "Linux", Arch: "x86_64"})
	require.NoError(t, err)

	assert.Equal(t, PrimeResult{Requested: 5, Primed: 2, Failed: 2}, result)
	assert.Equal(t, 2, store.Len())

	// Primed pairs resolve without contacting the source again.
	calls := remote.calls.Load()
	table, err := store.GetSymbols(context.Background(), Request{PdbName: "libnss3.so", BreakpadID: "ABC123"})
	require.NoError(t, err)
	assert.Positive(t, table.Len())
	assert.Equal(t, calls, remote.calls.Load())
}

func TestStore_Prime_RemembersMetadata(t *testing.T) {
	remote := newFakeSource("remote")
	store := newTestStore(t, remote)

	libs := []engine.SharedLibrary{{Name: "nss3.dll", PdbName: "nss3.pdb", BreakpadID: "ABC123"}}
	result, err := store.Prime(context.Background(), libs, engine.Platform{Platform: "WINNT", Arch: "x86_64"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	remote.add("nss3.pdb", "ABC123")
	_, err = store.GetSymbols(context.Background(), Request{PdbName: "nss3.pdb", BreakpadID: "ABC123"})
	require.NoError(t, err)

	last := remote.lastRequest()
	assert.Equal(t, "nss3.dll", last.Name)
	assert.Equal(t, "WINNT", last.Platform)
	assert.Equal(t, "x86_64", last.Arch)
}

func TestStore_Prime_Cancelled(t *testing.T) {
	remote := newFakeSource("remote")
	remote.add("libnss3.so", "ABC123")
	store := newTestStore(t, remote)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	libs := []engine.SharedLibrary{{Name: "libnss3.so", PdbName: "libnss3.so", BreakpadID: "ABC123"}}
	_, err := store.Prime(ctx, libs, engine.HostPlatform())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatchPrefix(t *testing.T) {
	libs := []engine.SharedLibrary{
		{Name: "libnss3.so", PdbName: "libnss3.so", BreakpadID: "ABC123"},
		{Name: "nss3.dll", PdbName: "NSS3.pdb", BreakpadID: "DEF456"},
		{Name: "LIBNSS3.DYLIB", PdbName: "LIBNSS3.DYLIB", BreakpadID: "0123"},
		{Name: "libxul.so", PdbName: "libxul.so", BreakpadID: "4567"},
	}

	matched := MatchPrefix(libs, "libnss3")
	require.Len(t, matched, 2)
	assert.Equal(t, "libnss3.so", matched[0].PdbName)
	assert.Equal(t, "LIBNSS3.DYLIB", matched[1].PdbName)

	assert.Len(t, MatchPrefix(libs, ""), 4)
	assert.Empty(t, MatchPrefix(libs, "libfoo"))
}

func TestSymFileName(t *testing.T) {
	assert.Equal(t, "xul.sym", SymFileName("xul.pdb"))
	assert.Equal(t, "libxul.so.sym", SymFileName("libxul.so"))
	assert.Equal(t, "XUL.sym", SymFileName("XUL"))
}
