package viewer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/engine"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/symbols"
)

const testSym = "MODULE Linux x86_64 ABC123 libnss3.so\nFUNC 1000 10 0 NSS_Init\n"

// fakeResolver answers from a fixed set of tables, optionally blocking
// selected modules until released.
type fakeResolver struct {
	tables map[string]*symbols.Table
	block  map[string]chan struct{}
}

func newFakeResolver(t *testing.T) *fakeResolver {
	t.Helper()
	table, err := symbols.ParseBreakpad(strings.NewReader(testSym), "ABC123")
	require.NoError(t, err)
	return &fakeResolver{
		tables: map[string]*symbols.Table{"libnss3.so/ABC123": table},
		block:  make(map[string]chan struct{}),
	}
}

func (r *fakeResolver) GetSymbols(ctx context.Context, req symbols.Request) (*symbols.Table, error) {
	key := req.PdbName + "/" + req.BreakpadID
	if ch, ok := r.block[key]; ok {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if t, ok := r.tables[key]; ok {
		return t, nil
	}
	return nil, &symbols.LookupError{Key: req.Key(), Kind: symbols.ErrSymbolNotFound}
}

func testProfile() *engine.Profile {
	return &engine.Profile{Data: []byte("profile-bytes"), Format: engine.FormatPprof, SampleCount: 3, CapturedAt: time.Now()}
}

func receive(t *testing.T, p *Pipe) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := p.Receive(ctx)
	require.NoError(t, err)
	return msg
}

func request(t *testing.T, p *Pipe, pdbName, breakpadID string) {
	t.Helper()
	msg, err := NewMessage(MessageGetSymbolTable, GetSymbolTable{PdbName: pdbName, BreakpadID: breakpadID})
	require.NoError(t, err)
	require.NoError(t, p.Send(context.Background(), msg))
}

func decodeReply(t *testing.T, msg Message) GetSymbolTableReply {
	t.Helper()
	require.Equal(t, MessageGetSymbolTableReply, msg.Name)
	var reply GetSymbolTableReply
	require.NoError(t, msg.Decode(&reply))
	return reply
}

func TestDeliver_SendsInitOnce(t *testing.T) {
	local, remote := NewPipe("https://perf-html.io/from-addon/")
	ch := NewChannel(newFakeResolver(t), zerolog.Nop())

	profile := testProfile()
	sub, err := ch.Deliver(context.Background(), profile, "https://example.com/page", local)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	msg := receive(t, remote)
	require.Equal(t, MessageInit, msg.Name)
	var init Init
	require.NoError(t, msg.Decode(&init))
	assert.Equal(t, "https://example.com/page", init.URL)
	assert.Equal(t, profile.Data, init.Profile.Data)
	assert.Equal(t, 3, init.Profile.SampleCount)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = remote.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "nothing follows Init unprompted")
}

func TestDeliver_SymbolRequests(t *testing.T) {
	local, remote := NewPipe("https://perf-html.io/from-addon/")
	sub, err := NewChannel(newFakeResolver(t), zerolog.Nop()).Deliver(context.Background(), testProfile(), "", local)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()
	receive(t, remote)

	request(t, remote, "libnss3.so", "ABC123")
	reply := decodeReply(t, receive(t, remote))
	assert.Equal(t, StatusSuccess, reply.Status)
	assert.Equal(t, "libnss3.so", reply.PdbName)
	assert.Equal(t, "ABC123", reply.BreakpadID)
	require.NotNil(t, reply.Result)
	assert.Equal(t, []uint32{0x1000}, reply.Result.Addresses)
	assert.Equal(t, "NSS_Init", reply.Result.Name(0))
	assert.Empty(t, reply.Error)

	request(t, remote, "libunknown.so", "FFFF")
	reply = decodeReply(t, receive(t, remote))
	assert.Equal(t, StatusError, reply.Status)
	assert.Equal(t, "libunknown.so", reply.PdbName)
	assert.Equal(t, "FFFF", reply.BreakpadID)
	assert.Nil(t, reply.Result)
	assert.NotEmpty(t, reply.Error)

	total, failed := sub.Handled()
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(1), failed)
}

func TestDeliver_RequestsAreIndependent(t *testing.T) {
	resolver := newFakeResolver(t)
	release := make(chan struct{})
	resolver.block["libslow.so/0001"] = release

	local, remote := NewPipe("")
	sub, err := NewChannel(resolver, zerolog.Nop()).Deliver(context.Background(), testProfile(), "", local)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()
	receive(t, remote)

	request(t, remote, "libslow.so", "0001")
	request(t, remote, "libnss3.so", "ABC123")

	first := decodeReply(t, receive(t, remote))
	assert.Equal(t, "libnss3.so", first.PdbName, "a slow lookup does not hold back others")

	close(release)
	second := decodeReply(t, receive(t, remote))
	assert.Equal(t, "libslow.so", second.PdbName)
	assert.Equal(t, StatusError, second.Status)
}

func TestDeliver_MalformedRequest(t *testing.T) {
	local, remote := NewPipe("")
	sub, err := NewChannel(newFakeResolver(t), zerolog.Nop()).Deliver(context.Background(), testProfile(), "", local)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()
	receive(t, remote)

	require.NoError(t, remote.Send(context.Background(), Message{Name: "Other", Data: []byte(`{}`)}))
	require.NoError(t, remote.Send(context.Background(), Message{Name: MessageGetSymbolTable, Data: []byte(`[1,2]`)}))

	reply := decodeReply(t, receive(t, remote))
	assert.Equal(t, StatusError, reply.Status)
	assert.Contains(t, reply.Error, "GetSymbolTable")
}

func TestDeliver_InitFailure(t *testing.T) {
	local, remote := NewPipe("")
	require.NoError(t, remote.Close())

	sub, err := NewChannel(newFakeResolver(t), zerolog.Nop()).Deliver(context.Background(), testProfile(), "", local)
	assert.Nil(t, sub)
	assert.ErrorIs(t, err, ErrChannelSendFailed)
}

func TestSubscription_EndsWhenViewerCloses(t *testing.T) {
	local, remote := NewPipe("")
	sub, err := NewChannel(newFakeResolver(t), zerolog.Nop()).Deliver(context.Background(), testProfile(), "", local)
	require.NoError(t, err)
	receive(t, remote)

	require.NoError(t, remote.Close())
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not end")
	}
	assert.NoError(t, sub.Err())
}

func TestSubscription_Close(t *testing.T) {
	resolver := newFakeResolver(t)
	resolver.block["libslow.so/0001"] = make(chan struct{})

	local, remote := NewPipe("")
	sub, err := NewChannel(resolver, zerolog.Nop()).Deliver(context.Background(), testProfile(), "", local)
	require.NoError(t, err)
	receive(t, remote)
	request(t, remote, "libslow.so", "0001")

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Err())

	select {
	case <-local.Done():
	default:
		t.Fatal("viewer context still open after Close")
	}
}

// erroringContext fails Receive with a transport error.
type erroringContext struct {
	*Pipe
	once sync.Once
}

func (e *erroringContext) Receive(ctx context.Context) (Message, error) {
	var first bool
	e.once.Do(func() { first = true })
	if first {
		return Message{}, errors.New("transport broken")
	}
	return e.Pipe.Receive(ctx)
}

func TestSubscription_TransportError(t *testing.T) {
	local, _ := NewPipe("")
	sub, err := NewChannel(newFakeResolver(t), zerolog.Nop()).Deliver(context.Background(), testProfile(), "", &erroringContext{Pipe: local})
	require.NoError(t, err)

	assert.EqualError(t, sub.Err(), "transport broken")
}
