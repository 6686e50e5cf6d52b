package viewer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestHub serves a hub whose launcher dials the channel URL the way a
// report page would, handing the client connection to the test.
func newTestHub(t *testing.T, timeout time.Duration) (*Hub, <-chan *websocket.Conn) {
	t.Helper()

	conns := make(chan *websocket.Conn, 1)
	var hub *Hub
	launcher := LauncherFunc(func(ctx context.Context, target string) error {
		u, err := url.Parse(target)
		if err != nil {
			return err
		}
		channel := u.Query().Get(ChannelParam)
		go func() {
			conn, _, err := websocket.DefaultDialer.Dial(channel, nil)
			if err != nil {
				t.Errorf("dial %s: %v", channel, err)
				return
			}
			conns <- conn
		}()
		return nil
	})

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	hub = NewHub(HubConfig{
		ChannelBaseURL: "ws" + strings.TrimPrefix(server.URL, "http"),
		OpenTimeout:    timeout,
	}, launcher, zerolog.Nop())
	mux.HandleFunc("GET /viewer/{id}/ws", hub.HandleAttach)
	t.Cleanup(func() { _ = hub.Close() })

	return hub, conns
}

func TestHub_OpenAndExchange(t *testing.T) {
	hub, conns := newTestHub(t, 5*time.Second)

	vc, err := hub.Open(context.Background(), "https://perf-html.io/from-addon/")
	require.NoError(t, err)
	assert.Equal(t, "https://perf-html.io/from-addon/", vc.URL())
	assert.NotEmpty(t, vc.ID())
	assert.Equal(t, 1, hub.Active())

	conn := <-conns
	defer func() { _ = conn.Close() }()

	msg, err := NewMessage(MessageInit, Init{URL: "https://example.com"})
	require.NoError(t, err)
	require.NoError(t, vc.Send(context.Background(), msg))

	var got Message
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, MessageInit, got.Name)

	require.NoError(t, conn.WriteJSON(Message{Name: MessageGetSymbolTable, Data: json.RawMessage(`{"pdbName":"libnss3.so","breakpadId":"ABC123"}`)}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	received, err := vc.Receive(ctx)
	require.NoError(t, err)
	var req GetSymbolTable
	require.NoError(t, received.Decode(&req))
	assert.Equal(t, GetSymbolTable{PdbName: "libnss3.so", BreakpadID: "ABC123"}, req)

	// The tab going away closes the context.
	require.NoError(t, conn.Close())
	select {
	case <-vc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not closed after disconnect")
	}
	require.Eventually(t, func() bool { return hub.Active() == 0 }, 5*time.Second, 10*time.Millisecond)

	_, err = vc.Receive(context.Background())
	assert.ErrorIs(t, err, ErrContextClosed)
	assert.ErrorIs(t, vc.Send(context.Background(), msg), ErrContextClosed)
}

func TestHub_LaunchFailure(t *testing.T) {
	hub := NewHub(HubConfig{ChannelBaseURL: "ws://127.0.0.1:1"}, LauncherFunc(func(context.Context, string) error {
		return assert.AnError
	}), zerolog.Nop())

	_, err := hub.Open(context.Background(), "https://perf-html.io/from-addon/")
	assert.ErrorIs(t, err, ErrViewerOpenFailed)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestHub_OpenTimeout(t *testing.T) {
	hub := NewHub(HubConfig{ChannelBaseURL: "ws://127.0.0.1:1", OpenTimeout: 20 * time.Millisecond},
		LauncherFunc(func(context.Context, string) error { return nil }), zerolog.Nop())

	_, err := hub.Open(context.Background(), "https://perf-html.io/from-addon/")
	assert.ErrorIs(t, err, ErrViewerOpenFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHub_UnknownViewer(t *testing.T) {
	hub, _ := newTestHub(t, 0)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/viewer/nope/ws", nil)
	req.SetPathValue("id", "nope")
	hub.HandleAttach(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWithChannel(t *testing.T) {
	got, err := WithChannel("https://perf-html.io/from-addon/?x=1", "ws://127.0.0.1:8710/viewer/abc/ws")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/from-addon/", u.Path)
	assert.Equal(t, "1", u.Query().Get("x"))
	assert.Equal(t, "ws://127.0.0.1:8710/viewer/abc/ws", u.Query().Get(ChannelParam))
}

func TestOriginAllowed(t *testing.T) {
	report := "https://perf-html.io/from-addon/"
	assert.True(t, OriginAllowed(report, "", "127.0.0.1:8710"))
	assert.True(t, OriginAllowed(report, "https://perf-html.io", "127.0.0.1:8710"))
	assert.True(t, OriginAllowed(report, "http://127.0.0.1:8710", "127.0.0.1:8710"))
	assert.False(t, OriginAllowed(report, "https://evil.example", "127.0.0.1:8710"))
	assert.False(t, OriginAllowed(report, "http://perf-html.io", "127.0.0.1:8710"))
}

func TestBrowserLauncher_Command(t *testing.T) {
	b := &BrowserLauncher{Command: "firefox --new-tab"}
	name, args := b.command()
	assert.Equal(t, "firefox", name)
	assert.Equal(t, []string{"--new-tab"}, args)

	name, _ = (&BrowserLauncher{}).command()
	assert.NotEmpty(t, name)
}

func TestBrowserLauncher_MissingCommand(t *testing.T) {
	b := &BrowserLauncher{Command: "/nonexistent/browser-binary", Logger: zerolog.Nop()}
	assert.Error(t, b.Launch(context.Background(), "https://perf-html.io/"))
}

func TestHub_SetChannelBaseURL(t *testing.T) {
	hub := NewHub(HubConfig{ChannelBaseURL: "ws://127.0.0.1:0/"}, nil, zerolog.Nop())
	assert.Equal(t, "ws://127.0.0.1:0/viewer/abc/ws", hub.ChannelURL("abc"))

	hub.SetChannelBaseURL("ws://127.0.0.1:8710")
	assert.Equal(t, "ws://127.0.0.1:8710/viewer/abc/ws", hub.ChannelURL("abc"))
}
