package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// ChannelParam is the report URL query parameter carrying the
	// WebSocket address the tab must connect to.
	ChannelParam = "channel"

	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
	incomingBuffer = 16
)

// HubConfig configures a Hub.
type HubConfig struct {
	// ChannelBaseURL is the ws:// address of the server mounting
	// HandleAttach, e.g. "ws://127.0.0.1:8710".
	ChannelBaseURL string

	// OpenTimeout bounds the wait for a launched tab to connect. Zero waits
	// until the Open context ends.
	OpenTimeout time.Duration
}

type pendingOpen struct {
	reportURL string
	ready     chan *wsContext
	abandoned chan struct{}
}

// Hub opens viewer contexts as browser tabs that attach back over
// WebSocket. Each Open launches the report URL with a channel parameter
// naming a fresh context ID and waits for that tab to connect.
type Hub struct {
	cfg      HubConfig
	launcher Launcher
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingOpen
	active  map[string]*wsContext
}

// NewHub creates a hub. Mount HandleAttach at "GET /viewer/{id}/ws".
func NewHub(cfg HubConfig, launcher Launcher, logger zerolog.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		launcher: launcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 * 1024,
			// Origins are checked against the report URL before upgrading.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		pending: make(map[string]*pendingOpen),
		active:  make(map[string]*wsContext),
	}
}

// ChannelURL returns the WebSocket address for a context ID.
func (h *Hub) ChannelURL(id string) string {
	h.mu.Lock()
	base := h.cfg.ChannelBaseURL
	h.mu.Unlock()
	return strings.TrimSuffix(base, "/") + "/viewer/" + id + "/ws"
}

// SetChannelBaseURL replaces the ws:// base once the attach server's
// address is known.
func (h *Hub) SetChannelBaseURL(base string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg.ChannelBaseURL = base
}

// WithChannel adds the channel parameter to reportURL.
func WithChannel(reportURL, channelURL string) (string, error) {
	u, err := url.Parse(reportURL)
	if err != nil {
		return "", fmt.Errorf("invalid report URL: %w", err)
	}
	q := u.Query()
	q.Set(ChannelParam, channelURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open launches a tab at reportURL and returns its context once attached.
func (h *Hub) Open(ctx context.Context, reportURL string) (Context, error) {
	id := uuid.NewString()
	logger := h.logger.With().Str("viewer_id", id).Logger()

	target, err := WithChannel(reportURL, h.ChannelURL(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrViewerOpenFailed, err)
	}

	p := &pendingOpen{
		reportURL: reportURL,
		ready:     make(chan *wsContext),
		abandoned: make(chan struct{}),
	}
	h.mu.Lock()
	h.pending[id] = p
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
		close(p.abandoned)
	}()

	if err := h.launcher.Launch(ctx, target); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrViewerOpenFailed, err)
	}
	logger.Info().Str("url", target).Msg("Waiting for viewer to attach")

	if h.cfg.OpenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.OpenTimeout)
		defer cancel()
	}

	select {
	case c := <-p.ready:
		logger.Info().Msg("Viewer attached")
		return c, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: viewer %s did not attach: %w", ErrViewerOpenFailed, id, ctx.Err())
	}
}

// HandleAttach upgrades a tab's connection and completes its pending Open.
// Unknown or already attached IDs get 404.
func (h *Hub) HandleAttach(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	h.mu.Lock()
	p, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	h.mu.Unlock()
	if !ok {
		http.Error(w, "unknown viewer", http.StatusNotFound)
		return
	}

	if origin := r.Header.Get("Origin"); !OriginAllowed(p.reportURL, origin, r.Host) {
		h.logger.Warn().Str("viewer_id", id).Str("origin", origin).Msg("Rejected viewer from unexpected origin")
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied.
		h.logger.Warn().Err(err).Str("viewer_id", id).Msg("Viewer upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &wsContext{
		id:       id,
		url:      p.reportURL,
		conn:     conn,
		incoming: make(chan Message, incomingBuffer),
		done:     make(chan struct{}),
		logger:   h.logger.With().Str("viewer_id", id).Logger(),
	}
	c.onClose = func() { h.untrack(id) }

	h.mu.Lock()
	h.active[id] = c
	h.mu.Unlock()

	go c.readPump()

	select {
	case p.ready <- c:
	case <-p.abandoned:
		// Open gave up while the tab was attaching.
		_ = c.Close()
	}
}

// Active returns the number of attached viewer contexts.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// Close closes every attached context.
func (h *Hub) Close() error {
	h.mu.Lock()
	contexts := make([]*wsContext, 0, len(h.active))
	for _, c := range h.active {
		contexts = append(contexts, c)
	}
	h.mu.Unlock()

	var errs []error
	for _, c := range contexts {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Hub) untrack(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.active, id)
}

// OriginAllowed accepts requests without Origin (non-browser clients), from
// the report URL's origin, or from the server itself.
func OriginAllowed(reportURL, origin, host string) bool {
	if origin == "" {
		return true
	}
	o, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(o.Host, host) {
		return true
	}
	r, err := url.Parse(reportURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(o.Scheme, r.Scheme) && strings.EqualFold(o.Host, r.Host)
}

// wsContext is a viewer context backed by a WebSocket connection.
type wsContext struct {
	id       string
	url      string
	conn     *websocket.Conn
	incoming chan Message
	done     chan struct{}
	logger   zerolog.Logger
	onClose  func()

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *wsContext) ID() string  { return c.id }
func (c *wsContext) URL() string { return c.url }

func (c *wsContext) Done() <-chan struct{} {
	return c.done
}

func (c *wsContext) Send(ctx context.Context, msg Message) error {
	select {
	case <-c.done:
		return ErrContextClosed
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = c.Close()
		return fmt.Errorf("%w: %w", ErrContextClosed, err)
	}
	return nil
}

func (c *wsContext) Receive(ctx context.Context) (Message, error) {
	select {
	case msg := <-c.incoming:
		return msg, nil
	case <-c.done:
		return Message{}, ErrContextClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *wsContext) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
		c.logger.Debug().Msg("Viewer context closed")
	})
	return c.closeErr
}

func (c *wsContext) readPump() {
	defer func() { _ = c.Close() }()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("Viewer connection lost")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed viewer message")
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}
