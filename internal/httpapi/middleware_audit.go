package httpapi

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// AuditMiddleware logs every request to the control API.
type AuditMiddleware struct {
	logger zerolog.Logger
}

// NewAuditMiddleware creates a new audit logging middleware.
func NewAuditMiddleware(logger zerolog.Logger) *AuditMiddleware {
	return &AuditMiddleware{
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Handler wraps an http.Handler with audit logging.
func (m *AuditMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code.
		wrapped := &statusResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		// Status polling is noisy; keep it out of the info log.
		event := m.logger.Info()
		if r.URL.Path == "/status" {
			event = m.logger.Debug()
		}
		event = event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start))

		if ua := r.Header.Get("User-Agent"); ua != "" {
			event.Str("user_agent", ua)
		}
		if cl := r.ContentLength; cl > 0 {
			event.Int64("content_length", cl)
		}

		event.Msg("Request")
	})
}

// statusResponseWriter wraps http.ResponseWriter to capture the status code.
type statusResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

// WriteHeader captures the status code before calling the underlying WriteHeader.
func (w *statusResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Write captures the status code (defaults to 200) if WriteHeader wasn't called.
func (w *statusResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.status = http.StatusOK
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	w.wroteHeader = true
	return h.Hijack()
}

// Unwrap returns the underlying ResponseWriter for middleware compatibility.
func (w *statusResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
