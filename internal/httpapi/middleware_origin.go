package httpapi

import (
	"mime"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/viewer"
)

// OriginMiddleware keeps web pages from driving the daemon. Browsers attach
// Origin to cross-site requests; only the daemon itself and the report
// viewer's origin are accepted. Requests without Origin come from
// non-browser clients such as the CLI.
type OriginMiddleware struct {
	reportURL string
	logger    zerolog.Logger
}

// NewOriginMiddleware creates the middleware. reportURL's origin is trusted
// alongside the daemon's own host.
func NewOriginMiddleware(reportURL string, logger zerolog.Logger) *OriginMiddleware {
	return &OriginMiddleware{
		reportURL: reportURL,
		logger:    logger.With().Str("component", "origin").Logger(),
	}
}

// Handler wraps next with the origin and content type checks.
func (m *OriginMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); !viewer.OriginAllowed(m.reportURL, origin, r.Host) {
			m.logger.Warn().
				Str("origin", origin).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("Rejected request from foreign origin")
			writeRejection(w, http.StatusForbidden, "origin not allowed")
			return
		}

		// A form post is a CORS simple request; a JSON body is not.
		if r.Method == http.MethodPost && r.ContentLength != 0 && !isJSON(r.Header.Get("Content-Type")) {
			writeRejection(w, http.StatusUnsupportedMediaType, "request body must be application/json")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

func writeRejection(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}` + "\n"))
}
