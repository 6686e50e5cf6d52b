package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/engine"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/history"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/session"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/viewer"
)

// Navigation event types.
const (
	NavigationOpen = "open"
	NavigationLoad = "load"
)

// maxBodySize bounds request bodies; navigation events are tiny.
const maxBodySize = 64 << 10

// NavigationEvent is the body of POST /events/navigation.
type NavigationEvent struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// NavigationResult reports what a navigation event caused.
type NavigationResult struct {
	Scheduled bool `json:"scheduled"`
}

// AutoCaptureResult is returned by the auto-capture toggle.
type AutoCaptureResult struct {
	Enabled bool `json:"enabled"`
}

// CollectResult is returned by POST /actions/collect. Cycle is set when the
// caller waited for delivery.
type CollectResult struct {
	Accepted bool           `json:"accepted"`
	Cycle    *history.Cycle `json:"cycle,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

type handlers struct {
	controller Controller
	history    HistoryLister
	logger     zerolog.Logger
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.controller.Status(r.Context()))
}

func (h *handlers) startStop(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.ToggleStartStop(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.controller.Status(r.Context()))
}

// collect triggers a cycle. With ?wait=true it responds once the profile is
// delivered; the cycle keeps running if the client goes away.
func (h *handlers) collect(w http.ResponseWriter, r *http.Request) {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		if err := h.controller.TriggerCollect(); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusAccepted, CollectResult{Accepted: true})
		return
	}

	cycle, err := h.controller.Collect(context.WithoutCancel(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, CollectResult{Accepted: true, Cycle: cycle})
}

func (h *handlers) autoCapture(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, AutoCaptureResult{Enabled: h.controller.ToggleAutoCapture()})
}

func (h *handlers) restart(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Restart(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.controller.Status(r.Context()))
}

func (h *handlers) navigation(w http.ResponseWriter, r *http.Request) {
	var ev NavigationEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&ev); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid navigation event: %v", err)})
		return
	}

	switch ev.Type {
	case NavigationOpen:
		if err := h.controller.OnTabOpen(r.Context(), ev.URL); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, NavigationResult{})
	case NavigationLoad:
		h.writeJSON(w, http.StatusOK, NavigationResult{Scheduled: h.controller.OnTabLoad(ev.URL)})
	default:
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("unknown navigation type %q", ev.Type)})
	}
}

func (h *handlers) symbols(w http.ResponseWriter, r *http.Request) {
	libs, err := h.controller.ResolveLibraries(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if libs == nil {
		libs = []session.LibrarySymbols{}
	}
	h.writeJSON(w, http.StatusOK, libs)
}

func (h *handlers) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "history is disabled"})
		return
	}

	q := r.URL.Query()
	filter := history.Filter{Status: q.Get("status")}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "since must be an RFC3339 time"})
			return
		}
		filter.Since = since
	}

	cycles, err := h.history.ListCycles(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if cycles == nil {
		cycles = []history.Cycle{}
	}
	h.writeJSON(w, http.StatusOK, cycles)
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug().Err(err).Msg("Failed to write response")
	}
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn().Err(err).Msg("Request failed")
	}
	h.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrCollectionInProgress):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrEngineRejected),
		errors.Is(err, engine.ErrEngineQueryFailed),
		errors.Is(err, viewer.ErrViewerOpenFailed),
		errors.Is(err, viewer.ErrChannelSendFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
