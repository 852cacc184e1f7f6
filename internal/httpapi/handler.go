// Package httpapi exposes the keypoint retrieval service over HTTP.
package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/signwave/keypoint-server/pkg/keypoint"
	"github.com/signwave/keypoint-server/pkg/retrieval"
	"github.com/signwave/keypoint-server/pkg/store"
)

var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "keypoint_http_requests_total",
	Help: "Total HTTP responses by status code",
}, []string{"code"})

// Handler serves the keypoint HTTP API.
type Handler struct {
	service *retrieval.Service
	logger  zerolog.Logger
}

// NewHandler creates the API handler over a retrieval service.
func NewHandler(service *retrieval.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/keypoints/{word}", h.handleGetWord)
}

func (h *Handler) handleGetWord(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	word := r.PathValue("word")

	opts, err := parseOptions(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	frames, err := h.service.GetWord(r.Context(), word, opts)
	if err != nil {
		status, message := classifyError(err)
		h.logger.Error().
			Err(err).
			Str("word", word).
			Int("status", status).
			Msg("Word lookup failed")
		writeError(w, status, message)
		return
	}

	if frames == nil {
		frames = []keypoint.Frame{}
	}

	h.logger.Debug().
		Str("word", word).
		Int("rows", len(frames)).
		Dur("duration", time.Since(startTime)).
		Msg("Word served")
	writeJSON(w, http.StatusOK, frames)
}

// parseOptions validates the query parameters of a keypoint lookup.
func parseOptions(q url.Values) (retrieval.Options, error) {
	var opts retrieval.Options

	if raw := q.Get("frame"); raw != "" {
		frame, err := strconv.Atoi(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid frame %q: must be an integer", raw)
		}
		opts.Frame = &frame
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return opts, fmt.Errorf("invalid limit %q: must be a positive integer", raw)
		}
		opts.Limit = limit
	}

	if raw := q.Get("round_decimals"); raw != "" {
		decimals, err := strconv.Atoi(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid round_decimals %q: must be an integer", raw)
		}
		opts.RoundDecimals = &decimals
	}

	return opts, nil
}

// classifyError maps retrieval errors to response codes without leaking
// connection strings or SQL into the body. The full error is logged.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrConnection):
		return http.StatusServiceUnavailable, "keypoint store unavailable"
	case errors.Is(err, store.ErrQuery):
		return http.StatusInternalServerError, "keypoint store query failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	httpRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	// Headers are out by now; an encode failure can only truncate the body.
	_ = gojson.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
