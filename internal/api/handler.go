package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/quotewatch/quotewatch/internal/metrics"
	"github.com/quotewatch/quotewatch/internal/status"
	"github.com/quotewatch/quotewatch/internal/store"
)

// Handler serves the read-only API from a Store.
type Handler struct {
	store   *store.Store
	metrics *metrics.Registry
	mux     *http.ServeMux
	now     func() time.Time // injectable for deterministic tests
}

// New creates a Handler and registers all routes. reg may be nil, in which
// case /metrics is not served.
func New(st *store.Store, reg *metrics.Registry) http.Handler {
	h := &Handler{store: st, metrics: reg, mux: http.NewServeMux(), now: time.Now}

	h.mux.HandleFunc("/api/v1/quotes", h.quotes)
	h.mux.HandleFunc("/api/v1/status", h.status)
	h.mux.HandleFunc("/healthz", h.healthz)

	// Paths served by earlier releases.
	h.mux.HandleFunc("/prices", h.quotes)
	h.mux.HandleFunc("/api/latest", h.quotes)
	h.mux.HandleFunc("/health", h.healthz)

	h.mux.HandleFunc("/readyz", h.readyz)
	if reg != nil {
		h.mux.HandleFunc("/metrics", h.serveMetrics)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// quotes returns GET /api/v1/quotes: the cached snapshot.
func (h *Handler) quotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.store.Snapshot().JSON())
}

// status returns GET /api/v1/status: readiness, message and diagnostics.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, status.Build(h.store.Snapshot(), h.now()))
}

// healthz answers liveness probes regardless of cache state.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, probeResponse{Status: "ok"})
}

// readyz answers readiness probes: 503 until the first successful cycle.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap := h.store.Snapshot()
	if !snap.Ready {
		jsonResp(w, http.StatusServiceUnavailable, probeResponse{Status: "not ready", Error: snap.Error})
		return
	}
	jsonResp(w, http.StatusOK, probeResponse{Status: "ready"})
}

func (h *Handler) serveMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", string(metrics.Format))
	w.WriteHeader(http.StatusOK)
	if err := h.metrics.Write(w); err != nil {
		slog.Warn("api: write metrics", "err", err)
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
