package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/machinewatch/machinewatch/internal/logstore"
	"github.com/machinewatch/machinewatch/internal/monitor"
)

// Controller is the slice of the connection manager the web layer needs.
type Controller interface {
	Connect(cfg monitor.Config) error
	Disconnect()
	State() monitor.State
}

// Handler serves the page and all /api/v1/* endpoints.
type Handler struct {
	ctrl  Controller
	store *logstore.Store
	mux   *http.ServeMux

	mu       sync.Mutex
	defaults DefaultsResponse
}

// New creates a Handler wired to the given controller and store. defaults
// holds the endpoint/identity prefilled into the page inputs.
func New(ctrl Controller, st *logstore.Store, defaults DefaultsResponse) *Handler {
	h := &Handler{ctrl: ctrl, store: st, mux: http.NewServeMux(), defaults: defaults}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/state", h.state)
	h.mux.HandleFunc("/api/v1/defaults", h.getDefaults)
	h.mux.HandleFunc("/api/v1/records", h.records)
	h.mux.HandleFunc("/api/v1/connect", h.connect)
	h.mux.HandleFunc("/api/v1/disconnect", h.disconnect)
	h.mux.HandleFunc("/api/v1/clear", h.clear)
	h.mux.HandleFunc("/", h.page)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// SetDefaults swaps the values offered to the page, e.g. after a config
// reload. An active connection is not touched.
func (h *Handler) SetDefaults(d DefaultsResponse) {
	h.mu.Lock()
	h.defaults = d
	h.mu.Unlock()
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		State:       h.ctrl.State(),
		RecordCount: h.store.Len(),
		Capacity:    h.store.Capacity(),
	})
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, StateResponse{State: h.ctrl.State()})
}

func (h *Handler) getDefaults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.mu.Lock()
	d := h.defaults
	h.mu.Unlock()
	jsonResp(w, http.StatusOK, d)
}

func (h *Handler) records(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	recs := h.store.Records()
	out := make([]RecordView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRecordView(rec))
	}
	jsonResp(w, http.StatusOK, out)
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.EndpointURL) == "" {
		h.mu.Lock()
		req.EndpointURL = h.defaults.EndpointURL
		h.mu.Unlock()
	}

	err := h.ctrl.Connect(monitor.Config{EndpointURL: req.EndpointURL, Identity: req.Identity})
	switch {
	case errors.Is(err, monitor.ErrBlankIdentity):
		jsonErr(w, http.StatusBadRequest, "identity must not be empty")
	case errors.Is(err, monitor.ErrAlreadyActive):
		jsonErr(w, http.StatusConflict, "a connection is already active")
	case err != nil:
		slog.Error("web: connect failed", "err", err)
		jsonErr(w, http.StatusBadGateway, err.Error())
	default:
		jsonResp(w, http.StatusAccepted, StateResponse{State: h.ctrl.State()})
	}
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.ctrl.Disconnect()
	jsonResp(w, http.StatusOK, StateResponse{State: h.ctrl.State()})
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.store.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("web: encode response", "err", err)
	}
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
