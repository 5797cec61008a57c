package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"

	"github.com/lucasew/dircap/internal/errutil"
	"github.com/lucasew/dircap/internal/eviction"
	"github.com/lucasew/dircap/internal/journal"
)

// recentLimit is how many journal entries /status includes.
const recentLimit = 10

// Controller is the part of a running watchdog the control surface needs.
type Controller interface {
	Status() eviction.Status
	SetLimit(n uint32)
	Recent(ctx context.Context, n int) ([]journal.Entry, error)
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	WatchedPath      string           `json:"watched_path"`
	Limit            uint32           `json:"limit"`
	Interval         string           `json:"interval"`
	Cycles           int64            `json:"cycles"`
	Evictions        int64            `json:"evictions"`
	MetadataFailures int64            `json:"metadata_failures"`
	Last             eviction.Summary `json:"last"`
	Recent           []journal.Entry  `json:"recent,omitempty"`
}

// LimitRequest is the body of PUT /limit.
type LimitRequest struct {
	Limit *int64 `json:"limit"`
}

// ControlHandler exposes the watchdog's menu actions over HTTP:
// reading status, changing the limit and asking the host to quit.
type ControlHandler struct {
	ctl  Controller
	quit func()
	mux  *http.ServeMux
}

func NewControlHandler(ctl Controller, quit func()) *ControlHandler {
	h := &ControlHandler{
		ctl:  ctl,
		quit: quit,
		mux:  http.NewServeMux(),
	}
	h.mux.HandleFunc("GET /status", h.handleStatus)
	h.mux.HandleFunc("PUT /limit", h.handleLimit)
	h.mux.HandleFunc("POST /limit", h.handleLimit)
	h.mux.HandleFunc("POST /quit", h.handleQuit)
	return h
}

func (h *ControlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *ControlHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.ctl.Status()
	resp := StatusResponse{
		WatchedPath:      st.WatchedPath,
		Limit:            st.Limit,
		Interval:         st.Interval.String(),
		Cycles:           st.Cycles,
		Evictions:        st.Evictions,
		MetadataFailures: st.MetadataFailures,
		Last:             st.Last,
	}

	recent, err := h.ctl.Recent(r.Context(), recentLimit)
	if err != nil {
		// Status is still useful without history.
		errutil.LogMsg(err, "Failed to read journal")
	}
	resp.Recent = recent

	writeJSON(w, http.StatusOK, resp)
}

func (h *ControlHandler) handleLimit(w http.ResponseWriter, r *http.Request) {
	var req LimitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "Invalid body. Expected {\"limit\": N}", http.StatusBadRequest)
		return
	}
	if req.Limit == nil {
		http.Error(w, "Missing limit", http.StatusBadRequest)
		return
	}
	if *req.Limit < 0 || *req.Limit > math.MaxUint32 {
		http.Error(w, "Limit must be between 0 and 4294967295", http.StatusBadRequest)
		return
	}

	h.ctl.SetLimit(uint32(*req.Limit))
	w.WriteHeader(http.StatusNoContent)
}

func (h *ControlHandler) handleQuit(w http.ResponseWriter, r *http.Request) {
	slog.Info("Quit requested", "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusAccepted)
	if h.quit != nil {
		h.quit()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	errutil.LogMsg(json.NewEncoder(w).Encode(v), "Failed to write response")
}
