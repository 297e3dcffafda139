// Package httpapi exposes the relay surface as JSON over HTTP for the web
// layer, plus health and Prometheus endpoints.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hestia-iot/ntnrelay/internal/app"
	"github.com/hestia-iot/ntnrelay/internal/domain"
	"github.com/hestia-iot/ntnrelay/internal/history"
	"github.com/hestia-iot/ntnrelay/internal/ports"
)

// maxBodyBytes bounds a capture request body.
const maxBodyBytes = 64 << 10

// Pipeline is the relay surface the API serves.
type Pipeline interface {
	CaptureNow(payload json.RawMessage) (string, error)
	CaptureSample(ctx context.Context, extra json.RawMessage) (string, error)
	QueueSnapshot(n int) ([]domain.QueueItem, error)
	ClearQueue() (int, error)
	HistorySnapshot() history.Snapshot
	ClearHistory(ch domain.Channel) error
	ReadinessSnapshot() domain.ReadinessSnapshot
	Status() app.State
}

const apiPrefix = "/api"

type api struct {
	p      Pipeline
	logger ports.Logger
}

// NewRouter returns the API routes.
func NewRouter(p Pipeline, logger ports.Logger) *mux.Router {
	a := &api{p: p, logger: logger}

	// Routes stay on the root router so a method mismatch answers 405.
	r := mux.NewRouter()
	r.HandleFunc(apiPrefix+"/capture", a.capture).Methods("POST")
	r.HandleFunc(apiPrefix+"/queue", a.queueList).Methods("GET")
	r.HandleFunc(apiPrefix+"/queue", a.queueClear).Methods("DELETE")
	r.HandleFunc(apiPrefix+"/history", a.historyList).Methods("GET")
	r.HandleFunc(apiPrefix+"/history/{channel}", a.historyClear).Methods("DELETE")
	r.HandleFunc(apiPrefix+"/readiness", a.readiness).Methods("GET")

	r.HandleFunc("/healthz", a.health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}

func (a *api) capture(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		a.fail(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	var id string
	if len(bytes.TrimSpace(body)) == 0 {
		id, err = a.p.CaptureSample(r.Context(), nil)
	} else {
		id, err = a.p.CaptureNow(body)
	}
	if err != nil {
		a.captureError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (a *api) captureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrLockTimeout):
		w.Header().Set("Retry-After", "1")
		a.fail(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, domain.ErrDecode):
		a.fail(w, http.StatusBadRequest, err)
	default:
		a.fail(w, http.StatusInternalServerError, err)
	}
}

func (a *api) queueList(w http.ResponseWriter, r *http.Request) {
	n := 0
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			a.fail(w, http.StatusBadRequest, fmt.Errorf("invalid n %q", s))
			return
		}
		n = v
	}
	items, err := a.p.QueueSnapshot(n)
	if err != nil {
		a.captureError(w, err)
		return
	}
	if items == nil {
		items = []domain.QueueItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *api) queueClear(w http.ResponseWriter, r *http.Request) {
	n, err := a.p.ClearQueue()
	if err != nil {
		a.captureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (a *api) historyList(w http.ResponseWriter, r *http.Request) {
	snap := a.p.HistorySnapshot()
	if snap.Uplink == nil {
		snap.Uplink = []domain.UplinkRecord{}
	}
	if snap.Downlink == nil {
		snap.Downlink = []domain.DownlinkMessage{}
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *api) historyClear(w http.ResponseWriter, r *http.Request) {
	ch, err := domain.ParseChannel(mux.Vars(r)["channel"])
	if err != nil {
		a.fail(w, http.StatusBadRequest, err)
		return
	}
	if err := a.p.ClearHistory(ch); err != nil {
		a.fail(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) readiness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.p.ReadinessSnapshot())
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	state := a.p.Status()
	code := http.StatusOK
	if state != app.StateRunning {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"state": state.String()})
}

func (a *api) fail(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		a.logger.Warn("api request failed", ports.Int("status", code), ports.Err(err))
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Server is the HTTP server for the API.
type Server struct {
	addr   string
	logger ports.Logger
	server *http.Server
}

// NewServer creates a server for handler listening on addr.
func NewServer(addr string, handler http.Handler, logger ports.Logger) *Server {
	return &Server{
		addr:   addr,
		logger: logger,
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start serves in the background.
func (s *Server) Start() {
	s.logger.Info("starting api server", ports.String("addr", s.addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", ports.Err(err))
		}
	}()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	s.logger.Info("api server stopped")
	return nil
}
