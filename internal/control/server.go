// Package control exposes a running orchestrator over a per-run Unix
// socket: status, interrupt, gate decisions, and prometheus metrics.
// Companion CLI invocations (status, interrupt, review) talk to the run
// process through it.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	derrors "github.com/draftsmith/draftsmith/internal/errors"
	"github.com/draftsmith/draftsmith/internal/orchestrator"
)

// SocketPath returns the control socket path for a run.
// Format: /tmp/draftsmith-{run_id}.sock
func SocketPath(runID string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("draftsmith-%s.sock", runID))
}

// Controller is the orchestrator surface the server exposes. The
// orchestrator satisfies it directly.
type Controller interface {
	Status() orchestrator.Snapshot
	RequestAbort()
	Decide(dec orchestrator.Decision) error
}

// Server serves the control API for one run on a Unix domain socket.
type Server struct {
	socketPath string
	ctrl       Controller
	gatherer   prometheus.Gatherer
	log        *slog.Logger

	httpSrv *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewServer builds a control server for a run. A nil gatherer disables
// the metrics endpoint.
func NewServer(runID string, ctrl Controller, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	return NewServerWithPath(SocketPath(runID), ctrl, gatherer, log)
}

// NewServerWithPath builds a control server on a custom socket path.
func NewServerWithPath(socketPath string, ctrl Controller, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		ctrl:       ctrl,
		gatherer:   gatherer,
		log:        log.With("component", "control"),
	}
}

// Path returns the socket path the server listens on.
func (s *Server) Path() string {
	return s.socketPath
}

// Start listens on the socket and serves in the background. Use
// Shutdown to stop.
func (s *Server) Start() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale control socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on control socket: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.httpSrv = &http.Server{Handler: s.router()}
	srv := s.httpSrv
	s.mu.Unlock()

	s.log.Info("control server listening", "socket", s.socketPath)

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("control server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the server and removes the socket file.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if rmErr := os.Remove(s.socketPath); rmErr != nil && !os.IsNotExist(rmErr) {
		s.log.Warn("could not remove control socket", "error", rmErr)
	}
	s.log.Info("control server stopped")
	return err
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/status", s.handleStatus)
	r.Post("/interrupt", s.handleInterrupt)
	r.Post("/decision", s.handleDecision)
	if s.gatherer != nil {
		r.Get("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP)
	}
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	s.ctrl.RequestAbort()
	writeJSON(w, http.StatusAccepted, AckResponse{OK: true, Message: "abort requested"})
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var dec orchestrator.Decision
	if err := json.NewDecoder(r.Body).Decode(&dec); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding decision: %w", err))
		return
	}
	if err := s.ctrl.Decide(dec); err != nil {
		status := http.StatusConflict
		if derrors.HasCode(err, derrors.CodeReviewInvalidEdit) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, AckResponse{OK: true, Message: string(dec.Verdict) + " accepted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, AckResponse{OK: false, Message: err.Error()})
}
