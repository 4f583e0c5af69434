// Package api serves experiment status and results over HTTP, plus the
// Prometheus metrics endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vidaudit/internal/state"
	"vidaudit/internal/storage"
)

// StatusSource yields the live snapshot of a running experiment.
type StatusSource interface {
	Snapshot() state.Snapshot
}

// Options configures a Server. Tracker may be nil, in which case status is
// read from status.json in Dir; Store may be nil to disable result routes.
type Options struct {
	Dir     string
	Tracker StatusSource
	Store   storage.Backend
	Logger  *zap.Logger
}

// Server is the HTTP face of a (running or finished) experiment.
type Server struct {
	opts Options
	log  *zap.Logger
}

// New builds a server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{opts: opts, log: opts.Logger.Named("api")}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/results", s.handleResults)
		r.Get("/results/{taskID}", s.handleResult)
	})
	return r
}

// ListenAndServe runs the server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.opts.Tracker != nil {
		snap := s.opts.Tracker.Snapshot()
		writeJSON(w, http.StatusOK, &snap)
		return
	}
	snap, err := state.Load(s.opts.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "no experiment status found")
			return
		}
		s.log.Error("load status failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load status failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusNotFound, "no result storage configured")
		return
	}
	ids, err := s.opts.Store.List()
	if err != nil {
		s.log.Error("list results failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list results failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": ids})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusNotFound, "no result storage configured")
		return
	}
	taskID := chi.URLParam(r, "taskID")
	doc, err := s.opts.Store.Load(taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown task id")
			return
		}
		s.log.Error("load result failed", zap.String("task_id", taskID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load result failed")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(started)))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
