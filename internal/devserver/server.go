// Package devserver is an in-memory implementation of the remote pairing
// service, for local development and end-to-end tests of the client.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/mirrorpair/pkg/protocol"
)

const (
	maxBodyBytes  = 64 << 10
	sweepInterval = time.Second
)

// Options configures a Server.
type Options struct {
	// TTL of issued tokens. Default DefaultTTL.
	TTL time.Duration

	// RateLimitRPM limits requests per client IP. 0 disables.
	RateLimitRPM   int
	RateLimitBurst int
}

// Server serves the pairing endpoints.
type Server struct {
	registry *Registry
	metrics  *metrics
	limiter  *RateLimiter
	router   chi.Router
}

// New builds a server with an empty registry.
func New(opts Options) *Server {
	s := &Server{
		registry: NewRegistry(opts.TTL),
		limiter:  NewRateLimiter(opts.RateLimitRPM, opts.RateLimitBurst),
	}
	s.metrics = newMetrics(s.registry.Len)
	s.router = s.routes()
	return s
}

// Registry exposes the backing registry.
func (s *Server) Registry() *Registry { return s.registry }

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeReason(w, http.StatusMethodNotAllowed, protocol.ReasonMethodNotAllowed)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeReason(w, http.StatusNotFound, "Not found")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pairings": s.registry.Len()})
	})
	r.Handle("/metrics", s.metrics.handler())
	r.Get(protocol.PathLanding, s.handleLanding)

	r.Group(func(r chi.Router) {
		if s.limiter.Enabled() {
			r.Use(s.limiter.Middleware)
		}
		r.Post(protocol.PathInitialize, s.handleInitialize)
		r.Post(protocol.PathComplete, s.handleComplete)
		r.Post(protocol.PathRefresh, s.handleRefresh)
		r.Get(protocol.PathRemaining, s.handleRemaining)
		r.Put(protocol.PathDeviceToggle, s.handleToggle)

		r.Options(protocol.PathInitialize, allow("OPTIONS, POST"))
		r.Options(protocol.PathComplete, allow("OPTIONS, POST"))
		r.Options(protocol.PathRefresh, allow("OPTIONS, POST"))
		r.Options(protocol.PathRemaining, allow("OPTIONS, GET"))
		r.Options(protocol.PathDeviceToggle, allow("OPTIONS, PUT"))
	})
	return r
}

// ListenAndServe serves on addr and runs the expiry sweeper until ctx is
// done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.RunSweeper(ctx, sweepInterval)
	if s.limiter.Enabled() {
		go s.limiter.CleanupLoop(ctx, 5*time.Minute)
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("devserver listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("devserver listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("devserver shutdown: %w", err)
	}
	slog.Info("devserver stopped")
	return nil
}

// RunSweeper removes expired pairings every interval until ctx is done.
func (s *Server) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.registry.Sweep(); n > 0 {
				s.metrics.expired.Add(float64(n))
			}
		}
	}
}

// --- Handlers ---

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	const op = "initialize"

	var dev protocol.Device
	if !s.decode(w, r, op, &dev) {
		return
	}
	if !s.validDeviceID(w, op, dev.DeviceID) {
		return
	}

	obj, err := s.registry.Initialize(dev)
	s.respond(w, op, obj, err)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	const op = "complete"

	var req protocol.CompleteRequest
	if !s.decode(w, r, op, &req) {
		return
	}
	if req.Token == "" {
		s.metrics.observe(op, outcomeInvalid)
		writeReason(w, http.StatusBadRequest, protocol.ReasonTokenRequired)
		return
	}
	if !s.validDeviceID(w, op, req.Device.DeviceID) {
		return
	}

	obj, err := s.registry.Complete(req.Token, req.Device)
	s.respond(w, op, obj, err)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "refresh"

	var req protocol.RefreshRequest
	if !s.decode(w, r, op, &req) {
		return
	}
	if req.Token == "" {
		s.metrics.observe(op, outcomeInvalid)
		writeReason(w, http.StatusBadRequest, protocol.ReasonTokenRequired)
		return
	}
	deviceID := req.Device.DeviceID
	if deviceID == "" {
		deviceID = req.DeviceID
	}
	if !s.validDeviceID(w, op, deviceID) {
		return
	}

	obj, err := s.registry.Refresh(req.Token, deviceID)
	s.respond(w, op, obj, err)
}

func (s *Server) handleRemaining(w http.ResponseWriter, r *http.Request) {
	const op = "remaining"

	token := r.URL.Query().Get("token")
	if token == "" {
		s.metrics.observe(op, outcomeInvalid)
		writeReason(w, http.StatusBadRequest, protocol.ReasonMissingToken)
		return
	}

	obj, err := s.registry.Remaining(token)
	s.respond(w, op, obj, err)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	const op = "toggle"

	var req protocol.ToggleRequest
	if !s.decode(w, r, op, &req) {
		return
	}
	if !s.validDeviceID(w, op, req.DeviceID) {
		return
	}

	err := s.registry.RemoveDevice(req.DeviceID)
	s.respond(w, op, protocol.Device{DeviceID: req.DeviceID, Available: false}, err)
}

// --- Helpers ---

func (s *Server) decode(w http.ResponseWriter, r *http.Request, op string, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		s.metrics.observe(op, outcomeInvalid)
		writeReason(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) validDeviceID(w http.ResponseWriter, op, id string) bool {
	if id == "" {
		s.metrics.observe(op, outcomeInvalid)
		writeReason(w, http.StatusBadRequest, protocol.ReasonMissingDeviceID)
		return false
	}
	if _, err := uuid.Parse(id); err != nil {
		s.metrics.observe(op, outcomeInvalid)
		writeReason(w, http.StatusBadRequest, protocol.ReasonInvalidDeviceID)
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, op string, v any, err error) {
	if err != nil {
		status, reason := errorStatus(err)
		outcome := outcomeRejected
		if status >= http.StatusInternalServerError {
			outcome = outcomeError
			slog.Error("devserver: "+op+" failed", "error", err)
		}
		s.metrics.observe(op, outcome)
		writeReason(w, status, reason)
		return
	}
	s.metrics.observe(op, outcomeOK)
	writeJSON(w, http.StatusOK, v)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrDeviceBusy):
		return http.StatusConflict, protocol.ReasonDeviceBusy
	case errors.Is(err, ErrNotOpen):
		return http.StatusConflict, protocol.ReasonNotOpen
	case errors.Is(err, ErrTokenNotFound):
		return http.StatusNotFound, protocol.ReasonTokenNotFound
	case errors.Is(err, ErrDeviceNotFound):
		return http.StatusNotFound, protocol.ReasonDeviceNotFound
	case errors.Is(err, ErrNotMember):
		return http.StatusForbidden, protocol.ReasonNotMember
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func allow(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeReason(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, protocol.ErrorBody{Reason: reason})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("devserver request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
