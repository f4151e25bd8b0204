package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"patrolwatch/internal/config"
	"patrolwatch/internal/metrics"
	"patrolwatch/internal/model"
)

// Engine is the query and intent surface the HTTP layer drives.
type Engine interface {
	Devices() []model.Device
	Device(id string) (model.Device, error)
	Alerts() []model.Alert
	NetworkStats() []model.NetworkStat
	Query(f model.Filter) []model.Device
	Summary() model.Summary
	Snapshot() model.Snapshot
	Acknowledge(id string) bool
	Reset() model.Snapshot
	ClearAlerts() model.Snapshot
	Metrics() metrics.Stats
}

// WebSocket serves live snapshot subscriptions.
type WebSocket interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	Connected() int
}

type Server struct {
	engine  Engine
	cfg     *config.Manager
	ws      WebSocket
	logger  *slog.Logger
	version string
}

func New(engine Engine, cfg *config.Manager, ws WebSocket, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, cfg: cfg, ws: ws, logger: logger, version: version}
}

// Handler builds the routing tree. /ws is mounted outside the request
// timeout so long-lived subscriptions are not cut off.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON(s.logger))
	r.Use(RequestLogger(s.logger))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	r.Get("/healthz", s.health)
	if s.ws != nil {
		r.Get("/ws", s.ws.ServeWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(20 * time.Second))
		r.Route("/api", func(api chi.Router) {
			api.Get("/status", s.status)
			api.Get("/devices", s.listDevices)
			api.Get("/devices/{id}", s.getDevice)
			api.Get("/alerts", s.listAlerts)
			api.Post("/alerts/{id}/ack", s.acknowledgeAlert)
			api.Get("/network-stats", s.networkStats)
			api.Get("/summary", s.summary)
			api.Get("/snapshot", s.snapshot)
		})
		r.Route("/admin", func(admin chi.Router) {
			admin.Post("/reset", s.reset)
			admin.Post("/clear", s.clear)
		})
	})

	return r
}

// NewHTTPServer returns nil when the API is disabled.
func NewHTTPServer(cfg config.APIConfig, handler http.Handler) *http.Server {
	if !cfg.Enabled {
		return nil
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// RunServer serves until ctx is done and then shuts down gracefully.
func RunServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "err", err)
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
