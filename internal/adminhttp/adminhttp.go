// Package adminhttp serves the process's operational surface: Prometheus
// metrics and a liveness probe. It is deliberately separate from the
// NetFlow/HEC data path — nothing in this package touches a PacketBuffer
// or a HECSession.
package adminhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is a small chi-routed admin HTTP server, grounded on the
// example gateway's router.NewRouter: here it mounts exactly two
// routes, since freeflow's admin surface has no auth and no API.
type Server struct {
	httpServer *http.Server
}

// New builds a Server bound to addr. If addr is empty, Start is a no-op.
func New(addr string) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start runs the server in a background goroutine. Bind failures are
// reported on the returned channel; an empty address disables the
// admin surface entirely.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	if s.httpServer.Addr == "" {
		close(errCh)
		return errCh
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh
}

// Shutdown gracefully stops the server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer.Addr == "" {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
