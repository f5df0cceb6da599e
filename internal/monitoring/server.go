// internal/monitoring/server.go
package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/valpere/ResilientFetch/internal/fallback"
	"github.com/valpere/ResilientFetch/internal/utils"
)

// Server exposes the Prometheus scrape endpoint, a liveness check, and a
// JSON snapshot of the fallback counters.
type Server struct {
	httpServer *http.Server
	logger     utils.Logger
}

// SnapshotFunc supplies the current fallback metrics snapshot.
type SnapshotFunc func() fallback.Snapshot

// NewServer builds the monitoring HTTP server.
func NewServer(addr string, metrics *MetricsManager, snapshot SnapshotFunc, logger utils.Logger) *Server {
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.HandleFunc("/fallback/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger.WithField("component", "monitoring"),
	}
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Infof("monitoring server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
