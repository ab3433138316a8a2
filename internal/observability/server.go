// Package observability provides the admin HTTP server: Prometheus
// metrics plus health/readiness probes, separate from the client-facing
// stream port.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// ReadyFunc reports whether the gateway is ready to segment and dispatch
// audio. A nil ReadyFunc always reports ready.
type ReadyFunc func() bool

// Server hosts the admin endpoints: /metrics, /healthz, /readyz.
type Server struct {
	server *http.Server
	addr   string
}

// NewServer builds the admin server. ready, if non-nil, backs /readyz —
// typically the EPD client's connection state, since a gateway that can't
// reach the EPD engine can accept connections but can't do anything useful
// with them.
func NewServer(addr string, ready ReadyFunc) *Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: epd engine unreachable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start runs the admin server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.addr).Msg("starting admin http server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin http server error")
		}
	}()
}

// Shutdown gracefully shuts down the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down admin http server")
	return s.server.Shutdown(ctx)
}
