package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wawa9149/speech-gateway/internal/app"
	"github.com/wawa9149/speech-gateway/internal/observability"
	"github.com/wawa9149/speech-gateway/internal/transport"
)

// NewRouter constructs the service's client-facing HTTP router: liveness
// probes plus the duplex audio stream endpoint. The whole mux is wrapped in
// otelhttp so inbound spans carry through to the outbound otelhttp-wrapped
// STT batch calls in internal/stt/httpbatch.
func NewRouter(application *app.Application, stream *transport.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestMetrics)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Get("/v1/stream", stream.ServeHTTP)

	return otelhttp.NewHandler(r, "speech-gateway", otelhttp.WithServerName(application.Cfg.Service.Principal))
}
