// Package observability provides HTTP middleware and metrics server
// infrastructure.
package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/wawa9149/speech-gateway/internal/observability/metrics"
)

// RequestMetrics is a chi middleware that logs and records Prometheus
// metrics for every HTTP request, keyed by route pattern rather than raw
// path so high-cardinality path segments (session ids) never leak into
// label values.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		metrics.DefaultMetrics.RecordHTTPRequest(route, r.Method, http.StatusText(status), duration.Seconds())

		log.Info().
			Str("route", route).
			Str("method", r.Method).
			Int("status", status).
			Dur("duration", duration).
			Msg("http request")
	})
}
