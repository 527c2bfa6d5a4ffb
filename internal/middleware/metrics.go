package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Requests served, by route pattern, method, and status.",
		},
		[]string{"path", "method", "status"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency, by route pattern and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration)
}

// Metrics records a counter and a latency observation per request.
// Labels use the chi route pattern rather than the raw path, so
// /api/users/1 and /api/users/2 land in one series. Requests that
// matched no route are labeled "unmatched".
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		pattern := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				pattern = p
			}
		}

		requestsTotal.WithLabelValues(pattern, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
		requestDuration.WithLabelValues(pattern, r.Method).Observe(time.Since(start).Seconds())
	})
}
