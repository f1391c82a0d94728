package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/bookingadmin/libs/metrics"
)

// WithMetrics records request counts and latency. route maps a request to a
// low-cardinality label; nil means the raw path.
func WithMetrics(route func(*http.Request) string) Middleware {
	if route == nil {
		route = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusCapturingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)

			path := route(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.Status())).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}
