// Package middleware holds the matcher's HTTP middleware: request ids,
// CORS, rate limiting, deadlines, panic recovery and Prometheus metrics.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/metrics"
)

// Chain wraps h so that mws[0] is the outermost middleware.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Metrics observes every request. It must wrap the ServeMux directly:
// the route label is the matched pattern, which the mux sets on r.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			start := time.Now()
			rw := &recorder{ResponseWriter: w}
			defer func() {
				m.HTTPRequestsInFlight.Dec()
				route := "unmatched"
				if r.Pattern != "" {
					route = r.Pattern
				}
				m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode())).Inc()
				m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
				m.HTTPResponseBytes.WithLabelValues(route).Observe(float64(rw.bytes))
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

// recorder remembers the status code and counts body bytes.
type recorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rw *recorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

func (rw *recorder) statusCode() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

func (rw *recorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }
