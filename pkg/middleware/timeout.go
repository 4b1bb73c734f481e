package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/logger"
)

// Timeout bounds every request with a deadline. The handler's response is
// buffered and only sent if it finishes in time; otherwise the client gets
// a 504 JSON body and the buffered output is dropped. A panic in the
// handler is re-raised on the serving goroutine.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			bw := &bufferedWriter{header: make(http.Header)}
			done := make(chan struct{})
			panicked := make(chan any, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
				}()
				next.ServeHTTP(bw, r.WithContext(ctx))
				close(done)
			}()

			select {
			case p := <-panicked:
				panic(p)
			case <-done:
				bw.flushTo(w)
			case <-ctx.Done():
				bw.abandon()
				logger.FromContext(r.Context()).Warn("request timed out",
					"method", r.Method,
					"path", r.URL.Path,
					"timeout", timeout,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusGatewayTimeout)
				json.NewEncoder(w).Encode(map[string]string{"error": "request timeout", "code": "timeout"})
			}
		})
	}
}

// bufferedWriter collects a response until the handler returns.
type bufferedWriter struct {
	mu        sync.Mutex
	header    http.Header
	body      bytes.Buffer
	code      int
	abandoned bool
}

func (bw *bufferedWriter) Header() http.Header { return bw.header }

func (bw *bufferedWriter) WriteHeader(code int) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.code == 0 {
		bw.code = code
	}
}

func (bw *bufferedWriter) Write(b []byte) (int, error) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.abandoned {
		return 0, http.ErrHandlerTimeout
	}
	if bw.code == 0 {
		bw.code = http.StatusOK
	}
	return bw.body.Write(b)
}

func (bw *bufferedWriter) abandon() {
	bw.mu.Lock()
	bw.abandoned = true
	bw.mu.Unlock()
}

func (bw *bufferedWriter) flushTo(w http.ResponseWriter) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	dst := w.Header()
	for k, v := range bw.header {
		dst[k] = v
	}
	if bw.code == 0 {
		bw.code = http.StatusOK
	}
	w.WriteHeader(bw.code)
	w.Write(bw.body.Bytes())
}
