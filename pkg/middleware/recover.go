package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/logger"
)

// Recover turns a handler panic into a 500 and logs the stack.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			logger.FromContext(r.Context()).Error("handler panic",
				"method", r.Method,
				"path", r.URL.Path,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "internal error", "code": "internal"})
		}()
		next.ServeHTTP(w, r)
	})
}
