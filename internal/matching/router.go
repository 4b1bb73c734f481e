package matching

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/middleware"
)

// RouterOptions configures the HTTP middleware. Zero values disable the
// corresponding layer.
type RouterOptions struct {
	Timeout     time.Duration
	CORSOrigins []string
	Limiter     *middleware.Limiter
	Metrics     *metrics.Metrics
}

// NewRouter builds the full HTTP handler.
//
// Route table:
//
//	POST /match/{strategy}              → rank the corpus against a resume
//	GET  /api/v1/strategies             → registered strategies and aliases
//	GET  /api/v1/corpus                 → prepared corpus version and artifacts
//	POST /api/v1/corpus/invalidate      → drop the corpus (and notify replicas)
//	POST /api/v1/experience             → years-of-experience estimate
//	GET  /api/v1/analytics              → live ranking stats
//	GET  /api/v1/analytics/snapshots    → persisted stats
//	GET  /health/live, /health/ready    → probes
//
// Middleware chain (outermost first):
//
//	RequestID → Recover → CORS → RateLimit(/match/) → Timeout → Metrics → mux
//
// Metrics sits next to the mux so it sees the matched route pattern.
func NewRouter(h *Handler, stats *analytics.Handler, checker *health.Checker, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)

	mux.HandleFunc("GET /api/v1/analytics", stats.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", stats.Snapshots)

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Recover,
		middleware.CORS(opts.CORSOrigins),
		middleware.RateLimit(opts.Limiter, "/match/"),
		middleware.Timeout(opts.Timeout),
	}
	if opts.Metrics != nil {
		mws = append(mws, middleware.Metrics(opts.Metrics))
	}
	return middleware.Chain(mux, mws...)
}
