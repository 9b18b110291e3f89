// Package router wires up the analyzer API routes and applies the middleware
// chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/api/handler"
	apimw "github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/api/middleware"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/api/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/middleware"
)

// Options carries the optional pieces of the middleware chain. A nil
// Limiter or Metrics, or a zero Timeout, leaves that layer out.
type Options struct {
	Limiter     *ratelimit.Limiter
	Metrics     *metrics.Metrics
	CORSOrigins []string
	Timeout     time.Duration
}

// New builds the analyzer HTTP handler.
//
// Route table:
//
//	POST   /api/v1/analyze                    → analyse ad-hoc sentences or text
//	PUT    /api/v1/documents/{id}             → create or replace a document
//	GET    /api/v1/documents/{id}             → get document
//	DELETE /api/v1/documents/{id}             → delete document
//	GET    /api/v1/documents/{id}/analysis    → analyse a window of a document
//	POST   /api/v1/cache/clear                → clear result caches
//	GET    /api/v1/cache/stats                → result cache stats
//	GET    /health/live, /health/ready        → probes
//
// Middleware chain (outermost first):
//
//	Recover → RequestID → Logging → Metrics → CORS → RateLimit → Timeout → mux
func New(h *handler.Handler, checker *health.Checker, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("POST /api/v1/analyze", h.Analyze)

	mux.HandleFunc("PUT /api/v1/documents/{id}", h.PutDocument)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.DeleteDocument)
	mux.HandleFunc("GET /api/v1/documents/{id}/analysis", h.DocumentAnalysis)

	mux.HandleFunc("POST /api/v1/cache/clear", h.ClearCache)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)

	mws := []func(http.Handler) http.Handler{
		pkgmw.Recover,
		pkgmw.RequestID,
		pkgmw.Logging,
	}
	if opts.Metrics != nil {
		mws = append(mws, pkgmw.Metrics(opts.Metrics))
	}
	mws = append(mws,
		apimw.CORS(apimw.DefaultCORSConfig(opts.CORSOrigins)),
		apimw.RateLimit(opts.Limiter),
	)
	if opts.Timeout > 0 {
		mws = append(mws, pkgmw.Timeout(opts.Timeout))
	}
	return pkgmw.Chain(mux, mws...)
}
