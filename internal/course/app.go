package course

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"CourseStore/internal/auth"
	"CourseStore/pkg/kit"
)

const writeLimitWindow = time.Minute

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string

	// Tokens enables bearer auth on writes when set.
	Tokens *auth.TokenMaker
	// WriteLimitPerMin caps writes per client IP; zero disables the limit.
	WriteLimitPerMin int
}

func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	r := chi.NewRouter()

	setupMiddleware(r, deps)
	setupMetrics(r, s, deps)

	r.Mount("/", s.Routes(writeMiddleware(deps)...))
	return r
}

func setupMiddleware(r *chi.Mux, deps HTTPDeps) {
	r.Use(kit.RequestID)
	r.Use(kit.Recoverer(deps.Log))
	r.Use(kit.Logging(deps.Log))
}

func setupMetrics(r *chi.Mux, s *Server, deps HTTPDeps) {
	if deps.Registry == nil {
		return
	}

	metrics := kit.NewMetrics(deps.Registry)
	if sz, ok := s.Store.(Sizer); ok {
		deps.Registry.MustRegister(NewCollector(sz, deps.Service))
	}
	r.Use(metrics.Middleware(deps.Service, kit.RoutePattern))

	if !deps.MetricsEnabled {
		return
	}

	r.With(kit.MetricsAuth(deps.MetricsToken)).
		Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
}

func writeMiddleware(deps HTTPDeps) []func(http.Handler) http.Handler {
	var mw []func(http.Handler) http.Handler
	if deps.WriteLimitPerMin > 0 {
		mw = append(mw, kit.NewIPRateLimiter(deps.WriteLimitPerMin, writeLimitWindow).Middleware)
	}
	if deps.Tokens != nil {
		mw = append(mw, auth.RequireRole(deps.Tokens, auth.RoleEditor))
	}
	return mw
}
