package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/shooter-auth/internal/health"
	"github.com/sandeepkv93/shooter-auth/internal/http/handler"
	"github.com/sandeepkv93/shooter-auth/internal/http/middleware"
	"github.com/sandeepkv93/shooter-auth/internal/http/response"
)

const maxBodyBytes = 16 << 10

type Dependencies struct {
	AuthHandler     *handler.AuthHandler
	Authenticator   middleware.Authenticator
	CORSOrigins     []string
	AuthRateLimiter *middleware.RateLimiter
	CodeRateLimiter *middleware.RateLimiter
	Readiness       *health.ProbeRunner
	EnableOTelHTTP  bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ready, results := dep.Readiness.Ready(r.Context())
		if results == nil {
			results = []health.CheckResult{}
		}
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	authLimiter := dep.AuthRateLimiter.Middleware()
	codeLimiter := dep.CodeRateLimiter.Middleware()

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter)
			r.With(codeLimiter).Post("/register/code", dep.AuthHandler.RegisterCode)
			r.Post("/register", dep.AuthHandler.Register)
			r.Post("/login", dep.AuthHandler.Login)
			r.With(codeLimiter).Post("/password/code", dep.AuthHandler.PasswordCode)
			r.Post("/password/reset", dep.AuthHandler.PasswordReset)
		})
		r.With(middleware.BearerAuth(dep.Authenticator)).Get("/me", dep.AuthHandler.Me)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	if !dep.EnableOTelHTTP {
		return r
	}
	return otelhttp.NewHandler(r, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
}
