package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/chiwei-platform/phost/internal/port"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker 由 catalog 实现，/healthz 以此判断数据库是否可用。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

func NewRouter(
	deploymentH *DeploymentHandler,
	proxyRouteH *ProxyRouteHandler,
	authH *AuthHandler,
	notFoundH *NotFoundHandler,
	authn port.Authenticator,
	health HealthChecker,
	maxBodyBytes int64,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware)
	r.Use(bodySizeLimitMiddleware(maxBodyBytes))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := health.Ping(r.Context()); err != nil {
			slog.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/login", authH.Login)
	r.Get("/404", notFoundH.Serve)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware(authn))
		// Deployments
		r.Route("/deployments", func(r chi.Router) {
			r.Post("/", deploymentH.Create)
			r.Get("/", deploymentH.List)
			r.Route("/{ref}", func(r chi.Router) {
				r.Get("/", deploymentH.Get)
				r.Delete("/", deploymentH.Delete)
				r.Route("/versions/{version}", func(r chi.Router) {
					r.Get("/", deploymentH.GetVersion)
					r.Post("/", deploymentH.AddVersion)
					r.Delete("/", deploymentH.DeleteVersion)
					r.Post("/activate", deploymentH.ActivateVersion)
				})
			})
		})

		r.Get("/categories", deploymentH.ListCategories)

		// Proxy routes
		r.Route("/proxy-routes", func(r chi.Router) {
			r.Post("/", proxyRouteH.Create)
			r.Get("/", proxyRouteH.List)
			r.Route("/{ref}", func(r chi.Router) {
				r.Get("/", proxyRouteH.Get)
				r.Delete("/", proxyRouteH.Delete)
			})
		})
	})

	return r
}
