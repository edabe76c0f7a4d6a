package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/course-enrollment/internal/handler"
	"github.com/iliyamo/course-enrollment/internal/middleware"
)

// RegisterRoutes registers the unauthenticated operational endpoints:
// liveness, readiness and Prometheus metrics.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, metrics http.Handler) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterPublic registers the enrollment endpoints used by guardians.
// Writes go through the rate limiter; the capacity read does not.
func RegisterPublic(e *echo.Echo, h *handler.ReservationHandler, limiter echo.MiddlewareFunc) {
	e.GET("/capacity", h.Capacity)
	e.POST("/reservations", h.Start, limiter)
	e.POST("/reservations/:id/confirm", h.Confirm, limiter)
}

// RegisterAdmin registers /admin routes.  Login is rate limited and open;
// everything else requires a valid token carrying the ADMIN role.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, auth *handler.AuthHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	e.POST("/admin/login", auth.Login, limiter)

	g := e.Group(
		"/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	g.GET("/reservations", a.Search)
	g.GET("/reservations/:id", a.Get)
	g.POST("/reservations/:id/status", a.Override)
	g.GET("/reservations/:id/receipt-url", a.ReceiptURL)
	g.GET("/capacity-stats", a.Stats)
	g.POST("/capacity", a.SetTotal)
}
