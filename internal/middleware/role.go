package middleware

import (
	"github.com/labstack/echo/v4"
)

// RoleAdmin is the role claim carried by administrator tokens.
const RoleAdmin = "ADMIN"

// RequireRole returns a middleware that only lets through requests whose
// "role" (set by JWTAuth) is one of roles.  Other requests receive 401
// UNAUTHORIZED.  Admin requests additionally get their request context
// marked with WithAdmin so that the service layer can check the caller
// without knowing about tokens.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get("role").(string)
			if !ok || !allowed[role] {
				return unauthorized(c, "insufficient role")
			}
			if role == RoleAdmin {
				req := c.Request()
				c.SetRequest(req.WithContext(WithAdmin(req.Context())))
			}
			return next(c)
		}
	}
}
