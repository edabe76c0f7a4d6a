package middleware

// identity.go carries the caller identity from the HTTP layer into plain
// context.Context values, which is all the service layer sees.

import (
	"context"

	"github.com/labstack/echo/v4"
)

type adminCtxKey struct{}

// WithAdmin marks ctx as belonging to an authenticated administrator.
func WithAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, adminCtxKey{}, true)
}

// IsAdmin reports whether ctx was marked by WithAdmin.  It is the admin
// predicate handed to the reservation service.
func IsAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(adminCtxKey{}).(bool)
	return v
}

// userID returns the authenticated subject or "anon".
func userID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s
	}
	return "anon"
}
