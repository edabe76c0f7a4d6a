package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/course-enrollment/internal/config"
	"github.com/iliyamo/course-enrollment/internal/middleware"
	"github.com/iliyamo/course-enrollment/internal/utils"
)

// AuthHandler issues administrator tokens.  There is a single administrator
// whose credentials come from the environment.
type AuthHandler struct {
	Username     string
	PasswordHash string
	JWTSecret    string
	AccessTTLMin int
}

func NewAuthHandler(cfg config.Config) *AuthHandler {
	return &AuthHandler{
		Username:     cfg.AdminUsername,
		PasswordHash: cfg.AdminPasswordHash,
		JWTSecret:    cfg.JWTSecret,
		AccessTTLMin: cfg.AccessTTLMin,
	}
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResp struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// Login handles POST /admin/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "", "malformed request body")
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return badRequest(c, "username", "username and password are required")
	}
	if !utils.CheckAdmin(h.Username, h.PasswordHash, req.Username, req.Password) {
		slog.Warn("admin login rejected", "ip", c.RealIP())
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHORIZED", "message": "invalid credentials"})
	}
	tok, err := utils.NewAccessToken(h.JWTSecret, h.Username, middleware.RoleAdmin, h.AccessTTLMin)
	if err != nil {
		slog.Error("issue admin token failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL", "message": "could not issue token"})
	}
	return c.JSON(http.StatusOK, tokenResp{Token: tok.Token, Expires: tok.Exp})
}
