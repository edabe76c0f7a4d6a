package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/service"
)

// AdminService is the administrative part of the reservation service.
// Every method checks the admin predicate on ctx itself.
type AdminService interface {
	Search(ctx context.Context, q string) ([]model.Reservation, error)
	Get(ctx context.Context, id string) (*model.Reservation, error)
	Override(ctx context.Context, id string, target model.Status, note string) (service.OverrideResult, error)
	ReceiptURL(ctx context.Context, id string) (string, time.Time, error)
	Stats(ctx context.Context) (model.CapacityStats, error)
	SetTotal(ctx context.Context, total int) (model.Availability, error)
}

// AdminHandler serves /admin/*.  Routes are wrapped by JWTAuth and
// RequireRole(ADMIN), which mark the request context as admin.
type AdminHandler struct {
	Svc AdminService
}

func NewAdminHandler(svc AdminService) *AdminHandler {
	if svc == nil {
		panic("nil service passed to NewAdminHandler")
	}
	return &AdminHandler{Svc: svc}
}

type overrideReq struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type capacityReq struct {
	Total *int `json:"total"`
}

// Search handles GET /admin/reservations?q=.
func (h *AdminHandler) Search(c echo.Context) error {
	out, err := h.Svc.Search(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out, "count": len(out)})
}

// Get handles GET /admin/reservations/:id.
func (h *AdminHandler) Get(c echo.Context) error {
	res, err := h.Svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Override handles POST /admin/reservations/:id/status with body
// {"status": "APPROVED|PAID|REJECTED", "note": "..."}.
func (h *AdminHandler) Override(c echo.Context) error {
	var req overrideReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "", "malformed request body")
	}
	target, err := model.ParseStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if err != nil {
		return badRequest(c, "status", "status must be APPROVED, PAID or REJECTED")
	}
	out, err := h.Svc.Override(c.Request().Context(), c.Param("id"), target, req.Note)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// ReceiptURL handles GET /admin/reservations/:id/receipt-url.
func (h *AdminHandler) ReceiptURL(c echo.Context) error {
	url, exp, err := h.Svc.ReceiptURL(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"url": url, "expiresAt": exp.UTC()})
}

// Stats handles GET /admin/capacity-stats.
func (h *AdminHandler) Stats(c echo.Context) error {
	st, err := h.Svc.Stats(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, st)
}

// SetTotal handles POST /admin/capacity with body {"total": n}.
func (h *AdminHandler) SetTotal(c echo.Context) error {
	var req capacityReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "total", "total must be an integer")
	}
	if req.Total == nil {
		return badRequest(c, "total", "total is required")
	}
	a, err := h.Svc.SetTotal(c.Request().Context(), *req.Total)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"total": a.Total, "taken": a.Taken, "left": a.Left})
}
