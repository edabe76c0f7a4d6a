package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/service"
)

// PublicService is the part of the reservation service exposed without
// authentication.
type PublicService interface {
	Availability(ctx context.Context) (model.Availability, error)
	Start(ctx context.Context, in service.StartInput) (service.StartResult, error)
	Confirm(ctx context.Context, id string, rc *service.Receipt) (service.ConfirmResult, error)
}

// ReservationHandler serves the public enrollment endpoints.
type ReservationHandler struct {
	Svc             PublicService
	MaxReceiptBytes int64
}

func NewReservationHandler(svc PublicService, maxReceiptBytes int64) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{Svc: svc, MaxReceiptBytes: maxReceiptBytes}
}

// Capacity handles GET /capacity.  The figures are computed live on every
// call and must not be cached by clients or proxies.
func (h *ReservationHandler) Capacity(c echo.Context) error {
	a, err := h.Svc.Availability(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, echo.Map{
		"total": a.Total,
		"taken": a.Taken,
		"left":  a.Left,
		"pct":   a.Pct(),
	})
}

// Start handles POST /reservations.
func (h *ReservationHandler) Start(c echo.Context) error {
	var in service.StartInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "", "malformed request body")
	}
	out, err := h.Svc.Start(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

// Confirm handles POST /reservations/:id/confirm.  The receipt arrives as
// the multipart file field "receipt".  A missing file is passed on as nil so
// that the service reports NOT_FOUND before VALIDATION_ERROR.
func (h *ReservationHandler) Confirm(c echo.Context) error {
	req := c.Request()
	if h.MaxReceiptBytes > 0 {
		// room for the multipart envelope and other fields
		req.Body = http.MaxBytesReader(c.Response(), req.Body, h.MaxReceiptBytes+1<<20)
	}

	var rc *service.Receipt
	fh, err := c.FormFile("receipt")
	switch {
	case err == nil:
		f, err := fh.Open()
		if err != nil {
			return badRequest(c, "receipt", "receipt could not be read")
		}
		defer f.Close()
		rc = &service.Receipt{
			Filename:  fh.Filename,
			MediaType: fh.Header.Get("Content-Type"),
			Size:      fh.Size,
			Body:      f,
		}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		rc = nil
	default:
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			rc = &service.Receipt{Err: fmt.Errorf("receipt exceeds %d bytes", h.MaxReceiptBytes)}
		} else {
			rc = &service.Receipt{Err: errors.New("malformed multipart body")}
		}
	}

	out, err := h.Svc.Confirm(req.Context(), c.Param("id"), rc)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
