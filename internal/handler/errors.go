package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/course-enrollment/internal/service"
)

// statusFor maps service error codes onto HTTP statuses.
var statusFor = map[service.Code]int{
	service.CodeValidation:        http.StatusBadRequest,
	service.CodeCapacityExhausted: http.StatusConflict,
	service.CodeNotFound:          http.StatusNotFound,
	service.CodeUnauthorized:      http.StatusUnauthorized,
	service.CodeUploadFailed:      http.StatusInternalServerError,
	service.CodeStoreUnavailable:  http.StatusServiceUnavailable,
}

// writeError renders err as {error, message[, field]}.  Errors that are
// not *service.Error are logged and reported as INTERNAL.
func writeError(c echo.Context, err error) error {
	var se *service.Error
	if !errors.As(err, &se) {
		slog.Error("unhandled error", "path", c.Path(), "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL", "message": "internal error"})
	}
	status, ok := statusFor[se.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "code", se.Code, "err", se.Err)
	}
	body := echo.Map{"error": se.Code, "message": se.Message}
	if se.Field != "" {
		body["field"] = se.Field
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, field, msg string) error {
	body := echo.Map{"error": service.CodeValidation, "message": msg}
	if field != "" {
		body["field"] = field
	}
	return c.JSON(http.StatusBadRequest, body)
}
