// Package handler is the HTTP surface. Handlers decode the request, call
// the admission engine or a pool, and map its errors to status codes.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/middleware"
	"github.com/iliyamo/ticket-admission/internal/pool"
)

// statusFor maps engine errors to HTTP status codes. Unknown errors are
// internal.
func statusFor(err error) int {
	switch {
	case admission.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, admission.ErrForbidden), errors.Is(err, admission.ErrNotPayee):
		return http.StatusForbidden
	case errors.Is(err, admission.ErrNoPreferences),
		errors.Is(err, admission.ErrInvalidRank),
		errors.Is(err, admission.ErrEmptyAttendees),
		errors.Is(err, admission.ErrGuestNotAttendee):
		return http.StatusBadRequest
	case errors.Is(err, admission.ErrAlreadyQueued),
		errors.Is(err, admission.ErrNotWaiting),
		errors.Is(err, admission.ErrAlreadyPaid),
		errors.Is(err, admission.ErrOfferExists),
		errors.Is(err, admission.ErrOfferExpired):
		return http.StatusConflict
	case errors.Is(err, pool.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": ...}. Internal errors are logged and
// hidden from the client.
func fail(c echo.Context, log *zap.Logger, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("route", c.Path()),
			zap.Error(err))
		msg := "internal error"
		if status == http.StatusServiceUnavailable {
			msg = "service unavailable"
		}
		return c.JSON(status, echo.Map{"error": msg})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// getUserID returns the authenticated caller.
func getUserID(c echo.Context) (uint64, bool) {
	return middleware.UserID(c)
}

// paramID parses a positive numeric path parameter.
func paramID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}
