package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/stuffr/marketplace/internal/service"
)

// statusOf maps service sentinels to HTTP statuses. Anything unknown is a 500.
var statusOf = []struct {
	err    error
	status int
}{
	{service.ErrUnauthorized, http.StatusUnauthorized},
	{service.ErrTokenExpired, http.StatusUnauthorized},
	{service.ErrInvalidToken, http.StatusUnauthorized},
	{service.ErrForbidden, http.StatusForbidden},
	{service.ErrConflict, http.StatusConflict},
	{service.ErrUnderReview, http.StatusConflict},
	{service.ErrInvalidTransition, http.StatusConflict},
	{service.ErrNotFound, http.StatusNotFound},
	{service.ErrUserNotFound, http.StatusNotFound},
	{service.ErrBadRequest, http.StatusBadRequest},
	{service.ErrInvalidCredentials, http.StatusBadRequest},
	{service.ErrPasswordsMismatch, http.StatusBadRequest},
}

var messages = map[error]string{
	service.ErrUnauthorized:       "not authorized",
	service.ErrTokenExpired:       "token expired",
	service.ErrInvalidToken:       "invalid token",
	service.ErrForbidden:          "not enough permissions",
	service.ErrConflict:           "user with this email already exists",
	service.ErrUnderReview:        "announcement is under review",
	service.ErrInvalidTransition:  "action is not allowed in the current status",
	service.ErrNotFound:           "not found",
	service.ErrUserNotFound:       "user with this email does not exist",
	service.ErrBadRequest:         "bad request",
	service.ErrInvalidCredentials: "wrong email or password",
	service.ErrPasswordsMismatch:  "passwords do not match",
}

// ErrorHandler renders every error as {"error": message}. Internal errors
// are logged and replaced by a generic message.
func ErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, msg := describe(err)
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				slog.String("method", c.Request().Method),
				slog.String("path", c.Request().URL.Path),
				slog.Any("err", err),
			)
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, echo.Map{"error": msg})
		}
		if err != nil {
			log.Error("write error response", slog.Any("err", err))
		}
	}
}

func describe(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Internal != nil && he.Code >= http.StatusInternalServerError {
			return he.Code, http.StatusText(he.Code)
		}
		return he.Code, fmt.Sprint(he.Message)
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		f := ve[0]
		return http.StatusBadRequest, fmt.Sprintf("field %s failed on %s", f.Field(), f.Tag())
	}
	for _, m := range statusOf {
		if errors.Is(err, m.err) {
			return m.status, messages[m.err]
		}
	}
	return http.StatusInternalServerError, "internal server error"
}
