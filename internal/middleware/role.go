package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/stuffr/marketplace/internal/model"
	"github.com/stuffr/marketplace/internal/service"
)

// RequireModerator must run after Auth. Services repeat the check; this
// rejects early before any body is read.
func RequireModerator() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u := CurrentUser(c)
			if u == nil || !model.CanModerate(u.RoleID) {
				return service.ErrForbidden
			}
			return next(c)
		}
	}
}
