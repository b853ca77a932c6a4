package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/stuffr/marketplace/internal/model"
)

// context keys set by the auth middleware
const (
	userKey    = "user"
	refreshKey = "refresh_token"
)

// CurrentUser returns the authenticated user or nil for anonymous requests.
func CurrentUser(c echo.Context) *model.User {
	u, _ := c.Get(userKey).(*model.User)
	return u
}

// CurrentRefresh returns the refresh token valid after this request, which
// is the rotated one if rotation happened.
func CurrentRefresh(c echo.Context) string {
	s, _ := c.Get(refreshKey).(string)
	return s
}

// userID is the caller's id for logs and rate limit keys; "anon" when the
// request is not authenticated.
func userID(c echo.Context) string {
	if u := CurrentUser(c); u != nil {
		return u.ID
	}
	return "anon"
}
