package middleware

import (
	"context"
	"errors"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/stuffr/marketplace/internal/service"
)

// Resolver is implemented by *service.AuthService.
type Resolver interface {
	Resolve(ctx context.Context, access, refresh string) (*service.Session, error)
}

// Auth requires a session. It resolves the cookie pair, writes rotated
// cookies back and stores the user in the context. A rejected session
// clears both cookies so the client re-authenticates.
func Auth(r Resolver, jar CookieJar, log *slog.Logger) echo.MiddlewareFunc {
	return authenticate(r, jar, log, false)
}

// OptionalAuth is Auth for routes that also serve anonymous callers. A
// request without a usable session passes through with no user; stale
// cookies are cleared on the way.
func OptionalAuth(r Resolver, jar CookieJar, log *slog.Logger) echo.MiddlewareFunc {
	return authenticate(r, jar, log, true)
}

func authenticate(r Resolver, jar CookieJar, log *slog.Logger, optional bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			access := cookieValue(c, AccessCookie)
			if access == "" && optional {
				return next(c)
			}

			s, err := r.Resolve(c.Request().Context(), access, cookieValue(c, RefreshCookie))
			if err != nil {
				if !isAuthErr(err) {
					return err
				}
				if access != "" {
					log.Info("session rejected", slog.String("path", c.Path()), slog.Any("err", err))
					jar.Clear(c)
				}
				if optional {
					return next(c)
				}
				return err
			}
			if s.Rotated != nil {
				jar.Set(c, *s.Rotated)
			}
			c.Set(userKey, s.User)
			c.Set(refreshKey, s.Refresh)
			return next(c)
		}
	}
}

func isAuthErr(err error) bool {
	return errors.Is(err, service.ErrUnauthorized) ||
		errors.Is(err, service.ErrTokenExpired) ||
		errors.Is(err, service.ErrInvalidToken)
}
