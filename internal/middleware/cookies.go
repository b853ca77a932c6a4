package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stuffr/marketplace/internal/config"
	"github.com/stuffr/marketplace/internal/utils"
)

const (
	AccessCookie  = "access"
	RefreshCookie = "refresh"
)

// CookieJar writes the session cookie pair. Both cookies live as long as
// the refresh token so an expired access token still reaches the server
// and can be rotated.
type CookieJar struct {
	secure bool
	domain string
}

func NewCookieJar(cfg config.CookieConfig) CookieJar {
	return CookieJar{secure: cfg.Secure, domain: cfg.Domain}
}

// Set writes both cookies of pair.
func (j CookieJar) Set(c echo.Context, pair utils.TokenPair) {
	c.SetCookie(j.cookie(AccessCookie, pair.Access, pair.RefreshExp))
	c.SetCookie(j.cookie(RefreshCookie, pair.Refresh, pair.RefreshExp))
}

// Clear expires both cookies on the client.
func (j CookieJar) Clear(c echo.Context) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		ck := j.cookie(name, "", time.Unix(0, 0))
		ck.MaxAge = -1
		c.SetCookie(ck)
	}
}

func (j CookieJar) cookie(name, value string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   j.domain,
		Expires:  exp,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// cookieValue returns the named cookie or "".
func cookieValue(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
