package middleware

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// Recover turns a panic into a 500 and logs it with the stack.
func Recover(log *slog.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error("panic recovered",
				slog.String("path", c.Request().URL.Path),
				slog.Any("err", err),
				slog.String("stack", string(stack)),
			)
			return err
		},
	})
}
