// Package router registers the HTTP routes on an echo instance.
package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/stuffr/marketplace/internal/config"
	"github.com/stuffr/marketplace/internal/handler"
	"github.com/stuffr/marketplace/internal/middleware"
	"github.com/stuffr/marketplace/internal/service"
)

// RegisterRoutes exposes the health check and metrics.
func RegisterRoutes(e *echo.Echo, db *gorm.DB, reg *prometheus.Registry) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
}

// RegisterUser wires the /user routes. Credential endpoints are rate
// limited per client.
func RegisterUser(e *echo.Echo, h *handler.UserHandler, auth echo.MiddlewareFunc, limit echo.MiddlewareFunc) {
	g := e.Group("/user")
	g.POST("/register", h.Register, limit)
	g.POST("/login", h.Login, limit)
	g.POST("/forgot_password", h.ForgotPassword, limit)
	g.POST("/reset_password", h.ResetPassword)
	g.GET("/check_token", h.CheckToken)

	g.POST("/logout", h.Logout, auth)
	g.GET("/me", h.Me, auth)
}

// RegisterAnnouncements wires /announcement and /category.
func RegisterAnnouncements(e *echo.Echo, h *handler.AnnouncementHandler, auth, optionalAuth echo.MiddlewareFunc) {
	e.GET("/category", h.Categories)

	g := e.Group("/announcement")
	g.GET("", h.List)
	g.GET("/:id", h.Get, optionalAuth)

	g.POST("", h.Create, auth)
	g.GET("/my_announcements", h.ListMine, auth)
	g.GET("/favorites", h.ListFavorites, auth)
	g.PATCH("/edit/:id", h.Edit, auth)
	g.PATCH("/unpublish", h.Unpublish, auth)
	g.PATCH("/archive/:id", h.Archive, auth)
	g.DELETE("/delete/:id", h.Delete, auth)
	g.POST("/add_favorite", h.AddFavorite, auth)
	g.DELETE("/delete_favorite", h.RemoveFavorite, auth)
	g.POST("/:id/media", h.AddMedia, auth)
	g.DELETE("/media/:media_id", h.RemoveMedia, auth)

	moderator := middleware.RequireModerator()
	g.GET("/moderation", h.ListModeration, auth, moderator)
	g.PATCH("/approve", h.Approve, auth, moderator)
	g.PATCH("/decline", h.Decline, auth, moderator)
}

// Services is everything New needs to build the API.
type Services struct {
	DB            *gorm.DB
	Redis         *redis.Client
	Auth          *service.AuthService
	Users         *service.UserService
	Announcements *service.AnnouncementService
}

// New builds the echo instance with middleware and all routes.
func New(cfg config.Config, s Services, log *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(log)

	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg)
	e.Use(middleware.RequestLogger(log))
	e.Use(metrics.Middleware())
	e.Use(middleware.Recover(log))

	jar := middleware.NewCookieJar(cfg.Cookie)
	auth := middleware.Auth(s.Auth, jar, log)
	optionalAuth := middleware.OptionalAuth(s.Auth, jar, log)
	limit := middleware.RateLimit(cfg.RateLimit, s.Redis, log)

	RegisterRoutes(e, s.DB, reg)
	RegisterUser(e, handler.NewUserHandler(s.Users, s.Auth, jar), auth, limit)
	RegisterAnnouncements(e, handler.NewAnnouncementHandler(s.Announcements, cfg.Media), auth, optionalAuth)
	return e
}
