package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stuffr/marketplace/internal/cache"
	"github.com/stuffr/marketplace/internal/config"
	"github.com/stuffr/marketplace/internal/database"
	"github.com/stuffr/marketplace/internal/logger"
	"github.com/stuffr/marketplace/internal/queue"
	"github.com/stuffr/marketplace/internal/repository"
	"github.com/stuffr/marketplace/internal/router"
	"github.com/stuffr/marketplace/internal/service"
	"github.com/stuffr/marketplace/internal/storage"
	"github.com/stuffr/marketplace/internal/utils"
)

func main() {
	cfg := config.MustLoad()
	log := logger.Setup(cfg.Env)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Error("close database", slog.Any("err", err))
		}
	}()
	if err := database.Migrate(db); err != nil {
		return err
	}
	if err := database.SeedCategories(db, cfg.Categories); err != nil {
		return err
	}

	// nil when Redis is down: the cache and the rate limiter are skipped
	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn("redis unavailable, running without cache and rate limiting", slog.String("addr", cfg.Redis.Address()))
	}
	gw := cache.New(rdb, cfg.Cache, log)
	defer gw.Close()
	log.Info("list cache", slog.Bool("enabled", gw.Enabled()), slog.Duration("ttl", gw.TTL()))

	s3c, err := storage.NewS3Client(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	objects := storage.NewS3Store(s3c, cfg.Storage.Bucket, cfg.Storage.PublicURL)

	tokens, err := utils.NewTokenManager(utils.TokenOptions{
		Secret:     cfg.Token.Secret,
		Algorithm:  cfg.Token.Algorithm,
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
		ResetTTL:   cfg.Token.ResetTTL,
	})
	if err != nil {
		return err
	}

	users := repository.NewUserRepo(db)
	auth := service.NewAuthService(tokens, repository.NewTokenRepo(db), users, log)
	accounts := service.NewUserService(
		users,
		auth,
		tokens,
		utils.NewPasswordManager(cfg.BcryptCost),
		queue.NewPublisher(cfg.Broker.URL, cfg.Broker.MailQueue, log),
		cfg.ResetPasswordURL,
		log,
	)
	announcements := service.NewAnnouncementService(
		repository.NewAnnouncementRepo(db),
		repository.NewCategoryRepo(db),
		objects,
		gw,
		log,
	)

	e := router.New(cfg, router.Services{
		DB:            db,
		Redis:         rdb,
		Auth:          auth,
		Users:         accounts,
		Announcements: announcements,
	}, log)

	go auth.RunPurge(ctx, cfg.PurgeInterval)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", ":"+cfg.Port), slog.String("env", cfg.Env))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
