package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pageza/alchemorsel-recommender/config"
	"github.com/pageza/alchemorsel-recommender/internal/api"
	"github.com/pageza/alchemorsel-recommender/internal/app"
	"github.com/pageza/alchemorsel-recommender/internal/database"
	"github.com/pageza/alchemorsel-recommender/internal/logging"
	"github.com/pageza/alchemorsel-recommender/internal/middleware"
	"github.com/pageza/alchemorsel-recommender/internal/server"
	"github.com/pageza/alchemorsel-recommender/internal/service"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logging.Info().Str("environment", string(cfg.Environment)).Msg("configuration loaded")

	a, err := app.New(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize vector index")
	}
	defer a.Close()

	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = a.CheckCompatibility(startupCtx)
	cancel()
	if err != nil {
		logging.Fatal().Err(err).Msg("embedder and vector index are incompatible; refusing to start")
	}

	auth, err := service.NewAuthService(service.AuthConfig{
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash,
		Password:     cfg.Admin.Password,
		JWTSecret:    cfg.Admin.JWTSecret,
		TokenTTL:     cfg.Admin.TokenTTL,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize admin auth")
	}

	deps := api.Dependencies{
		Recommender: a.RecommendationService(),
		Index:       a.Index,
	}
	if auth.Enabled() {
		deps.Auth = auth
		deps.Ingester = a.IngestService(nil)
	} else {
		logging.Info().Msg("admin password not set; ingestion endpoint disabled")
	}

	if cfg.Redis.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := database.NewRedisClient(ctx, cfg.Redis.URL)
		cancel()
		if err != nil {
			logging.Warn().Err(err).Msg("redis unavailable; continuing without rate limiting")
		} else {
			defer client.Close()
			deps.RateLimiter = middleware.NewRateLimiter(client, middleware.RateLimitConfig{
				Limit:  cfg.Redis.RateLimit,
				Window: cfg.Redis.RateWindow,
			})
		}
	}

	srv := server.New(cfg, deps)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			logging.Error().Err(err).Msg("server error")
			return
		}
	case sig := <-quit:
		logging.Info().Str("signal", sig.String()).Msg("received signal")
	}

	logging.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
		return
	}
	logging.Info().Msg("server stopped")
}
