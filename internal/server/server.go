package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

// Run serves the relay until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) error {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var presence Presence = NopPresence{}
	if cfg.RedisAddr != "" {
		rdb, err := ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		presence = NewRedisPresence(rdb)
		logger.Info("presence mirrored to redis", "addr", cfg.RedisAddr)
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := NewHub(presence, logger)
	go hub.Run(hubCtx)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: NewRouter(hub, RouterOptions{
			AllowedOrigins: cfg.AllowedOrigins,
			JWTSecret:      cfg.JWTSecret,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting huddle relay", "addr", cfg.Addr, "auth", cfg.JWTSecret != "")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down relay")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown; stopping
	// the hub closes them.
	stopHub()
	return srv.Shutdown(shutdownCtx)
}
