package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrone-Ward/nodeify/internal/api"
	"github.com/Tyrone-Ward/nodeify/internal/bridge"
	"github.com/Tyrone-Ward/nodeify/internal/config"
	"github.com/Tyrone-Ward/nodeify/internal/delivery"
	"github.com/Tyrone-Ward/nodeify/internal/gateway"
	"github.com/Tyrone-Ward/nodeify/internal/presence"
	"github.com/Tyrone-Ward/nodeify/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Open the durable store
	var ds store.DataStore
	if cfg.UsePostgres() {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		ds = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("sqlite open failed")
		}
		ds = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite store")
	}
	defer ds.Close()
	ds = store.Instrument(ds)

	// Initialize Redis store
	var redisStore *store.RedisStore
	var lastSeen gateway.LastSeenRecorder
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		lastSeen = redisStore
		logger.Info().Msg("connected to Redis")
	}

	// Wire delivery
	dir := presence.NewDirectory()
	router := delivery.NewRouter(ds, ds, dir, logger)
	gw := gateway.New(ds, ds, dir, router, logger, gateway.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		LastSeen:       lastSeen,
	})
	dispatcher := bridge.NewWSDispatcher(cfg.GatewayURL, logger)

	// Create router
	handler := api.NewRouter(logger, api.Deps{
		Store:              ds,
		Redis:              redisStore,
		Presence:           dir,
		Gateway:            gw,
		Dispatcher:         dispatcher,
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitWhitelist: cfg.RateLimitWhitelist,
		AutoBlockEnabled:   cfg.AutoBlockEnabled,
	})

	// Websocket connections manage their own deadlines, so no
	// Read/WriteTimeout here.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("gateway_url", cfg.GatewayURL).
			Msg("starting nodeify server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Hijacked websocket connections are not tracked by http.Server
	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("gateway shutdown incomplete")
	}

	logger.Info().Msg("server stopped")
}
