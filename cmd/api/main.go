package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-orders/api/controllers"
	"github.com/angelmondragon/storefront-orders/api/routes"
	"github.com/angelmondragon/storefront-orders/internal/bootstrap"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/migrate"
	"github.com/angelmondragon/storefront-orders/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stack, err := bootstrap.Build(context.Background(), bootstrap.Params{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		Registry: prometheus.DefaultRegisterer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to assemble reconciliation stack", err)
		os.Exit(1)
	}
	defer func() {
		if err := stack.Close(context.Background()); err != nil {
			logg.Error(context.Background(), "error closing reconciliation stack", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if stack.Coalescer != nil {
		go func() {
			if err := stack.Coalescer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "export coalescer stopped", err)
			}
		}()
	}

	readiness := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}
	if stack.PubSub != nil {
		readiness["pubsub"] = stack.PubSub
	}
	if stack.BigQuery != nil {
		readiness["bigquery"] = stack.BigQuery
	}

	params := routes.RouterParams{
		Config:      cfg,
		Logger:      logg,
		Engine:      stack.Engine,
		Orders:      stack.Orders,
		Audit:       stack.Audit,
		Bulk:        stack.Bulk,
		Permissions: stack.Permissions,
		Guard:       stack.Guard,
		Idempotency: redisClient,
		Readiness:   readiness,
	}
	if stack.Normalizer != nil {
		params.Normalizer = stack.Normalizer
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(logCtx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "api server shutdown failed", err)
		}
		logg.Info(logCtx, "api server stopped")
	}
}
