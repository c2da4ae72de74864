package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/flight-inventory/internal/config"
	"github.com/cx-tal-miterani/flight-inventory/internal/database"
	"github.com/cx-tal-miterani/flight-inventory/internal/handlers"
	"github.com/cx-tal-miterani/flight-inventory/internal/inventory"
	"github.com/cx-tal-miterani/flight-inventory/internal/router"
	"github.com/cx-tal-miterani/flight-inventory/internal/service"
	"github.com/cx-tal-miterani/flight-inventory/internal/websocket"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx := context.Background()

	// Select the store: Postgres when DATABASE_URL is set, otherwise the
	// in-memory store.
	var store database.Store
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			sugar.Fatalw("failed to connect to database", "error", err)
		}
		defer pool.Close()

		repo := database.NewRepository(pool)
		repo.SetLockWait(cfg.LockWaitMS)
		store = repo
		sugar.Infow("using postgres store")
	} else {
		mem := database.NewMemoryStore()
		mem.SetLockWait(cfg.LockWaitMS)
		store = mem
		sugar.Infow("using in-memory store")
	}

	// Redis availability cache is optional: run without it if unreachable.
	var cache *redis.Client
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			sugar.Warnw("redis unreachable, availability cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			cache = client
			sugar.Infow("availability cache enabled", "addr", cfg.RedisAddr)
		}
		cancel()
	}

	hub := websocket.NewHub()
	go hub.Run()

	engine := inventory.NewEngine(store, sugar)
	bookingService := service.NewBookingService(engine, store, cache, hub, sugar)
	h := handlers.NewHandler(bookingService)
	r := router.SetupRouter(h, hub)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		sugar.Infow("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Infow("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Fatalw("server forced to shutdown", "error", err)
	}

	sugar.Infow("server stopped")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
