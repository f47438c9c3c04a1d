package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/audit"
	"qrattend/internal/config"
	"qrattend/internal/handler"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
	"qrattend/internal/router"
	"qrattend/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("store close: %v", err)
		}
	}()

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = st.Migrate(migrateCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Printf("store ready: %s", cfg.StoreBackend)

	var redisClient *store.Redis
	if cfg.UsesRedis() {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			log.Printf("warning: redis not reachable at %s", cfg.RedisAddr)
		}
	}

	var publisher attendance.Publisher
	switch cfg.QueueBackend {
	case "redis":
		publisher = queue.NewRedisQueue(redisClient.Client, "attendance:events")
	case "memory":
		q := queue.NewInMemory(256)
		publisher = q
		go func() {
			n, err := audit.Run(ctx, q, nil)
			if err != nil {
				log.Printf("audit consumer: %v", err)
			}
			log.Printf("audit consumer stopped after %d events", n)
		}()
	}

	m := metrics.New()
	svc := attendance.NewService(st, attendance.Options{
		QRMode:       attendance.QRMode(cfg.QRCodeMode),
		StoreTimeout: cfg.StoreTimeout,
		Publisher:    publisher,
		Metrics:      m,
	})

	var probe handler.RedisProbe
	if redisClient != nil {
		probe = redisClient
	}
	h := handler.New(svc, st, probe, !cfg.Production())

	var limiter httpmiddleware.Limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}

	r := router.New(router.Config{
		CORSOrigins: cfg.CORSAllowedOrigins,
		Limiter:     limiter,
		Metrics:     m,
	}, h)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// openStore connects the configured backend. The pool is process-wide and
// shared by every request.
func openStore(ctx context.Context, cfg config.App) (store.Store, error) {
	opts := store.Options{UniqueMemberNames: cfg.EnforceUniqueNames}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch cfg.StoreBackend {
	case "postgres":
		db, err := store.OpenPostgres(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store.NewPostgres(db, opts), nil
	case "sqlite":
		db, err := store.OpenSQLite(connectCtx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store.NewSQLite(db, opts), nil
	case "mongo":
		return store.OpenMongo(connectCtx, cfg.MongoURI, cfg.MongoDatabase, cfg.StoreTimeout, opts)
	case "memory":
		log.Println("warning: memory store selected, data is lost on restart")
		return store.NewMemory(opts), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
