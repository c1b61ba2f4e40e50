package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MosinFAM/forum-moderation/internal/config"
	"github.com/MosinFAM/forum-moderation/internal/db"
	"github.com/MosinFAM/forum-moderation/internal/events"
	"github.com/MosinFAM/forum-moderation/internal/metrics"
	"github.com/MosinFAM/forum-moderation/internal/server"
	"github.com/MosinFAM/forum-moderation/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfg := config.Load()
	cfg.SetupLogging()
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics.Register(prometheus.DefaultRegisterer)

	store, closeStore, err := newStorage(cfg)
	if err != nil {
		log.WithError(err).WithField("storage", cfg.StorageType).Fatal("Failed to initialize storage")
	}
	defer closeStore()

	hash := []byte(cfg.Auth.TokenHash)
	if len(hash) == 0 {
		if cfg.Auth.Token == "" {
			log.Fatal("ADMIN_TOKEN or ADMIN_TOKEN_HASH must be set")
		}
		hash, err = server.HashToken(cfg.Auth.Token, bcrypt.DefaultCost)
		if err != nil {
			log.WithError(err).Fatal("Failed to hash admin token")
		}
	}

	limiter := server.NewRateLimiter(cfg.RateLimit.Every, cfg.RateLimit.Burst)
	stopCleanup := make(chan struct{})
	go limiter.RunCleanup(config.DefaultRatePrune, config.DefaultRateExpire, stopCleanup)

	srv := server.New(store, events.NewHub(), server.NewAuthenticator(hash), limiter, cfg.CORSOrigins)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed unexpectedly")
		}
	}()
	log.WithFields(log.Fields{"port": cfg.Port, "storage": cfg.StorageType}).Info("Moderation server is running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	close(stopCleanup)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	log.Info("Server exiting")
}

// newStorage выбирает хранилище по STORAGE_TYPE и при наличии REDIS_ADDR
// оборачивает его кешем
func newStorage(cfg *config.Config) (storage.Storage, func(), error) {
	var (
		store   storage.Storage
		closers []func()
	)

	switch cfg.StorageType {
	case "postgres", "sqlite":
		driver := db.DriverPostgres
		if cfg.StorageType == "sqlite" {
			driver = db.DriverSQLite
		}
		conn, err := db.Connect(driver, cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		sqlStore := storage.NewSQLStorage(conn, driver)
		if err := sqlStore.Migrate(cfg.Database.MigrationsDir); err != nil {
			conn.Close()
			return nil, nil, err
		}
		store = sqlStore
		closers = append(closers, func() { conn.Close() })
	default:
		if cfg.StorageType != config.DefaultStorageType {
			log.WithField("storage", cfg.StorageType).Warn("Unknown storage type, using in-memory")
		}
		store = storage.NewMemoryStorage()
	}

	if cfg.Redis.Addr != "" {
		cache := storage.NewRedisCache(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := cache.Ping(ctx)
		cancel()
		if err != nil {
			log.WithError(err).WithField("addr", cfg.Redis.Addr).Warn("Redis is unavailable, running without cache")
			cache.Close()
		} else {
			store = storage.NewCachedStorage(store, cache, cfg.Redis.TTL)
			closers = append(closers, func() { cache.Close() })
		}
	}

	return store, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
