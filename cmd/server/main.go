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

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iliyamo/account-service/internal/cache"
	"github.com/iliyamo/account-service/internal/config"
	"github.com/iliyamo/account-service/internal/database"
	"github.com/iliyamo/account-service/internal/handler"
	"github.com/iliyamo/account-service/internal/metrics"
	"github.com/iliyamo/account-service/internal/middleware"
	"github.com/iliyamo/account-service/internal/queue"
	"github.com/iliyamo/account-service/internal/repository"
	"github.com/iliyamo/account-service/internal/router"
	"github.com/iliyamo/account-service/internal/service"
	"github.com/iliyamo/account-service/internal/token"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	db, err := database.Open(cfg.DSN())
	if err != nil {
		log.Error("database connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		log.Error("database migrate failed", "err", err)
		os.Exit(1)
	}

	// Redis is soft: without it tokens and cache run on the in-process
	// store, which costs cross-instance revocation but keeps one
	// instance serving.
	rdb := config.NewRedisClient()
	var store cache.Store
	if rdb != nil {
		store = cache.NewRedisStore(rdb)
	} else {
		log.Warn("redis unreachable, using in-memory store")
		store = cache.NewMemoryStore()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	cacheCfg := config.LoadCacheConfig()
	var cacheStore cache.Store = store
	if !cacheCfg.Enabled {
		cacheStore = cache.NoopStore{}
	}
	manager := cache.NewManager(cacheStore, cacheCfg.EntityTTL, log, rec)

	tokens := token.NewService(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, store, log)

	users := &repository.UserRepo{DB: db}
	audits := &repository.AuditRepo{DB: db}

	brokerURL := queue.BrokerURL()
	events := queue.NewPublisher(brokerURL, log)
	go queue.StartUserEventsConsumer(brokerURL, log)

	authSvc := service.NewAuthService(users, tokens, events, cfg.BcryptCost, log)
	userSvc := service.NewUserService(users, audits, manager, events, cfg.BcryptCost,
		cacheCfg.EntityTTL, cacheCfg.ListTTL, log)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(log)
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORS,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))
	e.Use(middleware.Metrics(rec))
	e.Use(middleware.RateLimit(config.LoadRateLimitConfig(), rdb, log))

	router.Register(e, router.Handlers{
		Auth:     handler.NewAuthHandler(authSvc, userSvc, rec),
		Users:    handler.NewUserHandler(userSvc),
		Health:   handler.NewHealthHandler(db, rdb),
		Tokens:   tokens,
		Gatherer: reg,
	})

	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", "err", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
