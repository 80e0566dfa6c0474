package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/wonny/stockscanner/internal/external/kis"
	"github.com/wonny/stockscanner/internal/external/naver"
	"github.com/wonny/stockscanner/internal/external/telegram"
	"github.com/wonny/stockscanner/internal/store"
	"github.com/wonny/stockscanner/internal/workflow"
	"github.com/wonny/stockscanner/pkg/config"
	"github.com/wonny/stockscanner/pkg/httputil"
	"github.com/wonny/stockscanner/pkg/logger"
	"github.com/wonny/stockscanner/pkg/redis"
)

const cachePrefix = "stockscanner"

// app bundles the wired dependencies every command shares
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   store.Store
	redis   *redis.Client
	kis     *kis.Client
	master  *kis.Master
	naver   *naver.Client
	notify  *telegram.Notifier
	service *workflow.Service
}

// loadConfig applies the global flags on top of the environment
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		if err := godotenv.Overload(configFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", configFile, err)
		}
	}
	if env != "" {
		os.Setenv("ENV", env)
	}
	if verbose {
		os.Setenv("LOG_LEVEL", "debug")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newApp wires config, logger, store, Redis and the upstream clients into
// a workflow service. Callers must Close it.
func newApp(ctx context.Context) (*app, error) {
	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Open store
	st, err := store.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// 4. Redis (disabled unless REDIS_ENABLED)
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without cache")
		rc = redis.Disabled()
	}
	cache := redis.NewCache(rc, cachePrefix)

	// 5. HTTP clients: KIS shares a Redis sliding window across processes
	kisHTTP := httputil.New(log).
		WithRateLimiter(redis.NewRateLimiter(rc, cachePrefix), redis.KISRateLimit)
	plainHTTP := httputil.New(log)

	// 6. External API clients
	tokens := kis.NewTokenManager(cfg.KIS.BaseURL, cfg.KIS.AppKey, cfg.KIS.AppSecret, log)
	kisClient := kis.NewClient(cfg.KIS, kisHTTP, tokens, log)
	master := kis.NewMaster(cfg.KIS.MasterURL, plainHTTP, cache, log)
	naverClient := naver.NewClient(cfg.Naver, plainHTTP, cache, log)
	notifier := telegram.NewNotifier(cfg.Telegram, plainHTTP, log)

	// 7. Pipeline service
	service := workflow.NewService(cfg, workflow.Deps{
		Store:       st,
		Instruments: master,
		Market:      kisClient,
		News:        naverClient,
		Notifier:    notifier,
	}, log)

	return &app{
		cfg:     cfg,
		log:     log,
		store:   st,
		redis:   rc,
		kis:     kisClient,
		master:  master,
		naver:   naverClient,
		notify:  notifier,
		service: service,
	}, nil
}

// Close releases the store and Redis connections
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("Store close failed")
	}
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Redis close failed")
	}
}
