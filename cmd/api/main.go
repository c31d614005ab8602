package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"convo-search/internal/config"
	apihttp "convo-search/internal/http"
	"convo-search/internal/llm"
	"convo-search/internal/repository"
	"convo-search/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	store := repository.NewMemorySessionStore(
		repository.WithTTL(cfg.SessionTTL),
		repository.WithMaxSessions(cfg.SessionMax),
	)
	geminiClient := llm.NewGeminiClient(logger,
		llm.WithModel(cfg.GeminiModel),
		llm.WithBaseURL(cfg.GeminiBaseURL),
		llm.WithHTTPClient(&http.Client{Timeout: cfg.ProviderTimeout + 5*time.Second}),
	)
	searchSvc := service.NewSearchService(logger, store, geminiClient, cfg.ProviderTimeout)

	var limiter service.SearchRateLimiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory rate limiter", zap.Error(err))
		} else {
			limiter = service.NewRedisSearchRateLimiter(redisClient, cfg.RateLimitWindow, cfg.RateLimitMax)
		}
		cancel()
	}
	if limiter == nil {
		limiter = service.NewMemorySearchRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
	}

	go service.RunSessionSweeper(ctx, store, cfg.SessionSweepInterval, logger)

	searchHandler := apihttp.NewSearchHandler(logger, searchSvc)
	router := apihttp.NewRouter(logger, searchHandler, limiter)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.Duration("session_ttl", cfg.SessionTTL),
		zap.String("model", cfg.GeminiModel),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}
