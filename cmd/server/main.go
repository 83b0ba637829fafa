package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/yourorg/advisor-trader/internal/advisor"
	"github.com/yourorg/advisor-trader/internal/auth"
	"github.com/yourorg/advisor-trader/internal/execution"
	"github.com/yourorg/advisor-trader/internal/gateway"
	"github.com/yourorg/advisor-trader/internal/ingestion"
	pgRepo "github.com/yourorg/advisor-trader/internal/repository/postgres"
	redisRepo "github.com/yourorg/advisor-trader/internal/repository/redis"
)

var defaultUniverse = []string{"AAPL", "TSLA", "MSFT", "NVDA", "SPY"}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	dbURL := os.Getenv("DATABASE_URL")
	redisURL := os.Getenv("REDIS_URL")
	alpacaKey := os.Getenv("ALPACA_API_KEY")
	alpacaSecret := os.Getenv("ALPACA_API_SECRET")
	geminiKey := os.Getenv("GEMINI_API_KEY")
	geminiModel := os.Getenv("GEMINI_MODEL")
	jwtSecret := os.Getenv("JWT_SECRET")
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	universe := defaultUniverse
	if raw := os.Getenv("TICKER_UNIVERSE"); raw != "" {
		universe = strings.Split(raw, ",")
	}
	maxRetries := 3
	if raw := os.Getenv("ADVISOR_MAX_RETRIES"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			maxRetries = n
		}
	}

	db, err := pgRepo.Connect(dbURL)
	if err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	if err := pgRepo.RunMigrations(dbURL, "migrations"); err != nil {
		logger.Error("failed to run migrations", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	redisClient, err := redisRepo.Connect(redisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	logger.Info("redis connected")

	userRepo := pgRepo.NewUserRepo(db)
	store := pgRepo.NewStore(db)
	priceRepo := redisRepo.NewPriceRepo(redisClient)

	jwtSvc := auth.NewJWTService(jwtSecret)

	tradeSvc := execution.NewTradeService(store, priceRepo, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The advisor is optional: without a key the advice endpoint is
	// disabled and manual trading still works.
	var advisorClient *advisor.Client
	if geminiKey != "" {
		advisorClient, err = advisor.New(ctx, geminiKey, geminiModel, logger)
		if err != nil {
			logger.Error("failed to create advisor client", "err", err)
			os.Exit(1)
		}
		logger.Info("advisor enabled")
	} else {
		logger.Warn("GEMINI_API_KEY not set, advice endpoint disabled")
	}

	hub := gateway.NewHub(priceRepo, logger)

	feed := ingestion.NewAlpacaClient(alpacaKey, alpacaSecret, universe, priceRepo, logger)

	handlers := gateway.NewHandlers(
		userRepo, tradeSvc, advisorClient, priceRepo, jwtSvc,
		universe, maxRetries, logger,
	)
	router := gateway.NewRouter(handlers, hub, jwtSvc)

	go hub.Run(ctx)
	go feed.Run(ctx)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	logger.Info("server stopped")
}
