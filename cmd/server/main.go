// Package main is the entry point for the incident portal backend server.
// It provides a REST API through which citizens report security incidents
// and authorities triage and resolve them.
//
// Architecture:
//   - PostgreSQL through a single pgx pool, created here and passed down
//   - Multi-statement operations run in one transaction (database.WithTx)
//   - Bearer JWTs carry the caller's id, email and role
//   - Every authority status change is recorded in an append-only trail
//   - Optional Redis backs the request rate limits
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civicwatch/incident-portal/internal/auth"
	"github.com/civicwatch/incident-portal/internal/config"
	"github.com/civicwatch/incident-portal/internal/database"
	"github.com/civicwatch/incident-portal/internal/handlers"
	"github.com/civicwatch/incident-portal/internal/logger"
	"github.com/civicwatch/incident-portal/internal/mail"
	"github.com/civicwatch/incident-portal/internal/middleware"
	"github.com/civicwatch/incident-portal/internal/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	sugar := log.Sugar()

	sugar.Infow("Starting incident portal server",
		"port", cfg.Port,
		"env", cfg.Environment,
		"redis", cfg.RedisURL != "",
		"smtp", cfg.SMTPHost != "",
	)

	if cfg.MigrateOnStart {
		if err := database.MigrateUp(cfg.DatabaseURL, cfg.MigrationsTable); err != nil {
			sugar.Fatalf("Failed to apply migrations: %v", err)
		}
		sugar.Info("Migrations applied")
	}

	// Initialize database connection pool
	db, err := database.NewPool(cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		sugar.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Rate limiting is optional; without Redis the limits are off.
	var rdb redis.Cmdable
	if cfg.RedisURL != "" {
		client, err := newRedis(cfg.RedisURL)
		if err != nil {
			sugar.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer client.Close()
		rdb = client
	} else {
		sugar.Warn("REDIS_URL not set, rate limiting disabled")
	}

	// Initialize services
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiration)
	mailer := mail.NewSMTPMailer(mail.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
	accountSvc := services.NewAccountService(db, issuer, mailer, services.AccountOptions{
		ResetTTL:       cfg.ResetTokenTTL,
		ResetBaseURL:   cfg.FrontendURL,
		ExposeResetURL: !cfg.IsProduction(),
	}, sugar)
	updateLog := services.NewUpdateLogService(db, sugar)
	incidentSvc := services.NewIncidentService(db, updateLog, sugar)
	statsSvc := services.NewStatsService(db, sugar)
	categorySvc := services.NewCategoryService(db, sugar)
	sweeper := services.NewResetSweeper(db, 24*time.Hour, sugar)

	// Start background sweeper (purges dead password reset tokens)
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go sweeper.Start(bgCtx, cfg.ResetSweepInterval)

	router := handlers.NewRouter(handlers.RouterDeps{
		Logger:        log,
		Verifier:      issuer,
		Accounts:      accountSvc,
		Incidents:     incidentSvc,
		Stats:         statsSvc,
		Categories:    categorySvc,
		DB:            db,
		AllowOrigin:   middleware.OriginAllowed(cfg.AllowedOrigins, cfg.AllowedOriginSuffix),
		GlobalLimiter: newLimiter(rdb, "rl:global", cfg.RateLimitRPM, time.Minute, middleware.ByClientIP, sugar),
		CreateLimiter: newLimiter(rdb, "rl:incidents", cfg.IncidentDailyLimit, 24*time.Hour, middleware.ByUser, sugar),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sugar.Infof("Server listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	sugar.Info("Shutting down gracefully...")
	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		sugar.Errorf("Forced shutdown: %v", err)
	}

	sugar.Info("Server stopped")
}

func newRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func newLimiter(rdb redis.Cmdable, prefix string, limit int, window time.Duration, key middleware.KeyFunc, logger *zap.SugaredLogger) *middleware.Limiter {
	if rdb == nil || limit <= 0 {
		return nil
	}
	return middleware.NewLimiter(rdb, prefix, limit, window, key, logger)
}
