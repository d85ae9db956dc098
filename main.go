package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/audit"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/auth"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/config"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/database"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/handlers"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/logging"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/middleware"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/repositories"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/retry"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		// Logger is not configured yet.
		_, _ = os.Stderr.WriteString("Failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Bool("redis", cfg.Redis.Host != ""))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn := cfg.Database.ConnectionString()
	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, database.ConfigFromSettings(&cfg.Database))
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := database.RunMigrationsFromURL(dsn, cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.String("error", logging.SanitizeError(err)))
	}

	auditor := audit.NewModerationAuditor(logger)

	var invalidator services.ViewInvalidator = services.NewLoggingViewInvalidator(logger)
	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, view invalidations will only be logged",
			zap.String("error", logging.SanitizeError(err)))
	} else if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		invalidator = services.NewRedisViewInvalidator(redisClient, cfg.Redis.Channel, logger)
	}

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to initialize JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwksClient, logger), logger)

	pendingRepo := repositories.NewPendingWordRepository()
	permissionRepo := repositories.NewPermissionRepository()

	sweeper := services.NewRetentionSweeper(
		pendingRepo,
		database.NewScopeProvider(db),
		auditor,
		services.SweepSettings{
			Interval:  cfg.Moderation.SweepInterval,
			Retention: cfg.Moderation.RetentionPeriod(),
			BatchSize: cfg.Moderation.SweepBatchSize,
		},
		nil,
		logger,
	)

	moderationService := services.NewModerationService(services.ModerationDeps{
		Pending:     pendingRepo,
		Dictionary:  repositories.NewDictionaryRepository(),
		Languages:   repositories.NewLanguageRepository(),
		Scopes:      services.NewAccessScopeResolver(permissionRepo, cfg.Moderation.Permission, logger),
		Tx:          database.NewTransactor(),
		Sweeper:     sweeper,
		Invalidator: invalidator,
		Auditor:     auditor,
		ViewPaths:   cfg.Moderation.ViewPaths,
		PageSize:    cfg.Moderation.PageSize,
	}, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewModerationHandler(moderationService, logger).
		RegisterRoutes(mux, authMiddleware, database.WithScopedConnection(db, logger))

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting crossnext moderation service",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	sweeper.Wait()
}

func newLogger(env string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "local" || env == "test" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
