package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/ahmetcoskunkizilkaya/auth-service/internal/config"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/database"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/logging"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/ratelimit"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/server"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/services"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "auth-service",
		Short:         "Email/password auth API with access and refresh tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve()
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				_, db, err := bootstrap()
				if err != nil {
					return err
				}
				defer database.Close(db)
				slog.Info("migration completed")
				return nil
			},
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Delete expired refresh tokens and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, db, err := bootstrap()
				if err != nil {
					return err
				}
				defer database.Close(db)

				authService, err := newAuthService(cfg, db)
				if err != nil {
					return err
				}
				deleted, err := authService.SweepExpired(cmd.Context())
				if err != nil {
					return fmt.Errorf("sweep refresh tokens: %w", err)
				}
				slog.Info("refresh token sweep completed", "deleted", deleted)
				return nil
			},
		},
		deleteUserCmd(),
	)

	return cmd
}

func deleteUserCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "delete-user",
		Short: "Delete an account and all of its sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer database.Close(db)

			authService, err := newAuthService(cfg, db)
			if err != nil {
				return err
			}
			return authService.DeleteUser(cmd.Context(), email)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email of the account to delete")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// bootstrap loads and validates the configuration, then connects to and
// migrates the database.
func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logging.Setup(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}
	return cfg, db, nil
}

func newAuthService(cfg *config.Config, db *gorm.DB) (*services.AuthService, error) {
	issuer, err := services.NewTokenIssuer(cfg)
	if err != nil {
		return nil, err
	}
	validator, err := services.NewTokenValidator(cfg)
	if err != nil {
		return nil, err
	}
	return services.NewAuthService(db, cfg, issuer, validator), nil
}

func serve() error {
	cfg, db, err := bootstrap()
	if err != nil {
		return err
	}

	// Database log handler (ERROR+ async batch)
	dbLogHandler := logging.NewDBHandler(db, 5*time.Second)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		logging.NewJSONHandler(os.Stdout, cfg.LogLevel),
		dbLogHandler,
	)))

	cleanupDone := make(chan struct{})
	logging.StartCleanup(db, cfg.LogRetention, cleanupDone)

	// Sentry error tracking
	sentryEnabled := false
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			sentryEnabled = true
		}
	}

	opts := server.Options{Sentry: sentryEnabled, AccessLog: true}
	var limiterStore *ratelimit.RedisStorage
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := ratelimit.Connect(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			return err
		}
		limiterStore = ratelimit.NewRedisStorage(client, "auth-service:limiter:")
		opts.LimiterStorage = limiterStore
		slog.Info("rate limiter using redis")
	}

	app, authService, err := server.New(cfg, db, opts)
	if err != nil {
		return err
	}

	sweepDone := make(chan struct{})
	authService.StartSweeper(cfg.TokenSweepInterval, sweepDone)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		listenErr <- app.Listen(cfg.Addr())
	}()

	select {
	case <-quit:
		slog.Info("shutting down server...")
	case err := <-listenErr:
		slog.Error("server failed to start", "error", err)
	}

	close(sweepDone)
	close(cleanupDone)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	dbLogHandler.Stop()
	if sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
	if limiterStore != nil {
		if err := limiterStore.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}
	if err := database.Close(db); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
