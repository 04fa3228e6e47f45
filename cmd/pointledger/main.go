package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dukerupert/pointledger/internal/blob"
	"github.com/dukerupert/pointledger/internal/config"
	"github.com/dukerupert/pointledger/internal/database"
	"github.com/dukerupert/pointledger/internal/jobs"
	"github.com/dukerupert/pointledger/internal/logging"
	"github.com/dukerupert/pointledger/internal/server"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "pointledger",
	Short:         "Points-and-rewards ledger service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal outside local development.
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("migrations applied", "driver", cfg.DBDriver)
		return nil
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd, createAdminCmd, deactivateCmd, approveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openDB(ctx context.Context) (*sqlx.DB, error) {
	if cfg.DBDriver == "postgres" {
		return database.OpenPostgres(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	}
	return database.Open(cfg.DBPath)
}

func openBlobs() (blob.Store, error) {
	if cfg.BlobBackend == "s3" {
		return blob.NewS3Store(cfg.S3()), nil
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return blob.NewDirStore(cfg.UploadDir, cfg.MediaBaseURL()), nil
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	blobs, err := openBlobs()
	if err != nil {
		return err
	}

	srv := server.New(db, blobs, server.Config{
		ActivityPoints:  cfg.ActivityPoints,
		SessionTTL:      cfg.TokenTTL,
		RateLimit:       cfg.RateLimit,
		RateLimitWindow: cfg.RateLimitWindow,
		WSOrigins:       cfg.WSOrigins,
	}, logger)

	scheduler := jobs.NewScheduler(cfg.CleanupSchedule, srv.SessionStore(), logger.With("component", "jobs"), srv.RateLimiter())
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", httpServer.Addr, "driver", cfg.DBDriver, "blob_backend", cfg.BlobBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
