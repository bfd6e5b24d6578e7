package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carelog/carelog/internal/config"
	"github.com/carelog/carelog/internal/domain/alert"
	"github.com/carelog/carelog/internal/domain/escalation"
	"github.com/carelog/carelog/internal/domain/ingestion"
	"github.com/carelog/carelog/internal/domain/record"
	"github.com/carelog/carelog/internal/domain/verification"
	"github.com/carelog/carelog/internal/platform/audit"
	"github.com/carelog/carelog/internal/platform/auth"
	"github.com/carelog/carelog/internal/platform/crypto"
	"github.com/carelog/carelog/internal/platform/db"
	"github.com/carelog/carelog/internal/platform/middleware"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "carelog-server",
		Short: "Clinical text ingestion and alerting API server",
	}
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(keygenCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a fresh ENCRYPTION_KEY value",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := generateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

// generateKey returns a hex-encoded 32-byte key.
func generateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// In development an absent key gets an ephemeral replacement so the
	// server can run against a scratch database. Everything encrypted with
	// it is unreadable after restart.
	keyBytes := []byte(nil)
	if cfg.EncryptionKey != "" {
		keyBytes, err = cfg.EncryptionKeyBytes()
		if err != nil {
			logger.Fatal().Err(err).Msg("bad encryption key")
		}
	} else {
		hexKey, err := generateKey()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to generate dev key")
		}
		keyBytes, _ = hex.DecodeString(hexKey)
		logger.Warn().Msg("ENCRYPTION_KEY not set; using an ephemeral development key")
	}
	encryptor, err := crypto.NewEncryptor(keyBytes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create encryptor")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Audit trail: async bounded queue in front of the append-only store.
	auditStore := audit.NewPGStore(pool)
	auditQueue := audit.NewQueue(auditStore, cfg.AuditQueueSize, logger)

	// Domain wiring.
	locker := db.PGLocker{Pool: pool}
	recordSvc := record.NewService(record.NewSectionRepoPG(pool), encryptor, locker, cfg.RollingSectionCap)
	ledgerSvc := verification.NewService(verification.NewItemRepoPG(pool), encryptor, nil)
	alertSvc := alert.NewService(alert.NewRepoPG(pool), encryptor, logger)
	detector := escalation.NewDetector(nil, nil, logger)
	extractor := ingestion.NewHTTPExtractor(cfg.ExtractorURL, nil)
	ingestSvc := ingestion.NewService(extractor, cfg.ExtractionTimeout, locker,
		recordSvc, ledgerSvc, alertSvc, detector, nil, auditQueue, logger)

	// Echo server.
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	if cfg.IsDev() {
		e.Use(auth.DevMiddleware())
	} else {
		e.Use(auth.Middleware([]byte(cfg.JWTSigningKey)))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	apiV1 := e.Group("/api/v1")
	record.NewHandler(recordSvc, auditQueue).RegisterRoutes(apiV1)
	alert.NewHandler(alertSvc, auditQueue).RegisterRoutes(apiV1)
	ingestion.NewHandler(ingestSvc).RegisterRoutes(apiV1)
	audit.NewHandler(auditStore, auditQueue).RegisterRoutes(apiV1)

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	// Drain buffered audit events before the pool closes.
	if err := auditQueue.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("audit queue shutdown")
	}
	if dropped := auditQueue.Dropped(); dropped > 0 {
		logger.Warn().Uint64("dropped", dropped).Msg("audit events dropped during runtime")
	}
	return nil
}
