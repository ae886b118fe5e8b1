package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/patient-registry/internal/auth"
	"github.com/WailSalutem-Health-Care/patient-registry/internal/config"
	"github.com/WailSalutem-Health-Care/patient-registry/internal/db"
	apphttp "github.com/WailSalutem-Health-Care/patient-registry/internal/http"
	"github.com/WailSalutem-Health-Care/patient-registry/internal/logging"
	"github.com/WailSalutem-Health-Care/patient-registry/internal/messaging"
	"github.com/WailSalutem-Health-Care/patient-registry/internal/patient"
	"github.com/WailSalutem-Health-Care/patient-registry/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "patient-registry",
		Short: "Patient master data registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the patient registry API server",
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

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(conn *sql.DB, logger *zap.Logger) error {
				return db.Migrate(conn, logger)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(conn *sql.DB, logger *zap.Logger) error {
				return db.Rollback(conn, logger)
			})
		},
	})

	return cmd
}

func withDatabase(fn func(conn *sql.DB, logger *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Telemetry.ServiceName)
	if err != nil {
		return err
	}
	defer logger.Sync()

	conn, err := db.Connect(context.Background(), cfg.Database, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(conn, logger)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.InitProvider(ctx, cfg.Telemetry, cfg.Environment, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	metrics, err := telemetry.InitMetrics(logger)
	if err != nil {
		return err
	}

	conn, err := db.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.Migrate(conn, logger); err != nil {
		return err
	}

	var publisher messaging.PublisherInterface
	if cfg.RabbitMQ.Enabled {
		p, err := messaging.NewPublisher(ctx, cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Warn("continuing without event publishing", zap.Error(err))
		} else {
			publisher = p
			defer p.Close()
		}
	}

	var verifier *auth.Verifier
	var perms auth.Permissions
	if cfg.Auth.Enabled {
		jwks, err := auth.NewJWKS(cfg.Auth.JWKSURL, 0, logger)
		if err != nil {
			return err
		}
		defer jwks.Close()

		verifier = auth.NewVerifier(auth.FromConfig(cfg.Auth), jwks)
		if perms, err = auth.LoadPermissions(cfg.Auth.PermissionsFile); err != nil {
			return err
		}
		logger.Info("✓ Authentication enabled", zap.String("issuer", cfg.Auth.Issuer))
	} else {
		logger.Warn("authentication disabled; audit identity is read from request headers")
	}

	repo := patient.NewRepository(conn, logger)
	service := patient.NewService(repo, publisher, metrics, logger)

	router := apphttp.NewRouter(apphttp.Deps{
		ServiceName:    cfg.Telemetry.ServiceName,
		Patients:       patient.NewHandler(service, logger),
		Store:          conn,
		Verifier:       verifier,
		Permissions:    perms,
		Metrics:        metrics,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("patient-registry listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
