package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-deposit-backend/docs"
	"github.com/tbourn/go-deposit-backend/internal/config"
	httpapi "github.com/tbourn/go-deposit-backend/internal/http"
	"github.com/tbourn/go-deposit-backend/internal/notify"
	"github.com/tbourn/go-deposit-backend/internal/observability"
	"github.com/tbourn/go-deposit-backend/internal/payments"
	"github.com/tbourn/go-deposit-backend/internal/repo"
	"github.com/tbourn/go-deposit-backend/internal/sysutil"
)

const shutdownGrace = 20 * time.Second

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, migrate || sysutil.IsTruthy(os.Getenv("AUTO_MIGRATE")))
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply schema migrations before serving (also AUTO_MIGRATE)")
	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	lg := sysutil.ConfigureLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, Version)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, Version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			lg.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openDB(cfg, migrate)
	if err != nil {
		return err
	}
	defer closeDB(db, lg)

	providers, err := payments.NewRegistry(cfg.Payments, cfg.APIBasePath, &http.Client{Timeout: cfg.Payments.Timeout})
	if err != nil {
		return err
	}
	notifier, closeNotifier := notify.FromConfig(cfg.Notify)
	defer func() { _ = closeNotifier() }()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	httpapi.RegisterRoutes(r, db, providers, notifier, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info().
			Str("addr", srv.Addr).
			Str("base_path", cfg.APIBasePath).
			Str("provider", providers.Default().Name()).
			Strs("providers", providers.Names()).
			Msg("depositd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openDB(cfg config.Config, migrate bool) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DB.Driver, err)
	}
	if err := observability.InstrumentDB(db, cfg.OTEL); err != nil {
		return nil, fmt.Errorf("instrument db: %w", err)
	}
	if migrate {
		if err := repo.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

func closeDB(db *gorm.DB, lg zerolog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		lg.Warn().Err(err).Msg("close database")
	}
}
