package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/mindsearch/config"
	"github.com/mohammad-safakhou/mindsearch/internal/history"
	"github.com/mohammad-safakhou/mindsearch/internal/runtime"
	"github.com/mohammad-safakhou/mindsearch/internal/server"
)

const version = "dev"

func serveCMD() *cobra.Command {
	var addr string
	var migrate bool
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if addr != "" {
				cfg.Server.Address = addr
			}
			logger, err := runtime.NewLogger(cfg.General.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			telemetry, tracer, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{ServiceVersion: version})
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				_ = telemetry.Shutdown(shutdownCtx)
			}()
			metrics := runtime.NewMetrics()

			store, closeStore, err := openHistory(ctx, cfg, migrate, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			builder, err := server.NewPipelineBuilder(ctx, cfg, logger, metrics, tracer)
			if err != nil {
				return err
			}
			defer func() { _ = builder.Close() }()

			srv := server.New(*cfg, builder, store, logger.Named("server"), metrics)
			return srv.Start(ctx)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	serve.Flags().BoolVar(&migrate, "migrate", false, "apply chat history migrations before serving")

	return serve
}

// openHistory selects Postgres when it is configured and the in-memory store
// otherwise.
func openHistory(ctx context.Context, cfg *config.Config, migrate bool, logger *zap.Logger) (history.Store, func(), error) {
	pg := cfg.Storage.Postgres
	if !pg.Enabled() {
		logger.Info("chat history kept in memory")
		return history.NewMemory(), func() {}, nil
	}
	if migrate {
		if err := history.Migrate("file://migrations", pg.DSN(), "up", 0); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	timeout := pg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	openCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	st, err := history.NewPostgres(openCtx, pg.DSN())
	if err != nil {
		return nil, nil, err
	}
	logger.Info("chat history stored in postgres")
	return st, func() { _ = st.Close() }, nil
}
