package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pcx/internal/adapters/httpapi"
	"pcx/internal/adapters/reports"
	"pcx/internal/blob"
	"pcx/internal/infra/logging"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr string
		seed bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if addr != "" {
				opts.cfg.HTTP.Addr = addr
			}
			return serve(ctx, opts, seed)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&seed, "seed", false, "Load demo data before serving")
	return cmd
}

func serve(ctx context.Context, opts *rootOptions, seed bool) error {
	cfg := opts.cfg
	logger := opts.logger

	a, err := buildApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown cleanup failed", zap.Error(err))
		}
	}()

	if seed {
		n, err := a.svc.SeedDemoData(ctx)
		if err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		logger.Info("demo data loaded", zap.Int("records", n))
	}

	store, err := blob.Open(ctx, cfg.BlobOptions())
	if err != nil {
		return err
	}
	coreLogger := logging.NewCoreLogger(logger)
	worker := reports.NewWorker(a.svc, store,
		reports.WithLogger(coreLogger.With("component", "exports")),
		reports.WithAudit(a.auditSink),
		reports.WithQueueSize(cfg.Exports.QueueSize))
	worker.Start()

	handler := httpapi.NewHandler(a.svc,
		httpapi.WithExports(worker, store),
		httpapi.WithMetricsHandler(a.metrics.Handler()),
		httpapi.WithDebugVars(expvar.Handler()),
		httpapi.WithLogger(coreLogger.With("component", "http")))

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			_ = worker.Stop(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		logger.Warn("export worker shutdown", zap.Error(err))
	}
	return nil
}
