package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"pcx/internal/core"
	"pcx/internal/infra/events"
	"pcx/internal/infra/logging"
	"pcx/internal/infra/metrics"
)

// app holds the wired service and everything that must be closed with it.
type app struct {
	svc     *core.Service
	metrics *metrics.Recorder
	expvar  *core.ExpvarMetricsRecorder
	audit   *core.MemoryAuditLog
	// auditSink fans entries out to the in-memory trail and the audit log.
	auditSink core.AuditRecorder
	tracer    *core.JSONTraceTracer
	closers   []io.Closer
}

// buildApp opens the configured store and observability sinks.
func buildApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg := opts.cfg
	engine := core.NewDefaultRulesEngine(cfg.Policy)
	store, err := core.OpenPersistentStore(ctx, cfg.StorageOptions(), engine)
	if err != nil {
		return nil, err
	}
	a := &app{
		metrics: metrics.NewRecorder(),
		expvar:  core.NewExpvarMetricsRecorder(""),
		audit:   core.NewMemoryAuditLog(cfg.Logging.AuditBuffer),
	}
	a.auditSink = core.MultiAuditRecorder{a.audit, logging.NewAuditRecorder(opts.logger)}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	svcOpts := []core.Option{
		core.WithLogger(logging.NewCoreLogger(opts.logger)),
		core.WithAuditRecorder(a.auditSink),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{a.metrics, a.expvar}),
		core.WithPolicy(cfg.Policy),
	}
	if opts.trace {
		a.tracer = core.NewJSONTracer(opts.traceOut)
		svcOpts = append(svcOpts, core.WithTracer(a.tracer))
	}
	if cfg.Events.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, pub)
		svcOpts = append(svcOpts, core.WithEventPublisher(pub))
	}
	a.svc = core.NewService(store, svcOpts...)
	opts.logger.Info("service ready",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("nats", cfg.Events.NATSURL),
		zap.String("expvar", a.expvar.Name()),
		zap.Bool("trace", opts.trace))
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
	}
	return errors.Join(errs...)
}
