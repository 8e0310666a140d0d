// Package core implements the PCX certification service: validated batch,
// measurement and discrepancy operations executed inside store transactions,
// plus the derived mass balance and reconciliation views.
package core

import (
	"context"
	"errors"
	"time"

	"pcx/internal/infra/persistence/memory"
	"pcx/pkg/domain"
)

type (
	Batch           = domain.Batch
	Measurement     = domain.Measurement
	Discrepancy     = domain.Discrepancy
	Result          = domain.Result
	RulesEngine     = domain.RulesEngine
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// Role names recognised by the service. Authentication is external; the role
// arrives with the request.
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Actor identifies who performs an operation.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// SystemActor is used when no caller identity is supplied.
var SystemActor = Actor{ID: "system", Role: RoleOperator}

// Privileged reports whether the actor may override guarded transitions.
func (a Actor) Privileged() bool { return a.Role == RoleAdmin }

func (a Actor) name() string {
	if a.ID == "" {
		return SystemActor.ID
	}
	return a.ID
}

// Service exposes transactional operations over the injected store.
type Service struct {
	store   PersistentStore
	policy  domain.Policy
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	clock   Clock
	events  EventPublisher
}

// NewService constructs a service backed by the supplied store. Stores that
// expose SetNowFunc are pointed at the service clock so transaction
// timestamps and audit timestamps agree.
func NewService(store PersistentStore, opts ...Option) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if clocked, ok := store.(interface{ SetNowFunc(func() time.Time) }); ok {
		clocked.SetNowFunc(options.clock.Now)
	}
	return &Service{
		store:   store,
		policy:  options.policy,
		logger:  options.logger,
		audit:   options.audit,
		metrics: options.metrics,
		tracer:  options.tracer,
		clock:   options.clock,
		events:  options.events,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Policy returns the active thresholds.
func (s *Service) Policy() domain.Policy { return s.policy }

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

type operationMeta struct {
	entity domain.EntityType
	action domain.Action
	event  string
}

var operationCatalog = map[string]operationMeta{
	"create_batch":             {domain.EntityBatch, domain.ActionCreate, "pcx.batch.created"},
	"update_batch":             {domain.EntityBatch, domain.ActionUpdate, "pcx.batch.updated"},
	"update_batch_status":      {domain.EntityBatch, domain.ActionUpdate, "pcx.batch.status_changed"},
	"update_batch_quantities":  {domain.EntityBatch, domain.ActionUpdate, "pcx.batch.quantities_updated"},
	"link_measurement":         {domain.EntityBatch, domain.ActionUpdate, "pcx.batch.measurement_linked"},
	"create_measurement":       {domain.EntityMeasurement, domain.ActionCreate, "pcx.measurement.created"},
	"supersede_measurement":    {domain.EntityMeasurement, domain.ActionCreate, "pcx.measurement.superseded"},
	"attach_evidence":          {domain.EntityMeasurement, domain.ActionUpdate, "pcx.measurement.evidence_attached"},
	"update_validation_status": {domain.EntityMeasurement, domain.ActionUpdate, "pcx.measurement.validation_changed"},
	"create_discrepancy":       {domain.EntityDiscrepancy, domain.ActionCreate, "pcx.discrepancy.created"},
	"resolve_discrepancy":      {domain.EntityDiscrepancy, domain.ActionUpdate, "pcx.discrepancy.resolved"},
	"ignore_discrepancy":       {domain.EntityDiscrepancy, domain.ActionUpdate, "pcx.discrepancy.ignored"},
	"run_reconciliation_check": {domain.EntityDiscrepancy, domain.ActionCreate, ""},
}

// outcome is what a mutating operation reports back to the observability wrapper.
type outcome struct {
	entityID string
	note     string
	data     any
	// skipEvent suppresses publishing for idempotent no-op calls.
	skipEvent bool
}

// mutate runs fn inside a transaction and emits trace, metrics, audit, log
// and event signals for op.
func (s *Service) mutate(ctx context.Context, op string, actor Actor, fn func(ctx context.Context, tx Transaction) (outcome, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	var out outcome
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var ferr error
		out, ferr = fn(ctx, tx)
		return ferr
	})
	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	if err != nil {
		s.recordAuditError(ctx, op, out.entityID, actor, duration, err)
		s.logFailure(op, out.entityID, actor, err)
		return res, err
	}
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", string(v.Severity), "entity_id", v.EntityID, "message", v.Message)
	}
	s.recordAudit(ctx, AuditEntry{
		Operation: op,
		EntityID:  out.entityID,
		Actor:     actor.name(),
		Status:    AuditStatusSuccess,
		Note:      out.note,
		Duration:  duration,
	})
	s.logger.Info("operation completed", "operation", op, "entity_id", out.entityID, "actor", actor.name(), "duration", duration)
	if !out.skipEvent {
		s.publish(ctx, op, out.entityID, actor, out.data)
	}
	return res, nil
}

// read wraps a query with trace and metrics signals. Reads are not audited.
func (s *Service) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logger.Debug("query failed", "operation", op, "error", err)
	}
	return err
}

func (s *Service) recordAuditError(ctx context.Context, op, entityID string, actor Actor, duration time.Duration, err error) {
	s.recordAudit(ctx, AuditEntry{
		Operation: op,
		EntityID:  entityID,
		Actor:     actor.name(),
		Status:    AuditStatusError,
		Error:     err.Error(),
		Duration:  duration,
	})
}

// recordAudit fills entity/action from the operation catalog. Unknown
// operations are dropped.
func (s *Service) recordAudit(ctx context.Context, entry AuditEntry) {
	meta, ok := operationCatalog[entry.Operation]
	if !ok {
		return
	}
	entry.Entity = meta.entity
	entry.Action = meta.action
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	s.audit.Record(ctx, entry)
}

func (s *Service) logFailure(op, entityID string, actor Actor, err error) {
	var verr domain.ValidationError
	var nf domain.NotFoundError
	var rv domain.RuleViolationError
	switch {
	case errors.As(err, &verr), errors.As(err, &nf):
		s.logger.Warn("operation rejected", "operation", op, "entity_id", entityID, "actor", actor.name(), "error", err)
	case errors.As(err, &rv):
		s.logger.Warn("operation blocked by rules", "operation", op, "entity_id", entityID, "actor", actor.name(), "violations", len(rv.Result.Violations))
	default:
		s.logger.Error("operation failed", "operation", op, "entity_id", entityID, "actor", actor.name(), "error", err)
	}
}
