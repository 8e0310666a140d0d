package logging

import (
	"context"

	"go.uber.org/zap"

	"pcx/internal/core"
)

// AuditRecorder writes audit entries to a zap logger, one line per entry.
type AuditRecorder struct {
	logger *zap.Logger
}

// NewAuditRecorder returns a recorder logging under the "audit" name.
func NewAuditRecorder(logger *zap.Logger) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditRecorder{logger: logger.Named("audit")}
}

// Record implements core.AuditRecorder. Failed operations log at warn.
func (r *AuditRecorder) Record(_ context.Context, e core.AuditEntry) {
	fields := []zap.Field{
		zap.String("operation", e.Operation),
		zap.String("entity", string(e.Entity)),
		zap.String("action", string(e.Action)),
		zap.String("status", string(e.Status)),
		zap.Duration("duration", e.Duration),
		zap.Time("timestamp", e.Timestamp),
	}
	if e.EntityID != "" {
		fields = append(fields, zap.String("entity_id", e.EntityID))
	}
	if e.Actor != "" {
		fields = append(fields, zap.String("actor", e.Actor))
	}
	if e.Note != "" {
		fields = append(fields, zap.String("note", e.Note))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
		r.logger.Warn("audit", fields...)
		return
	}
	r.logger.Info("audit", fields...)
}
