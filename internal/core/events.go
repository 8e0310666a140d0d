package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope published for committed domain changes.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	EntityID   string    `json:"entityId"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data,omitempty"`
}

func (s *Service) publish(ctx context.Context, op, entityID string, actor Actor, data any) {
	meta, ok := operationCatalog[op]
	if !ok || meta.event == "" {
		return
	}
	s.emit(ctx, meta.event, entityID, actor, data)
}

func (s *Service) emit(ctx context.Context, eventType, entityID string, actor Actor, data any) {
	event := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		EntityID:   entityID,
		Actor:      actor.name(),
		OccurredAt: s.now(),
		Data:       data,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("publish event failed", "type", eventType, "entity_id", entityID, "error", err)
	}
}
