package domain

import (
	"errors"
	"testing"
)

type unmarshalable struct{}

func (unmarshalable) MarshalJSON() ([]byte, error) { return nil, errors.New("no snapshot") }

func TestChangePayloadZeroValueIsEmpty(t *testing.T) {
	var p ChangePayload
	if !p.IsEmpty() || p.Raw() != nil {
		t.Fatalf("zero payload must be empty")
	}
	if !NewChangePayload(nil).IsEmpty() {
		t.Fatalf("nil bytes must give an empty payload")
	}
	if _, ok := DecodeChangePayload[Batch](p); ok {
		t.Fatalf("empty payload must not decode")
	}
}

func TestChangePayloadCopiesBytes(t *testing.T) {
	raw := []byte(`{"id":"BATCH-2026-001"}`)
	p := NewChangePayload(raw)
	raw[8] = 'X'
	out := p.Raw()
	out[8] = 'Y'
	if got := string(p.Raw()); got != `{"id":"BATCH-2026-001"}` {
		t.Fatalf("payload must be isolated from callers, got %s", got)
	}
}

func TestDecodeChangePayload(t *testing.T) {
	p, err := NewChangePayloadFromValue(Batch{ID: "BATCH-2026-002", Status: BatchStatusInProgress})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	b, ok := DecodeChangePayload[Batch](p)
	if !ok || b.ID != "BATCH-2026-002" || b.Status != BatchStatusInProgress {
		t.Fatalf("unexpected decode %+v %v", b, ok)
	}
	if _, ok := DecodeChangePayload[Batch](NewChangePayload([]byte("{"))); ok {
		t.Fatalf("truncated JSON must not decode")
	}
	if _, err := NewChangePayloadFromValue(unmarshalable{}); err == nil {
		t.Fatalf("expected marshal error")
	}
}
