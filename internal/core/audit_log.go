package core

import (
	"context"
	"sync"
)

const defaultAuditCapacity = 1000

// MemoryAuditLog keeps the most recent audit entries in a ring buffer.
type MemoryAuditLog struct {
	mu      sync.RWMutex
	entries []AuditEntry
	next    int
	full    bool
}

// NewMemoryAuditLog returns a log retaining up to capacity entries.
func NewMemoryAuditLog(capacity int) *MemoryAuditLog {
	if capacity <= 0 {
		capacity = defaultAuditCapacity
	}
	return &MemoryAuditLog{entries: make([]AuditEntry, capacity)}
}

// Record implements AuditRecorder.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries[l.next] = entry
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()
}

// Entries returns up to limit entries, newest first. A non-positive limit
// returns everything retained.
func (l *MemoryAuditLog) Entries(limit int) []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	size := l.next
	if l.full {
		size = len(l.entries)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]AuditEntry, 0, limit)
	idx := l.next
	for i := 0; i < limit; i++ {
		idx = (idx - 1 + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}

// MultiAuditRecorder fans entries out to several recorders.
type MultiAuditRecorder []AuditRecorder

// Record implements AuditRecorder.
func (m MultiAuditRecorder) Record(ctx context.Context, entry AuditEntry) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, entry)
		}
	}
}

// Entries reads from the first member that supports reading.
func (m MultiAuditRecorder) Entries(limit int) []AuditEntry {
	for _, r := range m {
		if reader, ok := r.(AuditReader); ok {
			return reader.Entries(limit)
		}
	}
	return []AuditEntry{}
}
