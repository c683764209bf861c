package horizon

import (
	"sync"

	"github.com/oterlabs/spreadcache/pkg/pubsub"
)

// AuditLog is one retained slide event.
type AuditLog struct {
	Event pubsub.SlideEvent
}

// AuditLogger is a bounded, append-only, in-memory log of recent slide
// events. The teacher's invalidation/audit.go backs the same
// append-only discipline with Postgres for cross-restart durability;
// spreadcache's Non-goals explicitly exclude durability across
// restarts, so a capped in-memory ring is the whole story here — oldest
// entries are silently dropped once capacity is reached.
type AuditLogger struct {
	mu       sync.Mutex
	capacity int
	entries  []AuditLog
}

// NewAuditLogger creates a logger retaining at most capacity entries.
func NewAuditLogger(capacity int) *AuditLogger {
	if capacity <= 0 {
		capacity = 1000
	}
	return &AuditLogger{capacity: capacity}
}

// Insert appends one audit entry, evicting the oldest if over capacity.
func (al *AuditLogger) Insert(event pubsub.SlideEvent) {
	al.mu.Lock()
	defer al.mu.Unlock()

	al.entries = append(al.entries, AuditLog{Event: event})
	if len(al.entries) > al.capacity {
		al.entries = al.entries[len(al.entries)-al.capacity:]
	}
}

// GetRecent returns up to limit entries, most recent last. limit <= 0
// returns everything retained.
func (al *AuditLogger) GetRecent(limit int) []AuditLog {
	al.mu.Lock()
	defer al.mu.Unlock()

	if limit <= 0 || limit > len(al.entries) {
		limit = len(al.entries)
	}
	out := make([]AuditLog, limit)
	copy(out, al.entries[len(al.entries)-limit:])
	return out
}

// Count returns the number of entries currently retained.
func (al *AuditLogger) Count() int {
	al.mu.Lock()
	defer al.mu.Unlock()
	return len(al.entries)
}
