// Package store defines the append-only journal for executed pool
// operations. The in-memory pool ledger stays authoritative; the journal
// is the audit trail a collaborator reads for history and analytics.
// Implementations include PostgreSQL, a Redis read-through cache wrapper,
// and in-memory (for testing and single-process runs).
package store

import (
	"context"

	"github.com/lqx/pool-engine/internal/model"
)

// Store is the journal interface. Events are immutable once appended.
type Store interface {
	// AppendEvent appends an immutable operation record.
	AppendEvent(ctx context.Context, event *model.Event) error

	// RecentEvents returns up to limit events, newest first.
	RecentEvents(ctx context.Context, limit int) ([]model.Event, error)

	// EventsByKind returns all events of one kind, newest first.
	EventsByKind(ctx context.Context, kind string) ([]model.Event, error)
}
