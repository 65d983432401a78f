package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Haleralex/eventbus/eventbus"
)

// Store is the backing-agnostic outbox contract satisfied by both
// PgStore (direct SQL over pgx) and BunStore (uptrace/bun). Every
// operation is asynchronous (accepts a context.Context) and
// persistence errors always propagate to the caller — the outbox never
// swallows a DB error, except the best-effort EnsureSchema helpers.
type Store interface {
	// SaveEvent inserts event as a new NotPublished row with
	// timesSent=0. If ctx carries a TxHandle (see WithTx), the insert
	// runs on that transaction's connection without opening one of its
	// own, and TransactionID is set from the handle; otherwise it runs
	// as a standalone statement with a nil TransactionID.
	SaveEvent(ctx context.Context, event eventbus.Event) error

	// MarkInProgress transitions eventID to InProgress and atomically
	// increments TimesSent, in one UPDATE statement.
	MarkInProgress(ctx context.Context, eventID uuid.UUID) error
	// MarkPublished transitions eventID to Published. TimesSent is
	// unchanged.
	MarkPublished(ctx context.Context, eventID uuid.UUID) error
	// MarkFailed transitions eventID to PublishedFailed. TimesSent is
	// unchanged.
	MarkFailed(ctx context.Context, eventID uuid.UUID) error

	// RetrievePending returns NotPublished rows ordered by
	// CreationTime ascending, with Content deserialized into the
	// registered runtime type for rows whose EventTypeName resolves;
	// unresolved rows come back with Event == nil.
	RetrievePending(ctx context.Context) ([]Entry, error)
	// RetrievePendingByTx is RetrievePending filtered to one
	// transaction id.
	RetrievePendingByTx(ctx context.Context, txID uuid.UUID) ([]Entry, error)
	// RetrieveFailed is RetrievePending for PublishedFailed rows.
	RetrieveFailed(ctx context.Context) ([]Entry, error)
	// RetrieveFailedByTx is RetrieveFailed filtered to one transaction id.
	RetrieveFailedByTx(ctx context.Context, txID uuid.UUID) ([]Entry, error)

	// FindByID returns one row by its EventId, for the operator's manual
	// retry endpoint. The bool is false when no such row exists.
	FindByID(ctx context.Context, eventID uuid.UUID) (Entry, bool, error)

	// MarkStuckInProgress transitions InProgress rows whose CreationTime
	// is older than olderThan to PublishedFailed, returning how many rows
	// it changed. Used by Reaper, not by the republisher's happy path;
	// the republisher's RetrieveFailed pass is what retries them.
	MarkStuckInProgress(ctx context.Context, olderThan time.Duration) (int, error)

	// CountsByState returns the current row count for every State that
	// has at least one row, keyed by State. Used to populate
	// internal/metrics.OutboxRowsByState each republisher pass.
	CountsByState(ctx context.Context) (map[State]int, error)
}
