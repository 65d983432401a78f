package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/Haleralex/eventbus/eventbus"
)

// integrationEventLogModel is the bun-mapped row shape for
// IntegrationEventLog, kept private to this file: callers only ever
// see Entry, never the ORM model.
type integrationEventLogModel struct {
	bun.BaseModel `bun:"table:integrationeventlog,alias:iel"`

	EventID       string    `bun:"eventid,pk"`
	EventTypeName string    `bun:"eventtypename,notnull"`
	State         int       `bun:"state,notnull"`
	TimesSent     int       `bun:"timessent,notnull"`
	CreationTime  time.Time `bun:"creationtime,notnull"`
	Content       string    `bun:"content,notnull"`
	TransactionID string    `bun:"transactionid,notnull"`
}

// BunStore is the managed ORM-style outbox backing over uptrace/bun,
// interchangeable with PgStore: same Store contract, same
// IntegrationEventLog schema.
type BunStore struct {
	db  *bun.DB
	reg *eventbus.Registry
}

// NewBunStore returns a BunStore backed by db, resolving event types
// through reg on retrieval.
func NewBunStore(db *bun.DB, reg *eventbus.Registry) *BunStore {
	return &BunStore{db: db, reg: reg}
}

// idb resolves the bun.IDB (either *bun.DB or a bun.Tx) BunStore's
// query-builder calls should run on, matching whichever ctx's
// TxHandle supplies.
func (s *BunStore) idb(ctx context.Context) (bun.IDB, uuid.UUID) {
	if h, ok := TxFromContext(ctx); ok {
		if tx, ok := h.Querier.(bun.Tx); ok {
			return tx, h.ID
		}
	}
	return s.db, nilTransactionID
}

func (s *BunStore) SaveEvent(ctx context.Context, event eventbus.Event) error {
	content, err := eventbus.Marshal(event, s.reg)
	if err != nil {
		return fmt.Errorf("outbox: serializing event: %w", err)
	}

	db, txID := s.idb(ctx)
	row := &integrationEventLogModel{
		EventID:       event.EventID().String(),
		EventTypeName: eventbus.EventTypeName(event),
		State:         int(NotPublished),
		TimesSent:     0,
		CreationTime:  event.OccurredAt(),
		Content:       string(content),
		TransactionID: txID.String(),
	}
	if _, err := db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("outbox: saving event: %w", err)
	}
	return nil
}

func (s *BunStore) setState(ctx context.Context, eventID uuid.UUID, state State) error {
	_, err := s.db.NewUpdate().
		Model((*integrationEventLogModel)(nil)).
		Set("state = ?", int(state)).
		Set("timessent = CASE WHEN ? = ? THEN timessent + 1 ELSE timessent END", int(state), int(InProgress)).
		Where("eventid = ?", eventID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("outbox: updating state to %s: %w", state, err)
	}
	return nil
}

func (s *BunStore) MarkInProgress(ctx context.Context, eventID uuid.UUID) error {
	return s.setState(ctx, eventID, InProgress)
}

func (s *BunStore) MarkPublished(ctx context.Context, eventID uuid.UUID) error {
	return s.setState(ctx, eventID, Published)
}

func (s *BunStore) MarkFailed(ctx context.Context, eventID uuid.UUID) error {
	return s.setState(ctx, eventID, PublishedFailed)
}

func (s *BunStore) retrieve(ctx context.Context, state State, txID *uuid.UUID) ([]Entry, error) {
	var rows []integrationEventLogModel
	q := s.db.NewSelect().Model(&rows).Where("state = ?", int(state))
	if txID != nil {
		q = q.Where("transactionid = ?", txID.String())
	}
	q = q.Order("creationtime ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("outbox: retrieving rows in state %s: %w", state, err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry := Entry{
			EventTypeName: row.EventTypeName,
			State:         State(row.State),
			TimesSent:     row.TimesSent,
			CreationTime:  row.CreationTime,
			Content:       row.Content,
		}
		if id, err := uuid.Parse(row.EventID); err == nil {
			entry.EventID = id
		}
		if id, err := uuid.Parse(row.TransactionID); err == nil {
			entry.TransactionID = id
		}
		if resolved, ok := s.reg.EventType(row.EventTypeName); ok {
			if event, err := eventbus.Unmarshal([]byte(row.Content), resolved); err == nil {
				entry.Event = event
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *BunStore) RetrievePending(ctx context.Context) ([]Entry, error) {
	return s.retrieve(ctx, NotPublished, nil)
}

func (s *BunStore) RetrievePendingByTx(ctx context.Context, txID uuid.UUID) ([]Entry, error) {
	return s.retrieve(ctx, NotPublished, &txID)
}

func (s *BunStore) RetrieveFailed(ctx context.Context) ([]Entry, error) {
	return s.retrieve(ctx, PublishedFailed, nil)
}

func (s *BunStore) RetrieveFailedByTx(ctx context.Context, txID uuid.UUID) ([]Entry, error) {
	return s.retrieve(ctx, PublishedFailed, &txID)
}

// FindByID returns the row for eventID, if any.
func (s *BunStore) FindByID(ctx context.Context, eventID uuid.UUID) (Entry, bool, error) {
	var row integrationEventLogModel
	err := s.db.NewSelect().Model(&row).Where("eventid = ?", eventID.String()).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("outbox: finding event %s: %w", eventID, err)
	}

	entry := Entry{
		EventID:       eventID,
		EventTypeName: row.EventTypeName,
		State:         State(row.State),
		TimesSent:     row.TimesSent,
		CreationTime:  row.CreationTime,
		Content:       row.Content,
	}
	if txID, err := uuid.Parse(row.TransactionID); err == nil {
		entry.TransactionID = txID
	}
	if resolved, ok := s.reg.EventType(row.EventTypeName); ok {
		if event, err := eventbus.Unmarshal([]byte(row.Content), resolved); err == nil {
			entry.Event = event
		}
	}
	return entry, true, nil
}

// MarkStuckInProgress mirrors PgStore's reaper hook for the bun backing.
func (s *BunStore) MarkStuckInProgress(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := s.db.NewUpdate().
		Model((*integrationEventLogModel)(nil)).
		Set("state = ?", int(PublishedFailed)).
		Where("state = ?", int(InProgress)).
		Where("creationtime < ?", time.Now().UTC().Add(-olderThan)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox: resetting stuck rows: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("outbox: reading rows affected: %w", err)
	}
	return int(affected), nil
}

// CountsByState returns the current row count per State via a single
// GROUP BY query.
func (s *BunStore) CountsByState(ctx context.Context) (map[State]int, error) {
	var results []struct {
		State int `bun:"state"`
		Count int `bun:"count"`
	}
	err := s.db.NewSelect().
		Model((*integrationEventLogModel)(nil)).
		ColumnExpr("state, count(*) AS count").
		Group("state").
		Scan(ctx, &results)
	if err != nil {
		return nil, fmt.Errorf("outbox: counting rows by state: %w", err)
	}

	counts := make(map[State]int, len(results))
	for _, r := range results {
		counts[State(r.State)] = r.Count
	}
	return counts, nil
}

// EnsureSchema creates IntegrationEventLog via bun's model-driven DDL
// if it doesn't already exist, logging rather than failing — same
// best-effort policy as PgStore.EnsureSchema.
func (s *BunStore) EnsureSchema(ctx context.Context, logger *slog.Logger) {
	_, err := s.db.NewCreateTable().Model((*integrationEventLogModel)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("outbox: EnsureSchema failed", "error", err)
	}
}
