package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Haleralex/eventbus/eventbus"
)

// pgxExecer is the subset of pgx.Tx / *pgxpool.Pool PgStore needs,
// letting SaveEvent run on whichever one ctx's TxHandle supplies.
type pgxExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PgStore is the direct-SQL outbox backing over jackc/pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
	reg  *eventbus.Registry
}

// NewPgStore returns a PgStore backed by pool, resolving event types
// through reg on retrieval.
func NewPgStore(pool *pgxpool.Pool, reg *eventbus.Registry) *PgStore {
	return &PgStore{pool: pool, reg: reg}
}

func (s *PgStore) SaveEvent(ctx context.Context, event eventbus.Event) error {
	content, err := eventbus.Marshal(event, s.reg)
	if err != nil {
		return fmt.Errorf("outbox: serializing event: %w", err)
	}

	txID := nilTransactionID
	var execer pgxExecer
	if h, ok := TxFromContext(ctx); ok {
		tx, ok := h.Querier.(pgx.Tx)
		if !ok {
			return fmt.Errorf("outbox: TxHandle.Querier is not a pgx.Tx")
		}
		execer = tx
		txID = h.ID
	} else {
		execer = s.pool
	}

	_, err = execer.Exec(ctx, `
		INSERT INTO IntegrationEventLog
			(EventId, EventTypeName, State, TimesSent, CreationTime, Content, TransactionId)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.EventID().String(), eventbus.EventTypeName(event), int(NotPublished), 0,
		event.OccurredAt(), string(content), txID.String(),
	)
	if err != nil {
		return fmt.Errorf("outbox: saving event: %w", err)
	}
	return nil
}

func (s *PgStore) setState(ctx context.Context, eventID uuid.UUID, state State) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE IntegrationEventLog
		SET State = $1,
		    TimesSent = CASE WHEN $1 = $2 THEN TimesSent + 1 ELSE TimesSent END
		WHERE EventId = $3`,
		int(state), int(InProgress), eventID.String(),
	)
	if err != nil {
		return fmt.Errorf("outbox: updating state to %s: %w", state, err)
	}
	return nil
}

func (s *PgStore) MarkInProgress(ctx context.Context, eventID uuid.UUID) error {
	return s.setState(ctx, eventID, InProgress)
}

func (s *PgStore) MarkPublished(ctx context.Context, eventID uuid.UUID) error {
	return s.setState(ctx, eventID, Published)
}

func (s *PgStore) MarkFailed(ctx context.Context, eventID uuid.UUID) error {
	return s.setState(ctx, eventID, PublishedFailed)
}

func (s *PgStore) retrieve(ctx context.Context, state State, txID *uuid.UUID) ([]Entry, error) {
	query := `
		SELECT EventId, EventTypeName, State, TimesSent, CreationTime, Content, TransactionId
		FROM IntegrationEventLog
		WHERE State = $1`
	args := []any{int(state)}
	if txID != nil {
		query += " AND TransactionId = $2"
		args = append(args, txID.String())
	}
	query += " ORDER BY CreationTime ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("outbox: retrieving rows in state %s: %w", state, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			eventIDStr, eventTypeName, content, txIDStr string
			stateVal, timesSent                         int
			creationTime                                time.Time
		)
		if err := rows.Scan(&eventIDStr, &eventTypeName, &stateVal, &timesSent, &creationTime, &content, &txIDStr); err != nil {
			return nil, fmt.Errorf("outbox: scanning row: %w", err)
		}
		entry := Entry{
			EventTypeName: eventTypeName,
			State:         State(stateVal),
			TimesSent:     timesSent,
			CreationTime:  creationTime,
			Content:       content,
		}
		if id, err := uuid.Parse(eventIDStr); err == nil {
			entry.EventID = id
		}
		if id, err := uuid.Parse(txIDStr); err == nil {
			entry.TransactionID = id
		}
		if resolved, ok := s.reg.EventType(eventTypeName); ok {
			if event, err := eventbus.Unmarshal([]byte(content), resolved); err == nil {
				entry.Event = event
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: iterating rows: %w", err)
	}
	return entries, nil
}

func (s *PgStore) RetrievePending(ctx context.Context) ([]Entry, error) {
	return s.retrieve(ctx, NotPublished, nil)
}

func (s *PgStore) RetrievePendingByTx(ctx context.Context, txID uuid.UUID) ([]Entry, error) {
	return s.retrieve(ctx, NotPublished, &txID)
}

func (s *PgStore) RetrieveFailed(ctx context.Context) ([]Entry, error) {
	return s.retrieve(ctx, PublishedFailed, nil)
}

func (s *PgStore) RetrieveFailedByTx(ctx context.Context, txID uuid.UUID) ([]Entry, error) {
	return s.retrieve(ctx, PublishedFailed, &txID)
}

// FindByID returns the row for eventID, if any.
func (s *PgStore) FindByID(ctx context.Context, eventID uuid.UUID) (Entry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT EventId, EventTypeName, State, TimesSent, CreationTime, Content, TransactionId
		FROM IntegrationEventLog
		WHERE EventId = $1`, eventID.String())

	var (
		eventIDStr, eventTypeName, content, txIDStr string
		stateVal, timesSent                         int
		creationTime                                time.Time
	)
	if err := row.Scan(&eventIDStr, &eventTypeName, &stateVal, &timesSent, &creationTime, &content, &txIDStr); err != nil {
		if err == pgx.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("outbox: finding event %s: %w", eventID, err)
	}

	entry := Entry{
		EventID:       eventID,
		EventTypeName: eventTypeName,
		State:         State(stateVal),
		TimesSent:     timesSent,
		CreationTime:  creationTime,
		Content:       content,
	}
	if txID, err := uuid.Parse(txIDStr); err == nil {
		entry.TransactionID = txID
	}
	if resolved, ok := s.reg.EventType(eventTypeName); ok {
		if event, err := eventbus.Unmarshal([]byte(content), resolved); err == nil {
			entry.Event = event
		}
	}
	return entry, true, nil
}

// MarkStuckInProgress transitions InProgress rows whose CreationTime is
// older than olderThan to PublishedFailed, for Reaper to call. This is the same
// state a publish failure leaves a row in, so the republisher's
// RetrieveFailed pass retries it on its next sweep; TimesSent is left
// as-is since no publish attempt was actually made.
func (s *PgStore) MarkStuckInProgress(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE IntegrationEventLog
		SET State = $1
		WHERE State = $2 AND CreationTime < $3`,
		int(PublishedFailed), int(InProgress), time.Now().UTC().Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("outbox: resetting stuck rows: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountsByState returns the current row count per State via a single
// GROUP BY query.
func (s *PgStore) CountsByState(ctx context.Context) (map[State]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT State, COUNT(*) FROM IntegrationEventLog GROUP BY State`)
	if err != nil {
		return nil, fmt.Errorf("outbox: counting rows by state: %w", err)
	}
	defer rows.Close()

	counts := make(map[State]int)
	for rows.Next() {
		var stateVal, count int
		if err := rows.Scan(&stateVal, &count); err != nil {
			return nil, fmt.Errorf("outbox: scanning state count: %w", err)
		}
		counts[State(stateVal)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: iterating state counts: %w", err)
	}
	return counts, nil
}

// EnsureSchema creates IntegrationEventLog if it doesn't already
// exist. Best-effort per §7's PersistenceError policy for
// table-creation helpers: callers normally run the golang-migrate
// migrations instead (see cmd/migrate), but this helper lets a
// component using PgStore standalone (e.g. a test) get a usable table
// without wiring migrate in.
func (s *PgStore) EnsureSchema(ctx context.Context) {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS IntegrationEventLog (
			EventId         VARCHAR(36) PRIMARY KEY,
			EventTypeName   VARCHAR(255) NOT NULL,
			State           INT          NOT NULL,
			TimesSent       INT          NOT NULL,
			CreationTime    TIMESTAMP    NOT NULL,
			Content         TEXT         NOT NULL,
			TransactionId   VARCHAR(36)  NOT NULL
		)`)
	if err != nil {
		fmt.Printf("outbox: EnsureSchema: %v\n", err)
	}
}
