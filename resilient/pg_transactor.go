package resilient

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Haleralex/eventbus/internal/pgerrors"
	"github.com/Haleralex/eventbus/outbox"
)

// PgxTransactor runs actions inside one pgx.Tx, retrying the whole
// block when the transaction fails with a connection- or
// serialization-class PostgreSQL error, using the same 2^n backoff
// shape eventbus.Bus's publish retry uses so the module has one
// consistent retry algorithm instead of two.
type PgxTransactor struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

// NewPgxTransactor returns a PgxTransactor bound to pool. maxAttempts
// <= 0 falls back to the same default as the eventbus retry pipeline.
func NewPgxTransactor(pool *pgxpool.Pool, maxAttempts int) *PgxTransactor {
	return &PgxTransactor{pool: pool, maxAttempts: maxAttempts}
}

// Execute implements Transactor.
func (t *PgxTransactor) Execute(ctx context.Context, actions ...Action) error {
	maxAttempts := t.maxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = t.executeOnce(ctx, actions)
		if lastErr == nil {
			return nil
		}
		if !pgerrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		delay := time.Duration(math.Pow(2, float64(attempt))) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("resilient: giving up after %d attempts: %w", maxAttempts, lastErr)
}

func (t *PgxTransactor) executeOnce(ctx context.Context, actions []Action) (err error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("resilient: beginning transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback(ctx)
			panic(r)
		}
	}()
	defer tx.Rollback(ctx) // no-op once Commit has already run

	txCtx := outbox.WithTx(ctx, outbox.TxHandle{ID: uuid.New(), Querier: tx})

	for _, action := range actions {
		if err := action(txCtx); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("resilient: committing transaction: %w", err)
	}
	return nil
}
