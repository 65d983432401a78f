package resilient

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/Haleralex/eventbus/outbox"
)

// BunTransactor runs actions once inside bun.DB.RunInTx, threading an
// outbox.TxHandle through context the way PgxTransactor does. It does
// not retry: a failed block is rolled back and its error returned,
// whatever the error's class.
type BunTransactor struct {
	db *bun.DB
}

// NewBunTransactor returns a BunTransactor bound to db.
func NewBunTransactor(db *bun.DB) *BunTransactor {
	return &BunTransactor{db: db}
}

// Execute implements Transactor.
func (t *BunTransactor) Execute(ctx context.Context, actions ...Action) error {
	err := t.db.RunInTx(ctx, &sql.TxOptions{}, func(txCtx context.Context, tx bun.Tx) error {
		txCtx = outbox.WithTx(txCtx, outbox.TxHandle{ID: uuid.New(), Querier: tx})
		for _, action := range actions {
			if err := action(txCtx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("resilient: transaction failed: %w", err)
	}
	return nil
}
