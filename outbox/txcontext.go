package outbox

import (
	"context"

	"github.com/google/uuid"
)

type txContextKey struct{}

// TxHandle carries the ambient transaction a Store operation should
// run on, plus the transaction's identity for the outbox row's
// TransactionID column. Querier is backing-specific (pgx.Tx for
// PgStore, bun.Tx for BunStore) and is recovered with a type
// assertion inside each store — this package never imports both
// driver packages' transaction types into one shared interface,
// matching how the teacher's injectTx/extractTx helpers keep the
// transaction type private to the postgres adapter package.
type TxHandle struct {
	ID      uuid.UUID
	Querier any
}

// WithTx returns a context carrying handle, for SaveEvent (and the
// resilient transactors) to pick up.
func WithTx(ctx context.Context, handle TxHandle) context.Context {
	return context.WithValue(ctx, txContextKey{}, handle)
}

// TxFromContext recovers the TxHandle stashed by WithTx, if any.
func TxFromContext(ctx context.Context) (TxHandle, bool) {
	h, ok := ctx.Value(txContextKey{}).(TxHandle)
	return h, ok
}
