package resilient

import "context"

// Action is one unit of work run inside a resilient transaction. It
// must be safe to re-run from scratch: Transactor.Execute may invoke
// the whole action list more than once if the underlying transaction
// fails with a retryable error.
type Action func(ctx context.Context) error

// Transactor runs a list of actions in one database transaction,
// rolling back and returning the error on any action's failure,
// committing on success. Implementations may retry the entire
// Execute call when the failure is a transient, connection- or
// serialization-class database error.
type Transactor interface {
	Execute(ctx context.Context, actions ...Action) error
}
