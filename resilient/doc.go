// Package resilient provides a transaction helper that bundles a
// series of actions into one database transaction. PgxTransactor
// retries the whole block when the underlying error is a transient,
// connection- or serialization-class failure, using the same
// exponential backoff shape the eventbus retry pipeline uses for
// publishes; BunTransactor runs the block once and does not retry.
//
// Actions must be idempotent at the block level: a retried attempt
// re-runs every action from the start, not just the one that failed.
package resilient
