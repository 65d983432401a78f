// Package outbox implements the transactional outbox pattern for
// integration events: persisting an event row in the same database
// transaction as the application state change that produced it, then
// letting a separate republisher move rows through NotPublished →
// InProgress → Published/PublishedFailed as it hands them to the
// broker.
//
// Two interchangeable backings share the same Store contract: PgStore
// (direct SQL over jackc/pgx) and BunStore (uptrace/bun). Event
// payloads are (de)serialized using the same eventbus.Registry the bus
// itself uses, so an event type's JSON shape and short name are
// defined exactly once.
package outbox
