// Package eventbus implements a reusable integration-event publish/consume
// engine over RabbitMQ: connection lifecycle, exchange/queue/binding
// topology, per-publish retry with exponential backoff, JSON
// (de)serialization keyed by logical event names, and trace-context
// propagation through message headers.
//
// Application code registers event types and handlers once at startup
// (see Registry), then publishes through a Bus. Durable delivery across
// process crashes is not this package's job — see the outbox package.
package eventbus
