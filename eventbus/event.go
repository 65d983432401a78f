package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// IntegrationEvent is the base shape every integration event carries.
// Embed it in concrete event subtypes; NewIntegrationEvent assigns the
// id and creation timestamp once, at construction, and both survive
// serialization round-trips unchanged.
type IntegrationEvent struct {
	ID           uuid.UUID `json:"id"`
	CreationDate time.Time `json:"creationDate"`
}

// NewIntegrationEvent returns a base event with a fresh UUID and the
// current UTC time. Concrete event constructors should embed the
// result rather than building IntegrationEvent by hand.
func NewIntegrationEvent() IntegrationEvent {
	return IntegrationEvent{
		ID:           uuid.New(),
		CreationDate: time.Now().UTC(),
	}
}

// Event is satisfied by any type embedding IntegrationEvent. It's the
// minimal contract the bus, the registry, and the outbox need: an
// identity and a routing/lookup key. Concrete event structs satisfy it
// automatically through the embedded IntegrationEvent plus the
// type-name lookup the registry performs via reflection at
// registration time — Event itself never needs a type switch.
type Event interface {
	EventID() uuid.UUID
	OccurredAt() time.Time
}

// EventID implements Event.
func (e IntegrationEvent) EventID() uuid.UUID { return e.ID }

// OccurredAt implements Event.
func (e IntegrationEvent) OccurredAt() time.Time { return e.CreationDate }
