package outbox

import (
	"time"

	"github.com/google/uuid"

	"github.com/Haleralex/eventbus/eventbus"
)

// State is the outbox row's lifecycle state. Numeric values must stay
// exactly as declared: they're persisted to IntegrationEventLog.State
// and existing rows depend on this encoding for on-disk compatibility.
type State int

const (
	NotPublished    State = 0
	InProgress      State = 1
	Published       State = 2
	PublishedFailed State = 3
)

// String implements fmt.Stringer for logging.
func (s State) String() string {
	switch s {
	case NotPublished:
		return "NotPublished"
	case InProgress:
		return "InProgress"
	case Published:
		return "Published"
	case PublishedFailed:
		return "PublishedFailed"
	default:
		return "Unknown"
	}
}

// Entry is one IntegrationEventLog row. Event holds the deserialized
// payload when EventTypeName resolved against the registry; it's nil
// when the row's type isn't registered in this process (operational
// surface — the republisher logs and skips such rows).
type Entry struct {
	EventID       uuid.UUID
	EventTypeName string
	State         State
	TimesSent     int
	CreationTime  time.Time
	Content       string
	TransactionID uuid.UUID
	Event         eventbus.Event
}

// nilTransactionID is written for rows saved outside of an explicit
// resilient-transaction context, matching the spec's "transactionId :=
// nil-UUID" default for saveEvent(event) without a tx argument.
var nilTransactionID uuid.UUID
