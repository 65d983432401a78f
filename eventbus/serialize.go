package eventbus

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// SerializerOptions controls how events are marshaled onto the wire.
// It's process-wide (one instance per Registry) rather than per-call,
// matching how the registry's other startup-once settings work.
type SerializerOptions struct {
	// Indent, when non-empty, is passed to json.MarshalIndent as the
	// per-level indent string. Empty (the default) produces compact
	// JSON, which is what production publishers want; a non-empty
	// value is mainly useful for local debugging of captured payloads.
	Indent string
}

// DefaultSerializerOptions returns compact-JSON options.
func DefaultSerializerOptions() *SerializerOptions {
	return &SerializerOptions{}
}

// serialize encodes event as JSON using its runtime subtype. Since
// event is always a concrete struct value (or pointer to one)
// satisfying the Event interface, encoding/json already marshals the
// dynamic type's fields — including anything the concrete subtype adds
// beyond the embedded IntegrationEvent — so no registry lookup is
// needed on the write path.
func serialize(event Event, opts *SerializerOptions) ([]byte, error) {
	if opts != nil && opts.Indent != "" {
		return json.MarshalIndent(event, "", opts.Indent)
	}
	return json.Marshal(event)
}

// Marshal is the exported form of serialize, for the outbox package
// (and any other module-external caller) to encode an event with the
// same options the bus itself uses.
func Marshal(event Event, reg *Registry) ([]byte, error) {
	return serialize(event, reg.Options())
}

// Unmarshal is the exported form of deserialize, decoding data into a
// new value of eventType (already resolved by the caller, e.g. through
// Registry.EventType).
func Unmarshal(data []byte, eventType reflect.Type) (Event, error) {
	return deserialize(data, eventType)
}

// deserialize decodes data into a new value of eventType, returning it
// as an Event. eventType must be a struct type registered via
// RegisterSubscription, so that the returned pointer promotes
// IntegrationEvent's methods and satisfies Event.
//
// encoding/json matches object keys to struct fields case-insensitively
// when no exact match exists, which already gives deserialize the
// case-insensitive property matching the wire format requires without
// any extra bookkeeping here.
func deserialize(data []byte, eventType reflect.Type) (Event, error) {
	ptr := reflect.New(eventType)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	event, ok := ptr.Interface().(Event)
	if !ok {
		return nil, fmt.Errorf("eventbus: type %s does not embed IntegrationEvent", eventType)
	}
	return event, nil
}
