package eventbus

import "errors"

// Sentinel errors for the taxonomy in spec §7. Wrap with fmt.Errorf's
// %w at each call site; check with errors.Is/errors.As, never string
// matching.
var (
	// ErrBrokerUnreachable is returned when connection establishment or
	// channel creation fails (TCP errors, broker down). Retried by the
	// retry pipeline; surfaced to the caller only on exhaustion.
	ErrBrokerUnreachable = errors.New("eventbus: broker unreachable")

	// ErrNotConnected is returned when a publish is attempted with no
	// open connection. Never retried.
	ErrNotConnected = errors.New("eventbus: not connected to broker")

	// ErrMalformedPayload is returned when a consumed message body is
	// not valid JSON for the resolved event type.
	ErrMalformedPayload = errors.New("eventbus: malformed payload")

	// ErrUnknownEventType names the case where a consumed message's
	// routing key has no registered event type. The consumer does not
	// return it: such deliveries are logged and acked.
	ErrUnknownEventType = errors.New("eventbus: unknown event type")

	// ErrHandlerError wraps an error returned by a registered handler.
	ErrHandlerError = errors.New("eventbus: handler error")

	// ErrConfig is returned synchronously at construction when required
	// configuration is missing or invalid.
	ErrConfig = errors.New("eventbus: invalid configuration")
)

// isTransientBrokerError reports whether err is one of the "transient
// broker/network failure" kinds the retry pipeline (§4.D) retries.
// Everything else — MalformedPayload, UnknownEventType, programmer
// errors — is not retried and propagates on the first attempt.
func isTransientBrokerError(err error) bool {
	return errors.Is(err, ErrBrokerUnreachable)
}
