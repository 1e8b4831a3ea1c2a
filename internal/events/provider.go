package events

import "context"

// ProviderInfo summarizes a provider's current backing-stream state.
type ProviderInfo struct {
	Provider  string
	Messages  uint64
	Bytes     uint64
	Consumers uint64
}

// AckFunc/NakFunc are the manual-ack continuations handed out by
// Subscription.NextManualAck. Exactly one of Ack/Nak should be invoked per
// PendingEvent.
type AckFunc func(ctx context.Context) error
type NakFunc func(ctx context.Context) error

// PendingEvent is a delivered event awaiting an ack/nak decision from the
// caller, used by consumers that need at-least-once redelivery semantics
// instead of provider-side auto-ack.
type PendingEvent struct {
	Received ReceivedEvent
	Ack      AckFunc
	Nak      NakFunc
}

// Subscription yields events from a provider, either auto-acked (Next) or
// with an explicit ack/nak continuation (NextManualAck).
type Subscription interface {
	// Next blocks until the next event is available (auto-acked on
	// return), ctx is cancelled, or the subscription is closed.
	Next(ctx context.Context) (ReceivedEvent, error)
	// NextManualAck is like Next but defers acking to the caller.
	NextManualAck(ctx context.Context) (PendingEvent, error)
	// Close releases the subscription's resources.
	Close() error
}

// EventProvider is the capability boundary every transport backend
// satisfies. Implementations never panic — all failures surface as
// *errs.Error with one of the Kind values in package errs.
type EventProvider interface {
	Name() string

	Publish(ctx context.Context, event Event) (uint64, error)
	PublishWithOptions(ctx context.Context, event Event, opts PublishOptions) (uint64, error)

	Subscribe(ctx context.Context, filterSubject string) (Subscription, error)
	SubscribeDurable(ctx context.Context, consumerName, filterSubject string) (Subscription, error)
	SubscribeDurableWithOptions(ctx context.Context, consumerName, filterSubject string, opts SubscribeOptions) (Subscription, error)

	History(ctx context.Context, filterSubject string, limit int) ([]Event, error)
	Unsubscribe(ctx context.Context, consumerName string) error

	Info(ctx context.Context) (ProviderInfo, error)
	Health(ctx context.Context) bool

	BuildSubject(category, topic string) string
	CategorySubject(category string) string
}

// BuildSubject implements the shared "events.<category>.<topic>" convention;
// embed Base (or call this directly) so every provider agrees.
func BuildSubject(category, topic string) string {
	return "events." + category + "." + topic
}

// CategorySubject implements the shared trailing-wildcard convention.
func CategorySubject(category string) string {
	return "events." + category + ".>"
}
