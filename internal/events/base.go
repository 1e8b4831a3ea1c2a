package events

import "context"

// Base gives concrete providers the same default method bodies the
// original provider trait supplies (publish_with_options delegating to
// publish, etc.). Providers embed *Base and only override what they need;
// embedding lets a provider's own method of the same name shadow this one.
type Base struct {
	Self EventProvider
}

// PublishWithOptions by default ignores opts and delegates to Publish.
// NATS-backed providers override this to honor MsgID/ExpectedSequence.
func (b *Base) PublishWithOptions(ctx context.Context, event Event, _ PublishOptions) (uint64, error) {
	return b.Self.Publish(ctx, event)
}

// SubscribeDurableWithOptions by default ignores opts and delegates to
// SubscribeDurable.
func (b *Base) SubscribeDurableWithOptions(ctx context.Context, consumerName, filterSubject string, _ SubscribeOptions) (Subscription, error) {
	return b.Self.SubscribeDurable(ctx, consumerName, filterSubject)
}

// Health by default reports whether Info succeeds.
func (b *Base) Health(ctx context.Context) bool {
	_, err := b.Self.Info(ctx)
	return err == nil
}

// BuildSubject/CategorySubject are identical across providers.
func (b *Base) BuildSubject(category, topic string) string  { return BuildSubject(category, topic) }
func (b *Base) CategorySubject(category string) string       { return CategorySubject(category) }
