package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Bus is the provider-agnostic façade spec §4.2 describes: schema
// validation and encryption gate the publish path, the filter map +
// StateStore gate the subscribe path, and a DlqHandler receives events a
// subscription's redelivery budget has exhausted.
type Bus struct {
	provider  EventProvider
	schema    SchemaRegistry
	encryptor Encryptor // may be nil — encryption is opt-in
	dlq       DlqHandler
	store     StateStore // may be nil — filters stay in-memory only
	log       *zap.Logger

	mu      sync.RWMutex
	filters map[string]SubscriptionFilter
}

// NewBus wires a provider with the cross-cutting policies. schema/encryptor
// may be nil to disable that gate; dlq defaults to a bounded in-memory
// handler when nil.
func NewBus(ctx context.Context, provider EventProvider, schema SchemaRegistry, encryptor Encryptor, dlq DlqHandler, store StateStore, log *zap.Logger) (*Bus, error) {
	if dlq == nil {
		dlq = NewMemoryDlqHandler(0, log)
	}
	b := &Bus{
		provider:  provider,
		schema:    schema,
		encryptor: encryptor,
		dlq:       dlq,
		store:     store,
		log:       log,
		filters:   make(map[string]SubscriptionFilter),
	}

	if store != nil {
		filters, err := store.LoadFilters(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range filters {
			b.filters[f.SubscriberID] = f
			if _, err := b.resubscribe(ctx, f); err != nil {
				log.Warn("failed to re-subscribe persisted filter", zap.String("subscriber_id", f.SubscriberID), zap.Error(err))
			}
		}
	}
	return b, nil
}

func (b *Bus) resubscribe(ctx context.Context, f SubscriptionFilter) (Subscription, error) {
	opts := DefaultSubscribeOptions()
	if f.Options != nil {
		opts = *f.Options
	}
	// A filter may list multiple subjects; the provider subscribes on the
	// first — callers needing per-subject fan-out register one filter per
	// subject, matching the subject-is-a-filter-pattern convention.
	subject := ""
	if len(f.Subjects) > 0 {
		subject = f.Subjects[0]
	}
	if f.Durable {
		return b.provider.SubscribeDurableWithOptions(ctx, f.SubscriberID, subject, opts)
	}
	return b.provider.Subscribe(ctx, subject)
}

// Publish validates against the schema registry, encrypts if an encryptor
// is attached, then delegates to the provider. Schema failure never
// reaches the provider.
func (b *Bus) Publish(ctx context.Context, event Event) (uint64, error) {
	return b.PublishWithOptions(ctx, event, PublishOptions{})
}

func (b *Bus) PublishWithOptions(ctx context.Context, event Event, opts PublishOptions) (uint64, error) {
	if b.schema != nil {
		if err := b.schema.Validate(event); err != nil {
			return 0, err
		}
	}
	if b.encryptor != nil {
		envelope, err := b.encryptor.Encrypt(event.Payload)
		if err != nil {
			return 0, err
		}
		event.Payload = envelope
	}
	return b.provider.PublishWithOptions(ctx, event, opts)
}

// Subscribe registers filter in the in-memory map (and, if durable,
// persists it) then returns a Subscription wrapping the provider's own,
// transparently decrypting envelopes whose keyId resolves.
func (b *Bus) Subscribe(ctx context.Context, filter SubscriptionFilter) (Subscription, error) {
	b.mu.Lock()
	b.filters[filter.SubscriberID] = filter
	b.mu.Unlock()

	if filter.Durable && b.store != nil {
		b.mu.RLock()
		all := make([]SubscriptionFilter, 0, len(b.filters))
		for _, f := range b.filters {
			if f.Durable {
				all = append(all, f)
			}
		}
		b.mu.RUnlock()
		if err := b.store.SaveFilters(ctx, all); err != nil {
			return nil, err
		}
	}

	inner, err := b.resubscribe(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &decryptingSubscription{inner: inner, encryptor: b.encryptor}, nil
}

// RouteToDlq hands dead to the configured DlqHandler; errors are logged, never
// propagated — DLQ routing is always best-effort.
func (b *Bus) RouteToDlq(ctx context.Context, dead DeadLetterEvent) {
	if err := b.dlq.Handle(ctx, dead); err != nil {
		b.log.Error("dlq handler failed", zap.Error(err))
	}
}

func (b *Bus) Unsubscribe(ctx context.Context, subscriberID string) error {
	b.mu.Lock()
	delete(b.filters, subscriberID)
	b.mu.Unlock()
	return b.provider.Unsubscribe(ctx, subscriberID)
}

func (b *Bus) History(ctx context.Context, filterSubject string, limit int) ([]Event, error) {
	return b.provider.History(ctx, filterSubject, limit)
}

func (b *Bus) Info(ctx context.Context) (ProviderInfo, error) { return b.provider.Info(ctx) }
func (b *Bus) Health(ctx context.Context) bool                { return b.provider.Health(ctx) }

// decryptingSubscription transparently decrypts envelopes whose "encrypted"
// marker is set and whose keyId resolves; payloads that aren't envelopes,
// or whose key doesn't resolve, pass through unchanged.
type decryptingSubscription struct {
	inner     Subscription
	encryptor Encryptor
}

func (s *decryptingSubscription) Next(ctx context.Context) (ReceivedEvent, error) {
	re, err := s.inner.Next(ctx)
	if err != nil {
		return ReceivedEvent{}, err
	}
	s.decrypt(&re)
	return re, nil
}

func (s *decryptingSubscription) NextManualAck(ctx context.Context) (PendingEvent, error) {
	pe, err := s.inner.NextManualAck(ctx)
	if err != nil {
		return PendingEvent{}, err
	}
	s.decrypt(&pe.Received)
	return pe, nil
}

func (s *decryptingSubscription) decrypt(re *ReceivedEvent) {
	if s.encryptor == nil {
		return
	}
	envelope, ok := IsEncryptedEnvelope(re.Event.Payload)
	if !ok {
		return
	}
	plaintext, err := s.encryptor.Decrypt(envelope)
	if err != nil {
		return // leave the envelope in place; caller sees Encrypted:true and can react
	}
	re.Event.Payload = plaintext
}

func (s *decryptingSubscription) Close() error { return s.inner.Close() }
