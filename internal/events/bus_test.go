package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/safeclaw-gateway/internal/events"
	"github.com/arc-self/safeclaw-gateway/internal/events/memoryprovider"
)

func newTestBus(t *testing.T, schema events.SchemaRegistry, enc events.Encryptor) *events.Bus {
	t.Helper()
	bus, err := events.NewBus(context.Background(), memoryprovider.New(), schema, enc, nil, nil, zap.NewNop())
	require.NoError(t, err)
	return bus
}

func TestBusPublishRejectsPayloadMissingRequiredField(t *testing.T) {
	schema := events.NewMemorySchemaRegistry()
	require.NoError(t, schema.Register(events.EventSchema{
		EventType:      "order.filled",
		Version:        1,
		RequiredFields: []string{"orderId"},
	}))
	bus := newTestBus(t, schema, nil)

	ev := events.TypedEvent("events.test.x", "test", "order.filled", 1, "s", "src", map[string]any{"quantity": 1})
	_, err := bus.Publish(context.Background(), ev)
	require.Error(t, err)
}

func TestBusPublishAllowsPayloadWithRequiredField(t *testing.T) {
	schema := events.NewMemorySchemaRegistry()
	require.NoError(t, schema.Register(events.EventSchema{
		EventType:      "order.filled",
		Version:        1,
		RequiredFields: []string{"orderId"},
	}))
	bus := newTestBus(t, schema, nil)

	ev := events.TypedEvent("events.test.x", "test", "order.filled", 1, "s", "src", map[string]any{"orderId": "o-1"})
	_, err := bus.Publish(context.Background(), ev)
	require.NoError(t, err)
}

func TestBusPublishSubscribeRoundTripsWithoutEncryption(t *testing.T) {
	bus := newTestBus(t, nil, nil)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, events.SubscriptionFilter{SubscriberID: "s1", Subjects: []string{"events.test.>"}})
	require.NoError(t, err)
	defer sub.Close()

	_, err = bus.Publish(ctx, events.NewEvent("events.test.x", "test", "summary", "src", "plaintext"))
	require.NoError(t, err)

	cctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	re, err := sub.Next(cctx)
	require.NoError(t, err)
	assert.Equal(t, "plaintext", re.Event.Payload)
}

// With the in-memory provider, an EncryptedPayload envelope never crosses a
// wire encoding: the provider stores and delivers the typed struct rather
// than a JSON-decoded map. The subscription still recognises and decrypts
// it, while the stored copy stays encrypted.
func TestBusPublishSubscribeDecryptsEnvelopeOverMemoryProvider(t *testing.T) {
	enc := events.NewAESGCMEncryptor()
	var key [32]byte
	require.NoError(t, enc.AddKey("k1", key))

	bus := newTestBus(t, nil, enc)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, events.SubscriptionFilter{SubscriberID: "s1", Subjects: []string{"events.test.>"}})
	require.NoError(t, err)
	defer sub.Close()

	_, err = bus.Publish(ctx, events.NewEvent("events.test.x", "test", "summary", "src", "secret-payload"))
	require.NoError(t, err)

	cctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	re, err := sub.Next(cctx)
	require.NoError(t, err)
	assert.Equal(t, "secret-payload", re.Event.Payload)

	stored, err := bus.History(ctx, "events.test.>", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	envelope, ok := stored[0].Payload.(events.EncryptedPayload)
	require.True(t, ok, "stored payload should remain the encrypted envelope struct")
	assert.True(t, envelope.Encrypted)

	plaintext, err := enc.Decrypt(envelope)
	require.NoError(t, err)
	assert.Equal(t, "secret-payload", plaintext)
}

func TestIsEncryptedEnvelopeDetectsWireRoundTrippedMap(t *testing.T) {
	enc := events.NewAESGCMEncryptor()
	var key [32]byte
	require.NoError(t, enc.AddKey("k1", key))

	envelope, err := enc.Encrypt("secret-payload")
	require.NoError(t, err)

	// Simulate what a real JSON-wire provider delivers: the envelope
	// decoded back into a generic map, not the typed struct.
	asMap := map[string]any{
		"keyId":      envelope.KeyID,
		"nonce":      envelope.Nonce,
		"ciphertext": envelope.Ciphertext,
		"encrypted":  envelope.Encrypted,
	}

	got, ok := events.IsEncryptedEnvelope(asMap)
	require.True(t, ok)
	plaintext, err := enc.Decrypt(got)
	require.NoError(t, err)
	assert.Equal(t, "secret-payload", plaintext)
}

func TestBusUnsubscribeRemovesFilter(t *testing.T) {
	bus := newTestBus(t, nil, nil)
	ctx := context.Background()

	_, err := bus.Subscribe(ctx, events.SubscriptionFilter{SubscriberID: "s1", Subjects: []string{"events.test.>"}})
	require.NoError(t, err)

	require.NoError(t, bus.Unsubscribe(ctx, "s1"))
}

func TestBusRouteToDlqIsBestEffort(t *testing.T) {
	bus := newTestBus(t, nil, nil)
	bus.RouteToDlq(context.Background(), events.DeadLetterEvent{
		Event:  events.ReceivedEvent{Event: events.NewEvent("events.test.x", "test", "s", "src", nil)},
		Reason: "redelivery budget exhausted",
	})
}

func TestBusHealthReflectsProvider(t *testing.T) {
	bus := newTestBus(t, nil, nil)
	assert.True(t, bus.Health(context.Background()))
}
