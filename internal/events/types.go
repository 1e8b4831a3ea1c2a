// Package events implements the provider-agnostic Event Bus: wire types,
// the EventProvider/Subscription capability interfaces, the schema
// registry, the AEAD encryptor, the dead-letter handler, and the bus
// façade that wires all of them together.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is the immutable envelope published on the bus. JSON field names
// are camelCase for wire compatibility with non-Go consumers.
type Event struct {
	ID        string            `json:"id"`
	Subject   string            `json:"subject"`
	Category  string            `json:"category"`
	EventType string            `json:"eventType"`
	Version   uint32            `json:"version"`
	Payload   any               `json:"payload"`
	Summary   string            `json:"summary"`
	Source    string            `json:"source"`
	Timestamp uint64            `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

// NewEvent builds an untyped event with an auto-generated id and timestamp.
func NewEvent(subject, category, summary, source string, payload any) Event {
	return Event{
		ID:        "evt-" + uuid.NewString(),
		Subject:   subject,
		Category:  category,
		Version:   1,
		Payload:   payload,
		Summary:   summary,
		Source:    source,
		Timestamp: nowMillis(),
		Metadata:  map[string]string{},
	}
}

// TypedEvent builds an event carrying an explicit eventType/version pair,
// consulted by the schema registry during publish.
func TypedEvent(subject, category, eventType string, version uint32, summary, source string, payload any) Event {
	e := NewEvent(subject, category, summary, source, payload)
	e.EventType = eventType
	e.Version = version
	return e
}

// WithMetadata returns e with key=value merged into its metadata map.
func (e Event) WithMetadata(key, value string) Event {
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	e.Metadata[key] = value
	return e
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// EncryptedPayload is the envelope an Encryptor produces. The Encrypted
// marker field is what a Subscription wrapper checks to decide whether a
// payload needs decrypting before being handed to the caller.
type EncryptedPayload struct {
	KeyID      string `json:"keyId"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	Encrypted  bool   `json:"encrypted"`
}

// ReceivedEvent carries provider delivery context alongside the event.
type ReceivedEvent struct {
	Event        Event
	Sequence     uint64
	NumDelivered uint64
	Stream       string
}

// SubscriptionFilter is a durable or ephemeral subject subscription.
type SubscriptionFilter struct {
	SubscriberID string            `json:"subscriberId"`
	Subjects     []string          `json:"subjects"`
	Durable      bool              `json:"durable"`
	Options      *SubscribeOptions `json:"options,omitempty"`
}

// EventCounts groups published event counts per category.
type EventCounts struct {
	Categories map[string]uint64 `json:"categories"`
	Total      uint64            `json:"total"`
}

// DeliverPolicyKind enumerates where a new consumer starts reading from.
type DeliverPolicyKind string

const (
	DeliverAll             DeliverPolicyKind = "all"
	DeliverLast            DeliverPolicyKind = "last"
	DeliverNew             DeliverPolicyKind = "new"
	DeliverByStartSequence DeliverPolicyKind = "byStartSequence"
	DeliverByStartTime     DeliverPolicyKind = "byStartTime"
	DeliverLastPerSubject  DeliverPolicyKind = "lastPerSubject"
)

// DeliverPolicy tags one of the DeliverPolicyKind variants with its payload,
// mirroring the Rust tagged-enum shape (`{"type": "...", ...}`).
type DeliverPolicy struct {
	Type      DeliverPolicyKind `json:"type"`
	Sequence  uint64            `json:"sequence,omitempty"`
	Timestamp uint64            `json:"timestamp,omitempty"`
}

// DefaultDeliverPolicy is DeliverAll, matching the Rust #[default].
func DefaultDeliverPolicy() DeliverPolicy {
	return DeliverPolicy{Type: DeliverAll}
}

// PublishOptions exposes provider-native publish capabilities; zero values
// mean "unset", not "zero".
type PublishOptions struct {
	MsgID             *string `json:"msgId,omitempty"`
	ExpectedSequence  *uint64 `json:"expectedSequence,omitempty"`
	TimeoutSecs       *uint64 `json:"timeoutSecs,omitempty"`
}

// SubscribeOptions exposes provider-native consumer capabilities.
type SubscribeOptions struct {
	MaxDeliver     *int64        `json:"maxDeliver,omitempty"`
	BackoffSecs    []uint64      `json:"backoffSecs,omitempty"`
	MaxAckPending  *int64        `json:"maxAckPending,omitempty"`
	DeliverPolicy  DeliverPolicy `json:"deliverPolicy"`
	AckWaitSecs    *uint64       `json:"ackWaitSecs,omitempty"`
}

// DefaultSubscribeOptions mirrors the Rust Default impl.
func DefaultSubscribeOptions() SubscribeOptions {
	return SubscribeOptions{DeliverPolicy: DefaultDeliverPolicy()}
}
