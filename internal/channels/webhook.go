package channels

import (
	"container/list"
	"sync"
	"time"
)

const dedupCapacity = 256

// Deduplicator is a bounded recently-seen-ID set, used to drop webhook
// retries (providers redeliver on timeout). Capacity 256 per channel,
// oldest entries evicted first.
type Deduplicator struct {
	mu       sync.Mutex
	order    *list.List
	elements map[string]*list.Element
	capacity int
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		order:    list.New(),
		elements: make(map[string]*list.Element),
		capacity: dedupCapacity,
	}
}

// SeenBefore reports whether id was already recorded, and records it if not.
func (d *Deduplicator) SeenBefore(id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.elements[id]; ok {
		return true
	}
	if d.order.Len() >= d.capacity {
		oldest := d.order.Back()
		if oldest != nil {
			d.order.Remove(oldest)
			delete(d.elements, oldest.Value.(string))
		}
	}
	d.elements[id] = d.order.PushFront(id)
	return false
}

// RawEvent is the channel-agnostic shape a webhook body is decoded into
// before ParseWebhook classifies it. Adapters populate whichever fields
// their platform's payload carries; the rest stay zero.
type RawEvent struct {
	IsURLVerification bool
	Challenge         string

	IsCardAction bool
	CardAction   CardActionEvent

	MessageID string
	SenderID  string
	IsBot     bool // sender is the bot itself (self-message loop guard)
	ChannelID string
	ChatID    string
	Content   string
	Timestamp time.Time
}

// ParseWebhook classifies a decoded webhook payload per spec §4.10: a
// provider's handshake challenge, a card-button click, a user message, or
// one of the five Ignored causes (dedup, non-message event, bot
// self-message, unauthorized user, empty content).
func ParseWebhook(ev RawEvent, dedup *Deduplicator, allowedUsers []string) ParseResult {
	if ev.IsURLVerification {
		return ParseResult{Outcome: OutcomeChallenge, Challenge: ev.Challenge}
	}

	if ev.IsCardAction {
		if dedup != nil && ev.CardAction.MessageID != "" && dedup.SeenBefore("card:"+ev.CardAction.MessageID+":"+ev.CardAction.UserID+":"+ev.CardAction.Action) {
			return ParseResult{Outcome: OutcomeIgnored, IgnoredReason: "duplicate delivery"}
		}
		if !userAllowed(ev.CardAction.UserID, allowedUsers) {
			return ParseResult{Outcome: OutcomeIgnored, IgnoredReason: "unauthorized user"}
		}
		action := ev.CardAction
		return ParseResult{Outcome: OutcomeCardAction, CardEvent: &action}
	}

	if ev.IsBot {
		return ParseResult{Outcome: OutcomeIgnored, IgnoredReason: "bot self-message"}
	}

	if ev.MessageID == "" && ev.Content == "" && ev.SenderID == "" {
		return ParseResult{Outcome: OutcomeIgnored, IgnoredReason: "non-message event"}
	}

	if dedup != nil && ev.MessageID != "" && dedup.SeenBefore(ev.MessageID) {
		return ParseResult{Outcome: OutcomeIgnored, IgnoredReason: "duplicate delivery"}
	}

	if !userAllowed(ev.SenderID, allowedUsers) {
		return ParseResult{Outcome: OutcomeIgnored, IgnoredReason: "unauthorized user"}
	}

	if ev.Content == "" {
		return ParseResult{Outcome: OutcomeIgnored, IgnoredReason: "empty content"}
	}

	msg := &InboundMessage{
		SenderID:  ev.SenderID,
		ChannelID: ev.ChannelID,
		ChatID:    ev.ChatID,
		Content:   ev.Content,
		Timestamp: ev.Timestamp,
	}
	return ParseResult{Outcome: OutcomeMessage, Message: msg}
}

func userAllowed(userID string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, u := range allowed {
		if u == userID {
			return true
		}
	}
	return false
}
