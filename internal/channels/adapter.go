package channels

import (
	"context"
	"sync/atomic"
)

// Adapter is the inbound/outbound channel contract every integration
// (Slack, Feishu, DingTalk, WeCom, Discord, Telegram) implements.
type Adapter interface {
	Name() string
	Start(ctx context.Context, eventTx chan<- InboundMessage) error
	Stop(ctx context.Context) error
	SendMessage(ctx context.Context, msg OutboundMessage) (messageID string, err error)
	SendTyping(ctx context.Context, chatID string) error
	EditMessage(ctx context.Context, chatID, messageID, content string) error
	EditMessageCard(ctx context.Context, chatID, messageID string, card Card) error
	DeleteMessage(ctx context.Context, chatID, messageID string) error
	IsConnected() bool
	Auth() ChannelAuth // nil for channels with no webhook-signing scheme
}

// Base gives adapters a default EditMessageCard degrading to EditMessage,
// a connected flag, and the embedding pattern used across this module
// (events.Base, tee.Runtime) for default-method emulation.
type Base struct {
	Self      Adapter
	connected atomic.Bool
}

func (b *Base) SetConnected(v bool) {
	b.connected.Store(v)
}

func (b *Base) IsConnected() bool {
	return b.connected.Load()
}

// EditMessageCard is the default: serialize the card as plain text and
// degrade to EditMessage, exactly as spec §6 specifies for adapters with
// no native card-editing surface.
func (b *Base) EditMessageCard(ctx context.Context, chatID, messageID string, card Card) error {
	return b.Self.EditMessage(ctx, chatID, messageID, renderCardAsText(card))
}

func renderCardAsText(card Card) string {
	text := card.Title
	if card.Body != "" {
		text += "\n" + card.Body
	}
	for _, btn := range card.Buttons {
		text += "\n[" + btn.Label + "]"
	}
	return text
}
