package channels

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	Base
	lastChatID, lastMessageID, lastContent string
}

func (f *fakeAdapter) Name() string { return "fake" }
func (f *fakeAdapter) Start(ctx context.Context, eventTx chan<- InboundMessage) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                                { return nil }
func (f *fakeAdapter) SendMessage(ctx context.Context, msg OutboundMessage) (string, error) {
	return "msg-1", nil
}
func (f *fakeAdapter) SendTyping(ctx context.Context, chatID string) error { return nil }
func (f *fakeAdapter) EditMessage(ctx context.Context, chatID, messageID, content string) error {
	f.lastChatID, f.lastMessageID, f.lastContent = chatID, messageID, content
	return nil
}
func (f *fakeAdapter) DeleteMessage(ctx context.Context, chatID, messageID string) error { return nil }
func (f *fakeAdapter) Auth() ChannelAuth                                                 { return nil }

func TestBaseEditMessageCardDegradesToEditMessage(t *testing.T) {
	f := &fakeAdapter{}
	f.Self = f

	card := Card{
		Title:   "Authorize disclosure?",
		Body:    "This will reveal a phone number.",
		Buttons: []CardButton{{Label: "Approve", Action: "approve"}, {Label: "Deny", Action: "deny"}},
	}
	err := f.EditMessageCard(context.Background(), "chat-1", "msg-1", card)
	require.NoError(t, err)

	assert.Equal(t, "chat-1", f.lastChatID)
	assert.Equal(t, "msg-1", f.lastMessageID)
	assert.Contains(t, f.lastContent, "Authorize disclosure?")
	assert.Contains(t, f.lastContent, "[Approve]")
	assert.Contains(t, f.lastContent, "[Deny]")
}

func TestBaseConnectedFlag(t *testing.T) {
	var b Base
	assert.False(t, b.IsConnected())
	b.SetConnected(true)
	assert.True(t, b.IsConnected())
}
