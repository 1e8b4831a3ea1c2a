package orchestrator

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/safeclaw-gateway/internal/audit"
	"github.com/arc-self/safeclaw-gateway/internal/channels"
	"github.com/arc-self/safeclaw-gateway/internal/privacy"
)

type recordingAdapter struct {
	mu      sync.Mutex
	sent    []channels.OutboundMessage
	edits   []string
	cards   []channels.Card
	nextID  int
	deleted bool
}

func (a *recordingAdapter) Name() string { return "fake" }
func (a *recordingAdapter) Start(context.Context, chan<- channels.InboundMessage) error { return nil }
func (a *recordingAdapter) Stop(context.Context) error { return nil }

func (a *recordingAdapter) SendMessage(_ context.Context, msg channels.OutboundMessage) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	a.sent = append(a.sent, msg)
	return "msg-" + strconv.Itoa(a.nextID), nil
}

func (a *recordingAdapter) SendTyping(context.Context, string) error { return nil }

func (a *recordingAdapter) EditMessage(_ context.Context, _, _, content string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.edits = append(a.edits, content)
	return nil
}

func (a *recordingAdapter) EditMessageCard(_ context.Context, _, _ string, card channels.Card) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cards = append(a.cards, card)
	return nil
}

func (a *recordingAdapter) DeleteMessage(context.Context, string, string) error {
	a.deleted = true
	return nil
}

func (a *recordingAdapter) IsConnected() bool    { return true }
func (a *recordingAdapter) Auth() channels.ChannelAuth { return nil }

func TestProcessMessageStreamingPlainPathStreamsDeltas(t *testing.T) {
	p, _ := testProcessor(t, false)
	p.SetAgentEngine(&echoEngine{events: []AgentEvent{
		{Delta: "hel"}, {Delta: "lo"}, {Done: true},
	}})
	adapter := &recordingAdapter{}

	err := p.ProcessMessageStreaming(context.Background(), adapter, channels.InboundMessage{
		SenderID: "u1", ChannelID: "telegram", ChatID: "c1", Content: "hi",
	})
	require.NoError(t, err)
	require.NotEmpty(t, adapter.edits)
	assert.Equal(t, "hello", adapter.edits[len(adapter.edits)-1])
}

func TestProcessMessageStreamingSensitiveSendsAuthorizationCard(t *testing.T) {
	p, _ := testProcessor(t, true)
	p.SetAgentEngine(&echoEngine{})
	adapter := &recordingAdapter{}

	err := p.ProcessMessageStreaming(context.Background(), adapter, channels.InboundMessage{
		SenderID: "u1", ChannelID: "telegram", ChatID: "c1", Content: "my ssn is 123-45-6789",
	})
	require.NoError(t, err)
	require.Len(t, adapter.sent, 1)
	require.NotNil(t, adapter.sent[0].Card)
	assert.Equal(t, awaitingAuthorizationText, adapter.sent[0].Content)
}

func TestProcessMessageStreamingCumulativeRejectSendsFixedMessage(t *testing.T) {
	p, mgr := testProcessor(t, true)
	p.SetAgentEngine(&echoEngine{})
	adapter := &recordingAdapter{}
	ctx := context.Background()

	audits, unsubscribe := p.bus.Subscribe()
	defer unsubscribe()

	msgs := []string{
		"my email is a@example.com",
		"my phone is 555-123-4567",
		"my ssn is 123-45-6789",
		"my password is hunter2",
		"my private key is abcd",
	}
	for _, content := range msgs {
		require.NoError(t, p.ProcessMessageStreaming(ctx, adapter, channels.InboundMessage{
			SenderID: "u1", ChannelID: "telegram", ChatID: "c1", Content: content,
		}))
	}
	require.NotEmpty(t, adapter.sent)
	assert.Equal(t, cumulativeRejectionMessage, adapter.sent[len(adapter.sent)-1].Content)
	assert.NotNil(t, mgr)
	assert.True(t, drainForVector(audits, audit.VectorPolicyViolation), "cumulative-reject must record one audit event")
}

func TestHandleCardActionExpiredShowsNotice(t *testing.T) {
	p, _ := testProcessor(t, true)
	adapter := &recordingAdapter{}

	err := p.HandleCardAction(context.Background(), adapter, channels.CardActionEvent{
		ChatID: "c1", MessageID: "nonexistent", Action: "authorize",
	})
	require.NoError(t, err)
	require.Len(t, adapter.cards, 1)
	assert.Contains(t, adapter.cards[0].Title, "expired")
}

func TestHandleCardActionCancel(t *testing.T) {
	p, _ := testProcessor(t, true)
	ctx := context.Background()
	require.NoError(t, p.pending.Put(ctx, "msg-1", PendingSensitiveMessage{
		Message:     channels.InboundMessage{SenderID: "u1", ChannelID: "telegram", ChatID: "c1", Content: "my ssn is 123-45-6789"},
		ChannelID:   "telegram",
		Sensitivity: privacy.LevelHighlySensitive,
		CreatedAt:   time.Now(),
	}, defaultPendingTTL))

	adapter := &recordingAdapter{}
	err := p.HandleCardAction(ctx, adapter, channels.CardActionEvent{ChatID: "c1", MessageID: "msg-1", Action: "cancel"})
	require.NoError(t, err)
	require.Len(t, adapter.cards, 1)
	assert.Contains(t, adapter.cards[0].Title, "cancelled")
}

func TestHandleCardActionAuthorizeWithoutTeeRuntimeErrorsOnCard(t *testing.T) {
	p, _ := testProcessor(t, true)
	p.SetAgentEngine(&echoEngine{})
	ctx := context.Background()
	require.NoError(t, p.pending.Put(ctx, "msg-1", PendingSensitiveMessage{
		Message:     channels.InboundMessage{SenderID: "u1", ChannelID: "telegram", ChatID: "c1", Content: "my ssn is 123-45-6789"},
		ChannelID:   "telegram",
		Sensitivity: privacy.LevelHighlySensitive,
		CreatedAt:   time.Now(),
	}, defaultPendingTTL))

	adapter := &recordingAdapter{}
	err := p.HandleCardAction(ctx, adapter, channels.CardActionEvent{ChatID: "c1", MessageID: "msg-1", Action: "authorize"})
	require.NoError(t, err)
	require.Len(t, adapter.cards, 2) // loading, then error
	assert.Contains(t, adapter.cards[1].Title, "Could not process")
}

func TestHandleCardActionUnknownActionIsIgnored(t *testing.T) {
	p, _ := testProcessor(t, true)
	ctx := context.Background()
	require.NoError(t, p.pending.Put(ctx, "msg-1", PendingSensitiveMessage{
		Message: channels.InboundMessage{ChatID: "c1"},
	}, defaultPendingTTL))

	adapter := &recordingAdapter{}
	err := p.HandleCardAction(ctx, adapter, channels.CardActionEvent{ChatID: "c1", MessageID: "msg-1", Action: "snooze"})
	require.NoError(t, err)
	assert.Empty(t, adapter.cards)
}
