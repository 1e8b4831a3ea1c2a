package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/safeclaw-gateway/internal/channels"
	"github.com/arc-self/safeclaw-gateway/internal/privacy"
)

const (
	awaitingAuthorizationText = "Awaiting authorization..."
	processingPlaceholderText = "Processing..."
)

// ProcessMessageStreaming routes msg and either (a) hands the caller an
// interactive authorization card when TEE processing is required, parking
// the message in the PendingStore until a button click arrives, or (b)
// streams the plain-path agent response back through adapter edits
// throttled to roughly once a second.
func (p *Processor) ProcessMessageStreaming(ctx context.Context, adapter channels.Adapter, msg channels.InboundMessage) error {
	decision, err := p.router.Route(ctx, msg)
	if err != nil {
		return err
	}

	if decision.CumulativeDecision == privacy.DecisionReject {
		p.publishCumulativeReject(decision.SessionID)
		_, err := adapter.SendMessage(ctx, channels.OutboundMessage{ChatID: msg.ChatID, Content: cumulativeRejectionMessage})
		return err
	}

	if decision.UseTee {
		return p.sendAuthorizationCard(ctx, adapter, decision, msg)
	}

	return p.streamPlain(ctx, adapter, decision, msg)
}

func (p *Processor) sendAuthorizationCard(ctx context.Context, adapter channels.Adapter, decision RoutingDecision, msg channels.InboundMessage) error {
	card := makeAuthorizationCard(decision.Classification.Level)
	placeholderID, err := adapter.SendMessage(ctx, channels.OutboundMessage{ChatID: msg.ChatID, Content: awaitingAuthorizationText, Card: &card})
	if err != nil {
		return err
	}

	pending := PendingSensitiveMessage{
		Message:       msg,
		CardMessageID: placeholderID,
		ChannelID:     msg.ChannelID,
		Sensitivity:   decision.Classification.Level,
		CreatedAt:     time.Now(),
	}
	return p.pending.Put(ctx, placeholderID, pending, p.pendingTTL)
}

func makeAuthorizationCard(level privacy.Level) channels.Card {
	return channels.Card{
		Title: "Sensitive request requires authorization",
		Body:  "This message was classified as " + level.String() + " and needs your confirmation before it is processed in a trusted execution environment.",
		Buttons: []channels.CardButton{
			{Label: "Authorize", Action: "authorize"},
			{Label: "Cancel", Action: "cancel"},
		},
	}
}

func (p *Processor) streamPlain(ctx context.Context, adapter channels.Adapter, decision RoutingDecision, msg channels.InboundMessage) error {
	messageID, err := adapter.SendMessage(ctx, channels.OutboundMessage{ChatID: msg.ChatID, Content: processingPlaceholderText})
	if err != nil {
		return err
	}

	engine := p.agentEngine()
	if engine == nil {
		return adapter.EditMessage(ctx, msg.ChatID, messageID, "No agent engine configured.")
	}

	events, err := engine.GenerateResponseStreaming(ctx, decision.SessionID, msg.Content)
	if err != nil {
		return adapter.EditMessage(ctx, msg.ChatID, messageID, "Error: "+err.Error())
	}

	var full string
	lastEdit := time.Time{}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return p.finalizeStream(ctx, adapter, decision.SessionID, msg.ChatID, messageID, full)
			}
			if ev.Err != nil {
				return adapter.EditMessage(ctx, msg.ChatID, messageID, "Error: "+ev.Err.Error())
			}
			full += ev.Delta
			if ev.Done {
				return p.finalizeStream(ctx, adapter, decision.SessionID, msg.ChatID, messageID, full)
			}
			if time.Since(lastEdit) >= streamingEditInterval {
				if err := adapter.EditMessage(ctx, msg.ChatID, messageID, full); err != nil {
					return err
				}
				lastEdit = time.Now()
			}
		case <-time.After(streamingRecvTimeout):
			return adapter.EditMessage(ctx, msg.ChatID, messageID, "Timed out waiting for a response.")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Processor) finalizeStream(ctx context.Context, adapter channels.Adapter, sessionID, chatID, messageID, full string) error {
	return adapter.EditMessage(ctx, chatID, messageID, p.sanitize(sessionID, full))
}

// HandleCardAction resolves a user's click on an authorization card. A
// missing or expired pending entry edits the card to an expiry notice
// rather than erroring — the user already sees the card, so the failure
// mode is visible there, not in a log line.
func (p *Processor) HandleCardAction(ctx context.Context, adapter channels.Adapter, ev channels.CardActionEvent) error {
	pending, ok, err := p.pending.Take(ctx, ev.MessageID)
	if err != nil {
		return err
	}
	if !ok {
		return adapter.EditMessageCard(ctx, ev.ChatID, ev.MessageID, expiredCard())
	}

	switch ev.Action {
	case "authorize":
		return p.authorizeAndProcess(ctx, adapter, ev, pending)
	case "cancel":
		return adapter.EditMessageCard(ctx, ev.ChatID, ev.MessageID, cancelledCard())
	default:
		p.log.Warn("unknown card action", zap.String("action", ev.Action))
		return nil
	}
}

func (p *Processor) authorizeAndProcess(ctx context.Context, adapter channels.Adapter, ev channels.CardActionEvent, pending PendingSensitiveMessage) error {
	if err := adapter.EditMessageCard(ctx, ev.ChatID, ev.MessageID, loadingCard()); err != nil {
		return err
	}

	decision, err := p.router.Route(ctx, pending.Message)
	if err != nil {
		return adapter.EditMessageCard(ctx, ev.ChatID, ev.MessageID, errorCard(err.Error()))
	}
	if !decision.UseTee || p.sessions.TeeRuntime() == nil || !p.sessions.TeeRuntime().IsTeeActive() {
		return adapter.EditMessageCard(ctx, ev.ChatID, ev.MessageID, errorCard("TEE is not available to process this request"))
	}

	reply, err := p.generate(ctx, decision, pending.Message.Content)
	if err != nil {
		return adapter.EditMessageCard(ctx, ev.ChatID, ev.MessageID, errorCard(err.Error()))
	}

	sanitized := p.sanitize(decision.SessionID, reply)
	return adapter.EditMessageCard(ctx, ev.ChatID, ev.MessageID, resultCard(sanitized))
}

func resultCard(body string) channels.Card {
	return channels.Card{Title: "Result", Body: body}
}

func errorCard(message string) channels.Card {
	return channels.Card{Title: "Could not process this request", Body: message}
}

func loadingCard() channels.Card {
	return channels.Card{Title: "Processing your authorized request…"}
}

func cancelledCard() channels.Card {
	return channels.Card{Title: "Request cancelled"}
}

func expiredCard() channels.Card {
	return channels.Card{Title: "This authorization request has expired", Body: "Please send your message again."}
}
