package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/safeclaw-gateway/internal/audit"
	"github.com/arc-self/safeclaw-gateway/internal/channels"
	"github.com/arc-self/safeclaw-gateway/internal/errs"
	"github.com/arc-self/safeclaw-gateway/internal/privacy"
	"github.com/arc-self/safeclaw-gateway/internal/session"
)

const (
	cumulativeRejectionMessage = "This conversation has disclosed too much sensitive information for me to continue safely. Please start a new session."
	streamingEditInterval      = time.Second
	streamingRecvTimeout       = 120 * time.Second
)

// Processor is the route → gate → process → sanitize pipeline described in
// spec §4.10. It owns no transport; callers hand it an InboundMessage and
// get back an OutboundMessage, or drive the card-based authorization flow
// for sensitive TEE-bound messages.
type Processor struct {
	router     *Router
	sessions   *session.Manager
	bus        *audit.Bus
	pending    PendingStore
	pendingTTL time.Duration
	log        *zap.Logger

	mu     sync.RWMutex
	engine AgentEngine
}

func NewProcessor(router *Router, sessions *session.Manager, bus *audit.Bus, pending PendingStore, log *zap.Logger) *Processor {
	if pending == nil {
		pending = NewMemoryPendingStore()
	}
	return &Processor{
		router:     router,
		sessions:   sessions,
		bus:        bus,
		pending:    pending,
		pendingTTL: defaultPendingTTL,
		log:        log,
	}
}

// SetAgentEngine wires in (or replaces) the model client. Safe to call
// after NewProcessor, and safe to call concurrently with in-flight
// processing — callers that raced a SetAgentEngine with a ProcessMessage
// see either the old or new engine, never a nil one, once set.
func (p *Processor) SetAgentEngine(engine AgentEngine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine = engine
}

func (p *Processor) agentEngine() AgentEngine {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.engine
}

// ProcessMessage runs the full synchronous pipeline for one inbound
// message: route, gate on cumulative risk, run the injection scan,
// generate a response (TEE or plain), sanitize it against the session's
// taint registry, and package the reply.
func (p *Processor) ProcessMessage(ctx context.Context, msg channels.InboundMessage) (ProcessedResponse, error) {
	decision, err := p.router.Route(ctx, msg)
	if err != nil {
		return ProcessedResponse{}, err
	}

	if decision.CumulativeDecision == privacy.DecisionReject {
		p.publishCumulativeReject(decision.SessionID)
		return ProcessedResponse{}, errs.New(errs.KindPrivacy, "cumulative disclosure risk exceeds reject threshold for session "+decision.SessionID)
	}

	scan := privacy.Scan(msg.Content, decision.SessionID)
	for _, ev := range scan.AuditEvents {
		p.publish(ev)
	}
	if scan.Verdict == privacy.InjectionBlocked {
		return ProcessedResponse{
			SessionID:   decision.SessionID,
			UseTee:      decision.UseTee,
			Sensitivity: decision.Classification.Level,
			Outbound: channels.OutboundMessage{
				ChatID:  msg.ChatID,
				Content: "I can't act on that request.",
			},
		}, nil
	}

	reply, err := p.generate(ctx, decision, msg.Content)
	if err != nil {
		reply = "I ran into an error generating a response: " + err.Error()
	}

	sanitized := p.sanitize(decision.SessionID, reply)

	return ProcessedResponse{
		SessionID:   decision.SessionID,
		UseTee:      decision.UseTee,
		Sensitivity: decision.Classification.Level,
		Outbound: channels.OutboundMessage{
			ChatID:  msg.ChatID,
			Content: sanitized,
		},
	}, nil
}

// generate runs the agent over content, routing through the TEE runtime
// when the routing decision calls for it and the session has actually
// been upgraded; otherwise it requires a plain agent engine.
func (p *Processor) generate(ctx context.Context, decision RoutingDecision, content string) (string, error) {
	sess, ok := p.sessions.GetSession(decision.SessionID)
	if !ok {
		return "", errs.New(errs.KindNotFound, "session not found: "+decision.SessionID)
	}

	if decision.UseTee {
		if !sess.UsesTee() || p.sessions.TeeRuntime() == nil || !p.sessions.TeeRuntime().IsTeeActive() {
			return "", errs.New(errs.KindTee, "message requires TEE processing but session is not TEE-active")
		}
	}

	engine := p.agentEngine()
	if engine == nil {
		return "", errs.New(errs.KindRuntime, "no agent engine configured")
	}
	return engine.GenerateResponse(ctx, decision.SessionID, content)
}

// sanitize redacts any taint-registry literal from text before it leaves
// the gateway, warn-logging on every redaction and republishing the
// sanitizer's audit events.
func (p *Processor) sanitize(sessionID, text string) string {
	registry := p.sessions.Isolation().Registry(sessionID)
	if registry == nil {
		return text
	}
	result := privacy.Sanitize(registry, text, sessionID)
	if result.WasRedacted {
		p.log.Warn("redacted tainted literal(s) from outbound text",
			zap.String("session_id", sessionID), zap.Int("count", result.RedactionCount))
		for _, ev := range result.AuditEvents {
			p.publish(ev)
		}
	}
	return result.SanitizedText
}

func (p *Processor) publish(ev audit.Event) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(ev)
}

// publishCumulativeReject records the one audit event spec §7 requires for a
// cumulative-reject refusal, whether it surfaces as a hard error (ProcessMessage)
// or a fixed chat reply (ProcessMessageStreaming).
func (p *Processor) publishCumulativeReject(sessionID string) {
	p.publish(audit.Event{
		Timestamp:   time.Now(),
		Severity:    audit.SeverityHigh,
		Vector:      audit.VectorPolicyViolation,
		Description: "cumulative disclosure risk exceeded reject threshold; message refused",
		SessionID:   sessionID,
	})
}

// ProcessWebhook dispatches a raw provider payload through the
// channel-specific parser and routes the resulting outcome. Card actions
// cannot be completed from here — the caller must use HandleCardAction
// with an adapter reference to edit the card in place.
func (p *Processor) ProcessWebhook(ctx context.Context, ev channels.RawEvent, dedup *channels.Deduplicator, allowedUsers []string) (channels.ParseResult, *ProcessedResponse, error) {
	result := channels.ParseWebhook(ev, dedup, allowedUsers)
	if result.Outcome != channels.OutcomeMessage || result.Message == nil {
		return result, nil, nil
	}
	resp, err := p.ProcessMessage(ctx, *result.Message)
	if err != nil {
		return result, nil, err
	}
	return result, &resp, nil
}

