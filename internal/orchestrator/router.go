package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/arc-self/safeclaw-gateway/internal/channels"
	"github.com/arc-self/safeclaw-gateway/internal/privacy"
	"github.com/arc-self/safeclaw-gateway/internal/session"
)

// Router turns one inbound message into a RoutingDecision: it classifies
// content, evaluates policy, finds-or-creates the owning session, and
// folds the result into that session's cumulative disclosure state.
type Router struct {
	sessions      *session.Manager
	classifier    *privacy.Chain
	warnThreshold int
	rejThreshold  int
	log           *zap.Logger
}

func NewRouter(sessions *session.Manager, classifier *privacy.Chain, warnThreshold, rejThreshold int, log *zap.Logger) *Router {
	if warnThreshold <= 0 {
		warnThreshold = privacy.DefaultWarnThreshold
	}
	if rejThreshold <= 0 {
		rejThreshold = privacy.DefaultRejectThreshold
	}
	return &Router{
		sessions:      sessions,
		classifier:    classifier,
		warnThreshold: warnThreshold,
		rejThreshold:  rejThreshold,
		log:           log,
	}
}

// Route classifies msg, resolves its owning session, and folds the result
// into that session's cumulative disclosure/sensitivity state. It never
// fails on a TEE-upgrade rejection — that is surfaced later, when the
// caller actually tries to process the message in TEE.
func (r *Router) Route(_ context.Context, msg channels.InboundMessage) (RoutingDecision, error) {
	composite := r.classifier.Classify(msg.Content)

	sess := r.sessions.CreateSession(msg.SenderID, msg.ChannelID, msg.ChatID)
	sess.UpdateSensitivity(composite.Level)
	sess.RecordDisclosures(privacy.CategoriesOf(composite))
	r.taintMatches(sess.ID, msg.Content, composite)

	cumulative := sess.AssessPrivacyRisk(r.warnThreshold, r.rejThreshold)
	decision := privacy.Decide(composite.Level, sess.DisclosureCount(), r.warnThreshold, r.rejThreshold)

	useTee := decision == privacy.DecisionProcessInTee && r.sessions.IsTeeEnabled()
	if useTee && !sess.UsesTee() {
		if err := r.sessions.UpgradeToTee(sess.ID); err != nil {
			r.log.Warn("tee upgrade failed, continuing on best-effort basis",
				zap.String("session_id", sess.ID), zap.Error(err))
		}
	}

	sess.Touch()
	sess.IncrementMessages()

	return RoutingDecision{
		SessionID:          sess.ID,
		UseTee:             useTee,
		Classification:     composite,
		PolicyDecision:     decision,
		CumulativeDecision: cumulative,
	}, nil
}

// RequiresTee is the synchronous fast-path check used before a session
// even exists, mirroring the classifier-only pre-check spec §4.6 names.
func (r *Router) RequiresTee(content string) bool {
	return r.classifier.Classify(content).RequiresTee
}

// taintMatches registers every classifier match's literal substring into
// the session's taint registry, so a later model response that echoes a
// disclosed secret back gets caught by the output sanitizer.
func (r *Router) taintMatches(sessionID, content string, composite privacy.CompositeResult) {
	registry := r.sessions.Isolation().Registry(sessionID)
	if registry == nil {
		return
	}
	for _, m := range composite.Matches {
		if m.Start < 0 || m.End > len(content) || m.Start >= m.End {
			continue
		}
		registry.Register(content[m.Start:m.End], privacy.CategoryForRule(m.RuleName), sessionID)
	}
}
