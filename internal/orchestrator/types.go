// Package orchestrator implements the route → process → sanitize pipeline
// described in spec §4.10: it turns one channels.InboundMessage into a
// channels.OutboundMessage (or an async authorization-card flow), wiring
// together privacy classification, the session manager, TEE processing,
// and the audit bus.
package orchestrator

import (
	"time"

	"github.com/arc-self/safeclaw-gateway/internal/channels"
	"github.com/arc-self/safeclaw-gateway/internal/privacy"
)

// RoutingDecision is the outcome of classifying and routing one message.
type RoutingDecision struct {
	SessionID          string
	UseTee             bool
	Classification     privacy.CompositeResult
	PolicyDecision     privacy.Decision
	CumulativeDecision privacy.Decision
}

// ProcessedResponse is what the pipeline hands back to the caller once a
// message has been routed, processed, and sanitized.
type ProcessedResponse struct {
	SessionID   string
	UseTee      bool
	Sensitivity privacy.Level
	Outbound    channels.OutboundMessage
}

// PendingSensitiveMessage is a sensitive message parked awaiting user
// authorization via an interactive card, keyed by the card's delivered
// message ID.
type PendingSensitiveMessage struct {
	Message       channels.InboundMessage
	CardMessageID string
	ChannelID     string
	Sensitivity   privacy.Level
	CreatedAt     time.Time
}

// defaultPendingTTL is how long an authorization card stays valid before
// the sweeper replaces it with an expiry notice, per spec §4.10 step 3.
const defaultPendingTTL = 5 * time.Minute
