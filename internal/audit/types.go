// Package audit implements the in-process audit fan-out described in
// spec §4.8: a bounded global log, per-session logs, an optional Event Bus
// republish bridge, and a durable persistence writer.
package audit

import "time"

// Severity ranks how serious an audit event is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Vector names the leakage/violation channel an audit event reports on.
type Vector string

const (
	VectorAuthFailure     Vector = "auth_failure"
	VectorTaintLeak       Vector = "taint_leak"
	VectorNetworkExfil    Vector = "network_exfil"
	VectorPromptInjection Vector = "prompt_injection"
	VectorPolicyViolation Vector = "policy_violation"
)

// Event is one audit record. SessionID is empty for events with no
// session affinity (e.g. a channel auth failure before a session exists).
type Event struct {
	ID          string
	Timestamp   time.Time
	Actor       string
	Severity    Severity
	Vector      Vector
	Description string
	SessionID   string
	Metadata    map[string]string
}
