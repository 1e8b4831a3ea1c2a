package privacy

import (
	"time"

	"github.com/arc-self/safeclaw-gateway/internal/audit"
)

// SanitizeResult is the Output Sanitizer's verdict over one piece of text.
type SanitizeResult struct {
	SanitizedText   string
	WasRedacted     bool
	RedactionCount  int
	AuditEvents     []audit.Event
}

// Sanitize replaces every taint registry literal found in text with a
// category-specific redaction token, emitting one TaintLeak audit event
// per replacement. It is pure: registry is read via Contains, never
// mutated.
func Sanitize(registry *Registry, text string, sessionID string) SanitizeResult {
	matches := registry.Contains(text)
	if len(matches) == 0 {
		return SanitizeResult{SanitizedText: text}
	}

	sorted := append([]TaintMatch(nil), matches...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Start > sorted[j].Start; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}

	var out []byte
	last := 0
	events := make([]audit.Event, 0, len(sorted))
	for _, m := range sorted {
		if m.Start < last {
			continue
		}
		out = append(out, text[last:m.Start]...)
		out = append(out, taintMaskFor(m.Entry.Category)...)
		last = m.End

		events = append(events, audit.Event{
			Timestamp:   time.Now(),
			Severity:    audit.SeverityMedium,
			Vector:      audit.VectorTaintLeak,
			Description: "redacted tainted " + string(m.Entry.Category) + " literal from output",
			SessionID:   sessionID,
		})
	}
	out = append(out, text[last:]...)

	return SanitizeResult{
		SanitizedText:  string(out),
		WasRedacted:    true,
		RedactionCount: len(events),
		AuditEvents:    events,
	}
}

func taintMaskFor(c Category) string {
	switch c {
	case CategoryAPIKey:
		return "[REDACTED:api_key]"
	case CategoryPassword:
		return "[REDACTED:password]"
	case CategoryEmail:
		return "[REDACTED:email]"
	case CategoryPhone:
		return "[REDACTED:phone]"
	case CategorySSN:
		return "[REDACTED:ssn]"
	case CategoryCreditCard:
		return "[REDACTED:credit_card]"
	default:
		return "[REDACTED]"
	}
}
