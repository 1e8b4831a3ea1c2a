package privacy

import (
	"regexp"
	"time"

	"github.com/arc-self/safeclaw-gateway/internal/audit"
)

// InjectionVerdict is the Injection Detector's classification of content
// for prompt-injection attempts.
type InjectionVerdict int

const (
	InjectionSafe InjectionVerdict = iota
	InjectionSuspicious
	InjectionBlocked
)

// InjectionMatch is one pattern hit the detector found.
type InjectionMatch struct {
	RuleName string
	Start    int
	End      int
}

// InjectionResult is the detector's full verdict over one piece of
// content.
type InjectionResult struct {
	Verdict     InjectionVerdict
	Matches     []InjectionMatch
	AuditEvents []audit.Event
}

type injectionRule struct {
	name    string
	pattern *regexp.Regexp
	blocks  bool
}

// defaultInjectionRules is the minimum pattern catalog spec §4.7 names:
// instruction-override phrasing, system-prompt impersonation, role-override
// tokens, and tool-smuggling markup.
var defaultInjectionRules = []injectionRule{
	{"ignore_previous_instructions", regexp.MustCompile(`(?i)ignore (all |any )?(previous|prior|above) instructions`), true},
	{"system_prompt_impersonation", regexp.MustCompile(`(?i)(you are now|act as) (the )?system( prompt)?`), true},
	{"role_override_token", regexp.MustCompile(`(?i)\[\s*(system|assistant|developer)\s*\]`), true},
	{"tool_smuggling_markup", regexp.MustCompile(`(?i)<\s*(tool_call|function_call|tool_result)\b`), true},
	{"disregard_rules", regexp.MustCompile(`(?i)disregard (your|all|the) (rules|guidelines|instructions)`), false},
}

// Scan classifies content for prompt-injection attempts. A Blocked verdict
// (any blocking rule matched) short-circuits message processing at the
// caller; Suspicious (a non-blocking rule matched, with no blocking match)
// is informational only.
func Scan(content string, sessionID string) InjectionResult {
	var matches []InjectionMatch
	blocked := false
	suspicious := false
	var events []audit.Event

	for _, rule := range defaultInjectionRules {
		for _, loc := range rule.pattern.FindAllStringIndex(content, -1) {
			matches = append(matches, InjectionMatch{RuleName: rule.name, Start: loc[0], End: loc[1]})
			severity := audit.SeverityMedium
			if rule.blocks {
				blocked = true
				severity = audit.SeverityHigh
			} else {
				suspicious = true
			}
			events = append(events, audit.Event{
				Timestamp:   time.Now(),
				Severity:    severity,
				Vector:      audit.VectorPromptInjection,
				Description: "matched injection pattern " + rule.name,
				SessionID:   sessionID,
			})
		}
	}

	verdict := InjectionSafe
	switch {
	case blocked:
		verdict = InjectionBlocked
	case suspicious:
		verdict = InjectionSuspicious
	}

	return InjectionResult{
		Verdict:     verdict,
		Matches:     matches,
		AuditEvents: events,
	}
}
