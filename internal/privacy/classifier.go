package privacy

import (
	"regexp"
	"strings"
)

// Level is the classifier/policy sensitivity ladder. Ordering matters —
// Normal < Sensitive < HighlySensitive, and comparisons in this package
// rely on the underlying int values.
type Level int

const (
	LevelNormal Level = iota
	LevelSensitive
	LevelHighlySensitive
)

func (l Level) String() string {
	switch l {
	case LevelSensitive:
		return "sensitive"
	case LevelHighlySensitive:
		return "highly_sensitive"
	default:
		return "normal"
	}
}

// RequiresTee reports whether level mandates TEE processing (spec §4.6:
// requires_tee(level) ⇔ level ≥ Sensitive).
func RequiresTee(level Level) bool {
	return level >= LevelSensitive
}

// PiiMatch is one classifier hit over the input string.
type PiiMatch struct {
	RuleName   string
	Level      Level
	Start      int
	End        int
	Confidence float64
	Backend    string
}

// CompositeResult is the merged output of the classifier chain.
type CompositeResult struct {
	Level       Level
	Matches     []PiiMatch
	RequiresTee bool
}

// Backend produces PiiMatches over a piece of text.
type Backend interface {
	Name() string
	Classify(text string) []PiiMatch
}

// regexRule is one compiled entry in the RegexBackend's catalog.
type regexRule struct {
	name    string
	pattern *regexp.Regexp
	level   Level
}

// RegexBackend is the mandatory pattern-matching backend. DefaultRegexBackend
// covers email/phone/ssn/credit_card/api_key, the minimum spec §4.5 names.
type RegexBackend struct {
	rules []regexRule
}

func DefaultRegexBackend() *RegexBackend {
	return &RegexBackend{rules: []regexRule{
		{"email", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), LevelSensitive},
		{"phone", regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`), LevelSensitive},
		{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), LevelHighlySensitive},
		{"credit_card", regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`), LevelHighlySensitive},
		{"api_key", regexp.MustCompile(`\b(?:sk|pk|api)[-_][A-Za-z0-9]{16,}\b`), LevelHighlySensitive},
	}}
}

func (b *RegexBackend) Name() string { return "regex" }

func (b *RegexBackend) Classify(text string) []PiiMatch {
	var matches []PiiMatch
	for _, rule := range b.rules {
		for _, loc := range rule.pattern.FindAllStringIndex(text, -1) {
			matches = append(matches, PiiMatch{
				RuleName:   rule.name,
				Level:      rule.level,
				Start:      loc[0],
				End:        loc[1],
				Confidence: 1.0,
				Backend:    "regex",
			})
		}
	}
	return matches
}

// semanticPhrase is one self-disclosure phrase the SemanticBackend looks
// for when it precedes free-text content regex cannot bound.
type semanticPhrase struct {
	ruleName string
	level    Level
	needles  []string
}

// SemanticBackend recognises self-disclosure phrasing ("my password is …",
// "I live at …") that a fixed-format regex cannot catch. It is
// pattern-based rather than model-based; the contract (Classify returning
// PiiMatch) is identical either way, so a model-backed backend can be
// substituted without touching callers.
type SemanticBackend struct {
	phrases []semanticPhrase
}

func DefaultSemanticBackend() *SemanticBackend {
	return &SemanticBackend{phrases: []semanticPhrase{
		{"password_disclosure", LevelHighlySensitive, []string{"my password is", "the password is", "password:"}},
		{"address_disclosure", LevelSensitive, []string{"i live at", "my address is", "my home address"}},
		{"ssn_disclosure", LevelHighlySensitive, []string{"my social security number is", "my ssn is"}},
		{"secret_disclosure", LevelHighlySensitive, []string{"my secret is", "my private key is"}},
	}}
}

func (b *SemanticBackend) Name() string { return "semantic" }

func (b *SemanticBackend) Classify(text string) []PiiMatch {
	lower := strings.ToLower(text)
	var matches []PiiMatch
	for _, phrase := range b.phrases {
		for _, needle := range phrase.needles {
			idx := strings.Index(lower, needle)
			if idx < 0 {
				continue
			}
			end := len(text)
			if rest := strings.IndexAny(text[idx+len(needle):], ".!?\n"); rest >= 0 {
				end = idx + len(needle) + rest
			}
			matches = append(matches, PiiMatch{
				RuleName:   phrase.ruleName,
				Level:      phrase.level,
				Start:      idx,
				End:        end,
				Confidence: 0.75,
				Backend:    "semantic",
			})
		}
	}
	return matches
}

// Chain composes backends into a single CompositeResult, merging
// overlapping spans so the highest level wins.
type Chain struct {
	backends []Backend
}

func NewChain(backends ...Backend) *Chain {
	return &Chain{backends: backends}
}

// DefaultChain wires the two mandatory backends.
func DefaultChain() *Chain {
	return NewChain(DefaultRegexBackend(), DefaultSemanticBackend())
}

func (c *Chain) Classify(text string) CompositeResult {
	var all []PiiMatch
	for _, b := range c.backends {
		all = append(all, b.Classify(text)...)
	}

	merged := mergeOverlapping(all)

	level := LevelNormal
	for _, m := range merged {
		if m.Level > level {
			level = m.Level
		}
	}

	return CompositeResult{
		Level:       level,
		Matches:     merged,
		RequiresTee: RequiresTee(level),
	}
}

// mergeOverlapping collapses matches whose spans overlap, keeping the
// highest-level match as the representative for that span.
func mergeOverlapping(matches []PiiMatch) []PiiMatch {
	if len(matches) == 0 {
		return nil
	}
	// simple O(n^2) interval merge — match counts per message are small.
	used := make([]bool, len(matches))
	var out []PiiMatch
	for i := range matches {
		if used[i] {
			continue
		}
		best := matches[i]
		used[i] = true
		for j := i + 1; j < len(matches); j++ {
			if used[j] {
				continue
			}
			if overlaps(best, matches[j]) {
				used[j] = true
				if matches[j].Level > best.Level {
					merged := matches[j]
					merged.Start = minInt(best.Start, matches[j].Start)
					merged.End = maxInt(best.End, matches[j].End)
					best = merged
				} else {
					best.Start = minInt(best.Start, matches[j].Start)
					best.End = maxInt(best.End, matches[j].End)
				}
			}
		}
		out = append(out, best)
	}
	return out
}

func overlaps(a, b PiiMatch) bool {
	return a.Start < b.End && b.Start < a.End
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// RedactStrategy is the mask style a caller passes to Redact. maskFor
// ignores it: the mask depends only on the match's rule name, so
// RedactGeneric and RedactMask produce the same output.
type RedactStrategy int

const (
	RedactGeneric RedactStrategy = iota
	RedactMask
)

// Redact replaces every match span in text with a category-specific mask,
// producing a display-safe string. Redaction is idempotent: redacting
// already-redacted text (which contains no more raw matches) is a no-op.
func Redact(text string, matches []PiiMatch, strategy RedactStrategy) string {
	if len(matches) == 0 {
		return text
	}
	sorted := append([]PiiMatch(nil), matches...)
	sortMatchesByStart(sorted)

	var b strings.Builder
	last := 0
	for _, m := range sorted {
		if m.Start < last {
			continue // overlapping after merge shouldn't happen, but stay safe
		}
		b.WriteString(text[last:m.Start])
		b.WriteString(maskFor(m.RuleName, strategy))
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}

func sortMatchesByStart(m []PiiMatch) {
	for i := 1; i < len(m); i++ {
		for j := i; j > 0 && m[j-1].Start > m[j].Start; j-- {
			m[j-1], m[j] = m[j], m[j-1]
		}
	}
}

func maskFor(ruleName string, _ RedactStrategy) string {
	switch ruleName {
	case "email":
		return "****@…"
	case "ssn":
		return "***-**-****"
	case "credit_card":
		return "****-****-****-****"
	case "phone":
		return "***-***-****"
	default:
		return "[REDACTED]"
	}
}
