package privacy

import "sync"

// Decision is the policy engine's verdict for a single classified message.
type Decision int

const (
	DecisionAllow Decision = iota
	DecisionProcessInTee
	DecisionRequireConfirmation
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionProcessInTee:
		return "process_in_tee"
	case DecisionRequireConfirmation:
		return "require_confirmation"
	case DecisionReject:
		return "reject"
	default:
		return "allow"
	}
}

// DefaultWarnThreshold and DefaultRejectThreshold are the cumulative
// distinct-category disclosure counts spec §4.6 names: a session that has
// disclosed 3 distinct sensitive categories gets a confirmation prompt, 5
// gets rejected outright regardless of the current message's own level.
const (
	DefaultWarnThreshold   = 3
	DefaultRejectThreshold = 5
)

// Decide is the pure policy function: level plus how many distinct
// categories this session has cumulatively disclosed maps onto one of the
// four decisions. It takes no session state directly so it stays testable
// without constructing a session.
func Decide(level Level, cumulativeCategories int, warnThreshold, rejectThreshold int) Decision {
	if cumulativeCategories >= rejectThreshold {
		return DecisionReject
	}
	if cumulativeCategories >= warnThreshold {
		return DecisionRequireConfirmation
	}
	switch level {
	case LevelHighlySensitive:
		return DecisionProcessInTee
	case LevelSensitive:
		return DecisionProcessInTee
	default:
		return DecisionAllow
	}
}

// DisclosureContext accumulates the distinct PII categories a session has
// disclosed across its lifetime — the Go analogue of the original
// implementation's per-session privacy-risk accumulator.
type DisclosureContext struct {
	mu         sync.Mutex
	categories map[Category]struct{}
}

func NewDisclosureContext() *DisclosureContext {
	return &DisclosureContext{categories: make(map[Category]struct{})}
}

// Record adds every category observed in a composite result to the
// context's cumulative set. Categories repeat across messages without
// inflating the count — it is the count of distinct categories, not hits.
func (d *DisclosureContext) Record(categories ...Category) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range categories {
		d.categories[c] = struct{}{}
	}
}

// Count returns the number of distinct categories disclosed so far.
func (d *DisclosureContext) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.categories)
}

// Reset clears the accumulated disclosure set, used when a session
// terminates or an operator explicitly clears its privacy context.
func (d *DisclosureContext) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.categories = make(map[Category]struct{})
}

// CategoryForRule maps a classifier rule name onto the taint Category it
// represents, for callers that need to taint the literal match itself
// (not just the distinct-category count CategoriesOf returns).
func CategoryForRule(ruleName string) Category {
	return categoryForRule(ruleName)
}

// categoryForRule maps a classifier rule name onto the taint Category it
// represents, used to feed DisclosureContext.Record from a CompositeResult.
func categoryForRule(ruleName string) Category {
	switch ruleName {
	case "email":
		return CategoryEmail
	case "phone":
		return CategoryPhone
	case "ssn", "ssn_disclosure":
		return CategorySSN
	case "credit_card":
		return CategoryCreditCard
	case "api_key":
		return CategoryAPIKey
	case "password_disclosure":
		return CategoryPassword
	default:
		return CategoryCustom
	}
}

// CategoriesOf extracts the distinct taint categories represented in a
// classifier result, for recording into a DisclosureContext.
func CategoriesOf(result CompositeResult) []Category {
	seen := make(map[Category]struct{})
	var out []Category
	for _, m := range result.Matches {
		cat := categoryForRule(m.RuleName)
		if _, ok := seen[cat]; ok {
			continue
		}
		seen[cat] = struct{}{}
		out = append(out, cat)
	}
	return out
}
