package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideAllowsNormalBelowThresholds(t *testing.T) {
	assert.Equal(t, DecisionAllow, Decide(LevelNormal, 0, DefaultWarnThreshold, DefaultRejectThreshold))
}

func TestDecideRoutesSensitiveToTee(t *testing.T) {
	assert.Equal(t, DecisionProcessInTee, Decide(LevelSensitive, 0, DefaultWarnThreshold, DefaultRejectThreshold))
	assert.Equal(t, DecisionProcessInTee, Decide(LevelHighlySensitive, 1, DefaultWarnThreshold, DefaultRejectThreshold))
}

func TestDecideRequiresConfirmationAtWarnThreshold(t *testing.T) {
	d := Decide(LevelNormal, DefaultWarnThreshold, DefaultWarnThreshold, DefaultRejectThreshold)
	assert.Equal(t, DecisionRequireConfirmation, d)
}

func TestDecideRejectsAtRejectThreshold(t *testing.T) {
	d := Decide(LevelSensitive, DefaultRejectThreshold, DefaultWarnThreshold, DefaultRejectThreshold)
	assert.Equal(t, DecisionReject, d)
}

func TestDecideRejectDominatesOverSensitiveLevel(t *testing.T) {
	d := Decide(LevelHighlySensitive, DefaultRejectThreshold, DefaultWarnThreshold, DefaultRejectThreshold)
	assert.Equal(t, DecisionReject, d)
}

func TestDisclosureContextCountsDistinctCategories(t *testing.T) {
	ctx := NewDisclosureContext()
	ctx.Record(CategoryEmail, CategoryPassword)
	ctx.Record(CategoryEmail)
	assert.Equal(t, 2, ctx.Count())
}

func TestDisclosureContextReset(t *testing.T) {
	ctx := NewDisclosureContext()
	ctx.Record(CategoryEmail)
	ctx.Reset()
	assert.Equal(t, 0, ctx.Count())
}

func TestCategoriesOfExtractsDistinctCategories(t *testing.T) {
	result := DefaultChain().Classify("email a@b.com, ssn 123-45-6789, email c@d.com")
	cats := CategoriesOf(result)
	assert.Contains(t, cats, CategoryEmail)
	assert.Contains(t, cats, CategorySSN)
	assert.Len(t, cats, 2)
}
