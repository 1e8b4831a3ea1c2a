package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arc-self/safeclaw-gateway/internal/privacy"
)

func TestNewSessionStartsInCreating(t *testing.T) {
	s := NewSession("u1", "telegram", "chat-1")
	assert.Equal(t, StateCreating, s.State())
	assert.False(t, s.UsesTee())
}

func TestSessionStateTransitions(t *testing.T) {
	s := NewSession("u1", "telegram", "chat-1")

	s.SetState(StateActive)
	assert.True(t, s.IsActive())

	s.SetState(StateProcessing)
	assert.True(t, s.IsActive())

	s.SetState(StateTerminated)
	assert.False(t, s.IsActive())
}

func TestSessionSensitivityIsMonotonic(t *testing.T) {
	s := NewSession("u1", "telegram", "chat-1")
	assert.Equal(t, privacy.LevelNormal, s.SensitivityLevel())

	s.UpdateSensitivity(privacy.LevelSensitive)
	assert.Equal(t, privacy.LevelSensitive, s.SensitivityLevel())

	s.UpdateSensitivity(privacy.LevelNormal)
	assert.Equal(t, privacy.LevelSensitive, s.SensitivityLevel(), "sensitivity must never decrease")
}

func TestSessionMarkTeeActive(t *testing.T) {
	s := NewSession("u1", "telegram", "chat-1")
	assert.False(t, s.UsesTee())
	s.MarkTeeActive()
	assert.True(t, s.UsesTee())
}

func TestSessionAssessPrivacyRiskThresholds(t *testing.T) {
	s := NewSession("u1", "telegram", "chat-1")
	s.RecordDisclosures([]privacy.Category{privacy.CategoryEmail, privacy.CategorySSN, privacy.CategoryPhone})

	d := s.AssessPrivacyRisk(3, 5)
	assert.Equal(t, privacy.DecisionRequireConfirmation, d)

	s.RecordDisclosures([]privacy.Category{privacy.CategoryAPIKey, privacy.CategoryPassword})
	d = s.AssessPrivacyRisk(3, 5)
	assert.Equal(t, privacy.DecisionReject, d)
}

func TestSessionMetadata(t *testing.T) {
	s := NewSession("u1", "telegram", "chat-1")
	s.SetMetadata("k", "v")
	v, ok := s.GetMetadata("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok = s.GetMetadata("missing")
	assert.False(t, ok)
}

func TestSessionMessageCount(t *testing.T) {
	s := NewSession("u1", "telegram", "chat-1")
	assert.Equal(t, uint64(0), s.MessageCount())
	s.IncrementMessages()
	s.IncrementMessages()
	assert.Equal(t, uint64(2), s.MessageCount())
}
