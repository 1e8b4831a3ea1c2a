package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/safeclaw-gateway/internal/audit"
	"github.com/arc-self/safeclaw-gateway/internal/tee"
)

func testManager(t *testing.T, teeEnabled bool, runtime *tee.Runtime) *Manager {
	t.Helper()
	return NewManager(Config{TeeEnabled: teeEnabled, SessionLogCapacity: 50}, runtime, audit.NewBus(), zap.NewNop())
}

func TestManagerCreateSessionReusesActive(t *testing.T) {
	m := testManager(t, false, nil)

	s1 := m.CreateSession("u1", "telegram", "chat-1")
	s2 := m.CreateSession("u1", "telegram", "chat-1")
	assert.Equal(t, s1.ID, s2.ID)
	assert.Equal(t, 1, m.SessionCount())

	s3 := m.CreateSession("u1", "telegram", "chat-2")
	assert.NotEqual(t, s1.ID, s3.ID)
	assert.Equal(t, 2, m.SessionCount())
}

func TestManagerTerminateSessionRemovesFromIndex(t *testing.T) {
	m := testManager(t, false, nil)
	s := m.CreateSession("u1", "telegram", "chat-1")

	require.NoError(t, m.TerminateSession(s.ID))

	_, ok := m.GetSession(s.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, m.SessionCount())
}

func TestManagerUpgradeFailsWhenTeeDisabled(t *testing.T) {
	m := testManager(t, false, nil)
	s := m.CreateSession("u1", "telegram", "chat-1")

	err := m.UpgradeToTee(s.ID)
	assert.Error(t, err)
}

func TestManagerUpgradeFailsWithoutTeeHardware(t *testing.T) {
	runtime := &tee.Runtime{}
	m := testManager(t, true, runtime)
	s := m.CreateSession("u1", "telegram", "chat-1")

	err := m.UpgradeToTee(s.ID)
	assert.Error(t, err)
}

func TestManagerUpgradeNonexistentSessionFails(t *testing.T) {
	m := testManager(t, true, nil)
	err := m.UpgradeToTee("nonexistent")
	assert.Error(t, err)
}

func TestManagerTerminateSessionWipesIsolation(t *testing.T) {
	m := testManager(t, false, nil)
	s := m.CreateSession("u1", "telegram", "chat-1")

	reg := m.Isolation().Registry(s.ID)
	require.NotNil(t, reg)
	reg.Register("secret-data", "api_key", s.ID)

	require.NoError(t, m.TerminateSession(s.ID))
	assert.Nil(t, m.Isolation().Registry(s.ID))
}

func TestManagerCleanupInactiveTerminatesIdleSessions(t *testing.T) {
	m := testManager(t, false, nil)
	s := m.CreateSession("u1", "telegram", "chat-1")

	// force last_activity into the past by sleeping past a tiny threshold
	time.Sleep(5 * time.Millisecond)

	cleaned := m.CleanupInactive(nil, time.Millisecond)
	assert.Equal(t, 1, cleaned)

	_, ok := m.GetSession(s.ID)
	assert.False(t, ok)
}
