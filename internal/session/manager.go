package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/safeclaw-gateway/internal/audit"
	"github.com/arc-self/safeclaw-gateway/internal/errs"
	"github.com/arc-self/safeclaw-gateway/internal/privacy"
	"github.com/arc-self/safeclaw-gateway/internal/tee"
)

// Isolation holds the per-session taint registry and audit log together,
// so wiping a session wipes both as one unit.
type Isolation struct {
	mu          sync.RWMutex
	registries  map[string]*privacy.Registry
	sessionLogs *audit.SessionLogs
}

func NewIsolation(sessionLogCapacity int) *Isolation {
	return &Isolation{
		registries:  make(map[string]*privacy.Registry),
		sessionLogs: audit.NewSessionLogs(sessionLogCapacity),
	}
}

func (iso *Isolation) InitSession(sessionID string) {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	if _, ok := iso.registries[sessionID]; !ok {
		iso.registries[sessionID] = privacy.NewRegistry()
	}
}

func (iso *Isolation) Registry(sessionID string) *privacy.Registry {
	iso.mu.RLock()
	defer iso.mu.RUnlock()
	return iso.registries[sessionID]
}

// WipeSession clears a session's taint registry and drops its audit log,
// returning whether the registry wipe was verified.
func (iso *Isolation) WipeSession(sessionID string) privacy.WipeResult {
	iso.mu.Lock()
	reg, ok := iso.registries[sessionID]
	delete(iso.registries, sessionID)
	iso.mu.Unlock()

	iso.sessionLogs.Forget(sessionID)

	if !ok {
		return privacy.WipeResult{Verified: true}
	}
	return reg.Wipe()
}

// Manager indexes live sessions by id and by (user, channel, chat),
// and owns the shared TEE runtime + per-session isolation state.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	byUserKey   map[string]string
	isolation   *Isolation
	teeRuntime  *tee.Runtime
	teeEnabled  bool
	auditBus    *audit.Bus
	log         *zap.Logger
}

type Config struct {
	TeeEnabled         bool
	SessionLogCapacity int
}

func NewManager(cfg Config, teeRuntime *tee.Runtime, auditBus *audit.Bus, log *zap.Logger) *Manager {
	if cfg.SessionLogCapacity <= 0 {
		cfg.SessionLogCapacity = 500
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		byUserKey:  make(map[string]string),
		isolation:  NewIsolation(cfg.SessionLogCapacity),
		teeRuntime: teeRuntime,
		teeEnabled: cfg.TeeEnabled,
		auditBus:   auditBus,
		log:        log,
	}
}

func userKey(userID, channelID, chatID string) string {
	return userID + ":" + channelID + ":" + chatID
}

// CreateSession finds the existing active session for (userID, channelID,
// chatID) or creates a new one.
func (m *Manager) CreateSession(userID, channelID, chatID string) *Session {
	key := userKey(userID, channelID, chatID)

	m.mu.RLock()
	if id, ok := m.byUserKey[key]; ok {
		if existing, ok := m.sessions[id]; ok && existing.IsActive() {
			m.mu.RUnlock()
			return existing
		}
	}
	m.mu.RUnlock()

	s := NewSession(userID, channelID, chatID)
	s.SetState(StateActive)
	m.isolation.InitSession(s.ID)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.byUserKey[key] = s.ID
	m.mu.Unlock()

	m.log.Info("created session", zap.String("session_id", s.ID), zap.String("user_id", userID))
	return s
}

func (m *Manager) GetSession(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

func (m *Manager) GetUserSession(userID, channelID, chatID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUserKey[userKey(userID, channelID, chatID)]
	if !ok {
		return nil, false
	}
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Isolation() *Isolation {
	return m.isolation
}

func (m *Manager) IsTeeEnabled() bool {
	return m.teeEnabled
}

func (m *Manager) TeeRuntime() *tee.Runtime {
	return m.teeRuntime
}

// UpgradeToTee marks a session as TEE-active, failing if TEE is disabled,
// the session doesn't exist, or the runtime isn't genuinely TEE hardware.
func (m *Manager) UpgradeToTee(sessionID string) error {
	if !m.teeEnabled {
		return errs.New(errs.KindTee, "TEE is not enabled")
	}

	s, ok := m.GetSession(sessionID)
	if !ok {
		return errs.New(errs.KindNotFound, "session not found: "+sessionID)
	}
	if s.UsesTee() {
		return nil
	}
	if m.teeRuntime == nil || !m.teeRuntime.IsTeeActive() {
		level := tee.ProcessOnly
		if m.teeRuntime != nil {
			level = m.teeRuntime.Level()
		}
		return errs.New(errs.KindTee, "cannot upgrade to TEE: runtime security level is "+level.String()+" (need tee_hardware)")
	}

	s.MarkTeeActive()
	m.log.Info("upgraded session to tee", zap.String("session_id", sessionID))
	return nil
}

// TerminateSession transitions a session through Terminating → Terminated,
// wiping its taint registry and audit log, and removes it from the index.
func (m *Manager) TerminateSession(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.sessions, sessionID)
	delete(m.byUserKey, userKey(s.UserID, s.ChannelID, s.ChatID))
	m.mu.Unlock()

	s.SetState(StateTerminating)

	wipe := m.isolation.WipeSession(sessionID)
	if !wipe.Verified {
		m.log.Error("session wipe verification failed", zap.String("session_id", sessionID))
	}

	s.SetState(StateTerminated)
	m.log.Info("terminated session", zap.String("session_id", sessionID))
	return nil
}

func (m *Manager) ActiveSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.IsActive() {
			out = append(out, s)
		}
	}
	return out
}

func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupInactive terminates every session idle longer than maxIdle.
func (m *Manager) CleanupInactive(ctx context.Context, maxIdle time.Duration) int {
	now := time.Now()
	var idle []*Session
	m.mu.RLock()
	for _, s := range m.sessions {
		if now.Sub(s.LastActivity()) > maxIdle {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	cleaned := 0
	for _, s := range idle {
		if err := m.TerminateSession(s.ID); err != nil {
			m.log.Warn("failed to clean up idle session", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		cleaned++
	}
	if cleaned > 0 {
		m.log.Info("cleaned up inactive sessions", zap.Int("count", cleaned))
	}
	return cleaned
}
