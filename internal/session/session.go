// Package session implements the Session state machine and the
// SessionManager index described in spec §3 and §4.10.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arc-self/safeclaw-gateway/internal/privacy"
)

// State is the session lifecycle. Creating → Active → Processing ↔ Active
// → Terminating → Terminated, with Paused reachable from Active.
type State int

const (
	StateCreating State = iota
	StateActive
	StateProcessing
	StatePaused
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateProcessing:
		return "processing"
	case StatePaused:
		return "paused"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "creating"
	}
}

// Session is one user conversation. All mutable fields are guarded by a
// single mutex — the per-field Arc<RwLock<_>> split of the original
// implementation collapses naturally into one Go struct lock.
type Session struct {
	ID        string
	UserID    string
	ChannelID string
	ChatID    string
	CreatedAt time.Time

	mu               sync.RWMutex
	state            State
	sensitivityLevel privacy.Level
	lastActivity     time.Time
	messageCount     uint64
	teeActive        bool
	metadata         map[string]any
	disclosures      *privacy.DisclosureContext
}

func NewSession(userID, channelID, chatID string) *Session {
	now := time.Now()
	return &Session{
		ID:          "sess-" + uuid.NewString(),
		UserID:      userID,
		ChannelID:   channelID,
		ChatID:      chatID,
		CreatedAt:   now,
		state:       StateCreating,
		lastActivity: now,
		metadata:    make(map[string]any),
		disclosures: privacy.NewDisclosureContext(),
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateActive || s.state == StateProcessing
}

func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Session) IncrementMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageCount++
}

func (s *Session) MessageCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messageCount
}

// UpdateSensitivity raises the session's sensitivity level, never lowers
// it — sensitivity is monotonic for the life of the session.
func (s *Session) UpdateSensitivity(level privacy.Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level > s.sensitivityLevel {
		s.sensitivityLevel = level
	}
}

func (s *Session) SensitivityLevel() privacy.Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sensitivityLevel
}

// RecordDisclosures feeds the distinct PII categories from a classifier
// result into this session's cumulative disclosure context, used for
// split-message-attack defense.
func (s *Session) RecordDisclosures(categories []privacy.Category) {
	s.disclosures.Record(categories...)
}

// AssessPrivacyRisk evaluates the cumulative disclosure count against the
// configured thresholds.
func (s *Session) AssessPrivacyRisk(warnThreshold, rejectThreshold int) privacy.Decision {
	count := s.disclosures.Count()
	if count >= rejectThreshold {
		return privacy.DecisionReject
	}
	if count >= warnThreshold {
		return privacy.DecisionRequireConfirmation
	}
	return privacy.DecisionAllow
}

// DisclosureCount returns the number of distinct PII categories this
// session has cumulatively disclosed.
func (s *Session) DisclosureCount() int {
	return s.disclosures.Count()
}

func (s *Session) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
}

func (s *Session) GetMetadata(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.metadata[key]
	return v, ok
}

func (s *Session) MarkTeeActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teeActive = true
}

func (s *Session) UsesTee() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.teeActive
}
