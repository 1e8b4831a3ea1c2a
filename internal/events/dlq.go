package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DeadLetterEvent is the wrapper handed to a DlqHandler once an event
// exceeds its subscription's max delivery attempts.
type DeadLetterEvent struct {
	Event          ReceivedEvent
	Reason         string
	DeadLetteredAt time.Time
}

// DlqHandler receives events the provider has given up redelivering.
// Errors from Handle are logged by the caller, never re-raised — DLQ
// routing is always best-effort per spec.
type DlqHandler interface {
	Handle(ctx context.Context, dead DeadLetterEvent) error
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, limit int) ([]DeadLetterEvent, error)
}

// ShouldDeadLetter reports whether event has exhausted maxDeliver attempts.
// maxDeliver <= 0 means unlimited retries.
func ShouldDeadLetter(numDelivered uint64, maxDeliver int64) bool {
	return maxDeliver > 0 && int64(numDelivered) >= maxDeliver
}

// MemoryDlqHandler retains the last maxEvents dead letters, evicting the
// oldest first once over capacity. List returns most-recent-first,
// independent of eviction order.
type MemoryDlqHandler struct {
	mu        sync.RWMutex
	events    []DeadLetterEvent
	maxEvents int
	log       *zap.Logger
}

// DefaultMaxDeadLetters matches the original implementation's default cap.
const DefaultMaxDeadLetters = 10_000

// NewMemoryDlqHandler builds a handler capped at maxEvents (<=0 uses the
// default cap).
func NewMemoryDlqHandler(maxEvents int, log *zap.Logger) *MemoryDlqHandler {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxDeadLetters
	}
	return &MemoryDlqHandler{maxEvents: maxEvents, log: log}
}

func (h *MemoryDlqHandler) Handle(_ context.Context, dead DeadLetterEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.log.Warn("event dead-lettered",
		zap.String("event_id", dead.Event.Event.ID),
		zap.String("reason", dead.Reason),
		zap.Uint64("num_delivered", dead.Event.NumDelivered),
	)
	h.events = append(h.events, dead)
	if len(h.events) > h.maxEvents {
		drainCount := len(h.events) - h.maxEvents
		h.events = h.events[drainCount:]
	}
	return nil
}

func (h *MemoryDlqHandler) Count(_ context.Context) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events), nil
}

func (h *MemoryDlqHandler) List(_ context.Context, limit int) ([]DeadLetterEvent, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]DeadLetterEvent, limit)
	for i := 0; i < limit; i++ {
		out[i] = h.events[n-1-i]
	}
	return out, nil
}
