package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/arc-self/safeclaw-gateway/internal/events"
)

// RunGlobalLog drains ch into log until ctx is done or ch is closed.
func RunGlobalLog(ctx context.Context, ch <-chan Event, log *RingLog) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			log.Append(ev)
		}
	}
}

// RunSessionLogs drains ch into logs until ctx is done or ch is closed.
func RunSessionLogs(ctx context.Context, ch <-chan Event, logs *SessionLogs) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			logs.Append(ev)
		}
	}
}

// AlertThreshold is the minimum severity that triggers the alert monitor.
const AlertThreshold = SeverityHigh

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AlertFunc is invoked for every event at or above AlertThreshold.
type AlertFunc func(Event)

// RunAlertMonitor drains ch, calling notify for High/Critical events.
func RunAlertMonitor(ctx context.Context, ch <-chan Event, notify AlertFunc) {
	threshold := severityRank[AlertThreshold]
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if severityRank[ev.Severity] >= threshold {
				notify(ev)
			}
		}
	}
}

// RunEventBusBridge republishes every audit event as an Event onto the
// Event Bus under subject "audit.<vector>", per spec §4.8.
func RunEventBusBridge(ctx context.Context, ch <-chan Event, bus *events.Bus, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			subject := events.BuildSubject("audit", string(ev.Vector))
			evt := events.NewEvent(subject, "audit", ev.Description, "audit-bus", ev)
			evt = evt.WithMetadata("severity", string(ev.Severity)).
				WithMetadata("vector", string(ev.Vector)).
				WithMetadata("session_id", ev.SessionID).
				WithMetadata("actor", ev.Actor)
			if _, err := bus.Publish(ctx, evt); err != nil {
				log.Warn("audit event bus bridge publish failed", zap.Error(err))
			}
		}
	}
}
