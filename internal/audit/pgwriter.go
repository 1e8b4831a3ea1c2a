package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"go.uber.org/zap"
)

// PgWriter appends every audit event to durable storage and can restore
// the most recent N events at startup.
//
// Expected schema:
//
//	CREATE TABLE audit_events (
//	    id           TEXT PRIMARY KEY,
//	    ts           TIMESTAMPTZ NOT NULL,
//	    actor        TEXT NOT NULL,
//	    severity     TEXT NOT NULL,
//	    vector       TEXT NOT NULL,
//	    description  TEXT NOT NULL,
//	    session_id   TEXT,
//	    metadata     JSONB
//	);
type PgWriter struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewPgWriter(pool *pgxpool.Pool, log *zap.Logger) *PgWriter {
	return &PgWriter{pool: pool, log: log}
}

func (w *PgWriter) Write(ctx context.Context, ev Event) error {
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return err
	}
	_, err = w.pool.Exec(ctx, `
		INSERT INTO audit_events (id, ts, actor, severity, vector, description, session_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Timestamp, ev.Actor, string(ev.Severity), string(ev.Vector), ev.Description, ev.SessionID, metadata)
	return err
}

// Restore loads the most recent limit events, oldest first, for replay
// into the global RingLog at startup.
func (w *PgWriter) Restore(ctx context.Context, limit int) ([]Event, error) {
	rows, err := w.pool.Query(ctx, `
		SELECT id, ts, actor, severity, vector, description, session_id, metadata
		FROM audit_events
		ORDER BY ts DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var severity, vector string
		var metadata []byte
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Actor, &severity, &vector, &ev.Description, &ev.SessionID, &metadata); err != nil {
			return nil, err
		}
		ev.Severity = Severity(severity)
		ev.Vector = Vector(vector)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse to oldest-first for natural replay order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RunPersistenceWriter drains ch, writing every event to w. Write failures
// are logged, not retried — the in-memory RingLog already holds the event
// for callers that only need recent history.
func RunPersistenceWriter(ctx context.Context, ch <-chan Event, w *PgWriter) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := w.Write(ctx, ev); err != nil {
				w.log.Warn("audit persistence write failed", zap.Error(err))
			}
		}
	}
}
