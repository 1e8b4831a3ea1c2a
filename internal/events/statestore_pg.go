package events

import (
	"context"
	"encoding/json"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arc-self/safeclaw-gateway/internal/errs"
)

// PgStateStore persists one row per subscriber into the
// subscription_filters table, for deployments that already run Postgres
// for the rest of the gateway's durable state (audit log, etc.) instead of
// a bare filesystem.
//
// DDL (applied by the operator, not by this package):
//
//	CREATE TABLE subscription_filters (
//	    subscriber_id TEXT PRIMARY KEY,
//	    subjects      JSONB NOT NULL,
//	    durable       BOOLEAN NOT NULL,
//	    options       JSONB
//	);
type PgStateStore struct {
	pool *pgxpool.Pool
}

// NewPgPool builds a pgxpool instrumented with otelpgx the way
// privacy-service/audit-service wrap their pools for trace propagation.
func NewPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "failed to parse postgres dsn", err)
	}
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "failed to open postgres pool", err)
	}
	return pool, nil
}

func NewPgStateStore(pool *pgxpool.Pool) *PgStateStore {
	return &PgStateStore{pool: pool}
}

func (s *PgStateStore) SaveFilters(ctx context.Context, filters []SubscriptionFilter) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.Wrap(errs.KindConnection, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM subscription_filters`); err != nil {
		return errs.Wrap(errs.KindProvider, "failed to clear filters", err)
	}

	for _, f := range filters {
		if !f.Durable {
			continue
		}
		subjects, err := json.Marshal(f.Subjects)
		if err != nil {
			return errs.Wrap(errs.KindSerialization, "failed to marshal subjects", err)
		}
		var optionsJSON []byte
		if f.Options != nil {
			optionsJSON, err = json.Marshal(f.Options)
			if err != nil {
				return errs.Wrap(errs.KindSerialization, "failed to marshal options", err)
			}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO subscription_filters (subscriber_id, subjects, durable, options)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (subscriber_id) DO UPDATE SET subjects = $2, durable = $3, options = $4
		`, f.SubscriberID, subjects, f.Durable, optionsJSON)
		if err != nil {
			return errs.Wrap(errs.KindProvider, "failed to upsert filter", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errs.Wrap(errs.KindProvider, "failed to commit filter state", err)
	}
	return nil
}

func (s *PgStateStore) LoadFilters(ctx context.Context) ([]SubscriptionFilter, error) {
	rows, err := s.pool.Query(ctx, `SELECT subscriber_id, subjects, durable, options FROM subscription_filters`)
	if err != nil {
		return nil, errs.Wrap(errs.KindProvider, "failed to query filters", err)
	}
	defer rows.Close()

	var out []SubscriptionFilter
	for rows.Next() {
		var f SubscriptionFilter
		var subjects []byte
		var options []byte
		if err := rows.Scan(&f.SubscriberID, &subjects, &f.Durable, &options); err != nil {
			return nil, errs.Wrap(errs.KindSerialization, "failed to scan filter row", err)
		}
		if err := json.Unmarshal(subjects, &f.Subjects); err != nil {
			return nil, errs.Wrap(errs.KindSerialization, "failed to unmarshal subjects", err)
		}
		if len(options) > 0 {
			var opts SubscribeOptions
			if err := json.Unmarshal(options, &opts); err != nil {
				return nil, errs.Wrap(errs.KindSerialization, "failed to unmarshal options", err)
			}
			f.Options = &opts
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindProvider, "error iterating filter rows", err)
	}
	return out, nil
}
