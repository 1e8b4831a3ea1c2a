package events

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/arc-self/safeclaw-gateway/internal/errs"
)

// StateStore persists durable subscription filters so the Event Bus can
// re-subscribe them on restart.
type StateStore interface {
	SaveFilters(ctx context.Context, filters []SubscriptionFilter) error
	LoadFilters(ctx context.Context) ([]SubscriptionFilter, error)
}

// FileStateStore writes the whole filter set as one JSON document via
// temp-file-then-rename, matching spec §6's "atomic write" requirement for
// single-node deployments without Postgres.
type FileStateStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{path: path}
}

func (s *FileStateStore) SaveFilters(_ context.Context, filters []SubscriptionFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(filters)
	if err != nil {
		return errs.Wrap(errs.KindSerialization, "failed to marshal filters", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".filters-*.tmp")
	if err != nil {
		return errs.Wrap(errs.KindProvider, "failed to create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.Wrap(errs.KindProvider, "failed to write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.KindProvider, "failed to close temp file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errs.Wrap(errs.KindProvider, "failed to rename temp file into place", err)
	}
	return nil
}

func (s *FileStateStore) LoadFilters(_ context.Context) ([]SubscriptionFilter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindProvider, "failed to read filter state", err)
	}
	var filters []SubscriptionFilter
	if err := json.Unmarshal(data, &filters); err != nil {
		return nil, errs.Wrap(errs.KindSerialization, "failed to unmarshal filter state", err)
	}
	return filters, nil
}
