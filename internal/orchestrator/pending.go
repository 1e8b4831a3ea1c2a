package orchestrator

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arc-self/safeclaw-gateway/internal/errs"
)

// PendingStore holds sensitive messages awaiting card-based user
// authorization, keyed by the card's delivered message ID, with a TTL per
// spec §4.10 step 3 (default 5 minutes).
type PendingStore interface {
	Put(ctx context.Context, key string, msg PendingSensitiveMessage, ttl time.Duration) error
	Take(ctx context.Context, key string) (PendingSensitiveMessage, bool, error)
	Sweep(ctx context.Context) ([]PendingSensitiveMessage, error)
}

// MemoryPendingStore is the default, dependency-free PendingStore: an
// in-process map guarded by a mutex, each entry carrying its own expiry.
type MemoryPendingStore struct {
	mu      sync.Mutex
	entries map[string]pendingEntry
}

type pendingEntry struct {
	msg       PendingSensitiveMessage
	expiresAt time.Time
}

func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{entries: make(map[string]pendingEntry)}
}

func (s *MemoryPendingStore) Put(_ context.Context, key string, msg PendingSensitiveMessage, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = pendingEntry{msg: msg, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryPendingStore) Take(_ context.Context, key string) (PendingSensitiveMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return PendingSensitiveMessage{}, false, nil
	}
	delete(s.entries, key)
	if time.Now().After(e.expiresAt) {
		return PendingSensitiveMessage{}, false, nil
	}
	return e.msg, true, nil
}

// Sweep removes and returns every entry that has expired, for the caller
// to notify (e.g. replace the card with an "expired" notice).
func (s *MemoryPendingStore) Sweep(_ context.Context) ([]PendingSensitiveMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var expired []PendingSensitiveMessage
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			expired = append(expired, e.msg)
			delete(s.entries, key)
		}
	}
	return expired, nil
}

// RedisPendingStore is the multi-instance-safe PendingStore: entries live
// in Redis with a native TTL, plus a sorted set of (key, expiry) so Sweep
// can find expired entries without scanning the whole keyspace.
type RedisPendingStore struct {
	client *redis.Client
	prefix string
}

func NewRedisPendingStore(client *redis.Client, prefix string) *RedisPendingStore {
	if prefix == "" {
		prefix = "safeclaw:pending:"
	}
	return &RedisPendingStore{client: client, prefix: prefix}
}

const pendingExpiryIndexKey = "safeclaw:pending:index"

func (s *RedisPendingStore) dataKey(key string) string { return s.prefix + key }

func (s *RedisPendingStore) Put(ctx context.Context, key string, msg PendingSensitiveMessage, ttl time.Duration) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errs.Wrap(errs.KindSerialization, "failed to marshal pending message", err)
	}
	expiresAt := time.Now().Add(ttl)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(key), data, ttl)
	pipe.ZAdd(ctx, pendingExpiryIndexKey, redis.Z{Score: float64(expiresAt.Unix()), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Wrap(errs.KindProvider, "failed to store pending message", err)
	}
	return nil
}

func (s *RedisPendingStore) Take(ctx context.Context, key string) (PendingSensitiveMessage, bool, error) {
	data, err := s.client.GetDel(ctx, s.dataKey(key)).Bytes()
	s.client.ZRem(ctx, pendingExpiryIndexKey, key)
	if err == redis.Nil {
		return PendingSensitiveMessage{}, false, nil
	}
	if err != nil {
		return PendingSensitiveMessage{}, false, errs.Wrap(errs.KindProvider, "failed to fetch pending message", err)
	}
	var msg PendingSensitiveMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return PendingSensitiveMessage{}, false, errs.Wrap(errs.KindSerialization, "failed to unmarshal pending message", err)
	}
	return msg, true, nil
}

func (s *RedisPendingStore) Sweep(ctx context.Context) ([]PendingSensitiveMessage, error) {
	max := strconv.FormatInt(time.Now().Unix(), 10)
	keys, err := s.client.ZRangeByScore(ctx, pendingExpiryIndexKey, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return nil, errs.Wrap(errs.KindProvider, "failed to scan pending expiry index", err)
	}

	var expired []PendingSensitiveMessage
	for _, key := range keys {
		data, err := s.client.GetDel(ctx, s.dataKey(key)).Bytes()
		s.client.ZRem(ctx, pendingExpiryIndexKey, key)
		if err != nil {
			continue // already taken by a concurrent caller, or genuinely gone
		}
		var msg PendingSensitiveMessage
		if err := json.Unmarshal(data, &msg); err == nil {
			expired = append(expired, msg)
		}
	}
	return expired, nil
}

