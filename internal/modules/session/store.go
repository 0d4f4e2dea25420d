// README: Session stores; in-process map and Redis with optimistic versioning.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"novobot/internal/modules/validation"
)

// Store holds live sessions. Put succeeds only when s.Version equals the stored
// version (0 for a new session) and returns the session with Version+1.
type Store interface {
	Get(ctx context.Context, key string) (Session, error)
	Put(ctx context.Context, s Session) (Session, error)
	Delete(ctx context.Context, key string) error
	ListExpired(ctx context.Context, before time.Time) ([]string, error)
}

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return Session{}, ErrNotFound
	}
	return clone(s), nil
}

func (m *MemoryStore) Put(_ context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := s.Key()
	if cur := m.sessions[key]; cur.Version != s.Version {
		return Session{}, ErrConflict
	}
	s.Version++
	m.sessions[key] = clone(s)
	return s, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

func (m *MemoryStore) ListExpired(_ context.Context, before time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k, s := range m.sessions {
		if s.LastActive.Before(before) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

const (
	sessionKeyPrefix = "session:%s"
	activeIndexKey   = "session:active"
)

// RedisStore keeps each session as JSON and indexes keys by last activity in a sorted set.
type RedisStore struct {
	redis *redis.Client
	// ttl is a backstop; the sweeper normally deletes sessions first.
	ttl time.Duration
}

func NewRedisStore(redis *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: redis, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, key string) (Session, error) {
	raw, err := r.redis.Get(ctx, sessionKey(key)).Bytes()
	if err == redis.Nil {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", key, err)
	}
	return s, nil
}

func (r *RedisStore) Put(ctx context.Context, s Session) (Session, error) {
	key := s.Key()
	rk := sessionKey(key)
	next := s
	next.Version++
	raw, err := json.Marshal(next)
	if err != nil {
		return Session{}, err
	}

	err = r.redis.Watch(ctx, func(tx *redis.Tx) error {
		var stored int64
		cur, err := tx.Get(ctx, rk).Bytes()
		switch {
		case err == redis.Nil:
		case err != nil:
			return err
		default:
			var prev Session
			if err := json.Unmarshal(cur, &prev); err != nil {
				return fmt.Errorf("decode session %s: %w", key, err)
			}
			stored = prev.Version
		}
		if stored != s.Version {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, raw, r.ttl)
			pipe.ZAdd(ctx, activeIndexKey, redis.Z{Score: float64(next.LastActive.Unix()), Member: key})
			return nil
		})
		return err
	}, rk)
	if errors.Is(err, redis.TxFailedErr) {
		return Session{}, ErrConflict
	}
	if err != nil {
		return Session{}, err
	}
	return next, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	pipe := r.redis.TxPipeline()
	pipe.Del(ctx, sessionKey(key))
	pipe.ZRem(ctx, activeIndexKey, key)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) ListExpired(ctx context.Context, before time.Time) ([]string, error) {
	return r.redis.ZRangeByScore(ctx, activeIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.Unix(), 10),
	}).Result()
}

func sessionKey(key string) string {
	return fmt.Sprintf(sessionKeyPrefix, key)
}

func clone(s Session) Session {
	c := s
	c.Slots = s.Slots.Clone()
	c.Warnings = append([]validation.Note(nil), s.Warnings...)
	if s.Pending != nil {
		p := *s.Pending
		c.Pending = &p
	}
	return c
}
