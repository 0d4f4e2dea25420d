package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"novobot/internal/keylock"
)

// Sweeper evicts sessions idle for longer than the configured window. It takes
// the same per-session lock the assistant holds during a turn.
type Sweeper struct {
	store    Store
	locks    *keylock.Locker
	idle     time.Duration
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func NewSweeper(store Store, locks *keylock.Locker, idle, interval time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{store: store, locks: locks, idle: idle, interval: interval, log: log, now: time.Now}
}

func (s *Sweeper) RunEviction(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				s.log.Warn("session sweep failed", zap.Error(err))
			} else if n > 0 {
				s.log.Info("evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Sweep deletes every expired session not currently in a turn and reports how many it removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.idle)
	keys, err := s.store.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	evicted := 0
	for _, key := range keys {
		unlock, ok := s.locks.TryLock(key)
		if !ok {
			continue
		}
		// Re-check under the lock; a turn may have refreshed it.
		sess, err := s.store.Get(ctx, key)
		switch {
		case errors.Is(err, ErrNotFound):
			// The value expired on its own; drop the stale index entry.
			if err := s.store.Delete(ctx, key); err != nil {
				s.log.Warn("drop expired session index", zap.String("key", key), zap.Error(err))
			}
		case err != nil:
			s.log.Warn("load session for eviction", zap.String("key", key), zap.Error(err))
		case sess.LastActive.Before(cutoff):
			if err := s.store.Delete(ctx, key); err != nil {
				s.log.Warn("evict session", zap.String("key", key), zap.Error(err))
			} else {
				evicted++
			}
		}
		unlock()
	}
	return evicted, nil
}
