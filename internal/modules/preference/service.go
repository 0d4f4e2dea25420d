// README: Preference learner and suggestion generator backed by an active-memory cache.
package preference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"novobot/internal/config"
	"novobot/internal/keylock"
	"novobot/internal/modules/dialogue"
	"novobot/internal/modules/nlu"
)

// Service keeps recently active profiles in memory and writes them through to
// the Store in batches.
type Service struct {
	store  Store
	cfg    config.MemoryConfig
	active *cache.Cache
	locks  *keylock.Locker
	log    *zap.Logger
	now    func() time.Time
}

func NewService(store Store, cfg config.MemoryConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	idle := time.Duration(cfg.InactivityMinutes) * time.Minute
	s := &Service{
		store:  store,
		cfg:    cfg,
		active: cache.New(idle, idle/2),
		locks:  keylock.New(),
		log:    log,
		now:    time.Now,
	}
	s.active.OnEvicted(s.flush)
	return s
}

// Profile returns the phone's profile, loading it into active memory.
// Unknown phones get an empty profile.
func (s *Service) Profile(ctx context.Context, phone string) (Profile, error) {
	unlock := s.locks.Lock(phone)
	defer unlock()
	p, err := s.load(ctx, phone)
	if err != nil {
		return Profile{}, err
	}
	return p.clone(), nil
}

// Learn records one finished conversation. The profile is written to the store
// when the use count reaches the persistence threshold and at every batch multiple.
func (s *Service) Learn(ctx context.Context, phone string, slots dialogue.SlotSet, outcome Outcome) (Profile, error) {
	unlock := s.locks.Lock(phone)
	defer unlock()

	p, err := s.load(ctx, phone)
	if err != nil {
		return Profile{}, err
	}
	now := s.now()
	n := s.cfg.TopN
	p.Origins = bump(p.Origins, slots.Origin, now, n)
	p.Destinations = bump(p.Destinations, slots.Destination, now, n)
	p.Payments = bump(p.Payments, slots.PaymentMethod, now, n)
	if slots.Time != nil {
		p.Times = bump(p.Times, slots.Time.String(), now, n)
	}
	p.UseCount++
	p.UpdatedAt = now
	s.active.SetDefault(phone, p)

	if s.shouldPersist(p.UseCount) {
		if err := s.store.Put(ctx, p); err != nil {
			return p.clone(), fmt.Errorf("persist preferences: %w", err)
		}
		s.log.Debug("preferences persisted",
			zap.String("phone", phone), zap.Int("use_count", p.UseCount), zap.String("outcome", string(outcome)))
	}
	return p.clone(), nil
}

// Suggest proposes the top remembered value for each unfilled slot, in the order
// origin, destination, payment. Only returning users get suggestions.
func (s *Service) Suggest(ctx context.Context, phone string, slots dialogue.SlotSet) ([]Suggestion, error) {
	p, err := s.Profile(ctx, phone)
	if err != nil {
		return nil, err
	}
	return Suggestions(p, slots, s.cfg.ReturningUserThreshold), nil
}

// Suggestions is the pure part of Suggest.
func Suggestions(p Profile, slots dialogue.SlotSet, returningAfter int) []Suggestion {
	if p.UseCount <= returningAfter {
		return nil
	}
	var out []Suggestion
	if slots.Origin == "" {
		if v, ok := Top(p.Origins, slots.Destination); ok {
			out = append(out, Suggestion{Slot: nlu.SlotOrigin, Value: v, Message: fmt.Sprintf("¿Salís desde %s?", v), Confidence: 0.8})
		}
	}
	if slots.Destination == "" {
		if v, ok := Top(p.Destinations, slots.Origin); ok {
			out = append(out, Suggestion{Slot: nlu.SlotDestination, Value: v, Message: fmt.Sprintf("¿Vas a %s?", v), Confidence: 0.8})
		}
	}
	if slots.PaymentMethod == "" {
		if v, ok := Top(p.Payments); ok {
			out = append(out, Suggestion{Slot: nlu.SlotPayment, Value: v, Message: fmt.Sprintf("¿Pagás con %s?", v), Confidence: 0.9})
		}
	}
	return out
}

// Flush writes every active profile that reached the persistence threshold.
// Called on shutdown.
func (s *Service) Flush(ctx context.Context) {
	for phone, item := range s.active.Items() {
		p := item.Object.(Profile)
		if p.UseCount < s.cfg.MinPersistUses {
			continue
		}
		if err := s.store.Put(ctx, p); err != nil {
			s.log.Warn("flush preferences failed", zap.String("phone", phone), zap.Error(err))
		}
	}
}

func (s *Service) shouldPersist(useCount int) bool {
	if useCount < s.cfg.MinPersistUses {
		return false
	}
	return useCount == s.cfg.MinPersistUses || useCount%s.cfg.PersistBatch == 0
}

// load must be called with the phone lock held.
func (s *Service) load(ctx context.Context, phone string) (Profile, error) {
	if v, ok := s.active.Get(phone); ok {
		p := v.(Profile)
		s.active.SetDefault(phone, p)
		return p, nil
	}
	p, err := s.store.Get(ctx, phone)
	switch {
	case errors.Is(err, ErrNotFound):
		p = Profile{Phone: phone}
	case err != nil:
		return Profile{}, fmt.Errorf("load preferences %s: %w", phone, err)
	}
	s.active.SetDefault(phone, p)
	return p, nil
}

// flush runs when the janitor evicts an inactive profile, so counts learned
// since the last batch write are not lost.
func (s *Service) flush(phone string, v interface{}) {
	p := v.(Profile)
	// Profiles below the threshold stay unpersisted; batch multiples were written by Learn.
	if s.shouldPersist(p.UseCount) || p.UseCount < s.cfg.MinPersistUses {
		return
	}
	unlock := s.locks.Lock(phone)
	defer unlock()
	if cur, ok := s.active.Get(phone); ok {
		// Reloaded from the store between eviction and this callback.
		if cur.(Profile).UseCount >= p.UseCount {
			return
		}
		s.active.SetDefault(phone, p)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Put(ctx, p); err != nil {
		s.log.Warn("persist evicted preferences failed", zap.String("phone", phone), zap.Error(err))
	}
}
