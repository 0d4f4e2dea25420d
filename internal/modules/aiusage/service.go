package aiusage

import (
	"context"
	"errors"
)

type store interface {
	UseToken(ctx context.Context, uid string) error
	EnsureUser(ctx context.Context, uid string) error
}

// Service gates generative rephrasing behind a monthly per-phone quota.
type Service struct {
	store store
}

// NewService creates a Service backed by the given Store.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// UseToken deducts one token from the phone's monthly allowance.
// If the row does not exist yet it is initialised and the token is immediately consumed.
// Returns ErrInsufficientTokens when the quota for the current month is exhausted.
func (s *Service) UseToken(ctx context.Context, uid string) error {
	err := s.store.UseToken(ctx, uid)
	if !errors.Is(err, ErrInsufficientTokens) {
		return err
	}

	// Row may be missing: try to create it, then retry the deduction once.
	if initErr := s.store.EnsureUser(ctx, uid); initErr != nil {
		return initErr
	}
	return s.store.UseToken(ctx, uid)
}
