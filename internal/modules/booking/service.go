// README: Booking service turns a finalized dialogue into a confirmed booking.
package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"novobot/internal/modules/dialogue"
	"novobot/internal/modules/pricing"
	"novobot/internal/types"
)

// DefaultListLimit bounds ListByPhone when the caller passes no limit.
const DefaultListLimit = 20

type Service struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log, now: time.Now}
}

// RecordCommand carries a completed trip.
type RecordCommand struct {
	Phone          string
	ConversationID string
	Slots          dialogue.SlotSet
	Estimate       *pricing.Estimate
	// PickupAt is nil for immediate trips.
	PickupAt *time.Time
}

func (s *Service) Record(ctx context.Context, cmd RecordCommand) (*Booking, error) {
	if cmd.Phone == "" || !cmd.Slots.Complete() {
		return nil, ErrBadRequest
	}
	b := &Booking{
		ID:             types.ID(uuid.NewString()),
		Phone:          cmd.Phone,
		ConversationID: cmd.ConversationID,
		Origin:         cmd.Slots.Origin,
		Destination:    cmd.Slots.Destination,
		Stops:          append([]string(nil), cmd.Slots.IntermediateStops...),
		Payment:        cmd.Slots.PaymentMethod,
		ServiceType:    string(cmd.Slots.ServiceType),
		PickupAt:       cmd.PickupAt,
		Status:         StatusConfirmed,
		CreatedAt:      s.now().UTC(),
	}
	for _, sp := range cmd.Slots.SpecialServices {
		b.SpecialServices = append(b.SpecialServices, string(sp))
	}
	if cmd.Estimate != nil {
		total := cmd.Estimate.Total
		b.Estimate = &total
		b.EstimateRange = cmd.Estimate.RangeLabel
	}
	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}
	s.log.Info("booking confirmed",
		zap.String("booking_id", string(b.ID)),
		zap.String("phone", b.Phone),
		zap.String("service_type", b.ServiceType),
	)
	return b, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByPhone(ctx context.Context, phone string, limit int) ([]Booking, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.store.ListByPhone(ctx, phone, limit)
}

// Transition moves a booking along AllowedTransitions.
func (s *Service) Transition(ctx context.Context, id types.ID, to Status) (*Booking, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(b.Status, to) {
		return nil, ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, id, b.Status, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	s.log.Info("booking status changed",
		zap.String("booking_id", string(id)),
		zap.String("from", string(b.Status)),
		zap.String("to", string(to)),
	)
	b.Status = to
	return b, nil
}
