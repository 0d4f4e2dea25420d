// README: Booking stores: PostgreSQL for deployments, in-process map for tests and demos.
package booking

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"novobot/internal/types"
)

type Store interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	ListByPhone(ctx context.Context, phone string, limit int) ([]Booking, error)
	// UpdateStatus moves id from one status to another and reports whether a row matched.
	UpdateStatus(ctx context.Context, id types.ID, from, to Status) (bool, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, b *Booking) error {
	var total *int64
	if b.Estimate != nil {
		n := b.Estimate.Amount
		total = &n
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO bookings (
			id, phone, conversation_id, origin, destination, stops,
			payment, service_type, pickup_at, special_services,
			estimate_total, estimate_range, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14
		)`,
		string(b.ID), b.Phone, b.ConversationID, b.Origin, b.Destination, nonNil(b.Stops),
		b.Payment, b.ServiceType, b.PickupAt, nonNil(b.SpecialServices),
		total, b.EstimateRange, string(b.Status), b.CreatedAt,
	)
	return err
}

const selectBooking = `
	SELECT id::text, phone, conversation_id::text, origin, destination, stops,
	       payment, service_type, pickup_at, special_services,
	       estimate_total, COALESCE(estimate_range, ''), status, created_at
	FROM bookings`

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Booking, error) {
	row := s.db.QueryRow(ctx, selectBooking+` WHERE id = $1`, string(id))
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *PostgresStore) ListByPhone(ctx context.Context, phone string, limit int) ([]Booking, error) {
	rows, err := s.db.Query(ctx, selectBooking+` WHERE phone = $1 ORDER BY created_at DESC LIMIT $2`, phone, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings SET status = $1
		WHERE id = $2 AND status = $3`,
		string(to), string(id), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var total *int64
	var status string
	err := row.Scan(
		&b.ID, &b.Phone, &b.ConversationID, &b.Origin, &b.Destination, &b.Stops,
		&b.Payment, &b.ServiceType, &b.PickupAt, &b.SpecialServices,
		&total, &b.EstimateRange, &status, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = Status(status)
	if total != nil {
		m := types.ARS(*total)
		b.Estimate = &m
	}
	return &b, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// MemoryStore keeps bookings in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[types.ID]Booking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookings: map[types.ID]Booking{}}
}

func (s *MemoryStore) Create(_ context.Context, b *Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = *b
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *MemoryStore) ListByPhone(_ context.Context, phone string, limit int) ([]Booking, error) {
	s.mu.RLock()
	var out []Booking
	for _, b := range s.bookings {
		if b.Phone == phone {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id types.ID, from, to Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	s.bookings[id] = b
	return true, nil
}
