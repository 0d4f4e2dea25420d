// README: Preference persistence backends: Postgres, SQLite and in-process.
package preference

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/patrickmn/go-cache"
)

// Store persists profiles. Get returns ErrNotFound for unknown phones.
type Store interface {
	Get(ctx context.Context, phone string) (Profile, error)
	Put(ctx context.Context, p Profile) error
}

// PostgresStore keeps one JSONB row per phone in user_preferences.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, phone string) (Profile, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT profile FROM user_preferences WHERE phone = $1`, phone).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile %s: %w", phone, err)
	}
	return p, nil
}

func (s *PostgresStore) Put(ctx context.Context, p Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO user_preferences (phone, profile, use_count, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO UPDATE SET
			profile = EXCLUDED.profile,
			use_count = EXCLUDED.use_count,
			updated_at = EXCLUDED.updated_at
	`, p.Phone, raw, p.UseCount, p.UpdatedAt)
	return err
}

// SQLiteStore is the embedded backend for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_preferences (
			phone      TEXT PRIMARY KEY,
			profile    TEXT NOT NULL,
			use_count  INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("create user_preferences: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, phone string) (Profile, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT profile FROM user_preferences WHERE phone = ?`, phone).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile %s: %w", phone, err)
	}
	return p, nil
}

func (s *SQLiteStore) Put(ctx context.Context, p Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (phone, profile, use_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (phone) DO UPDATE SET
			profile = excluded.profile,
			use_count = excluded.use_count,
			updated_at = excluded.updated_at
	`, p.Phone, string(raw), p.UseCount, p.UpdatedAt)
	return err
}

// MemoryStore never expires entries; used in tests and when no database is configured.
type MemoryStore struct {
	c *cache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: cache.New(cache.NoExpiration, 0)}
}

func (s *MemoryStore) Get(_ context.Context, phone string) (Profile, error) {
	v, ok := s.c.Get(phone)
	if !ok {
		return Profile{}, ErrNotFound
	}
	return v.(Profile).clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, p Profile) error {
	s.c.Set(p.Phone, p.clone(), cache.NoExpiration)
	return nil
}
