// README: Transcript stores: PostgreSQL, the embedded SQLite file and an in-process map.
package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store appends turns and reads a conversation back in Seq order. Appending a
// (ConversationID, Seq) pair twice keeps the first row.
type Store interface {
	Append(ctx context.Context, t Turn) error
	List(ctx context.Context, conversationID string, limit int) ([]Turn, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, t Turn) error {
	if err := t.validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO conversation_turns (
			conversation_id, seq, phone, user_text, reply, intent, mood, state, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (conversation_id, seq) DO NOTHING
	`, t.ConversationID, t.Seq, t.Phone, t.UserText, t.Reply, t.Intent, t.Mood, t.State, t.CreatedAt)
	return err
}

func (s *PostgresStore) List(ctx context.Context, conversationID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.Query(ctx, `
		SELECT conversation_id::text, seq, phone, user_text, reply, intent, mood, state, created_at
		FROM conversation_turns
		WHERE conversation_id = $1
		ORDER BY seq
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ConversationID, &t.Seq, &t.Phone, &t.UserText, &t.Reply,
			&t.Intent, &t.Mood, &t.State, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SQLiteStore shares the embedded database with the preference store.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversation_turns (
			conversation_id TEXT NOT NULL,
			seq             INTEGER NOT NULL,
			phone           TEXT NOT NULL,
			user_text       TEXT NOT NULL,
			reply           TEXT NOT NULL,
			intent          TEXT NOT NULL,
			mood            TEXT NOT NULL,
			state           TEXT NOT NULL,
			created_at      TIMESTAMP NOT NULL,
			PRIMARY KEY (conversation_id, seq)
		)`)
	if err != nil {
		return nil, fmt.Errorf("create conversation_turns: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, t Turn) error {
	if err := t.validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (
			conversation_id, seq, phone, user_text, reply, intent, mood, state, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, seq) DO NOTHING
	`, t.ConversationID, t.Seq, t.Phone, t.UserText, t.Reply, t.Intent, t.Mood, t.State, t.CreatedAt.UTC())
	return err
}

func (s *SQLiteStore) List(ctx context.Context, conversationID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, seq, phone, user_text, reply, intent, mood, state, created_at
		FROM conversation_turns
		WHERE conversation_id = ?
		ORDER BY seq
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ConversationID, &t.Seq, &t.Phone, &t.UserText, &t.Reply,
			&t.Intent, &t.Mood, &t.State, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MemoryStore keeps transcripts in process memory; used in tests and demos.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: map[string][]Turn{}}
}

func (s *MemoryStore) Append(_ context.Context, t Turn) error {
	if err := t.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.turns[t.ConversationID]
	for _, existing := range list {
		if existing.Seq == t.Seq {
			return nil
		}
	}
	list = append(list, t)
	sort.Slice(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	s.turns[t.ConversationID] = list
	return nil
}

func (s *MemoryStore) List(_ context.Context, conversationID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.turns[conversationID]
	if len(list) > limit {
		list = list[:limit]
	}
	return append([]Turn(nil), list...), nil
}
