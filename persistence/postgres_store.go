package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists snapshots as JSONB rows.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and migrates the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	store := &PostgresStore{pool: pool}
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates the tables if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS ceylo_conversations (
			id TEXT PRIMARY KEY,
			phase TEXT NOT NULL,
			destination TEXT NOT NULL DEFAULT '',
			user_turns INTEGER NOT NULL DEFAULT 0,
			has_plan BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			snapshot JSONB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ceylo_conversations_updated ON ceylo_conversations(updated_at DESC);`,
	}
	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Save upserts the snapshot.
func (s *PostgresStore) Save(ctx context.Context, snapshot ConversationSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ceylo_conversations (id, phase, destination, user_turns, has_plan, created_at, updated_at, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			phase = EXCLUDED.phase,
			destination = EXCLUDED.destination,
			user_turns = EXCLUDED.user_turns,
			has_plan = EXCLUDED.has_plan,
			updated_at = EXCLUDED.updated_at,
			snapshot = EXCLUDED.snapshot
	`, snapshot.ID, snapshot.Phase.String(), snapshot.Profile.Destination, snapshot.UserTurns,
		snapshot.Plan != nil, snapshot.CreatedAt, snapshot.UpdatedAt, data)
	return err
}

// Load reads one snapshot.
func (s *PostgresStore) Load(ctx context.Context, id string) (*ConversationSnapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT snapshot FROM ceylo_conversations WHERE id=$1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	var snap ConversationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// List returns summaries, most recent first.
func (s *PostgresStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, phase, destination, user_turns, has_plan, updated_at
		FROM ceylo_conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var (
			item  Summary
			phase string
		)
		if err := rows.Scan(&item.ID, &phase, &item.Destination, &item.UserTurns, &item.HasPlan, &item.UpdatedAt); err != nil {
			return nil, err
		}
		if err := item.Phase.UnmarshalText([]byte(phase)); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Delete removes a snapshot.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ceylo_conversations WHERE id=$1`, id)
	return err
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
