package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists snapshots in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens/creates the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		phase TEXT NOT NULL,
		destination TEXT,
		user_turns INTEGER NOT NULL DEFAULT 0,
		has_plan BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		snapshot TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save upserts the snapshot.
func (s *SQLiteStore) Save(ctx context.Context, snapshot ConversationSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO conversations (id, phase, destination, user_turns, has_plan, created_at, updated_at, snapshot)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		phase=excluded.phase,
		destination=excluded.destination,
		user_turns=excluded.user_turns,
		has_plan=excluded.has_plan,
		updated_at=excluded.updated_at,
		snapshot=excluded.snapshot
	`, snapshot.ID, snapshot.Phase.String(), snapshot.Profile.Destination, snapshot.UserTurns,
		snapshot.Plan != nil, snapshot.CreatedAt.UTC(), snapshot.UpdatedAt.UTC(), string(data))
	return err
}

// Load reads one snapshot.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*ConversationSnapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM conversations WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	var snap ConversationSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// List returns summaries without decoding full snapshots.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, phase, destination, user_turns, has_plan, updated_at
	FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var (
			item        Summary
			phase       string
			destination sql.NullString
			updated     time.Time
		)
		if err := rows.Scan(&item.ID, &phase, &destination, &item.UserTurns, &item.HasPlan, &updated); err != nil {
			return nil, err
		}
		if err := item.Phase.UnmarshalText([]byte(phase)); err != nil {
			return nil, err
		}
		item.Destination = destination.String
		item.UpdatedAt = updated
		out = append(out, item)
	}
	return out, rows.Err()
}

// Delete removes a snapshot.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
