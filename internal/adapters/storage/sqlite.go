// Package storage persists the SDK's durable state in a single SQLite
// database: queued events, engagement responses, persistent actions, and
// small key-value scalars.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Buffer names used by the event queue.
const (
	BufferActive   = "active"
	BufferInactive = "inactive"
)

// Store wraps the SQLite database holding all persisted SDK state.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and runs migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seq     INTEGER PRIMARY KEY,
		buffer  TEXT NOT NULL,
		payload BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_buffer ON events(buffer);

	CREATE TABLE IF NOT EXISTS engagements (
		fingerprint TEXT PRIMARY KEY,
		response    BLOB NOT NULL,
		cached_at   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS actions (
		trigger_id TEXT PRIMARY KEY,
		payload    BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return nil
}

// AppendEvent durably inserts one serialized event into the named buffer.
// seq must be globally monotonic across both buffers.
func (s *Store) AppendEvent(ctx context.Context, buffer string, seq int64, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (seq, buffer, payload) VALUES (?, ?, ?)`,
		seq, buffer, payload)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// LoadEvents returns the named buffer's payloads in append (seq) order.
func (s *Store) LoadEvents(ctx context.Context, buffer string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE buffer = ? ORDER BY seq`, buffer)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var payloads [][]byte
	for rows.Next() {
		var p []byte
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		payloads = append(payloads, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return payloads, nil
}

// MoveBuffer relabels every event in from as belonging to to. Sequence
// numbers are untouched, so merged buffers keep global append order.
func (s *Store) MoveBuffer(ctx context.Context, from, to string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET buffer = ? WHERE buffer = ?`, to, from)
	if err != nil {
		return fmt.Errorf("move buffer: %w", err)
	}
	return nil
}

// MaxSeq returns the highest sequence number present, or 0 when empty.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// ClearBuffer deletes every event in the named buffer.
func (s *Store) ClearBuffer(ctx context.Context, buffer string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE buffer = ?`, buffer)
	if err != nil {
		return fmt.Errorf("clear buffer: %w", err)
	}
	return nil
}

// ClearAllEvents wipes both buffers.
func (s *Store) ClearAllEvents(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events`)
	if err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	return nil
}

// Checkpoint forces buffered WAL pages to the main database file.
func (s *Store) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(FULL)`)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// PutEngagement upserts a cached engagement response. Last write wins.
func (s *Store) PutEngagement(ctx context.Context, fingerprint string, response []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO engagements (fingerprint, response, cached_at)
		 VALUES (?, ?, datetime('now'))
		 ON CONFLICT(fingerprint) DO UPDATE SET
			response = excluded.response,
			cached_at = excluded.cached_at`,
		fingerprint, response)
	if err != nil {
		return fmt.Errorf("put engagement: %w", err)
	}
	return nil
}

// LoadEngagements returns the whole engagement cache.
func (s *Store) LoadEngagements(ctx context.Context) (map[string][]byte, error) {
	return s.loadKeyed(ctx, `SELECT fingerprint, response FROM engagements`)
}

// ClearEngagements wipes the engagement cache.
func (s *Store) ClearEngagements(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM engagements`)
	if err != nil {
		return fmt.Errorf("clear engagements: %w", err)
	}
	return nil
}

// PutAction upserts a persistent trigger payload.
func (s *Store) PutAction(ctx context.Context, triggerID string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actions (trigger_id, payload) VALUES (?, ?)
		 ON CONFLICT(trigger_id) DO UPDATE SET payload = excluded.payload`,
		triggerID, payload)
	if err != nil {
		return fmt.Errorf("put action: %w", err)
	}
	return nil
}

// LoadActions returns all persisted trigger payloads.
func (s *Store) LoadActions(ctx context.Context) (map[string][]byte, error) {
	return s.loadKeyed(ctx, `SELECT trigger_id, payload FROM actions`)
}

// ClearActions wipes the action store.
func (s *Store) ClearActions(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM actions`)
	if err != nil {
		return fmt.Errorf("clear actions: %w", err)
	}
	return nil
}

// GetString reads a scalar value; a missing key yields "" without error.
func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// SetString writes a scalar value, overwriting any previous one.
func (s *Store) SetString(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// ClearKV wipes all stored scalars.
func (s *Store) ClearKV(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv`)
	if err != nil {
		return fmt.Errorf("clear kv: %w", err)
	}
	return nil
}

func (s *Store) loadKeyed(ctx context.Context, query string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var val []byte
		if err := rows.Scan(&key, &val); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out[key] = val
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return out, nil
}
