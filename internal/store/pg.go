package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PgStore persists session documents in Postgres: one row per session
// holding the JSON document, with an integer version column driving the
// optimistic-concurrency check.
type PgStore struct {
	db *sql.DB
}

// NewPgStore accepts an existing DB handle.
func NewPgStore(db *sql.DB) *PgStore {
	return &PgStore{db: db}
}

// NewPgStoreFromDSN opens a connection from a connection string and
// verifies it with a ping.
func NewPgStoreFromDSN(dsn string) (*PgStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return NewPgStore(db), nil
}

// EnsureSchema creates the sessions table if it doesn't exist.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			code       TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			doc        JSONB NOT NULL,
			version    BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("creating sessions table: %w", err)
	}
	return nil
}

func (s *PgStore) Load(ctx context.Context, code string) (*SessionDoc, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc, version, updated_at FROM sessions WHERE code = $1
	`, code)

	var raw []byte
	var version int64
	var updatedAt time.Time
	if err := row.Scan(&raw, &version, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading session %s: %w", code, err)
	}

	var doc SessionDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshalling session %s: %w", code, err)
	}
	doc.Version = version
	doc.UpdatedAt = updatedAt
	return &doc, nil
}

func (s *PgStore) Save(ctx context.Context, doc *SessionDoc) error {
	doc.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshalling session %s: %w", doc.Code, err)
	}

	if doc.Version == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (code, status, doc, version, updated_at)
			VALUES ($1, $2, $3, 1, $4)
		`, doc.Code, string(doc.Status), raw, doc.UpdatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
				return ErrExists
			}
			return fmt.Errorf("inserting session %s: %w", doc.Code, err)
		}
		doc.Version = 1
		return nil
	}

	// Guarded update: only wins if nobody bumped the version since we
	// read it.
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $1, doc = $2, version = version + 1, updated_at = $3
		WHERE code = $4 AND version = $5
	`, string(doc.Status), raw, doc.UpdatedAt, doc.Code, doc.Version)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", doc.Code, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating session %s: %w", doc.Code, err)
	}
	if rows == 0 {
		return ErrConflict
	}
	doc.Version++
	return nil
}

func (s *PgStore) Delete(ctx context.Context, code string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", code, err)
	}
	return nil
}

func (s *PgStore) List(ctx context.Context, f Filter) ([]*SessionDoc, error) {
	q := `SELECT doc, version, updated_at FROM sessions`
	var args []any
	var where []string

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !f.UpdatedBefore.IsZero() {
		args = append(args, f.UpdatedBefore)
		where = append(where, fmt.Sprintf("updated_at < $%d", len(args)))
	}
	for i, w := range where {
		if i == 0 {
			q += " WHERE " + w
		} else {
			q += " AND " + w
		}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionDoc
	for rows.Next() {
		var raw []byte
		var version int64
		var updatedAt time.Time
		if err := rows.Scan(&raw, &version, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		var doc SessionDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("unmarshalling session row: %w", err)
		}
		doc.Version = version
		doc.UpdatedAt = updatedAt
		out = append(out, &doc)
	}
	return out, rows.Err()
}
