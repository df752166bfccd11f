package hitsink

import (
	"context"
	"database/sql"
	"fmt"
)

// StoreSchema creates the hit log table. Pass it to dbopen.WithSchema.
const StoreSchema = `
CREATE TABLE IF NOT EXISTS hits (
	id         TEXT PRIMARY KEY,
	patch      TEXT NOT NULL,
	page_url   TEXT NOT NULL,
	page_id    TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	timestamp  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS hits_page_idx ON hits(page_id, timestamp);
`

// Store appends hits to an SQLite log. Diagnostics only: patch state itself
// never touches disk, only the record that a corrective action applied.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-opened diagnostics database. The caller opens
// it via dbopen with StoreSchema and owns its lifetime.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Send(ctx context.Context, hit Hit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hits (id, patch, page_url, page_id, detail, timestamp)
		VALUES (?,?,?,?,?,?)`,
		hit.ID, hit.Patch, hit.PageURL, hit.PageID, hit.Detail, hit.Timestamp)
	if err != nil {
		return fmt.Errorf("hitsink: insert hit: %w", err)
	}
	return nil
}

// Recent returns the most recent hits, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patch, page_url, page_id, detail, timestamp
		FROM hits ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("hitsink: query hits: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.Patch, &h.PageURL, &h.PageID, &h.Detail, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("hitsink: scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Store) Close() error { return nil }
