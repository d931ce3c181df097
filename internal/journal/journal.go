// Package journal keeps a local sqlite record of successful captures so
// an operator can audit what was uploaded without listing the bucket.
package journal

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Journal struct {
	*sql.DB
}

// Capture is one journaled upload.
type Capture struct {
	ID         string
	ObjectKey  string
	Label      string
	Confidence float64
	CapturedAt time.Time
}

// New opens (or creates) the journal database at path.
func New(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS captures (
			capture_id        TEXT PRIMARY KEY,
			object_key        TEXT NOT NULL,
			label             TEXT,
			confidence        DOUBLE,
			captured_at       TIMESTAMP,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_captures_captured_at
			ON captures(captured_at);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{DB: db}, nil
}

// RecordCapture appends one upload to the journal.
func (j *Journal) RecordCapture(ctx context.Context, key, label string, confidence float64, when time.Time) error {
	_, err := j.ExecContext(ctx, `
		INSERT INTO captures (capture_id, object_key, label, confidence, captured_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), key, label, confidence, when.UTC())
	return err
}

// RecentCaptures returns up to limit captures, newest first.
func (j *Journal) RecentCaptures(ctx context.Context, limit int) ([]Capture, error) {
	rows, err := j.QueryContext(ctx, `
		SELECT capture_id, object_key, label, confidence, captured_at
		FROM captures
		ORDER BY captured_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []Capture
	for rows.Next() {
		var c Capture
		if err := rows.Scan(&c.ID, &c.ObjectKey, &c.Label, &c.Confidence, &c.CapturedAt); err != nil {
			return nil, err
		}
		captures = append(captures, c)
	}
	return captures, rows.Err()
}
