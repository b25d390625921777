// Package sqlite persists query history in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DeafMist/news-provenance/internal/models"
)

const defaultRecent = 20

// History is a query history store.
type History struct {
	db *sql.DB
}

// New opens (or creates) the database at dataSourceName and migrates it.
// Use ":memory:" for a throwaway store.
func New(dataSourceName string) (*History, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// an in-memory database lives only as long as its single connection
	db.SetMaxOpenConns(1)

	h := &History{db: db}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

func (h *History) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS query_history (
    task_id TEXT PRIMARY KEY,
    query TEXT NOT NULL,
    mode TEXT NOT NULL,
    verdict TEXT NOT NULL DEFAULT '',
    source_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_created ON query_history(created_at);
`
	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate history: %w", err)
	}
	return nil
}

// Record stores entry, replacing any previous entry for the same task.
func (h *History) Record(ctx context.Context, entry models.HistoryEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := h.db.ExecContext(ctx, `
INSERT INTO query_history (task_id, query, mode, verdict, source_count, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(task_id) DO UPDATE SET
    query = excluded.query,
    mode = excluded.mode,
    verdict = excluded.verdict,
    source_count = excluded.source_count,
    created_at = excluded.created_at`,
		entry.TaskID, entry.Query, entry.Mode, string(entry.Verdict), entry.SourceCount, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultRecent
	}
	rows, err := h.db.QueryContext(ctx, `
SELECT task_id, query, mode, verdict, source_count, created_at
FROM query_history
ORDER BY created_at DESC, task_id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []models.HistoryEntry{}
	for rows.Next() {
		var (
			e       models.HistoryEntry
			verdict string
		)
		if err := rows.Scan(&e.TaskID, &e.Query, &e.Mode, &verdict, &e.SourceCount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Verdict = models.Verdict(verdict)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}
