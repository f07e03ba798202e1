package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/crewsync/crewsync/internal/domain/repository"
)

// JournalRepositoryImpl implements repository.JournalRepository with SQLite
type JournalRepositoryImpl struct {
	db *sql.DB
}

// NewJournalRepository creates a SQLite-backed journal repository
func NewJournalRepository(db *sql.DB) repository.JournalRepository {
	return &JournalRepositoryImpl{db: db}
}

// Append writes one entry; seq is assigned by the store
func (r *JournalRepositoryImpl) Append(ctx context.Context, entry repository.JournalEntry) error {
	query := `
		INSERT INTO journal (recorded_at, kind, task_id, worker_id, detail)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.RecordedAt.UTC().Format(time.RFC3339Nano),
		string(entry.Kind),
		entry.TaskID,
		entry.WorkerID,
		entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// List returns the most recent entries up to limit, oldest first
func (r *JournalRepositoryImpl) List(ctx context.Context, limit int) ([]repository.JournalEntry, error) {
	query := `
		SELECT seq, recorded_at, kind, task_id, worker_id, detail
		FROM journal
		ORDER BY seq DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// ListByTask returns all entries for a task, oldest first
func (r *JournalRepositoryImpl) ListByTask(ctx context.Context, taskID string) ([]repository.JournalEntry, error) {
	query := `
		SELECT seq, recorded_at, kind, task_id, worker_id, detail
		FROM journal
		WHERE task_id = ?
		ORDER BY seq ASC
	`
	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("query journal by task: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]repository.JournalEntry, error) {
	var entries []repository.JournalEntry
	for rows.Next() {
		var entry repository.JournalEntry
		var recordedAt, kind string
		if err := rows.Scan(&entry.Seq, &recordedAt, &kind, &entry.TaskID, &entry.WorkerID, &entry.Detail); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		entry.RecordedAt = parsed
		entry.Kind = repository.JournalKind(kind)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
