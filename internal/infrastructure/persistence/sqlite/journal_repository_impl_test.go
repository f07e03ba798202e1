package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewsync/crewsync/internal/domain/repository"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func appendEntry(t *testing.T, repo repository.JournalRepository, taskID, detail string) {
	t.Helper()
	err := repo.Append(context.Background(), repository.JournalEntry{
		RecordedAt: time.Now().UTC(),
		Kind:       repository.JournalKindTransition,
		TaskID:     taskID,
		WorkerID:   "worker-1",
		Detail:     detail,
	})
	require.NoError(t, err)
}

func TestJournalRepository_AppendAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJournalRepository(db)

	appendEntry(t, repo, "task-a", "submitted as READY")
	appendEntry(t, repo, "task-a", "claimed")
	appendEntry(t, repo, "task-b", "submitted as PENDING")

	entries, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Chronological order with store-assigned sequence numbers.
	assert.Equal(t, "submitted as READY", entries[0].Detail)
	assert.Equal(t, "claimed", entries[1].Detail)
	assert.Equal(t, "submitted as PENDING", entries[2].Detail)
	assert.Less(t, entries[0].Seq, entries[1].Seq)
	assert.Less(t, entries[1].Seq, entries[2].Seq)
	assert.Equal(t, repository.JournalKindTransition, entries[0].Kind)
	assert.Equal(t, "worker-1", entries[0].WorkerID)
	assert.False(t, entries[0].RecordedAt.IsZero())
}

func TestJournalRepository_ListLimit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJournalRepository(db)

	for i := 0; i < 5; i++ {
		appendEntry(t, repo, "task-a", fmt.Sprintf("event %d", i))
	}

	entries, err := repo.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// The most recent two, oldest first.
	assert.Equal(t, "event 3", entries[0].Detail)
	assert.Equal(t, "event 4", entries[1].Detail)
}

func TestJournalRepository_ListByTask(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJournalRepository(db)

	appendEntry(t, repo, "task-a", "submitted as READY")
	appendEntry(t, repo, "task-b", "submitted as READY")
	appendEntry(t, repo, "task-a", "claimed")

	entries, err := repo.ListByTask(context.Background(), "task-a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "submitted as READY", entries[0].Detail)
	assert.Equal(t, "claimed", entries[1].Detail)

	none, err := repo.ListByTask(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJournalRepository_EmptyList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJournalRepository(db)

	entries, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenDB_CreatesSchemaOnDisk(t *testing.T) {
	path := t.TempDir() + "/journal.db"
	db, err := OpenDB(path)
	require.NoError(t, err)
	defer db.Close()

	repo := NewJournalRepository(db)
	appendEntry(t, repo, "task-a", "persisted")

	entries, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
