package repository

import (
	"context"
	"time"
)

// JournalKind classifies an audit journal entry
type JournalKind string

const (
	JournalKindTransition  JournalKind = "transition"
	JournalKindLockEvent   JournalKind = "lock_event"
	JournalKindChangeSet   JournalKind = "change_set"
	JournalKindAuditIssue  JournalKind = "audit_issue"
	JournalKindAuditRepair JournalKind = "audit_repair"
)

// JournalEntry is one append-only record of engine activity.
// The journal is the durable trail behind GetSupervisorReport and the
// report CLI; nothing in the engine ever rewrites an entry.
type JournalEntry struct {
	Seq        int64
	RecordedAt time.Time
	Kind       JournalKind
	TaskID     string
	WorkerID   string
	Detail     string
}

// JournalRepository persists the append-only audit journal
type JournalRepository interface {
	// Append writes one entry; the sequence number is assigned by the store
	Append(ctx context.Context, entry JournalEntry) error

	// List returns the most recent entries up to limit, oldest first.
	// A limit <= 0 returns everything.
	List(ctx context.Context, limit int) ([]JournalEntry, error)

	// ListByTask returns all entries for a task, oldest first
	ListByTask(ctx context.Context, taskID string) ([]JournalEntry, error)
}
