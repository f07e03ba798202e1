package dto

import (
	"time"

	"github.com/crewsync/crewsync/internal/domain/model"
	"github.com/crewsync/crewsync/internal/domain/model/task"
)

// SubmitInput carries everything task ingestion declares for a new task
type SubmitInput struct {
	ID           string   // optional; a ULID is generated when empty
	Title        string
	Description  string
	Capability   string   // defaults to "general"
	Command      string   // optional opaque command for the executor
	Dependencies []string // task IDs that must complete first
	Artifacts    []string // resource paths this task claims as output
}

// TaskSnapshot is an immutable copy of a task's state handed to readers.
// The coordinator never exposes the underlying aggregate.
type TaskSnapshot struct {
	ID             string
	Title          string
	Description    string
	Capability     string
	Command        string
	Status         model.Status
	Dependencies   []string
	AssignedWorker string
	Progress       int
	Checkpoints    []task.Checkpoint
	Artifacts      []string
	BlockReason    string
	Sequence       int
	ResetCount     int
	Flagged        bool
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// SnapshotTask builds a TaskSnapshot from a task aggregate
func SnapshotTask(t *task.Task) TaskSnapshot {
	deps := t.Dependencies()
	depIDs := make([]string, 0, len(deps))
	for _, d := range deps {
		depIDs = append(depIDs, d.String())
	}

	return TaskSnapshot{
		ID:             t.ID().String(),
		Title:          t.Title(),
		Description:    t.Description(),
		Capability:     t.Capability().String(),
		Command:        t.Command(),
		Status:         t.Status(),
		Dependencies:   depIDs,
		AssignedWorker: t.AssignedWorker().String(),
		Progress:       t.Progress().Value(),
		Checkpoints:    t.Checkpoints(),
		Artifacts:      t.Artifacts(),
		BlockReason:    t.BlockReason(),
		Sequence:       t.Sequence(),
		ResetCount:     t.ResetCount(),
		Flagged:        t.Flagged(),
		CreatedAt:      t.CreatedAt().Value(),
		StartedAt:      t.StartedAt(),
		CompletedAt:    t.CompletedAt(),
	}
}

// FindingKind classifies a supervisor audit finding
type FindingKind string

const (
	FindingMissingArtifact FindingKind = "missing_artifact"
	FindingStuckTask       FindingKind = "stuck_task"
	FindingStructural      FindingKind = "structural"
	FindingEscalation      FindingKind = "escalation"
)

// AuditFinding records one issue the supervisor detected and what it did
type AuditFinding struct {
	DetectedAt time.Time
	Kind       FindingKind
	TaskID     string
	Detail     string
	Action     string // corrective action taken ("reset", "submitted <id>", "flagged")
}

// SupervisorReport is the append-only audit trail exposed to readers
type SupervisorReport struct {
	GeneratedAt time.Time
	Cycles      int
	Findings    []AuditFinding
}
