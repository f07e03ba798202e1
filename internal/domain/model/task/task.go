package task

import (
	"errors"
	"time"

	"github.com/crewsync/crewsync/internal/domain/model"
)

// Common task errors
var (
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrProgressNotAllowed = errors.New("progress can only be reported while in progress or blocked")
)

// Checkpoint is a single append-only progress record. Checkpoints are
// never mutated retroactively; they survive supervisor resets so the
// audit trail of a task is complete even after repair.
type Checkpoint struct {
	RecordedAt time.Time
	Progress   int
	Note       string
}

// Task is the aggregate root for a unit of assignable work.
// All mutation goes through the coordinator; other components only
// ever see snapshots.
type Task struct {
	id          model.TaskID
	title       string
	description string
	capability  model.Capability
	command     string

	status         model.Status
	dependencies   []model.TaskID
	assignedWorker model.WorkerID
	progress       model.Progress
	checkpoints    []Checkpoint
	artifacts      []string
	blockReason    string

	sequence    int
	resetCount  int
	flagged     bool
	createdAt   model.Timestamp
	updatedAt   model.Timestamp
	startedAt   *time.Time
	completedAt *time.Time
}

// NewTask creates a new task in PENDING state.
// The sequence number establishes FIFO claim ordering and is assigned
// by the coordinator at submission time.
func NewTask(id model.TaskID, title, description string, capability model.Capability, dependencies []model.TaskID, artifacts []string, command string, sequence int) (*Task, error) {
	if title == "" {
		return nil, errors.New("title cannot be empty")
	}
	if capability == "" {
		capability = model.CapabilityGeneral
	}

	now := model.NewTimestamp()
	return &Task{
		id:           id,
		title:        title,
		description:  description,
		capability:   capability,
		command:      command,
		status:       model.StatusPending,
		dependencies: append([]model.TaskID(nil), dependencies...),
		artifacts:    append([]string(nil), artifacts...),
		sequence:     sequence,
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

// ReconstructTask rebuilds a task from persisted data
func ReconstructTask(
	id model.TaskID,
	title, description string,
	capability model.Capability,
	command string,
	status model.Status,
	dependencies []model.TaskID,
	assignedWorker model.WorkerID,
	progress model.Progress,
	checkpoints []Checkpoint,
	artifacts []string,
	sequence int,
	resetCount int,
	flagged bool,
	createdAt, updatedAt time.Time,
	startedAt, completedAt *time.Time,
) *Task {
	return &Task{
		id:             id,
		title:          title,
		description:    description,
		capability:     capability,
		command:        command,
		status:         status,
		dependencies:   append([]model.TaskID(nil), dependencies...),
		assignedWorker: assignedWorker,
		progress:       progress,
		checkpoints:    append([]Checkpoint(nil), checkpoints...),
		artifacts:      append([]string(nil), artifacts...),
		sequence:       sequence,
		resetCount:     resetCount,
		flagged:        flagged,
		createdAt:      model.NewTimestampFromTime(createdAt),
		updatedAt:      model.NewTimestampFromTime(updatedAt),
		startedAt:      startedAt,
		completedAt:    completedAt,
	}
}

// Getters
func (t *Task) ID() model.TaskID               { return t.id }
func (t *Task) Title() string                  { return t.title }
func (t *Task) Description() string            { return t.description }
func (t *Task) Capability() model.Capability   { return t.capability }
func (t *Task) Command() string                { return t.command }
func (t *Task) Status() model.Status           { return t.status }
func (t *Task) AssignedWorker() model.WorkerID { return t.assignedWorker }
func (t *Task) Progress() model.Progress       { return t.progress }
func (t *Task) BlockReason() string            { return t.blockReason }
func (t *Task) Sequence() int                  { return t.sequence }
func (t *Task) ResetCount() int                { return t.resetCount }
func (t *Task) Flagged() bool                  { return t.flagged }
func (t *Task) CreatedAt() model.Timestamp     { return t.createdAt }
func (t *Task) UpdatedAt() model.Timestamp     { return t.updatedAt }

// StartedAt returns when the task was first claimed (nil if never claimed)
func (t *Task) StartedAt() *time.Time { return t.startedAt }

// CompletedAt returns when the task completed (nil if not completed)
func (t *Task) CompletedAt() *time.Time { return t.completedAt }

// Dependencies returns a copy of the dependency set
func (t *Task) Dependencies() []model.TaskID {
	return append([]model.TaskID(nil), t.dependencies...)
}

// DependsOn reports whether the task depends on the given task
func (t *Task) DependsOn(id model.TaskID) bool {
	for _, dep := range t.dependencies {
		if dep.Equals(id) {
			return true
		}
	}
	return false
}

// Checkpoints returns a copy of the checkpoint history
func (t *Task) Checkpoints() []Checkpoint {
	return append([]Checkpoint(nil), t.checkpoints...)
}

// LastCheckpoint returns the most recent checkpoint (nil if none recorded)
func (t *Task) LastCheckpoint() *Checkpoint {
	if len(t.checkpoints) == 0 {
		return nil
	}
	cp := t.checkpoints[len(t.checkpoints)-1]
	return &cp
}

// Artifacts returns a copy of the declared artifact paths
func (t *Task) Artifacts() []string {
	return append([]string(nil), t.artifacts...)
}

// UpdateStatus transitions to a new status
func (t *Task) UpdateStatus(newStatus model.Status) error {
	if !newStatus.IsValid() {
		return errors.New("invalid status")
	}
	if !t.status.CanTransitionTo(newStatus) {
		return errors.New("invalid status transition from " + t.status.String() + " to " + newStatus.String())
	}
	t.status = newStatus
	t.updatedAt = model.NewTimestamp()
	return nil
}

// Assign records the worker claiming this task and transitions
// READY -> ASSIGNED -> IN_PROGRESS, stamping startedAt on first claim.
func (t *Task) Assign(worker model.WorkerID) error {
	if err := t.UpdateStatus(model.StatusAssigned); err != nil {
		return err
	}
	if err := t.UpdateStatus(model.StatusInProgress); err != nil {
		return err
	}
	t.assignedWorker = worker
	if t.startedAt == nil {
		now := time.Now().UTC()
		t.startedAt = &now
	}
	return nil
}

// AppendCheckpoint records progress. Valid only while IN_PROGRESS or BLOCKED.
func (t *Task) AppendCheckpoint(progress model.Progress, note string) error {
	if t.status != model.StatusInProgress && t.status != model.StatusBlocked {
		return ErrProgressNotAllowed
	}
	t.progress = progress
	t.checkpoints = append(t.checkpoints, Checkpoint{
		RecordedAt: time.Now().UTC(),
		Progress:   progress.Value(),
		Note:       note,
	})
	t.updatedAt = model.NewTimestamp()
	return nil
}

// MarkBlocked transitions IN_PROGRESS -> BLOCKED and records the reason
func (t *Task) MarkBlocked(reason string) error {
	if err := t.UpdateStatus(model.StatusBlocked); err != nil {
		return err
	}
	t.blockReason = reason
	return nil
}

// Resume transitions BLOCKED -> IN_PROGRESS and clears the block reason
func (t *Task) Resume() error {
	if err := t.UpdateStatus(model.StatusInProgress); err != nil {
		return err
	}
	t.blockReason = ""
	return nil
}

// MarkCompleted records the validated artifact set and transitions to COMPLETED.
// Artifact validation happens in the coordinator before this is called.
func (t *Task) MarkCompleted(artifacts []string) error {
	if err := t.UpdateStatus(model.StatusCompleted); err != nil {
		return err
	}
	t.artifacts = append([]string(nil), artifacts...)
	now := time.Now().UTC()
	t.completedAt = &now
	return nil
}

// MarkFailed transitions to FAILED and records the reason as a final checkpoint note
func (t *Task) MarkFailed(reason string) error {
	if err := t.UpdateStatus(model.StatusFailed); err != nil {
		return err
	}
	t.blockReason = reason
	return nil
}

// Reset reverts a COMPLETED or stuck task back to READY for re-execution.
// The worker assignment and completion stamp are cleared; the checkpoint
// history is preserved.
func (t *Task) Reset() error {
	if err := t.UpdateStatus(model.StatusReady); err != nil {
		return err
	}
	t.assignedWorker = ""
	t.completedAt = nil
	t.blockReason = ""
	t.resetCount++
	return nil
}

// Flag marks the task for operator attention, stopping further auto-repair
func (t *Task) Flag() {
	t.flagged = true
	t.updatedAt = model.NewTimestamp()
}
