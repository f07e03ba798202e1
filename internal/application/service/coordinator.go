package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/toposort"

	"github.com/crewsync/crewsync/internal/application/dto"
	"github.com/crewsync/crewsync/internal/domain/model"
	"github.com/crewsync/crewsync/internal/domain/model/task"
	"github.com/crewsync/crewsync/internal/domain/repository"
)

// Coordinator errors
var (
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrDependencyCycle   = errors.New("dependency cycle detected")
	ErrTaskFlagged       = errors.New("task is flagged for operator attention")
	ErrResetNotAllowed   = errors.New("task cannot be reset from its current status")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ArtifactValidationError reports which declared artifact failed the
// existence/non-emptiness check at completion time
type ArtifactValidationError struct {
	TaskID string
	Path   string
	Reason string
}

func (e *ArtifactValidationError) Error() string {
	return fmt.Sprintf("artifact %s of task %s invalid: %s", e.Path, e.TaskID, e.Reason)
}

// ArtifactChecker is the filesystem oracle used to validate declared
// task outputs. The engine only needs existence and size.
type ArtifactChecker interface {
	Exists(path string) bool
	Size(path string) (int64, error)
}

// Coordinator owns every task status transition. All operations are
// serialized by a single mutex so concurrent workers observe
// linearizable effects; no caller ever sees a half-applied transition.
type Coordinator struct {
	mu sync.Mutex

	tasks      repository.TaskRepository
	locks      *LockManager
	changeSets *ChangeSetService
	artifacts  ArtifactChecker
	journal    repository.JournalRepository

	// statuses is a copy-out cache behind its own leaf lock so
	// TaskStatus never touches live aggregates or the coordinator
	// mutex. Every transition refreshes it via noteStatus.
	statusMu sync.RWMutex
	statuses map[model.TaskID]model.Status

	nextSequence int
	infoLog      func(format string, args ...interface{})
	warnLog      func(format string, args ...interface{})
}

// NewCoordinator creates a coordinator over the given collaborators.
// The journal may be nil; journaling is best-effort either way.
func NewCoordinator(
	tasks repository.TaskRepository,
	locks *LockManager,
	changeSets *ChangeSetService,
	artifacts ArtifactChecker,
	journal repository.JournalRepository,
	infoLog, warnLog func(format string, args ...interface{}),
) *Coordinator {
	if infoLog == nil {
		infoLog = func(format string, args ...interface{}) {}
	}
	if warnLog == nil {
		warnLog = func(format string, args ...interface{}) {}
	}
	return &Coordinator{
		tasks:      tasks,
		locks:      locks,
		changeSets: changeSets,
		artifacts:  artifacts,
		journal:    journal,
		statuses:   make(map[model.TaskID]model.Status),
		infoLog:    infoLog,
		warnLog:    warnLog,
	}
}

// Submit inserts a new task in PENDING. When the dependency set is
// empty or already completed the task is promoted to READY immediately.
// Unknown dependency IDs and dependency cycles are rejected outright.
func (c *Coordinator) Submit(input dto.SubmitInput) (dto.TaskSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var id model.TaskID
	if input.ID != "" {
		parsed, err := model.NewTaskIDFromString(input.ID)
		if err != nil {
			return dto.TaskSnapshot{}, err
		}
		id = parsed
	} else {
		id = model.NewTaskID()
	}

	deps := make([]model.TaskID, 0, len(input.Dependencies))
	for _, depID := range input.Dependencies {
		dep, err := model.NewTaskIDFromString(depID)
		if err != nil {
			return dto.TaskSnapshot{}, err
		}
		if _, err := c.tasks.Find(dep); err != nil {
			return dto.TaskSnapshot{}, fmt.Errorf("%w: %s", ErrUnknownDependency, depID)
		}
		deps = append(deps, dep)
	}

	if err := c.checkNoCycle(id, deps); err != nil {
		return dto.TaskSnapshot{}, err
	}

	c.nextSequence++
	t, err := task.NewTask(id, input.Title, input.Description,
		model.Capability(input.Capability), deps, input.Artifacts, input.Command, c.nextSequence)
	if err != nil {
		return dto.TaskSnapshot{}, err
	}

	if err := c.tasks.Save(t); err != nil {
		return dto.TaskSnapshot{}, err
	}

	if c.dependenciesSatisfied(t) {
		if err := t.UpdateStatus(model.StatusReady); err != nil {
			return dto.TaskSnapshot{}, err
		}
		if err := c.tasks.Update(t); err != nil {
			return dto.TaskSnapshot{}, err
		}
	}

	c.noteStatus(t)
	c.journalEvent(repository.JournalKindTransition, t.ID().String(), "", "submitted as "+t.Status().String())
	return dto.SnapshotTask(t), nil
}

// ClaimNext atomically hands the oldest READY task matching one of the
// worker's capabilities to that worker, transitioning it to
// IN_PROGRESS. Returns (nil, nil) when no eligible task exists; an idle
// worker is the normal condition, not a failure.
func (c *Coordinator) ClaimNext(worker model.WorkerID, capabilities []model.Capability) (*dto.TaskSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ready, err := c.tasks.FindByStatus(model.StatusReady)
	if err != nil {
		return nil, err
	}

	// FIFO by submission sequence keeps claim order deterministic.
	sort.Slice(ready, func(i, j int) bool { return ready[i].Sequence() < ready[j].Sequence() })

	capSet := make(map[model.Capability]bool, len(capabilities))
	for _, cap := range capabilities {
		capSet[cap] = true
	}

	for _, t := range ready {
		if t.Flagged() {
			continue
		}
		if len(capSet) > 0 && !capSet[t.Capability()] {
			continue
		}
		if err := t.Assign(worker); err != nil {
			return nil, err
		}
		if err := c.tasks.Update(t); err != nil {
			return nil, err
		}
		c.noteStatus(t)
		c.journalEvent(repository.JournalKindTransition, t.ID().String(), worker.String(), "claimed")
		snapshot := dto.SnapshotTask(t)
		return &snapshot, nil
	}

	return nil, nil
}

// ReportProgress appends a checkpoint and updates progress. Valid only
// while the task is IN_PROGRESS or BLOCKED.
func (c *Coordinator) ReportProgress(taskID string, percent int, note string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.findTask(taskID)
	if err != nil {
		return err
	}

	progress, err := model.NewProgress(percent)
	if err != nil {
		return err
	}
	if err := t.AppendCheckpoint(progress, note); err != nil {
		return err
	}
	return c.tasks.Update(t)
}

// ReportBlocked transitions IN_PROGRESS -> BLOCKED and records the
// blocking reason. Locks are not released here: workers release their
// own resources before blocking, or hold them intending to retry.
func (c *Coordinator) ReportBlocked(taskID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.findTask(taskID)
	if err != nil {
		return err
	}
	if err := t.MarkBlocked(reason); err != nil {
		return err
	}
	if err := c.tasks.Update(t); err != nil {
		return err
	}
	c.noteStatus(t)
	c.journalEvent(repository.JournalKindTransition, t.ID().String(), t.AssignedWorker().String(), "blocked: "+reason)
	return nil
}

// Resume transitions BLOCKED -> IN_PROGRESS once the blocking condition
// clears
func (c *Coordinator) Resume(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.findTask(taskID)
	if err != nil {
		return err
	}
	if err := t.Resume(); err != nil {
		return err
	}
	if err := c.tasks.Update(t); err != nil {
		return err
	}
	c.noteStatus(t)
	return nil
}

// Complete validates the declared artifacts, then transitions the task
// to COMPLETED, force-releases its worker's locks, and promotes any
// dependent whose dependency set is now fully satisfied. On validation
// failure the task stays exactly where it was.
func (c *Coordinator) Complete(taskID string, artifacts []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.findTask(taskID)
	if err != nil {
		return err
	}

	// Guard the transition before any side effect: a rejected Complete
	// must leave the task's locks and open change set untouched.
	if !t.Status().CanTransitionTo(model.StatusCompleted) {
		return fmt.Errorf("%w: cannot complete from %s", ErrInvalidTransition, t.Status())
	}

	// Validate before any mutation: a task is never COMPLETED with
	// missing or empty artifacts through this path.
	for _, path := range artifacts {
		if !c.artifacts.Exists(path) {
			return &ArtifactValidationError{TaskID: taskID, Path: path, Reason: "does not exist"}
		}
		size, err := c.artifacts.Size(path)
		if err != nil {
			return &ArtifactValidationError{TaskID: taskID, Path: path, Reason: err.Error()}
		}
		if size == 0 {
			return &ArtifactValidationError{TaskID: taskID, Path: path, Reason: "is empty"}
		}
	}

	// Fixed call order: release locks, then mutate status, then
	// evaluate dependents.
	worker := t.AssignedWorker()
	if worker != "" {
		if released := c.locks.ForceReleaseAll(worker); released > 0 {
			c.journalEvent(repository.JournalKindLockEvent, taskID, worker.String(),
				fmt.Sprintf("force-released %d lock(s) on completion", released))
		}
	}
	if err := c.changeSets.DiscardForTask(t.ID()); err != nil {
		c.warnLog("discard open change set for %s: %v", taskID, err)
	}

	if err := t.MarkCompleted(artifacts); err != nil {
		return err
	}
	if err := c.tasks.Update(t); err != nil {
		return err
	}
	c.noteStatus(t)
	c.journalEvent(repository.JournalKindTransition, taskID, worker.String(), "completed")

	return c.promoteDependents(t.ID())
}

// Fail transitions the task to FAILED and force-releases its locks.
// Dependents stay blocked: a failed dependency never auto-unblocks
// downstream work, that takes explicit re-submission or supervisor
// intervention.
func (c *Coordinator) Fail(taskID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.findTask(taskID)
	if err != nil {
		return err
	}
	if !t.Status().CanTransitionTo(model.StatusFailed) {
		return fmt.Errorf("%w: cannot fail from %s", ErrInvalidTransition, t.Status())
	}

	worker := t.AssignedWorker()
	if worker != "" {
		if released := c.locks.ForceReleaseAll(worker); released > 0 {
			c.journalEvent(repository.JournalKindLockEvent, taskID, worker.String(),
				fmt.Sprintf("force-released %d lock(s) on failure", released))
		}
	}
	if err := c.changeSets.DiscardForTask(t.ID()); err != nil {
		c.warnLog("discard open change set for %s: %v", taskID, err)
	}

	if err := t.MarkFailed(reason); err != nil {
		return err
	}
	if err := c.tasks.Update(t); err != nil {
		return err
	}
	c.noteStatus(t)
	c.journalEvent(repository.JournalKindTransition, taskID, worker.String(), "failed: "+reason)
	return nil
}

// Reset reverts a COMPLETED or stuck IN_PROGRESS/BLOCKED task back to
// READY, clears the worker assignment, and force-releases its locks.
// Checkpoint history deliberately survives: the audit trail outlives
// repairs. Used by the supervisor only.
func (c *Coordinator) Reset(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.findTask(taskID)
	if err != nil {
		return err
	}
	if t.Flagged() {
		return ErrTaskFlagged
	}

	switch t.Status() {
	case model.StatusCompleted, model.StatusInProgress, model.StatusBlocked:
	default:
		return fmt.Errorf("%w: %s", ErrResetNotAllowed, t.Status())
	}

	worker := t.AssignedWorker()
	if worker != "" {
		if released := c.locks.ForceReleaseAll(worker); released > 0 {
			c.journalEvent(repository.JournalKindLockEvent, taskID, worker.String(),
				fmt.Sprintf("force-released %d lock(s) on reset", released))
		}
	}
	if err := c.changeSets.DiscardForTask(t.ID()); err != nil {
		c.warnLog("discard open change set for %s: %v", taskID, err)
	}

	if err := t.Reset(); err != nil {
		return err
	}
	if err := c.tasks.Update(t); err != nil {
		return err
	}
	c.noteStatus(t)
	c.journalEvent(repository.JournalKindAuditRepair, taskID, worker.String(),
		fmt.Sprintf("reset to READY (reset #%d)", t.ResetCount()))
	return nil
}

// FlagForOperator marks a task so auto-repair leaves it alone. Used by
// the supervisor when the reset escalation cap is reached.
func (c *Coordinator) FlagForOperator(taskID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.findTask(taskID)
	if err != nil {
		return err
	}
	t.Flag()
	if err := c.tasks.Update(t); err != nil {
		return err
	}
	c.journalEvent(repository.JournalKindAuditIssue, taskID, "", "flagged for operator: "+reason)
	return nil
}

// GetTask returns a snapshot of a single task
func (c *Coordinator) GetTask(taskID string) (dto.TaskSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.findTask(taskID)
	if err != nil {
		return dto.TaskSnapshot{}, err
	}
	return dto.SnapshotTask(t), nil
}

// ListByStatus returns snapshots of every task in the given status,
// ordered by submission sequence
func (c *Coordinator) ListByStatus(status model.Status) ([]dto.TaskSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tasks, err := c.tasks.FindByStatus(status)
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Sequence() < tasks[j].Sequence() })

	snapshots := make([]dto.TaskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		snapshots = append(snapshots, dto.SnapshotTask(t))
	}
	return snapshots, nil
}

// ListAll returns snapshots of every known task, ordered by submission
// sequence
func (c *Coordinator) ListAll() ([]dto.TaskSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tasks, err := c.tasks.FindAll()
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Sequence() < tasks[j].Sequence() })

	snapshots := make([]dto.TaskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		snapshots = append(snapshots, dto.SnapshotTask(t))
	}
	return snapshots, nil
}

// TaskStatus is the StatusOracle the change set service uses at commit
// time. It reads the status cache, not the coordinator mutex, so a
// change-set commit inside a worker callback cannot self-deadlock and
// never races a concurrent transition on the live aggregate.
func (c *Coordinator) TaskStatus(taskID model.TaskID) (model.Status, bool) {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	status, ok := c.statuses[taskID]
	return status, ok
}

func (c *Coordinator) noteStatus(t *task.Task) {
	c.statusMu.Lock()
	c.statuses[t.ID()] = t.Status()
	c.statusMu.Unlock()
}

// promoteDependents re-evaluates every task waiting on the completed
// task and promotes the fully satisfied ones to READY. Unblocking
// happens inside the same critical section as the completion, so it is
// visible to any subsequent ClaimNext.
func (c *Coordinator) promoteDependents(completed model.TaskID) error {
	all, err := c.tasks.FindAll()
	if err != nil {
		return err
	}

	for _, t := range all {
		if !t.DependsOn(completed) {
			continue
		}
		if t.Status() != model.StatusPending && t.Status() != model.StatusBlocked {
			continue
		}
		if !c.dependenciesSatisfied(t) {
			continue
		}
		if err := t.UpdateStatus(model.StatusReady); err != nil {
			return err
		}
		if err := c.tasks.Update(t); err != nil {
			return err
		}
		c.noteStatus(t)
		c.journalEvent(repository.JournalKindTransition, t.ID().String(), "", "promoted to READY")
	}
	return nil
}

func (c *Coordinator) dependenciesSatisfied(t *task.Task) bool {
	for _, dep := range t.Dependencies() {
		depTask, err := c.tasks.Find(dep)
		if err != nil {
			return false
		}
		if depTask.Status() != model.StatusCompleted {
			return false
		}
	}
	return true
}

// checkNoCycle verifies the dependency graph stays acyclic after adding
// the candidate task's edges
func (c *Coordinator) checkNoCycle(candidate model.TaskID, deps []model.TaskID) error {
	all, err := c.tasks.FindAll()
	if err != nil {
		return err
	}

	var edges []toposort.Edge
	for _, t := range all {
		for _, dep := range t.Dependencies() {
			edges = append(edges, toposort.Edge{dep.String(), t.ID().String()})
		}
	}
	for _, dep := range deps {
		edges = append(edges, toposort.Edge{dep.String(), candidate.String()})
	}

	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyCycle, err)
	}
	return nil
}

func (c *Coordinator) findTask(taskID string) (*task.Task, error) {
	id, err := model.NewTaskIDFromString(taskID)
	if err != nil {
		return nil, err
	}
	return c.tasks.Find(id)
}

// journalEvent appends to the audit journal best-effort; journal
// failures degrade to a warning, never to a coordination failure
func (c *Coordinator) journalEvent(kind repository.JournalKind, taskID, workerID, detail string) {
	if c.journal == nil {
		return
	}
	entry := repository.JournalEntry{
		RecordedAt: time.Now().UTC(),
		Kind:       kind,
		TaskID:     taskID,
		WorkerID:   workerID,
		Detail:     detail,
	}
	if err := c.journal.Append(context.Background(), entry); err != nil {
		c.warnLog("journal append failed: %v", err)
	}
}
