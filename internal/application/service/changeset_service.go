package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/crewsync/crewsync/internal/domain/model"
	"github.com/crewsync/crewsync/internal/domain/model/changeset"
)

// Change set service errors
var (
	ErrChangeSetNotFound = errors.New("change set not found")
	ErrChangeSetNotOpen  = errors.New("change set is not open")
	ErrSetAlreadyOpen    = errors.New("owner task already has an open change set")
)

// PathConflictError reports a staged-path collision with another change
// set or with an integrated change from an unfinished task. It is a
// contention outcome: callers block or retry, they do not fail the task.
type PathConflictError struct {
	Path         string
	OwnerTask    string
	ConflictTask string
	Integrated   bool // true when the conflict is with the committed ledger
}

func (e *PathConflictError) Error() string {
	if e.Integrated {
		return fmt.Sprintf("path %s already integrated by task %s", e.Path, e.ConflictTask)
	}
	return fmt.Sprintf("path %s already staged by task %s", e.Path, e.ConflictTask)
}

// IntegratedChange is one entry in the committed-changes ledger
type IntegratedChange struct {
	Path        string
	TaskID      model.TaskID
	Op          changeset.FileOp
	CommittedAt time.Time
}

// StatusOracle reports a task's current status so commit validation can
// tell whether a prior integration still belongs to unfinished work
type StatusOracle func(taskID model.TaskID) (model.Status, bool)

// ChangeSetService coordinates open change sets system-wide. A path may
// be staged in at most one open set at a time, and commit re-validates
// the whole set before integrating it all-or-nothing. The policy is
// deliberately pessimistic: exact path equality, false positives over
// false negatives.
type ChangeSetService struct {
	mu          sync.Mutex
	open        map[string]*changeset.ChangeSet // operation ID -> open set
	openByTask  map[string]string               // owner task ID -> operation ID
	stagedPaths map[string]string               // path -> operation ID holding the reservation
	integrated  map[string]IntegratedChange     // path -> last committed change

	taskStatus StatusOracle
}

// NewChangeSetService creates a change set service. The status oracle
// may be nil, in which case every ledger entry by a different task is
// treated as conflicting.
func NewChangeSetService(taskStatus StatusOracle) *ChangeSetService {
	return &ChangeSetService{
		open:        make(map[string]*changeset.ChangeSet),
		openByTask:  make(map[string]string),
		stagedPaths: make(map[string]string),
		integrated:  make(map[string]IntegratedChange),
		taskStatus:  taskStatus,
	}
}

// SetStatusOracle installs the status oracle after construction.
// The coordinator and this service reference each other, so wiring
// happens in two steps.
func (s *ChangeSetService) SetStatusOracle(oracle StatusOracle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskStatus = oracle
}

// Open starts a new change set for a task. A task may have at most one
// in-flight multi-file operation.
func (s *ChangeSetService) Open(ownerTask model.TaskID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opID, exists := s.openByTask[ownerTask.String()]; exists {
		return "", fmt.Errorf("%w: task %s already owns set %s", ErrSetAlreadyOpen, ownerTask.String(), opID)
	}

	cs := changeset.NewChangeSet(ownerTask)
	s.open[cs.OperationID()] = cs
	s.openByTask[ownerTask.String()] = cs.OperationID()
	return cs.OperationID(), nil
}

// Stage records a file intention in an open set. Staging fails fast
// with a PathConflictError when the path is reserved by another open
// set anywhere in the system.
func (s *ChangeSetService) Stage(setID, path string, op changeset.FileOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, exists := s.open[setID]
	if !exists {
		return ErrChangeSetNotFound
	}

	if holder, reserved := s.stagedPaths[path]; reserved && holder != setID {
		return &PathConflictError{
			Path:         path,
			OwnerTask:    cs.OwnerTask().String(),
			ConflictTask: s.open[holder].OwnerTask().String(),
		}
	}

	if err := cs.Stage(path, op); err != nil {
		return err
	}
	s.stagedPaths[path] = setID
	return nil
}

// Commit validates every staged path once more and integrates the whole
// set atomically. Paths may have been integrated elsewhere between
// Stage and Commit, so the exclusivity rule is re-applied; on any
// conflict the commit fails as a unit and the set stays open for the
// caller to retry or roll back.
func (s *ChangeSetService) Commit(setID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, exists := s.open[setID]
	if !exists {
		return ErrChangeSetNotFound
	}

	staged := cs.StagedFiles()
	if len(staged) == 0 {
		return changeset.ErrNothingStaged
	}

	// Validation pass: nothing is integrated until every path clears.
	for _, f := range staged {
		if holder, reserved := s.stagedPaths[f.Path]; reserved && holder != setID {
			return &PathConflictError{
				Path:         f.Path,
				OwnerTask:    cs.OwnerTask().String(),
				ConflictTask: s.open[holder].OwnerTask().String(),
			}
		}
		if prior, found := s.integrated[f.Path]; found && !prior.TaskID.Equals(cs.OwnerTask()) {
			if s.ledgerEntryConflicts(prior) {
				return &PathConflictError{
					Path:         f.Path,
					OwnerTask:    cs.OwnerTask().String(),
					ConflictTask: prior.TaskID.String(),
					Integrated:   true,
				}
			}
		}
	}

	if err := cs.MarkCommitted(); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, f := range staged {
		s.integrated[f.Path] = IntegratedChange{
			Path:        f.Path,
			TaskID:      cs.OwnerTask(),
			Op:          f.Op,
			CommittedAt: now,
		}
		delete(s.stagedPaths, f.Path)
	}
	delete(s.open, setID)
	delete(s.openByTask, cs.OwnerTask().String())
	return nil
}

// Rollback discards all staged entries unconditionally and releases the
// staging reservations. Underlying resources are untouched; the service
// tracks intent metadata, not file bytes.
func (s *ChangeSetService) Rollback(setID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, exists := s.open[setID]
	if !exists {
		return ErrChangeSetNotFound
	}
	return s.discardLocked(cs)
}

// DiscardForTask rolls back a task's open change set, if any. The
// coordinator calls this when a task fails or is reset so stale
// reservations never outlive the work that made them.
func (s *ChangeSetService) DiscardForTask(taskID model.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	opID, exists := s.openByTask[taskID.String()]
	if !exists {
		return nil
	}
	return s.discardLocked(s.open[opID])
}

// OpenSetFor returns the operation ID of a task's open set, if any
func (s *ChangeSetService) OpenSetFor(taskID model.TaskID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opID, exists := s.openByTask[taskID.String()]
	return opID, exists
}

// StagedBy returns the owner task of the open set reserving a path
func (s *ChangeSetService) StagedBy(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opID, reserved := s.stagedPaths[path]
	if !reserved {
		return "", false
	}
	return s.open[opID].OwnerTask().String(), true
}

// IntegratedChanges returns a copy of the committed-changes ledger
func (s *ChangeSetService) IntegratedChanges() map[string]IntegratedChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger := make(map[string]IntegratedChange, len(s.integrated))
	for path, change := range s.integrated {
		ledger[path] = change
	}
	return ledger
}

// ledgerEntryConflicts decides whether a prior integration by another
// task still blocks re-use of the path. Once the integrating task has
// finished (completed or failed), its committed paths are fair game.
func (s *ChangeSetService) ledgerEntryConflicts(prior IntegratedChange) bool {
	if s.taskStatus == nil {
		return true
	}
	status, known := s.taskStatus(prior.TaskID)
	if !known {
		return true
	}
	return !status.IsTerminal()
}

func (s *ChangeSetService) discardLocked(cs *changeset.ChangeSet) error {
	if err := cs.MarkRolledBack(); err != nil {
		return err
	}
	for _, path := range cs.Paths() {
		if s.stagedPaths[path] == cs.OperationID() {
			delete(s.stagedPaths, path)
		}
	}
	delete(s.open, cs.OperationID())
	delete(s.openByTask, cs.OwnerTask().String())
	return nil
}
