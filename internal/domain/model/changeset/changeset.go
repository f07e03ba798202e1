package changeset

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crewsync/crewsync/internal/domain/model"
)

// Common change set errors
var (
	ErrNotOpen       = errors.New("change set is not open")
	ErrNothingStaged = errors.New("change set has no staged files")
)

// FileOp is the kind of file-level intention staged in a change set
type FileOp string

const (
	FileOpCreate FileOp = "create"
	FileOpModify FileOp = "modify"
	FileOpDelete FileOp = "delete"
)

// IsValid validates the file operation
func (op FileOp) IsValid() bool {
	switch op {
	case FileOpCreate, FileOpModify, FileOpDelete:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (op FileOp) String() string {
	return string(op)
}

// State represents the lifecycle state of a change set
type State string

const (
	StateOpen       State = "open"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
)

// String returns the string representation
func (s State) String() string {
	return string(s)
}

// StagedFile is a single path-level intention inside a change set
type StagedFile struct {
	Path     string
	Op       FileOp
	StagedAt time.Time
}

// ChangeSet is a staged group of file-level intentions that commits or
// rolls back as a unit. It tracks intent metadata only; no file bytes
// are touched until a caller acts on a successful commit.
type ChangeSet struct {
	operationID string
	ownerTask   model.TaskID
	state       State
	staged      []StagedFile
	openedAt    time.Time
	closedAt    *time.Time
}

// NewChangeSet opens a change set owned by a task
func NewChangeSet(ownerTask model.TaskID) *ChangeSet {
	return &ChangeSet{
		operationID: uuid.New().String(),
		ownerTask:   ownerTask,
		state:       StateOpen,
		openedAt:    time.Now().UTC(),
	}
}

// ReconstructChangeSet rebuilds a change set from persisted data
func ReconstructChangeSet(operationID string, ownerTask model.TaskID, state State, staged []StagedFile, openedAt time.Time, closedAt *time.Time) *ChangeSet {
	return &ChangeSet{
		operationID: operationID,
		ownerTask:   ownerTask,
		state:       state,
		staged:      append([]StagedFile(nil), staged...),
		openedAt:    openedAt,
		closedAt:    closedAt,
	}
}

// Getters
func (c *ChangeSet) OperationID() string     { return c.operationID }
func (c *ChangeSet) OwnerTask() model.TaskID { return c.ownerTask }
func (c *ChangeSet) State() State            { return c.state }
func (c *ChangeSet) OpenedAt() time.Time     { return c.openedAt }
func (c *ChangeSet) ClosedAt() *time.Time    { return c.closedAt }

// StagedFiles returns a copy of the staged entries
func (c *ChangeSet) StagedFiles() []StagedFile {
	return append([]StagedFile(nil), c.staged...)
}

// Paths returns the staged paths in staging order
func (c *ChangeSet) Paths() []string {
	paths := make([]string, 0, len(c.staged))
	for _, f := range c.staged {
		paths = append(paths, f.Path)
	}
	return paths
}

// Contains reports whether the path is staged in this set
func (c *ChangeSet) Contains(path string) bool {
	for _, f := range c.staged {
		if f.Path == path {
			return true
		}
	}
	return false
}

// Stage records a file intention. Re-staging a path already in this set
// updates its operation in place rather than duplicating the entry.
func (c *ChangeSet) Stage(path string, op FileOp) error {
	if c.state != StateOpen {
		return ErrNotOpen
	}
	if path == "" {
		return errors.New("path cannot be empty")
	}
	if !op.IsValid() {
		return fmt.Errorf("invalid file operation: %s", op)
	}

	for i, f := range c.staged {
		if f.Path == path {
			c.staged[i].Op = op
			c.staged[i].StagedAt = time.Now().UTC()
			return nil
		}
	}

	c.staged = append(c.staged, StagedFile{
		Path:     path,
		Op:       op,
		StagedAt: time.Now().UTC(),
	})
	return nil
}

// MarkCommitted closes the set as committed
func (c *ChangeSet) MarkCommitted() error {
	if c.state != StateOpen {
		return ErrNotOpen
	}
	if len(c.staged) == 0 {
		return ErrNothingStaged
	}
	c.state = StateCommitted
	now := time.Now().UTC()
	c.closedAt = &now
	return nil
}

// MarkRolledBack closes the set, discarding all staged intent
func (c *ChangeSet) MarkRolledBack() error {
	if c.state != StateOpen {
		return ErrNotOpen
	}
	c.state = StateRolledBack
	now := time.Now().UTC()
	c.closedAt = &now
	return nil
}
