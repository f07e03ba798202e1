package repository

import (
	"errors"

	"github.com/crewsync/crewsync/internal/domain/model"
	"github.com/crewsync/crewsync/internal/domain/model/task"
)

// Common repository errors
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskAlreadyExists = errors.New("task already exists")
)

// TaskRepository stores task aggregates. The coordinator is the sole
// writer; implementations only need to be safe for concurrent reads
// interleaved with that single writer.
type TaskRepository interface {
	// Save inserts a new task
	Save(t *task.Task) error

	// Update overwrites an existing task
	Update(t *task.Task) error

	// Find retrieves a task by ID
	Find(id model.TaskID) (*task.Task, error)

	// FindAll returns all tasks ordered by submission sequence
	FindAll() ([]*task.Task, error)

	// FindByStatus returns tasks in the given status ordered by submission sequence
	FindByStatus(status model.Status) ([]*task.Task, error)
}
