package memory

import (
	"sync"

	"github.com/crewsync/crewsync/internal/domain/model"
	"github.com/crewsync/crewsync/internal/domain/model/task"
	"github.com/crewsync/crewsync/internal/domain/repository"
)

// TaskRepository is the in-memory task store backing the coordinator.
// The coordinator serializes writes; the internal lock only protects
// map access against concurrent readers.
type TaskRepository struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
	order []string // insertion order for sequence-stable listing
}

// NewTaskRepository creates an empty in-memory task repository
func NewTaskRepository() *TaskRepository {
	return &TaskRepository{
		tasks: make(map[string]*task.Task),
	}
}

// Save inserts a new task
func (r *TaskRepository) Save(t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := t.ID().String()
	if _, exists := r.tasks[id]; exists {
		return repository.ErrTaskAlreadyExists
	}
	r.tasks[id] = t
	r.order = append(r.order, id)
	return nil
}

// Update overwrites an existing task
func (r *TaskRepository) Update(t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := t.ID().String()
	if _, exists := r.tasks[id]; !exists {
		return repository.ErrTaskNotFound
	}
	r.tasks[id] = t
	return nil
}

// Find retrieves a task by ID
func (r *TaskRepository) Find(id model.TaskID) (*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.tasks[id.String()]
	if !exists {
		return nil, repository.ErrTaskNotFound
	}
	return t, nil
}

// FindAll returns all tasks in insertion order
func (r *TaskRepository) FindAll() ([]*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*task.Task, 0, len(r.order))
	for _, id := range r.order {
		all = append(all, r.tasks[id])
	}
	return all, nil
}

// FindByStatus returns tasks in the given status in insertion order
func (r *TaskRepository) FindByStatus(status model.Status) ([]*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*task.Task, 0)
	for _, id := range r.order {
		if r.tasks[id].Status() == status {
			matched = append(matched, r.tasks[id])
		}
	}
	return matched, nil
}
