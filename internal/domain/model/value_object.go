package model

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// TaskID represents a unique identifier for a task
type TaskID struct {
	value string
}

// NewTaskID creates a new TaskID backed by a ULID
// Format: ULID (e.g., 01JB6X8Y2K9FQR4T3VWHGP5M2C)
func NewTaskID() TaskID {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return TaskID{value: ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()}
}

// NewTaskIDFromString creates a TaskID from an existing string
func NewTaskIDFromString(id string) (TaskID, error) {
	if id == "" {
		return TaskID{}, errors.New("task ID cannot be empty")
	}
	return TaskID{value: id}, nil
}

// String returns the string representation
func (t TaskID) String() string {
	return t.value
}

// Equals checks if two TaskIDs are equal
func (t TaskID) Equals(other TaskID) bool {
	return t.value == other.value
}

// WorkerID identifies a worker pulling tasks from the coordinator
type WorkerID string

// String returns the string representation
func (w WorkerID) String() string {
	return string(w)
}

// Capability names the kind of work a task requires and a worker supports
type Capability string

// CapabilityGeneral is the default capability for tasks that declare none
const CapabilityGeneral Capability = "general"

// String returns the string representation
func (c Capability) String() string {
	return string(c)
}

// Status represents the current status of a task
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusReady      Status = "READY"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusBlocked    Status = "BLOCKED"
	StatusReview     Status = "REVIEW"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// String returns the string representation
func (s Status) String() string {
	return string(s)
}

// IsValid validates the status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusReady, StatusAssigned, StatusInProgress,
		StatusBlocked, StatusReview, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status ends a task's lifecycle.
// COMPLETED is terminal for workers but may still be reverted to READY
// by the supervisor when a completion turns out to be defective.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo checks if a status transition is valid
func (s Status) CanTransitionTo(next Status) bool {
	validTransitions := map[Status][]Status{
		StatusPending:    {StatusReady},
		StatusReady:      {StatusAssigned, StatusPending},
		StatusAssigned:   {StatusInProgress, StatusReady},
		StatusInProgress: {StatusBlocked, StatusReview, StatusCompleted, StatusFailed, StatusReady},
		StatusBlocked:    {StatusInProgress, StatusReady, StatusFailed},
		StatusReview:     {StatusCompleted, StatusInProgress, StatusFailed},
		StatusCompleted:  {StatusReady},
		StatusFailed:     {},
	}

	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}

	for _, allowedStatus := range allowed {
		if allowedStatus == next {
			return true
		}
	}
	return false
}

// Progress represents task completion as a percentage
type Progress struct {
	value int
}

// NewProgress creates a Progress value, rejecting values outside 0-100
func NewProgress(value int) (Progress, error) {
	if value < 0 || value > 100 {
		return Progress{}, errors.New("progress must be between 0 and 100")
	}
	return Progress{value: value}, nil
}

// Value returns the integer percentage
func (p Progress) Value() int {
	return p.value
}

// Equals checks if two Progress values are equal
func (p Progress) Equals(other Progress) bool {
	return p.value == other.value
}

// Timestamp represents a point in time
type Timestamp struct {
	value time.Time
}

// NewTimestamp creates a new Timestamp with current time
func NewTimestamp() Timestamp {
	return Timestamp{value: time.Now()}
}

// NewTimestampFromTime creates a Timestamp from a time.Time value
func NewTimestampFromTime(t time.Time) Timestamp {
	return Timestamp{value: t}
}

// Value returns the time.Time value
func (t Timestamp) Value() time.Time {
	return t.value
}

// Before checks if this timestamp is before another
func (t Timestamp) Before(other Timestamp) bool {
	return t.value.Before(other.value)
}

// After checks if this timestamp is after another
func (t Timestamp) After(other Timestamp) bool {
	return t.value.After(other.value)
}

// String returns the string representation
func (t Timestamp) String() string {
	return t.value.Format(time.RFC3339)
}
