package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskID_New(t *testing.T) {
	id1 := NewTaskID()
	id2 := NewTaskID()

	assert.NotEmpty(t, id1.String())
	assert.NotEmpty(t, id2.String())
	assert.False(t, id1.Equals(id2), "generated IDs must be unique")
	assert.Len(t, id1.String(), 26, "ULID is 26 characters")
}

func TestTaskID_FromString(t *testing.T) {
	id, err := NewTaskIDFromString("build-api")
	require.NoError(t, err)
	assert.Equal(t, "build-api", id.String())

	_, err = NewTaskIDFromString("")
	assert.Error(t, err)
}

func TestStatus_IsValid(t *testing.T) {
	valid := []Status{
		StatusPending, StatusReady, StatusAssigned, StatusInProgress,
		StatusBlocked, StatusReview, StatusCompleted, StatusFailed,
	}
	for _, s := range valid {
		assert.True(t, s.IsValid(), "status %s should be valid", s)
	}
	assert.False(t, Status("UNKNOWN").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.False(t, StatusBlocked.IsTerminal())
	assert.False(t, StatusReady.IsTerminal())
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusReady, true},
		{StatusPending, StatusInProgress, false},
		{StatusReady, StatusAssigned, true},
		{StatusReady, StatusCompleted, false},
		{StatusAssigned, StatusInProgress, true},
		{StatusInProgress, StatusBlocked, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusReady, true}, // supervisor reset
		{StatusBlocked, StatusInProgress, true},
		{StatusBlocked, StatusCompleted, false},
		{StatusReview, StatusCompleted, true},
		{StatusReview, StatusInProgress, true},
		{StatusCompleted, StatusReady, true}, // supervisor reset only
		{StatusCompleted, StatusInProgress, false},
		{StatusFailed, StatusReady, false}, // FAILED is terminal
		{StatusFailed, StatusPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestProgress(t *testing.T) {
	p, err := NewProgress(50)
	require.NoError(t, err)
	assert.Equal(t, 50, p.Value())

	_, err = NewProgress(-1)
	assert.Error(t, err)

	_, err = NewProgress(101)
	assert.Error(t, err)

	full, err := NewProgress(100)
	require.NoError(t, err)
	assert.Equal(t, 100, full.Value())
}

func TestCapability(t *testing.T) {
	assert.Equal(t, "general", CapabilityGeneral.String())
	assert.Equal(t, "deploy", Capability("deploy").String())
}
