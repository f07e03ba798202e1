package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewsync/crewsync/internal/application/dto"
)

func TestShellExecutor_NoCommand(t *testing.T) {
	e := NewShellExecutor(time.Second)

	var lastPercent int
	artifacts, err := e.Execute(context.Background(), dto.TaskSnapshot{
		ID:        "declarative",
		Artifacts: []string{"docs/readme.md"},
	}, func(percent int, note string) { lastPercent = percent })

	require.NoError(t, err)
	assert.Equal(t, []string{"docs/readme.md"}, artifacts)
	assert.Equal(t, 100, lastPercent, "declarative tasks complete immediately")
}

func TestShellExecutor_RunsCommand(t *testing.T) {
	e := NewShellExecutor(5 * time.Second)

	artifacts, err := e.Execute(context.Background(), dto.TaskSnapshot{
		ID:        "noop",
		Command:   "true",
		Artifacts: []string{"out/result"},
	}, func(int, string) {})

	require.NoError(t, err)
	assert.Equal(t, []string{"out/result"}, artifacts)
}

func TestShellExecutor_CommandFailure(t *testing.T) {
	e := NewShellExecutor(5 * time.Second)

	_, err := e.Execute(context.Background(), dto.TaskSnapshot{
		ID:      "broken",
		Command: "echo boom >&2; exit 3",
	}, func(int, string) {})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom", "stderr is carried in the failure")
}

func TestShellExecutor_Timeout(t *testing.T) {
	e := NewShellExecutor(50 * time.Millisecond)

	_, err := e.Execute(context.Background(), dto.TaskSnapshot{
		ID:      "slow",
		Command: "sleep 5",
	}, func(int, string) {})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
