package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewsync/crewsync/internal/domain/model"
)

func newTestTask(t *testing.T) *Task {
	t.Helper()
	id, err := model.NewTaskIDFromString("build-api")
	require.NoError(t, err)
	task, err := NewTask(id, "Build API", "implement the endpoints", model.CapabilityGeneral, nil, []string{"api/server.go"}, "make build", 1)
	require.NoError(t, err)
	return task
}

func readyTask(t *testing.T) *Task {
	t.Helper()
	task := newTestTask(t)
	require.NoError(t, task.UpdateStatus(model.StatusReady))
	return task
}

func TestNewTask(t *testing.T) {
	task := newTestTask(t)

	assert.Equal(t, "build-api", task.ID().String())
	assert.Equal(t, model.StatusPending, task.Status())
	assert.Equal(t, model.CapabilityGeneral, task.Capability())
	assert.Equal(t, []string{"api/server.go"}, task.Artifacts())
	assert.Equal(t, 1, task.Sequence())
	assert.Zero(t, task.ResetCount())
	assert.False(t, task.Flagged())
	assert.Nil(t, task.StartedAt())
	assert.Nil(t, task.CompletedAt())
}

func TestNewTask_EmptyTitle(t *testing.T) {
	id, _ := model.NewTaskIDFromString("x")
	_, err := NewTask(id, "", "", model.CapabilityGeneral, nil, nil, "", 1)
	assert.Error(t, err)
}

func TestNewTask_DefaultsCapability(t *testing.T) {
	id, _ := model.NewTaskIDFromString("x")
	task, err := NewTask(id, "X", "", "", nil, nil, "", 1)
	require.NoError(t, err)
	assert.Equal(t, model.CapabilityGeneral, task.Capability())
}

func TestTask_Assign(t *testing.T) {
	task := readyTask(t)

	err := task.Assign("worker-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, task.Status())
	assert.Equal(t, model.WorkerID("worker-1"), task.AssignedWorker())
	require.NotNil(t, task.StartedAt())

	started := *task.StartedAt()

	// Reset and re-claim: startedAt keeps the first claim time.
	require.NoError(t, task.Reset())
	require.NoError(t, task.Assign("worker-2"))
	assert.Equal(t, started, *task.StartedAt())
}

func TestTask_Assign_NotReady(t *testing.T) {
	task := newTestTask(t) // PENDING
	assert.Error(t, task.Assign("worker-1"))
}

func TestTask_AppendCheckpoint(t *testing.T) {
	task := readyTask(t)
	require.NoError(t, task.Assign("worker-1"))

	p25, _ := model.NewProgress(25)
	require.NoError(t, task.AppendCheckpoint(p25, "endpoints scaffolded"))
	p60, _ := model.NewProgress(60)
	require.NoError(t, task.AppendCheckpoint(p60, "handlers done"))

	cps := task.Checkpoints()
	require.Len(t, cps, 2)
	assert.Equal(t, 25, cps[0].Progress)
	assert.Equal(t, 60, cps[1].Progress)
	assert.Equal(t, "handlers done", task.LastCheckpoint().Note)
	assert.Equal(t, 60, task.Progress().Value())
}

func TestTask_AppendCheckpoint_OnlyWhileWorking(t *testing.T) {
	task := readyTask(t)
	p, _ := model.NewProgress(10)

	err := task.AppendCheckpoint(p, "too early")
	assert.ErrorIs(t, err, ErrProgressNotAllowed)

	require.NoError(t, task.Assign("worker-1"))
	require.NoError(t, task.MarkBlocked("waiting on lock"))
	assert.NoError(t, task.AppendCheckpoint(p, "blocked but alive"))

	require.NoError(t, task.Resume())
	require.NoError(t, task.MarkCompleted(task.Artifacts()))
	assert.ErrorIs(t, task.AppendCheckpoint(p, "too late"), ErrProgressNotAllowed)
}

func TestTask_BlockAndResume(t *testing.T) {
	task := readyTask(t)
	require.NoError(t, task.Assign("worker-1"))

	require.NoError(t, task.MarkBlocked("resource held"))
	assert.Equal(t, model.StatusBlocked, task.Status())
	assert.Equal(t, "resource held", task.BlockReason())

	require.NoError(t, task.Resume())
	assert.Equal(t, model.StatusInProgress, task.Status())
	assert.Empty(t, task.BlockReason())
}

func TestTask_MarkCompleted(t *testing.T) {
	task := readyTask(t)
	require.NoError(t, task.Assign("worker-1"))

	require.NoError(t, task.MarkCompleted([]string{"api/server.go", "api/server_test.go"}))
	assert.Equal(t, model.StatusCompleted, task.Status())
	assert.Equal(t, []string{"api/server.go", "api/server_test.go"}, task.Artifacts())
	assert.NotNil(t, task.CompletedAt())
}

func TestTask_MarkFailed_IsTerminal(t *testing.T) {
	task := readyTask(t)
	require.NoError(t, task.Assign("worker-1"))
	require.NoError(t, task.MarkFailed("executor crashed"))

	assert.Equal(t, model.StatusFailed, task.Status())
	assert.Equal(t, "executor crashed", task.BlockReason())

	// Nothing transitions out of FAILED.
	assert.Error(t, task.Reset())
	assert.Error(t, task.UpdateStatus(model.StatusReady))
	assert.Error(t, task.UpdateStatus(model.StatusPending))
}

func TestTask_Reset_PreservesCheckpoints(t *testing.T) {
	task := readyTask(t)
	require.NoError(t, task.Assign("worker-1"))
	p, _ := model.NewProgress(80)
	require.NoError(t, task.AppendCheckpoint(p, "almost there"))
	require.NoError(t, task.MarkCompleted(task.Artifacts()))

	require.NoError(t, task.Reset())
	assert.Equal(t, model.StatusReady, task.Status())
	assert.Empty(t, task.AssignedWorker().String())
	assert.Nil(t, task.CompletedAt())
	assert.Equal(t, 1, task.ResetCount())
	assert.Len(t, task.Checkpoints(), 1, "checkpoint history survives resets")

	require.NoError(t, task.Assign("worker-2"))
	require.NoError(t, task.MarkCompleted(task.Artifacts()))
	require.NoError(t, task.Reset())
	assert.Equal(t, 2, task.ResetCount())
}

func TestTask_DependsOn(t *testing.T) {
	dep, _ := model.NewTaskIDFromString("schema")
	other, _ := model.NewTaskIDFromString("docs")
	id, _ := model.NewTaskIDFromString("api")

	task, err := NewTask(id, "API", "", model.CapabilityGeneral, []model.TaskID{dep}, nil, "", 2)
	require.NoError(t, err)

	assert.True(t, task.DependsOn(dep))
	assert.False(t, task.DependsOn(other))
}

func TestTask_Flag(t *testing.T) {
	task := newTestTask(t)
	assert.False(t, task.Flagged())
	task.Flag()
	assert.True(t, task.Flagged())
}
