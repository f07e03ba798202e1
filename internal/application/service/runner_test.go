package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewsync/crewsync/internal/application/dto"
	"github.com/crewsync/crewsync/internal/domain/model"
)

// funcExecutor adapts a function to the Executor interface
type funcExecutor func(ctx context.Context, t dto.TaskSnapshot, report ProgressFunc) ([]string, error)

func (f funcExecutor) Execute(ctx context.Context, t dto.TaskSnapshot, report ProgressFunc) ([]string, error) {
	return f(ctx, t, report)
}

func fastRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Workers:      2,
		Capabilities: []model.Capability{model.CapabilityGeneral},
		IdleInterval: 5 * time.Millisecond,
		RetryBudget:  50 * time.Millisecond,
		DrainOnIdle:  true,
	}
}

func TestRunner_DrainsPlan(t *testing.T) {
	e := newTestEngine(t)
	e.submit(t, "schema")
	e.submit(t, "api", "schema")
	e.submit(t, "docs", "schema")

	executor := funcExecutor(func(ctx context.Context, task dto.TaskSnapshot, report ProgressFunc) ([]string, error) {
		report(100, "done")
		return nil, nil
	})

	pool := NewWorkerPool()
	require.NoError(t, pool.SetLimit(model.CapabilityGeneral, 2))
	runner := NewRunner(e.coordinator, executor, pool, fastRunnerConfig(), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))

	all, err := e.coordinator.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, task := range all {
		assert.Equal(t, model.StatusCompleted, task.Status, "task %s", task.ID)
		require.NotEmpty(t, task.Checkpoints)
		assert.Equal(t, 100, task.Progress)
	}
}

func TestRunner_RespectsDependencyOrder(t *testing.T) {
	e := newTestEngine(t)
	e.submit(t, "first")
	e.submit(t, "second", "first")

	var mu sync.Mutex
	var executed []string
	executor := funcExecutor(func(ctx context.Context, task dto.TaskSnapshot, report ProgressFunc) ([]string, error) {
		mu.Lock()
		executed = append(executed, task.ID)
		mu.Unlock()
		return nil, nil
	})

	runner := NewRunner(e.coordinator, executor, nil, fastRunnerConfig(), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))

	require.Equal(t, []string{"first", "second"}, executed)
}

func TestRunner_ContentionBlocksTask(t *testing.T) {
	e := newTestEngine(t)
	e.submit(t, "contended")

	executor := funcExecutor(func(ctx context.Context, task dto.TaskSnapshot, report ProgressFunc) ([]string, error) {
		return nil, &ContentionError{Resource: "src/main.go", Reason: "held by another task"}
	})

	config := fastRunnerConfig()
	config.Workers = 1
	config.DrainOnIdle = false
	runner := NewRunner(e.coordinator, executor, nil, config, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		snapshot, err := e.coordinator.GetTask("contended")
		return err == nil && snapshot.Status == model.StatusBlocked
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	snapshot, _ := e.coordinator.GetTask("contended")
	assert.Equal(t, "held by another task", snapshot.BlockReason)
}

func TestRunner_PersistentFailureFailsTask(t *testing.T) {
	e := newTestEngine(t)
	e.submit(t, "broken")

	executor := funcExecutor(func(ctx context.Context, task dto.TaskSnapshot, report ProgressFunc) ([]string, error) {
		return nil, errors.New("compiler not found")
	})

	runner := NewRunner(e.coordinator, executor, nil, fastRunnerConfig(), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))

	snapshot, _ := e.coordinator.GetTask("broken")
	assert.Equal(t, model.StatusFailed, snapshot.Status)
	assert.Contains(t, snapshot.BlockReason, "compiler not found")
}

func TestRunner_RetriesTransientFailure(t *testing.T) {
	e := newTestEngine(t)
	e.submit(t, "flaky")

	var mu sync.Mutex
	attempts := 0
	executor := funcExecutor(func(ctx context.Context, task dto.TaskSnapshot, report ProgressFunc) ([]string, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			return nil, errors.New("transient network hiccup")
		}
		return nil, nil
	})

	config := fastRunnerConfig()
	config.RetryBudget = 5 * time.Second
	runner := NewRunner(e.coordinator, executor, nil, config, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))

	snapshot, _ := e.coordinator.GetTask("flaky")
	assert.Equal(t, model.StatusCompleted, snapshot.Status)
	mu.Lock()
	assert.GreaterOrEqual(t, attempts, 3)
	mu.Unlock()
}

func TestRunner_ValidatesArtifactsOnCompletion(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.coordinator.Submit(dto.SubmitInput{
		ID:        "build",
		Title:     "Build",
		Artifacts: []string{"out/bin"},
	})
	require.NoError(t, err)

	// The executor claims success but never produces the artifact, so
	// completion is rejected and the task fails instead.
	executor := funcExecutor(func(ctx context.Context, task dto.TaskSnapshot, report ProgressFunc) ([]string, error) {
		return task.Artifacts, nil
	})

	runner := NewRunner(e.coordinator, executor, nil, fastRunnerConfig(), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))

	snapshot, _ := e.coordinator.GetTask("build")
	assert.Equal(t, model.StatusFailed, snapshot.Status)
}

func TestRunner_DrainIgnoresFlaggedTasks(t *testing.T) {
	e := newTestEngine(t)
	e.submit(t, "stuck-forever")
	require.NoError(t, e.coordinator.FlagForOperator("stuck-forever", "operator decision pending"))

	executor := funcExecutor(func(ctx context.Context, task dto.TaskSnapshot, report ProgressFunc) ([]string, error) {
		return nil, nil
	})

	runner := NewRunner(e.coordinator, executor, nil, fastRunnerConfig(), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx), "a flagged task does not keep the runner alive")
}

func TestRunner_SaturatedPoolDoesNotCountAsRepair(t *testing.T) {
	e := newTestEngine(t)
	e.submit(t, "batch-1")
	e.submit(t, "batch-2")
	e.submit(t, "batch-3")

	executor := funcExecutor(func(ctx context.Context, task dto.TaskSnapshot, report ProgressFunc) ([]string, error) {
		// Hold the single slot long enough for the other worker to
		// contend for it.
		time.Sleep(20 * time.Millisecond)
		return nil, nil
	})

	pool := NewWorkerPool()
	require.NoError(t, pool.SetLimit(model.CapabilityGeneral, 1))
	runner := NewRunner(e.coordinator, executor, pool, fastRunnerConfig(), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))

	all, err := e.coordinator.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, task := range all {
		assert.Equal(t, model.StatusCompleted, task.Status, "task %s", task.ID)
		assert.Zero(t, task.ResetCount, "capacity waits must never count as repairs for %s", task.ID)
		assert.False(t, task.Flagged, "task %s", task.ID)
	}
}
