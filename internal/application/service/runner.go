package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/crewsync/crewsync/internal/application/dto"
	"github.com/crewsync/crewsync/internal/domain/model"
)

// ProgressFunc lets an executor stream checkpoints while it works
type ProgressFunc func(percent int, note string)

// Executor performs the actual work of a claimed task. The engine
// treats it as an opaque callback: it reports progress through the
// callback and finishes with the artifact paths it produced, or an
// error.
type Executor interface {
	Execute(ctx context.Context, t dto.TaskSnapshot, report ProgressFunc) ([]string, error)
}

// ContentionError signals that the executor could not proceed because a
// resource it needs is held elsewhere. The runner reports the task
// BLOCKED instead of failing it.
type ContentionError struct {
	Resource string
	Reason   string
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("contention on %s: %s", e.Resource, e.Reason)
}

// RunnerConfig holds tunables for the worker loop
type RunnerConfig struct {
	Workers      int                // number of concurrent worker goroutines
	Capabilities []model.Capability // capabilities every worker advertises
	IdleInterval time.Duration      // poll delay when no task is ready
	RetryBudget  time.Duration      // max elapsed time retrying one execution
	DrainOnIdle  bool               // stop once no claimable or running work remains
}

// DefaultRunnerConfig returns default configuration
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Workers:      2,
		Capabilities: []model.Capability{model.CapabilityGeneral},
		IdleInterval: 250 * time.Millisecond,
		RetryBudget:  30 * time.Second,
	}
}

// breakerRegistry manages per-capability circuit breakers so one
// flapping executor capability cannot burn retries for the others
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[model.Capability]*gobreaker.CircuitBreaker
	warnLog  func(format string, args ...interface{})
}

func newBreakerRegistry(warnLog func(format string, args ...interface{})) *breakerRegistry {
	return &breakerRegistry{
		breakers: make(map[model.Capability]*gobreaker.CircuitBreaker),
		warnLog:  warnLog,
	}
}

func (r *breakerRegistry) get(capability model.Capability) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[capability]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        capability.String(),
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.warnLog("executor breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Cancellation and contention are not executor health signals.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			var contention *ContentionError
			return errors.As(err, &contention)
		},
	})
	r.breakers[capability] = cb
	return cb
}

// Runner drives a pool of workers that pull ready tasks from the
// coordinator and hand them to the executor
type Runner struct {
	coordinator *Coordinator
	executor    Executor
	pool        *WorkerPool
	breakers    *breakerRegistry
	config      RunnerConfig

	active  atomic.Int64
	infoLog func(format string, args ...interface{})
	warnLog func(format string, args ...interface{})
}

// NewRunner creates a runner over the coordinator and executor
func NewRunner(coordinator *Coordinator, executor Executor, pool *WorkerPool, config RunnerConfig, infoLog, warnLog func(format string, args ...interface{})) *Runner {
	if config.Workers <= 0 {
		config.Workers = DefaultRunnerConfig().Workers
	}
	if len(config.Capabilities) == 0 {
		config.Capabilities = DefaultRunnerConfig().Capabilities
	}
	if config.IdleInterval <= 0 {
		config.IdleInterval = DefaultRunnerConfig().IdleInterval
	}
	if config.RetryBudget <= 0 {
		config.RetryBudget = DefaultRunnerConfig().RetryBudget
	}
	if pool == nil {
		pool = NewWorkerPool()
	}
	if infoLog == nil {
		infoLog = func(format string, args ...interface{}) {}
	}
	if warnLog == nil {
		warnLog = func(format string, args ...interface{}) {}
	}
	return &Runner{
		coordinator: coordinator,
		executor:    executor,
		pool:        pool,
		breakers:    newBreakerRegistry(warnLog),
		config:      config,
		infoLog:     infoLog,
		warnLog:     warnLog,
	}
}

// Run starts the worker goroutines and blocks until they stop: on
// context cancellation, or with DrainOnIdle once no claimable or
// running work remains
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < r.config.Workers; i++ {
		worker := model.WorkerID(fmt.Sprintf("worker-%d", i+1))
		g.Go(func() error {
			return r.workerLoop(gctx, worker)
		})
	}

	return g.Wait()
}

func (r *Runner) workerLoop(ctx context.Context, worker model.WorkerID) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Reserve a pool slot per capability before claiming, so a
		// claimed task always has room to run and is never handed
		// back. Unused reservations are released right after.
		reserved := make([]model.Capability, 0, len(r.config.Capabilities))
		for _, capability := range r.config.Capabilities {
			if r.pool.TryAcquire(capability) {
				reserved = append(reserved, capability)
			}
		}
		if len(reserved) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.config.IdleInterval):
			}
			continue
		}

		claimed, err := r.coordinator.ClaimNext(worker, reserved)
		if err != nil {
			r.releaseAll(reserved)
			return err
		}
		if claimed == nil {
			r.releaseAll(reserved)
			if r.config.DrainOnIdle && r.active.Load() == 0 && r.drained() {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.config.IdleInterval):
			}
			continue
		}

		capability := model.Capability(claimed.Capability)
		for _, res := range reserved {
			if res != capability {
				r.pool.Release(res)
			}
		}

		r.active.Add(1)
		r.execute(ctx, worker, *claimed)
		r.active.Add(-1)
		r.pool.Release(capability)
	}
}

func (r *Runner) releaseAll(capabilities []model.Capability) {
	for _, capability := range capabilities {
		r.pool.Release(capability)
	}
}

// execute runs one claimed task through the breaker with retry, then
// reports the outcome to the coordinator
func (r *Runner) execute(ctx context.Context, worker model.WorkerID, t dto.TaskSnapshot) {
	cb := r.breakers.get(model.Capability(t.Capability))
	report := func(percent int, note string) {
		if err := r.coordinator.ReportProgress(t.ID, percent, note); err != nil {
			r.warnLog("runner: report progress for %s: %v", t.ID, err)
		}
	}

	var artifacts []string
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		result, err := cb.Execute(func() (interface{}, error) {
			return r.executor.Execute(ctx, t, report)
		})
		if err != nil {
			var contention *ContentionError
			if errors.As(err, &contention) {
				return backoff.Permanent(err)
			}
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			return err
		}
		artifacts = result.([]string)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = r.config.RetryBudget

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if err == nil {
		if completeErr := r.coordinator.Complete(t.ID, artifacts); completeErr != nil {
			r.warnLog("runner: complete %s: %v", t.ID, completeErr)
			if failErr := r.coordinator.Fail(t.ID, completeErr.Error()); failErr != nil {
				r.warnLog("runner: fail %s: %v", t.ID, failErr)
			}
		} else {
			r.infoLog("runner: task %s completed by %s", t.ID, worker)
		}
		return
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}

	var contention *ContentionError
	switch {
	case errors.As(err, &contention):
		if blockErr := r.coordinator.ReportBlocked(t.ID, contention.Reason); blockErr != nil {
			r.warnLog("runner: block %s: %v", t.ID, blockErr)
		}
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Shutdown mid-flight; the supervisor will catch the orphan.
		r.warnLog("runner: task %s interrupted: %v", t.ID, err)
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		if blockErr := r.coordinator.ReportBlocked(t.ID, "executor circuit open"); blockErr != nil {
			r.warnLog("runner: block %s: %v", t.ID, blockErr)
		}
	default:
		if failErr := r.coordinator.Fail(t.ID, err.Error()); failErr != nil {
			r.warnLog("runner: fail %s: %v", t.ID, failErr)
		}
	}
}

// drained reports whether no claimable or potentially claimable work
// remains for this runner's capabilities
func (r *Runner) drained() bool {
	all, err := r.coordinator.ListAll()
	if err != nil {
		return false
	}
	for _, t := range all {
		switch t.Status {
		case model.StatusCompleted, model.StatusFailed:
			continue
		}
		if t.Flagged {
			continue
		}
		return false
	}
	return true
}
