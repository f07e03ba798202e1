package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/crewsync/crewsync/internal/domain/model"
	"github.com/crewsync/crewsync/internal/domain/model/lock"
)

// LockManagerConfig holds tunables for the lock manager
type LockManagerConfig struct {
	DefaultTTL    time.Duration // lease length when the caller passes no TTL
	SweepInterval time.Duration // how often the background sweep runs
}

// DefaultLockManagerConfig returns default configuration
func DefaultLockManagerConfig() LockManagerConfig {
	return LockManagerConfig{
		DefaultTTL:    60 * time.Minute,
		SweepInterval: 60 * time.Second,
	}
}

// AcquireResult reports the outcome of a lock acquisition attempt.
// A refusal is a normal contention outcome, not an error: the result
// carries enough detail for the caller to wait, queue, or block the task.
type AcquireResult struct {
	Granted   bool
	Resource  string
	Holder    model.WorkerID
	ExpiresAt time.Time

	// Populated on refusal
	HeldBy    []model.WorkerID
	HeldType  lock.LockType
	Remaining time.Duration
}

// Reason renders a human-readable refusal explanation
func (r AcquireResult) Reason() string {
	if r.Granted {
		return ""
	}
	holders := make([]string, 0, len(r.HeldBy))
	for _, h := range r.HeldBy {
		holders = append(holders, h.String())
	}
	sort.Strings(holders)
	return fmt.Sprintf("resource %s held %s by %v (%s remaining)",
		r.Resource, r.HeldType, holders, r.Remaining.Round(time.Second))
}

// LockStatus is a read-only view of one resource's lock state
type LockStatus struct {
	Resource  string
	Type      lock.LockType
	Holders   []model.WorkerID
	ExpiresAt time.Time
}

// LockManager enforces exclusive and shared claims over named resources.
// Deadlock avoidance is purely expiry-based: every grant carries a TTL
// and a periodic sweep reclaims lapsed grants, so no wait-for graph is
// maintained.
type LockManager struct {
	mu     sync.Mutex
	locks  map[string]*lock.ResourceLock
	config LockManagerConfig

	sweepCancel context.CancelFunc
	stopOnce    sync.Once
	warnLog     func(format string, args ...interface{})
}

// NewLockManager creates a lock manager
func NewLockManager(config LockManagerConfig, warnLog func(format string, args ...interface{})) *LockManager {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultLockManagerConfig().DefaultTTL
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultLockManagerConfig().SweepInterval
	}
	if warnLog == nil {
		warnLog = func(format string, args ...interface{}) {}
	}
	return &LockManager{
		locks:   make(map[string]*lock.ResourceLock),
		config:  config,
		warnLog: warnLog,
	}
}

// Start launches the background expiry sweep
func (m *LockManager) Start(ctx context.Context) error {
	sweepCtx, cancel := context.WithCancel(ctx)
	m.sweepCancel = cancel

	go m.sweepScheduler(sweepCtx)
	return nil
}

// Stop halts the background sweep
func (m *LockManager) Stop() error {
	m.stopOnce.Do(func() {
		if m.sweepCancel != nil {
			m.sweepCancel()
		}
	})
	return nil
}

// Acquire attempts to claim a resource without waiting.
// Exclusive succeeds only when no live grant of any type exists (expired
// grants are reclaimed in passing). Shared types succeed unless a live
// exclusive grant is held. A holder re-acquiring a resource it already
// holds refreshes its lease.
func (m *LockManager) Acquire(resource string, lockType lock.LockType, holder model.WorkerID, ttl time.Duration) (AcquireResult, error) {
	lockID, err := lock.NewLockID(resource)
	if err != nil {
		return AcquireResult{}, err
	}
	if !lockType.IsValid() {
		return AcquireResult{}, fmt.Errorf("invalid lock type: %s", lockType)
	}
	if holder == "" {
		return AcquireResult{}, fmt.Errorf("holder cannot be empty")
	}
	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	existing, exists := m.locks[resource]
	if exists {
		existing.PruneExpired(now)
		if existing.IsEmpty() {
			delete(m.locks, resource)
			exists = false
		}
	}

	if !exists {
		rl, err := lock.NewResourceLock(lockID, lockType)
		if err != nil {
			return AcquireResult{}, err
		}
		g := rl.AddGrant(holder, ttl)
		m.locks[resource] = rl
		return AcquireResult{Granted: true, Resource: resource, Holder: holder, ExpiresAt: g.ExpiresAt()}, nil
	}

	// Same holder refreshing its own claim of the same type.
	if existing.Type() == lockType && existing.HeldBy(holder, now) {
		g := existing.AddGrant(holder, ttl)
		return AcquireResult{Granted: true, Resource: resource, Holder: holder, ExpiresAt: g.ExpiresAt()}, nil
	}

	if existing.Type() == lock.LockTypeExclusive || lockType == lock.LockTypeExclusive {
		return m.refusal(resource, existing, now), nil
	}

	// Both sides are shared. Mixed shared types on one resource are
	// refused so the record keeps a single coherent type.
	if existing.Type() != lockType {
		return m.refusal(resource, existing, now), nil
	}

	g := existing.AddGrant(holder, ttl)
	return AcquireResult{Granted: true, Resource: resource, Holder: holder, ExpiresAt: g.ExpiresAt()}, nil
}

// errLockContended marks a retryable refusal inside AcquireWait so an
// exhausted wait budget can be told apart from a genuine failure.
var errLockContended = errors.New("lock contended")

// AcquireWait retries Acquire with exponential backoff until the grant
// succeeds, the wait budget is exhausted, or the context is cancelled.
// An exhausted budget surfaces the last refusal as a normal outcome.
func (m *LockManager) AcquireWait(ctx context.Context, resource string, lockType lock.LockType, holder model.WorkerID, ttl, wait time.Duration) (AcquireResult, error) {
	var result AcquireResult

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		r, err := m.Acquire(resource, lockType, holder, ttl)
		if err != nil {
			return backoff.Permanent(err)
		}
		result = r
		if !r.Granted {
			return fmt.Errorf("%w: %s", errLockContended, r.Reason())
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = wait

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if err == nil || errors.Is(err, errLockContended) {
		return result, nil
	}
	return result, err
}

// Release drops a holder's grant on a resource. Releasing a lock that
// was never held, or was already released, is a no-op.
func (m *LockManager) Release(resource string, holder model.WorkerID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rl, exists := m.locks[resource]
	if !exists {
		return
	}
	rl.RemoveGrant(holder)
	if rl.IsEmpty() {
		delete(m.locks, resource)
	}
}

// ForceReleaseAll drops every grant held by a worker, across all
// resources. Called when the holding worker's task terminates so no
// orphaned locks survive a task's lifecycle. Returns the number of
// grants released.
func (m *LockManager) ForceReleaseAll(holder model.WorkerID) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := 0
	for resource, rl := range m.locks {
		if rl.RemoveGrant(holder) {
			released++
		}
		if rl.IsEmpty() {
			delete(m.locks, resource)
		}
	}
	return released
}

// SweepExpired reclaims every lapsed grant and returns how many were
// removed. This is the sole deadlock-breaking mechanism.
func (m *LockManager) SweepExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	swept := 0
	for resource, rl := range m.locks {
		swept += rl.PruneExpired(now)
		if rl.IsEmpty() {
			delete(m.locks, resource)
		}
	}
	return swept
}

// HoldersOf returns the live holders of a resource (empty if unlocked)
func (m *LockManager) HoldersOf(resource string) []model.WorkerID {
	m.mu.Lock()
	defer m.mu.Unlock()

	rl, exists := m.locks[resource]
	if !exists {
		return nil
	}
	return rl.Holders(time.Now().UTC())
}

// List returns a snapshot of every live lock, sorted by resource
func (m *LockManager) List() []LockStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	statuses := make([]LockStatus, 0, len(m.locks))
	for resource, rl := range m.locks {
		grants := rl.LiveGrants(now)
		if len(grants) == 0 {
			continue
		}
		status := LockStatus{
			Resource: resource,
			Type:     rl.Type(),
			Holders:  rl.Holders(now),
		}
		for _, g := range grants {
			if g.ExpiresAt().After(status.ExpiresAt) {
				status.ExpiresAt = g.ExpiresAt()
			}
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Resource < statuses[j].Resource })
	return statuses
}

func (m *LockManager) refusal(resource string, rl *lock.ResourceLock, now time.Time) AcquireResult {
	result := AcquireResult{
		Granted:  false,
		Resource: resource,
		HeldBy:   rl.Holders(now),
		HeldType: rl.Type(),
	}
	for _, g := range rl.LiveGrants(now) {
		if remaining := g.RemainingTime(); remaining > result.Remaining {
			result.Remaining = remaining
		}
	}
	return result
}

// sweepScheduler periodically reclaims expired grants
func (m *LockManager) sweepScheduler(ctx context.Context) {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if swept := m.SweepExpired(); swept > 0 {
				m.warnLog("lock sweep reclaimed %d expired grant(s)", swept)
			}
		}
	}
}
