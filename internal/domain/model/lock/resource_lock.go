package lock

import (
	"fmt"
	"time"

	"github.com/crewsync/crewsync/internal/domain/model"
)

// LockType represents the kind of claim held over a resource
type LockType string

const (
	// LockTypeExclusive admits a single holder and excludes all others
	LockTypeExclusive LockType = "exclusive"

	// LockTypeSharedRead admits any number of concurrent readers
	LockTypeSharedRead LockType = "shared_read"

	// LockTypeSharedWrite is counted like SharedRead but tracked as a
	// distinct type; ordering among concurrent writers is the caller's
	// responsibility, the manager only enforces the counting rule
	LockTypeSharedWrite LockType = "shared_write"
)

// IsValid validates the lock type
func (t LockType) IsValid() bool {
	switch t {
	case LockTypeExclusive, LockTypeSharedRead, LockTypeSharedWrite:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (t LockType) String() string {
	return string(t)
}

// Grant records one holder's claim on a resource
type Grant struct {
	holder     model.WorkerID
	acquiredAt time.Time
	expiresAt  time.Time
}

// Holder returns the worker holding this grant
func (g Grant) Holder() model.WorkerID { return g.holder }

// AcquiredAt returns when the grant was issued
func (g Grant) AcquiredAt() time.Time { return g.acquiredAt }

// ExpiresAt returns when the grant lapses
func (g Grant) ExpiresAt() time.Time { return g.expiresAt }

// IsExpired checks whether the grant has lapsed at the given instant
func (g Grant) IsExpired(now time.Time) bool {
	return now.After(g.expiresAt)
}

// RemainingTime returns the time left before expiry
func (g Grant) RemainingTime() time.Duration {
	return time.Until(g.expiresAt)
}

// ResourceLock represents the lock state of a single named resource.
// A resource carries at most one lock type at a time; the set of grants
// tracks every live holder (a singleton for exclusive locks).
type ResourceLock struct {
	resource LockID
	lockType LockType
	grants   map[model.WorkerID]Grant
}

// NewResourceLock creates an empty lock record for a resource
func NewResourceLock(resource LockID, lockType LockType) (*ResourceLock, error) {
	if !lockType.IsValid() {
		return nil, fmt.Errorf("invalid lock type: %s", lockType)
	}
	return &ResourceLock{
		resource: resource,
		lockType: lockType,
		grants:   make(map[model.WorkerID]Grant),
	}, nil
}

// Resource returns the locked resource ID
func (l *ResourceLock) Resource() LockID { return l.resource }

// Type returns the lock type
func (l *ResourceLock) Type() LockType { return l.lockType }

// AddGrant issues a grant to a holder. Re-granting to an existing holder
// refreshes its expiry rather than double-counting it.
func (l *ResourceLock) AddGrant(holder model.WorkerID, ttl time.Duration) Grant {
	now := time.Now().UTC()
	g := Grant{
		holder:     holder,
		acquiredAt: now,
		expiresAt:  now.Add(ttl),
	}
	if prev, exists := l.grants[holder]; exists {
		g.acquiredAt = prev.acquiredAt
	}
	l.grants[holder] = g
	return g
}

// RemoveGrant drops a holder's grant. Removing a non-existent holder is
// a no-op; the return value reports whether anything was removed.
func (l *ResourceLock) RemoveGrant(holder model.WorkerID) bool {
	if _, exists := l.grants[holder]; !exists {
		return false
	}
	delete(l.grants, holder)
	return true
}

// PruneExpired removes lapsed grants and returns how many were dropped
func (l *ResourceLock) PruneExpired(now time.Time) int {
	pruned := 0
	for holder, g := range l.grants {
		if g.IsExpired(now) {
			delete(l.grants, holder)
			pruned++
		}
	}
	return pruned
}

// LiveGrants returns the grants that have not expired at the given instant
func (l *ResourceLock) LiveGrants(now time.Time) []Grant {
	live := make([]Grant, 0, len(l.grants))
	for _, g := range l.grants {
		if !g.IsExpired(now) {
			live = append(live, g)
		}
	}
	return live
}

// HeldBy reports whether the holder has a live grant
func (l *ResourceLock) HeldBy(holder model.WorkerID, now time.Time) bool {
	g, exists := l.grants[holder]
	return exists && !g.IsExpired(now)
}

// Holders returns the worker IDs with live grants
func (l *ResourceLock) Holders(now time.Time) []model.WorkerID {
	holders := make([]model.WorkerID, 0, len(l.grants))
	for holder, g := range l.grants {
		if !g.IsExpired(now) {
			holders = append(holders, holder)
		}
	}
	return holders
}

// IsEmpty reports whether no grants remain (live or lapsed)
func (l *ResourceLock) IsEmpty() bool {
	return len(l.grants) == 0
}
