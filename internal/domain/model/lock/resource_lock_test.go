package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockType_IsValid(t *testing.T) {
	assert.True(t, LockTypeExclusive.IsValid())
	assert.True(t, LockTypeSharedRead.IsValid())
	assert.True(t, LockTypeSharedWrite.IsValid())
	assert.False(t, LockType("upgradeable").IsValid())
}

func TestNewResourceLock(t *testing.T) {
	id, err := NewLockID("src/main.go")
	require.NoError(t, err)

	rl, err := NewResourceLock(id, LockTypeExclusive)
	require.NoError(t, err)
	assert.Equal(t, "src/main.go", rl.Resource().String())
	assert.Equal(t, LockTypeExclusive, rl.Type())
	assert.True(t, rl.IsEmpty())

	_, err = NewResourceLock(id, LockType("bogus"))
	assert.Error(t, err)
}

func TestResourceLock_AddGrant_RefreshKeepsAcquiredAt(t *testing.T) {
	id, _ := NewLockID("src/main.go")
	rl, err := NewResourceLock(id, LockTypeSharedRead)
	require.NoError(t, err)

	first := rl.AddGrant("worker-1", time.Minute)
	second := rl.AddGrant("worker-1", time.Hour)

	assert.Equal(t, first.AcquiredAt(), second.AcquiredAt(), "refresh keeps original acquisition time")
	assert.True(t, second.ExpiresAt().After(first.ExpiresAt()))

	now := time.Now().UTC()
	assert.Len(t, rl.LiveGrants(now), 1, "refresh must not double-count the holder")
}

func TestResourceLock_RemoveGrant(t *testing.T) {
	id, _ := NewLockID("src/main.go")
	rl, _ := NewResourceLock(id, LockTypeSharedRead)
	rl.AddGrant("worker-1", time.Minute)

	assert.True(t, rl.RemoveGrant("worker-1"))
	assert.False(t, rl.RemoveGrant("worker-1"), "double release is a no-op")
	assert.True(t, rl.IsEmpty())
}

func TestResourceLock_Expiry(t *testing.T) {
	id, _ := NewLockID("db/schema.sql")
	rl, _ := NewResourceLock(id, LockTypeExclusive)
	g := rl.AddGrant("worker-1", 10*time.Millisecond)

	now := time.Now().UTC()
	assert.False(t, g.IsExpired(now))
	assert.True(t, rl.HeldBy("worker-1", now))

	later := now.Add(time.Second)
	assert.True(t, g.IsExpired(later))
	assert.False(t, rl.HeldBy("worker-1", later))
	assert.Empty(t, rl.LiveGrants(later))
	assert.Empty(t, rl.Holders(later))

	assert.Equal(t, 1, rl.PruneExpired(later))
	assert.True(t, rl.IsEmpty())
}

func TestResourceLock_MultipleSharedHolders(t *testing.T) {
	id, _ := NewLockID("docs/readme.md")
	rl, _ := NewResourceLock(id, LockTypeSharedRead)
	rl.AddGrant("worker-1", time.Minute)
	rl.AddGrant("worker-2", time.Minute)
	rl.AddGrant("worker-3", time.Minute)

	now := time.Now().UTC()
	assert.Len(t, rl.Holders(now), 3)
	assert.True(t, rl.HeldBy("worker-2", now))

	rl.RemoveGrant("worker-2")
	assert.Len(t, rl.Holders(now), 2)
	assert.False(t, rl.HeldBy("worker-2", now))
}

func TestNewLockID_Empty(t *testing.T) {
	_, err := NewLockID("")
	assert.Error(t, err)
}
