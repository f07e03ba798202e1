package changeset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewsync/crewsync/internal/domain/model"
)

func openSet(t *testing.T) *ChangeSet {
	t.Helper()
	owner, err := model.NewTaskIDFromString("refactor-config")
	require.NoError(t, err)
	return NewChangeSet(owner)
}

func TestNewChangeSet(t *testing.T) {
	cs := openSet(t)

	assert.NotEmpty(t, cs.OperationID())
	assert.Equal(t, "refactor-config", cs.OwnerTask().String())
	assert.Equal(t, StateOpen, cs.State())
	assert.Empty(t, cs.StagedFiles())
	assert.Nil(t, cs.ClosedAt())

	other := openSet(t)
	assert.NotEqual(t, cs.OperationID(), other.OperationID())
}

func TestChangeSet_Stage(t *testing.T) {
	cs := openSet(t)

	require.NoError(t, cs.Stage("config/loader.go", FileOpModify))
	require.NoError(t, cs.Stage("config/schema.go", FileOpCreate))

	assert.Equal(t, []string{"config/loader.go", "config/schema.go"}, cs.Paths())
	assert.True(t, cs.Contains("config/loader.go"))
	assert.False(t, cs.Contains("config/legacy.go"))
}

func TestChangeSet_Stage_RestageUpdatesInPlace(t *testing.T) {
	cs := openSet(t)
	require.NoError(t, cs.Stage("config/loader.go", FileOpModify))
	require.NoError(t, cs.Stage("config/loader.go", FileOpDelete))

	staged := cs.StagedFiles()
	require.Len(t, staged, 1)
	assert.Equal(t, FileOpDelete, staged[0].Op)
}

func TestChangeSet_Stage_Validation(t *testing.T) {
	cs := openSet(t)
	assert.Error(t, cs.Stage("", FileOpCreate))
	assert.Error(t, cs.Stage("x.go", FileOp("rename")))
}

func TestChangeSet_Commit(t *testing.T) {
	cs := openSet(t)
	require.NoError(t, cs.Stage("a.go", FileOpCreate))

	require.NoError(t, cs.MarkCommitted())
	assert.Equal(t, StateCommitted, cs.State())
	assert.NotNil(t, cs.ClosedAt())

	// Closed sets refuse further mutation.
	assert.ErrorIs(t, cs.Stage("b.go", FileOpCreate), ErrNotOpen)
	assert.ErrorIs(t, cs.MarkCommitted(), ErrNotOpen)
	assert.ErrorIs(t, cs.MarkRolledBack(), ErrNotOpen)
}

func TestChangeSet_Commit_Empty(t *testing.T) {
	cs := openSet(t)
	assert.ErrorIs(t, cs.MarkCommitted(), ErrNothingStaged)
}

func TestChangeSet_Rollback(t *testing.T) {
	cs := openSet(t)
	require.NoError(t, cs.Stage("a.go", FileOpCreate))

	require.NoError(t, cs.MarkRolledBack())
	assert.Equal(t, StateRolledBack, cs.State())
	assert.NotNil(t, cs.ClosedAt())
}

func TestFileOp_IsValid(t *testing.T) {
	assert.True(t, FileOpCreate.IsValid())
	assert.True(t, FileOpModify.IsValid())
	assert.True(t, FileOpDelete.IsValid())
	assert.False(t, FileOp("move").IsValid())
}
