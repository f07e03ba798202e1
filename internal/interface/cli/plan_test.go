package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewsync/crewsync/internal/application/dto"
)

func TestExecutionOrder(t *testing.T) {
	inputs := []dto.SubmitInput{
		{ID: "merge", Dependencies: []string{"left", "right"}},
		{ID: "left", Dependencies: []string{"base"}},
		{ID: "right", Dependencies: []string{"base"}},
		{ID: "base"},
		{ID: "standalone"},
	}

	order, err := executionOrder(inputs)
	require.NoError(t, err)
	require.Len(t, order, 5)

	position := make(map[string]int, len(order))
	for i, id := range order {
		position[id] = i
	}
	assert.Less(t, position["base"], position["left"])
	assert.Less(t, position["base"], position["right"])
	assert.Less(t, position["left"], position["merge"])
	assert.Less(t, position["right"], position["merge"])
	assert.Contains(t, position, "standalone")
}

func TestExecutionOrder_UnknownDependency(t *testing.T) {
	_, err := executionOrder([]dto.SubmitInput{
		{ID: "api", Dependencies: []string{"ghost"}},
	})
	assert.ErrorContains(t, err, "unknown task")
}

func TestExecutionOrder_Cycle(t *testing.T) {
	_, err := executionOrder([]dto.SubmitInput{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	})
	assert.ErrorContains(t, err, "cycle")
}

func TestExecutionOrder_NoEdgesKeepsFileOrder(t *testing.T) {
	order, err := executionOrder([]dto.SubmitInput{
		{ID: "one"}, {ID: "two"}, {ID: "three"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, order)
}
