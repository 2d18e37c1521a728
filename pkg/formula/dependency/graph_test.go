package dependency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain builds 1 <- 2 <- 3 (3 reads 2, 2 reads 1) plus 4 reading 1 and 3.
func chain() *Graph {
	g := New()
	g.SetDependencies(2, []int64{1})
	g.SetDependencies(3, []int64{2})
	g.SetDependencies(4, []int64{1, 3})
	return g
}

func TestSetDependenciesReplacesEdges(t *testing.T) {
	g := chain()
	assert.Equal(t, []int64{1, 3}, g.Dependencies(4))
	assert.Equal(t, []int64{2, 4}, g.DirectDependants(1))

	g.SetDependencies(4, []int64{2})
	assert.Equal(t, []int64{2}, g.Dependencies(4))
	assert.Equal(t, []int64{2}, g.DirectDependants(1))
	assert.Equal(t, []int64{3, 4}, g.DirectDependants(2))

	g.SetDependencies(4, nil)
	assert.Empty(t, g.Dependencies(4))
}

func TestWouldCycle(t *testing.T) {
	g := chain()

	err := g.WouldCycle(5, []int64{5})
	require.NotNil(t, err)
	assert.True(t, err.Self)

	err = g.WouldCycle(1, []int64{3})
	require.NotNil(t, err)
	assert.False(t, err.Self)
	assert.Equal(t, []int64{1, 3, 2, 1}, err.Path)
	assert.Equal(t, "circular field reference: 1 -> 3 -> 2 -> 1", err.Error())

	assert.Nil(t, g.WouldCycle(5, []int64{3, 4}))
	// replacing the edges of 4 cannot cycle through its old edges
	assert.Nil(t, g.WouldCycle(4, []int64{2}))
}

func TestDependantsAreTopologicallyOrdered(t *testing.T) {
	g := chain()
	assert.Equal(t, []int64{2, 3, 4}, g.Dependants(1))
	assert.Equal(t, []int64{3, 4}, g.Dependants(2))
	assert.Empty(t, g.Dependants(4))
}

func TestOrder(t *testing.T) {
	g := chain()
	order, err := g.Order([]int64{4, 3, 2, 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, order)

	g.SetDependencies(1, []int64{4})
	_, err = g.Order([]int64{1, 2, 3, 4})
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, cycle.Path[0], cycle.Path[len(cycle.Path)-1])
}

func TestRemoveFieldReturnsOrphans(t *testing.T) {
	g := chain()
	orphans := g.RemoveField(1)
	assert.Equal(t, []int64{2, 4}, orphans)
	assert.Empty(t, g.Dependencies(2))
	assert.Equal(t, []int64{3}, g.Dependencies(4))
	assert.Empty(t, g.DirectDependants(1))
}

func TestBrokenReferences(t *testing.T) {
	g := New()
	g.AddBroken(1, "Price", 7)
	g.AddBroken(1, "Price", 8)
	g.AddBroken(2, "Price", 9)
	assert.Equal(t, []int64{7, 8}, g.Broken(1, "Price"))
	assert.Equal(t, []int64{9}, g.Broken(2, "Price"))

	g.ClearBroken(7)
	assert.Equal(t, []int64{8}, g.Broken(1, "Price"))
	g.RemoveField(8)
	assert.Empty(t, g.Broken(1, "Price"))
}
