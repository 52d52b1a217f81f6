package graphcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/core/internal/domain"
)

func fixtureWorkflow() *domain.Workflow {
	return &domain.Workflow{
		ID:        "wf1",
		Name:      "w",
		Slug:      "w",
		UpdatedAt: time.Unix(1000, 0),
		Nodes: []*domain.Node{
			{ID: "A", ComponentType: domain.ComponentCode, IsEntryPoint: true, UpdatedAt: time.Unix(1000, 0)},
		},
	}
}

func TestGetOrBuildCachesByIdentity(t *testing.T) {
	c := New(time.Hour)
	wf := fixtureWorkflow()

	t1, err := c.GetOrBuild(wf, "")
	require.NoError(t, err)
	t2, err := c.GetOrBuild(wf, "")
	require.NoError(t, err)
	assert.Same(t, t1, t2)
	assert.Equal(t, 1, c.Len())
}

func TestGetOrBuildRebuildsOnHashChange(t *testing.T) {
	c := New(time.Hour)
	wf := fixtureWorkflow()

	t1, err := c.GetOrBuild(wf, "")
	require.NoError(t, err)

	wf.UpdatedAt = time.Unix(2000, 0)
	t2, err := c.GetOrBuild(wf, "")
	require.NoError(t, err)

	assert.NotSame(t, t1, t2)
	assert.Equal(t, 2, c.Len())
}

func TestGetOrBuildRebuildsAfterTTLExpiry(t *testing.T) {
	c := New(time.Nanosecond)
	wf := fixtureWorkflow()

	t1, err := c.GetOrBuild(wf, "")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	t2, err := c.GetOrBuild(wf, "")
	require.NoError(t, err)

	assert.NotSame(t, t1, t2)
}

func TestInvalidateRemovesAllEntriesForWorkflow(t *testing.T) {
	c := New(time.Hour)
	wf := fixtureWorkflow()

	_, err := c.GetOrBuild(wf, "")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	c.Invalidate(wf.ID)
	assert.Equal(t, 0, c.Len())
}

func TestClearEmptiesCache(t *testing.T) {
	c := New(time.Hour)
	wf := fixtureWorkflow()

	_, err := c.GetOrBuild(wf, "")
	require.NoError(t, err)
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestHashStableAcrossCalls(t *testing.T) {
	wf := fixtureWorkflow()
	assert.Equal(t, Hash(wf), Hash(wf))
}

func TestHashChangesWithNodeUpdate(t *testing.T) {
	wf := fixtureWorkflow()
	h1 := Hash(wf)
	wf.Nodes[0].UpdatedAt = time.Unix(9999, 0)
	assert.NotEqual(t, h1, Hash(wf))
}
