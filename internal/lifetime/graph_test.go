package lifetime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	released []string
}

func (r *recorder) release(name string) func() {
	return func() { r.released = append(r.released, name) }
}

func TestTeardownOrder(t *testing.T) {
	r := &recorder{}
	g := New(nil)

	require.NoError(t, g.Add("instance", TierInstance, r.release("instance")))
	require.NoError(t, g.Add("surface", TierSurface, r.release("surface"), "instance"))
	require.NoError(t, g.Add("device", TierDevice, r.release("device"), "instance"))
	require.NoError(t, g.Add("commandPool", TierCommands, r.release("commandPool"), "device"))
	require.NoError(t, g.Add("vertexBuffer", TierResources, r.release("vertexBuffer"), "device"))
	require.NoError(t, g.Add("chain", TierPresentation, r.release("chain"), "device", "surface"))
	require.NoError(t, g.Add("renderPass", TierPipeline, r.release("renderPass"), "device"))
	require.NoError(t, g.Add("pipeline", TierPipeline, r.release("pipeline"), "renderPass"))
	require.NoError(t, g.Add("frames", TierCommands, r.release("frames"), "commandPool", "pipeline", "chain", "vertexBuffer"))

	order := g.Teardown()
	expected := []string{
		"frames", "commandPool",
		"pipeline", "renderPass",
		"chain",
		"vertexBuffer",
		"surface",
		"device",
		"instance",
	}
	assert.Equal(t, expected, order)
	assert.Equal(t, expected, r.released)
	assert.Zero(t, g.Len())
}

func TestTeardownPrefersLatestWithinTier(t *testing.T) {
	g := New(nil)
	require.NoError(t, g.Add("device", TierDevice, nil))
	require.NoError(t, g.Add("texture", TierResources, nil, "device"))
	require.NoError(t, g.Add("uniform", TierResources, nil, "device"))
	require.NoError(t, g.Add("vertices", TierResources, nil, "device"))

	assert.Equal(t, []string{"vertices", "uniform", "texture", "device"}, g.Teardown())
}

func TestDependenciesAlwaysOutliveDependents(t *testing.T) {
	g := New(nil)
	// tiers deliberately at odds with the edges
	require.NoError(t, g.Add("a", TierCommands, nil))
	require.NoError(t, g.Add("b", TierInstance, nil, "a"))

	assert.Equal(t, []string{"b", "a"}, g.Teardown())
}

func TestAddRejectsDuplicatesAndUnknownDeps(t *testing.T) {
	g := New(nil)
	require.NoError(t, g.Add("device", TierDevice, nil))

	assert.Error(t, g.Add("device", TierDevice, nil))
	assert.Error(t, g.Add("buffer", TierResources, nil, "memory"))
	assert.Error(t, g.Add("loop", TierResources, nil, "loop"))
	assert.Equal(t, 1, g.Len())
}

func TestRelease(t *testing.T) {
	r := &recorder{}
	g := New(nil)
	require.NoError(t, g.Add("device", TierDevice, r.release("device")))
	require.NoError(t, g.Add("chain", TierPresentation, r.release("chain"), "device"))
	require.NoError(t, g.Add("frames", TierCommands, r.release("frames"), "chain"))

	err := g.Release("chain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frames")
	assert.True(t, g.Has("chain"))
	assert.Empty(t, r.released)

	require.NoError(t, g.Release("frames"))
	require.NoError(t, g.Release("chain"))
	assert.Equal(t, []string{"frames", "chain"}, r.released)
	assert.Error(t, g.Release("chain"))

	// a rebuilt object can take the old name
	require.NoError(t, g.Add("chain", TierPresentation, r.release("chain"), "device"))
	assert.Equal(t, []string{"chain"}, g.Dependents("device"))
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "presentation", TierPresentation.String())
	assert.Equal(t, "unknown", Tier(42).String())
}
