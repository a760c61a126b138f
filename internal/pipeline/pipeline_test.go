package pipeline

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu/fakegpu"
)

var (
	code   = []uint32{0x07230203, 0x00010000, 0, 1, 0}
	extent = core1_0.Extent2D{Width: 800, Height: 600}
)

type fixture struct {
	fake       *fakegpu.Device
	setLayout  gpu.DescriptorSetLayout
	renderPass *RenderPass
	vertex     *Shader
	fragment   *Shader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	inst := fakegpu.NewInstance()
	dev, err := inst.Adapter(0).OpenDevice(gpu.DeviceOptions{QueueFamilies: []int{0}})
	require.NoError(t, err)

	setLayout, err := dev.CreateDescriptorSetLayout([]gpu.DescriptorBinding{
		{Binding: 0, Type: core1_0.DescriptorTypeUniformBuffer, Count: 1, Stages: core1_0.StageVertex},
	})
	require.NoError(t, err)
	renderPass, err := NewRenderPass(dev, core1_0.FormatB8G8R8A8SRGB, core1_0.FormatD32SignedFloat)
	require.NoError(t, err)
	vertex, err := NewShader(dev, StageVertex, code)
	require.NoError(t, err)
	fragment, err := NewShader(dev, StageFragment, code)
	require.NoError(t, err)

	return &fixture{
		fake:       dev.(*fakegpu.Device),
		setLayout:  setLayout,
		renderPass: renderPass,
		vertex:     vertex,
		fragment:   fragment,
	}
}

func TestStage(t *testing.T) {
	assert.Equal(t, core1_0.StageVertex, StageVertex.Flags())
	assert.Equal(t, core1_0.StageFragment, StageFragment.Flags())
	assert.Equal(t, "vertex", StageVertex.String())
	assert.Equal(t, "fragment", StageFragment.String())
	assert.Equal(t, "Stage(7)", Stage(7).String())
}

func TestNewShader(t *testing.T) {
	f := newFixture(t)

	shader, err := NewShader(f.fake, StageVertex, code)
	require.NoError(t, err)
	assert.Equal(t, StageVertex, shader.Stage())
	assert.NotZero(t, shader.Module())
	shader.Destroy()
	shader.Destroy()
	assert.Zero(t, shader.Module())

	_, err = NewShader(f.fake, Stage(9), code)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrPipelineCreation))

	_, err = NewShader(f.fake, StageFragment, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrPipelineCreation))
}

func TestNewPipeline(t *testing.T) {
	f := newFixture(t)
	before := f.fake.LiveObjects()

	p, err := New(f.fake, extent, f.renderPass, f.setLayout, VertexLayout{}, f.vertex, f.fragment)
	require.NoError(t, err)
	assert.NotZero(t, p.Handle())
	assert.NotZero(t, p.Layout())
	assert.Equal(t, before+2, f.fake.LiveObjects())

	p.Destroy()
	p.Destroy()
	assert.Equal(t, before, f.fake.LiveObjects())
	assert.Empty(t, f.fake.Violations())
}

func TestPipelineStageTagging(t *testing.T) {
	f := newFixture(t)
	other, err := NewShader(f.fake, StageVertex, code)
	require.NoError(t, err)

	tests := map[string][]*Shader{
		"no shaders":        nil,
		"vertex only":       {f.vertex},
		"fragment only":     {f.fragment},
		"two vertex":        {f.vertex, other},
		"duplicated stages": {f.vertex, f.fragment, other},
		"swapped roles":     {f.fragment, f.fragment},
	}
	for name, shaders := range tests {
		t.Run(name, func(t *testing.T) {
			before := f.fake.LiveObjects()
			_, err := New(f.fake, extent, f.renderPass, f.setLayout, VertexLayout{}, shaders...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, gpu.ErrPipelineCreation))
			assert.Equal(t, before, f.fake.LiveObjects())
		})
	}

	p, err := New(f.fake, extent, f.renderPass, f.setLayout, VertexLayout{}, f.fragment, f.vertex)
	require.NoError(t, err, "order of the shaders does not matter")
	p.Destroy()
}

func TestPipelineFailureReleasesLayout(t *testing.T) {
	f := newFixture(t)
	before := f.fake.LiveObjects()

	f.fake.Fail("CreateGraphicsPipeline", errors.New("driver refused"))
	_, err := New(f.fake, extent, f.renderPass, f.setLayout, VertexLayout{}, f.vertex, f.fragment)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrPipelineCreation))
	assert.Equal(t, before, f.fake.LiveObjects())

	f.fake.Fail("CreatePipelineLayout", errors.New("out of host memory"))
	_, err = New(f.fake, extent, f.renderPass, f.setLayout, VertexLayout{}, f.vertex, f.fragment)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrPipelineCreation))
	assert.Equal(t, before, f.fake.LiveObjects())
}

func TestPipelineRejectsEmptyExtent(t *testing.T) {
	f := newFixture(t)
	_, err := New(f.fake, core1_0.Extent2D{Width: 0, Height: 600}, f.renderPass, f.setLayout, VertexLayout{}, f.vertex, f.fragment)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrPipelineCreation))
}

func TestPipelineRejectsNilShader(t *testing.T) {
	f := newFixture(t)
	before := f.fake.LiveObjects()

	_, err := New(f.fake, extent, f.renderPass, f.setLayout, VertexLayout{}, f.vertex, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrPipelineCreation))
	assert.Equal(t, before, f.fake.LiveObjects())
}

func TestRenderPassExternalDependency(t *testing.T) {
	info := renderPassInfo(core1_0.FormatB8G8R8A8SRGB, core1_0.FormatD32SignedFloat)
	require.Len(t, info.SubpassDependencies, 1)

	dep := info.SubpassDependencies[0]
	assert.EqualValues(t, core1_0.SubpassExternal, dep.SrcSubpass)
	assert.EqualValues(t, 0, dep.DstSubpass)
	assert.NotZero(t, dep.DstStageMask&core1_0.PipelineStageColorAttachmentOutput)
	for _, access := range []core1_0.AccessFlags{
		core1_0.AccessColorAttachmentRead,
		core1_0.AccessColorAttachmentWrite,
		core1_0.AccessDepthStencilAttachmentWrite,
	} {
		assert.NotZero(t, dep.DstAccessMask&access, "missing %v", access)
	}
}

func TestRenderPassFailure(t *testing.T) {
	f := newFixture(t)
	f.fake.Fail("CreateRenderPass", errors.New("device lost"))

	_, err := NewRenderPass(f.fake, core1_0.FormatB8G8R8A8SRGB, core1_0.FormatD32SignedFloat)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrPipelineCreation))

	f.renderPass.Destroy()
	f.renderPass.Destroy()
	assert.Zero(t, f.renderPass.Handle())
	assert.Empty(t, f.fake.Violations())
}
