package renderer

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"

	"github.com/vkngwrapper/vulkan-renderer/internal/assets"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu/fakegpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/mesh"
)

var code = []uint32{assets.SPIRVMagic, 0x00010000, 0, 1, 0}

type harness struct {
	inst *fakegpu.Instance
	r    *Renderer
	fake *fakegpu.Device

	width, height int
	now           time.Duration
}

func twoImageConfig() fakegpu.Config {
	cfg := fakegpu.DefaultConfig()
	cfg.Surface.Capabilities.MaxImageCount = 2
	return cfg
}

func start(t *testing.T, cfg fakegpu.Config, tweak func(*Options)) *harness {
	t.Helper()
	h := &harness{inst: fakegpu.NewInstance(cfg), width: 800, height: 600, now: time.Second}

	opts := Options{
		VertexShader:   code,
		FragmentShader: code,
		Mesh:           mesh.Triangle(),
		PresentMode:    khr_surface.PresentModeMailbox,
		DrawableSize:   func() (int, int) { return h.width, h.height },
		Clock:          func() time.Duration { return h.now },
	}
	if tweak != nil {
		tweak(&opts)
	}

	r, err := New(h.inst, h.inst.CreateSurface(), opts)
	require.NoError(t, err)
	h.r = r
	h.fake = h.inst.Adapter(0).Device()
	return h
}

func (h *harness) drawFrames(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		h.now += 16 * time.Millisecond
		require.NoError(t, h.r.DrawFrame())
	}
}

func (h *harness) finish(t *testing.T) {
	t.Helper()
	h.r.Close()
	assert.Zero(t, h.inst.LiveObjects())
	assert.Empty(t, h.inst.Violations())
}

func TestDrawFrames(t *testing.T) {
	h := start(t, twoImageConfig(), nil)
	assert.Equal(t, StateLive, h.r.State())

	h.drawFrames(t, 5)

	stats := h.r.Stats()
	assert.Equal(t, 5, stats.Frames)
	assert.Equal(t, 5, stats.Presents)
	assert.Zero(t, stats.Rebuilds)
	assert.Equal(t, 1, stats.RecordingPasses)

	fake := h.fake.Stats()
	assert.Equal(t, 5, fake.Presents)
	assert.Equal(t, 5, fake.Draws)
	assert.Equal(t, 2, fake.RenderPassRecords, "one prerecorded buffer per image")
	h.finish(t)
}

func TestUniformStrategies(t *testing.T) {
	for _, strategy := range []UniformStrategy{UniformStaged, UniformHostVisible} {
		t.Run(strategy.String(), func(t *testing.T) {
			h := start(t, fakegpu.DefaultConfig(), func(o *Options) { o.Uniforms = strategy })
			assert.Equal(t, strategy == UniformHostVisible, h.r.uniformBuffer.HostVisible())

			h.drawFrames(t, 1)
			ubo, err := h.r.ReadUniforms()
			require.NoError(t, err)
			assert.Equal(t, ComputeUniforms(h.now.Seconds(), 800, 600), ubo)
			h.finish(t)
		})
	}
}

func TestComputeUniforms(t *testing.T) {
	ubo := ComputeUniforms(0, 800, 600)
	assert.Equal(t, float32(1), ubo.Model.At(0, 0), "no rotation at time zero")
	assert.Less(t, ubo.Proj.At(1, 1), float32(0), "Y is flipped for Vulkan clip space")

	// the animation repeats every four seconds
	first, later := ComputeUniforms(1, 800, 600).Model, ComputeUniforms(5, 800, 600).Model
	assert.InDeltaSlice(t, first[:], later[:], 1e-4)
	assert.NotPanics(t, func() { ComputeUniforms(1, 0, 0) })
}

func TestStaleAcquireRebuilds(t *testing.T) {
	h := start(t, fakegpu.DefaultConfig(), nil)
	h.drawFrames(t, 1)

	h.fake.OutOfDateNextAcquire()
	h.drawFrames(t, 1)
	assert.Equal(t, StateLive, h.r.State())
	assert.Equal(t, 1, h.r.Stats().Rebuilds)
	assert.Equal(t, 1, h.r.Stats().Presents, "the stale frame is skipped")

	h.drawFrames(t, 2)
	assert.Equal(t, 3, h.r.Stats().Presents)
	assert.Equal(t, 2, h.r.Stats().RecordingPasses)
	h.finish(t)
}

func TestFailedRebuildRecovers(t *testing.T) {
	h := start(t, fakegpu.DefaultConfig(), nil)
	h.drawFrames(t, 1)

	h.fake.Fail("CreateGraphicsPipeline", errors.New("out of pipeline cache"))
	h.r.NotifyResized()
	err := h.r.DrawFrame()
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrPipelineCreation))
	assert.Equal(t, StateRebuilding, h.r.State())

	h.drawFrames(t, 2)
	assert.Equal(t, StateLive, h.r.State())
	assert.Equal(t, 1, h.r.Stats().Rebuilds)
	assert.Equal(t, 4, h.r.Stats().Presents, "the failed rebuild came after its frame was presented")
	h.finish(t)
}

func TestStalePresentRebuilds(t *testing.T) {
	h := start(t, fakegpu.DefaultConfig(), nil)

	h.fake.SuboptimalNextPresent()
	h.drawFrames(t, 1)
	assert.Equal(t, 1, h.r.Stats().Presents, "a suboptimal present still counts")
	assert.Equal(t, 1, h.r.Stats().Rebuilds)

	h.fake.OutOfDateNextPresent()
	h.drawFrames(t, 1)
	assert.Equal(t, 2, h.r.Stats().Presents)
	assert.Equal(t, 2, h.r.Stats().Rebuilds)

	h.drawFrames(t, 1)
	assert.Equal(t, StateLive, h.r.State())
	h.finish(t)
}

func TestSurfaceResize(t *testing.T) {
	h := start(t, fakegpu.DefaultConfig(), nil)
	h.drawFrames(t, 1)

	caps := fakegpu.DefaultConfig().Surface.Capabilities
	caps.CurrentExtent = core1_0.Extent2D{Width: 1024, Height: 768}
	h.inst.Adapter(0).SetSurfaceCapabilities(caps)

	h.drawFrames(t, 2)
	assert.Equal(t, core1_0.Extent2D{Width: 1024, Height: 768}, h.r.Extent())
	assert.Equal(t, 1, h.r.Stats().Rebuilds)
	assert.Equal(t, 2, h.r.Stats().Presents)

	ubo, err := h.r.ReadUniforms()
	require.NoError(t, err)
	assert.Equal(t, ComputeUniforms(h.now.Seconds(), 1024, 768), ubo)
	h.finish(t)
}

func TestNotifyResized(t *testing.T) {
	h := start(t, fakegpu.DefaultConfig(), nil)
	h.r.NotifyResized()
	h.drawFrames(t, 1)
	assert.Equal(t, 1, h.r.Stats().Presents)
	assert.Equal(t, 1, h.r.Stats().Rebuilds)
	h.drawFrames(t, 1)
	assert.Equal(t, 1, h.r.Stats().Rebuilds)
	h.finish(t)
}

func TestRebuildTwiceInARow(t *testing.T) {
	h := start(t, fakegpu.DefaultConfig(), nil)

	require.NoError(t, h.r.rebuild("test"))
	require.NoError(t, h.r.rebuild("test"))
	assert.Equal(t, StateLive, h.r.State())
	assert.Equal(t, 3, h.r.Stats().RecordingPasses)

	h.drawFrames(t, 3)
	assert.Equal(t, 3, h.r.Stats().Presents)
	h.finish(t)
}

func TestMinimizedWindowDefersRebuild(t *testing.T) {
	h := start(t, fakegpu.DefaultConfig(), nil)

	h.width, h.height = 0, 0
	h.r.NotifyResized()
	h.drawFrames(t, 1)
	assert.Equal(t, StateRebuilding, h.r.State())

	acquires := h.fake.Stats().Acquires
	h.drawFrames(t, 3)
	assert.Equal(t, acquires, h.fake.Stats().Acquires, "nothing is drawn while minimized")
	assert.Zero(t, h.r.Stats().Rebuilds)

	h.width, h.height = 800, 600
	h.drawFrames(t, 1)
	assert.Equal(t, StateLive, h.r.State())
	assert.Equal(t, 1, h.r.Stats().Rebuilds)
	assert.Equal(t, 2, h.r.Stats().Presents)
	h.finish(t)
}

func TestCustomTexture(t *testing.T) {
	img := &assets.Image{Width: 2, Height: 1, Pixels: []byte{255, 0, 0, 255, 0, 0, 255, 255}}
	h := start(t, fakegpu.DefaultConfig(), func(o *Options) {
		o.Texture = img
		o.Mesh = nil
	})
	assert.Equal(t, 2, h.r.texture.Image().Width())
	assert.Equal(t, 6, h.r.indexCount, "a quad by default")

	h.drawFrames(t, 2)
	h.finish(t)
}

func TestCloseIsIdempotent(t *testing.T) {
	h := start(t, fakegpu.DefaultConfig(), nil)
	h.drawFrames(t, 2)
	h.finish(t)
	assert.NotPanics(t, h.r.Close)
}

func TestNewFailureReleasesEverything(t *testing.T) {
	tests := map[string]struct {
		op   string
		kind error
	}{
		"device":    {op: "OpenDevice", kind: gpu.ErrInitialization},
		"pipeline":  {op: "CreateGraphicsPipeline", kind: gpu.ErrPipelineCreation},
		"swapchain": {op: "CreateSwapchain", kind: gpu.ErrInitialization},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			inst := fakegpu.NewInstance()
			inst.Fail(test.op, errors.New("boom"))

			_, err := New(inst, inst.CreateSurface(), Options{VertexShader: code, FragmentShader: code})
			require.Error(t, err)
			assert.True(t, errors.Is(err, test.kind), "%+v", err)
			assert.Zero(t, inst.LiveObjects())
			assert.Empty(t, inst.Violations())
		})
	}
}

func TestNewRejectsMissingShader(t *testing.T) {
	inst := fakegpu.NewInstance()
	_, err := New(inst, inst.CreateSurface(), Options{VertexShader: code})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrPipelineCreation))
	assert.Zero(t, inst.LiveObjects())
}

func TestState(t *testing.T) {
	assert.Equal(t, "live", StateLive.String())
	assert.Equal(t, "rebuilding", StateRebuilding.String())
	assert.Equal(t, "unknown", UniformStrategy(9).String())
}
