package swapchain

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/vulkan-renderer/internal/commands"
	"github.com/vkngwrapper/vulkan-renderer/internal/device"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu/fakegpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/memory"
	"github.com/vkngwrapper/vulkan-renderer/internal/pipeline"
)

type fixture struct {
	inst   *fakegpu.Instance
	fake   *fakegpu.Device
	ctx    *device.Context
	pool   *commands.Pool
	stager *memory.Stager
}

func newFixture(t *testing.T, configs ...fakegpu.Config) *fixture {
	t.Helper()
	inst := fakegpu.NewInstance(configs...)
	ctx, err := device.Open(inst, inst.CreateSurface(), nil)
	require.NoError(t, err)
	pool, err := commands.NewPool(ctx)
	require.NoError(t, err)
	return &fixture{
		inst:   inst,
		fake:   ctx.Device().(*fakegpu.Device),
		ctx:    ctx,
		pool:   pool,
		stager: memory.NewStager(ctx, pool),
	}
}

func (f *fixture) complete(t *testing.T, c *Chain) *pipeline.RenderPass {
	t.Helper()
	renderPass, err := pipeline.NewRenderPass(f.ctx.Device(), c.Format().Format, f.ctx.DepthFormat())
	require.NoError(t, err)
	require.NoError(t, c.CreateDepthResources(f.stager))
	require.NoError(t, c.CreateFramebuffers(renderPass.Handle()))
	return renderPass
}

// makePresentable moves a swapchain image into the present layout the way a
// finished render pass would.
func (f *fixture) makePresentable(t *testing.T, c *Chain, imageIndex int) {
	t.Helper()
	images, err := f.ctx.Device().SwapchainImages(c.Handle())
	require.NoError(t, err)
	err = f.pool.RunOneShot(func(buffer gpu.CommandBuffer) error {
		return f.ctx.Device().CmdPipelineBarrier(buffer, core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageBottomOfPipe, gpu.ImageBarrier{
			Image:     images[imageIndex],
			OldLayout: core1_0.ImageLayoutUndefined,
			NewLayout: khr_swapchain.ImageLayoutPresentSrc,
			Aspect:    core1_0.ImageAspectColor,
		})
	})
	require.NoError(t, err)
}

func TestNewChain(t *testing.T) {
	f := newFixture(t)

	c, err := New(f.ctx, Options{PresentMode: khr_surface.PresentModeMailbox}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, c.ImageCount())
	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, c.Extent())
	assert.Equal(t, core1_0.FormatB8G8R8A8SRGB, c.Format().Format)
	assert.Equal(t, khr_surface.PresentModeMailbox, c.PresentMode())
	assert.Nil(t, c.DepthImage())

	renderPass := f.complete(t, c)
	require.NotNil(t, c.DepthImage())
	assert.Equal(t, core1_0.ImageLayoutDepthStencilAttachmentOptimal, f.fake.ImageLayout(c.DepthImage().Handle()))
	for i := 0; i < c.ImageCount(); i++ {
		assert.NotZero(t, c.View(i))
		assert.NotZero(t, c.Framebuffer(i))
	}

	c.Destroy()
	renderPass.Destroy()
	f.pool.Destroy()
	f.ctx.Close()
	assert.Empty(t, f.inst.Violations())
}

func TestFramebuffersNeedDepth(t *testing.T) {
	f := newFixture(t)
	c, err := New(f.ctx, Options{}, nil)
	require.NoError(t, err)
	defer c.Destroy()

	err = c.CreateFramebuffers(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrInitialization))
}

func TestDrawableSizeUsedForFreeExtent(t *testing.T) {
	cfg := fakegpu.DefaultConfig()
	cfg.Surface.Capabilities.CurrentExtent = core1_0.Extent2D{Width: -1, Height: -1}
	f := newFixture(t, cfg)

	c, err := New(f.ctx, Options{DrawableSize: func() (int, int) { return 1280, 720 }}, nil)
	require.NoError(t, err)
	defer c.Destroy()

	assert.Equal(t, core1_0.Extent2D{Width: 1280, Height: 720}, c.Extent())
	assert.Equal(t, c.Extent(), f.fake.SwapchainExtent(c.Handle()))
}

func TestAcquireAndPresent(t *testing.T) {
	f := newFixture(t)
	c, err := New(f.ctx, Options{}, nil)
	require.NoError(t, err)
	defer c.Destroy()

	sync, err := commands.NewFrameSync(f.ctx.Device())
	require.NoError(t, err)
	defer sync.Destroy()

	imageIndex, err := c.Acquire(sync.ImageAvailable())
	require.NoError(t, err)
	f.makePresentable(t, c, imageIndex)

	err = c.Present(f.ctx.PresentQueue(), sync.ImageAvailable(), imageIndex)
	require.NoError(t, err)
	assert.Equal(t, 1, f.fake.Stats().Presents)
	assert.Empty(t, f.fake.Violations())
}

func TestStaleAcquire(t *testing.T) {
	f := newFixture(t)
	c, err := New(f.ctx, Options{}, nil)
	require.NoError(t, err)
	defer c.Destroy()

	sync, err := commands.NewFrameSync(f.ctx.Device())
	require.NoError(t, err)
	defer sync.Destroy()

	f.fake.OutOfDateNextAcquire()
	_, err = c.Acquire(sync.ImageAvailable())
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrStaleSurface))
	assert.False(t, gpu.Fatal(err))
	assert.Equal(t, 0, f.fake.Stats().Acquires, "nothing acquired, nothing signalled")
}

func TestStalePresent(t *testing.T) {
	for name, stale := range map[string]func(*fakegpu.Device){
		"suboptimal":  (*fakegpu.Device).SuboptimalNextPresent,
		"out of date": (*fakegpu.Device).OutOfDateNextPresent,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			c, err := New(f.ctx, Options{}, nil)
			require.NoError(t, err)
			defer c.Destroy()

			sync, err := commands.NewFrameSync(f.ctx.Device())
			require.NoError(t, err)
			defer sync.Destroy()

			imageIndex, err := c.Acquire(sync.ImageAvailable())
			require.NoError(t, err)
			f.makePresentable(t, c, imageIndex)

			stale(f.fake)
			err = c.Present(f.ctx.PresentQueue(), sync.ImageAvailable(), imageIndex)
			require.Error(t, err)
			assert.True(t, errors.Is(err, gpu.ErrStaleSurface))
			assert.Equal(t, 1, f.fake.Stats().Presents, "the image was still queued")
		})
	}
}

func TestRecreateFromOld(t *testing.T) {
	f := newFixture(t)
	old, err := New(f.ctx, Options{}, nil)
	require.NoError(t, err)
	renderPass := f.complete(t, old)
	defer renderPass.Destroy()

	caps := fakegpu.DefaultConfig().Surface.Capabilities
	caps.CurrentExtent = core1_0.Extent2D{Width: 1024, Height: 768}
	f.inst.Adapter(0).SetSurfaceCapabilities(caps)

	sync, err := commands.NewFrameSync(f.ctx.Device())
	require.NoError(t, err)
	defer sync.Destroy()
	_, err = old.Acquire(sync.ImageAvailable())
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrStaleSurface))

	c, err := New(f.ctx, Options{}, old)
	require.NoError(t, err)
	old.Destroy()
	defer c.Destroy()
	require.NoError(t, c.CreateDepthResources(f.stager))
	require.NoError(t, c.CreateFramebuffers(renderPass.Handle()))

	assert.Equal(t, core1_0.Extent2D{Width: 1024, Height: 768}, c.Extent())
	assert.Equal(t, 1024, c.DepthImage().Width())
	assert.Equal(t, 768, c.DepthImage().Height())

	_, err = c.Acquire(sync.ImageAvailable())
	require.NoError(t, err)
	assert.Empty(t, f.fake.Violations())
}

func TestRepeatedRecreateLeaksNothing(t *testing.T) {
	f := newFixture(t)
	c, err := New(f.ctx, Options{}, nil)
	require.NoError(t, err)
	renderPass := f.complete(t, c)
	before := f.fake.LiveObjects()

	for i := 0; i < 5; i++ {
		next, err := New(f.ctx, Options{}, c)
		require.NoError(t, err)
		c.Destroy()
		require.NoError(t, next.CreateDepthResources(f.stager))
		require.NoError(t, next.CreateFramebuffers(renderPass.Handle()))
		c = next
	}

	assert.Equal(t, before, f.fake.LiveObjects())
	c.Destroy()
	renderPass.Destroy()
	assert.Empty(t, f.fake.Violations())
}
