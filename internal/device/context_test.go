package device

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_portability_subset"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu/fakegpu"
)

func TestOpenDefaultAdapter(t *testing.T) {
	inst := fakegpu.NewInstance()
	surface := inst.CreateSurface()

	ctx, err := Open(inst, surface, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, ctx.GraphicsFamily())
	assert.Equal(t, 0, ctx.PresentFamily())
	assert.Equal(t, ctx.GraphicsQueue(), ctx.PresentQueue())
	assert.Equal(t, core1_0.FormatD32SignedFloat, ctx.DepthFormat())

	ctx.Close()
	inst.DestroySurface(surface)
	inst.Destroy()
	assert.Empty(t, inst.Violations())
}

func TestOpenSeparatePresentFamily(t *testing.T) {
	cfg := fakegpu.DefaultConfig()
	cfg.QueueFamilies = []gpu.QueueFamily{{Graphics: true, QueueCount: 1}, {QueueCount: 1}}
	cfg.PresentFamilies = []int{1}
	inst := fakegpu.NewInstance(cfg)

	ctx, err := Open(inst, inst.CreateSurface(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, ctx.GraphicsFamily())
	assert.Equal(t, 1, ctx.PresentFamily())
	assert.Equal(t, []int{0, 1}, ctx.Indices().Unique())
	assert.NotEqual(t, ctx.GraphicsQueue(), ctx.PresentQueue())
	assert.Empty(t, inst.Violations())
}

func TestOpenPrefersSharedFamily(t *testing.T) {
	cfg := fakegpu.DefaultConfig()
	cfg.QueueFamilies = []gpu.QueueFamily{{Graphics: true, QueueCount: 1}, {QueueCount: 1}, {Graphics: true, QueueCount: 1}}
	cfg.PresentFamilies = []int{1, 2}
	inst := fakegpu.NewInstance(cfg)

	indices, err := FindQueueFamilies(inst.Adapter(0), inst.CreateSurface())
	require.NoError(t, err)
	assert.Equal(t, 2, *indices.GraphicsFamily)
	assert.Equal(t, 2, *indices.PresentFamily)
}

func TestOpenSkipsUnsuitableAdapters(t *testing.T) {
	noPresent := fakegpu.DefaultConfig()
	noPresent.Name = "headless"
	noPresent.PresentFamilies = nil

	noSwapchain := fakegpu.DefaultConfig()
	noSwapchain.Name = "no swapchain"
	noSwapchain.Extensions = nil

	noAnisotropy := fakegpu.DefaultConfig()
	noAnisotropy.Name = "no anisotropy"
	noAnisotropy.Features.SamplerAnisotropy = false

	good := fakegpu.DefaultConfig()
	good.Name = "good"
	good.Extensions = append(good.Extensions, khr_portability_subset.ExtensionName)

	inst := fakegpu.NewInstance(noPresent, noSwapchain, noAnisotropy, good)
	ctx, err := Open(inst, inst.CreateSurface(), nil)
	require.NoError(t, err)
	assert.Equal(t, "good", ctx.Adapter().Properties().Name)
	assert.Same(t, inst.Adapter(3).Device(), ctx.Device())
}

func TestOpenFailsWithoutSuitableAdapter(t *testing.T) {
	cfg := fakegpu.DefaultConfig()
	cfg.Surface.Formats = nil
	inst := fakegpu.NewInstance(cfg)

	_, err := Open(inst, inst.CreateSurface(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrInitialization))
}

func TestOpenFailsWithoutDepthFormat(t *testing.T) {
	cfg := fakegpu.DefaultConfig()
	cfg.DepthFormats = nil
	inst := fakegpu.NewInstance(cfg)

	_, err := Open(inst, inst.CreateSurface(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrInitialization))
	assert.Equal(t, 2, inst.LiveObjects(), "only the instance and surface remain")
}

func TestDepthFormatFallback(t *testing.T) {
	cfg := fakegpu.DefaultConfig()
	cfg.DepthFormats = []core1_0.Format{core1_0.FormatD24UnsignedNormalizedS8UnsignedInt}
	inst := fakegpu.NewInstance(cfg)

	ctx, err := Open(inst, inst.CreateSurface(), nil)
	require.NoError(t, err)
	assert.Equal(t, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt, ctx.DepthFormat())
	assert.True(t, HasStencilComponent(ctx.DepthFormat()))
}

func TestFindMemoryType(t *testing.T) {
	inst := fakegpu.NewInstance()
	ctx, err := Open(inst, inst.CreateSurface(), nil)
	require.NoError(t, err)

	idx, err := ctx.FindMemoryType(0b111, core1_0.MemoryPropertyDeviceLocal)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = ctx.FindMemoryType(0b111, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	idx, err = ctx.FindMemoryType(0b100, core1_0.MemoryPropertyDeviceLocal)
	require.NoError(t, err)
	assert.Equal(t, 2, idx, "filter excludes the first two types")

	_, err = ctx.FindMemoryType(0b001, core1_0.MemoryPropertyHostVisible)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrAllocation))
}
