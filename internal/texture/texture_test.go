package texture

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/commands"
	"github.com/vkngwrapper/vulkan-renderer/internal/device"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu/fakegpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/memory"
)

func setup(t *testing.T) (*device.Context, *memory.Stager, *fakegpu.Device) {
	t.Helper()
	inst := fakegpu.NewInstance()
	ctx, err := device.Open(inst, inst.CreateSurface(), nil)
	require.NoError(t, err)
	pool, err := commands.NewPool(ctx)
	require.NoError(t, err)
	t.Cleanup(pool.Destroy)
	return ctx, memory.NewStager(ctx, pool), ctx.Device().(*fakegpu.Device)
}

func checkerboard(width, height int) []byte {
	out := make([]byte, 0, width*height*4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := byte(0)
			if (x+y)%2 == 0 {
				v = 255
			}
			out = append(out, v, v, v, 255)
		}
	}
	return out
}

func TestNewTexture(t *testing.T) {
	ctx, stager, fake := setup(t)
	before := fake.LiveObjects()
	pixels := checkerboard(4, 3)

	tex, err := New(ctx, stager, 4, 3, pixels)
	require.NoError(t, err)
	assert.NotZero(t, tex.View())
	assert.NotZero(t, tex.Sampler())
	assert.Equal(t, Format, tex.Image().Format())
	assert.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, tex.Image().Layout())
	assert.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, fake.ImageLayout(tex.Image().Handle()))

	readback, err := stager.ReadImage(tex.Image())
	require.NoError(t, err)
	assert.Equal(t, pixels, readback)
	assert.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, tex.Image().Layout(), "readback restores the sampled layout")

	tex.Destroy()
	tex.Destroy()
	assert.Equal(t, before, fake.LiveObjects())
	assert.Empty(t, fake.Violations())
}

func TestWhite(t *testing.T) {
	ctx, stager, fake := setup(t)
	tex, err := White(ctx, stager)
	require.NoError(t, err)
	defer tex.Destroy()

	readback, err := stager.ReadImage(tex.Image())
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 255, 255, 255}, readback)
	assert.Empty(t, fake.Violations())
}

func TestNewTextureSizeMismatch(t *testing.T) {
	ctx, stager, fake := setup(t)
	before := fake.LiveObjects()

	_, err := New(ctx, stager, 4, 4, make([]byte, 10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrAllocation))
	assert.Equal(t, before, fake.LiveObjects())
}

func TestSamplerInfo(t *testing.T) {
	info := samplerInfo(gpu.Features{SamplerAnisotropy: true}, gpu.Limits{MaxSamplerAnisotropy: 8})
	assert.True(t, info.AnisotropyEnable)
	assert.Equal(t, float32(8), info.MaxAnisotropy)
	assert.Equal(t, core1_0.FilterLinear, info.Filter)
	assert.Equal(t, core1_0.SamplerAddressModeRepeat, info.AddressMode)

	info = samplerInfo(gpu.Features{}, gpu.Limits{MaxSamplerAnisotropy: 16})
	assert.False(t, info.AnisotropyEnable)
	assert.Zero(t, info.MaxAnisotropy)
}
