package swapchain

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"

	"github.com/vkngwrapper/vulkan-renderer/internal/device"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

func TestChooseImageCount(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
		expected int
	}{
		{"bounded", 2, 3, 3},
		{"clamped", 2, 2, 2},
		{"unbounded", 2, 0, 3},
		{"single", 1, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := gpu.SurfaceCapabilities{MinImageCount: tt.min, MaxImageCount: tt.max}
			assert.Equal(t, tt.expected, ChooseImageCount(caps))
		})
	}
}

func TestChooseSurfaceFormat(t *testing.T) {
	preferred := khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
	other := khr_surface.SurfaceFormat{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}

	format, err := ChooseSurfaceFormat([]khr_surface.SurfaceFormat{other, preferred})
	require.NoError(t, err)
	assert.Equal(t, preferred, format)

	format, err = ChooseSurfaceFormat([]khr_surface.SurfaceFormat{other})
	require.NoError(t, err)
	assert.Equal(t, other, format)

	_, err = ChooseSurfaceFormat(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrInitialization))
}

func TestChoosePresentMode(t *testing.T) {
	modes := []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox}

	assert.Equal(t, khr_surface.PresentModeMailbox, ChoosePresentMode(modes, khr_surface.PresentModeMailbox))
	assert.Equal(t, khr_surface.PresentModeFIFO, ChoosePresentMode(modes, khr_surface.PresentModeImmediate))
	assert.Equal(t, khr_surface.PresentModeFIFO, ChoosePresentMode(nil, khr_surface.PresentModeMailbox))
}

func TestChooseExtent(t *testing.T) {
	fixed := gpu.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: 800, Height: 600},
		MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
	}
	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, ChooseExtent(fixed, 1024, 768))

	free := fixed
	free.CurrentExtent = core1_0.Extent2D{Width: -1, Height: -1}
	assert.Equal(t, core1_0.Extent2D{Width: 1024, Height: 768}, ChooseExtent(free, 1024, 768))
	assert.Equal(t, core1_0.Extent2D{Width: 4096, Height: 1}, ChooseExtent(free, 10000, 0))
}

func TestChooseSharing(t *testing.T) {
	zero, one := 0, 1

	mode, families := ChooseSharing(device.QueueFamilyIndices{GraphicsFamily: &zero, PresentFamily: &zero})
	assert.Equal(t, core1_0.SharingModeExclusive, mode)
	assert.Empty(t, families)

	mode, families = ChooseSharing(device.QueueFamilyIndices{GraphicsFamily: &zero, PresentFamily: &one})
	assert.Equal(t, core1_0.SharingModeConcurrent, mode)
	assert.Equal(t, []int{0, 1}, families)
}
