// Package swapchain negotiates presentation parameters with the surface and
// owns the presentable images together with their views, the shared depth
// attachment and one framebuffer per image.
package swapchain

import (
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"

	"github.com/vkngwrapper/vulkan-renderer/internal/device"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// ChooseImageCount asks for one image more than the minimum, clamped to the
// maximum when the surface has one.
func ChooseImageCount(caps gpu.SurfaceCapabilities) int {
	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && caps.MaxImageCount < imageCount {
		imageCount = caps.MaxImageCount
	}
	return imageCount
}

func ChooseSurfaceFormat(availableFormats []khr_surface.SurfaceFormat) (khr_surface.SurfaceFormat, error) {
	if len(availableFormats) == 0 {
		return khr_surface.SurfaceFormat{}, gpu.InitializationError(nil, "surface reports no formats")
	}

	for _, format := range availableFormats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format, nil
		}
	}

	return availableFormats[0], nil
}

// ChoosePresentMode returns preferred if the surface offers it. FIFO is the
// fallback since every surface must support it.
func ChoosePresentMode(availablePresentModes []khr_surface.PresentMode, preferred khr_surface.PresentMode) khr_surface.PresentMode {
	for _, presentMode := range availablePresentModes {
		if presentMode == preferred {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// ChooseExtent uses the surface extent when it is fixed and otherwise clamps
// the drawable size into the surface limits.
func ChooseExtent(caps gpu.SurfaceCapabilities, width, height int) core1_0.Extent2D {
	if caps.FixedExtent() {
		return caps.CurrentExtent
	}

	width = min(max(width, caps.MinImageExtent.Width), caps.MaxImageExtent.Width)
	height = min(max(height, caps.MinImageExtent.Height), caps.MaxImageExtent.Height)

	return core1_0.Extent2D{Width: width, Height: height}
}

// ChooseSharing shares images between queue families only when graphics and
// present live in different families.
func ChooseSharing(indices device.QueueFamilyIndices) (core1_0.SharingMode, []int) {
	if *indices.GraphicsFamily != *indices.PresentFamily {
		return core1_0.SharingModeConcurrent, []int{*indices.GraphicsFamily, *indices.PresentFamily}
	}
	return core1_0.SharingModeExclusive, nil
}
