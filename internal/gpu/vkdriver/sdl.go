package vkdriver

import (
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// NewLoader loads Vulkan through SDL. sdl.Init must have been called with
// video enabled.
func NewLoader() (core.Loader, error) {
	loader, err := core.CreateLoaderFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, gpu.InitializationError(err, "load vulkan")
	}
	return loader, nil
}

// CreateSDLSurface creates a presentation surface for window. The instance
// owns the surface until it is passed to DestroySurface.
func (i *Instance) CreateSDLSurface(window *sdl.Window) (gpu.Surface, error) {
	surface, err := vkng_sdl2.CreateSurface(i.instance, i.surfaceLoader, window)
	if err != nil {
		return 0, gpu.InitializationError(err, "create window surface")
	}
	return i.AddSurface(surface), nil
}
