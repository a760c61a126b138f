package gpu

import (
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
)

// Instance is the root of a backend: it enumerates adapters and owns the
// presentation surface.
type Instance interface {
	Adapters() ([]Adapter, error)
	DestroySurface(surface Surface)
	Destroy()
}

type QueueFamily struct {
	Graphics   bool
	QueueCount int
}

type MemoryType struct {
	PropertyFlags core1_0.MemoryPropertyFlags
	HeapIndex     int
}

type Features struct {
	SamplerAnisotropy bool
}

type Limits struct {
	MaxSamplerAnisotropy float32
}

type AdapterProperties struct {
	Name   string
	Limits Limits
}

type SurfaceCapabilities struct {
	MinImageCount  int
	MaxImageCount  int
	CurrentExtent  core1_0.Extent2D
	MinImageExtent core1_0.Extent2D
	MaxImageExtent core1_0.Extent2D
}

// FixedExtent reports whether the surface dictates the swapchain extent.
func (c SurfaceCapabilities) FixedExtent() bool {
	return c.CurrentExtent.Width != -1
}

// SurfaceSupport is everything an adapter reports about presenting to a surface.
type SurfaceSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

// Adequate reports whether a swapchain can be built at all.
func (s SurfaceSupport) Adequate() bool {
	return len(s.Formats) > 0 && len(s.PresentModes) > 0
}

type DeviceOptions struct {
	QueueFamilies []int
	Extensions    []string
	Features      Features
}

// Adapter is a physical device.
type Adapter interface {
	Properties() AdapterProperties
	Features() Features
	QueueFamilies() []QueueFamily
	Extensions() (map[string]bool, error)
	MemoryTypes() []MemoryType
	FormatProperties(format core1_0.Format) core1_0.FormatProperties

	SurfaceSupported(surface Surface, family int) (bool, error)
	SurfaceSupport(surface Surface) (SurfaceSupport, error)

	OpenDevice(options DeviceOptions) (Device, error)
}
