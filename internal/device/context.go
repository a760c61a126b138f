// Package device selects an adapter for a surface and opens the logical
// device every other component borrows.
package device

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_portability_subset"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

var RequiredExtensions = []string{khr_swapchain.ExtensionName}

// OptionalExtensions are enabled when the adapter offers them. The portability
// subset must be enabled on implementations that expose it (MoltenVK).
var OptionalExtensions = []string{khr_portability_subset.ExtensionName}

var depthFormats = []core1_0.Format{
	core1_0.FormatD32SignedFloat,
	core1_0.FormatD32SignedFloatS8UnsignedInt,
	core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
}

type QueueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

func (i QueueFamilyIndices) IsComplete() bool {
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

// Unique lists the distinct families, graphics first.
func (i QueueFamilyIndices) Unique() []int {
	families := []int{*i.GraphicsFamily}
	if *i.PresentFamily != *i.GraphicsFamily {
		families = append(families, *i.PresentFamily)
	}
	return families
}

// FindQueueFamilies picks a graphics family and a family that can present to
// surface, preferring a single family that does both.
func FindQueueFamilies(adapter gpu.Adapter, surface gpu.Surface) (QueueFamilyIndices, error) {
	var indices QueueFamilyIndices
	for idx, family := range adapter.QueueFamilies() {
		if family.QueueCount == 0 {
			continue
		}
		supported, err := adapter.SurfaceSupported(surface, idx)
		if err != nil {
			return indices, err
		}

		if family.Graphics && supported {
			i := idx
			return QueueFamilyIndices{GraphicsFamily: &i, PresentFamily: &i}, nil
		}
		if family.Graphics && indices.GraphicsFamily == nil {
			i := idx
			indices.GraphicsFamily = &i
		}
		if supported && indices.PresentFamily == nil {
			i := idx
			indices.PresentFamily = &i
		}
	}
	return indices, nil
}

// Suitable reports why adapter cannot drive surface, or nil if it can.
func Suitable(adapter gpu.Adapter, surface gpu.Surface) error {
	indices, err := FindQueueFamilies(adapter, surface)
	if err != nil {
		return err
	}
	if !indices.IsComplete() {
		return errors.New("no graphics and present queue families")
	}

	extensions, err := adapter.Extensions()
	if err != nil {
		return err
	}
	for _, ext := range RequiredExtensions {
		if !extensions[ext] {
			return errors.Newf("missing device extension %s", ext)
		}
	}

	support, err := adapter.SurfaceSupport(surface)
	if err != nil {
		return err
	}
	if !support.Adequate() {
		return errors.New("surface offers no formats or present modes")
	}

	if !adapter.Features().SamplerAnisotropy {
		return errors.New("sampler anisotropy not supported")
	}
	return nil
}

// Context owns the logical device and its queues. It is created once and
// destroyed after everything created from it.
type Context struct {
	adapter gpu.Adapter
	device  gpu.Device
	surface gpu.Surface
	indices QueueFamilyIndices

	graphicsQueue gpu.Queue
	presentQueue  gpu.Queue
	depthFormat   core1_0.Format

	log *slog.Logger
}

// Open picks the first suitable adapter and creates the device on it.
func Open(instance gpu.Instance, surface gpu.Surface, log *slog.Logger) (*Context, error) {
	if log == nil {
		log = slog.Default()
	}

	adapters, err := instance.Adapters()
	if err != nil {
		return nil, gpu.InitializationError(err, "enumerate adapters")
	}

	var adapter gpu.Adapter
	for _, candidate := range adapters {
		reason := Suitable(candidate, surface)
		if reason == nil {
			adapter = candidate
			break
		}
		log.Debug("adapter rejected", "adapter", candidate.Properties().Name, "reason", reason)
	}
	if adapter == nil {
		return nil, gpu.InitializationError(nil, "failed to find a suitable GPU among %d adapters", len(adapters))
	}

	indices, err := FindQueueFamilies(adapter, surface)
	if err != nil {
		return nil, gpu.InitializationError(err, "find queue families")
	}

	extensionNames := append([]string(nil), RequiredExtensions...)
	available, err := adapter.Extensions()
	if err != nil {
		return nil, gpu.InitializationError(err, "enumerate device extensions")
	}
	for _, ext := range OptionalExtensions {
		if available[ext] {
			extensionNames = append(extensionNames, ext)
		}
	}

	dev, err := adapter.OpenDevice(gpu.DeviceOptions{
		QueueFamilies: indices.Unique(),
		Extensions:    extensionNames,
		Features:      gpu.Features{SamplerAnisotropy: true},
	})
	if err != nil {
		return nil, gpu.InitializationError(err, "create logical device on %s", adapter.Properties().Name)
	}

	ctx := &Context{
		adapter:       adapter,
		device:        dev,
		surface:       surface,
		indices:       indices,
		graphicsQueue: dev.Queue(*indices.GraphicsFamily),
		presentQueue:  dev.Queue(*indices.PresentFamily),
		log:           log,
	}

	ctx.depthFormat, err = ctx.FindSupportedFormat(depthFormats, core1_0.ImageTilingOptimal, core1_0.FormatFeatureDepthStencilAttachment)
	if err != nil {
		dev.Destroy()
		return nil, gpu.InitializationError(err, "find depth format")
	}

	log.Info("device opened",
		"adapter", adapter.Properties().Name,
		"graphicsFamily", *indices.GraphicsFamily,
		"presentFamily", *indices.PresentFamily,
		"extensions", extensionNames)
	return ctx, nil
}

func (c *Context) Adapter() gpu.Adapter { return c.adapter }
func (c *Context) Device() gpu.Device { return c.device }
func (c *Context) Surface() gpu.Surface { return c.surface }
func (c *Context) Indices() QueueFamilyIndices { return c.indices }
func (c *Context) GraphicsFamily() int { return *c.indices.GraphicsFamily }
func (c *Context) PresentFamily() int { return *c.indices.PresentFamily }
func (c *Context) GraphicsQueue() gpu.Queue { return c.graphicsQueue }
func (c *Context) PresentQueue() gpu.Queue { return c.presentQueue }
func (c *Context) DepthFormat() core1_0.Format { return c.depthFormat }
func (c *Context) Logger() *slog.Logger { return c.log }
func (c *Context) Limits() gpu.Limits { return c.adapter.Properties().Limits }
func (c *Context) Features() gpu.Features { return c.adapter.Features() }

// SurfaceSupport queries the current surface capabilities.
func (c *Context) SurfaceSupport() (gpu.SurfaceSupport, error) {
	return c.adapter.SurfaceSupport(c.surface)
}

// FindMemoryType returns the first memory type allowed by typeFilter that has
// every flag in properties.
func (c *Context) FindMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range c.adapter.MemoryTypes() {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, gpu.AllocationError(nil, "failed to find any suitable memory type for filter %#b, properties %s", typeFilter, properties)
}

func (c *Context) FindSupportedFormat(formats []core1_0.Format, tiling core1_0.ImageTiling, features core1_0.FormatFeatureFlags) (core1_0.Format, error) {
	for _, format := range formats {
		props := c.adapter.FormatProperties(format)

		if tiling == core1_0.ImageTilingLinear && (props.LinearTilingFeatures&features) == features {
			return format, nil
		} else if tiling == core1_0.ImageTilingOptimal && (props.OptimalTilingFeatures&features) == features {
			return format, nil
		}
	}

	return 0, errors.Newf("failed to find supported format for tiling %s, featureset %s", tiling, features)
}

// HasStencilComponent reports whether a depth format carries stencil bits.
func HasStencilComponent(format core1_0.Format) bool {
	return format == core1_0.FormatD32SignedFloatS8UnsignedInt || format == core1_0.FormatD24UnsignedNormalizedS8UnsignedInt
}

// Close destroys the logical device. Everything created from it must already
// be gone.
func (c *Context) Close() {
	if c.device == nil {
		return
	}
	c.device.Destroy()
	c.device = nil
}
