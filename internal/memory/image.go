package memory

import (
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/device"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

type ImageOptions struct {
	Width, Height int
	Format        core1_0.Format
	Tiling        core1_0.ImageTiling
	Usage         core1_0.ImageUsageFlags
	Properties    core1_0.MemoryPropertyFlags
	// Preinitialized creates the image in the preinitialized layout instead of undefined.
	Preinitialized bool
}

// Image is a 2D single-mip image bound to an allocation of its own. It tracks
// the layout its contents are in so transitions can be checked.
type Image struct {
	dev        gpu.Device
	handle     gpu.Image
	memory     gpu.Memory
	width      int
	height     int
	format     core1_0.Format
	layout     core1_0.ImageLayout
	allocation int
	memoryType int
}

func NewImage(ctx *device.Context, opts ImageOptions) (*Image, error) {
	dev := ctx.Device()

	layout := core1_0.ImageLayoutUndefined
	if opts.Preinitialized {
		layout = core1_0.ImageLayoutPreInitialized
	}

	handle, reqs, err := dev.CreateImage(gpu.ImageInfo{
		Width:         opts.Width,
		Height:        opts.Height,
		Format:        opts.Format,
		Tiling:        opts.Tiling,
		Usage:         opts.Usage,
		InitialLayout: layout,
	})
	if err != nil {
		return nil, gpu.AllocationError(err, "create %dx%d image", opts.Width, opts.Height)
	}

	memoryType, err := ctx.FindMemoryType(reqs.MemoryTypeBits, opts.Properties)
	if err != nil {
		dev.DestroyImage(handle)
		return nil, err
	}

	mem, err := dev.AllocateMemory(reqs.Size, memoryType)
	if err != nil {
		dev.DestroyImage(handle)
		return nil, gpu.AllocationError(err, "allocate %d bytes from memory type %d", reqs.Size, memoryType)
	}

	err = dev.BindImageMemory(handle, mem, 0)
	if err != nil {
		dev.DestroyImage(handle)
		dev.FreeMemory(mem)
		return nil, gpu.AllocationError(err, "bind image memory")
	}

	return &Image{
		dev:        dev,
		handle:     handle,
		memory:     mem,
		width:      opts.Width,
		height:     opts.Height,
		format:     opts.Format,
		layout:     layout,
		allocation: reqs.Size,
		memoryType: memoryType,
	}, nil
}

func (i *Image) Handle() gpu.Image { return i.handle }
func (i *Image) Memory() gpu.Memory { return i.memory }
func (i *Image) Width() int { return i.width }
func (i *Image) Height() int { return i.height }
func (i *Image) Format() core1_0.Format { return i.format }
func (i *Image) Layout() core1_0.ImageLayout { return i.layout }
func (i *Image) AllocationSize() int { return i.allocation }
func (i *Image) MemoryType() int { return i.memoryType }

// ByteSize is the size of tightly packed texel data for the whole image.
func (i *Image) ByteSize() int {
	return i.width * i.height * TexelSize(i.format)
}

// Aspect is the subresource aspect a view or barrier of this image addresses.
func (i *Image) Aspect() core1_0.ImageAspectFlags {
	return AspectFor(i.format)
}

// CreateView creates a 2D view covering the whole image.
func (i *Image) CreateView() (gpu.ImageView, error) {
	view, err := i.dev.CreateImageView(gpu.ImageViewInfo{
		Image:  i.handle,
		Format: i.format,
		Aspect: i.Aspect(),
	})
	if err != nil {
		return 0, gpu.AllocationError(err, "create image view")
	}
	return view, nil
}

// Destroy releases the handle before the memory it is bound to.
func (i *Image) Destroy() {
	if i.handle != 0 {
		i.dev.DestroyImage(i.handle)
		i.handle = 0
	}
	if i.memory != 0 {
		i.dev.FreeMemory(i.memory)
		i.memory = 0
	}
}

func isDepthFormat(format core1_0.Format) bool {
	switch format {
	case core1_0.FormatD32SignedFloat, core1_0.FormatD32SignedFloatS8UnsignedInt, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt:
		return true
	}
	return false
}

// AspectFor picks color, depth or depth plus stencil for format.
func AspectFor(format core1_0.Format) core1_0.ImageAspectFlags {
	if !isDepthFormat(format) {
		return core1_0.ImageAspectColor
	}
	if device.HasStencilComponent(format) {
		return core1_0.ImageAspectDepth | core1_0.ImageAspectStencil
	}
	return core1_0.ImageAspectDepth
}

// TexelSize is the packed size in bytes of one texel.
func TexelSize(format core1_0.Format) int {
	if format == core1_0.FormatD32SignedFloatS8UnsignedInt {
		return 8
	}
	return 4
}
