// Package texture turns decoded RGBA pixels into a sampled, device-local image.
package texture

import (
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/device"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/memory"
)

// Format is the layout of the pixels handed to New.
const Format = core1_0.FormatR8G8B8A8SRGB

// Texture owns the image, its view and the sampler that reads it.
type Texture struct {
	dev     gpu.Device
	image   *memory.Image
	view    gpu.ImageView
	sampler gpu.Sampler
}

// New uploads width*height RGBA texels through stager and leaves the image in
// the shader read-only layout.
func New(ctx *device.Context, stager *memory.Stager, width, height int, rgba []byte) (*Texture, error) {
	image, err := memory.NewImage(ctx, memory.ImageOptions{
		Width:      width,
		Height:     height,
		Format:     Format,
		Tiling:     core1_0.ImageTilingOptimal,
		Usage:      core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
		Properties: core1_0.MemoryPropertyDeviceLocal,
	})
	if err != nil {
		return nil, err
	}
	t := &Texture{dev: ctx.Device(), image: image}

	err = stager.UploadImage(image, rgba)
	if err != nil {
		t.Destroy()
		return nil, err
	}

	t.view, err = image.CreateView()
	if err != nil {
		t.Destroy()
		return nil, err
	}

	t.sampler, err = ctx.Device().CreateSampler(samplerInfo(ctx.Features(), ctx.Limits()))
	if err != nil {
		t.Destroy()
		return nil, gpu.InitializationError(err, "create texture sampler")
	}

	return t, nil
}

// White is a single opaque white texel, bound when no texture is configured.
func White(ctx *device.Context, stager *memory.Stager) (*Texture, error) {
	return New(ctx, stager, 1, 1, []byte{255, 255, 255, 255})
}

func samplerInfo(features gpu.Features, limits gpu.Limits) gpu.SamplerInfo {
	info := gpu.SamplerInfo{
		Filter:      core1_0.FilterLinear,
		AddressMode: core1_0.SamplerAddressModeRepeat,
	}
	if features.SamplerAnisotropy && limits.MaxSamplerAnisotropy >= 1 {
		info.AnisotropyEnable = true
		info.MaxAnisotropy = limits.MaxSamplerAnisotropy
	}
	return info
}

func (t *Texture) Image() *memory.Image { return t.image }
func (t *Texture) View() gpu.ImageView { return t.view }
func (t *Texture) Sampler() gpu.Sampler { return t.sampler }

// Destroy releases the sampler and the view before the image they refer to.
func (t *Texture) Destroy() {
	if t.sampler != 0 {
		t.dev.DestroySampler(t.sampler)
		t.sampler = 0
	}
	if t.view != 0 {
		t.dev.DestroyImageView(t.view)
		t.view = 0
	}
	if t.image != nil {
		t.image.Destroy()
		t.image = nil
	}
}
