package swapchain

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"

	"github.com/vkngwrapper/vulkan-renderer/internal/device"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/memory"
)

type Options struct {
	// PresentMode is used when the surface offers it, otherwise FIFO.
	PresentMode khr_surface.PresentMode
	// DrawableSize reports the window size in pixels. It is consulted only
	// when the surface leaves the extent to the application.
	DrawableSize func() (int, int)
}

// Chain is one generation of presentation resources. A chain is never
// resized: a new chain is built from the old one and the old one destroyed.
type Chain struct {
	ctx *device.Context

	handle      gpu.Swapchain
	format      khr_surface.SurfaceFormat
	presentMode khr_surface.PresentMode
	extent      core1_0.Extent2D

	images       []gpu.Image
	views        []gpu.ImageView
	depth        *memory.Image
	depthView    gpu.ImageView
	framebuffers []gpu.Framebuffer
}

// New negotiates with the surface and creates the swapchain and one color view
// per image. When old is given it is passed as the retiring swapchain; the
// caller destroys it once the new chain is live.
func New(ctx *device.Context, opts Options, old *Chain) (*Chain, error) {
	support, err := ctx.SurfaceSupport()
	if err != nil {
		return nil, gpu.InitializationError(err, "query surface support")
	}

	surfaceFormat, err := ChooseSurfaceFormat(support.Formats)
	if err != nil {
		return nil, err
	}
	presentMode := ChoosePresentMode(support.PresentModes, opts.PresentMode)

	var width, height int
	if opts.DrawableSize != nil {
		width, height = opts.DrawableSize()
	}
	extent := ChooseExtent(support.Capabilities, width, height)
	sharingMode, queueFamilies := ChooseSharing(ctx.Indices())

	var oldHandle gpu.Swapchain
	if old != nil {
		oldHandle = old.handle
	}

	dev := ctx.Device()
	handle, err := dev.CreateSwapchain(gpu.SwapchainInfo{
		Surface:       ctx.Surface(),
		MinImageCount: ChooseImageCount(support.Capabilities),
		Format:        surfaceFormat,
		Extent:        extent,
		Usage:         core1_0.ImageUsageColorAttachment,
		SharingMode:   sharingMode,
		QueueFamilies: queueFamilies,
		PresentMode:   presentMode,
		OldSwapchain:  oldHandle,
	})
	if err != nil {
		return nil, gpu.InitializationError(err, "create swapchain")
	}

	c := &Chain{
		ctx:         ctx,
		handle:      handle,
		format:      surfaceFormat,
		presentMode: presentMode,
		extent:      extent,
	}

	c.images, err = dev.SwapchainImages(handle)
	if err != nil {
		c.Destroy()
		return nil, gpu.InitializationError(err, "get swapchain images")
	}

	for _, image := range c.images {
		view, err := dev.CreateImageView(gpu.ImageViewInfo{
			Image:  image,
			Format: surfaceFormat.Format,
			Aspect: core1_0.ImageAspectColor,
		})
		if err != nil {
			c.Destroy()
			return nil, gpu.InitializationError(err, "create swapchain image view")
		}
		c.views = append(c.views, view)
	}

	return c, nil
}

func (c *Chain) Handle() gpu.Swapchain { return c.handle }
func (c *Chain) Format() khr_surface.SurfaceFormat { return c.format }
func (c *Chain) PresentMode() khr_surface.PresentMode { return c.presentMode }
func (c *Chain) Extent() core1_0.Extent2D { return c.extent }
func (c *Chain) ImageCount() int { return len(c.images) }
func (c *Chain) View(imageIndex int) gpu.ImageView { return c.views[imageIndex] }
func (c *Chain) Framebuffer(imageIndex int) gpu.Framebuffer { return c.framebuffers[imageIndex] }

// DepthImage is nil until CreateDepthResources has run.
func (c *Chain) DepthImage() *memory.Image { return c.depth }

// CreateDepthResources allocates the depth attachment shared by every
// framebuffer and moves it into the attachment layout.
func (c *Chain) CreateDepthResources(stager *memory.Stager) error {
	depth, err := memory.NewImage(c.ctx, memory.ImageOptions{
		Width:      c.extent.Width,
		Height:     c.extent.Height,
		Format:     c.ctx.DepthFormat(),
		Tiling:     core1_0.ImageTilingOptimal,
		Usage:      core1_0.ImageUsageDepthStencilAttachment,
		Properties: core1_0.MemoryPropertyDeviceLocal,
	})
	if err != nil {
		return errors.Wrap(err, "create depth image")
	}
	c.depth = depth

	c.depthView, err = depth.CreateView()
	if err != nil {
		return err
	}

	return stager.Transition(depth, core1_0.ImageLayoutDepthStencilAttachmentOptimal)
}

// CreateFramebuffers pairs every color view with the depth view for renderPass.
func (c *Chain) CreateFramebuffers(renderPass gpu.RenderPass) error {
	if c.depthView == 0 {
		return gpu.InitializationError(nil, "framebuffers need depth resources")
	}

	for _, view := range c.views {
		framebuffer, err := c.ctx.Device().CreateFramebuffer(gpu.FramebufferInfo{
			RenderPass:  renderPass,
			Attachments: []gpu.ImageView{view, c.depthView},
			Width:       c.extent.Width,
			Height:      c.extent.Height,
		})
		if err != nil {
			return gpu.InitializationError(err, "create framebuffer")
		}

		c.framebuffers = append(c.framebuffers, framebuffer)
	}

	return nil
}

// Acquire returns the index of the next image, signalling signal when it is
// ready. A swapchain that no longer matches the surface yields a stale-surface
// error and nothing is signalled.
func (c *Chain) Acquire(signal gpu.Semaphore) (int, error) {
	imageIndex, status, err := c.ctx.Device().AcquireNextImage(c.handle, signal)
	if err != nil {
		return 0, gpu.SubmissionError(err, "acquire next image")
	}
	if status == gpu.PresentOutOfDate {
		return 0, gpu.StaleSurfaceError(status, "acquire next image")
	}
	return imageIndex, nil
}

// Present queues imageIndex for display once wait is signalled. Suboptimal and
// out of date results are reported as stale-surface errors after the present
// was queued.
func (c *Chain) Present(queue gpu.Queue, wait gpu.Semaphore, imageIndex int) error {
	status, err := c.ctx.Device().QueuePresent(queue, gpu.PresentInfo{
		WaitSemaphores: []gpu.Semaphore{wait},
		Swapchain:      c.handle,
		ImageIndex:     imageIndex,
	})
	if err != nil {
		return gpu.SubmissionError(err, "present image %d", imageIndex)
	}
	if status.Stale() {
		return gpu.StaleSurfaceError(status, "present image %d", imageIndex)
	}
	return nil
}

// Destroy releases framebuffers, depth resources, views and the swapchain, in
// that order.
func (c *Chain) Destroy() {
	dev := c.ctx.Device()

	for _, framebuffer := range c.framebuffers {
		dev.DestroyFramebuffer(framebuffer)
	}
	c.framebuffers = nil

	if c.depthView != 0 {
		dev.DestroyImageView(c.depthView)
		c.depthView = 0
	}
	if c.depth != nil {
		c.depth.Destroy()
		c.depth = nil
	}

	for _, view := range c.views {
		dev.DestroyImageView(view)
	}
	c.views = nil
	c.images = nil

	if c.handle != 0 {
		dev.DestroySwapchain(c.handle)
		c.handle = 0
	}
}
