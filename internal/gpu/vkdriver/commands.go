package vkdriver

import (
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

func (d *Device) CreateCommandPool(family int) (gpu.CommandPool, error) {
	pool, _, err := d.device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: family,
	})
	if err != nil {
		return 0, err
	}
	return gpu.CommandPool(d.handles.add(pool)), nil
}

func (d *Device) DestroyCommandPool(handle gpu.CommandPool) {
	pool, ok := take[core1_0.CommandPool](d.handles, uint64(handle))
	if !ok {
		return
	}
	d.dropChildren(uint64(handle))
	pool.Destroy(nil)
}

func (d *Device) AllocateCommandBuffers(poolHandle gpu.CommandPool, count int) ([]gpu.CommandBuffer, error) {
	pool, ok := get[core1_0.CommandPool](d.handles, uint64(poolHandle))
	if !ok {
		return nil, unknown("command pool", uint64(poolHandle))
	}

	buffers, _, err := d.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, err
	}

	out := make([]gpu.CommandBuffer, 0, len(buffers))
	for _, buffer := range buffers {
		id := d.handles.add(buffer)
		d.children[uint64(poolHandle)] = append(d.children[uint64(poolHandle)], id)
		out = append(out, gpu.CommandBuffer(id))
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(poolHandle gpu.CommandPool, handles []gpu.CommandBuffer) {
	var buffers []core1_0.CommandBuffer
	freed := map[uint64]bool{}
	for _, handle := range handles {
		if buffer, ok := take[core1_0.CommandBuffer](d.handles, uint64(handle)); ok {
			buffers = append(buffers, buffer)
			freed[uint64(handle)] = true
		}
	}
	if len(buffers) == 0 {
		return
	}

	var remaining []uint64
	for _, child := range d.children[uint64(poolHandle)] {
		if !freed[child] {
			remaining = append(remaining, child)
		}
	}
	d.children[uint64(poolHandle)] = remaining

	d.device.FreeCommandBuffers(buffers)
}

func (d *Device) commandBuffer(handle gpu.CommandBuffer) (core1_0.CommandBuffer, bool) {
	return get[core1_0.CommandBuffer](d.handles, uint64(handle))
}

func (d *Device) BeginCommandBuffer(handle gpu.CommandBuffer, oneTimeSubmit bool) error {
	buffer, ok := d.commandBuffer(handle)
	if !ok {
		return unknown("command buffer", uint64(handle))
	}

	var flags core1_0.CommandBufferUsageFlags
	if oneTimeSubmit {
		flags = core1_0.CommandBufferUsageOneTimeSubmit
	}
	_, err := buffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: flags,
	})
	return err
}

func (d *Device) EndCommandBuffer(handle gpu.CommandBuffer) error {
	buffer, ok := d.commandBuffer(handle)
	if !ok {
		return unknown("command buffer", uint64(handle))
	}
	_, err := buffer.End()
	return err
}

func (d *Device) CmdCopyBuffer(handle gpu.CommandBuffer, src, dst gpu.Buffer, regions []gpu.BufferCopy) error {
	buffer, ok := d.commandBuffer(handle)
	if !ok {
		return unknown("command buffer", uint64(handle))
	}
	srcBuffer, ok := get[core1_0.Buffer](d.handles, uint64(src))
	if !ok {
		return unknown("buffer", uint64(src))
	}
	dstBuffer, ok := get[core1_0.Buffer](d.handles, uint64(dst))
	if !ok {
		return unknown("buffer", uint64(dst))
	}

	var copies []core1_0.BufferCopy
	for _, region := range regions {
		copies = append(copies, core1_0.BufferCopy{
			SrcOffset: region.SrcOffset,
			DstOffset: region.DstOffset,
			Size:      region.Size,
		})
	}
	return buffer.CmdCopyBuffer(srcBuffer, dstBuffer, copies)
}

func bufferImageCopy(region gpu.BufferImageCopy) core1_0.BufferImageCopy {
	return core1_0.BufferImageCopy{
		BufferOffset:      region.BufferOffset,
		BufferRowLength:   0,
		BufferImageHeight: 0,

		ImageSubresource: core1_0.ImageSubresourceLayers{
			AspectMask:     region.Aspect,
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: core1_0.Extent3D{Width: region.Width, Height: region.Height, Depth: 1},
	}
}

func (d *Device) CmdCopyBufferToImage(handle gpu.CommandBuffer, src gpu.Buffer, dst gpu.Image, layout core1_0.ImageLayout, region gpu.BufferImageCopy) error {
	buffer, ok := d.commandBuffer(handle)
	if !ok {
		return unknown("command buffer", uint64(handle))
	}
	srcBuffer, ok := get[core1_0.Buffer](d.handles, uint64(src))
	if !ok {
		return unknown("buffer", uint64(src))
	}
	image, err := d.image(dst)
	if err != nil {
		return err
	}
	return buffer.CmdCopyBufferToImage(srcBuffer, image, layout, []core1_0.BufferImageCopy{bufferImageCopy(region)})
}

func (d *Device) CmdCopyImageToBuffer(handle gpu.CommandBuffer, src gpu.Image, layout core1_0.ImageLayout, dst gpu.Buffer, region gpu.BufferImageCopy) error {
	buffer, ok := d.commandBuffer(handle)
	if !ok {
		return unknown("command buffer", uint64(handle))
	}
	image, err := d.image(src)
	if err != nil {
		return err
	}
	dstBuffer, ok := get[core1_0.Buffer](d.handles, uint64(dst))
	if !ok {
		return unknown("buffer", uint64(dst))
	}
	return buffer.CmdCopyImageToBuffer(image, layout, dstBuffer, []core1_0.BufferImageCopy{bufferImageCopy(region)})
}

func (d *Device) CmdPipelineBarrier(handle gpu.CommandBuffer, srcStage, dstStage core1_0.PipelineStageFlags, barrier gpu.ImageBarrier) error {
	buffer, ok := d.commandBuffer(handle)
	if !ok {
		return unknown("command buffer", uint64(handle))
	}
	image, err := d.image(barrier.Image)
	if err != nil {
		return err
	}

	return buffer.CmdPipelineBarrier(srcStage, dstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           barrier.OldLayout,
			NewLayout:           barrier.NewLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               image,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     barrier.Aspect,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: barrier.SrcAccess,
			DstAccessMask: barrier.DstAccess,
		},
	})
}

func (d *Device) CmdBeginRenderPass(handle gpu.CommandBuffer, begin gpu.RenderPassBegin) error {
	buffer, ok := d.commandBuffer(handle)
	if !ok {
		return unknown("command buffer", uint64(handle))
	}
	renderPass, ok := get[core1_0.RenderPass](d.handles, uint64(begin.RenderPass))
	if !ok {
		return unknown("render pass", uint64(begin.RenderPass))
	}
	framebuffer, ok := get[core1_0.Framebuffer](d.handles, uint64(begin.Framebuffer))
	if !ok {
		return unknown("framebuffer", uint64(begin.Framebuffer))
	}

	return buffer.CmdBeginRenderPass(core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  renderPass,
			Framebuffer: framebuffer,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: begin.Extent,
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat(begin.ClearColor),
				core1_0.ClearValueDepthStencil{Depth: begin.ClearDepth, Stencil: 0},
			},
		})
}

func (d *Device) CmdBindPipeline(handle gpu.CommandBuffer, pipelineHandle gpu.Pipeline) {
	buffer, ok := d.commandBuffer(handle)
	pipeline, found := get[core1_0.Pipeline](d.handles, uint64(pipelineHandle))
	if ok && found {
		buffer.CmdBindPipeline(core1_0.PipelineBindPointGraphics, pipeline)
	}
}

func (d *Device) CmdBindVertexBuffer(handle gpu.CommandBuffer, vertexBuffer gpu.Buffer) {
	buffer, ok := d.commandBuffer(handle)
	vertices, found := get[core1_0.Buffer](d.handles, uint64(vertexBuffer))
	if ok && found {
		buffer.CmdBindVertexBuffers([]core1_0.Buffer{vertices}, []int{0})
	}
}

func (d *Device) CmdBindIndexBuffer(handle gpu.CommandBuffer, indexBuffer gpu.Buffer, indexType core1_0.IndexType) {
	buffer, ok := d.commandBuffer(handle)
	indices, found := get[core1_0.Buffer](d.handles, uint64(indexBuffer))
	if ok && found {
		buffer.CmdBindIndexBuffer(indices, 0, indexType)
	}
}

func (d *Device) CmdBindDescriptorSet(handle gpu.CommandBuffer, layoutHandle gpu.PipelineLayout, setHandle gpu.DescriptorSet) {
	buffer, ok := d.commandBuffer(handle)
	layout, foundLayout := get[core1_0.PipelineLayout](d.handles, uint64(layoutHandle))
	set, foundSet := get[core1_0.DescriptorSet](d.handles, uint64(setHandle))
	if ok && foundLayout && foundSet {
		buffer.CmdBindDescriptorSets(core1_0.PipelineBindPointGraphics, layout, []core1_0.DescriptorSet{set}, nil)
	}
}

func (d *Device) CmdDrawIndexed(handle gpu.CommandBuffer, indexCount int) {
	if buffer, ok := d.commandBuffer(handle); ok {
		buffer.CmdDrawIndexed(indexCount, 1, 0, 0, 0)
	}
}

func (d *Device) CmdEndRenderPass(handle gpu.CommandBuffer) {
	if buffer, ok := d.commandBuffer(handle); ok {
		buffer.CmdEndRenderPass()
	}
}

func (d *Device) Submit(queueHandle gpu.Queue, submits []gpu.SubmitInfo) error {
	queue, err := d.queue(queueHandle)
	if err != nil {
		return err
	}

	var submitInfos []core1_0.SubmitInfo
	for _, submit := range submits {
		waits, ok := all[core1_0.Semaphore](d.handles, submit.WaitSemaphores)
		if !ok {
			return unknown("semaphore", 0)
		}
		signals, ok := all[core1_0.Semaphore](d.handles, submit.SignalSemaphores)
		if !ok {
			return unknown("semaphore", 0)
		}
		buffers, ok := all[core1_0.CommandBuffer](d.handles, submit.CommandBuffers)
		if !ok {
			return unknown("command buffer", 0)
		}

		submitInfos = append(submitInfos, core1_0.SubmitInfo{
			WaitSemaphores:   waits,
			WaitDstStageMask: submit.WaitStages,
			CommandBuffers:   buffers,
			SignalSemaphores: signals,
		})
	}

	_, err = queue.Submit(nil, submitInfos)
	return err
}

func (d *Device) QueueWaitIdle(queueHandle gpu.Queue) error {
	queue, err := d.queue(queueHandle)
	if err != nil {
		return err
	}
	_, err = queue.WaitIdle()
	return err
}

func (d *Device) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	surface, err := d.adapter.instance.surface(info.Surface)
	if err != nil {
		return 0, err
	}
	transform, err := d.adapter.currentTransform(info.Surface)
	if err != nil {
		return 0, err
	}

	var oldSwapchain khr_swapchain.Swapchain
	if info.OldSwapchain != 0 {
		old, ok := get[*swapchainEntry](d.handles, uint64(info.OldSwapchain))
		if !ok {
			return 0, unknown("swapchain", uint64(info.OldSwapchain))
		}
		oldSwapchain = old.swapchain
	}

	swapchain, _, err := d.swapchainLoader.CreateSwapchain(d.device, nil, khr_swapchain.SwapchainCreateInfo{
		Surface: surface,

		MinImageCount:    info.MinImageCount,
		ImageFormat:      info.Format.Format,
		ImageColorSpace:  info.Format.ColorSpace,
		ImageExtent:      info.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       info.Usage,

		ImageSharingMode:   info.SharingMode,
		QueueFamilyIndices: info.QueueFamilies,

		PreTransform:   transform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    info.PresentMode,
		Clipped:        true,
		OldSwapchain:   oldSwapchain,
	})
	if err != nil {
		return 0, err
	}

	images, _, err := swapchain.SwapchainImages()
	if err != nil {
		swapchain.Destroy(nil)
		return 0, err
	}

	entry := &swapchainEntry{swapchain: swapchain}
	id := d.handles.add(entry)
	for _, image := range images {
		imageID := d.handles.add(swapchainImage{image: image})
		d.children[id] = append(d.children[id], imageID)
		entry.images = append(entry.images, gpu.Image(imageID))
	}
	return gpu.Swapchain(id), nil
}

func (d *Device) DestroySwapchain(handle gpu.Swapchain) {
	entry, ok := take[*swapchainEntry](d.handles, uint64(handle))
	if !ok {
		return
	}
	d.dropChildren(uint64(handle))
	entry.swapchain.Destroy(nil)
}

func (d *Device) SwapchainImages(handle gpu.Swapchain) ([]gpu.Image, error) {
	entry, ok := get[*swapchainEntry](d.handles, uint64(handle))
	if !ok {
		return nil, unknown("swapchain", uint64(handle))
	}
	return append([]gpu.Image(nil), entry.images...), nil
}

func presentStatus(res common.VkResult) gpu.PresentStatus {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return gpu.PresentOutOfDate
	case khr_swapchain.VKSuboptimal:
		return gpu.PresentSuboptimal
	}
	return gpu.PresentOK
}

func (d *Device) AcquireNextImage(handle gpu.Swapchain, signal gpu.Semaphore) (int, gpu.PresentStatus, error) {
	entry, ok := get[*swapchainEntry](d.handles, uint64(handle))
	if !ok {
		return 0, gpu.PresentOK, unknown("swapchain", uint64(handle))
	}
	semaphore, ok := get[core1_0.Semaphore](d.handles, uint64(signal))
	if !ok {
		return 0, gpu.PresentOK, unknown("semaphore", uint64(signal))
	}

	imageIndex, res, err := entry.swapchain.AcquireNextImage(common.NoTimeout, semaphore, nil)
	if status := presentStatus(res); status != gpu.PresentOK {
		return imageIndex, status, nil
	}
	return imageIndex, gpu.PresentOK, err
}

func (d *Device) QueuePresent(queueHandle gpu.Queue, info gpu.PresentInfo) (gpu.PresentStatus, error) {
	queue, err := d.queue(queueHandle)
	if err != nil {
		return gpu.PresentOK, err
	}
	entry, ok := get[*swapchainEntry](d.handles, uint64(info.Swapchain))
	if !ok {
		return gpu.PresentOK, unknown("swapchain", uint64(info.Swapchain))
	}
	waits, ok := all[core1_0.Semaphore](d.handles, info.WaitSemaphores)
	if !ok {
		return gpu.PresentOK, unknown("semaphore", 0)
	}

	res, err := d.swapchainLoader.QueuePresent(queue, khr_swapchain.PresentInfo{
		WaitSemaphores: waits,
		Swapchains:     []khr_swapchain.Swapchain{entry.swapchain},
		ImageIndices:   []int{info.ImageIndex},
	})
	if status := presentStatus(res); status != gpu.PresentOK {
		return status, nil
	}
	return gpu.PresentOK, err
}
