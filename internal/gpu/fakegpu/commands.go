package fakegpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

type commandState struct {
	pool         uint64
	recording    bool
	executable   bool
	oneTime      bool
	submitted    bool
	inRenderPass bool
	pipeline     uint64
	refs         []uint64
	ops          []func() error
}

func (v *Device) CreateCommandPool(family int) (gpu.CommandPool, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if _, ok := v.queues[family]; !ok {
		v.d.violatef("command pool for queue family %d that has no queue", family)
		return 0, errors.Newf("queue family %d not enabled", family)
	}
	return gpu.CommandPool(v.d.create(kindCommandPool, v.id).id), nil
}

func (v *Device) DestroyCommandPool(pool gpu.CommandPool) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	for _, obj := range v.d.objects {
		if obj.kind == kindCommandBuffer && obj.alive && obj.cmd.pool == uint64(pool) {
			obj.alive = false
		}
	}
	v.d.destroy(uint64(pool), kindCommandPool)
}

func (v *Device) AllocateCommandBuffers(pool gpu.CommandPool, count int) ([]gpu.CommandBuffer, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if _, err := v.d.lookup(uint64(pool), kindCommandPool); err != nil {
		return nil, err
	}
	if count <= 0 {
		v.d.violatef("command buffer count must be positive, got %d", count)
		return nil, errors.Newf("invalid command buffer count %d", count)
	}
	out := make([]gpu.CommandBuffer, 0, count)
	for i := 0; i < count; i++ {
		obj := v.d.create(kindCommandBuffer, v.id, uint64(pool))
		obj.cmd = &commandState{pool: uint64(pool)}
		out = append(out, gpu.CommandBuffer(obj.id))
	}
	return out, nil
}

func (v *Device) FreeCommandBuffers(pool gpu.CommandPool, buffers []gpu.CommandBuffer) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	for _, b := range buffers {
		obj := v.d.destroy(uint64(b), kindCommandBuffer)
		if obj != nil && obj.cmd.pool != uint64(pool) {
			v.d.violatef("command buffer %d freed to pool %d, allocated from %d", b, pool, obj.cmd.pool)
		}
	}
}

func (v *Device) BeginCommandBuffer(buffer gpu.CommandBuffer, oneTimeSubmit bool) error {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	obj, err := v.d.lookup(uint64(buffer), kindCommandBuffer)
	if err != nil {
		return err
	}
	if obj.cmd.recording {
		v.d.violatef("command buffer %d is already recording", buffer)
		return errors.Newf("command buffer %d already recording", buffer)
	}
	if oneTimeSubmit {
		v.d.stats.OneTimeBegins++
	} else {
		v.d.stats.Begins++
	}
	*obj.cmd = commandState{pool: obj.cmd.pool, recording: true, oneTime: oneTimeSubmit}
	return nil
}

func (v *Device) EndCommandBuffer(buffer gpu.CommandBuffer) error {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	obj, err := v.d.lookup(uint64(buffer), kindCommandBuffer)
	if err != nil {
		return err
	}
	if !obj.cmd.recording {
		v.d.violatef("command buffer %d is not recording", buffer)
		return errors.Newf("command buffer %d not recording", buffer)
	}
	if obj.cmd.inRenderPass {
		v.d.violatef("command buffer %d ended inside a render pass", buffer)
	}
	obj.cmd.recording = false
	obj.cmd.executable = true
	return nil
}

// recording resolves a command buffer that must be in the recording state.
func (v *Device) recording(buffer gpu.CommandBuffer) (*commandState, error) {
	obj, err := v.d.lookup(uint64(buffer), kindCommandBuffer)
	if err != nil {
		return nil, err
	}
	if !obj.cmd.recording {
		v.d.violatef("command recorded into command buffer %d outside begin/end", buffer)
		return nil, errors.Newf("command buffer %d not recording", buffer)
	}
	return obj.cmd, nil
}

func (d *driver) boundBytes(id uint64) ([]byte, error) {
	obj, ok := d.objects[id]
	if !ok || !obj.alive {
		return nil, errors.Newf("resource %d destroyed before execution", id)
	}
	if obj.chain != nil {
		return obj.bytes, nil
	}
	if obj.memory == 0 {
		d.violatef("%s %d used without bound memory", obj.kind, id)
		return nil, errors.Newf("%s %d has no memory", obj.kind, id)
	}
	mem := d.objects[obj.memory]
	return mem.bytes[obj.offset : obj.offset+obj.size], nil
}

func (v *Device) CmdCopyBuffer(buffer gpu.CommandBuffer, src, dst gpu.Buffer, regions []gpu.BufferCopy) error {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	cmd, err := v.recording(buffer)
	if err != nil {
		return err
	}
	if _, err := v.d.lookup(uint64(src), kindBuffer); err != nil {
		return err
	}
	if _, err := v.d.lookup(uint64(dst), kindBuffer); err != nil {
		return err
	}
	cmd.refs = append(cmd.refs, uint64(src), uint64(dst))
	cmd.ops = append(cmd.ops, func() error {
		from, err := v.d.boundBytes(uint64(src))
		if err != nil {
			return err
		}
		to, err := v.d.boundBytes(uint64(dst))
		if err != nil {
			return err
		}
		for _, r := range regions {
			if r.SrcOffset+r.Size > len(from) || r.DstOffset+r.Size > len(to) {
				v.d.violatef("buffer copy region %+v out of bounds", r)
				return errors.New("copy region out of bounds")
			}
			copy(to[r.DstOffset:r.DstOffset+r.Size], from[r.SrcOffset:r.SrcOffset+r.Size])
		}
		return nil
	})
	return nil
}

func (v *Device) CmdCopyBufferToImage(buffer gpu.CommandBuffer, src gpu.Buffer, dst gpu.Image, layout core1_0.ImageLayout, region gpu.BufferImageCopy) error {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	cmd, err := v.recording(buffer)
	if err != nil {
		return err
	}
	if _, err := v.d.lookup(uint64(src), kindBuffer); err != nil {
		return err
	}
	if _, err := v.d.lookup(uint64(dst), kindImage); err != nil {
		return err
	}
	if layout != core1_0.ImageLayoutTransferDstOptimal && layout != core1_0.ImageLayoutGeneral {
		v.d.violatef("copy to image %d in layout %s", dst, layout)
	}
	cmd.refs = append(cmd.refs, uint64(src), uint64(dst))
	cmd.ops = append(cmd.ops, func() error {
		img := v.d.objects[uint64(dst)]
		if img.layout != layout {
			v.d.violatef("copy to image %d expects layout %s but image is in %s", dst, layout, img.layout)
		}
		from, err := v.d.boundBytes(uint64(src))
		if err != nil {
			return err
		}
		to, err := v.d.boundBytes(uint64(dst))
		if err != nil {
			return err
		}
		n := region.Width * region.Height * texelSize(img.format)
		if region.BufferOffset+n > len(from) || n > len(to) {
			v.d.violatef("buffer to image copy of %d bytes out of bounds", n)
			return errors.New("copy region out of bounds")
		}
		copy(to[:n], from[region.BufferOffset:region.BufferOffset+n])
		return nil
	})
	return nil
}

func (v *Device) CmdCopyImageToBuffer(buffer gpu.CommandBuffer, src gpu.Image, layout core1_0.ImageLayout, dst gpu.Buffer, region gpu.BufferImageCopy) error {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	cmd, err := v.recording(buffer)
	if err != nil {
		return err
	}
	if _, err := v.d.lookup(uint64(src), kindImage); err != nil {
		return err
	}
	if _, err := v.d.lookup(uint64(dst), kindBuffer); err != nil {
		return err
	}
	if layout != core1_0.ImageLayoutTransferSrcOptimal && layout != core1_0.ImageLayoutGeneral {
		v.d.violatef("copy from image %d in layout %s", src, layout)
	}
	cmd.refs = append(cmd.refs, uint64(src), uint64(dst))
	cmd.ops = append(cmd.ops, func() error {
		img := v.d.objects[uint64(src)]
		if img.layout != layout {
			v.d.violatef("copy from image %d expects layout %s but image is in %s", src, layout, img.layout)
		}
		from, err := v.d.boundBytes(uint64(src))
		if err != nil {
			return err
		}
		to, err := v.d.boundBytes(uint64(dst))
		if err != nil {
			return err
		}
		n := region.Width * region.Height * texelSize(img.format)
		if region.BufferOffset+n > len(to) || n > len(from) {
			v.d.violatef("image to buffer copy of %d bytes out of bounds", n)
			return errors.New("copy region out of bounds")
		}
		copy(to[region.BufferOffset:region.BufferOffset+n], from[:n])
		return nil
	})
	return nil
}

func (v *Device) CmdPipelineBarrier(buffer gpu.CommandBuffer, srcStage, dstStage core1_0.PipelineStageFlags, barrier gpu.ImageBarrier) error {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	cmd, err := v.recording(buffer)
	if err != nil {
		return err
	}
	if _, err := v.d.lookup(uint64(barrier.Image), kindImage); err != nil {
		return err
	}
	if srcStage == 0 || dstStage == 0 {
		v.d.violatef("pipeline barrier with empty stage mask")
	}
	cmd.refs = append(cmd.refs, uint64(barrier.Image))
	cmd.ops = append(cmd.ops, func() error {
		img := v.d.objects[uint64(barrier.Image)]
		if barrier.OldLayout != core1_0.ImageLayoutUndefined && barrier.OldLayout != img.layout {
			v.d.violatef("barrier on image %d from %s but image is in %s", img.id, barrier.OldLayout, img.layout)
		}
		img.layout = barrier.NewLayout
		return nil
	})
	return nil
}

func (v *Device) CmdBeginRenderPass(buffer gpu.CommandBuffer, begin gpu.RenderPassBegin) error {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	cmd, err := v.recording(buffer)
	if err != nil {
		return err
	}
	if _, err := v.d.lookup(uint64(begin.RenderPass), kindRenderPass); err != nil {
		return err
	}
	fb, err := v.d.lookup(uint64(begin.Framebuffer), kindFramebuffer)
	if err != nil {
		return err
	}
	if cmd.inRenderPass {
		v.d.violatef("render pass begun twice in command buffer %d", buffer)
	}
	cmd.inRenderPass = true
	v.d.stats.RenderPassRecords++
	cmd.refs = append(cmd.refs, uint64(begin.RenderPass), fb.id)
	cmd.refs = append(cmd.refs, fb.attachments...)
	cmd.ops = append(cmd.ops, func() error {
		for i, viewID := range fb.attachments {
			view := v.d.objects[viewID]
			img := v.d.objects[view.image]
			if !img.alive {
				return errors.Newf("framebuffer %d attachment image %d destroyed", fb.id, img.id)
			}
			img.layout = fb.finalLayouts[i]
		}
		return nil
	})
	return nil
}

func (v *Device) CmdBindPipeline(buffer gpu.CommandBuffer, pipeline gpu.Pipeline) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	cmd, err := v.recording(buffer)
	if err != nil {
		return
	}
	if _, err := v.d.lookup(uint64(pipeline), kindPipeline); err != nil {
		return
	}
	cmd.pipeline = uint64(pipeline)
	cmd.refs = append(cmd.refs, uint64(pipeline))
}

func (v *Device) CmdBindVertexBuffer(buffer gpu.CommandBuffer, vertexBuffer gpu.Buffer) {
	v.bindResource(buffer, uint64(vertexBuffer), kindBuffer)
}

func (v *Device) CmdBindIndexBuffer(buffer gpu.CommandBuffer, indexBuffer gpu.Buffer, indexType core1_0.IndexType) {
	v.bindResource(buffer, uint64(indexBuffer), kindBuffer)
}

func (v *Device) CmdBindDescriptorSet(buffer gpu.CommandBuffer, layout gpu.PipelineLayout, set gpu.DescriptorSet) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	cmd, err := v.recording(buffer)
	if err != nil {
		return
	}
	if _, err := v.d.lookup(uint64(layout), kindPipelineLayout); err != nil {
		return
	}
	obj, err := v.d.lookup(uint64(set), kindDescriptorSet)
	if err != nil {
		return
	}
	cmd.refs = append(cmd.refs, uint64(layout), obj.id)
	for _, res := range obj.bindings {
		cmd.refs = append(cmd.refs, res)
	}
}

func (v *Device) bindResource(buffer gpu.CommandBuffer, id uint64, k kind) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	cmd, err := v.recording(buffer)
	if err != nil {
		return
	}
	if _, err := v.d.lookup(id, k); err != nil {
		return
	}
	cmd.refs = append(cmd.refs, id)
}

func (v *Device) CmdDrawIndexed(buffer gpu.CommandBuffer, indexCount int) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	cmd, err := v.recording(buffer)
	if err != nil {
		return
	}
	if !cmd.inRenderPass || cmd.pipeline == 0 {
		v.d.violatef("draw in command buffer %d without render pass and pipeline", buffer)
	}
	if indexCount <= 0 {
		v.d.violatef("draw with %d indices", indexCount)
	}
	cmd.ops = append(cmd.ops, func() error {
		v.d.stats.Draws++
		return nil
	})
}

func (v *Device) CmdEndRenderPass(buffer gpu.CommandBuffer) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	cmd, err := v.recording(buffer)
	if err != nil {
		return
	}
	if !cmd.inRenderPass {
		v.d.violatef("end render pass without begin in command buffer %d", buffer)
	}
	cmd.inRenderPass = false
}

func (v *Device) Submit(queue gpu.Queue, submits []gpu.SubmitInfo) error {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if err := v.d.injected("Submit"); err != nil {
		return err
	}
	if err := v.checkQueue(queue); err != nil {
		return err
	}
	for _, submit := range submits {
		if len(submit.WaitStages) != len(submit.WaitSemaphores) {
			v.d.violatef("submit has %d wait semaphores and %d wait stages", len(submit.WaitSemaphores), len(submit.WaitStages))
		}
		for _, s := range submit.WaitSemaphores {
			sem, err := v.d.lookup(uint64(s), kindSemaphore)
			if err != nil {
				return err
			}
			if !sem.signaled {
				v.d.violatef("submit waits on semaphore %d that has no pending signal", s)
			}
			sem.signaled = false
		}
		for _, b := range submit.CommandBuffers {
			if err := v.execute(b); err != nil {
				return err
			}
		}
		for _, s := range submit.SignalSemaphores {
			sem, err := v.d.lookup(uint64(s), kindSemaphore)
			if err != nil {
				return err
			}
			if sem.signaled {
				v.d.violatef("submit signals semaphore %d that is already signaled", s)
			}
			sem.signaled = true
		}
		v.d.stats.Submits++
	}
	return nil
}

func (v *Device) execute(buffer gpu.CommandBuffer) error {
	obj, err := v.d.lookup(uint64(buffer), kindCommandBuffer)
	if err != nil {
		return err
	}
	cmd := obj.cmd
	if !cmd.executable {
		v.d.violatef("command buffer %d submitted before it was ended", buffer)
		return errors.Newf("command buffer %d not executable", buffer)
	}
	if cmd.oneTime && cmd.submitted {
		v.d.violatef("one-time command buffer %d submitted twice", buffer)
	}
	for _, ref := range cmd.refs {
		if res, ok := v.d.objects[ref]; ok && !res.alive {
			v.d.violatef("command buffer %d references destroyed %s %d", buffer, res.kind, ref)
			return errors.Newf("command buffer %d invalidated", buffer)
		}
	}
	for _, op := range cmd.ops {
		if err := op(); err != nil {
			return err
		}
	}
	cmd.submitted = true
	return nil
}

func (v *Device) QueueWaitIdle(queue gpu.Queue) error {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.d.stats.WaitIdles++
	return v.checkQueue(queue)
}
