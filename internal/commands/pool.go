// Package commands owns command pools, the command buffers recorded once per
// swapchain image and the semaphore pair that orders a frame against
// presentation.
package commands

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/vulkan-renderer/internal/device"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// Pool allocates command buffers for the graphics queue family.
type Pool struct {
	ctx    *device.Context
	handle gpu.CommandPool
}

func NewPool(ctx *device.Context) (*Pool, error) {
	handle, err := ctx.Device().CreateCommandPool(ctx.GraphicsFamily())
	if err != nil {
		return nil, gpu.InitializationError(err, "create command pool")
	}
	return &Pool{ctx: ctx, handle: handle}, nil
}

func (p *Pool) Handle() gpu.CommandPool {
	return p.handle
}

// RunOneShot records a throwaway command buffer with record, submits it to the
// graphics queue and blocks until the queue is idle.
func (p *Pool) RunOneShot(record func(buffer gpu.CommandBuffer) error) error {
	dev := p.ctx.Device()

	buffers, err := dev.AllocateCommandBuffers(p.handle, 1)
	if err != nil {
		return gpu.AllocationError(err, "allocate one-shot command buffer")
	}
	buffer := buffers[0]
	defer dev.FreeCommandBuffers(p.handle, buffers)

	err = dev.BeginCommandBuffer(buffer, true)
	if err != nil {
		return gpu.SubmissionError(err, "begin one-shot command buffer")
	}

	err = record(buffer)
	if err != nil {
		return err
	}

	err = dev.EndCommandBuffer(buffer)
	if err != nil {
		return gpu.SubmissionError(err, "end one-shot command buffer")
	}

	err = dev.Submit(p.ctx.GraphicsQueue(), []gpu.SubmitInfo{
		{
			CommandBuffers: []gpu.CommandBuffer{buffer},
		},
	})
	if err != nil {
		return gpu.SubmissionError(err, "submit one-shot command buffer")
	}

	err = dev.QueueWaitIdle(p.ctx.GraphicsQueue())
	if err != nil {
		return gpu.SubmissionError(err, "wait for one-shot command buffer")
	}
	return nil
}

func (p *Pool) Destroy() {
	if p.handle == 0 {
		return
	}
	p.ctx.Device().DestroyCommandPool(p.handle)
	p.handle = 0
}

// Recorder fills the command buffer that will be submitted for one swapchain image.
type Recorder func(buffer gpu.CommandBuffer, imageIndex int) error

// FrameBuffers holds one prerecorded command buffer per swapchain image. They
// are reused every frame until the swapchain is rebuilt.
type FrameBuffers struct {
	pool    *Pool
	buffers []gpu.CommandBuffer
}

// Record allocates count command buffers and records each of them with rec.
func Record(pool *Pool, count int, rec Recorder) (*FrameBuffers, error) {
	dev := pool.ctx.Device()

	buffers, err := dev.AllocateCommandBuffers(pool.handle, count)
	if err != nil {
		return nil, gpu.AllocationError(err, "allocate %d frame command buffers", count)
	}
	frames := &FrameBuffers{pool: pool, buffers: buffers}

	for idx, buffer := range buffers {
		err = dev.BeginCommandBuffer(buffer, false)
		if err == nil {
			err = rec(buffer, idx)
		}
		if err == nil {
			err = dev.EndCommandBuffer(buffer)
		}
		if err != nil {
			frames.Free()
			return nil, errors.Wrapf(err, "record command buffer %d", idx)
		}
	}
	return frames, nil
}

func (f *FrameBuffers) Len() int {
	return len(f.buffers)
}

func (f *FrameBuffers) Buffer(imageIndex int) gpu.CommandBuffer {
	return f.buffers[imageIndex]
}

func (f *FrameBuffers) Free() {
	if len(f.buffers) == 0 {
		return
	}
	f.pool.ctx.Device().FreeCommandBuffers(f.pool.handle, f.buffers)
	f.buffers = nil
}
