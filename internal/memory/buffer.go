// Package memory owns buffers and images together with the device memory
// they are bound to, and moves bytes between the host and device-local
// resources through short-lived staging buffers.
package memory

import (
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/device"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// Buffer is a buffer handle bound once, at offset 0, to an allocation of its own.
type Buffer struct {
	dev        gpu.Device
	handle     gpu.Buffer
	memory     gpu.Memory
	size       int
	allocation int
	memoryType int
	properties core1_0.MemoryPropertyFlags
}

// NewBuffer creates a buffer of size bytes backed by memory with every flag in
// properties. A zero size is legal: the buffer holds no data but still owns a
// minimal allocation so it can be bound and destroyed like any other.
func NewBuffer(ctx *device.Context, size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (*Buffer, error) {
	if size < 0 {
		return nil, gpu.AllocationError(nil, "negative buffer size %d", size)
	}
	dev := ctx.Device()

	handle, reqs, err := dev.CreateBuffer(gpu.BufferInfo{
		Size:        max(size, 1),
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, gpu.AllocationError(err, "create buffer of %d bytes", size)
	}

	memoryType, err := ctx.FindMemoryType(reqs.MemoryTypeBits, properties)
	if err != nil {
		dev.DestroyBuffer(handle)
		return nil, err
	}

	mem, err := dev.AllocateMemory(reqs.Size, memoryType)
	if err != nil {
		dev.DestroyBuffer(handle)
		return nil, gpu.AllocationError(err, "allocate %d bytes from memory type %d", reqs.Size, memoryType)
	}

	err = dev.BindBufferMemory(handle, mem, 0)
	if err != nil {
		dev.DestroyBuffer(handle)
		dev.FreeMemory(mem)
		return nil, gpu.AllocationError(err, "bind buffer memory")
	}

	return &Buffer{
		dev:        dev,
		handle:     handle,
		memory:     mem,
		size:       size,
		allocation: reqs.Size,
		memoryType: memoryType,
		properties: properties,
	}, nil
}

func (b *Buffer) Handle() gpu.Buffer { return b.handle }
func (b *Buffer) Memory() gpu.Memory { return b.memory }
func (b *Buffer) Size() int { return b.size }

// AllocationSize is the size of the bound allocation, at least Size.
func (b *Buffer) AllocationSize() int { return b.allocation }
func (b *Buffer) MemoryType() int { return b.memoryType }

func (b *Buffer) HostVisible() bool {
	return b.properties&core1_0.MemoryPropertyHostVisible != 0
}

// Write copies data into a host-visible buffer at offset.
func (b *Buffer) Write(offset int, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if !b.HostVisible() {
		return gpu.AllocationError(nil, "buffer %d is not host visible", b.handle)
	}
	if offset < 0 || offset+len(data) > b.size {
		return gpu.AllocationError(nil, "write of %d bytes at %d overflows buffer of %d", len(data), offset, b.size)
	}

	mapped, err := b.dev.MapMemory(b.memory, offset, len(data))
	if err != nil {
		return gpu.AllocationError(err, "map buffer memory")
	}
	defer b.dev.UnmapMemory(b.memory)

	copy(mapped, data)
	return nil
}

// Read copies size bytes out of a host-visible buffer starting at offset.
func (b *Buffer) Read(offset, size int) ([]byte, error) {
	out := make([]byte, size)
	if size == 0 {
		return out, nil
	}
	if !b.HostVisible() {
		return nil, gpu.AllocationError(nil, "buffer %d is not host visible", b.handle)
	}
	if offset < 0 || offset+size > b.size {
		return nil, gpu.AllocationError(nil, "read of %d bytes at %d overflows buffer of %d", size, offset, b.size)
	}

	mapped, err := b.dev.MapMemory(b.memory, offset, size)
	if err != nil {
		return nil, gpu.AllocationError(err, "map buffer memory")
	}
	defer b.dev.UnmapMemory(b.memory)

	copy(out, mapped)
	return out, nil
}

// Destroy releases the handle before the memory it is bound to.
func (b *Buffer) Destroy() {
	if b.handle != 0 {
		b.dev.DestroyBuffer(b.handle)
		b.handle = 0
	}
	if b.memory != 0 {
		b.dev.FreeMemory(b.memory)
		b.memory = 0
	}
}
