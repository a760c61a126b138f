package fakegpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

func openDevice(t *testing.T) (*Instance, *Device) {
	t.Helper()
	inst := NewInstance()
	dev, err := inst.Adapter(0).OpenDevice(gpu.DeviceOptions{QueueFamilies: []int{0}})
	require.NoError(t, err)
	return inst, dev.(*Device)
}

func newBoundBuffer(t *testing.T, dev *Device, size int) (gpu.Buffer, gpu.Memory) {
	t.Helper()
	buffer, req, err := dev.CreateBuffer(gpu.BufferInfo{Size: size, Usage: core1_0.BufferUsageTransferSrc})
	require.NoError(t, err)
	memory, err := dev.AllocateMemory(req.Size, 1)
	require.NoError(t, err)
	require.NoError(t, dev.BindBufferMemory(buffer, memory, 0))
	return buffer, memory
}

func TestUseAfterDestroy(t *testing.T) {
	_, dev := openDevice(t)
	buffer, memory := newBoundBuffer(t, dev, 16)

	dev.DestroyBuffer(buffer)
	dev.FreeMemory(memory)
	assert.Empty(t, dev.Violations())

	_, err := dev.MapMemory(memory, 0, 16)
	require.Error(t, err)
	assert.Len(t, dev.Violations(), 1)
	assert.Contains(t, dev.Violations()[0], "use of destroyed memory")
}

func TestDestroyWithLiveDependents(t *testing.T) {
	_, dev := openDevice(t)
	buffer, memory := newBoundBuffer(t, dev, 16)

	dev.FreeMemory(memory)
	require.Len(t, dev.Violations(), 1)
	assert.Contains(t, dev.Violations()[0], "still depends on it")
	dev.DestroyBuffer(buffer)
}

func TestTeardownInstanceLast(t *testing.T) {
	inst, dev := openDevice(t)
	surface := inst.CreateSurface()

	inst.Destroy()
	assert.Len(t, inst.Violations(), 2, "surface and device still live")

	dev.Destroy()
	inst.DestroySurface(surface)
	assert.Equal(t, 0, inst.LiveObjects())
}

func TestZeroSizeBufferIsInvalid(t *testing.T) {
	_, dev := openDevice(t)
	_, _, err := dev.CreateBuffer(gpu.BufferInfo{Size: 0})
	require.Error(t, err)
	assert.NotEmpty(t, dev.Violations())
}

func TestRequirementsAreAligned(t *testing.T) {
	_, dev := openDevice(t)
	buffer, req, err := dev.CreateBuffer(gpu.BufferInfo{Size: 300})
	require.NoError(t, err)
	defer dev.DestroyBuffer(buffer)

	assert.Equal(t, 512, req.Size)
	assert.Equal(t, 256, req.Alignment)
	assert.Equal(t, uint32(0b111), req.MemoryTypeBits)
}

func TestMapRules(t *testing.T) {
	_, dev := openDevice(t)

	local, err := dev.AllocateMemory(64, 0)
	require.NoError(t, err)
	_, err = dev.MapMemory(local, 0, 64)
	require.Error(t, err, "device-local memory cannot be mapped")

	visible, err := dev.AllocateMemory(64, 1)
	require.NoError(t, err)
	data, err := dev.MapMemory(visible, 0, 64)
	require.NoError(t, err)
	assert.Len(t, data, 64)
	_, err = dev.MapMemory(visible, 0, 64)
	require.Error(t, err, "double map")
	dev.UnmapMemory(visible)

	assert.Len(t, dev.Violations(), 2)
}

func TestSubmitReplaysCopies(t *testing.T) {
	_, dev := openDevice(t)
	src, srcMemory := newBoundBuffer(t, dev, 8)
	dst, _ := newBoundBuffer(t, dev, 8)

	data, err := dev.MapMemory(srcMemory, 0, 8)
	require.NoError(t, err)
	copy(data, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	dev.UnmapMemory(srcMemory)

	pool, err := dev.CreateCommandPool(0)
	require.NoError(t, err)
	buffers, err := dev.AllocateCommandBuffers(pool, 1)
	require.NoError(t, err)

	require.NoError(t, dev.BeginCommandBuffer(buffers[0], true))
	require.NoError(t, dev.CmdCopyBuffer(buffers[0], src, dst, []gpu.BufferCopy{{SrcOffset: 2, DstOffset: 0, Size: 4}}))
	require.NoError(t, dev.EndCommandBuffer(buffers[0]))

	assert.Equal(t, make([]byte, 8), dev.Contents(dst), "nothing happens until submit")
	require.NoError(t, dev.Submit(dev.Queue(0), []gpu.SubmitInfo{{CommandBuffers: buffers}}))
	assert.Equal(t, []byte{3, 4, 5, 6, 0, 0, 0, 0}, dev.Contents(dst))

	require.NoError(t, dev.Submit(dev.Queue(0), []gpu.SubmitInfo{{CommandBuffers: buffers}}))
	require.Len(t, dev.Violations(), 1)
	assert.Contains(t, dev.Violations()[0], "one-time command buffer")
}

func TestSubmitDetectsDestroyedReferences(t *testing.T) {
	_, dev := openDevice(t)
	src, srcMemory := newBoundBuffer(t, dev, 8)
	dst, _ := newBoundBuffer(t, dev, 8)

	pool, err := dev.CreateCommandPool(0)
	require.NoError(t, err)
	buffers, err := dev.AllocateCommandBuffers(pool, 1)
	require.NoError(t, err)
	require.NoError(t, dev.BeginCommandBuffer(buffers[0], false))
	require.NoError(t, dev.CmdCopyBuffer(buffers[0], src, dst, []gpu.BufferCopy{{Size: 8}}))
	require.NoError(t, dev.EndCommandBuffer(buffers[0]))

	dev.DestroyBuffer(src)
	dev.FreeMemory(srcMemory)

	err = dev.Submit(dev.Queue(0), []gpu.SubmitInfo{{CommandBuffers: buffers}})
	require.Error(t, err)
	assert.Contains(t, dev.Violations()[len(dev.Violations())-1], "references destroyed buffer")
}

func TestSemaphoreDiscipline(t *testing.T) {
	_, dev := openDevice(t)
	sem, err := dev.CreateSemaphore()
	require.NoError(t, err)

	require.NoError(t, dev.Submit(dev.Queue(0), []gpu.SubmitInfo{{
		WaitSemaphores: []gpu.Semaphore{sem},
		WaitStages:     []core1_0.PipelineStageFlags{core1_0.PipelineStageTopOfPipe},
	}}))
	require.Len(t, dev.Violations(), 1)
	assert.Contains(t, dev.Violations()[0], "no pending signal")
}

func TestDescriptorPoolFreesSets(t *testing.T) {
	_, dev := openDevice(t)
	layout, err := dev.CreateDescriptorSetLayout([]gpu.DescriptorBinding{{Binding: 0, Type: core1_0.DescriptorTypeUniformBuffer, Count: 1}})
	require.NoError(t, err)
	pool, err := dev.CreateDescriptorPool(gpu.DescriptorPoolInfo{MaxSets: 1})
	require.NoError(t, err)

	_, err = dev.AllocateDescriptorSets(pool, []gpu.DescriptorSetLayout{layout})
	require.NoError(t, err)
	_, err = dev.AllocateDescriptorSets(pool, []gpu.DescriptorSetLayout{layout})
	require.Error(t, err, "pool holds a single set")

	dev.DestroyDescriptorPool(pool)
	dev.DestroyDescriptorSetLayout(layout)
	assert.Empty(t, dev.Violations())
}
