package gpu

import (
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
)

type MemoryRequirements struct {
	Size           int
	Alignment      int
	MemoryTypeBits uint32
}

type BufferInfo struct {
	Size        int
	Usage       core1_0.BufferUsageFlags
	SharingMode core1_0.SharingMode
}

type ImageInfo struct {
	Width, Height int
	Format        core1_0.Format
	Tiling        core1_0.ImageTiling
	Usage         core1_0.ImageUsageFlags
	InitialLayout core1_0.ImageLayout
}

type ImageViewInfo struct {
	Image  Image
	Format core1_0.Format
	Aspect core1_0.ImageAspectFlags
}

type SamplerInfo struct {
	Filter           core1_0.Filter
	AddressMode      core1_0.SamplerAddressMode
	AnisotropyEnable bool
	MaxAnisotropy    float32
}

type DescriptorBinding struct {
	Binding int
	Type    core1_0.DescriptorType
	Count   int
	Stages  core1_0.ShaderStageFlags
}

type DescriptorPoolInfo struct {
	MaxSets int
	Sizes   map[core1_0.DescriptorType]int
}

type DescriptorWrite struct {
	Set     DescriptorSet
	Binding int
	Type    core1_0.DescriptorType

	// Buffer descriptors
	Buffer       Buffer
	BufferOffset int
	BufferRange  int

	// Image descriptors
	ImageView   ImageView
	Sampler     Sampler
	ImageLayout core1_0.ImageLayout
}

type ShaderStage struct {
	Stage  core1_0.ShaderStageFlags
	Module ShaderModule
	Entry  string
}

// GraphicsPipelineInfo carries the state a graphics pipeline is baked from.
// Fields left at their zero value mean "disabled".
type GraphicsPipelineInfo struct {
	Stages           []ShaderStage
	VertexBindings   []core1_0.VertexInputBindingDescription
	VertexAttributes []core1_0.VertexInputAttributeDescription
	Topology         core1_0.PrimitiveTopology
	Extent           core1_0.Extent2D
	CullMode         core1_0.CullModeFlags
	FrontFace        core1_0.FrontFace
	DepthTest        bool
	DepthWrite       bool
	DepthCompare     core1_0.CompareOp
	BlendEnable      bool

	Layout     PipelineLayout
	RenderPass RenderPass
	Subpass    int
}

type FramebufferInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Width       int
	Height      int
}

type BufferCopy struct {
	SrcOffset, DstOffset, Size int
}

type BufferImageCopy struct {
	BufferOffset  int
	Aspect        core1_0.ImageAspectFlags
	Width, Height int
}

type ImageBarrier struct {
	Image     Image
	OldLayout core1_0.ImageLayout
	NewLayout core1_0.ImageLayout
	SrcAccess core1_0.AccessFlags
	DstAccess core1_0.AccessFlags
	Aspect    core1_0.ImageAspectFlags
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      core1_0.Extent2D
	ClearColor  [4]float32
	ClearDepth  float32
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []core1_0.PipelineStageFlags
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

type SwapchainInfo struct {
	Surface       Surface
	MinImageCount int
	Format        khr_surface.SurfaceFormat
	Extent        core1_0.Extent2D
	Usage         core1_0.ImageUsageFlags
	SharingMode   core1_0.SharingMode
	QueueFamilies []int
	PresentMode   khr_surface.PresentMode
	OldSwapchain  Swapchain
}

type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchain      Swapchain
	ImageIndex     int
}

// Device is a logical device. Every Destroy/Free call accepts the null handle
// and ignores it.
type Device interface {
	Queue(family int) Queue
	WaitIdle() error
	Destroy()

	CreateBuffer(info BufferInfo) (Buffer, MemoryRequirements, error)
	DestroyBuffer(buffer Buffer)
	CreateImage(info ImageInfo) (Image, MemoryRequirements, error)
	DestroyImage(image Image)
	AllocateMemory(size int, memoryType int) (Memory, error)
	FreeMemory(memory Memory)
	BindBufferMemory(buffer Buffer, memory Memory, offset int) error
	BindImageMemory(image Image, memory Memory, offset int) error
	// MapMemory returns a byte view of host-visible memory valid until UnmapMemory.
	MapMemory(memory Memory, offset, size int) ([]byte, error)
	UnmapMemory(memory Memory)

	CreateImageView(info ImageViewInfo) (ImageView, error)
	DestroyImageView(view ImageView)
	CreateSampler(info SamplerInfo) (Sampler, error)
	DestroySampler(sampler Sampler)

	CreateShaderModule(code []uint32) (ShaderModule, error)
	DestroyShaderModule(module ShaderModule)
	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	CreatePipelineLayout(setLayouts []DescriptorSetLayout) (PipelineLayout, error)
	DestroyPipelineLayout(layout PipelineLayout)
	CreateRenderPass(info core1_0.RenderPassCreateInfo) (RenderPass, error)
	DestroyRenderPass(renderPass RenderPass)
	CreateGraphicsPipeline(info GraphicsPipelineInfo) (Pipeline, error)
	DestroyPipeline(pipeline Pipeline)
	CreateFramebuffer(info FramebufferInfo) (Framebuffer, error)
	DestroyFramebuffer(framebuffer Framebuffer)

	CreateDescriptorPool(info DescriptorPoolInfo) (DescriptorPool, error)
	DestroyDescriptorPool(pool DescriptorPool)
	AllocateDescriptorSets(pool DescriptorPool, layouts []DescriptorSetLayout) ([]DescriptorSet, error)
	UpdateDescriptorSets(writes []DescriptorWrite) error

	CreateCommandPool(family int) (CommandPool, error)
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffers(pool CommandPool, count int) ([]CommandBuffer, error)
	FreeCommandBuffers(pool CommandPool, buffers []CommandBuffer)
	BeginCommandBuffer(buffer CommandBuffer, oneTimeSubmit bool) error
	EndCommandBuffer(buffer CommandBuffer) error

	CmdCopyBuffer(buffer CommandBuffer, src, dst Buffer, regions []BufferCopy) error
	CmdCopyBufferToImage(buffer CommandBuffer, src Buffer, dst Image, layout core1_0.ImageLayout, region BufferImageCopy) error
	CmdCopyImageToBuffer(buffer CommandBuffer, src Image, layout core1_0.ImageLayout, dst Buffer, region BufferImageCopy) error
	CmdPipelineBarrier(buffer CommandBuffer, srcStage, dstStage core1_0.PipelineStageFlags, barrier ImageBarrier) error
	CmdBeginRenderPass(buffer CommandBuffer, begin RenderPassBegin) error
	CmdBindPipeline(buffer CommandBuffer, pipeline Pipeline)
	CmdBindVertexBuffer(buffer CommandBuffer, vertexBuffer Buffer)
	CmdBindIndexBuffer(buffer CommandBuffer, indexBuffer Buffer, indexType core1_0.IndexType)
	CmdBindDescriptorSet(buffer CommandBuffer, layout PipelineLayout, set DescriptorSet)
	CmdDrawIndexed(buffer CommandBuffer, indexCount int)
	CmdEndRenderPass(buffer CommandBuffer)

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(semaphore Semaphore)
	Submit(queue Queue, submits []SubmitInfo) error
	QueueWaitIdle(queue Queue) error

	CreateSwapchain(info SwapchainInfo) (Swapchain, error)
	DestroySwapchain(swapchain Swapchain)
	SwapchainImages(swapchain Swapchain) ([]Image, error)
	AcquireNextImage(swapchain Swapchain, signal Semaphore) (int, PresentStatus, error)
	QueuePresent(queue Queue, info PresentInfo) (PresentStatus, error)
}
