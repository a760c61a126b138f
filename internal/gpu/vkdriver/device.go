package vkdriver

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// swapchainImage is an image owned by a swapchain. It is never destroyed on
// its own.
type swapchainImage struct {
	image core1_0.Image
}

type swapchainEntry struct {
	swapchain khr_swapchain.Swapchain
	images    []gpu.Image
}

type Device struct {
	adapter         *Adapter
	device          core1_0.Device
	swapchainLoader khr_swapchain.Extension

	handles *handles
	queues  map[int]gpu.Queue
	// children are freed along with their pool
	children map[uint64][]uint64
}

var _ gpu.Device = (*Device)(nil)

func newDevice(adapter *Adapter, device core1_0.Device, families []int) *Device {
	d := &Device{
		adapter:         adapter,
		device:          device,
		swapchainLoader: khr_swapchain.CreateExtensionFromDevice(device),
		handles:         newHandles(),
		queues:          map[int]gpu.Queue{},
		children:        map[uint64][]uint64{},
	}
	for _, family := range families {
		d.queues[family] = gpu.Queue(d.handles.add(device.GetQueue(family, 0)))
	}
	return d
}

func unknown(kind string, id uint64) error {
	return errors.Newf("unknown %s handle %d", kind, id)
}

func (d *Device) Queue(family int) gpu.Queue {
	return d.queues[family]
}

func (d *Device) queue(handle gpu.Queue) (core1_0.Queue, error) {
	queue, ok := get[core1_0.Queue](d.handles, uint64(handle))
	if !ok {
		return nil, unknown("queue", uint64(handle))
	}
	return queue, nil
}

func (d *Device) WaitIdle() error {
	_, err := d.device.WaitIdle()
	return err
}

func (d *Device) Destroy() {
	if d.device == nil {
		return
	}
	d.device.Destroy(nil)
	d.device = nil
}

func (d *Device) CreateBuffer(info gpu.BufferInfo) (gpu.Buffer, gpu.MemoryRequirements, error) {
	buffer, _, err := d.device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        info.Size,
		Usage:       info.Usage,
		SharingMode: info.SharingMode,
	})
	if err != nil {
		return 0, gpu.MemoryRequirements{}, err
	}

	memRequirements := buffer.MemoryRequirements()
	return gpu.Buffer(d.handles.add(buffer)), gpu.MemoryRequirements{
		Size:           memRequirements.Size,
		Alignment:      memRequirements.Alignment,
		MemoryTypeBits: memRequirements.MemoryTypeBits,
	}, nil
}

func (d *Device) DestroyBuffer(handle gpu.Buffer) {
	if buffer, ok := take[core1_0.Buffer](d.handles, uint64(handle)); ok {
		buffer.Destroy(nil)
	}
}

func (d *Device) CreateImage(info gpu.ImageInfo) (gpu.Image, gpu.MemoryRequirements, error) {
	image, _, err := d.device.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        info.Format,
		Tiling:        info.Tiling,
		InitialLayout: info.InitialLayout,
		Usage:         info.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return 0, gpu.MemoryRequirements{}, err
	}

	memReqs := image.MemoryRequirements()
	return gpu.Image(d.handles.add(image)), gpu.MemoryRequirements{
		Size:           memReqs.Size,
		Alignment:      memReqs.Alignment,
		MemoryTypeBits: memReqs.MemoryTypeBits,
	}, nil
}

func (d *Device) DestroyImage(handle gpu.Image) {
	if image, ok := take[core1_0.Image](d.handles, uint64(handle)); ok {
		image.Destroy(nil)
	}
}

// image resolves both owned and swapchain images.
func (d *Device) image(handle gpu.Image) (core1_0.Image, error) {
	if image, ok := get[core1_0.Image](d.handles, uint64(handle)); ok {
		return image, nil
	}
	if image, ok := get[swapchainImage](d.handles, uint64(handle)); ok {
		return image.image, nil
	}
	return nil, unknown("image", uint64(handle))
}

func (d *Device) AllocateMemory(size int, memoryType int) (gpu.Memory, error) {
	memory, _, err := d.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryType,
	})
	if err != nil {
		return 0, err
	}
	return gpu.Memory(d.handles.add(memory)), nil
}

func (d *Device) FreeMemory(handle gpu.Memory) {
	if memory, ok := take[core1_0.DeviceMemory](d.handles, uint64(handle)); ok {
		memory.Free(nil)
	}
}

func (d *Device) BindBufferMemory(bufferHandle gpu.Buffer, memoryHandle gpu.Memory, offset int) error {
	buffer, ok := get[core1_0.Buffer](d.handles, uint64(bufferHandle))
	if !ok {
		return unknown("buffer", uint64(bufferHandle))
	}
	memory, ok := get[core1_0.DeviceMemory](d.handles, uint64(memoryHandle))
	if !ok {
		return unknown("memory", uint64(memoryHandle))
	}
	_, err := buffer.BindBufferMemory(memory, offset)
	return err
}

func (d *Device) BindImageMemory(imageHandle gpu.Image, memoryHandle gpu.Memory, offset int) error {
	image, ok := get[core1_0.Image](d.handles, uint64(imageHandle))
	if !ok {
		return unknown("image", uint64(imageHandle))
	}
	memory, ok := get[core1_0.DeviceMemory](d.handles, uint64(memoryHandle))
	if !ok {
		return unknown("memory", uint64(memoryHandle))
	}
	_, err := image.BindImageMemory(memory, offset)
	return err
}

func (d *Device) MapMemory(handle gpu.Memory, offset, size int) ([]byte, error) {
	memory, ok := get[core1_0.DeviceMemory](d.handles, uint64(handle))
	if !ok {
		return nil, unknown("memory", uint64(handle))
	}

	memoryPtr, _, err := memory.Map(offset, size, 0)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(memoryPtr), size), nil
}

func (d *Device) UnmapMemory(handle gpu.Memory) {
	if memory, ok := get[core1_0.DeviceMemory](d.handles, uint64(handle)); ok {
		memory.Unmap()
	}
}

func (d *Device) CreateImageView(info gpu.ImageViewInfo) (gpu.ImageView, error) {
	image, err := d.image(info.Image)
	if err != nil {
		return 0, err
	}

	imageView, _, err := d.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   info.Format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     info.Aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return 0, err
	}
	return gpu.ImageView(d.handles.add(imageView)), nil
}

func (d *Device) DestroyImageView(handle gpu.ImageView) {
	if view, ok := take[core1_0.ImageView](d.handles, uint64(handle)); ok {
		view.Destroy(nil)
	}
}

func (d *Device) CreateSampler(info gpu.SamplerInfo) (gpu.Sampler, error) {
	sampler, _, err := d.device.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    info.Filter,
		MinFilter:    info.Filter,
		AddressModeU: info.AddressMode,
		AddressModeV: info.AddressMode,
		AddressModeW: info.AddressMode,

		AnisotropyEnable: info.AnisotropyEnable,
		MaxAnisotropy:    info.MaxAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
	})
	if err != nil {
		return 0, err
	}
	return gpu.Sampler(d.handles.add(sampler)), nil
}

func (d *Device) DestroySampler(handle gpu.Sampler) {
	if sampler, ok := take[core1_0.Sampler](d.handles, uint64(handle)); ok {
		sampler.Destroy(nil)
	}
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	module, _, err := d.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return 0, err
	}
	return gpu.ShaderModule(d.handles.add(module)), nil
}

func (d *Device) DestroyShaderModule(handle gpu.ShaderModule) {
	if module, ok := take[core1_0.ShaderModule](d.handles, uint64(handle)); ok {
		module.Destroy(nil)
	}
}

func (d *Device) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	var layoutBindings []core1_0.DescriptorSetLayoutBinding
	for _, binding := range bindings {
		layoutBindings = append(layoutBindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         binding.Binding,
			DescriptorType:  binding.Type,
			DescriptorCount: binding.Count,
			StageFlags:      binding.Stages,
		})
	}

	layout, _, err := d.device.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: layoutBindings,
	})
	if err != nil {
		return 0, err
	}
	return gpu.DescriptorSetLayout(d.handles.add(layout)), nil
}

func (d *Device) DestroyDescriptorSetLayout(handle gpu.DescriptorSetLayout) {
	if layout, ok := take[core1_0.DescriptorSetLayout](d.handles, uint64(handle)); ok {
		layout.Destroy(nil)
	}
}

func (d *Device) CreatePipelineLayout(setLayouts []gpu.DescriptorSetLayout) (gpu.PipelineLayout, error) {
	layouts, ok := all[core1_0.DescriptorSetLayout](d.handles, setLayouts)
	if !ok {
		return 0, errors.New("unknown descriptor set layout handle")
	}

	layout, _, err := d.device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: layouts,
	})
	if err != nil {
		return 0, err
	}
	return gpu.PipelineLayout(d.handles.add(layout)), nil
}

func (d *Device) DestroyPipelineLayout(handle gpu.PipelineLayout) {
	if layout, ok := take[core1_0.PipelineLayout](d.handles, uint64(handle)); ok {
		layout.Destroy(nil)
	}
}

func (d *Device) CreateRenderPass(info core1_0.RenderPassCreateInfo) (gpu.RenderPass, error) {
	renderPass, _, err := d.device.CreateRenderPass(nil, info)
	if err != nil {
		return 0, err
	}
	return gpu.RenderPass(d.handles.add(renderPass)), nil
}

func (d *Device) DestroyRenderPass(handle gpu.RenderPass) {
	if renderPass, ok := take[core1_0.RenderPass](d.handles, uint64(handle)); ok {
		renderPass.Destroy(nil)
	}
}

func (d *Device) CreateGraphicsPipeline(info gpu.GraphicsPipelineInfo) (gpu.Pipeline, error) {
	var stages []core1_0.PipelineShaderStageCreateInfo
	for _, stage := range info.Stages {
		module, ok := get[core1_0.ShaderModule](d.handles, uint64(stage.Module))
		if !ok {
			return 0, unknown("shader module", uint64(stage.Module))
		}
		stages = append(stages, core1_0.PipelineShaderStageCreateInfo{
			Stage:  stage.Stage,
			Module: module,
			Name:   stage.Entry,
		})
	}

	layout, ok := get[core1_0.PipelineLayout](d.handles, uint64(info.Layout))
	if !ok {
		return 0, unknown("pipeline layout", uint64(info.Layout))
	}
	renderPass, ok := get[core1_0.RenderPass](d.handles, uint64(info.RenderPass))
	if !ok {
		return 0, unknown("render pass", uint64(info.RenderPass))
	}

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   info.VertexBindings,
		VertexAttributeDescriptions: info.VertexAttributes,
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               info.Topology,
		PrimitiveRestartEnable: false,
	}

	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				X:        0,
				Y:        0,
				Width:    float32(info.Extent.Width),
				Height:   float32(info.Extent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: info.Extent,
			},
		},
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    info.CullMode,
		FrontFace:   info.FrontFace,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
	}

	depthStencil := &core1_0.PipelineDepthStencilStateCreateInfo{
		DepthTestEnable:  info.DepthTest,
		DepthWriteEnable: info.DepthWrite,
		DepthCompareOp:   info.DepthCompare,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled:   info.BlendEnable,
				ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	pipelines, _, err := d.device.CreateGraphicsPipelines(nil, nil, []core1_0.GraphicsPipelineCreateInfo{
		{
			Stages:             stages,
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			DepthStencilState:  depthStencil,
			ColorBlendState:    colorBlend,
			Layout:             layout,
			RenderPass:         renderPass,
			Subpass:            info.Subpass,
			BasePipelineIndex:  -1,
		},
	})
	if err != nil {
		return 0, err
	}
	return gpu.Pipeline(d.handles.add(pipelines[0])), nil
}

func (d *Device) DestroyPipeline(handle gpu.Pipeline) {
	if pipeline, ok := take[core1_0.Pipeline](d.handles, uint64(handle)); ok {
		pipeline.Destroy(nil)
	}
}

func (d *Device) CreateFramebuffer(info gpu.FramebufferInfo) (gpu.Framebuffer, error) {
	renderPass, ok := get[core1_0.RenderPass](d.handles, uint64(info.RenderPass))
	if !ok {
		return 0, unknown("render pass", uint64(info.RenderPass))
	}
	attachments, ok := all[core1_0.ImageView](d.handles, info.Attachments)
	if !ok {
		return 0, errors.New("unknown framebuffer attachment handle")
	}

	framebuffer, _, err := d.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  renderPass,
		Layers:      1,
		Attachments: attachments,
		Width:       info.Width,
		Height:      info.Height,
	})
	if err != nil {
		return 0, err
	}
	return gpu.Framebuffer(d.handles.add(framebuffer)), nil
}

func (d *Device) DestroyFramebuffer(handle gpu.Framebuffer) {
	if framebuffer, ok := take[core1_0.Framebuffer](d.handles, uint64(handle)); ok {
		framebuffer.Destroy(nil)
	}
}

func (d *Device) CreateDescriptorPool(info gpu.DescriptorPoolInfo) (gpu.DescriptorPool, error) {
	var poolSizes []core1_0.DescriptorPoolSize
	for descriptorType, count := range info.Sizes {
		poolSizes = append(poolSizes, core1_0.DescriptorPoolSize{
			Type:            descriptorType,
			DescriptorCount: count,
		})
	}

	pool, _, err := d.device.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   info.MaxSets,
		PoolSizes: poolSizes,
	})
	if err != nil {
		return 0, err
	}
	return gpu.DescriptorPool(d.handles.add(pool)), nil
}

func (d *Device) DestroyDescriptorPool(handle gpu.DescriptorPool) {
	pool, ok := take[core1_0.DescriptorPool](d.handles, uint64(handle))
	if !ok {
		return
	}
	d.dropChildren(uint64(handle))
	pool.Destroy(nil)
}

func (d *Device) dropChildren(parent uint64) {
	for _, child := range d.children[parent] {
		d.handles.remove(child)
	}
	delete(d.children, parent)
}

func (d *Device) AllocateDescriptorSets(poolHandle gpu.DescriptorPool, setLayouts []gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	pool, ok := get[core1_0.DescriptorPool](d.handles, uint64(poolHandle))
	if !ok {
		return nil, unknown("descriptor pool", uint64(poolHandle))
	}
	layouts, ok := all[core1_0.DescriptorSetLayout](d.handles, setLayouts)
	if !ok {
		return nil, errors.New("unknown descriptor set layout handle")
	}

	sets, _, err := d.device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: pool,
		SetLayouts:     layouts,
	})
	if err != nil {
		return nil, err
	}

	out := make([]gpu.DescriptorSet, 0, len(sets))
	for _, set := range sets {
		id := d.handles.add(set)
		d.children[uint64(poolHandle)] = append(d.children[uint64(poolHandle)], id)
		out = append(out, gpu.DescriptorSet(id))
	}
	return out, nil
}

func (d *Device) UpdateDescriptorSets(writes []gpu.DescriptorWrite) error {
	var descriptorWrites []core1_0.WriteDescriptorSet
	for _, write := range writes {
		set, ok := get[core1_0.DescriptorSet](d.handles, uint64(write.Set))
		if !ok {
			return unknown("descriptor set", uint64(write.Set))
		}

		descriptorWrite := core1_0.WriteDescriptorSet{
			DstSet:          set,
			DstBinding:      write.Binding,
			DstArrayElement: 0,

			DescriptorType: write.Type,
		}

		if write.Buffer != 0 {
			buffer, ok := get[core1_0.Buffer](d.handles, uint64(write.Buffer))
			if !ok {
				return unknown("buffer", uint64(write.Buffer))
			}
			descriptorWrite.BufferInfo = []core1_0.DescriptorBufferInfo{
				{
					Buffer: buffer,
					Offset: write.BufferOffset,
					Range:  write.BufferRange,
				},
			}
		} else {
			view, ok := get[core1_0.ImageView](d.handles, uint64(write.ImageView))
			if !ok {
				return unknown("image view", uint64(write.ImageView))
			}
			sampler, ok := get[core1_0.Sampler](d.handles, uint64(write.Sampler))
			if !ok {
				return unknown("sampler", uint64(write.Sampler))
			}
			descriptorWrite.ImageInfo = []core1_0.DescriptorImageInfo{
				{
					ImageView:   view,
					Sampler:     sampler,
					ImageLayout: write.ImageLayout,
				},
			}
		}
		descriptorWrites = append(descriptorWrites, descriptorWrite)
	}

	return d.device.UpdateDescriptorSets(descriptorWrites, nil)
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	semaphore, _, err := d.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return 0, err
	}
	return gpu.Semaphore(d.handles.add(semaphore)), nil
}

func (d *Device) DestroySemaphore(handle gpu.Semaphore) {
	if semaphore, ok := take[core1_0.Semaphore](d.handles, uint64(handle)); ok {
		semaphore.Destroy(nil)
	}
}
