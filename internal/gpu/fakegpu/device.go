package fakegpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// Device simulates a logical device.
type Device struct {
	d       *driver
	id      uint64
	adapter *Adapter
	queues  map[int]gpu.Queue

	// one-shot overrides for the next acquire and present
	acquireStatus gpu.PresentStatus
	presentStatus gpu.PresentStatus
}

var _ gpu.Device = (*Device)(nil)

// Stats returns the work counters.
func (v *Device) Stats() Stats {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	return v.d.stats
}

// Fail makes the next call to op return err.
func (v *Device) Fail(op string, err error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.d.failures[op] = err
}

// LiveObjects counts objects that have not been destroyed.
func (v *Device) LiveObjects() int {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	return v.d.liveObjects()
}

// Violations returns every validation message recorded so far.
func (v *Device) Violations() []string {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	return append([]string(nil), v.d.violations...)
}

// ImageLayout reports the layout the device believes image is in.
func (v *Device) ImageLayout(image gpu.Image) core1_0.ImageLayout {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	obj, ok := v.d.objects[uint64(image)]
	if !ok {
		return core1_0.ImageLayoutUndefined
	}
	return obj.layout
}

// MemoryType reports the memory type index memory was allocated from.
func (v *Device) MemoryType(memory gpu.Memory) int {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	obj, ok := v.d.objects[uint64(memory)]
	if !ok {
		return -1
	}
	return obj.memType
}

// AllocationSize reports the size memory was allocated with.
func (v *Device) AllocationSize(memory gpu.Memory) int {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	obj, ok := v.d.objects[uint64(memory)]
	if !ok {
		return 0
	}
	return len(obj.bytes)
}

// Contents returns a copy of the bytes bound to buffer, bypassing mapping rules.
func (v *Device) Contents(buffer gpu.Buffer) []byte {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	obj, ok := v.d.objects[uint64(buffer)]
	if !ok || obj.memory == 0 {
		return nil
	}
	mem := v.d.objects[obj.memory]
	return append([]byte(nil), mem.bytes[obj.offset:obj.offset+obj.size]...)
}

func (v *Device) Queue(family int) gpu.Queue {
	q, ok := v.queues[family]
	if !ok {
		v.d.mu.Lock()
		v.d.violatef("queue family %d was not requested at device creation", family)
		v.d.mu.Unlock()
	}
	return q
}

func (v *Device) checkQueue(queue gpu.Queue) error {
	for _, q := range v.queues {
		if q == queue {
			return nil
		}
	}
	v.d.violatef("unknown queue %d", queue)
	return errors.Newf("unknown queue %d", queue)
}

func (v *Device) WaitIdle() error {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.d.stats.WaitIdles++
	return nil
}

func (v *Device) Destroy() {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.d.destroy(v.id, kindDevice)
}

func (v *Device) CreateBuffer(info gpu.BufferInfo) (gpu.Buffer, gpu.MemoryRequirements, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if info.Size <= 0 {
		v.d.violatef("buffer size must be greater than 0, got %d", info.Size)
		return 0, gpu.MemoryRequirements{}, errors.Newf("invalid buffer size %d", info.Size)
	}
	obj := v.d.create(kindBuffer, v.id)
	obj.size = info.Size
	return gpu.Buffer(obj.id), v.requirements(info.Size), nil
}

func (v *Device) requirements(size int) gpu.MemoryRequirements {
	bits := v.adapter.cfg.ResourceTypeBits
	if bits == 0 {
		bits = 1<<uint(len(v.adapter.cfg.MemoryTypes)) - 1
	}
	return gpu.MemoryRequirements{
		Size:           alignUp(size, v.adapter.cfg.Alignment),
		Alignment:      v.adapter.cfg.Alignment,
		MemoryTypeBits: bits,
	}
}

func (v *Device) DestroyBuffer(buffer gpu.Buffer) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.d.destroy(uint64(buffer), kindBuffer)
}

func (v *Device) CreateImage(info gpu.ImageInfo) (gpu.Image, gpu.MemoryRequirements, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if info.Width <= 0 || info.Height <= 0 {
		v.d.violatef("image extent must be positive, got %dx%d", info.Width, info.Height)
		return 0, gpu.MemoryRequirements{}, errors.Newf("invalid image extent %dx%d", info.Width, info.Height)
	}
	if info.InitialLayout != core1_0.ImageLayoutUndefined && info.InitialLayout != core1_0.ImageLayoutPreInitialized {
		v.d.violatef("image initial layout must be undefined or preinitialized, got %s", info.InitialLayout)
	}
	obj := v.d.create(kindImage, v.id)
	obj.width, obj.height = info.Width, info.Height
	obj.format = info.Format
	obj.layout = info.InitialLayout
	obj.size = info.Width * info.Height * texelSize(info.Format)
	return gpu.Image(obj.id), v.requirements(obj.size), nil
}

func (v *Device) DestroyImage(image gpu.Image) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if obj, ok := v.d.objects[uint64(image)]; ok && obj.chain != nil {
		v.d.violatef("swapchain image %d cannot be destroyed directly", image)
		return
	}
	v.d.destroy(uint64(image), kindImage)
}

func (v *Device) AllocateMemory(size int, memoryType int) (gpu.Memory, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if err := v.d.injected("AllocateMemory"); err != nil {
		return 0, err
	}
	if memoryType < 0 || memoryType >= len(v.adapter.cfg.MemoryTypes) {
		v.d.violatef("memory type %d out of range", memoryType)
		return 0, errors.Newf("memory type %d out of range", memoryType)
	}
	obj := v.d.create(kindMemory, v.id)
	obj.bytes = make([]byte, size)
	obj.memType = memoryType
	obj.property = v.adapter.cfg.MemoryTypes[memoryType].PropertyFlags
	return gpu.Memory(obj.id), nil
}

func (v *Device) FreeMemory(memory gpu.Memory) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.d.destroy(uint64(memory), kindMemory)
}

func (v *Device) bind(obj *object, memory gpu.Memory, offset int) error {
	mem, err := v.d.lookup(uint64(memory), kindMemory)
	if err != nil {
		return err
	}
	if obj.memory != 0 {
		v.d.violatef("%s %d is already bound to memory %d", obj.kind, obj.id, obj.memory)
		return errors.Newf("%s %d already bound", obj.kind, obj.id)
	}
	req := v.requirements(obj.size)
	if req.MemoryTypeBits&(1<<uint(mem.memType)) == 0 {
		v.d.violatef("memory type %d not allowed for %s %d", mem.memType, obj.kind, obj.id)
	}
	if offset+req.Size > len(mem.bytes) {
		v.d.violatef("%s %d needs %d bytes at offset %d, memory %d has %d", obj.kind, obj.id, req.Size, offset, mem.id, len(mem.bytes))
		return errors.Newf("memory %d too small", mem.id)
	}
	obj.memory = mem.id
	obj.offset = offset
	obj.deps = append(obj.deps, mem.id)
	return nil
}

func (v *Device) BindBufferMemory(buffer gpu.Buffer, memory gpu.Memory, offset int) error {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	obj, err := v.d.lookup(uint64(buffer), kindBuffer)
	if err != nil {
		return err
	}
	return v.bind(obj, memory, offset)
}

func (v *Device) BindImageMemory(image gpu.Image, memory gpu.Memory, offset int) error {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	obj, err := v.d.lookup(uint64(image), kindImage)
	if err != nil {
		return err
	}
	return v.bind(obj, memory, offset)
}

func (v *Device) MapMemory(memory gpu.Memory, offset, size int) ([]byte, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	mem, err := v.d.lookup(uint64(memory), kindMemory)
	if err != nil {
		return nil, err
	}
	if mem.property&core1_0.MemoryPropertyHostVisible == 0 {
		v.d.violatef("memory %d is not host visible", mem.id)
		return nil, errors.Newf("memory %d is not host visible", mem.id)
	}
	if mem.mapped {
		v.d.violatef("memory %d is already mapped", mem.id)
		return nil, errors.Newf("memory %d already mapped", mem.id)
	}
	if offset < 0 || size < 0 || offset+size > len(mem.bytes) {
		v.d.violatef("map range [%d,%d) outside memory %d of %d bytes", offset, offset+size, mem.id, len(mem.bytes))
		return nil, errors.Newf("map range out of bounds")
	}
	mem.mapped = true
	return mem.bytes[offset : offset+size : offset+size], nil
}

func (v *Device) UnmapMemory(memory gpu.Memory) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	mem, err := v.d.lookup(uint64(memory), kindMemory)
	if err != nil {
		return
	}
	if !mem.mapped {
		v.d.violatef("memory %d is not mapped", mem.id)
	}
	mem.mapped = false
}

func (v *Device) CreateImageView(info gpu.ImageViewInfo) (gpu.ImageView, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	img, err := v.d.lookup(uint64(info.Image), kindImage)
	if err != nil {
		return 0, err
	}
	if img.chain == nil && img.memory == 0 {
		v.d.violatef("image %d has no memory bound", img.id)
	}
	obj := v.d.create(kindImageView, v.id, img.id)
	obj.image = img.id
	obj.aspect = info.Aspect
	return gpu.ImageView(obj.id), nil
}

func (v *Device) DestroyImageView(view gpu.ImageView) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.d.destroy(uint64(view), kindImageView)
}

func (v *Device) CreateSampler(info gpu.SamplerInfo) (gpu.Sampler, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if info.AnisotropyEnable && info.MaxAnisotropy > v.adapter.cfg.Limits.MaxSamplerAnisotropy {
		v.d.violatef("max anisotropy %v exceeds limit %v", info.MaxAnisotropy, v.adapter.cfg.Limits.MaxSamplerAnisotropy)
	}
	return gpu.Sampler(v.d.create(kindSampler, v.id).id), nil
}

func (v *Device) DestroySampler(sampler gpu.Sampler) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.d.destroy(uint64(sampler), kindSampler)
}

func (v *Device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if len(code) == 0 {
		v.d.violatef("shader module code is empty")
		return 0, errors.New("empty shader code")
	}
	return gpu.ShaderModule(v.d.create(kindShaderModule, v.id).id), nil
}

func (v *Device) DestroyShaderModule(module gpu.ShaderModule) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.d.destroy(uint64(module), kindShaderModule)
}

func (v *Device) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	seen := map[int]bool{}
	for _, b := range bindings {
		if seen[b.Binding] {
			v.d.violatef("descriptor binding %d declared twice", b.Binding)
		}
		seen[b.Binding] = true
	}
	return gpu.DescriptorSetLayout(v.d.create(kindDescriptorSetLayout, v.id).id), nil
}

func (v *Device) DestroyDescriptorSetLayout(layout gpu.DescriptorSetLayout) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.d.destroy(uint64(layout), kindDescriptorSetLayout)
}

func (v *Device) CreatePipelineLayout(setLayouts []gpu.DescriptorSetLayout) (gpu.PipelineLayout, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if err := v.d.injected("CreatePipelineLayout"); err != nil {
		return 0, err
	}
	for _, l := range setLayouts {
		if _, err := v.d.lookup(uint64(l), kindDescriptorSetLayout); err != nil {
			return 0, err
		}
	}
	return gpu.PipelineLayout(v.d.create(kindPipelineLayout, v.id).id), nil
}

func (v *Device) DestroyPipelineLayout(layout gpu.PipelineLayout) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.d.destroy(uint64(layout), kindPipelineLayout)
}

func (v *Device) CreateRenderPass(info core1_0.RenderPassCreateInfo) (gpu.RenderPass, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if err := v.d.injected("CreateRenderPass"); err != nil {
		return 0, err
	}
	if len(info.Subpasses) == 0 {
		v.d.violatef("render pass needs at least one subpass")
		return 0, errors.New("render pass without subpasses")
	}
	obj := v.d.create(kindRenderPass, v.id)
	for _, att := range info.Attachments {
		obj.finalLayouts = append(obj.finalLayouts, att.FinalLayout)
	}
	return gpu.RenderPass(obj.id), nil
}

func (v *Device) DestroyRenderPass(renderPass gpu.RenderPass) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.d.destroy(uint64(renderPass), kindRenderPass)
}

func (v *Device) CreateGraphicsPipeline(info gpu.GraphicsPipelineInfo) (gpu.Pipeline, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if err := v.d.injected("CreateGraphicsPipeline"); err != nil {
		return 0, err
	}
	for _, stage := range info.Stages {
		if _, err := v.d.lookup(uint64(stage.Module), kindShaderModule); err != nil {
			return 0, err
		}
	}
	if _, err := v.d.lookup(uint64(info.Layout), kindPipelineLayout); err != nil {
		return 0, err
	}
	if _, err := v.d.lookup(uint64(info.RenderPass), kindRenderPass); err != nil {
		return 0, err
	}
	if info.Extent.Width <= 0 || info.Extent.Height <= 0 {
		v.d.violatef("pipeline viewport %dx%d is empty", info.Extent.Width, info.Extent.Height)
	}
	return gpu.Pipeline(v.d.create(kindPipeline, v.id).id), nil
}

func (v *Device) DestroyPipeline(pipeline gpu.Pipeline) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.d.destroy(uint64(pipeline), kindPipeline)
}

func (v *Device) CreateFramebuffer(info gpu.FramebufferInfo) (gpu.Framebuffer, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	rp, err := v.d.lookup(uint64(info.RenderPass), kindRenderPass)
	if err != nil {
		return 0, err
	}
	if len(info.Attachments) != len(rp.finalLayouts) {
		v.d.violatef("framebuffer has %d attachments, render pass %d expects %d", len(info.Attachments), rp.id, len(rp.finalLayouts))
	}
	obj := v.d.create(kindFramebuffer, v.id)
	for _, att := range info.Attachments {
		view, err := v.d.lookup(uint64(att), kindImageView)
		if err != nil {
			obj.alive = false
			return 0, err
		}
		obj.attachments = append(obj.attachments, view.id)
		obj.deps = append(obj.deps, view.id)
	}
	obj.finalLayouts = rp.finalLayouts
	return gpu.Framebuffer(obj.id), nil
}

func (v *Device) DestroyFramebuffer(framebuffer gpu.Framebuffer) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.d.destroy(uint64(framebuffer), kindFramebuffer)
}

func (v *Device) CreateDescriptorPool(info gpu.DescriptorPoolInfo) (gpu.DescriptorPool, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	obj := v.d.create(kindDescriptorPool, v.id)
	obj.size = info.MaxSets
	return gpu.DescriptorPool(obj.id), nil
}

func (v *Device) DestroyDescriptorPool(pool gpu.DescriptorPool) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	for _, obj := range v.d.objects {
		if obj.kind == kindDescriptorSet && obj.alive && obj.deps[0] == uint64(pool) {
			obj.alive = false
		}
	}
	v.d.destroy(uint64(pool), kindDescriptorPool)
}

func (v *Device) AllocateDescriptorSets(pool gpu.DescriptorPool, layouts []gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	p, err := v.d.lookup(uint64(pool), kindDescriptorPool)
	if err != nil {
		return nil, err
	}
	allocated := len(v.d.dependents(p.id))
	if allocated+len(layouts) > p.size {
		return nil, errors.Newf("descriptor pool %d exhausted", p.id)
	}
	var sets []gpu.DescriptorSet
	for _, l := range layouts {
		if _, err := v.d.lookup(uint64(l), kindDescriptorSetLayout); err != nil {
			return nil, err
		}
		obj := v.d.create(kindDescriptorSet, p.id)
		obj.bindings = map[int]uint64{}
		sets = append(sets, gpu.DescriptorSet(obj.id))
	}
	return sets, nil
}

func (v *Device) UpdateDescriptorSets(writes []gpu.DescriptorWrite) error {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	for _, w := range writes {
		set, err := v.d.lookup(uint64(w.Set), kindDescriptorSet)
		if err != nil {
			return err
		}
		switch w.Type {
		case core1_0.DescriptorTypeUniformBuffer:
			buf, err := v.d.lookup(uint64(w.Buffer), kindBuffer)
			if err != nil {
				return err
			}
			if w.BufferOffset+w.BufferRange > buf.size {
				v.d.violatef("descriptor range %d+%d exceeds buffer %d of %d bytes", w.BufferOffset, w.BufferRange, buf.id, buf.size)
			}
			set.bindings[w.Binding] = buf.id
		case core1_0.DescriptorTypeCombinedImageSampler:
			if _, err := v.d.lookup(uint64(w.ImageView), kindImageView); err != nil {
				return err
			}
			if _, err := v.d.lookup(uint64(w.Sampler), kindSampler); err != nil {
				return err
			}
			set.bindings[w.Binding] = uint64(w.ImageView)
		default:
			return errors.Newf("unsupported descriptor type %s", w.Type)
		}
	}
	return nil
}

func (v *Device) CreateSemaphore() (gpu.Semaphore, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	return gpu.Semaphore(v.d.create(kindSemaphore, v.id).id), nil
}

func (v *Device) DestroySemaphore(semaphore gpu.Semaphore) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.d.destroy(uint64(semaphore), kindSemaphore)
}
