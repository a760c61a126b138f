// Package descriptor binds the uniform buffer and the sampled texture to the
// shaders through a single descriptor set.
package descriptor

import (
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

const (
	UniformBinding = 0
	SamplerBinding = 1
)

// Layout declares the uniform buffer for the vertex stage and the combined
// image sampler for the fragment stage.
type Layout struct {
	dev    gpu.Device
	handle gpu.DescriptorSetLayout
}

func NewLayout(dev gpu.Device) (*Layout, error) {
	handle, err := dev.CreateDescriptorSetLayout([]gpu.DescriptorBinding{
		{
			Binding: UniformBinding,
			Type:    core1_0.DescriptorTypeUniformBuffer,
			Count:   1,
			Stages:  core1_0.StageVertex,
		},
		{
			Binding: SamplerBinding,
			Type:    core1_0.DescriptorTypeCombinedImageSampler,
			Count:   1,
			Stages:  core1_0.StageFragment,
		},
	})
	if err != nil {
		return nil, gpu.InitializationError(err, "create descriptor set layout")
	}
	return &Layout{dev: dev, handle: handle}, nil
}

func (l *Layout) Handle() gpu.DescriptorSetLayout {
	return l.handle
}

func (l *Layout) Destroy() {
	if l.handle == 0 {
		return
	}
	l.dev.DestroyDescriptorSetLayout(l.handle)
	l.handle = 0
}

// Set is one descriptor set together with the pool it was allocated from.
type Set struct {
	dev    gpu.Device
	pool   gpu.DescriptorPool
	handle gpu.DescriptorSet
}

// NewSet sizes a pool for exactly one set of layout and allocates it.
func NewSet(dev gpu.Device, layout *Layout) (*Set, error) {
	pool, err := dev.CreateDescriptorPool(gpu.DescriptorPoolInfo{
		MaxSets: 1,
		Sizes: map[core1_0.DescriptorType]int{
			core1_0.DescriptorTypeUniformBuffer:        1,
			core1_0.DescriptorTypeCombinedImageSampler: 1,
		},
	})
	if err != nil {
		return nil, gpu.AllocationError(err, "create descriptor pool")
	}

	sets, err := dev.AllocateDescriptorSets(pool, []gpu.DescriptorSetLayout{layout.Handle()})
	if err != nil {
		dev.DestroyDescriptorPool(pool)
		return nil, gpu.AllocationError(err, "allocate descriptor set")
	}

	return &Set{dev: dev, pool: pool, handle: sets[0]}, nil
}

func (s *Set) Handle() gpu.DescriptorSet {
	return s.handle
}

// Write points the set at the first uniformRange bytes of uniform and at the
// texture view sampled through sampler.
func (s *Set) Write(uniform gpu.Buffer, uniformRange int, view gpu.ImageView, sampler gpu.Sampler) error {
	err := s.dev.UpdateDescriptorSets([]gpu.DescriptorWrite{
		{
			Set:         s.handle,
			Binding:     UniformBinding,
			Type:        core1_0.DescriptorTypeUniformBuffer,
			Buffer:      uniform,
			BufferRange: uniformRange,
		},
		{
			Set:         s.handle,
			Binding:     SamplerBinding,
			Type:        core1_0.DescriptorTypeCombinedImageSampler,
			ImageView:   view,
			Sampler:     sampler,
			ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
		},
	})
	if err != nil {
		return gpu.InitializationError(err, "update descriptor set")
	}
	return nil
}

// Destroy releases the pool, which frees the set with it.
func (s *Set) Destroy() {
	if s.pool == 0 {
		return
	}
	s.dev.DestroyDescriptorPool(s.pool)
	s.pool = 0
	s.handle = 0
}
