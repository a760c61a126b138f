package pipeline

import (
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// VertexLayout describes how vertex buffer bytes map onto shader inputs.
type VertexLayout struct {
	Bindings   []core1_0.VertexInputBindingDescription
	Attributes []core1_0.VertexInputAttributeDescription
}

// Pipeline is a pipeline layout plus the graphics pipeline built on it.
type Pipeline struct {
	dev    gpu.Device
	layout gpu.PipelineLayout
	handle gpu.Pipeline
}

// New builds a graphics pipeline covering extent: indexed triangle lists,
// back-face culling with counter-clockwise front faces, depth test and write
// with less-than and no blending. Exactly one vertex and one fragment shader
// are required. Nothing is left behind on failure.
func New(dev gpu.Device, extent core1_0.Extent2D, renderPass *RenderPass, setLayout gpu.DescriptorSetLayout, vertex VertexLayout, shaders ...*Shader) (*Pipeline, error) {
	if extent.Width <= 0 || extent.Height <= 0 {
		return nil, gpu.PipelineCreationError(nil, "empty viewport %dx%d", extent.Width, extent.Height)
	}

	var stages []gpu.ShaderStage
	seen := map[Stage]int{}
	for i, shader := range shaders {
		if shader == nil {
			return nil, gpu.PipelineCreationError(nil, "shader %d is nil", i)
		}
		seen[shader.Stage()]++
		stages = append(stages, shader.stageInfo())
	}
	for _, stage := range []Stage{StageVertex, StageFragment} {
		if seen[stage] != 1 {
			return nil, gpu.PipelineCreationError(nil, "need exactly one %s shader, got %d", stage, seen[stage])
		}
	}
	if len(stages) != 2 {
		return nil, gpu.PipelineCreationError(nil, "unexpected shader stages: %d", len(stages))
	}

	layout, err := dev.CreatePipelineLayout([]gpu.DescriptorSetLayout{setLayout})
	if err != nil {
		return nil, gpu.PipelineCreationError(err, "create pipeline layout")
	}

	handle, err := dev.CreateGraphicsPipeline(gpu.GraphicsPipelineInfo{
		Stages:           stages,
		VertexBindings:   vertex.Bindings,
		VertexAttributes: vertex.Attributes,
		Topology:         core1_0.PrimitiveTopologyTriangleList,
		Extent:           extent,
		CullMode:         core1_0.CullModeBack,
		FrontFace:        core1_0.FrontFaceCounterClockwise,
		DepthTest:        true,
		DepthWrite:       true,
		DepthCompare:     core1_0.CompareOpLess,
		BlendEnable:      false,
		Layout:           layout,
		RenderPass:       renderPass.Handle(),
		Subpass:          0,
	})
	if err != nil {
		dev.DestroyPipelineLayout(layout)
		return nil, gpu.PipelineCreationError(err, "create graphics pipeline")
	}

	return &Pipeline{dev: dev, layout: layout, handle: handle}, nil
}

func (p *Pipeline) Handle() gpu.Pipeline {
	return p.handle
}

func (p *Pipeline) Layout() gpu.PipelineLayout {
	return p.layout
}

// Destroy releases the pipeline before its layout.
func (p *Pipeline) Destroy() {
	if p.handle != 0 {
		p.dev.DestroyPipeline(p.handle)
		p.handle = 0
	}
	if p.layout != 0 {
		p.dev.DestroyPipelineLayout(p.layout)
		p.layout = 0
	}
}
