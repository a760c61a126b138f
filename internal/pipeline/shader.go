// Package pipeline builds the render pass and the graphics pipeline the frame
// command buffers are recorded against. Both are immutable and are rebuilt
// together with the swapchain.
package pipeline

import (
	"fmt"

	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// Stage is the programmable stage a shader runs in.
type Stage int

const (
	StageVertex Stage = iota
	StageFragment
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

func (s Stage) Flags() core1_0.ShaderStageFlags {
	switch s {
	case StageVertex:
		return core1_0.StageVertex
	case StageFragment:
		return core1_0.StageFragment
	}
	return 0
}

// Shader is a compiled shader module tagged with the stage it belongs to.
type Shader struct {
	dev    gpu.Device
	module gpu.ShaderModule
	stage  Stage
	entry  string
}

func NewShader(dev gpu.Device, stage Stage, code []uint32) (*Shader, error) {
	if stage.Flags() == 0 {
		return nil, gpu.PipelineCreationError(nil, "unknown shader stage %s", stage)
	}

	module, err := dev.CreateShaderModule(code)
	if err != nil {
		return nil, gpu.PipelineCreationError(err, "create %s shader module", stage)
	}

	return &Shader{dev: dev, module: module, stage: stage, entry: "main"}, nil
}

func (s *Shader) Stage() Stage {
	return s.stage
}

func (s *Shader) Module() gpu.ShaderModule {
	return s.module
}

func (s *Shader) stageInfo() gpu.ShaderStage {
	return gpu.ShaderStage{Stage: s.stage.Flags(), Module: s.module, Entry: s.entry}
}

func (s *Shader) Destroy() {
	if s.module == 0 {
		return
	}
	s.dev.DestroyShaderModule(s.module)
	s.module = 0
}
