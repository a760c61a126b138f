package memory

import (
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

type LayoutPair struct {
	Old, New core1_0.ImageLayout
}

// Transition is the barrier that moves an image between two layouts.
type Transition struct {
	SrcAccess core1_0.AccessFlags
	DstAccess core1_0.AccessFlags
	SrcStage  core1_0.PipelineStageFlags
	DstStage  core1_0.PipelineStageFlags
}

var transitions = map[LayoutPair]Transition{
	{core1_0.ImageLayoutPreInitialized, core1_0.ImageLayoutTransferSrcOptimal}: {
		SrcAccess: core1_0.AccessHostWrite,
		DstAccess: core1_0.AccessTransferRead,
		SrcStage:  core1_0.PipelineStageHost,
		DstStage:  core1_0.PipelineStageTransfer,
	},
	{core1_0.ImageLayoutPreInitialized, core1_0.ImageLayoutTransferDstOptimal}: {
		SrcAccess: core1_0.AccessHostWrite,
		DstAccess: core1_0.AccessTransferWrite,
		SrcStage:  core1_0.PipelineStageHost,
		DstStage:  core1_0.PipelineStageTransfer,
	},
	{core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal}: {
		SrcAccess: 0,
		DstAccess: core1_0.AccessTransferWrite,
		SrcStage:  core1_0.PipelineStageTopOfPipe,
		DstStage:  core1_0.PipelineStageTransfer,
	},
	{core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal}: {
		SrcAccess: core1_0.AccessTransferWrite,
		DstAccess: core1_0.AccessShaderRead,
		SrcStage:  core1_0.PipelineStageTransfer,
		DstStage:  core1_0.PipelineStageFragmentShader,
	},
	{core1_0.ImageLayoutUndefined, core1_0.ImageLayoutDepthStencilAttachmentOptimal}: {
		SrcAccess: 0,
		DstAccess: core1_0.AccessDepthStencilAttachmentRead | core1_0.AccessDepthStencilAttachmentWrite,
		SrcStage:  core1_0.PipelineStageTopOfPipe,
		DstStage:  core1_0.PipelineStageEarlyFragmentTests,
	},
	// readback of sampled images
	{core1_0.ImageLayoutShaderReadOnlyOptimal, core1_0.ImageLayoutTransferSrcOptimal}: {
		SrcAccess: core1_0.AccessShaderRead,
		DstAccess: core1_0.AccessTransferRead,
		SrcStage:  core1_0.PipelineStageFragmentShader,
		DstStage:  core1_0.PipelineStageTransfer,
	},
	{core1_0.ImageLayoutTransferSrcOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal}: {
		SrcAccess: core1_0.AccessTransferRead,
		DstAccess: core1_0.AccessShaderRead,
		SrcStage:  core1_0.PipelineStageTransfer,
		DstStage:  core1_0.PipelineStageFragmentShader,
	},
}

// LookupTransition returns the barrier for old -> new, or an
// unsupported-transition error for any pair outside the table.
func LookupTransition(oldLayout, newLayout core1_0.ImageLayout) (Transition, error) {
	t, ok := transitions[LayoutPair{oldLayout, newLayout}]
	if !ok {
		return Transition{}, gpu.UnsupportedTransitionError("unsupported layout transition: %s -> %s", oldLayout, newLayout)
	}
	return t, nil
}

// SupportedTransitions lists every legal layout pair.
func SupportedTransitions() []LayoutPair {
	pairs := make([]LayoutPair, 0, len(transitions))
	for pair := range transitions {
		pairs = append(pairs, pair)
	}
	return pairs
}
