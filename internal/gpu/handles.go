// Package gpu describes the device surface the renderer components borrow.
//
// Handles are opaque identifiers issued by a backend. The zero value of every
// handle type is the null handle. Two backends exist: vkdriver talks to a real
// Vulkan loader through vkngwrapper, fakegpu simulates a device in memory.
package gpu

type (
	Surface             uint64
	Queue               uint64
	Buffer              uint64
	Image               uint64
	Memory              uint64
	ImageView           uint64
	Sampler             uint64
	ShaderModule        uint64
	DescriptorSetLayout uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
	PipelineLayout      uint64
	RenderPass          uint64
	Pipeline            uint64
	Framebuffer         uint64
	CommandPool         uint64
	CommandBuffer       uint64
	Semaphore           uint64
	Swapchain           uint64
)

// PresentStatus reports how an acquire or present call left the swapchain.
type PresentStatus int

const (
	PresentOK PresentStatus = iota
	// PresentSuboptimal means the image was acquired or presented but the
	// swapchain no longer matches the surface exactly.
	PresentSuboptimal
	// PresentOutOfDate means the swapchain can no longer be used.
	PresentOutOfDate
)

func (s PresentStatus) String() string {
	switch s {
	case PresentOK:
		return "ok"
	case PresentSuboptimal:
		return "suboptimal"
	case PresentOutOfDate:
		return "out of date"
	}
	return "unknown"
}

// Stale reports whether the swapchain must be rebuilt.
func (s PresentStatus) Stale() bool {
	return s == PresentSuboptimal || s == PresentOutOfDate
}
