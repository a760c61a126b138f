package commands

import (
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// FrameSync is the semaphore pair of the single frame in flight.
type FrameSync struct {
	dev            gpu.Device
	imageAvailable gpu.Semaphore
	renderFinished gpu.Semaphore
}

func NewFrameSync(dev gpu.Device) (*FrameSync, error) {
	imageAvailable, err := dev.CreateSemaphore()
	if err != nil {
		return nil, gpu.InitializationError(err, "create image available semaphore")
	}

	renderFinished, err := dev.CreateSemaphore()
	if err != nil {
		dev.DestroySemaphore(imageAvailable)
		return nil, gpu.InitializationError(err, "create render finished semaphore")
	}

	return &FrameSync{dev: dev, imageAvailable: imageAvailable, renderFinished: renderFinished}, nil
}

func (s *FrameSync) ImageAvailable() gpu.Semaphore {
	return s.imageAvailable
}

func (s *FrameSync) RenderFinished() gpu.Semaphore {
	return s.renderFinished
}

// Submit queues buffer so it starts writing color output only once the image
// is available, and signals render finished when done.
func (s *FrameSync) Submit(queue gpu.Queue, buffer gpu.CommandBuffer) error {
	err := s.dev.Submit(queue, []gpu.SubmitInfo{
		{
			WaitSemaphores:   []gpu.Semaphore{s.imageAvailable},
			WaitStages:       []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []gpu.CommandBuffer{buffer},
			SignalSemaphores: []gpu.Semaphore{s.renderFinished},
		},
	})
	if err != nil {
		return gpu.SubmissionError(err, "submit draw command buffer")
	}
	return nil
}

func (s *FrameSync) Destroy() {
	s.dev.DestroySemaphore(s.renderFinished)
	s.dev.DestroySemaphore(s.imageAvailable)
	s.renderFinished, s.imageAvailable = 0, 0
}
