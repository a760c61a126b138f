package renderer

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// NotifyResized tells the renderer the window changed size. The swapchain is
// rebuilt after the next present even if the surface does not complain.
func (r *Renderer) NotifyResized() {
	r.resized = true
}

// DrawFrame acquires an image, updates the uniforms, submits the prerecorded
// command buffer for that image and presents it. A stale surface is not an
// error: the swapchain is rebuilt and the frame is skipped or the next frame
// uses the new chain. Any error returned is fatal.
func (r *Renderer) DrawFrame() error {
	if r.state == StateRebuilding {
		err := r.rebuild("pending")
		if err != nil || r.state == StateRebuilding {
			return err
		}
	}

	imageIndex, err := r.chain.Acquire(r.sync.ImageAvailable())
	if errors.Is(err, gpu.ErrStaleSurface) {
		return r.rebuild("acquire")
	}
	if err != nil {
		return err
	}

	extent := r.chain.Extent()
	err = r.updateUniformBuffer(int(extent.Width), int(extent.Height))
	if err != nil {
		return err
	}

	err = r.sync.Submit(r.ctx.GraphicsQueue(), r.frames.Buffer(imageIndex))
	if err != nil {
		return err
	}
	r.stats.Frames++

	err = r.chain.Present(r.ctx.PresentQueue(), r.sync.RenderFinished(), imageIndex)
	if err == nil || errors.Is(err, gpu.ErrStaleSurface) {
		r.stats.Presents++
		r.countFrame()
	}
	if errors.Is(err, gpu.ErrStaleSurface) {
		return r.rebuild("present")
	}
	if err != nil {
		return err
	}

	if r.resized {
		return r.rebuild("resized")
	}
	return nil
}

// rebuild replaces the swapchain and everything that depends on it. When the
// window has no drawable area it leaves the renderer Rebuilding and returns
// nil; DrawFrame retries on every call until the area comes back.
func (r *Renderer) rebuild(reason string) error {
	r.state = StateRebuilding
	r.resized = false

	if r.opts.DrawableSize != nil {
		w, h := r.opts.DrawableSize()
		if w == 0 || h == 0 {
			if !r.deferred {
				r.log.Debug("rebuild deferred until the window is visible", "reason", reason)
				r.deferred = true
			}
			return nil
		}
	}
	r.deferred = false

	err := r.ctx.Device().WaitIdle()
	if err != nil {
		return gpu.SubmissionError(err, "wait for device before rebuild")
	}

	// a rebuild that failed part way has already released some of these
	for _, name := range []string{"frames", "pipeline", "renderPass"} {
		if !r.graph.Has(name) {
			continue
		}
		err = r.graph.Release(name)
		if err != nil {
			return err
		}
	}
	r.frames, r.pipeline, r.renderPass = nil, nil, nil

	err = r.buildPresentation()
	if err != nil {
		return errors.Wrap(err, "rebuild swapchain")
	}
	r.stats.Rebuilds++

	r.log.Info("swapchain rebuilt",
		"reason", reason,
		"extent", r.chain.Extent(),
		"images", r.chain.ImageCount())
	return nil
}

func (r *Renderer) countFrame() {
	r.fpsFrames++
	now := r.opts.Clock()
	elapsed := now - r.fpsSince
	if elapsed < time.Second {
		return
	}
	r.log.Debug("frame rate", "fps", float64(r.fpsFrames)/elapsed.Seconds())
	r.fpsFrames = 0
	r.fpsSince = now
}
