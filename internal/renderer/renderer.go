// Package renderer draws one textured mesh to a window surface, one frame in
// flight, rebuilding the presentation resources whenever the surface changes.
package renderer

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"

	"github.com/vkngwrapper/vulkan-renderer/internal/assets"
	"github.com/vkngwrapper/vulkan-renderer/internal/commands"
	"github.com/vkngwrapper/vulkan-renderer/internal/descriptor"
	"github.com/vkngwrapper/vulkan-renderer/internal/device"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/lifetime"
	"github.com/vkngwrapper/vulkan-renderer/internal/memory"
	"github.com/vkngwrapper/vulkan-renderer/internal/mesh"
	"github.com/vkngwrapper/vulkan-renderer/internal/pipeline"
	"github.com/vkngwrapper/vulkan-renderer/internal/swapchain"
	"github.com/vkngwrapper/vulkan-renderer/internal/texture"
)

// State is where the frame loop is.
type State int

const (
	// StateLive means frames are acquired, submitted and presented.
	StateLive State = iota
	// StateRebuilding means presentation resources are being recreated, or
	// are waiting for the window to have a drawable area again.
	StateRebuilding
)

func (s State) String() string {
	if s == StateRebuilding {
		return "rebuilding"
	}
	return "live"
}

type Stats struct {
	// Frames counts submitted frames.
	Frames int
	// Presents counts presents queued, including those reported stale.
	Presents int
	// Rebuilds counts completed swapchain rebuilds.
	Rebuilds int
	// RecordingPasses counts how often the per-image command buffers were
	// recorded. It only grows on rebuild.
	RecordingPasses int
}

type Options struct {
	VertexShader   []uint32
	FragmentShader []uint32
	// Mesh defaults to a quad.
	Mesh *mesh.Mesh
	// Texture defaults to a single white texel.
	Texture *assets.Image

	PresentMode khr_surface.PresentMode
	// DrawableSize reports the window size in pixels. A zero width or height
	// postpones rebuilds until the window is visible again.
	DrawableSize func() (int, int)
	Uniforms     UniformStrategy
	// Clock drives the animation. Defaults to hrtime.Now.
	Clock  func() time.Duration
	Logger *slog.Logger
}

// Renderer owns every GPU object it draws with, from the instance down.
type Renderer struct {
	opts  Options
	log   *slog.Logger
	graph *lifetime.Graph

	ctx    *device.Context
	pool   *commands.Pool
	stager *memory.Stager
	sync   *commands.FrameSync

	vertexShader   *pipeline.Shader
	fragmentShader *pipeline.Shader
	vertexBuffer   *memory.Buffer
	indexBuffer    *memory.Buffer
	indexCount     int
	indexType      core1_0.IndexType
	uniformBuffer  *memory.Buffer
	texture        *texture.Texture
	setLayout      *descriptor.Layout
	set            *descriptor.Set

	chain      *swapchain.Chain
	renderPass *pipeline.RenderPass
	pipeline   *pipeline.Pipeline
	frames     *commands.FrameBuffers

	state    State
	resized  bool
	deferred bool
	stats    Stats

	fpsFrames int
	fpsSince  time.Duration
}

// New builds everything needed to draw. It takes ownership of instance and
// surface: Close destroys them, and so does New when it fails.
func New(instance gpu.Instance, surface gpu.Surface, opts Options) (*Renderer, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = hrtime.Now
	}
	if opts.Mesh == nil {
		opts.Mesh = mesh.Quad()
	}

	log := opts.Logger.With("session", uuid.NewString())
	r := &Renderer{
		opts:  opts,
		log:   log,
		graph: lifetime.New(log),
		state: StateRebuilding,
	}

	err := r.init(instance, surface)
	if err != nil {
		r.graph.Teardown()
		return nil, err
	}

	r.fpsSince = opts.Clock()
	log.Info("renderer ready",
		"images", r.chain.ImageCount(),
		"extent", r.chain.Extent(),
		"presentMode", r.chain.PresentMode(),
		"uniforms", opts.Uniforms)
	return r, nil
}

func (r *Renderer) track(name string, tier lifetime.Tier, release func(), deps ...string) {
	err := r.graph.Add(name, tier, release, deps...)
	if err != nil {
		// names are fixed in this package, so this is a programming error
		panic(err)
	}
}

func (r *Renderer) init(instance gpu.Instance, surface gpu.Surface) error {
	r.track("instance", lifetime.TierInstance, instance.Destroy)
	r.track("surface", lifetime.TierSurface, func() { instance.DestroySurface(surface) }, "instance")

	ctx, err := device.Open(instance, surface, r.log)
	if err != nil {
		return err
	}
	r.ctx = ctx
	r.track("device", lifetime.TierDevice, ctx.Close, "instance")
	dev := ctx.Device()

	r.pool, err = commands.NewPool(ctx)
	if err != nil {
		return err
	}
	r.track("commandPool", lifetime.TierCommands, r.pool.Destroy, "device")
	r.stager = memory.NewStager(ctx, r.pool)

	r.sync, err = commands.NewFrameSync(dev)
	if err != nil {
		return err
	}
	r.track("frameSync", lifetime.TierCommands, r.sync.Destroy, "device")

	err = r.initShaders(dev)
	if err != nil {
		return err
	}

	err = r.initResources()
	if err != nil {
		return err
	}

	return r.buildPresentation()
}

func (r *Renderer) initShaders(dev gpu.Device) error {
	var err error
	r.vertexShader, err = pipeline.NewShader(dev, pipeline.StageVertex, r.opts.VertexShader)
	if err != nil {
		return errors.Wrap(err, "vertex shader")
	}
	r.track("vertexShader", lifetime.TierPipeline, r.vertexShader.Destroy, "device")

	r.fragmentShader, err = pipeline.NewShader(dev, pipeline.StageFragment, r.opts.FragmentShader)
	if err != nil {
		return errors.Wrap(err, "fragment shader")
	}
	r.track("fragmentShader", lifetime.TierPipeline, r.fragmentShader.Destroy, "device")
	return nil
}

func (r *Renderer) initResources() error {
	m := r.opts.Mesh
	if len(m.Indices) == 0 {
		return gpu.AllocationError(nil, "mesh has no indices")
	}

	vertices, err := m.VertexBytes()
	if err != nil {
		return gpu.AllocationError(err, "encode vertices")
	}
	r.vertexBuffer, err = r.stager.NewDeviceBuffer(vertices, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return errors.Wrap(err, "vertex buffer")
	}
	r.track("vertexBuffer", lifetime.TierResources, r.vertexBuffer.Destroy, "device")

	indices, err := m.IndexBytes()
	if err != nil {
		return gpu.AllocationError(err, "encode indices")
	}
	r.indexBuffer, err = r.stager.NewDeviceBuffer(indices, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		return errors.Wrap(err, "index buffer")
	}
	r.track("indexBuffer", lifetime.TierResources, r.indexBuffer.Destroy, "device")
	r.indexCount = len(m.Indices)
	r.indexType = m.IndexType()

	if r.opts.Uniforms == UniformHostVisible {
		r.uniformBuffer, err = memory.NewBuffer(r.ctx, uniformSize, core1_0.BufferUsageUniformBuffer,
			core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	} else {
		r.uniformBuffer, err = memory.NewBuffer(r.ctx, uniformSize,
			core1_0.BufferUsageUniformBuffer|core1_0.BufferUsageTransferDst|core1_0.BufferUsageTransferSrc,
			core1_0.MemoryPropertyDeviceLocal)
	}
	if err != nil {
		return errors.Wrap(err, "uniform buffer")
	}
	r.track("uniformBuffer", lifetime.TierResources, r.uniformBuffer.Destroy, "device")

	if img := r.opts.Texture; img != nil {
		r.texture, err = texture.New(r.ctx, r.stager, img.Width, img.Height, img.Pixels)
	} else {
		r.texture, err = texture.White(r.ctx, r.stager)
	}
	if err != nil {
		return errors.Wrap(err, "texture")
	}
	r.track("texture", lifetime.TierResources, r.texture.Destroy, "device")

	r.setLayout, err = descriptor.NewLayout(r.ctx.Device())
	if err != nil {
		return err
	}
	r.track("descriptorLayout", lifetime.TierResources, r.setLayout.Destroy, "device")

	r.set, err = descriptor.NewSet(r.ctx.Device(), r.setLayout)
	if err != nil {
		return err
	}
	r.track("descriptorSet", lifetime.TierResources, r.set.Destroy, "descriptorLayout", "uniformBuffer", "texture")

	return r.set.Write(r.uniformBuffer.Handle(), uniformSize, r.texture.View(), r.texture.Sampler())
}

// buildPresentation creates a chain, retiring the current one if there is
// one, and everything sized or formatted after it.
func (r *Renderer) buildPresentation() error {
	old := r.chain
	chain, err := swapchain.New(r.ctx, swapchain.Options{
		PresentMode:  r.opts.PresentMode,
		DrawableSize: r.opts.DrawableSize,
	}, old)
	if err != nil {
		return err
	}
	if old != nil {
		err = r.graph.Release("chain")
		if err != nil {
			chain.Destroy()
			return err
		}
	}
	r.chain = chain
	r.track("chain", lifetime.TierPresentation, chain.Destroy, "device", "surface")

	dev := r.ctx.Device()
	r.renderPass, err = pipeline.NewRenderPass(dev, chain.Format().Format, r.ctx.DepthFormat())
	if err != nil {
		return err
	}
	r.track("renderPass", lifetime.TierPipeline, r.renderPass.Destroy, "device")

	r.pipeline, err = pipeline.New(dev, chain.Extent(), r.renderPass, r.setLayout.Handle(), mesh.VertexLayout(),
		r.vertexShader, r.fragmentShader)
	if err != nil {
		return err
	}
	r.track("pipeline", lifetime.TierPipeline, r.pipeline.Destroy,
		"renderPass", "descriptorLayout", "vertexShader", "fragmentShader")

	err = chain.CreateDepthResources(r.stager)
	if err != nil {
		return err
	}
	err = chain.CreateFramebuffers(r.renderPass.Handle())
	if err != nil {
		return err
	}

	r.frames, err = commands.Record(r.pool, chain.ImageCount(), r.record)
	if err != nil {
		return err
	}
	r.track("frames", lifetime.TierCommands, r.frames.Free,
		"commandPool", "pipeline", "chain", "descriptorSet", "vertexBuffer", "indexBuffer")
	r.stats.RecordingPasses++

	r.state = StateLive
	return nil
}

func (r *Renderer) record(buffer gpu.CommandBuffer, imageIndex int) error {
	dev := r.ctx.Device()

	err := dev.CmdBeginRenderPass(buffer, gpu.RenderPassBegin{
		RenderPass:  r.renderPass.Handle(),
		Framebuffer: r.chain.Framebuffer(imageIndex),
		Extent:      r.chain.Extent(),
		ClearColor:  [4]float32{0, 0, 0, 1},
		ClearDepth:  1.0,
	})
	if err != nil {
		return err
	}

	dev.CmdBindPipeline(buffer, r.pipeline.Handle())
	dev.CmdBindVertexBuffer(buffer, r.vertexBuffer.Handle())
	dev.CmdBindIndexBuffer(buffer, r.indexBuffer.Handle(), r.indexType)
	dev.CmdBindDescriptorSet(buffer, r.pipeline.Layout(), r.set.Handle())
	dev.CmdDrawIndexed(buffer, r.indexCount)
	dev.CmdEndRenderPass(buffer)
	return nil
}

func (r *Renderer) State() State {
	return r.state
}

func (r *Renderer) Stats() Stats {
	return r.stats
}

// Extent is the size of the images currently being drawn to.
func (r *Renderer) Extent() core1_0.Extent2D {
	return r.chain.Extent()
}

// Close waits for the device to finish and destroys everything, the
// instance last.
func (r *Renderer) Close() {
	if r.graph.Len() == 0 {
		return
	}
	if r.ctx != nil && r.graph.Has("device") {
		err := r.ctx.Device().WaitIdle()
		if err != nil {
			r.log.Error("wait for device before teardown", "error", err)
		}
	}
	order := r.graph.Teardown()
	r.log.Info("renderer closed", "released", len(order))
}
