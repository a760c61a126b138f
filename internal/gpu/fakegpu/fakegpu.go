// Package fakegpu is an in-memory gpu backend. It keeps real bytes behind
// every allocation, replays recorded command buffers on submit and keeps a
// validation log of API misuse, the way a validation layer would.
package fakegpu

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// Config describes one simulated adapter.
type Config struct {
	Name            string
	QueueFamilies   []gpu.QueueFamily
	PresentFamilies []int
	Extensions      []string
	Features        gpu.Features
	Limits          gpu.Limits
	MemoryTypes     []gpu.MemoryType
	// ResourceTypeBits is the memory type filter reported for every buffer
	// and image. Zero means every type is compatible.
	ResourceTypeBits uint32
	Alignment        int
	// DepthFormats lists the formats usable as optimal-tiling depth attachments.
	DepthFormats []core1_0.Format
	Surface      gpu.SurfaceSupport
}

// DefaultConfig is a discrete-GPU-like adapter with one queue family that does
// graphics and present, a device-local and a host-visible memory type and a
// surface that allows two or three images.
func DefaultConfig() Config {
	return Config{
		Name:            "fake adapter",
		QueueFamilies:   []gpu.QueueFamily{{Graphics: true, QueueCount: 1}},
		PresentFamilies: []int{0},
		Extensions:      []string{khr_swapchain.ExtensionName},
		Features:        gpu.Features{SamplerAnisotropy: true},
		Limits:          gpu.Limits{MaxSamplerAnisotropy: 16},
		MemoryTypes: []gpu.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
		},
		Alignment:    256,
		DepthFormats: []core1_0.Format{core1_0.FormatD32SignedFloat},
		Surface: gpu.SurfaceSupport{
			Capabilities: gpu.SurfaceCapabilities{
				MinImageCount:  2,
				MaxImageCount:  3,
				CurrentExtent:  core1_0.Extent2D{Width: 800, Height: 600},
				MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
				MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
			},
			Formats: []khr_surface.SurfaceFormat{
				{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
			},
			PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox},
		},
	}
}

// Stats counts the work a device has seen.
type Stats struct {
	Submits           int
	Acquires          int
	Presents          int
	Draws             int
	Begins            int
	OneTimeBegins     int
	RenderPassRecords int
	WaitIdles         int
}

type kind int

const (
	kindInstance kind = iota
	kindSurface
	kindDevice
	kindBuffer
	kindImage
	kindMemory
	kindImageView
	kindSampler
	kindShaderModule
	kindDescriptorSetLayout
	kindDescriptorPool
	kindDescriptorSet
	kindPipelineLayout
	kindRenderPass
	kindPipeline
	kindFramebuffer
	kindCommandPool
	kindCommandBuffer
	kindSemaphore
	kindSwapchain
)

var kindNames = [...]string{
	"instance", "surface", "device", "buffer", "image", "memory", "image view", "sampler",
	"shader module", "descriptor set layout", "descriptor pool", "descriptor set",
	"pipeline layout", "render pass", "pipeline", "framebuffer", "command pool",
	"command buffer", "semaphore", "swapchain",
}

func (k kind) String() string {
	return kindNames[k]
}

type object struct {
	id    uint64
	kind  kind
	alive bool
	// deps must outlive this object
	deps []uint64

	// memory
	bytes    []byte
	memType  int
	mapped   bool
	property core1_0.MemoryPropertyFlags

	// buffers and images
	size   int
	memory uint64
	offset int

	// images
	width, height int
	format        core1_0.Format
	layout        core1_0.ImageLayout
	aspect        core1_0.ImageAspectFlags

	// image views
	image uint64

	// render passes and framebuffers
	finalLayouts []core1_0.ImageLayout
	attachments  []uint64

	// descriptor sets
	bindings map[int]uint64

	cmd      *commandState
	signaled bool
	chain    *swapchainState
}

type driver struct {
	mu         sync.Mutex
	nextID     uint64
	objects    map[uint64]*object
	violations []string
	stats      Stats
	failures   map[string]error
}

func newDriver() *driver {
	return &driver{
		nextID:   1,
		objects:  map[uint64]*object{},
		failures: map[string]error{},
	}
}

func (d *driver) violatef(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

func (d *driver) create(k kind, deps ...uint64) *object {
	obj := &object{id: d.nextID, kind: k, alive: true, deps: deps}
	d.nextID++
	d.objects[obj.id] = obj
	return obj
}

// lookup resolves a handle and records a violation when it is null, unknown,
// destroyed or of the wrong kind.
func (d *driver) lookup(id uint64, k kind) (*object, error) {
	if id == 0 {
		d.violatef("null %s handle", k)
		return nil, errors.Newf("null %s handle", k)
	}
	obj, ok := d.objects[id]
	if !ok || obj.kind != k {
		d.violatef("unknown %s handle %d", k, id)
		return nil, errors.Newf("unknown %s handle %d", k, id)
	}
	if !obj.alive {
		d.violatef("use of destroyed %s %d", k, id)
		return nil, errors.Newf("use of destroyed %s %d", k, id)
	}
	return obj, nil
}

// dependents lists live objects that still need obj.
func (d *driver) dependents(id uint64) []*object {
	var out []*object
	for _, obj := range d.objects {
		if !obj.alive {
			continue
		}
		for _, dep := range obj.deps {
			if dep == id {
				out = append(out, obj)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// destroy marks obj dead and complains about anything that still depends on it.
func (d *driver) destroy(id uint64, k kind) *object {
	if id == 0 {
		return nil
	}
	obj, err := d.lookup(id, k)
	if err != nil {
		return nil
	}
	for _, dep := range d.dependents(id) {
		d.violatef("%s %d destroyed while %s %d still depends on it", k, id, dep.kind, dep.id)
	}
	obj.alive = false
	return obj
}

func (d *driver) injected(op string) error {
	err, ok := d.failures[op]
	if !ok {
		return nil
	}
	delete(d.failures, op)
	return err
}

func (d *driver) liveObjects() int {
	n := 0
	for _, obj := range d.objects {
		if obj.alive {
			n++
		}
	}
	return n
}

func texelSize(format core1_0.Format) int {
	if format == core1_0.FormatD32SignedFloatS8UnsignedInt {
		return 8
	}
	return 4
}

func alignUp(size, alignment int) int {
	if alignment <= 1 {
		return size
	}
	return (size + alignment - 1) / alignment * alignment
}
