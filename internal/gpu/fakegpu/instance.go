package fakegpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// Instance simulates a loader with one adapter per Config.
type Instance struct {
	d        *driver
	id       uint64
	adapters []*Adapter
}

var _ gpu.Instance = (*Instance)(nil)

func NewInstance(configs ...Config) *Instance {
	if len(configs) == 0 {
		configs = []Config{DefaultConfig()}
	}
	d := newDriver()
	inst := &Instance{d: d, id: d.create(kindInstance).id}
	for _, cfg := range configs {
		inst.adapters = append(inst.adapters, &Adapter{d: d, instance: inst.id, cfg: cfg})
	}
	return inst
}

// CreateSurface stands in for the window system integration.
func (i *Instance) CreateSurface() gpu.Surface {
	i.d.mu.Lock()
	defer i.d.mu.Unlock()
	return gpu.Surface(i.d.create(kindSurface, i.id).id)
}

func (i *Instance) Adapters() ([]gpu.Adapter, error) {
	out := make([]gpu.Adapter, 0, len(i.adapters))
	for _, a := range i.adapters {
		out = append(out, a)
	}
	return out, nil
}

// Adapter returns the simulated adapter at idx for test hooks.
func (i *Instance) Adapter(idx int) *Adapter {
	return i.adapters[idx]
}

func (i *Instance) DestroySurface(surface gpu.Surface) {
	i.d.mu.Lock()
	defer i.d.mu.Unlock()
	i.d.destroy(uint64(surface), kindSurface)
}

func (i *Instance) Destroy() {
	i.d.mu.Lock()
	defer i.d.mu.Unlock()
	i.d.destroy(i.id, kindInstance)
}

// Violations returns every validation message recorded so far.
func (i *Instance) Violations() []string {
	i.d.mu.Lock()
	defer i.d.mu.Unlock()
	return append([]string(nil), i.d.violations...)
}

// LiveObjects counts objects that have not been destroyed, the instance included.
func (i *Instance) LiveObjects() int {
	i.d.mu.Lock()
	defer i.d.mu.Unlock()
	return i.d.liveObjects()
}

// Adapter simulates a physical device.
type Adapter struct {
	d        *driver
	instance uint64
	cfg      Config
	device   *Device
}

var _ gpu.Adapter = (*Adapter)(nil)

func (a *Adapter) Properties() gpu.AdapterProperties {
	return gpu.AdapterProperties{Name: a.cfg.Name, Limits: a.cfg.Limits}
}

func (a *Adapter) Features() gpu.Features {
	return a.cfg.Features
}

func (a *Adapter) QueueFamilies() []gpu.QueueFamily {
	return a.cfg.QueueFamilies
}

func (a *Adapter) Extensions() (map[string]bool, error) {
	out := map[string]bool{}
	for _, ext := range a.cfg.Extensions {
		out[ext] = true
	}
	return out, nil
}

func (a *Adapter) MemoryTypes() []gpu.MemoryType {
	return a.cfg.MemoryTypes
}

func (a *Adapter) FormatProperties(format core1_0.Format) core1_0.FormatProperties {
	var props core1_0.FormatProperties
	for _, depth := range a.cfg.DepthFormats {
		if depth == format {
			props.OptimalTilingFeatures |= core1_0.FormatFeatureDepthStencilAttachment
		}
	}
	return props
}

func (a *Adapter) SurfaceSupported(surface gpu.Surface, family int) (bool, error) {
	a.d.mu.Lock()
	defer a.d.mu.Unlock()
	if _, err := a.d.lookup(uint64(surface), kindSurface); err != nil {
		return false, err
	}
	for _, f := range a.cfg.PresentFamilies {
		if f == family {
			return true, nil
		}
	}
	return false, nil
}

func (a *Adapter) SurfaceSupport(surface gpu.Surface) (gpu.SurfaceSupport, error) {
	a.d.mu.Lock()
	defer a.d.mu.Unlock()
	if _, err := a.d.lookup(uint64(surface), kindSurface); err != nil {
		return gpu.SurfaceSupport{}, err
	}
	return a.cfg.Surface, nil
}

// SetSurfaceCapabilities simulates a window resize. Swapchains whose extent no
// longer matches a fixed surface extent report out of date from then on.
func (a *Adapter) SetSurfaceCapabilities(caps gpu.SurfaceCapabilities) {
	a.d.mu.Lock()
	defer a.d.mu.Unlock()
	a.cfg.Surface.Capabilities = caps
}

// Device returns the device opened from this adapter, if any.
func (a *Adapter) Device() *Device {
	return a.device
}

func (a *Adapter) OpenDevice(options gpu.DeviceOptions) (gpu.Device, error) {
	a.d.mu.Lock()
	defer a.d.mu.Unlock()

	if err := a.d.injected("OpenDevice"); err != nil {
		return nil, err
	}

	available, _ := a.Extensions()
	for _, ext := range options.Extensions {
		if !available[ext] {
			return nil, errors.Newf("extension %s not present", ext)
		}
	}
	if options.Features.SamplerAnisotropy && !a.cfg.Features.SamplerAnisotropy {
		return nil, errors.New("feature samplerAnisotropy not present")
	}

	queues := map[int]gpu.Queue{}
	for _, family := range options.QueueFamilies {
		if family < 0 || family >= len(a.cfg.QueueFamilies) {
			return nil, errors.Newf("queue family %d out of range", family)
		}
		if _, dup := queues[family]; dup {
			a.d.violatef("queue family %d requested twice", family)
		}
		queues[family] = gpu.Queue(family + 1)
	}

	obj := a.d.create(kindDevice, a.instance)
	a.device = &Device{d: a.d, id: obj.id, adapter: a, queues: queues}
	return a.device, nil
}

// Fail makes the next call to op return err. Ops are named after the
// gpu.Device or gpu.Adapter method.
func (i *Instance) Fail(op string, err error) {
	i.d.mu.Lock()
	defer i.d.mu.Unlock()
	i.d.failures[op] = err
}
