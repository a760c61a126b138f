package fakegpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

type swapchainState struct {
	surface  uint64
	extent   core1_0.Extent2D
	images   []uint64
	acquired map[int]bool
	next     int
	retired  bool
}

// OutOfDateNextAcquire makes the next AcquireNextImage report PresentOutOfDate.
func (v *Device) OutOfDateNextAcquire() {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.acquireStatus = gpu.PresentOutOfDate
}

// SuboptimalNextPresent makes the next QueuePresent report PresentSuboptimal.
func (v *Device) SuboptimalNextPresent() {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.presentStatus = gpu.PresentSuboptimal
}

// OutOfDateNextPresent makes the next QueuePresent report PresentOutOfDate.
func (v *Device) OutOfDateNextPresent() {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	v.presentStatus = gpu.PresentOutOfDate
}

// SwapchainExtent reports the extent swapchain was created with.
func (v *Device) SwapchainExtent(swapchain gpu.Swapchain) core1_0.Extent2D {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	obj, ok := v.d.objects[uint64(swapchain)]
	if !ok || obj.chain == nil {
		return core1_0.Extent2D{}
	}
	return obj.chain.extent
}

func (v *Device) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if err := v.d.injected("CreateSwapchain"); err != nil {
		return 0, err
	}
	surface, err := v.d.lookup(uint64(info.Surface), kindSurface)
	if err != nil {
		return 0, err
	}

	support := v.adapter.cfg.Surface
	caps := support.Capabilities
	if info.MinImageCount < caps.MinImageCount || (caps.MaxImageCount > 0 && info.MinImageCount > caps.MaxImageCount) {
		v.d.violatef("swapchain image count %d outside [%d,%d]", info.MinImageCount, caps.MinImageCount, caps.MaxImageCount)
	}
	if info.Extent.Width < caps.MinImageExtent.Width || info.Extent.Width > caps.MaxImageExtent.Width ||
		info.Extent.Height < caps.MinImageExtent.Height || info.Extent.Height > caps.MaxImageExtent.Height {
		v.d.violatef("swapchain extent %dx%d outside surface limits", info.Extent.Width, info.Extent.Height)
	}
	formatOK := false
	for _, f := range support.Formats {
		if f == info.Format {
			formatOK = true
		}
	}
	if !formatOK {
		v.d.violatef("surface format %v not supported", info.Format)
	}
	modeOK := false
	for _, m := range support.PresentModes {
		if m == info.PresentMode {
			modeOK = true
		}
	}
	if !modeOK {
		v.d.violatef("present mode %v not supported", info.PresentMode)
	}
	if info.SharingMode == core1_0.SharingModeConcurrent && len(info.QueueFamilies) < 2 {
		v.d.violatef("concurrent sharing needs at least two queue families")
	}

	for _, obj := range v.d.objects {
		if obj.kind != kindSwapchain || !obj.alive || obj.chain.retired || obj.chain.surface != surface.id {
			continue
		}
		if obj.id != uint64(info.OldSwapchain) {
			v.d.violatef("surface %d already has an active swapchain %d", surface.id, obj.id)
		}
	}
	if info.OldSwapchain != 0 {
		old, err := v.d.lookup(uint64(info.OldSwapchain), kindSwapchain)
		if err != nil {
			return 0, err
		}
		old.chain.retired = true
	}

	obj := v.d.create(kindSwapchain, v.id, surface.id)
	obj.chain = &swapchainState{surface: surface.id, extent: info.Extent, acquired: map[int]bool{}}
	for i := 0; i < info.MinImageCount; i++ {
		img := v.d.create(kindImage, obj.id)
		img.chain = obj.chain
		img.width, img.height = info.Extent.Width, info.Extent.Height
		img.format = info.Format.Format
		img.layout = core1_0.ImageLayoutUndefined
		img.size = img.width * img.height * texelSize(img.format)
		img.bytes = make([]byte, img.size)
		obj.chain.images = append(obj.chain.images, img.id)
	}
	return gpu.Swapchain(obj.id), nil
}

func (v *Device) DestroySwapchain(swapchain gpu.Swapchain) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if swapchain == 0 {
		return
	}
	obj, err := v.d.lookup(uint64(swapchain), kindSwapchain)
	if err != nil {
		return
	}
	for _, id := range obj.chain.images {
		for _, dep := range v.d.dependents(id) {
			v.d.violatef("swapchain %d destroyed while %s %d still uses its image %d", obj.id, dep.kind, dep.id, id)
		}
		v.d.objects[id].alive = false
	}
	v.d.destroy(obj.id, kindSwapchain)
}

func (v *Device) SwapchainImages(swapchain gpu.Swapchain) ([]gpu.Image, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	obj, err := v.d.lookup(uint64(swapchain), kindSwapchain)
	if err != nil {
		return nil, err
	}
	out := make([]gpu.Image, 0, len(obj.chain.images))
	for _, id := range obj.chain.images {
		out = append(out, gpu.Image(id))
	}
	return out, nil
}

func (v *Device) outdated(chain *swapchainState) bool {
	caps := v.adapter.cfg.Surface.Capabilities
	return caps.FixedExtent() && caps.CurrentExtent != chain.extent
}

func (v *Device) AcquireNextImage(swapchain gpu.Swapchain, signal gpu.Semaphore) (int, gpu.PresentStatus, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if err := v.d.injected("AcquireNextImage"); err != nil {
		return 0, gpu.PresentOK, err
	}
	obj, err := v.d.lookup(uint64(swapchain), kindSwapchain)
	if err != nil {
		return 0, gpu.PresentOK, err
	}
	chain := obj.chain

	if v.acquireStatus == gpu.PresentOutOfDate || chain.retired || v.outdated(chain) {
		v.acquireStatus = gpu.PresentOK
		return 0, gpu.PresentOutOfDate, nil
	}

	sem, err := v.d.lookup(uint64(signal), kindSemaphore)
	if err != nil {
		return 0, gpu.PresentOK, err
	}
	if sem.signaled {
		v.d.violatef("acquire signals semaphore %d that is already signaled", sem.id)
	}
	sem.signaled = true

	idx := chain.next
	if chain.acquired[idx] {
		v.d.violatef("acquire of image %d that was never presented", idx)
		return 0, gpu.PresentOK, errors.New("no image available")
	}
	chain.acquired[idx] = true
	chain.next = (chain.next + 1) % len(chain.images)
	v.d.stats.Acquires++

	status := v.acquireStatus
	v.acquireStatus = gpu.PresentOK
	return idx, status, nil
}

func (v *Device) QueuePresent(queue gpu.Queue, info gpu.PresentInfo) (gpu.PresentStatus, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if err := v.d.injected("QueuePresent"); err != nil {
		return gpu.PresentOK, err
	}
	if err := v.checkQueue(queue); err != nil {
		return gpu.PresentOK, err
	}
	obj, err := v.d.lookup(uint64(info.Swapchain), kindSwapchain)
	if err != nil {
		return gpu.PresentOK, err
	}
	chain := obj.chain

	for _, s := range info.WaitSemaphores {
		sem, err := v.d.lookup(uint64(s), kindSemaphore)
		if err != nil {
			return gpu.PresentOK, err
		}
		if !sem.signaled {
			v.d.violatef("present waits on semaphore %d that has no pending signal", s)
		}
		sem.signaled = false
	}

	if info.ImageIndex < 0 || info.ImageIndex >= len(chain.images) || !chain.acquired[info.ImageIndex] {
		v.d.violatef("present of image %d that was not acquired", info.ImageIndex)
		return gpu.PresentOK, errors.Newf("image %d not acquired", info.ImageIndex)
	}
	chain.acquired[info.ImageIndex] = false

	img := v.d.objects[chain.images[info.ImageIndex]]
	if img.layout != khr_swapchain.ImageLayoutPresentSrc {
		v.d.violatef("present of image %d in layout %s", info.ImageIndex, img.layout)
	}
	v.d.stats.Presents++

	status := v.presentStatus
	v.presentStatus = gpu.PresentOK
	if status == gpu.PresentOK && v.outdated(chain) {
		status = gpu.PresentOutOfDate
	}
	return status, nil
}
