package vkdriver

import (
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

type Adapter struct {
	instance   *Instance
	physical   core1_0.PhysicalDevice
	properties gpu.AdapterProperties
}

var _ gpu.Adapter = (*Adapter)(nil)

func newAdapter(instance *Instance, physical core1_0.PhysicalDevice) (*Adapter, error) {
	properties, err := physical.Properties()
	if err != nil {
		return nil, gpu.InitializationError(err, "read physical device properties")
	}

	return &Adapter{
		instance: instance,
		physical: physical,
		properties: gpu.AdapterProperties{
			Name: properties.DriverName,
			Limits: gpu.Limits{
				MaxSamplerAnisotropy: properties.Limits.MaxSamplerAnisotropy,
			},
		},
	}, nil
}

func (a *Adapter) Properties() gpu.AdapterProperties {
	return a.properties
}

func (a *Adapter) Features() gpu.Features {
	features := a.physical.Features()
	return gpu.Features{SamplerAnisotropy: features.SamplerAnisotropy}
}

func (a *Adapter) QueueFamilies() []gpu.QueueFamily {
	var families []gpu.QueueFamily
	for _, queueFamily := range a.physical.QueueFamilyProperties() {
		families = append(families, gpu.QueueFamily{
			Graphics:   (queueFamily.QueueFlags & core1_0.QueueGraphics) != 0,
			QueueCount: queueFamily.QueueCount,
		})
	}
	return families
}

func (a *Adapter) Extensions() (map[string]bool, error) {
	extensions, _, err := a.physical.EnumerateDeviceExtensionProperties()
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool, len(extensions))
	for name := range extensions {
		names[name] = true
	}
	return names, nil
}

func (a *Adapter) MemoryTypes() []gpu.MemoryType {
	var types []gpu.MemoryType
	for _, memoryType := range a.physical.MemoryProperties().MemoryTypes {
		types = append(types, gpu.MemoryType{
			PropertyFlags: memoryType.PropertyFlags,
			HeapIndex:     memoryType.HeapIndex,
		})
	}
	return types
}

func (a *Adapter) FormatProperties(format core1_0.Format) core1_0.FormatProperties {
	props := a.physical.FormatProperties(format)
	if props == nil {
		return core1_0.FormatProperties{}
	}
	return *props
}

func (a *Adapter) SurfaceSupported(handle gpu.Surface, family int) (bool, error) {
	surface, err := a.instance.surface(handle)
	if err != nil {
		return false, err
	}

	supported, _, err := surface.PhysicalDeviceSurfaceSupport(a.physical, family)
	return supported, err
}

func (a *Adapter) SurfaceSupport(handle gpu.Surface) (gpu.SurfaceSupport, error) {
	var support gpu.SurfaceSupport

	surface, err := a.instance.surface(handle)
	if err != nil {
		return support, err
	}

	capabilities, _, err := surface.PhysicalDeviceSurfaceCapabilities(a.physical)
	if err != nil {
		return support, err
	}
	support.Capabilities = gpu.SurfaceCapabilities{
		MinImageCount:  capabilities.MinImageCount,
		MaxImageCount:  capabilities.MaxImageCount,
		CurrentExtent:  capabilities.CurrentExtent,
		MinImageExtent: capabilities.MinImageExtent,
		MaxImageExtent: capabilities.MaxImageExtent,
	}

	support.Formats, _, err = surface.PhysicalDeviceSurfaceFormats(a.physical)
	if err != nil {
		return support, err
	}

	support.PresentModes, _, err = surface.PhysicalDeviceSurfacePresentModes(a.physical)
	return support, err
}

func (a *Adapter) currentTransform(handle gpu.Surface) (khr_surface.SurfaceTransformFlags, error) {
	surface, err := a.instance.surface(handle)
	if err != nil {
		return 0, err
	}
	capabilities, _, err := surface.PhysicalDeviceSurfaceCapabilities(a.physical)
	if err != nil {
		return 0, err
	}
	return capabilities.CurrentTransform, nil
}

func (a *Adapter) OpenDevice(options gpu.DeviceOptions) (gpu.Device, error) {
	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range options.QueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	device, _, err := a.physical.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: options.Features.SamplerAnisotropy,
		},
		EnabledExtensionNames: options.Extensions,
	})
	if err != nil {
		return nil, err
	}

	return newDevice(a, device, options.QueueFamilies), nil
}
