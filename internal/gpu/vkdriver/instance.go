// Package vkdriver implements the gpu interfaces on a real Vulkan loader
// through vkngwrapper.
package vkdriver

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/ext_debug_utils"
	"github.com/vkngwrapper/extensions/khr_surface"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

type InstanceOptions struct {
	ApplicationName string
	// Extensions are the instance extensions the window system needs.
	Extensions []string
	// Validation enables the Khronos validation layer and routes its
	// messages to Logger.
	Validation bool
	Logger     *slog.Logger
}

type Instance struct {
	instance       core1_0.Instance
	debugMessenger ext_debug_utils.DebugUtilsMessenger
	surfaceLoader  khr_surface.Extension

	handles *handles
	log     *slog.Logger
}

var _ gpu.Instance = (*Instance)(nil)

// Open creates a Vulkan instance with the extensions the window needs.
func Open(loader core.Loader, opts InstanceOptions) (*Instance, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ApplicationName == "" {
		opts.ApplicationName = "Vulkan Renderer"
	}
	inst := &Instance{handles: newHandles(), log: opts.Logger}

	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    opts.ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := loader.AvailableExtensions()
	if err != nil {
		return nil, gpu.InitializationError(err, "enumerate instance extensions")
	}

	for _, ext := range opts.Extensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return nil, gpu.InitializationError(nil, "missing instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if opts.Validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	if opts.Validation {
		layers, _, err := loader.AvailableLayers()
		if err != nil {
			return nil, gpu.InitializationError(err, "enumerate instance layers")
		}

		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return nil, gpu.InitializationError(nil, "validation layer %s not available, install the LunarG Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		// also catches messages from instance creation itself
		instanceOptions.Next = inst.debugMessengerOptions()
	}

	inst.instance, _, err = loader.CreateInstance(nil, instanceOptions)
	if err != nil {
		return nil, gpu.InitializationError(err, "create instance")
	}

	if opts.Validation {
		debugLoader := ext_debug_utils.CreateExtensionFromInstance(inst.instance)
		inst.debugMessenger, _, err = debugLoader.CreateDebugUtilsMessenger(inst.instance, nil, inst.debugMessengerOptions())
		if err != nil {
			inst.instance.Destroy(nil)
			return nil, gpu.InitializationError(err, "create debug messenger")
		}
	}

	inst.surfaceLoader = khr_surface.CreateExtensionFromInstance(inst.instance)

	inst.log.Info("instance created",
		"extensions", instanceOptions.EnabledExtensionNames,
		"layers", instanceOptions.EnabledLayerNames)
	return inst, nil
}

func (i *Instance) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning | ext_debug_utils.SeverityInfo,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    i.logDebug,
	}
}

func (i *Instance) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	i.log.Log(context.Background(), severityLevel(severity), data.Message, "type", msgType, "severity", severity)
	return false
}

func severityLevel(severity ext_debug_utils.DebugUtilsMessageSeverityFlags) slog.Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return slog.LevelError
	case severity&ext_debug_utils.SeverityWarning != 0:
		return slog.LevelWarn
	case severity&ext_debug_utils.SeverityInfo != 0:
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// AddSurface takes ownership of a surface created by the window system and
// returns its handle.
func (i *Instance) AddSurface(surface khr_surface.Surface) gpu.Surface {
	return gpu.Surface(i.handles.add(surface))
}

func (i *Instance) Adapters() ([]gpu.Adapter, error) {
	physicalDevices, _, err := i.instance.EnumeratePhysicalDevices()
	if err != nil {
		return nil, err
	}

	adapters := make([]gpu.Adapter, 0, len(physicalDevices))
	for _, physicalDevice := range physicalDevices {
		adapter, err := newAdapter(i, physicalDevice)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}

func (i *Instance) surface(handle gpu.Surface) (khr_surface.Surface, error) {
	surface, ok := get[khr_surface.Surface](i.handles, uint64(handle))
	if !ok {
		return nil, errors.Newf("unknown surface handle %d", handle)
	}
	return surface, nil
}

func (i *Instance) DestroySurface(handle gpu.Surface) {
	surface, ok := take[khr_surface.Surface](i.handles, uint64(handle))
	if ok {
		surface.Destroy(nil)
	}
}

func (i *Instance) Destroy() {
	if i.debugMessenger != nil {
		i.debugMessenger.Destroy(nil)
		i.debugMessenger = nil
	}
	if i.instance != nil {
		i.instance.Destroy(nil)
		i.instance = nil
	}
}
