// Package vulkan implements the renderer capability interfaces on Vulkan 1.2.
// Every queue owns a timeline semaphore for cross-queue waits, host waits
// block on a fence attached to each signaling submission, and the bindless
// table is one update-after-bind descriptor set per buffered instance.
package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

func init() {
	renderer.RegisterBackend(renderer.Vulkan, func(opts renderer.DeviceOptions) (renderer.Device, error) {
		return New(opts)
	})
}

type Device struct {
	context    *VulkanContext
	queues     [metadata.QueueCount]*VulkanQueue
	validation bool
}

var _ renderer.Device = (*Device)(nil)

// New loads Vulkan, creates an instance and picks a device with graphics,
// compute and transfer queues.
func New(opts renderer.DeviceOptions) (*Device, error) {
	if opts.InstanceProcAddr != nil {
		vk.SetGetInstanceProcAddr(opts.InstanceProcAddr)
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		core.LogError("failed to load the Vulkan loader: %s", err)
		return nil, err
	}
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	d := &Device{
		context: &VulkanContext{
			// TODO: custom allocator.
			Allocator: nil,
			Device:    &VulkanDevice{},
			Locks:     NewVulkanLockPool(),
		},
		validation: opts.Validation,
	}
	if err := d.createInstance(opts.ApplicationName); err != nil {
		return nil, err
	}
	if err := DeviceCreate(d.context); err != nil {
		d.destroyInstance()
		return nil, err
	}
	for _, kind := range metadata.AllQueues {
		timeline, err := NewTimeline(d.context)
		if err != nil {
			d.Destroy()
			return nil, err
		}
		d.queues[kind] = &VulkanQueue{
			device:   d,
			kind:     kind,
			handle:   d.context.Device.Queues[kind],
			family:   d.context.QueueFamily(kind),
			timeline: timeline,
		}
	}
	core.LogInfo("Vulkan device created.")
	return d, nil
}

func (d *Device) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Anima Frame Graph"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// No surface: the device only records and submits offscreen work.
	requiredExtensions := []string{}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}

	if d.validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		core.LogDebug("Required extensions: %v", requiredExtensions)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers.
	requiredValidationLayerNames := []string{}
	if d.validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		requiredValidationLayerNames = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkLayers(requiredValidationLayerNames); err != nil {
			return err
		}
		core.LogInfo("All required validation layers are present.")
	}

	createInfo.EnabledLayerCount = uint32(len(requiredValidationLayerNames))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredValidationLayerNames)

	if res := vk.CreateInstance(&createInfo, d.context.Allocator, &d.context.Instance); res != vk.Success {
		return vulkanError("create instance", res)
	}
	if err := vk.InitInstance(d.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if d.validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}

		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(d.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		d.context.debugCallback = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func checkLayers(required []string) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return vulkanError("enumerate instance layers", res)
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return vulkanError("enumerate instance layers", res)
	}

	for _, name := range required {
		core.LogDebug("Searching for layer: %s...", name)
		found := false
		for j := range available {
			available[j].Deref()
			end := FindFirstZeroInByteArray(available[j].LayerName[:])
			if name == vk.ToString(available[j].LayerName[:end+1]) {
				found = true
				break
			}
		}
		if !found {
			err := fmt.Errorf("required validation layer is missing: %s", name)
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

func (d *Device) logical() vk.Device {
	return d.context.Device.LogicalDevice
}

func (d *Device) Queue(kind metadata.QueueKind) renderer.Queue {
	return d.queues[kind]
}

func (d *Device) CreateCommandPool(queue metadata.QueueKind) (renderer.CommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.context.QueueFamily(queue),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	pool := &VulkanCommandPool{device: d, queue: queue}
	if res := vk.CreateCommandPool(d.logical(), &poolCreateInfo, d.context.Allocator, &pool.Handle); res != vk.Success {
		return nil, vulkanError(fmt.Sprintf("create %s command pool", queue), res)
	}
	return pool, nil
}

func (d *Device) DestroyCommandPool(pool renderer.CommandPool) {
	p, ok := pool.(*VulkanCommandPool)
	if !ok || p.Handle == nil {
		return
	}
	// command buffers are freed with their pool
	vk.DestroyCommandPool(d.logical(), p.Handle, d.context.Allocator)
	p.Handle = nil
	p.buffers = nil
	p.used = 0
}

func (d *Device) WaitIdle() error {
	if res := vk.DeviceWaitIdle(d.logical()); res != vk.Success {
		return vulkanError("wait for device idle", res)
	}
	return nil
}

func (d *Device) Destroy() {
	if d.logical() != nil {
		if err := d.WaitIdle(); err != nil && !errors.Is(err, core.ErrDeviceLost) {
			core.LogWarn("destroying a busy device: %s", err)
		}
		for i, q := range d.queues {
			if q != nil {
				q.destroyFences()
				q.timeline.Destroy(d.context)
				d.queues[i] = nil
			}
		}
		DeviceDestroy(d.context)
	}
	d.destroyInstance()
}

func (d *Device) destroyInstance() {
	if d.context.debugCallback != nil {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(d.context.Instance, d.context.debugCallback, d.context.Allocator)
		d.context.debugCallback = nil
	}
	if d.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(d.context.Instance, d.context.Allocator)
		d.context.Instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
