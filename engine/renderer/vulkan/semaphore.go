package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

// VulkanTimeline is a timeline semaphore. Every queue owns one and signals
// strictly increasing values on it. It only orders work between queues,
// host waits go through the fence of the signaling submission.
type VulkanTimeline struct {
	Handle vk.Semaphore
}

func NewTimeline(context *VulkanContext) (*VulkanTimeline, error) {
	typeInfo := vk.SemaphoreTypeCreateInfo{
		SType:         vk.StructureTypeSemaphoreTypeCreateInfo,
		SemaphoreType: vk.SemaphoreTypeTimeline,
		InitialValue:  0,
	}
	createInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
		PNext: unsafe.Pointer(&typeInfo),
	}

	var handle vk.Semaphore
	if res := vk.CreateSemaphore(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle); res != vk.Success {
		return nil, vulkanError("create timeline semaphore", res)
	}
	return &VulkanTimeline{Handle: handle}, nil
}

func (t *VulkanTimeline) Destroy(context *VulkanContext) {
	if t.Handle != nil {
		vk.DestroySemaphore(context.Device.LogicalDevice, t.Handle, context.Allocator)
		t.Handle = nil
	}
}
