package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence); res != vk.Success {
		return nil, vulkanError("create fence", res)
	}
	fenceCreateInfo.Deref()
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) Destroy(context *VulkanContext) {
	if vf.Handle != nil {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = nil
	}
	vf.IsSignaled = false
}

// Wait blocks until the submission the fence was attached to has completed.
func (vf *VulkanFence) Wait(context *VulkanContext, timeout time.Duration) error {
	if vf.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, uint64(timeout.Nanoseconds()))
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out after %s", timeout)
		return fmt.Errorf("fence wait after %s: %w", timeout, core.ErrWaitTimeout)
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
	case vk.ErrorOutOfHostMemory:
		core.LogError("vk_fence_wait - VK_ERROR_OUT_OF_HOST_MEMORY.")
	case vk.ErrorOutOfDeviceMemory:
		core.LogError("vk_fence_wait - VK_ERROR_OUT_OF_DEVICE_MEMORY.")
	default:
		core.LogError("vk_fence_wait - An unknown error has occurred.")
	}
	return vulkanError("wait for fence", result)
}

// Reset unsignals the fence. Callers only reset fences whose submission has
// completed, signaled or not as far as the host has observed.
func (vf *VulkanFence) Reset(context *VulkanContext) error {
	if res := vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
		return vulkanError("reset fence", res)
	}
	vf.IsSignaled = false
	return nil
}

// inflight holds the fence of every signaling submission of a queue that the
// host has not yet seen complete, ordered by signal value.
type inflight struct {
	values []uint64
	fences []*VulkanFence
}

func (s *inflight) push(value uint64, fence *VulkanFence) {
	s.values = append(s.values, value)
	s.fences = append(s.fences, fence)
}

// covering returns the earliest submission whose signal value reaches value,
// or -1 when none is pending.
func (s *inflight) covering(value uint64) int {
	for i, v := range s.values {
		if v >= value {
			return i
		}
	}
	return -1
}

// retire drops every submission signaling at most value and returns their
// fences. Signal operations on a queue complete in submission order, so those
// fences are all signaled once the one for value is.
func (s *inflight) retire(value uint64) []*VulkanFence {
	n := 0
	for n < len(s.values) && s.values[n] <= value {
		n++
	}
	done := append([]*VulkanFence(nil), s.fences[:n]...)
	s.values = append(s.values[:0], s.values[n:]...)
	s.fences = append(s.fences[:0], s.fences[n:]...)
	return done
}

func (s *inflight) all() []*VulkanFence {
	done := s.fences
	s.values, s.fences = nil, nil
	return done
}
