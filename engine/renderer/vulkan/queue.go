package vulkan

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

type VulkanQueue struct {
	device   *Device
	kind     metadata.QueueKind
	handle   vk.Queue
	family   uint32
	timeline *VulkanTimeline
	signaled atomic.Uint64

	// fences of signaling submissions, host waits block on these
	mu      sync.Mutex
	pending inflight
	free    []*VulkanFence
}

func (q *VulkanQueue) Kind() metadata.QueueKind { return q.kind }

func (q *VulkanQueue) SignaledValue() uint64 { return q.signaled.Load() }

func (q *VulkanQueue) Submit(info renderer.SubmitInfo) error {
	if info.SignalValue != 0 && info.SignalValue <= q.signaled.Load() {
		return fmt.Errorf("vulkan: %s signal value %d is not above %d", q.kind, info.SignalValue, q.signaled.Load())
	}

	var (
		waitSemaphores []vk.Semaphore
		waitValues     []uint64
		waitStages     []vk.PipelineStageFlags
	)
	for _, other := range metadata.AllQueues {
		if info.WaitValues[other] == 0 {
			continue
		}
		waitSemaphores = append(waitSemaphores, q.device.queues[other].timeline.Handle)
		waitValues = append(waitValues, info.WaitValues[other])
		waitStages = append(waitStages, vk.PipelineStageFlags(
			pipelineStages(info.WaitStages[other], vk.PipelineStageAllCommandsBit)))
	}

	handles := make([]vk.CommandBuffer, 0, len(info.CommandBuffers))
	for _, cb := range info.CommandBuffers {
		vcb, ok := cb.(*VulkanCommandBuffer)
		if !ok {
			return fmt.Errorf("vulkan: foreign command buffer submitted to %s", q.kind)
		}
		if vcb.State != COMMAND_BUFFER_STATE_RECORDING_ENDED {
			return fmt.Errorf("vulkan: command buffer submitted to %s was not ended", q.kind)
		}
		if vcb.queue != q.kind {
			return fmt.Errorf("vulkan: %s command buffer submitted to %s", vcb.queue, q.kind)
		}
		handles = append(handles, vcb.Handle)
	}

	var signalSemaphores []vk.Semaphore
	var signalValues []uint64
	if info.SignalValue != 0 {
		signalSemaphores = []vk.Semaphore{q.timeline.Handle}
		signalValues = []uint64{info.SignalValue}
	}

	timelineInfo := vk.TimelineSemaphoreSubmitInfo{
		SType:                     vk.StructureTypeTimelineSemaphoreSubmitInfo,
		WaitSemaphoreValueCount:   uint32(len(waitValues)),
		PWaitSemaphoreValues:      waitValues,
		SignalSemaphoreValueCount: uint32(len(signalValues)),
		PSignalSemaphoreValues:    signalValues,
	}
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		PNext:                unsafe.Pointer(&timelineInfo),
		WaitSemaphoreCount:   uint32(len(waitSemaphores)),
		PWaitSemaphores:      waitSemaphores,
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   uint32(len(handles)),
		PCommandBuffers:      handles,
		SignalSemaphoreCount: uint32(len(signalSemaphores)),
		PSignalSemaphores:    signalSemaphores,
	}

	var fence *VulkanFence
	var fenceHandle vk.Fence
	if info.SignalValue != 0 {
		f, err := q.acquireFence()
		if err != nil {
			return err
		}
		fence, fenceHandle = f, f.Handle
	}

	err := q.device.context.Locks.SafeQueueCall(q.family, func() error {
		if res := vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{submitInfo}, fenceHandle); res != vk.Success {
			return vulkanError(fmt.Sprintf("submit to %s", q.kind), res)
		}
		return nil
	})
	q.mu.Lock()
	defer q.mu.Unlock()
	if err != nil {
		if fence != nil {
			q.free = append(q.free, fence)
		}
		return err
	}
	if fence != nil {
		q.pending.push(info.SignalValue, fence)
		q.signaled.Store(info.SignalValue)
	}
	return nil
}

// Wait blocks on the fence of the first submission signaling at least value.
func (q *VulkanQueue) Wait(value uint64, timeout time.Duration) error {
	if value == 0 {
		return nil
	}
	q.mu.Lock()
	i := q.pending.covering(value)
	if i < 0 {
		q.mu.Unlock()
		if value <= q.signaled.Load() {
			return nil
		}
		return fmt.Errorf("%s queue: value %d was never submitted: %w", q.kind, value, core.ErrWaitTimeout)
	}
	fence, reached := q.pending.fences[i], q.pending.values[i]
	q.mu.Unlock()

	if err := fence.Wait(q.device.context, timeout); err != nil {
		return fmt.Errorf("%s queue: waiting for %d: %w", q.kind, value, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, f := range q.pending.retire(reached) {
		if err := f.Reset(q.device.context); err != nil {
			return err
		}
		q.free = append(q.free, f)
	}
	return nil
}

func (q *VulkanQueue) acquireFence() (*VulkanFence, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n := len(q.free); n > 0 {
		f := q.free[n-1]
		q.free = q.free[:n-1]
		return f, nil
	}
	return NewFence(q.device.context, false)
}

// destroyFences releases every fence of the queue. The device must be idle.
func (q *VulkanQueue) destroyFences() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, f := range append(q.pending.all(), q.free...) {
		f.Destroy(q.device.context)
	}
	q.free = nil
}
