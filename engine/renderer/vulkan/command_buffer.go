package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandPool hands out primary command buffers for one queue. Buffers
// survive Reset and are reused by later allocations.
type VulkanCommandPool struct {
	Handle  vk.CommandPool
	device  *Device
	queue   metadata.QueueKind
	buffers []*VulkanCommandBuffer
	used    int
}

func (p *VulkanCommandPool) Queue() metadata.QueueKind { return p.queue }

func (p *VulkanCommandPool) Allocate() (renderer.CommandBuffer, error) {
	if p.used < len(p.buffers) {
		cb := p.buffers[p.used]
		p.used++
		return cb, nil
	}
	cb, err := NewVulkanCommandBuffer(p.device, p)
	if err != nil {
		return nil, err
	}
	p.buffers = append(p.buffers, cb)
	p.used++
	return cb, nil
}

func (p *VulkanCommandPool) Reset() error {
	if res := vk.ResetCommandPool(p.device.logical(), p.Handle, 0); res != vk.Success {
		return vulkanError(fmt.Sprintf("reset %s command pool", p.queue), res)
	}
	for _, cb := range p.buffers {
		cb.Reset()
	}
	p.used = 0
	return nil
}

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	device *Device
	queue  metadata.QueueKind
	labels []string
}

func NewVulkanCommandBuffer(device *Device, pool *VulkanCommandPool) (*VulkanCommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		State:  COMMAND_BUFFER_STATE_NOT_ALLOCATED,
		device: device,
		queue:  pool.queue,
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool.Handle,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}

	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(device.logical(), &allocateInfo, handles); res != vk.Success {
		return nil, vulkanError("allocate command buffer", res)
	}
	vCommandBuffer.Handle = handles[0]
	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY

	return vCommandBuffer, nil
}

func (v *VulkanCommandBuffer) Queue() metadata.QueueKind { return v.queue }

func (v *VulkanCommandBuffer) Begin() error {
	if v.State == COMMAND_BUFFER_STATE_RECORDING {
		return fmt.Errorf("vulkan: command buffer already recording")
	}
	vBeginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}

	if res := vk.BeginCommandBuffer(v.Handle, vBeginInfo); res != vk.Success {
		return vulkanError("begin command buffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	v.labels = v.labels[:0]

	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if v.State != COMMAND_BUFFER_STATE_RECORDING {
		return fmt.Errorf("vulkan: command buffer is not recording")
	}
	if len(v.labels) > 0 {
		core.LogWarn("command buffer ended with open label %q", v.labels[len(v.labels)-1])
	}
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		return vulkanError("end command buffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) Reset() {
	v.State = COMMAND_BUFFER_STATE_READY
	v.labels = v.labels[:0]
}

func (v *VulkanCommandBuffer) PipelineBarrier(barriers []renderer.Barrier) {
	if len(barriers) == 0 {
		return
	}
	v.device.recordBarriers(v.Handle, barriers)
}

// Labels are tracked on the host only. They name the pass in recording
// errors and in the validation log.
func (v *VulkanCommandBuffer) BeginLabel(name string) {
	v.labels = append(v.labels, name)
	if v.device.validation {
		core.LogDebug("%s: begin %q", v.queue, name)
	}
}

func (v *VulkanCommandBuffer) EndLabel() {
	if len(v.labels) == 0 {
		return
	}
	v.labels = v.labels[:len(v.labels)-1]
}

func (v *VulkanCommandBuffer) FillBuffer(dst renderer.View, value uint32) {
	bv := dst.(*VulkanBufferView)
	// fills must cover whole words
	size := bv.Size &^ 3
	vk.CmdFillBuffer(v.Handle, bv.Buffer.Handle, vk.DeviceSize(bv.Offset), vk.DeviceSize(size), value)
}

func (v *VulkanCommandBuffer) CopyBuffer(src, dst renderer.View, size uint64) {
	in, out := src.(*VulkanBufferView), dst.(*VulkanBufferView)
	n := min(in.Size, out.Size, size)
	if n == 0 {
		return
	}
	vk.CmdCopyBuffer(v.Handle, in.Buffer.Handle, out.Buffer.Handle, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(in.Offset),
		DstOffset: vk.DeviceSize(out.Offset),
		Size:      vk.DeviceSize(n),
	}})
}

func (v *VulkanCommandBuffer) ClearColorImage(dst renderer.View, color [4]float32) {
	iv := dst.(*VulkanImageView)
	var value vk.ClearValue
	value.SetColor(color[:])
	// the color member is the first of the clear value union
	clearColor := *(*vk.ClearColorValue)(unsafe.Pointer(&value))
	rng := subresourceRange(iv.Image.Desc.Format, iv.Range)
	vk.CmdClearColorImage(v.Handle, iv.Image.Handle, vk.ImageLayoutTransferDstOptimal, &clearColor, 1, []vk.ImageSubresourceRange{rng})
}

func (v *VulkanCommandBuffer) CopyBufferToImage(src, dst renderer.View) {
	bv, iv := src.(*VulkanBufferView), dst.(*VulkanImageView)
	vk.CmdCopyBufferToImage(v.Handle, bv.Buffer.Handle, iv.Image.Handle,
		vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{imageCopy(bv, iv)})
}

func (v *VulkanCommandBuffer) CopyImageToBuffer(src, dst renderer.View) {
	iv, bv := src.(*VulkanImageView), dst.(*VulkanBufferView)
	vk.CmdCopyImageToBuffer(v.Handle, iv.Image.Handle,
		vk.ImageLayoutTransferSrcOptimal, bv.Buffer.Handle, 1, []vk.BufferImageCopy{imageCopy(bv, iv)})
}

// imageCopy covers the first level of the view and every layer of it, with
// the buffer tightly packed.
func imageCopy(bv *VulkanBufferView, iv *VulkanImageView) vk.BufferImageCopy {
	desc := iv.Image.Desc
	level := iv.Range.BaseLevel
	return vk.BufferImageCopy{
		BufferOffset: vk.DeviceSize(bv.Offset),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     aspectMask(desc.Format),
			MipLevel:       level,
			BaseArrayLayer: iv.Range.BaseLayer,
			LayerCount:     iv.Range.LayerCount,
		},
		ImageExtent: vk.Extent3D{
			Width:  max(desc.Width>>level, 1),
			Height: max(desc.Height>>level, 1),
			Depth:  max(desc.Depth>>level, 1),
		},
	}
}
