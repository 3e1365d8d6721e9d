package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

var stateAccess = []struct {
	state  metadata.ResourceState
	access vk.AccessFlagBits
}{
	{metadata.StateVertexBuffer, vk.AccessVertexAttributeReadBit},
	{metadata.StateIndexBuffer, vk.AccessIndexReadBit},
	{metadata.StateConstantBuffer, vk.AccessUniformReadBit},
	{metadata.StateIndirectArgument, vk.AccessIndirectCommandReadBit},
	{metadata.StateShaderResource, vk.AccessShaderReadBit},
	{metadata.StateUnorderedAccess, vk.AccessShaderReadBit | vk.AccessShaderWriteBit},
	{metadata.StateRenderTarget, vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit},
	{metadata.StateDepthWrite, vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit},
	{metadata.StateDepthRead, vk.AccessDepthStencilAttachmentReadBit},
	{metadata.StateCopySource, vk.AccessTransferReadBit},
	{metadata.StateCopyDest, vk.AccessTransferWriteBit},
	{metadata.StatePresent, vk.AccessMemoryReadBit},
	{metadata.StateHostRead, vk.AccessHostReadBit},
	{metadata.StateHostWrite, vk.AccessHostWriteBit},
}

func accessMask(s metadata.ResourceState) vk.AccessFlags {
	var out vk.AccessFlagBits
	for _, a := range stateAccess {
		if s&a.state != 0 {
			out |= a.access
		}
	}
	return vk.AccessFlags(out)
}

// imageLayout picks the layout an image must be in for s. Combined read
// states that have no common optimal layout fall back to general.
func imageLayout(s metadata.ResourceState) vk.ImageLayout {
	switch s {
	case metadata.StateUndefined:
		return vk.ImageLayoutUndefined
	case metadata.StateRenderTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case metadata.StateDepthWrite:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case metadata.StateDepthRead, metadata.StateDepthRead | metadata.StateShaderResource:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case metadata.StateShaderResource:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case metadata.StateCopySource:
		return vk.ImageLayoutTransferSrcOptimal
	case metadata.StateCopyDest:
		return vk.ImageLayoutTransferDstOptimal
	case metadata.StatePresent:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutGeneral
}

var stageBits = []struct {
	stage metadata.PipelineStage
	bit   vk.PipelineStageFlagBits
}{
	{metadata.StageDrawIndirect, vk.PipelineStageDrawIndirectBit},
	{metadata.StageVertexInput, vk.PipelineStageVertexInputBit},
	{metadata.StageVertexShader, vk.PipelineStageVertexShaderBit},
	{metadata.StageFragmentShader, vk.PipelineStageFragmentShaderBit},
	{metadata.StageEarlyFragmentTests, vk.PipelineStageEarlyFragmentTestsBit},
	{metadata.StageLateFragmentTests, vk.PipelineStageLateFragmentTestsBit},
	{metadata.StageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
	{metadata.StageComputeShader, vk.PipelineStageComputeShaderBit},
	{metadata.StageTransfer, vk.PipelineStageTransferBit},
	{metadata.StageHost, vk.PipelineStageHostBit},
	{metadata.StageAllCommands, vk.PipelineStageAllCommandsBit},
}

// pipelineStages converts a stage mask. An empty mask becomes empty,
// which is top of pipe on the source side and bottom on the destination.
func pipelineStages(s metadata.PipelineStage, empty vk.PipelineStageFlagBits) vk.PipelineStageFlagBits {
	var out vk.PipelineStageFlagBits
	for _, b := range stageBits {
		if s&b.stage != 0 {
			out |= b.bit
		}
	}
	if out == 0 {
		return empty
	}
	return out
}

// queueFamilies returns the source and destination family of a barrier.
// Only the two halves of an ownership transfer name real families.
func (d *Device) queueFamilies(b renderer.Barrier) (uint32, uint32) {
	if b.Flags&(metadata.BarrierQueueOwnershipRelease|metadata.BarrierQueueOwnershipAcquire) == 0 {
		return vk.QueueFamilyIgnored, vk.QueueFamilyIgnored
	}
	src := d.context.QueueFamily(b.SrcQueue)
	dst := d.context.QueueFamily(b.DstQueue)
	if src == dst {
		return vk.QueueFamilyIgnored, vk.QueueFamilyIgnored
	}
	return src, dst
}

// recordBarriers translates and records a batch of barriers as one
// vkCmdPipelineBarrier. The begin half of a split barrier records nothing:
// the end half carries the full dependency.
// TODO: record split barriers with vkCmdSetEvent/vkCmdWaitEvents.
func (d *Device) recordBarriers(cmd vk.CommandBuffer, barriers []renderer.Barrier) {
	var (
		srcStages, dstStages vk.PipelineStageFlagBits
		imageBarriers        []vk.ImageMemoryBarrier
		bufferBarriers       []vk.BufferMemoryBarrier
	)
	for _, b := range barriers {
		if b.Flags&metadata.BarrierBegin != 0 {
			continue
		}
		srcAccess := accessMask(b.StateBefore)
		dstAccess := accessMask(b.StateAfter)
		src := pipelineStages(b.StagesBefore, vk.PipelineStageTopOfPipeBit)
		dst := pipelineStages(b.StagesAfter, vk.PipelineStageBottomOfPipeBit)
		// each half of an ownership transfer only carries its own side
		if b.Flags&metadata.BarrierQueueOwnershipRelease != 0 {
			dstAccess = 0
			dst = vk.PipelineStageBottomOfPipeBit
		}
		if b.Flags&metadata.BarrierQueueOwnershipAcquire != 0 {
			srcAccess = 0
			src = vk.PipelineStageTopOfPipeBit
		}
		srcStages |= src
		dstStages |= dst
		srcFamily, dstFamily := d.queueFamilies(b)

		switch r := b.Resource.(type) {
		case *VulkanImage:
			oldLayout := imageLayout(b.StateBefore)
			if b.Flags&metadata.BarrierFirstAccessInSubmission != 0 && b.StateBefore == metadata.StateUndefined {
				oldLayout = vk.ImageLayoutUndefined
			}
			imageBarriers = append(imageBarriers, vk.ImageMemoryBarrier{
				SType:               vk.StructureTypeImageMemoryBarrier,
				SrcAccessMask:       srcAccess,
				DstAccessMask:       dstAccess,
				OldLayout:           oldLayout,
				NewLayout:           imageLayout(b.StateAfter),
				SrcQueueFamilyIndex: srcFamily,
				DstQueueFamilyIndex: dstFamily,
				Image:               r.Handle,
				SubresourceRange:    subresourceRange(r.Desc.Format, b.Range),
			})
		case *VulkanBuffer:
			bufferBarriers = append(bufferBarriers, vk.BufferMemoryBarrier{
				SType:               vk.StructureTypeBufferMemoryBarrier,
				SrcAccessMask:       srcAccess,
				DstAccessMask:       dstAccess,
				SrcQueueFamilyIndex: srcFamily,
				DstQueueFamilyIndex: dstFamily,
				Buffer:              r.Handle,
				Offset:              0,
				Size:                vk.DeviceSize(vk.WholeSize),
			})
		}
	}
	if len(imageBarriers) == 0 && len(bufferBarriers) == 0 {
		return
	}
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(srcStages),
		vk.PipelineStageFlags(dstStages),
		0, 0, nil,
		uint32(len(bufferBarriers)), bufferBarriers,
		uint32(len(imageBarriers)), imageBarriers)
}
