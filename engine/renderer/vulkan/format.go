package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

var formats = map[metadata.Format]vk.Format{
	metadata.FormatUndefined:      vk.FormatUndefined,
	metadata.FormatR8Unorm:        vk.FormatR8Unorm,
	metadata.FormatRG8Unorm:       vk.FormatR8g8Unorm,
	metadata.FormatRGBA8Unorm:     vk.FormatR8g8b8a8Unorm,
	metadata.FormatRGBA8Srgb:      vk.FormatR8g8b8a8Srgb,
	metadata.FormatBGRA8Unorm:     vk.FormatB8g8r8a8Unorm,
	metadata.FormatBGRA8Srgb:      vk.FormatB8g8r8a8Srgb,
	metadata.FormatR16Float:       vk.FormatR16Sfloat,
	metadata.FormatRGBA16Float:    vk.FormatR16g16b16a16Sfloat,
	metadata.FormatR32Uint:        vk.FormatR32Uint,
	metadata.FormatR32Float:       vk.FormatR32Sfloat,
	metadata.FormatRG32Float:      vk.FormatR32g32Sfloat,
	metadata.FormatRGBA32Float:    vk.FormatR32g32b32a32Sfloat,
	metadata.FormatRG11B10Float:   vk.FormatB10g11r11UfloatPack32,
	metadata.FormatD16Unorm:       vk.FormatD16Unorm,
	metadata.FormatD32Float:       vk.FormatD32Sfloat,
	metadata.FormatD24UnormS8Uint: vk.FormatD24UnormS8Uint,
	metadata.FormatD32FloatS8Uint: vk.FormatD32SfloatS8Uint,
}

func vulkanFormat(f metadata.Format) vk.Format {
	if vf, ok := formats[f]; ok {
		return vf
	}
	return vk.FormatUndefined
}

func aspectMask(f metadata.Format) vk.ImageAspectFlags {
	if !f.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	mask := vk.ImageAspectDepthBit
	if f.HasStencil() {
		mask |= vk.ImageAspectStencilBit
	}
	return vk.ImageAspectFlags(mask)
}

func imageType(t metadata.ImageType) vk.ImageType {
	switch t {
	case metadata.ImageType1D:
		return vk.ImageType1d
	case metadata.ImageType3D:
		return vk.ImageType3d
	}
	return vk.ImageType2d
}

func imageViewType(t metadata.ImageViewType) vk.ImageViewType {
	switch t {
	case metadata.ImageViewType1D:
		return vk.ImageViewType1d
	case metadata.ImageViewType3D:
		return vk.ImageViewType3d
	case metadata.ImageViewTypeCube:
		return vk.ImageViewTypeCube
	case metadata.ImageViewType1DArray:
		return vk.ImageViewType1dArray
	case metadata.ImageViewType2DArray:
		return vk.ImageViewType2dArray
	case metadata.ImageViewTypeCubeArray:
		return vk.ImageViewTypeCubeArray
	}
	return vk.ImageViewType2d
}

func swizzle(s metadata.ComponentSwizzle) vk.ComponentSwizzle {
	switch s {
	case metadata.SwizzleZero:
		return vk.ComponentSwizzleZero
	case metadata.SwizzleOne:
		return vk.ComponentSwizzleOne
	case metadata.SwizzleR:
		return vk.ComponentSwizzleR
	case metadata.SwizzleG:
		return vk.ComponentSwizzleG
	case metadata.SwizzleB:
		return vk.ComponentSwizzleB
	case metadata.SwizzleA:
		return vk.ComponentSwizzleA
	}
	return vk.ComponentSwizzleIdentity
}

func imageUsage(u metadata.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlagBits
	if u&metadata.ImageUsageTransferSrc != 0 {
		out |= vk.ImageUsageTransferSrcBit
	}
	if u&metadata.ImageUsageTransferDst != 0 {
		out |= vk.ImageUsageTransferDstBit
	}
	if u&metadata.ImageUsageSampled != 0 {
		out |= vk.ImageUsageSampledBit
	}
	if u&metadata.ImageUsageStorage != 0 {
		out |= vk.ImageUsageStorageBit
	}
	if u&metadata.ImageUsageColorAttachment != 0 {
		out |= vk.ImageUsageColorAttachmentBit
	}
	if u&metadata.ImageUsageDepthStencilAttachment != 0 {
		out |= vk.ImageUsageDepthStencilAttachmentBit
	}
	return vk.ImageUsageFlags(out)
}

func imageFlags(f metadata.ImageCreateFlags) vk.ImageCreateFlags {
	var out vk.ImageCreateFlagBits
	if f&metadata.ImageCreateMutableFormat != 0 {
		out |= vk.ImageCreateMutableFormatBit
	}
	if f&metadata.ImageCreateCubeCompatible != 0 {
		out |= vk.ImageCreateCubeCompatibleBit
	}
	if f&metadata.ImageCreate2DArrayCompatible != 0 {
		out |= vk.ImageCreate2dArrayCompatibleBit
	}
	return vk.ImageCreateFlags(out)
}

var bufferUsages = []struct {
	usage metadata.BufferUsage
	bit   vk.BufferUsageFlagBits
}{
	{metadata.BufferUsageTransferSrc, vk.BufferUsageTransferSrcBit},
	{metadata.BufferUsageTransferDst, vk.BufferUsageTransferDstBit},
	{metadata.BufferUsageUniformTexel, vk.BufferUsageUniformTexelBufferBit},
	{metadata.BufferUsageStorageTexel, vk.BufferUsageStorageTexelBufferBit},
	{metadata.BufferUsageUniform, vk.BufferUsageUniformBufferBit},
	{metadata.BufferUsageStorage, vk.BufferUsageStorageBufferBit},
	{metadata.BufferUsageIndex, vk.BufferUsageIndexBufferBit},
	{metadata.BufferUsageVertex, vk.BufferUsageVertexBufferBit},
	{metadata.BufferUsageIndirect, vk.BufferUsageIndirectBufferBit},
}

func bufferUsage(u metadata.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlagBits
	for _, b := range bufferUsages {
		if u&b.usage != 0 {
			out |= b.bit
		}
	}
	return vk.BufferUsageFlags(out)
}

func memoryProperties(h metadata.HostAccess) vk.MemoryPropertyFlagBits {
	switch h {
	case metadata.HostAccessWrite:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	case metadata.HostAccessRead:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit | vk.MemoryPropertyHostCachedBit
	}
	return vk.MemoryPropertyDeviceLocalBit
}
