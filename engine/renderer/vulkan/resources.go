package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	Desc   metadata.ImageDesc
}

func (i *VulkanImage) Kind() metadata.ResourceKind { return metadata.ResourceKindImage }
func (i *VulkanImage) Name() string                { return i.Desc.Name }

type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Desc   metadata.BufferDesc

	mapped unsafe.Pointer
	maps   int
}

func (b *VulkanBuffer) Kind() metadata.ResourceKind { return metadata.ResourceKindBuffer }
func (b *VulkanBuffer) Name() string                { return b.Desc.Name }

type VulkanImageView struct {
	Handle vk.ImageView
	Image  *VulkanImage
	Desc   metadata.ImageViewDesc
	// Range resolved against the image.
	Range metadata.SubresourceRange
}

func (v *VulkanImageView) Resource() renderer.Resource { return v.Image }
func (v *VulkanImageView) Name() string                { return v.Desc.Name }

// VulkanBufferView is a texel buffer view when the description has a format,
// otherwise a byte range with no Vulkan object behind it.
type VulkanBufferView struct {
	Handle vk.BufferView
	Buffer *VulkanBuffer
	Desc   metadata.BufferViewDesc
	Offset uint64
	Size   uint64
}

func (v *VulkanBufferView) Resource() renderer.Resource { return v.Buffer }
func (v *VulkanBufferView) Name() string                { return v.Desc.Name }

// sharing returns the sharing mode for a resource and the families it is
// shared between.
func (d *Device) sharing(concurrent bool) (vk.SharingMode, []uint32) {
	families := d.context.Device.UniqueFamilies()
	if !concurrent || len(families) < 2 {
		return vk.SharingModeExclusive, nil
	}
	return vk.SharingModeConcurrent, families
}

func (d *Device) allocate(reqs vk.MemoryRequirements, props vk.MemoryPropertyFlagBits, name string) (vk.DeviceMemory, error) {
	reqs.Deref()
	index := d.context.FindMemoryIndex(reqs.MemoryTypeBits, uint32(props))
	if index < 0 {
		err := fmt.Errorf("vulkan: no memory type for %q", name)
		core.LogError(err.Error())
		return nil, err
	}
	var memory vk.DeviceMemory
	err := d.context.Locks.SafeCall(MemoryManagement, func() error {
		if res := vk.AllocateMemory(d.logical(), &vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  reqs.Size,
			MemoryTypeIndex: uint32(index),
		}, d.context.Allocator, &memory); res != vk.Success {
			return vulkanError(fmt.Sprintf("allocate memory for %q", name), res)
		}
		return nil
	})
	return memory, err
}

func (d *Device) CreateImage(desc metadata.ImageDesc) (renderer.Resource, error) {
	mode, families := d.sharing(desc.Concurrent)
	samples := desc.Samples
	if samples == 0 {
		samples = 1
	}
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     imageFlags(desc.Flags),
		ImageType: imageType(desc.Type),
		Format:    vulkanFormat(desc.Format),
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: max(desc.Height, 1),
			Depth:  max(desc.Depth, 1),
		},
		MipLevels:             max(desc.Levels, 1),
		ArrayLayers:           max(desc.Layers, 1),
		Samples:               vk.SampleCountFlagBits(samples),
		Tiling:                vk.ImageTilingOptimal,
		Usage:                 imageUsage(desc.Usage),
		SharingMode:           mode,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
		InitialLayout:         vk.ImageLayoutUndefined,
	}

	image := &VulkanImage{Desc: desc}
	if res := vk.CreateImage(d.logical(), &createInfo, d.context.Allocator, &image.Handle); res != vk.Success {
		return nil, vulkanError(fmt.Sprintf("create image %q", desc.Name), res)
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical(), image.Handle, &reqs)
	memory, err := d.allocate(reqs, vk.MemoryPropertyDeviceLocalBit, desc.Name)
	if err != nil {
		vk.DestroyImage(d.logical(), image.Handle, d.context.Allocator)
		return nil, err
	}
	image.Memory = memory
	if res := vk.BindImageMemory(d.logical(), image.Handle, memory, 0); res != vk.Success {
		d.destroyImage(image)
		return nil, vulkanError(fmt.Sprintf("bind image memory %q", desc.Name), res)
	}
	return image, nil
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (renderer.Resource, error) {
	mode, families := d.sharing(desc.Concurrent)
	createInfo := vk.BufferCreateInfo{
		SType:                 vk.StructureTypeBufferCreateInfo,
		Size:                  vk.DeviceSize(desc.Size),
		Usage:                 bufferUsage(desc.Usage),
		SharingMode:           mode,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
	}

	buffer := &VulkanBuffer{Desc: desc}
	if res := vk.CreateBuffer(d.logical(), &createInfo, d.context.Allocator, &buffer.Handle); res != vk.Success {
		return nil, vulkanError(fmt.Sprintf("create buffer %q", desc.Name), res)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical(), buffer.Handle, &reqs)
	memory, err := d.allocate(reqs, memoryProperties(desc.HostAccess), desc.Name)
	if err != nil {
		vk.DestroyBuffer(d.logical(), buffer.Handle, d.context.Allocator)
		return nil, err
	}
	buffer.Memory = memory
	if res := vk.BindBufferMemory(d.logical(), buffer.Handle, memory, 0); res != vk.Success {
		d.destroyBuffer(buffer)
		return nil, vulkanError(fmt.Sprintf("bind buffer memory %q", desc.Name), res)
	}
	return buffer, nil
}

func (d *Device) CreateImageView(image renderer.Resource, desc metadata.ImageViewDesc) (renderer.View, error) {
	img, ok := image.(*VulkanImage)
	if !ok {
		return nil, fmt.Errorf("vulkan: view %q of a foreign image", desc.Name)
	}
	format := desc.Format
	if format == metadata.FormatUndefined {
		format = img.Desc.Format
	}
	rng := desc.Range.Resolve(max(img.Desc.Levels, 1), max(img.Desc.Layers, 1))

	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: imageViewType(desc.Type),
		Format:   vulkanFormat(format),
		Components: vk.ComponentMapping{
			R: swizzle(desc.Components.R),
			G: swizzle(desc.Components.G),
			B: swizzle(desc.Components.B),
			A: swizzle(desc.Components.A),
		},
		SubresourceRange: subresourceRange(format, rng),
	}

	view := &VulkanImageView{Image: img, Desc: desc, Range: rng}
	if res := vk.CreateImageView(d.logical(), &createInfo, d.context.Allocator, &view.Handle); res != vk.Success {
		return nil, vulkanError(fmt.Sprintf("create image view %q", desc.Name), res)
	}
	return view, nil
}

func (d *Device) CreateBufferView(buffer renderer.Resource, desc metadata.BufferViewDesc) (renderer.View, error) {
	buf, ok := buffer.(*VulkanBuffer)
	if !ok {
		return nil, fmt.Errorf("vulkan: view %q of a foreign buffer", desc.Name)
	}
	if desc.Offset > buf.Desc.Size {
		return nil, fmt.Errorf("vulkan: view %q starts past the end of %q", desc.Name, buf.Desc.Name)
	}
	size := desc.Range
	if size == 0 {
		size = buf.Desc.Size - desc.Offset
	}

	view := &VulkanBufferView{Buffer: buf, Desc: desc, Offset: desc.Offset, Size: size}
	if desc.Typed() {
		createInfo := vk.BufferViewCreateInfo{
			SType:  vk.StructureTypeBufferViewCreateInfo,
			Buffer: buf.Handle,
			Format: vulkanFormat(desc.Format),
			Offset: vk.DeviceSize(desc.Offset),
			Range:  vk.DeviceSize(size),
		}
		if res := vk.CreateBufferView(d.logical(), &createInfo, d.context.Allocator, &view.Handle); res != vk.Success {
			return nil, vulkanError(fmt.Sprintf("create buffer view %q", desc.Name), res)
		}
	}
	return view, nil
}

func (d *Device) DestroyView(view renderer.View) {
	switch v := view.(type) {
	case *VulkanImageView:
		if v.Handle != nil {
			vk.DestroyImageView(d.logical(), v.Handle, d.context.Allocator)
			v.Handle = nil
		}
	case *VulkanBufferView:
		if v.Handle != nil {
			vk.DestroyBufferView(d.logical(), v.Handle, d.context.Allocator)
			v.Handle = nil
		}
	}
}

func (d *Device) DestroyResource(resource renderer.Resource) {
	switch r := resource.(type) {
	case *VulkanImage:
		d.destroyImage(r)
	case *VulkanBuffer:
		d.destroyBuffer(r)
	}
}

func (d *Device) destroyImage(img *VulkanImage) {
	if img.Handle != nil {
		vk.DestroyImage(d.logical(), img.Handle, d.context.Allocator)
		img.Handle = nil
	}
	if img.Memory != nil {
		vk.FreeMemory(d.logical(), img.Memory, d.context.Allocator)
		img.Memory = nil
	}
}

func (d *Device) destroyBuffer(buf *VulkanBuffer) {
	if buf.mapped != nil {
		vk.UnmapMemory(d.logical(), buf.Memory)
		buf.mapped = nil
		buf.maps = 0
	}
	if buf.Handle != nil {
		vk.DestroyBuffer(d.logical(), buf.Handle, d.context.Allocator)
		buf.Handle = nil
	}
	if buf.Memory != nil {
		vk.FreeMemory(d.logical(), buf.Memory, d.context.Allocator)
		buf.Memory = nil
	}
}

// MapBuffer maps the memory of the whole buffer once and hands out the
// view's window into it. Mappings are reference counted.
func (d *Device) MapBuffer(view renderer.View) ([]byte, error) {
	v, ok := view.(*VulkanBufferView)
	if !ok {
		return nil, fmt.Errorf("vulkan: cannot map %q: %w", view.Name(), core.ErrNotHostVisible)
	}
	buf := v.Buffer
	if buf.Desc.HostAccess == metadata.HostAccessNone {
		return nil, fmt.Errorf("vulkan: cannot map %q: %w", buf.Desc.Name, core.ErrNotHostVisible)
	}

	err := d.context.Locks.SafeCall(MemoryManagement, func() error {
		if buf.mapped == nil {
			var ptr unsafe.Pointer
			if res := vk.MapMemory(d.logical(), buf.Memory, 0, vk.DeviceSize(vk.WholeSize), 0, &ptr); res != vk.Success {
				return vulkanError(fmt.Sprintf("map %q", buf.Desc.Name), res)
			}
			buf.mapped = ptr
		}
		buf.maps++
		return nil
	})
	if err != nil {
		return nil, err
	}
	all := unsafe.Slice((*byte)(buf.mapped), buf.Desc.Size)
	return all[v.Offset : v.Offset+v.Size], nil
}

func (d *Device) UnmapBuffer(view renderer.View) {
	v, ok := view.(*VulkanBufferView)
	if !ok {
		return
	}
	buf := v.Buffer
	_ = d.context.Locks.SafeCall(MemoryManagement, func() error {
		if buf.maps == 0 {
			return nil
		}
		buf.maps--
		if buf.maps == 0 {
			vk.UnmapMemory(d.logical(), buf.Memory)
			buf.mapped = nil
		}
		return nil
	})
}

func subresourceRange(format metadata.Format, r metadata.SubresourceRange) vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     aspectMask(format),
		BaseMipLevel:   r.BaseLevel,
		LevelCount:     r.LevelCount,
		BaseArrayLayer: r.BaseLayer,
		LayerCount:     r.LayerCount,
	}
}
