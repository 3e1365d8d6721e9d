package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

/**
 * @brief Descriptor type backing each bindless category. The binding of a
 * category in the set equals its category index.
 */
var categoryDescriptors = [metadata.BindlessCategoryCount]vk.DescriptorType{
	metadata.BindlessTexture:       vk.DescriptorTypeSampledImage,
	metadata.BindlessRWTexture:     vk.DescriptorTypeStorageImage,
	metadata.BindlessTypedBuffer:   vk.DescriptorTypeUniformTexelBuffer,
	metadata.BindlessRWTypedBuffer: vk.DescriptorTypeStorageTexelBuffer,
	metadata.BindlessByteBuffer:    vk.DescriptorTypeStorageBuffer,
	metadata.BindlessRWByteBuffer:  vk.DescriptorTypeStorageBuffer,
}

/**
 * @brief The bindless table: one descriptor set per buffered instance, each
 * holding one partially bound array per category.
 */
type VulkanBindingTable struct {
	device     *Device
	Layout     vk.DescriptorSetLayout
	Pool       vk.DescriptorPool
	Sets       []vk.DescriptorSet
	capacities [metadata.BindlessCategoryCount]uint32
}

func (d *Device) CreateBindingTable(capacities [metadata.BindlessCategoryCount]uint32, instances int) (renderer.BindingTable, error) {
	t := &VulkanBindingTable{device: d, capacities: capacities}

	var (
		bindings  []vk.DescriptorSetLayoutBinding
		flags     []vk.DescriptorBindingFlags
		poolSizes []vk.DescriptorPoolSize
	)
	bindingFlags := vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit |
		vk.DescriptorBindingUpdateAfterBindBit | vk.DescriptorBindingUpdateUnusedWhilePendingBit)
	for category, count := range capacities {
		if count == 0 {
			continue
		}
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         uint32(category),
			DescriptorType:  categoryDescriptors[category],
			DescriptorCount: count,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
		})
		flags = append(flags, bindingFlags)
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            categoryDescriptors[category],
			DescriptorCount: count * uint32(instances),
		})
	}

	flagsInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
		SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
		BindingCount:  uint32(len(flags)),
		PBindingFlags: flags,
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		PNext:        unsafe.Pointer(&flagsInfo),
		Flags:        vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreateUpdateAfterBindPoolBit),
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if res := vk.CreateDescriptorSetLayout(d.logical(), &layoutInfo, d.context.Allocator, &t.Layout); res != vk.Success {
		return nil, vulkanError("create bindless set layout", res)
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateUpdateAfterBindBit),
		MaxSets:       uint32(instances),
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if res := vk.CreateDescriptorPool(d.logical(), &poolInfo, d.context.Allocator, &t.Pool); res != vk.Success {
		t.destroy()
		return nil, vulkanError("create bindless descriptor pool", res)
	}

	t.Sets = make([]vk.DescriptorSet, instances)
	for i := range t.Sets {
		if res := vk.AllocateDescriptorSets(d.logical(), &vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     t.Pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{t.Layout},
		}, &t.Sets[i]); res != vk.Success {
			t.destroy()
			return nil, vulkanError("allocate bindless descriptor set", res)
		}
	}
	return t, nil
}

func (t *VulkanBindingTable) Write(instance int, writes []renderer.BindingWrite) error {
	if instance < 0 || instance >= len(t.Sets) {
		return fmt.Errorf("vulkan: binding table instance %d out of range", instance)
	}
	descriptorWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		if w.Slot >= t.capacities[w.Category] {
			return fmt.Errorf("vulkan: %s slot %d out of range", w.Category, w.Slot)
		}
		wd := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          t.Sets[instance],
			DstBinding:      uint32(w.Category),
			DstArrayElement: w.Slot,
			DescriptorCount: 1,
			DescriptorType:  categoryDescriptors[w.Category],
		}
		switch v := w.View.(type) {
		case *VulkanImageView:
			layout := vk.ImageLayoutShaderReadOnlyOptimal
			if w.Category == metadata.BindlessRWTexture {
				layout = vk.ImageLayoutGeneral
			}
			wd.PImageInfo = []vk.DescriptorImageInfo{{ImageView: v.Handle, ImageLayout: layout}}
		case *VulkanBufferView:
			if v.Handle != nil {
				wd.PTexelBufferView = []vk.BufferView{v.Handle}
			} else {
				wd.PBufferInfo = []vk.DescriptorBufferInfo{{
					Buffer: v.Buffer.Handle,
					Offset: vk.DeviceSize(v.Offset),
					Range:  vk.DeviceSize(v.Size),
				}}
			}
		default:
			return fmt.Errorf("vulkan: cannot bind %T to %s slot %d", w.View, w.Category, w.Slot)
		}
		descriptorWrites = append(descriptorWrites, wd)
	}
	if len(descriptorWrites) == 0 {
		return nil
	}
	return t.device.context.Locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(t.device.logical(), uint32(len(descriptorWrites)), descriptorWrites, 0, nil)
		return nil
	})
}

func (t *VulkanBindingTable) destroy() {
	if t.Pool != nil {
		// sets are freed with their pool
		vk.DestroyDescriptorPool(t.device.logical(), t.Pool, t.device.context.Allocator)
		t.Pool = nil
		t.Sets = nil
	}
	if t.Layout != nil {
		vk.DestroyDescriptorSetLayout(t.device.logical(), t.Layout, t.device.context.Allocator)
		t.Layout = nil
	}
}

func (d *Device) DestroyBindingTable(table renderer.BindingTable) {
	if t, ok := table.(*VulkanBindingTable); ok {
		t.destroy()
	}
}
