package vulkan

import (
	"fmt"
	"sync"
)

// LockGroup names a set of Vulkan objects whose calls must not overlap.
type LockGroup uint8

const (
	// MemoryManagement covers allocation, binding and mapping of device memory.
	MemoryManagement LockGroup = iota
	// DescriptorManagement covers writes to the bindless descriptor sets.
	DescriptorManagement

	lockGroupCount
)

func (g LockGroup) String() string {
	switch g {
	case MemoryManagement:
		return "memory_management"
	case DescriptorManagement:
		return "descriptor_management"
	}
	return fmt.Sprintf("lock_group(%d)", uint8(g))
}

// VulkanLockPool hands out the host side locks Vulkan leaves to the
// application: one per LockGroup and one per queue family.
type VulkanLockPool struct {
	groups [lockGroupCount]sync.Mutex

	// families is filled while the device is created and read-only after
	familiesMu sync.RWMutex
	families   map[uint32]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{families: make(map[uint32]*sync.Mutex)}
}

func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	if group >= lockGroupCount {
		return fmt.Errorf("vulkan: unknown %s", group)
	}
	l := &vs.groups[group]
	l.Lock()
	defer l.Unlock()
	return fn()
}

// SetQueueFamily registers a family. Queue kinds mapped to the same family
// share its lock.
func (vs *VulkanLockPool) SetQueueFamily(index uint32) {
	vs.familiesMu.Lock()
	defer vs.familiesMu.Unlock()
	if _, ok := vs.families[index]; !ok {
		vs.families[index] = &sync.Mutex{}
	}
}

func (vs *VulkanLockPool) SafeQueueCall(family uint32, fn func() error) error {
	vs.familiesMu.RLock()
	l, ok := vs.families[family]
	vs.familiesMu.RUnlock()
	if !ok {
		return fmt.Errorf("vulkan: queue family %d was never registered", family)
	}

	l.Lock()
	defer l.Unlock()
	return fn()
}
