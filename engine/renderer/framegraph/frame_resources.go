package framegraph

import (
	"fmt"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/bindless"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

// shaderHandles are the bindless slots of one view.
type shaderHandles struct {
	read  bindless.Handle
	write bindless.Handle
}

// frameResources owns the concrete objects of one double-buffer slot.
type frameResources struct {
	resources []renderer.Resource
	external  []bool
	culled    []bool
	views     []renderer.View
	handles   []shaderHandles

	// one pool per batch so batches can be recorded concurrently
	pools     [metadata.QueueCount][]renderer.CommandPool
	poolsUsed [metadata.QueueCount]int

	// timeline values every queue must reach before the slot is reused
	waitValues [metadata.QueueCount]uint64
}

func (fr *frameResources) growResources(n int) {
	for len(fr.resources) < n {
		fr.resources = append(fr.resources, nil)
		fr.external = append(fr.external, false)
		fr.culled = append(fr.culled, false)
	}
}

func (fr *frameResources) importResource(index uint32, resource renderer.Resource) {
	fr.growResources(int(index) + 1)
	fr.resources[index] = resource
	fr.external[index] = true
}

// commandPool hands out the next unused pool of a queue, creating it on demand.
func (fr *frameResources) commandPool(device renderer.Device, queue metadata.QueueKind) (renderer.CommandPool, error) {
	used := fr.poolsUsed[queue]
	if used == len(fr.pools[queue]) {
		pool, err := device.CreateCommandPool(queue)
		if err != nil {
			err = fmt.Errorf("failed to create %s command pool: %w", queue, err)
			core.LogError(err.Error())
			return nil, err
		}
		fr.pools[queue] = append(fr.pools[queue], pool)
	}
	fr.poolsUsed[queue]++
	return fr.pools[queue][used], nil
}

// release destroys everything the slot created and resets its command pools.
// The caller has already waited for waitValues.
func (fr *frameResources) release(device renderer.Device) error {
	for _, v := range fr.views {
		if v != nil {
			device.DestroyView(v)
		}
	}
	for i, r := range fr.resources {
		if r != nil && !fr.external[i] {
			device.DestroyResource(r)
		}
	}
	fr.resources = fr.resources[:0]
	fr.external = fr.external[:0]
	fr.culled = fr.culled[:0]
	fr.views = fr.views[:0]
	fr.handles = fr.handles[:0]

	for q := range fr.pools {
		for _, pool := range fr.pools[q][:fr.poolsUsed[q]] {
			if err := pool.Reset(); err != nil {
				err = fmt.Errorf("failed to reset %s command pool: %w", metadata.QueueKind(q), err)
				core.LogError(err.Error())
				return err
			}
		}
		fr.poolsUsed[q] = 0
	}
	return nil
}

func (fr *frameResources) destroyPools(device renderer.Device) {
	for q := range fr.pools {
		for _, pool := range fr.pools[q] {
			device.DestroyCommandPool(pool)
		}
		fr.pools[q] = nil
		fr.poolsUsed[q] = 0
	}
}

// isReferenced reports whether any subresource of the resource has a usage.
func (fg *FrameGraph) isReferenced(res *resourceDescription) bool {
	for sub := uint32(0); sub < res.subresourceCount; sub++ {
		if len(fg.usages[res.usageOffset+sub]) > 0 {
			return true
		}
	}
	return false
}

// createResources materializes every referenced resource and the views on
// them in the current slot. Unreferenced resources are culled.
func (fg *FrameGraph) createResources() error {
	fr := fg.currentFrame()
	fr.growResources(len(fg.resources))

	for i := range fg.resources {
		res := &fg.resources[i]
		if fr.external[i] {
			continue
		}
		if !fg.isReferenced(res) {
			fr.culled[i] = true
			fg.stats.CulledResources++
			continue
		}

		var (
			created renderer.Resource
			err     error
		)
		switch v := res.variant.(type) {
		case *imageResource:
			desc := v.desc
			desc.Usage |= v.usage
			desc.Flags |= v.flags
			created, err = fg.device.CreateImage(desc)
		case *bufferResource:
			desc := v.desc
			desc.Usage |= v.usage
			desc.HostAccess = v.host
			created, err = fg.device.CreateBuffer(desc)
		}
		if err != nil {
			err = fmt.Errorf("failed to create %s %q: %w", res.variant.kind(), res.name, err)
			core.LogError(err.Error())
			return err
		}
		fr.resources[i] = created
	}

	fr.views = make([]renderer.View, len(fg.views))
	fr.handles = make([]shaderHandles, len(fg.views))
	for i := range fg.views {
		view := &fg.views[i]
		owner := fr.resources[view.resource]
		if owner == nil {
			continue
		}
		res := &fg.resources[view.resource]

		var (
			created renderer.View
			err     error
		)
		switch v := view.variant.(type) {
		case *imageView:
			created, err = fg.device.CreateImageView(owner, v.desc)
		case *bufferView:
			created, err = fg.device.CreateBufferView(owner, v.desc)
		}
		if err != nil {
			err = fmt.Errorf("failed to create view %q of %q: %w", view.name, res.name, err)
			core.LogError(err.Error())
			return err
		}
		fr.views[i] = created
		fr.handles[i] = fg.registerShaderHandles(res, view, created)
	}
	return nil
}

// registerShaderHandles gives shader-visible views transient bindless slots.
func (fg *FrameGraph) registerShaderHandles(res *resourceDescription, view *viewDescription, created renderer.View) shaderHandles {
	var h shaderHandles
	switch r := res.variant.(type) {
	case *imageResource:
		usage := r.usage | r.desc.Usage
		if usage&metadata.ImageUsageSampled != 0 {
			h.read = fg.bindless.CreateTextureHandle(created, true)
		}
		if usage&metadata.ImageUsageStorage != 0 {
			h.write = fg.bindless.CreateRWTextureHandle(created, true)
		}
	case *bufferResource:
		usage := r.usage | r.desc.Usage
		if !usage.ShaderVisible() {
			break
		}
		if view.variant.(*bufferView).desc.Typed() {
			if usage&metadata.BufferUsageUniformTexel != 0 {
				h.read = fg.bindless.CreateTypedBufferHandle(created, true)
			}
			if usage&metadata.BufferUsageStorageTexel != 0 {
				h.write = fg.bindless.CreateRWTypedBufferHandle(created, true)
			}
		} else if usage&metadata.BufferUsageStorage != 0 {
			h.read = fg.bindless.CreateByteBufferHandle(created, true)
			h.write = fg.bindless.CreateRWByteBufferHandle(created, true)
		}
	}
	if h.read.IsValid() || h.write.IsValid() {
		fg.stats.BindlessHandles++
	}
	return h
}
