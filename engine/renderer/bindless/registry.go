// Package bindless hands out small shader-visible integers for views and
// keeps a double-buffered binding table in sync with them.
package bindless

import (
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/anima-framegraph/engine/containers"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

// BufferedInstances matches the frame graph's double buffering.
const BufferedInstances = 2

// Handle is a slot in one category of the bindless table.
type Handle struct {
	category metadata.BindlessCategory
	slot     containers.Slot[uint32]
	// instance owning a transient handle, -1 for persistent ones
	instance int32
}

// InvalidHandle is returned when a category has no free slot left.
var InvalidHandle = Handle{instance: -1}

func (h Handle) IsValid() bool {
	return h.slot.IsValid()
}

// Index is the value shaders use to address the slot.
func (h Handle) Index() uint32 {
	return h.slot.Index
}

func (h Handle) Category() metadata.BindlessCategory {
	return h.category
}

func (h Handle) String() string {
	return fmt.Sprintf("%s:%s", h.category, h.slot)
}

type Config struct {
	Capacities [metadata.BindlessCategoryCount]uint32
}

// DefaultConfig sizes every category for a typical scene.
func DefaultConfig() Config {
	return Config{Capacities: [metadata.BindlessCategoryCount]uint32{
		metadata.BindlessTexture:       4096,
		metadata.BindlessRWTexture:     1024,
		metadata.BindlessTypedBuffer:   1024,
		metadata.BindlessRWTypedBuffer: 1024,
		metadata.BindlessByteBuffer:    4096,
		metadata.BindlessRWByteBuffer:  4096,
	}}
}

type pendingKey struct {
	category metadata.BindlessCategory
	slot     uint32
}

// instance holds the pending writes of one buffered table instance. A later
// write to the same key replaces the earlier one in place.
type instance struct {
	lock    containers.SpinLock
	order   []pendingKey
	updates map[pendingKey]renderer.View
}

func (in *instance) put(key pendingKey, view renderer.View) {
	in.lock.Lock()
	defer in.lock.Unlock()
	if _, ok := in.updates[key]; !ok {
		in.order = append(in.order, key)
	}
	in.updates[key] = view
}

func (in *instance) drop(key pendingKey) {
	in.lock.Lock()
	defer in.lock.Unlock()
	delete(in.updates, key)
}

func (in *instance) take() []renderer.BindingWrite {
	in.lock.Lock()
	defer in.lock.Unlock()
	writes := make([]renderer.BindingWrite, 0, len(in.updates))
	for _, key := range in.order {
		view, ok := in.updates[key]
		if !ok {
			continue
		}
		delete(in.updates, key)
		writes = append(writes, renderer.BindingWrite{Category: key.category, Slot: key.slot, View: view})
	}
	in.order = in.order[:0]
	clear(in.updates)
	return writes
}

func (in *instance) len() int {
	in.lock.Lock()
	defer in.lock.Unlock()
	return len(in.updates)
}

type category struct {
	lock      containers.SpinLock
	allocator *containers.HandleAllocator[uint32]
}

// Registry is safe for concurrent use by pass recording callbacks, except
// FlushChanges and SwapSets which run on the frame thread.
type Registry struct {
	table      renderer.BindingTable
	categories [metadata.BindlessCategoryCount]category
	instances  [BufferedInstances]instance
	current    atomic.Int32
}

func New(table renderer.BindingTable, cfg Config) *Registry {
	r := &Registry{table: table}
	for i := range r.categories {
		r.categories[i].allocator = containers.NewHandleAllocator[uint32](int(cfg.Capacities[i]), BufferedInstances)
	}
	for i := range r.instances {
		r.instances[i].updates = map[pendingKey]renderer.View{}
	}
	return r
}

// CurrentInstance is the table instance the frame being built will use.
func (r *Registry) CurrentInstance() int {
	return int(r.current.Load())
}

// CreateHandle allocates a slot for view. Transient handles are only written
// to the current instance and are released automatically once this
// instance comes around again; persistent handles are written to every
// instance and live until DestroyHandle.
func (r *Registry) CreateHandle(cat metadata.BindlessCategory, view renderer.View, transient bool) Handle {
	core.Assert(int(cat) < metadata.BindlessCategoryCount, "unknown bindless category %d", cat)
	core.Assert(view != nil, "bindless %s handle created without a view", cat)

	current := r.CurrentInstance()
	c := &r.categories[cat]
	c.lock.Lock()
	var slot containers.Slot[uint32]
	if transient {
		slot = c.allocator.AllocateTransient(current)
	} else {
		slot = c.allocator.Allocate()
	}
	c.lock.Unlock()

	if !slot.IsValid() {
		core.LogWarn("bindless %s table is full (%d slots)", cat, c.allocator.Capacity())
		return InvalidHandle
	}

	h := Handle{category: cat, slot: slot, instance: -1}
	if transient {
		h.instance = int32(current)
	}
	r.enqueue(h, view)
	return h
}

func (r *Registry) CreateTextureHandle(view renderer.View, transient bool) Handle {
	return r.CreateHandle(metadata.BindlessTexture, view, transient)
}

func (r *Registry) CreateRWTextureHandle(view renderer.View, transient bool) Handle {
	return r.CreateHandle(metadata.BindlessRWTexture, view, transient)
}

func (r *Registry) CreateTypedBufferHandle(view renderer.View, transient bool) Handle {
	return r.CreateHandle(metadata.BindlessTypedBuffer, view, transient)
}

func (r *Registry) CreateRWTypedBufferHandle(view renderer.View, transient bool) Handle {
	return r.CreateHandle(metadata.BindlessRWTypedBuffer, view, transient)
}

func (r *Registry) CreateByteBufferHandle(view renderer.View, transient bool) Handle {
	return r.CreateHandle(metadata.BindlessByteBuffer, view, transient)
}

func (r *Registry) CreateRWByteBufferHandle(view renderer.View, transient bool) Handle {
	return r.CreateHandle(metadata.BindlessRWByteBuffer, view, transient)
}

// IsTransient reports whether h is released with its table instance.
func (h Handle) IsTransient() bool {
	return h.instance >= 0
}

// UpdateHandle points an existing handle at another view. Persistent handles
// are rewritten in every instance; transient ones only in their own
// instance, and only while it is current.
func (r *Registry) UpdateHandle(h Handle, view renderer.View) error {
	if !h.IsValid() {
		return core.ErrInvalidHandle
	}
	core.Assert(view != nil, "bindless %s handle updated without a view", h.category)
	if !r.isLive(h) {
		return fmt.Errorf("bindless handle %s: %w", h, core.ErrStaleHandle)
	}
	if h.IsTransient() && int(h.instance) != r.CurrentInstance() {
		return fmt.Errorf("transient bindless handle %s belongs to a retired instance: %w", h, core.ErrStaleHandle)
	}
	r.enqueue(h, view)
	return nil
}

// DestroyHandle drops every pending write of the slot and frees it.
func (r *Registry) DestroyHandle(h Handle) error {
	if !h.IsValid() {
		return core.ErrInvalidHandle
	}
	c := &r.categories[h.category]
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.allocator.IsLive(h.slot) {
		return fmt.Errorf("bindless handle %s: %w", h, core.ErrStaleHandle)
	}
	key := pendingKey{category: h.category, slot: h.slot.Index}
	for i := range r.instances {
		r.instances[i].drop(key)
	}
	return c.allocator.Free(h.slot)
}

// FlushChanges applies the pending writes of the current instance.
func (r *Registry) FlushChanges() error {
	current := r.CurrentInstance()
	writes := r.instances[current].take()
	if len(writes) == 0 {
		return nil
	}
	if err := r.table.Write(current, writes); err != nil {
		err = fmt.Errorf("failed to flush %d bindless writes: %w", len(writes), err)
		core.LogError(err.Error())
		return err
	}
	return nil
}

// SwapSets advances to the next instance and releases the transient slots
// that were allocated the last time that instance was current. Writes still
// pending for a released slot are dropped from every instance.
func (r *Registry) SwapSets() {
	next := (r.CurrentInstance() + 1) % BufferedInstances
	r.current.Store(int32(next))
	for i := range r.categories {
		c := &r.categories[i]
		c.lock.Lock()
		freed := c.allocator.FreeTransientHandles(next)
		for _, s := range freed {
			key := pendingKey{category: metadata.BindlessCategory(i), slot: s.Index}
			for j := range r.instances {
				r.instances[j].drop(key)
			}
		}
		c.lock.Unlock()
	}
}

// PendingWrites is the number of writes waiting for a flush of an instance.
func (r *Registry) PendingWrites(instance int) int {
	return r.instances[instance].len()
}

// Available is the number of free slots left in a category.
func (r *Registry) Available(cat metadata.BindlessCategory) int {
	c := &r.categories[cat]
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.allocator.Available()
}

func (r *Registry) isLive(h Handle) bool {
	c := &r.categories[h.category]
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.allocator.IsLive(h.slot)
}

func (r *Registry) enqueue(h Handle, view renderer.View) {
	key := pendingKey{category: h.category, slot: h.slot.Index}
	if h.IsTransient() {
		r.instances[h.instance].put(key, view)
		return
	}
	for i := range r.instances {
		r.instances[i].put(key, view)
	}
}
