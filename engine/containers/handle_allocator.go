package containers

import (
	"fmt"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"golang.org/x/exp/constraints"
)

// Slot is an allocated index tagged with the generation it was handed out in.
// The zero value is the "no handle" sentinel.
type Slot[T constraints.Unsigned] struct {
	Index      T
	Generation uint32
}

func (s Slot[T]) IsValid() bool {
	return s.Generation != 0
}

func (s Slot[T]) String() string {
	if !s.IsValid() {
		return "slot(invalid)"
	}
	return fmt.Sprintf("slot(%d@%d)", s.Index, s.Generation)
}

// HandleAllocator hands out indices in [0, capacity) from a FIFO free list.
// Every slot carries a generation counter bumped on free, so a Slot that
// outlived its allocation is detected instead of aliasing the new owner.
//
// Transient slots are additionally recorded in one of several sets and are
// released in bulk by FreeTransientHandles. The allocator is not safe for
// concurrent use; callers guard it.
type HandleAllocator[T constraints.Unsigned] struct {
	generations []uint32
	live        []bool
	free        *RingQueue[T]
	transients  [][]Slot[T]
}

func NewHandleAllocator[T constraints.Unsigned](capacity int, transientSets int) *HandleAllocator[T] {
	if transientSets < 1 {
		transientSets = 1
	}
	a := &HandleAllocator[T]{
		generations: make([]uint32, capacity),
		live:        make([]bool, capacity),
		free:        NewRingQueue[T](capacity),
		transients:  make([][]Slot[T], transientSets),
	}
	for i := 0; i < capacity; i++ {
		_ = a.free.Enqueue(T(i))
	}
	return a
}

// Allocate returns a free slot, or the invalid Slot when the allocator is exhausted.
func (a *HandleAllocator[T]) Allocate() Slot[T] {
	index, err := a.free.Dequeue()
	if err != nil {
		return Slot[T]{}
	}
	a.generations[index]++
	if a.generations[index] == 0 {
		a.generations[index] = 1
	}
	a.live[index] = true
	return Slot[T]{Index: index, Generation: a.generations[index]}
}

// AllocateTransient allocates a slot that is released by FreeTransientHandles(set).
func (a *HandleAllocator[T]) AllocateTransient(set int) Slot[T] {
	s := a.Allocate()
	if s.IsValid() {
		a.transients[set] = append(a.transients[set], s)
	}
	return s
}

// Free returns the slot to the free list.
func (a *HandleAllocator[T]) Free(s Slot[T]) error {
	if !s.IsValid() || int(s.Index) >= len(a.generations) {
		return core.ErrInvalidHandle
	}
	if !a.IsLive(s) {
		return core.ErrStaleHandle
	}
	a.release(s.Index)
	return nil
}

// FreeTransientHandles releases every transient slot recorded in set that
// has not been freed explicitly in the meantime, and returns those slots.
func (a *HandleAllocator[T]) FreeTransientHandles(set int) []Slot[T] {
	var freed []Slot[T]
	for _, s := range a.transients[set] {
		if a.IsLive(s) {
			a.release(s.Index)
			freed = append(freed, s)
		}
	}
	a.transients[set] = a.transients[set][:0]
	return freed
}

// IsLive reports whether s is the current allocation of its index.
func (a *HandleAllocator[T]) IsLive(s Slot[T]) bool {
	if !s.IsValid() || int(s.Index) >= len(a.generations) {
		return false
	}
	return a.live[s.Index] && a.generations[s.Index] == s.Generation
}

func (a *HandleAllocator[T]) Capacity() int {
	return len(a.generations)
}

// Available is the number of slots that can still be allocated.
func (a *HandleAllocator[T]) Available() int {
	return a.free.Len()
}

func (a *HandleAllocator[T]) release(index T) {
	a.live[index] = false
	// capacity-sized queue never overflows: each index is enqueued at most once
	_ = a.free.Enqueue(index)
}
