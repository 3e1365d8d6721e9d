package headless

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

// BindingTable stores the current view of every slot, per instance.
type BindingTable struct {
	mu         sync.Mutex
	capacities [metadata.BindlessCategoryCount]uint32
	slots      []map[metadata.BindlessCategory]map[uint32]renderer.View
	writes     [][]renderer.BindingWrite
}

func newBindingTable(capacities [metadata.BindlessCategoryCount]uint32, instances int) *BindingTable {
	t := &BindingTable{
		capacities: capacities,
		slots:      make([]map[metadata.BindlessCategory]map[uint32]renderer.View, instances),
		writes:     make([][]renderer.BindingWrite, instances),
	}
	for i := range t.slots {
		t.slots[i] = map[metadata.BindlessCategory]map[uint32]renderer.View{}
	}
	return t
}

func (t *BindingTable) Write(instance int, writes []renderer.BindingWrite) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, w := range writes {
		if w.Slot >= t.capacities[w.Category] {
			return fmt.Errorf("headless: %s slot %d out of range", w.Category, w.Slot)
		}
		cat := t.slots[instance][w.Category]
		if cat == nil {
			cat = map[uint32]renderer.View{}
			t.slots[instance][w.Category] = cat
		}
		cat[w.Slot] = w.View
		t.writes[instance] = append(t.writes[instance], w)
	}
	return nil
}

// Slot returns the view bound to a slot of an instance, or nil.
func (t *BindingTable) Slot(instance int, category metadata.BindlessCategory, slot uint32) renderer.View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[instance][category][slot]
}

// Writes returns every write applied to an instance so far.
func (t *BindingTable) Writes(instance int) []renderer.BindingWrite {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]renderer.BindingWrite(nil), t.writes[instance]...)
}
