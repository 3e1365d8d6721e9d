package framegraph

import "fmt"

// ResourceHandle names a resource declared in the current frame. Index is
// 1-based; the zero value is invalid. The generation ties the handle to the
// frame it was declared in.
type ResourceHandle struct {
	index      uint32
	generation uint32
}

func (h ResourceHandle) IsValid() bool {
	return h.index != 0
}

func (h ResourceHandle) String() string {
	return fmt.Sprintf("resource(%d@%d)", h.index, h.generation)
}

// ResourceViewHandle names a view declared in the current frame.
type ResourceViewHandle struct {
	index      uint32
	generation uint32
}

func (h ResourceViewHandle) IsValid() bool {
	return h.index != 0
}

func (h ResourceViewHandle) String() string {
	return fmt.Sprintf("view(%d@%d)", h.index, h.generation)
}
