package renderer

import (
	"time"

	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

// Resource is a concrete image or buffer owned by a backend.
type Resource interface {
	Kind() metadata.ResourceKind
	Name() string
}

// View is a concrete view into exactly one Resource.
type View interface {
	Resource() Resource
	Name() string
}

// Barrier is a resolved synchronization barrier ready to be recorded.
type Barrier struct {
	Resource     Resource
	StagesBefore metadata.PipelineStage
	StagesAfter  metadata.PipelineStage
	StateBefore  metadata.ResourceState
	StateAfter   metadata.ResourceState
	SrcQueue     metadata.QueueKind
	DstQueue     metadata.QueueKind
	// Range is only meaningful for images.
	Range metadata.SubresourceRange
	Flags metadata.BarrierFlags
}

// CommandBuffer records work for one queue.
type CommandBuffer interface {
	Queue() metadata.QueueKind
	Begin() error
	End() error
	PipelineBarrier(barriers []Barrier)
	BeginLabel(name string)
	EndLabel()

	FillBuffer(dst View, value uint32)
	CopyBuffer(src, dst View, size uint64)
	ClearColorImage(dst View, color [4]float32)
	CopyBufferToImage(src, dst View)
	CopyImageToBuffer(src, dst View)
}

// CommandPool allocates command buffers for one queue. Reset recycles every
// buffer allocated since the previous reset.
type CommandPool interface {
	Queue() metadata.QueueKind
	Allocate() (CommandBuffer, error)
	Reset() error
}

// SubmitInfo describes one submission. Each queue owns one timeline
// semaphore; a zero wait value means "no wait on that queue".
type SubmitInfo struct {
	CommandBuffers []CommandBuffer
	WaitValues     [metadata.QueueCount]uint64
	WaitStages     [metadata.QueueCount]metadata.PipelineStage
	SignalValue    uint64
}

type Queue interface {
	Kind() metadata.QueueKind
	Submit(info SubmitInfo) error
	// Wait blocks until the queue's timeline semaphore reaches value.
	Wait(value uint64, timeout time.Duration) error
	// SignaledValue is the highest value submitted for signalling so far.
	SignaledValue() uint64
}

// BindingWrite points one bindless slot at a view.
type BindingWrite struct {
	Category metadata.BindlessCategory
	Slot     uint32
	View     View
}

// BindingTable is the backing store of the bindless registry: one table per
// buffered instance, each holding one array per category.
type BindingTable interface {
	Write(instance int, writes []BindingWrite) error
}

// Device creates and destroys everything the frame graph needs.
type Device interface {
	Queue(kind metadata.QueueKind) Queue

	CreateImage(desc metadata.ImageDesc) (Resource, error)
	CreateBuffer(desc metadata.BufferDesc) (Resource, error)
	CreateImageView(image Resource, desc metadata.ImageViewDesc) (View, error)
	CreateBufferView(buffer Resource, desc metadata.BufferViewDesc) (View, error)
	DestroyView(view View)
	DestroyResource(resource Resource)

	CreateCommandPool(queue metadata.QueueKind) (CommandPool, error)
	DestroyCommandPool(pool CommandPool)

	CreateBindingTable(capacities [metadata.BindlessCategoryCount]uint32, instances int) (BindingTable, error)
	DestroyBindingTable(table BindingTable)

	// MapBuffer returns the host memory behind a buffer view of a host-visible buffer.
	MapBuffer(view View) ([]byte, error)
	UnmapBuffer(view View)

	WaitIdle() error
	Destroy()
}
