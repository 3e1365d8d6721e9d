// Package headless implements the renderer capability interfaces entirely in
// host memory. Submitted work executes synchronously at submit time, which
// makes every queue's timeline advance immediately and lets callers inspect
// exactly what the frame graph recorded.
package headless

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-framegraph/engine/containers"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

func init() {
	renderer.RegisterBackend(renderer.Headless, func(opts renderer.DeviceOptions) (renderer.Device, error) {
		return New(), nil
	})
}

type EventKind uint8

const (
	EventCreateImage EventKind = iota
	EventCreateBuffer
	EventCreateImageView
	EventCreateBufferView
	EventDestroyResource
	EventDestroyView
	EventResetCommandPool
)

func (k EventKind) String() string {
	switch k {
	case EventCreateImage:
		return "create-image"
	case EventCreateBuffer:
		return "create-buffer"
	case EventCreateImageView:
		return "create-image-view"
	case EventCreateBufferView:
		return "create-buffer-view"
	case EventDestroyResource:
		return "destroy-resource"
	case EventDestroyView:
		return "destroy-view"
	case EventResetCommandPool:
		return "reset-command-pool"
	}
	return "unknown"
}

// Event is one device-level call, kept for inspection.
type Event struct {
	Kind EventKind
	Name string
}

// LogCapacity bounds the event and submission logs. Older entries are
// dropped first.
const LogCapacity = 4096

type Device struct {
	mu          sync.Mutex
	queues      [metadata.QueueCount]*Queue
	events      *containers.RingQueue[Event]
	submissions *containers.RingQueue[Submission]
	live        map[string]int
	lost        bool
}

var _ renderer.Device = (*Device)(nil)

func New() *Device {
	d := &Device{
		live:        map[string]int{},
		events:      containers.NewRingQueue[Event](LogCapacity),
		submissions: containers.NewRingQueue[Submission](LogCapacity),
	}
	for _, q := range metadata.AllQueues {
		d.queues[q] = &Queue{device: d, kind: q}
	}
	return d
}

func (d *Device) Queue(kind metadata.QueueKind) renderer.Queue {
	return d.queues[kind]
}

func (d *Device) CreateImage(desc metadata.ImageDesc) (renderer.Resource, error) {
	if desc.Width == 0 || desc.Height == 0 || desc.Layers == 0 || desc.Levels == 0 {
		return nil, fmt.Errorf("headless: invalid image extent for %q", desc.Name)
	}
	depth := desc.Depth
	if depth == 0 {
		depth = 1
	}
	img := &Image{desc: desc}
	img.layerSize = uint64(desc.Width) * uint64(desc.Height) * uint64(depth) * uint64(desc.Format.BytesPerTexel())
	img.data = make([]byte, img.layerSize*uint64(desc.Layers))
	d.record(EventCreateImage, desc.Name, 1)
	return img, nil
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (renderer.Resource, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("headless: zero-sized buffer %q", desc.Name)
	}
	buf := &Buffer{desc: desc, data: make([]byte, desc.Size)}
	d.record(EventCreateBuffer, desc.Name, 1)
	return buf, nil
}

func (d *Device) CreateImageView(image renderer.Resource, desc metadata.ImageViewDesc) (renderer.View, error) {
	img, ok := image.(*Image)
	if !ok {
		return nil, fmt.Errorf("headless: %q is not an image", image.Name())
	}
	if desc.Format == metadata.FormatUndefined {
		desc.Format = img.desc.Format
	}
	d.record(EventCreateImageView, desc.Name, 1)
	return &ImageView{image: img, desc: desc}, nil
}

func (d *Device) CreateBufferView(buffer renderer.Resource, desc metadata.BufferViewDesc) (renderer.View, error) {
	buf, ok := buffer.(*Buffer)
	if !ok {
		return nil, fmt.Errorf("headless: %q is not a buffer", buffer.Name())
	}
	if desc.Range == 0 {
		desc.Range = buf.desc.Size - desc.Offset
	}
	if desc.Offset+desc.Range > buf.desc.Size {
		return nil, fmt.Errorf("headless: view %q exceeds buffer %q", desc.Name, buf.desc.Name)
	}
	d.record(EventCreateBufferView, desc.Name, 1)
	return &BufferView{buffer: buf, desc: desc}, nil
}

func (d *Device) DestroyView(view renderer.View) {
	d.record(EventDestroyView, view.Name(), -1)
}

func (d *Device) DestroyResource(resource renderer.Resource) {
	d.record(EventDestroyResource, resource.Name(), -1)
}

func (d *Device) CreateCommandPool(queue metadata.QueueKind) (renderer.CommandPool, error) {
	return &CommandPool{device: d, queue: queue}, nil
}

func (d *Device) DestroyCommandPool(pool renderer.CommandPool) {}

func (d *Device) CreateBindingTable(capacities [metadata.BindlessCategoryCount]uint32, instances int) (renderer.BindingTable, error) {
	return newBindingTable(capacities, instances), nil
}

func (d *Device) DestroyBindingTable(table renderer.BindingTable) {}

func (d *Device) MapBuffer(view renderer.View) ([]byte, error) {
	bv, ok := view.(*BufferView)
	if !ok {
		return nil, fmt.Errorf("headless: %q is not a buffer view: %w", view.Name(), core.ErrNotHostVisible)
	}
	if bv.buffer.desc.HostAccess == metadata.HostAccessNone {
		return nil, fmt.Errorf("headless: buffer %q: %w", bv.buffer.desc.Name, core.ErrNotHostVisible)
	}
	return bv.bytes(), nil
}

func (d *Device) UnmapBuffer(view renderer.View) {}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return core.ErrDeviceLost
	}
	return nil
}

func (d *Device) Destroy() {
	if n := d.LiveObjects(); n > 0 {
		core.LogWarn("headless device destroyed with %d live objects", n)
	}
}

// Lose simulates a lost device: every later wait or submit fails.
func (d *Device) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
}

// Events returns a copy of every device-level call so far.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events.Items()
}

// Submissions returns a copy of the logged submissions, in submission order.
func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submissions.Items()
}

// LiveObjects is the number of resources and views created and not yet destroyed.
func (d *Device) LiveObjects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.live {
		n += c
	}
	return n
}

// ClearLog forgets recorded events and submissions. Queue timelines are kept.
func (d *Device) ClearLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events.Clear()
	d.submissions.Clear()
}

func (d *Device) record(kind EventKind, name string, delta int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events.Push(Event{Kind: kind, Name: name})
	d.live[name] += delta
	if d.live[name] == 0 {
		delete(d.live, name)
	}
}
