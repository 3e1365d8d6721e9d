package framegraph

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/bindless"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

// FramesInFlight is the number of frame resource slots.
const FramesInFlight = bindless.BufferedInstances

const DefaultWaitTimeout = 5 * time.Second

// Dispatcher runs independent tasks, possibly concurrently, and returns the
// first error once every task has finished.
type Dispatcher interface {
	Dispatch(tasks []func() error) error
}

type Config struct {
	Device   renderer.Device
	Bindless bindless.Config
	// WaitTimeout bounds the wait for a frame slot in NextFrame.
	WaitTimeout time.Duration
	// Dispatcher records batches in parallel when set.
	Dispatcher Dispatcher
}

// Stats describes the last executed frame.
type Stats struct {
	Frame            uint64
	Resources        int
	CulledResources  int
	Views            int
	Passes           int
	Batches          int
	Barriers         int
	ExternalReleases int
	BindlessHandles  int
}

// FrameGraph collects the resources and passes of one frame, derives the
// synchronization between them and submits the result. Declarations are
// single threaded; only the bindless registry may be used from recording
// callbacks running in parallel.
type FrameGraph struct {
	device   renderer.Device
	queues   [metadata.QueueCount]renderer.Queue
	table    renderer.BindingTable
	bindless *bindless.Registry
	config   Config

	// frame-scoped declaration tables, cleared by NextFrame
	generation uint32
	resources  []resourceDescription
	views      []viewDescription
	usages     [][]subresourceUsage
	passes     []passData
	batches    []batch
	executed   bool

	externalReleases      [metadata.QueueCount][]barrier
	externalReleaseValues [metadata.QueueCount]uint64

	// last value submitted for signalling on each queue
	queueValues   [metadata.QueueCount]uint64
	pendingValues [metadata.QueueCount]uint64

	slot       int
	frameIndex uint64
	frames     [FramesInFlight]*frameResources
	stats      Stats
}

func New(cfg Config) (*FrameGraph, error) {
	core.Assert(cfg.Device != nil, "frame graph created without a device")
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}

	table, err := cfg.Device.CreateBindingTable(cfg.Bindless.Capacities, bindless.BufferedInstances)
	if err != nil {
		err = fmt.Errorf("failed to create bindless table: %w", err)
		core.LogError(err.Error())
		return nil, err
	}

	fg := &FrameGraph{
		device:     cfg.Device,
		table:      table,
		bindless:   bindless.New(table, cfg.Bindless),
		config:     cfg,
		generation: 1,
	}
	for _, q := range metadata.AllQueues {
		fg.queues[q] = cfg.Device.Queue(q)
		fg.queueValues[q] = fg.queues[q].SignaledValue()
	}
	for i := range fg.frames {
		fg.frames[i] = &frameResources{}
	}
	core.LogDebug("frame graph created (%d frames in flight, wait timeout %s)", FramesInFlight, cfg.WaitTimeout)
	return fg, nil
}

// Bindless is the registry shared by the frame graph and the application.
// Persistent handles created here survive across frames.
func (fg *FrameGraph) Bindless() *bindless.Registry {
	return fg.bindless
}

// Registry resolves the current frame's handles. It is valid after Execute
// and until NextFrame.
func (fg *FrameGraph) Registry() Registry {
	return &frameRegistry{fg: fg, fr: fg.currentFrame()}
}

func (fg *FrameGraph) Stats() Stats {
	return fg.stats
}

// FrameIndex counts the frames started since creation.
func (fg *FrameGraph) FrameIndex() uint64 {
	return fg.frameIndex
}

// QueueValue is the last timeline value submitted on a queue.
func (fg *FrameGraph) QueueValue(q metadata.QueueKind) uint64 {
	return fg.queueValues[q]
}

func (fg *FrameGraph) currentFrame() *frameResources {
	return fg.frames[fg.slot]
}

// NextFrame retires the current frame: the declaration tables are cleared,
// every handle handed out so far becomes stale, and the next slot is
// reclaimed once the device is done with it.
func (fg *FrameGraph) NextFrame() error {
	fg.resources = fg.resources[:0]
	fg.views = fg.views[:0]
	fg.usages = fg.usages[:0]
	fg.passes = fg.passes[:0]
	fg.batches = fg.batches[:0]
	fg.executed = false
	fg.generation++
	fg.frameIndex++

	fg.slot = (fg.slot + 1) % FramesInFlight
	if err := fg.reclaim(fg.frames[fg.slot]); err != nil {
		return err
	}
	fg.bindless.SwapSets()
	return nil
}

// reclaim waits until the device reached the slot's values and releases it.
func (fg *FrameGraph) reclaim(fr *frameResources) error {
	for _, q := range metadata.AllQueues {
		value := fr.waitValues[q]
		if value == 0 {
			continue
		}
		if err := fg.queues[q].Wait(value, fg.config.WaitTimeout); err != nil {
			err = fmt.Errorf("failed to wait for %s value %d: %w", q, value, err)
			core.LogError(err.Error())
			return err
		}
	}
	fr.waitValues = [metadata.QueueCount]uint64{}
	return fr.release(fg.device)
}

// Destroy waits for every frame in flight and releases all frame resources
// and the bindless table. Imported resources are left to their owners.
func (fg *FrameGraph) Destroy() error {
	if err := fg.device.WaitIdle(); err != nil {
		err = fmt.Errorf("failed to wait for device idle: %w", err)
		core.LogError(err.Error())
		return err
	}
	for _, fr := range fg.frames {
		fr.waitValues = [metadata.QueueCount]uint64{}
		if err := fr.release(fg.device); err != nil {
			return err
		}
		fr.destroyPools(fg.device)
	}
	fg.device.DestroyBindingTable(fg.table)
	core.LogDebug("frame graph destroyed after %d frames", fg.frameIndex)
	return nil
}
