package framegraph

import (
	"fmt"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

// RecordFunc records the commands of a pass. It runs inside Execute, after
// the pass's leading barriers have been recorded into cmd.
type RecordFunc func(cmd renderer.CommandBuffer, reg Registry) error

// ResourceUsage declares how a pass accesses a view.
type ResourceUsage struct {
	View  ResourceViewHandle
	Usage metadata.StateAndStage
	// Final, when set, is the state the pass leaves the subresources in.
	// The next usage transitions from it instead of from Usage.
	Final *metadata.StateAndStage
}

// Use is shorthand for a usage without a custom final state.
func Use(view ResourceViewHandle, state metadata.ResourceState, stages metadata.PipelineStage) ResourceUsage {
	return ResourceUsage{View: view, Usage: metadata.StateAndStage{State: state, Stages: stages}}
}

// subresourceUsage is one entry of a subresource's ordered usage list.
type subresourceUsage struct {
	passIndex int
	before    metadata.StateAndStage
	after     metadata.StateAndStage
}

func (u subresourceUsage) hasCustomFinal() bool {
	return u.before != u.after
}

const (
	// no wait on that queue
	noWait = -2
	// wait on work submitted before this frame (external hand-off)
	waitExternal = -1
)

type passData struct {
	name   string
	queue  metadata.QueueKind
	record RecordFunc
	before []barrier
	after  []barrier
	// another queue waits on this pass, so its batch must end and signal
	signalRequired bool
	waitStages     [metadata.QueueCount]metadata.PipelineStage
	// highest pass index waited on per queue, or noWait / waitExternal
	waitPass [metadata.QueueCount]int
}

// AddPass appends a pass to the frame. Passes execute in the order they are
// added; every usage is recorded for each subresource the view covers.
func (fg *FrameGraph) AddPass(name string, queue metadata.QueueKind, usages []ResourceUsage, record RecordFunc) error {
	if fg.executed {
		return core.ErrFrameInProgress
	}
	core.Assert(queue.IsValid(), "pass %q targets unknown queue %d", name, queue)

	// resolve every view before touching the usage lists, a rejected pass
	// leaves no trace
	views := make([]*viewDescription, len(usages))
	for i, u := range usages {
		core.Assert(u.View.IsValid(), "pass %q usage %d has no view", name, i)
		view, err := fg.lookupView(u.View)
		if err != nil {
			return fmt.Errorf("pass %q usage %d: %w", name, i, err)
		}
		views[i] = view
	}

	passIndex := len(fg.passes)
	for i, u := range usages {
		view := views[i]
		entry := subresourceUsage{passIndex: passIndex, before: u.Usage, after: u.Usage}
		if u.Final != nil {
			entry.after = *u.Final
		}
		states := entry.before.State | entry.after.State

		res := &fg.resources[view.resource]
		switch v := view.variant.(type) {
		case *imageView:
			img := res.variant.(*imageResource)
			img.usage |= metadata.ImageUsageForState(states)
			r := v.desc.Range
			for layer := r.BaseLayer; layer < r.BaseLayer+r.LayerCount; layer++ {
				for level := r.BaseLevel; level < r.BaseLevel+r.LevelCount; level++ {
					sub := layer*img.desc.Levels + level
					fg.appendUsage(res, sub, entry)
				}
			}
		case *bufferView:
			buf := res.variant.(*bufferResource)
			buf.usage |= metadata.BufferUsageForState(states, v.desc.Typed())
			if host := metadata.HostAccessForState(states); host != metadata.HostAccessNone {
				buf.host = host
			}
			fg.appendUsage(res, 0, entry)
		}
	}

	p := passData{name: name, queue: queue, record: record}
	for q := range p.waitPass {
		p.waitPass[q] = noWait
	}
	fg.passes = append(fg.passes, p)
	return nil
}

func (fg *FrameGraph) appendUsage(res *resourceDescription, sub uint32, entry subresourceUsage) {
	i := res.usageOffset + sub
	fg.usages[i] = append(fg.usages[i], entry)
}
