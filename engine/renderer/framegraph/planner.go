package framegraph

import (
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

// usageInfo is the last access of a subresource seen while walking its usages.
type usageInfo struct {
	pass  int
	queue metadata.QueueKind
	state metadata.StateAndStage
}

// planSynchronization walks every subresource's usage list and fills the
// passes' barrier lists, semaphore requirements and the external release
// lists. External state records are updated with the final access.
func (fg *FrameGraph) planSynchronization() {
	for q := range fg.externalReleases {
		fg.externalReleases[q] = fg.externalReleases[q][:0]
	}

	for ri := range fg.resources {
		res := &fg.resources[ri]
		var last *usageInfo
		for sub := uint32(0); sub < res.subresourceCount; sub++ {
			list := fg.usages[res.usageOffset+sub]
			if len(list) == 0 {
				continue
			}
			info := fg.planSubresource(uint32(ri), res, sub, list)
			last = &info
		}
		// subresources of one image may end up in different states; the
		// record keeps the last one, which is exact for whole-image access
		if last != nil && res.isExternal() {
			res.external.Queue = last.queue
			res.external.State = last.state
		}
	}

	for i := range fg.passes {
		p := &fg.passes[i]
		p.before = coalesce(p.before)
		p.after = coalesce(p.after)
	}
	for q := range fg.externalReleases {
		fg.externalReleases[q] = coalesce(fg.externalReleases[q])
	}
}

func (fg *FrameGraph) planSubresource(ri uint32, res *resourceDescription, sub uint32, list []subresourceUsage) usageInfo {
	isImage := res.isImage()
	rng := res.subresourceRange(sub)

	prev := usageInfo{pass: -1, queue: fg.passes[list[0].passIndex].queue}
	if res.isExternal() {
		prev.queue = res.external.Queue
		prev.state = res.external.State
	}

	for i := 0; i < len(list); {
		u := list[i]
		queue := fg.passes[u.passIndex].queue
		current := u.before
		after := u.after
		last := i

		// consecutive pure reads on one queue share a single transition
		if class := current.State.ReadCombineClass(isImage); class != 0 && !u.hasCustomFinal() {
			for j := i + 1; j < len(list); j++ {
				next := list[j]
				if fg.passes[next.passIndex].queue != queue || next.hasCustomFinal() ||
					next.before.State.ReadCombineClass(isImage) != class {
					break
				}
				current = current.Merge(next.before)
				last = j
			}
			after = current
		}

		fg.planTransition(ri, res, rng, prev, u.passIndex, current)

		prev = usageInfo{pass: list[last].passIndex, queue: queue, state: after}
		i = last + 1
	}
	return prev
}

func needsTransition(before, after metadata.StateAndStage) bool {
	return before.State != after.State || before.State == metadata.StateUndefined ||
		before.State.HasWrite() || after.State.HasWrite()
}

func (fg *FrameGraph) planTransition(ri uint32, res *resourceDescription, rng metadata.SubresourceRange, prev usageInfo, passIndex int, current metadata.StateAndStage) {
	pass := &fg.passes[passIndex]
	firstAccess := prev.pass < 0
	crossQueue := prev.queue != pass.queue

	if !crossQueue && !needsTransition(prev.state, current) && !(firstAccess && !res.isExternal()) {
		return
	}

	b := barrier{
		resource:     ri,
		stagesBefore: prev.state.Stages,
		stagesAfter:  current.Stages,
		stateBefore:  prev.state.State,
		stateAfter:   current.State,
		srcQueue:     prev.queue,
		dstQueue:     pass.queue,
		rng:          rng,
	}
	if firstAccess {
		b.flags |= metadata.BarrierFirstAccessInSubmission
	}

	if crossQueue {
		fg.planHandOff(res, &b, prev, pass, current)
		return
	}

	// issue the first half as early as possible when other passes on this
	// queue sit between the two accesses
	if !firstAccess {
		if begin := fg.nextPassOnQueue(prev.pass, pass.queue); begin >= 0 && begin < passIndex {
			half := b
			half.flags |= metadata.BarrierBegin
			fg.passes[begin].before = append(fg.passes[begin].before, half)
			b.flags |= metadata.BarrierEnd
		}
	}
	pass.before = append(pass.before, b)
}

// planHandOff records a dependency between two queues. The consumer always
// waits on the producer's semaphore; exclusive resources additionally get a
// release/acquire pair transferring ownership.
func (fg *FrameGraph) planHandOff(res *resourceDescription, b *barrier, prev usageInfo, pass *passData, current metadata.StateAndStage) {
	waitStages := current.Stages
	if waitStages == metadata.StageNone {
		waitStages = metadata.StageAllCommands
	}
	pass.waitStages[prev.queue] |= waitStages

	waitOn := waitExternal
	if prev.pass >= 0 {
		waitOn = prev.pass
		fg.passes[prev.pass].signalRequired = true
	}
	if waitOn > pass.waitPass[prev.queue] {
		pass.waitPass[prev.queue] = waitOn
	}

	if res.concurrent {
		if !needsTransition(prev.state, current) && prev.pass >= 0 {
			return
		}
		// the semaphore orders the accesses, only a state change is left
		b.srcQueue = pass.queue
		b.stagesBefore = metadata.StageNone
		pass.before = append(pass.before, *b)
		return
	}

	b.flags |= metadata.BarrierQueueOwnershipAcquire
	release := *b
	release.flags = release.flags&^metadata.BarrierQueueOwnershipAcquire | metadata.BarrierQueueOwnershipRelease
	if prev.pass >= 0 {
		fg.passes[prev.pass].after = append(fg.passes[prev.pass].after, release)
	} else {
		fg.externalReleases[prev.queue] = append(fg.externalReleases[prev.queue], release)
	}
	pass.before = append(pass.before, *b)
}

// nextPassOnQueue returns the first pass after from that runs on queue, or -1.
func (fg *FrameGraph) nextPassOnQueue(from int, queue metadata.QueueKind) int {
	for i := from + 1; i < len(fg.passes); i++ {
		if fg.passes[i].queue == queue {
			return i
		}
	}
	return -1
}
