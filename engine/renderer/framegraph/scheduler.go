package framegraph

import (
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

// batch is a run of consecutive passes on one queue submitted together.
type batch struct {
	queue       metadata.QueueKind
	passOffset  int
	passCount   int
	waitStages  [metadata.QueueCount]metadata.PipelineStage
	waitValues  [metadata.QueueCount]uint64
	signalValue uint64
}

// scheduleBatches groups the passes into batches and assigns timeline
// values. Signal values grow by one per batch on each queue, starting
// after the external release submissions, if any.
func (fg *FrameGraph) scheduleBatches() {
	fg.batches = fg.batches[:0]
	next := fg.queueValues

	for q := range fg.externalReleases {
		fg.externalReleaseValues[q] = 0
		if len(fg.externalReleases[q]) > 0 {
			next[q]++
			fg.externalReleaseValues[q] = next[q]
		}
	}

	passBatch := make([]int, len(fg.passes))
	startNew := true
	for i := range fg.passes {
		p := &fg.passes[i]
		if startNew || fg.batches[len(fg.batches)-1].queue != p.queue || fg.waitsOnSubmittedWork(p) {
			next[p.queue]++
			fg.batches = append(fg.batches, batch{
				queue:       p.queue,
				passOffset:  i,
				signalValue: next[p.queue],
			})
			startNew = false
		}
		b := &fg.batches[len(fg.batches)-1]
		b.passCount++
		passBatch[i] = len(fg.batches) - 1
		for q, stages := range p.waitStages {
			b.waitStages[q] |= stages
		}
		if len(p.after) > 0 || p.signalRequired {
			startNew = true
		}
	}

	for bi := range fg.batches {
		b := &fg.batches[bi]
		for i := b.passOffset; i < b.passOffset+b.passCount; i++ {
			for q, on := range fg.passes[i].waitPass {
				var value uint64
				switch {
				case on == noWait:
					continue
				case on >= 0:
					value = fg.batches[passBatch[on]].signalValue
				case fg.externalReleaseValues[q] != 0:
					value = fg.externalReleaseValues[q]
				default:
					value = fg.queueValues[q]
				}
				b.waitValues[q] = max(b.waitValues[q], value)
			}
		}
		// nothing was ever submitted on that queue, there is nothing to wait for
		for q := range b.waitValues {
			if b.waitValues[q] == 0 {
				b.waitStages[q] = metadata.StageNone
			}
		}
	}

	fg.pendingValues = next
}

// waitsOnSubmittedWork reports whether p has a wait that resolves to a
// non-zero timeline value. A wait on work from before the frame is empty
// when nothing was ever submitted on that queue.
func (fg *FrameGraph) waitsOnSubmittedWork(p *passData) bool {
	for q, on := range p.waitPass {
		switch {
		case on == noWait:
		case on >= 0:
			return true
		case fg.externalReleaseValues[q] != 0 || fg.queueValues[q] != 0:
			return true
		}
	}
	return false
}
