package framegraph

import (
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

// barrier is a planned barrier on a declared resource.
type barrier struct {
	resource     uint32
	stagesBefore metadata.PipelineStage
	stagesAfter  metadata.PipelineStage
	stateBefore  metadata.ResourceState
	stateAfter   metadata.ResourceState
	srcQueue     metadata.QueueKind
	dstQueue     metadata.QueueKind
	rng          metadata.SubresourceRange
	flags        metadata.BarrierFlags
}

// sameTransition reports whether a and b only differ by their subresource range.
func (a barrier) sameTransition(b barrier) bool {
	ar, br := a, b
	ar.rng, br.rng = metadata.SubresourceRange{}, metadata.SubresourceRange{}
	return ar == br
}

// coalesce merges runs of barriers covering adjacent mip levels of one
// layer, then adjacent layers with identical level ranges. The planner
// emits barriers per subresource in layer-major order, so adjacent
// subresources end up next to each other.
func coalesce(in []barrier) []barrier {
	if len(in) < 2 {
		return in
	}
	out := in[:1]
	for _, b := range in[1:] {
		last := &out[len(out)-1]
		if last.sameTransition(b) {
			lr, br := last.rng, b.rng
			if lr.BaseLayer == br.BaseLayer && lr.LayerCount == br.LayerCount && lr.BaseLevel+lr.LevelCount == br.BaseLevel {
				last.rng.LevelCount += br.LevelCount
				continue
			}
			if lr.BaseLevel == br.BaseLevel && lr.LevelCount == br.LevelCount && lr.BaseLayer+lr.LayerCount == br.BaseLayer {
				last.rng.LayerCount += br.LayerCount
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

func (fr *frameResources) resolveBarriers(in []barrier) []renderer.Barrier {
	if len(in) == 0 {
		return nil
	}
	out := make([]renderer.Barrier, len(in))
	for i, b := range in {
		out[i] = renderer.Barrier{
			Resource:     fr.resources[b.resource],
			StagesBefore: b.stagesBefore,
			StagesAfter:  b.stagesAfter,
			StateBefore:  b.stateBefore,
			StateAfter:   b.stateAfter,
			SrcQueue:     b.srcQueue,
			DstQueue:     b.dstQueue,
			Range:        b.rng,
			Flags:        b.flags,
		}
	}
	return out
}
