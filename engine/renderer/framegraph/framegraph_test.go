package framegraph

import (
	"errors"
	"sync"
	"testing"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/bindless"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/headless"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCapacity = 8

func newTestGraph(t *testing.T, dispatcher Dispatcher) (*FrameGraph, *headless.Device) {
	t.Helper()
	device := headless.New()
	cfg := Config{Device: device, Dispatcher: dispatcher}
	for i := range cfg.Bindless.Capacities {
		cfg.Bindless.Capacities[i] = testCapacity
	}
	fg, err := New(cfg)
	require.NoError(t, err)
	return fg, device
}

func declareBuffer(t *testing.T, fg *FrameGraph, desc metadata.BufferDesc) (ResourceHandle, ResourceViewHandle) {
	t.Helper()
	res, err := fg.CreateBuffer(desc)
	require.NoError(t, err)
	view, err := fg.CreateBufferView(res, metadata.BufferViewDesc{Name: desc.Name + "-view"})
	require.NoError(t, err)
	return res, view
}

func declareImage(t *testing.T, fg *FrameGraph, name string, levels uint32) (ResourceHandle, ResourceViewHandle) {
	t.Helper()
	res, err := fg.CreateImage(metadata.ImageDesc{
		Name:   name,
		Type:   metadata.ImageType2D,
		Format: metadata.FormatRGBA8Unorm,
		Width:  4,
		Height: 4,
		Layers: 1,
		Levels: levels,
	})
	require.NoError(t, err)
	view, err := fg.CreateImageView(res, metadata.ImageViewDesc{Name: name + "-view", Type: metadata.ImageViewType2D})
	require.NoError(t, err)
	return res, view
}

func createdNames(device *headless.Device) []string {
	var names []string
	for _, e := range device.Events() {
		switch e.Kind {
		case headless.EventCreateImage, headless.EventCreateBuffer,
			headless.EventCreateImageView, headless.EventCreateBufferView:
			names = append(names, e.Name)
		}
	}
	return names
}

// barriersByPass groups the recorded barriers by the label open around them.
func barriersByPass(subs []headless.Submission) map[string][]renderer.Barrier {
	out := map[string][]renderer.Barrier{}
	for _, s := range subs {
		for _, cb := range s.CommandBuffers {
			label := ""
			for _, cmd := range cb.Commands() {
				switch cmd.Op {
				case headless.OpBeginLabel:
					label = cmd.Label
				case headless.OpBarrier:
					out[label] = append(out[label], cmd.Barriers...)
				}
			}
		}
	}
	return out
}

func stage(state metadata.ResourceState, stages metadata.PipelineStage) metadata.StateAndStage {
	return metadata.StateAndStage{State: state, Stages: stages}
}

func TestCullingSkipsUnreferencedResources(t *testing.T) {
	fg, device := newTestGraph(t, nil)
	_, used := declareBuffer(t, fg, metadata.BufferDesc{Name: "used", Size: 64})
	_, unused := declareBuffer(t, fg, metadata.BufferDesc{Name: "unused", Size: 64, Usage: metadata.BufferUsageStorage})

	require.NoError(t, fg.AddPass("fill", metadata.QueueTransfer,
		[]ResourceUsage{Use(used, metadata.StateCopyDest, metadata.StageTransfer)},
		func(cmd renderer.CommandBuffer, reg Registry) error {
			v, err := reg.View(used)
			if err != nil {
				return err
			}
			cmd.FillBuffer(v, 7)
			return nil
		}))
	require.NoError(t, fg.Execute())

	names := createdNames(device)
	assert.Contains(t, names, "used")
	assert.Contains(t, names, "used-view")
	assert.NotContains(t, names, "unused")
	assert.NotContains(t, names, "unused-view")
	assert.Equal(t, testCapacity, fg.Bindless().Available(metadata.BindlessByteBuffer))

	_, err := fg.Registry().View(unused)
	assert.ErrorIs(t, err, core.ErrInvalidHandle)

	stats := fg.Stats()
	assert.Equal(t, 2, stats.Resources)
	assert.Equal(t, 1, stats.CulledResources)
}

func TestBarriersChainConsecutiveUsages(t *testing.T) {
	fg, _ := newTestGraph(t, nil)
	_, view := declareImage(t, fg, "target", 2)

	final := stage(metadata.StateShaderResource, metadata.StageFragmentShader)
	require.NoError(t, fg.AddPass("upload", metadata.QueueGraphics,
		[]ResourceUsage{Use(view, metadata.StateCopyDest, metadata.StageTransfer)}, nil))
	require.NoError(t, fg.AddPass("draw", metadata.QueueGraphics,
		[]ResourceUsage{{View: view, Usage: stage(metadata.StateRenderTarget, metadata.StageColorAttachmentOutput), Final: &final}}, nil))
	require.NoError(t, fg.AddPass("sample", metadata.QueueGraphics,
		[]ResourceUsage{Use(view, metadata.StateShaderResource, metadata.StageFragmentShader)}, nil))
	require.NoError(t, fg.AddPass("filter", metadata.QueueGraphics,
		[]ResourceUsage{Use(view, metadata.StateUnorderedAccess, metadata.StageComputeShader)}, nil))
	require.NoError(t, fg.Execute())

	upload := fg.passes[0].before
	require.Len(t, upload, 1)
	assert.Equal(t, metadata.StateUndefined, upload[0].stateBefore)
	assert.Equal(t, metadata.StateCopyDest, upload[0].stateAfter)
	assert.Equal(t, metadata.BarrierFirstAccessInSubmission, upload[0].flags)
	// both mip levels coalesce into one range
	assert.Equal(t, uint32(2), upload[0].rng.LevelCount)

	draw := fg.passes[1].before
	require.Len(t, draw, 1)
	assert.Equal(t, upload[0].stateAfter, draw[0].stateBefore)
	assert.Equal(t, upload[0].stagesAfter, draw[0].stagesBefore)
	assert.Equal(t, metadata.StateRenderTarget, draw[0].stateAfter)

	// the draw pass already left the image in the sampled state
	assert.Empty(t, fg.passes[2].before)

	filter := fg.passes[3].before
	require.Len(t, filter, 1)
	assert.Equal(t, final.State, filter[0].stateBefore)
	assert.Equal(t, final.Stages, filter[0].stagesBefore)
	assert.Equal(t, metadata.StateUnorderedAccess, filter[0].stateAfter)
	assert.Equal(t, metadata.StageComputeShader, filter[0].stagesAfter)
}

func TestConsecutiveReadsMerge(t *testing.T) {
	fg, device := newTestGraph(t, nil)
	_, view := declareBuffer(t, fg, metadata.BufferDesc{Name: "params", Size: 256})

	require.NoError(t, fg.AddPass("write", metadata.QueueGraphics,
		[]ResourceUsage{Use(view, metadata.StateCopyDest, metadata.StageTransfer)}, nil))
	for _, p := range []struct {
		name   string
		stages metadata.PipelineStage
	}{
		{"vertex", metadata.StageVertexShader},
		{"fragment", metadata.StageFragmentShader},
		{"compute", metadata.StageComputeShader},
	} {
		require.NoError(t, fg.AddPass(p.name, metadata.QueueGraphics,
			[]ResourceUsage{Use(view, metadata.StateShaderResource, p.stages)}, nil))
	}
	require.NoError(t, fg.Execute())

	byPass := barriersByPass(device.Submissions())
	require.Len(t, byPass["vertex"], 1)
	merged := byPass["vertex"][0]
	assert.Equal(t, metadata.StateCopyDest, merged.StateBefore)
	assert.Equal(t, metadata.StateShaderResource, merged.StateAfter)
	assert.Equal(t, metadata.StageVertexShader|metadata.StageFragmentShader|metadata.StageComputeShader, merged.StagesAfter)
	assert.Empty(t, byPass["fragment"])
	assert.Empty(t, byPass["compute"])
}

func TestDepthReadsDoNotMergeWithSampling(t *testing.T) {
	fg, _ := newTestGraph(t, nil)
	res, err := fg.CreateImage(metadata.ImageDesc{
		Name: "depth", Type: metadata.ImageType2D, Format: metadata.FormatD32Float,
		Width: 4, Height: 4, Layers: 1, Levels: 1,
	})
	require.NoError(t, err)
	view, err := fg.CreateImageView(res, metadata.ImageViewDesc{Type: metadata.ImageViewType2D})
	require.NoError(t, err)

	require.NoError(t, fg.AddPass("depth-test", metadata.QueueGraphics,
		[]ResourceUsage{Use(view, metadata.StateDepthRead, metadata.StageEarlyFragmentTests)}, nil))
	require.NoError(t, fg.AddPass("sample", metadata.QueueGraphics,
		[]ResourceUsage{Use(view, metadata.StateShaderResource, metadata.StageFragmentShader)}, nil))
	require.NoError(t, fg.Execute())

	require.Len(t, fg.passes[0].before, 1)
	require.Len(t, fg.passes[1].before, 1)
	assert.Equal(t, metadata.StateDepthRead, fg.passes[1].before[0].stateBefore)
}

func TestCrossQueueHandOff(t *testing.T) {
	fg, device := newTestGraph(t, nil)
	_, view := declareBuffer(t, fg, metadata.BufferDesc{Name: "particles", Size: 1024})

	require.NoError(t, fg.AddPass("emit", metadata.QueueGraphics,
		[]ResourceUsage{Use(view, metadata.StateUnorderedAccess, metadata.StageFragmentShader)}, nil))
	require.NoError(t, fg.AddPass("simulate", metadata.QueueCompute,
		[]ResourceUsage{Use(view, metadata.StateShaderResource, metadata.StageComputeShader)}, nil))
	require.NoError(t, fg.Execute())

	require.Len(t, fg.batches, 2)
	producer, consumer := fg.batches[0], fg.batches[1]
	assert.Equal(t, metadata.QueueGraphics, producer.queue)
	assert.Equal(t, metadata.QueueCompute, consumer.queue)
	assert.GreaterOrEqual(t, consumer.waitValues[metadata.QueueGraphics], producer.signalValue)
	assert.Equal(t, metadata.StageComputeShader, consumer.waitStages[metadata.QueueGraphics])

	byPass := barriersByPass(device.Submissions())
	var release, acquire []renderer.Barrier
	for _, b := range byPass["emit"] {
		if b.Flags&metadata.BarrierQueueOwnershipRelease != 0 {
			release = append(release, b)
		}
	}
	for _, b := range byPass["simulate"] {
		if b.Flags&metadata.BarrierQueueOwnershipAcquire != 0 {
			acquire = append(acquire, b)
		}
	}
	require.Len(t, release, 1)
	require.Len(t, acquire, 1)
	for _, b := range []renderer.Barrier{release[0], acquire[0]} {
		assert.Equal(t, metadata.QueueGraphics, b.SrcQueue)
		assert.Equal(t, metadata.QueueCompute, b.DstQueue)
		assert.Equal(t, metadata.StateUnorderedAccess, b.StateBefore)
		assert.Equal(t, metadata.StateShaderResource, b.StateAfter)
	}
	// the release is recorded after the producer's own work
	require.Len(t, fg.passes[0].after, 1)
}

func TestConcurrentResourceSkipsOwnershipTransfer(t *testing.T) {
	fg, _ := newTestGraph(t, nil)
	_, view := declareBuffer(t, fg, metadata.BufferDesc{Name: "shared", Size: 64, Concurrent: true})

	require.NoError(t, fg.AddPass("write", metadata.QueueGraphics,
		[]ResourceUsage{Use(view, metadata.StateUnorderedAccess, metadata.StageFragmentShader)}, nil))
	require.NoError(t, fg.AddPass("read", metadata.QueueCompute,
		[]ResourceUsage{Use(view, metadata.StateShaderResource, metadata.StageComputeShader)}, nil))
	require.NoError(t, fg.Execute())

	assert.Empty(t, fg.passes[0].after)
	require.Len(t, fg.passes[1].before, 1)
	b := fg.passes[1].before[0]
	assert.Zero(t, b.flags&(metadata.BarrierQueueOwnershipAcquire|metadata.BarrierQueueOwnershipRelease))
	assert.Equal(t, metadata.QueueCompute, b.srcQueue)

	require.Len(t, fg.batches, 2)
	assert.Equal(t, fg.batches[0].signalValue, fg.batches[1].waitValues[metadata.QueueGraphics])
}

func TestEmptyWaitDoesNotSplitBatch(t *testing.T) {
	fg, device := newTestGraph(t, nil)
	shared, err := device.CreateBuffer(metadata.BufferDesc{Name: "shared", Size: 64})
	require.NoError(t, err)
	state := metadata.ExternalState{
		Queue: metadata.QueueCompute,
		State: stage(metadata.StateUnorderedAccess, metadata.StageComputeShader),
	}
	imported, err := fg.ImportBuffer(shared, metadata.BufferDesc{Name: "shared", Size: 64, Concurrent: true}, &state)
	require.NoError(t, err)
	sharedView, err := fg.CreateBufferView(imported, metadata.BufferViewDesc{Name: "shared-view"})
	require.NoError(t, err)
	_, scratch := declareBuffer(t, fg, metadata.BufferDesc{Name: "scratch", Size: 64})

	require.NoError(t, fg.AddPass("fill", metadata.QueueGraphics,
		[]ResourceUsage{Use(scratch, metadata.StateCopyDest, metadata.StageTransfer)}, nil))
	require.NoError(t, fg.AddPass("read", metadata.QueueGraphics,
		[]ResourceUsage{Use(sharedView, metadata.StateShaderResource, metadata.StageFragmentShader)}, nil))
	require.NoError(t, fg.Execute())

	// compute never signalled, so the pass has nothing to wait for
	require.Len(t, fg.batches, 1)
	assert.Equal(t, 2, fg.batches[0].passCount)
	assert.Zero(t, fg.batches[0].waitValues[metadata.QueueCompute])
	assert.Equal(t, metadata.StageNone, fg.batches[0].waitStages[metadata.QueueCompute])

	require.NoError(t, fg.Destroy())
	device.DestroyResource(shared)
}

func TestSignalValuesIncreasePerQueue(t *testing.T) {
	fg, device := newTestGraph(t, nil)

	for frame := 0; frame < 2; frame++ {
		_, view := declareBuffer(t, fg, metadata.BufferDesc{Name: "pingpong", Size: 64})
		queues := []metadata.QueueKind{
			metadata.QueueGraphics, metadata.QueueCompute, metadata.QueueGraphics,
			metadata.QueueCompute, metadata.QueueGraphics,
		}
		for i, q := range queues {
			require.NoError(t, fg.AddPass(q.String(), q,
				[]ResourceUsage{Use(view, metadata.StateUnorderedAccess, metadata.StageComputeShader)}, nil), "pass %d", i)
		}
		require.NoError(t, fg.Execute())
		require.NoError(t, fg.NextFrame())
	}

	last := map[metadata.QueueKind]uint64{}
	count := map[metadata.QueueKind]int{}
	for _, s := range device.Submissions() {
		if s.SignalValue == 0 {
			continue
		}
		assert.Greater(t, s.SignalValue, last[s.Queue], "%s submission %d", s.Queue, count[s.Queue])
		last[s.Queue] = s.SignalValue
		count[s.Queue]++
	}
	assert.Equal(t, 6, count[metadata.QueueGraphics])
	assert.Equal(t, 4, count[metadata.QueueCompute])
	assert.Equal(t, last[metadata.QueueGraphics], fg.QueueValue(metadata.QueueGraphics))
}

func TestSplitBarrierAcrossIdlePasses(t *testing.T) {
	fg, device := newTestGraph(t, nil)
	_, shadow := declareBuffer(t, fg, metadata.BufferDesc{Name: "shadow", Size: 64})
	_, other := declareBuffer(t, fg, metadata.BufferDesc{Name: "other", Size: 64})

	require.NoError(t, fg.AddPass("render-shadow", metadata.QueueGraphics,
		[]ResourceUsage{Use(shadow, metadata.StateUnorderedAccess, metadata.StageFragmentShader)}, nil))
	require.NoError(t, fg.AddPass("unrelated", metadata.QueueGraphics,
		[]ResourceUsage{Use(other, metadata.StateCopyDest, metadata.StageTransfer)}, nil))
	require.NoError(t, fg.AddPass("light", metadata.QueueGraphics,
		[]ResourceUsage{Use(shadow, metadata.StateShaderResource, metadata.StageFragmentShader)}, nil))
	require.NoError(t, fg.Execute())

	require.Len(t, fg.batches, 1)
	byPass := barriersByPass(device.Submissions())

	var begin []renderer.Barrier
	for _, b := range byPass["unrelated"] {
		if b.Flags&metadata.BarrierBegin != 0 {
			begin = append(begin, b)
		}
	}
	require.Len(t, begin, 1)
	assert.Equal(t, "shadow", begin[0].Resource.Name())

	require.Len(t, byPass["light"], 1)
	end := byPass["light"][0]
	assert.NotZero(t, end.Flags&metadata.BarrierEnd)
	assert.Equal(t, begin[0].StateAfter, end.StateAfter)
	assert.Equal(t, begin[0].StagesBefore, end.StagesBefore)
}

func TestExternalStateRoundTrip(t *testing.T) {
	fg, device := newTestGraph(t, nil)
	buffer, err := device.CreateBuffer(metadata.BufferDesc{Name: "history", Size: 128})
	require.NoError(t, err)

	state := &metadata.ExternalState{
		Queue: metadata.QueueTransfer,
		State: stage(metadata.StateCopyDest, metadata.StageTransfer),
	}
	res, err := fg.ImportBuffer(buffer, metadata.BufferDesc{Size: 128}, state)
	require.NoError(t, err)
	view, err := fg.CreateBufferView(res, metadata.BufferViewDesc{Name: "history-view"})
	require.NoError(t, err)

	require.NoError(t, fg.AddPass("accumulate", metadata.QueueCompute,
		[]ResourceUsage{Use(view, metadata.StateUnorderedAccess, metadata.StageComputeShader)}, nil))
	require.NoError(t, fg.Execute())

	assert.Equal(t, metadata.QueueCompute, state.Queue)
	assert.Equal(t, stage(metadata.StateUnorderedAccess, metadata.StageComputeShader), state.State)

	subs := device.Submissions()
	require.Len(t, subs, 2)
	release := subs[0]
	assert.Equal(t, metadata.QueueTransfer, release.Queue)
	assert.Equal(t, []string{externalReleaseLabel}, release.Labels())
	require.Len(t, release.Barriers(), 1)
	assert.NotZero(t, release.Barriers()[0].Flags&metadata.BarrierQueueOwnershipRelease)
	assert.Equal(t, metadata.StateCopyDest, release.Barriers()[0].StateBefore)

	consumer := subs[1]
	assert.Equal(t, metadata.QueueCompute, consumer.Queue)
	assert.Equal(t, release.SignalValue, consumer.WaitValues[metadata.QueueTransfer])
	assert.Equal(t, 1, fg.Stats().ExternalReleases)

	// imported resources are never destroyed by the frame graph
	require.NoError(t, fg.NextFrame())
	require.NoError(t, fg.NextFrame())
	for _, e := range device.Events() {
		if e.Kind == headless.EventDestroyResource {
			assert.NotEqual(t, "history", e.Name)
		}
	}
}

func TestExternalStateCarriesAcrossFrames(t *testing.T) {
	fg, device := newTestGraph(t, nil)
	buffer, err := device.CreateBuffer(metadata.BufferDesc{Name: "persistent", Size: 64})
	require.NoError(t, err)
	state := &metadata.ExternalState{Queue: metadata.QueueGraphics}

	for frame := 0; frame < 2; frame++ {
		res, err := fg.ImportBuffer(buffer, metadata.BufferDesc{Size: 64}, state)
		require.NoError(t, err)
		view, err := fg.CreateBufferView(res, metadata.BufferViewDesc{})
		require.NoError(t, err)
		require.NoError(t, fg.AddPass("write", metadata.QueueGraphics,
			[]ResourceUsage{Use(view, metadata.StateUnorderedAccess, metadata.StageComputeShader)}, nil))
		require.NoError(t, fg.Execute())

		before := fg.passes[0].before
		require.Len(t, before, 1)
		if frame == 0 {
			assert.Equal(t, metadata.StateUndefined, before[0].stateBefore)
		} else {
			assert.Equal(t, metadata.StateUnorderedAccess, before[0].stateBefore)
		}
		require.NoError(t, fg.NextFrame())
	}
}

func TestStaleHandlesAreRejected(t *testing.T) {
	fg, _ := newTestGraph(t, nil)
	res, view := declareBuffer(t, fg, metadata.BufferDesc{Name: "old", Size: 64})
	require.NoError(t, fg.Execute())
	require.NoError(t, fg.NextFrame())

	// the new frame reuses index 1
	declareBuffer(t, fg, metadata.BufferDesc{Name: "new", Size: 64})

	_, err := fg.CreateBufferView(res, metadata.BufferViewDesc{})
	assert.ErrorIs(t, err, core.ErrStaleHandle)

	err = fg.AddPass("stale", metadata.QueueGraphics,
		[]ResourceUsage{Use(view, metadata.StateCopyDest, metadata.StageTransfer)}, nil)
	assert.ErrorIs(t, err, core.ErrStaleHandle)

	_, err = fg.CreateBufferView(ResourceHandle{}, metadata.BufferViewDesc{})
	assert.ErrorIs(t, err, core.ErrInvalidHandle)
}

func TestRejectedPassLeavesNoUsages(t *testing.T) {
	fg, device := newTestGraph(t, nil)
	_, old := declareBuffer(t, fg, metadata.BufferDesc{Name: "old", Size: 64})
	require.NoError(t, fg.Execute())
	require.NoError(t, fg.NextFrame())
	device.ClearLog()

	_, fresh := declareBuffer(t, fg, metadata.BufferDesc{Name: "fresh", Size: 64})
	err := fg.AddPass("rejected", metadata.QueueCompute, []ResourceUsage{
		Use(fresh, metadata.StateUnorderedAccess, metadata.StageComputeShader),
		Use(old, metadata.StateCopyDest, metadata.StageTransfer),
	}, nil)
	require.ErrorIs(t, err, core.ErrStaleHandle)

	require.NoError(t, fg.AddPass("innocent", metadata.QueueGraphics, nil, nil))
	require.NoError(t, fg.Execute())

	assert.Empty(t, barriersByPass(device.Submissions())["innocent"])
	assert.NotContains(t, createdNames(device), "fresh")
	stats := fg.Stats()
	assert.Equal(t, 1, stats.Passes)
	assert.Equal(t, 1, stats.CulledResources)
}

func TestDeclarationsAfterExecuteFail(t *testing.T) {
	fg, _ := newTestGraph(t, nil)
	require.NoError(t, fg.Execute())

	_, err := fg.CreateBuffer(metadata.BufferDesc{Size: 4})
	assert.ErrorIs(t, err, core.ErrFrameInProgress)
	assert.ErrorIs(t, fg.AddPass("late", metadata.QueueGraphics, nil, nil), core.ErrFrameInProgress)
	assert.ErrorIs(t, fg.Execute(), core.ErrFrameInProgress)
}

func TestContractViolationsPanic(t *testing.T) {
	fg, _ := newTestGraph(t, nil)
	assert.Panics(t, func() { _, _ = fg.CreateBuffer(metadata.BufferDesc{Name: "empty"}) })
	assert.Panics(t, func() { _, _ = fg.CreateImage(metadata.ImageDesc{Name: "flat", Width: 4, Height: 4}) })
	assert.Panics(t, func() {
		_ = fg.AddPass("nothing", metadata.QueueGraphics, []ResourceUsage{{}}, nil)
	})
	assert.Panics(t, func() {
		_ = fg.AddPass("beyond", metadata.QueueGraphics,
			[]ResourceUsage{Use(ResourceViewHandle{index: 9, generation: fg.generation}, metadata.StateCopyDest, metadata.StageTransfer)}, nil)
	})
}

func TestReadbackThroughRegistry(t *testing.T) {
	fg, _ := newTestGraph(t, nil)
	_, image := declareImage(t, fg, "color", 1)
	_, readback := declareBuffer(t, fg, metadata.BufferDesc{Name: "readback", Size: 4 * 4 * 4, HostAccess: metadata.HostAccessRead})

	require.NoError(t, fg.AddPass("clear", metadata.QueueGraphics,
		[]ResourceUsage{Use(image, metadata.StateCopyDest, metadata.StageTransfer)},
		func(cmd renderer.CommandBuffer, reg Registry) error {
			v, err := reg.View(image)
			if err != nil {
				return err
			}
			cmd.ClearColorImage(v, [4]float32{1, 0, 0, 1})
			return nil
		}))
	require.NoError(t, fg.AddPass("copy", metadata.QueueTransfer,
		[]ResourceUsage{
			Use(image, metadata.StateCopySource, metadata.StageTransfer),
			Use(readback, metadata.StateCopyDest, metadata.StageTransfer),
		},
		func(cmd renderer.CommandBuffer, reg Registry) error {
			src, err := reg.View(image)
			if err != nil {
				return err
			}
			dst, err := reg.View(readback)
			if err != nil {
				return err
			}
			cmd.CopyImageToBuffer(src, dst)
			return nil
		}))
	require.NoError(t, fg.Execute())

	data, err := fg.Registry().Map(readback)
	require.NoError(t, err)
	defer fg.Registry().Unmap(readback)
	require.Len(t, data, 64)
	assert.Equal(t, []byte{255, 0, 0, 255}, data[:4])
	assert.Equal(t, []byte{255, 0, 0, 255}, data[60:])

	_, err = fg.Registry().Map(image)
	assert.ErrorIs(t, err, core.ErrNotHostVisible)
}

func TestShaderVisibleViewsGetTransientHandles(t *testing.T) {
	fg, _ := newTestGraph(t, nil)
	_, view := declareImage(t, fg, "albedo", 1)

	require.NoError(t, fg.AddPass("upload", metadata.QueueGraphics,
		[]ResourceUsage{Use(view, metadata.StateCopyDest, metadata.StageTransfer)}, nil))
	var resolved bindless.Handle
	require.NoError(t, fg.AddPass("shade", metadata.QueueGraphics,
		[]ResourceUsage{Use(view, metadata.StateShaderResource, metadata.StageFragmentShader)},
		func(cmd renderer.CommandBuffer, reg Registry) error {
			h, err := reg.ShaderHandle(view, false)
			resolved = h
			return err
		}))
	require.NoError(t, fg.Execute())

	require.True(t, resolved.IsValid())
	assert.Equal(t, metadata.BindlessTexture, resolved.Category())
	_, err := fg.Registry().ShaderHandle(view, true)
	assert.ErrorIs(t, err, core.ErrNoHandle)
	assert.Equal(t, testCapacity-1, fg.Bindless().Available(metadata.BindlessTexture))

	// released once the slot that registered it comes around again
	require.NoError(t, fg.NextFrame())
	assert.Equal(t, testCapacity-1, fg.Bindless().Available(metadata.BindlessTexture))
	require.NoError(t, fg.NextFrame())
	assert.Equal(t, testCapacity, fg.Bindless().Available(metadata.BindlessTexture))
}

func TestNextFrameReleasesTheReusedSlot(t *testing.T) {
	fg, device := newTestGraph(t, nil)
	_, view := declareBuffer(t, fg, metadata.BufferDesc{Name: "scratch", Size: 64})
	require.NoError(t, fg.AddPass("fill", metadata.QueueTransfer,
		[]ResourceUsage{Use(view, metadata.StateCopyDest, metadata.StageTransfer)}, nil))
	require.NoError(t, fg.Execute())
	assert.Equal(t, 2, device.LiveObjects())

	require.NoError(t, fg.NextFrame())
	assert.Equal(t, 2, device.LiveObjects(), "frame 0 is still in flight")
	require.NoError(t, fg.Execute())

	require.NoError(t, fg.NextFrame())
	assert.Zero(t, device.LiveObjects())

	require.NoError(t, fg.Destroy())
}

type goDispatcher struct {
	calls int
}

func (d *goDispatcher) Dispatch(tasks []func() error) error {
	d.calls++
	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		i, task := i, task
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = task()
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func TestParallelRecordingMatchesSequential(t *testing.T) {
	build := func(dispatcher Dispatcher) []headless.Submission {
		fg, device := newTestGraph(t, dispatcher)
		_, a := declareBuffer(t, fg, metadata.BufferDesc{Name: "a", Size: 64})
		_, b := declareBuffer(t, fg, metadata.BufferDesc{Name: "b", Size: 64})
		require.NoError(t, fg.AddPass("produce", metadata.QueueGraphics,
			[]ResourceUsage{Use(a, metadata.StateUnorderedAccess, metadata.StageComputeShader)}, nil))
		require.NoError(t, fg.AddPass("consume", metadata.QueueCompute,
			[]ResourceUsage{
				Use(a, metadata.StateShaderResource, metadata.StageComputeShader),
				Use(b, metadata.StateUnorderedAccess, metadata.StageComputeShader),
			}, nil))
		require.NoError(t, fg.AddPass("present", metadata.QueueGraphics,
			[]ResourceUsage{Use(b, metadata.StateShaderResource, metadata.StageFragmentShader)}, nil))
		require.NoError(t, fg.Execute())
		return device.Submissions()
	}

	dispatcher := &goDispatcher{}
	sequential := build(nil)
	parallel := build(dispatcher)

	assert.Equal(t, 1, dispatcher.calls)
	require.Len(t, parallel, len(sequential))
	for i := range sequential {
		assert.Equal(t, sequential[i].Queue, parallel[i].Queue)
		assert.Equal(t, sequential[i].SignalValue, parallel[i].SignalValue)
		assert.Equal(t, sequential[i].WaitValues, parallel[i].WaitValues)
		assert.Equal(t, sequential[i].Labels(), parallel[i].Labels())
		assert.Equal(t, len(sequential[i].Barriers()), len(parallel[i].Barriers()))
	}
}

func TestRecordErrorsAbortExecute(t *testing.T) {
	fg, device := newTestGraph(t, nil)
	_, view := declareBuffer(t, fg, metadata.BufferDesc{Name: "x", Size: 4})
	boom := errors.New("boom")
	require.NoError(t, fg.AddPass("broken", metadata.QueueGraphics,
		[]ResourceUsage{Use(view, metadata.StateCopyDest, metadata.StageTransfer)},
		func(renderer.CommandBuffer, Registry) error { return boom }))

	assert.ErrorIs(t, fg.Execute(), boom)
	assert.Empty(t, device.Submissions())
}

func TestDeviceLossIsFatal(t *testing.T) {
	fg, device := newTestGraph(t, nil)
	_, view := declareBuffer(t, fg, metadata.BufferDesc{Name: "x", Size: 4})
	require.NoError(t, fg.AddPass("fill", metadata.QueueGraphics,
		[]ResourceUsage{Use(view, metadata.StateCopyDest, metadata.StageTransfer)}, nil))
	require.NoError(t, fg.Execute())

	device.Lose()
	require.NoError(t, fg.NextFrame(), "the other slot has nothing in flight")
	_, view = declareBuffer(t, fg, metadata.BufferDesc{Name: "y", Size: 4})
	require.NoError(t, fg.AddPass("fill", metadata.QueueGraphics,
		[]ResourceUsage{Use(view, metadata.StateCopyDest, metadata.StageTransfer)}, nil))
	assert.ErrorIs(t, fg.Execute(), core.ErrDeviceLost)
	assert.ErrorIs(t, fg.NextFrame(), core.ErrDeviceLost)
}
