package framegraph

import (
	"fmt"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

const externalReleaseLabel = "external release"

// Execute materializes the frame, plans its synchronization and submits
// every batch. It runs once per frame, after the last AddPass.
func (fg *FrameGraph) Execute() error {
	if fg.executed {
		return core.ErrFrameInProgress
	}
	fg.executed = true

	// work submitted outside the frame graph moves the timelines too
	for _, q := range metadata.AllQueues {
		fg.queueValues[q] = max(fg.queueValues[q], fg.queues[q].SignaledValue())
	}

	fg.stats = Stats{
		Frame:     fg.frameIndex,
		Resources: len(fg.resources),
		Views:     len(fg.views),
		Passes:    len(fg.passes),
	}
	if err := fg.createResources(); err != nil {
		return err
	}
	fg.planSynchronization()
	fg.scheduleBatches()
	fg.countBarriers()

	if err := fg.bindless.FlushChanges(); err != nil {
		return err
	}
	if err := fg.submitExternalReleases(); err != nil {
		return err
	}

	cmds, err := fg.recordBatches()
	if err != nil {
		return err
	}
	for i := range fg.batches {
		b := &fg.batches[i]
		err := fg.queues[b.queue].Submit(renderer.SubmitInfo{
			CommandBuffers: []renderer.CommandBuffer{cmds[i]},
			WaitValues:     b.waitValues,
			WaitStages:     b.waitStages,
			SignalValue:    b.signalValue,
		})
		if err != nil {
			err = fmt.Errorf("failed to submit batch %d on %s: %w", i, b.queue, err)
			core.LogError(err.Error())
			return err
		}
	}

	fg.queueValues = fg.pendingValues
	fg.currentFrame().waitValues = fg.pendingValues

	s := fg.stats
	core.LogDebug("frame %d: %d passes in %d batches, %d/%d resources culled, %d barriers, %d external releases",
		s.Frame, s.Passes, s.Batches, s.CulledResources, s.Resources, s.Barriers, s.ExternalReleases)
	return nil
}

func (fg *FrameGraph) countBarriers() {
	fg.stats.Batches = len(fg.batches)
	for i := range fg.passes {
		fg.stats.Barriers += len(fg.passes[i].before) + len(fg.passes[i].after)
	}
	for q := range fg.externalReleases {
		fg.stats.ExternalReleases += len(fg.externalReleases[q])
	}
}

// submitExternalReleases hands resources left on another queue by a previous
// frame over to this frame's first consumers.
func (fg *FrameGraph) submitExternalReleases() error {
	fr := fg.currentFrame()
	for _, q := range metadata.AllQueues {
		releases := fg.externalReleases[q]
		if len(releases) == 0 {
			continue
		}
		cmd, err := fg.allocateCommandBuffer(fr, q)
		if err != nil {
			return err
		}
		if err := cmd.Begin(); err != nil {
			return fmt.Errorf("failed to begin %s release: %w", q, err)
		}
		cmd.BeginLabel(externalReleaseLabel)
		cmd.PipelineBarrier(fr.resolveBarriers(releases))
		cmd.EndLabel()
		if err := cmd.End(); err != nil {
			return fmt.Errorf("failed to end %s release: %w", q, err)
		}

		err = fg.queues[q].Submit(renderer.SubmitInfo{
			CommandBuffers: []renderer.CommandBuffer{cmd},
			SignalValue:    fg.externalReleaseValues[q],
		})
		if err != nil {
			err = fmt.Errorf("failed to submit %s external release: %w", q, err)
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

func (fg *FrameGraph) allocateCommandBuffer(fr *frameResources, q metadata.QueueKind) (renderer.CommandBuffer, error) {
	pool, err := fr.commandPool(fg.device, q)
	if err != nil {
		return nil, err
	}
	cmd, err := pool.Allocate()
	if err != nil {
		err = fmt.Errorf("failed to allocate %s command buffer: %w", q, err)
		core.LogError(err.Error())
		return nil, err
	}
	return cmd, nil
}

// recordBatches records one command buffer per batch. Buffers are allocated
// up front so that recording only touches per-batch state.
func (fg *FrameGraph) recordBatches() ([]renderer.CommandBuffer, error) {
	fr := fg.currentFrame()
	reg := &frameRegistry{fg: fg, fr: fr}

	cmds := make([]renderer.CommandBuffer, len(fg.batches))
	for i := range fg.batches {
		cmd, err := fg.allocateCommandBuffer(fr, fg.batches[i].queue)
		if err != nil {
			return nil, err
		}
		cmds[i] = cmd
	}

	if fg.config.Dispatcher == nil || len(fg.batches) < 2 {
		for i := range fg.batches {
			if err := fg.recordBatch(fr, reg, cmds[i], &fg.batches[i]); err != nil {
				return nil, err
			}
		}
		return cmds, nil
	}

	tasks := make([]func() error, len(fg.batches))
	for i := range fg.batches {
		i := i
		tasks[i] = func() error {
			return fg.recordBatch(fr, reg, cmds[i], &fg.batches[i])
		}
	}
	if err := fg.config.Dispatcher.Dispatch(tasks); err != nil {
		return nil, err
	}
	return cmds, nil
}

func (fg *FrameGraph) recordBatch(fr *frameResources, reg Registry, cmd renderer.CommandBuffer, b *batch) error {
	if err := cmd.Begin(); err != nil {
		return fmt.Errorf("failed to begin %s command buffer: %w", b.queue, err)
	}
	for i := b.passOffset; i < b.passOffset+b.passCount; i++ {
		p := &fg.passes[i]
		cmd.BeginLabel(p.name)
		if len(p.before) > 0 {
			cmd.PipelineBarrier(fr.resolveBarriers(p.before))
		}
		if p.record != nil {
			if err := p.record(cmd, reg); err != nil {
				err = fmt.Errorf("pass %q failed to record: %w", p.name, err)
				core.LogError(err.Error())
				return err
			}
		}
		if len(p.after) > 0 {
			cmd.PipelineBarrier(fr.resolveBarriers(p.after))
		}
		cmd.EndLabel()
	}
	if err := cmd.End(); err != nil {
		return fmt.Errorf("failed to end %s command buffer: %w", b.queue, err)
	}
	return nil
}
