package engine

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/framegraph"
	_ "github.com/spaghettifunk/anima-framegraph/engine/renderer/headless"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counters struct {
	initialized, updates, renders, recorded, shutdown int
}

func newCountingGame(c *counters) *Game {
	return &Game{
		FnInitialize: func(renderer.Device, *framegraph.FrameGraph) error {
			c.initialized++
			return nil
		},
		FnUpdate: func(float64) error {
			c.updates++
			return nil
		},
		FnRender: func(fg *framegraph.FrameGraph, _ float64) error {
			c.renders++
			res, err := fg.CreateBuffer(metadata.BufferDesc{Name: "scratch", Size: 64})
			if err != nil {
				return err
			}
			view, err := fg.CreateBufferView(res, metadata.BufferViewDesc{})
			if err != nil {
				return err
			}
			return fg.AddPass("fill", metadata.QueueCompute,
				[]framegraph.ResourceUsage{framegraph.Use(view, metadata.StateCopyDest, metadata.StageTransfer)},
				func(cmd renderer.CommandBuffer, reg framegraph.Registry) error {
					v, err := reg.View(view)
					if err != nil {
						return err
					}
					cmd.FillBuffer(v, 1)
					c.recorded++
					return nil
				})
		},
		FnShutdown: func() error {
			c.shutdown++
			return nil
		},
	}
}

func TestEngineRunsConfiguredFrames(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		cfg := DefaultConfig()
		cfg.Application.Frames = 5
		cfg.Renderer.ParallelRecording = parallel
		cfg.Renderer.RecordWorkers = 2

		c := &counters{}
		e, err := New(newCountingGame(c), cfg, "")
		require.NoError(t, err)
		require.NoError(t, e.Initialize())
		require.NoError(t, e.Run())

		assert.Equal(t, uint64(5), e.Frames())
		assert.Equal(t, EngineStageShutdown, e.Stage())
		assert.Equal(t, counters{initialized: 1, updates: 5, renders: 5, recorded: 5, shutdown: 1}, *c)
	}
}

func TestEngineStopsOnRenderError(t *testing.T) {
	cfg := DefaultConfig()
	boom := errors.New("boom")
	g := &Game{FnRender: func(*framegraph.FrameGraph, float64) error { return boom }}

	e, err := New(g, cfg, "")
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.ErrorIs(t, e.Run(), boom)
	assert.Zero(t, e.Frames())
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Renderer.Backend = "metal"
	_, err := New(&Game{}, cfg, "")
	assert.Error(t, err)
}

func TestRunRequiresInitialize(t *testing.T) {
	e, err := New(&Game{}, nil, "")
	require.NoError(t, err)
	assert.Error(t, e.Run())
}
