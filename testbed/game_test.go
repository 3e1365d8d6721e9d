package testbed

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-framegraph/engine/renderer/bindless"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/headless"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

func unorm(f float32) byte {
	return byte(math.Round(float64(max(0, min(1, f))) * 255))
}

func TestTestbedReadsBackClearColor(t *testing.T) {
	device := headless.New()
	fg, err := framegraph.New(framegraph.Config{
		Device:      device,
		Bindless:    bindless.DefaultConfig(),
		WaitTimeout: framegraph.DefaultWaitTimeout,
	})
	require.NoError(t, err)

	tg, err := NewTestGame()
	require.NoError(t, err)
	require.NoError(t, tg.Initialize(device, fg))

	const (
		frames = 5
		dt     = 0.25
	)
	for i := 0; i < frames; i++ {
		require.NoError(t, tg.Update(dt))
		require.NoError(t, tg.Render(fg, dt))
		require.NoError(t, fg.Execute())
		require.NoError(t, fg.NextFrame())
	}

	// the last inspection, in the final frame, saw the clear of two frames before
	want := pulse((frames - 2) * dt)
	assert.Equal(t, [4]byte{unorm(want[0]), unorm(want[1]), unorm(want[2]), unorm(want[3])}, tg.LastTexel())

	st := tg.state()
	for _, rb := range st.readbacks {
		assert.Equal(t, metadata.QueueGraphics, rb.state.Queue)
		assert.Equal(t, metadata.StateCopyDest, rb.state.State.State)
	}

	// upload, simulate and shade cross queues, so each frame needs several batches
	s := fg.Stats()
	assert.Equal(t, 5, s.Passes)
	assert.GreaterOrEqual(t, s.Batches, 3)
	assert.Zero(t, s.CulledResources)

	require.NoError(t, fg.Destroy())
	require.NoError(t, tg.Shutdown())
	device.Destroy()
	assert.Zero(t, device.LiveObjects())
}

func TestWriteParticles(t *testing.T) {
	data := make([]byte, particleCount*particleSize)
	writeParticles(data, 0)

	// the first particle sits at angle zero
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(data[0:])))
	assert.Equal(t, float32(0), math.Float32frombits(binary.LittleEndian.Uint32(data[4:])))
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(data[12:])))

	// short buffers are filled as far as they go
	assert.NotPanics(t, func() { writeParticles(make([]byte, particleSize+3), 1) })
}
