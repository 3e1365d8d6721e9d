package testbed

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaghettifunk/anima-framegraph/engine"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

const (
	width         = 64
	height        = 64
	particleCount = 256
	particleSize  = 16
	// how often, in frames, the read back texel is logged
	reportInterval = 60
)

type TestGame struct {
	*engine.Game
}

// readback is a host-visible buffer owned by the game. One exists per frame
// slot so that the copy of frame N is read once the slot comes back around.
type readback struct {
	buffer renderer.Resource
	view   renderer.View
	state  metadata.ExternalState
}

type gameState struct {
	device    renderer.Device
	elapsed   float64
	readbacks [framegraph.FramesInFlight]*readback

	// last texel read back, RGBA8
	lastTexel [4]byte
	frames    uint64
}

func NewTestGame() (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(device renderer.Device, fg *framegraph.FrameGraph) error {
	core.LogInfo("initializing testbed...")
	st := g.state()
	st.device = device

	for i := range st.readbacks {
		name := fmt.Sprintf("readback-%d", i)
		buf, err := device.CreateBuffer(metadata.BufferDesc{
			Name:       name,
			Size:       width * height * 4,
			Usage:      metadata.BufferUsageTransferDst,
			HostAccess: metadata.HostAccessRead,
		})
		if err != nil {
			return err
		}
		view, err := device.CreateBufferView(buf, metadata.BufferViewDesc{Name: name + "-host"})
		if err != nil {
			return err
		}
		st.readbacks[i] = &readback{
			buffer: buf,
			view:   view,
			state:  metadata.ExternalState{Queue: metadata.QueueGraphics},
		}
	}
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	st := g.state()
	st.elapsed += deltaTime
	return nil
}

func (g *TestGame) Render(fg *framegraph.FrameGraph, deltaTime float64) error {
	st := g.state()
	slot := fg.FrameIndex() % framegraph.FramesInFlight
	rb := st.readbacks[slot]

	// the slot was reclaimed by NextFrame, its last copy has completed
	if st.frames >= framegraph.FramesInFlight {
		if err := g.inspect(rb); err != nil {
			return err
		}
	}
	st.frames++

	staging, err := fg.CreateBuffer(metadata.BufferDesc{
		Name:       "particle-staging",
		Size:       particleCount * particleSize,
		HostAccess: metadata.HostAccessWrite,
	})
	if err != nil {
		return err
	}
	stagingView, err := fg.CreateBufferView(staging, metadata.BufferViewDesc{Name: "particle-staging"})
	if err != nil {
		return err
	}
	particles, err := fg.CreateBuffer(metadata.BufferDesc{Name: "particles", Size: particleCount * particleSize})
	if err != nil {
		return err
	}
	particleView, err := fg.CreateBufferView(particles, metadata.BufferViewDesc{Name: "particles", Stride: particleSize})
	if err != nil {
		return err
	}
	color, err := fg.CreateImage(metadata.ImageDesc{
		Name:   "color",
		Type:   metadata.ImageType2D,
		Format: metadata.FormatRGBA8Unorm,
		Width:  width,
		Height: height,
		Layers: 1,
		Levels: 1,
	})
	if err != nil {
		return err
	}
	colorView, err := fg.CreateImageView(color, metadata.ImageViewDesc{Name: "color", Type: metadata.ImageViewType2D})
	if err != nil {
		return err
	}
	target, err := fg.ImportBuffer(rb.buffer, metadata.BufferDesc{
		Name:  rb.buffer.Name(),
		Size:  width * height * 4,
		Usage: metadata.BufferUsageTransferDst,
	}, &rb.state)
	if err != nil {
		return err
	}
	targetView, err := fg.CreateBufferView(target, metadata.BufferViewDesc{Name: rb.buffer.Name()})
	if err != nil {
		return err
	}

	// Upload on the async transfer queue.
	err = fg.AddPass("upload", metadata.QueueTransfer, []framegraph.ResourceUsage{
		framegraph.Use(stagingView, metadata.StateCopySource, metadata.StageTransfer),
		framegraph.Use(particleView, metadata.StateCopyDest, metadata.StageTransfer),
	}, func(cmd renderer.CommandBuffer, reg framegraph.Registry) error {
		data, err := reg.Map(stagingView)
		if err != nil {
			return err
		}
		writeParticles(data, st.elapsed)
		reg.Unmap(stagingView)

		src, err := reg.View(stagingView)
		if err != nil {
			return err
		}
		dst, err := reg.View(particleView)
		if err != nil {
			return err
		}
		cmd.CopyBuffer(src, dst, particleCount*particleSize)
		return nil
	})
	if err != nil {
		return err
	}

	// Simulate on the async compute queue. Pipelines live outside the frame
	// graph, the pass only resolves the handle a dispatch would bind.
	err = fg.AddPass("simulate", metadata.QueueCompute, []framegraph.ResourceUsage{
		framegraph.Use(particleView, metadata.StateUnorderedAccess, metadata.StageComputeShader),
	}, func(cmd renderer.CommandBuffer, reg framegraph.Registry) error {
		h, err := reg.ShaderHandle(particleView, true)
		if err != nil {
			return err
		}
		core.LogDebug("simulate: particles bound at %s", h)
		return nil
	})
	if err != nil {
		return err
	}

	err = fg.AddPass("clear", metadata.QueueGraphics, []framegraph.ResourceUsage{
		framegraph.Use(colorView, metadata.StateCopyDest, metadata.StageTransfer),
	}, func(cmd renderer.CommandBuffer, reg framegraph.Registry) error {
		v, err := reg.View(colorView)
		if err != nil {
			return err
		}
		cmd.ClearColorImage(v, pulse(st.elapsed))
		return nil
	})
	if err != nil {
		return err
	}

	err = fg.AddPass("shade", metadata.QueueGraphics, []framegraph.ResourceUsage{
		framegraph.Use(particleView, metadata.StateShaderResource, metadata.StageVertexShader),
		framegraph.Use(colorView, metadata.StateRenderTarget, metadata.StageColorAttachmentOutput),
	}, func(cmd renderer.CommandBuffer, reg framegraph.Registry) error {
		_, err := reg.ShaderHandle(particleView, false)
		return err
	})
	if err != nil {
		return err
	}

	return fg.AddPass("readback", metadata.QueueGraphics, []framegraph.ResourceUsage{
		framegraph.Use(colorView, metadata.StateCopySource, metadata.StageTransfer),
		framegraph.Use(targetView, metadata.StateCopyDest, metadata.StageTransfer),
	}, func(cmd renderer.CommandBuffer, reg framegraph.Registry) error {
		src, err := reg.View(colorView)
		if err != nil {
			return err
		}
		dst, err := reg.View(targetView)
		if err != nil {
			return err
		}
		cmd.CopyImageToBuffer(src, dst)
		return nil
	})
}

func (g *TestGame) inspect(rb *readback) error {
	st := g.state()
	data, err := st.device.MapBuffer(rb.view)
	if err != nil {
		return err
	}
	defer st.device.UnmapBuffer(rb.view)
	copy(st.lastTexel[:], data[:4])
	if st.frames%reportInterval == 0 {
		core.LogDebug("readback %s: first texel %v", rb.buffer.Name(), st.lastTexel)
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed...")
	st := g.state()
	for i, rb := range st.readbacks {
		if rb == nil {
			continue
		}
		st.device.DestroyView(rb.view)
		st.device.DestroyResource(rb.buffer)
		st.readbacks[i] = nil
	}
	return nil
}

// LastTexel is the most recent texel read back from the color target.
func (g *TestGame) LastTexel() [4]byte {
	return g.state().lastTexel
}

func pulse(t float64) [4]float32 {
	s := float32(0.5 + 0.5*math.Sin(t))
	return [4]float32{s, 0.25, 1 - s, 1}
}

// writeParticles lays out particleCount float32 vec4s on a circle.
func writeParticles(data []byte, t float64) {
	for i := 0; i < particleCount && (i+1)*particleSize <= len(data); i++ {
		angle := t + 2*math.Pi*float64(i)/particleCount
		p := data[i*particleSize:]
		binary.LittleEndian.PutUint32(p[0:], math.Float32bits(float32(math.Cos(angle))))
		binary.LittleEndian.PutUint32(p[4:], math.Float32bits(float32(math.Sin(angle))))
		binary.LittleEndian.PutUint32(p[8:], 0)
		binary.LittleEndian.PutUint32(p[12:], math.Float32bits(1))
	}
}
