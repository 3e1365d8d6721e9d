package engine

import (
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/framegraph"
)

type Game struct {
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnShutdown   Shutdown
}

// Initialize runs once the device and the frame graph exist. Persistent
// resources and bindless handles are created here.
type Initialize func(device renderer.Device, fg *framegraph.FrameGraph) error
type Update func(deltaTime float64) error

// Render declares the resources and passes of one frame. The engine
// executes the frame graph right after it returns.
type Render func(fg *framegraph.FrameGraph, deltaTime float64) error
type Shutdown func() error
