package headless

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

type Op uint8

const (
	OpBarrier Op = iota
	OpBeginLabel
	OpEndLabel
	OpFillBuffer
	OpCopyBuffer
	OpClearColorImage
	OpCopyBufferToImage
	OpCopyImageToBuffer
)

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op       Op
	Label    string
	Barriers []renderer.Barrier
	Src      renderer.View
	Dst      renderer.View

	exec func()
}

type CommandPool struct {
	device  *Device
	queue   metadata.QueueKind
	buffers []*CommandBuffer
	resets  int
}

func (p *CommandPool) Queue() metadata.QueueKind { return p.queue }

func (p *CommandPool) Allocate() (renderer.CommandBuffer, error) {
	cb := &CommandBuffer{queue: p.queue}
	p.buffers = append(p.buffers, cb)
	return cb, nil
}

func (p *CommandPool) Reset() error {
	for _, cb := range p.buffers {
		cb.commands = nil
		cb.state = stateReset
	}
	p.buffers = p.buffers[:0]
	p.resets++
	p.device.record(EventResetCommandPool, p.queue.String(), 0)
	return nil
}

// Resets is how many times the pool has been reset.
func (p *CommandPool) Resets() int { return p.resets }

type recordingState uint8

const (
	stateReset recordingState = iota
	stateRecording
	stateExecutable
)

type CommandBuffer struct {
	queue    metadata.QueueKind
	state    recordingState
	commands []Command
}

func (c *CommandBuffer) Queue() metadata.QueueKind { return c.queue }

func (c *CommandBuffer) Begin() error {
	if c.state == stateRecording {
		return fmt.Errorf("headless: command buffer already recording")
	}
	c.commands = nil
	c.state = stateRecording
	return nil
}

func (c *CommandBuffer) End() error {
	if c.state != stateRecording {
		return fmt.Errorf("headless: command buffer is not recording")
	}
	c.state = stateExecutable
	return nil
}

// Commands returns what was recorded between Begin and End.
func (c *CommandBuffer) Commands() []Command {
	return c.commands
}

// Barriers flattens every barrier recorded in the buffer.
func (c *CommandBuffer) Barriers() []renderer.Barrier {
	var out []renderer.Barrier
	for _, cmd := range c.commands {
		out = append(out, cmd.Barriers...)
	}
	return out
}

func (c *CommandBuffer) PipelineBarrier(barriers []renderer.Barrier) {
	if len(barriers) == 0 {
		return
	}
	c.push(Command{Op: OpBarrier, Barriers: append([]renderer.Barrier(nil), barriers...)})
}

func (c *CommandBuffer) BeginLabel(name string) {
	c.push(Command{Op: OpBeginLabel, Label: name})
}

func (c *CommandBuffer) EndLabel() {
	c.push(Command{Op: OpEndLabel})
}

func (c *CommandBuffer) FillBuffer(dst renderer.View, value uint32) {
	c.push(Command{Op: OpFillBuffer, Dst: dst, exec: func() {
		out := dst.(*BufferView).bytes()
		for i := 0; i+4 <= len(out); i += 4 {
			binary.LittleEndian.PutUint32(out[i:], value)
		}
	}})
}

func (c *CommandBuffer) CopyBuffer(src, dst renderer.View, size uint64) {
	c.push(Command{Op: OpCopyBuffer, Src: src, Dst: dst, exec: func() {
		in, out := src.(*BufferView).bytes(), dst.(*BufferView).bytes()
		n := min(uint64(len(in)), uint64(len(out)), size)
		copy(out[:n], in[:n])
	}})
}

func (c *CommandBuffer) ClearColorImage(dst renderer.View, color [4]float32) {
	c.push(Command{Op: OpClearColorImage, Dst: dst, exec: func() {
		v := dst.(*ImageView)
		texel := encodeColor(v.desc.Format, color)
		out := v.image.layers(v.desc.Range)
		if len(texel) == 0 {
			return
		}
		for i := 0; i+len(texel) <= len(out); i += len(texel) {
			copy(out[i:], texel)
		}
	}})
}

func (c *CommandBuffer) CopyBufferToImage(src, dst renderer.View) {
	c.push(Command{Op: OpCopyBufferToImage, Src: src, Dst: dst, exec: func() {
		v := dst.(*ImageView)
		copy(v.image.layers(v.desc.Range), src.(*BufferView).bytes())
	}})
}

func (c *CommandBuffer) CopyImageToBuffer(src, dst renderer.View) {
	c.push(Command{Op: OpCopyImageToBuffer, Src: src, Dst: dst, exec: func() {
		v := src.(*ImageView)
		copy(dst.(*BufferView).bytes(), v.image.layers(v.desc.Range))
	}})
}

func (c *CommandBuffer) push(cmd Command) {
	c.commands = append(c.commands, cmd)
}

func (c *CommandBuffer) execute() {
	for _, cmd := range c.commands {
		if cmd.exec != nil {
			cmd.exec()
		}
	}
}

func encodeColor(format metadata.Format, color [4]float32) []byte {
	unorm := func(f float32) byte {
		return byte(math.Round(float64(max(0, min(1, f))) * 255))
	}
	switch format {
	case metadata.FormatRGBA8Unorm, metadata.FormatRGBA8Srgb:
		return []byte{unorm(color[0]), unorm(color[1]), unorm(color[2]), unorm(color[3])}
	case metadata.FormatBGRA8Unorm, metadata.FormatBGRA8Srgb:
		return []byte{unorm(color[2]), unorm(color[1]), unorm(color[0]), unorm(color[3])}
	case metadata.FormatR8Unorm:
		return []byte{unorm(color[0])}
	case metadata.FormatR32Float:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(color[0]))
	case metadata.FormatRGBA32Float:
		out := make([]byte, 0, 16)
		for _, f := range color {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
		return out
	}
	return nil
}
