package headless

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

// Submission is a recorded queue submission.
type Submission struct {
	Queue          metadata.QueueKind
	WaitValues     [metadata.QueueCount]uint64
	WaitStages     [metadata.QueueCount]metadata.PipelineStage
	SignalValue    uint64
	CommandBuffers []*CommandBuffer
}

// Barriers flattens the barriers of every command buffer of the submission.
func (s Submission) Barriers() []renderer.Barrier {
	var out []renderer.Barrier
	for _, cb := range s.CommandBuffers {
		out = append(out, cb.Barriers()...)
	}
	return out
}

// Labels lists the debug labels opened in the submission, in order.
func (s Submission) Labels() []string {
	var out []string
	for _, cb := range s.CommandBuffers {
		for _, cmd := range cb.commands {
			if cmd.Op == OpBeginLabel {
				out = append(out, cmd.Label)
			}
		}
	}
	return out
}

// Queue executes submissions immediately. A wait that is not already
// satisfied at submit time would never be signalled by earlier work, so it is
// reported as an error instead of hanging.
type Queue struct {
	device   *Device
	kind     metadata.QueueKind
	signaled uint64
}

func (q *Queue) Kind() metadata.QueueKind { return q.kind }

func (q *Queue) SignaledValue() uint64 {
	q.device.mu.Lock()
	defer q.device.mu.Unlock()
	return q.signaled
}

func (q *Queue) Submit(info renderer.SubmitInfo) error {
	d := q.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return core.ErrDeviceLost
	}
	for _, other := range metadata.AllQueues {
		want := info.WaitValues[other]
		if want == 0 {
			continue
		}
		if got := d.queues[other].signaled; got < want {
			return fmt.Errorf("headless: %s submission waits for %s value %d, only %d was signalled",
				q.kind, other, want, got)
		}
	}
	if info.SignalValue != 0 && info.SignalValue <= q.signaled {
		return fmt.Errorf("headless: %s signal value %d is not above %d", q.kind, info.SignalValue, q.signaled)
	}

	sub := Submission{
		Queue:       q.kind,
		WaitValues:  info.WaitValues,
		WaitStages:  info.WaitStages,
		SignalValue: info.SignalValue,
	}
	for _, cb := range info.CommandBuffers {
		hcb, ok := cb.(*CommandBuffer)
		if !ok {
			return fmt.Errorf("headless: foreign command buffer submitted to %s", q.kind)
		}
		if hcb.state != stateExecutable {
			return fmt.Errorf("headless: command buffer submitted to %s was not ended", q.kind)
		}
		if hcb.queue != q.kind {
			return fmt.Errorf("headless: %s command buffer submitted to %s", hcb.queue, q.kind)
		}
		hcb.execute()
		sub.CommandBuffers = append(sub.CommandBuffers, hcb)
	}
	if info.SignalValue != 0 {
		q.signaled = info.SignalValue
	}
	d.submissions.Push(sub)
	return nil
}

func (q *Queue) Wait(value uint64, timeout time.Duration) error {
	d := q.device
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return core.ErrDeviceLost
	}
	if q.signaled < value {
		return fmt.Errorf("%s queue at %d, waited for %d within %s: %w", q.kind, q.signaled, value, timeout, core.ErrWaitTimeout)
	}
	return nil
}
