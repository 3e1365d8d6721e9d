package containers

import (
	"runtime"
	"sync/atomic"
)

// SpinLock is a busy-waiting mutex for very short critical sections.
// The zero value is unlocked.
type SpinLock struct {
	state atomic.Uint32
}

func (s *SpinLock) Lock() {
	for !s.state.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

func (s *SpinLock) TryLock() bool {
	return s.state.CompareAndSwap(0, 1)
}

func (s *SpinLock) Unlock() {
	s.state.Store(0)
}
