package systems

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemValidatesArguments(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestDispatchRunsEveryTask(t *testing.T) {
	js, err := NewJobSystem(4, 0)
	require.NoError(t, err)
	defer js.Shutdown()

	var ran atomic.Int32
	tasks := make([]func() error, 32)
	for i := range tasks {
		tasks[i] = func() error {
			ran.Add(1)
			return nil
		}
	}
	require.NoError(t, js.Dispatch(tasks))
	assert.Equal(t, int32(32), ran.Load())
}

func TestDispatchJoinsErrors(t *testing.T) {
	js, err := NewJobSystem(2, 4)
	require.NoError(t, err)
	defer js.Shutdown()

	first, second := errors.New("first"), errors.New("second")
	err = js.Dispatch([]func() error{
		func() error { return first },
		func() error { return nil },
		func() error { return second },
	})
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}

func TestSubmitCallbacks(t *testing.T) {
	js, err := NewJobSystem(1, 2)
	require.NoError(t, err)

	var completed, failed, finished atomic.Int32
	js.Submit(JobTask{
		Name:                 "ok",
		OnStart:              func() error { return nil },
		OnComplete:           func() { completed.Add(1) },
		OnFailure:            func(error) { failed.Add(1) },
		OnCompletionCallback: func() { finished.Add(1) },
	})
	js.Submit(JobTask{
		Name:                 "broken",
		OnStart:              func() error { return errors.New("broken") },
		OnComplete:           func() { completed.Add(1) },
		OnFailure:            func(error) { failed.Add(1) },
		OnCompletionCallback: func() { finished.Add(1) },
	})
	require.NoError(t, js.Shutdown())

	assert.Equal(t, int32(1), completed.Load())
	assert.Equal(t, int32(1), failed.Load())
	assert.Equal(t, int32(2), finished.Load())
	// a second shutdown is harmless
	require.NoError(t, js.Shutdown())
}
