package containers

import (
	"testing"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleAllocatorExhaustion(t *testing.T) {
	a := NewHandleAllocator[uint32](3, 2)

	seen := map[uint32]bool{}
	for i := 0; i < 3; i++ {
		s := a.Allocate()
		require.True(t, s.IsValid())
		assert.False(t, seen[s.Index], "index %d handed out twice", s.Index)
		seen[s.Index] = true
	}

	assert.False(t, a.Allocate().IsValid())
	assert.Equal(t, 0, a.Available())
}

func TestHandleAllocatorFreeDetectsStaleSlot(t *testing.T) {
	a := NewHandleAllocator[uint16](1, 1)

	first := a.Allocate()
	require.NoError(t, a.Free(first))

	second := a.Allocate()
	assert.Equal(t, first.Index, second.Index)
	assert.NotEqual(t, first.Generation, second.Generation)

	assert.ErrorIs(t, a.Free(first), core.ErrStaleHandle)
	assert.True(t, a.IsLive(second))
	assert.ErrorIs(t, a.Free(Slot[uint16]{}), core.ErrInvalidHandle)
}

func TestHandleAllocatorReusesInFIFOOrder(t *testing.T) {
	a := NewHandleAllocator[uint32](4, 1)
	s0 := a.Allocate()
	s1 := a.Allocate()
	require.NoError(t, a.Free(s0))

	// the two never-used slots come before the one just released
	assert.Equal(t, uint32(2), a.Allocate().Index)
	assert.Equal(t, uint32(3), a.Allocate().Index)
	assert.Equal(t, s0.Index, a.Allocate().Index)
	assert.True(t, a.IsLive(s1))
}

func TestTransientHandlesSurviveUntilTheirSetIsFreed(t *testing.T) {
	a := NewHandleAllocator[uint32](2, 2)

	transient := a.AllocateTransient(0)
	require.True(t, transient.IsValid())
	persistent := a.Allocate()
	require.True(t, persistent.IsValid())

	// the transient slot is not handed out again while its frame is in flight
	assert.False(t, a.Allocate().IsValid())

	assert.Empty(t, a.FreeTransientHandles(1))
	assert.False(t, a.Allocate().IsValid())
	assert.True(t, a.IsLive(transient))

	assert.Equal(t, []Slot[uint32]{transient}, a.FreeTransientHandles(0))
	assert.False(t, a.IsLive(transient))
	again := a.Allocate()
	require.True(t, again.IsValid())
	assert.Equal(t, transient.Index, again.Index)
	assert.True(t, a.IsLive(persistent))
}

func TestFreeTransientSkipsExplicitlyFreedSlots(t *testing.T) {
	a := NewHandleAllocator[uint32](2, 1)

	transient := a.AllocateTransient(0)
	require.NoError(t, a.Free(transient))
	_ = a.Allocate()
	reused := a.Allocate()
	require.True(t, reused.IsValid())
	require.Equal(t, transient.Index, reused.Index)

	assert.Empty(t, a.FreeTransientHandles(0), "the explicitly freed slot is not reported again")
	assert.True(t, a.IsLive(reused))
}
