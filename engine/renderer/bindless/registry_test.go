package bindless

import (
	"sync"
	"testing"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/headless"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	device *headless.Device
	table  *headless.BindingTable
	reg    *Registry
	buffer renderer.Resource
}

func newFixture(t *testing.T, capacity uint32) *fixture {
	t.Helper()
	device := headless.New()
	cfg := Config{}
	for i := range cfg.Capacities {
		cfg.Capacities[i] = capacity
	}
	table, err := device.CreateBindingTable(cfg.Capacities, BufferedInstances)
	require.NoError(t, err)
	buffer, err := device.CreateBuffer(metadata.BufferDesc{Name: "data", Size: 256})
	require.NoError(t, err)
	return &fixture{
		device: device,
		table:  table.(*headless.BindingTable),
		reg:    New(table, cfg),
		buffer: buffer,
	}
}

func (f *fixture) view(t *testing.T, name string) renderer.View {
	t.Helper()
	v, err := f.device.CreateBufferView(f.buffer, metadata.BufferViewDesc{Name: name, Stride: 4})
	require.NoError(t, err)
	return v
}

func TestPendingUpdatesCoalesce(t *testing.T) {
	f := newFixture(t, 8)
	u1, u2 := f.view(t, "u1"), f.view(t, "u2")

	h := f.reg.CreateByteBufferHandle(u1, false)
	require.True(t, h.IsValid())
	require.NoError(t, f.reg.UpdateHandle(h, u2))

	require.NoError(t, f.reg.FlushChanges())

	writes := f.table.Writes(f.reg.CurrentInstance())
	require.Len(t, writes, 1)
	assert.Equal(t, u2, writes[0].View)
	assert.Equal(t, h.Index(), writes[0].Slot)
	assert.Equal(t, metadata.BindlessByteBuffer, writes[0].Category)
}

func TestDestroyBeforeFlushDropsTheWrite(t *testing.T) {
	f := newFixture(t, 8)

	h := f.reg.CreateTextureHandle(f.view(t, "tex"), false)
	require.NoError(t, f.reg.DestroyHandle(h))
	require.NoError(t, f.reg.FlushChanges())

	assert.Empty(t, f.table.Writes(0))
	assert.Zero(t, f.reg.PendingWrites(0))
	assert.Zero(t, f.reg.PendingWrites(1))
}

func TestDestroyThenReallocateSameSlot(t *testing.T) {
	f := newFixture(t, 1)
	first, second := f.view(t, "first"), f.view(t, "second")

	h := f.reg.CreateTextureHandle(first, false)
	require.NoError(t, f.reg.DestroyHandle(h))
	again := f.reg.CreateTextureHandle(second, false)
	require.Equal(t, h.Index(), again.Index())

	require.NoError(t, f.reg.FlushChanges())
	writes := f.table.Writes(0)
	require.Len(t, writes, 1)
	assert.Equal(t, second, writes[0].View)

	assert.ErrorIs(t, f.reg.DestroyHandle(h), core.ErrStaleHandle)
	assert.ErrorIs(t, f.reg.UpdateHandle(h, first), core.ErrStaleHandle)
}

func TestPersistentHandlesReachBothInstances(t *testing.T) {
	f := newFixture(t, 4)
	v := f.view(t, "persistent")

	h := f.reg.CreateRWByteBufferHandle(v, false)
	require.NoError(t, f.reg.FlushChanges())
	assert.Equal(t, v, f.table.Slot(0, metadata.BindlessRWByteBuffer, h.Index()))
	assert.Nil(t, f.table.Slot(1, metadata.BindlessRWByteBuffer, h.Index()))

	f.reg.SwapSets()
	require.NoError(t, f.reg.FlushChanges())
	assert.Equal(t, v, f.table.Slot(1, metadata.BindlessRWByteBuffer, h.Index()))
}

func TestTransientHandlesAreReleasedWhenTheirInstanceComesBack(t *testing.T) {
	f := newFixture(t, 1)
	v := f.view(t, "transient")

	h := f.reg.CreateTypedBufferHandle(v, true)
	require.True(t, h.IsValid())
	assert.Equal(t, 1, f.reg.PendingWrites(0))
	assert.Zero(t, f.reg.PendingWrites(1))

	// frame N+1 still sees the slot in use
	f.reg.SwapSets()
	assert.False(t, f.reg.CreateTypedBufferHandle(v, true).IsValid())

	// frame N+2 reuses frame N's instance, the slot is free again
	f.reg.SwapSets()
	again := f.reg.CreateTypedBufferHandle(v, true)
	require.True(t, again.IsValid())
	assert.Equal(t, h.Index(), again.Index())
	assert.ErrorIs(t, f.reg.DestroyHandle(h), core.ErrStaleHandle)
}

func TestReleasedTransientSlotsDropPendingWrites(t *testing.T) {
	f := newFixture(t, 4)
	v := f.view(t, "late")

	// registered after instance 0 was flushed, e.g. from a recording callback
	require.NoError(t, f.reg.FlushChanges())
	h := f.reg.CreateTextureHandle(v, true)
	require.True(t, h.IsValid())
	assert.Equal(t, 1, f.reg.PendingWrites(0))

	f.reg.SwapSets()
	f.reg.SwapSets()
	assert.Equal(t, 4, f.reg.Available(metadata.BindlessTexture))
	assert.Zero(t, f.reg.PendingWrites(0))

	require.NoError(t, f.reg.FlushChanges())
	assert.Empty(t, f.table.Writes(0))
	assert.Nil(t, f.table.Slot(0, metadata.BindlessTexture, h.Index()))
}

func TestUpdateTransientHandleStaysInItsInstance(t *testing.T) {
	f := newFixture(t, 4)
	v1, v2 := f.view(t, "v1"), f.view(t, "v2")

	h := f.reg.CreateByteBufferHandle(v1, true)
	require.True(t, h.IsTransient())
	require.NoError(t, f.reg.UpdateHandle(h, v2))
	assert.Equal(t, 1, f.reg.PendingWrites(0))
	assert.Zero(t, f.reg.PendingWrites(1))

	require.NoError(t, f.reg.FlushChanges())
	assert.Equal(t, v2, f.table.Slot(0, metadata.BindlessByteBuffer, h.Index()))

	// the next frame does not own the handle
	f.reg.SwapSets()
	assert.ErrorIs(t, f.reg.UpdateHandle(h, v1), core.ErrStaleHandle)
	assert.Zero(t, f.reg.PendingWrites(1))

	persistent := f.reg.CreateByteBufferHandle(v1, false)
	assert.False(t, persistent.IsTransient())
}

func TestExhaustionReturnsInvalidHandle(t *testing.T) {
	f := newFixture(t, 1)
	v := f.view(t, "v")

	require.True(t, f.reg.CreateRWTypedBufferHandle(v, false).IsValid())
	h := f.reg.CreateRWTypedBufferHandle(v, false)
	assert.Equal(t, InvalidHandle, h)
	assert.Zero(t, f.reg.Available(metadata.BindlessRWTypedBuffer))
	assert.ErrorIs(t, f.reg.DestroyHandle(h), core.ErrInvalidHandle)
}

func TestConcurrentRegistration(t *testing.T) {
	f := newFixture(t, 256)
	v := f.view(t, "shared")

	var wg sync.WaitGroup
	handles := make([]Handle, 128)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = f.reg.CreateTextureHandle(v, i%2 == 0)
		}(i)
	}
	wg.Wait()

	seen := map[uint32]bool{}
	for _, h := range handles {
		require.True(t, h.IsValid())
		assert.False(t, seen[h.Index()])
		seen[h.Index()] = true
	}
	require.NoError(t, f.reg.FlushChanges())
	assert.Len(t, f.table.Writes(0), len(handles))
}

func TestCreateHandleWithoutViewPanics(t *testing.T) {
	f := newFixture(t, 1)
	assert.Panics(t, func() { f.reg.CreateTextureHandle(nil, false) })
}
