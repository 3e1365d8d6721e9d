package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateReadOnly(t *testing.T) {
	assert.True(t, StateShaderResource.IsReadOnly(true))
	assert.True(t, (StateShaderResource | StateDepthRead).IsReadOnly(true))
	assert.False(t, StateCopySource.IsReadOnly(true), "images leave copy-src through a layout change")
	assert.True(t, (StateCopySource | StateConstantBuffer).IsReadOnly(false))
	assert.False(t, StateUndefined.IsReadOnly(false))
	assert.False(t, StateUnorderedAccess.IsReadOnly(false))

	assert.True(t, StateCopyDest.HasWrite())
	assert.False(t, StateHostRead.HasWrite())
}

func TestReadCombineClass(t *testing.T) {
	assert.Equal(t, uint8(1), StateShaderResource.ReadCombineClass(true))
	assert.Equal(t, uint8(2), StateDepthRead.ReadCombineClass(true))
	assert.Equal(t, uint8(1), StateVertexBuffer.ReadCombineClass(false))
	assert.Equal(t, uint8(0), StateRenderTarget.ReadCombineClass(true))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "undefined", StateUndefined.String())
	assert.Equal(t, "shader-resource|copy-src", (StateShaderResource | StateCopySource).String())
	assert.Equal(t, "first-access|acquire", (BarrierFirstAccessInSubmission | BarrierQueueOwnershipAcquire).String())
}

func TestUsageForState(t *testing.T) {
	assert.Equal(t, ImageUsageColorAttachment|ImageUsageSampled, ImageUsageForState(StateRenderTarget|StateShaderResource))
	assert.Equal(t, BufferUsageUniformTexel, BufferUsageForState(StateShaderResource, true))
	assert.Equal(t, BufferUsageStorage, BufferUsageForState(StateShaderResource, false))
	assert.Equal(t, BufferUsageStorageTexel|BufferUsageTransferDst, BufferUsageForState(StateUnorderedAccess|StateCopyDest, true))
	assert.Equal(t, HostAccessRead, HostAccessForState(StateHostRead))
	assert.Equal(t, HostAccessNone, HostAccessForState(StateCopyDest))
}

func TestSubresourceRange(t *testing.T) {
	r := SubresourceRange{BaseLevel: 1, BaseLayer: 2}.Resolve(4, 6)
	assert.Equal(t, SubresourceRange{BaseLevel: 1, LevelCount: 3, BaseLayer: 2, LayerCount: 4}, r)
	assert.True(t, r.Contains(4, 6))
	assert.False(t, r.Contains(3, 6))
	assert.False(t, SubresourceRange{}.Contains(1, 1), "unresolved ranges are empty")

	// a base past the end stays empty
	r = SubresourceRange{BaseLevel: 5}.Resolve(4, 1)
	assert.Equal(t, uint32(0), r.LevelCount)
}

func TestFormat(t *testing.T) {
	assert.True(t, FormatD24UnormS8Uint.IsDepth())
	assert.True(t, FormatD24UnormS8Uint.HasStencil())
	assert.False(t, FormatD32Float.HasStencil())
	assert.Equal(t, uint32(4), FormatRGBA8Unorm.BytesPerTexel())
	assert.Equal(t, uint32(16), FormatRGBA32Float.BytesPerTexel())
	assert.Equal(t, uint32(0), FormatUndefined.BytesPerTexel())
	assert.Equal(t, uint64(256), GetAligned(200, 256))
}
