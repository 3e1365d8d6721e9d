package metadata

type BufferUsage uint32

const (
	BufferUsageTransferSrc  BufferUsage = 1 << 0
	BufferUsageTransferDst  BufferUsage = 1 << 1
	BufferUsageUniformTexel BufferUsage = 1 << 2
	BufferUsageStorageTexel BufferUsage = 1 << 3
	BufferUsageUniform      BufferUsage = 1 << 4
	BufferUsageStorage      BufferUsage = 1 << 5
	BufferUsageIndex        BufferUsage = 1 << 6
	BufferUsageVertex       BufferUsage = 1 << 7
	BufferUsageIndirect     BufferUsage = 1 << 8
)

// ShaderVisible reports whether views of a buffer with this usage get a bindless slot.
func (u BufferUsage) ShaderVisible() bool {
	return u&(BufferUsageUniformTexel|BufferUsageStorageTexel|BufferUsageStorage) != 0
}

// BufferUsageForState maps a logical state to the usage flags it requires.
// Typed views (with a format) read and write through texel buffers, raw views
// through storage buffers.
func BufferUsageForState(s ResourceState, typed bool) BufferUsage {
	var u BufferUsage
	if s&StateVertexBuffer != 0 {
		u |= BufferUsageVertex
	}
	if s&StateIndexBuffer != 0 {
		u |= BufferUsageIndex
	}
	if s&StateConstantBuffer != 0 {
		u |= BufferUsageUniform
	}
	if s&StateIndirectArgument != 0 {
		u |= BufferUsageIndirect
	}
	if s&StateShaderResource != 0 {
		if typed {
			u |= BufferUsageUniformTexel
		} else {
			u |= BufferUsageStorage
		}
	}
	if s&StateUnorderedAccess != 0 {
		if typed {
			u |= BufferUsageStorageTexel
		} else {
			u |= BufferUsageStorage
		}
	}
	if s&StateCopySource != 0 {
		u |= BufferUsageTransferSrc
	}
	if s&StateCopyDest != 0 {
		u |= BufferUsageTransferDst
	}
	return u
}

/** @brief Whether and how the host accesses a buffer's memory. */
type HostAccess uint8

const (
	HostAccessNone HostAccess = iota
	// Host writes, device reads (upload heaps).
	HostAccessWrite
	// Device writes, host reads (readback heaps).
	HostAccessRead
)

// HostAccessForState infers host access from host read/write states.
func HostAccessForState(s ResourceState) HostAccess {
	switch {
	case s&StateHostRead != 0:
		return HostAccessRead
	case s&StateHostWrite != 0:
		return HostAccessWrite
	}
	return HostAccessNone
}

/** @brief Logical declaration of a buffer. */
type BufferDesc struct {
	Name       string
	Size       uint64
	Usage      BufferUsage
	HostAccess HostAccess
	Concurrent bool
}

/**
 * @brief A view into a buffer. A view with a format is a typed (texel)
 * view; without one it is a raw byte view with the given stride.
 * Range zero means "to the end of the buffer".
 */
type BufferViewDesc struct {
	Name   string
	Format Format
	Offset uint64
	Range  uint64
	Stride uint32
}

func (d BufferViewDesc) Typed() bool {
	return d.Format != FormatUndefined
}
