package metadata

/** @brief Slot categories of the global bindless table. */
type BindlessCategory uint8

const (
	BindlessTexture BindlessCategory = iota
	BindlessRWTexture
	BindlessTypedBuffer
	BindlessRWTypedBuffer
	BindlessByteBuffer
	BindlessRWByteBuffer
)

const BindlessCategoryCount = 6

func (c BindlessCategory) String() string {
	switch c {
	case BindlessTexture:
		return "texture"
	case BindlessRWTexture:
		return "rw-texture"
	case BindlessTypedBuffer:
		return "typed-buffer"
	case BindlessRWTypedBuffer:
		return "rw-typed-buffer"
	case BindlessByteBuffer:
		return "byte-buffer"
	case BindlessRWByteBuffer:
		return "rw-byte-buffer"
	}
	return "unknown"
}
