package metadata

type ImageType uint8

const (
	ImageType1D ImageType = iota
	ImageType2D
	ImageType3D
)

type ImageViewType uint8

const (
	ImageViewType1D ImageViewType = iota
	ImageViewType2D
	ImageViewType3D
	ImageViewTypeCube
	ImageViewType1DArray
	ImageViewType2DArray
	ImageViewTypeCubeArray
)

/** @brief How an image will be accessed. Accumulated from every declared usage. */
type ImageUsage uint32

const (
	ImageUsageTransferSrc            ImageUsage = 1 << 0
	ImageUsageTransferDst            ImageUsage = 1 << 1
	ImageUsageSampled                ImageUsage = 1 << 2
	ImageUsageStorage                ImageUsage = 1 << 3
	ImageUsageColorAttachment        ImageUsage = 1 << 4
	ImageUsageDepthStencilAttachment ImageUsage = 1 << 5
)

// ShaderVisible reports whether views of an image with this usage get a bindless slot.
func (u ImageUsage) ShaderVisible() bool {
	return u&(ImageUsageSampled|ImageUsageStorage) != 0
}

// ImageUsageForState maps a logical state to the usage flags it requires.
func ImageUsageForState(s ResourceState) ImageUsage {
	var u ImageUsage
	if s&StateRenderTarget != 0 {
		u |= ImageUsageColorAttachment
	}
	if s&(StateDepthWrite|StateDepthRead) != 0 {
		u |= ImageUsageDepthStencilAttachment
	}
	if s&StateShaderResource != 0 {
		u |= ImageUsageSampled
	}
	if s&StateUnorderedAccess != 0 {
		u |= ImageUsageStorage
	}
	if s&StateCopySource != 0 {
		u |= ImageUsageTransferSrc
	}
	if s&StateCopyDest != 0 {
		u |= ImageUsageTransferDst
	}
	return u
}

type ImageCreateFlags uint32

const (
	/** @brief Views may use a different (compatible) format than the image. */
	ImageCreateMutableFormat ImageCreateFlags = 1 << 0
	/** @brief Cube or cube-array views may be created. */
	ImageCreateCubeCompatible ImageCreateFlags = 1 << 1
	/** @brief 2D or 2D-array views may be created on a 3D image. */
	ImageCreate2DArrayCompatible ImageCreateFlags = 1 << 2
)

/** @brief Logical declaration of an image. */
type ImageDesc struct {
	Name    string
	Type    ImageType
	Format  Format
	Width   uint32
	Height  uint32
	Depth   uint32
	Layers  uint32
	Levels  uint32
	Samples uint32
	// Usage flags requested up front, in addition to the ones inferred from passes.
	Usage ImageUsage
	Flags ImageCreateFlags
	// Concurrent images may be accessed from several queues without ownership transfers.
	Concurrent bool
}

// SubresourceCount is the number of (layer, level) pairs of the image.
func (d ImageDesc) SubresourceCount() uint32 {
	return d.Layers * d.Levels
}

type ComponentSwizzle uint8

const (
	SwizzleIdentity ComponentSwizzle = iota
	SwizzleZero
	SwizzleOne
	SwizzleR
	SwizzleG
	SwizzleB
	SwizzleA
)

type ComponentMapping struct {
	R, G, B, A ComponentSwizzle
}

/**
 * @brief A range of mip levels and array layers. A zero count means
 * "every remaining level/layer" when the range is resolved against an image.
 */
type SubresourceRange struct {
	BaseLevel  uint32
	LevelCount uint32
	BaseLayer  uint32
	LayerCount uint32
}

// Resolve clamps the range to an image with the given number of levels and layers.
func (r SubresourceRange) Resolve(levels, layers uint32) SubresourceRange {
	out := r
	if out.LevelCount == 0 && out.BaseLevel < levels {
		out.LevelCount = levels - out.BaseLevel
	}
	if out.LayerCount == 0 && out.BaseLayer < layers {
		out.LayerCount = layers - out.BaseLayer
	}
	return out
}

// Contains reports whether the range lies inside an image of levels×layers.
func (r SubresourceRange) Contains(levels, layers uint32) bool {
	return r.LevelCount > 0 && r.LayerCount > 0 &&
		r.BaseLevel+r.LevelCount <= levels && r.BaseLayer+r.LayerCount <= layers
}

/** @brief A view into an image. Format FormatUndefined means "same as the image". */
type ImageViewDesc struct {
	Name       string
	Format     Format
	Type       ImageViewType
	Components ComponentMapping
	Range      SubresourceRange
}
