package framegraph

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

// resourceVariant is either *imageResource or *bufferResource.
type resourceVariant interface {
	kind() metadata.ResourceKind
}

type imageResource struct {
	desc metadata.ImageDesc
	// inferred from passes and views, ORed into desc when the image is created
	usage metadata.ImageUsage
	flags metadata.ImageCreateFlags
}

func (*imageResource) kind() metadata.ResourceKind { return metadata.ResourceKindImage }

type bufferResource struct {
	desc  metadata.BufferDesc
	usage metadata.BufferUsage
	host  metadata.HostAccess
}

func (*bufferResource) kind() metadata.ResourceKind { return metadata.ResourceKindBuffer }

type resourceDescription struct {
	name             string
	variant          resourceVariant
	subresourceCount uint32
	usageOffset      uint32
	concurrent       bool
	// set for imported resources only
	external *metadata.ExternalState
}

func (r *resourceDescription) isImage() bool {
	return r.variant.kind() == metadata.ResourceKindImage
}

func (r *resourceDescription) isExternal() bool {
	return r.external != nil
}

// subresourceRange returns the single (level, layer) range of subresource sub.
func (r *resourceDescription) subresourceRange(sub uint32) metadata.SubresourceRange {
	img, ok := r.variant.(*imageResource)
	if !ok {
		return metadata.SubresourceRange{LevelCount: 1, LayerCount: 1}
	}
	levels := img.desc.Levels
	return metadata.SubresourceRange{
		BaseLevel:  sub % levels,
		LevelCount: 1,
		BaseLayer:  sub / levels,
		LayerCount: 1,
	}
}

// viewVariant is either *imageView or *bufferView.
type viewVariant interface {
	kind() metadata.ResourceKind
}

type imageView struct {
	desc metadata.ImageViewDesc
}

func (*imageView) kind() metadata.ResourceKind { return metadata.ResourceKindImage }

type bufferView struct {
	desc metadata.BufferViewDesc
}

func (*bufferView) kind() metadata.ResourceKind { return metadata.ResourceKindBuffer }

type viewDescription struct {
	name     string
	resource uint32
	variant  viewVariant
}

func debugName(name, kind string) string {
	if name != "" {
		return name
	}
	return kind + "-" + uuid.NewString()
}

// CreateImage declares an image for the current frame. The image is only
// allocated if a pass uses it.
func (fg *FrameGraph) CreateImage(desc metadata.ImageDesc) (ResourceHandle, error) {
	if fg.executed {
		return ResourceHandle{}, core.ErrFrameInProgress
	}
	validateImageDesc(desc)
	desc.Name = debugName(desc.Name, "image")
	return fg.declareResource(desc.Name, &imageResource{desc: normalizeImageDesc(desc)}, desc.Concurrent, nil), nil
}

// CreateBuffer declares a buffer for the current frame.
func (fg *FrameGraph) CreateBuffer(desc metadata.BufferDesc) (ResourceHandle, error) {
	if fg.executed {
		return ResourceHandle{}, core.ErrFrameInProgress
	}
	core.Assert(desc.Size > 0, "buffer %q declared with zero size", desc.Name)
	desc.Name = debugName(desc.Name, "buffer")
	return fg.declareResource(desc.Name, &bufferResource{desc: desc, host: desc.HostAccess}, desc.Concurrent, nil), nil
}

// ImportImage registers an image owned by the caller. It is never culled nor
// destroyed by the frame graph; state carries its queue and state from one
// frame to the next and is updated by Execute.
func (fg *FrameGraph) ImportImage(image renderer.Resource, desc metadata.ImageDesc, state *metadata.ExternalState) (ResourceHandle, error) {
	if fg.executed {
		return ResourceHandle{}, core.ErrFrameInProgress
	}
	core.Assert(image != nil && image.Kind() == metadata.ResourceKindImage, "ImportImage needs an image resource")
	core.Assert(state != nil, "imported image %q needs a state record", image.Name())
	validateImageDesc(desc)
	desc.Name = image.Name()
	h := fg.declareResource(desc.Name, &imageResource{desc: normalizeImageDesc(desc)}, desc.Concurrent, state)
	fg.currentFrame().importResource(h.index-1, image)
	return h, nil
}

// ImportBuffer registers a buffer owned by the caller, see ImportImage.
func (fg *FrameGraph) ImportBuffer(buffer renderer.Resource, desc metadata.BufferDesc, state *metadata.ExternalState) (ResourceHandle, error) {
	if fg.executed {
		return ResourceHandle{}, core.ErrFrameInProgress
	}
	core.Assert(buffer != nil && buffer.Kind() == metadata.ResourceKindBuffer, "ImportBuffer needs a buffer resource")
	core.Assert(state != nil, "imported buffer %q needs a state record", buffer.Name())
	core.Assert(desc.Size > 0, "buffer %q imported with zero size", buffer.Name())
	desc.Name = buffer.Name()
	h := fg.declareResource(desc.Name, &bufferResource{desc: desc, host: desc.HostAccess}, desc.Concurrent, state)
	fg.currentFrame().importResource(h.index-1, buffer)
	return h, nil
}

// CreateImageView declares a view into an image declared this frame. The
// view's format and type are folded into the image's creation flags.
func (fg *FrameGraph) CreateImageView(resource ResourceHandle, desc metadata.ImageViewDesc) (ResourceViewHandle, error) {
	if fg.executed {
		return ResourceViewHandle{}, core.ErrFrameInProgress
	}
	res, err := fg.lookupResource(resource)
	if err != nil {
		return ResourceViewHandle{}, err
	}
	img, ok := res.variant.(*imageResource)
	if !ok {
		return ResourceViewHandle{}, fmt.Errorf("image view on buffer %q: %w", res.name, core.ErrInvalidHandle)
	}

	desc.Range = desc.Range.Resolve(img.desc.Levels, img.desc.Layers)
	core.Assert(desc.Range.Contains(img.desc.Levels, img.desc.Layers),
		"view range %+v outside image %q (%d levels, %d layers)", desc.Range, res.name, img.desc.Levels, img.desc.Layers)
	if desc.Format == metadata.FormatUndefined {
		desc.Format = img.desc.Format
	}
	if desc.Format != img.desc.Format {
		img.flags |= metadata.ImageCreateMutableFormat
	}
	switch desc.Type {
	case metadata.ImageViewTypeCube, metadata.ImageViewTypeCubeArray:
		img.flags |= metadata.ImageCreateCubeCompatible
	case metadata.ImageViewType2D, metadata.ImageViewType2DArray:
		if img.desc.Type == metadata.ImageType3D {
			img.flags |= metadata.ImageCreate2DArrayCompatible
		}
	}
	desc.Name = debugName(desc.Name, res.name+"-view")

	fg.views = append(fg.views, viewDescription{
		name:     desc.Name,
		resource: resource.index - 1,
		variant:  &imageView{desc: desc},
	})
	return ResourceViewHandle{index: uint32(len(fg.views)), generation: fg.generation}, nil
}

// CreateBufferView declares a view into a buffer declared this frame.
func (fg *FrameGraph) CreateBufferView(resource ResourceHandle, desc metadata.BufferViewDesc) (ResourceViewHandle, error) {
	if fg.executed {
		return ResourceViewHandle{}, core.ErrFrameInProgress
	}
	res, err := fg.lookupResource(resource)
	if err != nil {
		return ResourceViewHandle{}, err
	}
	buf, ok := res.variant.(*bufferResource)
	if !ok {
		return ResourceViewHandle{}, fmt.Errorf("buffer view on image %q: %w", res.name, core.ErrInvalidHandle)
	}
	if desc.Range == 0 && desc.Offset < buf.desc.Size {
		desc.Range = buf.desc.Size - desc.Offset
	}
	core.Assert(desc.Range > 0 && desc.Offset+desc.Range <= buf.desc.Size,
		"view [%d, +%d) outside buffer %q of %d bytes", desc.Offset, desc.Range, res.name, buf.desc.Size)
	desc.Name = debugName(desc.Name, res.name+"-view")

	fg.views = append(fg.views, viewDescription{
		name:     desc.Name,
		resource: resource.index - 1,
		variant:  &bufferView{desc: desc},
	})
	return ResourceViewHandle{index: uint32(len(fg.views)), generation: fg.generation}, nil
}

func (fg *FrameGraph) declareResource(name string, variant resourceVariant, concurrent bool, external *metadata.ExternalState) ResourceHandle {
	count := uint32(1)
	if img, ok := variant.(*imageResource); ok {
		count = img.desc.SubresourceCount()
	}
	fg.resources = append(fg.resources, resourceDescription{
		name:             name,
		variant:          variant,
		subresourceCount: count,
		usageOffset:      uint32(len(fg.usages)),
		concurrent:       concurrent,
		external:         external,
	})
	for i := uint32(0); i < count; i++ {
		fg.usages = append(fg.usages, nil)
	}
	return ResourceHandle{index: uint32(len(fg.resources)), generation: fg.generation}
}

func (fg *FrameGraph) lookupResource(h ResourceHandle) (*resourceDescription, error) {
	if !h.IsValid() {
		return nil, core.ErrInvalidHandle
	}
	if h.generation != fg.generation {
		return nil, fmt.Errorf("%s: %w", h, core.ErrStaleHandle)
	}
	core.Assert(int(h.index) <= len(fg.resources), "%s beyond the %d declared resources", h, len(fg.resources))
	return &fg.resources[h.index-1], nil
}

func (fg *FrameGraph) lookupView(h ResourceViewHandle) (*viewDescription, error) {
	if !h.IsValid() {
		return nil, core.ErrInvalidHandle
	}
	if h.generation != fg.generation {
		return nil, fmt.Errorf("%s: %w", h, core.ErrStaleHandle)
	}
	core.Assert(int(h.index) <= len(fg.views), "%s beyond the %d declared views", h, len(fg.views))
	return &fg.views[h.index-1], nil
}

func validateImageDesc(desc metadata.ImageDesc) {
	core.Assert(desc.Width > 0 && desc.Height > 0, "image %q declared with zero extent", desc.Name)
	core.Assert(desc.Layers > 0 && desc.Levels > 0, "image %q declared without layers or levels", desc.Name)
}

func normalizeImageDesc(desc metadata.ImageDesc) metadata.ImageDesc {
	if desc.Depth == 0 {
		desc.Depth = 1
	}
	if desc.Samples == 0 {
		desc.Samples = 1
	}
	return desc
}
