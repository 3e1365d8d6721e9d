package headless

import (
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

// Image keeps the texels of mip level 0 of every layer.
type Image struct {
	desc      metadata.ImageDesc
	layerSize uint64
	data      []byte
}

func (i *Image) Kind() metadata.ResourceKind { return metadata.ResourceKindImage }
func (i *Image) Name() string                { return i.desc.Name }
func (i *Image) Desc() metadata.ImageDesc    { return i.desc }

func (i *Image) layers(r metadata.SubresourceRange) []byte {
	r = r.Resolve(i.desc.Levels, i.desc.Layers)
	if r.BaseLevel != 0 {
		return nil
	}
	start := uint64(r.BaseLayer) * i.layerSize
	end := start + uint64(r.LayerCount)*i.layerSize
	if end > uint64(len(i.data)) {
		end = uint64(len(i.data))
	}
	return i.data[start:end]
}

type Buffer struct {
	desc metadata.BufferDesc
	data []byte
}

func (b *Buffer) Kind() metadata.ResourceKind { return metadata.ResourceKindBuffer }
func (b *Buffer) Name() string                { return b.desc.Name }
func (b *Buffer) Desc() metadata.BufferDesc   { return b.desc }

type ImageView struct {
	image *Image
	desc  metadata.ImageViewDesc
}

func (v *ImageView) Resource() renderer.Resource { return v.image }
func (v *ImageView) Name() string                { return v.desc.Name }
func (v *ImageView) Desc() metadata.ImageViewDesc {
	return v.desc
}

type BufferView struct {
	buffer *Buffer
	desc   metadata.BufferViewDesc
}

func (v *BufferView) Resource() renderer.Resource { return v.buffer }
func (v *BufferView) Name() string                { return v.desc.Name }
func (v *BufferView) Desc() metadata.BufferViewDesc {
	return v.desc
}

func (v *BufferView) bytes() []byte {
	return v.buffer.data[v.desc.Offset : v.desc.Offset+v.desc.Range]
}
