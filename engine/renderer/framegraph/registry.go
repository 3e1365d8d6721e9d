package framegraph

import (
	"fmt"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/bindless"
)

// Registry resolves frame graph handles to the concrete objects created for
// the current frame. Recording callbacks receive one; it is read-only and
// safe for concurrent use.
type Registry interface {
	Resource(h ResourceHandle) (renderer.Resource, error)
	View(h ResourceViewHandle) (renderer.View, error)
	// ShaderHandle is the bindless slot of a shader-visible view.
	ShaderHandle(h ResourceViewHandle, writable bool) (bindless.Handle, error)
	// Map returns the host memory of a buffer view whose buffer was used
	// with a host state.
	Map(h ResourceViewHandle) ([]byte, error)
	Unmap(h ResourceViewHandle)
}

type frameRegistry struct {
	fg *FrameGraph
	fr *frameResources
}

func (r *frameRegistry) Resource(h ResourceHandle) (renderer.Resource, error) {
	res, err := r.fg.lookupResource(h)
	if err != nil {
		return nil, err
	}
	idx := h.index - 1
	if int(idx) >= len(r.fr.resources) || r.fr.resources[idx] == nil {
		return nil, fmt.Errorf("resource %q was not created this frame: %w", res.name, core.ErrInvalidHandle)
	}
	return r.fr.resources[idx], nil
}

func (r *frameRegistry) View(h ResourceViewHandle) (renderer.View, error) {
	view, err := r.fg.lookupView(h)
	if err != nil {
		return nil, err
	}
	idx := h.index - 1
	if int(idx) >= len(r.fr.views) || r.fr.views[idx] == nil {
		return nil, fmt.Errorf("view %q was not created this frame: %w", view.name, core.ErrInvalidHandle)
	}
	return r.fr.views[idx], nil
}

func (r *frameRegistry) ShaderHandle(h ResourceViewHandle, writable bool) (bindless.Handle, error) {
	if _, err := r.View(h); err != nil {
		return bindless.InvalidHandle, err
	}
	handles := r.fr.handles[h.index-1]
	out := handles.read
	if writable {
		out = handles.write
	}
	if !out.IsValid() {
		return bindless.InvalidHandle, fmt.Errorf("%s has no shader handle (writable=%t): %w", h, writable, core.ErrNoHandle)
	}
	return out, nil
}

func (r *frameRegistry) Map(h ResourceViewHandle) ([]byte, error) {
	view, err := r.View(h)
	if err != nil {
		return nil, err
	}
	data, err := r.fg.device.MapBuffer(view)
	if err != nil {
		return nil, fmt.Errorf("failed to map %q: %w", view.Name(), err)
	}
	return data, nil
}

func (r *frameRegistry) Unmap(h ResourceViewHandle) {
	if view, err := r.View(h); err == nil {
		r.fg.device.UnmapBuffer(view)
	}
}
