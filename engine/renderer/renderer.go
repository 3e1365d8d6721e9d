package renderer

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
)

type BackendType string

const (
	Headless BackendType = "headless"
	Vulkan   BackendType = "vulkan"
)

type DeviceOptions struct {
	ApplicationName string
	Validation      bool
	// InstanceProcAddr is the Vulkan loader entry point provided by the
	// platform layer. Nil selects the default loader.
	InstanceProcAddr unsafe.Pointer
}

// Factory builds a Device for one backend.
type Factory func(opts DeviceOptions) (Device, error)

var (
	backendsMu sync.RWMutex
	backends   = map[BackendType]Factory{}
)

// RegisterBackend makes a backend available to NewDevice. Backends register
// themselves from an init function.
func RegisterBackend(kind BackendType, factory Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, dup := backends[kind]; dup {
		panic(fmt.Sprintf("renderer: backend %q registered twice", kind))
	}
	backends[kind] = factory
}

// Backends lists the registered backend types, sorted.
func Backends() []BackendType {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	out := make([]BackendType, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func NewDevice(kind BackendType, opts DeviceOptions) (Device, error) {
	backendsMu.RLock()
	factory, ok := backends[kind]
	backendsMu.RUnlock()
	if !ok {
		err := fmt.Errorf("unknown renderer backend %q (available: %v)", kind, Backends())
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("Creating %s device...", kind)
	return factory(opts)
}
