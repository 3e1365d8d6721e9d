// Package platform bootstraps the window system library. The frame graph
// renders off-screen, so no window is created: glfw only provides the
// Vulkan loader entry point and a high resolution clock.
package platform

import (
	"runtime"
	"time"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
)

func init() {
	// GLFW must be driven from the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	initialized bool
	startTime   time.Time
}

func New() *Platform {
	return &Platform{startTime: time.Now()}
}

// Startup initializes glfw. A missing window system is not an error: the
// platform then falls back to the default Vulkan loader and the Go clock.
func (p *Platform) Startup() error {
	if err := glfw.Init(); err != nil {
		core.LogWarn("glfw unavailable, using the default Vulkan loader: %s", err)
		return nil
	}
	p.initialized = true
	return nil
}

func (p *Platform) Shutdown() error {
	if p.initialized {
		glfw.Terminate()
		p.initialized = false
	}
	return nil
}

// VulkanProcAddress returns vkGetInstanceProcAddr as found by glfw, or nil
// when glfw is not initialized or finds no Vulkan loader.
func (p *Platform) VulkanProcAddress() unsafe.Pointer {
	if !p.initialized || !glfw.VulkanSupported() {
		return nil
	}
	return glfw.GetVulkanGetInstanceProcAddress()
}

// GetAbsoluteTime returns seconds since the platform was created.
func (p *Platform) GetAbsoluteTime() float64 {
	if p.initialized {
		return glfw.GetTime()
	}
	return time.Since(p.startTime).Seconds()
}

func (p *Platform) Sleep(ms float64) {
	time.Sleep(time.Duration(ms * float64(time.Millisecond)))
}
