package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/platform"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything
	EngineStageShutdown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting-down"
	case EngineStageShutdown:
		return "shutdown"
	}
	return "unknown"
}

// statsInterval is how often, in frames, frame statistics are logged.
const statsInterval = 120

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *Config
	configPath   string
	instanceID   uuid.UUID
	isRunning    atomic.Bool

	platform   *platform.Platform
	device     renderer.Device
	frameGraph *framegraph.FrameGraph
	jobSystem  *systems.JobSystem
	watcher    *ConfigWatcher

	clock    *core.Clock
	metrics  *core.FrameMetrics
	lastTime float64
	frames   uint64
}

// New creates an engine for g. configPath, when set, is watched for changes
// that can be applied at runtime.
func New(g *Game, cfg *Config, configPath string) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	id := uuid.New()
	core.SetLogLevel(cfg.Level())
	core.SetLogPrefix(fmt.Sprintf("%s [%s] ", cfg.Application.Name, id.String()[:8]))

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		configPath:   configPath,
		instanceID:   id,
		platform:     platform.New(),
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	cfg := e.config

	opts := renderer.DeviceOptions{
		ApplicationName: cfg.Application.Name,
		Validation:      cfg.Renderer.Validation,
	}
	if cfg.Renderer.Backend == renderer.Vulkan {
		if err := e.platform.Startup(); err != nil {
			return err
		}
		opts.InstanceProcAddr = e.platform.VulkanProcAddress()
	}

	device, err := renderer.NewDevice(cfg.Renderer.Backend, opts)
	if err != nil {
		return err
	}
	e.device = device

	var dispatcher framegraph.Dispatcher
	if cfg.Renderer.ParallelRecording {
		js, err := systems.NewJobSystem(cfg.Workers(), cfg.Workers())
		if err != nil {
			core.LogError(err.Error())
			return err
		}
		e.jobSystem = js
		dispatcher = js
	}

	fg, err := framegraph.New(cfg.FrameGraphConfig(device, dispatcher))
	if err != nil {
		return err
	}
	e.frameGraph = fg

	if e.configPath != "" {
		w, err := NewConfigWatcher(e.configPath, e.applyConfig)
		if err != nil {
			// hot reload is a convenience, the engine runs without it
			core.LogWarn("config hot reload disabled: %s", err)
		} else {
			e.watcher = w
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.device, e.frameGraph); err != nil {
			core.LogError("game initialization failed: %s", err)
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine %s initialized with the %s backend", e.instanceID, cfg.Renderer.Backend)
	return nil
}

// applyConfig applies the fields of a reloaded config that can change at
// runtime. Everything else needs a restart.
func (e *Engine) applyConfig(cfg *Config) {
	core.SetLogLevel(cfg.Level())
	core.LogInfo("log level set to %s", cfg.Application.LogLevel)

	old := e.config
	if cfg.Renderer != old.Renderer || cfg.Bindless != old.Bindless {
		core.LogWarn("renderer and bindless settings changed on disk, restart to apply them")
	}
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine cannot run while %s", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	var runErr error
	for e.isRunning.Load() {
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := e.platform.GetAbsoluteTime()

		if err := e.frame(delta); err != nil {
			core.LogError("frame %d failed, shutting down: %s", e.frames, err)
			runErr = err
			break
		}

		frameElapsedTime := e.platform.GetAbsoluteTime() - frameStartTime
		e.metrics.Update(frameElapsedTime)
		e.frames++
		if e.frames%statsInterval == 0 {
			s := e.frameGraph.Stats()
			core.LogDebug("frame %d: %.2f ms avg, %.0f fps, %d passes, %d batches, %d barriers",
				s.Frame, e.metrics.FrameTime(), e.metrics.FPS(), s.Passes, s.Batches, s.Barriers)
		}
		if limit := e.config.Application.Frames; limit > 0 && e.frames >= limit {
			e.isRunning.Store(false)
		}
		e.lastTime = currentTime
	}

	e.clock.Stop()
	return errors.Join(runErr, e.teardown())
}

func (e *Engine) frame(delta float64) error {
	g := e.gameInstance
	if g.FnUpdate != nil {
		if err := g.FnUpdate(delta); err != nil {
			return fmt.Errorf("game update: %w", err)
		}
	}
	if g.FnRender != nil {
		if err := g.FnRender(e.frameGraph, delta); err != nil {
			return fmt.Errorf("game render: %w", err)
		}
	}
	if err := e.frameGraph.Execute(); err != nil {
		return err
	}
	return e.frameGraph.NextFrame()
}

// Shutdown asks a running engine to stop after the current frame. Safe to
// call from a signal handler goroutine.
func (e *Engine) Shutdown() error {
	e.isRunning.Store(false)
	return nil
}

// Frames is the number of frames rendered so far.
func (e *Engine) Frames() uint64 {
	return e.frames
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) teardown() error {
	e.currentStage = EngineStageShuttingDown
	core.LogInfo("shutting down after %d frames", e.frames)

	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	// the game may own imported resources, release them once the device is idle
	if e.frameGraph != nil {
		errs = append(errs, e.frameGraph.Destroy())
	}
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.jobSystem != nil {
		errs = append(errs, e.jobSystem.Shutdown())
	}
	if e.device != nil {
		e.device.Destroy()
	}
	errs = append(errs, e.platform.Shutdown())

	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}
