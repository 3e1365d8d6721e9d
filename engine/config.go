package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/bindless"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
)

type RendererConfig struct {
	Backend    renderer.BackendType `toml:"backend"`
	Validation bool                 `toml:"validation"`
	// Upper bound for the wait on a frame slot, in milliseconds.
	WaitTimeoutMS     uint32 `toml:"wait_timeout_ms"`
	ParallelRecording bool   `toml:"parallel_recording"`
	// Workers used for parallel recording, 0 picks one per CPU.
	RecordWorkers int `toml:"record_workers"`
}

type BindlessConfig struct {
	Textures       uint32 `toml:"textures"`
	RWTextures     uint32 `toml:"rw_textures"`
	TypedBuffers   uint32 `toml:"typed_buffers"`
	RWTypedBuffers uint32 `toml:"rw_typed_buffers"`
	ByteBuffers    uint32 `toml:"byte_buffers"`
	RWByteBuffers  uint32 `toml:"rw_byte_buffers"`
}

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
	Bindless    BindlessConfig    `toml:"bindless"`
}

func DefaultConfig() *Config {
	caps := bindless.DefaultConfig().Capacities
	return &Config{
		Application: ApplicationConfig{
			Name:     "Anima Frame Graph",
			LogLevel: "info",
		},
		Renderer: RendererConfig{
			Backend:       renderer.Headless,
			WaitTimeoutMS: uint32(framegraph.DefaultWaitTimeout / time.Millisecond),
		},
		Bindless: BindlessConfig{
			Textures:       caps[metadata.BindlessTexture],
			RWTextures:     caps[metadata.BindlessRWTexture],
			TypedBuffers:   caps[metadata.BindlessTypedBuffer],
			RWTypedBuffers: caps[metadata.BindlessRWTypedBuffer],
			ByteBuffers:    caps[metadata.BindlessByteBuffer],
			RWByteBuffers:  caps[metadata.BindlessRWByteBuffer],
		},
	}
}

// LoadConfig reads a TOML file on top of the defaults. Keys missing from
// the file keep their default value; unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("invalid config at line %d column %d: %w", row, col, err)
		}
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := core.ParseLogLevel(c.Application.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.Application.LogLevel, err)
	}
	switch c.Renderer.Backend {
	case renderer.Headless, renderer.Vulkan:
	default:
		return fmt.Errorf("unknown renderer backend %q", c.Renderer.Backend)
	}
	if c.Renderer.WaitTimeoutMS == 0 {
		return errors.New("wait_timeout_ms must be positive")
	}
	if c.Renderer.RecordWorkers < 0 {
		return errors.New("record_workers cannot be negative")
	}
	for cat, n := range c.BindlessCapacities() {
		if n == 0 {
			return fmt.Errorf("bindless capacity of %s must be positive", metadata.BindlessCategory(cat))
		}
	}
	return nil
}

func (c *Config) BindlessCapacities() [metadata.BindlessCategoryCount]uint32 {
	b := c.Bindless
	return [metadata.BindlessCategoryCount]uint32{
		metadata.BindlessTexture:       b.Textures,
		metadata.BindlessRWTexture:     b.RWTextures,
		metadata.BindlessTypedBuffer:   b.TypedBuffers,
		metadata.BindlessRWTypedBuffer: b.RWTypedBuffers,
		metadata.BindlessByteBuffer:    b.ByteBuffers,
		metadata.BindlessRWByteBuffer:  b.RWByteBuffers,
	}
}

func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.Renderer.WaitTimeoutMS) * time.Millisecond
}

func (c *Config) Workers() int {
	if c.Renderer.RecordWorkers > 0 {
		return c.Renderer.RecordWorkers
	}
	return runtime.NumCPU()
}

// Level is the parsed log level. The config is validated on load.
func (c *Config) Level() core.LogLevel {
	level, err := core.ParseLogLevel(c.Application.LogLevel)
	if err != nil {
		return core.InfoLevel
	}
	return level
}

// FrameGraphConfig builds the frame graph settings for a device.
func (c *Config) FrameGraphConfig(device renderer.Device, dispatcher framegraph.Dispatcher) framegraph.Config {
	cfg := framegraph.Config{
		Device:      device,
		Bindless:    bindless.Config{Capacities: c.BindlessCapacities()},
		WaitTimeout: c.WaitTimeout(),
	}
	if c.Renderer.ParallelRecording {
		cfg.Dispatcher = dispatcher
	}
	return cfg
}
