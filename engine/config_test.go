package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[application]
name = "sample"
frames = 3
log_level = "warn"

[renderer]
backend = "headless"
wait_timeout_ms = 250
parallel_recording = true
record_workers = 2

[bindless]
textures = 16
`

func TestParseConfigOverridesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "sample", cfg.Application.Name)
	assert.Equal(t, uint64(3), cfg.Application.Frames)
	assert.Equal(t, core.WarnLevel, cfg.Level())
	assert.Equal(t, renderer.Headless, cfg.Renderer.Backend)
	assert.Equal(t, 250*time.Millisecond, cfg.WaitTimeout())
	assert.Equal(t, 2, cfg.Workers())

	caps := cfg.BindlessCapacities()
	assert.Equal(t, uint32(16), caps[metadata.BindlessTexture])
	assert.Equal(t, DefaultConfig().Bindless.ByteBuffers, caps[metadata.BindlessByteBuffer])
}

func TestParseConfigRejectsBadInput(t *testing.T) {
	for name, input := range map[string]string{
		"unknown key":   "[renderer]\nbogus = 1\n",
		"bad level":     "[application]\nlog_level = \"loud\"\n",
		"bad backend":   "[renderer]\nbackend = \"metal\"\n",
		"zero timeout":  "[renderer]\nwait_timeout_ms = 0\n",
		"zero capacity": "[bindless]\nbyte_buffers = 0\n",
		"syntax":        "[renderer\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestFrameGraphConfigHonoursParallelRecording(t *testing.T) {
	cfg := DefaultConfig()
	dispatcher := &inlineDispatcher{}

	assert.Nil(t, cfg.FrameGraphConfig(nil, dispatcher).Dispatcher)
	cfg.Renderer.ParallelRecording = true
	assert.Equal(t, dispatcher, cfg.FrameGraphConfig(nil, dispatcher).Dispatcher)
}

type inlineDispatcher struct{}

func (inlineDispatcher) Dispatch(tasks []func() error) error {
	for _, task := range tasks {
		if err := task(); err != nil {
			return err
		}
	}
	return nil
}

func TestConfigWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anima.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	changes := make(chan *Config, 16)
	cw, err := NewConfigWatcher(path, func(c *Config) {
		select {
		case changes <- c:
		default:
		}
	})
	require.NoError(t, err)
	defer cw.Close()

	updated := "[application]\nlog_level = \"debug\"\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	// a single write may surface as several events, the last one wins
	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Level() == core.DebugLevel {
				require.NoError(t, cw.Close())
				return
			}
		case <-timeout:
			t.Fatal("config change was not observed")
		}
	}
}
