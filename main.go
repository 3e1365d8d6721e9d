/*
This is an example of application that will use the
engine package to drive the frame graph
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-framegraph/engine"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/testbed"

	// backends register themselves with the renderer
	_ "github.com/spaghettifunk/anima-framegraph/engine/renderer/headless"
	_ "github.com/spaghettifunk/anima-framegraph/engine/renderer/vulkan"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	backend := flag.String("backend", "", "renderer backend, overrides the config file")
	flag.Parse()

	cfg := engine.DefaultConfig()
	if *configPath != "" {
		loaded, err := engine.LoadConfig(*configPath)
		if err != nil {
			core.LogFatal("%s", err)
		}
		cfg = loaded
	}
	if *backend != "" {
		cfg.Renderer.Backend = renderer.BackendType(*backend)
	}

	tb, err := testbed.NewTestGame()
	if err != nil {
		panic(err)
	}

	engine, err := engine.New(tb.Game, cfg, *configPath)
	if err != nil {
		panic(err)
	}

	if err := engine.Initialize(); err != nil {
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// start shutdown goroutine
	go func() {
		// capture sigterm and other system call here
		<-sigCh
		_ = engine.Shutdown()
	}()

	// run engine
	if err := engine.Run(); err != nil {
		panic(err)
	}
	core.LogInfo("rendered %d frames, last texel %v", engine.Frames(), tb.LastTexel())
}
