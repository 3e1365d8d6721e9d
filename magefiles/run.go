//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

const testbedConfig = "testbed/anima.toml"

// Runs the testbed on the headless backend.
func (Run) Headless() error {
	return runTestbed("headless")
}

// Runs the testbed on the Vulkan backend. Needs a Vulkan 1.2 driver.
func (Run) Vulkan() error {
	return runTestbed("vulkan")
}

func runTestbed(backend string) error {
	fmt.Printf("Run testbed on %s...\n", backend)
	if _, err := executeCmd("go", withArgs("run", ".", "-config", testbedConfig, "-backend", backend), withStream()); err != nil {
		return err
	}
	return nil
}
