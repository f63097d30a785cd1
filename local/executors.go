// Copyright (C) 2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package local

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/lnsim/ln-network-runner/images"
)

var (
	_ ExecutorRegistry = (*executorRegistry)(nil)
	_ images.Provider  = (*executorRegistry)(nil)
)

// ExecutorRegistry maps an image, e.g. "lnd:0.17", to the executable that
// runs it on this machine.
type ExecutorRegistry interface {
	RegisterExecutor(image string, executable string) error
	GetExecutor(image string) (string, bool)
	// An image is available if it is registered and its executable exists.
	AvailableImages(ctx context.Context) (images.Set, error)
}

type executorRegistry struct {
	lock     sync.RWMutex
	registry map[string]string
}

func NewExecutorRegistry(registry map[string]string) ExecutorRegistry {
	copied := make(map[string]string, len(registry))
	for image, executable := range registry {
		copied[image] = executable
	}
	return &executorRegistry{registry: copied}
}

func NewEmptyExecutorRegistry() ExecutorRegistry {
	return &executorRegistry{
		registry: make(map[string]string),
	}
}

func (e *executorRegistry) RegisterExecutor(image, executable string) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if _, exists := e.registry[image]; exists {
		return fmt.Errorf("cannot register duplicate executor for image %s", image)
	}
	e.registry[image] = executable
	return nil
}

func (e *executorRegistry) GetExecutor(image string) (string, bool) {
	e.lock.RLock()
	defer e.lock.RUnlock()

	executable, ok := e.registry[image]
	return executable, ok
}

func (e *executorRegistry) AvailableImages(context.Context) (images.Set, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()

	available := images.NewSet()
	for image, executable := range e.registry {
		if _, err := exec.LookPath(executable); err == nil {
			available.Add(image)
		}
	}
	return available, nil
}
