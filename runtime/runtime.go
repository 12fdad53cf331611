package runtime

import (
	"go.uber.org/multierr"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
)

// Runtime pairs an engine with its own registry, so VMs created through it
// are isolated from VMs in the default registry.
type Runtime struct {
	engine   wrenruntime.Engine
	registry *Registry
	defaults Config
}

// New creates a runtime over engine. defaults, if given, is the base
// configuration for VMs created without one.
func New(engine wrenruntime.Engine, defaults ...Config) (*Runtime, error) {
	if engine == nil {
		return nil, errors.NilPointer(errors.PhaseConfig, nil, "wrenruntime.Engine")
	}
	rt := &Runtime{
		engine:   engine,
		registry: NewRegistry(),
	}
	if len(defaults) > 0 {
		rt.defaults = defaults[0]
		rt.defaults.Handlers = defaults[0].Handlers.clone()
	}
	return rt, nil
}

// NewVM creates a VM routed through the runtime's registry. A nil cfg uses
// the runtime defaults.
func (rt *Runtime) NewVM(cfg *Config) (*VM, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	} else {
		c = rt.defaults
	}
	c.Registry = rt.registry
	return NewVMWithConfig(rt.engine, &c)
}

// Engine returns the runtime's engine.
func (rt *Runtime) Engine() wrenruntime.Engine {
	return rt.engine
}

// Registry returns the runtime's registry.
func (rt *Runtime) Registry() *Registry {
	return rt.registry
}

// Close closes every live VM created through the runtime and returns their
// teardown errors combined. The engine is left open.
func (rt *Runtime) Close() error {
	var err error
	rt.registry.Each(func(vm *VM) bool {
		err = multierr.Append(err, vm.Close())
		return true
	})
	return err
}
