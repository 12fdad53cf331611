package runtime

import (
	goruntime "runtime"
	"sync"
	"weak"

	"go.uber.org/zap"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/foreign"
)

// VM is a Wren virtual machine bound to the host.
//
// A VM is not safe for concurrent use. All calls, including the callbacks
// the engine makes while a call is in progress, happen on the goroutine
// that drives the VM. Independent VMs may run on different goroutines.
//
// Handlers may be extended after creation; the new handlers apply to
// callbacks issued from then on.
type VM struct {
	Handlers

	core     *core
	userData map[any]any
	cleanup  goruntime.Cleanup
}

// core is the part of a VM that teardown needs. It never points back at
// the VM, so it can serve as the argument of the VM's GC cleanup.
type core struct {
	engine    wrenruntime.Engine
	registry  *Registry
	objects   *foreign.Table
	memory    wrenruntime.Memory
	handles   map[wrenruntime.Handle]*handleState
	pending   []*handleState
	preserved []any
	ptr       wrenruntime.VM
	mu        sync.Mutex
	closed    bool
}

// NewVM creates a VM with the default configuration.
func NewVM(engine wrenruntime.Engine) (*VM, error) {
	return NewVMWithConfig(engine, nil)
}

// NewVMWithConfig creates a VM. cfg is copied; nil means the defaults.
func NewVMWithConfig(engine wrenruntime.Engine, cfg *Config) (*VM, error) {
	if engine == nil {
		return nil, errors.NilPointer(errors.PhaseConfig, nil, "wrenruntime.Engine")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry := cfg.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}

	ptr, err := engine.NewVM(cfg.native(registry.Callbacks()))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInstantiation, err, "create native vm")
	}

	vm := &VM{
		Handlers: cfg.Handlers.clone(),
		core: &core{
			engine:   engine,
			registry: registry,
			objects:  foreign.NewTable(),
			memory:   engine.Memory(ptr),
			handles:  make(map[wrenruntime.Handle]*handleState),
			ptr:      ptr,
		},
	}
	if err := registry.Register(ptr, vm); err != nil {
		engine.FreeVM(ptr)
		return nil, err
	}
	vm.cleanup = goruntime.AddCleanup(vm, (*core).collect, vm.core)

	Logger().Debug("vm created", zap.Uintptr("vm", uintptr(ptr)))
	return vm, nil
}

// Close frees the native VM. Live handles are released first and remaining
// foreign objects are finalized by the engine. Close is idempotent. The
// error reports foreign objects the engine failed to finalize.
func (vm *VM) Close() error {
	if vm.core.isClosed() {
		return nil
	}
	vm.cleanup.Stop()
	vm.core.registry.Unregister(vm.core.ptr)
	return vm.core.teardown()
}

// Closed reports whether Close has been called.
func (vm *VM) Closed() bool {
	return vm.core.isClosed()
}

// Interpret runs source in the main module.
func (vm *VM) Interpret(source string) (wrenruntime.InterpretResult, error) {
	return vm.InterpretModule(wrenruntime.MainModule, source)
}

// InterpretModule runs source in module, creating the module if needed.
// Compile and runtime errors are reported to the error handlers and through
// the result; the error return is only for misuse such as a closed VM.
func (vm *VM) InterpretModule(module, source string) (wrenruntime.InterpretResult, error) {
	if vm.core.isClosed() {
		return wrenruntime.ResultRuntimeError, errors.Closed(errors.PhaseInterpret, "vm")
	}
	vm.core.drain()
	return vm.core.engine.Interpret(vm.core.ptr, module, source), nil
}

// CollectGarbage runs a full collection. Finalizers of unreachable foreign
// objects run before it returns.
func (vm *VM) CollectGarbage() {
	c := vm.native()
	c.drain()
	c.engine.CollectGarbage(c.ptr)
}

// Version returns the engine's version number, e.g. 4000 for 0.4.0.
func (vm *VM) Version() int {
	return vm.core.engine.Version()
}

// Engine returns the engine backing the VM.
func (vm *VM) Engine() wrenruntime.Engine {
	return vm.core.engine
}

// Pointer returns the native VM pointer.
func (vm *VM) Pointer() wrenruntime.VM {
	return vm.core.ptr
}

// Objects returns the VM's foreign object table.
func (vm *VM) Objects() *foreign.Table {
	return vm.core.objects
}

// SetUserData attaches value to the VM under key.
func (vm *VM) SetUserData(key, value any) {
	if vm.userData == nil {
		vm.userData = make(map[any]any)
	}
	vm.userData[key] = value
}

// UserData returns the value attached under key.
func (vm *VM) UserData(key any) (any, bool) {
	v, ok := vm.userData[key]
	return v, ok
}

// native returns the core for a slot or handle operation. Using a closed
// VM is a programming error and panics.
func (vm *VM) native() *core {
	if vm.core.isClosed() {
		panic(&ProtocolViolation{Err: errors.Closed(errors.PhaseSlot, "vm")})
	}
	return vm.core
}

func (vm *VM) abortWith(message string) {
	c := vm.native()
	if c.engine.SlotCount(c.ptr) < 1 {
		c.engine.EnsureSlots(c.ptr, 1)
	}
	c.engine.SetSlotString(c.ptr, 0, message)
	c.engine.AbortFiber(c.ptr, 0)
}

func (c *core) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *core) preserve(fns ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preserved = append(c.preserved, fns...)
}

// collect is the GC path for a VM that was never closed.
func (c *core) collect() {
	Logger().Debug("vm collected without Close", zap.Uintptr("vm", uintptr(c.ptr)))
	c.registry.Unregister(c.ptr)
	if err := c.teardown(); err != nil {
		Logger().Warn("vm teardown", zap.Error(err))
	}
}

func (c *core) teardown() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	live := make([]*handleState, 0, len(c.handles))
	for _, st := range c.handles {
		live = append(live, st)
	}
	c.handles = nil
	c.pending = nil
	c.mu.Unlock()

	for _, st := range live {
		if st.released.CompareAndSwap(false, true) {
			c.engine.ReleaseHandle(c.ptr, st.ptr)
		}
	}

	c.engine.FreeVM(c.ptr)

	c.mu.Lock()
	c.preserved = nil
	c.mu.Unlock()

	if leaked := c.objects.Close(); leaked > 0 {
		return errors.New(errors.PhaseForeign, errors.KindInvalidData).
			Value(leaked).
			Detail("%d foreign object(s) of vm %#x were not finalized by the engine", leaked, uintptr(c.ptr)).
			Build()
	}
	return nil
}

// track records a handle produced by the engine.
func (c *core) track(vm *VM, ptr wrenruntime.Handle) *handleState {
	st := &handleState{vm: weak.Make(vm), ptr: ptr}
	c.mu.Lock()
	c.handles[ptr] = st
	c.mu.Unlock()
	return st
}

// enqueue schedules a handle whose wrapper was collected. The release runs
// on the VM's goroutine at the next native call boundary.
func (c *core) enqueue(st *handleState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pending = append(c.pending, st)
}

func (c *core) drain() {
	c.mu.Lock()
	queue := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, st := range queue {
		if st.released.CompareAndSwap(false, true) {
			c.releaseNative(st)
		}
	}
}

func (c *core) releaseNative(st *handleState) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	delete(c.handles, st.ptr)
	c.mu.Unlock()

	c.engine.ReleaseHandle(c.ptr, st.ptr)
}
