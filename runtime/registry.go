package runtime

import (
	"fmt"
	"sync"
	"weak"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
)

// ProtocolViolation is the panic value raised when the engine calls back
// with a VM pointer the registry cannot resolve. It indicates a broken
// host/engine contract. A handle used against the wrong VM is an ordinary
// errors.ErrWrongVM error instead.
type ProtocolViolation struct {
	Err error
}

func (p *ProtocolViolation) Error() string {
	return "protocol violation: " + p.Err.Error()
}

func (p *ProtocolViolation) Unwrap() error {
	return p.Err
}

// Registry maps native VM pointers to the VMs that own them. It holds only
// weak references, so registration never keeps a VM alive.
//
// The registry also owns the callback trampolines handed to the engine. They
// capture the registry and nothing else; every callback resolves its VM from
// the pointer the engine passes in.
type Registry struct {
	entries     map[wrenruntime.VM]weak.Pointer[VM]
	onViolation func(error)
	callbacks   wrenruntime.Callbacks
	mu          sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		entries: make(map[wrenruntime.VM]weak.Pointer[VM]),
	}
	r.callbacks = r.trampolines()
	return r
}

var defaultRegistry = sync.OnceValue(NewRegistry)

// DefaultRegistry returns the process-wide registry used by VMs whose
// Config does not name one.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// Register associates ptr with vm. It fails if ptr is still registered to a
// live VM; an entry whose VM has been collected is replaced.
func (r *Registry) Register(ptr wrenruntime.VM, vm *VM) error {
	if vm == nil {
		return errors.NilPointer(errors.PhaseRegistry, nil, "*runtime.VM")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if wp, ok := r.entries[ptr]; ok && wp.Value() != nil {
		return errors.New(errors.PhaseRegistry, errors.KindDuplicateHandle).
			Value(ptr).
			Detail("vm %#x is already registered to a live instance", uintptr(ptr)).
			Build()
	}
	r.entries[ptr] = weak.Make(vm)
	return nil
}

// Resolve returns the VM registered for ptr. It returns an error matching
// errors.ErrUnknownHandle when ptr was never registered or has been
// unregistered, and errors.ErrStaleHandle when the VM has been collected.
func (r *Registry) Resolve(ptr wrenruntime.VM) (*VM, error) {
	r.mu.RLock()
	wp, ok := r.entries[ptr]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.New(errors.PhaseRegistry, errors.KindUnknownHandle).
			Value(ptr).
			Detail("no VM with pointer %#x", uintptr(ptr)).
			Build()
	}
	vm := wp.Value()
	if vm == nil {
		return nil, errors.New(errors.PhaseRegistry, errors.KindStaleHandle).
			Value(ptr).
			Detail("VM %#x was garbage collected", uintptr(ptr)).
			Build()
	}
	return vm, nil
}

// Unregister removes ptr. It is called once per VM, before the native VM is
// freed.
func (r *Registry) Unregister(ptr wrenruntime.VM) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, ptr)
}

// Len returns the number of registered pointers, including stale ones.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Each calls fn for every live VM until fn returns false.
func (r *Registry) Each(fn func(vm *VM) bool) {
	r.mu.RLock()
	live := make([]*VM, 0, len(r.entries))
	for _, wp := range r.entries {
		if vm := wp.Value(); vm != nil {
			live = append(live, vm)
		}
	}
	r.mu.RUnlock()

	for _, vm := range live {
		if !fn(vm) {
			return
		}
	}
}

// SetViolationHandler replaces the handler for protocol violations.
// The default handler panics with a *ProtocolViolation.
func (r *Registry) SetViolationHandler(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onViolation = fn
}

// Callbacks returns the trampolines that route engine callbacks through r.
func (r *Registry) Callbacks() wrenruntime.Callbacks {
	return r.callbacks
}

func (r *Registry) violation(err error) {
	r.mu.RLock()
	handler := r.onViolation
	r.mu.RUnlock()

	if handler == nil {
		panic(&ProtocolViolation{Err: err})
	}
	handler(err)
}

// route resolves ptr for a callback. A failure is reported as a violation;
// route returns false when the violation handler did not panic.
func (r *Registry) route(ptr wrenruntime.VM, event string) (*VM, bool) {
	vm, err := r.Resolve(ptr)
	if err != nil {
		r.violation(fmt.Errorf("%s callback: %w", event, err))
		return nil, false
	}
	return vm, true
}
