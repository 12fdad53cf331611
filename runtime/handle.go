package runtime

import (
	goruntime "runtime"
	"sync/atomic"
	"weak"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
)

// handleState is shared by a handle wrapper, its GC cleanup and the VM's
// live-handle set. It refers to the VM weakly: the VM owns the native
// handle, not the other way round.
type handleState struct {
	vm       weak.Pointer[VM]
	ptr      wrenruntime.Handle
	released atomic.Bool
}

// release is the one path to the native release; the atomic flag makes
// explicit Release, GC cleanup and VM teardown agree on a single release.
func (st *handleState) release() {
	if !st.released.CompareAndSwap(false, true) {
		return
	}
	vm := st.vm.Value()
	if vm == nil {
		return
	}
	vm.core.releaseNative(st)
}

func (st *handleState) check(vm *VM, op string) error {
	if st.released.Load() {
		return errors.New(errors.PhaseHandle, errors.KindUseAfterRelease).
			Path(op).
			Value(st.ptr).
			Detail("handle %#x already released", uintptr(st.ptr)).
			Build()
	}
	if st.vm.Value() != vm {
		return errors.New(errors.PhaseHandle, errors.KindWrongVM).
			Path(op).
			Value(st.ptr).
			Detail("handle %#x belongs to another VM", uintptr(st.ptr)).
			Build()
	}
	return nil
}

// collectHandle runs when a handle wrapper becomes unreachable without
// Release. It may run on any goroutine, so it only queues the release.
func collectHandle(st *handleState) {
	if st.released.Load() {
		return
	}
	if vm := st.vm.Value(); vm != nil {
		vm.core.enqueue(st)
	}
}

// Handle keeps a script value alive until released.
type Handle struct {
	state *handleState
}

func newHandle(vm *VM, ptr wrenruntime.Handle) *Handle {
	h := &Handle{state: vm.core.track(vm, ptr)}
	goruntime.AddCleanup(h, collectHandle, h.state)
	return h
}

// Release lets the engine collect the value. Releasing twice, or after the
// VM is closed, does nothing.
func (h *Handle) Release() {
	h.state.release()
}

// Released reports whether Release has run.
func (h *Handle) Released() bool {
	return h.state.released.Load()
}

// Pointer returns the native handle.
func (h *Handle) Pointer() wrenruntime.Handle {
	return h.state.ptr
}

// FunctionHandle is a call handle for one method signature, created by
// MakeCallHandle and invoked with Call.
type FunctionHandle struct {
	state     *handleState
	signature string
}

func newFunctionHandle(vm *VM, ptr wrenruntime.Handle, signature string) *FunctionHandle {
	h := &FunctionHandle{state: vm.core.track(vm, ptr), signature: signature}
	goruntime.AddCleanup(h, collectHandle, h.state)
	return h
}

// Signature returns the method signature the handle calls.
func (h *FunctionHandle) Signature() string {
	return h.signature
}

// Release frees the call handle. Releasing twice, or after the VM is
// closed, does nothing.
func (h *FunctionHandle) Release() {
	h.state.release()
}

// Released reports whether Release has run.
func (h *FunctionHandle) Released() bool {
	return h.state.released.Load()
}

// Pointer returns the native handle.
func (h *FunctionHandle) Pointer() wrenruntime.Handle {
	return h.state.ptr
}

// MakeCallHandle creates a handle that calls the method with signature,
// such as "call(_)" or "update(_,_)".
func (vm *VM) MakeCallHandle(signature string) (*FunctionHandle, error) {
	if signature == "" {
		return nil, errors.InvalidInput(errors.PhaseHandle, "signature cannot be empty")
	}
	c := vm.native()
	ptr := c.engine.MakeCallHandle(c.ptr, signature)
	if ptr == 0 {
		return nil, errors.New(errors.PhaseHandle, errors.KindInvalidInput).
			WrenType(signature).
			Detail("engine rejected signature").
			Build()
	}
	return newFunctionHandle(vm, ptr, signature), nil
}

// Call invokes fn with the receiver in slot 0 and arguments in slots 1..n.
// The return value is left in slot 0.
func (vm *VM) Call(fn *FunctionHandle) (wrenruntime.InterpretResult, error) {
	if fn == nil {
		return wrenruntime.ResultRuntimeError, errors.NilPointer(errors.PhaseHandle, nil, "*runtime.FunctionHandle")
	}
	if vm.core.isClosed() {
		return wrenruntime.ResultRuntimeError, errors.Closed(errors.PhaseHandle, "vm")
	}
	if err := fn.state.check(vm, "call"); err != nil {
		return wrenruntime.ResultRuntimeError, err
	}
	c := vm.core
	c.drain()
	return c.engine.Call(c.ptr, fn.state.ptr), nil
}

// SlotHandle creates a handle to the value in slot.
func (vm *VM) SlotHandle(slot int) *Handle {
	c := vm.native()
	return newHandle(vm, c.engine.SlotHandle(c.ptr, slot))
}

// SetSlotHandle stores the value held by h into slot.
func (vm *VM) SetSlotHandle(slot int, h *Handle) error {
	if h == nil {
		return errors.NilPointer(errors.PhaseHandle, nil, "*runtime.Handle")
	}
	if err := h.state.check(vm, "set slot handle"); err != nil {
		return err
	}
	c := vm.native()
	c.engine.SetSlotHandle(c.ptr, slot, h.state.ptr)
	return nil
}

// LiveHandles returns the number of handles not yet released.
func (vm *VM) LiveHandles() int {
	vm.core.mu.Lock()
	defer vm.core.mu.Unlock()
	return len(vm.core.handles)
}
