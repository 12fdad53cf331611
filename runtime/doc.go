// Package runtime binds Wren virtual machines to Go.
//
// # Quick Start
//
//	vm, err := runtime.NewVMWithConfig(engine, &runtime.Config{
//	    Handlers: runtime.Handlers{
//	        Write: []runtime.WriteFunc{runtime.WriteTo(os.Stdout)},
//	        Error: []runtime.ErrorFunc{runtime.ErrorsTo(os.Stderr)},
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer vm.Close()
//
//	result, err := vm.Interpret(`System.print("Hi!")`)
//
// The engine is any wrenruntime.Engine: engine.WazeroEngine runs Wren
// compiled to WebAssembly, wrentest.Engine is an in-process engine for tests.
//
// # Callbacks
//
// The engine reports output, errors, imports and foreign bindings through
// callbacks that carry only the native VM pointer. A Registry maps that
// pointer back to the VM and dispatches to its Handlers:
//
//	Write, Error                  every handler, in registration order
//	ResolveModule, LoadModule     first handler that answers
//	BindForeignMethod/Class       first handler that answers
//
// A callback for a pointer the registry does not know, or whose VM has been
// collected, is a protocol violation and panics with *ProtocolViolation
// unless Registry.SetViolationHandler says otherwise. A handler that panics
// is logged and counts as not answering. A foreign method that panics
// aborts the current fiber with the panic message.
//
// # Slots
//
// Values move between Go and Wren through numbered slots. Call EnsureSlots
// before touching a slot. Getters check the slot type and return an error
// on mismatch; a slot of type Unknown can only be queried with SlotType.
// SlotString stops at the first NUL byte, SlotBytes returns the whole
// string. Returned byte slices are copies.
//
// # Foreign Objects
//
// A foreign class allocator calls SetSlotNewForeign with the Go value that
// backs the new instance. The VM stores the value in its foreign.Table and
// writes the table ID into the engine's foreign storage. SlotForeign
// resolves it again; when the engine frees the instance, the value is
// reclaimed from the table and passed to the class Finalizer.
//
// # Resource Management
//
// Close frees the native VM: live handles are released, the VM leaves the
// registry, then the engine finalizes what is left. A VM dropped without
// Close is torn down the same way by a GC cleanup.
//
// Handles are released with Release, which is idempotent and does nothing
// once the VM is closed. A handle dropped without Release is queued by its
// GC cleanup and released on the VM's goroutine at the next Interpret,
// Call or CollectGarbage.
//
// # Thread Safety
//
// A VM must be driven from one goroutine at a time. Registry and Runtime
// are safe for concurrent use.
package runtime
