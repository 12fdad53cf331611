// Package engine runs the Wren VM as a WebAssembly reactor on wazero.
//
// The reactor is Wren's C sources compiled to wasm32 with a thin shim that
// exports the embedding API under snake-case names (see RequiredExports)
// and routes the VM's configuration callbacks to the "wren_host" import
// module. WazeroEngine implements wrenruntime.Engine on top of it.
//
// # Building the Reactor
//
// The shim is a single C file compiled together with wren/src/vm and
// wren/src/optional into a wasm32-wasi reactor:
//
//	clang --target=wasm32-wasi -mexec-model=reactor -O2 \
//		-Iwren/src/include -Iwren/src/vm -Iwren/src/optional \
//		wren_host.c wren/src/vm/*.c wren/src/optional/*.c \
//		-Wl,--export=malloc -Wl,--export=free -Wl,--export-dynamic \
//		-o wren.wasm
//
// wren_host.c declares the host functions listed next to HostModule with
// __attribute__((import_module("wren_host"), import_name(...))), and
// defines one exported wrapper per name in RequiredExports that forwards
// to the matching wren* call. Its WrenConfiguration callbacks forward to
// the imports: bindForeignMethodFn stores the returned id and picks a
// trampoline that calls call_foreign(vm, id); bindForeignClassFn does the
// same for the allocator and calls finalize(id, data) from the finalizer;
// loadModuleFn returns the source with an onComplete that calls
// load_module_complete. wren_get_slot_bytes writes the length as a u32 to
// its out pointer. Point WREN_WASM at the result to run testbed on wazero.
//
// # Architecture
//
//	WazeroEngine - compiles the reactor once and owns the wazero runtime
//	instance     - one module instance per VM, with its own linear memory
//	WazeroMemory - wrenruntime.Memory over an instance's memory
//
// Every NewVM instantiates the compiled reactor under a unique module name
// and calls wren_new_vm in it. Host functions identify the VM they serve
// by the name of the calling module, so callbacks need no lookup in guest
// memory.
//
// # Foreign Functions
//
// Bind callbacks return small integer ids instead of function pointers.
// The reactor's trampolines pass the id back through call_foreign and
// finalize, and the engine dispatches to the Go function bound under it.
// Ids are scoped to one VM and dropped when it is freed.
//
// # Strings
//
// Strings cross the boundary NUL-terminated. The host copies arguments into
// reactor memory with malloc and frees them after the call. Byte slices are
// passed as pointer and length and may contain NUL.
//
// # Traps
//
// A trap inside the reactor panics with an *errors.Error of kind trap.
// Panics raised by host callbacks surface through wazero as the trap's
// cause, so errors.As still finds the original value.
//
// # WASI
//
// Reactors linked against wasi-libc import wasi_snapshot_preview1. The
// engine instantiates it when the compiled module asks for it.
package engine
