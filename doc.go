// Package wrenruntime is a Go host binding layer for the Wren scripting VM.
//
// The root package defines the native embedding surface that engines
// implement: the Engine interface, opaque VM, Handle and Ptr pointers, the
// callback and configuration structs handed to Engine.NewVM, and the
// result, error and slot type enums.
//
// # Architecture Overview
//
//	wrenruntime/      Engine interface, native pointer types and enums
//	├── runtime/      VMs, callback routing, handles, slots, module loaders
//	├── foreign/      Per-VM table of Go objects referenced by foreign storage
//	├── automap/      Foreign class descriptors, builder and reflection mapper
//	├── engine/       wazero engine running Wren as a wasm reactor
//	├── wrentest/     In-process engine over a Wren subset, for tests
//	├── errors/       Structured error types
//	└── cmd/wren/     Command line runner and REPL
//
// # Quick Start
//
//	eng, err := engine.NewWazeroEngine(ctx, wasmBytes)
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	cfg := &runtime.Config{}
//	cfg.OnWrite(runtime.WriteTo(os.Stdout))
//	cfg.OnError(runtime.ErrorsTo(os.Stderr))
//
//	vm, err := runtime.NewVMWithConfig(eng, cfg)
//	if err != nil {
//	    return err
//	}
//	defer vm.Close()
//
//	vm.Interpret(`System.print("hello")`)
//
// # Exposing Go Types
//
//	type Vector struct{ X, Y float64 }
//
//	err := automap.AutoMap[Vector](vm, "math")
//	vm.Interpret(`import "math" for Vector`)
//
// See package automap for descriptors, the builder and conversion rules.
//
// # Threading
//
// A VM is single-threaded. Every call on a VM and every callback it makes
// happens on the goroutine that drives it. Separate VMs may run on
// separate goroutines, including VMs created from one engine.
package wrenruntime
