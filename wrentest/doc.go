// Package wrentest provides an in-process Wren engine for tests.
//
// The engine implements wrenruntime.Engine with a tree-walking interpreter
// over a subset of the language, so the binding layer, the auto-mapper and
// the CLI can run scripts without a wasm build of the native VM. It follows
// the native embedding contract closely:
//
//   - System.print issues two write callbacks, the text and then "\n".
//   - Compile errors report module, line and an "Error at ..." message.
//   - Runtime errors report the message, then one stack trace callback per
//     frame, innermost first, with "(script)" for module-level code.
//   - Foreign classes and methods are bound when the class statement runs.
//   - Foreign storage lives in a heap readable through Memory.
//   - Finalizers run from CollectGarbage for unreachable foreign objects
//     and from FreeVM for all remaining ones.
//
// Collections requested while script code runs are deferred until the
// outermost Interpret or Call returns.
package wrentest
