package runtime

import (
	"io"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
)

// ForeignMethod implements a foreign method. Arguments are in slots 1..n,
// the receiver in slot 0; the result is written to slot 0.
type ForeignMethod func(vm *VM)

// Finalizer runs when the engine frees a foreign object. obj is the value
// that was passed to SetSlotNewForeign.
type Finalizer func(obj any)

// ForeignClass is the allocate/finalize pair for a foreign class.
type ForeignClass struct {
	Allocate ForeignMethod
	Finalize Finalizer
}

// LoadModuleResult is the source of an imported module. OnComplete, if set,
// runs once the engine no longer needs Source.
type LoadModuleResult struct {
	OnComplete func(vm *VM, name string)
	Source     string
}

type (
	WriteFunc             func(vm *VM, text string)
	ErrorFunc             func(vm *VM, err ScriptError)
	ResolveModuleFunc     func(vm *VM, importer, name string) (string, bool)
	LoadModuleFunc        func(vm *VM, name string) (LoadModuleResult, bool)
	BindForeignMethodFunc func(vm *VM, module, className string, isStatic bool, signature string) ForeignMethod
	BindForeignClassFunc  func(vm *VM, module, className string) *ForeignClass
)

// Handlers are the host subscribers for engine callbacks.
//
// Write and Error go to every handler in registration order. For the
// resolver-style callbacks the first handler that answers wins: a resolved
// name, a non-empty source, a non-nil method, a class with an allocator.
// When several handlers could answer the same request, the earliest
// registered one is used; keeping answers unambiguous is up to the embedder.
type Handlers struct {
	Write             []WriteFunc
	Error             []ErrorFunc
	ResolveModule     []ResolveModuleFunc
	LoadModule        []LoadModuleFunc
	BindForeignMethod []BindForeignMethodFunc
	BindForeignClass  []BindForeignClassFunc
}

// OnWrite subscribes fn to script output.
func (h *Handlers) OnWrite(fn WriteFunc) {
	h.Write = appendHandler(h.Write, fn)
}

// OnError subscribes fn to compile errors, runtime errors and stack frames.
func (h *Handlers) OnError(fn ErrorFunc) {
	h.Error = appendHandler(h.Error, fn)
}

// OnResolveModule adds an import name resolver.
func (h *Handlers) OnResolveModule(fn ResolveModuleFunc) {
	h.ResolveModule = appendHandler(h.ResolveModule, fn)
}

// OnLoadModule adds a module source loader.
func (h *Handlers) OnLoadModule(fn LoadModuleFunc) {
	h.LoadModule = appendHandler(h.LoadModule, fn)
}

// OnBindForeignMethod adds a foreign method binder.
func (h *Handlers) OnBindForeignMethod(fn BindForeignMethodFunc) {
	h.BindForeignMethod = appendHandler(h.BindForeignMethod, fn)
}

// OnBindForeignClass adds a foreign class binder.
func (h *Handlers) OnBindForeignClass(fn BindForeignClassFunc) {
	h.BindForeignClass = appendHandler(h.BindForeignClass, fn)
}

func (h Handlers) clone() Handlers {
	return Handlers{
		Write:             clip(h.Write),
		Error:             clip(h.Error),
		ResolveModule:     clip(h.ResolveModule),
		LoadModule:        clip(h.LoadModule),
		BindForeignMethod: clip(h.BindForeignMethod),
		BindForeignClass:  clip(h.BindForeignClass),
	}
}

// appendHandler never writes into a backing array another Handlers value
// may share, so a dispatch in progress keeps iterating its own snapshot.
func appendHandler[T any](s []T, fn T) []T {
	return append(s[:len(s):len(s)], fn)
}

func clip[T any](s []T) []T {
	return s[:len(s):len(s)]
}

// Config holds configuration for VM creation. NewVMWithConfig copies it;
// changes made afterwards have no effect on the created VM.
type Config struct {
	Handlers

	// Registry routes callbacks for the VM. nil means DefaultRegistry().
	Registry *Registry

	// Reallocate replaces the engine's allocator when the engine supports it.
	Reallocate wrenruntime.ReallocateFn

	// InitialHeapSize is the number of bytes allocated before the first GC.
	// 0 means the engine default (10MB for Wren).
	InitialHeapSize uint64

	// MinHeapSize is the lower bound of the heap after a collection.
	// 0 means the engine default (1MB for Wren).
	MinHeapSize uint64

	// HeapGrowthPercent is how far the heap grows past the live size before
	// the next collection. 0 means the engine default (50).
	HeapGrowthPercent int
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	if c.HeapGrowthPercent < 0 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("HeapGrowthPercent").
			Value(c.HeapGrowthPercent).
			Detail("must not be negative").
			Build()
	}
	if c.InitialHeapSize != 0 && c.MinHeapSize > c.InitialHeapSize {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("MinHeapSize").
			Value(c.MinHeapSize).
			Detail("min heap size %d exceeds initial heap size %d", c.MinHeapSize, c.InitialHeapSize).
			Build()
	}
	return nil
}

func (c *Config) native(callbacks wrenruntime.Callbacks) *wrenruntime.Config {
	return &wrenruntime.Config{
		Callbacks:         callbacks,
		Reallocate:        c.Reallocate,
		InitialHeapSize:   c.InitialHeapSize,
		MinHeapSize:       c.MinHeapSize,
		HeapGrowthPercent: c.HeapGrowthPercent,
	}
}

// WriteTo returns a write handler that copies script output to w.
func WriteTo(w io.Writer) WriteFunc {
	return func(_ *VM, text string) {
		if _, err := io.WriteString(w, text); err != nil {
			Logger().Sugar().Warnf("write handler: %v", err)
		}
	}
}

// ErrorsTo returns an error handler that prints script errors to w, one per line.
func ErrorsTo(w io.Writer) ErrorFunc {
	return func(_ *VM, e ScriptError) {
		if _, err := io.WriteString(w, e.Error()+"\n"); err != nil {
			Logger().Sugar().Warnf("error handler: %v", err)
		}
	}
}
