package runtime

import (
	"fmt"

	"go.uber.org/zap"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/foreign"
)

func (r *Registry) trampolines() wrenruntime.Callbacks {
	return wrenruntime.Callbacks{
		Write:             r.onWrite,
		Error:             r.onError,
		ResolveModule:     r.onResolveModule,
		LoadModule:        r.onLoadModule,
		BindForeignMethod: r.onBindForeignMethod,
		BindForeignClass:  r.onBindForeignClass,
	}
}

func (r *Registry) onWrite(ptr wrenruntime.VM, text string) {
	vm, ok := r.route(ptr, "write")
	if !ok {
		return
	}
	for _, h := range vm.Handlers.Write {
		guard("write", func() (struct{}, bool) {
			h(vm, text)
			return struct{}{}, true
		})
	}
}

func (r *Registry) onError(ptr wrenruntime.VM, kind wrenruntime.ErrorType, module string, line int, message string) {
	vm, ok := r.route(ptr, "error")
	if !ok {
		return
	}
	e := ScriptError{Type: kind, Module: module, Line: line, Message: message}
	for _, h := range vm.Handlers.Error {
		guard("error", func() (struct{}, bool) {
			h(vm, e)
			return struct{}{}, true
		})
	}
}

// onResolveModule falls back to the requested name when nobody answers.
func (r *Registry) onResolveModule(ptr wrenruntime.VM, importer, name string) (string, bool) {
	vm, ok := r.route(ptr, "resolve module")
	if !ok {
		return "", false
	}
	resolved, ok := first(vm.Handlers.ResolveModule, "resolve module", func(h ResolveModuleFunc) (string, bool) {
		s, ok := h(vm, importer, name)
		return s, ok && s != ""
	})
	if !ok {
		return name, true
	}
	return resolved, true
}

func (r *Registry) onLoadModule(ptr wrenruntime.VM, name string) (wrenruntime.LoadModuleResult, bool) {
	vm, ok := r.route(ptr, "load module")
	if !ok {
		return wrenruntime.LoadModuleResult{}, false
	}
	res, ok := first(vm.Handlers.LoadModule, "load module", func(h LoadModuleFunc) (LoadModuleResult, bool) {
		res, ok := h(vm, name)
		return res, ok && res.Source != ""
	})
	if !ok {
		Logger().Debug("module not found", zap.String("module", name))
		return wrenruntime.LoadModuleResult{}, false
	}

	out := wrenruntime.LoadModuleResult{Source: res.Source}
	if res.OnComplete != nil {
		done := res.OnComplete
		out.OnComplete = func(ptr wrenruntime.VM, name string) {
			vm, ok := r.route(ptr, "load module complete")
			if !ok {
				return
			}
			guard("load module complete", func() (struct{}, bool) {
				done(vm, name)
				return struct{}{}, true
			})
		}
	}
	return out, true
}

func (r *Registry) onBindForeignMethod(ptr wrenruntime.VM, module, className string, isStatic bool, signature string) wrenruntime.ForeignMethodFn {
	vm, ok := r.route(ptr, "bind foreign method")
	if !ok {
		return nil
	}
	fn, ok := first(vm.Handlers.BindForeignMethod, "bind foreign method", func(h BindForeignMethodFunc) (ForeignMethod, bool) {
		fn := h(vm, module, className, isStatic, signature)
		return fn, fn != nil
	})
	if !ok {
		Logger().Debug("foreign method not bound",
			zap.String("module", module),
			zap.String("class", className),
			zap.Bool("static", isStatic),
			zap.String("signature", signature))
		return nil
	}

	native := r.method(className+"."+signature, fn)
	vm.core.preserve(native)
	return native
}

func (r *Registry) onBindForeignClass(ptr wrenruntime.VM, module, className string) wrenruntime.ForeignClassMethods {
	vm, ok := r.route(ptr, "bind foreign class")
	if !ok {
		return wrenruntime.ForeignClassMethods{}
	}
	class, ok := first(vm.Handlers.BindForeignClass, "bind foreign class", func(h BindForeignClassFunc) (*ForeignClass, bool) {
		c := h(vm, module, className)
		return c, c != nil && c.Allocate != nil
	})
	if !ok {
		Logger().Debug("foreign class not bound",
			zap.String("module", module),
			zap.String("class", className))
		return wrenruntime.ForeignClassMethods{}
	}

	methods := wrenruntime.ForeignClassMethods{
		Allocate: r.method(className+".<allocate>", class.Allocate),
		Finalize: finalizer(vm.core.objects, vm.core.memory, className, class.Finalize),
	}
	vm.core.preserve(methods.Allocate, methods.Finalize)
	return methods
}

// method wraps fn for the engine. The wrapper holds the registry, not the
// VM, so an engine that outlives the VM does not keep it reachable.
func (r *Registry) method(name string, fn ForeignMethod) wrenruntime.ForeignMethodFn {
	return func(ptr wrenruntime.VM) {
		vm, ok := r.route(ptr, "foreign method")
		if !ok {
			return
		}
		vm.invokeForeign(name, fn)
	}
}

// finalizer runs without consulting the registry: the engine finalizes
// remaining objects while the VM is being freed, after it has been
// unregistered.
func finalizer(objects *foreign.Table, mem wrenruntime.Memory, className string, fin Finalizer) wrenruntime.FinalizerFn {
	return func(data wrenruntime.Ptr) {
		id, err := foreign.Load(mem, data)
		if err != nil {
			Logger().Warn("finalize: read foreign storage",
				zap.String("class", className),
				zap.Error(err))
			return
		}
		obj, err := objects.Reclaim(id)
		if err != nil {
			Logger().Warn("finalize: foreign object lookup",
				zap.String("class", className),
				zap.Uint64("id", uint64(id)),
				zap.Error(err))
			return
		}
		if fin == nil {
			return
		}
		guard("finalize "+className, func() (struct{}, bool) {
			fin(obj)
			return struct{}{}, true
		})
	}
}

// invokeForeign runs a foreign method. A panic aborts the current fiber
// with the panic message instead of unwinding through the engine;
// protocol violations keep propagating.
func (vm *VM) invokeForeign(name string, fn ForeignMethod) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if v, ok := p.(*ProtocolViolation); ok {
			panic(v)
		}
		Logger().Error("foreign method panicked",
			zap.String("method", name),
			zap.Any("panic", p))
		vm.abortWith(fmt.Sprint(p))
	}()
	fn(vm)
}

// first calls handlers in order and returns the first answer.
func first[H, R any](handlers []H, event string, call func(H) (R, bool)) (R, bool) {
	for _, h := range handlers {
		if res, ok := guard(event, func() (R, bool) { return call(h) }); ok {
			return res, true
		}
	}
	var zero R
	return zero, false
}

// guard converts a handler panic into "no answer".
func guard[R any](event string, fn func() (R, bool)) (res R, ok bool) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if v, isViolation := p.(*ProtocolViolation); isViolation {
			panic(v)
		}
		Logger().Error("callback handler panicked",
			zap.String("event", event),
			zap.Any("panic", p))
		var zero R
		res, ok = zero, false
	}()
	return fn()
}
