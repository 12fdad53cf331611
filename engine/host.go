package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
)

// instance is one reactor instance hosting one VM.
type instance struct {
	engine    *WazeroEngine
	mod       api.Module
	mem       *WazeroMemory
	fns       map[string]api.Function
	pending   map[uint32]func(wrenruntime.VM, string)
	callbacks wrenruntime.Callbacks
	foreign   []foreignEntry
	name      string
	id        wrenruntime.VM
	vm        uint64
	scratch   uint32
}

// foreignEntry is what a foreign id handed to the reactor dispatches to.
type foreignEntry struct {
	method   wrenruntime.ForeignMethodFn
	finalize wrenruntime.FinalizerFn
}

func (e *WazeroEngine) instantiate(name string) (*instance, error) {
	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions(ExportInitialize)
	mod, err := e.runtime.InstantiateModule(e.ctx, e.compiled, cfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	inst := &instance{
		engine:  e,
		mod:     mod,
		mem:     NewWazeroMemory(mod.Memory()),
		fns:     make(map[string]api.Function, len(RequiredExports)),
		pending: make(map[uint32]func(wrenruntime.VM, string)),
		name:    name,
	}
	for _, fn := range RequiredExports {
		inst.fns[fn] = mod.ExportedFunction(fn)
	}

	res, err := inst.try(ExportMalloc, 8)
	if err == nil && res[0] == 0 {
		err = errors.New(errors.PhaseEngine, errors.KindAllocation).Detail("malloc scratch").Build()
	}
	if err != nil {
		_ = mod.Close(e.ctx)
		return nil, err
	}
	inst.scratch = api.DecodeU32(res[0])
	return inst, nil
}

func (i *instance) close() error {
	i.foreign = nil
	i.pending = nil
	return i.mod.Close(i.engine.ctx)
}

func (i *instance) try(name string, args ...uint64) ([]uint64, error) {
	res, err := i.fns[name].Call(i.engine.ctx, args...)
	if err != nil {
		return nil, errors.Trap(name, err)
	}
	return res, nil
}

// call invokes an export and panics if it traps. The panic value keeps the
// trap cause, including any panic raised by a host callback underneath.
func (i *instance) call(name string, args ...uint64) []uint64 {
	res, err := i.try(name, args...)
	if err != nil {
		Logger().Error("reactor call trapped",
			zap.String("instance", i.name),
			zap.String("func", name),
			zap.Error(err))
		panic(err)
	}
	return res
}

func (i *instance) malloc(size int) uint32 {
	if size == 0 {
		size = 1
	}
	ptr := api.DecodeU32(i.call(ExportMalloc, i32(size))[0])
	if ptr == 0 {
		panic(errors.New(errors.PhaseEngine, errors.KindAllocation).
			Value(size).
			Detail("malloc(%d) returned null", size).
			Build())
	}
	return ptr
}

func (i *instance) free(ptr uint64) {
	if ptr != 0 {
		i.call(ExportFree, ptr)
	}
}

// cString copies s into reactor memory with a NUL terminator.
func (i *instance) cString(s string) uint64 {
	ptr := i.malloc(len(s) + 1)
	data := make([]byte, len(s)+1)
	copy(data, s)
	if err := i.mem.Write(wrenruntime.Ptr(ptr), data); err != nil {
		panic(err)
	}
	return uint64(ptr)
}

func (i *instance) bytes(data []byte) uint64 {
	ptr := i.malloc(len(data))
	if err := i.mem.Write(wrenruntime.Ptr(ptr), data); err != nil {
		panic(err)
	}
	return uint64(ptr)
}

func (i *instance) register(entry foreignEntry) uint64 {
	i.foreign = append(i.foreign, entry)
	return api.EncodeU32(uint32(len(i.foreign)))
}

func (i *instance) entry(id uint32) foreignEntry {
	if id == 0 || int(id) > len(i.foreign) {
		panic(errors.New(errors.PhaseCallback, errors.KindNotFound).
			Path(i.name).
			Value(id).
			Detail("foreign id %d was never bound", id).
			Build())
	}
	return i.foreign[id-1]
}

func (e *WazeroEngine) instantiateHost() (api.Module, error) {
	b := e.runtime.NewHostModuleBuilder(HostModule)
	export := func(name string, fn api.GoModuleFunc, params, results int) {
		b.NewFunctionBuilder().
			WithGoModuleFunction(fn, i32Types(params), i32Types(results)).
			Export(name)
	}
	export(hostWrite, e.hostWrite, 2, 0)
	export(hostError, e.hostError, 5, 0)
	export(hostResolveModule, e.hostResolveModule, 3, 1)
	export(hostLoadModule, e.hostLoadModule, 2, 1)
	export(hostLoadModuleComplete, e.hostLoadModuleComplete, 3, 0)
	export(hostBindForeignMethod, e.hostBindForeignMethod, 5, 1)
	export(hostBindForeignClass, e.hostBindForeignClass, 3, 1)
	export(hostCallForeign, e.hostCallForeign, 2, 0)
	export(hostFinalize, e.hostFinalize, 2, 0)
	return b.Instantiate(e.ctx)
}

func i32Types(n int) []api.ValueType {
	if n == 0 {
		return nil
	}
	types := make([]api.ValueType, n)
	for i := range types {
		types[i] = api.ValueTypeI32
	}
	return types
}

func (e *WazeroEngine) hostWrite(_ context.Context, mod api.Module, stack []uint64) {
	inst := e.caller(mod)
	if inst.callbacks.Write == nil {
		return
	}
	inst.callbacks.Write(inst.id, inst.mem.cString(api.DecodeU32(stack[1])))
}

func (e *WazeroEngine) hostError(_ context.Context, mod api.Module, stack []uint64) {
	inst := e.caller(mod)
	if inst.callbacks.Error == nil {
		return
	}
	inst.callbacks.Error(inst.id,
		wrenruntime.ErrorType(api.DecodeI32(stack[1])),
		inst.mem.cString(api.DecodeU32(stack[2])),
		int(api.DecodeI32(stack[3])),
		inst.mem.cString(api.DecodeU32(stack[4])))
}

func (e *WazeroEngine) hostResolveModule(_ context.Context, mod api.Module, stack []uint64) {
	inst := e.caller(mod)
	stack[0] = 0
	if inst.callbacks.ResolveModule == nil {
		return
	}
	importer := inst.mem.cString(api.DecodeU32(stack[1]))
	name := inst.mem.cString(api.DecodeU32(stack[2]))
	resolved, ok := inst.callbacks.ResolveModule(inst.id, importer, name)
	if !ok {
		return
	}
	stack[0] = inst.cString(resolved)
}

func (e *WazeroEngine) hostLoadModule(_ context.Context, mod api.Module, stack []uint64) {
	inst := e.caller(mod)
	stack[0] = 0
	if inst.callbacks.LoadModule == nil {
		return
	}
	res, ok := inst.callbacks.LoadModule(inst.id, inst.mem.cString(api.DecodeU32(stack[1])))
	if !ok || res.Source == "" {
		return
	}
	ptr := inst.cString(res.Source)
	if res.OnComplete != nil {
		inst.pending[api.DecodeU32(ptr)] = res.OnComplete
	}
	stack[0] = ptr
}

func (e *WazeroEngine) hostLoadModuleComplete(_ context.Context, mod api.Module, stack []uint64) {
	inst := e.caller(mod)
	ptr := api.DecodeU32(stack[2])
	if done, ok := inst.pending[ptr]; ok {
		delete(inst.pending, ptr)
		done(inst.id, inst.mem.cString(api.DecodeU32(stack[1])))
	}
	inst.free(uint64(ptr))
}

func (e *WazeroEngine) hostBindForeignMethod(_ context.Context, mod api.Module, stack []uint64) {
	inst := e.caller(mod)
	stack[0] = 0
	if inst.callbacks.BindForeignMethod == nil {
		return
	}
	fn := inst.callbacks.BindForeignMethod(inst.id,
		inst.mem.cString(api.DecodeU32(stack[1])),
		inst.mem.cString(api.DecodeU32(stack[2])),
		api.DecodeI32(stack[3]) != 0,
		inst.mem.cString(api.DecodeU32(stack[4])))
	if fn == nil {
		return
	}
	stack[0] = inst.register(foreignEntry{method: fn})
}

func (e *WazeroEngine) hostBindForeignClass(_ context.Context, mod api.Module, stack []uint64) {
	inst := e.caller(mod)
	stack[0] = 0
	if inst.callbacks.BindForeignClass == nil {
		return
	}
	methods := inst.callbacks.BindForeignClass(inst.id,
		inst.mem.cString(api.DecodeU32(stack[1])),
		inst.mem.cString(api.DecodeU32(stack[2])))
	if methods.Allocate == nil {
		return
	}
	stack[0] = inst.register(foreignEntry{method: methods.Allocate, finalize: methods.Finalize})
}

func (e *WazeroEngine) hostCallForeign(_ context.Context, mod api.Module, stack []uint64) {
	inst := e.caller(mod)
	inst.entry(api.DecodeU32(stack[1])).method(inst.id)
}

func (e *WazeroEngine) hostFinalize(_ context.Context, mod api.Module, stack []uint64) {
	inst := e.caller(mod)
	if fin := inst.entry(api.DecodeU32(stack[0])).finalize; fin != nil {
		fin(wrenruntime.Ptr(api.DecodeU32(stack[1])))
	}
}
