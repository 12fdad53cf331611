package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
)

// WazeroEngine implements wrenruntime.Engine by running a Wren reactor
// module on wazero. Every VM gets its own module instance and linear memory.
type WazeroEngine struct {
	ctx      context.Context
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled wazero.CompiledModule
	host     api.Module
	wasi     api.Closer
	vms      map[wrenruntime.VM]*instance
	byName   map[string]*instance
	version  int
	nextID   atomic.Uint64
	mu       sync.Mutex
	closed   bool
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per VM in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// CacheDir persists compiled reactor code between engines and processes.
	// Empty means compile in memory only.
	CacheDir string
}

// NewWazeroEngine compiles the Wren reactor in wasm and checks its exports.
func NewWazeroEngine(ctx context.Context, wasm []byte) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, wasm, nil)
}

// NewWazeroEngineWithConfig creates an engine with custom configuration.
// ctx is used for every call into the reactor.
func NewWazeroEngineWithConfig(ctx context.Context, wasm []byte, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	var cache wazero.CompilationCache
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CacheDir != "" {
			c, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "compilation cache")
			}
			cache = c
			runtimeCfg = runtimeCfg.WithCompilationCache(c)
		}
	}

	e := &WazeroEngine{
		ctx:     ctx,
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cache:   cache,
		vms:     make(map[wrenruntime.VM]*instance),
		byName:  make(map[string]*instance),
	}
	if err := e.init(wasm); err != nil {
		return nil, multierr.Append(err, e.Close())
	}
	return e, nil
}

func (e *WazeroEngine) init(wasm []byte) error {
	compiled, err := e.runtime.CompileModule(e.ctx, wasm)
	if err != nil {
		return errors.Wrap(errors.PhaseEngine, errors.KindInvalidData, err, "compile reactor")
	}
	e.compiled = compiled

	if missing := missingExports(compiled); len(missing) > 0 {
		return errors.NewMissingExportsError(missing)
	}

	host, err := e.instantiateHost()
	if err != nil {
		return errors.Instantiation(err)
	}
	e.host = host

	if importsModule(compiled, WASIModule) {
		wasi, err := instantiateWASI(e.ctx, e.runtime)
		if err != nil {
			return errors.Instantiation(err)
		}
		e.wasi = wasi
	}

	probe, err := e.instantiate("wren-probe")
	if err != nil {
		return err
	}
	defer probe.close()
	res, err := probe.try(fnVersion)
	if err != nil {
		return err
	}
	e.version = int(api.DecodeI32(res[0]))

	Logger().Debug("wren reactor loaded",
		zap.Int("version", e.version),
		zap.Bool("wasi", e.wasi != nil))
	return nil
}

func missingExports(compiled wazero.CompiledModule) []string {
	var missing []string
	if _, ok := compiled.ExportedMemories()[ExportMemory]; !ok {
		missing = append(missing, ExportMemory)
	}
	fns := compiled.ExportedFunctions()
	for _, name := range RequiredExports {
		if _, ok := fns[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Version returns the reactor's WREN_VERSION_NUMBER.
func (e *WazeroEngine) Version() int { return e.version }

// NewVM instantiates a reactor and creates a VM in it. Config.Reallocate
// is not supported; the reactor's own allocator is used.
func (e *WazeroEngine) NewVM(cfg *wrenruntime.Config) (wrenruntime.VM, error) {
	if cfg == nil {
		cfg = &wrenruntime.Config{}
	}
	if cfg.Reallocate != nil {
		Logger().Warn("custom reallocate ignored; the reactor allocates its own memory")
	}
	initial, err := heapArg("initial heap size", cfg.InitialHeapSize)
	if err != nil {
		return 0, err
	}
	minimum, err := heapArg("min heap size", cfg.MinHeapSize)
	if err != nil {
		return 0, err
	}
	if cfg.HeapGrowthPercent < 0 || cfg.HeapGrowthPercent > math.MaxInt32 {
		return 0, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(cfg.HeapGrowthPercent).
			Detail("heap growth percent %d out of range", cfg.HeapGrowthPercent).
			Build()
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return 0, errors.Closed(errors.PhaseEngine, "engine")
	}

	id := wrenruntime.VM(e.nextID.Add(1))
	inst, err := e.instantiate(fmt.Sprintf("wren-%d", id))
	if err != nil {
		return 0, err
	}
	inst.id = id
	inst.callbacks = cfg.Callbacks

	e.mu.Lock()
	e.vms[id] = inst
	e.byName[inst.name] = inst
	e.mu.Unlock()

	res, err := inst.try(fnNewVM, initial, minimum, api.EncodeI32(int32(cfg.HeapGrowthPercent)))
	if err == nil && api.DecodeU32(res[0]) == 0 {
		err = errors.New(errors.PhaseEngine, errors.KindAllocation).Detail("wren_new_vm returned null").Build()
	}
	if err != nil {
		e.forget(inst)
		inst.close()
		return 0, err
	}
	inst.vm = uint64(api.DecodeU32(res[0]))

	Logger().Debug("vm created", zap.Uint64("vm", uint64(id)), zap.String("instance", inst.name))
	return id, nil
}

func heapArg(what string, size uint64) (uint64, error) {
	if size > math.MaxUint32 {
		return 0, errors.New(errors.PhaseConfig, errors.KindOverflow).
			Value(size).
			Detail("%s %d exceeds 32-bit memory", what, size).
			Build()
	}
	return api.EncodeU32(uint32(size)), nil
}

// FreeVM frees the VM, runs its finalizers and releases its instance.
func (e *WazeroEngine) FreeVM(vm wrenruntime.VM) {
	inst := e.lookup(vm)
	inst.call(fnFreeVM, inst.vm)
	e.forget(inst)
	if err := inst.close(); err != nil {
		Logger().Warn("close instance", zap.String("instance", inst.name), zap.Error(err))
	}
}

func (e *WazeroEngine) forget(inst *instance) {
	e.mu.Lock()
	delete(e.vms, inst.id)
	delete(e.byName, inst.name)
	e.mu.Unlock()
}

func (e *WazeroEngine) lookup(vm wrenruntime.VM) *instance {
	e.mu.Lock()
	inst, ok := e.vms[vm]
	e.mu.Unlock()
	if !ok {
		panic(errors.New(errors.PhaseEngine, errors.KindNotFound).
			Value(uint64(vm)).
			Detail("vm %d is not live on this engine", uint64(vm)).
			Build())
	}
	return inst
}

// caller returns the instance a host function was called from. A call from
// a module that hosts no VM panics.
func (e *WazeroEngine) caller(mod api.Module) *instance {
	e.mu.Lock()
	inst, ok := e.byName[mod.Name()]
	e.mu.Unlock()
	if !ok {
		panic(errors.New(errors.PhaseCallback, errors.KindNotFound).
			Path(mod.Name()).
			Detail("host callback from module %q that hosts no vm", mod.Name()).
			Build())
	}
	return inst
}

// Close frees every VM still open and closes the runtime.
func (e *WazeroEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	live := make([]*instance, 0, len(e.vms))
	for _, inst := range e.vms {
		live = append(live, inst)
	}
	e.mu.Unlock()

	var err error
	for _, inst := range live {
		if _, ferr := inst.try(fnFreeVM, inst.vm); ferr != nil {
			err = multierr.Append(err, ferr)
		}
		e.forget(inst)
		err = multierr.Append(err, inst.close())
	}
	err = multierr.Append(err, e.runtime.Close(e.ctx))
	if e.cache != nil {
		err = multierr.Append(err, e.cache.Close(e.ctx))
	}
	return err
}

func (e *WazeroEngine) Interpret(vm wrenruntime.VM, module, source string) wrenruntime.InterpretResult {
	inst := e.lookup(vm)
	mod := inst.cString(module)
	defer inst.free(mod)
	src := inst.cString(source)
	defer inst.free(src)
	res := inst.call(fnInterpret, inst.vm, mod, src)
	return wrenruntime.InterpretResult(api.DecodeI32(res[0]))
}

func (e *WazeroEngine) CollectGarbage(vm wrenruntime.VM) {
	inst := e.lookup(vm)
	inst.call(fnCollectGarbage, inst.vm)
}

func (e *WazeroEngine) EnsureSlots(vm wrenruntime.VM, count int) {
	inst := e.lookup(vm)
	inst.call(fnEnsureSlots, inst.vm, i32(count))
}

func (e *WazeroEngine) SlotCount(vm wrenruntime.VM) int {
	inst := e.lookup(vm)
	return int(api.DecodeI32(inst.call(fnSlotCount, inst.vm)[0]))
}

func (e *WazeroEngine) SlotType(vm wrenruntime.VM, slot int) wrenruntime.SlotType {
	inst := e.lookup(vm)
	return wrenruntime.SlotType(api.DecodeI32(inst.call(fnSlotType, inst.vm, i32(slot))[0]))
}

func (e *WazeroEngine) SetSlotNull(vm wrenruntime.VM, slot int) {
	inst := e.lookup(vm)
	inst.call(fnSetSlotNull, inst.vm, i32(slot))
}

func (e *WazeroEngine) SetSlotBool(vm wrenruntime.VM, slot int, value bool) {
	inst := e.lookup(vm)
	var b uint64
	if value {
		b = 1
	}
	inst.call(fnSetSlotBool, inst.vm, i32(slot), b)
}

func (e *WazeroEngine) SetSlotDouble(vm wrenruntime.VM, slot int, value float64) {
	inst := e.lookup(vm)
	inst.call(fnSetSlotDouble, inst.vm, i32(slot), api.EncodeF64(value))
}

func (e *WazeroEngine) SetSlotString(vm wrenruntime.VM, slot int, text string) {
	inst := e.lookup(vm)
	ptr := inst.cString(text)
	defer inst.free(ptr)
	inst.call(fnSetSlotString, inst.vm, i32(slot), ptr)
}

func (e *WazeroEngine) SetSlotBytes(vm wrenruntime.VM, slot int, data []byte) {
	inst := e.lookup(vm)
	ptr := inst.bytes(data)
	defer inst.free(ptr)
	inst.call(fnSetSlotBytes, inst.vm, i32(slot), ptr, i32(len(data)))
}

func (e *WazeroEngine) SetSlotHandle(vm wrenruntime.VM, slot int, handle wrenruntime.Handle) {
	inst := e.lookup(vm)
	inst.call(fnSetSlotHandle, inst.vm, i32(slot), uint64(handle))
}

func (e *WazeroEngine) SlotBool(vm wrenruntime.VM, slot int) bool {
	inst := e.lookup(vm)
	return api.DecodeI32(inst.call(fnSlotBool, inst.vm, i32(slot))[0]) != 0
}

func (e *WazeroEngine) SlotDouble(vm wrenruntime.VM, slot int) float64 {
	inst := e.lookup(vm)
	return api.DecodeF64(inst.call(fnSlotDouble, inst.vm, i32(slot))[0])
}

func (e *WazeroEngine) SlotString(vm wrenruntime.VM, slot int) string {
	inst := e.lookup(vm)
	ptr := api.DecodeU32(inst.call(fnSlotString, inst.vm, i32(slot))[0])
	return inst.mem.cString(ptr)
}

func (e *WazeroEngine) SlotBytes(vm wrenruntime.VM, slot int) []byte {
	inst := e.lookup(vm)
	ptr := api.DecodeU32(inst.call(fnSlotBytes, inst.vm, i32(slot), uint64(inst.scratch))[0])
	n, err := inst.mem.ReadU32(wrenruntime.Ptr(inst.scratch))
	if err != nil {
		panic(errors.Trap(fnSlotBytes, err))
	}
	data, err := inst.mem.Read(wrenruntime.Ptr(ptr), n)
	if err != nil {
		panic(errors.Trap(fnSlotBytes, err))
	}
	return append([]byte(nil), data...)
}

func (e *WazeroEngine) SlotHandle(vm wrenruntime.VM, slot int) wrenruntime.Handle {
	inst := e.lookup(vm)
	return wrenruntime.Handle(api.DecodeU32(inst.call(fnSlotHandle, inst.vm, i32(slot))[0]))
}

func (e *WazeroEngine) SetSlotNewForeign(vm wrenruntime.VM, slot, classSlot int, size uintptr) wrenruntime.Ptr {
	inst := e.lookup(vm)
	res := inst.call(fnSetSlotForeign, inst.vm, i32(slot), i32(classSlot), i32(int(size)))
	return wrenruntime.Ptr(api.DecodeU32(res[0]))
}

func (e *WazeroEngine) SlotForeign(vm wrenruntime.VM, slot int) wrenruntime.Ptr {
	inst := e.lookup(vm)
	return wrenruntime.Ptr(api.DecodeU32(inst.call(fnSlotForeign, inst.vm, i32(slot))[0]))
}

func (e *WazeroEngine) SetSlotNewList(vm wrenruntime.VM, slot int) {
	inst := e.lookup(vm)
	inst.call(fnSetSlotNewList, inst.vm, i32(slot))
}

func (e *WazeroEngine) ListCount(vm wrenruntime.VM, slot int) int {
	inst := e.lookup(vm)
	return int(api.DecodeI32(inst.call(fnListCount, inst.vm, i32(slot))[0]))
}

func (e *WazeroEngine) ListElement(vm wrenruntime.VM, listSlot, index, elementSlot int) {
	inst := e.lookup(vm)
	inst.call(fnListElement, inst.vm, i32(listSlot), i32(index), i32(elementSlot))
}

func (e *WazeroEngine) SetListElement(vm wrenruntime.VM, listSlot, index, elementSlot int) {
	inst := e.lookup(vm)
	inst.call(fnSetListElement, inst.vm, i32(listSlot), i32(index), i32(elementSlot))
}

func (e *WazeroEngine) InsertInList(vm wrenruntime.VM, listSlot, index, elementSlot int) {
	inst := e.lookup(vm)
	inst.call(fnInsertInList, inst.vm, i32(listSlot), i32(index), i32(elementSlot))
}

func (e *WazeroEngine) SetSlotNewMap(vm wrenruntime.VM, slot int) {
	inst := e.lookup(vm)
	inst.call(fnSetSlotNewMap, inst.vm, i32(slot))
}

func (e *WazeroEngine) MapCount(vm wrenruntime.VM, slot int) int {
	inst := e.lookup(vm)
	return int(api.DecodeI32(inst.call(fnMapCount, inst.vm, i32(slot))[0]))
}

func (e *WazeroEngine) MapContainsKey(vm wrenruntime.VM, mapSlot, keySlot int) bool {
	inst := e.lookup(vm)
	return api.DecodeI32(inst.call(fnMapContainsKey, inst.vm, i32(mapSlot), i32(keySlot))[0]) != 0
}

func (e *WazeroEngine) MapValue(vm wrenruntime.VM, mapSlot, keySlot, valueSlot int) {
	inst := e.lookup(vm)
	inst.call(fnMapValue, inst.vm, i32(mapSlot), i32(keySlot), i32(valueSlot))
}

func (e *WazeroEngine) SetMapValue(vm wrenruntime.VM, mapSlot, keySlot, valueSlot int) {
	inst := e.lookup(vm)
	inst.call(fnSetMapValue, inst.vm, i32(mapSlot), i32(keySlot), i32(valueSlot))
}

func (e *WazeroEngine) RemoveMapValue(vm wrenruntime.VM, mapSlot, keySlot, removedValueSlot int) {
	inst := e.lookup(vm)
	inst.call(fnRemoveMapValue, inst.vm, i32(mapSlot), i32(keySlot), i32(removedValueSlot))
}

func (e *WazeroEngine) MakeCallHandle(vm wrenruntime.VM, signature string) wrenruntime.Handle {
	inst := e.lookup(vm)
	sig := inst.cString(signature)
	defer inst.free(sig)
	return wrenruntime.Handle(api.DecodeU32(inst.call(fnMakeCallHandle, inst.vm, sig)[0]))
}

func (e *WazeroEngine) Call(vm wrenruntime.VM, method wrenruntime.Handle) wrenruntime.InterpretResult {
	inst := e.lookup(vm)
	return wrenruntime.InterpretResult(api.DecodeI32(inst.call(fnCall, inst.vm, uint64(method))[0]))
}

func (e *WazeroEngine) ReleaseHandle(vm wrenruntime.VM, handle wrenruntime.Handle) {
	inst := e.lookup(vm)
	inst.call(fnReleaseHandle, inst.vm, uint64(handle))
}

func (e *WazeroEngine) Variable(vm wrenruntime.VM, module, name string, slot int) {
	inst := e.lookup(vm)
	mod := inst.cString(module)
	defer inst.free(mod)
	n := inst.cString(name)
	defer inst.free(n)
	inst.call(fnVariable, inst.vm, mod, n, i32(slot))
}

func (e *WazeroEngine) HasVariable(vm wrenruntime.VM, module, name string) bool {
	inst := e.lookup(vm)
	mod := inst.cString(module)
	defer inst.free(mod)
	n := inst.cString(name)
	defer inst.free(n)
	return api.DecodeI32(inst.call(fnHasVariable, inst.vm, mod, n)[0]) != 0
}

func (e *WazeroEngine) HasModule(vm wrenruntime.VM, module string) bool {
	inst := e.lookup(vm)
	mod := inst.cString(module)
	defer inst.free(mod)
	return api.DecodeI32(inst.call(fnHasModule, inst.vm, mod)[0]) != 0
}

func (e *WazeroEngine) AbortFiber(vm wrenruntime.VM, slot int) {
	inst := e.lookup(vm)
	inst.call(fnAbortFiber, inst.vm, i32(slot))
}

// Memory returns the VM's linear memory.
func (e *WazeroEngine) Memory(vm wrenruntime.VM) wrenruntime.Memory {
	return e.lookup(vm).mem
}

var _ wrenruntime.Engine = (*WazeroEngine)(nil)

func i32(v int) uint64 {
	return api.EncodeI32(int32(v))
}
