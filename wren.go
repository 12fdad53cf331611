package wrenruntime

// VM is the engine's opaque pointer to a native VM instance.
type VM uintptr

// Handle is the engine's opaque pointer to a value or call handle.
type Handle uintptr

// Ptr addresses a block inside engine memory, such as foreign object storage.
type Ptr uintptr

// ForeignMethodFn is invoked by the engine for a bound foreign method.
// Arguments and the receiver are in slots; the result goes into slot 0.
type ForeignMethodFn func(vm VM)

// FinalizerFn is invoked by the engine when a foreign object is freed.
// data points at the object's foreign storage.
type FinalizerFn func(data Ptr)

// ReallocateFn allocates (ptr == 0), resizes, or frees (newSize == 0)
// engine-side memory.
type ReallocateFn func(ptr Ptr, newSize uintptr) Ptr

// ForeignClassMethods is the allocate/finalize pair bound to a foreign class.
type ForeignClassMethods struct {
	Allocate ForeignMethodFn
	Finalize FinalizerFn
}

// LoadModuleResult is returned by a module loader. OnComplete, if set, runs
// after the engine is done with Source.
type LoadModuleResult struct {
	OnComplete func(vm VM, name string)
	Source     string
}

// Callbacks are the native-to-host entry points installed at VM creation.
// A nil field means the engine uses its default behaviour.
type Callbacks struct {
	Write             func(vm VM, text string)
	Error             func(vm VM, kind ErrorType, module string, line int, message string)
	ResolveModule     func(vm VM, importer, name string) (string, bool)
	LoadModule        func(vm VM, name string) (LoadModuleResult, bool)
	BindForeignMethod func(vm VM, module, className string, isStatic bool, signature string) ForeignMethodFn
	BindForeignClass  func(vm VM, module, className string) ForeignClassMethods
}

// Config is the struct handed to Engine.NewVM. Engines copy what they need;
// changes after NewVM returns have no effect.
type Config struct {
	Callbacks         Callbacks
	Reallocate        ReallocateFn
	InitialHeapSize   uint64
	MinHeapSize       uint64
	HeapGrowthPercent int
}

// Memory is the engine's view of native memory used for foreign storage.
type Memory interface {
	Read(ptr Ptr, length uint32) ([]byte, error)
	Write(ptr Ptr, data []byte) error
	ReadU32(ptr Ptr) (uint32, error)
	ReadU64(ptr Ptr) (uint64, error)
	WriteU32(ptr Ptr, value uint32) error
	WriteU64(ptr Ptr, value uint64) error
}

// Engine is the native Wren embedding API. Every call for one VM must come
// from a single goroutine; callbacks run synchronously on that goroutine
// before the triggering call returns.
type Engine interface {
	NewVM(cfg *Config) (VM, error)
	FreeVM(vm VM)
	Version() int

	Interpret(vm VM, module, source string) InterpretResult
	CollectGarbage(vm VM)

	EnsureSlots(vm VM, count int)
	SlotCount(vm VM) int
	SlotType(vm VM, slot int) SlotType

	SetSlotNull(vm VM, slot int)
	SetSlotBool(vm VM, slot int, value bool)
	SetSlotDouble(vm VM, slot int, value float64)
	SetSlotString(vm VM, slot int, text string)
	SetSlotBytes(vm VM, slot int, data []byte)
	SetSlotHandle(vm VM, slot int, handle Handle)

	SlotBool(vm VM, slot int) bool
	SlotDouble(vm VM, slot int) float64
	SlotString(vm VM, slot int) string
	SlotBytes(vm VM, slot int) []byte
	SlotHandle(vm VM, slot int) Handle

	SetSlotNewForeign(vm VM, slot, classSlot int, size uintptr) Ptr
	SlotForeign(vm VM, slot int) Ptr

	SetSlotNewList(vm VM, slot int)
	ListCount(vm VM, slot int) int
	ListElement(vm VM, listSlot, index, elementSlot int)
	SetListElement(vm VM, listSlot, index, elementSlot int)
	InsertInList(vm VM, listSlot, index, elementSlot int)

	SetSlotNewMap(vm VM, slot int)
	MapCount(vm VM, slot int) int
	MapContainsKey(vm VM, mapSlot, keySlot int) bool
	MapValue(vm VM, mapSlot, keySlot, valueSlot int)
	SetMapValue(vm VM, mapSlot, keySlot, valueSlot int)
	RemoveMapValue(vm VM, mapSlot, keySlot, removedValueSlot int)

	MakeCallHandle(vm VM, signature string) Handle
	Call(vm VM, method Handle) InterpretResult
	ReleaseHandle(vm VM, handle Handle)

	Variable(vm VM, module, name string, slot int)
	HasVariable(vm VM, module, name string) bool
	HasModule(vm VM, module string) bool

	AbortFiber(vm VM, slot int)

	Memory(vm VM) Memory
}
