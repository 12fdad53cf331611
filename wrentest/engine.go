package wrentest

import (
	"fmt"
	"strings"
	"sync"

	wrenruntime "github.com/wippyai/wren-runtime"
)

// Version is the engine version number reported by Version.
const Version = 4000

// Stats counts what one VM currently holds.
type Stats struct {
	Modules        int
	Handles        int
	ForeignObjects int
	HeapBytes      uintptr
	Collections    int
	Finalized      int
}

type handleRec struct {
	value     value
	signature string
	call      bool
}

type machine struct {
	cb         wrenruntime.Callbacks
	abortVal   value
	cfg        wrenruntime.Config
	heap       *heap
	modules    map[string]*moduleObj
	handles    map[wrenruntime.Handle]*handleRec
	foreigns   map[wrenruntime.Ptr]*foreignObj
	slots      []value
	saved      [][]value
	frames     []frame
	stats      Stats
	ptr        wrenruntime.VM
	nextHandle wrenruntime.Handle
	depth      int
	aborted    bool
	gcPending  bool
}

// Engine is an in-process wrenruntime.Engine for a subset of Wren: modules
// and imports, classes (script, foreign, static, constructors, getters,
// setters, subscripts, operators), fields, closures, control flow, and the
// core classes System, Fn, Fiber.abort, Num, String, List, Map and Range.
//
// API misuse that the native engine would treat as undefined behavior,
// such as reading a number from a string slot, panics.
type Engine struct {
	vms  map[wrenruntime.VM]*machine
	next wrenruntime.VM
	mu   sync.Mutex
}

// New creates an engine.
func New() *Engine {
	return &Engine{vms: make(map[wrenruntime.VM]*machine), next: 0x10000}
}

var _ wrenruntime.Engine = (*Engine)(nil)

func (e *Engine) machine(vm wrenruntime.VM) *machine {
	e.mu.Lock()
	m, ok := e.vms[vm]
	e.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("wrentest: unknown VM %#x", uintptr(vm)))
	}
	return m
}

func (e *Engine) NewVM(cfg *wrenruntime.Config) (wrenruntime.VM, error) {
	var c wrenruntime.Config
	if cfg != nil {
		c = *cfg
	}

	e.mu.Lock()
	e.next += 0x100
	ptr := e.next
	m := &machine{
		ptr:      ptr,
		cfg:      c,
		cb:       c.Callbacks,
		heap:     newHeap(c.Reallocate),
		modules:  make(map[string]*moduleObj),
		handles:  make(map[wrenruntime.Handle]*handleRec),
		foreigns: make(map[wrenruntime.Ptr]*foreignObj),
	}
	e.vms[ptr] = m
	e.mu.Unlock()
	return ptr, nil
}

// FreeVM finalizes every remaining foreign object and forgets the VM.
func (e *Engine) FreeVM(vm wrenruntime.VM) {
	m := e.machine(vm)
	ptrs := make([]wrenruntime.Ptr, 0, len(m.foreigns))
	for ptr := range m.foreigns {
		ptrs = append(ptrs, ptr)
	}
	m.finalize(ptrs)

	e.mu.Lock()
	delete(e.vms, vm)
	e.mu.Unlock()
}

func (e *Engine) Version() int { return Version }

// Live reports whether vm has not been freed.
func (e *Engine) Live(vm wrenruntime.VM) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.vms[vm]
	return ok
}

// Len returns the number of live VMs.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.vms)
}

// Stats returns counters for vm.
func (e *Engine) Stats(vm wrenruntime.VM) Stats {
	m := e.machine(vm)
	s := m.stats
	s.Modules = len(m.modules)
	s.Handles = len(m.handles)
	s.ForeignObjects = len(m.foreigns)
	s.HeapBytes = m.heap.bytes
	return s
}

// Config returns the configuration vm was created with.
func (e *Engine) Config(vm wrenruntime.VM) wrenruntime.Config {
	return e.machine(vm).cfg
}

func (m *machine) module(name string) *moduleObj {
	mod, ok := m.modules[name]
	if !ok {
		mod = &moduleObj{name: name, vars: make(map[string]value)}
		m.modules[name] = mod
	}
	return mod
}

func (m *machine) write(text string) {
	if m.cb.Write != nil {
		m.cb.Write(m.ptr, text)
	}
}

func (m *machine) reportCompile(module string, err *compileError) {
	if m.cb.Error != nil {
		m.cb.Error(m.ptr, wrenruntime.ErrorCompile, module, err.line, err.msg)
	}
}

func (m *machine) reportRuntime(err *runtimeError) {
	if m.cb.Error == nil {
		return
	}
	m.cb.Error(m.ptr, wrenruntime.ErrorRuntime, "", -1, err.msg)
	for _, f := range err.trace {
		m.cb.Error(m.ptr, wrenruntime.ErrorStackTrace, f.module, f.line, f.fn)
	}
}

// enter marks script code as running; the returned func runs a deferred
// collection once the outermost entry leaves.
func (m *machine) enter() func() {
	m.depth++
	return func() {
		m.depth--
		if m.depth == 0 && m.gcPending {
			m.collect()
		}
	}
}

func (e *Engine) Interpret(vm wrenruntime.VM, module, source string) wrenruntime.InterpretResult {
	m := e.machine(vm)
	prog, err := parse(source)
	if err != nil {
		m.reportCompile(module, err.(*compileError))
		return wrenruntime.ResultCompileError
	}

	leave := m.enter()
	defer leave()

	savedFrames := m.frames
	m.frames = nil
	err = m.runModule(m.module(module), prog)
	m.frames = savedFrames
	if err != nil {
		m.reportRuntime(err.(*runtimeError))
		return wrenruntime.ResultRuntimeError
	}
	return wrenruntime.ResultSuccess
}

func (e *Engine) CollectGarbage(vm wrenruntime.VM) {
	e.machine(vm).requestCollection()
}

func (m *machine) slot(i int) value {
	if i < 0 || i >= len(m.slots) {
		panic(fmt.Sprintf("wrentest: slot %d out of range (count %d)", i, len(m.slots)))
	}
	return m.slots[i]
}

func (m *machine) setSlot(i int, v value) {
	m.slot(i)
	m.slots[i] = v
}

func (e *Engine) EnsureSlots(vm wrenruntime.VM, count int) {
	m := e.machine(vm)
	for len(m.slots) < count {
		m.slots = append(m.slots, nil)
	}
}

func (e *Engine) SlotCount(vm wrenruntime.VM) int {
	return len(e.machine(vm).slots)
}

func (e *Engine) SlotType(vm wrenruntime.VM, slot int) wrenruntime.SlotType {
	return slotType(e.machine(vm).slot(slot))
}

func (e *Engine) SetSlotNull(vm wrenruntime.VM, slot int) {
	e.machine(vm).setSlot(slot, nil)
}

func (e *Engine) SetSlotBool(vm wrenruntime.VM, slot int, v bool) {
	e.machine(vm).setSlot(slot, v)
}

func (e *Engine) SetSlotDouble(vm wrenruntime.VM, slot int, v float64) {
	e.machine(vm).setSlot(slot, v)
}

// SetSlotString stores text up to its first NUL byte.
func (e *Engine) SetSlotString(vm wrenruntime.VM, slot int, text string) {
	if i := strings.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	e.machine(vm).setSlot(slot, text)
}

func (e *Engine) SetSlotBytes(vm wrenruntime.VM, slot int, data []byte) {
	e.machine(vm).setSlot(slot, string(data))
}

func (e *Engine) SetSlotHandle(vm wrenruntime.VM, slot int, h wrenruntime.Handle) {
	m := e.machine(vm)
	rec, ok := m.handles[h]
	if !ok || rec.call {
		panic(fmt.Sprintf("wrentest: %#x is not a value handle", uintptr(h)))
	}
	m.setSlot(slot, rec.value)
}

func typed[T any](m *machine, slot int, want string) T {
	v, ok := m.slot(slot).(T)
	if !ok {
		panic(fmt.Sprintf("wrentest: slot %d holds %s, not %s", slot, slotType(m.slots[slot]), want))
	}
	return v
}

func (e *Engine) SlotBool(vm wrenruntime.VM, slot int) bool {
	return typed[bool](e.machine(vm), slot, "Bool")
}

func (e *Engine) SlotDouble(vm wrenruntime.VM, slot int) float64 {
	return typed[float64](e.machine(vm), slot, "Number")
}

// SlotString returns the slot's text up to its first NUL byte.
func (e *Engine) SlotString(vm wrenruntime.VM, slot int) string {
	s := typed[string](e.machine(vm), slot, "String")
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s
}

func (e *Engine) SlotBytes(vm wrenruntime.VM, slot int) []byte {
	return []byte(typed[string](e.machine(vm), slot, "String"))
}

func (e *Engine) SlotHandle(vm wrenruntime.VM, slot int) wrenruntime.Handle {
	m := e.machine(vm)
	return m.newHandle(&handleRec{value: m.slot(slot)})
}

func (m *machine) newHandle(rec *handleRec) wrenruntime.Handle {
	m.nextHandle += 0x10
	h := 0x100000 + m.nextHandle
	m.handles[h] = rec
	return h
}

// SetSlotNewForeign returns 0 when the class slot does not hold a foreign
// class or storage cannot be allocated.
func (e *Engine) SetSlotNewForeign(vm wrenruntime.VM, slot, classSlot int, size uintptr) wrenruntime.Ptr {
	m := e.machine(vm)
	m.slot(slot)
	c, ok := m.slot(classSlot).(*classObj)
	if !ok || !c.foreign {
		return 0
	}
	ptr := m.heap.alloc(size)
	if ptr == 0 {
		return 0
	}
	obj := &foreignObj{class: c, ptr: ptr, size: size}
	m.foreigns[ptr] = obj
	m.slots[slot] = obj
	return ptr
}

func (e *Engine) SlotForeign(vm wrenruntime.VM, slot int) wrenruntime.Ptr {
	return typed[*foreignObj](e.machine(vm), slot, "Foreign").ptr
}

func (e *Engine) SetSlotNewList(vm wrenruntime.VM, slot int) {
	e.machine(vm).setSlot(slot, &listObj{})
}

func (e *Engine) ListCount(vm wrenruntime.VM, slot int) int {
	return len(typed[*listObj](e.machine(vm), slot, "List").elems)
}

func listAt(l *listObj, index int) int {
	if index < 0 {
		index += len(l.elems)
	}
	if index < 0 || index >= len(l.elems) {
		panic(fmt.Sprintf("wrentest: list index %d out of range (count %d)", index, len(l.elems)))
	}
	return index
}

func (e *Engine) ListElement(vm wrenruntime.VM, listSlot, index, elementSlot int) {
	m := e.machine(vm)
	l := typed[*listObj](m, listSlot, "List")
	m.setSlot(elementSlot, l.elems[listAt(l, index)])
}

func (e *Engine) SetListElement(vm wrenruntime.VM, listSlot, index, elementSlot int) {
	m := e.machine(vm)
	l := typed[*listObj](m, listSlot, "List")
	l.elems[listAt(l, index)] = m.slot(elementSlot)
}

// InsertInList counts negative indexes from the end, so -1 appends.
func (e *Engine) InsertInList(vm wrenruntime.VM, listSlot, index, elementSlot int) {
	m := e.machine(vm)
	l := typed[*listObj](m, listSlot, "List")
	if index < 0 {
		index += len(l.elems) + 1
	}
	if index < 0 || index > len(l.elems) {
		panic(fmt.Sprintf("wrentest: insert index %d out of range (count %d)", index, len(l.elems)))
	}
	l.elems = append(l.elems, nil)
	copy(l.elems[index+1:], l.elems[index:])
	l.elems[index] = m.slot(elementSlot)
}

func (e *Engine) SetSlotNewMap(vm wrenruntime.VM, slot int) {
	e.machine(vm).setSlot(slot, newMap())
}

func (e *Engine) MapCount(vm wrenruntime.VM, slot int) int {
	return len(typed[*mapObj](e.machine(vm), slot, "Map").order)
}

func (m *machine) key(slot int) value {
	k := m.slot(slot)
	if !validKey(k) {
		panic(fmt.Sprintf("wrentest: slot %d holds %s, which is not a valid map key", slot, slotType(k)))
	}
	return k
}

func (e *Engine) MapContainsKey(vm wrenruntime.VM, mapSlot, keySlot int) bool {
	m := e.machine(vm)
	_, ok := typed[*mapObj](m, mapSlot, "Map").get(m.key(keySlot))
	return ok
}

func (e *Engine) MapValue(vm wrenruntime.VM, mapSlot, keySlot, valueSlot int) {
	m := e.machine(vm)
	v, _ := typed[*mapObj](m, mapSlot, "Map").get(m.key(keySlot))
	m.setSlot(valueSlot, v)
}

func (e *Engine) SetMapValue(vm wrenruntime.VM, mapSlot, keySlot, valueSlot int) {
	m := e.machine(vm)
	typed[*mapObj](m, mapSlot, "Map").set(m.key(keySlot), m.slot(valueSlot))
}

func (e *Engine) RemoveMapValue(vm wrenruntime.VM, mapSlot, keySlot, removedValueSlot int) {
	m := e.machine(vm)
	v, _ := typed[*mapObj](m, mapSlot, "Map").remove(m.key(keySlot))
	m.setSlot(removedValueSlot, v)
}

// MakeCallHandle returns 0 for a malformed signature.
func (e *Engine) MakeCallHandle(vm wrenruntime.VM, sig string) wrenruntime.Handle {
	m := e.machine(vm)
	if _, ok := arity(sig); !ok {
		return 0
	}
	return m.newHandle(&handleRec{signature: sig, call: true})
}

// arity counts the arguments a signature takes.
func arity(sig string) (int, bool) {
	if sig == "" {
		return 0, false
	}
	open := strings.IndexAny(sig, "([")
	if open < 0 {
		return 0, true
	}
	if open == 0 && sig[0] == '(' {
		return 0, false
	}
	n := strings.Count(sig, "_") - strings.Count(sig[:open], "_")
	if sig[len(sig)-1] != ')' && sig[len(sig)-1] != ']' {
		return 0, false
	}
	return n, true
}

func (e *Engine) Call(vm wrenruntime.VM, h wrenruntime.Handle) wrenruntime.InterpretResult {
	m := e.machine(vm)
	rec, ok := m.handles[h]
	if !ok || !rec.call {
		panic(fmt.Sprintf("wrentest: %#x is not a call handle", uintptr(h)))
	}
	n, _ := arity(rec.signature)
	if len(m.slots) < n+1 {
		panic(fmt.Sprintf("wrentest: call %s needs %d slots, have %d", rec.signature, n+1, len(m.slots)))
	}
	args := append([]value(nil), m.slots[1:n+1]...)

	leave := m.enter()
	defer leave()

	result, err := m.invoke(m.slots[0], rec.signature, args)
	if err != nil {
		m.reportRuntime(err.(*runtimeError))
		return wrenruntime.ResultRuntimeError
	}
	m.slots[0] = result
	return wrenruntime.ResultSuccess
}

func (e *Engine) ReleaseHandle(vm wrenruntime.VM, h wrenruntime.Handle) {
	m := e.machine(vm)
	if _, ok := m.handles[h]; !ok {
		panic(fmt.Sprintf("wrentest: release of unknown handle %#x", uintptr(h)))
	}
	delete(m.handles, h)
}

func (e *Engine) Variable(vm wrenruntime.VM, module, name string, slot int) {
	m := e.machine(vm)
	mod, ok := m.modules[module]
	if !ok {
		panic(fmt.Sprintf("wrentest: module %q is not loaded", module))
	}
	v, ok := mod.vars[name]
	if !ok {
		panic(fmt.Sprintf("wrentest: module %q has no variable %q", module, name))
	}
	m.setSlot(slot, v)
}

func (e *Engine) HasVariable(vm wrenruntime.VM, module, name string) bool {
	mod, ok := e.machine(vm).modules[module]
	if !ok {
		return false
	}
	_, ok = mod.vars[name]
	return ok
}

func (e *Engine) HasModule(vm wrenruntime.VM, module string) bool {
	_, ok := e.machine(vm).modules[module]
	return ok
}

func (e *Engine) AbortFiber(vm wrenruntime.VM, slot int) {
	m := e.machine(vm)
	m.aborted = true
	m.abortVal = m.slot(slot)
}

func (e *Engine) Memory(vm wrenruntime.VM) wrenruntime.Memory {
	return e.machine(vm).heap
}
