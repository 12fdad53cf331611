package runtime

import (
	"bytes"
	"strconv"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/foreign"
)

// EnsureSlots grows the slot array to at least count slots. Slots must be
// ensured before they are read or written.
func (vm *VM) EnsureSlots(count int) {
	c := vm.native()
	c.engine.EnsureSlots(c.ptr, count)
}

// SlotCount returns the number of available slots.
func (vm *VM) SlotCount() int {
	c := vm.native()
	return c.engine.SlotCount(c.ptr)
}

// SlotType returns the type of the value in slot.
func (vm *VM) SlotType(slot int) wrenruntime.SlotType {
	c := vm.native()
	return c.engine.SlotType(c.ptr, slot)
}

// SetSlotNull stores null in each of the given slots.
func (vm *VM) SetSlotNull(slots ...int) {
	c := vm.native()
	for _, slot := range slots {
		c.engine.SetSlotNull(c.ptr, slot)
	}
}

// SetSlotBool stores a bool in slot.
func (vm *VM) SetSlotBool(slot int, value bool) {
	c := vm.native()
	c.engine.SetSlotBool(c.ptr, slot, value)
}

// SetSlotDouble stores a number in slot.
func (vm *VM) SetSlotDouble(slot int, value float64) {
	c := vm.native()
	c.engine.SetSlotDouble(c.ptr, slot, value)
}

// SetSlotString stores text in slot. The string ends at the first NUL
// byte; use SetSlotBytes for binary data.
func (vm *VM) SetSlotString(slot int, text string) {
	c := vm.native()
	c.engine.SetSlotString(c.ptr, slot, text)
}

// SetSlotBytes stores data in slot as a string of exactly len(data) bytes.
func (vm *VM) SetSlotBytes(slot int, data []byte) {
	c := vm.native()
	c.engine.SetSlotBytes(c.ptr, slot, data)
}

// SlotBool reads a bool from slot.
func (vm *VM) SlotBool(slot int) (bool, error) {
	c, err := vm.expect(slot, wrenruntime.TypeBool, "bool")
	if err != nil {
		return false, err
	}
	return c.engine.SlotBool(c.ptr, slot), nil
}

// SlotDouble reads a number from slot.
func (vm *VM) SlotDouble(slot int) (float64, error) {
	c, err := vm.expect(slot, wrenruntime.TypeNumber, "float64")
	if err != nil {
		return 0, err
	}
	return c.engine.SlotDouble(c.ptr, slot), nil
}

// SlotString reads a string from slot, up to its first NUL byte.
func (vm *VM) SlotString(slot int) (string, error) {
	data, err := vm.SlotBytes(slot)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data), nil
}

// SlotBytes reads the full contents of a string slot, NUL bytes included.
// The result is a copy owned by the caller.
func (vm *VM) SlotBytes(slot int) ([]byte, error) {
	c, err := vm.expect(slot, wrenruntime.TypeString, "[]byte")
	if err != nil {
		return nil, err
	}
	data := bytes.Clone(c.engine.SlotBytes(c.ptr, slot))
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// SetSlotNewForeign creates an instance of the foreign class in classSlot,
// backed by obj, and stores it in slot. It is called from a class
// allocator. The returned ID identifies obj in Objects().
func (vm *VM) SetSlotNewForeign(slot, classSlot int, obj any) (foreign.ID, error) {
	c := vm.native()
	id := c.objects.Allocate(obj)
	if id == 0 {
		return 0, errors.Closed(errors.PhaseForeign, "foreign object table")
	}
	ptr := c.engine.SetSlotNewForeign(c.ptr, slot, classSlot, foreign.StorageSize)
	if ptr == 0 {
		c.objects.Reclaim(id)
		return 0, errors.New(errors.PhaseForeign, errors.KindAllocation).
			Detail("engine returned no foreign storage").
			Build()
	}
	if err := foreign.Store(c.memory, ptr, id); err != nil {
		c.objects.Reclaim(id)
		return 0, err
	}
	return id, nil
}

// SlotForeign returns the host object behind the foreign instance in slot.
func (vm *VM) SlotForeign(slot int) (any, error) {
	id, err := vm.SlotForeignID(slot)
	if err != nil {
		return nil, err
	}
	return vm.core.objects.Resolve(id)
}

// SlotForeignID returns the table ID carried by the foreign instance in slot.
func (vm *VM) SlotForeignID(slot int) (foreign.ID, error) {
	c, err := vm.expect(slot, wrenruntime.TypeForeign, "foreign")
	if err != nil {
		return 0, err
	}
	return foreign.Load(c.memory, c.engine.SlotForeign(c.ptr, slot))
}

// SetSlotNewList stores a new empty list in slot.
func (vm *VM) SetSlotNewList(slot int) {
	c := vm.native()
	c.engine.SetSlotNewList(c.ptr, slot)
}

// ListCount returns the number of elements in the list in slot.
func (vm *VM) ListCount(slot int) (int, error) {
	c, err := vm.expect(slot, wrenruntime.TypeList, "list")
	if err != nil {
		return 0, err
	}
	return c.engine.ListCount(c.ptr, slot), nil
}

// ListElement copies element index of the list in listSlot into
// elementSlot. Negative indices count from the end.
func (vm *VM) ListElement(listSlot, index, elementSlot int) error {
	c, err := vm.listIndex(listSlot, index, 0)
	if err != nil {
		return err
	}
	c.engine.ListElement(c.ptr, listSlot, index, elementSlot)
	return nil
}

// SetListElement stores the value in elementSlot at index of the list in
// listSlot. Negative indices count from the end.
func (vm *VM) SetListElement(listSlot, index, elementSlot int) error {
	c, err := vm.listIndex(listSlot, index, 0)
	if err != nil {
		return err
	}
	c.engine.SetListElement(c.ptr, listSlot, index, elementSlot)
	return nil
}

// InsertInList inserts the value in elementSlot before index of the list in
// listSlot. An index of -1 appends.
func (vm *VM) InsertInList(listSlot, index, elementSlot int) error {
	c, err := vm.listIndex(listSlot, index, 1)
	if err != nil {
		return err
	}
	c.engine.InsertInList(c.ptr, listSlot, index, elementSlot)
	return nil
}

// listIndex checks index against the list in slot; extra widens the range
// for insertion, where index == count appends.
func (vm *VM) listIndex(slot, index, extra int) (*core, error) {
	c, err := vm.expect(slot, wrenruntime.TypeList, "list")
	if err != nil {
		return nil, err
	}
	count := c.engine.ListCount(c.ptr, slot)
	n := count + extra
	if index < -n || index >= n {
		return nil, errors.OutOfBounds(errors.PhaseSlot, []string{slotName(slot)}, index, count)
	}
	return c, nil
}

// SetSlotNewMap stores a new empty map in slot.
func (vm *VM) SetSlotNewMap(slot int) {
	c := vm.native()
	c.engine.SetSlotNewMap(c.ptr, slot)
}

// MapCount returns the number of entries in the map in slot.
func (vm *VM) MapCount(slot int) (int, error) {
	c, err := vm.expect(slot, wrenruntime.TypeMap, "map")
	if err != nil {
		return 0, err
	}
	return c.engine.MapCount(c.ptr, slot), nil
}

// MapContainsKey reports whether the map in mapSlot has the key in keySlot.
func (vm *VM) MapContainsKey(mapSlot, keySlot int) (bool, error) {
	c, err := vm.expect(mapSlot, wrenruntime.TypeMap, "map")
	if err != nil {
		return false, err
	}
	return c.engine.MapContainsKey(c.ptr, mapSlot, keySlot), nil
}

// MapValue copies the value for the key in keySlot into valueSlot. A
// missing key yields null.
func (vm *VM) MapValue(mapSlot, keySlot, valueSlot int) error {
	c, err := vm.expect(mapSlot, wrenruntime.TypeMap, "map")
	if err != nil {
		return err
	}
	c.engine.MapValue(c.ptr, mapSlot, keySlot, valueSlot)
	return nil
}

// SetMapValue stores the value in valueSlot under the key in keySlot.
func (vm *VM) SetMapValue(mapSlot, keySlot, valueSlot int) error {
	c, err := vm.expect(mapSlot, wrenruntime.TypeMap, "map")
	if err != nil {
		return err
	}
	c.engine.SetMapValue(c.ptr, mapSlot, keySlot, valueSlot)
	return nil
}

// RemoveMapValue removes the key in keySlot and stores the removed value,
// or null, in removedValueSlot.
func (vm *VM) RemoveMapValue(mapSlot, keySlot, removedValueSlot int) error {
	c, err := vm.expect(mapSlot, wrenruntime.TypeMap, "map")
	if err != nil {
		return err
	}
	c.engine.RemoveMapValue(c.ptr, mapSlot, keySlot, removedValueSlot)
	return nil
}

// Variable loads the top-level variable name of module into slot.
func (vm *VM) Variable(module, name string, slot int) error {
	c := vm.native()
	if !c.engine.HasModule(c.ptr, module) {
		return errors.NotFound(errors.PhaseSlot, "module", module)
	}
	if !c.engine.HasVariable(c.ptr, module, name) {
		return errors.New(errors.PhaseSlot, errors.KindNotFound).
			Path(module, name).
			Detail("variable %q not found in module %q", name, module).
			Build()
	}
	c.engine.Variable(c.ptr, module, name, slot)
	return nil
}

// HasVariable reports whether module defines a top-level variable name.
func (vm *VM) HasVariable(module, name string) bool {
	c := vm.native()
	return c.engine.HasModule(c.ptr, module) && c.engine.HasVariable(c.ptr, module, name)
}

// HasModule reports whether module has been loaded.
func (vm *VM) HasModule(module string) bool {
	c := vm.native()
	return c.engine.HasModule(c.ptr, module)
}

// AbortFiber aborts the running fiber with the value in slot as its error.
// It takes effect when the current foreign method returns.
func (vm *VM) AbortFiber(slot int) {
	c := vm.native()
	c.engine.AbortFiber(c.ptr, slot)
}

// Abort aborts the running fiber with message.
func (vm *VM) Abort(message string) {
	vm.abortWith(message)
}

func (vm *VM) expect(slot int, want wrenruntime.SlotType, goType string) (*core, error) {
	c := vm.native()
	if count := c.engine.SlotCount(c.ptr); slot < 0 || slot >= count {
		return nil, errors.OutOfBounds(errors.PhaseSlot, []string{slotName(slot)}, slot, count)
	}
	if got := c.engine.SlotType(c.ptr, slot); got != want {
		return nil, errors.TypeMismatch(errors.PhaseSlot, []string{slotName(slot)}, goType, got.String())
	}
	return c, nil
}

func slotName(slot int) string {
	return "slot" + strconv.Itoa(slot)
}
