package automap

import (
	"fmt"
	"math"
	"reflect"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/runtime"
)

// Slot reads slot as a T. See SlotValue for the conversions.
func Slot[T any](vm *runtime.VM, slot int) (T, error) {
	var zero T
	v, err := SlotValue(vm, slot, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	out, _ := v.Interface().(T)
	return out, nil
}

// SlotValue reads slot and converts it to t.
//
// Numbers convert to any numeric kind; integer targets reject fractions
// and values out of range. Strings convert to string or []byte, lists to
// slices, foreign objects to the pointer they were created from. Null
// converts to the zero value of pointers, interfaces, slices and maps.
// An interface target receives bool, float64, string, []any, the foreign
// object, or a *runtime.Handle for maps and script objects.
func SlotValue(vm *runtime.VM, slot int, t reflect.Type) (reflect.Value, error) {
	if t == handleType {
		return reflect.ValueOf(vm.SlotHandle(slot)), nil
	}
	if t.Kind() == reflect.Interface {
		nat, err := natural(vm, slot)
		if err != nil {
			return reflect.Value{}, err
		}
		if nat == nil {
			return reflect.Zero(t), nil
		}
		v := reflect.ValueOf(nat)
		if !v.Type().Implements(t) {
			return reflect.Value{}, mismatch(slot, t, v.Type().String())
		}
		out := reflect.New(t).Elem()
		out.Set(v)
		return out, nil
	}

	st := vm.SlotType(slot)
	if st == wrenruntime.TypeNull {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Map:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, mismatch(slot, t, st.String())
	}

	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Bool:
		b, err := vm.SlotBool(slot)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		d, err := integral(vm, slot, t)
		if err != nil {
			return reflect.Value{}, err
		}
		if d < math.MinInt64 || d >= math.MaxInt64 || out.OverflowInt(int64(d)) {
			return reflect.Value{}, errors.Overflow(errors.PhaseSlot, []string{slotPath(slot)}, d, t.String())
		}
		out.SetInt(int64(d))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		d, err := integral(vm, slot, t)
		if err != nil {
			return reflect.Value{}, err
		}
		if d < 0 || d >= math.MaxUint64 || out.OverflowUint(uint64(d)) {
			return reflect.Value{}, errors.Overflow(errors.PhaseSlot, []string{slotPath(slot)}, d, t.String())
		}
		out.SetUint(uint64(d))

	case reflect.Float32, reflect.Float64:
		d, err := vm.SlotDouble(slot)
		if err != nil {
			return reflect.Value{}, err
		}
		if t.Kind() == reflect.Float32 && !math.IsInf(d, 0) && !math.IsNaN(d) && out.OverflowFloat(d) {
			return reflect.Value{}, errors.Overflow(errors.PhaseSlot, []string{slotPath(slot)}, d, t.String())
		}
		out.SetFloat(d)

	case reflect.String:
		s, err := vm.SlotString(slot)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetString(s)

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 && st == wrenruntime.TypeString {
			data, err := vm.SlotBytes(slot)
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetBytes(data)
			return out, nil
		}
		return list(vm, slot, t)

	case reflect.Pointer:
		obj, err := vm.SlotForeign(slot)
		if err != nil {
			return reflect.Value{}, err
		}
		v := reflect.ValueOf(obj)
		if !v.IsValid() || v.Type() != t {
			return reflect.Value{}, mismatch(slot, t, fmt.Sprintf("%T", obj))
		}
		return v, nil

	default:
		return reflect.Value{}, errors.New(errors.PhaseSlot, errors.KindUnsupported).
			Path(slotPath(slot)).
			GoType(t.String()).
			WrenType(st.String()).
			Detail("no conversion from a slot").
			Build()
	}
	return out, nil
}

func integral(vm *runtime.VM, slot int, t reflect.Type) (float64, error) {
	d, err := vm.SlotDouble(slot)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, errors.Overflow(errors.PhaseSlot, []string{slotPath(slot)}, d, t.String())
	}
	if d != math.Trunc(d) {
		return 0, errors.New(errors.PhaseSlot, errors.KindTypeMismatch).
			Path(slotPath(slot)).
			GoType(t.String()).
			WrenType("Number").
			Value(d).
			Detail("%v is not an integer", d).
			Build()
	}
	return d, nil
}

// list reads the list in slot into a slice of type t, using a scratch
// slot past the current slot count.
func list(vm *runtime.VM, slot int, t reflect.Type) (reflect.Value, error) {
	n, err := vm.ListCount(slot)
	if err != nil {
		return reflect.Value{}, err
	}
	scratch := vm.SlotCount()
	vm.EnsureSlots(scratch + 1)

	out := reflect.MakeSlice(t, n, n)
	for i := 0; i < n; i++ {
		if err := vm.ListElement(slot, i, scratch); err != nil {
			return reflect.Value{}, err
		}
		v, err := SlotValue(vm, scratch, t.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("list element %d: %w", i, err)
		}
		out.Index(i).Set(v)
	}
	return out, nil
}

var anySlice = reflect.TypeFor[[]any]()

func natural(vm *runtime.VM, slot int) (any, error) {
	switch st := vm.SlotType(slot); st {
	case wrenruntime.TypeBool:
		return vm.SlotBool(slot)
	case wrenruntime.TypeNumber:
		return vm.SlotDouble(slot)
	case wrenruntime.TypeString:
		return vm.SlotString(slot)
	case wrenruntime.TypeNull:
		return nil, nil
	case wrenruntime.TypeForeign:
		return vm.SlotForeign(slot)
	case wrenruntime.TypeList:
		v, err := list(vm, slot, anySlice)
		if err != nil {
			return nil, err
		}
		return v.Interface(), nil
	default:
		return vm.SlotHandle(slot), nil
	}
}

// SetSlotValue writes v to slot.
//
// Numeric kinds become numbers, strings and []byte become strings with
// their full length, slices and arrays become lists, maps become maps,
// *runtime.Handle stores the held value. A pointer to a type mapped on the
// VM becomes a new foreign instance of its class. nil becomes null.
func SetSlotValue(vm *runtime.VM, slot int, v any) error {
	switch x := v.(type) {
	case nil:
		vm.SetSlotNull(slot)
		return nil
	case *runtime.Handle:
		if x == nil {
			vm.SetSlotNull(slot)
			return nil
		}
		return vm.SetSlotHandle(slot, x)
	case []byte:
		if x == nil {
			vm.SetSlotNull(slot)
			return nil
		}
		vm.SetSlotBytes(slot, x)
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		vm.SetSlotBool(slot, rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		vm.SetSlotDouble(slot, float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		vm.SetSlotDouble(slot, float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		vm.SetSlotDouble(slot, rv.Float())
	case reflect.String:
		vm.SetSlotBytes(slot, []byte(rv.String()))
	case reflect.Slice:
		if rv.IsNil() {
			vm.SetSlotNull(slot)
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			vm.SetSlotBytes(slot, rv.Bytes())
			return nil
		}
		return setList(vm, slot, rv)
	case reflect.Array:
		return setList(vm, slot, rv)
	case reflect.Map:
		if rv.IsNil() {
			vm.SetSlotNull(slot)
			return nil
		}
		return setMap(vm, slot, rv)
	case reflect.Pointer:
		if rv.IsNil() {
			vm.SetSlotNull(slot)
			return nil
		}
		return setForeign(vm, slot, v, rv.Type())
	default:
		return errors.New(errors.PhaseSlot, errors.KindUnsupported).
			Path(slotPath(slot)).
			GoType(rv.Type().String()).
			Detail("no conversion to a slot").
			Build()
	}
	return nil
}

func setList(vm *runtime.VM, slot int, rv reflect.Value) error {
	scratch := vm.SlotCount()
	vm.EnsureSlots(scratch + 1)
	vm.SetSlotNewList(scratch)
	elem := scratch + 1
	vm.EnsureSlots(elem + 1)

	for i := 0; i < rv.Len(); i++ {
		if err := SetSlotValue(vm, elem, rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("list element %d: %w", i, err)
		}
		if err := vm.InsertInList(scratch, -1, elem); err != nil {
			return err
		}
	}
	return moveSlot(vm, scratch, slot)
}

func setMap(vm *runtime.VM, slot int, rv reflect.Value) error {
	scratch := vm.SlotCount()
	vm.EnsureSlots(scratch + 3)
	vm.SetSlotNewMap(scratch)
	key, val := scratch+1, scratch+2

	iter := rv.MapRange()
	for iter.Next() {
		if err := SetSlotValue(vm, key, iter.Key().Interface()); err != nil {
			return fmt.Errorf("map key: %w", err)
		}
		if err := SetSlotValue(vm, val, iter.Value().Interface()); err != nil {
			return fmt.Errorf("map value: %w", err)
		}
		if err := vm.SetMapValue(scratch, key, val); err != nil {
			return err
		}
	}
	return moveSlot(vm, scratch, slot)
}

// moveSlot copies the value in from to to. Lists and maps are built in a
// scratch slot so that nested conversions never clobber the target.
func moveSlot(vm *runtime.VM, from, to int) error {
	if from == to {
		return nil
	}
	h := vm.SlotHandle(from)
	defer h.Release()
	return vm.SetSlotHandle(to, h)
}

func setForeign(vm *runtime.VM, slot int, obj any, t reflect.Type) error {
	m := mapperOf(vm)
	if m == nil {
		return unmapped(slot, t)
	}
	ref, ok := m.classOf(t)
	if !ok {
		return unmapped(slot, t)
	}
	classSlot := vm.SlotCount()
	vm.EnsureSlots(classSlot + 1)
	if err := vm.Variable(ref.module, ref.name, classSlot); err != nil {
		return err
	}
	_, err := vm.SetSlotNewForeign(slot, classSlot, obj)
	return err
}

func unmapped(slot int, t reflect.Type) error {
	return errors.New(errors.PhaseSlot, errors.KindUnsupported).
		Path(slotPath(slot)).
		GoType(t.String()).
		Detail("type is not mapped to a foreign class on this VM").
		Build()
}

func mismatch(slot int, t reflect.Type, got string) error {
	return errors.TypeMismatch(errors.PhaseSlot, []string{slotPath(slot)}, t.String(), got)
}

func slotPath(slot int) string {
	return fmt.Sprintf("slot%d", slot)
}
