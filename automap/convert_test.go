package automap

import (
	"math"
	"reflect"
	"testing"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/runtime"
)

func TestSlot_Numbers(t *testing.T) {
	s := newSession(t)
	vm := s.vm
	vm.EnsureSlots(1)

	vm.SetSlotDouble(0, 42)
	if v, err := Slot[int](vm, 0); err != nil || v != 42 {
		t.Errorf("Slot[int] = %v, %v", v, err)
	}
	if v, err := Slot[uint8](vm, 0); err != nil || v != 42 {
		t.Errorf("Slot[uint8] = %v, %v", v, err)
	}
	if v, err := Slot[float32](vm, 0); err != nil || v != 42 {
		t.Errorf("Slot[float32] = %v, %v", v, err)
	}

	tests := []struct {
		name  string
		value float64
		read  func() error
		kind  errors.Kind
	}{
		{"fraction", 1.5, func() error { _, err := Slot[int](vm, 0); return err }, errors.KindTypeMismatch},
		{"int8 overflow", 300, func() error { _, err := Slot[int8](vm, 0); return err }, errors.KindOverflow},
		{"negative unsigned", -1, func() error { _, err := Slot[uint](vm, 0); return err }, errors.KindOverflow},
		{"nan", math.NaN(), func() error { _, err := Slot[int64](vm, 0); return err }, errors.KindOverflow},
		{"infinity", math.Inf(1), func() error { _, err := Slot[int](vm, 0); return err }, errors.KindOverflow},
		{"float32 overflow", 1e300, func() error { _, err := Slot[float32](vm, 0); return err }, errors.KindOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm.SetSlotDouble(0, tt.value)
			err := tt.read()
			var e *errors.Error
			if !errors.As(err, &e) || e.Kind != tt.kind {
				t.Errorf("error = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestSlot_Strings(t *testing.T) {
	s := newSession(t)
	vm := s.vm
	vm.EnsureSlots(1)

	data := []byte("a\x00b")
	vm.SetSlotBytes(0, data)

	got, err := Slot[[]byte](vm, 0)
	if err != nil || string(got) != string(data) {
		t.Errorf("Slot[[]byte] = %q, %v", got, err)
	}
	if str, err := Slot[string](vm, 0); err != nil || str != "a" {
		t.Errorf("Slot[string] = %q, %v, want \"a\"", str, err)
	}

	if err := SetSlotValue(vm, 0, "x\x00y"); err != nil {
		t.Fatalf("SetSlotValue: %v", err)
	}
	if b, _ := vm.SlotBytes(0); string(b) != "x\x00y" {
		t.Errorf("string lost bytes after NUL: %q", b)
	}

	if _, err := Slot[bool](vm, 0); !errors.Is(err, &errors.Error{Phase: errors.PhaseSlot, Kind: errors.KindTypeMismatch}) {
		t.Errorf("Slot[bool] of a string = %v, want type mismatch", err)
	}
}

func TestSlotValue_Lists(t *testing.T) {
	s := newSession(t)
	vm := s.vm
	vm.EnsureSlots(1)

	if err := SetSlotValue(vm, 0, []int{1, 2, 3}); err != nil {
		t.Fatalf("SetSlotValue: %v", err)
	}
	if vm.SlotType(0) != wrenruntime.TypeList {
		t.Fatalf("slot type = %v, want List", vm.SlotType(0))
	}
	ints, err := Slot[[]int](vm, 0)
	if err != nil || !reflect.DeepEqual(ints, []int{1, 2, 3}) {
		t.Errorf("Slot[[]int] = %v, %v", ints, err)
	}

	if err := SetSlotValue(vm, 0, [2][]string{{"a"}, {"b", "c"}}); err != nil {
		t.Fatalf("SetSlotValue nested: %v", err)
	}
	nested, err := Slot[[][]string](vm, 0)
	if err != nil || !reflect.DeepEqual(nested, [][]string{{"a"}, {"b", "c"}}) {
		t.Errorf("Slot[[][]string] = %v, %v", nested, err)
	}

	if err := SetSlotValue(vm, 0, []any{1, "a", true, nil}); err != nil {
		t.Fatalf("SetSlotValue mixed: %v", err)
	}
	mixed, err := Slot[any](vm, 0)
	if err != nil || !reflect.DeepEqual(mixed, []any{1.0, "a", true, nil}) {
		t.Errorf("Slot[any] = %#v, %v", mixed, err)
	}

	if err := SetSlotValue(vm, 0, []any{1, "a"}); err != nil {
		t.Fatalf("SetSlotValue: %v", err)
	}
	if _, err := Slot[[]float64](vm, 0); err == nil {
		t.Error("Slot[[]float64] of a mixed list should fail")
	}
}

func TestSlotValue_Maps(t *testing.T) {
	s := newSession(t)
	vm := s.vm
	vm.EnsureSlots(3)

	if err := SetSlotValue(vm, 0, map[string]int{"a": 1, "b": 2}); err != nil {
		t.Fatalf("SetSlotValue: %v", err)
	}
	if n, err := vm.MapCount(0); err != nil || n != 2 {
		t.Fatalf("MapCount = %d, %v", n, err)
	}
	vm.SetSlotString(1, "b")
	if err := vm.MapValue(0, 1, 2); err != nil {
		t.Fatalf("MapValue: %v", err)
	}
	if v, err := Slot[int](vm, 2); err != nil || v != 2 {
		t.Errorf("m[\"b\"] = %v, %v", v, err)
	}

	v, err := Slot[any](vm, 0)
	if err != nil {
		t.Fatalf("Slot[any]: %v", err)
	}
	h, ok := v.(*runtime.Handle)
	if !ok {
		t.Fatalf("Slot[any] of a map = %T, want *runtime.Handle", v)
	}
	h.Release()

	if _, err := Slot[map[string]int](vm, 0); !errors.Is(err, &errors.Error{Phase: errors.PhaseSlot, Kind: errors.KindUnsupported}) {
		t.Errorf("Slot[map] = %v, want unsupported", err)
	}
}

func TestSlotValue_Null(t *testing.T) {
	s := newSession(t)
	vm := s.vm
	vm.EnsureSlots(1)

	for _, v := range []any{nil, (*Vector)(nil), []int(nil), []byte(nil), (*runtime.Handle)(nil), map[string]int(nil)} {
		vm.SetSlotBool(0, true)
		if err := SetSlotValue(vm, 0, v); err != nil {
			t.Fatalf("SetSlotValue(%T): %v", v, err)
		}
		if vm.SlotType(0) != wrenruntime.TypeNull {
			t.Errorf("SetSlotValue(%T) slot type = %v, want Null", v, vm.SlotType(0))
		}
	}

	if p, err := Slot[*Vector](vm, 0); err != nil || p != nil {
		t.Errorf("Slot[*Vector] of null = %v, %v", p, err)
	}
	if a, err := Slot[any](vm, 0); err != nil || a != nil {
		t.Errorf("Slot[any] of null = %v, %v", a, err)
	}
	if _, err := Slot[int](vm, 0); err == nil {
		t.Error("Slot[int] of null should fail")
	}
}

func TestSlotValue_Handle(t *testing.T) {
	s := newSession(t)
	vm := s.vm
	vm.EnsureSlots(2)

	vm.SetSlotString(0, "kept")
	h, err := Slot[*runtime.Handle](vm, 0)
	if err != nil {
		t.Fatalf("Slot[*runtime.Handle]: %v", err)
	}
	defer h.Release()

	if err := SetSlotValue(vm, 1, h); err != nil {
		t.Fatalf("SetSlotValue(handle): %v", err)
	}
	if str, _ := vm.SlotString(1); str != "kept" {
		t.Errorf("slot 1 = %q, want \"kept\"", str)
	}
}

func TestSetSlotValue_Foreign(t *testing.T) {
	s := newSession(t)
	vm := s.vm
	vm.EnsureSlots(1)

	if err := SetSlotValue(vm, 0, &Vector{}); err == nil {
		t.Error("SetSlotValue of an unmapped pointer should fail")
	}
	if err := SetSlotValue(vm, 0, struct{}{}); err == nil {
		t.Error("SetSlotValue of a struct should fail")
	}

	if err := Map(vm, "main", vectorClass().Descriptor()); err != nil {
		t.Fatalf("Map: %v", err)
	}
	v := newVector(7, 8)
	vm.EnsureSlots(1)
	if err := SetSlotValue(vm, 0, v); err != nil {
		t.Fatalf("SetSlotValue(*Vector): %v", err)
	}
	if vm.SlotType(0) != wrenruntime.TypeForeign {
		t.Fatalf("slot type = %v, want Foreign", vm.SlotType(0))
	}
	got, err := Slot[*Vector](vm, 0)
	if err != nil || got != v {
		t.Errorf("Slot[*Vector] = %p, %v, want %p", got, err, v)
	}
	if _, err := Slot[*Greeter](vm, 0); err == nil {
		t.Error("Slot[*Greeter] of a Vector should fail")
	}
}
