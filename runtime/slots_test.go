package runtime

import (
	"math"
	"testing"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
)

func TestSlots_Bool(t *testing.T) {
	vm, _, _ := newTestVM(t, nil)
	vm.EnsureSlots(1)

	for _, want := range []bool{true, false} {
		vm.SetSlotBool(0, want)
		got, err := vm.SlotBool(0)
		if err != nil {
			t.Fatalf("SlotBool: %v", err)
		}
		if got != want {
			t.Errorf("SlotBool = %v, want %v", got, want)
		}
	}
}

func TestSlots_Double(t *testing.T) {
	vm, _, _ := newTestVM(t, nil)
	vm.EnsureSlots(1)

	tests := []struct {
		name  string
		value float64
	}{
		{"zero", 0},
		{"negative zero", math.Copysign(0, -1)},
		{"fraction", 1.5},
		{"large", 1e300},
		{"infinity", math.Inf(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm.SetSlotDouble(0, tt.value)
			got, err := vm.SlotDouble(0)
			if err != nil {
				t.Fatalf("SlotDouble: %v", err)
			}
			if got != tt.value || math.Signbit(got) != math.Signbit(tt.value) {
				t.Errorf("SlotDouble = %v, want %v", got, tt.value)
			}
		})
	}

	vm.SetSlotDouble(0, math.NaN())
	if got, _ := vm.SlotDouble(0); !math.IsNaN(got) {
		t.Errorf("SlotDouble = %v, want NaN", got)
	}
}

func TestSlots_String(t *testing.T) {
	vm, _, _ := newTestVM(t, nil)
	vm.EnsureSlots(1)

	for _, want := range []string{"", "hello", "héllo wörld ✓"} {
		vm.SetSlotString(0, want)
		got, err := vm.SlotString(0)
		if err != nil {
			t.Fatalf("SlotString: %v", err)
		}
		if got != want {
			t.Errorf("SlotString = %q, want %q", got, want)
		}
	}
}

func TestSlots_Bytes(t *testing.T) {
	vm, _, _ := newTestVM(t, nil)
	vm.EnsureSlots(1)

	data := []byte("a\x00b\x00")
	vm.SetSlotBytes(0, data)

	got, err := vm.SlotBytes(0)
	if err != nil {
		t.Fatalf("SlotBytes: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("SlotBytes = %q, want %q", got, data)
	}
	got[0] = 'z'
	if again, _ := vm.SlotBytes(0); again[0] != 'a' {
		t.Error("SlotBytes should return a copy")
	}

	s, err := vm.SlotString(0)
	if err != nil {
		t.Fatalf("SlotString: %v", err)
	}
	if s != "a" {
		t.Errorf("SlotString = %q, want it to stop at the first NUL", s)
	}

	vm.SetSlotBytes(0, nil)
	if got, _ := vm.SlotBytes(0); got == nil || len(got) != 0 {
		t.Errorf("empty bytes = %#v, want empty non-nil slice", got)
	}
}

func TestSlots_Errors(t *testing.T) {
	vm, _, _ := newTestVM(t, nil)
	vm.EnsureSlots(2)
	vm.SetSlotDouble(0, 1)
	vm.SetSlotNull(1)

	_, err := vm.SlotString(0)
	var e *errors.Error
	if !errors.As(err, &e) {
		t.Fatalf("SlotString on a number: got %v, want *errors.Error", err)
	}
	if e.Kind != errors.KindTypeMismatch || e.WrenType != "Number" {
		t.Errorf("error = %v, want a type mismatch against Number", e)
	}

	if _, err := vm.SlotBool(1); err == nil {
		t.Error("SlotBool on null should fail")
	}
	if vm.SlotType(1) != wrenruntime.TypeNull {
		t.Errorf("SlotType = %v, want Null", vm.SlotType(1))
	}

	_, err = vm.SlotDouble(5)
	if !errors.As(err, &e) || e.Kind != errors.KindOutOfBounds {
		t.Errorf("SlotDouble(5): got %v, want out of bounds", err)
	}
	if _, err := vm.ListCount(0); err == nil {
		t.Error("ListCount on a number should fail")
	}
}

func TestSlots_List(t *testing.T) {
	vm, _, _ := newTestVM(t, nil)
	vm.EnsureSlots(3)
	vm.SetSlotNewList(0)

	if n, err := vm.ListCount(0); err != nil || n != 0 {
		t.Fatalf("ListCount = %d, %v; want 0", n, err)
	}

	for _, v := range []float64{1, 2} {
		vm.SetSlotDouble(1, v)
		if err := vm.InsertInList(0, -1, 1); err != nil {
			t.Fatalf("append %v: %v", v, err)
		}
	}
	vm.SetSlotDouble(1, 0)
	if err := vm.InsertInList(0, 0, 1); err != nil {
		t.Fatalf("insert at front: %v", err)
	}

	if n, _ := vm.ListCount(0); n != 3 {
		t.Fatalf("ListCount = %d, want 3", n)
	}
	for i, want := range []float64{0, 1, 2} {
		if err := vm.ListElement(0, i, 2); err != nil {
			t.Fatalf("ListElement(%d): %v", i, err)
		}
		if got, _ := vm.SlotDouble(2); got != want {
			t.Errorf("element %d = %v, want %v", i, got, want)
		}
	}

	if err := vm.ListElement(0, -1, 2); err != nil {
		t.Fatalf("ListElement(-1): %v", err)
	}
	if got, _ := vm.SlotDouble(2); got != 2 {
		t.Errorf("last element = %v, want 2", got)
	}

	vm.SetSlotString(1, "x")
	if err := vm.SetListElement(0, 1, 1); err != nil {
		t.Fatalf("SetListElement: %v", err)
	}
	vm.ListElement(0, 1, 2)
	if got, _ := vm.SlotString(2); got != "x" {
		t.Errorf("element 1 = %q, want %q", got, "x")
	}

	var e *errors.Error
	if err := vm.ListElement(0, 3, 2); !errors.As(err, &e) || e.Kind != errors.KindOutOfBounds {
		t.Errorf("ListElement(3): got %v, want out of bounds", err)
	}
	if err := vm.SetListElement(0, -4, 1); err == nil {
		t.Error("SetListElement(-4) should fail")
	}
	if err := vm.InsertInList(0, 5, 1); err == nil {
		t.Error("InsertInList(5) should fail")
	}
}

func TestSlots_Map(t *testing.T) {
	vm, _, _ := newTestVM(t, nil)
	vm.EnsureSlots(4)
	vm.SetSlotNewMap(0)

	if n, err := vm.MapCount(0); err != nil || n != 0 {
		t.Fatalf("MapCount = %d, %v; want 0", n, err)
	}

	vm.SetSlotString(1, "answer")
	vm.SetSlotDouble(2, 42)
	if err := vm.SetMapValue(0, 1, 2); err != nil {
		t.Fatalf("SetMapValue: %v", err)
	}
	if n, _ := vm.MapCount(0); n != 1 {
		t.Errorf("MapCount = %d, want 1", n)
	}
	if ok, err := vm.MapContainsKey(0, 1); err != nil || !ok {
		t.Errorf("MapContainsKey = %v, %v; want true", ok, err)
	}

	if err := vm.MapValue(0, 1, 3); err != nil {
		t.Fatalf("MapValue: %v", err)
	}
	if got, _ := vm.SlotDouble(3); got != 42 {
		t.Errorf("MapValue = %v, want 42", got)
	}

	if err := vm.RemoveMapValue(0, 1, 3); err != nil {
		t.Fatalf("RemoveMapValue: %v", err)
	}
	if got, _ := vm.SlotDouble(3); got != 42 {
		t.Errorf("removed value = %v, want 42", got)
	}
	if n, _ := vm.MapCount(0); n != 0 {
		t.Errorf("MapCount after remove = %d, want 0", n)
	}

	vm.MapValue(0, 1, 3)
	if vm.SlotType(3) != wrenruntime.TypeNull {
		t.Errorf("missing key yields %v, want Null", vm.SlotType(3))
	}
	if _, err := vm.MapCount(1); err == nil {
		t.Error("MapCount on a string should fail")
	}
}

func TestSlots_ScriptInstance(t *testing.T) {
	vm, _, _ := newTestVM(t, nil)
	mustInterpret(t, vm, `class Point {
  construct new() {}
}
var p = Point.new()`)

	vm.EnsureSlots(1)
	if err := vm.Variable(wrenruntime.MainModule, "p", 0); err != nil {
		t.Fatalf("variable: %v", err)
	}
	if got := vm.SlotType(0); got != wrenruntime.TypeUnknown {
		t.Errorf("SlotType = %v, want Unknown", got)
	}
}

type counter struct {
	n float64
}

func counterConfig(finalized *[]float64) *Config {
	cfg := &Config{}
	cfg.OnBindForeignClass(func(_ *VM, module, className string) *ForeignClass {
		if className != "Counter" {
			return nil
		}
		return &ForeignClass{
			Allocate: func(vm *VM) {
				start, err := vm.SlotDouble(1)
				if err != nil {
					vm.Abort(err.Error())
					return
				}
				if _, err := vm.SetSlotNewForeign(0, 0, &counter{n: start}); err != nil {
					vm.Abort(err.Error())
				}
			},
			Finalize: func(obj any) {
				*finalized = append(*finalized, obj.(*counter).n)
			},
		}
	})
	cfg.OnBindForeignMethod(func(_ *VM, module, className string, isStatic bool, signature string) ForeignMethod {
		if className != "Counter" || isStatic {
			return nil
		}
		switch signature {
		case "increment()":
			return func(vm *VM) {
				obj, err := vm.SlotForeign(0)
				if err != nil {
					vm.Abort(err.Error())
					return
				}
				c := obj.(*counter)
				c.n++
				vm.SetSlotDouble(0, c.n)
			}
		case "value":
			return func(vm *VM) {
				obj, _ := vm.SlotForeign(0)
				vm.SetSlotDouble(0, obj.(*counter).n)
			}
		}
		return nil
	})
	return cfg
}

const counterSource = `foreign class Counter {
  construct new(start) {}
  foreign increment()
  foreign value
}
var c = Counter.new(1)
c.increment()
System.print(c.value)
Counter.new(10)
`

func TestSlots_Foreign(t *testing.T) {
	var finalized []float64
	vm, _, out := newTestVM(t, counterConfig(&finalized))

	mustInterpret(t, vm, counterSource)
	if got := out.out.String(); got != "2\n" {
		t.Errorf("output = %q, want %q", got, "2\n")
	}
	if n := vm.Objects().Len(); n != 2 {
		t.Fatalf("live foreign objects = %d, want 2", n)
	}

	vm.EnsureSlots(1)
	vm.Variable(wrenruntime.MainModule, "c", 0)
	obj, err := vm.SlotForeign(0)
	if err != nil {
		t.Fatalf("SlotForeign: %v", err)
	}
	if obj.(*counter).n != 2 {
		t.Errorf("counter = %v, want 2", obj.(*counter).n)
	}
	vm.SetSlotNull(0)

	vm.CollectGarbage()
	if len(finalized) != 1 || finalized[0] != 10 {
		t.Fatalf("finalized after GC = %v, want [10]", finalized)
	}
	if n := vm.Objects().Len(); n != 1 {
		t.Errorf("live foreign objects = %d, want 1", n)
	}

	if err := vm.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(finalized) != 2 || finalized[1] != 2 {
		t.Errorf("finalized after Close = %v, want [10 2]", finalized)
	}
}

func TestSlots_ForeignTypeMismatch(t *testing.T) {
	vm, _, _ := newTestVM(t, nil)
	vm.EnsureSlots(1)
	vm.SetSlotString(0, "not foreign")

	if _, err := vm.SlotForeign(0); !errors.Is(err, &errors.Error{Phase: errors.PhaseSlot, Kind: errors.KindTypeMismatch}) {
		t.Errorf("SlotForeign on a string: got %v", err)
	}
}
