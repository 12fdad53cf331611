package runtime

import (
	goruntime "runtime"
	"testing"
	"time"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
)

func newCountingVM(t *testing.T, engine *countingEngine) *VM {
	t.Helper()
	vm, err := NewVMWithConfig(engine, &Config{Registry: NewRegistry()})
	if err != nil {
		t.Fatalf("create vm: %v", err)
	}
	t.Cleanup(func() { vm.Close() })
	return vm
}

func TestFunctionHandle_Call(t *testing.T) {
	vm, _, _ := newTestVM(t, nil)
	mustInterpret(t, vm, "var add = Fn.new { |a, b| a + b }")

	fn, err := vm.MakeCallHandle("call(_,_)")
	if err != nil {
		t.Fatalf("make call handle: %v", err)
	}
	defer fn.Release()
	if fn.Signature() != "call(_,_)" {
		t.Errorf("Signature = %q", fn.Signature())
	}

	vm.EnsureSlots(3)
	if err := vm.Variable(wrenruntime.MainModule, "add", 0); err != nil {
		t.Fatalf("variable: %v", err)
	}
	vm.SetSlotDouble(1, 2)
	vm.SetSlotDouble(2, 3)

	res, err := vm.Call(fn)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res != wrenruntime.ResultSuccess {
		t.Fatalf("call = %v", res)
	}
	got, err := vm.SlotDouble(0)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if got != 5 {
		t.Errorf("result = %v, want 5", got)
	}
}

func TestFunctionHandle_RuntimeError(t *testing.T) {
	vm, _, c := newTestVM(t, nil)
	mustInterpret(t, vm, `class Boom {
  static go() { Fiber.abort("bad call") }
}`)

	fn, err := vm.MakeCallHandle("go()")
	if err != nil {
		t.Fatalf("make call handle: %v", err)
	}
	vm.EnsureSlots(1)
	vm.Variable(wrenruntime.MainModule, "Boom", 0)

	res, err := vm.Call(fn)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res != wrenruntime.ResultRuntimeError {
		t.Fatalf("call = %v, want runtime error", res)
	}
	if len(c.errors) == 0 || c.errors[0].Message != "bad call" {
		t.Errorf("errors = %+v", c.errors)
	}
}

func TestHandle_ReleaseOnce(t *testing.T) {
	engine := newCountingEngine()
	vm := newCountingVM(t, engine)

	fn, err := vm.MakeCallHandle("call()")
	if err != nil {
		t.Fatalf("make call handle: %v", err)
	}
	fn.Release()
	fn.Release()

	if n := engine.releases(fn.Pointer()); n != 1 {
		t.Errorf("native releases = %d, want 1", n)
	}
	if !fn.Released() {
		t.Error("Released should report true")
	}
	if vm.LiveHandles() != 0 {
		t.Errorf("LiveHandles = %d, want 0", vm.LiveHandles())
	}
	if _, err := vm.Call(fn); !errors.Is(err, errors.ErrUseAfterRelease) {
		t.Errorf("call after release: got %v, want ErrUseAfterRelease", err)
	}
}

func TestHandle_WrongVM(t *testing.T) {
	engine := newCountingEngine()
	a := newCountingVM(t, engine)
	b := newCountingVM(t, engine)

	fn, err := a.MakeCallHandle("call()")
	if err != nil {
		t.Fatalf("make call handle: %v", err)
	}
	defer fn.Release()
	if _, err := b.Call(fn); !errors.Is(err, errors.ErrWrongVM) {
		t.Errorf("call on other vm: got %v, want ErrWrongVM", err)
	}

	a.EnsureSlots(1)
	a.SetSlotBool(0, true)
	h := a.SlotHandle(0)
	defer h.Release()
	b.EnsureSlots(1)
	if err := b.SetSlotHandle(0, h); !errors.Is(err, errors.ErrWrongVM) {
		t.Errorf("set slot handle on other vm: got %v, want ErrWrongVM", err)
	}
}

func TestHandle_ReleasedOnClose(t *testing.T) {
	engine := newCountingEngine()
	vm := newCountingVM(t, engine)

	vm.EnsureSlots(1)
	vm.SetSlotString(0, "kept")
	h := vm.SlotHandle(0)
	fn, err := vm.MakeCallHandle("call()")
	if err != nil {
		t.Fatalf("make call handle: %v", err)
	}

	if err := vm.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if engine.releases(h.Pointer()) != 1 || engine.releases(fn.Pointer()) != 1 {
		t.Errorf("releases = %d, %d, want 1, 1", engine.releases(h.Pointer()), engine.releases(fn.Pointer()))
	}

	// Releasing after Close must not reach the freed native VM.
	h.Release()
	fn.Release()
	if engine.releases(h.Pointer()) != 1 {
		t.Errorf("release after close reached the engine")
	}
	if !h.Released() {
		t.Error("handle should report released after Close")
	}
}

func makeDroppedHandle(t *testing.T, vm *VM) {
	t.Helper()
	if _, err := vm.MakeCallHandle("call()"); err != nil {
		t.Fatalf("make call handle: %v", err)
	}
}

func TestHandle_CollectedWithoutRelease(t *testing.T) {
	engine := newCountingEngine()
	vm := newCountingVM(t, engine)
	makeDroppedHandle(t, vm)

	if vm.LiveHandles() != 1 {
		t.Fatalf("LiveHandles = %d, want 1", vm.LiveHandles())
	}
	for i := 0; i < 50; i++ {
		goruntime.GC()
		vm.CollectGarbage()
		if vm.LiveHandles() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("dropped handle was never released")
}

func TestMakeCallHandle_Invalid(t *testing.T) {
	vm, _, _ := newTestVM(t, nil)

	tests := []struct {
		name      string
		signature string
	}{
		{"empty", ""},
		{"no name", "(_)"},
		{"unterminated", "call(_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := vm.MakeCallHandle(tt.signature); err == nil {
				t.Errorf("MakeCallHandle(%q) should fail", tt.signature)
			}
		})
	}
	if vm.LiveHandles() != 0 {
		t.Errorf("rejected signatures left %d live handles", vm.LiveHandles())
	}
}

func TestSetSlotHandle(t *testing.T) {
	vm, _, _ := newTestVM(t, nil)

	vm.EnsureSlots(2)
	vm.SetSlotString(0, "kept")
	h := vm.SlotHandle(0)
	defer h.Release()
	vm.SetSlotNull(0)

	if err := vm.SetSlotHandle(1, h); err != nil {
		t.Fatalf("set slot handle: %v", err)
	}
	got, err := vm.SlotString(1)
	if err != nil {
		t.Fatalf("read slot: %v", err)
	}
	if got != "kept" {
		t.Errorf("slot 1 = %q, want %q", got, "kept")
	}
	if err := vm.SetSlotHandle(1, nil); err == nil {
		t.Error("nil handle should fail")
	}
}
