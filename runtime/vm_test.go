package runtime

import (
	goruntime "runtime"
	"testing"
	"time"

	"go.uber.org/multierr"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/wrentest"
)

func TestVM_Print(t *testing.T) {
	vm, _, c := newTestVM(t, nil)
	mustInterpret(t, vm, `System.print("Hi!")`)

	if got := c.out.String(); got != "Hi!\n" {
		t.Errorf("output = %q, want %q", got, "Hi!\n")
	}
}

func TestVM_CompileError(t *testing.T) {
	vm, _, c := newTestVM(t, nil)

	res, err := vm.Interpret("var x = ")
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if res != wrenruntime.ResultCompileError {
		t.Fatalf("interpret = %v, want compile error", res)
	}
	if len(c.errors) != 1 {
		t.Fatalf("got %d errors, want 1: %+v", len(c.errors), c.errors)
	}
	e := c.errors[0]
	if e.Type != wrenruntime.ErrorCompile || e.Module != "main" || e.Line != 1 {
		t.Errorf("error = %+v", e)
	}
	want := "[main line 1] Error at end of file: Expected expression."
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}

func TestVM_RuntimeError(t *testing.T) {
	vm, _, c := newTestVM(t, nil)

	res, _ := vm.InterpretModule("game", `class Boom {
  static go() {
    Fiber.abort("boom")
  }
}
Boom.go()`)
	if res != wrenruntime.ResultRuntimeError {
		t.Fatalf("interpret = %v, want runtime error", res)
	}

	want := []string{"boom", "[game line 3] in Boom.go()", "[game line 6] in (script)"}
	if len(c.errors) != len(want) {
		t.Fatalf("errors = %+v", c.errors)
	}
	for i, w := range want {
		if got := c.errors[i].Error(); got != w {
			t.Errorf("errors[%d] = %q, want %q", i, got, w)
		}
	}
	if !vm.HasVariable("game", "Boom") {
		t.Error("module game should define Boom")
	}
}

func TestVM_Close(t *testing.T) {
	engine := wrentest.New()
	registry := NewRegistry()
	vm, err := NewVMWithConfig(engine, &Config{Registry: registry})
	if err != nil {
		t.Fatalf("create vm: %v", err)
	}
	ptr := vm.Pointer()

	if err := vm.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := vm.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !vm.Closed() {
		t.Error("Closed should report true")
	}
	if engine.Live(ptr) {
		t.Error("native VM should be freed")
	}
	if registry.Len() != 0 {
		t.Errorf("registry Len = %d, want 0", registry.Len())
	}

	if _, err := vm.Interpret("1"); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("interpret after close: got %v, want ErrClosed", err)
	}
	if _, err := vm.Call(&FunctionHandle{state: &handleState{}}); !errors.Is(err, &errors.Error{Phase: errors.PhaseHandle, Kind: errors.KindClosed}) {
		t.Errorf("call after close: got %v", err)
	}

	defer func() {
		if _, ok := recover().(*ProtocolViolation); !ok {
			t.Error("slot access after close should panic with a protocol violation")
		}
	}()
	vm.EnsureSlots(1)
}

func createDroppedVM(t *testing.T, engine *wrentest.Engine, registry *Registry) {
	t.Helper()
	vm, err := NewVMWithConfig(engine, &Config{Registry: registry})
	if err != nil {
		t.Fatalf("create vm: %v", err)
	}
	if res, _ := vm.Interpret("var x = 1"); res != wrenruntime.ResultSuccess {
		t.Fatalf("interpret = %v", res)
	}
}

func TestVM_CollectedWithoutClose(t *testing.T) {
	engine := wrentest.New()
	registry := NewRegistry()
	createDroppedVM(t, engine, registry)

	if engine.Len() != 1 {
		t.Fatalf("engine has %d VMs, want 1", engine.Len())
	}
	for i := 0; i < 50; i++ {
		goruntime.GC()
		if engine.Len() == 0 {
			if registry.Len() != 0 {
				t.Errorf("registry Len = %d, want 0", registry.Len())
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("dropped VM was never freed")
}

func TestVM_Version(t *testing.T) {
	vm, _, _ := newTestVM(t, nil)
	if vm.Version() != 4000 {
		t.Errorf("Version = %d, want 4000", vm.Version())
	}
}

func TestVM_Variable(t *testing.T) {
	vm, _, _ := newTestVM(t, nil)
	mustInterpret(t, vm, `var answer = 42`)
	vm.EnsureSlots(1)

	if err := vm.Variable("main", "answer", 0); err != nil {
		t.Fatalf("variable: %v", err)
	}
	if got, _ := vm.SlotDouble(0); got != 42 {
		t.Errorf("answer = %v, want 42", got)
	}

	tests := []struct {
		name    string
		module  string
		varName string
	}{
		{"missing variable", "main", "question"},
		{"missing module", "nowhere", "answer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := vm.Variable(tt.module, tt.varName, 0)
			var e *errors.Error
			if !errors.As(err, &e) || e.Kind != errors.KindNotFound {
				t.Errorf("Variable(%q, %q) = %v, want not found", tt.module, tt.varName, err)
			}
			if vm.HasVariable(tt.module, tt.varName) {
				t.Errorf("HasVariable(%q, %q) = true", tt.module, tt.varName)
			}
		})
	}
}

func TestVM_UserData(t *testing.T) {
	vm, _, _ := newTestVM(t, nil)

	type key struct{}
	if _, ok := vm.UserData(key{}); ok {
		t.Error("unset key should not be found")
	}
	vm.SetUserData(key{}, "session")
	if v, ok := vm.UserData(key{}); !ok || v != "session" {
		t.Errorf("UserData = %v, %v", v, ok)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"explicit sizes", Config{InitialHeapSize: 10 << 20, MinHeapSize: 1 << 20, HeapGrowthPercent: 50}, false},
		{"min heap without initial", Config{MinHeapSize: 1 << 20}, false},
		{"negative growth", Config{HeapGrowthPercent: -1}, true},
		{"min above initial", Config{InitialHeapSize: 1 << 20, MinHeapSize: 2 << 20}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := NewVMWithConfig(wrentest.New(), &Config{HeapGrowthPercent: -5}); err == nil {
		t.Error("invalid config should be rejected")
	}
	if _, err := NewVM(nil); err == nil {
		t.Error("nil engine should be rejected")
	}
}

func TestConfig_PassedToEngine(t *testing.T) {
	cfg := &Config{
		Reallocate:        func(wrenruntime.Ptr, uintptr) wrenruntime.Ptr { return 0 },
		InitialHeapSize:   4 << 20,
		MinHeapSize:       1 << 20,
		HeapGrowthPercent: 25,
	}
	vm, engine, _ := newTestVM(t, cfg)

	got := engine.Config(vm.Pointer())
	if got.InitialHeapSize != 4<<20 || got.MinHeapSize != 1<<20 || got.HeapGrowthPercent != 25 {
		t.Errorf("engine config = %+v", got)
	}
	if got.Reallocate == nil {
		t.Error("Reallocate was not passed through")
	}
	if got.Callbacks.Write == nil || got.Callbacks.BindForeignClass == nil {
		t.Error("callbacks were not installed")
	}
}

func TestConfig_Copied(t *testing.T) {
	var late []string
	cfg := &Config{Registry: NewRegistry()}
	vm, err := NewVMWithConfig(wrentest.New(), cfg)
	if err != nil {
		t.Fatalf("create vm: %v", err)
	}
	defer vm.Close()

	cfg.OnWrite(func(_ *VM, text string) { late = append(late, text) })
	mustInterpret(t, vm, `System.print("x")`)
	if len(late) != 0 {
		t.Errorf("handler added to cfg after creation saw %v", late)
	}
}

// leakyEngine frees VMs without finalizing their foreign objects.
type leakyEngine struct {
	*wrentest.Engine
}

func (leakyEngine) FreeVM(wrenruntime.VM) {}

func TestVM_CloseReportsLeakedObjects(t *testing.T) {
	var finalized []float64
	cfg := counterConfig(&finalized)
	cfg.Registry = NewRegistry()

	vm, err := NewVMWithConfig(leakyEngine{wrentest.New()}, cfg)
	if err != nil {
		t.Fatalf("create vm: %v", err)
	}
	mustInterpret(t, vm, `foreign class Counter {
  construct new(start) {}
}
var c = Counter.new(1)`)

	err = vm.Close()
	if !errors.Is(err, &errors.Error{Phase: errors.PhaseForeign, Kind: errors.KindInvalidData}) {
		t.Errorf("close = %v, want a leaked object error", err)
	}
	if len(finalized) != 0 {
		t.Errorf("finalized = %v, want none", finalized)
	}
}

func TestRuntime(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("nil engine should be rejected")
	}

	engine := wrentest.New()
	var out []string
	defaults := Config{}
	defaults.OnWrite(func(_ *VM, text string) { out = append(out, text) })

	rt, err := New(engine, defaults)
	if err != nil {
		t.Fatalf("create runtime: %v", err)
	}
	if rt.Engine() != engine {
		t.Error("Engine should return the runtime's engine")
	}

	a, err := rt.NewVM(nil)
	if err != nil {
		t.Fatalf("create vm: %v", err)
	}
	b, err := rt.NewVM(&Config{})
	if err != nil {
		t.Fatalf("create vm: %v", err)
	}
	if rt.Registry().Len() != 2 {
		t.Errorf("registry Len = %d, want 2", rt.Registry().Len())
	}
	if _, err := DefaultRegistry().Resolve(a.Pointer()); err == nil {
		t.Error("runtime VMs should not be in the default registry")
	}

	mustInterpret(t, a, `System.write("a")`)
	mustInterpret(t, b, `System.write("b")`)
	if len(out) != 1 || out[0] != "a" {
		t.Errorf("default handlers saw %v, want only the VM created without config", out)
	}

	if err := rt.Close(); err != nil {
		t.Fatalf("close runtime: %v", err)
	}
	if !a.Closed() || !b.Closed() {
		t.Error("runtime Close should close every VM")
	}
	if engine.Len() != 0 {
		t.Errorf("engine has %d live VMs after Close", engine.Len())
	}
}

func TestRuntime_CloseAggregatesErrors(t *testing.T) {
	var finalized []float64
	defaults := *counterConfig(&finalized)
	rt, err := New(leakyEngine{wrentest.New()}, defaults)
	if err != nil {
		t.Fatalf("create runtime: %v", err)
	}

	vms := make([]*VM, 0, 2)
	for i := 0; i < 2; i++ {
		vm, err := rt.NewVM(nil)
		if err != nil {
			t.Fatalf("create vm: %v", err)
		}
		mustInterpret(t, vm, `foreign class Counter {
  construct new(start) {}
}
var c = Counter.new(1)`)
		vms = append(vms, vm)
	}

	err = rt.Close()
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("close errors = %d (%v), want 2", n, err)
	}
	goruntime.KeepAlive(vms)
}
