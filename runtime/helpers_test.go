package runtime

import (
	"strings"
	"sync"
	"testing"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/wrentest"
)

// capture collects script output and errors from a VM.
type capture struct {
	out    strings.Builder
	errors []ScriptError
}

func (c *capture) install(h *Handlers) {
	h.OnWrite(func(_ *VM, text string) { c.out.WriteString(text) })
	h.OnError(func(_ *VM, e ScriptError) { c.errors = append(c.errors, e) })
}

// newTestVM creates a VM on a fresh wrentest engine and registry. It is
// closed when the test ends.
func newTestVM(t *testing.T, cfg *Config) (*VM, *wrentest.Engine, *capture) {
	t.Helper()
	engine := wrentest.New()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	c := &capture{}
	c.install(&cfg.Handlers)

	vm, err := NewVMWithConfig(engine, cfg)
	if err != nil {
		t.Fatalf("create vm: %v", err)
	}
	t.Cleanup(func() { vm.Close() })
	return vm, engine, c
}

func mustInterpret(t *testing.T, vm *VM, source string) {
	t.Helper()
	res, err := vm.Interpret(source)
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if res != wrenruntime.ResultSuccess {
		t.Fatalf("interpret = %v", res)
	}
}

// countingEngine records native releases and frees.
type countingEngine struct {
	wrenruntime.Engine
	released map[wrenruntime.Handle]int
	freed    int
	mu       sync.Mutex
}

func newCountingEngine() *countingEngine {
	return &countingEngine{Engine: wrentest.New(), released: make(map[wrenruntime.Handle]int)}
}

func (e *countingEngine) ReleaseHandle(vm wrenruntime.VM, h wrenruntime.Handle) {
	e.mu.Lock()
	e.released[h]++
	e.mu.Unlock()
	e.Engine.ReleaseHandle(vm, h)
}

func (e *countingEngine) FreeVM(vm wrenruntime.VM) {
	e.mu.Lock()
	e.freed++
	e.mu.Unlock()
	e.Engine.FreeVM(vm)
}

func (e *countingEngine) releases(h wrenruntime.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released[h]
}

func (e *countingEngine) frees() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.freed
}
