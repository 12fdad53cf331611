package automap

import (
	"math"
	"reflect"
	"strings"
	"testing"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/runtime"
	"github.com/wippyai/wren-runtime/wrentest"
)

type Vector struct {
	X, Y float64
}

var vectorType = reflect.TypeFor[*Vector]()

func newVector(x, y float64) *Vector { return &Vector{X: x, Y: y} }

func length(x, y float64) float64 { return math.Hypot(x, y) }

type session struct {
	vm     *runtime.VM
	out    strings.Builder
	errors []runtime.ScriptError
}

func (s *session) messages() string {
	msgs := make([]string, len(s.errors))
	for i, e := range s.errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

func newSession(t *testing.T) *session {
	t.Helper()
	s := &session{}
	cfg := &runtime.Config{Registry: runtime.NewRegistry()}
	cfg.OnWrite(func(_ *runtime.VM, text string) { s.out.WriteString(text) })
	cfg.OnError(func(_ *runtime.VM, e runtime.ScriptError) { s.errors = append(s.errors, e) })

	vm, err := runtime.NewVMWithConfig(wrentest.New(), cfg)
	if err != nil {
		t.Fatalf("create vm: %v", err)
	}
	t.Cleanup(func() { vm.Close() })
	s.vm = vm
	return s
}

func (s *session) run(t *testing.T, module, source string) {
	t.Helper()
	res, err := s.vm.InterpretModule(module, source)
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if res != wrenruntime.ResultSuccess {
		t.Fatalf("interpret = %v, errors:\n%s", res, s.messages())
	}
}

// fail interprets source and expects a runtime error.
func (s *session) fail(t *testing.T, source string) string {
	t.Helper()
	res, err := s.vm.Interpret(source)
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if res != wrenruntime.ResultRuntimeError {
		t.Fatalf("interpret = %v, want runtime error", res)
	}
	if len(s.errors) == 0 {
		t.Fatal("no error reported")
	}
	return s.errors[0].Message
}
