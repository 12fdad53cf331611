package automap

import (
	"strings"
	"testing"

	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/runtime"
)

func vectorClass() *Builder[Vector] {
	return Define[Vector]("Vector").
		Constructor(newVector, "x", "y").
		Getter("x", func(v *Vector) float64 { return v.X }).
		Getter("y", func(v *Vector) float64 { return v.Y })
}

func TestMap_GetterAndStatic(t *testing.T) {
	s := newSession(t)
	desc := Define[Vector]("Vector").
		Constructor(newVector, "x", "y").
		Getter("x", func(*Vector) float64 { return 2.0 }).
		StaticMethod("getLength", length, "x", "y").
		Descriptor()
	if err := Map(s.vm, "main", desc); err != nil {
		t.Fatalf("Map: %v", err)
	}

	s.run(t, "main", `var v = Vector.new(3, 4)
var x = v.x
var len = Vector.getLength(3, 4)
System.print(x)
System.print(len)`)

	if got := s.out.String(); got != "2\n5\n" {
		t.Errorf("output = %q, want %q", got, "2\n5\n")
	}

	s.vm.EnsureSlots(1)
	for name, want := range map[string]float64{"x": 2.0, "len": length(3, 4)} {
		if err := s.vm.Variable("main", name, 0); err != nil {
			t.Fatalf("Variable(%s): %v", name, err)
		}
		got, err := s.vm.SlotDouble(0)
		if err != nil {
			t.Fatalf("SlotDouble: %v", err)
		}
		if got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestMap_FinalizerRunsOnce(t *testing.T) {
	s := newSession(t)

	var created *Vector
	var finalized []*Vector
	desc := Define[Vector]("Vector").
		Constructor(func(x, y float64) *Vector {
			created = newVector(x, y)
			return created
		}, "x", "y").
		Finalizer(func(v *Vector) { finalized = append(finalized, v) }).
		Descriptor()
	if err := Map(s.vm, "main", desc); err != nil {
		t.Fatalf("Map: %v", err)
	}

	s.run(t, "main", `{
  var vec = Vector.new(1, 2)
}`)
	if s.vm.Objects().Len() != 1 {
		t.Fatalf("live objects = %d, want 1", s.vm.Objects().Len())
	}

	s.vm.CollectGarbage()
	s.vm.CollectGarbage()

	if len(finalized) != 1 {
		t.Fatalf("finalizer ran %d times, want 1", len(finalized))
	}
	if finalized[0] != created {
		t.Error("finalizer received a different object")
	}
	if s.vm.Objects().Len() != 0 {
		t.Errorf("live objects = %d, want 0", s.vm.Objects().Len())
	}
}

func TestMap_Code(t *testing.T) {
	s := newSession(t)
	desc := vectorClass().
		Code(`print() { System.print("(%(x), %(y))") }`).
		ConstructorWithCode(func() *Vector { return &Vector{} }, `System.print("made")`).
		Descriptor()
	if err := Map(s.vm, "main", desc); err != nil {
		t.Fatalf("Map: %v", err)
	}

	s.run(t, "main", `Vector.new(1, 2).print()
Vector.new()`)

	if got := s.out.String(); got != "(1, 2)\nmade\n" {
		t.Errorf("output = %q", got)
	}
}

func TestMap_ReturnsForeign(t *testing.T) {
	s := newSession(t)
	desc := vectorClass().
		Method("scaled", func(v *Vector, k float64) *Vector { return newVector(v.X*k, v.Y*k) }, "k").
		Method("same", func(v *Vector) *Vector { return v }).
		Descriptor()
	if err := Map(s.vm, "main", desc); err != nil {
		t.Fatalf("Map: %v", err)
	}

	s.run(t, "main", `var v = Vector.new(1, 2)
var w = v.scaled(3)
System.print(w.x)
System.print(w.y)
System.print(w is Vector)`)

	if got := s.out.String(); got != "3\n6\ntrue\n" {
		t.Errorf("output = %q", got)
	}
	if s.vm.Objects().Len() != 2 {
		t.Errorf("live objects = %d, want 2", s.vm.Objects().Len())
	}
}

func TestMap_ContextHandlers(t *testing.T) {
	s := newSession(t)
	desc := vectorClass().
		Method("twice", func(v *Vector, vm *runtime.VM) {
			d, err := vm.SlotDouble(1)
			if err != nil {
				vm.Abort(err.Error())
				return
			}
			vm.SetSlotDouble(0, d*2)
		}, "n").
		StaticMethod("origin", func(vm *runtime.VM) *Vector { return &Vector{} }).
		Descriptor()
	if err := Map(s.vm, "main", desc); err != nil {
		t.Fatalf("Map: %v", err)
	}

	s.run(t, "main", `System.print(Vector.new(0, 0).twice(21))
System.print(Vector.origin().x)`)

	if got := s.out.String(); got != "42\n0\n" {
		t.Errorf("output = %q", got)
	}
}

func TestMap_ErrorsAbortFiber(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"returned error", `Vector.new(1, 2).check()`, "vector too short"},
		{"argument conversion", `Vector.new(1, 2).scaled("x")`, "argument 1"},
		{"fractional integer", `Vector.new(1, 2).component(0.5)`, "not an integer"},
		{"unmapped result", `Vector.new(1, 2).other()`, "not mapped"},
		{"constructor arity", `Vector.new(1)`, ""},
	}
	type other struct{}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t)
			desc := vectorClass().
				Method("check", func(v *Vector) error {
					if length(v.X, v.Y) < 10 {
						return errors.InvalidInput(errors.PhaseBind, "vector too short")
					}
					return nil
				}).
				Method("scaled", func(v *Vector, k float64) *Vector { return v }).
				Method("component", func(v *Vector, i int) float64 { return v.X }).
				Method("other", func(v *Vector) *other { return &other{} }).
				Descriptor()
			if err := Map(s.vm, "main", desc); err != nil {
				t.Fatalf("Map: %v", err)
			}

			msg := s.fail(t, tt.source)
			if !strings.Contains(msg, tt.want) {
				t.Errorf("error = %q, want it to contain %q", msg, tt.want)
			}
		})
	}
}

type Greeter struct{}

func TestMap_ModulesDoNotCollide(t *testing.T) {
	s := newSession(t)
	english := Define[Greeter]("Greeter").StaticMethod("greet", func() string { return "hello" }).Descriptor()
	french := Define[Greeter]("Greeter").StaticMethod("greet", func() string { return "bonjour" }).Descriptor()

	if err := Map(s.vm, "english", english); err != nil {
		t.Fatalf("Map english: %v", err)
	}
	if err := Map(s.vm, "french", french); err != nil {
		t.Fatalf("Map french: %v", err)
	}
	if For(s.vm).Loaded("english") {
		t.Error("module reported loaded before import")
	}

	s.run(t, "main", `import "english" for Greeter
System.print(Greeter.greet())`)
	s.run(t, "other", `import "french" for Greeter
System.print(Greeter.greet())`)

	if got := s.out.String(); got != "hello\nbonjour\n" {
		t.Errorf("output = %q", got)
	}
	if !For(s.vm).Loaded("english") || !For(s.vm).Loaded("french") {
		t.Error("imported modules should be marked loaded")
	}
}

func TestMap_ModuleAlreadyLoaded(t *testing.T) {
	s := newSession(t)
	a := Define[Greeter]("A").StaticMethod("f", func() {}).Descriptor()
	b := Define[Greeter]("B").StaticMethod("f", func() {}).Descriptor()
	c := Define[Greeter]("C").StaticMethod("f", func() {}).Descriptor()

	if err := Map(s.vm, "lib", a); err != nil {
		t.Fatalf("Map: %v", err)
	}
	s.run(t, "main", `import "lib" for A`)

	if err := Map(s.vm, "lib", b); !errors.Is(err, errors.ErrModuleAlreadyLoaded) {
		t.Fatalf("Map after load = %v, want ErrModuleAlreadyLoaded", err)
	}
	if src, _ := For(s.vm).Source("lib"); strings.Contains(src, "class B") {
		t.Error("rejected class was added to the module")
	}

	if err := For(s.vm, WithModificationAfterLoad(true)).Map("lib", c); err != nil {
		t.Fatalf("Map with modification allowed: %v", err)
	}
	if src, _ := For(s.vm).Source("lib"); !strings.Contains(src, "foreign class C") {
		t.Errorf("lib source = %q, want class C", src)
	}
}

func TestMap_MainRuns(t *testing.T) {
	s := newSession(t)
	m := For(s.vm)

	if err := m.Map("main", vectorClass().Descriptor()); err != nil {
		t.Fatalf("Map Vector: %v", err)
	}
	if err := m.Map("main", Define[Greeter]("Greeter").StaticMethod("greet", func() string { return "hi" }).Descriptor()); err != nil {
		t.Fatalf("Map Greeter: %v", err)
	}

	runs := m.Runs()
	if len(runs) != 2 || runs[0] != "main0" || runs[1] != "main1" {
		t.Fatalf("Runs = %v, want [main0 main1]", runs)
	}
	if src, ok := m.Source("main1"); !ok || !strings.HasPrefix(src, "foreign class Greeter") {
		t.Errorf("main1 source = %q", src)
	}

	s.run(t, "main", `System.print(Greeter.greet())
System.print(Vector.new(5, 6).y)`)
	if got := s.out.String(); got != "hi\n6\n" {
		t.Errorf("output = %q", got)
	}

	err := m.Map("main", vectorClass().Descriptor())
	if !errors.Is(err, &errors.Error{Phase: errors.PhaseBind, Kind: errors.KindInvalidInput}) {
		t.Errorf("mapping Vector twice = %v, want invalid input", err)
	}
}

func TestMap_AtomicOnError(t *testing.T) {
	s := newSession(t)
	good := Define[Greeter]("Good").StaticMethod("f", func() {}).Descriptor()
	bad := Define[Greeter]("Bad").StaticMethod("f", 42).Descriptor()

	if err := Map(s.vm, "lib", good, bad); !errors.Is(err, errors.ErrInvalidSignature) {
		t.Fatalf("Map = %v, want ErrInvalidSignature", err)
	}
	if _, ok := For(s.vm).Source("lib"); ok {
		t.Error("a failed Map should not create the module")
	}
	if err := Map(s.vm, "", good); err == nil {
		t.Error("Map with an empty module name should fail")
	}
}

func TestMap_FailedRunRollsBack(t *testing.T) {
	s := newSession(t)
	vec := func(super string) *ClassDescriptor {
		b := Define[Vector]("Vec").
			Constructor(newVector, "x", "y").
			Getter("x", func(v *Vector) float64 { return v.X })
		if super != "" {
			b = b.Is(super)
		}
		return b.Descriptor()
	}

	if err := Map(s.vm, "main", vec("Missing")); !errors.Is(err, &errors.Error{Phase: errors.PhaseInterpret, Kind: errors.KindInvalidData}) {
		t.Fatalf("Map with a missing superclass = %v, want interpret error", err)
	}
	m := For(s.vm)
	if runs := m.Runs(); len(runs) != 0 {
		t.Errorf("Runs after failure = %v, want none", runs)
	}
	if _, ok := m.classOf(vectorType); ok {
		t.Error("failed run should release its Go type")
	}

	if err := Map(s.vm, "main", vec("")); err != nil {
		t.Fatalf("Map after fixing the class: %v", err)
	}
	if runs := m.Runs(); len(runs) != 1 || runs[0] != "main0" {
		t.Errorf("Runs = %v, want [main0]", runs)
	}
	if ref, ok := m.classOf(vectorType); !ok || ref.name != "Vec" {
		t.Errorf("classOf = %+v, %v", ref, ok)
	}
	s.run(t, "main", `System.print(Vec.new(3, 4).x)`)
	if got := s.out.String(); got != "3\n" {
		t.Errorf("output = %q, want %q", got, "3\n")
	}
}

func TestMap_MapperPerVM(t *testing.T) {
	a, b := newSession(t), newSession(t)
	if For(a.vm) != For(a.vm) {
		t.Error("For should return the same mapper for one VM")
	}
	if For(a.vm) == For(b.vm) {
		t.Error("VMs should not share a mapper")
	}
}

func TestAutoMap_TwoModules(t *testing.T) {
	s := newSession(t)
	if err := AutoMap[Counter](s.vm, "left"); err != nil {
		t.Fatalf("AutoMap left: %v", err)
	}
	if err := AutoMap[Tally](s.vm, "right", WithName("Counter")); err != nil {
		t.Fatalf("AutoMap right: %v", err)
	}

	s.run(t, "main", `import "left" for Counter
var c = Counter.new()
c.increment()
c.count = c.count + 10
System.print(c.add(5))`)
	s.run(t, "other", `import "right" for Counter
var c = Counter.new()
c.increment()
System.print(c.total)`)

	if got := s.out.String(); got != "16\n100\n" {
		t.Errorf("output = %q", got)
	}
}

type Counter struct {
	Count int `wren:"count"`
}

func (c *Counter) Increment() { c.Count++ }

func (c *Counter) Add(n int) int {
	c.Count += n
	return c.Count
}

type Tally struct {
	Total int
}

func (t *Tally) Increment() { t.Total += 100 }
