package automap

import (
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/runtime"
)

// Mapper binds foreign classes to one VM. It answers the VM's load-module
// and foreign binding callbacks for the modules it generated.
//
// Classes mapped into the main module are interpreted immediately; each
// such batch is recorded as a run named main0, main1, ... Classes mapped
// into any other module are served when a script imports that module.
type Mapper struct {
	vm       *runtime.VM
	modules  map[string]*generated
	bindings map[string]map[string]*binding
	types    map[reflect.Type]classRef
	runs     []*generated

	allowModification bool
}

// generated is a generated module and whether the engine has loaded it.
type generated struct {
	name    string
	classes []*binding
	used    bool
}

func (g *generated) source() string {
	var sb strings.Builder
	for i, b := range g.classes {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(b.source)
	}
	return sb.String()
}

type classRef struct {
	module string
	name   string
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithModificationAfterLoad allows adding classes to a module the engine
// has already loaded. Such additions are not seen by the engine; by
// default Map reports errors.ErrModuleAlreadyLoaded instead.
func WithModificationAfterLoad(allow bool) MapperOption {
	return func(m *Mapper) {
		m.allowModification = allow
	}
}

type mapperKey struct{}

// For returns the VM's mapper, installing it on first use. Options apply
// to the returned mapper either way.
func For(vm *runtime.VM, opts ...MapperOption) *Mapper {
	m := mapperOf(vm)
	if m == nil {
		m = &Mapper{
			vm:       vm,
			modules:  make(map[string]*generated),
			bindings: make(map[string]map[string]*binding),
			types:    make(map[reflect.Type]classRef),
		}
		vm.SetUserData(mapperKey{}, m)
		vm.OnLoadModule(m.loadModule)
		vm.OnBindForeignClass(m.bindClass)
		vm.OnBindForeignMethod(m.bindMethod)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func mapperOf(vm *runtime.VM) *Mapper {
	v, ok := vm.UserData(mapperKey{})
	if !ok {
		return nil
	}
	return v.(*Mapper)
}

// Map binds classes into module. All classes are validated before any is
// bound, so a failed Map leaves the mapper unchanged.
func Map(vm *runtime.VM, module string, classes ...*ClassDescriptor) error {
	return For(vm).Map(module, classes...)
}

// AutoMap reflects T and maps it into module.
func AutoMap[T any](vm *runtime.VM, module string, opts ...Option) error {
	desc, err := Reflect[T](opts...)
	if err != nil {
		return err
	}
	return Map(vm, module, desc)
}

// Map binds classes into module.
func (m *Mapper) Map(module string, classes ...*ClassDescriptor) error {
	if module == "" {
		return errors.InvalidInput(errors.PhaseBind, "module name cannot be empty")
	}

	compiled := make([]*binding, 0, len(classes))
	names := make(map[string]bool, len(classes))
	for _, desc := range classes {
		b, err := compile(desc)
		if err != nil {
			return err
		}
		if names[b.name] || m.bindings[module][b.name] != nil {
			return errors.New(errors.PhaseBind, errors.KindInvalidInput).
				Path(module, b.name).
				Detail("class %s is already mapped in module %q", b.name, module).
				Build()
		}
		names[b.name] = true
		compiled = append(compiled, b)
	}

	if module == wrenruntime.MainModule {
		return m.run(compiled)
	}

	mod, ok := m.modules[module]
	if ok && (mod.used || m.vm.HasModule(module)) {
		if !m.allowModification {
			return errors.New(errors.PhaseBind, errors.KindModuleAlreadyLoaded).
				Path(module).
				Detail("module %q was already loaded by the engine", module).
				Build()
		}
		Logger().Warn("modifying a loaded module; the engine will not see the new classes",
			zap.String("module", module))
	}
	if !ok {
		mod = &generated{name: module}
		m.modules[module] = mod
	}
	mod.classes = append(mod.classes, compiled...)
	m.bind(module, compiled)
	return nil
}

// run interprets classes in the main module. Bindings must be in place
// while the source runs; a failed run removes them again.
func (m *Mapper) run(classes []*binding) error {
	mod := &generated{name: fmt.Sprintf("%s%d", wrenruntime.MainModule, len(m.runs)), classes: classes, used: true}
	m.runs = append(m.runs, mod)
	added := m.bind(wrenruntime.MainModule, classes)

	Logger().Debug("interpreting mapped classes",
		zap.String("run", mod.name),
		zap.Int("classes", len(classes)))

	res, err := m.vm.Interpret(mod.source())
	if err == nil && res != wrenruntime.ResultSuccess {
		err = errors.New(errors.PhaseInterpret, errors.KindInvalidData).
			Path(mod.name).
			Detail("generated source failed: %s", res).
			Build()
	}
	if err != nil {
		m.runs = m.runs[:len(m.runs)-1]
		m.unbind(wrenruntime.MainModule, classes, added)
		return err
	}
	return nil
}

// bind registers classes under module and returns the types it claimed.
func (m *Mapper) bind(module string, classes []*binding) []reflect.Type {
	byName := m.bindings[module]
	if byName == nil {
		byName = make(map[string]*binding)
		m.bindings[module] = byName
	}
	var added []reflect.Type
	for _, b := range classes {
		byName[b.name] = b
		if b.typ != nil {
			if _, seen := m.types[b.typ]; !seen {
				m.types[b.typ] = classRef{module: module, name: b.name}
				added = append(added, b.typ)
			}
		}
	}
	return added
}

func (m *Mapper) unbind(module string, classes []*binding, types []reflect.Type) {
	byName := m.bindings[module]
	for _, b := range classes {
		delete(byName, b.name)
	}
	if len(byName) == 0 {
		delete(m.bindings, module)
	}
	for _, t := range types {
		delete(m.types, t)
	}
}

// Source returns the generated source of module, or of a main-module run
// such as "main0".
func (m *Mapper) Source(module string) (string, bool) {
	if mod, ok := m.modules[module]; ok {
		return mod.source(), true
	}
	for _, run := range m.runs {
		if run.name == module {
			return run.source(), true
		}
	}
	return "", false
}

// Runs returns the names of the main-module runs so far.
func (m *Mapper) Runs() []string {
	names := make([]string, len(m.runs))
	for i, r := range m.runs {
		names[i] = r.name
	}
	return names
}

// Loaded reports whether the engine has loaded the generated module.
func (m *Mapper) Loaded(module string) bool {
	mod, ok := m.modules[module]
	return ok && mod.used
}

func (m *Mapper) classOf(t reflect.Type) (classRef, bool) {
	ref, ok := m.types[t]
	return ref, ok
}

func (m *Mapper) loadModule(_ *runtime.VM, name string) (runtime.LoadModuleResult, bool) {
	mod, ok := m.modules[name]
	if !ok {
		return runtime.LoadModuleResult{}, false
	}
	mod.used = true
	Logger().Debug("serving mapped module", zap.String("module", name))
	return runtime.LoadModuleResult{Source: mod.source()}, true
}

func (m *Mapper) bindClass(_ *runtime.VM, module, className string) *runtime.ForeignClass {
	b := m.bindings[module][className]
	if b == nil {
		return nil
	}
	return b.foreignClass()
}

func (m *Mapper) bindMethod(_ *runtime.VM, module, className string, isStatic bool, signature string) runtime.ForeignMethod {
	b := m.bindings[module][className]
	if b == nil {
		return nil
	}
	return b.methods[memberKey{sig: signature, static: isStatic}]
}
