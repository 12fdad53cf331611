package automap

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/runtime"
)

// binding is a compiled class: its invoker table, allocator and source.
// It holds no reference to a VM or Mapper, since the engine keeps its
// functions for the lifetime of the VM.
type binding struct {
	methods  map[memberKey]runtime.ForeignMethod
	ctors    map[int]runtime.ForeignMethod
	finalize runtime.Finalizer
	typ      reflect.Type
	name     string
	source   string
}

func compile(desc *ClassDescriptor) (*binding, error) {
	if desc == nil {
		return nil, errors.NilPointer(errors.PhaseBind, nil, "*automap.ClassDescriptor")
	}
	if !ValidName(desc.Name) {
		return nil, invalid([]string{desc.Name}, "", "%q is not a valid class name", desc.Name)
	}
	if desc.Super != "" && !ValidName(desc.Super) {
		return nil, invalid([]string{desc.Name}, "", "%q is not a valid superclass name", desc.Super)
	}

	b := &binding{
		methods: make(map[memberKey]runtime.ForeignMethod),
		ctors:   make(map[int]runtime.ForeignMethod),
		typ:     desc.Type,
		name:    desc.Name,
	}
	members := make([]Member, 0, len(desc.Members))
	instance := false

	for _, raw := range desc.Members {
		m, s, err := normalize(desc, raw)
		if err != nil {
			return nil, err
		}
		if m.Code != "" && m.Kind != Constructor {
			return nil, invalid([]string{desc.Name, m.describe()}, s.goType(), "only constructors carry code")
		}
		key := memberKey{sig: m.Signature(), static: m.Static}

		if m.Kind == Constructor {
			if _, dup := b.ctors[len(m.Args)]; dup {
				return nil, duplicate(desc, key)
			}
			b.ctors[len(m.Args)] = s.constructor(desc.Name)
		} else {
			if _, dup := b.methods[key]; dup {
				return nil, duplicate(desc, key)
			}
			b.methods[key] = s.method()
			instance = instance || !m.Static
		}
		members = append(members, m)
	}

	fin, err := finalizerOf(desc)
	if err != nil {
		return nil, err
	}
	if (instance || fin != nil) && len(b.ctors) == 0 {
		return nil, errors.New(errors.PhaseBind, errors.KindMissingAllocator).
			Path(desc.Name).
			Detail("class has instance members but no constructor").
			Build()
	}
	b.finalize = fin
	b.source = generate(desc, members)
	return b, nil
}

func duplicate(desc *ClassDescriptor, key memberKey) error {
	return errors.New(errors.PhaseBind, errors.KindDuplicateSignature).
		Path(desc.Name, key.String()).
		Detail("signature %q is declared more than once", key.String()).
		Build()
}

// allocate dispatches to the constructor matching the number of arguments
// the script passed.
func (b *binding) allocate(vm *runtime.VM) {
	n := vm.SlotCount() - 1
	ctor, ok := b.ctors[n]
	if !ok {
		vm.Abort(fmt.Sprintf("%s has no constructor taking %d arguments", b.name, n))
		return
	}
	ctor(vm)
}

func (b *binding) foreignClass() *runtime.ForeignClass {
	if len(b.ctors) == 0 {
		return nil
	}
	return &runtime.ForeignClass{Allocate: b.allocate, Finalize: b.finalize}
}

// Source returns the Wren declaration generated for desc.
func Source(desc *ClassDescriptor) (string, error) {
	b, err := compile(desc)
	if err != nil {
		return "", err
	}
	return b.source, nil
}

func generate(desc *ClassDescriptor, members []Member) string {
	var sb strings.Builder
	sb.WriteString("foreign class ")
	sb.WriteString(desc.Name)
	if desc.Super != "" {
		sb.WriteString(" is ")
		sb.WriteString(desc.Super)
	}
	sb.WriteString(" {\n")
	for _, m := range members {
		sb.WriteString("  ")
		sb.WriteString(declaration(m))
		sb.WriteByte('\n')
	}
	for _, code := range desc.Code {
		writeIndented(&sb, code, "  ")
	}
	sb.WriteString("}\n")
	return sb.String()
}

func declaration(m Member) string {
	args := strings.Join(m.Args, ", ")
	if m.Kind == Constructor {
		head := "construct " + ConstructorName + "(" + args + ") {"
		if m.Code == "" {
			return head + "}"
		}
		var sb strings.Builder
		sb.WriteString(head)
		sb.WriteByte('\n')
		writeIndented(&sb, m.Code, "    ")
		sb.WriteString("  }")
		return sb.String()
	}

	decl := "foreign "
	if m.Static {
		decl += "static "
	}
	switch m.Kind {
	case Getter:
		return decl + m.Name
	case Setter:
		return decl + m.Name + "=(value)"
	case Indexer:
		return decl + "[" + args + "]"
	case IndexerSetter:
		return decl + "[" + args + "]=(value)"
	default:
		return decl + m.Name + "(" + args + ")"
	}
}

func writeIndented(sb *strings.Builder, code, indent string) {
	for _, line := range strings.Split(strings.TrimRight(code, "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			sb.WriteString(indent)
			sb.WriteString(line)
		}
		sb.WriteByte('\n')
	}
}
