package automap

import (
	"reflect"
	"strings"

	"github.com/wippyai/wren-runtime/errors"
)

// MemberKind is the script-side form of a class member.
type MemberKind int

const (
	Constructor MemberKind = iota
	Method
	Getter
	Setter
	Indexer
	IndexerSetter
)

func (k MemberKind) String() string {
	switch k {
	case Constructor:
		return "constructor"
	case Method:
		return "method"
	case Getter:
		return "getter"
	case Setter:
		return "setter"
	case Indexer:
		return "indexer"
	case IndexerSetter:
		return "indexer setter"
	default:
		return "unknown"
	}
}

// Member is one script-visible member of a foreign class.
//
// Func is the host handler. Instance handlers take the receiver first.
// The context form receives the VM and works on slots directly:
//
//	func(*T, *runtime.VM)          instance
//	func(*runtime.VM)              static
//	func(*runtime.VM) *T           constructor
//
// The typed form gets its arguments converted from slots 1..n:
//
//	func(*T, float64, string) (float64, error)
//	func(float64, float64) float64
//	func(float64, float64) *T
//
// A single non-error result is written to slot 0; a non-nil error aborts
// the fiber with its message.
//
// Args names the script parameters. For the context form they also fix
// the arity; for the typed form they default to a, b, c, ...
// For an IndexerSetter, Args names the indices only.
type Member struct {
	Func   any
	Name   string
	Code   string
	Args   []string
	Kind   MemberKind
	Static bool
}

// Signature returns the canonical signature the engine binds the member by.
// Args must already hold one entry per parameter.
func (m Member) Signature() string {
	switch m.Kind {
	case Constructor:
		return MakeConstructorSignature(len(m.Args))
	case Getter:
		return MakeGetterSignature(m.Name)
	case Setter:
		return MakeSetterSignature(m.Name)
	case Indexer:
		return MakeIndexerGetter(len(m.Args))
	case IndexerSetter:
		return MakeIndexerSetter(len(m.Args))
	default:
		return MakeMethodSignature(m.Name, len(m.Args))
	}
}

// ClassDescriptor declares a foreign class. Type is the instance type
// handed to instance handlers and finalizers, normally a pointer such as
// *Vector; it may be nil for a class with only static members.
type ClassDescriptor struct {
	Type      reflect.Type
	Finalizer any
	Name      string
	Super     string
	Members   []Member
	Code      []string
}

// memberKey identifies a bound method. Static and instance members live in
// separate namespaces.
type memberKey struct {
	sig    string
	static bool
}

func (k memberKey) String() string {
	if k.static {
		return "static " + k.sig
	}
	return k.sig
}

func invalid(path []string, goType, format string, args ...any) error {
	return errors.New(errors.PhaseBind, errors.KindInvalidSignature).
		Path(path...).
		GoType(goType).
		Detail(format, args...).
		Build()
}

// normalize resolves the handler shape of m and fills in missing
// argument names.
func normalize(class *ClassDescriptor, m Member) (Member, *shape, error) {
	path := []string{class.Name, m.describe()}

	if m.Kind != Constructor && m.Kind != Indexer && m.Kind != IndexerSetter && !ValidName(m.Name) {
		return m, nil, invalid(path, "", "%q is not a valid %s name", m.Name, m.Kind)
	}
	if m.Kind == Constructor && m.Static {
		return m, nil, invalid(path, "", "constructors cannot be static")
	}
	for _, a := range m.Args {
		if !ValidName(a) {
			return m, nil, invalid(path, "", "%q is not a valid parameter name", a)
		}
	}

	var recv reflect.Type
	if !m.Static && m.Kind != Constructor {
		if class.Type == nil {
			return m, nil, invalid(path, "", "instance %s on a class without an instance type", m.Kind)
		}
		recv = class.Type
	}

	s, err := analyze(m.Func, recv, path)
	if err != nil {
		return m, nil, err
	}

	typed := len(s.params)
	if m.Kind == IndexerSetter && !s.context {
		typed-- // the value is not an index
	}

	switch m.Kind {
	case Getter:
		if !s.context && typed != 0 {
			return m, nil, invalid(path, s.goType(), "a getter takes no arguments")
		}
		m.Args = nil
	case Setter:
		if !s.context && typed != 1 {
			return m, nil, invalid(path, s.goType(), "a setter takes exactly one argument")
		}
		m.Args = nil
	case Constructor:
		if class.Type == nil {
			return m, nil, invalid(path, s.goType(), "constructor on a class without an instance type")
		}
		if len(s.results) != 1 || s.results[0] != class.Type {
			return m, nil, invalid(path, s.goType(), "a constructor must return %s", class.Type)
		}
	default:
		if !s.context && m.Kind == Indexer && typed < 1 {
			return m, nil, invalid(path, s.goType(), "an indexer takes at least one index")
		}
		if !s.context && m.Kind == IndexerSetter && typed < 1 {
			return m, nil, invalid(path, s.goType(), "an indexer setter takes at least one index and a value")
		}
	}

	if m.Kind != Getter && m.Kind != Setter {
		switch {
		case s.context:
			if (m.Kind == Indexer || m.Kind == IndexerSetter) && len(m.Args) == 0 {
				return m, nil, invalid(path, s.goType(), "a context indexer must name its indices")
			}
		case m.Args == nil:
			m.Args = argNames(typed)
		case len(m.Args) != typed:
			return m, nil, invalid(path, s.goType(), "%d parameter names for %d arguments", len(m.Args), typed)
		}
		if len(m.Args) > MaxArgs {
			return m, nil, invalid(path, s.goType(), "%d arguments exceed the limit of %d", len(m.Args), MaxArgs)
		}
	}
	s.kind = m.Kind
	return m, s, nil
}

func (m Member) describe() string {
	switch m.Kind {
	case Constructor:
		return ConstructorName
	case Indexer, IndexerSetter:
		return "[" + strings.Join(m.Args, ",") + "]"
	default:
		return m.Name
	}
}
