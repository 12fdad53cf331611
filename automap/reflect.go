package automap

import (
	"reflect"
	"strings"

	"go.uber.org/zap"
)

// Option configures Reflect.
type Option func(*reflection)

type reflection struct {
	name    string
	super   string
	members []Member
	code    []string
	ignore  map[string]bool
	ctor    bool
}

// WithName sets the class name. The default is the Go type name.
func WithName(name string) Option {
	return func(r *reflection) { r.name = name }
}

// WithSuperclass sets the superclass.
func WithSuperclass(name string) Option {
	return func(r *reflection) { r.super = name }
}

// WithConstructor adds a constructor. Without one, Reflect adds new()
// returning a zero *T.
func WithConstructor(fn any, args ...string) Option {
	return func(r *reflection) {
		r.members = append(r.members, Member{Kind: Constructor, Func: fn, Args: args})
		r.ctor = true
	}
}

// WithStatic adds a static method, typically a package-level function.
func WithStatic(name string, fn any, args ...string) Option {
	return WithMember(Member{Kind: Method, Name: name, Func: fn, Args: args, Static: true})
}

// WithMember adds m as declared.
func WithMember(m Member) Option {
	return func(r *reflection) {
		r.members = append(r.members, m)
		if m.Kind == Constructor {
			r.ctor = true
		}
	}
}

// WithCode appends script source to the class body.
func WithCode(src string) Option {
	return func(r *reflection) { r.code = append(r.code, src) }
}

// Ignore skips the Go methods and fields with the given names.
func Ignore(names ...string) Option {
	return func(r *reflection) {
		for _, n := range names {
			r.ignore[n] = true
		}
	}
}

// Reflect describes *T as a foreign class.
//
// Exported methods of *T become instance methods named in camelCase;
// methods whose signature cannot cross slots are skipped. A method
// Finalize() becomes the finalizer. Exported struct fields become a getter
// and a setter, controlled by the wren tag:
//
//	X     float64 `wren:"x"`          // getter x, setter x=(_)
//	ID    int     `wren:"id,readonly"` // getter only
//	Cache []byte  `wren:"-"`           // not mapped
func Reflect[T any](opts ...Option) (*ClassDescriptor, error) {
	ptr := reflect.TypeFor[*T]()
	elem := ptr.Elem()

	r := &reflection{name: elem.Name(), ignore: make(map[string]bool)}
	for _, opt := range opts {
		opt(r)
	}

	desc := &ClassDescriptor{
		Name:  r.name,
		Super: r.super,
		Type:  ptr,
		Code:  r.code,
	}
	if !ValidName(desc.Name) {
		return nil, invalid([]string{desc.Name}, ptr.String(), "%q is not a valid class name; use WithName", desc.Name)
	}
	if !r.ctor {
		desc.Members = append(desc.Members, Member{
			Kind: Constructor,
			Func: func() *T { return new(T) },
		})
	}
	desc.Members = append(desc.Members, r.members...)

	if elem.Kind() == reflect.Struct {
		desc.Members = append(desc.Members, fields(r, ptr)...)
	}

	for i := 0; i < ptr.NumMethod(); i++ {
		m := ptr.Method(i)
		if r.ignore[m.Name] {
			continue
		}
		if m.Name == "Finalize" && m.Type.NumIn() == 1 && m.Type.NumOut() == 0 {
			desc.Finalizer = m.Func.Interface()
			continue
		}
		name := camelCase(m.Name)
		if !ValidName(name) {
			skipped(r.name, m.Name, "name is reserved")
			continue
		}
		fn := m.Func.Interface()
		if _, err := analyze(fn, ptr, []string{r.name, name}); err != nil {
			skipped(r.name, m.Name, err.Error())
			continue
		}
		desc.Members = append(desc.Members, Member{Kind: Method, Name: name, Func: fn})
	}
	return desc, nil
}

func fields(r *reflection, ptr reflect.Type) []Member {
	elem := ptr.Elem()
	var members []Member
	for i := 0; i < elem.NumField(); i++ {
		f := elem.Field(i)
		if !f.IsExported() || f.Anonymous || r.ignore[f.Name] {
			continue
		}
		name, readonly, ok := fieldTag(f)
		if !ok {
			continue
		}
		if !convertible(f.Type, true) {
			skipped(r.name, f.Name, "field type cannot be written to a slot")
			continue
		}
		members = append(members, Member{Kind: Getter, Name: name, Func: getter(ptr, f)})
		if readonly {
			continue
		}
		if !convertible(f.Type, false) {
			skipped(r.name, f.Name, "field type cannot be read from a slot")
			continue
		}
		members = append(members, Member{Kind: Setter, Name: name, Func: setter(ptr, f)})
	}
	return members
}

func fieldTag(f reflect.StructField) (name string, readonly, ok bool) {
	tag, tagged := f.Tag.Lookup("wren")
	if tag == "-" {
		return "", false, false
	}
	name = camelCase(f.Name)
	if tagged {
		parts := strings.Split(tag, ",")
		if parts[0] != "" {
			name = parts[0]
		}
		for _, opt := range parts[1:] {
			if opt == "readonly" {
				readonly = true
			}
		}
	}
	return name, readonly, true
}

func getter(ptr reflect.Type, f reflect.StructField) any {
	t := reflect.FuncOf([]reflect.Type{ptr}, []reflect.Type{f.Type}, false)
	return reflect.MakeFunc(t, func(args []reflect.Value) []reflect.Value {
		return []reflect.Value{args[0].Elem().FieldByIndex(f.Index)}
	}).Interface()
}

func setter(ptr reflect.Type, f reflect.StructField) any {
	t := reflect.FuncOf([]reflect.Type{ptr, f.Type}, nil, false)
	return reflect.MakeFunc(t, func(args []reflect.Value) []reflect.Value {
		args[0].Elem().FieldByIndex(f.Index).Set(args[1])
		return nil
	}).Interface()
}

func skipped(class, member, reason string) {
	Logger().Debug("member not mapped",
		zap.String("class", class),
		zap.String("member", member),
		zap.String("reason", reason))
}
