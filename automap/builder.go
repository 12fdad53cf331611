package automap

import "reflect"

// Builder declares a foreign class backed by *T.
//
//	vector := automap.Define[Vector]("Vector").
//		Constructor(func(x, y float64) *Vector { return &Vector{x, y} }, "x", "y").
//		Getter("x", func(v *Vector) float64 { return v.X }).
//		StaticMethod("getLength", func(x, y float64) float64 { return math.Hypot(x, y) }).
//		Finalizer(func(v *Vector) { log.Println("finalized", v) })
//
// Members are validated when the class is mapped.
type Builder[T any] struct {
	desc ClassDescriptor
}

// Define starts a class named name whose instances are *T.
func Define[T any](name string) *Builder[T] {
	return &Builder[T]{desc: ClassDescriptor{
		Name: name,
		Type: reflect.TypeFor[*T](),
	}}
}

func (b *Builder[T]) add(m Member) *Builder[T] {
	b.desc.Members = append(b.desc.Members, m)
	return b
}

// Constructor adds construct new(args...). fn returns *T.
func (b *Builder[T]) Constructor(fn any, args ...string) *Builder[T] {
	return b.add(Member{Kind: Constructor, Func: fn, Args: args})
}

// ConstructorWithCode adds a constructor whose script body is code. The
// body runs after fn has created the instance.
func (b *Builder[T]) ConstructorWithCode(fn any, code string, args ...string) *Builder[T] {
	return b.add(Member{Kind: Constructor, Func: fn, Args: args, Code: code})
}

// Method adds an instance method.
func (b *Builder[T]) Method(name string, fn any, args ...string) *Builder[T] {
	return b.add(Member{Kind: Method, Name: name, Func: fn, Args: args})
}

// StaticMethod adds a static method.
func (b *Builder[T]) StaticMethod(name string, fn any, args ...string) *Builder[T] {
	return b.add(Member{Kind: Method, Name: name, Func: fn, Args: args, Static: true})
}

// Getter adds an instance getter.
func (b *Builder[T]) Getter(name string, fn any) *Builder[T] {
	return b.add(Member{Kind: Getter, Name: name, Func: fn})
}

// StaticGetter adds a static getter.
func (b *Builder[T]) StaticGetter(name string, fn any) *Builder[T] {
	return b.add(Member{Kind: Getter, Name: name, Func: fn, Static: true})
}

// Setter adds an instance setter name=(value).
func (b *Builder[T]) Setter(name string, fn any) *Builder[T] {
	return b.add(Member{Kind: Setter, Name: name, Func: fn})
}

// StaticSetter adds a static setter.
func (b *Builder[T]) StaticSetter(name string, fn any) *Builder[T] {
	return b.add(Member{Kind: Setter, Name: name, Func: fn, Static: true})
}

// Indexer adds a subscript getter [args...].
func (b *Builder[T]) Indexer(fn any, args ...string) *Builder[T] {
	return b.add(Member{Kind: Indexer, Func: fn, Args: args})
}

// IndexerSetter adds a subscript setter [args...]=(value). args names
// the indices.
func (b *Builder[T]) IndexerSetter(fn any, args ...string) *Builder[T] {
	return b.add(Member{Kind: IndexerSetter, Func: fn, Args: args})
}

// Finalizer sets the function run when the engine frees an instance.
func (b *Builder[T]) Finalizer(fn func(*T)) *Builder[T] {
	if fn == nil {
		b.desc.Finalizer = nil
		return b
	}
	b.desc.Finalizer = fn
	return b
}

// Code appends script source to the class body, e.g. a method written
// in Wren.
func (b *Builder[T]) Code(src string) *Builder[T] {
	b.desc.Code = append(b.desc.Code, src)
	return b
}

// Is sets the superclass.
func (b *Builder[T]) Is(superclass string) *Builder[T] {
	b.desc.Super = superclass
	return b
}

// Descriptor returns a copy of the class declared so far.
func (b *Builder[T]) Descriptor() *ClassDescriptor {
	d := b.desc
	d.Members = append([]Member(nil), b.desc.Members...)
	d.Code = append([]string(nil), b.desc.Code...)
	return &d
}
