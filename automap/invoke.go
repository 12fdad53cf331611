package automap

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/runtime"
)

var (
	vmType     = reflect.TypeFor[*runtime.VM]()
	errorType  = reflect.TypeFor[error]()
	handleType = reflect.TypeFor[*runtime.Handle]()
)

// shape is a validated handler and the way its arguments and results
// travel through slots.
type shape struct {
	fn      reflect.Value
	recv    reflect.Type
	params  []reflect.Type
	results []reflect.Type
	kind    MemberKind
	context bool
	err     bool
}

func (s *shape) goType() string {
	return s.fn.Type().String()
}

func analyze(fn any, recv reflect.Type, path []string) (*shape, error) {
	if fn == nil {
		return nil, invalid(path, "", "handler is nil")
	}
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, invalid(path, t.String(), "handler must be a function")
	}
	if v.IsNil() {
		return nil, invalid(path, t.String(), "handler is nil")
	}
	if t.IsVariadic() {
		return nil, invalid(path, t.String(), "variadic handlers are not supported")
	}

	s := &shape{fn: v, recv: recv}
	first := 0
	if recv != nil {
		if t.NumIn() == 0 || t.In(0) != recv {
			return nil, invalid(path, t.String(), "first parameter must be the receiver %s", recv)
		}
		first = 1
	}
	for i := first; i < t.NumIn(); i++ {
		p := t.In(i)
		if p == vmType {
			if i != first || t.NumIn() != first+1 {
				return nil, invalid(path, t.String(), "*runtime.VM must be the only argument besides the receiver")
			}
			s.context = true
			continue
		}
		if !convertible(p, false) {
			return nil, invalid(path, t.String(), "argument type %s cannot be read from a slot", p)
		}
		s.params = append(s.params, p)
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			s.err = true
		} else {
			s.results = []reflect.Type{t.Out(0)}
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, invalid(path, t.String(), "second result must be error")
		}
		s.results = []reflect.Type{t.Out(0)}
		s.err = true
	default:
		return nil, invalid(path, t.String(), "handlers return at most one value and an error")
	}
	for _, r := range s.results {
		if !convertible(r, true) {
			return nil, invalid(path, t.String(), "result type %s cannot be written to a slot", r)
		}
	}
	return s, nil
}

// convertible reports whether values of t can cross the slot boundary.
// Maps can be written but not read: the slot API cannot enumerate keys.
func convertible(t reflect.Type, result bool) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Pointer, reflect.Interface:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8 || convertible(t.Elem(), result)
	case reflect.Array:
		return result && convertible(t.Elem(), result)
	case reflect.Map:
		return result && convertible(t.Key(), result) && convertible(t.Elem(), result)
	default:
		return false
	}
}

// invoke calls the handler with its arguments taken from slots. ok is
// false when the fiber was aborted; res is invalid for handlers without a
// result.
func (s *shape) invoke(vm *runtime.VM) (res reflect.Value, ok bool) {
	in := make([]reflect.Value, 0, 2+len(s.params))
	if s.recv != nil {
		self, err := receiver(vm, s.recv)
		if err != nil {
			vm.Abort(err.Error())
			return reflect.Value{}, false
		}
		in = append(in, self)
	}
	if s.context {
		in = append(in, reflect.ValueOf(vm))
	}
	for i, p := range s.params {
		v, err := SlotValue(vm, i+1, p)
		if err != nil {
			vm.Abort(fmt.Sprintf("argument %d: %v", i+1, err))
			return reflect.Value{}, false
		}
		in = append(in, v)
	}

	out := s.fn.Call(in)
	if s.err {
		if e := out[len(out)-1]; !e.IsNil() {
			vm.Abort(e.Interface().(error).Error())
			return reflect.Value{}, false
		}
	}
	if len(s.results) == 0 {
		return reflect.Value{}, true
	}
	return out[0], true
}

// method adapts the handler to a foreign method. Typed handlers without a
// result return null; context handlers leave slot 0 as they set it.
func (s *shape) method() runtime.ForeignMethod {
	return func(vm *runtime.VM) {
		res, ok := s.invoke(vm)
		if !ok {
			return
		}
		if !res.IsValid() {
			if !s.context {
				vm.SetSlotNull(0)
			}
			return
		}
		if err := SetSlotValue(vm, 0, res.Interface()); err != nil {
			vm.Abort(err.Error())
		}
	}
}

// constructor adapts the handler to an allocator that stores the
// constructed value as the new foreign instance.
func (s *shape) constructor(class string) runtime.ForeignMethod {
	return func(vm *runtime.VM) {
		res, ok := s.invoke(vm)
		if !ok {
			return
		}
		if res.Kind() == reflect.Pointer && res.IsNil() {
			vm.Abort(class + " constructor returned nil")
			return
		}
		if _, err := vm.SetSlotNewForeign(0, 0, res.Interface()); err != nil {
			vm.Abort(err.Error())
		}
	}
}

func receiver(vm *runtime.VM, t reflect.Type) (reflect.Value, error) {
	obj, err := vm.SlotForeign(0)
	if err != nil {
		return reflect.Value{}, err
	}
	v := reflect.ValueOf(obj)
	if !v.IsValid() || v.Type() != t {
		return reflect.Value{}, errors.TypeMismatch(errors.PhaseSlot, []string{"slot0"}, t.String(), fmt.Sprintf("%T", obj))
	}
	return v, nil
}

// finalizerOf converts the class finalizer to the runtime form.
func finalizerOf(desc *ClassDescriptor) (runtime.Finalizer, error) {
	switch fin := desc.Finalizer.(type) {
	case nil:
		return nil, nil
	case runtime.Finalizer:
		return fin, nil
	case func(any):
		return fin, nil
	}

	v := reflect.ValueOf(desc.Finalizer)
	t := v.Type()
	path := []string{desc.Name, "finalizer"}
	if t.Kind() != reflect.Func || t.NumIn() != 1 || t.NumOut() != 0 || t.In(0) != desc.Type {
		return nil, invalid(path, t.String(), "finalizer must be func(%s)", desc.Type)
	}
	return func(obj any) {
		o := reflect.ValueOf(obj)
		if !o.IsValid() || o.Type() != desc.Type {
			Logger().Warn("finalizer received a foreign object of another type",
				zap.String("class", desc.Name),
				zap.String("type", fmt.Sprintf("%T", obj)))
			return
		}
		v.Call([]reflect.Value{o})
	}, nil
}
