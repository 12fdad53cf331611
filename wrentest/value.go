package wrentest

import (
	"math"
	"strconv"

	wrenruntime "github.com/wippyai/wren-runtime"
)

// value is a script value: nil (null), bool, float64, string or one of the
// object pointer types below.
type value = any

type listObj struct {
	elems []value
}

type mapObj struct {
	entries map[value]value
	order   []value
}

func newMap() *mapObj {
	return &mapObj{entries: make(map[value]value)}
}

func (m *mapObj) get(k value) (value, bool) {
	v, ok := m.entries[k]
	return v, ok
}

func (m *mapObj) set(k, v value) {
	if _, ok := m.entries[k]; !ok {
		m.order = append(m.order, k)
	}
	m.entries[k] = v
}

func (m *mapObj) remove(k value) (value, bool) {
	v, ok := m.entries[k]
	if !ok {
		return nil, false
	}
	delete(m.entries, k)
	for i, existing := range m.order {
		if existing == k {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return v, true
}

type rangeObj struct {
	from, to  float64
	inclusive bool
}

type closure struct {
	fn     *fnDecl
	env    *env
	self   value
	class  *classObj
	module *moduleObj
}

type classObj struct {
	super        *classObj
	module       *moduleObj
	methods      map[string]*method
	statics      map[string]*method
	staticFields map[string]value
	allocate     wrenruntime.ForeignMethodFn
	finalize     wrenruntime.FinalizerFn
	name         string
	foreign      bool
	builtin      bool
}

func newClass(name string, super *classObj, module *moduleObj) *classObj {
	return &classObj{
		name:         name,
		super:        super,
		module:       module,
		methods:      make(map[string]*method),
		statics:      make(map[string]*method),
		staticFields: make(map[string]value),
	}
}

func (c *classObj) inherits(other *classObj) bool {
	for k := c; k != nil; k = k.super {
		if k == other {
			return true
		}
	}
	return false
}

type instance struct {
	class  *classObj
	fields map[string]value
}

type foreignObj struct {
	class *classObj
	ptr   wrenruntime.Ptr
	size  uintptr
}

type nativeFn func(m *machine, recv value, args []value) (value, error)

// method is one entry of a class's method table. Exactly one of native,
// foreign and fn drives the call; construct wraps allocation around fn.
type method struct {
	class     *classObj
	fn        *fnDecl
	foreign   wrenruntime.ForeignMethodFn
	native    nativeFn
	construct bool
}

type moduleObj struct {
	vars map[string]value
	name string
}

type env struct {
	vars   map[string]value
	parent *env
}

func newEnv(parent *env) *env {
	return &env{vars: make(map[string]value), parent: parent}
}

func (e *env) lookup(name string) (*env, bool) {
	for s := e; s != nil; s = s.parent {
		if _, ok := s.vars[name]; ok {
			return s, true
		}
	}
	return nil, false
}

func truthy(v value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	}
	return true
}

func valuesEqual(a, b value) bool {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case *rangeObj:
		y, ok := b.(*rangeObj)
		return ok && (x == y || (x.from == y.from && x.to == y.to && x.inclusive == y.inclusive))
	}
	return a == b
}

// validKey reports whether v can be used as a map key.
func validKey(v value) bool {
	switch v.(type) {
	case nil, bool, float64, string, *classObj, *rangeObj:
		return true
	}
	return false
}

func classOf(v value) *classObj {
	switch x := v.(type) {
	case nil:
		return nullClass
	case bool:
		return boolClass
	case float64:
		return numClass
	case string:
		return stringClass
	case *listObj:
		return listClass
	case *mapObj:
		return mapClass
	case *rangeObj:
		return rangeClass
	case *closure:
		return fnClass
	case *classObj:
		return classClass
	case *instance:
		return x.class
	case *foreignObj:
		return x.class
	}
	return objectClass
}

// receiverName names v's class the way method lookup failures report it.
func receiverName(v value) string {
	if c, ok := v.(*classObj); ok {
		return c.name + " metaclass"
	}
	return classOf(v).name
}

func numString(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "infinity"
	case math.IsInf(v, -1):
		return "-infinity"
	}
	return strconv.FormatFloat(v, 'g', 14, 64)
}

func slotType(v value) wrenruntime.SlotType {
	switch v.(type) {
	case nil:
		return wrenruntime.TypeNull
	case bool:
		return wrenruntime.TypeBool
	case float64:
		return wrenruntime.TypeNumber
	case string:
		return wrenruntime.TypeString
	case *listObj:
		return wrenruntime.TypeList
	case *mapObj:
		return wrenruntime.TypeMap
	case *foreignObj:
		return wrenruntime.TypeForeign
	}
	return wrenruntime.TypeUnknown
}
