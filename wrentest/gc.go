package wrentest

import (
	"slices"

	wrenruntime "github.com/wippyai/wren-runtime"
)

// requestCollection collects now when no script code is running, and at
// the end of the outermost Interpret or Call otherwise. Temporaries of
// running code live on the Go stack where the marker cannot see them.
func (m *machine) requestCollection() {
	if m.depth > 0 {
		m.gcPending = true
		return
	}
	m.collect()
}

// collect finalizes every foreign object unreachable from module
// variables, slots and live handles.
func (m *machine) collect() {
	m.gcPending = false
	m.stats.Collections++

	mk := &marker{seen: make(map[any]bool)}
	for _, mod := range m.modules {
		for _, v := range mod.vars {
			mk.mark(v)
		}
	}
	for _, v := range m.slots {
		mk.mark(v)
	}
	for _, saved := range m.saved {
		for _, v := range saved {
			mk.mark(v)
		}
	}
	for _, h := range m.handles {
		mk.mark(h.value)
	}

	var dead []wrenruntime.Ptr
	for ptr := range m.foreigns {
		if !mk.seen[m.foreigns[ptr]] {
			dead = append(dead, ptr)
		}
	}
	m.finalize(dead)
}

// finalize runs finalizers for ptrs in address order and frees their storage.
func (m *machine) finalize(ptrs []wrenruntime.Ptr) {
	slices.Sort(ptrs)
	for _, ptr := range ptrs {
		obj := m.foreigns[ptr]
		delete(m.foreigns, ptr)
		if obj.class.finalize != nil {
			obj.class.finalize(ptr)
		}
		m.heap.free(ptr)
		m.stats.Finalized++
	}
}

type marker struct {
	seen map[any]bool
}

func (mk *marker) mark(v value) {
	switch x := v.(type) {
	case *listObj:
		if mk.visit(x) {
			for _, el := range x.elems {
				mk.mark(el)
			}
		}
	case *mapObj:
		if mk.visit(x) {
			for k, el := range x.entries {
				mk.mark(k)
				mk.mark(el)
			}
		}
	case *instance:
		if mk.visit(x) {
			mk.mark(x.class)
			for _, f := range x.fields {
				mk.mark(f)
			}
		}
	case *foreignObj:
		if mk.visit(x) {
			mk.mark(x.class)
		}
	case *closure:
		if mk.visit(x) {
			mk.mark(x.self)
			mk.mark(x.class)
			mk.markEnv(x.env)
		}
	case *classObj:
		if mk.visit(x) {
			for _, f := range x.staticFields {
				mk.mark(f)
			}
			if x.super != nil {
				mk.mark(x.super)
			}
		}
	}
}

func (mk *marker) markEnv(e *env) {
	for ; e != nil; e = e.parent {
		if !mk.visit(e) {
			return
		}
		for _, v := range e.vars {
			mk.mark(v)
		}
	}
}

func (mk *marker) visit(p any) bool {
	if mk.seen[p] {
		return false
	}
	mk.seen[p] = true
	return true
}
