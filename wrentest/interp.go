package wrentest

import (
	"fmt"
	"strings"

	wrenruntime "github.com/wippyai/wren-runtime"
)

const maxFrames = 1024

type control int

const (
	ctlNone control = iota
	ctlReturn
	ctlBreak
)

type frame struct {
	module string
	fn     string
	line   int
}

// runtimeError is a script error raised while executing. trace holds the
// active frames, innermost first, at the point the error was raised.
type runtimeError struct {
	msg   string
	trace []frame
}

func (e *runtimeError) Error() string { return e.msg }

// scope is the lexical context of executing code.
type scope struct {
	mod   *moduleObj
	env   *env
	self  value
	class *classObj
}

func (sc *scope) child() *scope {
	return &scope{mod: sc.mod, env: newEnv(sc.env), self: sc.self, class: sc.class}
}

func (m *machine) fail(format string, args ...any) error {
	trace := make([]frame, 0, len(m.frames))
	for i := len(m.frames) - 1; i >= 0; i-- {
		trace = append(trace, m.frames[i])
	}
	return &runtimeError{msg: fmt.Sprintf(format, args...), trace: trace}
}

func (m *machine) pushFrame(module, fn string, line int) error {
	if len(m.frames) >= maxFrames {
		return m.fail("Stack overflow.")
	}
	m.frames = append(m.frames, frame{module: module, fn: fn, line: line})
	return nil
}

func (m *machine) popFrame() {
	m.frames = m.frames[:len(m.frames)-1]
}

func (m *machine) setLine(line int) {
	if n := len(m.frames); n > 0 {
		m.frames[n-1].line = line
	}
}

// runModule executes top-level code in mod.
func (m *machine) runModule(mod *moduleObj, prog []node) error {
	if err := m.pushFrame(mod.name, "(script)", 1); err != nil {
		return err
	}
	defer m.popFrame()
	_, _, err := m.execAll(&scope{mod: mod}, prog)
	return err
}

func (m *machine) execAll(sc *scope, body []node) (control, value, error) {
	for _, s := range body {
		ctl, v, err := m.exec(sc, s)
		if err != nil || ctl != ctlNone {
			return ctl, v, err
		}
	}
	return ctlNone, nil, nil
}

func (m *machine) exec(sc *scope, n node) (control, value, error) {
	m.setLine(n.pos())

	switch s := n.(type) {
	case *varStmt:
		var v value
		if s.init != nil {
			var err error
			if v, err = m.eval(sc, s.init); err != nil {
				return ctlNone, nil, err
			}
		}
		define(sc, s.name, v)
		return ctlNone, nil, nil

	case *blockStmt:
		return m.execAll(sc.child(), s.body)

	case *ifStmt:
		cond, err := m.eval(sc, s.cond)
		if err != nil {
			return ctlNone, nil, err
		}
		if truthy(cond) {
			return m.exec(sc.child(), s.then)
		}
		if s.els != nil {
			return m.exec(sc.child(), s.els)
		}
		return ctlNone, nil, nil

	case *whileStmt:
		for {
			cond, err := m.eval(sc, s.cond)
			if err != nil {
				return ctlNone, nil, err
			}
			if !truthy(cond) {
				return ctlNone, nil, nil
			}
			ctl, v, err := m.exec(sc.child(), s.body)
			if err != nil || ctl == ctlReturn {
				return ctl, v, err
			}
			if ctl == ctlBreak {
				return ctlNone, nil, nil
			}
		}

	case *forStmt:
		return m.execFor(sc, s)

	case *returnStmt:
		if s.value == nil {
			return ctlReturn, nil, nil
		}
		v, err := m.eval(sc, s.value)
		return ctlReturn, v, err

	case *breakStmt:
		return ctlBreak, nil, nil

	case *importStmt:
		return ctlNone, nil, m.importModule(sc, s)

	case *classStmt:
		return ctlNone, nil, m.defineClass(sc, s)
	}

	_, err := m.eval(sc, n)
	return ctlNone, nil, err
}

func (m *machine) execFor(sc *scope, s *forStmt) (control, value, error) {
	seq, err := m.eval(sc, s.seq)
	if err != nil {
		return ctlNone, nil, err
	}
	var iter value
	for {
		if iter, err = m.invoke(seq, "iterate(_)", []value{iter}); err != nil {
			return ctlNone, nil, err
		}
		if !truthy(iter) {
			return ctlNone, nil, nil
		}
		v, err := m.invoke(seq, "iteratorValue(_)", []value{iter})
		if err != nil {
			return ctlNone, nil, err
		}
		body := sc.child()
		body.env.vars[s.name] = v
		ctl, rv, err := m.exec(body, s.body)
		if err != nil || ctl == ctlReturn {
			return ctl, rv, err
		}
		if ctl == ctlBreak {
			return ctlNone, nil, nil
		}
	}
}

func define(sc *scope, name string, v value) {
	if sc.env == nil {
		sc.mod.vars[name] = v
		return
	}
	sc.env.vars[name] = v
}

func isLower(name string) bool {
	return name != "" && name[0] >= 'a' && name[0] <= 'z'
}

func (m *machine) eval(sc *scope, n node) (value, error) {
	switch e := n.(type) {
	case *numLit:
		return e.v, nil
	case *strLit:
		return e.v, nil
	case *boolLit:
		return e.v, nil
	case *nullLit:
		return nil, nil
	case *thisExpr:
		return sc.self, nil

	case *interpLit:
		var b strings.Builder
		for _, part := range e.parts {
			v, err := m.eval(sc, part)
			if err != nil {
				return nil, err
			}
			s, err := m.stringify(v)
			if err != nil {
				return nil, err
			}
			b.WriteString(s)
		}
		return b.String(), nil

	case *listLit:
		l := &listObj{elems: make([]value, 0, len(e.elems))}
		for _, el := range e.elems {
			v, err := m.eval(sc, el)
			if err != nil {
				return nil, err
			}
			l.elems = append(l.elems, v)
		}
		return l, nil

	case *mapLit:
		mp := newMap()
		for i := range e.keys {
			k, err := m.eval(sc, e.keys[i])
			if err != nil {
				return nil, err
			}
			if !validKey(k) {
				return nil, m.fail("Key must be a value type.")
			}
			v, err := m.eval(sc, e.vals[i])
			if err != nil {
				return nil, err
			}
			mp.set(k, v)
		}
		return mp, nil

	case *nameExpr:
		return m.lookupName(sc, e.name)

	case *fieldExpr:
		return m.field(sc, e)

	case *fnLit:
		return &closure{fn: e.fn, env: sc.env, self: sc.self, class: sc.class, module: sc.mod}, nil

	case *callExpr:
		args, err := m.evalArgs(sc, e.args)
		if err != nil {
			return nil, err
		}
		if e.recv == nil {
			if sc.class == nil {
				return nil, m.fail("Variable '%s' is not defined.", e.name)
			}
			return m.invoke(sc.self, e.sig, args)
		}
		recv, err := m.eval(sc, e.recv)
		if err != nil {
			return nil, err
		}
		return m.invoke(recv, e.sig, args)

	case *subscriptExpr:
		recv, err := m.eval(sc, e.recv)
		if err != nil {
			return nil, err
		}
		args, err := m.evalArgs(sc, e.args)
		if err != nil {
			return nil, err
		}
		return m.invoke(recv, "["+underscores(len(args))+"]", args)

	case *assignExpr:
		return m.assign(sc, e)

	case *binaryExpr:
		left, err := m.eval(sc, e.left)
		if err != nil {
			return nil, err
		}
		right, err := m.eval(sc, e.right)
		if err != nil {
			return nil, err
		}
		return m.invoke(left, e.op+"(_)", []value{right})

	case *logicalExpr:
		left, err := m.eval(sc, e.left)
		if err != nil {
			return nil, err
		}
		if truthy(left) != e.and {
			return left, nil
		}
		return m.eval(sc, e.right)

	case *isExpr:
		left, err := m.eval(sc, e.left)
		if err != nil {
			return nil, err
		}
		right, err := m.eval(sc, e.right)
		if err != nil {
			return nil, err
		}
		c, ok := right.(*classObj)
		if !ok {
			return nil, m.fail("Right operand must be a class.")
		}
		return classOf(left).inherits(c), nil

	case *unaryExpr:
		operand, err := m.eval(sc, e.operand)
		if err != nil {
			return nil, err
		}
		return m.invoke(operand, e.op, nil)

	case *condExpr:
		cond, err := m.eval(sc, e.cond)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return m.eval(sc, e.then)
		}
		return m.eval(sc, e.els)
	}

	return nil, m.fail("Cannot evaluate %T.", n)
}

func (m *machine) evalArgs(sc *scope, nodes []node) ([]value, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	args := make([]value, len(nodes))
	for i, n := range nodes {
		v, err := m.eval(sc, n)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (m *machine) lookupName(sc *scope, name string) (value, error) {
	if s, ok := sc.env.lookup(name); ok {
		return s.vars[name], nil
	}
	if sc.class != nil && isLower(name) {
		return m.invoke(sc.self, name, nil)
	}
	if v, ok := sc.mod.vars[name]; ok {
		return v, nil
	}
	if v, ok := coreGlobals[name]; ok {
		return v, nil
	}
	return nil, m.fail("Variable '%s' is not defined.", name)
}

func (m *machine) field(sc *scope, e *fieldExpr) (value, error) {
	if sc.class == nil {
		return nil, m.fail("Cannot reference a field outside of a class definition.")
	}
	if e.static {
		return sc.class.staticFields[e.name], nil
	}
	obj, ok := sc.self.(*instance)
	if !ok {
		return nil, m.fail("Cannot use an instance field in a static method.")
	}
	return obj.fields[e.name], nil
}

func (m *machine) assign(sc *scope, e *assignExpr) (value, error) {
	switch t := e.target.(type) {
	case *nameExpr:
		v, err := m.eval(sc, e.value)
		if err != nil {
			return nil, err
		}
		if s, ok := sc.env.lookup(t.name); ok {
			s.vars[t.name] = v
			return v, nil
		}
		if sc.class != nil && isLower(t.name) {
			return m.invoke(sc.self, t.name+"=(_)", []value{v})
		}
		if _, ok := sc.mod.vars[t.name]; ok {
			sc.mod.vars[t.name] = v
			return v, nil
		}
		return nil, m.fail("Variable '%s' is not defined.", t.name)

	case *fieldExpr:
		v, err := m.eval(sc, e.value)
		if err != nil {
			return nil, err
		}
		if sc.class == nil {
			return nil, m.fail("Cannot reference a field outside of a class definition.")
		}
		if t.static {
			sc.class.staticFields[t.name] = v
			return v, nil
		}
		obj, ok := sc.self.(*instance)
		if !ok {
			return nil, m.fail("Cannot use an instance field in a static method.")
		}
		obj.fields[t.name] = v
		return v, nil

	case *callExpr:
		var recv value = sc.self
		if t.recv != nil {
			var err error
			if recv, err = m.eval(sc, t.recv); err != nil {
				return nil, err
			}
		}
		v, err := m.eval(sc, e.value)
		if err != nil {
			return nil, err
		}
		if _, err := m.invoke(recv, t.name+"=(_)", []value{v}); err != nil {
			return nil, err
		}
		return v, nil

	case *subscriptExpr:
		recv, err := m.eval(sc, t.recv)
		if err != nil {
			return nil, err
		}
		args, err := m.evalArgs(sc, t.args)
		if err != nil {
			return nil, err
		}
		v, err := m.eval(sc, e.value)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		if _, err := m.invoke(recv, "["+underscores(len(t.args))+"]=(_)", args); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, m.fail("Invalid assignment target.")
}

func (m *machine) lookup(recv value, sig string) *method {
	if c, ok := recv.(*classObj); ok {
		if mt, ok := c.statics[sig]; ok {
			return mt
		}
	}
	for k := classOf(recv); k != nil; k = k.super {
		if mt, ok := k.methods[sig]; ok {
			return mt
		}
	}
	return nil
}

func (m *machine) invoke(recv value, sig string, args []value) (value, error) {
	mt := m.lookup(recv, sig)
	if mt == nil {
		return nil, m.fail("%s does not implement '%s'.", receiverName(recv), sig)
	}
	switch {
	case mt.native != nil:
		return mt.native(m, recv, args)
	case mt.construct:
		return m.construct(mt, recv.(*classObj), args)
	case mt.foreign != nil:
		return m.foreignCall(mt.foreign, append([]value{recv}, args...))
	}
	return m.callFn(mt.fn, recv, mt.class, mt.class.module, nil, args)
}

func (m *machine) callFn(fn *fnDecl, self value, class *classObj, mod *moduleObj, parent *env, args []value) (value, error) {
	e := newEnv(parent)
	for i, p := range fn.params {
		var v value
		if i < len(args) {
			v = args[i]
		}
		e.vars[p] = v
	}
	if err := m.pushFrame(mod.name, fn.name, 0); err != nil {
		return nil, err
	}
	defer m.popFrame()

	sc := &scope{mod: mod, env: e, self: self, class: class}
	if fn.expr != nil {
		m.setLine(fn.expr.pos())
		return m.eval(sc, fn.expr)
	}
	ctl, v, err := m.execAll(sc, fn.body)
	if err != nil {
		return nil, err
	}
	if ctl == ctlReturn {
		return v, nil
	}
	return nil, nil
}

func (m *machine) callClosure(c *closure, args []value) (value, error) {
	if len(args) < len(c.fn.params) {
		return nil, m.fail("Function expects more arguments.")
	}
	return m.callFn(c.fn, c.self, c.class, c.module, c.env, args)
}

func (m *machine) construct(mt *method, class *classObj, args []value) (value, error) {
	var obj value
	if class.foreign {
		if class.allocate == nil {
			return nil, m.fail("Could not find a foreign allocator for class %s in module '%s'.", class.name, class.module.name)
		}
		res, err := m.foreignCall(class.allocate, append([]value{class}, args...))
		if err != nil {
			return nil, err
		}
		fo, ok := res.(*foreignObj)
		if !ok || fo.class != class {
			return nil, m.fail("Foreign allocator for class %s did not create an instance.", class.name)
		}
		obj = fo
	} else {
		obj = &instance{class: class, fields: make(map[string]value)}
	}
	if mt.fn != nil && (mt.fn.expr != nil || len(mt.fn.body) > 0) {
		if _, err := m.callFn(mt.fn, obj, class, class.module, nil, args); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// foreignCall runs a host function with slots as its slot array and
// returns slot 0.
func (m *machine) foreignCall(fn wrenruntime.ForeignMethodFn, slots []value) (value, error) {
	saved := m.slots
	m.saved = append(m.saved, saved)
	m.slots = slots
	m.aborted, m.abortVal = false, nil
	defer func() {
		m.slots = saved
		m.saved = m.saved[:len(m.saved)-1]
	}()

	fn(m.ptr)

	if m.aborted {
		v := m.abortVal
		m.aborted, m.abortVal = false, nil
		if v != nil {
			return nil, m.abortError(v)
		}
	}
	if len(m.slots) == 0 {
		return nil, nil
	}
	return m.slots[0], nil
}

func (m *machine) abortError(v value) error {
	if s, ok := v.(string); ok {
		return m.fail("%s", s)
	}
	return m.fail("%s", m.display(v))
}

func (m *machine) defineClass(sc *scope, s *classStmt) error {
	super := objectClass
	if s.super != "" {
		v, err := m.lookupName(sc, s.super)
		if err != nil {
			return err
		}
		c, ok := v.(*classObj)
		switch {
		case !ok:
			return m.fail("Class '%s' cannot inherit from a non-class object.", s.name)
		case c.builtin && c != objectClass:
			return m.fail("Class '%s' cannot inherit from built-in class '%s'.", s.name, c.name)
		case c.foreign:
			return m.fail("Class '%s' cannot inherit from foreign class '%s'.", s.name, c.name)
		}
		super = c
	}

	class := newClass(s.name, super, sc.mod)
	class.foreign = s.foreign
	if s.foreign && m.cb.BindForeignClass != nil {
		methods := m.cb.BindForeignClass(m.ptr, sc.mod.name, s.name)
		class.allocate = methods.Allocate
		class.finalize = methods.Finalize
	}

	for _, d := range s.members {
		mt := &method{class: class, fn: d.fn, construct: d.construct}
		if d.foreign {
			var fn wrenruntime.ForeignMethodFn
			if m.cb.BindForeignMethod != nil {
				fn = m.cb.BindForeignMethod(m.ptr, sc.mod.name, s.name, d.static, d.sig)
			}
			if fn == nil {
				m.setLine(d.line)
				return m.fail("Could not find foreign method '%s' for class %s in module '%s'.", d.sig, s.name, sc.mod.name)
			}
			mt.foreign = fn
		}
		if d.static || d.construct {
			class.statics[d.sig] = mt
		} else {
			class.methods[d.sig] = mt
		}
	}

	define(sc, s.name, class)
	return nil
}

func (m *machine) importModule(sc *scope, s *importStmt) error {
	name := s.module
	if m.cb.ResolveModule != nil {
		resolved, ok := m.cb.ResolveModule(m.ptr, sc.mod.name, name)
		if !ok {
			return m.fail("Could not resolve module '%s' imported from '%s'.", name, sc.mod.name)
		}
		name = resolved
	}

	mod, loaded := m.modules[name]
	if !loaded {
		var err error
		if mod, err = m.loadModule(name); err != nil {
			return err
		}
	}

	for _, v := range s.names {
		val, ok := mod.vars[v]
		if !ok {
			return m.fail("Could not find a variable named '%s' in module '%s'.", v, name)
		}
		define(sc, v, val)
	}
	return nil
}

func (m *machine) loadModule(name string) (*moduleObj, error) {
	if m.cb.LoadModule == nil {
		return nil, m.fail("Could not load module '%s'.", name)
	}
	res, ok := m.cb.LoadModule(m.ptr, name)
	if !ok {
		return nil, m.fail("Could not load module '%s'.", name)
	}
	prog, err := parse(res.Source)
	if res.OnComplete != nil {
		res.OnComplete(m.ptr, name)
	}
	if err != nil {
		m.reportCompile(name, err.(*compileError))
		return nil, m.fail("Could not compile module '%s'.", name)
	}
	mod := m.module(name)
	if err := m.runModule(mod, prog); err != nil {
		return nil, err
	}
	return mod, nil
}

// stringify converts v to text through its toString method.
func (m *machine) stringify(v value) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return numString(x), nil
	case bool:
		if x {
			return "true", nil
		}
		return "false", nil
	case nil:
		return "null", nil
	}
	r, err := m.invoke(v, "toString", nil)
	if err != nil {
		return "", err
	}
	s, ok := r.(string)
	if !ok {
		return "", m.fail("toString must return a string.")
	}
	return s, nil
}

// display renders v without running script code.
func (m *machine) display(v value) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return numString(x)
	case bool, nil:
		s, _ := m.stringify(x)
		return s
	case *classObj:
		return x.name
	}
	return "instance of " + classOf(v).name
}
