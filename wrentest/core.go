package wrentest

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	objectClass *classObj
	classClass  *classObj
	boolClass   *classObj
	nullClass   *classObj
	numClass    *classObj
	stringClass *classObj
	listClass   *classObj
	mapClass    *classObj
	rangeClass  *classObj
	fnClass     *classObj
	systemClass *classObj
	fiberClass  *classObj

	coreGlobals map[string]value

	processStart = time.Now()
)

func init() {
	objectClass = builtin("Object", nil)
	classClass = builtin("Class", objectClass)
	boolClass = builtin("Bool", objectClass)
	nullClass = builtin("Null", objectClass)
	numClass = builtin("Num", objectClass)
	stringClass = builtin("String", objectClass)
	listClass = builtin("List", objectClass)
	mapClass = builtin("Map", objectClass)
	rangeClass = builtin("Range", objectClass)
	fnClass = builtin("Fn", objectClass)
	systemClass = builtin("System", objectClass)
	fiberClass = builtin("Fiber", objectClass)

	coreGlobals = make(map[string]value)
	for _, c := range []*classObj{
		objectClass, classClass, boolClass, nullClass, numClass, stringClass,
		listClass, mapClass, rangeClass, fnClass, systemClass, fiberClass,
	} {
		coreGlobals[c.name] = c
	}

	defineObject()
	defineClassClass()
	defineBool()
	defineNull()
	defineNum()
	defineString()
	defineList()
	defineMap()
	defineRange()
	defineFn()
	defineSystem()
	defineFiber()
}

func builtin(name string, super *classObj) *classObj {
	c := newClass(name, super, nil)
	c.builtin = true
	return c
}

func natives(c *classObj, static bool, defs map[string]nativeFn) {
	table := c.methods
	if static {
		table = c.statics
	}
	for sig, fn := range defs {
		table[sig] = &method{class: c, native: fn}
	}
}

func defineObject() {
	natives(objectClass, false, map[string]nativeFn{
		"==(_)": func(_ *machine, recv value, args []value) (value, error) {
			return valuesEqual(recv, args[0]), nil
		},
		"!=(_)": func(_ *machine, recv value, args []value) (value, error) {
			return !valuesEqual(recv, args[0]), nil
		},
		"!": func(*machine, value, []value) (value, error) {
			return false, nil
		},
		"is(_)": func(m *machine, recv value, args []value) (value, error) {
			c, ok := args[0].(*classObj)
			if !ok {
				return nil, m.fail("Right operand must be a class.")
			}
			return classOf(recv).inherits(c), nil
		},
		"toString": func(m *machine, recv value, _ []value) (value, error) {
			return m.display(recv), nil
		},
		"type": func(_ *machine, recv value, _ []value) (value, error) {
			return classOf(recv), nil
		},
	})
}

func defineClassClass() {
	natives(classClass, false, map[string]nativeFn{
		"name": func(_ *machine, recv value, _ []value) (value, error) {
			return recv.(*classObj).name, nil
		},
		"toString": func(_ *machine, recv value, _ []value) (value, error) {
			return recv.(*classObj).name, nil
		},
		"supertype": func(_ *machine, recv value, _ []value) (value, error) {
			if s := recv.(*classObj).super; s != nil {
				return s, nil
			}
			return nil, nil
		},
	})
}

func defineBool() {
	natives(boolClass, false, map[string]nativeFn{
		"!": func(_ *machine, recv value, _ []value) (value, error) {
			return !recv.(bool), nil
		},
		"toString": func(m *machine, recv value, _ []value) (value, error) {
			return m.stringify(recv)
		},
	})
}

func defineNull() {
	natives(nullClass, false, map[string]nativeFn{
		"!": func(*machine, value, []value) (value, error) {
			return true, nil
		},
		"toString": func(*machine, value, []value) (value, error) {
			return "null", nil
		},
	})
}

func numArg(m *machine, args []value, what string) (float64, error) {
	n, ok := args[0].(float64)
	if !ok {
		return 0, m.fail("%s must be a number.", what)
	}
	return n, nil
}

func numBinary(op func(a, b float64) value) nativeFn {
	return func(m *machine, recv value, args []value) (value, error) {
		b, err := numArg(m, args, "Right operand")
		if err != nil {
			return nil, err
		}
		return op(recv.(float64), b), nil
	}
}

func numUnary(op func(a float64) value) nativeFn {
	return func(_ *machine, recv value, _ []value) (value, error) {
		return op(recv.(float64)), nil
	}
}

func defineNum() {
	natives(numClass, false, map[string]nativeFn{
		"+(_)":  numBinary(func(a, b float64) value { return a + b }),
		"-(_)":  numBinary(func(a, b float64) value { return a - b }),
		"*(_)":  numBinary(func(a, b float64) value { return a * b }),
		"/(_)":  numBinary(func(a, b float64) value { return a / b }),
		"%(_)":  numBinary(func(a, b float64) value { return math.Mod(a, b) }),
		"<(_)":  numBinary(func(a, b float64) value { return a < b }),
		">(_)":  numBinary(func(a, b float64) value { return a > b }),
		"<=(_)": numBinary(func(a, b float64) value { return a <= b }),
		">=(_)": numBinary(func(a, b float64) value { return a >= b }),
		"min(_)": numBinary(func(a, b float64) value { return math.Min(a, b) }),
		"max(_)": numBinary(func(a, b float64) value { return math.Max(a, b) }),
		"pow(_)": numBinary(func(a, b float64) value { return math.Pow(a, b) }),
		"..(_)": numBinary(func(a, b float64) value {
			return &rangeObj{from: a, to: b, inclusive: true}
		}),
		"...(_)": numBinary(func(a, b float64) value {
			return &rangeObj{from: a, to: b}
		}),
		"-":         numUnary(func(a float64) value { return -a }),
		"abs":       numUnary(func(a float64) value { return math.Abs(a) }),
		"ceil":      numUnary(func(a float64) value { return math.Ceil(a) }),
		"floor":     numUnary(func(a float64) value { return math.Floor(a) }),
		"round":     numUnary(func(a float64) value { return math.Round(a) }),
		"truncate":  numUnary(func(a float64) value { return math.Trunc(a) }),
		"sqrt":      numUnary(func(a float64) value { return math.Sqrt(a) }),
		"sin":       numUnary(func(a float64) value { return math.Sin(a) }),
		"cos":       numUnary(func(a float64) value { return math.Cos(a) }),
		"isInteger": numUnary(func(a float64) value { return !math.IsInf(a, 0) && a == math.Trunc(a) }),
		"isNan":     numUnary(func(a float64) value { return math.IsNaN(a) }),
		"isInfinity": numUnary(func(a float64) value { return math.IsInf(a, 0) }),
		"toString":  numUnary(func(a float64) value { return numString(a) }),
	})
	natives(numClass, true, map[string]nativeFn{
		"pi": func(*machine, value, []value) (value, error) {
			return math.Pi, nil
		},
		"nan": func(*machine, value, []value) (value, error) {
			return math.NaN(), nil
		},
		"infinity": func(*machine, value, []value) (value, error) {
			return math.Inf(1), nil
		},
		"fromString(_)": func(m *machine, _ value, args []value) (value, error) {
			s, ok := args[0].(string)
			if !ok {
				return nil, m.fail("Argument must be a string.")
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, nil
			}
			return v, nil
		},
	})
}

func stringArg(m *machine, args []value, what string) (string, error) {
	s, ok := args[0].(string)
	if !ok {
		return "", m.fail("%s must be a string.", what)
	}
	return s, nil
}

func defineString() {
	natives(stringClass, false, map[string]nativeFn{
		"+(_)": func(m *machine, recv value, args []value) (value, error) {
			s, err := stringArg(m, args, "Right operand")
			if err != nil {
				return nil, err
			}
			return recv.(string) + s, nil
		},
		"*(_)": func(m *machine, recv value, args []value) (value, error) {
			n, err := numArg(m, args, "Count")
			if err != nil {
				return nil, err
			}
			if n < 0 || n != math.Trunc(n) {
				return nil, m.fail("Count must be a non-negative integer.")
			}
			return strings.Repeat(recv.(string), int(n)), nil
		},
		"count": func(_ *machine, recv value, _ []value) (value, error) {
			return float64(utf8.RuneCountInString(recv.(string))), nil
		},
		"byteCount_": func(_ *machine, recv value, _ []value) (value, error) {
			return float64(len(recv.(string))), nil
		},
		"isEmpty": func(_ *machine, recv value, _ []value) (value, error) {
			return recv.(string) == "", nil
		},
		"contains(_)": func(m *machine, recv value, args []value) (value, error) {
			s, err := stringArg(m, args, "Argument")
			if err != nil {
				return nil, err
			}
			return strings.Contains(recv.(string), s), nil
		},
		"startsWith(_)": func(m *machine, recv value, args []value) (value, error) {
			s, err := stringArg(m, args, "Argument")
			if err != nil {
				return nil, err
			}
			return strings.HasPrefix(recv.(string), s), nil
		},
		"endsWith(_)": func(m *machine, recv value, args []value) (value, error) {
			s, err := stringArg(m, args, "Argument")
			if err != nil {
				return nil, err
			}
			return strings.HasSuffix(recv.(string), s), nil
		},
		"indexOf(_)": func(m *machine, recv value, args []value) (value, error) {
			s, err := stringArg(m, args, "Argument")
			if err != nil {
				return nil, err
			}
			return float64(strings.Index(recv.(string), s)), nil
		},
		"trim()": func(_ *machine, recv value, _ []value) (value, error) {
			return strings.TrimSpace(recv.(string)), nil
		},
		"split(_)": func(m *machine, recv value, args []value) (value, error) {
			sep, err := stringArg(m, args, "Delimiter")
			if err != nil {
				return nil, err
			}
			if sep == "" {
				return nil, m.fail("Delimiter cannot be empty.")
			}
			l := &listObj{}
			for _, part := range strings.Split(recv.(string), sep) {
				l.elems = append(l.elems, part)
			}
			return l, nil
		},
		"[_]": func(m *machine, recv value, args []value) (value, error) {
			runes := []rune(recv.(string))
			i, err := index(m, args[0], len(runes), "Subscript")
			if err != nil {
				return nil, err
			}
			return string(runes[i]), nil
		},
		"iterate(_)": func(m *machine, recv value, args []value) (value, error) {
			s := recv.(string)
			if args[0] == nil {
				if s == "" {
					return false, nil
				}
				return 0.0, nil
			}
			i, ok := args[0].(float64)
			if !ok {
				return nil, m.fail("Iterator must be a number.")
			}
			if i < 0 || int(i) >= len(s) {
				return false, nil
			}
			_, size := utf8.DecodeRuneInString(s[int(i):])
			next := int(i) + size
			if next >= len(s) {
				return false, nil
			}
			return float64(next), nil
		},
		"iteratorValue(_)": func(m *machine, recv value, args []value) (value, error) {
			s := recv.(string)
			i, err := index(m, args[0], len(s), "Iterator")
			if err != nil {
				return nil, err
			}
			r, _ := utf8.DecodeRuneInString(s[i:])
			return string(r), nil
		},
		"toString": func(_ *machine, recv value, _ []value) (value, error) {
			return recv, nil
		},
	})
}

// index validates a subscript against count, counting negative values from
// the end.
func index(m *machine, v value, count int, what string) (int, error) {
	n, ok := v.(float64)
	if !ok {
		return 0, m.fail("%s must be a number.", what)
	}
	if n != math.Trunc(n) {
		return 0, m.fail("%s must be an integer.", what)
	}
	i := int(n)
	if i < 0 {
		i += count
	}
	if i < 0 || i >= count {
		return 0, m.fail("%s out of bounds.", what)
	}
	return i, nil
}

func (m *machine) join(elems []value, sep string) (string, error) {
	parts := make([]string, len(elems))
	for i, el := range elems {
		s, err := m.stringify(el)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, sep), nil
}

func defineList() {
	natives(listClass, true, map[string]nativeFn{
		"new()": func(*machine, value, []value) (value, error) {
			return &listObj{}, nil
		},
		"filled(_,_)": func(m *machine, _ value, args []value) (value, error) {
			n, err := numArg(m, args, "Size")
			if err != nil {
				return nil, err
			}
			if n < 0 || n != math.Trunc(n) {
				return nil, m.fail("Size cannot be negative.")
			}
			l := &listObj{elems: make([]value, int(n))}
			for i := range l.elems {
				l.elems[i] = args[1]
			}
			return l, nil
		},
	})
	natives(listClass, false, map[string]nativeFn{
		"add(_)": func(_ *machine, recv value, args []value) (value, error) {
			l := recv.(*listObj)
			l.elems = append(l.elems, args[0])
			return args[0], nil
		},
		"count": func(_ *machine, recv value, _ []value) (value, error) {
			return float64(len(recv.(*listObj).elems)), nil
		},
		"isEmpty": func(_ *machine, recv value, _ []value) (value, error) {
			return len(recv.(*listObj).elems) == 0, nil
		},
		"clear()": func(_ *machine, recv value, _ []value) (value, error) {
			recv.(*listObj).elems = nil
			return nil, nil
		},
		"[_]": func(m *machine, recv value, args []value) (value, error) {
			l := recv.(*listObj)
			i, err := index(m, args[0], len(l.elems), "Subscript")
			if err != nil {
				return nil, err
			}
			return l.elems[i], nil
		},
		"[_]=(_)": func(m *machine, recv value, args []value) (value, error) {
			l := recv.(*listObj)
			i, err := index(m, args[0], len(l.elems), "Subscript")
			if err != nil {
				return nil, err
			}
			l.elems[i] = args[1]
			return args[1], nil
		},
		"insert(_,_)": func(m *machine, recv value, args []value) (value, error) {
			l := recv.(*listObj)
			i, err := index(m, args[0], len(l.elems)+1, "Index")
			if err != nil {
				return nil, err
			}
			l.elems = append(l.elems, nil)
			copy(l.elems[i+1:], l.elems[i:])
			l.elems[i] = args[1]
			return args[1], nil
		},
		"removeAt(_)": func(m *machine, recv value, args []value) (value, error) {
			l := recv.(*listObj)
			i, err := index(m, args[0], len(l.elems), "Index")
			if err != nil {
				return nil, err
			}
			v := l.elems[i]
			l.elems = append(l.elems[:i], l.elems[i+1:]...)
			return v, nil
		},
		"indexOf(_)": func(_ *machine, recv value, args []value) (value, error) {
			for i, el := range recv.(*listObj).elems {
				if valuesEqual(el, args[0]) {
					return float64(i), nil
				}
			}
			return -1.0, nil
		},
		"contains(_)": func(_ *machine, recv value, args []value) (value, error) {
			for _, el := range recv.(*listObj).elems {
				if valuesEqual(el, args[0]) {
					return true, nil
				}
			}
			return false, nil
		},
		"+(_)": func(m *machine, recv value, args []value) (value, error) {
			other, ok := args[0].(*listObj)
			if !ok {
				return nil, m.fail("Right operand must be a list.")
			}
			elems := append(append([]value(nil), recv.(*listObj).elems...), other.elems...)
			return &listObj{elems: elems}, nil
		},
		"join()": func(m *machine, recv value, _ []value) (value, error) {
			return m.join(recv.(*listObj).elems, "")
		},
		"join(_)": func(m *machine, recv value, args []value) (value, error) {
			sep, err := stringArg(m, args, "Separator")
			if err != nil {
				return nil, err
			}
			return m.join(recv.(*listObj).elems, sep)
		},
		"iterate(_)": func(m *machine, recv value, args []value) (value, error) {
			return iterateIndex(m, args[0], len(recv.(*listObj).elems))
		},
		"iteratorValue(_)": func(m *machine, recv value, args []value) (value, error) {
			l := recv.(*listObj)
			i, err := index(m, args[0], len(l.elems), "Iterator")
			if err != nil {
				return nil, err
			}
			return l.elems[i], nil
		},
		"toString": func(m *machine, recv value, _ []value) (value, error) {
			s, err := m.join(recv.(*listObj).elems, ", ")
			if err != nil {
				return nil, err
			}
			return "[" + s + "]", nil
		},
	})
}

func iterateIndex(m *machine, iter value, count int) (value, error) {
	if iter == nil {
		if count == 0 {
			return false, nil
		}
		return 0.0, nil
	}
	i, ok := iter.(float64)
	if !ok {
		return nil, m.fail("Iterator must be a number.")
	}
	if i < 0 || int(i)+1 >= count {
		return false, nil
	}
	return i + 1, nil
}

func keyArg(m *machine, k value) error {
	if !validKey(k) {
		return m.fail("Key must be a value type.")
	}
	return nil
}

func defineMap() {
	natives(mapClass, true, map[string]nativeFn{
		"new()": func(*machine, value, []value) (value, error) {
			return newMap(), nil
		},
	})
	natives(mapClass, false, map[string]nativeFn{
		"[_]": func(m *machine, recv value, args []value) (value, error) {
			if err := keyArg(m, args[0]); err != nil {
				return nil, err
			}
			v, _ := recv.(*mapObj).get(args[0])
			return v, nil
		},
		"[_]=(_)": func(m *machine, recv value, args []value) (value, error) {
			if err := keyArg(m, args[0]); err != nil {
				return nil, err
			}
			recv.(*mapObj).set(args[0], args[1])
			return args[1], nil
		},
		"containsKey(_)": func(m *machine, recv value, args []value) (value, error) {
			if err := keyArg(m, args[0]); err != nil {
				return nil, err
			}
			_, ok := recv.(*mapObj).get(args[0])
			return ok, nil
		},
		"remove(_)": func(m *machine, recv value, args []value) (value, error) {
			if err := keyArg(m, args[0]); err != nil {
				return nil, err
			}
			v, _ := recv.(*mapObj).remove(args[0])
			return v, nil
		},
		"count": func(_ *machine, recv value, _ []value) (value, error) {
			return float64(len(recv.(*mapObj).order)), nil
		},
		"isEmpty": func(_ *machine, recv value, _ []value) (value, error) {
			return len(recv.(*mapObj).order) == 0, nil
		},
		"clear()": func(_ *machine, recv value, _ []value) (value, error) {
			mp := recv.(*mapObj)
			mp.entries = make(map[value]value)
			mp.order = nil
			return nil, nil
		},
		"keys": func(_ *machine, recv value, _ []value) (value, error) {
			return &listObj{elems: append([]value(nil), recv.(*mapObj).order...)}, nil
		},
		"values": func(_ *machine, recv value, _ []value) (value, error) {
			mp := recv.(*mapObj)
			l := &listObj{elems: make([]value, 0, len(mp.order))}
			for _, k := range mp.order {
				l.elems = append(l.elems, mp.entries[k])
			}
			return l, nil
		},
		"toString": func(m *machine, recv value, _ []value) (value, error) {
			mp := recv.(*mapObj)
			parts := make([]string, 0, len(mp.order))
			for _, k := range mp.order {
				ks, err := m.stringify(k)
				if err != nil {
					return nil, err
				}
				vs, err := m.stringify(mp.entries[k])
				if err != nil {
					return nil, err
				}
				parts = append(parts, ks+": "+vs)
			}
			return "{" + strings.Join(parts, ", ") + "}", nil
		},
	})
}

func defineRange() {
	natives(rangeClass, false, map[string]nativeFn{
		"from": func(_ *machine, recv value, _ []value) (value, error) {
			return recv.(*rangeObj).from, nil
		},
		"to": func(_ *machine, recv value, _ []value) (value, error) {
			return recv.(*rangeObj).to, nil
		},
		"isInclusive": func(_ *machine, recv value, _ []value) (value, error) {
			return recv.(*rangeObj).inclusive, nil
		},
		"iterate(_)": func(m *machine, recv value, args []value) (value, error) {
			r := recv.(*rangeObj)
			if r.from == r.to && !r.inclusive {
				return false, nil
			}
			if args[0] == nil {
				return r.from, nil
			}
			i, ok := args[0].(float64)
			if !ok {
				return nil, m.fail("Iterator must be a number.")
			}
			if r.from <= r.to {
				i++
				if i > r.to || (!r.inclusive && i == r.to) {
					return false, nil
				}
			} else {
				i--
				if i < r.to || (!r.inclusive && i == r.to) {
					return false, nil
				}
			}
			return i, nil
		},
		"iteratorValue(_)": func(_ *machine, _ value, args []value) (value, error) {
			return args[0], nil
		},
		"toString": func(_ *machine, recv value, _ []value) (value, error) {
			r := recv.(*rangeObj)
			op := "..."
			if r.inclusive {
				op = ".."
			}
			return numString(r.from) + op + numString(r.to), nil
		},
	})
}

func defineFn() {
	natives(fnClass, true, map[string]nativeFn{
		"new(_)": func(m *machine, _ value, args []value) (value, error) {
			c, ok := args[0].(*closure)
			if !ok {
				return nil, m.fail("Argument must be a function.")
			}
			return c, nil
		},
	})
	call := func(m *machine, recv value, args []value) (value, error) {
		return m.callClosure(recv.(*closure), args)
	}
	calls := map[string]nativeFn{"call()": call}
	for n := 1; n <= 16; n++ {
		calls[signature("call", n)] = call
	}
	calls["arity"] = func(_ *machine, recv value, _ []value) (value, error) {
		return float64(len(recv.(*closure).fn.params)), nil
	}
	calls["toString"] = func(*machine, value, []value) (value, error) {
		return "<fn>", nil
	}
	natives(fnClass, false, calls)
}

func defineSystem() {
	natives(systemClass, true, map[string]nativeFn{
		"print()": func(m *machine, _ value, _ []value) (value, error) {
			m.write("\n")
			return nil, nil
		},
		"print(_)": func(m *machine, _ value, args []value) (value, error) {
			s, err := m.stringify(args[0])
			if err != nil {
				return nil, err
			}
			m.write(s)
			m.write("\n")
			return args[0], nil
		},
		"write(_)": func(m *machine, _ value, args []value) (value, error) {
			s, err := m.stringify(args[0])
			if err != nil {
				return nil, err
			}
			m.write(s)
			return args[0], nil
		},
		"printAll(_)": func(m *machine, _ value, args []value) (value, error) {
			l, ok := args[0].(*listObj)
			if !ok {
				return nil, m.fail("Argument must be a list.")
			}
			s, err := m.join(l.elems, "")
			if err != nil {
				return nil, err
			}
			m.write(s)
			m.write("\n")
			return nil, nil
		},
		"gc()": func(m *machine, _ value, _ []value) (value, error) {
			m.requestCollection()
			return nil, nil
		},
		"clock": func(*machine, value, []value) (value, error) {
			return time.Since(processStart).Seconds(), nil
		},
	})
}

func defineFiber() {
	natives(fiberClass, true, map[string]nativeFn{
		"abort(_)": func(m *machine, _ value, args []value) (value, error) {
			if args[0] == nil {
				return nil, nil
			}
			return nil, m.abortError(args[0])
		},
	})
}
