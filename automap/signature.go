package automap

import "strings"

// ConstructorName is the name of generated constructors.
const ConstructorName = "new"

// MaxArgs is the most arguments a Wren method can take.
const MaxArgs = 16

func params(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("_,", n-1) + "_"
}

// MakeMethodSignature returns the signature of a method taking args
// arguments, e.g. "foo(_,_)". Argument names do not take part.
func MakeMethodSignature(name string, args int) string {
	return name + "(" + params(args) + ")"
}

// MakeGetterSignature returns the signature of a getter: the bare name.
func MakeGetterSignature(name string) string {
	return name
}

// MakeSetterSignature returns the signature of a setter, e.g. "x=(_)".
func MakeSetterSignature(name string) string {
	return name + "=(_)"
}

// MakeIndexerGetter returns the signature of a subscript getter, e.g. "[_,_]".
func MakeIndexerGetter(args int) string {
	return "[" + params(args) + "]"
}

// MakeIndexerSetter returns the signature of a subscript setter, e.g. "[_]=(_)".
func MakeIndexerSetter(args int) string {
	return MakeIndexerGetter(args) + "=(_)"
}

// MakeConstructorSignature returns the signature of a constructor,
// e.g. "new(_,_)".
func MakeConstructorSignature(args int) string {
	return MakeMethodSignature(ConstructorName, args)
}

var reserved = map[string]bool{
	"as": true, "break": true, "class": true, "construct": true, "continue": true,
	"else": true, "false": true, "for": true, "foreign": true, "if": true,
	"import": true, "in": true, "is": true, "null": true, "return": true,
	"static": true, "super": true, "this": true, "true": true, "var": true,
	"while": true,
}

// ValidName reports whether name can be used as a Wren class, method or
// parameter name.
func ValidName(name string) bool {
	if name == "" || reserved[name] {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// camelCase lowercases the leading capitals of a Go identifier:
// "GetLength" becomes "getLength", "ID" becomes "id", "URLPath" becomes "urlPath".
func camelCase(name string) string {
	n := 0
	for n < len(name) && 'A' <= name[n] && name[n] <= 'Z' {
		n++
	}
	switch {
	case n == 0:
		return name
	case n == len(name):
		return strings.ToLower(name)
	case n > 1:
		n--
	}
	return strings.ToLower(name[:n]) + name[n:]
}

// argNames returns generated parameter names a, b, c, ...
func argNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	return names
}
