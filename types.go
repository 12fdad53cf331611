package wrenruntime

// MainModule is the module Interpret runs source in when none is named.
const MainModule = "main"

// InterpretResult is the status returned by Interpret and Call.
type InterpretResult int

const (
	ResultSuccess InterpretResult = iota
	ResultCompileError
	ResultRuntimeError
)

func (r InterpretResult) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultCompileError:
		return "compile error"
	case ResultRuntimeError:
		return "runtime error"
	default:
		return "unknown result"
	}
}

// ErrorType classifies an error callback.
type ErrorType int

const (
	// ErrorCompile carries module, line and message.
	ErrorCompile ErrorType = iota
	// ErrorRuntime carries the message only.
	ErrorRuntime
	// ErrorStackTrace is one call per frame with module, line and the frame's function.
	ErrorStackTrace
)

func (t ErrorType) String() string {
	switch t {
	case ErrorCompile:
		return "compile"
	case ErrorRuntime:
		return "runtime"
	case ErrorStackTrace:
		return "stack trace"
	default:
		return "unknown"
	}
}

// SlotType is the type of the value stored in a slot.
type SlotType int

const (
	TypeBool SlotType = iota
	TypeNumber
	TypeForeign
	TypeList
	TypeMap
	TypeNull
	TypeString
	// TypeUnknown is a value the slot API cannot decompose, such as an
	// instance of a script class. Only SlotType may be called on it.
	TypeUnknown
)

func (t SlotType) String() string {
	switch t {
	case TypeBool:
		return "Bool"
	case TypeNumber:
		return "Number"
	case TypeForeign:
		return "Foreign"
	case TypeList:
		return "List"
	case TypeMap:
		return "Map"
	case TypeNull:
		return "Null"
	case TypeString:
		return "String"
	default:
		return "Unknown"
	}
}
