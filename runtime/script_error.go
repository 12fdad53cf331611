package runtime

import (
	"fmt"

	wrenruntime "github.com/wippyai/wren-runtime"
)

// ScriptError is a compile error, runtime error or stack frame reported by
// the engine. Script errors are delivered to error handlers; Interpret only
// reports them through its result code.
type ScriptError struct {
	Module  string
	Message string
	Type    wrenruntime.ErrorType
	Line    int
}

func (e ScriptError) Error() string {
	switch e.Type {
	case wrenruntime.ErrorCompile:
		return fmt.Sprintf("[%s line %d] %s", e.Module, e.Line, e.Message)
	case wrenruntime.ErrorStackTrace:
		return fmt.Sprintf("[%s line %d] in %s", e.Module, e.Line, e.Message)
	default:
		return e.Message
	}
}
