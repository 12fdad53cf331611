package main

import (
	"strings"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/runtime"
)

// statementKeywords start lines that are never evaluated as expressions.
var statementKeywords = []string{
	"break", "class", "continue", "for", "foreign", "if", "import", "return", "var", "while",
}

// session is one REPL VM plus the output of the last evaluation.
type session struct {
	vm     *runtime.VM
	out    strings.Builder
	errors []runtime.ScriptError
}

func newSession(eng wrenruntime.Engine, cfg *Config, dirs []string) (*session, error) {
	s := &session{}
	vmCfg := vmConfig(cfg, dirs)
	vmCfg.OnWrite(func(_ *runtime.VM, text string) { s.out.WriteString(text) })
	vmCfg.OnError(func(_ *runtime.VM, err runtime.ScriptError) { s.errors = append(s.errors, err) })
	vm, err := runtime.NewVMWithConfig(eng, &vmCfg)
	if err != nil {
		return nil, err
	}
	s.vm = vm
	return s, nil
}

// eval runs line in the main module. A line that reads as an expression is
// printed; if it does not compile as one it runs as a statement instead.
func (s *session) eval(line string) (wrenruntime.InterpretResult, error) {
	if isExpression(line) {
		s.reset()
		res, err := s.vm.Interpret("System.print(" + line + ")")
		if err != nil || res != wrenruntime.ResultCompileError {
			return res, err
		}
	}
	s.reset()
	return s.vm.Interpret(line)
}

func (s *session) reset() {
	s.out.Reset()
	s.errors = nil
}

// output returns what the last evaluation printed, without the final newline.
func (s *session) output() string {
	return strings.TrimSuffix(s.out.String(), "\n")
}

// errorText returns the last evaluation's errors, one per line.
func (s *session) errorText() string {
	lines := make([]string, len(s.errors))
	for i, e := range s.errors {
		lines[i] = e.Error()
	}
	return strings.Join(lines, "\n")
}

func (s *session) close() error {
	return s.vm.Close()
}

func isExpression(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "//") {
		return false
	}
	word := line
	if i := strings.IndexAny(line, " \t({"); i >= 0 {
		word = line[:i]
	}
	for _, kw := range statementKeywords {
		if word == kw {
			return false
		}
	}
	return true
}
