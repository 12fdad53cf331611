package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConfig    Phase = "config"    // VM and engine configuration
	PhaseRegistry  Phase = "registry"  // VM pointer registry
	PhaseCallback  Phase = "callback"  // native-to-host callback routing
	PhaseSlot      Phase = "slot"      // slot reads and writes
	PhaseHandle    Phase = "handle"    // value and call handles
	PhaseForeign   Phase = "foreign"   // foreign object table
	PhaseBind      Phase = "bind"      // class mapping and signature binding
	PhaseInterpret Phase = "interpret" // script interpretation
	PhaseEngine    Phase = "engine"    // engine backend
	PhaseLoad      Phase = "load"      // module loading
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch          Kind = "type_mismatch"
	KindOutOfBounds           Kind = "out_of_bounds"
	KindInvalidData           Kind = "invalid_data"
	KindUnsupported           Kind = "unsupported"
	KindAllocation            Kind = "allocation"
	KindOverflow              Kind = "overflow"
	KindNilPointer            Kind = "nil_pointer"
	KindMissingExport         Kind = "missing_export"
	KindNotFound              Kind = "not_found"
	KindNotInitialized        Kind = "not_initialized"
	KindInvalidInput          Kind = "invalid_input"
	KindInstantiation         Kind = "instantiation"
	KindClosed                Kind = "closed"
	KindUnknownHandle         Kind = "unknown_handle"
	KindStaleHandle           Kind = "stale_handle"
	KindDuplicateHandle       Kind = "duplicate_handle"
	KindUseAfterRelease       Kind = "use_after_release"
	KindWrongVM               Kind = "wrong_vm"
	KindForeignObjectNotFound Kind = "foreign_object_not_found"
	KindDuplicateSignature    Kind = "duplicate_signature"
	KindInvalidSignature      Kind = "invalid_signature"
	KindMissingAllocator      Kind = "missing_allocator"
	KindModuleAlreadyLoaded   Kind = "module_already_loaded"
	KindTrap                  Kind = "trap"
)

// Sentinels for errors.Is. Matching compares Phase and Kind only.
var (
	ErrClosed                = &Error{Phase: PhaseInterpret, Kind: KindClosed}
	ErrUnknownHandle         = &Error{Phase: PhaseRegistry, Kind: KindUnknownHandle}
	ErrStaleHandle           = &Error{Phase: PhaseRegistry, Kind: KindStaleHandle}
	ErrDuplicateHandle       = &Error{Phase: PhaseRegistry, Kind: KindDuplicateHandle}
	ErrUseAfterRelease       = &Error{Phase: PhaseHandle, Kind: KindUseAfterRelease}
	ErrWrongVM               = &Error{Phase: PhaseHandle, Kind: KindWrongVM}
	ErrForeignObjectNotFound = &Error{Phase: PhaseForeign, Kind: KindForeignObjectNotFound}
	ErrDuplicateSignature    = &Error{Phase: PhaseBind, Kind: KindDuplicateSignature}
	ErrInvalidSignature      = &Error{Phase: PhaseBind, Kind: KindInvalidSignature}
	ErrMissingAllocator      = &Error{Phase: PhaseBind, Kind: KindMissingAllocator}
	ErrModuleAlreadyLoaded   = &Error{Phase: PhaseBind, Kind: KindModuleAlreadyLoaded}
)

// Error is the structured error type used throughout the library
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	GoType   string
	WrenType string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.WrenType != "" {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.WrenType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", Wren type ")
			b.WriteString(e.WrenType)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("Wren type ")
			b.WriteString(e.WrenType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.WrenType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the member path (module, class, signature)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// WrenType sets the Wren-side type or slot type name
func (b *Builder) WrenType(t string) *Builder {
	b.err.WrenType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a slot type mismatch error
func TypeMismatch(phase Phase, path []string, goType, wrenType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		GoType:   goType,
		WrenType: wrenType,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, path []string, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		GoType: goType,
		Detail: "nil pointer",
	}
}

// Overflow creates an overflow error for a double that does not fit a Go integer
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		GoType: targetType,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed creates an error for an operation on a closed VM or engine
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Trap creates an error for a wasm trap raised inside an engine call
func Trap(fn string, cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindTrap,
		Path:   []string{fn},
		Detail: "engine call trapped",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingExportsError is returned when a wasm module does not provide the
// exports the Wren engine ABI requires.
type MissingExportsError struct {
	Exports []string
}

// NewMissingExportsError creates an error listing the missing export names
func NewMissingExportsError(exports []string) *MissingExportsError {
	return &MissingExportsError{Exports: exports}
}

func (e *MissingExportsError) Error() string {
	if len(e.Exports) == 0 {
		return "[engine] missing_export: no exports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d engine export(s):", len(e.Exports)))
	for _, name := range e.Exports {
		b.WriteString("\n  - ")
		b.WriteString(name)
	}
	return b.String()
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	_, ok := target.(*MissingExportsError)
	return ok
}
