package basic

import "fmt"

// DiagCode identifies a compile-time diagnostic kind. Diagnostics are
// collected, not thrown; a single run may report several.
type DiagCode string

const (
	DiagUnterminatedString DiagCode = "UnterminatedString"
	DiagInvalidNumber      DiagCode = "InvalidNumber"
	DiagIllegalCharacter   DiagCode = "IllegalCharacter"
	DiagUnexpectedToken    DiagCode = "UnexpectedToken"
	DiagExpectedEndOfLine  DiagCode = "ExpectedEndOfLine"
	DiagTypeMismatch       DiagCode = "TypeMismatch"
	DiagUndeclared         DiagCode = "Undeclared"
	DiagRedeclared         DiagCode = "Redeclared"
	DiagArityMismatch      DiagCode = "ArityMismatch"
	DiagNotAnLValue        DiagCode = "NotAnLValue"
	DiagConstAssign        DiagCode = "ConstAssign"
	DiagBadCaseRange       DiagCode = "BadCaseRange"
	DiagDuplicateLabel     DiagCode = "DuplicateLabel"
	DiagUnknownLabel       DiagCode = "UnknownLabel"
	DiagNonConstInConst    DiagCode = "NonConstInConst"
	DiagInvalidForStep     DiagCode = "InvalidForStep"
	DiagRecordFieldUnknown DiagCode = "RecordFieldUnknown"
)

// Diagnostic is one compile-time finding with its source span.
type Diagnostic struct {
	Code    DiagCode
	Message string
	Span    Span
	Warning bool
}

func (d Diagnostic) String() string {
	sev := "error"
	if d.Warning {
		sev = "warning"
	}
	return fmt.Sprintf("%d:%d: %s[%s]: %s", d.Span.Line, d.Span.Col, sev, d.Code, d.Message)
}

// DiagSink collects diagnostics across pipeline stages.
type DiagSink struct {
	Diags []Diagnostic
}

// Errorf records an error diagnostic.
func (s *DiagSink) Errorf(code DiagCode, span Span, format string, args ...interface{}) {
	s.Diags = append(s.Diags, Diagnostic{Code: code, Message: fmt.Sprintf(format, args...), Span: span})
}

// Warnf records a warning diagnostic.
func (s *DiagSink) Warnf(code DiagCode, span Span, format string, args ...interface{}) {
	s.Diags = append(s.Diags, Diagnostic{Code: code, Message: fmt.Sprintf(format, args...), Span: span, Warning: true})
}

// HasErrors reports whether any non-warning diagnostic was recorded.
func (s *DiagSink) HasErrors() bool {
	for _, d := range s.Diags {
		if !d.Warning {
			return true
		}
	}
	return false
}

// RuntimeErrCode is a runtime failure class. The numeric values follow
// the classic QBasic error numbers where one exists.
type RuntimeErrCode int

const (
	ErrReturnWithoutGosub RuntimeErrCode = 3
	ErrOutOfData          RuntimeErrCode = 4
	ErrIllegalFunction    RuntimeErrCode = 5
	ErrOverflow           RuntimeErrCode = 6
	ErrBoundsViolation    RuntimeErrCode = 9
	ErrDivideByZero       RuntimeErrCode = 11
	ErrTypeMismatch       RuntimeErrCode = 13
	ErrBadChannel         RuntimeErrCode = 52
	ErrIOError            RuntimeErrCode = 57
	ErrStackOverflow      RuntimeErrCode = 28
	ErrInterrupted        RuntimeErrCode = 95
	ErrFeatureUnavailable RuntimeErrCode = 73
	ErrUnsupportedImage   RuntimeErrCode = 96
)

func (c RuntimeErrCode) String() string {
	switch c {
	case ErrReturnWithoutGosub:
		return "RETURN without GOSUB"
	case ErrOutOfData:
		return "Out of DATA"
	case ErrIllegalFunction:
		return "Illegal function call"
	case ErrOverflow:
		return "Overflow"
	case ErrBoundsViolation:
		return "Subscript out of range"
	case ErrDivideByZero:
		return "Division by zero"
	case ErrTypeMismatch:
		return "Type mismatch"
	case ErrBadChannel:
		return "Bad file number"
	case ErrIOError:
		return "Device I/O error"
	case ErrStackOverflow:
		return "Stack overflow"
	case ErrInterrupted:
		return "Interrupted"
	case ErrFeatureUnavailable:
		return "Advanced feature unavailable"
	case ErrUnsupportedImage:
		return "Unsupported bytecode image"
	}
	return "Unknown error"
}

// RuntimeError terminates execution. It carries the source span the VM
// derived from the source map at the failing instruction.
type RuntimeError struct {
	Code    RuntimeErrCode
	Message string
	Span    Span
}

// NewRuntimeError builds a runtime failure without location; the VM
// attaches the span when the error surfaces.
func NewRuntimeError(code RuntimeErrCode, message string) *RuntimeError {
	if message == "" {
		message = code.String()
	}
	return &RuntimeError{Code: code, Message: message}
}

func (e *RuntimeError) Error() string {
	if e.Span.Line > 0 {
		return fmt.Sprintf("Error %d: %s at line %d", int(e.Code), e.Message, e.Span.Line)
	}
	return fmt.Sprintf("Error %d: %s", int(e.Code), e.Message)
}
