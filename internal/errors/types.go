package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeCompile    ErrorType = "compile"
	ErrorTypeExpression ErrorType = "expression"
	ErrorTypeAssertion  ErrorType = "assertion"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeInternal   ErrorType = "internal"
)

// FibreError is a structured error type with context.
type FibreError struct {
	Type      ErrorType
	Code      string
	Message   string
	Cause     error
	Subsystem string
	Construct string
	FilePath  string
	Offset    int
	Context   map[string]interface{}
}

// Error implements the error interface.
func (e *FibreError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Subsystem != "" {
		parts = append(parts, e.Subsystem+":")
	}

	if e.FilePath != "" {
		parts = append(parts, e.FilePath+":")
	}

	msg := e.Message
	if e.Construct != "" {
		if e.Offset > 0 {
			msg += fmt.Sprintf(" in %q at offset %d", e.Construct, e.Offset)
		} else {
			msg += fmt.Sprintf(" in %q", e.Construct)
		}
	}
	parts = append(parts, msg)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *FibreError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *FibreError) Is(target error) bool {
	var t *FibreError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *FibreError) WithContext(key string, value interface{}) *FibreError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithConstruct records the offending source construct.
func (e *FibreError) WithConstruct(construct string, offset int) *FibreError {
	e.Construct = construct
	e.Offset = offset

	return e
}

// WithFile adds file location information.
func (e *FibreError) WithFile(filePath string) *FibreError {
	e.FilePath = filePath

	return e
}

// WithCause attaches an underlying error.
func (e *FibreError) WithCause(cause error) *FibreError {
	e.Cause = cause

	return e
}

// Error creation functions

// NewCompileError creates a template compilation error.
func NewCompileError(code, message string) *FibreError {
	return &FibreError{
		Type:      ErrorTypeCompile,
		Code:      code,
		Message:   message,
		Subsystem: "template",
	}
}

// NewExpressionError creates an expression scanning or evaluation error.
func NewExpressionError(code, message string) *FibreError {
	return &FibreError{
		Type:      ErrorTypeExpression,
		Code:      code,
		Message:   message,
		Subsystem: "expression",
	}
}

// NewAssertionError creates a runtime contract violation.
func NewAssertionError(subsystem, code, message string) *FibreError {
	return &FibreError{
		Type:      ErrorTypeAssertion,
		Code:      code,
		Message:   message,
		Subsystem: subsystem,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *FibreError {
	return &FibreError{
		Type:      ErrorTypeConfig,
		Code:      code,
		Message:   message,
		Subsystem: "config",
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *FibreError {
	return &FibreError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsCompileError reports whether err was raised while compiling a template
// or one of its expressions.
func IsCompileError(err error) bool {
	var fe *FibreError
	if errors.As(err, &fe) {
		return fe.Type == ErrorTypeCompile || fe.Type == ErrorTypeExpression
	}

	return false
}

// IsAssertion reports whether err is a runtime contract violation.
func IsAssertion(err error) bool {
	var fe *FibreError
	if errors.As(err, &fe) {
		return fe.Type == ErrorTypeAssertion
	}

	return false
}

// CodeOf returns the code of the first FibreError in err's chain.
func CodeOf(err error) string {
	var fe *FibreError
	if errors.As(err, &fe) {
		return fe.Code
	}

	return ""
}

// Common error codes.
const (
	ErrCodeUnterminatedString = "ERR_UNTERMINATED_STRING"
	ErrCodeUnterminatedExpr   = "ERR_UNTERMINATED_EXPRESSION"
	ErrCodeEmptyExpression    = "ERR_EMPTY_EXPRESSION"
	ErrCodeAssignment         = "ERR_ASSIGNMENT"
	ErrCodeArrowFunction      = "ERR_ARROW_FUNCTION"
	ErrCodeStatement          = "ERR_STATEMENT"
	ErrCodeComment            = "ERR_COMMENT"
	ErrCodeDivision           = "ERR_AMBIGUOUS_DIVISION"
	ErrCodeMissingIdentifier  = "ERR_MISSING_IDENTIFIER"
	ErrCodeUnbalanced         = "ERR_UNBALANCED"
	ErrCodeUnsupported        = "ERR_UNSUPPORTED_SYNTAX"
	ErrCodeEvaluation         = "ERR_EVALUATION"

	ErrCodeLoopHeader        = "ERR_LOOP_HEADER"
	ErrCodeFlowControl       = "ERR_MULTIPLE_FLOW_CONTROL"
	ErrCodeOrphanBranch      = "ERR_ORPHAN_BRANCH"
	ErrCodeOrphanCase        = "ERR_CASE_OUTSIDE_SWITCH"
	ErrCodeSwitchContent     = "ERR_SWITCH_CONTENT"
	ErrCodeComponentContent  = "ERR_COMPONENT_CONTENT"
	ErrCodeMissingExpression = "ERR_MISSING_EXPRESSION"
	ErrCodeUnknownComponent  = "ERR_UNKNOWN_COMPONENT"
	ErrCodeIsAttribute       = "ERR_IS_ATTRIBUTE"
	ErrCodeMultipleRoots     = "ERR_MULTIPLE_ROOTS"
	ErrCodeSlotSyntax        = "ERR_SLOT_SYNTAX"

	ErrCodeTypeMismatch   = "ERR_TYPE_MISMATCH"
	ErrCodeUndeclaredKey  = "ERR_UNDECLARED_KEY"
	ErrCodeMissingSlot    = "ERR_MISSING_SLOT"
	ErrCodeNodeResolution = "ERR_NODE_RESOLUTION"

	ErrCodeConfigInvalid = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound  = "ERR_FILE_NOT_FOUND"
	ErrCodeInternalError = "ERR_INTERNAL"
)
