// Package apierr defines the exit-visible error taxonomy the agent loop
// and its subsystems raise: a fixed Code enum plus a Retryable flag.
package apierr

import "fmt"

// Code is one of the exit-visible error codes.
type Code string

const (
	CodeAPIError             Code = "API_ERROR"
	CodeCLIError             Code = "CLI_ERROR"
	CodeAuthError            Code = "AUTH_ERROR"
	CodeRateLimit            Code = "RATE_LIMIT"
	CodeMaxTokens            Code = "MAX_TOKENS"
	CodeMaxTurns             Code = "MAX_TURNS"
	CodeEmergencyMaxTurns    Code = "EMERGENCY_MAX_TURNS"
	CodeInfiniteLoopDetected Code = "INFINITE_LOOP_DETECTED"
	CodeNetworkError         Code = "NETWORK_ERROR"
	CodeToolError            Code = "TOOL_ERROR"
	CodeUnknownTool          Code = "UNKNOWN_TOOL"
	CodeInvalidResponse      Code = "INVALID_RESPONSE"
)

// Error is the typed error carried through the loop and subprocess layers.
type Error struct {
	Code      Code
	Retryable bool
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a fatal (non-retryable) error of the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Retryable builds a retryable error of the given code.
func Retryable(code Code, message string) *Error {
	return &Error{Code: code, Retryable: true, Message: message}
}

// Wrap builds an error of the given code around an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WrapRetryable builds a retryable error of the given code around a cause.
func WrapRetryable(code Code, message string, cause error) *Error {
	return &Error{Code: code, Retryable: true, Message: message, Cause: cause}
}

// As reports whether err is an *Error and returns it.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// CodeOf returns the Code of err if it is an *Error, else "".
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable
}
