package errchain

import "fmt"

// Standard error codes the dispatcher maps to JSON-RPC error codes at
// the transport boundary (§6, §7).
const (
	CodeMethodNotFound   = "MethodNotFound"
	CodeValidationError  = "ValidationError"
	CodeTimeoutError     = "TimeoutError"
	CodePluginConflict   = "PluginConflict"
	CodeIncompatible     = "IncompatiblePlugin"
	CodeUnknownToken     = "UnknownToken"
	CodeCyclicDependency = "CyclicDependency"
	CodePermissionDenied = "PermissionDenied"
	CodeInternalError    = "InternalError"
)

// AppError is the common shape every engine-raised error satisfies so
// the default handler can read a Code() and the dispatcher can map it
// to a protocol error code (§6, §7).
type AppError struct {
	code    string
	message string
	details any
}

func NewAppError(code, message string, details any) *AppError {
	return &AppError{code: code, message: message, details: details}
}

func (e *AppError) Error() string  { return fmt.Sprintf("%s: %s", e.code, e.message) }
func (e *AppError) Code() string   { return e.code }
func (e *AppError) Details() any   { return e.details }

func MethodNotFound(kind, name string) *AppError {
	return NewAppError(CodeMethodNotFound, fmt.Sprintf("no %s registered with name %q", kind, name), nil)
}

func Validation(message string, details any) *AppError {
	return NewAppError(CodeValidationError, message, details)
}

func Timeout(message string) *AppError {
	return NewAppError(CodeTimeoutError, message, nil)
}

func Permission(message string, details any) *AppError {
	return NewAppError(CodePermissionDenied, message, details)
}
