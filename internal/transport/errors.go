package transport

import (
	"fmt"

	"sker/internal/errchain"
)

// JSON-RPC error codes named in §6; method-not-found/invalid-params/
// internal are the reserved JSON-RPC codes, custom app errors use the
// -32000..-32099 range with a data.code string (§6, §7).
const (
	jsonrpcMethodNotFound = -32601
	jsonrpcInvalidParams  = -32602
	jsonrpcInternalError  = -32603

	jsonrpcPermissionDenied = -32002
	jsonrpcTimeout          = -32000
	jsonrpcAppError         = -32001
)

// protocolError is the Go error handed back to the mcp-go handler
// signature for failures that belong at the JSON-RPC envelope level
// (as opposed to a tool's own IsError result content). mcp-go's
// stdio/HTTP framing is the black-box transport that turns this into
// the wire-level { error: { code, message, data } } object (§1, §6);
// this type carries the code/message/data it needs to do that.
type protocolError struct {
	jsonrpcCode int
	appCode     string
	message     string
	details     any
}

func (e *protocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.appCode, e.message)
}

// Code satisfies whatever "does this error carry a JSON-RPC code"
// interface the transport's SDK looks for.
func (e *protocolError) Code() int { return e.jsonrpcCode }

func (e *protocolError) Data() map[string]any {
	data := map[string]any{"code": e.appCode}
	if e.details != nil {
		data["details"] = e.details
	}
	return data
}

// isProtocolCode reports whether an errchain.Response's code belongs at
// the JSON-RPC envelope level (§6/§7) rather than as ordinary
// business-logic tool-result content. A tool invocation's own domain
// errors (e.g. a plugin-defined failure code) stay in the result
// content via mcp.NewToolResultError; only these reach the caller as a
// genuine protocol error.
func isProtocolCode(code string) bool {
	switch code {
	case errchain.CodeMethodNotFound, errchain.CodeValidationError, errchain.CodePermissionDenied, errchain.CodeTimeoutError:
		return true
	default:
		return false
	}
}

// mapErrorResponse classifies an errchain.Response into a protocolError
// per the §7 taxonomy; a bare error goes through mapBareError instead.
func mapErrorResponse(resp errchain.Response) *protocolError {
	code := jsonrpcAppError
	switch resp.Code {
	case errchain.CodeMethodNotFound:
		code = jsonrpcMethodNotFound
	case errchain.CodeValidationError:
		code = jsonrpcInvalidParams
	case errchain.CodePermissionDenied:
		code = jsonrpcPermissionDenied
	case errchain.CodeTimeoutError:
		code = jsonrpcTimeout
	case errchain.CodeInternalError, "":
		code = jsonrpcInternalError
	}
	return &protocolError{
		jsonrpcCode: code,
		appCode:     resp.Code,
		message:     resp.Message,
		details:     resp.Details,
	}
}

func mapBareError(err error) *protocolError {
	appCode := errchain.CodeInternalError
	if ec, ok := err.(interface{ Code() string }); ok {
		appCode = ec.Code()
	}
	return &protocolError{jsonrpcCode: jsonrpcInternalError, appCode: appCode, message: err.Error()}
}
