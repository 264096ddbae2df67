// Package status defines the bridge result codes and the result envelope returned to callers.
package status

import (
	"errors"
	"fmt"
)

// Code is the closed set of bridge result codes. The values are shared by every host platform.
type Code int

const (
	CodeSuccess         Code = 1
	CodeFail            Code = 0
	CodeNoAuthority     Code = -1
	CodeUnregistered    Code = -2
	CodeInvalidParam    Code = -3
	CodeNotImplemented  Code = -4
	CodeInvalidResult   Code = -5
	CodeCallIntercepted Code = -10
)

var codeNames = map[Code]string{
	CodeSuccess:         "SUCCESS",
	CodeFail:            "FAIL",
	CodeNoAuthority:     "NO_AUTHORITY",
	CodeUnregistered:    "UNREGISTERED",
	CodeInvalidParam:    "INVALID_PARAM",
	CodeNotImplemented:  "NOT_IMPLEMENTED",
	CodeInvalidResult:   "INVALID_RESULT",
	CodeCallIntercepted: "CALL_INTERCEPTED",
}

var defaultMessages = map[Code]string{
	CodeSuccess:         "success",
	CodeFail:            "failed",
	CodeNoAuthority:     "no authority",
	CodeUnregistered:    "method not registered",
	CodeInvalidParam:    "invalid parameter",
	CodeNotImplemented:  "not implemented",
	CodeInvalidResult:   "invalid result",
	CodeCallIntercepted: "call intercepted",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// Known reports whether c is a member of the closed set.
func (c Code) Known() bool {
	_, ok := codeNames[c]
	return ok
}

// DefaultMessage returns the human-readable text used when a result carries no message of its own.
func DefaultMessage(c Code) string {
	if s, ok := defaultMessages[c]; ok {
		return s
	}
	return "unknown status"
}

// ParseCode maps an integer onto the closed set; unknown values are reported with ok=false and map to FAIL.
func ParseCode(v int) (Code, bool) {
	c := Code(v)
	if !c.Known() {
		return CodeFail, false
	}
	return c, true
}

// Codes lists every code, most negative last.
func Codes() []Code {
	return []Code{CodeSuccess, CodeFail, CodeNoAuthority, CodeUnregistered, CodeInvalidParam,
		CodeNotImplemented, CodeInvalidResult, CodeCallIntercepted}
}

// Error is a structured error that carries a bridge result code.
type Error struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Code.String() + ": " + e.Message
}

// NewError creates a new Error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the result code from err. Errors that carry no code are FAIL; nil is SUCCESS.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeFail
}
