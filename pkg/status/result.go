package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/morezero/sparkling-bridge/pkg/dynamic"
)

// Shape selects how a Result's payload is laid out in the outbound map.
type Shape int

const (
	// ShapeWrapped nests the payload under "data".
	ShapeWrapped Shape = iota
	// ShapeFlattened merges the payload fields next to code and msg.
	ShapeFlattened
	// ShapeRawPassthrough returns a legacy handler's map untouched.
	ShapeRawPassthrough
)

func (s Shape) String() string {
	switch s {
	case ShapeFlattened:
		return "flattened"
	case ShapeRawPassthrough:
		return "raw"
	}
	return "wrapped"
}

// ParseShape accepts "wrapped", "flattened" and "raw" (or "passthrough"). Empty means wrapped.
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "wrapped":
		return ShapeWrapped, nil
	case "flattened", "flat":
		return ShapeFlattened, nil
	case "raw", "passthrough", "raw_passthrough":
		return ShapeRawPassthrough, nil
	}
	return ShapeWrapped, fmt.Errorf("status:result - unknown result shape %q", s)
}

// Outbound map keys.
const (
	KeyCode = "code"
	KeyMsg  = "msg"
	KeyData = "data"
)

// Result is the normalized response delivered to a caller.
type Result struct {
	Code    Code
	Message string
	Data    dynamic.Value
	Shape   Shape
}

// Success builds a wrapped success result.
func Success(data dynamic.Value) Result {
	return Result{Code: CodeSuccess, Message: DefaultMessage(CodeSuccess), Data: data}
}

// Failure builds a wrapped result for code. An empty msg uses the code's default text.
func Failure(code Code, msg string) Result {
	if msg == "" {
		msg = DefaultMessage(code)
	}
	return Result{Code: code, Message: msg}
}

// FromError converts err into a failure result, keeping the code and details of an *Error.
func FromError(err error) Result {
	var be *Error
	if errors.As(err, &be) {
		r := Failure(be.Code, be.Message)
		if be.Details != nil {
			r.Data = dynamic.FromAny(be.Details)
		}
		return r
	}
	return Failure(CodeFail, err.Error())
}

// OK reports whether the result is a success.
func (r Result) OK() bool { return r.Code == CodeSuccess }

// ToMap lays the result out according to its shape.
func (r Result) ToMap() map[string]any {
	return r.layout(dynamic.Value.ToAny)
}

// JSONMap is ToMap with data members left as Values, so non-finite doubles encode as null.
func (r Result) JSONMap() map[string]any {
	return r.layout(func(v dynamic.Value) any { return v })
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.JSONMap())
}

func (r Result) layout(conv func(dynamic.Value) any) map[string]any {
	switch r.Shape {
	case ShapeRawPassthrough:
		if m, ok := r.Data.AsMap(); ok {
			out := make(map[string]any, len(m))
			for k, v := range m {
				out[k] = conv(v)
			}
			return out
		}
	case ShapeFlattened:
		out := map[string]any{KeyCode: int(r.Code), KeyMsg: r.Message}
		if m, ok := r.Data.AsMap(); ok {
			for k, v := range m {
				if k == KeyCode || k == KeyMsg {
					continue
				}
				out[k] = conv(v)
			}
		} else if !r.Data.IsNull() {
			out[KeyData] = conv(r.Data)
		}
		return out
	}
	out := map[string]any{KeyCode: int(r.Code), KeyMsg: r.Message}
	if !r.Data.IsNull() {
		out[KeyData] = conv(r.Data)
	}
	return out
}

func (r Result) String() string {
	return fmt.Sprintf("%s(%d): %s", r.Code, int(r.Code), r.Message)
}
