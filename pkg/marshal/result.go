package marshal

import (
	"fmt"

	"github.com/morezero/sparkling-bridge/pkg/dynamic"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

// OriginalResultKey marks a legacy handler map that must be returned verbatim.
const OriginalResultKey = "__original_result__"

// Outcome is what a handler hands to its completion: Success, Failure or RawRedirect.
type Outcome interface {
	outcome()
}

// Success carries a handler's payload.
type Success struct {
	Data any
}

// Failure carries a code, message and optional payload.
type Failure struct {
	Code    status.Code
	Message string
	Data    any
}

// RawRedirect carries a legacy handler's own map.
type RawRedirect struct {
	Data map[string]any
}

func (Success) outcome()     {}
func (Failure) outcome()     {}
func (RawRedirect) outcome() {}

// Fail is shorthand for a Failure without payload.
func Fail(code status.Code, format string, args ...any) Failure {
	return Failure{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FromError converts err into a Failure, keeping the code of a *status.Error.
func FromError(err error) Failure {
	r := status.FromError(err)
	f := Failure{Code: r.Code, Message: r.Message}
	if !r.Data.IsNull() {
		f.Data = r.Data
	}
	return f
}

// ConvertHandlerResult turns an outcome into the result envelope for a method registered with shape.
func ConvertHandlerResult(o Outcome, shape status.Shape) status.Result {
	if shape == status.ShapeRawPassthrough {
		if _, ok := o.(RawRedirect); !ok {
			shape = status.ShapeWrapped
		}
	}
	switch x := o.(type) {
	case Success:
		data, ok := dynamic.Convert(x.Data)
		if !ok {
			return status.Result{
				Code:    status.CodeInvalidResult,
				Message: fmt.Sprintf("unsupported result type %T", x.Data),
				Shape:   shape,
			}
		}
		r := status.Success(data)
		r.Shape = shape
		return r
	case *Success:
		if x == nil {
			return ConvertHandlerResult(Success{}, shape)
		}
		return ConvertHandlerResult(*x, shape)
	case Failure:
		r := status.Failure(x.Code, x.Message)
		r.Data = dynamic.FromAny(x.Data)
		r.Shape = shape
		return r
	case *Failure:
		if x == nil {
			return status.Failure(status.CodeFail, "")
		}
		return ConvertHandlerResult(*x, shape)
	case RawRedirect:
		return convertRaw(x.Data, shape)
	case nil:
		return status.Result{Code: status.CodeInvalidResult, Message: "handler completed without a result", Shape: status.ShapeWrapped}
	}
	return status.Result{Code: status.CodeInvalidResult, Message: fmt.Sprintf("unsupported outcome %T", o), Shape: status.ShapeWrapped}
}

func convertRaw(m map[string]any, shape status.Shape) status.Result {
	data := dynamic.Map(dynamic.MapOf(m))
	if _, legacy := m[OriginalResultKey]; legacy {
		code := status.CodeSuccess
		if n, ok := data.Get(status.KeyCode).AsNumber(); ok {
			if n.IsInt {
				code, _ = status.ParseCode(int(n.Int))
			} else {
				code = status.CodeInvalidResult
			}
		}
		msg, _ := data.Get(status.KeyMsg).AsString()
		return status.Result{Code: code, Message: msg, Data: data, Shape: status.ShapeRawPassthrough}
	}
	if shape == status.ShapeRawPassthrough {
		shape = status.ShapeWrapped
	}
	r := status.Success(data)
	r.Shape = shape
	return r
}
