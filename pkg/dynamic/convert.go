package dynamic

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"
)

// Marshaler is implemented by handler result types that know how to describe themselves as a Value.
type Marshaler interface {
	ToDynamic() Value
}

// FromAny converts a Go value, turning anything unsupported into Null.
func FromAny(in any) Value {
	v, _ := Convert(in)
	return v
}

// Convert converts a Go value. ok is false only when in itself has no dynamic representation;
// unsupported members nested inside slices and maps become Null without failing the conversion.
func Convert(in any) (Value, bool) {
	switch x := in.(type) {
	case nil:
		return Null(), true
	case Value:
		return x, true
	case *Value:
		if x == nil {
			return Null(), true
		}
		return *x, true
	case Marshaler:
		if rv := reflect.ValueOf(x); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return Null(), true
		}
		return x.ToDynamic(), true
	case bool:
		return Bool(x), true
	case int:
		return Integer(int64(x)), true
	case int8:
		return Int(int32(x)), true
	case int16:
		return Int(int32(x)), true
	case int32:
		return Int(x), true
	case int64:
		return Long(x), true
	case uint8:
		return Int(int32(x)), true
	case uint16:
		return Int(int32(x)), true
	case uint32:
		return Long(int64(x)), true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return Double(float64(x)), true
		}
		return Long(int64(x)), true
	case uint64:
		if x > math.MaxInt64 {
			return Double(float64(x)), true
		}
		return Long(int64(x)), true
	case float32:
		return Double(float64(x)), true
	case float64:
		return Double(x), true
	case json.Number:
		if i, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return Integer(i), true
		}
		if f, err := x.Float64(); err == nil {
			return Double(f), true
		}
		return Null(), false
	case string:
		return String(x), true
	case []byte:
		return Bytes(x), true
	case time.Time:
		return Long(x.UnixMilli()), true
	case []any:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = FromAny(e)
		}
		return Value{kind: KindArray, arr: out}, true
	case map[string]any:
		out := make(map[string]Value, len(x))
		for k, e := range x {
			out[k] = FromAny(e)
		}
		return Value{kind: KindMap, m: out}, true
	case map[string]Value:
		return Map(x), true
	case []Value:
		return Array(x...), true
	}
	return convertReflect(reflect.ValueOf(in))
}

func convertReflect(rv reflect.Value) (Value, bool) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), true
		}
		return Convert(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = FromAny(rv.Index(i).Interface())
		}
		return Value{kind: KindArray, arr: out}, true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Null(), false
		}
		out := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = FromAny(iter.Value().Interface())
		}
		return Value{kind: KindMap, m: out}, true
	case reflect.String:
		return String(rv.String()), true
	case reflect.Bool:
		return Bool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Integer(rv.Int()), true
	case reflect.Uint8, reflect.Uint16:
		return Int(int32(rv.Uint())), true
	case reflect.Uint32:
		return Long(int64(rv.Uint())), true
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		if u := rv.Uint(); u <= math.MaxInt64 {
			return Long(int64(u)), true
		}
		return Double(float64(rv.Uint())), true
	case reflect.Float32, reflect.Float64:
		return Double(rv.Float()), true
	}
	return Null(), false
}

// MapOf converts a generic map into a map of Values.
func MapOf(in map[string]any) map[string]Value {
	out := make(map[string]Value, len(in))
	for k, v := range in {
		out[k] = FromAny(v)
	}
	return out
}

// PlainMap converts a map of Values back into a generic map.
func PlainMap(in map[string]Value) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v.ToAny()
	}
	return out
}

// ToAny returns the plain Go form: nil, bool, int32, int64, float64, string, []byte, []any or map[string]any.
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return int32(v.i)
	case KindLong:
		return v.i
	case KindDouble:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return append([]byte(nil), v.raw...)
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.ToAny()
		}
		return out
	case KindMap:
		return PlainMap(v.m)
	}
	return nil
}

// Keys returns the sorted keys of a Map value.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON writes NaN and infinities as null at any depth.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.jsonAny())
}

// jsonAny is ToAny with non-finite doubles replaced by nil.
func (v Value) jsonAny() any {
	switch v.kind {
	case KindDouble:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil
		}
		return v.f
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.jsonAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.jsonAny()
		}
		return out
	}
	return v.ToAny()
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}
