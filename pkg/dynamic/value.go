// Package dynamic provides the loosely-typed value union exchanged between the bridge and its callers.
package dynamic

import (
	"bytes"
	"math"
)

// Kind identifies which member of the union a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindLong
	KindDouble
	KindString
	KindBytes
	KindArray
	KindMap
)

var kindNames = map[Kind]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindInt:    "int",
	KindLong:   "long",
	KindDouble: "double",
	KindString: "string",
	KindBytes:  "bytes",
	KindArray:  "array",
	KindMap:    "map",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Value is an immutable tagged union. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
	arr  []Value
	m    map[string]Value
}

func Null() Value            { return Value{} }
func Bool(v bool) Value      { return Value{kind: KindBool, b: v} }
func Int(v int32) Value      { return Value{kind: KindInt, i: int64(v)} }
func Long(v int64) Value     { return Value{kind: KindLong, i: v} }
func Double(v float64) Value { return Value{kind: KindDouble, f: v} }
func String(v string) Value  { return Value{kind: KindString, s: v} }

// Bytes copies v.
func Bytes(v []byte) Value {
	return Value{kind: KindBytes, raw: bytes.Clone(v)}
}

// Array copies items.
func Array(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindArray, arr: out}
}

// Map copies fields. A nil map yields an empty Map, not Null.
func Map(fields map[string]Value) Value {
	out := make(map[string]Value, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return Value{kind: KindMap, m: out}
}

// Integer picks Int when v fits in 32 bits and Long otherwise.
func Integer(v int64) Value {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return Int(int32(v))
	}
	return Long(v)
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt accepts Int, and Long when it fits in 32 bits.
func (v Value) AsInt() (int32, bool) {
	switch v.kind {
	case KindInt:
		return int32(v.i), true
	case KindLong:
		if v.i >= math.MinInt32 && v.i <= math.MaxInt32 {
			return int32(v.i), true
		}
	}
	return 0, false
}

func (v Value) AsLong() (int64, bool) {
	if v.kind == KindInt || v.kind == KindLong {
		return v.i, true
	}
	return 0, false
}

// AsDouble widens Int and Long.
func (v Value) AsDouble() (float64, bool) {
	switch v.kind {
	case KindDouble:
		return v.f, true
	case KindInt, KindLong:
		return float64(v.i), true
	}
	return 0, false
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return bytes.Clone(v.raw), true
}

func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	out := make([]Value, len(v.arr))
	copy(out, v.arr)
	return out, true
}

func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	out := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		out[k] = e
	}
	return out, true
}

// Get returns the map member under key, or Null.
func (v Value) Get(key string) Value {
	if v.kind != KindMap {
		return Null()
	}
	return v.m[key]
}

// Index returns the array element at i, or Null.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Null()
	}
	return v.arr[i]
}

// Len is the element count of an Array or Map, the byte length of String/Bytes, and 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindMap:
		return len(v.m)
	case KindString:
		return len(v.s)
	case KindBytes:
		return len(v.raw)
	}
	return 0
}

// Number is a decoded numeric field that is either an exact Int or a Double.
type Number struct {
	IsInt bool
	Int   int32
	Float float64
}

// Float64 returns the number as a float regardless of how it was decoded.
func (n Number) Float64() float64 {
	if n.IsInt {
		return float64(n.Int)
	}
	return n.Float
}

// AsNumber decodes an Int-or-Number field. Exact Int is chosen only when the value is integral and
// inside the 32-bit range; anything else stays a Double.
func (v Value) AsNumber() (Number, bool) {
	switch v.kind {
	case KindInt:
		return Number{IsInt: true, Int: int32(v.i)}, true
	case KindLong:
		if v.i >= math.MinInt32 && v.i <= math.MaxInt32 {
			return Number{IsInt: true, Int: int32(v.i)}, true
		}
		return Number{Float: float64(v.i)}, true
	case KindDouble:
		if v.f == math.Trunc(v.f) && v.f >= math.MinInt32 && v.f <= math.MaxInt32 {
			return Number{IsInt: true, Int: int32(v.f)}, true
		}
		return Number{Float: v.f}, true
	}
	return Number{}, false
}

// Equal reports deep equality. Int and Long holding the same number are distinct kinds and compare unequal.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt, KindLong:
		return a.i == b.i
	case KindDouble:
		return a.f == b.f || (math.IsNaN(a.f) && math.IsNaN(b.f))
	case KindString:
		return a.s == b.s
	case KindBytes:
		return bytes.Equal(a.raw, b.raw)
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}
