package dynamic

import (
	"encoding/json"
	"math"
	"testing"
)

const valueTestPrefix = "dynamic:value_test"

func TestAccessors_NoImplicitCoercion(t *testing.T) {
	s := String("1")
	if _, ok := s.AsInt(); ok {
		t.Errorf("%s - String.AsInt should be absent", valueTestPrefix)
	}
	if _, ok := s.AsBool(); ok {
		t.Errorf("%s - String.AsBool should be absent", valueTestPrefix)
	}
	if _, ok := s.AsDouble(); ok {
		t.Errorf("%s - String.AsDouble should be absent", valueTestPrefix)
	}
	if _, ok := Bool(true).AsString(); ok {
		t.Errorf("%s - Bool.AsString should be absent", valueTestPrefix)
	}
	if _, ok := Int(1).AsBool(); ok {
		t.Errorf("%s - Int.AsBool should be absent", valueTestPrefix)
	}
}

func TestAccessors_Widening(t *testing.T) {
	f, ok := Int(7).AsDouble()
	if !ok || f != 7 {
		t.Errorf("%s - Int(7).AsDouble = %v, %v", valueTestPrefix, f, ok)
	}
	l, ok := Int(-3).AsLong()
	if !ok || l != -3 {
		t.Errorf("%s - Int(-3).AsLong = %v, %v", valueTestPrefix, l, ok)
	}
	if _, ok := Long(math.MaxInt32 + 1).AsInt(); ok {
		t.Errorf("%s - out-of-range Long.AsInt should be absent", valueTestPrefix)
	}
	if i, ok := Long(12).AsInt(); !ok || i != 12 {
		t.Errorf("%s - Long(12).AsInt = %v, %v", valueTestPrefix, i, ok)
	}
	if _, ok := Double(1.0).AsInt(); ok {
		t.Errorf("%s - Double.AsInt should be absent (no narrowing)", valueTestPrefix)
	}
}

func TestAsNumber(t *testing.T) {
	tests := []struct {
		name    string
		in      Value
		isInt   bool
		wantInt int32
		wantF   float64
	}{
		{"int", Int(5), true, 5, 0},
		{"integral double", Double(42.0), true, 42, 0},
		{"fractional double", Double(1.5), false, 0, 1.5},
		{"double beyond int range", Double(3e10), false, 0, 3e10},
		{"long in range", Long(9), true, 9, 0},
		{"long beyond int range", Long(1 << 40), false, 0, float64(int64(1) << 40)},
	}
	for _, tt := range tests {
		n, ok := tt.in.AsNumber()
		if !ok {
			t.Errorf("%s - %s: AsNumber not ok", valueTestPrefix, tt.name)
			continue
		}
		if n.IsInt != tt.isInt {
			t.Errorf("%s - %s: IsInt = %v, want %v", valueTestPrefix, tt.name, n.IsInt, tt.isInt)
		}
		if tt.isInt && n.Int != tt.wantInt {
			t.Errorf("%s - %s: Int = %d, want %d", valueTestPrefix, tt.name, n.Int, tt.wantInt)
		}
		if !tt.isInt && n.Float != tt.wantF {
			t.Errorf("%s - %s: Float = %v, want %v", valueTestPrefix, tt.name, n.Float, tt.wantF)
		}
	}
	if _, ok := String("5").AsNumber(); ok {
		t.Errorf("%s - String.AsNumber should be absent", valueTestPrefix)
	}
}

func TestMap_IsImmutable(t *testing.T) {
	src := map[string]Value{"a": Int(1)}
	v := Map(src)
	src["a"] = Int(2)
	if got, _ := v.Get("a").AsInt(); got != 1 {
		t.Errorf("%s - Map must copy its input, got %d", valueTestPrefix, got)
	}
	m, _ := v.AsMap()
	m["b"] = Int(3)
	if !v.Get("b").IsNull() {
		t.Errorf("%s - AsMap must return a copy", valueTestPrefix)
	}
}

type point struct{ X, Y int }

func (p point) ToDynamic() Value {
	return Map(map[string]Value{"x": Integer(int64(p.X)), "y": Integer(int64(p.Y))})
}

func TestConvert(t *testing.T) {
	v, ok := Convert(map[string]any{
		"n":     3,
		"big":   int64(1 << 40),
		"f":     2.5,
		"s":     "x",
		"list":  []string{"a", "b"},
		"point": point{1, 2},
		"bad":   make(chan int),
	})
	if !ok {
		t.Fatalf("%s - Convert map should succeed", valueTestPrefix)
	}
	if v.Get("n").Kind() != KindInt {
		t.Errorf("%s - n kind = %s, want int", valueTestPrefix, v.Get("n").Kind())
	}
	if v.Get("big").Kind() != KindLong {
		t.Errorf("%s - big kind = %s, want long", valueTestPrefix, v.Get("big").Kind())
	}
	if s, _ := v.Get("list").Index(1).AsString(); s != "b" {
		t.Errorf("%s - list[1] = %q, want b", valueTestPrefix, s)
	}
	if y, _ := v.Get("point").Get("y").AsInt(); y != 2 {
		t.Errorf("%s - point.y = %d, want 2", valueTestPrefix, y)
	}
	if !v.Get("bad").IsNull() || v.Get("bad").Kind() != KindNull {
		t.Errorf("%s - unsupported nested field should be Null", valueTestPrefix)
	}
	if _, ok := Convert(make(chan int)); ok {
		t.Errorf("%s - unsupported top-level value should report !ok", valueTestPrefix)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	in := Map(map[string]Value{"msg": String("hi"), "n": Int(2), "f": Double(0.5), "l": Array(Bool(true), Null())})
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("%s - marshal: %v", valueTestPrefix, err)
	}
	var out Value
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("%s - unmarshal: %v", valueTestPrefix, err)
	}
	if !Equal(in, out) {
		t.Errorf("%s - round trip mismatch: %s", valueTestPrefix, data)
	}
}

func TestEqual_DistinguishesKinds(t *testing.T) {
	if Equal(Int(1), Long(1)) {
		t.Errorf("%s - Int and Long should not compare equal", valueTestPrefix)
	}
	if !Equal(Null(), Value{}) {
		t.Errorf("%s - zero Value should be Null", valueTestPrefix)
	}
}

type (
	port    uint16
	counter uint32
	offset  uint64
)

func TestConvert_NamedUnsigned(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind Kind
		want float64
	}{
		{"uint16", port(8080), KindInt, 8080},
		{"uint32", counter(1 << 31), KindLong, 1 << 31},
		{"uint64", offset(1 << 40), KindLong, 1 << 40},
		{"uint64 overflow", offset(math.MaxUint64), KindDouble, math.MaxUint64},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, ok := Convert(tc.in)
			if !ok || v.Kind() != tc.kind {
				t.Fatalf("%s - Convert(%v) = %s, %v; want %s", valueTestPrefix, tc.in, v.Kind(), ok, tc.kind)
			}
			if f, _ := v.AsDouble(); f != tc.want {
				t.Errorf("%s - Convert(%v) = %v, want %v", valueTestPrefix, tc.in, f, tc.want)
			}
		})
	}
}

func TestMarshalJSON_NonFiniteNested(t *testing.T) {
	in := Map(map[string]Value{
		"nan":  Double(math.NaN()),
		"list": Array(Double(math.Inf(-1)), Double(1.5)),
		"deep": Map(map[string]Value{"inf": Double(math.Inf(1))}),
	})
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("%s - marshal: %v", valueTestPrefix, err)
	}
	want := `{"deep":{"inf":null},"list":[null,1.5],"nan":null}`
	if string(data) != want {
		t.Errorf("%s - got %s, want %s", valueTestPrefix, data, want)
	}
	if !math.IsNaN(in.Get("nan").ToAny().(float64)) {
		t.Errorf("%s - ToAny should keep NaN", valueTestPrefix)
	}
}
