// Package marshal validates call params, exposes them through a typed view, and converts handler
// outcomes into result envelopes.
package marshal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/morezero/sparkling-bridge/pkg/dynamic"
)

const logPrefix = "marshal:params"

// MissingKeysError lists required params that were absent, sorted ascending.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return "Missing required parameter(s): " + strings.Join(e.Keys, ", ")
}

// ValidateRequired fails with a *MissingKeysError when any required key is absent from raw.
// A key that is present with a Null value counts as supplied.
func ValidateRequired(raw map[string]dynamic.Value, required []string) error {
	var missing []string
	seen := make(map[string]bool, len(required))
	for _, k := range required {
		if seen[k] {
			continue
		}
		seen[k] = true
		if _, ok := raw[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &MissingKeysError{Keys: missing}
}

type evaluator func(ctx context.Context, parameter interface{}) (interface{}, error)

type fieldPath struct {
	keypath string
	direct  string
	eval    evaluator
}

// FieldTable maps logical field names onto keypaths in the raw params. It is built once per
// registration and is safe for concurrent use.
type FieldTable struct {
	fields map[string]fieldPath
}

// CompileFields builds a FieldTable. A keypath that is a bare key is looked up directly; dotted,
// indexed or "$"-rooted keypaths are compiled as JSONPath.
func CompileFields(fields map[string]string) (*FieldTable, error) {
	t := &FieldTable{fields: make(map[string]fieldPath, len(fields))}
	for name, kp := range fields {
		if name == "" {
			return nil, fmt.Errorf("%s - empty field name for keypath %q", logPrefix, kp)
		}
		if kp == "" {
			kp = name
		}
		if !strings.ContainsAny(kp, ".[$") {
			t.fields[name] = fieldPath{keypath: kp, direct: kp}
			continue
		}
		expr := kp
		if !strings.HasPrefix(expr, "$") {
			expr = "$." + expr
		}
		eval, err := jsonpath.New(expr)
		if err != nil {
			return nil, fmt.Errorf("%s - invalid keypath %q for field %q: %w", logPrefix, kp, name, err)
		}
		t.fields[name] = fieldPath{keypath: kp, eval: evaluator(eval)}
	}
	return t, nil
}

// Fields returns the logical field names, sorted.
func (t *FieldTable) Fields() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.fields))
	for k := range t.fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Keypath returns the keypath declared for field.
func (t *FieldTable) Keypath(field string) (string, bool) {
	if t == nil {
		return "", false
	}
	f, ok := t.fields[field]
	return f.keypath, ok
}

// ParamView is a read-only typed view over a call's params.
type ParamView struct {
	raw      map[string]dynamic.Value
	resolved map[string]dynamic.Value
}

// Materialize resolves every declared field of table against raw. A nil table exposes the raw keys
// under their own names.
func Materialize(raw map[string]dynamic.Value, table *FieldTable) *ParamView {
	v := &ParamView{raw: make(map[string]dynamic.Value, len(raw)), resolved: map[string]dynamic.Value{}}
	for k, e := range raw {
		v.raw[k] = e
	}
	if table == nil {
		return v
	}
	var plain map[string]any
	for name, f := range table.fields {
		if f.eval == nil {
			if val, ok := raw[f.direct]; ok {
				v.resolved[name] = val
			}
			continue
		}
		if plain == nil {
			plain = dynamic.PlainMap(raw)
		}
		out, err := f.eval(context.Background(), plain)
		if err != nil {
			slog.Debug(fmt.Sprintf("%s - keypath %q for field %q unresolved: %v", logPrefix, f.keypath, name, err))
			continue
		}
		v.resolved[name] = dynamic.FromAny(out)
	}
	return v
}

// Get returns a declared field, falling back to the raw key of the same name. Unknown fields are Null.
func (v *ParamView) Get(field string) dynamic.Value {
	if val, ok := v.resolved[field]; ok {
		return val
	}
	return v.raw[field]
}

// Has reports whether field resolved to a value, Null included.
func (v *ParamView) Has(field string) bool {
	if _, ok := v.resolved[field]; ok {
		return true
	}
	_, ok := v.raw[field]
	return ok
}

func (v *ParamView) String(field string) (string, bool)                { return v.Get(field).AsString() }
func (v *ParamView) Bool(field string) (bool, bool)                    { return v.Get(field).AsBool() }
func (v *ParamView) Int(field string) (int32, bool)                    { return v.Get(field).AsInt() }
func (v *ParamView) Long(field string) (int64, bool)                   { return v.Get(field).AsLong() }
func (v *ParamView) Double(field string) (float64, bool)               { return v.Get(field).AsDouble() }
func (v *ParamView) Number(field string) (dynamic.Number, bool)        { return v.Get(field).AsNumber() }
func (v *ParamView) Map(field string) (map[string]dynamic.Value, bool) { return v.Get(field).AsMap() }
func (v *ParamView) Array(field string) ([]dynamic.Value, bool)        { return v.Get(field).AsArray() }

// StringOr returns the string field or def when absent or not a string.
func (v *ParamView) StringOr(field, def string) string {
	if s, ok := v.String(field); ok {
		return s
	}
	return def
}

// Raw returns a copy of the params as they arrived.
func (v *ParamView) Raw() map[string]dynamic.Value {
	out := make(map[string]dynamic.Value, len(v.raw))
	for k, e := range v.raw {
		out[k] = e
	}
	return out
}

// ToMap re-serializes the params as they arrived, for methods that pass them through unchanged.
func (v *ParamView) ToMap() map[string]any {
	return dynamic.PlainMap(v.raw)
}
