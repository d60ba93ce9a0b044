package metadata

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FromAny converts a Go value into a typed Value.
//
// This exists as an adapter layer for user input, YAML/JSON decoding and
// wire payloads.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("metadata number %q: %w", x.String(), err)
		}
		return Float(f), nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(float64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Int(int64(x)), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			// Avoid silently truncating large values.
			return Value{}, fmt.Errorf("metadata uint64 out of range: %d", x)
		}
		return Int(int64(x)), nil
	case []Value:
		return Array(x), nil
	case []any:
		arr := make([]Value, len(x))
		for i := range x {
			vv, err := FromAny(x[i])
			if err != nil {
				return Value{}, err
			}
			arr[i] = vv
		}
		return Array(arr), nil
	case []string:
		arr := make([]Value, len(x))
		for i := range x {
			arr[i] = String(x[i])
		}
		return Array(arr), nil
	case []int:
		arr := make([]Value, len(x))
		for i := range x {
			arr[i] = Int(int64(x[i]))
		}
		return Array(arr), nil
	case []float64:
		arr := make([]Value, len(x))
		for i := range x {
			arr[i] = Float(x[i])
		}
		return Array(arr), nil
	default:
		return Value{}, fmt.Errorf("unsupported metadata value type %T", v)
	}
}

// DocumentFromAny converts a map[string]any document to a typed Document.
func DocumentFromAny(m map[string]any) (Document, error) {
	if m == nil {
		return nil, nil
	}
	d := make(Document, len(m))
	for k, v := range m {
		vv, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", k, err)
		}
		d[k] = vv
	}
	return d, nil
}

// Any returns the plain Go representation of v
// (nil, int64, float64, string, bool or []any).
func (v Value) Any() any {
	switch v.Kind {
	case KindInt:
		return v.I64
	case KindFloat:
		return v.F64
	case KindString:
		return v.s.Value()
	case KindBool:
		return v.B
	case KindArray:
		out := make([]any, len(v.A))
		for i := range v.A {
			out[i] = v.A[i].Any()
		}
		return out
	default:
		return nil
	}
}

// ToMap converts d to a map[string]any of plain Go values.
func (d Document) ToMap() map[string]any {
	if d == nil {
		return nil
	}
	m := make(map[string]any, len(d))
	for k, v := range d {
		m[k] = v.Any()
	}
	return m
}

// ParseLiteral interprets a command-line literal: true/false become bools,
// integers and floats become numbers, quoted or other text becomes a string.
func ParseLiteral(s string) Value {
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return String(s[1 : len(s)-1])
	}
	switch s {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return Float(f)
	}
	return String(s)
}

// conditionOps is ordered so that two-character operators win over their prefixes.
var conditionOps = []struct {
	token string
	op    Operator
}{
	{"!=", OpNotEqual},
	{">=", OpGreaterEqual},
	{"<=", OpLessEqual},
	{"~=", OpContains},
	{"=", OpEqual},
	{">", OpGreaterThan},
	{"<", OpLessThan},
}

// ParseCondition parses a condition such as "type=ERC-1155", "year>=2023"
// or "tag=a|b" (an In filter over the alternatives).
func ParseCondition(expr string) (Filter, error) {
	for _, c := range conditionOps {
		idx := strings.Index(expr, c.token)
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(expr[:idx])
		raw := strings.TrimSpace(expr[idx+len(c.token):])

		f := Filter{Key: key, Operator: c.op}
		switch {
		case c.op == OpEqual && strings.Contains(raw, "|"):
			alts := strings.Split(raw, "|")
			vals := make([]Value, len(alts))
			for i := range alts {
				vals[i] = ParseLiteral(strings.TrimSpace(alts[i]))
			}
			f.Operator = OpIn
			f.Value = Array(vals)
		case c.op == OpContains:
			f.Value = String(raw)
		default:
			f.Value = ParseLiteral(raw)
		}
		if err := f.Validate(); err != nil {
			return Filter{}, err
		}
		return f, nil
	}
	return Filter{}, fmt.Errorf("invalid condition %q: expected key<op>value", expr)
}
