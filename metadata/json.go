package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// MarshalJSON encodes v as a plain JSON scalar or array.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindFloat && (math.IsNaN(v.F64) || math.IsInf(v.F64, 0)) {
		return nil, fmt.Errorf("metadata: cannot encode non-finite float %v", v.F64)
	}
	return json.Marshal(v.Any())
}

// UnmarshalJSON decodes a plain JSON value. Integral numbers become KindInt.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	decoded, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

type filterJSON struct {
	Key   string   `json:"key"`
	Op    Operator `json:"op"`
	Value Value    `json:"value"`
}

// MarshalJSON encodes f as {"key":..,"op":..,"value":..}.
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(filterJSON{Key: f.Key, Op: f.Operator, Value: f.Value})
}

// UnmarshalJSON decodes and validates a filter.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var fj filterJSON
	if err := json.Unmarshal(data, &fj); err != nil {
		return err
	}
	decoded := Filter{Key: fj.Key, Operator: fj.Op, Value: fj.Value}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*f = decoded
	return nil
}

// MarshalJSON encodes the set as an array of filters.
func (fs FilterSet) MarshalJSON() ([]byte, error) {
	if fs.Filters == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(fs.Filters)
}

// UnmarshalJSON decodes an array of filters.
func (fs *FilterSet) UnmarshalJSON(data []byte) error {
	var filters []Filter
	if err := json.Unmarshal(data, &filters); err != nil {
		return err
	}
	fs.Filters = filters
	return nil
}
