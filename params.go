package framez

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
)

// ParamType is the declared type of a plugin parameter.
type ParamType int

// Parameter types.
const (
	ParamInt ParamType = iota
	ParamFloat
	ParamString
	ParamBool
	ParamInts
	ParamFloats
	ParamStrings
)

func (t ParamType) String() string {
	switch t {
	case ParamInt:
		return "int"
	case ParamFloat:
		return "float"
	case ParamString:
		return "string"
	case ParamBool:
		return "bool"
	case ParamInts:
		return "[]int"
	case ParamFloats:
		return "[]float"
	case ParamStrings:
		return "[]string"
	default:
		return fmt.Sprintf("ParamType(%d)", int(t))
	}
}

// ParamSpec declares one parameter. A nil Default makes the parameter
// optional with no value; its getter then returns the zero value.
type ParamSpec struct {
	Default     any       `json:"default,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        ParamType `json:"type"`
}

// Schema is the ordered list of parameters a plugin type accepts.
type Schema []ParamSpec

// Validate checks names are unique and defaults match their declared types.
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s))
	for _, spec := range s {
		if seen[spec.Name] {
			return fmt.Errorf("%w: parameter %q declared twice", ErrParameter, spec.Name)
		}
		seen[spec.Name] = true
		if spec.Default == nil {
			continue
		}
		if _, err := coerce(spec.Type, spec.Default); err != nil {
			return fmt.Errorf("%w: default of %q: %v", ErrParameter, spec.Name, err)
		}
	}
	return nil
}

// Resolve validates raw values against the schema and fills in defaults.
// Unknown names and values that cannot be converted to the declared type fail
// with ErrParameter. Integers are accepted for float parameters, and floats
// with no fractional part for int parameters, since YAML and JSON decoders
// do not preserve the distinction.
func (s Schema) Resolve(raw map[string]any) (Params, error) {
	specs := make(map[string]ParamSpec, len(s))
	for _, spec := range s {
		specs[spec.Name] = spec
	}

	names := slices.Collect(maps.Keys(raw))
	sort.Strings(names)
	values := make(map[string]any, len(s))
	for _, name := range names {
		spec, ok := specs[name]
		if !ok {
			return Params{}, fmt.Errorf("%w: unknown parameter %q", ErrParameter, name)
		}
		v, err := coerce(spec.Type, raw[name])
		if err != nil {
			return Params{}, fmt.Errorf("%w: parameter %q: %v", ErrParameter, name, err)
		}
		values[name] = v
	}
	for _, spec := range s {
		if _, ok := values[spec.Name]; ok || spec.Default == nil {
			continue
		}
		v, err := coerce(spec.Type, spec.Default)
		if err != nil {
			return Params{}, fmt.Errorf("%w: default of %q: %v", ErrParameter, spec.Name, err)
		}
		values[spec.Name] = v
	}
	return Params{values: values}, nil
}

// Params holds resolved parameter values. Getters return the zero value for
// names that have no value.
type Params struct {
	values map[string]any
}

// Has reports whether name has a value.
func (p Params) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Value returns the raw resolved value.
func (p Params) Value(name string) (any, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Names returns the names with values in sorted order.
func (p Params) Names() []string {
	names := slices.Collect(maps.Keys(p.values))
	sort.Strings(names)
	return names
}

// Int returns an int parameter.
func (p Params) Int(name string) int {
	v, _ := p.values[name].(int)
	return v
}

// Float returns a float parameter.
func (p Params) Float(name string) float64 {
	v, _ := p.values[name].(float64)
	return v
}

// String returns a string parameter.
func (p Params) String(name string) string {
	v, _ := p.values[name].(string)
	return v
}

// Bool returns a bool parameter.
func (p Params) Bool(name string) bool {
	v, _ := p.values[name].(bool)
	return v
}

// Ints returns a copy of an []int parameter.
func (p Params) Ints(name string) []int {
	v, _ := p.values[name].([]int)
	return slices.Clone(v)
}

// Floats returns a copy of a []float parameter.
func (p Params) Floats(name string) []float64 {
	v, _ := p.values[name].([]float64)
	return slices.Clone(v)
}

// Strings returns a copy of a []string parameter.
func (p Params) Strings(name string) []string {
	v, _ := p.values[name].([]string)
	return slices.Clone(v)
}

func coerce(t ParamType, v any) (any, error) {
	switch t {
	case ParamInt:
		return toInt(v)
	case ParamFloat:
		return toFloat(v)
	case ParamString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", v)
		}
		return s, nil
	case ParamBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", v)
		}
		return b, nil
	case ParamInts:
		return toSlice(v, toInt)
	case ParamFloats:
		return toSlice(v, toFloat)
	case ParamStrings:
		return toSlice(v, func(e any) (string, error) {
			s, ok := e.(string)
			if !ok {
				return "", fmt.Errorf("want string element, got %T", e)
			}
			return s, nil
		})
	default:
		return nil, fmt.Errorf("unsupported parameter type %v", t)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint64:
		if n > math.MaxInt {
			return 0, fmt.Errorf("%d overflows int", n)
		}
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, fmt.Errorf("want int, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("want int, got %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("want float, got %T", v)
	}
}

func toSlice[E any](v any, conv func(any) (E, error)) ([]E, error) {
	var items []any
	switch a := v.(type) {
	case []E:
		return slices.Clone(a), nil
	case []any:
		items = a
	case []int:
		for _, e := range a {
			items = append(items, e)
		}
	case []float64:
		for _, e := range a {
			items = append(items, e)
		}
	case []string:
		for _, e := range a {
			items = append(items, e)
		}
	default:
		// A scalar stands for a one-element list.
		e, err := conv(v)
		if err != nil {
			return nil, err
		}
		return []E{e}, nil
	}
	out := make([]E, len(items))
	for i, item := range items {
		e, err := conv(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}
