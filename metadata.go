package framez

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
)

// MetaDataProvider is the read-only view of a dataset's metadata that plugins
// consume, e.g. rotation angles or beam energy.
type MetaDataProvider interface {
	Get(key string) (any, error)
}

// MetaData is an in-memory key/value store scoped to a dataset.
// It is safe for concurrent use.
type MetaData struct {
	values map[string]any
	mu     sync.RWMutex
}

// NewMetaData creates an empty store.
func NewMetaData() *MetaData {
	return &MetaData{values: make(map[string]any)}
}

// Get returns the value stored under key.
func (m *MetaData) Get(key string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, fmt.Errorf("meta data %q not found", key)
	}
	return v, nil
}

// Set stores value under key, replacing any previous value.
func (m *MetaData) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// Has reports whether key is present.
func (m *MetaData) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.values[key]
	return ok
}

// Keys returns the stored keys in sorted order.
func (m *MetaData) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float64 returns a scalar value converted to float64.
func (m *MetaData) Float64(key string) (float64, error) {
	v, err := m.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("meta data %q is %T, not a number", key, v)
	}
}

// Float64s returns an array value as []float64. The returned slice is a copy.
func (m *MetaData) Float64s(key string) ([]float64, error) {
	v, err := m.Get(key)
	if err != nil {
		return nil, err
	}
	switch a := v.(type) {
	case []float64:
		return slices.Clone(a), nil
	case []int:
		out := make([]float64, len(a))
		for i, n := range a {
			out[i] = float64(n)
		}
		return out, nil
	case float64:
		return []float64{a}, nil
	default:
		return nil, fmt.Errorf("meta data %q is %T, not an array", key, v)
	}
}

// clone copies the store. Slice values are copied so that later mutation of
// either side is not visible to the other.
func (m *MetaData) clone() *MetaData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := &MetaData{values: maps.Clone(m.values)}
	if out.values == nil {
		out.values = make(map[string]any)
	}
	for k, v := range out.values {
		switch a := v.(type) {
		case []float64:
			out.values[k] = slices.Clone(a)
		case []int:
			out.values[k] = slices.Clone(a)
		case []string:
			out.values[k] = slices.Clone(a)
		}
	}
	return out
}
