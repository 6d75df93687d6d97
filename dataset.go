package framez

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Name is a type alias for plugin and dataset names.
// Using this type encourages storing names as constants rather than
// using inline strings throughout your code.
type Name = string

// AxisLabel names one axis of a dataset together with its unit.
type AxisLabel struct {
	Name string `json:"name" yaml:"name"`
	Unit string `json:"unit" yaml:"unit"`
}

// String renders the label in "name.unit" form.
func (a AxisLabel) String() string {
	return a.Name + "." + a.Unit
}

// ParseAxisLabels parses labels written as "name.unit", e.g.
// "rotation_angle.degrees". A label without a dot gets an empty unit.
func ParseAxisLabels(labels ...string) ([]AxisLabel, error) {
	out := make([]AxisLabel, len(labels))
	for i, l := range labels {
		name, unit, _ := strings.Cut(l, ".")
		if name == "" {
			return nil, fmt.Errorf("%w: empty axis label at position %d", ErrShape, i)
		}
		out[i] = AxisLabel{Name: name, Unit: unit}
	}
	return out, nil
}

// MustAxisLabels is like ParseAxisLabels but panics on malformed input.
// Intended for literal labels in plugin code.
func MustAxisLabels(labels ...string) []AxisLabel {
	out, err := ParseAxisLabels(labels...)
	if err != nil {
		panic(err)
	}
	return out
}

// Dataset is an N-dimensional array description: a shape, one label per
// axis, a registry of named patterns and a metadata store. The contents live
// in a Store allocated from a Backend once the dataset is frozen.
//
// A Dataset starts as an unconfigured placeholder (NewDataset). The plugin
// producing it configures it during Setup with CreateDataset, SetShape and
// AddPattern; the Chain then freezes it, after which every mutation fails
// with ErrFrozen.
//
// Example:
//
//	ds := framez.NewDataset("tomo")
//	_ = ds.CreateDataset(
//	    framez.WithShape(91, 135, 160),
//	    framez.WithAxisLabels(framez.MustAxisLabels(
//	        "rotation_angle.degrees", "detector_y.pixel", "detector_x.pixel")...),
//	)
//	_ = ds.AddPattern(framez.PatternSinogram, framez.Pattern{CoreDir: []int{0, 2}, SliceDir: []int{1}})
type Dataset struct {
	store      Store
	invalid    error
	meta       *MetaData
	patterns   map[string]Pattern
	name       Name
	shape      []int
	labels     []AxisLabel
	mu         sync.RWMutex
	io         sync.RWMutex
	configured bool
	frozen     bool
}

// NewDataset creates an unconfigured dataset placeholder.
func NewDataset(name Name) *Dataset {
	return &Dataset{
		name:     name,
		patterns: make(map[string]Pattern),
		meta:     NewMetaData(),
	}
}

// CreateOption configures CreateDataset.
type CreateOption func(*createOptions)

type createOptions struct {
	template *Dataset
	shape    []int
	labels   []AxisLabel
}

// FromTemplate copies shape, axis labels, patterns and metadata from an
// existing dataset. The copy is deep: later changes to either dataset are
// not visible in the other.
func FromTemplate(template *Dataset) CreateOption {
	return func(o *createOptions) {
		o.template = template
	}
}

// WithShape sets the shape, overriding any template shape.
func WithShape(shape ...int) CreateOption {
	return func(o *createOptions) {
		o.shape = slices.Clone(shape)
	}
}

// WithAxisLabels sets the axis labels, overriding any template labels.
func WithAxisLabels(labels ...AxisLabel) CreateOption {
	return func(o *createOptions) {
		o.labels = slices.Clone(labels)
	}
}

// CreateDataset configures the dataset, either as a copy of a template or as
// a fresh allocation with an explicit shape and axis labels. Without a
// template both WithShape and WithAxisLabels are required.
func (d *Dataset) CreateDataset(opts ...CreateOption) error {
	o := &createOptions{}
	for _, opt := range opts {
		opt(o)
	}

	var (
		shape    []int
		labels   []AxisLabel
		patterns = make(map[string]Pattern)
		meta     *MetaData
	)
	if o.template != nil {
		t := o.template
		t.mu.RLock()
		if !t.configured {
			t.mu.RUnlock()
			return fmt.Errorf("%w: template %q has no shape", ErrShape, t.name)
		}
		shape = slices.Clone(t.shape)
		labels = slices.Clone(t.labels)
		for name, p := range t.patterns {
			patterns[name] = p.Clone()
		}
		meta = t.meta.clone()
		t.mu.RUnlock()
	}
	if o.shape != nil {
		shape = o.shape
	}
	if o.labels != nil {
		labels = o.labels
	}

	if len(shape) == 0 {
		return fmt.Errorf("%w: dataset %q needs a shape", ErrShape, d.name)
	}
	if err := validateShape(shape); err != nil {
		return err
	}
	if len(labels) != len(shape) {
		return fmt.Errorf("%w: dataset %q has %d axis labels for rank %d", ErrShape, d.name, len(labels), len(shape))
	}
	for name, p := range patterns {
		if err := p.Validate(len(shape)); err != nil {
			return fmt.Errorf("template pattern %q on dataset %q: %w", name, d.name, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return fmt.Errorf("%w: %q", ErrFrozen, d.name)
	}
	d.shape = shape
	d.labels = labels
	d.patterns = patterns
	if meta != nil {
		d.meta = meta
	}
	d.configured = true
	return nil
}

// SetShape replaces the shape. The rank must match the axis labels; use
// CreateDataset to change the rank.
func (d *Dataset) SetShape(shape ...int) error {
	if err := validateShape(shape); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return fmt.Errorf("%w: %q", ErrFrozen, d.name)
	}
	if !d.configured {
		return fmt.Errorf("%w: dataset %q has not been created", ErrShape, d.name)
	}
	if len(shape) != len(d.labels) {
		return fmt.Errorf("%w: rank %d does not match %d axis labels of %q", ErrShape, len(shape), len(d.labels), d.name)
	}
	d.shape = slices.Clone(shape)
	return nil
}

// AddPattern registers a named pattern.
func (d *Dataset) AddPattern(name string, p Pattern) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return fmt.Errorf("%w: %q", ErrFrozen, d.name)
	}
	if !d.configured {
		return fmt.Errorf("%w: dataset %q has not been created", ErrShape, d.name)
	}
	if _, exists := d.patterns[name]; exists {
		return fmt.Errorf("%w: pattern %q already registered on %q", ErrPattern, name, d.name)
	}
	if err := p.Validate(len(d.shape)); err != nil {
		return fmt.Errorf("pattern %q on %q: %w", name, d.name, err)
	}
	d.patterns[name] = p.Clone()
	return nil
}

// Name returns the dataset name.
func (d *Dataset) Name() Name {
	return d.name
}

// Shape returns a copy of the shape.
func (d *Dataset) Shape() []int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.shape)
}

// Rank returns the number of axes.
func (d *Dataset) Rank() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.shape)
}

// Size returns the number of elements.
func (d *Dataset) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return product(d.shape)
}

// AxisLabels returns a copy of the axis labels.
func (d *Dataset) AxisLabels() []AxisLabel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.labels)
}

// Pattern returns a copy of the named pattern.
func (d *Dataset) Pattern(name string) (Pattern, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.patterns[name]
	if !ok {
		return Pattern{}, fmt.Errorf("%w: %q is not registered on %q", ErrPattern, name, d.name)
	}
	return p.Clone(), nil
}

// HasPattern reports whether name is registered.
func (d *Dataset) HasPattern(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.patterns[name]
	return ok
}

// Patterns returns the registered pattern names in sorted order.
func (d *Dataset) Patterns() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := slices.Collect(maps.Keys(d.patterns))
	sort.Strings(names)
	return names
}

// MetaData returns the dataset's metadata store.
func (d *Dataset) MetaData() *MetaData {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.meta
}

// Configured reports whether CreateDataset has succeeded.
func (d *Dataset) Configured() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.configured
}

// Frozen reports whether the dataset's shape and patterns are fixed.
func (d *Dataset) Frozen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frozen
}

// Allocate freezes the dataset and allocates its storage from backend.
// Loaders call it for the datasets they hand to a Chain; the Chain calls it
// for plugin outputs.
func (d *Dataset) Allocate(backend Backend) error {
	if err := d.freeze(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.store != nil {
		return nil
	}
	store, err := backend.Allocate(d.shape)
	if err != nil {
		return fmt.Errorf("allocating %q: %w", d.name, err)
	}
	d.store = store
	return nil
}

// Allocated reports whether the dataset has storage.
func (d *Dataset) Allocated() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.store != nil
}

// ReadRegion copies the rectangular region [start, start+count) into dst.
func (d *Dataset) ReadRegion(start, count []int, dst []float64) error {
	return d.view(func(store Store) error {
		return store.ReadRegion(start, count, dst)
	})
}

// WriteRegion copies src into the rectangular region [start, start+count).
func (d *Dataset) WriteRegion(start, count []int, src []float64) error {
	return d.update(func(store Store) error {
		return store.WriteRegion(start, count, src)
	})
}

// view runs fn with the store under the shared I/O lock, so a batch of reads
// observes no partially committed frame.
func (d *Dataset) view(fn func(Store) error) error {
	store, err := d.storage()
	if err != nil {
		return err
	}
	d.io.RLock()
	defer d.io.RUnlock()
	return fn(store)
}

// update runs fn with the store under the exclusive I/O lock.
func (d *Dataset) update(fn func(Store) error) error {
	store, err := d.storage()
	if err != nil {
		return err
	}
	d.io.Lock()
	defer d.io.Unlock()
	return fn(store)
}

func (d *Dataset) storage() (Store, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.invalid != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidated, d.name, d.invalid)
	}
	if d.store == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnallocated, d.name)
	}
	return d.store, nil
}

func (d *Dataset) freeze() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured {
		return fmt.Errorf("%w: dataset %q was never created", ErrShape, d.name)
	}
	d.frozen = true
	return nil
}

// invalidate marks the contents unusable and drops the storage.
func (d *Dataset) invalidate(cause error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalid = cause
	d.store = nil
}

func (d *Dataset) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.store = nil
}

// validateShape rejects non-positive extents and shapes whose element count
// does not fit in an int.
func validateShape(shape []int) error {
	size := 1
	for i, n := range shape {
		if n <= 0 {
			return fmt.Errorf("%w: dimension %d has extent %d", ErrShape, i, n)
		}
		if size > math.MaxInt/n {
			return fmt.Errorf("%w: shape %v has too many elements", ErrShape, shape)
		}
		size *= n
	}
	return nil
}

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}
