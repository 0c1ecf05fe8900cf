package metadata

import (
	"fmt"
	"slices"
	"strings"
)

// DefaultCountField is the name of the record count field added by
// AggregatedFields.
const DefaultCountField = "record_count"

// FieldList is an ordered collection of fields addressable by position and
// by name. It is the schema of a row shaped dataset.
//
// Field names are unique within a list. A FieldList must not be mutated
// from several goroutines; stages that need a different schema derive a new
// list with Fields, Clone, Copy or a FieldFilter.
type FieldList struct {
	fields []*Field
	index  map[string]int
}

// NewFieldList builds a list from the given specs, appended in order.
func NewFieldList(specs ...FieldSpec) (*FieldList, error) {
	l := &FieldList{
		fields: make([]*Field, 0, len(specs)),
		index:  make(map[string]int, len(specs)),
	}
	for _, spec := range specs {
		if err := l.Append(spec); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// FieldListOf builds a list from loosely typed values. See SpecOf.
func FieldListOf(values ...any) (*FieldList, error) {
	specs := make([]FieldSpec, len(values))
	for i, v := range values {
		spec, err := SpecOf(v)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		specs[i] = spec
	}
	return NewFieldList(specs...)
}

func (l *FieldList) init() {
	if l.index == nil {
		l.index = make(map[string]int)
	}
}

// Append coerces spec into a field and adds it at the end of the list.
func (l *FieldList) Append(spec FieldSpec) error {
	f, err := ToField(spec)
	if err != nil {
		return err
	}
	if f.Name == "" {
		return fmt.Errorf("%w: field list entries require a name", ErrInvalidArgument)
	}
	l.init()
	if _, ok := l.index[f.Name]; ok {
		return fmt.Errorf("%w: field list already has a field named %q", ErrDuplicateField, f.Name)
	}
	l.index[f.Name] = len(l.fields)
	l.fields = append(l.fields, f)
	return nil
}

// Set replaces the field at position i.
func (l *FieldList) Set(i int, spec FieldSpec) error {
	if err := l.checkIndex(i); err != nil {
		return err
	}
	f, err := ToField(spec)
	if err != nil {
		return err
	}
	if f.Name == "" {
		return fmt.Errorf("%w: field list entries require a name", ErrInvalidArgument)
	}
	if j, ok := l.index[f.Name]; ok && j != i {
		return fmt.Errorf("%w: field list already has a field named %q", ErrDuplicateField, f.Name)
	}
	delete(l.index, l.fields[i].Name)
	l.fields[i] = f
	l.index[f.Name] = i
	return nil
}

// Delete removes the field at position i.
func (l *FieldList) Delete(i int) error {
	if err := l.checkIndex(i); err != nil {
		return err
	}
	delete(l.index, l.fields[i].Name)
	l.fields = slices.Delete(l.fields, i, i+1)
	for j := i; j < len(l.fields); j++ {
		l.index[l.fields[j].Name] = j
	}
	return nil
}

// Extend appends every field of other to l. On a name collision l is left
// unchanged.
func (l *FieldList) Extend(other *FieldList) error {
	for _, f := range other.fields {
		if l.Contains(f.Name) {
			return fmt.Errorf("%w: field list already has a field named %q", ErrDuplicateField, f.Name)
		}
	}
	for _, f := range other.fields {
		if err := l.Append(f); err != nil {
			return err
		}
	}
	return nil
}

// Concat returns a new list holding the fields of l followed by those of other.
func (l *FieldList) Concat(other *FieldList) (*FieldList, error) {
	out := l.Copy()
	if err := out.Extend(other); err != nil {
		return nil, err
	}
	return out, nil
}

// Len returns the number of fields.
func (l *FieldList) Len() int { return len(l.fields) }

// Slice returns the fields in order. The slice is a copy; the fields are not.
func (l *FieldList) Slice() []*Field { return slices.Clone(l.fields) }

// Names returns all field names in order.
func (l *FieldList) Names() []string {
	names := make([]string, len(l.fields))
	for i, f := range l.fields {
		names[i] = f.Name
	}
	return names
}

// NamesAt returns the names of the fields at the given positions, in the
// order the positions were given. Without positions it returns all names.
func (l *FieldList) NamesAt(indexes ...int) ([]string, error) {
	if len(indexes) == 0 {
		return l.Names(), nil
	}
	names := make([]string, len(indexes))
	for i, idx := range indexes {
		if err := l.checkIndex(idx); err != nil {
			return nil, err
		}
		names[i] = l.fields[idx].Name
	}
	return names, nil
}

// Contains reports whether the list has a field with the given name.
func (l *FieldList) Contains(name string) bool {
	_, ok := l.index[name]
	return ok
}

// Index returns the position of the named field.
func (l *FieldList) Index(name string) (int, error) {
	i, ok := l.index[name]
	if !ok {
		return -1, fmt.Errorf("%w: field list has no field with name %q", ErrNoSuchField, name)
	}
	return i, nil
}

// Indexes returns the positions of the named fields, in the given order.
func (l *FieldList) Indexes(names ...string) ([]int, error) {
	indexes := make([]int, len(names))
	for i, name := range names {
		idx, err := l.Index(name)
		if err != nil {
			return nil, err
		}
		indexes[i] = idx
	}
	return indexes, nil
}

// IndexMap returns a map of field name to position.
func (l *FieldList) IndexMap() map[string]int {
	m := make(map[string]int, len(l.index))
	for name, i := range l.index {
		m[name] = i
	}
	return m
}

// Field returns the field with the given name.
func (l *FieldList) Field(name string) (*Field, error) {
	i, err := l.Index(name)
	if err != nil {
		return nil, err
	}
	return l.fields[i], nil
}

// FieldAt returns the field at position i.
func (l *FieldList) FieldAt(i int) (*Field, error) {
	if err := l.checkIndex(i); err != nil {
		return nil, err
	}
	return l.fields[i], nil
}

func (l *FieldList) checkIndex(i int) error {
	if i < 0 || i >= len(l.fields) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(l.fields))
	}
	return nil
}

// FieldQuery selects fields from a FieldList. Zero valued members do not
// restrict the selection.
type FieldQuery struct {
	// Names restricts and orders the result. Unknown names are an error.
	Names          []string
	StorageType    StorageType
	AnalyticalType AnalyticalType
}

// Fields returns a new list with the fields matching q. When q.Names is set
// the result follows its order, not the order of l.
func (l *FieldList) Fields(q FieldQuery) (*FieldList, error) {
	selected := l.fields
	if len(q.Names) > 0 {
		selected = make([]*Field, len(q.Names))
		for i, name := range q.Names {
			f, err := l.Field(name)
			if err != nil {
				return nil, err
			}
			selected[i] = f
		}
	}

	out := &FieldList{index: make(map[string]int, len(selected))}
	for _, f := range selected {
		if q.StorageType.IsSet() && f.StorageType != q.StorageType {
			continue
		}
		if q.AnalyticalType.IsSet() && f.AnalyticalType != q.AnalyticalType {
			continue
		}
		if err := out.Append(f); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Mask returns, for each field of l in order, whether its name is among names.
func (l *FieldList) Mask(names ...string) []bool {
	selected := make(map[string]struct{}, len(names))
	for _, name := range names {
		selected[name] = struct{}{}
	}
	mask := make([]bool, len(l.fields))
	for i, f := range l.fields {
		_, mask[i] = selected[f.Name]
	}
	return mask
}

// AggregatedFields returns the schema produced by aggregating the measures
// in aggregations, a canonical (field, aggregate) list as returned by
// PrepareAggregationList or DistillAggregateMeasures.
//
// Each result field is a clone of its measure named "<name>_<aggregate>"
// with a measure analytical type. When includeCount is set an integer
// measure named countField (DefaultCountField if empty) is appended.
func (l *FieldList) AggregatedFields(aggregations []Pair, includeCount bool, countField string) (*FieldList, error) {
	out := &FieldList{index: make(map[string]int, len(aggregations)+1)}
	for _, agg := range aggregations {
		src, err := l.Field(agg.Field)
		if err != nil {
			return nil, err
		}
		f := src.Clone()
		f.Name = src.Name + "_" + agg.Value
		f.AnalyticalType = AnalyticalMeasure
		f.Origin = OriginOfField(src)
		if err := out.Append(f); err != nil {
			return nil, err
		}
	}
	if includeCount {
		if countField == "" {
			countField = DefaultCountField
		}
		if err := out.Append(NewField(countField, StorageInteger, AnalyticalMeasure)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Copy returns a new list sharing the same Field values.
func (l *FieldList) Copy() *FieldList {
	out := &FieldList{
		fields: slices.Clone(l.fields),
		index:  make(map[string]int, len(l.fields)),
	}
	for i, f := range out.fields {
		out.index[f.Name] = i
	}
	return out
}

// Clone returns a list of copies of the selected fields (all fields when
// names is empty). Each copy's Origin is set to origin, or to the field it
// was copied from when origin is zero.
func (l *FieldList) Clone(names []string, origin Origin) (*FieldList, error) {
	selected, err := l.Fields(FieldQuery{Names: names})
	if err != nil {
		return nil, err
	}
	for i, f := range selected.fields {
		c := f.Clone()
		if origin.IsZero() {
			c.Origin = OriginOfField(f)
		} else {
			c.Origin = origin
		}
		selected.fields[i] = c
	}
	return selected, nil
}

// Equal reports whether both lists hold equal fields in the same order.
func (l *FieldList) Equal(other *FieldList) bool {
	if l == other {
		return true
	}
	if l == nil || other == nil || len(l.fields) != len(other.fields) {
		return false
	}
	for i, f := range l.fields {
		if !f.Equal(other.fields[i]) {
			return false
		}
	}
	return true
}

// String returns the field names in brackets, e.g. "[id, name]".
func (l *FieldList) String() string {
	return "[" + strings.Join(l.Names(), ", ") + "]"
}
