package metadata

import (
	"maps"
	"reflect"
)

// Field describes one named column or attribute of tabular data.
//
// A Field is a plain mutable record. FieldLists and operations share *Field
// values; use Clone or DeepClone before changing a field that came from
// somewhere else.
type Field struct {
	// Name identifies the field within a FieldList.
	Name string
	// Label is an optional human readable name.
	Label string

	StorageType    StorageType
	AnalyticalType AnalyticalType

	// ConcreteStorageType is the backend specific type descriptor, for
	// example a SQL column type. This package never interprets it.
	ConcreteStorageType any

	// Size is interpreted relative to the storage type, e.g. text length.
	Size int
	// MissingValue is the value that represents a missing value in the data.
	MissingValue any
	// Info holds user specific information such as formatting hints.
	Info map[string]any

	// Origin is the non-owning provenance of a derived field.
	Origin Origin

	Description string
}

// NewField returns a field with the given name and types.
func NewField(name string, st StorageType, at AnalyticalType) *Field {
	return &Field{Name: name, StorageType: st, AnalyticalType: at}
}

// String returns the field name.
func (f *Field) String() string { return f.Name }

// Equal reports whether every attribute of f and other compares equal.
// Origins are compared by source identity.
func (f *Field) Equal(other *Field) bool {
	if f == other {
		return true
	}
	if f == nil || other == nil {
		return false
	}
	return f.Name == other.Name &&
		f.Label == other.Label &&
		f.StorageType == other.StorageType &&
		f.AnalyticalType == other.AnalyticalType &&
		reflect.DeepEqual(f.ConcreteStorageType, other.ConcreteStorageType) &&
		f.Size == other.Size &&
		reflect.DeepEqual(f.MissingValue, other.MissingValue) &&
		reflect.DeepEqual(f.Info, other.Info) &&
		f.Origin == other.Origin &&
		f.Description == other.Description
}

// Clone returns a shallow copy: scalar attributes are copied, Info and the
// opaque values are shared with f.
func (f *Field) Clone() *Field {
	c := *f
	return &c
}

// DeepClone returns a copy whose Info is copied recursively, so the clone
// can be changed without affecting f.
func (f *Field) DeepClone() *Field {
	c := *f
	if f.Info != nil {
		c.Info = deepCopyMap(f.Info)
	}
	c.MissingValue = deepCopyValue(f.MissingValue)
	return &c
}

// ResolvedAnalyticalType returns the declared analytical type, falling back
// to the default for the field's storage type.
func (f *Field) ResolvedAnalyticalType() AnalyticalType {
	if f.AnalyticalType.IsSet() {
		return f.AnalyticalType
	}
	if at, ok := DefaultAnalyticalType(f.StorageType); ok {
		return at
	}
	return AnalyticalUnset
}

// Attributes returns the non-empty attributes of the field keyed by their
// attribute names. Origin is not included.
func (f *Field) Attributes() map[string]any {
	attrs := make(map[string]any, len(attributeKeys))
	if f.Name != "" {
		attrs[attrName] = f.Name
	}
	if f.Label != "" {
		attrs[attrLabel] = f.Label
	}
	if f.StorageType.IsSet() {
		attrs[attrStorageType] = f.StorageType.String()
	}
	if f.AnalyticalType.IsSet() {
		attrs[attrAnalyticalType] = f.AnalyticalType.String()
	}
	if f.ConcreteStorageType != nil {
		attrs[attrConcreteStorageType] = f.ConcreteStorageType
	}
	if f.Size != 0 {
		attrs[attrSize] = f.Size
	}
	if f.MissingValue != nil {
		attrs[attrMissingValue] = f.MissingValue
	}
	if len(f.Info) > 0 {
		attrs[attrInfo] = maps.Clone(f.Info)
	}
	if f.Description != "" {
		attrs[attrDescription] = f.Description
	}
	return attrs
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
