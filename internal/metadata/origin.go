package metadata

import "weak"

// Origin records which Field or FieldList a field was derived from.
//
// The source is held through a weak pointer and is never kept alive by its
// derived fields. Origins compare with == by the identity of their source.
type Origin struct {
	field weak.Pointer[Field]
	list  weak.Pointer[FieldList]
}

// OriginOfField returns an Origin pointing at f.
func OriginOfField(f *Field) Origin {
	if f == nil {
		return Origin{}
	}
	return Origin{field: weak.Make(f)}
}

// OriginOfList returns an Origin pointing at l.
func OriginOfList(l *FieldList) Origin {
	if l == nil {
		return Origin{}
	}
	return Origin{list: weak.Make(l)}
}

// IsZero reports whether no origin was recorded.
func (o Origin) IsZero() bool { return o == Origin{} }

// Field returns the source field, or nil if the origin is a list or the
// field has been garbage collected.
func (o Origin) Field() *Field { return o.field.Value() }

// List returns the source field list, or nil if the origin is a field or
// the list has been garbage collected.
func (o Origin) List() *FieldList { return o.list.Value() }
