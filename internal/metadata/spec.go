package metadata

import (
	"fmt"
	"math"
)

// Attribute keys recognized when building a field from Attributes.
const (
	attrName                = "name"
	attrLabel               = "label"
	attrStorageType         = "storage_type"
	attrAnalyticalType      = "analytical_type"
	attrConcreteStorageType = "concrete_storage_type"
	attrSize                = "size"
	attrMissingValue        = "missing_value"
	attrInfo                = "info"
	attrOrigin              = "origin"
	attrDescription         = "description"
)

var attributeKeys = []string{
	attrName, attrLabel, attrStorageType, attrAnalyticalType,
	attrConcreteStorageType, attrSize, attrMissingValue, attrInfo,
	attrOrigin, attrDescription,
}

// FieldSpec is one of the accepted shapes a field can be declared in:
// Name, Triple, Attributes or an existing *Field.
type FieldSpec interface {
	fieldSpec()
}

// Name declares a field by name only.
type Name string

// Triple declares a field as (name, storage type, analytical type).
// Unset types are left undetermined.
type Triple struct {
	Name           string
	StorageType    StorageType
	AnalyticalType AnalyticalType
}

// Attributes declares a field by attribute name. Keys outside the field's
// attribute set are ignored.
type Attributes map[string]any

func (Name) fieldSpec()       {}
func (Triple) fieldSpec()     {}
func (Attributes) fieldSpec() {}
func (*Field) fieldSpec()     {}

// ToField builds a Field from spec. A *Field is returned as is.
//
// The default analytical type is not applied here: a field declared with
// only a storage type keeps an unset analytical type. Use
// Field.ResolvedAnalyticalType to read the effective one.
func ToField(spec FieldSpec) (*Field, error) {
	switch s := spec.(type) {
	case *Field:
		if s == nil {
			return nil, fmt.Errorf("%w: unable to create field from nil *Field", ErrInvalidArgument)
		}
		return s, nil
	case Name:
		return &Field{Name: string(s)}, nil
	case Triple:
		return &Field{Name: s.Name, StorageType: s.StorageType, AnalyticalType: s.AnalyticalType}, nil
	case Attributes:
		return fieldFromAttributes(s)
	default:
		return nil, fmt.Errorf("%w: unable to create field from %T", ErrInvalidArgument, spec)
	}
}

// SpecOf resolves a loosely typed value, as found in decoded YAML or JSON,
// into a FieldSpec. Accepted values are a string, a sequence of one to three
// strings (name, storage type, analytical type), a string keyed map, a
// *Field or any FieldSpec.
func SpecOf(v any) (FieldSpec, error) {
	switch val := v.(type) {
	case FieldSpec:
		if f, ok := val.(*Field); ok && f == nil {
			break
		}
		return val, nil
	case string:
		return Name(val), nil
	case []string:
		items := make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
		return tripleOf(items)
	case []any:
		return tripleOf(val)
	case map[string]any:
		return Attributes(val), nil
	}
	return nil, fmt.Errorf("%w: unable to create field from %T", ErrInvalidArgument, v)
}

// Coerce converts a loosely typed value into a Field. See SpecOf for the
// accepted shapes.
func Coerce(v any) (*Field, error) {
	spec, err := SpecOf(v)
	if err != nil {
		return nil, err
	}
	return ToField(spec)
}

func tripleOf(items []any) (Triple, error) {
	if len(items) == 0 || len(items) > 3 {
		return Triple{}, fmt.Errorf("%w: field sequence must have 1 to 3 elements, got %d", ErrInvalidArgument, len(items))
	}
	var t Triple
	name, ok := items[0].(string)
	if !ok {
		return Triple{}, fmt.Errorf("%w: field name must be a string, got %T", ErrInvalidArgument, items[0])
	}
	t.Name = name
	if len(items) > 1 {
		st, err := storageTypeOf(items[1])
		if err != nil {
			return Triple{}, err
		}
		t.StorageType = st
	}
	if len(items) > 2 {
		at, err := analyticalTypeOf(items[2])
		if err != nil {
			return Triple{}, err
		}
		t.AnalyticalType = at
	}
	return t, nil
}

func fieldFromAttributes(attrs Attributes) (*Field, error) {
	f := &Field{}
	var err error
	for key, v := range attrs {
		if v == nil {
			continue
		}
		switch key {
		case attrName:
			f.Name, err = stringAttr(key, v)
		case attrLabel:
			f.Label, err = stringAttr(key, v)
		case attrDescription:
			f.Description, err = stringAttr(key, v)
		case attrStorageType:
			f.StorageType, err = storageTypeOf(v)
		case attrAnalyticalType:
			f.AnalyticalType, err = analyticalTypeOf(v)
		case attrConcreteStorageType:
			f.ConcreteStorageType = v
		case attrMissingValue:
			f.MissingValue = v
		case attrSize:
			f.Size, err = intAttr(key, v)
		case attrInfo:
			info, ok := v.(map[string]any)
			if !ok {
				err = fmt.Errorf("%w: attribute %q must be a map, got %T", ErrInvalidArgument, key, v)
			}
			f.Info = info
		case attrOrigin:
			switch o := v.(type) {
			case Origin:
				f.Origin = o
			case *Field:
				f.Origin = OriginOfField(o)
			case *FieldList:
				f.Origin = OriginOfList(o)
			default:
				err = fmt.Errorf("%w: attribute %q must be a field or field list, got %T", ErrInvalidArgument, key, v)
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}

func stringAttr(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: attribute %q must be a string, got %T", ErrInvalidArgument, key, v)
	}
	return s, nil
}

func intAttr(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: attribute %q must be an integer, got %v", ErrInvalidArgument, key, n)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("%w: attribute %q must be an integer, got %T", ErrInvalidArgument, key, v)
}

func storageTypeOf(v any) (StorageType, error) {
	switch t := v.(type) {
	case StorageType:
		return t, nil
	case string:
		return ParseStorageType(t)
	case nil:
		return StorageUnset, nil
	}
	return StorageUnset, fmt.Errorf("%w: storage type must be a string, got %T", ErrInvalidArgument, v)
}

func analyticalTypeOf(v any) (AnalyticalType, error) {
	switch t := v.(type) {
	case AnalyticalType:
		return t, nil
	case string:
		return ParseAnalyticalType(t)
	case nil:
		return AnalyticalUnset, nil
	}
	return AnalyticalUnset, fmt.Errorf("%w: analytical type must be a string, got %T", ErrInvalidArgument, v)
}
