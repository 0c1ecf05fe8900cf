package metadata

import "fmt"

// StorageType is the physical representation of a field's values.
// The zero value, StorageUnset, means the type is undetermined.
type StorageType int

const (
	StorageUnset    StorageType = iota
	StorageUnknown              // declared, but processing behavior is undefined
	StorageString               // names, labels, up to hundreds of chars
	StorageText                 // bigger text storage
	StorageInteger              // integer numeric types
	StorageNumber               // floating point types
	StorageBoolean              // two-state value
	StorageDatetime             // full date and time with time zone
	StorageTime                 // time without a date
	StorageDate                 // date without a time
	StorageArray                // ordered collection
	StorageObject               // JSON-like document
	StorageBinary               // raw bytes
	StorageGeopoint             // (longitude, latitude)
)

var storageTypeNames = [...]string{
	StorageUnset:    "",
	StorageUnknown:  "unknown",
	StorageString:   "string",
	StorageText:     "text",
	StorageInteger:  "integer",
	StorageNumber:   "number",
	StorageBoolean:  "boolean",
	StorageDatetime: "datetime",
	StorageTime:     "time",
	StorageDate:     "date",
	StorageArray:    "array",
	StorageObject:   "object",
	StorageBinary:   "binary",
	StorageGeopoint: "geopoint",
}

// StorageTypes returns every declared storage type in canonical order.
// StorageUnset is not included.
func StorageTypes() []StorageType {
	types := make([]StorageType, 0, len(storageTypeNames)-1)
	for t := StorageUnknown; int(t) < len(storageTypeNames); t++ {
		types = append(types, t)
	}
	return types
}

// String returns the lowercase name of the storage type, or "" when unset.
func (t StorageType) String() string {
	if t < 0 || int(t) >= len(storageTypeNames) {
		return fmt.Sprintf("StorageType(%d)", int(t))
	}
	return storageTypeNames[t]
}

// IsSet reports whether the storage type has been determined.
func (t StorageType) IsSet() bool { return t != StorageUnset }

// ParseStorageType resolves a storage type name. An empty name yields
// StorageUnset; any name outside the enumeration is rejected.
func ParseStorageType(name string) (StorageType, error) {
	for i, n := range storageTypeNames {
		if n == name {
			return StorageType(i), nil
		}
	}
	return StorageUnset, fmt.Errorf("%w: unknown storage type %q", ErrInvalidArgument, name)
}

func (t StorageType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *StorageType) UnmarshalText(text []byte) error {
	parsed, err := ParseStorageType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// AnalyticalType describes how a field's values are meant to be used,
// independently of how they are stored. The zero value is AnalyticalUnset.
type AnalyticalType int

const (
	AnalyticalUnset    AnalyticalType = iota
	AnalyticalDefault                 // based on the storage type
	AnalyticalTypeless                // not relevant for analysis
	AnalyticalFlag                    // two-element set
	AnalyticalDiscrete                // mostly integers, arithmetic allowed
	AnalyticalMeasure                 // mostly floating point numbers
	AnalyticalNominal                 // unordered set
	AnalyticalOrdinal                 // ordered set
)

var analyticalTypeNames = [...]string{
	AnalyticalUnset:    "",
	AnalyticalDefault:  "default",
	AnalyticalTypeless: "typeless",
	AnalyticalFlag:     "flag",
	AnalyticalDiscrete: "discrete",
	AnalyticalMeasure:  "measure",
	AnalyticalNominal:  "nominal",
	AnalyticalOrdinal:  "ordinal",
}

// AnalyticalTypes returns every declared analytical type in canonical order.
func AnalyticalTypes() []AnalyticalType {
	types := make([]AnalyticalType, 0, len(analyticalTypeNames)-1)
	for t := AnalyticalDefault; int(t) < len(analyticalTypeNames); t++ {
		types = append(types, t)
	}
	return types
}

func (t AnalyticalType) String() string {
	if t < 0 || int(t) >= len(analyticalTypeNames) {
		return fmt.Sprintf("AnalyticalType(%d)", int(t))
	}
	return analyticalTypeNames[t]
}

// IsSet reports whether the analytical type has been determined.
func (t AnalyticalType) IsSet() bool { return t != AnalyticalUnset }

// ParseAnalyticalType resolves an analytical type name. An empty name yields
// AnalyticalUnset.
func ParseAnalyticalType(name string) (AnalyticalType, error) {
	for i, n := range analyticalTypeNames {
		if n == name {
			return AnalyticalType(i), nil
		}
	}
	return AnalyticalUnset, fmt.Errorf("%w: unknown analytical type %q", ErrInvalidArgument, name)
}

func (t AnalyticalType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *AnalyticalType) UnmarshalText(text []byte) error {
	parsed, err := ParseAnalyticalType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// defaultAnalyticalTypes is the only mapping from storage types to the
// analytical type a field gets when none is declared.
var defaultAnalyticalTypes = map[StorageType]AnalyticalType{
	StorageUnknown: AnalyticalTypeless,
	StorageString:  AnalyticalTypeless,
	StorageText:    AnalyticalTypeless,
	StorageInteger: AnalyticalDiscrete,
	StorageNumber:  AnalyticalMeasure,
	StorageDate:    AnalyticalTypeless,
	StorageArray:   AnalyticalTypeless,
	StorageObject:  AnalyticalTypeless,
}

// DefaultAnalyticalType returns the conventional analytical type for a
// storage type. The boolean is false when the table has no entry.
func DefaultAnalyticalType(t StorageType) (AnalyticalType, bool) {
	at, ok := defaultAnalyticalTypes[t]
	return at, ok
}

// WidenStorageType returns a storage type able to hold values of both a and
// b. An unset type yields the other one, integer and number widen to number
// and any other mismatch yields unknown.
func WidenStorageType(a, b StorageType) StorageType {
	switch {
	case !a.IsSet():
		return b
	case !b.IsSet(), a == b:
		return a
	case (a == StorageInteger || a == StorageNumber) && (b == StorageInteger || b == StorageNumber):
		return StorageNumber
	case (a == StorageString || a == StorageText) && (b == StorageString || b == StorageText):
		return StorageText
	}
	return StorageUnknown
}
