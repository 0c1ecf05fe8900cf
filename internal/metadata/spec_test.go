package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFieldPassthrough(t *testing.T) {
	f := NewField("a", StorageString, AnalyticalNominal)
	got, err := ToField(f)
	require.NoError(t, err)
	assert.Same(t, f, got)

	_, err = ToField((*Field)(nil))
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = ToField(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestToFieldVariants(t *testing.T) {
	f, err := ToField(Name("id"))
	require.NoError(t, err)
	assert.Equal(t, &Field{Name: "id"}, f)

	f, err = ToField(Triple{Name: "amount", StorageType: StorageNumber})
	require.NoError(t, err)
	assert.Equal(t, "amount", f.Name)
	assert.Equal(t, StorageNumber, f.StorageType)
	assert.Equal(t, AnalyticalUnset, f.AnalyticalType)

	f, err = ToField(Attributes{
		"name":            "year",
		"label":           "Year",
		"storage_type":    "integer",
		"analytical_type": "ordinal",
		"size":            4.0,
		"missing_value":   -1,
		"unrelated":       "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, &Field{
		Name:           "year",
		Label:          "Year",
		StorageType:    StorageInteger,
		AnalyticalType: AnalyticalOrdinal,
		Size:           4,
		MissingValue:   -1,
	}, f)
}

func TestToFieldAttributeErrors(t *testing.T) {
	tests := map[string]Attributes{
		"name not a string":      {"name": 1},
		"unknown storage type":   {"name": "a", "storage_type": "decimal"},
		"fractional size":        {"name": "a", "size": 1.5},
		"info not a map":         {"name": "a", "info": "x"},
		"origin not a reference": {"name": "a", "origin": "b"},
	}
	for name, attrs := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ToField(attrs)
			require.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected *Field
	}{
		{"string", "a", &Field{Name: "a"}},
		{"one element", []any{"a"}, &Field{Name: "a"}},
		{"two elements", []any{"a", "integer"}, &Field{Name: "a", StorageType: StorageInteger}},
		{"three elements", []string{"a", "string", "nominal"}, &Field{Name: "a", StorageType: StorageString, AnalyticalType: AnalyticalNominal}},
		{"mapping", map[string]any{"name": "a", "description": "first"}, &Field{Name: "a", Description: "first"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Coerce(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func TestCoerceRejects(t *testing.T) {
	for _, input := range []any{42, 3.5, []any{}, []any{"a", "b", "c", "d"}, []any{1}, nil} {
		_, err := Coerce(input)
		require.ErrorIs(t, err, ErrInvalidArgument, "input %#v", input)
	}

	_, err := Coerce(42)
	assert.ErrorContains(t, err, "int")
}
