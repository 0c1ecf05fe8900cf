package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseStorageType(t *testing.T) {
	for _, st := range StorageTypes() {
		parsed, err := ParseStorageType(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, parsed)
	}

	st, err := ParseStorageType("")
	require.NoError(t, err)
	assert.Equal(t, StorageUnset, st)

	_, err = ParseStorageType("decimal")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestParseAnalyticalType(t *testing.T) {
	for _, at := range AnalyticalTypes() {
		parsed, err := ParseAnalyticalType(at.String())
		require.NoError(t, err)
		assert.Equal(t, at, parsed)
	}

	_, err := ParseAnalyticalType("category")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTypeNames(t *testing.T) {
	assert.Len(t, StorageTypes(), 13)
	assert.Len(t, AnalyticalTypes(), 7)
	assert.Equal(t, "geopoint", StorageGeopoint.String())
	assert.Equal(t, "ordinal", AnalyticalOrdinal.String())
	assert.Equal(t, "StorageType(99)", StorageType(99).String())
}

func TestDefaultAnalyticalType(t *testing.T) {
	tests := []struct {
		storage  StorageType
		expected AnalyticalType
		ok       bool
	}{
		{StorageUnknown, AnalyticalTypeless, true},
		{StorageString, AnalyticalTypeless, true},
		{StorageText, AnalyticalTypeless, true},
		{StorageInteger, AnalyticalDiscrete, true},
		{StorageNumber, AnalyticalMeasure, true},
		{StorageDate, AnalyticalTypeless, true},
		{StorageArray, AnalyticalTypeless, true},
		{StorageObject, AnalyticalTypeless, true},
		{StorageBoolean, AnalyticalUnset, false},
		{StorageUnset, AnalyticalUnset, false},
	}
	for _, tt := range tests {
		t.Run(tt.storage.String(), func(t *testing.T) {
			at, ok := DefaultAnalyticalType(tt.storage)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, at)
		})
	}
}

func TestTypesYAML(t *testing.T) {
	var doc struct {
		Storage    StorageType    `yaml:"storage"`
		Analytical AnalyticalType `yaml:"analytical"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("storage: integer\nanalytical: nominal\n"), &doc))
	assert.Equal(t, StorageInteger, doc.Storage)
	assert.Equal(t, AnalyticalNominal, doc.Analytical)

	err := yaml.Unmarshal([]byte("storage: decimal\n"), &doc)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestWidenStorageType(t *testing.T) {
	assert.Equal(t, StorageInteger, WidenStorageType(StorageUnset, StorageInteger))
	assert.Equal(t, StorageInteger, WidenStorageType(StorageInteger, StorageUnset))
	assert.Equal(t, StorageNumber, WidenStorageType(StorageInteger, StorageNumber))
	assert.Equal(t, StorageText, WidenStorageType(StorageString, StorageText))
	assert.Equal(t, StorageUnknown, WidenStorageType(StorageString, StorageNumber))
}
