package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistillAggregateMeasures(t *testing.T) {
	tests := []struct {
		name     string
		measures any
		defaults []string
		expected []Pair
	}{
		{
			name:     "bare and paired",
			measures: []any{"amount", []any{"discount", "avg"}},
			expected: []Pair{{"amount", "sum"}, {"discount", "avg"}},
		},
		{
			name:     "aggregate fan out",
			measures: []any{[]any{"x", []any{"sum", "avg"}}},
			expected: []Pair{{"x", "sum"}, {"x", "avg"}},
		},
		{
			name:     "custom defaults",
			measures: []string{"a", "b"},
			defaults: []string{"min", "max"},
			expected: []Pair{{"a", "min"}, {"a", "max"}, {"b", "min"}, {"b", "max"}},
		},
		{
			name:     "measure values",
			measures: []Measure{{Name: "x", Aggregates: []string{"count"}}, {Name: "y"}},
			expected: []Pair{{"x", "count"}, {"y", "sum"}},
		},
		{
			name:     "single measure",
			measures: "amount",
			expected: []Pair{{"amount", "sum"}},
		},
		{
			name:     "empty",
			measures: nil,
			expected: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DistillAggregateMeasures(tt.measures, tt.defaults)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDistillAggregateMeasuresRejects(t *testing.T) {
	for _, measures := range []any{
		[]any{42},
		[]any{[]any{"x", 1}},
		[]any{[]any{"x", "sum", "avg"}},
		[]any{Measure{}},
		3.5,
	} {
		_, err := DistillAggregateMeasures(measures, nil)
		require.ErrorIs(t, err, ErrInvalidArgument, "measures %#v", measures)
	}
}

func TestPrepareKey(t *testing.T) {
	key, err := PrepareKey("id")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, key)

	key, err = PrepareKey([]string{"code", "name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "name"}, key)

	key, err = PrepareKey([]any{Name("code"), NewField("name", StorageString, AnalyticalUnset)})
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "name"}, key)

	key, err = PrepareKey(mustFieldList(t, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, key)

	_, err = PrepareKey([]any{"a", 1})
	require.ErrorIs(t, err, ErrInvalidArgument)

	key, err = PrepareKey(nil)
	require.NoError(t, err)
	assert.Empty(t, key)

	_, err = PrepareKey("")
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = PrepareKey([]string{"a", ""})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPrepareOrderList(t *testing.T) {
	order, err := PrepareOrderList([]any{"a", []string{"b", OrderDescending}, Pair{"c", OrderAscending}})
	require.NoError(t, err)
	assert.Equal(t, []Pair{{"a", "asc"}, {"b", "desc"}, {"c", "asc"}}, order)

	order, err = PrepareOrderList("a")
	require.NoError(t, err)
	assert.Equal(t, []Pair{{"a", "asc"}}, order)

	order, err = PrepareOrderList("")
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestPrepareAggregationList(t *testing.T) {
	aggs, err := PrepareAggregationList([]any{"amount", [2]string{"qty", "max"}})
	require.NoError(t, err)
	assert.Equal(t, []Pair{{"amount", "sum"}, {"qty", "max"}}, aggs)

	_, err = PrepareAggregationList([]any{[]any{"amount"}})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPrepareTupleListEmptyName(t *testing.T) {
	_, err := PrepareTupleList([]any{""}, "x")
	require.ErrorIs(t, err, ErrInvalidArgument)
}
