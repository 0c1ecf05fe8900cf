package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datapipe/internal/metadata"
)

// ─────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────

func salesFields(t *testing.T) *metadata.FieldList {
	t.Helper()
	fields, err := metadata.FieldListOf(
		[]any{"region", "string"},
		[]any{"product", "string"},
		[]any{"amount", "integer"},
		[]any{"price", "number"},
	)
	require.NoError(t, err)
	return fields
}

func salesRows() []Row {
	return []Row{
		{"north", "a", int64(10), 1.5},
		{"south", "b", int64(5), 2.0},
		{"north", "b", int64(7), 3.0},
		{"south", "a", int64(1), 0.5},
	}
}

func prepare(t *testing.T, tr Transformer, in *metadata.FieldList) *metadata.FieldList {
	t.Helper()
	out, err := tr.Prepare(in)
	require.NoError(t, err)
	return out
}

// ─────────────────────────────────────────────────────────────
// Projection
// ─────────────────────────────────────────────────────────────

func TestFieldFilterTransform_KeepOrderAndRename(t *testing.T) {
	tr := &FieldFilterTransform{
		Keep:   []string{"amount", "region"},
		Rename: map[string]string{"region": "area"},
	}
	out := prepare(t, tr, salesFields(t))
	assert.Equal(t, []string{"amount", "area"}, out.Names())

	rows, err := tr.Transform(salesRows())
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Row{int64(10), "north"}, rows[0])
	assert.Equal(t, Row{int64(1), "south"}, rows[3])
}

func TestFieldFilterTransform_Drop(t *testing.T) {
	tr := &FieldFilterTransform{Drop: []string{"product", "price"}}
	out := prepare(t, tr, salesFields(t))
	assert.Equal(t, []string{"region", "amount"}, out.Names())

	rows, err := tr.Transform(salesRows()[:1])
	require.NoError(t, err)
	assert.Equal(t, []Row{{"north", int64(10)}}, rows)
}

func TestFieldFilterTransform_UnknownField(t *testing.T) {
	tr := &FieldFilterTransform{Keep: []string{"missing"}}
	_, err := tr.Prepare(salesFields(t))
	assert.ErrorIs(t, err, metadata.ErrNoSuchField)
}

func TestFieldFilterTransform_RowArity(t *testing.T) {
	tr := &FieldFilterTransform{Keep: []string{"region"}}
	prepare(t, tr, salesFields(t))
	_, err := tr.Transform([]Row{{"north"}})
	assert.ErrorIs(t, err, metadata.ErrInvalidArgument)
}

func TestTransform_NotPrepared(t *testing.T) {
	for _, tr := range []Transformer{
		&FieldFilterTransform{Keep: []string{"region"}},
		&FilterTransform{Field: "amount", Op: "gt", Value: 1},
		&SortTransform{Order: "amount"},
		&AggregateTransform{Key: "region", Measures: "amount"},
		&DistinctTransform{Key: "region"},
		&DedupeTransform{Key: "region"},
		&TypeCastTransform{Field: "amount", StorageType: metadata.StorageString},
	} {
		_, err := tr.Transform(salesRows())
		assert.ErrorIs(t, err, ErrNotPrepared, "%T", tr)
	}
}

// ─────────────────────────────────────────────────────────────
// Row filter / sort / limit
// ─────────────────────────────────────────────────────────────

func TestFilterTransform(t *testing.T) {
	tests := []struct {
		op    string
		field string
		value any
		want  int
	}{
		{"gt", "amount", 5, 2},
		{"gte", "amount", 5, 3},
		{"lt", "price", 1.0, 1},
		{"lte", "price", 1.5, 2},
		{"eq", "region", "north", 2},
		{"neq", "region", "north", 2},
		{"contains", "product", "b", 2},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			tr := &FilterTransform{Field: tt.field, Op: tt.op, Value: tt.value}
			prepare(t, tr, salesFields(t))
			rows, err := tr.Transform(salesRows())
			require.NoError(t, err)
			assert.Len(t, rows, tt.want)
		})
	}
}

func TestFilterTransform_Invalid(t *testing.T) {
	_, err := (&FilterTransform{Field: "amount", Op: "like"}).Prepare(salesFields(t))
	assert.ErrorIs(t, err, metadata.ErrInvalidArgument)

	_, err = (&FilterTransform{Field: "missing", Op: "eq"}).Prepare(salesFields(t))
	assert.ErrorIs(t, err, metadata.ErrNoSuchField)
}

func TestSortTransform_MultiKey(t *testing.T) {
	tr := &SortTransform{Order: []any{[]any{"region", "asc"}, []any{"amount", "desc"}}}
	prepare(t, tr, salesFields(t))

	in := salesRows()
	rows, err := tr.Transform(in)
	require.NoError(t, err)

	var amounts []any
	for _, r := range rows {
		amounts = append(amounts, r[2])
	}
	assert.Equal(t, []any{int64(10), int64(7), int64(5), int64(1)}, amounts)
	assert.Equal(t, int64(10), in[0][2], "input is not reordered")
}

func TestSortTransform_Invalid(t *testing.T) {
	_, err := (&SortTransform{Order: []any{[]any{"amount", "up"}}}).Prepare(salesFields(t))
	assert.ErrorIs(t, err, metadata.ErrInvalidArgument)

	_, err = (&SortTransform{Order: "missing"}).Prepare(salesFields(t))
	assert.ErrorIs(t, err, metadata.ErrNoSuchField)

	_, err = (&SortTransform{}).Prepare(salesFields(t))
	assert.ErrorIs(t, err, metadata.ErrInvalidArgument)
}

func TestLimitTransform(t *testing.T) {
	tr := &LimitTransform{Count: 2}
	prepare(t, tr, salesFields(t))
	rows, err := tr.Transform(salesRows())
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = (&LimitTransform{Count: -1}).Prepare(salesFields(t))
	assert.ErrorIs(t, err, metadata.ErrInvalidArgument)
}

// ─────────────────────────────────────────────────────────────
// Aggregate / distinct / dedupe
// ─────────────────────────────────────────────────────────────

func TestAggregateTransform(t *testing.T) {
	tr := &AggregateTransform{
		Key:          "region",
		Measures:     []any{"amount", []any{"price", "avg"}},
		IncludeCount: true,
	}
	out := prepare(t, tr, salesFields(t))
	assert.Equal(t, []string{"region", "amount_sum", "price_avg", "record_count"}, out.Names())

	sum, err := out.Field("amount_sum")
	require.NoError(t, err)
	assert.Equal(t, metadata.StorageInteger, sum.StorageType)
	assert.Equal(t, metadata.AnalyticalMeasure, sum.AnalyticalType)

	rows, err := tr.Transform(salesRows())
	require.NoError(t, err)
	assert.Equal(t, []Row{
		{"north", int64(17), 2.25, int64(2)},
		{"south", int64(6), 1.25, int64(2)},
	}, rows)
}

func TestAggregateTransform_DefaultAggregates(t *testing.T) {
	tr := &AggregateTransform{
		Key:               []string{"region", "product"},
		Measures:          "amount",
		DefaultAggregates: []string{"min", "max", "count"},
	}
	out := prepare(t, tr, salesFields(t))
	assert.Equal(t, []string{"region", "product", "amount_min", "amount_max", "amount_count"}, out.Names())

	rows, err := tr.Transform(salesRows())
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Row{"north", "a", int64(10), int64(10), int64(1)}, rows[0])
}

func TestAggregateTransform_Invalid(t *testing.T) {
	_, err := (&AggregateTransform{Key: "region", Measures: []any{[]any{"amount", "median"}}}).Prepare(salesFields(t))
	assert.ErrorIs(t, err, metadata.ErrInvalidArgument)

	_, err = (&AggregateTransform{Key: "missing", Measures: "amount"}).Prepare(salesFields(t))
	assert.ErrorIs(t, err, metadata.ErrNoSuchField)

	_, err = (&AggregateTransform{Key: "region"}).Prepare(salesFields(t))
	assert.ErrorIs(t, err, metadata.ErrInvalidArgument)
}

func TestAggregateTransform_AvgSkipsNonNumeric(t *testing.T) {
	fields, err := metadata.FieldListOf([]any{"k", "string"}, []any{"n", "integer"})
	require.NoError(t, err)
	tr := &AggregateTransform{
		Key:      "k",
		Measures: []any{"n", []any{"n", "avg"}, []any{"n", "count"}},
	}
	prepare(t, tr, fields)

	rows, err := tr.Transform([]Row{{"a", int64(1)}, {"a", int64(2)}, {"a", "x"}, {"a", nil}})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"a", int64(3), 1.5, int64(3)}}, rows)

	rows, err = tr.Transform([]Row{{"b", "x"}})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"b", int64(0), nil, int64(1)}}, rows)
}

func TestAggregateTransform_IntegerWidths(t *testing.T) {
	fields, err := metadata.FieldListOf([]any{"k", "string"}, []any{"n", "integer"})
	require.NoError(t, err)
	tr := &AggregateTransform{Key: "k", Measures: "n"}
	out := prepare(t, tr, fields)

	sum, err := out.Field("n_sum")
	require.NoError(t, err)
	assert.Equal(t, metadata.StorageInteger, sum.StorageType)

	rows, err := tr.Transform([]Row{{"a", int32(1)}, {"a", int32(2)}, {"b", 4}, {"b", int64(5)}})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"a", int64(3)}, {"b", int64(9)}}, rows)

	rows, err = tr.Transform([]Row{{"a", int32(1)}, {"a", 0.5}})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"a", 1.5}}, rows)
}

func TestAggregateTransform_NonNumericMeasures(t *testing.T) {
	_, err := (&AggregateTransform{Key: "region", Measures: "product"}).Prepare(salesFields(t))
	assert.ErrorIs(t, err, metadata.ErrInvalidArgument)

	_, err = (&AggregateTransform{Key: "region", Measures: []any{[]any{"product", "avg"}}}).Prepare(salesFields(t))
	assert.ErrorIs(t, err, metadata.ErrInvalidArgument)

	tr := &AggregateTransform{Key: "region", Measures: []any{[]any{"product", []string{"min", "max", "count"}}}}
	out := prepare(t, tr, salesFields(t))
	assert.Equal(t, []string{"region", "product_min", "product_max", "product_count"}, out.Names())

	untyped, err := metadata.FieldListOf("k", "n")
	require.NoError(t, err)
	out = prepare(t, &AggregateTransform{Key: "k", Measures: "n"}, untyped)
	sum, err := out.Field("n_sum")
	require.NoError(t, err)
	assert.Equal(t, metadata.StorageNumber, sum.StorageType)
}

func TestDistinctTransform_EmptyKey(t *testing.T) {
	_, err := (&DistinctTransform{Key: ""}).Prepare(salesFields(t))
	assert.ErrorIs(t, err, metadata.ErrInvalidArgument)
}

func TestDistinctTransform(t *testing.T) {
	tr := &DistinctTransform{Key: "region"}
	out := prepare(t, tr, salesFields(t))
	assert.Equal(t, []string{"region"}, out.Names())

	rows, err := tr.Transform(salesRows())
	require.NoError(t, err)
	assert.Equal(t, []Row{{"north"}, {"south"}}, rows)
}

func TestDedupeTransform(t *testing.T) {
	tr := &DedupeTransform{Key: "product"}
	out := prepare(t, tr, salesFields(t))
	assert.Equal(t, 4, out.Len())

	rows, err := tr.Transform(salesRows())
	require.NoError(t, err)
	assert.Equal(t, salesRows()[:2], rows)

	_, err = (&DedupeTransform{}).Prepare(salesFields(t))
	assert.ErrorIs(t, err, metadata.ErrInvalidArgument)
}

// ─────────────────────────────────────────────────────────────
// Type cast
// ─────────────────────────────────────────────────────────────

func TestTypeCastTransform(t *testing.T) {
	in := salesFields(t)
	tr := &TypeCastTransform{Field: "amount", StorageType: metadata.StorageString}
	out := prepare(t, tr, in)

	cast, err := out.Field("amount")
	require.NoError(t, err)
	assert.Equal(t, metadata.StorageString, cast.StorageType)

	src, err := in.Field("amount")
	require.NoError(t, err)
	assert.Equal(t, metadata.StorageInteger, src.StorageType, "input field is not changed")
	assert.Same(t, src, cast.Origin.Field())

	rows, err := tr.Transform(salesRows())
	require.NoError(t, err)
	assert.Equal(t, "10", rows[0][2])
}

func TestCastValue(t *testing.T) {
	tests := []struct {
		in   any
		st   metadata.StorageType
		want any
	}{
		{"42", metadata.StorageInteger, int64(42)},
		{"3.9", metadata.StorageInteger, int64(3)},
		{int64(2), metadata.StorageNumber, 2.0},
		{"yes", metadata.StorageBoolean, true},
		{int64(0), metadata.StorageBoolean, false},
		{1.5, metadata.StorageText, "1.5"},
		{nil, metadata.StorageInteger, nil},
	}
	for _, tt := range tests {
		got, err := castValue(tt.in, tt.st)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%v as %s", tt.in, tt.st)
	}

	_, err := castValue("abc", metadata.StorageNumber)
	assert.ErrorIs(t, err, metadata.ErrInvalidArgument)
}

func TestTypeCastTransform_Unsupported(t *testing.T) {
	_, err := (&TypeCastTransform{Field: "amount", StorageType: metadata.StorageGeopoint}).Prepare(salesFields(t))
	assert.ErrorIs(t, err, metadata.ErrInvalidArgument)
}

// ─────────────────────────────────────────────────────────────
// Chain
// ─────────────────────────────────────────────────────────────

func TestBuildTransformers(t *testing.T) {
	ts, err := BuildTransformers([]TransformConfig{
		{Type: "filter", Config: Options{"field": "amount", "op": "gt", "value": 1}},
		{Type: "aggregate", Config: Options{"key": "region", "measures": []any{"amount"}, "include_count": false}},
		{Type: "sort", Config: Options{"field": "amount_sum", "direction": "desc"}},
		{Type: "limit", Config: Options{"count": 1}},
	})
	require.NoError(t, err)
	require.Len(t, ts, 4)

	stages, err := PrepareChain(salesFields(t), ts)
	require.NoError(t, err)
	require.Len(t, stages, 4)
	assert.Equal(t, []string{"region", "amount_sum"}, stages[3].Names())

	rows, err := ApplyTransformers(salesRows(), ts)
	require.NoError(t, err)
	assert.Equal(t, []Row{{"north", int64(17)}}, rows)
}

func TestBuildTransformers_Invalid(t *testing.T) {
	tests := []TransformConfig{
		{Type: "explode"},
		{Type: "filter", Config: Options{"field": "amount"}},
		{Type: "limit"},
		{Type: "type_cast", Config: Options{"field": "amount", "storage_type": "decimal"}},
	}
	for _, tc := range tests {
		_, err := BuildTransformers([]TransformConfig{tc})
		assert.Error(t, err, tc.Type)
	}
}

func TestPrepareChain_ReportsStage(t *testing.T) {
	ts, err := BuildTransformers([]TransformConfig{
		{Type: "select", Config: Options{"fields": []any{"region"}}},
		{Type: "sort", Config: Options{"order": "amount"}},
	})
	require.NoError(t, err)

	_, err = PrepareChain(salesFields(t), ts)
	require.ErrorIs(t, err, metadata.ErrNoSuchField)
	assert.Contains(t, err.Error(), "stage 1")
}

// ─────────────────────────────────────────────────────────────
// Value helpers
// ─────────────────────────────────────────────────────────────

func TestCompareValues(t *testing.T) {
	assert.Equal(t, 0, compareValues(nil, nil))
	assert.Equal(t, -1, compareValues(nil, 1))
	assert.Equal(t, 1, compareValues(2, nil))
	assert.Equal(t, -1, compareValues(int64(2), 10.0))
	assert.Equal(t, 0, compareValues("5", int64(5)))
	assert.Equal(t, -1, compareValues(false, true))
	assert.Equal(t, 1, compareValues("b", "a"))
}

func TestToInt(t *testing.T) {
	n, ok := toInt(float64(3))
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = toInt(3.5)
	assert.False(t, ok)

	_, ok = toInt(true)
	assert.False(t, ok)
}
