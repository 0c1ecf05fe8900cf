package etl

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"datapipe/internal/metadata"
)

// ── Transformer ────────────────────────────────────────────
// Transformers reshape a dataset between source and destination. Prepare
// derives the output schema from the input schema without touching data,
// so a whole pipeline can be planned before any row is read. Transform
// then rewrites rows shaped like the prepared input.
//
// Pattern: Benthos processor chain.

// ErrNotPrepared is returned by Transform when Prepare was not called.
var ErrNotPrepared = errors.New("transform used before Prepare")

// Transformer processes a batch of rows.
type Transformer interface {
	// Prepare validates the transform against in and returns the schema of
	// its output rows.
	Prepare(in *metadata.FieldList) (*metadata.FieldList, error)
	// Transform rewrites rows aligned with the prepared input schema.
	Transform(rows []Row) ([]Row, error)
}

// Aggregate functions understood by AggregateTransform.
const (
	AggregateSum   = metadata.AggregateSum
	AggregateAvg   = "avg"
	AggregateMin   = "min"
	AggregateMax   = "max"
	AggregateCount = "count"
)

// ── Projection ─────────────────────────────────────────────

// FieldFilterTransform keeps or drops fields and renames them.
//
// Rows are projected with the row level filter, which keeps input order, and
// then permuted to match the schema when keep reorders it.
type FieldFilterTransform struct {
	Keep   []string
	Drop   []string
	Rename map[string]string

	rows     metadata.RowFieldFilter
	perm     []int
	prepared bool
}

func (t *FieldFilterTransform) Prepare(in *metadata.FieldList) (*metadata.FieldList, error) {
	ff, err := metadata.NewFieldFilter(t.Keep, t.Drop, t.Rename)
	if err != nil {
		return nil, err
	}
	out, err := ff.Filter(in)
	if err != nil {
		return nil, err
	}

	mask := ff.FieldMask(in)
	var selected []string
	for i, name := range in.Names() {
		if mask[i] {
			selected = append(selected, name)
		}
	}
	order := slices.Clone(selected)
	if len(t.Keep) > 0 {
		sort.SliceStable(order, func(i, j int) bool {
			return slices.Index(t.Keep, order[i]) < slices.Index(t.Keep, order[j])
		})
	}
	t.perm = make([]int, len(order))
	for k, name := range order {
		t.perm[k] = slices.Index(selected, name)
	}
	t.rows = ff.RowFilter(in)
	t.prepared = true
	return out, nil
}

func (t *FieldFilterTransform) Transform(rows []Row) ([]Row, error) {
	if !t.prepared {
		return nil, ErrNotPrepared
	}
	out := make([]Row, len(rows))
	for i, row := range rows {
		projected, err := t.rows.Filter(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		permuted := make(Row, len(t.perm))
		for k, src := range t.perm {
			permuted[k] = projected[src]
		}
		out[i] = permuted
	}
	return out, nil
}

// ── Row filter ─────────────────────────────────────────────

// FilterTransform drops rows where the given field does not match the value.
type FilterTransform struct {
	Field string
	Op    string // "eq" | "neq" | "gt" | "gte" | "lt" | "lte" | "contains"
	Value any

	index int
}

func (t *FilterTransform) Prepare(in *metadata.FieldList) (*metadata.FieldList, error) {
	switch t.Op {
	case "eq", "neq", "gt", "gte", "lt", "lte", "contains":
	default:
		return nil, fmt.Errorf("filter: %w: unknown operator %q", metadata.ErrInvalidArgument, t.Op)
	}
	idx, err := in.Index(t.Field)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	t.index = idx + 1
	return in, nil
}

func (t *FilterTransform) Transform(rows []Row) ([]Row, error) {
	if t.index == 0 {
		return nil, ErrNotPrepared
	}
	var out []Row
	for _, row := range rows {
		if t.match(row[t.index-1]) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (t *FilterTransform) match(v any) bool {
	switch t.Op {
	case "eq":
		return compareValues(v, t.Value) == 0
	case "neq":
		return compareValues(v, t.Value) != 0
	case "contains":
		return v != nil && strings.Contains(fmt.Sprint(v), fmt.Sprint(t.Value))
	}
	if v == nil {
		return false
	}
	c := compareValues(v, t.Value)
	switch t.Op {
	case "gt":
		return c > 0
	case "gte":
		return c >= 0
	case "lt":
		return c < 0
	case "lte":
		return c <= 0
	}
	return false
}

// ── Sort ───────────────────────────────────────────────────

// SortTransform orders rows by one or more fields. Order accepts anything
// metadata.PrepareOrderList does, e.g. "name" or [["amount", "desc"], "name"].
type SortTransform struct {
	Order any

	keys []sortKey
}

type sortKey struct {
	index int
	desc  bool
}

func (t *SortTransform) Prepare(in *metadata.FieldList) (*metadata.FieldList, error) {
	order, err := metadata.PrepareOrderList(t.Order)
	if err != nil {
		return nil, fmt.Errorf("sort: %w", err)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("sort: %w: no fields to sort by", metadata.ErrInvalidArgument)
	}
	names := make([]string, len(order))
	for i, o := range order {
		names[i] = o.Field
	}
	indexes, err := in.Indexes(names...)
	if err != nil {
		return nil, fmt.Errorf("sort: %w", err)
	}

	t.keys = make([]sortKey, len(order))
	for i, o := range order {
		switch strings.ToLower(o.Value) {
		case metadata.OrderAscending:
		case metadata.OrderDescending:
			t.keys[i].desc = true
		default:
			return nil, fmt.Errorf("sort: %w: unknown direction %q for %s", metadata.ErrInvalidArgument, o.Value, o.Field)
		}
		t.keys[i].index = indexes[i]
	}
	return in, nil
}

func (t *SortTransform) Transform(rows []Row) ([]Row, error) {
	if t.keys == nil {
		return nil, ErrNotPrepared
	}
	sorted := slices.Clone(rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		for _, k := range t.keys {
			c := compareValues(sorted[i][k.index], sorted[j][k.index])
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return sorted, nil
}

// ── Aggregate ──────────────────────────────────────────────

// AggregateTransform groups rows by Key and aggregates Measures per group.
// Output rows hold the key values followed by one value per
// (measure, aggregate) pair and, when IncludeCount is set, the group size.
type AggregateTransform struct {
	Key               any
	Measures          any
	DefaultAggregates []string
	IncludeCount      bool
	CountField        string

	keyIndexes []int
	measures   []measureSpec
	prepared   bool
}

type measureSpec struct {
	index     int
	aggregate string
	integer   bool
}

func (t *AggregateTransform) Prepare(in *metadata.FieldList) (*metadata.FieldList, error) {
	key, err := metadata.PrepareKey(t.Key)
	if err != nil {
		return nil, fmt.Errorf("aggregate key: %w", err)
	}
	aggregations, err := metadata.DistillAggregateMeasures(t.Measures, t.DefaultAggregates)
	if err != nil {
		return nil, fmt.Errorf("aggregate measures: %w", err)
	}
	if len(aggregations) == 0 && !t.IncludeCount {
		return nil, fmt.Errorf("aggregate: %w: nothing to aggregate", metadata.ErrInvalidArgument)
	}

	keyFields, err := in.Fields(metadata.FieldQuery{Names: key})
	if err != nil {
		return nil, fmt.Errorf("aggregate key: %w", err)
	}
	t.keyIndexes, _ = in.Indexes(key...)

	aggFields, err := in.AggregatedFields(aggregations, t.IncludeCount, t.CountField)
	if err != nil {
		return nil, fmt.Errorf("aggregate measures: %w", err)
	}

	t.measures = make([]measureSpec, len(aggregations))
	for i, agg := range aggregations {
		switch agg.Value {
		case AggregateSum, AggregateAvg, AggregateMin, AggregateMax, AggregateCount:
		default:
			return nil, fmt.Errorf("aggregate: %w: unknown aggregate %q", metadata.ErrInvalidArgument, agg.Value)
		}
		idx, _ := in.Index(agg.Field)
		src, _ := in.FieldAt(idx)
		numeric := isNumericStorage(src.StorageType)
		if (agg.Value == AggregateSum || agg.Value == AggregateAvg) && !numeric {
			return nil, fmt.Errorf("aggregate: %w: cannot %s field %q of storage type %s",
				metadata.ErrInvalidArgument, agg.Value, agg.Field, src.StorageType)
		}
		t.measures[i] = measureSpec{index: idx, aggregate: agg.Value, integer: src.StorageType == metadata.StorageInteger}

		out, _ := aggFields.FieldAt(i)
		switch agg.Value {
		case AggregateSum:
			if src.StorageType != metadata.StorageInteger {
				out.StorageType = metadata.StorageNumber
			}
		case AggregateAvg:
			out.StorageType = metadata.StorageNumber
		case AggregateCount:
			out.StorageType = metadata.StorageInteger
		}
		if agg.Value == AggregateAvg || agg.Value == AggregateCount {
			out.ConcreteStorageType = nil
		}
	}

	t.prepared = true
	return keyFields.Concat(aggFields)
}

// isNumericStorage reports whether sum and avg apply to values of st.
// Undetermined storage types are accepted and summed as numbers.
func isNumericStorage(st metadata.StorageType) bool {
	switch st {
	case metadata.StorageInteger, metadata.StorageNumber, metadata.StorageUnset, metadata.StorageUnknown:
		return true
	}
	return false
}

type accumulator struct {
	sumInt   int64
	sumFloat float64
	floats   bool
	count    int64 // non-null values
	numeric  int64 // values that contributed to the sum
	min, max any
}

// integerValue accepts only Go integer kinds.
func integerValue(v any) (int64, bool) {
	switch v.(type) {
	case int, int32, int64:
		return toInt64(v)
	}
	return 0, false
}

func (a *accumulator) add(v any) {
	if v == nil {
		return
	}
	a.count++
	if n, ok := integerValue(v); ok && !a.floats {
		a.sumInt += n
		a.numeric++
	} else if f, ok := toFloatSafe(v); ok {
		if !a.floats {
			a.floats = true
			a.sumFloat = float64(a.sumInt)
		}
		a.sumFloat += f
		a.numeric++
	}
	if a.min == nil || compareValues(v, a.min) < 0 {
		a.min = v
	}
	if a.max == nil || compareValues(v, a.max) > 0 {
		a.max = v
	}
}

func (a *accumulator) result(aggregate string, integer bool) any {
	switch aggregate {
	case AggregateSum:
		if !a.floats && integer {
			return a.sumInt
		}
		if !a.floats {
			return float64(a.sumInt)
		}
		return a.sumFloat
	case AggregateAvg:
		if a.numeric == 0 {
			return nil
		}
		if !a.floats {
			return float64(a.sumInt) / float64(a.numeric)
		}
		return a.sumFloat / float64(a.numeric)
	case AggregateMin:
		return a.min
	case AggregateMax:
		return a.max
	case AggregateCount:
		return a.count
	}
	return nil
}

func (t *AggregateTransform) Transform(rows []Row) ([]Row, error) {
	if !t.prepared {
		return nil, ErrNotPrepared
	}

	type group struct {
		key   Row
		accs  []accumulator
		count int64
	}
	groups := map[string]*group{}
	var order []string

	for _, row := range rows {
		keyValues := make(Row, len(t.keyIndexes))
		for i, idx := range t.keyIndexes {
			keyValues[i] = row[idx]
		}
		id := groupID(keyValues)
		g, ok := groups[id]
		if !ok {
			g = &group{key: keyValues, accs: make([]accumulator, len(t.measures))}
			groups[id] = g
			order = append(order, id)
		}
		g.count++
		for i, m := range t.measures {
			g.accs[i].add(row[m.index])
		}
	}

	out := make([]Row, 0, len(order))
	for _, id := range order {
		g := groups[id]
		row := slices.Clone(g.key)
		for i, m := range t.measures {
			row = append(row, g.accs[i].result(m.aggregate, m.integer))
		}
		if t.IncludeCount {
			row = append(row, g.count)
		}
		out = append(out, row)
	}
	return out, nil
}

// groupID renders key values into a map key. Values of different types
// that print alike are kept apart by their type.
func groupID(values Row) string {
	var b strings.Builder
	for _, v := range values {
		fmt.Fprintf(&b, "%T:%v\x1f", v, v)
	}
	return b.String()
}

// ── Distinct / Dedupe ──────────────────────────────────────

// DistinctTransform projects rows onto Key and keeps the first row of each
// distinct key. An empty key uses every field.
type DistinctTransform struct {
	Key any

	indexes  []int
	prepared bool
}

func (t *DistinctTransform) Prepare(in *metadata.FieldList) (*metadata.FieldList, error) {
	key, err := metadata.PrepareKey(t.Key)
	if err != nil {
		return nil, fmt.Errorf("distinct: %w", err)
	}
	if len(key) == 0 {
		key = in.Names()
	}
	out, err := in.Fields(metadata.FieldQuery{Names: key})
	if err != nil {
		return nil, fmt.Errorf("distinct: %w", err)
	}
	t.indexes, _ = in.Indexes(key...)
	t.prepared = true
	return out, nil
}

func (t *DistinctTransform) Transform(rows []Row) ([]Row, error) {
	if !t.prepared {
		return nil, ErrNotPrepared
	}
	seen := map[string]bool{}
	var out []Row
	for _, row := range rows {
		projected := make(Row, len(t.indexes))
		for i, idx := range t.indexes {
			projected[i] = row[idx]
		}
		id := groupID(projected)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, projected)
	}
	return out, nil
}

// DedupeTransform drops rows with duplicate values for the given key and
// keeps every field.
type DedupeTransform struct {
	Key any

	indexes  []int
	prepared bool
}

func (t *DedupeTransform) Prepare(in *metadata.FieldList) (*metadata.FieldList, error) {
	key, err := metadata.PrepareKey(t.Key)
	if err != nil {
		return nil, fmt.Errorf("dedupe: %w", err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("dedupe: %w: key is required", metadata.ErrInvalidArgument)
	}
	t.indexes, err = in.Indexes(key...)
	if err != nil {
		return nil, fmt.Errorf("dedupe: %w", err)
	}
	t.prepared = true
	return in, nil
}

func (t *DedupeTransform) Transform(rows []Row) ([]Row, error) {
	if !t.prepared {
		return nil, ErrNotPrepared
	}
	seen := map[string]bool{}
	var out []Row
	for _, row := range rows {
		keyValues := make(Row, len(t.indexes))
		for i, idx := range t.indexes {
			keyValues[i] = row[idx]
		}
		id := groupID(keyValues)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, row)
	}
	return out, nil
}

// ── Limit ──────────────────────────────────────────────────

// LimitTransform caps the number of rows.
type LimitTransform struct {
	Count int
}

func (t *LimitTransform) Prepare(in *metadata.FieldList) (*metadata.FieldList, error) {
	if t.Count < 0 {
		return nil, fmt.Errorf("limit: %w: negative count %d", metadata.ErrInvalidArgument, t.Count)
	}
	return in, nil
}

func (t *LimitTransform) Transform(rows []Row) ([]Row, error) {
	if len(rows) > t.Count {
		return rows[:t.Count], nil
	}
	return rows, nil
}

// ── Type cast ──────────────────────────────────────────────

// TypeCastTransform converts a field's values to another storage type.
type TypeCastTransform struct {
	Field       string
	StorageType metadata.StorageType

	index int
}

func (t *TypeCastTransform) Prepare(in *metadata.FieldList) (*metadata.FieldList, error) {
	switch t.StorageType {
	case metadata.StorageInteger, metadata.StorageNumber, metadata.StorageString,
		metadata.StorageText, metadata.StorageBoolean:
	default:
		return nil, fmt.Errorf("type_cast: %w: can not cast to %q", metadata.ErrInvalidArgument, t.StorageType)
	}
	idx, err := in.Index(t.Field)
	if err != nil {
		return nil, fmt.Errorf("type_cast: %w", err)
	}
	src, _ := in.FieldAt(idx)

	cast := src.Clone()
	cast.StorageType = t.StorageType
	cast.ConcreteStorageType = nil
	cast.Origin = metadata.OriginOfField(src)

	out := in.Copy()
	if err := out.Set(idx, cast); err != nil {
		return nil, err
	}
	t.index = idx + 1
	return out, nil
}

func (t *TypeCastTransform) Transform(rows []Row) ([]Row, error) {
	if t.index == 0 {
		return nil, ErrNotPrepared
	}
	out := make([]Row, len(rows))
	for i, row := range rows {
		cast := slices.Clone(row)
		v, err := castValue(row[t.index-1], t.StorageType)
		if err != nil {
			return nil, fmt.Errorf("type_cast %s row %d: %w", t.Field, i, err)
		}
		cast[t.index-1] = v
		out[i] = cast
	}
	return out, nil
}

func castValue(v any, st metadata.StorageType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch st {
	case metadata.StorageInteger:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
		if f, ok := toFloatSafe(v); ok {
			return int64(math.Trunc(f)), nil
		}
		return nil, fmt.Errorf("%w: %v is not a number", metadata.ErrInvalidArgument, v)
	case metadata.StorageNumber:
		if f, ok := toFloatSafe(v); ok {
			return f, nil
		}
		return nil, fmt.Errorf("%w: %v is not a number", metadata.ErrInvalidArgument, v)
	case metadata.StorageBoolean:
		return toBool(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// ── Chain ──────────────────────────────────────────────────

// TransformConfig is a declarative transform definition.
type TransformConfig struct {
	Type   string  `json:"type" yaml:"type"`
	Config Options `json:"config,omitempty" yaml:"config,omitempty"`
}

// BuildTransformers converts declarative TransformConfig into Transformer instances.
func BuildTransformers(configs []TransformConfig) ([]Transformer, error) {
	ts := make([]Transformer, 0, len(configs))
	for i, tc := range configs {
		t, err := buildTransformer(tc)
		if err != nil {
			return nil, fmt.Errorf("transform %d (%s): %w", i, tc.Type, err)
		}
		ts = append(ts, t)
	}
	return ts, nil
}

func buildTransformer(tc TransformConfig) (Transformer, error) {
	cfg := tc.Config
	switch tc.Type {
	case "field_filter":
		return &FieldFilterTransform{
			Keep:   cfg.Strings("keep"),
			Drop:   cfg.Strings("drop"),
			Rename: cfg.StringMap("rename"),
		}, nil
	case "select":
		return &FieldFilterTransform{Keep: cfg.Strings("fields")}, nil
	case "rename":
		return &FieldFilterTransform{Rename: cfg.StringMap("mapping")}, nil
	case "filter":
		field, op := cfg.String("field"), cfg.String("op")
		if field == "" || op == "" {
			return nil, fmt.Errorf("%w: field and op are required", metadata.ErrInvalidArgument)
		}
		return &FilterTransform{Field: field, Op: op, Value: cfg["value"]}, nil
	case "sort":
		if order, ok := cfg["order"]; ok {
			return &SortTransform{Order: order}, nil
		}
		// single field form: {field, direction}
		field := cfg.String("field")
		direction := cfg.String("direction")
		if direction == "" {
			direction = metadata.OrderAscending
		}
		return &SortTransform{Order: []any{[]any{field, direction}}}, nil
	case "aggregate":
		count := cfg.Bool("include_count", true)
		return &AggregateTransform{
			Key:               cfg["key"],
			Measures:          cfg["measures"],
			DefaultAggregates: cfg.Strings("default_aggregates"),
			IncludeCount:      count,
			CountField:        cfg.String("count_field"),
		}, nil
	case "distinct":
		return &DistinctTransform{Key: cfg["key"]}, nil
	case "dedupe":
		return &DedupeTransform{Key: cfg["key"]}, nil
	case "limit":
		n, ok := toInt(cfg["count"])
		if !ok {
			return nil, fmt.Errorf("%w: count is required", metadata.ErrInvalidArgument)
		}
		return &LimitTransform{Count: n}, nil
	case "type_cast":
		st, err := metadata.ParseStorageType(cfg.String("storage_type"))
		if err != nil {
			return nil, err
		}
		return &TypeCastTransform{Field: cfg.String("field"), StorageType: st}, nil
	}
	return nil, fmt.Errorf("%w: unknown transform type %q", metadata.ErrInvalidArgument, tc.Type)
}

// PrepareChain runs Prepare over the chain and returns the schema after
// each stage.
func PrepareChain(in *metadata.FieldList, ts []Transformer) ([]*metadata.FieldList, error) {
	stages := make([]*metadata.FieldList, 0, len(ts))
	current := in
	for i, t := range ts {
		out, err := t.Prepare(current)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		stages = append(stages, out)
		current = out
	}
	return stages, nil
}

// ApplyTransformers runs a prepared chain of transformers on rows.
func ApplyTransformers(rows []Row, ts []Transformer) ([]Row, error) {
	var err error
	for i, t := range ts {
		rows, err = t.Transform(rows)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
	}
	return rows, nil
}

// ── Helpers ────────────────────────────────────────────────

// compareValues orders numbers numerically and everything else by its
// string form. nil sorts first.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			}
			return 1
		}
	}
	fa, aOk := toFloatSafe(a)
	fb, bOk := toFloatSafe(b)
	if aOk && bOk {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloatSafe(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	n, ok := toInt64(v)
	if _, isBool := v.(bool); isBool {
		return 0, false
	}
	return int(n), ok
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "y", "1":
			return true
		}
		return false
	default:
		f, ok := toFloatSafe(v)
		return ok && f != 0
	}
}
