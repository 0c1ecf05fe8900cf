package metadata

import "fmt"

// Defaults used by the normalization helpers.
const (
	OrderAscending  = "asc"
	OrderDescending = "desc"
	AggregateSum    = "sum"
)

// Pair is one entry of a canonical list: a field name with a parameter
// such as an aggregate function or a sort direction.
type Pair struct {
	Field string
	Value string
}

// Measure pairs a measure with one or more aggregates. It is accepted by
// DistillAggregateMeasures.
type Measure struct {
	Name       string
	Aggregates []string
}

// PrepareTupleList normalizes items into a list of (field, value) pairs.
//
// items is a single field-like value (string, Name, *Field or any
// fmt.Stringer), a single Pair, or a sequence of those. Sequence elements
// may also be two element sequences (field, value). Field-like elements are
// paired with defaultValue. A nil or empty input yields an empty list.
func PrepareTupleList(items any, defaultValue string) ([]Pair, error) {
	elems, err := sequenceOf(items)
	if err != nil {
		return nil, err
	}
	result := make([]Pair, 0, len(elems))
	for _, elem := range elems {
		if name, ok := fieldNameOf(elem); ok {
			result = append(result, Pair{Field: name, Value: defaultValue})
			continue
		}
		p, err := pairOf(elem)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

// PrepareOrderList normalizes a sort specification. Fields without an
// explicit direction are sorted ascending.
func PrepareOrderList(fields any) ([]Pair, error) {
	return PrepareTupleList(fields, OrderAscending)
}

// PrepareAggregationList normalizes an aggregation specification. Fields
// without an explicit aggregate are summed.
func PrepareAggregationList(measures any) ([]Pair, error) {
	return PrepareTupleList(measures, AggregateSum)
}

// PrepareKey normalizes a grouping or join key, given as one field-like
// value or a sequence of them, into a list of field names. A nil key means
// no key and yields an empty list; an empty name is rejected.
func PrepareKey(key any) ([]string, error) {
	if s, ok := key.(string); ok && s == "" {
		return nil, fmt.Errorf("%w: key field name is empty", ErrInvalidArgument)
	}
	elems, err := sequenceOf(key)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(elems))
	for i, elem := range elems {
		name, ok := fieldNameOf(elem)
		if !ok {
			return nil, fmt.Errorf("%w: key element %d must be a field name, got %T", ErrInvalidArgument, i, elem)
		}
		names[i] = name
	}
	return names, nil
}

// DistillAggregateMeasures expands measures into (measure, aggregate) pairs.
//
// A bare measure gets defaultAggregates, or "sum" when none are given. A
// (measure, aggregate) pair yields one entry; a (measure, [aggregates])
// pair or a Measure yields one entry per aggregate. The result follows the
// input order, then the aggregate order within each measure.
func DistillAggregateMeasures(measures any, defaultAggregates []string) ([]Pair, error) {
	if len(defaultAggregates) == 0 {
		defaultAggregates = []string{AggregateSum}
	}
	elems, err := sequenceOf(measures)
	if err != nil {
		return nil, err
	}

	var result []Pair
	for _, elem := range elems {
		name, aggregates, err := measureOf(elem, defaultAggregates)
		if err != nil {
			return nil, err
		}
		for _, agg := range aggregates {
			result = append(result, Pair{Field: name, Value: agg})
		}
	}
	return result, nil
}

func measureOf(elem any, defaults []string) (string, []string, error) {
	if name, ok := fieldNameOf(elem); ok {
		return name, defaults, nil
	}
	switch m := elem.(type) {
	case Measure:
		if m.Name == "" {
			return "", nil, fmt.Errorf("%w: measure without a name", ErrInvalidArgument)
		}
		if len(m.Aggregates) == 0 {
			return m.Name, defaults, nil
		}
		return m.Name, m.Aggregates, nil
	case Pair:
		return m.Field, []string{m.Value}, nil
	case []any:
		if len(m) == 2 {
			name, ok := fieldNameOf(m[0])
			if !ok {
				break
			}
			aggs, err := aggregatesOf(m[1])
			if err != nil {
				return "", nil, err
			}
			return name, aggs, nil
		}
	case []string, [2]string:
		p, err := pairOf(m)
		if err != nil {
			return "", nil, err
		}
		return p.Field, []string{p.Value}, nil
	}
	return "", nil, fmt.Errorf("%w: malformed measure %v (%T)", ErrInvalidArgument, elem, elem)
}

func aggregatesOf(v any) ([]string, error) {
	switch a := v.(type) {
	case string:
		return []string{a}, nil
	case []string:
		return a, nil
	case []any:
		aggs := make([]string, len(a))
		for i, item := range a {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: aggregate must be a string, got %T", ErrInvalidArgument, item)
			}
			aggs[i] = s
		}
		return aggs, nil
	}
	return nil, fmt.Errorf("%w: aggregates must be a string or a list, got %T", ErrInvalidArgument, v)
}

// fieldNameOf returns the name of a field-like value.
func fieldNameOf(v any) (string, bool) {
	var name string
	switch f := v.(type) {
	case string:
		name = f
	case Name:
		name = string(f)
	case *Field:
		if f == nil {
			return "", false
		}
		name = f.Name
	case *FieldList:
		return "", false
	case fmt.Stringer:
		name = f.String()
	default:
		return "", false
	}
	return name, name != ""
}

func pairOf(v any) (Pair, error) {
	switch p := v.(type) {
	case Pair:
		return p, nil
	case [2]string:
		return Pair{Field: p[0], Value: p[1]}, nil
	case []string:
		if len(p) == 2 {
			return Pair{Field: p[0], Value: p[1]}, nil
		}
	case []any:
		if len(p) == 2 {
			name, ok := fieldNameOf(p[0])
			value, isString := p[1].(string)
			if ok && isString {
				return Pair{Field: name, Value: value}, nil
			}
		}
	}
	return Pair{}, fmt.Errorf("%w: expected a field or a (field, value) pair, got %v (%T)", ErrInvalidArgument, v, v)
}

// sequenceOf flattens the accepted top level shapes into a list of elements.
func sequenceOf(v any) ([]any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		if s == "" {
			return nil, nil
		}
		return []any{s}, nil
	case Name, *Field, Pair, Measure, [2]string:
		return []any{s}, nil
	case []any:
		return s, nil
	case []string:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, nil
	case []Pair:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, nil
	case []Measure:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, nil
	case [][2]string:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, nil
	case []*Field:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, nil
	case *FieldList:
		if s == nil {
			return nil, nil
		}
		out := make([]any, s.Len())
		for i, item := range s.fields {
			out[i] = item
		}
		return out, nil
	case fmt.Stringer:
		return []any{s}, nil
	}
	return nil, fmt.Errorf("%w: unsupported specification %T", ErrInvalidArgument, v)
}
