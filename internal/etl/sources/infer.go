package sources

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"datapipe/internal/etl"
	"datapipe/internal/metadata"
)

// ── Schema inference ───────────────────────────────────────
// Sources without a declared schema infer one from their values. Inferred
// types are widened across rows with metadata.WidenStorageType; a column
// that only ever holds nulls is a string column.

// decodeJSON parses data keeping the integer/float distinction: whole
// numbers decode to int64, others to float64.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return normalizeJSON(raw), nil
}

func normalizeJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeJSON(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeJSON(item)
		}
		return t
	default:
		return v
	}
}

// navigatePath walks a dot-separated path into nested objects.
func navigatePath(obj any, path string) (any, error) {
	if path == "" {
		return obj, nil
	}
	current := obj
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid data path %q: %q is not an object", path, part)
		}
		if current, ok = m[part]; !ok {
			return nil, fmt.Errorf("invalid data path %q: %q not found", path, part)
		}
	}
	return current, nil
}

// toObjects converts a decoded JSON value into a list of objects. A single
// object is a one element list.
func toObjects(raw any) ([]map[string]any, error) {
	switch v := raw.(type) {
	case []any:
		objects := make([]map[string]any, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("item %d is %T, not an object", i, item)
			}
			objects = append(objects, m)
		}
		return objects, nil
	case map[string]any:
		return []map[string]any{v}, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("expected an array of objects, got %T", raw)
	}
}

// objectFields infers a field list from objects. Field order is the order
// names are first seen in, walking each object's keys alphabetically.
func objectFields(objects []map[string]any) (*metadata.FieldList, error) {
	var names []string
	types := map[string]metadata.StorageType{}
	for _, obj := range objects {
		for _, k := range slices.Sorted(maps.Keys(obj)) {
			if _, seen := types[k]; !seen {
				names = append(names, k)
				types[k] = metadata.StorageUnset
			}
			types[k] = metadata.WidenStorageType(types[k], storageTypeOf(obj[k]))
		}
	}
	return buildFields(names, func(i int) metadata.StorageType { return types[names[i]] })
}

func buildFields(names []string, typeAt func(int) metadata.StorageType) (*metadata.FieldList, error) {
	fields := &metadata.FieldList{}
	for i, name := range names {
		st := typeAt(i)
		if !st.IsSet() {
			st = metadata.StorageString
		}
		if err := fields.Append(metadata.NewField(name, st, metadata.AnalyticalUnset)); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// objectRows aligns objects with fields.
func objectRows(fields *metadata.FieldList, objects []map[string]any) []etl.Row {
	rows := make([]etl.Row, len(objects))
	for i, obj := range objects {
		rows[i] = etl.RowFromMap(fields, obj)
	}
	return rows
}

// storageTypeOf returns the storage type of a decoded value, unset for nil.
func storageTypeOf(v any) metadata.StorageType {
	switch v.(type) {
	case nil:
		return metadata.StorageUnset
	case bool:
		return metadata.StorageBoolean
	case int, int32, int64:
		return metadata.StorageInteger
	case float32, float64:
		return metadata.StorageNumber
	case string:
		return metadata.StorageString
	case map[string]any:
		return metadata.StorageObject
	case []any:
		return metadata.StorageArray
	case []byte:
		return metadata.StorageBinary
	default:
		return metadata.StorageUnknown
	}
}

// parseScalar converts a text cell into an integer, number or boolean when
// it reads as one. Empty cells are nil.
func parseScalar(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// convertScalar converts a text cell to a value of the column type.
func convertScalar(s string, st metadata.StorageType) any {
	v := parseScalar(s)
	if v == nil {
		return nil
	}
	switch st {
	case metadata.StorageNumber:
		switch n := v.(type) {
		case int64:
			return float64(n)
		case float64:
			return n
		}
	case metadata.StorageInteger, metadata.StorageBoolean:
		return v
	}
	return strings.TrimSpace(s)
}
