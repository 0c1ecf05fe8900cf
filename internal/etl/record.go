package etl

import (
	"fmt"

	"datapipe/internal/metadata"
)

// ── Row ────────────────────────────────────────────────────
// Common intermediate data format.
// All sources emit Rows, all destinations consume Rows. A Row is positional:
// value i belongs to field i of the FieldList the row travels with.

// Row is a single record of data flowing through the pipeline.
type Row []any

// Dataset is a schema with the rows shaped by it.
type Dataset struct {
	Fields *metadata.FieldList `json:"-"`
	Rows   []Row               `json:"rows"`
}

// Names returns the field names of the dataset.
func (d *Dataset) Names() []string {
	if d.Fields == nil {
		return nil
	}
	return d.Fields.Names()
}

// Records returns the rows as name keyed maps, for JSON output.
func (d *Dataset) Records() []map[string]any {
	names := d.Names()
	out := make([]map[string]any, len(d.Rows))
	for i, row := range d.Rows {
		out[i] = row.Map(names)
	}
	return out
}

// Map pairs the row values with names.
func (r Row) Map(names []string) map[string]any {
	m := make(map[string]any, len(names))
	for i, name := range names {
		if i < len(r) {
			m[name] = r[i]
		}
	}
	return m
}

// RowFromMap builds a row aligned with fields from a name keyed record.
// Missing names yield nil values; names outside fields are ignored.
func RowFromMap(fields *metadata.FieldList, data map[string]any) Row {
	row := make(Row, fields.Len())
	for i, name := range fields.Names() {
		row[i] = data[name]
	}
	return row
}

// checkArity reports rows whose width differs from the schema.
func checkArity(fields *metadata.FieldList, rows []Row) error {
	for i, row := range rows {
		if len(row) != fields.Len() {
			return fmt.Errorf("row %d has %d values, schema %s has %d: %w",
				i, len(row), fields, fields.Len(), metadata.ErrInvalidArgument)
		}
	}
	return nil
}
