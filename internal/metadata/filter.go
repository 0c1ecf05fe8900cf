package metadata

import (
	"fmt"
	"maps"
	"slices"
	"sort"
)

// FieldFilter is a declarative projection over a FieldList: keep or drop
// fields by name and rename them. It is immutable once built.
type FieldFilter struct {
	keep    []string
	keepPos map[string]int
	drop    map[string]struct{}
	dropped []string
	rename  map[string]string
}

// NewFieldFilter builds a filter. keep and drop are mutually exclusive;
// rename maps input names to output names.
func NewFieldFilter(keep, drop []string, rename map[string]string) (*FieldFilter, error) {
	if len(keep) > 0 && len(drop) > 0 {
		return nil, fmt.Errorf("%w: a field filter can not have both keep and drop", ErrConflictingConfiguration)
	}
	ff := &FieldFilter{
		keep:    slices.Clone(keep),
		keepPos: make(map[string]int, len(keep)),
		drop:    make(map[string]struct{}, len(drop)),
		dropped: slices.Clone(drop),
		rename:  maps.Clone(rename),
	}
	for i, name := range keep {
		if _, ok := ff.keepPos[name]; !ok {
			ff.keepPos[name] = i
		}
	}
	for _, name := range drop {
		ff.drop[name] = struct{}{}
	}
	if ff.rename == nil {
		ff.rename = map[string]string{}
	}
	return ff, nil
}

// Keep returns the names the filter keeps, in output order.
func (ff *FieldFilter) Keep() []string { return slices.Clone(ff.keep) }

// Drop returns the names the filter removes.
func (ff *FieldFilter) Drop() []string { return slices.Clone(ff.dropped) }

// Rename returns the rename mapping.
func (ff *FieldFilter) Rename() map[string]string { return maps.Clone(ff.rename) }

func (ff *FieldFilter) selects(name string) bool {
	switch {
	case len(ff.drop) > 0:
		_, dropped := ff.drop[name]
		return !dropped
	case len(ff.keep) > 0:
		_, kept := ff.keepPos[name]
		return kept
	default:
		return true
	}
}

// Filter applies the filter to fields and returns the resulting schema.
//
// Renamed fields are copies; every other field is shared with the input.
// Output follows the input order, except when keep is set: then it follows
// the order of keep. Rows projected with RowFilter are never reordered.
func (ff *FieldFilter) Filter(fields *FieldList) (*FieldList, error) {
	for _, name := range ff.keep {
		if !fields.Contains(name) {
			return nil, fmt.Errorf("%w: keep refers to %q", ErrNoSuchField, name)
		}
	}
	for _, name := range ff.dropped {
		if !fields.Contains(name) {
			return nil, fmt.Errorf("%w: drop refers to %q", ErrNoSuchField, name)
		}
	}

	type selected struct {
		input string
		field *Field
	}
	var out []selected
	for _, f := range fields.fields {
		if !ff.selects(f.Name) {
			continue
		}
		nf := f
		if newName, ok := ff.rename[f.Name]; ok {
			nf = f.Clone()
			nf.Name = newName
		}
		out = append(out, selected{input: f.Name, field: nf})
	}

	if len(ff.keep) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			return ff.keepPos[out[i].input] < ff.keepPos[out[j].input]
		})
	}

	result := &FieldList{index: make(map[string]int, len(out))}
	for _, s := range out {
		if err := result.Append(s.field); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// FieldMask returns, for each input field in input order, whether the
// filter selects it. The mask never reflects the order of keep.
func (ff *FieldFilter) FieldMask(fields *FieldList) []bool {
	mask := make([]bool, fields.Len())
	for i, f := range fields.fields {
		mask[i] = ff.selects(f.Name)
	}
	return mask
}

// RowFilter returns the row level counterpart of the filter for rows
// shaped like fields.
func (ff *FieldFilter) RowFilter(fields *FieldList) RowFieldFilter {
	return NewRowFieldFilter(ff.FieldMask(fields))
}

// RowFieldFilter selects values from rows by a positional mask.
type RowFieldFilter struct {
	mask []bool
}

// NewRowFieldFilter returns a filter passing the row values whose mask
// entry is true.
func NewRowFieldFilter(mask []bool) RowFieldFilter {
	return RowFieldFilter{mask: slices.Clone(mask)}
}

// Mask returns the positional mask.
func (rf RowFieldFilter) Mask() []bool { return slices.Clone(rf.mask) }

// Width returns the number of values a filtered row has.
func (rf RowFieldFilter) Width() int {
	n := 0
	for _, keep := range rf.mask {
		if keep {
			n++
		}
	}
	return n
}

// Filter returns the values of row at selected positions, in row order.
// The row must have exactly as many values as the mask.
func (rf RowFieldFilter) Filter(row []any) ([]any, error) {
	if len(row) != len(rf.mask) {
		return nil, fmt.Errorf("%w: row has %d values, mask has %d", ErrInvalidArgument, len(row), len(rf.mask))
	}
	out := make([]any, 0, rf.Width())
	for i, v := range row {
		if rf.mask[i] {
			out = append(out, v)
		}
	}
	return out, nil
}
