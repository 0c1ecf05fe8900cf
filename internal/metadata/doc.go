// Package metadata describes the structure of tabular datasets.
//
// A dataset's schema is a FieldList: an ordered, name-indexed collection of
// Fields. Pipeline stages derive new FieldLists from their input with
// Fields, Clone, AggregatedFields or a FieldFilter, and use Names, Indexes
// and Mask to map logical field references onto row positions.
//
// The Prepare* helpers and DistillAggregateMeasures turn loosely shaped user
// input (a bare name, a list of names, name/value pairs) into the canonical
// forms that key, sort and aggregate operations consume.
//
// Everything in this package is in-memory bookkeeping. Errors are reported
// with the sentinel values in errors.go and should be checked with errors.Is.
package metadata
