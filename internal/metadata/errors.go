package metadata

import "errors"

var (
	// ErrInvalidArgument is returned when a value cannot be coerced into a
	// Field or when a normalization helper receives a malformed element.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoSuchField is returned when a name does not resolve against a FieldList.
	ErrNoSuchField = errors.New("no such field")

	// ErrConflictingConfiguration is returned by NewFieldFilter when both
	// keep and drop are given.
	ErrConflictingConfiguration = errors.New("conflicting configuration")

	// ErrDuplicateField is returned when a FieldList already holds a field
	// with the same name.
	ErrDuplicateField = errors.New("duplicate field")

	// ErrIndexOutOfRange is returned by positional lookups.
	ErrIndexOutOfRange = errors.New("field index out of range")
)
