package tracker

import (
	"errors"
	"sort"
	"strings"
)

// Store errors. Use errors.Is to check these.
var (
	// ErrValidation indicates rejected form input. The concrete error is a
	// *ValidationError carrying the offending fields.
	ErrValidation = errors.New("invalid item input")

	// ErrNotFound indicates the referenced item id is not in the list.
	ErrNotFound = errors.New("item not found")

	// ErrNoCurrentItem indicates an operation that needs a selected item
	// was invoked with nothing selected.
	ErrNoCurrentItem = errors.New("no item selected")

	// ErrDuplicateID indicates loaded data contains the same id twice.
	ErrDuplicateID = errors.New("duplicate item id")
)

// ValidationError lists the input fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is reports ErrValidation as the error kind.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
