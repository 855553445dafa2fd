package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoPrimary is returned when a write or an index key needs the primary
// field and the table or the values have none.
var ErrNoPrimary = errors.New("lattice: table has no primary field")

// SchemaError reports an invalid table definition or a key that cannot be
// derived from it.
type SchemaError struct {
	Table string
	Field string
	Msg   string
	Err   error
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "lattice: table '%s'", e.Table)
	if e.Field != "" {
		fmt.Fprintf(&b, " field '%s'", e.Field)
	}
	if e.Msg != "" {
		b.WriteString(": " + e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Issue is one field that failed validation.
type Issue struct {
	Field string
	Msg   string
}

// ValidationError lists every field of a record that failed validation.
type ValidationError struct {
	Table  string
	Issues []Issue
	Err    error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues)+1)
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+": "+issue.Msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return fmt.Sprintf("lattice: invalid %s record: %s", e.Table, strings.Join(parts, "; "))
}

// Unwrap returns the error of the table's Check hook, if that failed.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
