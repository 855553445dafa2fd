package store

import (
	"errors"
	"fmt"

	"github.com/jacentio/lattice/schema"
)

var (
	// ErrNotFound is returned by FindFirst and Delete when nothing matches.
	ErrNotFound = errors.New("lattice: record not found")

	// ErrNoMatch is returned by Update and UpdateMany when the where clause
	// matches no record.
	ErrNoMatch = errors.New("lattice: no record matches")

	// ErrNoPrimary is returned when writing to a table without a primary
	// field, or a record without a primary value.
	ErrNoPrimary = schema.ErrNoPrimary

	// ErrDuplicateValue is returned when a create collides with an existing
	// primary or unique value.
	ErrDuplicateValue = errors.New("lattice: duplicate value for primary or unique field")

	// ErrConcurrentModification is returned when a record changed between
	// being read and being updated.
	ErrConcurrentModification = errors.New("lattice: record was modified concurrently")

	// ErrBatchTooLarge is returned when one record needs more operations
	// than a single commit may carry.
	ErrBatchTooLarge = errors.New("lattice: record exceeds the per-commit operation limit")

	// ErrIncludeDepth is returned when Include nests deeper than
	// Config.MaxIncludeDepth.
	ErrIncludeDepth = errors.New("lattice: include nested too deeply")

	// ErrUnknownTable is returned for a table name that was never registered.
	ErrUnknownTable = errors.New("lattice: unknown table")

	// ErrUnknownRelation is returned when Include names an undeclared relation.
	ErrUnknownRelation = errors.New("lattice: unknown relation")
)

// SchemaError reports an invalid table definition or an underivable key.
type SchemaError = schema.SchemaError

// ValidationError reports a record that failed schema validation.
type ValidationError = schema.ValidationError

// CreateError wraps a failed Create, CreateMany or UpsertMany commit.
type CreateError struct {
	Table string
	Err   error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("lattice: create %s: %v", e.Table, e.Err)
}

func (e *CreateError) Unwrap() error { return e.Err }

// UpdateError wraps a failed Update or UpdateMany.
type UpdateError struct {
	Table string
	Err   error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("lattice: update %s: %v", e.Table, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// DeleteError wraps a failed Delete or DeleteMany.
type DeleteError struct {
	Table string
	Err   error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("lattice: delete %s: %v", e.Table, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

// RelationError reports an include that cannot be resolved.
type RelationError struct {
	Table    string
	Relation string
	Err      error
}

func (e *RelationError) Error() string {
	return fmt.Sprintf("lattice: include %s.%s: %v", e.Table, e.Relation, e.Err)
}

func (e *RelationError) Unwrap() error { return e.Err }

// BatchError reports the chunk of a batched write whose commit failed.
// Chunks before it were committed; RolledBack tells whether they were all
// undone again.
type BatchError struct {
	Chunk       int
	Chunks      int
	RolledBack  bool
	RollbackErr error
	Err         error
}

func (e *BatchError) Error() string {
	msg := fmt.Sprintf("chunk %d of %d: %v", e.Chunk+1, e.Chunks, e.Err)
	switch {
	case e.Chunk == 0:
	case e.RolledBack:
		msg += fmt.Sprintf(" (%d committed chunks rolled back)", e.Chunk)
	case e.RollbackErr != nil:
		msg += fmt.Sprintf(" (rollback failed: %v)", e.RollbackErr)
	default:
		msg += fmt.Sprintf(" (%d chunks stay committed)", e.Chunk)
	}
	return msg
}

func (e *BatchError) Unwrap() error { return e.Err }

// Committed reports whether part of the write is still applied.
func (e *BatchError) Committed() bool {
	return e.Chunk > 0 && !e.RolledBack
}
