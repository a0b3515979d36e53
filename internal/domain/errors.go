package domain

import (
	"errors"
	"fmt"
)

// ErrNoCrossing reports that a threshold level produced no contour. It is a
// soft condition: the level is omitted from the output.
var ErrNoCrossing = errors.New("no contour crosses level")

// ShapeMismatchError is returned when fields of different dimensions are
// combined.
type ShapeMismatchError struct {
	Index      int
	Rows, Cols int
	WantRows   int
	WantCols   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("field %d has shape %dx%d, want %dx%d", e.Index, e.Rows, e.Cols, e.WantRows, e.WantCols)
}

// InvalidRingError describes a ring dropped during geometry assembly. It is a
// soft condition: the level proceeds with its remaining rings.
type InvalidRingError struct {
	Level  string
	Ring   int
	Reason string
}

func (e *InvalidRingError) Error() string {
	if e.Level == "" {
		return fmt.Sprintf("invalid ring %d: %s", e.Ring, e.Reason)
	}
	return fmt.Sprintf("invalid ring %d of level %q: %s", e.Ring, e.Level, e.Reason)
}

// UnknownVocabularyError is returned for a loc_type or loc_level name outside
// the seeded reference tables, or for a level seeded under a different LOC
// type than the one requested.
type UnknownVocabularyError struct {
	Kind string // "loc_type" or "loc_level"
	Name string
	// LocType is set when Name is known but belongs to another LOC type.
	LocType string
}

func (e *UnknownVocabularyError) Error() string {
	if e.LocType != "" {
		return fmt.Sprintf("%s %q is not a %s level", e.Kind, e.Name, e.LocType)
	}
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Name)
}

// PersistenceError wraps a storage failure with the entity and natural key
// being resolved when it happened.
type PersistenceError struct {
	Entity EntityKind
	Key    string
	Err    error
	// Constraint is set when the store refused the write on integrity
	// grounds. Retrying the same job cannot succeed.
	Constraint bool
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s %s: %v", e.Entity, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
