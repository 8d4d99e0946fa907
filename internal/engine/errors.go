package engine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCriteria = errors.New("invalid filter criteria")
	ErrInvalidWindow   = errors.New("rolling window must be positive")
	ErrUnknownField    = errors.New("unknown field")
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownEncoding = errors.New("unknown encoding")

	// Causes wrapped by LoadError.
	ErrEmptySource   = errors.New("source has no header row")
	ErrMissingColumn = errors.New("required column missing")
)

// LoadError reports why a source could not be turned into a Dataset.
// No partial dataset accompanies it.
type LoadError struct {
	Path string
	Op   string // read, header, row
	Row  int    // 1-based data row for Op == "row"
	Err  error
}

func (e *LoadError) Error() string {
	if e.Op == "row" {
		return fmt.Sprintf("load %s: row %d: %v", e.Path, e.Row, e.Err)
	}
	return fmt.Sprintf("load %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
