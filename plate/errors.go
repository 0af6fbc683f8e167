package plate

import (
	"errors"
	"fmt"
)

var (
	ErrMissingFile   = errors.New("missing file")
	ErrShapeMismatch = errors.New("shape mismatch")
)

// MissingFileError is returned when a required per-plate file is absent.
type MissingFileError struct {
	Plate string
	Path  string
	What  string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("plate %s: missing %s file %s", e.Plate, e.What, e.Path)
}

func (e *MissingFileError) Unwrap() error {
	return ErrMissingFile
}

// ShapeMismatchError means an identifier table does not describe the matrix
// it accompanies.
type ShapeMismatchError struct {
	Plate string
	Path  string
	What  string
	Want  int
	Got   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("plate %s: %s (%s) has %d entries but the matrix needs %d", e.Plate, e.What, e.Path, e.Got, e.Want)
}

func (e *ShapeMismatchError) Unwrap() error {
	return ErrShapeMismatch
}

// DuplicateCellError means two columns of one plate resolved to the same cell
// label, which would make the merged column labels ambiguous.
type DuplicateCellError struct {
	Plate string
	Label string
}

func (e *DuplicateCellError) Error() string {
	return fmt.Sprintf("plate %s: more than one barcode resolved to cell label %q", e.Plate, e.Label)
}
