// Package samplecode parses the sample codes found in per-plate barcode
// tables and turns them into the composite index strings used by the well
// index.
//
// Format contract (version 1): a sample code is a list of fields joined by
// "_", for example "SI_N701_SI_S502_x". Fields are numbered from 1. Field 2
// carries the i7 index and field 4 the i5 index. The composite index string
// is "i7_<field 2>_i5_<field 4>". The contract is positional: a code that
// still has four or more fields but a different layout yields a wrong index
// string rather than an error, so any change to the naming convention must
// come with a new Format.
package samplecode

import (
	"fmt"
	"strings"
)

// Format describes where the i7 and i5 indices sit in a sample code.
type Format struct {
	Delimiter string `json:"delimiter" yaml:"delimiter"`
	I7Field   int    `json:"i7_field" yaml:"i7_field"`
	I5Field   int    `json:"i5_field" yaml:"i5_field"`
}

// V1 is the layout described in the package documentation.
var V1 = Format{Delimiter: "_", I7Field: 2, I5Field: 4}

// MalformedCodeError means a sample code does not fit its Format.
type MalformedCodeError struct {
	Code   string
	Format Format
	Reason string
}

func (e *MalformedCodeError) Error() string {
	return fmt.Sprintf("sample code %q does not match format %s: %s", e.Code, e.Format, e.Reason)
}

type Code struct {
	Raw string
	I7  string
	I5  string
}

// IndexString is the composite key looked up in the well index.
func (c Code) IndexString() string {
	return "i7_" + c.I7 + "_i5_" + c.I5
}

func (f Format) String() string {
	return fmt.Sprintf("split(%q)[i7=%d,i5=%d]", f.Delimiter, f.I7Field, f.I5Field)
}

// Validate checks that the format itself is usable.
func (f Format) Validate() error {
	if f.Delimiter == "" {
		return fmt.Errorf("sample code format: delimiter must not be empty")
	}
	if f.I7Field < 1 || f.I5Field < 1 {
		return fmt.Errorf("sample code format: field positions are 1-based, got i7=%d i5=%d", f.I7Field, f.I5Field)
	}
	if f.I7Field == f.I5Field {
		return fmt.Errorf("sample code format: i7 and i5 cannot both be field %d", f.I7Field)
	}

	return nil
}

// Parse extracts the i7 and i5 fields from a sample code.
func (f Format) Parse(code string) (Code, error) {
	parts := strings.Split(strings.TrimSpace(code), f.Delimiter)

	need := f.I7Field
	if f.I5Field > need {
		need = f.I5Field
	}
	if len(parts) < need {
		return Code{}, &MalformedCodeError{Code: code, Format: f, Reason: fmt.Sprintf("has %d field(s), need at least %d", len(parts), need)}
	}

	out := Code{
		Raw: code,
		I7:  parts[f.I7Field-1],
		I5:  parts[f.I5Field-1],
	}

	if out.I7 == "" || out.I5 == "" {
		return Code{}, &MalformedCodeError{Code: code, Format: f, Reason: "empty index field"}
	}

	return out, nil
}

// Parse uses the V1 format.
func Parse(code string) (Code, error) {
	return V1.Parse(code)
}
