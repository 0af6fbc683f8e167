// Package lookup holds the result type shared by the identifier tables. A
// table lookup either finds a usable value, finds the key with an empty
// value, or does not find the key at all; callers fall back to the raw
// identifier in the latter two cases.
package lookup

import "strings"

type Status uint8

const (
	Unresolved Status = iota
	Resolved
	Empty
)

func (s Status) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Empty:
		return "empty"
	}

	return "unresolved"
}

type Result struct {
	Value  string
	Status Status
}

// Classify builds a Result from a map-style lookup. Whitespace-only values and
// the R-style "NA" count as empty.
func Classify(value string, found bool) Result {
	if !found {
		return Result{Status: Unresolved}
	}

	if IsBlank(value) {
		return Result{Status: Empty}
	}

	return Result{Value: value, Status: Resolved}
}

// OK reports whether the lookup produced a usable value.
func (r Result) OK() bool {
	return r.Status == Resolved
}

// Or returns the resolved value, or fallback.
func (r Result) Or(fallback string) string {
	if r.OK() {
		return r.Value
	}

	return fallback
}

// IsBlank reports whether a table cell should be treated as missing.
func IsBlank(value string) bool {
	switch strings.TrimSpace(value) {
	case "", "NA":
		return true
	}

	return false
}
