package platemerge

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// MissingColumnsError is returned when a delimited table lacks one or more
// required header columns.
type MissingColumnsError struct {
	Path    string
	Missing []string
	Header  []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: missing required column(s) %s (header was %q)", e.Path, strings.Join(e.Missing, ", "), e.Header)
}

// DuplicateKeyError is returned when a lookup table maps one key to two
// different values.
type DuplicateKeyError struct {
	Path   string
	Key    string
	First  string
	Second string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s: key %q appears more than once with different values (%q, then %q)", e.Path, e.Key, e.First, e.Second)
}

// NewTableReader returns a csv.Reader over data with the delimiter chosen by
// DelimiterFor. A leading byte-order mark is dropped.
func NewTableReader(name string, data []byte) *csv.Reader {
	return newReader(data, DelimiterFor(name, data))
}

func newReader(data []byte, comma rune) *csv.Reader {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.LazyQuotes = true

	// csv trims leading whitespace even when the delimiter is itself
	// whitespace, which would collapse empty tab-separated fields.
	r.TrimLeadingSpace = r.Comma != '\t' && r.Comma != ' '

	return r
}

// headerDelimiters are tried in order on tables whose extension does not fix
// the delimiter.
var headerDelimiters = []rune{'\t', ','}

// TableDelimiter picks the delimiter for a table with required columns.
// Known extensions win. Otherwise tab, then comma, is kept if it splits the
// header into all required columns; only when neither does is the content
// sniffed, since the sniffer also accepts characters such as '_' that occur
// equally often on every line.
func TableDelimiter(name string, data []byte, required ...string) rune {
	switch strings.ToLower(Extension(name)) {
	case ".tsv", ".tab", ".csv":
		return DelimiterFor(name, data)
	}

	if len(required) > 0 {
		for _, comma := range headerDelimiters {
			header, err := newReader(data, comma).Read()
			if err != nil {
				break
			}
			if RequireColumns(name, header, required...) == nil {
				return comma
			}
		}
	}

	return DelimiterFor(name, data)
}

// RequireColumns checks that every required column is present in header.
func RequireColumns(name string, header []string, required ...string) error {
	present := make(map[string]struct{}, len(header))
	for _, col := range header {
		present[strings.TrimSpace(col)] = struct{}{}
	}

	var missing []string
	for _, col := range required {
		if _, exists := present[col]; !exists {
			missing = append(missing, col)
		}
	}

	if len(missing) > 0 {
		return &MissingColumnsError{Path: name, Missing: missing, Header: header}
	}

	return nil
}

// ReadTable parses a delimited table with a header row. Required columns are
// verified before any data row is returned.
func ReadTable(name string, data []byte, required ...string) ([]string, [][]string, error) {
	r := newReader(data, TableDelimiter(name, data, required...))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, RequireColumns(name, nil, required...)
	} else if err != nil {
		return nil, nil, pfx.Err(fmt.Errorf("%s: header: %w", name, err))
	}
	for k := range header {
		header[k] = strings.TrimSpace(header[k])
	}

	if err := RequireColumns(name, header, required...); err != nil {
		return header, nil, err
	}

	rows := make([][]string, 0)
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return header, nil, pfx.Err(fmt.Errorf("%s: line %d: %w", name, line, err))
		}
		rows = append(rows, row)
	}

	return header, rows, nil
}

// UnmarshalTable decodes a delimited table into out, a pointer to a slice of
// structs with `csv` tags, after checking the required columns exist. gocsv
// would otherwise silently leave missing columns zero-valued.
func UnmarshalTable(name string, data []byte, out interface{}, required ...string) error {
	comma := TableDelimiter(name, data, required...)

	header, err := newReader(data, comma).Read()
	if err == io.EOF {
		return RequireColumns(name, nil, required...)
	} else if err != nil {
		return pfx.Err(fmt.Errorf("%s: header: %w", name, err))
	}

	if err := RequireColumns(name, header, required...); err != nil {
		return err
	}

	if err := gocsv.UnmarshalCSV(newReader(data, comma), out); err != nil {
		return pfx.Err(fmt.Errorf("%s: %w", name, err))
	}

	return nil
}
