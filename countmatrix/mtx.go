package countmatrix

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const mtxBanner = "%%MatrixMarket"

// MTX is the coordinate content of a Matrix Market file, without labels.
type MTX struct {
	Rows    int
	Cols    int
	Entries []Entry
}

// ReadMatrixMarket parses a "matrix coordinate (integer|real) general" Matrix
// Market stream. Real values are accepted only when they are non-negative
// whole numbers, since the payload is counts.
func ReadMatrixMarket(r io.Reader) (*MTX, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty matrix market stream")
	}

	banner := strings.Fields(strings.ToLower(scanner.Text()))
	if len(banner) < 5 || banner[0] != strings.ToLower(mtxBanner) || banner[1] != "matrix" || banner[2] != "coordinate" {
		return nil, fmt.Errorf("unsupported matrix market header %q", scanner.Text())
	}
	field, symmetry := banner[3], banner[4]
	if field != "integer" && field != "real" {
		return nil, fmt.Errorf("unsupported matrix market field type %q", field)
	}
	if symmetry != "general" {
		return nil, fmt.Errorf("unsupported matrix market symmetry %q", symmetry)
	}

	out := &MTX{}
	sized := false
	declared := 0
	for line := 2; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "%") {
			continue
		}

		cols := strings.Fields(text)
		if len(cols) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 fields, got %d", line, len(cols))
		}

		if !sized {
			dims, err := parseInts(cols)
			if err != nil {
				return nil, fmt.Errorf("line %d: size line: %w", line, err)
			}
			out.Rows, out.Cols, declared = dims[0], dims[1], dims[2]
			if out.Rows < 0 || out.Cols < 0 || declared < 0 {
				return nil, fmt.Errorf("line %d: negative size", line)
			}
			out.Entries = make([]Entry, 0, declared)
			sized = true
			continue
		}

		idx, err := parseInts(cols[:2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if idx[0] < 1 || idx[0] > out.Rows || idx[1] < 1 || idx[1] > out.Cols {
			return nil, fmt.Errorf("line %d: coordinate (%d, %d) is outside %d x %d", line, idx[0], idx[1], out.Rows, out.Cols)
		}

		value, err := parseCount(cols[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		out.Entries = append(out.Entries, Entry{Row: idx[0] - 1, Col: idx[1] - 1, Value: value})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if !sized {
		return nil, fmt.Errorf("matrix market stream has no size line")
	}
	if len(out.Entries) != declared {
		return nil, fmt.Errorf("matrix market stream declares %d entries but has %d", declared, len(out.Entries))
	}

	return out, nil
}

func parseInts(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for k, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}

	return out, nil
}

func parseCount(s string) (uint32, error) {
	if v, err := strconv.ParseUint(s, 10, 32); err == nil {
		return uint32(v), nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxUint32 {
		return 0, fmt.Errorf("value %s is not a non-negative integer count", s)
	}

	return uint32(f), nil
}

// WriteMatrixMarket writes m as "matrix coordinate integer general" with
// 1-based coordinates in column-major order.
func WriteMatrixMarket(w io.Writer, m *Matrix) error {
	bw := bufio.NewWriter(w)

	nrow, ncol := m.Dims()
	fmt.Fprintf(bw, "%s matrix coordinate integer general\n", mtxBanner)
	fmt.Fprintf(bw, "%d %d %d\n", nrow, ncol, m.NNZ())

	for j := 0; j < ncol; j++ {
		m.Column(j, func(row int, value uint32) {
			fmt.Fprintf(bw, "%d %d %d\n", row+1, j+1, value)
		})
	}

	return bw.Flush()
}

// ReadLabels reads one label per line, taking the first tab-separated field.
// Empty lines are skipped; a line whose first field is blank is an error.
func ReadLabels(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	out := make([]string, 0)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		label := strings.TrimSpace(rec[0])
		if label == "" {
			return nil, fmt.Errorf("line %d: empty label", line)
		}
		out = append(out, label)
	}

	return out, nil
}

// WriteLabels writes one label per line.
func WriteLabels(w io.Writer, labels []string) error {
	bw := bufio.NewWriter(w)
	for _, label := range labels {
		if _, err := bw.WriteString(label + "\n"); err != nil {
			return err
		}
	}

	return bw.Flush()
}
