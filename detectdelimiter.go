package platemerge

import (
	"bytes"
	"io"
	"strings"

	"github.com/csimplestring/go-csv/detector"
)

// DetermineDelimiter returns the single most likely rune that would delimit the
// values in the reader, assuming a CSV-like file.
func DetermineDelimiter(r io.Reader) rune {
	d := detector.New()
	delimiters := d.DetectDelimiter(r, '"')

	if len(delimiters) > 0 {
		return rune(delimiters[0][0])
	}

	return ','
}

// DelimiterFor picks the delimiter for a named table. Well-known extensions
// win; anything else is sniffed from the content.
func DelimiterFor(name string, data []byte) rune {
	switch strings.ToLower(Extension(name)) {
	case ".tsv", ".tab":
		return '\t'
	case ".csv":
		return ','
	}

	return DetermineDelimiter(bytes.NewReader(data))
}

// Extension returns the file extension of name, ignoring any compression
// suffix, so that "barcodes.tsv.gz" yields ".tsv".
func Extension(name string) string {
	lower := strings.ToLower(name)
	for _, suffix := range []string{".gz", ".bz2", ".xz", ".zip"} {
		if strings.HasSuffix(lower, suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}

	dot := strings.LastIndexAny(name, "./")
	if dot < 0 || name[dot] != '.' {
		return ""
	}

	return name[dot:]
}
