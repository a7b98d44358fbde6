// Package export renders notes to standalone HTML and PDF.
package export

import "errors"

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// ParseFormat validates a format query parameter.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatHTML, FormatPDF:
		return Format(s), nil
	case "":
		return FormatHTML, nil
	default:
		return "", errors.New("unsupported export format: " + s)
	}
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
