// Package output provides output formatting for vendcore-admin.
package output

import "io"

// Format selects how command results are rendered.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// Formatter renders command results.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// New creates a formatter for the given format. Unknown formats fall
// back to the table renderer.
func New(format Format) Formatter {
	if format == FormatJSON {
		return &JSONFormatter{}
	}
	return &TableFormatter{}
}
