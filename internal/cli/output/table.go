package output

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Table is explicit tabular data built by the commands.
type Table struct {
	Headers []string
	Rows    [][]string
}

// AddRow appends one row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render writes the table aligned with tabs.
func (t *Table) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if len(t.Headers) > 0 {
		writeLine(tw, t.Headers)
	}
	for _, row := range t.Rows {
		writeLine(tw, row)
	}

	return tw.Flush()
}

func writeLine(w io.Writer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		if cell == "" {
			cell = "-"
		}
		fmt.Fprint(w, cell)
	}
	fmt.Fprintln(w)
}

// TableFormatter renders a *Table; anything else falls back to JSON so
// callers never lose output.
type TableFormatter struct{}

// Format writes data as a table when possible.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	switch t := data.(type) {
	case *Table:
		return t.Render(w)
	case Table:
		return t.Render(w)
	default:
		return (&JSONFormatter{}).Format(w, data)
	}
}
