package formats

import (
	"encoding/csv"
	"io"
	"sort"

	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
)

type csvWriter struct {
	w       *csv.Writer
	columns []string
	header  bool
	rows    int64
}

func newCSVWriter(w io.Writer, schema *core.Schema, opts Options) *csvWriter {
	cw := csv.NewWriter(w)
	if opts.Delimiter != 0 {
		cw.Comma = opts.Delimiter
	}
	return &csvWriter{w: cw, columns: schema.FieldNames()}
}

func (c *csvWriter) WriteRow(row map[string]interface{}) error {
	if !c.header {
		if len(c.columns) == 0 {
			c.columns = sortedColumns(row)
		}
		if err := c.w.Write(c.columns); err != nil {
			return err
		}
		c.header = true
	}

	record := make([]string, len(c.columns))
	for i, col := range c.columns {
		record[i] = FormatValue(Deref(row[col]))
	}
	if err := c.w.Write(record); err != nil {
		return err
	}
	c.rows++
	return nil
}

func (c *csvWriter) Rows() int64 { return c.rows }

// Close writes the header when no row was written, so an empty frame still
// produces a readable file.
func (c *csvWriter) Close() error {
	if !c.header && len(c.columns) > 0 {
		if err := c.w.Write(c.columns); err != nil {
			return err
		}
		c.header = true
	}
	c.w.Flush()
	return c.w.Error()
}

func sortedColumns(row map[string]interface{}) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
