// Package frame holds the tabular result shared by nebula connectors: an
// ordered column list and rows keyed by column name. Sources build frames,
// destinations consume them as pooled record streams, and the validation
// package checks them.
package frame

import (
	"sort"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
)

const (
	// SourceColumn names the connector that produced a row.
	SourceColumn = "_nebula_source"
	// DownloadedAtColumn holds the UTC time the frame was built.
	DownloadedAtColumn = "_nebula_downloaded_at_utc"
)

// Row is one record of a frame.
type Row map[string]interface{}

// Frame is an ordered set of columns with rows keyed by column name. A row
// missing a column reads as nil.
type Frame struct {
	Name    string
	Columns []string
	Rows    []Row

	index map[string]int
}

// New creates an empty frame with the given columns.
func New(name string, columns ...string) *Frame {
	f := &Frame{Name: name, index: make(map[string]int)}
	for _, c := range columns {
		f.AddColumn(c)
	}
	return f
}

// AddColumn appends a column if it is not already present.
func (f *Frame) AddColumn(name string) {
	if f.index == nil {
		f.reindex()
	}
	if _, ok := f.index[name]; ok {
		return
	}
	f.index[name] = len(f.Columns)
	f.Columns = append(f.Columns, name)
}

func (f *Frame) reindex() {
	f.index = make(map[string]int, len(f.Columns))
	for i, c := range f.Columns {
		f.index[c] = i
	}
}

// HasColumn reports whether name is one of the frame's columns.
func (f *Frame) HasColumn(name string) bool {
	if f.index == nil {
		f.reindex()
	}
	_, ok := f.index[name]
	return ok
}

// Append adds a row. Columns unknown to the frame are appended in sorted
// order so the column list stays deterministic.
func (f *Frame) Append(row Row) {
	var extra []string
	for k := range row {
		if !f.HasColumn(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		f.AddColumn(k)
	}
	f.Rows = append(f.Rows, row)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Empty reports whether the frame has no rows.
func (f *Frame) Empty() bool {
	return f.Len() == 0
}

// Column returns the values of one column in row order.
func (f *Frame) Column(name string) []interface{} {
	values := make([]interface{}, len(f.Rows))
	for i, r := range f.Rows {
		values[i] = r[name]
	}
	return values
}

// Drop removes a column from the column list and from every row.
func (f *Frame) Drop(name string) {
	if !f.HasColumn(name) {
		return
	}
	cols := f.Columns[:0]
	for _, c := range f.Columns {
		if c != name {
			cols = append(cols, c)
		}
	}
	f.Columns = cols
	f.reindex()
	for _, r := range f.Rows {
		delete(r, name)
	}
}

// AddMetadata appends the source and download time columns to every row.
func (f *Frame) AddMetadata(source string, downloadedAt time.Time) {
	at := downloadedAt.UTC()
	f.AddColumn(SourceColumn)
	f.AddColumn(DownloadedAtColumn)
	for _, r := range f.Rows {
		r[SourceColumn] = source
		r[DownloadedAtColumn] = at
	}
}

// Concat joins frames row-wise; the column list is the union in first-seen order.
func Concat(name string, frames ...*Frame) *Frame {
	out := New(name)
	for _, fr := range frames {
		if fr == nil {
			continue
		}
		for _, c := range fr.Columns {
			out.AddColumn(c)
		}
		out.Rows = append(out.Rows, fr.Rows...)
	}
	return out
}

// Schema infers a schema from the first non-nil value of each column.
func (f *Frame) Schema() *core.Schema {
	schema := &core.Schema{Name: f.Name, CreatedAt: time.Now()}
	for _, c := range f.Columns {
		ft := core.FieldTypeString
		for _, r := range f.Rows {
			if v, ok := r[c]; ok && v != nil {
				ft = InferType(v)
				break
			}
		}
		schema.Fields = append(schema.Fields, core.Field{Name: c, Type: ft, Nullable: true})
	}
	return schema
}

// InferType maps a Go value to a schema field type.
func InferType(v interface{}) core.FieldType {
	switch v.(type) {
	case bool, *bool:
		return core.FieldTypeBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return core.FieldTypeInt
	case float32, float64:
		return core.FieldTypeFloat
	case time.Time, *time.Time:
		return core.FieldTypeTimestamp
	case map[string]interface{}, []interface{}:
		return core.FieldTypeJSON
	default:
		return core.FieldTypeString
	}
}
