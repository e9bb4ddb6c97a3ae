package formats

import (
	"bufio"
	"io"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/goccy/go-json"
)

type jsonWriter struct {
	w       *bufio.Writer
	columns []string
	array   bool
	rows    int64
}

func newJSONWriter(w io.Writer, schema *core.Schema, opts Options) *jsonWriter {
	return &jsonWriter{w: bufio.NewWriter(w), columns: schema.FieldNames(), array: opts.JSONArray}
}

// orderedRow marshals a row with its keys in column order.
type orderedRow struct {
	columns []string
	row     map[string]interface{}
}

func (o orderedRow) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, col := range o.columns {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')

		v := Deref(o.row[col])
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(TimestampLayout)
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

func (j *jsonWriter) WriteRow(row map[string]interface{}) error {
	columns := j.columns
	if len(columns) == 0 {
		columns = sortedColumns(row)
	}
	data, err := json.Marshal(orderedRow{columns: columns, row: row})
	if err != nil {
		return err
	}

	switch {
	case !j.array:
	case j.rows == 0:
		if err := j.w.WriteByte('['); err != nil {
			return err
		}
	default:
		if err := j.w.WriteByte(','); err != nil {
			return err
		}
	}
	if _, err := j.w.Write(data); err != nil {
		return err
	}
	if !j.array {
		if err := j.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	j.rows++
	return nil
}

func (j *jsonWriter) Rows() int64 { return j.rows }

func (j *jsonWriter) Close() error {
	if j.array {
		closing := "]\n"
		if j.rows == 0 {
			closing = "[]\n"
		}
		if _, err := j.w.WriteString(closing); err != nil {
			return err
		}
	}
	return j.w.Flush()
}
