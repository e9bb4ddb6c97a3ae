package postgresql

import (
	"context"
	"strings"

	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/formats"
	"github.com/ajitpratap0/nebula-connectors/pkg/pool"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
)

// pgType maps a schema field type to a column type.
func pgType(t core.FieldType) string {
	switch t {
	case core.FieldTypeInt:
		return "BIGINT"
	case core.FieldTypeFloat:
		return "DOUBLE PRECISION"
	case core.FieldTypeBool:
		return "BOOLEAN"
	case core.FieldTypeTimestamp:
		return "TIMESTAMPTZ"
	case core.FieldTypeJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}

// createTableSQL renders the DDL for schema. keys, or the schema's primary
// fields when keys is empty, form the primary key.
func createTableSQL(table pgx.Identifier, schema *core.Schema, keys []string) string {
	if len(keys) == 0 {
		for _, f := range schema.Fields {
			if f.Primary {
				keys = append(keys, f.Name)
			}
		}
	}
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(table.Sanitize())
	b.WriteString(" (")
	for i, f := range schema.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote(f.Name))
		b.WriteString(" ")
		b.WriteString(pgType(f.Type))
		if !f.Nullable || isKey[f.Name] {
			b.WriteString(" NOT NULL")
		}
	}
	if len(keys) > 0 {
		b.WriteString(", PRIMARY KEY (")
		b.WriteString(quoteAll(keys))
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String()
}

// upsertSQL merges the staging table into table on keys.
func upsertSQL(table, staging pgx.Identifier, columns, keys []string) string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var sets []string
	for _, c := range columns {
		if !isKey[c] {
			sets = append(sets, quote(c)+" = EXCLUDED."+quote(c))
		}
	}

	cols := quoteAll(columns)
	stmt := "INSERT INTO " + table.Sanitize() + " (" + cols + ") SELECT " + cols +
		" FROM " + staging.Sanitize() + " ON CONFLICT (" + quoteAll(keys) + ")"
	if len(sets) == 0 {
		return stmt + " DO NOTHING"
	}
	return stmt + " DO UPDATE SET " + strings.Join(sets, ", ")
}

func fieldTypes(schema *core.Schema) []core.FieldType {
	types := make([]core.FieldType, len(schema.Fields))
	for i, f := range schema.Fields {
		types[i] = f.Type
	}
	return types
}

// pgValue converts a record value for a column of type t. Text columns take
// the rendered value; JSON columns take the encoded document.
func pgValue(v interface{}, t core.FieldType) (interface{}, error) {
	v = formats.Deref(v)
	if v == nil {
		return nil, nil
	}
	switch t {
	case core.FieldTypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return formats.FormatValue(v), nil
	case core.FieldTypeJSON:
		if s, ok := v.(string); ok {
			return s, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	default:
		return v, nil
	}
}

// streamSource feeds a record stream, or a fixed record slice, to CopyFrom.
type streamSource struct {
	ctx     context.Context
	records <-chan *pool.Record
	errs    <-chan error
	owned   bool

	buffered []*pool.Record
	columns  []string
	types    []core.FieldType
	current  *pool.Record
	err      error
}

func newStreamSource(ctx context.Context, stream *core.RecordStream) *streamSource {
	return &streamSource{ctx: ctx, records: stream.Records, errs: stream.Errors, owned: true}
}

func (s *streamSource) next() (*pool.Record, bool) {
	if len(s.buffered) > 0 {
		r := s.buffered[0]
		s.buffered = s.buffered[1:]
		return r, true
	}
	for s.records != nil || s.errs != nil {
		select {
		case r, ok := <-s.records:
			if !ok {
				s.records = nil
				continue
			}
			return r, true
		case err, ok := <-s.errs:
			if !ok {
				s.errs = nil
				continue
			}
			if s.err == nil {
				s.err = err
			}
			return nil, false
		case <-s.ctx.Done():
			if s.err == nil {
				s.err = s.ctx.Err()
			}
			return nil, false
		}
	}
	return nil, false
}

// peek returns the next record without consuming it.
func (s *streamSource) peek() (*pool.Record, bool) {
	r, ok := s.next()
	if ok {
		s.buffered = append([]*pool.Record{r}, s.buffered...)
	}
	return r, ok
}

func (s *streamSource) release() {
	if s.current != nil && s.owned {
		s.current.Release()
	}
	s.current = nil
}

// Next implements pgx.CopyFromSource.
func (s *streamSource) Next() bool {
	s.release()
	if s.err != nil {
		return false
	}
	r, ok := s.next()
	s.current = r
	return ok
}

// Values implements pgx.CopyFromSource.
func (s *streamSource) Values() ([]interface{}, error) {
	row := make([]interface{}, len(s.columns))
	for i, c := range s.columns {
		v, err := pgValue(s.current.Data[c], s.types[i])
		if err != nil {
			s.err = errors.Wrapf(err, errors.ErrorTypeData, "invalid value for column %s", c)
			return nil, s.err
		}
		row[i] = v
	}
	return row, nil
}

// Err implements pgx.CopyFromSource.
func (s *streamSource) Err() error {
	return s.err
}

// drain releases whatever the copy did not consume so the producer can finish.
func (s *streamSource) drain() {
	s.release()
	if !s.owned {
		return
	}
	for _, r := range s.buffered {
		r.Release()
	}
	s.buffered = nil
	for s.records != nil || s.errs != nil {
		select {
		case r, ok := <-s.records:
			if !ok {
				s.records = nil
				continue
			}
			r.Release()
		case _, ok := <-s.errs:
			if !ok {
				s.errs = nil
			}
		case <-s.ctx.Done():
			return
		}
	}
}
