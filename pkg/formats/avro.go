package formats

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"
)

var invalidAvroName = regexp.MustCompile(`[^A-Za-z0-9_]`)

type avroField struct {
	column   string
	name     string
	avroType string
	nullable bool
}

type avroWriter struct {
	ocf    *goavro.OCFWriter
	fields []avroField
	block  []interface{}
	size   int
	rows   int64
}

func newAvroWriter(w io.Writer, schema *core.Schema, opts Options) (*avroWriter, error) {
	if schema == nil || len(schema.Fields) == 0 {
		return nil, fmt.Errorf("schema is required for Avro writer")
	}

	fields, schemaJSON, err := avroSchema(schema)
	if err != nil {
		return nil, err
	}
	codec, err := goavro.NewCodec(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to create Avro codec: %w", err)
	}
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           codec,
		CompressionName: avroCompression(opts.Codec),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Avro writer: %w", err)
	}
	return &avroWriter{ocf: ocf, fields: fields, size: opts.RowGroupSize}, nil
}

// AvroName turns a column name into a valid Avro name.
func AvroName(column string) string {
	name := invalidAvroName.ReplaceAllString(column, "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "_" + name
	}
	return name
}

// avroSchema builds the record schema for a connector schema. Column names
// that are not valid Avro names are sanitized and kept in the field doc.
// Timestamps are stored as UTC microseconds and JSON columns as strings.
func avroSchema(schema *core.Schema) ([]avroField, string, error) {
	seen := make(map[string]bool, len(schema.Fields))
	fields := make([]avroField, 0, len(schema.Fields))
	defs := make([]map[string]interface{}, 0, len(schema.Fields))

	for _, f := range schema.Fields {
		name := AvroName(f.Name)
		for base, i := name, 2; seen[name]; i++ {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		seen[name] = true

		af := avroField{column: f.Name, name: name, avroType: avroType(f.Type), nullable: f.Nullable}
		fields = append(fields, af)

		var typ interface{} = af.avroType
		def := map[string]interface{}{"name": name, "doc": f.Name}
		if f.Nullable {
			typ = []interface{}{"null", af.avroType}
			def["default"] = nil
		}
		def["type"] = typ
		defs = append(defs, def)
	}

	recordName := "record"
	if schema.Name != "" {
		recordName = AvroName(schema.Name)
	}
	data, err := json.Marshal(map[string]interface{}{
		"type":      "record",
		"name":      recordName,
		"namespace": "nebula",
		"fields":    defs,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode Avro schema: %w", err)
	}
	return fields, string(data), nil
}

func avroType(t core.FieldType) string {
	switch t {
	case core.FieldTypeInt, core.FieldTypeTimestamp:
		return "long"
	case core.FieldTypeFloat:
		return "double"
	case core.FieldTypeBool:
		return "boolean"
	default:
		return "string"
	}
}

func avroCompression(codec string) string {
	switch strings.ToLower(codec) {
	case "", "snappy":
		return goavro.CompressionSnappyLabel
	case "deflate":
		return goavro.CompressionDeflateLabel
	default:
		return goavro.CompressionNullLabel
	}
}

func (a *avroWriter) native(f avroField, v interface{}) (interface{}, error) {
	var out interface{}
	switch f.avroType {
	case "long":
		if t, ok := toTime(v); ok {
			out = t.UnixMicro()
			break
		}
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("column %q: cannot store %T as long", f.column, v)
		}
		out = n
	case "double":
		n, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("column %q: cannot store %T as double", f.column, v)
		}
		out = n
	case "boolean":
		b, ok := toBool(v)
		if !ok {
			return nil, fmt.Errorf("column %q: cannot store %T as boolean", f.column, v)
		}
		out = b
	default:
		out = FormatValue(v)
	}
	if f.nullable {
		return goavro.Union(f.avroType, out), nil
	}
	return out, nil
}

func (a *avroWriter) WriteRow(row map[string]interface{}) error {
	rec := make(map[string]interface{}, len(a.fields))
	for _, f := range a.fields {
		v := Deref(row[f.column])
		if v == nil {
			if !f.nullable {
				return fmt.Errorf("column %q is not nullable", f.column)
			}
			rec[f.name] = nil
			continue
		}
		nv, err := a.native(f, v)
		if err != nil {
			return err
		}
		rec[f.name] = nv
	}
	a.block = append(a.block, rec)
	a.rows++
	if len(a.block) >= a.size {
		return a.flush()
	}
	return nil
}

func (a *avroWriter) flush() error {
	if len(a.block) == 0 {
		return nil
	}
	if err := a.ocf.Append(a.block); err != nil {
		return fmt.Errorf("failed to write Avro block: %w", err)
	}
	a.block = a.block[:0]
	return nil
}

func (a *avroWriter) Rows() int64 { return a.rows }

func (a *avroWriter) Close() error {
	return a.flush()
}
