package formats

import (
	"fmt"
	"io"
	"strings"

	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// writeOnly hides Close so the Parquet footer writer cannot close the sink.
type writeOnly struct{ io.Writer }

type parquetWriter struct {
	schema     *arrow.Schema
	builder    *array.RecordBuilder
	fileWriter *pqarrow.FileWriter
	groupSize  int
	pending    int
	rows       int64
}

func newParquetWriter(w io.Writer, schema *core.Schema, opts Options) (*parquetWriter, error) {
	if schema == nil || len(schema.Fields) == 0 {
		return nil, fmt.Errorf("schema is required for Parquet writer")
	}
	codec, err := parquetCodec(opts.Codec)
	if err != nil {
		return nil, err
	}

	arrowSchema := ArrowSchema(schema)
	mem := memory.NewGoAllocator()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(true),
	)
	fw, err := pqarrow.NewFileWriter(arrowSchema, writeOnly{w}, props,
		pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(mem), pqarrow.WithStoreSchema()))
	if err != nil {
		return nil, fmt.Errorf("failed to create Parquet writer: %w", err)
	}

	return &parquetWriter{
		schema:     arrowSchema,
		builder:    array.NewRecordBuilder(mem, arrowSchema),
		fileWriter: fw,
		groupSize:  opts.RowGroupSize,
	}, nil
}

// ArrowSchema maps a connector schema to Arrow. Timestamps are UTC
// microseconds; JSON columns are stored as strings.
func ArrowSchema(schema *core.Schema) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		fields = append(fields, arrow.Field{Name: f.Name, Type: arrowType(f.Type), Nullable: f.Nullable})
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(t core.FieldType) arrow.DataType {
	switch t {
	case core.FieldTypeInt:
		return arrow.PrimitiveTypes.Int64
	case core.FieldTypeFloat:
		return arrow.PrimitiveTypes.Float64
	case core.FieldTypeBool:
		return arrow.FixedWidthTypes.Boolean
	case core.FieldTypeTimestamp:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}

func parquetCodec(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unsupported parquet codec: %s", name)
	}
}

func (p *parquetWriter) WriteRow(row map[string]interface{}) error {
	for i, field := range p.schema.Fields() {
		if err := p.appendValue(i, field, Deref(row[field.Name])); err != nil {
			return err
		}
	}
	p.pending++
	p.rows++
	if p.pending >= p.groupSize {
		return p.flush()
	}
	return nil
}

func (p *parquetWriter) appendValue(idx int, field arrow.Field, v interface{}) error {
	b := p.builder.Field(idx)
	if v == nil {
		if !field.Nullable {
			return fmt.Errorf("column %q is not nullable", field.Name)
		}
		b.AppendNull()
		return nil
	}

	switch fb := b.(type) {
	case *array.BooleanBuilder:
		bv, ok := toBool(v)
		if !ok {
			return fmt.Errorf("column %q: cannot store %T as bool", field.Name, v)
		}
		fb.Append(bv)
	case *array.Int64Builder:
		n, ok := toInt64(v)
		if !ok {
			return fmt.Errorf("column %q: cannot store %T as int64", field.Name, v)
		}
		fb.Append(n)
	case *array.Float64Builder:
		f, ok := toFloat64(v)
		if !ok {
			return fmt.Errorf("column %q: cannot store %T as float64", field.Name, v)
		}
		fb.Append(f)
	case *array.TimestampBuilder:
		t, ok := toTime(v)
		if !ok {
			return fmt.Errorf("column %q: cannot store %T as timestamp", field.Name, v)
		}
		fb.Append(arrow.Timestamp(t.UnixMicro()))
	case *array.StringBuilder:
		fb.Append(FormatValue(v))
	default:
		return fmt.Errorf("column %q: unsupported builder %T", field.Name, b)
	}
	return nil
}

func (p *parquetWriter) flush() error {
	if p.pending == 0 {
		return nil
	}
	rec := p.builder.NewRecord()
	defer rec.Release()
	p.pending = 0
	if err := p.fileWriter.Write(rec); err != nil {
		return fmt.Errorf("failed to write row group: %w", err)
	}
	return nil
}

func (p *parquetWriter) Rows() int64 { return p.rows }

// Close writes the last row group and the file footer. The underlying
// writer is left open.
func (p *parquetWriter) Close() error {
	defer p.builder.Release()
	if err := p.flush(); err != nil {
		return err
	}
	if err := p.fileWriter.Close(); err != nil {
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}
	return nil
}
