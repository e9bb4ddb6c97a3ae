// Package formats encodes record rows into the file formats nebula
// destinations write: CSV, JSON (lines or array), Parquet and Avro.
//
// A RowWriter is created for one output stream and one schema:
//
//	w, err := formats.NewRowWriter(out, formats.Parquet, schema, formats.DefaultOptions())
//	for _, row := range rows {
//	    if err := w.WriteRow(row); err != nil {
//	        return err
//	    }
//	}
//	return w.Close()
//
// Close flushes footers and buffered row groups but never closes out.
package formats

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ajitpratap0/nebula-connectors/pkg/compression"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
)

// Format names an output file format.
type Format string

const (
	// CSV is comma separated values with a header row
	CSV Format = "csv"
	// JSON writes one object per line, or a single array when Options.JSONArray is set
	JSON Format = "json"
	// Parquet is Apache Parquet written through Arrow
	Parquet Format = "parquet"
	// Avro is an Avro object container file
	Avro Format = "avro"
)

// ParseFormat parses a format name. jsonl and ndjson are accepted as JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, JSON, Parquet, Avro:
		return f, nil
	case "jsonl", "ndjson":
		return JSON, nil
	default:
		return "", fmt.Errorf("unsupported file format: %s", s)
	}
}

// FormatFromPath derives the format from a file name, ignoring a trailing
// compression suffix such as .gz or .zst.
func FormatFromPath(name string) (Format, error) {
	ext := path.Ext(name)
	for _, a := range []compression.Algorithm{compression.Gzip, compression.Snappy, compression.LZ4, compression.Zstd} {
		if ext == a.Extension() {
			ext = path.Ext(strings.TrimSuffix(name, ext))
			break
		}
	}
	return ParseFormat(strings.TrimPrefix(ext, "."))
}

// Extension returns the file suffix of the format.
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType returns the MIME type used for object storage uploads.
func (f Format) ContentType() string {
	switch f {
	case CSV:
		return "text/csv"
	case JSON:
		return "application/json"
	case Parquet:
		return "application/vnd.apache.parquet"
	case Avro:
		return "application/avro"
	default:
		return "application/octet-stream"
	}
}

// Options tunes the encoders. Fields that do not apply to a format are ignored.
type Options struct {
	// Delimiter separates CSV fields
	Delimiter rune
	// JSONArray writes a single JSON array instead of JSON lines
	JSONArray bool
	// Codec is the Parquet page codec (snappy, gzip, zstd, none) or the
	// Avro block codec (snappy, deflate, null)
	Codec string
	// RowGroupSize is the number of rows buffered per Parquet row group or
	// Avro block
	RowGroupSize int
}

// DefaultOptions returns comma separated CSV, JSON lines and snappy codecs.
func DefaultOptions() Options {
	return Options{
		Delimiter:    ',',
		Codec:        "snappy",
		RowGroupSize: 10000,
	}
}

// RowWriter writes rows of one schema. A column missing from a row is
// written as null.
type RowWriter interface {
	WriteRow(row map[string]interface{}) error
	Rows() int64
	Close() error
}

// NewRowWriter creates a writer for format. Parquet and Avro require a
// schema; CSV and JSON use its field order when one is given.
func NewRowWriter(w io.Writer, format Format, schema *core.Schema, opts Options) (RowWriter, error) {
	if opts.RowGroupSize <= 0 {
		opts.RowGroupSize = DefaultOptions().RowGroupSize
	}
	switch format {
	case CSV:
		return newCSVWriter(w, schema, opts), nil
	case JSON:
		return newJSONWriter(w, schema, opts), nil
	case Parquet:
		return newParquetWriter(w, schema, opts)
	case Avro:
		return newAvroWriter(w, schema, opts)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
}
