package formats

import (
	"context"
	"io"
	"sort"
	"strconv"

	"github.com/ajitpratap0/nebula-connectors/pkg/compression"
	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/ajitpratap0/nebula-connectors/pkg/pool"
)

// Encoder renders record streams in one format, optionally compressing
// text formats.
type Encoder struct {
	Format      Format
	Options     Options
	Compression compression.Algorithm
	Level       compression.Level
}

// EncoderFromConfig reads the format, compression, compression_level,
// delimiter, json_array, codec and row_group_size properties.
func EncoderFromConfig(cfg *config.BaseConfig, defaultFormat Format) (Encoder, error) {
	enc := Encoder{Format: defaultFormat, Options: DefaultOptions(), Compression: compression.None, Level: compression.Default}

	if v := cfg.Property("format", ""); v != "" {
		f, err := ParseFormat(v)
		if err != nil {
			return enc, errors.Wrap(err, errors.ErrorTypeConfig, "invalid format property")
		}
		enc.Format = f
	}

	alg, err := compression.ParseAlgorithm(cfg.Property("compression", ""))
	if err != nil {
		return enc, errors.Wrap(err, errors.ErrorTypeConfig, "invalid compression property")
	}
	if alg != compression.None && (enc.Format == Parquet || enc.Format == Avro) {
		return enc, errors.Newf(errors.ErrorTypeConfig,
			"compression %s cannot wrap %s files, set the codec property instead", alg, enc.Format)
	}
	enc.Compression = alg

	if enc.Level, err = compression.ParseLevel(cfg.Property("compression_level", "")); err != nil {
		return enc, errors.Wrap(err, errors.ErrorTypeConfig, "invalid compression_level property")
	}

	if d := cfg.Property("delimiter", ""); d != "" {
		if d == `\t` || d == "tab" {
			d = "\t"
		}
		enc.Options.Delimiter = []rune(d)[0]
	}
	if v := cfg.Property("json_array", ""); v != "" {
		if enc.Options.JSONArray, err = strconv.ParseBool(v); err != nil {
			return enc, errors.Wrap(err, errors.ErrorTypeConfig, "invalid json_array property")
		}
	}
	if v := cfg.Property("codec", ""); v != "" {
		enc.Options.Codec = v
	}
	if enc.Options.RowGroupSize, err = cfg.IntProperty("row_group_size", enc.Options.RowGroupSize); err != nil {
		return enc, errors.Wrap(err, errors.ErrorTypeConfig, "invalid row_group_size property")
	}
	return enc, nil
}

// Extension returns the file suffix, including the compression suffix.
func (e Encoder) Extension() string {
	return e.Format.Extension() + e.Compression.Extension()
}

// Encode writes every record of stream to w and releases the records. When
// schema is nil it is inferred from the first record. The stream is always
// drained, even after a write error, so the producer can finish.
func (e Encoder) Encode(ctx context.Context, w io.Writer, schema *core.Schema, stream *core.RecordStream) (int64, error) {
	cw, err := compression.NewWriter(w, e.Compression, e.Level)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create compressor")
	}

	var (
		rw       RowWriter
		firstErr error
	)
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}
	open := func(s *core.Schema) {
		if rw != nil || firstErr != nil {
			return
		}
		if rw, err = NewRowWriter(cw, e.Format, s, e.Options); err != nil {
			fail(errors.Wrapf(err, errors.ErrorTypeConfig, "failed to create %s writer", e.Format))
		}
	}
	name := ""
	if schema != nil {
		name = schema.Name
		if len(schema.Fields) > 0 {
			open(schema)
		}
	}

	records, errs := stream.Records, stream.Errors
	for records != nil || errs != nil {
		select {
		case r, ok := <-records:
			if !ok {
				records = nil
				continue
			}
			if rw == nil && firstErr == nil {
				open(InferSchema(name, r))
			}
			if firstErr == nil {
				if err := rw.WriteRow(r.Data); err != nil {
					fail(errors.Wrapf(err, errors.ErrorTypeData, "failed to encode record as %s", e.Format))
				}
			}
			r.Release()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fail(err)
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	open(schema)
	if firstErr != nil {
		return 0, firstErr
	}
	if err := rw.Close(); err != nil {
		return 0, errors.Wrapf(err, errors.ErrorTypeFile, "failed to finish %s output", e.Format)
	}
	if err := cw.Close(); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeFile, "failed to finish compressed output")
	}
	return rw.Rows(), nil
}

// InferSchema builds a schema from one record, columns sorted by name.
func InferSchema(name string, r *pool.Record) *core.Schema {
	keys := make([]string, 0, len(r.Data))
	for k := range r.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := &core.Schema{Name: name}
	for _, k := range keys {
		ft := core.FieldTypeString
		if v := Deref(r.Data[k]); v != nil {
			ft = frame.InferType(v)
		}
		s.Fields = append(s.Fields, core.Field{Name: k, Type: ft, Nullable: true})
	}
	return s
}
