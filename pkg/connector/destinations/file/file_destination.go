// Package file provides destinations that write a record stream to a local
// file as CSV, JSON, Parquet or Avro.
//
// # Configuration
//
//	cfg := config.NewBaseConfig("mail_csv", "csv")
//	cfg.Properties["path"] = "out/mail.csv.gz"
//	cfg.Properties["compression"] = "gzip"   // csv and json only
//	cfg.Properties["overwrite"] = "false"    // default true
//
// Other properties are read by formats.EncoderFromConfig. The file is written
// to a temporary name next to the target and renamed once complete, so a
// failed write never leaves a truncated file behind.
package file

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/base"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/formats"
	"github.com/ajitpratap0/nebula-connectors/pkg/metrics"
	"go.uber.org/zap"
)

// FileDestination writes one file per Write call.
type FileDestination struct {
	*base.BaseConnector

	encoder   formats.Encoder
	path      string
	overwrite bool
	schema    *core.Schema
	written   int64
}

// NewFileDestination creates a destination whose default format is format.
func NewFileDestination(name string, format formats.Format) *FileDestination {
	return &FileDestination{
		BaseConnector: base.NewBaseConnector(name, core.ConnectorTypeDestination, "1.0.0"),
		encoder:       formats.Encoder{Format: format, Options: formats.DefaultOptions()},
		overwrite:     true,
	}
}

// Initialize reads the path, overwrite and encoding properties.
func (d *FileDestination) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := d.BaseConnector.Initialize(ctx, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize base connector")
	}

	d.path = cfg.Property("path", "")
	if d.path == "" {
		return errors.New(errors.ErrorTypeConfig, "path property is required")
	}

	if v := cfg.Property("overwrite", ""); v != "" {
		ow, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid overwrite property")
		}
		d.overwrite = ow
	}
	if !d.overwrite {
		if _, err := os.Stat(d.path); err == nil {
			return errors.Newf(errors.ErrorTypeFile, "file %s already exists and overwrite is disabled", d.path)
		}
	}

	enc, err := formats.EncoderFromConfig(cfg, d.encoder.Format)
	if err != nil {
		return err
	}
	d.encoder = enc

	d.SetHealthCheck(func(ctx context.Context) error {
		dir := filepath.Dir(d.path)
		if _, err := os.Stat(dir); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
	d.UpdateHealth(true, map[string]interface{}{"path": d.path, "format": string(d.encoder.Format)})

	d.GetLogger().Debug("file destination initialized",
		zap.String("path", d.path),
		zap.String("format", string(d.encoder.Format)),
		zap.String("compression", string(d.encoder.Compression)))
	return nil
}

// CreateSchema fixes the column order and types of the file.
func (d *FileDestination) CreateSchema(ctx context.Context, schema *core.Schema) error {
	d.schema = schema
	return nil
}

// Write renders the stream into the target file.
func (d *FileDestination) Write(ctx context.Context, stream *core.RecordStream) (err error) {
	if stream == nil {
		return errors.New(errors.ErrorTypeValidation, "stream cannot be nil")
	}
	ctx, span := d.StartSpan(ctx, "write")
	defer func() { span.End(err) }()

	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create output directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(d.path), "."+filepath.Base(d.path)+".*")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create temporary file")
	}
	defer os.Remove(tmp.Name())

	n, err := d.encoder.Encode(ctx, tmp, d.schema, stream)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close output file")
	}
	if err != nil {
		d.RecordCounter("records_written", 0, "failure")
		return err
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to move output to %s", d.path)
	}

	d.written += n
	d.RecordCounter("records_written", float64(n))
	metrics.RowsWritten.WithLabelValues(d.Name()).Add(float64(n))
	span.SetAttribute("rows", n)
	d.GetLogger().Info("file written", zap.String("path", d.path), zap.Int64("rows", n))
	return nil
}

// Path returns the target file path.
func (d *FileDestination) Path() string {
	return d.path
}

// Encoder returns the configured encoder.
func (d *FileDestination) Encoder() formats.Encoder {
	return d.encoder
}

// RecordsWritten returns the rows written by all Write calls.
func (d *FileDestination) RecordsWritten() int64 {
	return d.written
}
