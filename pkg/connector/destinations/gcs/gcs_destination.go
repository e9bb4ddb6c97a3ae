// Package gcs writes record streams to Google Cloud Storage.
//
// Properties: bucket (required), prefix, key, partition_strategy,
// credentials_file, endpoint, anonymous, check_bucket and the encoding
// properties read by formats.EncoderFromConfig. Without credentials_file the
// application default credentials apply.
package gcs

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/base"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/destinations/objectstore"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/formats"
	"github.com/ajitpratap0/nebula-connectors/pkg/metrics"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// objectWriter opens the upload of one object.
type objectWriter func(ctx context.Context, key, contentType, contentEncoding string) io.WriteCloser

// GCSDestination uploads one object per Write call.
type GCSDestination struct {
	*base.BaseConnector

	bucket          string
	credentialsFile string
	endpoint        string
	anonymous       bool
	checkBucket     bool

	encoder formats.Encoder
	keys    objectstore.KeyBuilder
	schema  *core.Schema

	client     *storage.Client
	openWriter objectWriter
	now        func() time.Time

	written int64
	lastKey string
}

// NewGCSDestination creates a GCS destination. The bucket is required.
func NewGCSDestination(name string, cfg *config.BaseConfig) (*GCSDestination, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	d := &GCSDestination{
		BaseConnector:   base.NewBaseConnector(name, core.ConnectorTypeDestination, "1.0.0"),
		bucket:          cfg.Property("bucket", cfg.Security.Credentials["bucket"]),
		credentialsFile: cfg.Property("credentials_file", cfg.Security.Credentials["credentials_file"]),
		endpoint:        cfg.Property("endpoint", ""),
		checkBucket:     true,
		now:             time.Now,
	}
	if d.bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "bucket is required")
	}

	var err error
	for key, dst := range map[string]*bool{"anonymous": &d.anonymous, "check_bucket": &d.checkBucket} {
		if v := cfg.Property(key, ""); v != "" {
			if *dst, err = strconv.ParseBool(v); err != nil {
				return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "invalid %s property", key)
			}
		}
	}
	if d.encoder, err = formats.EncoderFromConfig(cfg, formats.Parquet); err != nil {
		return nil, err
	}
	if d.keys, err = objectstore.KeyBuilderFromConfig(cfg); err != nil {
		return nil, err
	}
	return d, nil
}

// Initialize creates the storage client and checks the bucket is reachable.
func (d *GCSDestination) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := d.BaseConnector.Initialize(ctx, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize base connector")
	}

	var opts []option.ClientOption
	if d.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(d.credentialsFile))
	}
	if d.endpoint != "" {
		opts = append(opts, option.WithEndpoint(d.endpoint))
	}
	if d.anonymous {
		opts = append(opts, option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create GCS client")
	}
	d.client = client
	if d.openWriter == nil {
		d.openWriter = d.storageWriter
	}

	d.SetHealthCheck(d.bucketAttrs)
	if d.checkBucket {
		if err := d.ExecuteWithRetry(ctx, "bucket_attrs", func() error { return d.bucketAttrs(ctx) }); err != nil {
			return err
		}
	}
	d.UpdateHealth(true, map[string]interface{}{"bucket": d.bucket})

	d.GetLogger().Info("GCS destination initialized",
		zap.String("bucket", d.bucket),
		zap.String("prefix", d.keys.Prefix),
		zap.String("format", string(d.encoder.Format)))
	return nil
}

func (d *GCSDestination) bucketAttrs(ctx context.Context) error {
	if _, err := d.client.Bucket(d.bucket).Attrs(ctx); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConnection, "failed to access GCS bucket %s", d.bucket)
	}
	return nil
}

func (d *GCSDestination) storageWriter(ctx context.Context, key, contentType, contentEncoding string) io.WriteCloser {
	w := d.client.Bucket(d.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.ContentEncoding = contentEncoding
	return w
}

// CreateSchema fixes the column order and types of the uploaded objects.
func (d *GCSDestination) CreateSchema(ctx context.Context, schema *core.Schema) error {
	d.schema = schema
	return nil
}

// Write renders the stream straight into a new object. The object only
// becomes visible once the writer closes without error.
func (d *GCSDestination) Write(ctx context.Context, stream *core.RecordStream) (err error) {
	if stream == nil {
		return errors.New(errors.ErrorTypeValidation, "stream cannot be nil")
	}
	if d.openWriter == nil {
		return errors.New(errors.ErrorTypeConfig, "destination is not initialized")
	}
	ctx, span := d.StartSpan(ctx, "write")
	defer func() { span.End(err) }()

	key := d.keys.Build(d.now(), d.encoder.Extension())
	// Cancelling wctx aborts the upload instead of committing a partial object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := d.openWriter(wctx, key, d.encoder.Format.ContentType(), d.encoder.Compression.ContentEncoding())

	n, err := d.encoder.Encode(ctx, w, d.schema, stream)
	if err != nil {
		cancel()
		_ = w.Close()
		d.RecordCounter("records_written", 0, "failure")
		return err
	}
	if err := w.Close(); err != nil {
		d.RecordCounter("records_written", 0, "failure")
		return errors.Wrapf(err, errors.ErrorTypeConnection, "failed to upload %s", d.uri(key))
	}

	d.written += n
	d.lastKey = key
	d.RecordCounter("records_written", float64(n))
	metrics.RowsWritten.WithLabelValues(d.Name()).Add(float64(n))
	span.SetAttribute("key", key)
	span.SetAttribute("rows", n)
	d.GetLogger().Info("object uploaded", zap.String("uri", d.uri(key)), zap.Int64("rows", n))
	return nil
}

// UploadFile copies a local file to key under the configured prefix and
// returns its gs:// URI.
func (d *GCSDestination) UploadFile(ctx context.Context, localPath, key string) (string, error) {
	if d.openWriter == nil {
		return "", errors.New(errors.ErrorTypeConfig, "destination is not initialized")
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to open upload file")
	}
	defer f.Close()

	key = d.keys.Join(key)
	contentType := "application/octet-stream"
	if format, err := formats.FormatFromPath(localPath); err == nil {
		contentType = format.ContentType()
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := d.openWriter(wctx, key, contentType, "")
	if _, err := io.Copy(w, f); err != nil {
		cancel()
		_ = w.Close()
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to upload file")
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, errors.ErrorTypeConnection, "failed to upload %s", d.uri(key))
	}
	d.lastKey = key
	d.GetLogger().Info("file uploaded", zap.String("path", localPath), zap.String("uri", d.uri(key)))
	return d.uri(key), nil
}

func (d *GCSDestination) uri(key string) string {
	return "gs://" + d.bucket + "/" + key
}

// Close releases the storage client.
func (d *GCSDestination) Close(ctx context.Context) error {
	if d.client != nil {
		if err := d.client.Close(); err != nil {
			d.GetLogger().Warn("failed to close GCS client", zap.Error(err))
		}
		d.client = nil
	}
	return d.BaseConnector.Close(ctx)
}

// LastKey returns the key of the most recent upload.
func (d *GCSDestination) LastKey() string {
	return d.lastKey
}

// RecordsWritten returns the rows uploaded by all Write calls.
func (d *GCSDestination) RecordsWritten() int64 {
	return d.written
}

var _ objectstore.Uploader = (*GCSDestination)(nil)
