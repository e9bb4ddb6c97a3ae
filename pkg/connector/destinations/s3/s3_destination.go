// Package s3 writes record streams to Amazon S3 or an S3 compatible store.
//
// # Configuration
//
//	cfg := config.NewBaseConfig("mail_s3", "s3")
//	cfg.Properties["bucket"] = "etl-landing"
//	cfg.Properties["prefix"] = "outlook"
//	cfg.Properties["format"] = "parquet"
//	cfg.Properties["partition_strategy"] = "daily"
//
// Further properties: region (default us-east-1), endpoint, use_path_style,
// key (fixed object key), upload_part_size, max_concurrency, check_bucket and
// the encoding properties read by formats.EncoderFromConfig. Static
// credentials are taken from aws_access_key_id, aws_secret_access_key and
// aws_session_token; without them the default AWS credential chain applies.
//
// Each Write streams one object through the multipart uploader, so the
// rendered file is never held in memory as a whole.
package s3

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/base"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/destinations/objectstore"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/formats"
	"github.com/ajitpratap0/nebula-connectors/pkg/metrics"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const (
	defaultRegion         = "us-east-1"
	defaultUploadPartSize = 5 * 1024 * 1024
	defaultMaxConcurrency = 5
)

// S3Destination uploads one object per Write call.
type S3Destination struct {
	*base.BaseConnector

	bucket       string
	region       string
	endpoint     string
	usePathStyle bool
	checkBucket  bool
	partSize     int64
	concurrency  int

	encoder formats.Encoder
	keys    objectstore.KeyBuilder
	schema  *core.Schema

	client   *s3.Client
	uploader *manager.Uploader
	now      func() time.Time

	written int64
	lastKey string
}

// NewS3Destination creates an S3 destination. The bucket is required.
func NewS3Destination(name string, cfg *config.BaseConfig) (*S3Destination, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	d := &S3Destination{
		BaseConnector: base.NewBaseConnector(name, core.ConnectorTypeDestination, "1.0.0"),
		bucket:        cfg.Property("bucket", cfg.Security.Credentials["bucket"]),
		region:        cfg.Property("region", defaultRegion),
		endpoint:      cfg.Property("endpoint", ""),
		checkBucket:   true,
		partSize:      defaultUploadPartSize,
		concurrency:   defaultMaxConcurrency,
		now:           time.Now,
	}
	if d.bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "bucket is required")
	}

	var err error
	if d.usePathStyle, err = boolProperty(cfg, "use_path_style", false); err != nil {
		return nil, err
	}
	if d.checkBucket, err = boolProperty(cfg, "check_bucket", true); err != nil {
		return nil, err
	}
	partSize, err := cfg.IntProperty("upload_part_size", defaultUploadPartSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid upload_part_size property")
	}
	if partSize < int(manager.MinUploadPartSize) {
		return nil, errors.Newf(errors.ErrorTypeConfig, "upload_part_size must be at least %d bytes", manager.MinUploadPartSize)
	}
	d.partSize = int64(partSize)
	if d.concurrency, err = cfg.IntProperty("max_concurrency", defaultMaxConcurrency); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid max_concurrency property")
	}

	if d.encoder, err = formats.EncoderFromConfig(cfg, formats.Parquet); err != nil {
		return nil, err
	}
	if d.keys, err = objectstore.KeyBuilderFromConfig(cfg); err != nil {
		return nil, err
	}
	return d, nil
}

func boolProperty(cfg *config.BaseConfig, key string, def bool) (bool, error) {
	v := cfg.Property(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrorTypeConfig, "invalid %s property", key)
	}
	return b, nil
}

// Initialize builds the S3 client and checks the bucket is reachable.
func (d *S3Destination) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := d.BaseConnector.Initialize(ctx, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize base connector")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(d.region)}
	creds := cfg.Security.Credentials
	if id := creds["aws_access_key_id"]; id != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, creds["aws_secret_access_key"], creds["aws_session_token"])))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	d.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if d.endpoint != "" {
			o.BaseEndpoint = aws.String(d.endpoint)
			// S3 compatible stores commonly reject the default CRC32 trailers.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
		o.UsePathStyle = d.usePathStyle
	})
	d.uploader = manager.NewUploader(d.client, func(u *manager.Uploader) {
		u.PartSize = d.partSize
		if d.concurrency > 0 {
			u.Concurrency = d.concurrency
		}
	})

	d.SetHealthCheck(d.headBucket)
	if d.checkBucket {
		err := d.ExecuteWithRetry(ctx, "head_bucket", func() error { return d.headBucket(ctx) })
		if err != nil {
			return err
		}
	}
	d.UpdateHealth(true, map[string]interface{}{"bucket": d.bucket})

	d.GetLogger().Info("S3 destination initialized",
		zap.String("bucket", d.bucket),
		zap.String("prefix", d.keys.Prefix),
		zap.String("format", string(d.encoder.Format)),
		zap.String("compression", string(d.encoder.Compression)))
	return nil
}

func (d *S3Destination) headBucket(ctx context.Context) error {
	if _, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(d.bucket)}); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConnection, "failed to access bucket %s", d.bucket)
	}
	return nil
}

// CreateSchema fixes the column order and types of the uploaded objects.
func (d *S3Destination) CreateSchema(ctx context.Context, schema *core.Schema) error {
	d.schema = schema
	return nil
}

// Write renders the stream and uploads it as one object.
func (d *S3Destination) Write(ctx context.Context, stream *core.RecordStream) (err error) {
	if stream == nil {
		return errors.New(errors.ErrorTypeValidation, "stream cannot be nil")
	}
	if d.uploader == nil {
		return errors.New(errors.ErrorTypeConfig, "destination is not initialized")
	}
	ctx, span := d.StartSpan(ctx, "write")
	defer func() { span.End(err) }()

	key := d.keys.Build(d.now(), d.encoder.Extension())
	pr, pw := io.Pipe()

	type encoded struct {
		rows int64
		err  error
	}
	done := make(chan encoded, 1)
	go func() {
		n, err := d.encoder.Encode(ctx, pw, d.schema, stream)
		pw.CloseWithError(err)
		done <- encoded{rows: n, err: err}
	}()

	_, upErr := d.uploader.Upload(ctx, d.putInput(key, pr))
	if upErr != nil {
		pr.CloseWithError(upErr)
	}
	res := <-done

	if res.err != nil && (upErr == nil || !errors.Is(res.err, upErr)) {
		d.RecordCounter("records_written", 0, "failure")
		return res.err
	}
	if upErr != nil {
		d.RecordCounter("records_written", 0, "failure")
		return errors.Wrapf(upErr, errors.ErrorTypeConnection, "failed to upload s3://%s/%s", d.bucket, key)
	}

	d.written += res.rows
	d.lastKey = key
	d.RecordCounter("records_written", float64(res.rows))
	metrics.RowsWritten.WithLabelValues(d.Name()).Add(float64(res.rows))
	span.SetAttribute("key", key)
	span.SetAttribute("rows", res.rows)
	d.GetLogger().Info("object uploaded",
		zap.String("uri", d.uri(key)),
		zap.Int64("rows", res.rows))
	return nil
}

func (d *S3Destination) putInput(key string, body io.Reader) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(d.encoder.Format.ContentType()),
	}
	if enc := d.encoder.Compression.ContentEncoding(); enc != "" {
		input.ContentEncoding = aws.String(enc)
	}
	return input
}

// UploadFile copies a rendered local file to key under the configured
// prefix and returns its s3:// URI.
func (d *S3Destination) UploadFile(ctx context.Context, localPath, key string) (string, error) {
	if d.uploader == nil {
		return "", errors.New(errors.ErrorTypeConfig, "destination is not initialized")
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to open upload file")
	}
	defer f.Close()

	key = d.keys.Join(key)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentTypeFor(localPath)),
	}
	if _, err := d.uploader.Upload(ctx, input); err != nil {
		return "", errors.Wrapf(err, errors.ErrorTypeConnection, "failed to upload s3://%s/%s", d.bucket, key)
	}
	d.lastKey = key
	d.GetLogger().Info("file uploaded", zap.String("path", localPath), zap.String("uri", d.uri(key)))
	return d.uri(key), nil
}

func contentTypeFor(path string) string {
	if f, err := formats.FormatFromPath(path); err == nil {
		return f.ContentType()
	}
	return "application/octet-stream"
}

func (d *S3Destination) uri(key string) string {
	return "s3://" + d.bucket + "/" + key
}

// LastKey returns the key of the most recent upload.
func (d *S3Destination) LastKey() string {
	return d.lastKey
}

// RecordsWritten returns the rows uploaded by all Write calls.
func (d *S3Destination) RecordsWritten() int64 {
	return d.written
}

var _ objectstore.Uploader = (*S3Destination)(nil)
