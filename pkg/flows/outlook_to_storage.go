// Package flows chains connectors into the end to end jobs run by the CLI.
//
// OutlookToStorage extracts a list of mailboxes, joins the results into one
// frame, optionally checks it against frame rules, writes it to a local CSV
// or Parquet file and optionally uploads that file to object storage:
//
//	extractor := outlook.NewExtractor(account, outlook.WithLogger(logger))
//	flow, err := flows.NewOutlookToStorage(flows.OutlookToStorageConfig{
//	    Name:      "outlook_daily",
//	    Mailboxes: []string{"ops@example.com", "hr@example.com"},
//	    Request:   outlook.NewExtractRequest("", window),
//	    LocalPath: "out/outlook.parquet",
//	}, extractor, flows.WithUploader(s3dest, "raw/outlook/outlook.parquet"))
//	result, err := flow.Run(ctx)
package flows

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/destinations/file"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/destinations/objectstore"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/sources/outlook"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/formats"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/ajitpratap0/nebula-connectors/pkg/metrics"
	"github.com/ajitpratap0/nebula-connectors/pkg/observability"
	"github.com/ajitpratap0/nebula-connectors/pkg/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Local file handling when LocalPath already exists.
const (
	IfExistsReplace = "replace"
	IfExistsAppend  = "append"
)

// OutlookToStorageConfig describes one run of the flow.
type OutlookToStorageConfig struct {
	Name      string
	Mailboxes []string
	// Request carries the window and limits; its Mailbox is replaced per mailbox.
	Request outlook.ExtractRequest
	// Validation holds frame rules such as column_list_to_match.
	Validation map[string]interface{}
	// LocalPath must end in .csv or .parquet.
	LocalPath string
	// IfExists is replace (default) or append. Append is CSV only.
	IfExists string
}

// OutlookToStorage runs the mailbox to file flow.
type OutlookToStorage struct {
	cfg       OutlookToStorageConfig
	format    formats.Format
	extractor *outlook.Extractor
	uploader  objectstore.Uploader
	uploadKey string
	logger    *zap.Logger
}

// FlowOption configures an OutlookToStorage.
type FlowOption func(*OutlookToStorage)

// WithUploader uploads the local file under key after it is written. An
// empty key uses the file name.
func WithUploader(u objectstore.Uploader, key string) FlowOption {
	return func(f *OutlookToStorage) {
		f.uploader = u
		f.uploadKey = key
	}
}

// WithFlowLogger sets the logger.
func WithFlowLogger(l *zap.Logger) FlowOption {
	return func(f *OutlookToStorage) { f.logger = l }
}

// OutlookToStorageResult reports what a run produced.
type OutlookToStorageResult struct {
	Rows      int
	Extracted []string // mailboxes that returned rows
	Skipped   []string // mailboxes without rows
	LocalPath string   // empty when nothing was written
	Location  string   // object URI when uploaded
}

// NewOutlookToStorage validates cfg.
func NewOutlookToStorage(cfg OutlookToStorageConfig, extractor *outlook.Extractor, opts ...FlowOption) (*OutlookToStorage, error) {
	if extractor == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "extractor is required")
	}
	if len(cfg.Mailboxes) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "at least one mailbox is required")
	}
	if cfg.LocalPath == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "local file path is required")
	}
	if cfg.Name == "" {
		cfg.Name = "outlook_to_storage"
	}
	cfg.Request = withRequestDefaults(cfg.Request, time.Now())

	format, err := formats.FormatFromPath(cfg.LocalPath)
	if err != nil || (format != formats.CSV && format != formats.Parquet) || filepath.Ext(cfg.LocalPath) != format.Extension() {
		return nil, errors.Newf(errors.ErrorTypeConfig, "local file %s must be .csv or .parquet", cfg.LocalPath)
	}

	switch strings.ToLower(cfg.IfExists) {
	case "", IfExistsReplace:
		cfg.IfExists = IfExistsReplace
	case IfExistsAppend:
		if format != formats.CSV {
			return nil, errors.New(errors.ErrorTypeConfig, "if_exists=append is only supported for csv files")
		}
		cfg.IfExists = IfExistsAppend
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported if_exists value: %s", cfg.IfExists)
	}

	f := &OutlookToStorage{
		cfg:       cfg,
		format:    format,
		extractor: extractor,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(zap.String("flow", cfg.Name))
	return f, nil
}

// Run extracts every mailbox in order and stores the combined frame. Mailboxes
// without rows are skipped with a warning; when none has rows nothing is
// written. A failed frame rule stops the run before the file is written.
func (f *OutlookToStorage) Run(ctx context.Context) (result *OutlookToStorageResult, err error) {
	ctx, span := observability.StartSpan(ctx, "flow", f.cfg.Name,
		attribute.Int("mailboxes", len(f.cfg.Mailboxes)))
	defer func() { span.End(err) }()
	timer := metrics.NewTimer("flow")
	defer func() {
		metrics.OperationLatency.WithLabelValues("flow", f.cfg.Name).Observe(timer.Stop().Seconds())
	}()

	result = &OutlookToStorageResult{}
	var frames []*frame.Frame
	for _, mailbox := range f.cfg.Mailboxes {
		req := f.cfg.Request
		req.Mailbox = mailbox

		fr, err := f.extractor.Extract(ctx, req)
		if frame.IsSkip(err) || (err == nil && fr.Empty()) {
			f.logger.Warn("mailbox returned no rows, skipping", zap.String("mailbox", mailbox))
			result.Skipped = append(result.Skipped, mailbox)
			continue
		}
		if err != nil {
			return result, errors.Wrapf(err, errors.ErrorTypeData, "failed to extract mailbox %s", mailbox)
		}
		frames = append(frames, fr)
		result.Extracted = append(result.Extracted, mailbox)
	}

	if len(frames) == 0 {
		f.logger.Warn("no mailbox returned rows, nothing written")
		return result, nil
	}
	combined := frame.Concat(f.cfg.Name, frames...)

	if len(f.cfg.Validation) > 0 {
		if err := validation.CheckFrame(combined, f.cfg.Validation); err != nil {
			return result, err
		}
		f.logger.Info("frame rules passed", zap.Int("rules", len(f.cfg.Validation)))
	}

	if f.cfg.IfExists == IfExistsAppend {
		if combined, err = f.appendExisting(combined); err != nil {
			return result, err
		}
	}

	if err := f.writeLocal(ctx, combined); err != nil {
		return result, err
	}
	result.Rows = combined.Len()
	result.LocalPath = f.cfg.LocalPath
	span.SetAttribute("rows", result.Rows)

	if f.uploader != nil {
		key := f.uploadKey
		if key == "" {
			key = filepath.Base(f.cfg.LocalPath)
		}
		loc, err := f.uploader.UploadFile(ctx, f.cfg.LocalPath, key)
		if err != nil {
			return result, err
		}
		result.Location = loc
	}

	metrics.RecordsProcessed.WithLabelValues(f.cfg.Name, "flow", "success").Add(float64(result.Rows))
	f.logger.Info("flow finished",
		zap.Int("rows", result.Rows),
		zap.Strings("skipped", result.Skipped),
		zap.String("local_path", result.LocalPath),
		zap.String("location", result.Location))
	return result, nil
}

// withRequestDefaults fills the limits, outbox list and window left unset.
func withRequestDefaults(req outlook.ExtractRequest, now time.Time) outlook.ExtractRequest {
	def := outlook.NewExtractRequest(req.Mailbox, req.Window)
	if req.Limit <= 0 {
		req.Limit = def.Limit
	}
	if req.AddressLimit <= 0 {
		req.AddressLimit = def.AddressLimit
	}
	if req.OutboxList == nil {
		req.OutboxList = def.OutboxList
	}
	if req.Window.Start.IsZero() && req.Window.End.IsZero() {
		// Empty bounds always yield the previous day.
		req.Window, _ = outlook.NewWindow("", "", now)
	}
	return req
}

func (f *OutlookToStorage) appendExisting(fr *frame.Frame) (*frame.Frame, error) {
	if _, err := os.Stat(f.cfg.LocalPath); os.IsNotExist(err) {
		return fr, nil
	}
	existing, err := frame.ReadCSVFile(f.cfg.LocalPath, f.cfg.Name)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("appending to existing file", zap.Int("existing_rows", existing.Len()))
	return frame.Concat(f.cfg.Name, existing, fr), nil
}

func (f *OutlookToStorage) writeLocal(ctx context.Context, fr *frame.Frame) error {
	cfg := config.NewBaseConfig(f.cfg.Name, string(f.format))
	cfg.Properties["path"] = f.cfg.LocalPath
	cfg.Properties["format"] = string(f.format)

	dest := file.NewFileDestination(f.cfg.Name, f.format)
	if err := dest.Initialize(ctx, cfg); err != nil {
		return err
	}
	defer dest.Close(ctx)

	if err := dest.CreateSchema(ctx, fr.Schema()); err != nil {
		return err
	}
	return dest.Write(ctx, fr.Stream(ctx, 0))
}
