package outlook

import (
	"context"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/clients"
	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/base"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"go.uber.org/zap"
)

// OutlookSource is the registry facing source that extracts one mailbox.
//
// Properties:
//
//	mailbox          mailbox to read (required)
//	start_date       YYYY-MM-DD, used together with end_date
//	end_date         YYYY-MM-DD
//	limit            newest messages requested per folder (10000)
//	address_limit    character budget of the recipients column (8000)
//	outbox_list      comma separated outgoing folder names ("Sent Items")
//	request_retries  authentication attempts (reliability.retry_attempts)
//	if_empty         warn, skip or fail
//	graph_url        Graph endpoint override
//	login_url        Azure AD authority override
type OutlookSource struct {
	*base.BaseConnector

	credentials Credentials
	httpClient  *clients.HTTPClient
	extractor   *Extractor
	request     ExtractRequest
	bufferSize  int
	schema      *core.Schema
}

// NewOutlookSource creates an Outlook source. Credentials are resolved here
// so a missing or malformed credential set fails before any work starts.
func NewOutlookSource(name string, cfg *config.BaseConfig) (*OutlookSource, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	raw, err := config.LoadCredentials(cfg, "outlook", CredentialFields...)
	if err != nil {
		return nil, err
	}
	creds, err := CredentialsFromMap(raw)
	if err != nil {
		return nil, err
	}

	return &OutlookSource{
		BaseConnector: base.NewBaseConnector(name, core.ConnectorTypeSource, "1.0.0"),
		credentials:   creds,
	}, nil
}

// Initialize reads the extraction properties and prepares the Graph account.
func (s *OutlookSource) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseConnector.Initialize(ctx, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize base connector")
	}

	req, err := RequestFromConfig(cfg, time.Now())
	if err != nil {
		return err
	}
	retries, err := cfg.IntProperty("request_retries", cfg.Reliability.RetryAttempts)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid request_retries")
	}
	policy, err := frame.ParseEmptyPolicy(cfg.Property("if_empty", ""))
	if err != nil {
		return err
	}

	httpCfg := clients.DefaultHTTPConfig()
	if cfg.Timeouts.Request > 0 {
		httpCfg.RequestTimeout = cfg.Timeouts.Request
	}
	if cfg.Reliability.IsRateLimited() {
		httpCfg.RateLimit = float64(cfg.Reliability.RateLimitPerSec)
		httpCfg.RateBurst = cfg.Reliability.RateLimitPerSec * 2
	}
	s.httpClient = clients.NewHTTPClient(httpCfg, s.GetLogger())

	account := NewGraphAccount(s.credentials, GraphOptions{
		GraphURL:   cfg.Property("graph_url", DefaultGraphURL),
		LoginURL:   cfg.Property("login_url", DefaultLoginURL),
		HTTPClient: s.httpClient,
		Logger:     s.GetLogger(),
	})

	s.request = req
	s.bufferSize = cfg.Performance.BufferSize
	s.extractor = NewExtractor(account,
		WithRetries(retries, cfg.Reliability.RetryDelay),
		WithEmptyPolicy(policy),
		WithLogger(s.GetLogger()))
	s.schema = Schema()

	s.UpdateHealth(true, map[string]interface{}{
		"mailbox": req.Mailbox,
		"window":  req.Window.String(),
	})
	s.GetLogger().Info("outlook source initialized",
		zap.String("mailbox", req.Mailbox),
		zap.Int("limit", req.Limit),
		zap.Strings("outbox_list", req.OutboxList))
	return nil
}

// RequestFromConfig builds an ExtractRequest from connector properties. now
// anchors the default window.
func RequestFromConfig(cfg *config.BaseConfig, now time.Time) (ExtractRequest, error) {
	mailbox := cfg.Property("mailbox", "")
	if mailbox == "" {
		return ExtractRequest{}, errors.New(errors.ErrorTypeConfig, "mailbox property is required")
	}
	window, err := NewWindow(cfg.Property("start_date", ""), cfg.Property("end_date", ""), now)
	if err != nil {
		return ExtractRequest{}, err
	}

	req := NewExtractRequest(mailbox, window)
	if req.Limit, err = cfg.IntProperty("limit", DefaultLimit); err != nil {
		return ExtractRequest{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid limit")
	}
	if req.AddressLimit, err = cfg.IntProperty("address_limit", DefaultAddressLimit); err != nil {
		return ExtractRequest{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid address_limit")
	}
	req.OutboxList = cfg.ListProperty("outbox_list", req.OutboxList)
	return req, nil
}

// Schema describes the frame produced by an extraction.
func Schema() *core.Schema {
	schema := &core.Schema{
		Name:        "outlook",
		Description: "Outlook mailbox messages",
		CreatedAt:   time.Now(),
	}
	for _, c := range Columns {
		field := core.Field{Name: c, Type: core.FieldTypeString, Nullable: true}
		if c == ColumnInbox {
			field.Type = core.FieldTypeBool
			field.Nullable = false
		}
		schema.Fields = append(schema.Fields, field)
	}
	schema.Fields = append(schema.Fields,
		core.Field{Name: frame.SourceColumn, Type: core.FieldTypeString},
		core.Field{Name: frame.DownloadedAtColumn, Type: core.FieldTypeTimestamp},
	)
	return schema
}

// Discover returns the extraction schema.
func (s *OutlookSource) Discover(ctx context.Context) (*core.Schema, error) {
	if s.schema == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "source is not initialized")
	}
	return s.schema, nil
}

// Extract runs the configured extraction.
func (s *OutlookSource) Extract(ctx context.Context) (*frame.Frame, error) {
	if s.extractor == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "source is not initialized")
	}
	f, err := s.extractor.Extract(ctx, s.request)
	if err != nil {
		if !frame.IsSkip(err) {
			s.UpdateHealth(false, map[string]interface{}{"error": err.Error()})
		}
		return nil, err
	}
	s.RecordCounter("records_read", float64(f.Len()))
	return f, nil
}

// Read extracts the mailbox and streams the rows as records.
func (s *OutlookSource) Read(ctx context.Context) (*core.RecordStream, error) {
	f, err := s.Extract(ctx)
	if err != nil {
		return nil, err
	}
	return f.Stream(ctx, s.bufferSize), nil
}

// Request returns the extraction request built from the properties.
func (s *OutlookSource) Request() ExtractRequest {
	return s.request
}

// Extractor returns the extractor built by Initialize, for callers that
// extract several mailboxes with one account.
func (s *OutlookSource) Extractor() *Extractor {
	return s.extractor
}

// Close releases the HTTP client.
func (s *OutlookSource) Close(ctx context.Context) error {
	if s.httpClient != nil {
		_ = s.httpClient.Close()
	}
	return s.BaseConnector.Close(ctx)
}
