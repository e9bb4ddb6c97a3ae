package salesforce

import (
	"context"
	"strings"

	"github.com/ajitpratap0/nebula-connectors/pkg/clients"
	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/base"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"go.uber.org/zap"
)

// OptionsFromConfig reads the login options shared by the source and the
// destination: env, domain, client_id, api_version and login_url.
func OptionsFromConfig(cfg *config.BaseConfig, logger *zap.Logger) (Options, error) {
	opts := Options{
		Env:        strings.ToUpper(cfg.Property("env", EnvDev)),
		Domain:     cfg.Property("domain", DefaultDomain),
		ClientID:   cfg.Property("client_id", DefaultClientID),
		APIVersion: cfg.Property("api_version", DefaultAPIVersion),
		LoginURL:   cfg.Property("login_url", ""),
		Logger:     logger,
	}
	if err := ValidateEnv(opts.Env); err != nil {
		return Options{}, err
	}

	httpCfg := clients.DefaultHTTPConfig()
	if cfg.Timeouts.Request > 0 {
		httpCfg.RequestTimeout = cfg.Timeouts.Request
	}
	if cfg.Reliability.IsRateLimited() {
		httpCfg.RateLimit = float64(cfg.Reliability.RateLimitPerSec)
		httpCfg.RateBurst = cfg.Reliability.RateLimitPerSec * 2
	}
	opts.HTTPClient = clients.NewHTTPClient(httpCfg, logger)
	return opts, nil
}

// SalesforceSource downloads a SOQL query or a table.
//
// Properties: env (DEV|QA), domain, client_id, api_version, login_url,
// query, table, columns (comma separated).
type SalesforceSource struct {
	*base.BaseConnector

	credentials Credentials
	options     Options
	query       Query
	client      *Client
	bufferSize  int
}

// NewSalesforceSource creates the source, resolving credentials for the
// configured environment.
func NewSalesforceSource(name string, cfg *config.BaseConfig) (*SalesforceSource, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	creds, err := LoadCredentials(cfg, strings.ToUpper(cfg.Property("env", EnvDev)))
	if err != nil {
		return nil, err
	}
	return &SalesforceSource{
		BaseConnector: base.NewBaseConnector(name, core.ConnectorTypeSource, "1.0.0"),
		credentials:   creds,
	}, nil
}

// Initialize logs in, retrying retryable failures.
func (s *SalesforceSource) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseConnector.Initialize(ctx, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize base connector")
	}

	opts, err := OptionsFromConfig(cfg, s.GetLogger())
	if err != nil {
		return err
	}
	s.options = opts
	s.query = Query{
		SOQL:    cfg.Property("query", ""),
		Table:   cfg.Property("table", ""),
		Columns: cfg.ListProperty("columns", nil),
	}
	if err := s.query.validate(); err != nil {
		return err
	}
	s.bufferSize = cfg.Performance.BufferSize

	if err := s.ExecuteWithRetry(ctx, "login", func() error {
		client, err := Login(ctx, s.credentials, s.options)
		if err != nil {
			return err
		}
		s.client = client
		return nil
	}); err != nil {
		return err
	}

	s.UpdateHealth(true, map[string]interface{}{
		"env":      s.options.Env,
		"instance": s.client.InstanceURL(),
	})
	return nil
}

// Discover returns the requested columns. Without a column list the schema
// is only known after a download.
func (s *SalesforceSource) Discover(ctx context.Context) (*core.Schema, error) {
	schema := &core.Schema{Name: s.query.Table, Description: s.query.String()}
	for _, c := range s.query.Columns {
		schema.Fields = append(schema.Fields, core.Field{Name: c, Type: core.FieldTypeString, Nullable: true})
	}
	return schema, nil
}

// Extract downloads the configured query into a frame.
func (s *SalesforceSource) Extract(ctx context.Context) (*frame.Frame, error) {
	if s.client == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "source is not initialized")
	}
	ctx, span := s.StartSpan(ctx, "download")
	f, err := s.client.ToFrame(ctx, s.query)
	span.End(err)
	if err != nil {
		return nil, err
	}
	s.RecordCounter("records_read", float64(f.Len()))
	return f, nil
}

// Read downloads the query and streams the rows as records.
func (s *SalesforceSource) Read(ctx context.Context) (*core.RecordStream, error) {
	f, err := s.Extract(ctx)
	if err != nil {
		return nil, err
	}
	return f.Stream(ctx, s.bufferSize), nil
}

// Close releases the HTTP client.
func (s *SalesforceSource) Close(ctx context.Context) error {
	if s.client != nil {
		_ = s.client.Close()
	}
	return s.BaseConnector.Close(ctx)
}
