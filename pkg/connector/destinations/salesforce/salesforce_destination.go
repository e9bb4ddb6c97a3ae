// Package salesforce provides a destination that upserts records into a
// Salesforce object.
package salesforce

import (
	"context"
	"strings"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/base"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	sf "github.com/ajitpratap0/nebula-connectors/pkg/connector/sources/salesforce"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/ajitpratap0/nebula-connectors/pkg/pool"
	"go.uber.org/zap"
)

// SalesforceDestination upserts the incoming stream into one object.
//
// Properties: env, domain, client_id, api_version, login_url, table and
// external_id.
type SalesforceDestination struct {
	*base.BaseConnector

	credentials sf.Credentials
	table       string
	externalID  string
	client      *sf.Client
	schema      *core.Schema
}

// NewSalesforceDestination creates the destination, resolving credentials
// for the configured environment.
func NewSalesforceDestination(name string, cfg *config.BaseConfig) (*SalesforceDestination, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	creds, err := sf.LoadCredentials(cfg, strings.ToUpper(cfg.Property("env", sf.EnvDev)))
	if err != nil {
		return nil, err
	}
	return &SalesforceDestination{
		BaseConnector: base.NewBaseConnector(name, core.ConnectorTypeDestination, "1.0.0"),
		credentials:   creds,
	}, nil
}

// Initialize logs in and reads the target table.
func (d *SalesforceDestination) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := d.BaseConnector.Initialize(ctx, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize base connector")
	}

	d.table = cfg.Property("table", "")
	if d.table == "" {
		return errors.New(errors.ErrorTypeConfig, "table property is required")
	}
	d.externalID = cfg.Property("external_id", "")

	opts, err := sf.OptionsFromConfig(cfg, d.GetLogger())
	if err != nil {
		return err
	}
	if err := d.ExecuteWithRetry(ctx, "login", func() error {
		client, err := sf.Login(ctx, d.credentials, opts)
		if err != nil {
			return err
		}
		d.client = client
		return nil
	}); err != nil {
		return err
	}

	d.UpdateHealth(true, map[string]interface{}{"table": d.table})
	return nil
}

// CreateSchema records the incoming schema; Salesforce objects are not created.
func (d *SalesforceDestination) CreateSchema(ctx context.Context, schema *core.Schema) error {
	d.schema = schema
	return nil
}

// Write collects the stream and upserts it.
func (d *SalesforceDestination) Write(ctx context.Context, stream *core.RecordStream) error {
	f, err := frame.Collect(ctx, d.table, d.schema, stream)
	if err != nil {
		return err
	}
	return d.upsert(ctx, f, d.externalID)
}

// Upsert merges records on keys. Only the first key is used; an empty key
// list matches on Id.
func (d *SalesforceDestination) Upsert(ctx context.Context, records []*pool.Record, keys []string) error {
	f := frame.New(d.table, d.schema.FieldNames()...)
	for _, r := range records {
		row := make(frame.Row, len(r.Data))
		for k, v := range r.Data {
			row[k] = v
		}
		f.Append(row)
		r.Release()
	}

	externalID := d.externalID
	if len(keys) > 0 {
		externalID = keys[0]
	}
	return d.upsert(ctx, f, externalID)
}

func (d *SalesforceDestination) upsert(ctx context.Context, f *frame.Frame, externalID string) error {
	if d.client == nil {
		return errors.New(errors.ErrorTypeConfig, "destination is not initialized")
	}
	f.Drop(frame.SourceColumn)
	f.Drop(frame.DownloadedAtColumn)

	ctx, span := d.StartSpan(ctx, "upsert")
	err := d.client.Upsert(ctx, f, d.table, externalID)
	span.End(err)
	if err != nil {
		d.GetLogger().Error("salesforce upsert failed", zap.String("table", d.table), zap.Error(err))
		return err
	}
	d.RecordCounter("records_written", float64(f.Len()))
	return nil
}

// Close releases the HTTP client.
func (d *SalesforceDestination) Close(ctx context.Context) error {
	if d.client != nil {
		_ = d.client.Close()
	}
	return d.BaseConnector.Close(ctx)
}
