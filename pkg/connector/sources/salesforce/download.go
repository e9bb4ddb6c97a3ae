package salesforce

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/ajitpratap0/nebula-connectors/pkg/metrics"
	"go.uber.org/zap"
)

// SourceName is written to the source metadata column.
const SourceName = "Salesforce"

// Query describes what to download: either a SOQL query, or a table with
// optional columns.
type Query struct {
	SOQL    string
	Table   string
	Columns []string
}

// String returns the SOQL to run. Without explicit SOQL the query selects the
// given columns, or FIELDS(STANDARD), from the table.
func (q Query) String() string {
	if q.SOQL != "" {
		return q.SOQL
	}
	cols := "FIELDS(STANDARD)"
	if len(q.Columns) > 0 {
		cols = strings.Join(q.Columns, ", ")
	}
	return "SELECT " + cols + " FROM " + q.Table
}

func (q Query) validate() error {
	if q.SOQL == "" && q.Table == "" {
		return errors.New(errors.ErrorTypeConfig, "either a query or a table is required")
	}
	return nil
}

type queryResponse struct {
	TotalSize      int                      `json:"totalSize"`
	Done           bool                     `json:"done"`
	NextRecordsURL string                   `json:"nextRecordsUrl"`
	Records        []map[string]interface{} `json:"records"`
}

// Download runs q and returns every record, following nextRecordsUrl. The
// attributes entry Salesforce adds to each record is removed.
func (c *Client) Download(ctx context.Context, q Query) ([]map[string]interface{}, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	soql := q.String()
	next := c.dataURL("query") + "?q=" + url.QueryEscape(soql)

	var records []map[string]interface{}
	for next != "" {
		var page queryResponse
		if _, err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, errors.Wrapf(err, errors.TypeOf(err), "query failed: %s", soql)
		}
		for _, r := range page.Records {
			delete(r, "attributes")
			records = append(records, r)
		}
		next = ""
		if !page.Done && page.NextRecordsURL != "" {
			next = c.instanceURL + page.NextRecordsURL
		}
	}

	metrics.SalesforceRecords.WithLabelValues("download", "success").Add(float64(len(records)))
	c.logger.Debug("salesforce query finished",
		zap.String("query", soql),
		zap.Int("records", len(records)))
	return records, nil
}

// ToFrame downloads q into a frame. Columns follow the requested column list
// when given, otherwise the sorted keys of the records. A query returning no
// records is an error.
func (c *Client) ToFrame(ctx context.Context, q Query) (*frame.Frame, error) {
	records, err := c.Download(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New(errors.ErrorTypeEmpty, "query produced no data")
	}

	name := q.Table
	if name == "" {
		name = "salesforce"
	}
	f := frame.New(name, q.Columns...)
	for _, r := range records {
		f.Append(frame.Row(r))
	}
	f.AddMetadata(SourceName, time.Now())
	return f, nil
}
