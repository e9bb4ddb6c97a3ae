package salesforce

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ajitpratap0/nebula-connectors/pkg/clients"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/ajitpratap0/nebula-connectors/pkg/metrics"
	"go.uber.org/zap"
)

// IDField is the Salesforce record id.
const IDField = "Id"

var upsertResults = map[int]string{
	http.StatusOK:        "updated",
	http.StatusCreated:   "created",
	http.StatusNoContent: "updated",
}

// Upsert writes every row of f into table. Rows are matched on externalID
// when it is set, otherwise on their Id. Rows with a null external id are
// skipped. An empty frame is a no-op.
func (c *Client) Upsert(ctx context.Context, f *frame.Frame, table, externalID string) error {
	if f.Empty() {
		c.logger.Info("No data to upsert.")
		return nil
	}
	if externalID != "" && !f.HasColumn(externalID) {
		return errors.Newf(errors.ErrorTypeValidation, "frame does not contain column %q", externalID)
	}

	upserted := 0
	for _, row := range f.Rows {
		done, err := c.upsertRow(ctx, row, table, externalID)
		if err != nil {
			metrics.SalesforceRecords.WithLabelValues("upsert", "failed").Inc()
			return err
		}
		if done {
			upserted++
		}
	}

	c.logger.Info(fmt.Sprintf("Successfully upserted %d records into table '%s'.", upserted, table),
		zap.String("table", table),
		zap.Int("records", upserted))
	return nil
}

func (c *Client) upsertRow(ctx context.Context, row frame.Row, table, externalID string) (bool, error) {
	record := make(map[string]interface{}, len(row))
	for k, v := range row {
		record[k] = v
	}

	var mergeKey string
	if externalID != "" {
		value := record[externalID]
		if value == nil {
			metrics.SalesforceRecords.WithLabelValues("upsert", "skipped").Inc()
			return false, nil
		}
		mergeKey = fmt.Sprintf("%s/%v", externalID, value)
		delete(record, externalID)
	} else {
		id, ok := record[IDField]
		if !ok || id == nil {
			return false, errors.New(errors.ErrorTypeValidation, "record has no Id and no external id was given")
		}
		mergeKey = fmt.Sprintf("%v", id)
	}
	delete(record, IDField)

	status, err := c.do(ctx, http.MethodPatch, c.dataURL("sobjects/"+escapeSegments(table)+"/"+escapeSegments(mergeKey)), record, nil)
	if err != nil {
		var se *clients.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusBadRequest {
			return false, errors.Wrapf(err, errors.ErrorTypeValidation, "upsert of record %s failed", mergeKey)
		}
		return false, errors.Wrapf(err, errors.TypeOf(err), "upsert failed for record %s with response %d", mergeKey, status)
	}

	result, ok := upsertResults[status]
	if !ok {
		return false, errors.Newf(errors.ErrorTypeQuery, "upsert failed for record %s with response %d", mergeKey, status)
	}
	c.logger.Info(fmt.Sprintf("Successfully %s record %s.", result, mergeKey))
	metrics.SalesforceRecords.WithLabelValues("upsert", result).Inc()
	return true, nil
}
