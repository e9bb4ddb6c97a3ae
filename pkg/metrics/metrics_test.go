package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector("metrics_test_connector")
	c.RecordCounter("records_read", 3)
	c.RecordCounter("records_read", 2)
	c.RecordCounter("records_failed", 1, "failure")
	c.RecordGauge("queue_depth", 7)

	assert.Equal(t, float64(5), c.Counter("records_read"))

	all := c.GetAll()
	assert.Equal(t, "metrics_test_connector", all["component"])
	assert.Equal(t, float64(7), all["queue_depth"])

	assert.Equal(t, float64(5), testutil.ToFloat64(
		RecordsProcessed.WithLabelValues("metrics_test_connector", "records_read", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		RecordsProcessed.WithLabelValues("metrics_test_connector", "records_failed", "failure")))
}

func TestTimer(t *testing.T) {
	timer := NewTimer("extract")
	time.Sleep(time.Millisecond)
	assert.Equal(t, "extract", timer.Name())
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}
