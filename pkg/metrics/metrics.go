// Package metrics provides Prometheus metrics for nebula connectors.
//
// # Basic Usage
//
//	metrics.MessagesExtracted.WithLabelValues(mailbox).Add(float64(n))
//
//	timer := metrics.NewTimer("upsert")
//	upsert(records)
//	metrics.OperationLatency.WithLabelValues("upsert", "salesforce").
//	    Observe(timer.Stop().Seconds())
//
// Each connector also owns a Collector that keeps plain counters for the
// Metrics() map and mirrors them into RecordsProcessed.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector keeps per-connector counters. Values are exposed through GetAll
// and counters are also published as nebula_records_processed_total.
type Collector struct {
	name      string
	startTime time.Time

	mu       sync.RWMutex
	counters map[string]float64
	gauges   map[string]float64
}

// NewCollector creates a new metrics collector for a component.
func NewCollector(name string) *Collector {
	return &Collector{
		name:      name,
		startTime: time.Now(),
		counters:  make(map[string]float64),
		gauges:    make(map[string]float64),
	}
}

// GetAll returns all current metric values
func (c *Collector) GetAll() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := map[string]interface{}{
		"component":  c.name,
		"start_time": c.startTime,
		"uptime":     time.Since(c.startTime).Seconds(),
	}
	for k, v := range c.counters {
		all[k] = v
	}
	for k, v := range c.gauges {
		all[k] = v
	}
	return all
}

// StartTime returns when the collector was created
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

// RecordCounter adds value to a named counter. A "status" label value, when
// given, is also reported on RecordsProcessed.
func (c *Collector) RecordCounter(name string, value float64, labels ...string) {
	c.mu.Lock()
	c.counters[name] += value
	c.mu.Unlock()

	status := "success"
	if len(labels) > 0 {
		status = labels[0]
	}
	RecordsProcessed.WithLabelValues(c.name, name, status).Add(value)
}

// RecordGauge sets a named gauge.
func (c *Collector) RecordGauge(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[name] = value
}

// Counter returns the current value of a named counter.
func (c *Collector) Counter(name string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[name]
}

var (
	// RecordsProcessed counts records handled by a connector.
	// Labels: connector, operation (read/write/upsert), status (success/failure)
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_records_processed_total",
			Help: "Total number of records processed",
		},
		[]string{"connector", "operation", "status"},
	)

	// OperationLatency tracks latency of connector operations in seconds.
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nebula_operation_latency_seconds",
			Help:    "Connector operation latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"operation", "connector"},
	)

	// MessagesExtracted counts mailbox messages that passed the time window.
	MessagesExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_outlook_messages_extracted_total",
			Help: "Messages extracted from Outlook mailboxes",
		},
		[]string{"mailbox"},
	)

	// FoldersScanned counts folders visited while enumerating a mailbox.
	FoldersScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_outlook_folders_scanned_total",
			Help: "Mail folders visited during enumeration",
		},
		[]string{"mailbox"},
	)

	// SalesforceRecords counts Salesforce records by operation and result.
	SalesforceRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_salesforce_records_total",
			Help: "Salesforce records upserted or downloaded",
		},
		[]string{"operation", "result"},
	)

	// ValidationResults counts expectation outcomes per suite.
	ValidationResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_validation_expectations_total",
			Help: "Expectation results by suite and outcome",
		},
		[]string{"suite", "outcome"},
	)

	// RowsWritten counts rows persisted by destinations.
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_destination_rows_written_total",
			Help: "Rows written by destination connectors",
		},
		[]string{"destination"},
	)
)

// Timer measures elapsed time from creation.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Stop returns the elapsed duration since creation. It may be called repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// Name returns the operation the timer was created for.
func (t *Timer) Name() string {
	return t.name
}
