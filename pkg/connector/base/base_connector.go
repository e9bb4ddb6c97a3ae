// Package base provides the BaseConnector that nebula connectors embed. It
// carries the connector logger, circuit breaker, rate limiter, retry policy,
// metrics collector and health state so each connector only implements its
// own protocol.
//
// # Usage
//
//	type OutlookSource struct {
//	    *base.BaseConnector
//	    // connector-specific fields
//	}
//
//	func NewOutlookSource(name string, cfg *config.BaseConfig) *OutlookSource {
//	    return &OutlookSource{
//	        BaseConnector: base.NewBaseConnector(name, core.ConnectorTypeSource, "1.0.0"),
//	    }
//	}
//
// Initialize must be called before any of the Execute helpers are used.
package base

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/clients"
	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/logger"
	"github.com/ajitpratap0/nebula-connectors/pkg/metrics"
	"github.com/ajitpratap0/nebula-connectors/pkg/observability"
	"go.uber.org/zap"
)

// BaseConnector provides common functionality for all connectors.
type BaseConnector struct {
	name          string
	connectorType core.ConnectorType
	version       string
	config        *config.BaseConfig
	logger        *zap.Logger

	closed     bool
	closeMutex sync.Mutex

	circuitBreaker   *clients.CircuitBreaker
	rateLimiter      clients.RateLimiter
	healthChecker    *HealthChecker
	metricsCollector *metrics.Collector
	retryPolicy      *RetryPolicy
}

// NewBaseConnector creates a new base connector with the specified name, type, and version.
func NewBaseConnector(name string, connectorType core.ConnectorType, version string) *BaseConnector {
	l := logger.Get().With(zap.String("connector", name))
	return &BaseConnector{
		name:             name,
		connectorType:    connectorType,
		version:          version,
		logger:           l,
		healthChecker:    NewHealthChecker(l),
		metricsCollector: metrics.NewCollector(name),
		retryPolicy:      NoRetryPolicy(),
	}
}

// Initialize sets up the circuit breaker, rate limiter and retry policy from cfg.
func (bc *BaseConnector) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if cfg == nil {
		return errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	bc.config = cfg

	if cfg.Reliability.CircuitBreaker {
		bc.circuitBreaker = clients.NewCircuitBreakerWithLogger(clients.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 1,
			Timeout:          30 * time.Second,
		}, bc.logger)
	}

	if cfg.Reliability.IsRateLimited() {
		bc.rateLimiter = clients.NewRateLimiter(
			cfg.Reliability.RateLimitPerSec,
			cfg.Reliability.RateLimitPerSec*2,
		)
	}

	bc.retryPolicy = NewRetryPolicy(cfg.Reliability.RetryAttempts, cfg.Reliability.RetryDelay)

	bc.logger.Debug("connector initialized",
		zap.String("type", string(bc.connectorType)),
		zap.String("version", bc.version))
	return nil
}

// Name returns the connector name
func (bc *BaseConnector) Name() string {
	return bc.name
}

// Type returns the connector type
func (bc *BaseConnector) Type() core.ConnectorType {
	return bc.connectorType
}

// Version returns the connector version
func (bc *BaseConnector) Version() string {
	return bc.version
}

// Health runs the registered health check and reports the current status.
func (bc *BaseConnector) Health(ctx context.Context) error {
	bc.closeMutex.Lock()
	closed := bc.closed
	bc.closeMutex.Unlock()
	if closed {
		return errors.New(errors.ErrorTypeConnection, "connector is closed")
	}

	if err := bc.healthChecker.Check(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeHealth, "health check failed")
	}
	status := bc.healthChecker.GetStatus()
	if status.Status == "unhealthy" {
		if status.Error != nil {
			return errors.Wrap(status.Error, errors.ErrorTypeHealth, "connector unhealthy")
		}
		return errors.New(errors.ErrorTypeHealth, "connector unhealthy")
	}
	return nil
}

// Metrics returns current metrics
func (bc *BaseConnector) Metrics() map[string]interface{} {
	m := bc.metricsCollector.GetAll()
	m["name"] = bc.name
	m["type"] = string(bc.connectorType)
	m["version"] = bc.version

	if bc.circuitBreaker != nil {
		cbState := bc.circuitBreaker.GetState()
		m["circuit_breaker_state"] = cbState.State
		m["circuit_breaker_failure_rate"] = cbState.FailureRate
	}
	if bc.rateLimiter != nil {
		rlStats := bc.rateLimiter.GetStats()
		m["rate_limit"] = rlStats.Rate
		m["rate_limiter_allowed"] = rlStats.AllowedRequests
		m["rate_limiter_blocked"] = rlStats.BlockedRequests
	}

	status := bc.healthChecker.GetStatus()
	m["health_status"] = status.Status
	return m
}

// Close marks the connector closed. It is safe to call more than once.
func (bc *BaseConnector) Close(ctx context.Context) error {
	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()

	if bc.closed {
		return nil
	}
	bc.closed = true
	bc.logger.Debug("connector closed")
	return nil
}

// ExecuteWithRetry runs fn under the configured retry policy, retrying only
// errors classified as retryable.
func (bc *BaseConnector) ExecuteWithRetry(ctx context.Context, operation string, fn func() error) error {
	return bc.retryPolicy.LoggingRetries(bc.logger, operation).
		ExecuteWithCondition(ctx, fn, errors.IsRetryable)
}

// ExecuteWithCircuitBreaker runs fn with circuit breaker protection, when enabled.
func (bc *BaseConnector) ExecuteWithCircuitBreaker(fn func() error) error {
	if bc.circuitBreaker == nil {
		return fn()
	}
	err := bc.circuitBreaker.Execute(fn)
	if errors.Is(err, clients.ErrCircuitOpen) {
		return errors.Wrap(err, errors.ErrorTypeConnection, bc.name)
	}
	return err
}

// RateLimit blocks until the rate limiter admits a request. Returns
// immediately if no rate limiter is configured.
func (bc *BaseConnector) RateLimit(ctx context.Context) error {
	if bc.rateLimiter == nil {
		return nil
	}
	return bc.rateLimiter.Wait(ctx)
}

// StartSpan starts a tracing span for a connector operation.
func (bc *BaseConnector) StartSpan(ctx context.Context, operation string) (context.Context, *observability.Span) {
	return observability.StartSpan(ctx, bc.name, operation)
}

// RecordCounter adds value to a named connector counter.
func (bc *BaseConnector) RecordCounter(name string, value float64, labels ...string) {
	bc.metricsCollector.RecordCounter(name, value, labels...)
}

// UpdateHealth updates the health status
func (bc *BaseConnector) UpdateHealth(healthy bool, details map[string]interface{}) {
	bc.healthChecker.UpdateStatus(healthy, details)
}

// SetHealthCheck registers the function Health runs.
func (bc *BaseConnector) SetHealthCheck(fn func(ctx context.Context) error) {
	bc.healthChecker.SetCheckFunc(fn)
}

// GetLogger returns the connector logger
func (bc *BaseConnector) GetLogger() *zap.Logger {
	return bc.logger
}

// SetLogger replaces the connector logger.
func (bc *BaseConnector) SetLogger(l *zap.Logger) {
	bc.logger = l
}

// GetConfig returns the connector configuration
func (bc *BaseConnector) GetConfig() *config.BaseConfig {
	return bc.config
}

// GetRetryPolicy returns the retry policy built by Initialize.
func (bc *BaseConnector) GetRetryPolicy() *RetryPolicy {
	return bc.retryPolicy
}

// GetMetricsCollector returns the metrics collector
func (bc *BaseConnector) GetMetricsCollector() *metrics.Collector {
	return bc.metricsCollector
}
