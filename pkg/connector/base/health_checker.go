package base

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"go.uber.org/zap"
)

// HealthChecker tracks connector health. Status is updated by the connector
// as requests succeed or fail, or by an optional check function run on Check.
type HealthChecker struct {
	logger    *zap.Logger
	checkFunc func(ctx context.Context) error

	mu               sync.RWMutex
	status           core.HealthStatus
	checkCount       int64
	failureCount     int64
	consecutiveFails int
}

// NewHealthChecker creates a healthy checker.
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		logger: logger.With(zap.String("component", "health_checker")),
		status: core.HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now(),
			Details:   make(map[string]interface{}),
		},
	}
}

// SetCheckFunc sets the function run by Check.
func (hc *HealthChecker) SetCheckFunc(fn func(ctx context.Context) error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkFunc = fn
}

// Check runs the check function, if any, and records its outcome.
func (hc *HealthChecker) Check(ctx context.Context) error {
	hc.mu.RLock()
	fn := hc.checkFunc
	hc.mu.RUnlock()
	if fn == nil {
		return nil
	}

	err := fn(ctx)
	hc.record(err)
	return err
}

func (hc *HealthChecker) record(err error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.checkCount++
	hc.status.Timestamp = time.Now()
	if err == nil {
		hc.consecutiveFails = 0
		hc.status.Status = "healthy"
		hc.status.Error = nil
		delete(hc.status.Details, "last_error")
		return
	}

	hc.failureCount++
	hc.consecutiveFails++
	if hc.consecutiveFails >= 3 {
		hc.status.Status = "unhealthy"
	} else {
		hc.status.Status = "degraded"
	}
	hc.status.Error = err
	hc.status.Details["last_error"] = err.Error()

	hc.logger.Warn("health check failed",
		zap.Error(err),
		zap.String("status", hc.status.Status),
		zap.Int("consecutive_failures", hc.consecutiveFails))
}

// UpdateStatus manually updates the health status
func (hc *HealthChecker) UpdateStatus(healthy bool, details map[string]interface{}) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.status.Timestamp = time.Now()
	if healthy {
		hc.status.Status = "healthy"
		hc.status.Error = nil
		hc.consecutiveFails = 0
	} else {
		hc.status.Status = "unhealthy"
	}
	for k, v := range details {
		hc.status.Details[k] = v
	}
}

// GetStatus returns a copy of the current health status
func (hc *HealthChecker) GetStatus() core.HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := hc.status
	status.Details = make(map[string]interface{}, len(hc.status.Details))
	for k, v := range hc.status.Details {
		status.Details[k] = v
	}
	return status
}

// CheckCount returns the number of checks run
func (hc *HealthChecker) CheckCount() int64 {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.checkCount
}

// FailureCount returns the number of failed checks
func (hc *HealthChecker) FailureCount() int64 {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.failureCount
}
