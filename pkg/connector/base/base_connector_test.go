package base

import (
	"context"
	"testing"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestConnector(t *testing.T, attempts int) *BaseConnector {
	t.Helper()
	bc := NewBaseConnector("base_test", core.ConnectorTypeSource, "1.0.0")
	bc.SetLogger(zaptest.NewLogger(t))

	cfg := config.NewBaseConfig("base_test", "test")
	cfg.Reliability.RetryAttempts = attempts
	cfg.Reliability.RetryDelay = time.Millisecond
	require.NoError(t, bc.Initialize(context.Background(), cfg))
	return bc
}

func TestExecuteWithRetryRetriesTransientErrors(t *testing.T) {
	bc := newTestConnector(t, 3)

	calls := 0
	err := bc.ExecuteWithRetry(context.Background(), "authenticate", func() error {
		calls++
		if calls < 3 {
			return errors.New(errors.ErrorTypeConnection, "connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetryStopsOnPermanentErrors(t *testing.T) {
	bc := newTestConnector(t, 5)

	calls := 0
	err := bc.ExecuteWithRetry(context.Background(), "authenticate", func() error {
		calls++
		return errors.New(errors.ErrorTypeCredential, "bad secret")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCredential))
}

func TestExecuteWithRetryExhausts(t *testing.T) {
	bc := newTestConnector(t, 2)

	calls := 0
	err := bc.ExecuteWithRetry(context.Background(), "authenticate", func() error {
		calls++
		return errors.New(errors.ErrorTypeTimeout, "slow")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "all 2 attempts failed")
}

func TestHealthAndClose(t *testing.T) {
	bc := newTestConnector(t, 1)
	require.NoError(t, bc.Health(context.Background()))

	bc.UpdateHealth(false, map[string]interface{}{"reason": "auth"})
	assert.Error(t, bc.Health(context.Background()))
	assert.Equal(t, "unhealthy", bc.Metrics()["health_status"])

	require.NoError(t, bc.Close(context.Background()))
	require.NoError(t, bc.Close(context.Background()))
	assert.Error(t, bc.Health(context.Background()))
}

func TestRetryDelayBounded(t *testing.T) {
	rp := NewRetryPolicy(10, time.Second)
	rp.RandomizeFactor = 0
	assert.Equal(t, time.Second, rp.GetDelay(0))
	assert.Equal(t, 4*time.Second, rp.GetDelay(2))
	assert.Equal(t, time.Minute, rp.GetDelay(9))
}
