package errors_test

import (
	"fmt"
	"io"
	"testing"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// Example demonstrates basic error creation with details.
func Example() {
	err := errors.New(errors.ErrorTypeCredential, "missing credentials").
		WithDetail("config_key", "outlook")

	fmt.Println(err.Error())

	// Output:
	// credential: missing credentials
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.EOF, errors.ErrorTypeConnection, "failed to list mail folders").
		WithDetail("mailbox", "user@example.com")

	if errors.IsType(err, errors.ErrorTypeConnection) {
		fmt.Println("connection error")
	}
	if errors.Is(err, io.EOF) {
		fmt.Println("caused by EOF")
	}

	// Output:
	// connection error
	// caused by EOF
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.ErrorTypeData, "nothing"))
	assert.Nil(t, errors.Wrapf(nil, errors.ErrorTypeData, "nothing %d", 1))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection", errors.New(errors.ErrorTypeConnection, "x"), true},
		{"rate limit", errors.New(errors.ErrorTypeRateLimit, "x"), true},
		{"timeout", errors.New(errors.ErrorTypeTimeout, "x"), true},
		{"config", errors.New(errors.ErrorTypeConfig, "x"), false},
		{"plain", io.EOF, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.IsRetryable(tt.err))
		})
	}
}

func TestHasTypeWalksChain(t *testing.T) {
	inner := errors.New(errors.ErrorTypeEmpty, "no rows")
	outer := errors.Wrap(inner, errors.ErrorTypeData, "flow failed")

	assert.False(t, errors.IsType(outer, errors.ErrorTypeEmpty))
	assert.True(t, errors.HasType(outer, errors.ErrorTypeEmpty))
	assert.True(t, errors.HasType(outer, errors.ErrorTypeData))
	assert.False(t, errors.HasType(outer, errors.ErrorTypeConfig))
}

func TestWrapfFormatsMessage(t *testing.T) {
	err := errors.Wrapf(io.ErrUnexpectedEOF, errors.ErrorTypeQuery, "query %q failed", "SELECT Id FROM Account")
	assert.Equal(t, `query: query "SELECT Id FROM Account" failed: unexpected EOF`, err.Error())
	assert.NotEmpty(t, err.Stack)
}
