package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestReplaceRestoresPrevious(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	Warn("captured")
	restore()
	Warn("not captured")

	assert.Equal(t, 1, logs.FilterMessage("captured").Len())
	assert.Equal(t, 0, logs.FilterMessage("not captured").Len())
}
