package frame

import (
	"strings"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"go.uber.org/zap"
)

// EmptyPolicy decides what happens when an extraction produces no rows.
type EmptyPolicy string

const (
	// EmptyWarn logs a warning and returns an empty frame
	EmptyWarn EmptyPolicy = "warn"
	// EmptySkip returns a skip error so the caller can stop downstream work
	EmptySkip EmptyPolicy = "skip"
	// EmptyFail returns an error
	EmptyFail EmptyPolicy = "fail"
)

// ParseEmptyPolicy parses a policy name; an empty string means EmptyWarn.
func ParseEmptyPolicy(s string) (EmptyPolicy, error) {
	switch p := EmptyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return EmptyWarn, nil
	case EmptyWarn, EmptySkip, EmptyFail:
		return p, nil
	default:
		return "", errors.Newf(errors.ErrorTypeConfig, "unknown empty result policy %q (want warn, skip or fail)", s)
	}
}

// HandleEmpty applies the policy to an empty result described by message.
func (p EmptyPolicy) HandleEmpty(log *zap.Logger, message string) error {
	switch p {
	case EmptySkip:
		log.Info(message)
		return errors.New(errors.ErrorTypeSkip, message)
	case EmptyFail:
		return errors.New(errors.ErrorTypeEmpty, message)
	default:
		log.Warn(message)
		return nil
	}
}

// IsSkip reports whether err asks the caller to skip downstream work.
func IsSkip(err error) bool {
	return errors.HasType(err, errors.ErrorTypeSkip)
}
