package validation

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/ajitpratap0/nebula-connectors/pkg/metrics"
	"github.com/ajitpratap0/nebula-connectors/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Task validates frames against every suite in an expectations directory.
// The project directory is the parent of ExpectationsPath.
type Task struct {
	ExpectationsPath     string
	EvaluationParameters map[string]interface{}

	logger *zap.Logger
	now    func() time.Time
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// WithTaskLogger sets the task logger.
func WithTaskLogger(l *zap.Logger) TaskOption {
	return func(t *Task) { t.logger = l }
}

// WithEvaluationParameters sets the values substituted for $PARAMETER kwargs.
func WithEvaluationParameters(params map[string]interface{}) TaskOption {
	return func(t *Task) { t.EvaluationParameters = params }
}

// WithTaskClock replaces time.Now, used for run ids.
func WithTaskClock(now func() time.Time) TaskOption {
	return func(t *Task) { t.now = now }
}

// NewTask creates a validation task for the suites in expectationsPath.
func NewTask(expectationsPath string, opts ...TaskOption) *Task {
	t := &Task{
		ExpectationsPath: expectationsPath,
		logger:           zap.NewNop(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ProjectPath returns the directory results and data docs are written to.
func (t *Task) ProjectPath() string {
	return filepath.Dir(filepath.Clean(t.ExpectationsPath))
}

// Run evaluates f against every suite, stores the results and evaluation
// parameters and rebuilds the data docs. When any expectation fails the
// result is returned together with a validation error.
func (t *Task) Run(ctx context.Context, f *frame.Frame) (result *OperatorResult, err error) {
	ctx, span := observability.StartSpan(ctx, "validation", "run",
		attribute.String("expectations_path", t.ExpectationsPath))
	defer func() { span.End(err) }()

	suites, err := LoadSuites(t.ExpectationsPath)
	if err != nil {
		return nil, err
	}
	if len(suites) == 0 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "no expectation suites found in %s", t.ExpectationsPath)
	}

	store := NewStore(t.ProjectPath())
	runID := NewRunID(t.now())
	result = &OperatorResult{RunID: runID, Success: true}

	t.logger.Info("Beginning validation run...")

	for _, suite := range suites {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vr := t.validate(f, suite, runID)
		result.Results = append(result.Results, vr)
		result.Success = result.Success && vr.Success

		if _, err := store.SaveResult(vr); err != nil {
			return nil, err
		}
		if _, err := store.SaveParameters(suite.Name, runID, t.EvaluationParameters); err != nil {
			return nil, err
		}
	}

	docsPath, err := store.BuildDataDocs()
	if err != nil {
		return nil, err
	}

	successful, evaluated := result.Stats()
	status, level := "success", zap.InfoLevel
	if !result.Success {
		status, level = "failure", zap.ErrorLevel
	}
	if ce := t.logger.Check(level, fmt.Sprintf("Validation finished with status '%s'. %d/%d test(s) passed.", status, successful, evaluated)); ce != nil {
		ce.Write(zap.String("run_id", runID))
	}
	t.logger.Info(fmt.Sprintf("To explore the docs, open %s in a browser.", docsPath))

	span.SetAttribute("success", result.Success)
	if !result.Success {
		return result, errors.Newf(errors.ErrorTypeValidation,
			"validation failed: %d of %d expectations passed", successful, evaluated).
			WithDetail("run_id", runID)
	}
	return result, nil
}

func (t *Task) validate(f *frame.Frame, suite *Suite, runID string) *ValidationResult {
	vr := &ValidationResult{
		Suite:                suite.Name,
		RunID:                runID,
		RunTime:              t.now().UTC(),
		EvaluationParameters: t.EvaluationParameters,
		Meta:                 suite.Meta,
	}
	for _, exp := range suite.Expectations {
		er := Evaluate(f, exp, t.EvaluationParameters)
		outcome := "success"
		if !er.Success {
			outcome = "failure"
			t.logger.Debug("expectation failed",
				zap.String("suite", suite.Name),
				zap.String("expectation", exp.Type),
				zap.Int("unexpected", er.Result.UnexpectedCount),
				zap.String("exception", er.ExceptionInfo.ExceptionMessage))
		}
		metrics.ValidationResults.WithLabelValues(suite.Name, outcome).Inc()
		vr.Results = append(vr.Results, er)
	}
	vr.summarize()
	return vr
}
