package validation

import (
	"time"
)

// ExpectationResult is the outcome of one expectation.
type ExpectationResult struct {
	Expectation   Expectation   `json:"expectation_config"`
	Success       bool          `json:"success"`
	Result        ResultDetail  `json:"result"`
	ExceptionInfo ExceptionInfo `json:"exception_info"`
}

// ResultDetail carries the observed value of table expectations and the
// unexpected counts of column expectations.
type ResultDetail struct {
	ObservedValue         interface{}   `json:"observed_value,omitempty"`
	ElementCount          int           `json:"element_count,omitempty"`
	MissingCount          int           `json:"missing_count,omitempty"`
	UnexpectedCount       int           `json:"unexpected_count,omitempty"`
	UnexpectedPercent     float64       `json:"unexpected_percent,omitempty"`
	PartialUnexpectedList []interface{} `json:"partial_unexpected_list,omitempty"`
}

// ExceptionInfo records an expectation that could not be evaluated.
type ExceptionInfo struct {
	RaisedException  bool   `json:"raised_exception"`
	ExceptionMessage string `json:"exception_message,omitempty"`
}

// Statistics summarises a validation run.
type Statistics struct {
	EvaluatedExpectations    int     `json:"evaluated_expectations"`
	SuccessfulExpectations   int     `json:"successful_expectations"`
	UnsuccessfulExpectations int     `json:"unsuccessful_expectations"`
	SuccessPercent           float64 `json:"success_percent"`
}

// ValidationResult is the outcome of validating a frame against one suite.
type ValidationResult struct {
	Suite                string                 `json:"suite_name"`
	RunID                string                 `json:"run_id"`
	RunTime              time.Time              `json:"run_time"`
	Success              bool                   `json:"success"`
	Statistics           Statistics             `json:"statistics"`
	Results              []ExpectationResult    `json:"results"`
	EvaluationParameters map[string]interface{} `json:"evaluation_parameters,omitempty"`
	Meta                 map[string]interface{} `json:"meta,omitempty"`
}

func (r *ValidationResult) summarize() {
	stats := Statistics{EvaluatedExpectations: len(r.Results)}
	for _, er := range r.Results {
		if er.Success {
			stats.SuccessfulExpectations++
		}
	}
	stats.UnsuccessfulExpectations = stats.EvaluatedExpectations - stats.SuccessfulExpectations
	if stats.EvaluatedExpectations > 0 {
		stats.SuccessPercent = 100 * float64(stats.SuccessfulExpectations) / float64(stats.EvaluatedExpectations)
	}
	r.Statistics = stats
	r.Success = stats.UnsuccessfulExpectations == 0
}

// OperatorResult groups the suite results of one run.
type OperatorResult struct {
	RunID   string              `json:"run_id"`
	Success bool                `json:"success"`
	Results []*ValidationResult `json:"run_results"`
}

// Stats returns the successful and evaluated expectation counts across
// every suite.
func (o *OperatorResult) Stats() (successful, evaluated int) {
	for _, r := range o.Results {
		successful += r.Statistics.SuccessfulExpectations
		evaluated += r.Statistics.EvaluatedExpectations
	}
	return successful, evaluated
}
