package validation

import (
	"testing"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/stretchr/testify/assert"
)

func rulesFrame() *frame.Frame {
	f := frame.New("crm", "ID", "ParentLanguageNo", "SpracheText")
	f.Append(frame.Row{"ID": 1, "ParentLanguageNo": "1", "SpracheText": "TE_A"})
	f.Append(frame.Row{"ID": 2, "ParentLanguageNo": "2", "SpracheText": "TE_B"})
	return f
}

func TestCheckFramePasses(t *testing.T) {
	err := CheckFrame(rulesFrame(), map[string]interface{}{
		RuleColumnListToMatch:  []interface{}{"SpracheText", "ID", "ParentLanguageNo"},
		RuleColumnSize:         map[string]interface{}{"ParentLanguageNo": 1},
		RuleColumnUniqueValues: []interface{}{"ID"},
		RuleDatasetRowCount:    map[string]interface{}{"min": 0, "max": 10},
		RuleColumnMatchRegex:   map[string]interface{}{"SpracheText": "TE_.*"},
	})
	assert.NoError(t, err)
}

func TestCheckFrameFailures(t *testing.T) {
	tests := []struct {
		name  string
		rules map[string]interface{}
	}{
		{"columns", map[string]interface{}{RuleColumnListToMatch: []string{"test", "wrong", "columns"}}},
		{"size", map[string]interface{}{RuleColumnSize: map[string]interface{}{"SpracheText": 2}}},
		{"unique", map[string]interface{}{RuleColumnUniqueValues: []interface{}{"missing"}}},
		{"row count", map[string]interface{}{RuleDatasetRowCount: map[string]interface{}{"max": 1}}},
		{"regex", map[string]interface{}{RuleColumnMatchRegex: map[string]string{"SpracheText": "^TE_A$"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFrame(rulesFrame(), tt.rules)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), "got %v", err)
		})
	}
}

func TestCheckFrameAggregatesFailures(t *testing.T) {
	f := rulesFrame()
	f.Append(frame.Row{"ID": 2, "ParentLanguageNo": "3", "SpracheText": "TE_C"})

	err := CheckFrame(f, map[string]interface{}{
		RuleColumnUniqueValues: []interface{}{"ID"},
		RuleDatasetRowCount:    map[string]interface{}{"max": 2},
	})
	var e *errors.Error
	assert.True(t, errors.As(err, &e))
	assert.Len(t, e.Details["failures"], 2)
}

func TestCheckFrameConfigErrors(t *testing.T) {
	err := CheckFrame(rulesFrame(), map[string]interface{}{"column_sum": 3})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	err = CheckFrame(rulesFrame(), map[string]interface{}{RuleColumnListToMatch: "ID"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestCheckFrameColumnListRejectsDuplicates(t *testing.T) {
	f := frame.New("crm", "a", "b")
	f.Append(frame.Row{"a": 1, "b": 2})

	err := CheckFrame(f, map[string]interface{}{RuleColumnListToMatch: []interface{}{"a", "a", "b"}})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "got %v", err)
	assert.Contains(t, err.Error(), `column "a" is listed twice`)

	assert.NoError(t, CheckFrame(f, map[string]interface{}{RuleColumnListToMatch: []interface{}{"b", "a"}}))
}
