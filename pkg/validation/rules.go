package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
)

// Frame rule names accepted by CheckFrame.
const (
	RuleColumnListToMatch  = "column_list_to_match"
	RuleColumnSize         = "column_size"
	RuleColumnUniqueValues = "column_unique_values"
	RuleDatasetRowCount    = "dataset_row_count"
	RuleColumnMatchRegex   = "column_match_regex"
)

type frameRule func(f *frame.Frame, arg interface{}) ([]string, error)

var frameRules = map[string]frameRule{
	RuleColumnListToMatch:  checkColumnList,
	RuleColumnSize:         checkColumnSize,
	RuleColumnUniqueValues: checkUniqueValues,
	RuleDatasetRowCount:    checkRowCount,
	RuleColumnMatchRegex:   checkColumnRegex,
}

// CheckFrame applies quick structural rules to a frame. Every rule is
// evaluated and the failures are reported together as one validation
// error. An unknown rule or a malformed argument is a config error.
func CheckFrame(f *frame.Frame, rules map[string]interface{}) error {
	names := sortedKeys(rules)
	var failures []string

	for _, name := range names {
		check, ok := frameRules[name]
		if !ok {
			return errors.Newf(errors.ErrorTypeConfig, "unknown frame validation rule %q", name)
		}
		msgs, err := check(f, rules[name])
		if err != nil {
			return errors.Wrapf(err, errors.ErrorTypeConfig, "invalid %s rule", name)
		}
		failures = append(failures, msgs...)
	}

	if len(failures) > 0 {
		return errors.Newf(errors.ErrorTypeValidation, "frame validation failed: %s", strings.Join(failures, "; ")).
			WithDetail("failures", failures)
	}
	return nil
}

func stringList(arg interface{}) ([]string, error) {
	switch l := arg.(type) {
	case []string:
		return l, nil
	case []interface{}:
		return toStringList(l), nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", arg)
	}
}

func stringMap(arg interface{}) (map[string]interface{}, error) {
	switch m := arg.(type) {
	case map[string]interface{}:
		return m, nil
	case map[string]string:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	case map[string]int:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a mapping, got %T", arg)
	}
}

func checkColumnList(f *frame.Frame, arg interface{}) ([]string, error) {
	want, err := stringList(arg)
	if err != nil {
		return nil, err
	}
	expected := make(map[string]bool, len(want))
	for _, c := range want {
		if expected[c] {
			return nil, fmt.Errorf("column %q is listed twice", c)
		}
		expected[c] = true
	}
	have := make(map[string]bool, len(f.Columns))
	for _, c := range f.Columns {
		have[c] = true
	}

	match := len(expected) == len(have)
	for c := range expected {
		match = match && have[c]
	}
	if !match {
		return []string{fmt.Sprintf("columns %v do not match expected %v", f.Columns, want)}, nil
	}
	return nil, nil
}

func checkColumnSize(f *frame.Frame, arg interface{}) ([]string, error) {
	sizes, err := stringMap(arg)
	if err != nil {
		return nil, err
	}
	var failures []string
	for _, col := range sortedKeys(sizes) {
		size, ok := toFloat(sizes[col])
		if !ok {
			return nil, fmt.Errorf("size of column %q must be a number", col)
		}
		if !f.HasColumn(col) {
			failures = append(failures, fmt.Sprintf("column %q not found", col))
			continue
		}
		for _, v := range f.Column(col) {
			if v == nil || len([]rune(fmt.Sprint(v))) != int(size) {
				failures = append(failures, fmt.Sprintf("column %q has values not of length %d", col, int(size)))
				break
			}
		}
	}
	return failures, nil
}

func checkUniqueValues(f *frame.Frame, arg interface{}) ([]string, error) {
	cols, err := stringList(arg)
	if err != nil {
		return nil, err
	}
	var failures []string
	for _, col := range cols {
		if !f.HasColumn(col) {
			failures = append(failures, fmt.Sprintf("column %q not found", col))
			continue
		}
		seen := make(map[interface{}]bool)
		for _, v := range f.Column(col) {
			key := normalize(v)
			if seen[key] {
				failures = append(failures, fmt.Sprintf("column %q has duplicate values", col))
				break
			}
			seen[key] = true
		}
	}
	return failures, nil
}

func checkRowCount(f *frame.Frame, arg interface{}) ([]string, error) {
	bounds, err := stringMap(arg)
	if err != nil {
		return nil, err
	}
	n := f.Len()
	if v, ok := bounds["min"]; ok {
		lo, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("min must be a number")
		}
		if float64(n) < lo {
			return []string{fmt.Sprintf("row count %d is below minimum %v", n, v)}, nil
		}
	}
	if v, ok := bounds["max"]; ok {
		hi, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("max must be a number")
		}
		if float64(n) > hi {
			return []string{fmt.Sprintf("row count %d is above maximum %v", n, v)}, nil
		}
	}
	return nil, nil
}

func checkColumnRegex(f *frame.Frame, arg interface{}) ([]string, error) {
	patterns, err := stringMap(arg)
	if err != nil {
		return nil, err
	}
	var failures []string
	for _, col := range sortedKeys(patterns) {
		pattern := fmt.Sprint(patterns[col])
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex for column %q: %w", col, err)
		}
		if !f.HasColumn(col) {
			failures = append(failures, fmt.Sprintf("column %q not found", col))
			continue
		}
		for _, v := range f.Column(col) {
			if v == nil || !re.MatchString(fmt.Sprint(v)) {
				failures = append(failures, fmt.Sprintf("column %q has values not matching %s", col, pattern))
				break
			}
		}
	}
	return failures, nil
}
