package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
)

const partialUnexpectedLimit = 20

type checkFunc func(f *frame.Frame, kw kwargs) (ResultDetail, bool, error)

var expectations = map[string]checkFunc{
	"expect_column_to_exist":                     expectColumnToExist,
	"expect_table_columns_to_match_ordered_list": expectColumnsOrdered,
	"expect_table_columns_to_match_set":          expectColumnsSet,
	"expect_table_column_count_to_equal":         expectColumnCount,
	"expect_table_row_count_to_equal":            expectRowCount,
	"expect_table_row_count_to_be_between":       expectRowCountBetween,
	"expect_column_values_to_not_be_null":        expectNotNull,
	"expect_column_values_to_be_null":            expectNull,
	"expect_column_values_to_be_unique":          expectUnique,
	"expect_column_values_to_be_in_set":          expectInSet(true),
	"expect_column_values_to_not_be_in_set":      expectInSet(false),
	"expect_column_values_to_match_regex":        expectRegex,
	"expect_column_value_lengths_to_be_between":  expectLengthBetween,
	"expect_column_values_to_be_between":         expectValuesBetween,
}

// SupportedExpectations lists the expectation types that can be evaluated.
func SupportedExpectations() []string {
	names := make([]string, 0, len(expectations))
	for n := range expectations {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Evaluate runs one expectation against f. Parameters referenced with
// {"$PARAMETER": name} are resolved from params first. An expectation that
// cannot be evaluated fails with its exception info set.
func Evaluate(f *frame.Frame, exp Expectation, params map[string]interface{}) ExpectationResult {
	res := ExpectationResult{Expectation: exp}

	resolved, err := ResolveParameters(exp.Kwargs, params)
	if err != nil {
		res.ExceptionInfo = ExceptionInfo{RaisedException: true, ExceptionMessage: err.Error()}
		return res
	}
	res.Expectation.Kwargs = resolved

	check, ok := expectations[exp.Type]
	if !ok {
		res.ExceptionInfo = ExceptionInfo{
			RaisedException:  true,
			ExceptionMessage: fmt.Sprintf("unsupported expectation type %q", exp.Type),
		}
		return res
	}

	detail, success, err := check(f, kwargs(resolved))
	if err != nil {
		res.ExceptionInfo = ExceptionInfo{RaisedException: true, ExceptionMessage: err.Error()}
		return res
	}
	res.Success = success
	res.Result = detail
	return res
}

type kwargs map[string]interface{}

func (k kwargs) str(name string) (string, error) {
	v, ok := k[name]
	if !ok || v == nil {
		return "", fmt.Errorf("missing required argument %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", name)
	}
	return s, nil
}

func (k kwargs) number(name string) (float64, bool, error) {
	v, ok := k[name]
	if !ok || v == nil {
		return 0, false, nil
	}
	n, ok := toFloat(v)
	if !ok {
		return 0, false, fmt.Errorf("argument %q must be a number", name)
	}
	return n, true, nil
}

func (k kwargs) requiredNumber(name string) (float64, error) {
	n, ok, err := k.number(name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("missing required argument %q", name)
	}
	return n, nil
}

func (k kwargs) list(name string) ([]interface{}, error) {
	v, ok := k[name]
	if !ok || v == nil {
		return nil, fmt.Errorf("missing required argument %q", name)
	}
	switch l := v.(type) {
	case []interface{}:
		return l, nil
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("argument %q must be a list", name)
	}
}

func (k kwargs) boolean(name string, def bool) bool {
	if b, ok := k[name].(bool); ok {
		return b
	}
	return def
}

func (k kwargs) mostly() (float64, error) {
	m, ok, err := k.number("mostly")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	if m < 0 || m > 1 {
		return 0, fmt.Errorf("mostly must be between 0 and 1, got %v", m)
	}
	return m, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// normalize maps values to comparable keys so 5, int64(5) and 5.0 are equal.
func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case string, bool:
		return n
	case time.Time:
		return n.UTC().Format(time.RFC3339Nano)
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return fmt.Sprint(v)
}

func toStringList(values []interface{}) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func expectColumnToExist(f *frame.Frame, kw kwargs) (ResultDetail, bool, error) {
	col, err := kw.str("column")
	if err != nil {
		return ResultDetail{}, false, err
	}
	idx, hasIdx, err := kw.number("column_index")
	if err != nil {
		return ResultDetail{}, false, err
	}
	for i, c := range f.Columns {
		if c == col {
			return ResultDetail{ObservedValue: i}, !hasIdx || int(idx) == i, nil
		}
	}
	return ResultDetail{}, false, nil
}

func expectColumnsOrdered(f *frame.Frame, kw kwargs) (ResultDetail, bool, error) {
	want, err := kw.list("column_list")
	if err != nil {
		return ResultDetail{}, false, err
	}
	expected := toStringList(want)
	detail := ResultDetail{ObservedValue: append([]string(nil), f.Columns...)}
	if len(expected) != len(f.Columns) {
		return detail, false, nil
	}
	for i := range expected {
		if expected[i] != f.Columns[i] {
			return detail, false, nil
		}
	}
	return detail, true, nil
}

func expectColumnsSet(f *frame.Frame, kw kwargs) (ResultDetail, bool, error) {
	want, err := kw.list("column_set")
	if err != nil {
		return ResultDetail{}, false, err
	}
	exact := kw.boolean("exact_match", true)

	have := make(map[string]bool, len(f.Columns))
	for _, c := range f.Columns {
		have[c] = true
	}
	expected := make(map[string]bool, len(want))
	for _, c := range toStringList(want) {
		expected[c] = true
	}

	detail := ResultDetail{ObservedValue: append([]string(nil), f.Columns...)}
	for c := range expected {
		if !have[c] {
			return detail, false, nil
		}
	}
	if exact && len(have) != len(expected) {
		return detail, false, nil
	}
	return detail, true, nil
}

func expectColumnCount(f *frame.Frame, kw kwargs) (ResultDetail, bool, error) {
	want, err := kw.requiredNumber("value")
	if err != nil {
		return ResultDetail{}, false, err
	}
	return ResultDetail{ObservedValue: len(f.Columns)}, len(f.Columns) == int(want), nil
}

func expectRowCount(f *frame.Frame, kw kwargs) (ResultDetail, bool, error) {
	want, err := kw.requiredNumber("value")
	if err != nil {
		return ResultDetail{}, false, err
	}
	return ResultDetail{ObservedValue: f.Len()}, f.Len() == int(want), nil
}

func expectRowCountBetween(f *frame.Frame, kw kwargs) (ResultDetail, bool, error) {
	ok, err := between(kw, float64(f.Len()))
	return ResultDetail{ObservedValue: f.Len()}, ok, err
}

func between(kw kwargs, v float64) (bool, error) {
	lo, hasLo, err := kw.number("min_value")
	if err != nil {
		return false, err
	}
	hi, hasHi, err := kw.number("max_value")
	if err != nil {
		return false, err
	}
	if !hasLo && !hasHi {
		return false, fmt.Errorf("min_value and max_value cannot both be empty")
	}
	if hasLo {
		if kw.boolean("strict_min", false) && v <= lo || v < lo {
			return false, nil
		}
	}
	if hasHi {
		if kw.boolean("strict_max", false) && v >= hi || v > hi {
			return false, nil
		}
	}
	return true, nil
}

type nullMode int

const (
	// skipNulls evaluates the predicate on non-null values only.
	skipNulls nullMode = iota
	// nullsUnexpected counts every null as unexpected.
	nullsUnexpected
	// valuesUnexpected counts every non-null as unexpected.
	valuesUnexpected
)

// columnMap evaluates a per value predicate over a column. unexpected is
// only called in skipNulls mode.
func columnMap(f *frame.Frame, kw kwargs, mode nullMode, unexpected func(v interface{}) (bool, error)) (ResultDetail, bool, error) {
	col, err := kw.str("column")
	if err != nil {
		return ResultDetail{}, false, err
	}
	if !f.HasColumn(col) {
		return ResultDetail{}, false, fmt.Errorf("column %q not found", col)
	}
	mostly, err := kw.mostly()
	if err != nil {
		return ResultDetail{}, false, err
	}

	values := f.Column(col)
	detail := ResultDetail{ElementCount: len(values)}
	evaluated := 0

	for _, v := range values {
		if v == nil {
			detail.MissingCount++
		}
		bad := false
		switch mode {
		case nullsUnexpected:
			evaluated++
			bad = v == nil
		case valuesUnexpected:
			evaluated++
			bad = v != nil
		default:
			if v == nil {
				continue
			}
			evaluated++
			if bad, err = unexpected(v); err != nil {
				return ResultDetail{}, false, err
			}
		}
		if bad {
			detail.UnexpectedCount++
			if len(detail.PartialUnexpectedList) < partialUnexpectedLimit {
				detail.PartialUnexpectedList = append(detail.PartialUnexpectedList, v)
			}
		}
	}

	if evaluated == 0 {
		return detail, true, nil
	}
	detail.UnexpectedPercent = 100 * float64(detail.UnexpectedCount) / float64(evaluated)
	passed := float64(evaluated-detail.UnexpectedCount) / float64(evaluated)
	return detail, passed >= mostly, nil
}

func expectNotNull(f *frame.Frame, kw kwargs) (ResultDetail, bool, error) {
	return columnMap(f, kw, nullsUnexpected, nil)
}

func expectNull(f *frame.Frame, kw kwargs) (ResultDetail, bool, error) {
	return columnMap(f, kw, valuesUnexpected, nil)
}

func expectUnique(f *frame.Frame, kw kwargs) (ResultDetail, bool, error) {
	col, err := kw.str("column")
	if err != nil {
		return ResultDetail{}, false, err
	}
	counts := make(map[interface{}]int)
	if f.HasColumn(col) {
		for _, v := range f.Column(col) {
			if v != nil {
				counts[normalize(v)]++
			}
		}
	}
	return columnMap(f, kw, skipNulls, func(v interface{}) (bool, error) {
		return counts[normalize(v)] > 1, nil
	})
}

func expectInSet(member bool) checkFunc {
	return func(f *frame.Frame, kw kwargs) (ResultDetail, bool, error) {
		set, err := kw.list("value_set")
		if err != nil {
			return ResultDetail{}, false, err
		}
		allowed := make(map[interface{}]bool, len(set))
		for _, v := range set {
			allowed[normalize(v)] = true
		}
		return columnMap(f, kw, skipNulls, func(v interface{}) (bool, error) {
			return allowed[normalize(v)] != member, nil
		})
	}
}

func expectRegex(f *frame.Frame, kw kwargs) (ResultDetail, bool, error) {
	pattern, err := kw.str("regex")
	if err != nil {
		return ResultDetail{}, false, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ResultDetail{}, false, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	return columnMap(f, kw, skipNulls, func(v interface{}) (bool, error) {
		return !re.MatchString(fmt.Sprint(v)), nil
	})
}

func expectLengthBetween(f *frame.Frame, kw kwargs) (ResultDetail, bool, error) {
	return columnMap(f, kw, skipNulls, func(v interface{}) (bool, error) {
		ok, err := between(kw, float64(utf8.RuneCountInString(fmt.Sprint(v))))
		return !ok, err
	})
}

func expectValuesBetween(f *frame.Frame, kw kwargs) (ResultDetail, bool, error) {
	return columnMap(f, kw, skipNulls, func(v interface{}) (bool, error) {
		n, ok := toFloat(v)
		if !ok {
			return true, nil
		}
		inRange, err := between(kw, n)
		return !inRange, err
	})
}
