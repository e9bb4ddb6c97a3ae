package validation

import (
	"fmt"
	"sort"
)

// parameterKey marks a kwarg whose value is looked up in the run's
// evaluation parameters.
const parameterKey = "$PARAMETER"

// ResolveParameters returns a copy of kwargs with every {"$PARAMETER": name}
// value replaced from params. Nested maps and lists are resolved as well.
func ResolveParameters(kwargs, params map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(kwargs))
	for k, v := range kwargs {
		rv, err := resolveValue(v, params)
		if err != nil {
			return nil, fmt.Errorf("kwarg %q: %w", k, err)
		}
		out[k] = rv
	}
	return out, nil
}

func resolveValue(v interface{}, params map[string]interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		if name, ok := t[parameterKey]; ok && len(t) == 1 {
			key := fmt.Sprint(name)
			pv, found := params[key]
			if !found {
				return nil, fmt.Errorf("evaluation parameter %q is not defined", key)
			}
			return pv, nil
		}
		return ResolveParameters(t, params)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			rv, err := resolveValue(item, params)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
