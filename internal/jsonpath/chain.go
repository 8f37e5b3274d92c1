package jsonpath

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// applyFunc runs one chained post-processor function over the already
// path-resolved value.
func applyFunc(call chainCall, v any) (any, error) {
	switch call.name {
	case "length", "size", "count":
		return chainLength(v), nil
	case "first":
		list := asList(v)
		if len(list) == 0 {
			return nil, fmt.Errorf("jsonpath: first() on empty list")
		}
		return list[0], nil
	case "last":
		list := asList(v)
		if len(list) == 0 {
			return nil, fmt.Errorf("jsonpath: last() on empty list")
		}
		return list[len(list)-1], nil
	case "sum":
		return reduceNumeric(v, 0, func(acc, x float64) float64 { return acc + x })
	case "avg":
		list := asList(v)
		if len(list) == 0 {
			return 0.0, nil
		}
		sum, err := reduceNumeric(v, 0, func(acc, x float64) float64 { return acc + x })
		if err != nil {
			return nil, err
		}
		return sum.(float64) / float64(len(list)), nil
	case "min":
		return minMax(v, true)
	case "max":
		return minMax(v, false)
	case "reverse":
		list := asList(v)
		out := make([]any, len(list))
		for i, x := range list {
			out[len(list)-1-i] = x
		}
		return out, nil
	case "sort":
		list := append([]any(nil), asList(v)...)
		sort.Slice(list, func(i, j int) bool {
			fi, iok := toFloat(list[i])
			fj, jok := toFloat(list[j])
			if iok && jok {
				return fi < fj
			}
			return fmt.Sprintf("%v", list[i]) < fmt.Sprintf("%v", list[j])
		})
		return list, nil
	case "unique":
		list := asList(v)
		seen := make(map[string]bool, len(list))
		out := make([]any, 0, len(list))
		for _, x := range list {
			key := fmt.Sprintf("%v", x)
			if !seen[key] {
				seen[key] = true
				out = append(out, x)
			}
		}
		return out, nil
	case "flatten":
		var out []any
		var walk func(any)
		walk = func(x any) {
			if nested, ok := x.([]any); ok {
				for _, n := range nested {
					walk(n)
				}
				return
			}
			out = append(out, x)
		}
		for _, x := range asList(v) {
			walk(x)
		}
		return out, nil
	case "keys":
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("jsonpath: keys() requires an object")
		}
		out := make([]any, 0, len(m))
		for k := range m {
			out = append(out, k)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].(string) < out[j].(string) })
		return out, nil
	case "values":
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("jsonpath: values() requires an object")
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = m[k]
		}
		return out, nil
	case "upper":
		return strings.ToUpper(asString(v)), nil
	case "lower":
		return strings.ToLower(asString(v)), nil
	case "trim":
		return strings.TrimSpace(asString(v)), nil
	case "split":
		sep := call.arg
		if sep == "" {
			sep = ","
		}
		parts := strings.Split(asString(v), sep)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	case "join":
		sep := call.arg
		if sep == "" {
			sep = ","
		}
		list := asList(v)
		parts := make([]string, len(list))
		for i, x := range list {
			parts[i] = fmt.Sprintf("%v", x)
		}
		return strings.Join(parts, sep), nil
	case "contains":
		return strings.Contains(asString(v), call.arg), nil
	case "starts_with":
		return strings.HasPrefix(asString(v), call.arg), nil
	case "ends_with":
		return strings.HasSuffix(asString(v), call.arg), nil
	case "matches":
		re, err := regexp.Compile(call.arg)
		if err != nil {
			return nil, fmt.Errorf("jsonpath: matches(): invalid pattern %q: %w", call.arg, err)
		}
		return re.MatchString(asString(v)), nil
	default:
		return nil, fmt.Errorf("jsonpath: unknown chain function %q", call.name)
	}
}

func chainLength(v any) int {
	switch t := v.(type) {
	case []any:
		return len(t)
	case map[string]any:
		return len(t)
	case string:
		return len(t)
	case nil:
		return 0
	default:
		return 1
	}
}

func asList(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	if v == nil {
		return nil
	}
	return []any{v}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func reduceNumeric(v any, init float64, fn func(acc, x float64) float64) (any, error) {
	acc := init
	for _, x := range asList(v) {
		f, ok := toFloat(x)
		if !ok {
			return nil, fmt.Errorf("jsonpath: non-numeric element %v in numeric reduction", x)
		}
		acc = fn(acc, f)
	}
	return acc, nil
}

func minMax(v any, wantMin bool) (any, error) {
	list := asList(v)
	if len(list) == 0 {
		return nil, fmt.Errorf("jsonpath: min/max on empty list")
	}
	best, ok := toFloat(list[0])
	if !ok {
		return nil, fmt.Errorf("jsonpath: non-numeric element %v", list[0])
	}
	for _, x := range list[1:] {
		f, ok := toFloat(x)
		if !ok {
			return nil, fmt.Errorf("jsonpath: non-numeric element %v", x)
		}
		if (wantMin && f < best) || (!wantMin && f > best) {
			best = f
		}
	}
	return best, nil
}
