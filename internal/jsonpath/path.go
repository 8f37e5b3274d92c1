// Package jsonpath implements the JSONPath Evaluator (C4): a constrained
// JSONPath dialect ($ , .field, [i], [*], .., filters, chained
// post-processor functions) plus the DB-result root conventions ($.length,
// $[i].col).
//
// Grounded on tidwall/gjson, the library shwoo03-Project's fuzzer extractor
// (internal/state/extractor.go) pulls values out of HTTP responses with.
// gjson supplies the underlying JSON tree (so a []byte response body, a
// decoded map[string]any, or a DB result all normalize to the same
// gjson.Result representation); the path grammar itself (wildcards,
// recursive descent, filter expressions, chain functions) is walked by hand
// since gjson's own path syntax does not cover the spec's filter/combinator
// grammar.
package jsonpath

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Evaluate resolves path against root (any JSON-ish value: []byte, string,
// map[string]any, []any, or scalar) and returns a native Go value: a single
// resolved node's value, or a []any when the path yields a node set ([*], ..,
// or an unfiltered trailing segment matching multiple nodes).
func Evaluate(root any, path string) (any, error) {
	node, err := toGJSON(root)
	if err != nil {
		return nil, fmt.Errorf("jsonpath: %w", err)
	}

	pathPart, chain, err := splitChain(path)
	if err != nil {
		return nil, err
	}

	segments, err := parseSegments(pathPart)
	if err != nil {
		return nil, err
	}

	nodes := []gjson.Result{node}
	multi := false
	for _, seg := range segments {
		nodes, multi, err = seg.apply(nodes, multi)
		if err != nil {
			return nil, err
		}
	}

	var result any
	if multi {
		list := make([]any, len(nodes))
		for i, n := range nodes {
			list[i] = n.Value()
		}
		result = list
	} else if len(nodes) == 0 {
		return nil, fmt.Errorf("jsonpath: path %q matched no value", path)
	} else {
		result = nodes[0].Value()
	}

	for _, fn := range chain {
		result, err = applyFunc(fn, result)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func toGJSON(root any) (gjson.Result, error) {
	switch v := root.(type) {
	case gjson.Result:
		return v, nil
	case []byte:
		return gjson.ParseBytes(v), nil
	case string:
		return gjson.Parse(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("encoding root value: %w", err)
		}
		return gjson.ParseBytes(b), nil
	}
}

// splitChain separates the path expression from its trailing chain
// functions, splitting on '|' only at bracket depth 0 so that filter
// combinators like [?(@.a==1 | @.b==2)] are not mistaken for a chain
// separator.
func splitChain(path string) (string, []chainCall, error) {
	depth := 0
	var parts []string
	last := 0
	for i, r := range path {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case '|':
			if depth == 0 {
				parts = append(parts, path[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, path[last:])

	calls := make([]chainCall, 0, len(parts)-1)
	for _, p := range parts[1:] {
		calls = append(calls, parseChainCall(strings.TrimSpace(p)))
	}
	return parts[0], calls, nil
}

type chainCall struct {
	name string
	arg  string
}

func parseChainCall(s string) chainCall {
	if i := strings.Index(s, "("); i >= 0 && strings.HasSuffix(s, ")") {
		return chainCall{name: s[:i], arg: strings.Trim(s[i+1:len(s)-1], `"'`)}
	}
	return chainCall{name: s}
}

// segment is one path component: root marker, field access, index, wildcard,
// recursive descent, or filter.
type segment interface {
	apply(nodes []gjson.Result, multi bool) ([]gjson.Result, bool, error)
}

func parseSegments(path string) ([]segment, error) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "$")

	var segs []segment
	i := 0
	for i < len(path) {
		switch {
		case strings.HasPrefix(path[i:], ".."):
			segs = append(segs, recursiveDescentSeg{})
			i += 2
			start := i
			for i < len(path) && path[i] != '.' && path[i] != '[' {
				i++
			}
			if name := path[start:i]; name != "" {
				segs = append(segs, fieldSeg{name: name})
			}
		case path[i] == '.':
			i++
			start := i
			for i < len(path) && path[i] != '.' && path[i] != '[' {
				i++
			}
			name := path[start:i]
			if name != "" {
				segs = append(segs, fieldSeg{name: name})
			}
		case path[i] == '[':
			end := strings.Index(path[i:], "]")
			if end < 0 {
				return nil, fmt.Errorf("jsonpath: unterminated bracket in %q", path)
			}
			inner := path[i+1 : i+end]
			i += end + 1
			seg, err := parseBracket(inner)
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
		default:
			return nil, fmt.Errorf("jsonpath: unexpected character %q at %d in %q", path[i], i, path)
		}
	}
	return segs, nil
}

func parseBracket(inner string) (segment, error) {
	inner = strings.TrimSpace(inner)
	switch {
	case inner == "*":
		return wildcardSeg{}, nil
	case strings.HasPrefix(inner, "?(") && strings.HasSuffix(inner, ")"):
		return parseFilter(inner[2 : len(inner)-1])
	case inner == "length":
		return fieldSeg{name: "length"}, nil
	default:
		idx, err := strconv.Atoi(inner)
		if err != nil {
			// Quoted field access, e.g. ["field-name"].
			return fieldSeg{name: strings.Trim(inner, `"'`)}, nil
		}
		return indexSeg{index: idx}, nil
	}
}

type fieldSeg struct{ name string }

func (f fieldSeg) apply(nodes []gjson.Result, multi bool) ([]gjson.Result, bool, error) {
	out := make([]gjson.Result, 0, len(nodes))
	for _, n := range nodes {
		if f.name == "length" && n.IsArray() {
			out = append(out, gjson.Parse(strconv.Itoa(len(n.Array()))))
			continue
		}
		v := n.Get(f.name)
		if v.Exists() {
			out = append(out, v)
		}
	}
	return out, multi, nil
}

type indexSeg struct{ index int }

func (s indexSeg) apply(nodes []gjson.Result, multi bool) ([]gjson.Result, bool, error) {
	out := make([]gjson.Result, 0, len(nodes))
	for _, n := range nodes {
		arr := n.Array()
		idx := s.index
		if idx < 0 {
			idx += len(arr)
		}
		if idx < 0 || idx >= len(arr) {
			continue
		}
		out = append(out, arr[idx])
	}
	return out, multi, nil
}

type wildcardSeg struct{}

func (wildcardSeg) apply(nodes []gjson.Result, _ bool) ([]gjson.Result, bool, error) {
	out := make([]gjson.Result, 0, len(nodes))
	for _, n := range nodes {
		if n.IsArray() {
			out = append(out, n.Array()...)
		} else if n.IsObject() {
			n.ForEach(func(_, v gjson.Result) bool {
				out = append(out, v)
				return true
			})
		}
	}
	return out, true, nil
}

type recursiveDescentSeg struct{}

func (recursiveDescentSeg) apply(nodes []gjson.Result, _ bool) ([]gjson.Result, bool, error) {
	var out []gjson.Result
	var walk func(n gjson.Result)
	walk = func(n gjson.Result) {
		out = append(out, n)
		if n.IsArray() {
			for _, v := range n.Array() {
				walk(v)
			}
		} else if n.IsObject() {
			n.ForEach(func(_, v gjson.Result) bool {
				walk(v)
				return true
			})
		}
	}
	for _, n := range nodes {
		if n.IsArray() {
			for _, v := range n.Array() {
				walk(v)
			}
		} else if n.IsObject() {
			n.ForEach(func(_, v gjson.Result) bool {
				walk(v)
				return true
			})
		}
	}
	return out, true, nil
}
