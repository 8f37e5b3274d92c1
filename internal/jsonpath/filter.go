package jsonpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// filterSeg implements `[?(@.field OP literal (&& / || ) ...)]` over the
// current node set. Only array-valued nodes are filtered; each element
// becomes @.
type filterSeg struct {
	clauses [][]filterClause // outer: OR groups; inner: AND'd clauses
}

type filterClause struct {
	field    string
	operator string
	literal  any
}

func parseFilter(expr string) (segment, error) {
	orGroups := splitTop(expr, "||")
	if len(orGroups) == 1 {
		orGroups = splitTop(expr, "|")
	}
	fs := filterSeg{}
	for _, og := range orGroups {
		andGroups := splitTop(og, "&&")
		if len(andGroups) == 1 {
			andGroups = splitTop(og, "&")
		}
		var clauses []filterClause
		for _, cl := range andGroups {
			c, err := parseClause(strings.TrimSpace(cl))
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, c)
		}
		fs.clauses = append(fs.clauses, clauses)
	}
	return fs, nil
}

func splitTop(s, sep string) []string {
	if !strings.Contains(s, sep) {
		return []string{s}
	}
	return strings.Split(s, sep)
}

var comparisonOps = []string{"==", "!=", ">=", "<=", ">", "<"}

func parseClause(s string) (filterClause, error) {
	for _, op := range comparisonOps {
		if idx := strings.Index(s, op); idx >= 0 {
			left := strings.TrimSpace(s[:idx])
			right := strings.TrimSpace(s[idx+len(op):])
			left = strings.TrimPrefix(left, "@.")
			left = strings.TrimPrefix(left, "@")
			return filterClause{field: left, operator: op, literal: parseLiteral(right)}, nil
		}
	}
	return filterClause{}, fmt.Errorf("jsonpath: unrecognized filter clause %q", s)
}

func parseLiteral(s string) any {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	if s == "true" {
		return true
	}
	if s == "false" {
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func (fs filterSeg) apply(nodes []gjson.Result, _ bool) ([]gjson.Result, bool, error) {
	var out []gjson.Result
	for _, n := range nodes {
		elems := n.Array()
		for _, elem := range elems {
			if fs.matches(elem) {
				out = append(out, elem)
			}
		}
	}
	return out, true, nil
}

func (fs filterSeg) matches(elem gjson.Result) bool {
	for _, and := range fs.clauses {
		allTrue := true
		for _, c := range and {
			if !c.matches(elem) {
				allTrue = false
				break
			}
		}
		if allTrue {
			return true
		}
	}
	return false
}

func (c filterClause) matches(elem gjson.Result) bool {
	field := elem.Get(c.field)
	if !field.Exists() {
		return false
	}
	actual := field.Value()
	return compareLiteral(actual, c.operator, c.literal)
}

func compareLiteral(actual any, op string, expected any) bool {
	af, aok := toFloat(actual)
	ef, eok := toFloat(expected)
	if aok && eok {
		switch op {
		case "==":
			return af == ef
		case "!=":
			return af != ef
		case ">":
			return af > ef
		case ">=":
			return af >= ef
		case "<":
			return af < ef
		case "<=":
			return af <= ef
		}
	}
	as := fmt.Sprintf("%v", actual)
	es := fmt.Sprintf("%v", expected)
	switch op {
	case "==":
		return as == es
	case "!=":
		return as != es
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
