// Package compare implements the Comparator Set (C5): the 17 named
// predicates (plus aliases) the Validator (C7) applies between a resolved
// actual value and a templated expected value.
//
// Grounded on the standard library (reflect, regexp, strconv) rather than a
// pack dependency — see DESIGN.md: none of the example repos ship a
// generic "compare any two JSON-ish values by named operator" library, and
// the comparator set is intentionally small and exhaustively enumerable, so
// a hand-rolled switch is the idiomatic choice here rather than pulling in a
// general assertion framework (e.g. testify's assert) for production code
// paths it wasn't designed for.
package compare

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Name is a canonical comparator identifier.
type Name string

const (
	Eq           Name = "eq"
	Neq          Name = "neq"
	Gt           Name = "gt"
	Gte          Name = "gte"
	Lt           Name = "lt"
	Lte          Name = "lte"
	Contains     Name = "contains"
	NotContains  Name = "not_contains"
	StartsWith   Name = "startswith"
	EndsWith     Name = "endswith"
	Matches      Name = "matches"
	TypeMatch    Name = "type_match"
	LengthEq     Name = "length_eq"
	LengthGt     Name = "length_gt"
	LengthLt     Name = "length_lt"
	IsNull       Name = "is_null"
	IsNotNull    Name = "is_not_null"
)

// aliases maps accepted alternate spellings onto the canonical Name.
var aliases = map[string]Name{
	"ge":      Gte,
	"le":      Lte,
	"in":      Contains,
	"not_in":  NotContains,
}

// Canonical resolves a comparator name (including aliases) to its Name, and
// reports whether it is recognized.
func Canonical(raw string) (Name, bool) {
	n := Name(strings.ToLower(strings.TrimSpace(raw)))
	if alias, ok := aliases[string(n)]; ok {
		return alias, true
	}
	switch n {
	case Eq, Neq, Gt, Gte, Lt, Lte, Contains, NotContains, StartsWith, EndsWith,
		Matches, TypeMatch, LengthEq, LengthGt, LengthLt, IsNull, IsNotNull:
		return n, true
	default:
		return "", false
	}
}

// Compare applies comparator name to (actual, expected) and returns the
// boolean outcome. An unrecognized name returns an error rather than
// silently failing the assertion; comparator names are not checked when a
// case is loaded, so this is where an unknown one is first reported.
func Compare(raw string, actual, expected any) (bool, error) {
	name, ok := Canonical(raw)
	if !ok {
		return false, fmt.Errorf("compare: unknown comparator %q", raw)
	}

	switch name {
	case Eq:
		return looseEqual(actual, expected), nil
	case Neq:
		return !looseEqual(actual, expected), nil
	case Gt, Gte, Lt, Lte:
		return numericCompare(name, actual, expected)
	case Contains:
		return containsCheck(actual, expected)
	case NotContains:
		ok, err := containsCheck(actual, expected)
		return !ok, err
	case StartsWith:
		return strings.HasPrefix(toStr(actual), toStr(expected)), nil
	case EndsWith:
		return strings.HasSuffix(toStr(actual), toStr(expected)), nil
	case Matches:
		return matchesRegex(actual, expected)
	case TypeMatch:
		return typeMatches(actual, expected), nil
	case LengthEq, LengthGt, LengthLt:
		return lengthCompare(name, actual, expected)
	case IsNull:
		return actual == nil, nil
	case IsNotNull:
		return actual != nil, nil
	}
	return false, fmt.Errorf("compare: unhandled comparator %q", name)
}

func toStr(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b) || toStr(a) == toStr(b)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
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

func numericCompare(name Name, actual, expected any) (bool, error) {
	af, aok := toFloat(actual)
	ef, eok := toFloat(expected)
	if !aok || !eok {
		return false, fmt.Errorf("compare: %s requires numeric operands, got %v / %v", name, actual, expected)
	}
	switch name {
	case Gt:
		return af > ef, nil
	case Gte:
		return af >= ef, nil
	case Lt:
		return af < ef, nil
	case Lte:
		return af <= ef, nil
	}
	return false, fmt.Errorf("compare: unreachable numeric comparator %s", name)
}

// containsCheck checks substring membership for strings, and element
// membership for slices/maps (by key).
func containsCheck(actual, expected any) (bool, error) {
	switch a := actual.(type) {
	case string:
		return strings.Contains(a, toStr(expected)), nil
	case []any:
		for _, x := range a {
			if looseEqual(x, expected) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		_, ok := a[toStr(expected)]
		return ok, nil
	default:
		return false, fmt.Errorf("compare: contains unsupported on actual type %T", actual)
	}
}

// matchesRegex implements the spec's documented anchored-vs-partial
// behavior: the pattern is matched as a partial (unanchored) match against
// the actual value's string form, consistent with regexp.MatchString
// semantics, not implicitly anchored at both ends.
func matchesRegex(actual, expected any) (bool, error) {
	pattern := toStr(expected)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("compare: invalid regex %q: %w", pattern, err)
	}
	return re.MatchString(toStr(actual)), nil
}

// typeMatches backs the type_match comparator. Spec §4.5 defines the
// literal token set a case author writes in YAML as
// int|str|list|dict|bool|null; the common long-form spellings are accepted
// alongside them since a case author coming from another validation
// framework may reach for those instead.
func typeMatches(actual, expected any) bool {
	want := strings.ToLower(toStr(expected))
	switch actual.(type) {
	case string:
		return want == "str" || want == "string"
	case bool:
		return want == "bool" || want == "boolean"
	case float64, float32, int, int64:
		return want == "int" || want == "number" || want == "integer" || want == "float"
	case []any:
		return want == "list" || want == "array"
	case map[string]any:
		return want == "dict" || want == "object" || want == "map"
	case nil:
		return want == "null"
	default:
		return false
	}
}

func lengthOf(v any) (int, bool) {
	switch t := v.(type) {
	case string:
		return len(t), true
	case []any:
		return len(t), true
	case map[string]any:
		return len(t), true
	default:
		return 0, false
	}
}

func lengthCompare(name Name, actual, expected any) (bool, error) {
	n, ok := lengthOf(actual)
	if !ok {
		return false, fmt.Errorf("compare: %s requires a string/array/object actual, got %T", name, actual)
	}
	ef, ok := toFloat(expected)
	if !ok {
		return false, fmt.Errorf("compare: %s requires a numeric expected length, got %v", name, expected)
	}
	want := int(ef)
	switch name {
	case LengthEq:
		return n == want, nil
	case LengthGt:
		return n > want, nil
	case LengthLt:
		return n < want, nil
	}
	return false, fmt.Errorf("compare: unreachable length comparator %s", name)
}
