// Package template implements the Template Renderer (C3): recursive
// `{{expr}}` substitution over strings, maps, and lists, with a small set of
// built-in functions.
//
// Grounded on the teacher's yaml.StepExecutor.evaluateValue (recursive walk
// over string/map/[]any, non-string leaves pass through unchanged) and
// yaml.ExpressionEvaluator (custom function registration). Unlike the
// teacher, which hands the whole string to expr-lang, this renderer only
// understands the spec's constrained `{{...}}` grammar — see DESIGN.md for
// why expr-lang was not reused here.
package template

import (
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sisyphus-test/sisyphus/internal/errs"
)

// Lookup resolves a top-level identifier against the active variable layers.
// store.Store satisfies this; it is an interface here to keep the package
// free of an import cycle.
type Lookup interface {
	Get(name string) (any, bool)
}

// Clock is the injectable time source for timestamp()/timestamp_ms()/
// timestamp_us()/datetime(). Routes the template engine's only wall-clock
// read through a seam so tests can replay deterministic output (§9).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RandSource is the injectable randomness source for random()/random_uuid().
type RandSource interface {
	HexString(n int) string
	UUID() string
}

type systemRand struct{}

func (systemRand) HexString(n int) string {
	if n <= 0 {
		return ""
	}
	buf := make([]byte, (n+1)/2)
	for i := range buf {
		buf[i] = byte(rand.IntN(256))
	}
	return hex.EncodeToString(buf)[:n]
}

func (systemRand) UUID() string {
	return uuid.New().String()
}

// Renderer expands `{{...}}` templates against a Lookup.
type Renderer struct {
	clock Clock
	rnd   RandSource
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithClock overrides the clock used by timestamp builtins (for deterministic tests).
func WithClock(c Clock) Option { return func(r *Renderer) { r.clock = c } }

// WithRandSource overrides the randomness source used by random builtins.
func WithRandSource(rs RandSource) Option { return func(r *Renderer) { r.rnd = rs } }

// New creates a Renderer using the system clock and random source by default.
func New(opts ...Option) *Renderer {
	r := &Renderer{clock: systemClock{}, rnd: systemRand{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var exprPattern = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)

// Render expands templates recursively: strings are expanded, maps and
// slices are walked, and every other value passes through unchanged.
func (r *Renderer) Render(value any, lookup Lookup) (any, error) {
	switch v := value.(type) {
	case string:
		return r.renderString(v, lookup)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			rendered, err := r.Render(val, lookup)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			rendered, err := r.Render(val, lookup)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return value, nil
	}
}

// renderString expands one string's `{{...}}` occurrences. When the ENTIRE
// string (surrounding whitespace included) is a single expression, the expression's native type is
// returned; otherwise every match is stringified and spliced back in.
func (r *Renderer) renderString(s string, lookup Lookup) (any, error) {
	matches := exprPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		expr := s[matches[0][2]:matches[0][3]]
		return r.eval(expr, lookup)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		expr := s[m[2]:m[3]]
		val, err := r.eval(expr, lookup)
		if err != nil {
			return nil, err
		}
		b.WriteString(stringify(val))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

var fnCallPattern = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_]*)\((.*)\)$`)

// eval evaluates one `{{...}}` body: a dotted variable path, a bare builtin
// function name, or a builtin function call with literal arguments.
func (r *Renderer) eval(expr string, lookup Lookup) (any, error) {
	expr = strings.TrimSpace(expr)

	if m := fnCallPattern.FindStringSubmatch(expr); m != nil {
		name, argstr := m[1], m[2]
		if fn, ok := builtins[name]; ok {
			args := splitArgs(argstr)
			return fn(r, args)
		}
		// Not a known builtin: fall through to treat as a variable path
		// (identifiers never legally contain parens, so this is a lookup miss).
	} else if fn, ok := builtins[expr]; ok {
		return fn(r, nil)
	}

	return r.lookupPath(expr, lookup)
}

func splitArgs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

// lookupPath resolves a dotted identifier against lookup, descending into
// map-valued variables for each subsequent segment.
func (r *Renderer) lookupPath(path string, lookup Lookup) (any, error) {
	segments := strings.Split(path, ".")
	root, ok := lookup.Get(segments[0])
	if !ok {
		return nil, errs.New(errs.ClassStep, errs.CodeVariableNotFound, fmt.Sprintf("variable %q not found", segments[0]))
	}

	current := root
	for _, seg := range segments[1:] {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, errs.New(errs.ClassStep, errs.CodeVariableNotFound, fmt.Sprintf("path %q: %q is not a map", path, seg))
		}
		current, ok = m[seg]
		if !ok {
			return nil, errs.New(errs.ClassStep, errs.CodeVariableNotFound, fmt.Sprintf("path %q: field %q not found", path, seg))
		}
	}
	return current, nil
}

type builtinFn func(r *Renderer, args []string) (any, error)

var builtins = map[string]builtinFn{
	"random": func(r *Renderer, args []string) (any, error) {
		n := 0
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, fmt.Errorf("random(): invalid length %q: %w", args[0], err)
			}
			n = v
		}
		return r.rnd.HexString(n), nil
	},
	"random_uuid": func(r *Renderer, _ []string) (any, error) {
		return r.rnd.UUID(), nil
	},
	"timestamp": func(r *Renderer, _ []string) (any, error) {
		return r.clock.Now().Unix(), nil
	},
	"timestamp_ms": func(r *Renderer, _ []string) (any, error) {
		return r.clock.Now().UnixMilli(), nil
	},
	"timestamp_us": func(r *Renderer, _ []string) (any, error) {
		return r.clock.Now().UnixMicro(), nil
	},
	"datetime": func(r *Renderer, args []string) (any, error) {
		layout := time.RFC3339
		if len(args) > 0 {
			layout = strftimeToGo(strings.Trim(args[0], `"'`))
		}
		return r.clock.Now().Format(layout), nil
	},
}

// strftimeToGo translates the handful of strftime directives the spec's
// datetime(fmt) builtin needs into Go's reference-time layout.
func strftimeToGo(fmt string) string {
	replacer := strings.NewReplacer(
		"%Y", "2006", "%m", "01", "%d", "02",
		"%H", "15", "%M", "04", "%S", "05",
		"%z", "-0700", "%Z", "MST",
	)
	return replacer.Replace(fmt)
}
