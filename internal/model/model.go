// Package model defines the typed scenario schema: case, config, steps, and
// the rule types (extract/validate/retry/poll/ddt) described by the
// scenario's YAML shape. It is the tagged-variant replacement for the
// teacher's duck-typed Step (see DESIGN.md).
package model

// Priority is the scenario's declared priority tier.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// KeywordType discriminates the Step tagged variant.
type KeywordType string

const (
	KeywordRequest   KeywordType = "request"
	KeywordAssertion KeywordType = "assertion"
	KeywordExtract   KeywordType = "extract"
	KeywordDB        KeywordType = "db"
	KeywordCustom    KeywordType = "custom"
)

// BodyKind discriminates a request step's body encoding.
type BodyKind string

const (
	BodyNone      BodyKind = "none"
	BodyJSON      BodyKind = "json"
	BodyForm      BodyKind = "form"
	BodyMultipart BodyKind = "multipart"
	BodyRaw       BodyKind = "raw"
)

// Scope controls which variable layer an extraction writes to (§4.2).
type Scope string

const (
	ScopeGlobal      Scope = "global"
	ScopeEnvironment Scope = "environment"
)

// Case is the root of a loaded scenario file.
type Case struct {
	Config Config `yaml:"config"`
	Steps  []Step `yaml:"teststeps"`
	Ddts   *Ddts  `yaml:"ddts,omitempty"`
}

// Config carries scenario-wide metadata, variables, and the environment it runs in.
type Config struct {
	Name          string         `yaml:"name"`
	ScenarioID    string         `yaml:"scenarioId"`
	ProjectID     string         `yaml:"projectId"`
	Priority      Priority       `yaml:"priority"`
	Tags          []string       `yaml:"tags"`
	Environment   *Environment   `yaml:"environment,omitempty"`
	Variables     map[string]any `yaml:"variables"`
	PreSQL        *SqlBlock      `yaml:"preSql,omitempty"`
	PostSQL       *SqlBlock      `yaml:"postSql,omitempty"`
	CSVDatasource string         `yaml:"csvDatasource,omitempty"`
}

// Environment names a target host and the variables it seeds (layer 5, §4.2).
type Environment struct {
	Name      string         `yaml:"name"`
	BaseURL   string         `yaml:"baseUrl"`
	Variables map[string]any `yaml:"variables"`
}

// SqlBlock is a named batch of statements run against a datasource, used for
// config.preSql / config.postSql.
type SqlBlock struct {
	Datasource string   `yaml:"datasource"`
	Statements []string `yaml:"statements"`
}

// Step is the tagged variant over KeywordType. Only the fields relevant to
// Step.KeywordType are populated by the loader; the rest stay at zero value.
type Step struct {
	// Assigned by the loader, not read from YAML: 0-based position in teststeps.
	Index int `yaml:"-"`

	Name        string      `yaml:"name"`
	KeywordType KeywordType `yaml:"keywordType"`
	KeywordName string      `yaml:"keywordName"`
	Enabled     *bool       `yaml:"enabled,omitempty"`
	SkipIf      string      `yaml:"skipIf,omitempty"`
	OnlyIf      string      `yaml:"onlyIf,omitempty"`
	DependsOn   []string    `yaml:"dependsOn,omitempty"`
	Setup       []Step      `yaml:"setup,omitempty"`
	Teardown    []Step      `yaml:"teardown,omitempty"`

	RetryPolicy *RetryPolicy `yaml:"retryPolicy,omitempty"`
	PollConfig  *PollConfig  `yaml:"pollConfig,omitempty"`

	Request   *RequestStep   `yaml:"request,omitempty"`
	Assertion *AssertionStep `yaml:"assertion,omitempty"`
	Extract   *ExtractStep   `yaml:"extract,omitempty"`
	DB        *DBStep        `yaml:"db,omitempty"`
	Custom    *CustomStep    `yaml:"custom,omitempty"`

	Loop       *LoopConfig       `yaml:"loop,omitempty"`
	Concurrent *ConcurrentConfig `yaml:"concurrent,omitempty"`
}

// IsEnabled defaults Enabled to true when unset, matching the spec's "enabled=true".
func (s Step) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// RequestStep is an HTTP request step.
type RequestStep struct {
	Method         string            `yaml:"method"`
	URL            string            `yaml:"url"`
	Headers        map[string]any    `yaml:"headers,omitempty"`
	Params         map[string]any    `yaml:"params,omitempty"`
	BodyKind       BodyKind          `yaml:"bodyKind,omitempty"`
	Body           any               `yaml:"body,omitempty"`
	Cookies        map[string]string `yaml:"cookies,omitempty"`
	TimeoutSeconds int               `yaml:"timeoutSeconds,omitempty"`
	AllowRedirects *bool             `yaml:"allowRedirects,omitempty"`
	VerifySSL      *bool             `yaml:"verifySsl,omitempty"`
	Extract        []ExtractRule     `yaml:"extract,omitempty"`
	Validate       []ValidateRule    `yaml:"validate,omitempty"`
}

func (r RequestStep) Timeout() int {
	if r.TimeoutSeconds <= 0 {
		return 30
	}
	return r.TimeoutSeconds
}

func (r RequestStep) Redirects() bool {
	return r.AllowRedirects == nil || *r.AllowRedirects
}

func (r RequestStep) Verify() bool {
	return r.VerifySSL == nil || *r.VerifySSL
}

// AssertionStep validates a single rule against a prior result.
type AssertionStep struct {
	Rule           ValidateRule `yaml:",inline"`
	SourceVariable string       `yaml:"sourceVariable,omitempty"`
}

// ExtractStep runs a batch of extraction rules.
type ExtractStep struct {
	Rules          []ExtractRule `yaml:"rules"`
	SourceVariable string        `yaml:"sourceVariable,omitempty"`
}

// DBStep runs a query against a named datasource.
type DBStep struct {
	Datasource string         `yaml:"datasource"`
	SQL        string         `yaml:"sql"`
	Extract    []ExtractRule  `yaml:"extract,omitempty"`
	Validate   []ValidateRule `yaml:"validate,omitempty"`
}

// CustomStep invokes a registered custom function by keywordName.
type CustomStep struct {
	KeywordName string         `yaml:"keywordName"`
	Parameters  map[string]any `yaml:"parameters,omitempty"`
	Extract     []ExtractRule  `yaml:"extract,omitempty"`
}

// LoopConfig drives the "for"/"while" forms of the Loop/Concurrent Driver (C12).
type LoopConfig struct {
	Kind      string `yaml:"kind"` // "for" | "while"
	Over      string `yaml:"over,omitempty"` // expression/variable resolving to a list, for "for"
	Condition string `yaml:"condition,omitempty"` // predicate, for "while"
	MaxCycles int    `yaml:"maxCycles,omitempty"`
	Steps     []Step `yaml:"steps"`
}

// ConcurrentConfig drives the bounded-fan-out form of C12.
type ConcurrentConfig struct {
	Over        string `yaml:"over"`
	Concurrency int    `yaml:"concurrency"`
	StopOn      []string `yaml:"stopOn,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// ExtractRule pulls one value out of a source into the variable store.
type ExtractRule struct {
	Name           string `yaml:"name"`
	SourceKind     string `yaml:"sourceKind"` // json | header | cookie | db_result
	Expression     string `yaml:"expression"`
	Scope          Scope  `yaml:"scope,omitempty"`
	Default        any    `yaml:"default,omitempty"`
	HasDefault     bool   `yaml:"-"`
	SourceVariable string `yaml:"sourceVariable,omitempty"`
}

func (r ExtractRule) EffectiveScope() Scope {
	if r.Scope == "" {
		return ScopeGlobal
	}
	return r.Scope
}

// ValidateRule compares a path-derived actual to a templated expected value.
type ValidateRule struct {
	Target     string `yaml:"target"` // json | header | cookie | status_code | response_time | env_variable | db_result
	Expression string `yaml:"expression,omitempty"`
	Comparator string `yaml:"comparator"`
	Expected   any    `yaml:"expected"`
	Message    string `yaml:"message,omitempty"`
}

// RetryPolicy controls per-step retry behavior (§4.10).
type RetryPolicy struct {
	MaxAttempts  int      `yaml:"maxAttempts"`
	Strategy     string   `yaml:"strategy"` // fixed | linear | exponential
	BaseDelayMs  int      `yaml:"baseDelayMs"`
	MaxDelayMs   int      `yaml:"maxDelayMs"`
	Multiplier   float64  `yaml:"multiplier"`
	Jitter       bool     `yaml:"jitter"`
	RetryOn      []string `yaml:"retryOn,omitempty"`
	StopOn       []string `yaml:"stopOn,omitempty"`
}

// PollCondition describes the predicate the Poll Controller (C11) waits on.
type PollCondition struct {
	Kind     string `yaml:"kind"` // jsonpath | statusCode
	Path     string `yaml:"path,omitempty"`
	Operator string `yaml:"operator"`
	Expected any    `yaml:"expected"`
}

// PollConfig drives the Poll Controller (C11).
type PollConfig struct {
	Condition         PollCondition `yaml:"condition"`
	MaxAttempts       int           `yaml:"maxAttempts,omitempty"`
	IntervalMs        int           `yaml:"intervalMs,omitempty"`
	TimeoutMs         int           `yaml:"timeoutMs,omitempty"`
	Backoff           string        `yaml:"backoff,omitempty"`
	OnTimeoutBehavior string        `yaml:"onTimeoutBehavior,omitempty"`
	OnTimeoutMessage  string        `yaml:"onTimeoutMessage,omitempty"`
}

func (p PollConfig) EffectiveMaxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 30
	}
	return p.MaxAttempts
}

func (p PollConfig) EffectiveIntervalMs() int {
	if p.IntervalMs <= 0 {
		return 2000
	}
	return p.IntervalMs
}

func (p PollConfig) EffectiveTimeoutMs() int {
	if p.TimeoutMs <= 0 {
		return 60000
	}
	return p.TimeoutMs
}

// Ddts is the data-driven parameter set: either inline rows or a CSV file.
type Ddts struct {
	Name       string           `yaml:"name"`
	Parameters []map[string]any `yaml:"parameters,omitempty"`
	CSVFile    string           `yaml:"csvFile,omitempty"`
}
