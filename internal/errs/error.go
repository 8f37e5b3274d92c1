// Package errs defines the error taxonomy propagated through a case run.
//
// Grounded on the teacher's runtime/flow_error.go: a single JSON-serializable
// error type classified by severity (engine / step / assertion / extraction),
// carrying a stable Code so the result document can be matched in tests.
package errs

import "fmt"

// Class separates the three error paths the scheduler treats differently:
// engine errors abort the case, step errors end only the owning step,
// assertion/extraction failures never abort anything.
type Class string

const (
	ClassEngine     Class = "engine"
	ClassStep       Class = "step"
	ClassAssertion  Class = "assertion"
	ClassExtraction Class = "extraction"
)

// Code enumerates the stable error codes from spec §7.
type Code string

const (
	CodeYAMLParse         Code = "YAML_PARSE_ERROR"
	CodeYAMLValidation    Code = "YAML_VALIDATION_ERROR"
	CodeFileNotFound      Code = "FILE_NOT_FOUND"
	CodeCSVParse          Code = "CSV_PARSE_ERROR"
	CodeCSVFileNotFound   Code = "CSV_FILE_NOT_FOUND"
	CodeEngineInternal    Code = "ENGINE_INTERNAL_ERROR"
	CodeTimeout           Code = "TIMEOUT_ERROR"
	CodeRequestTimeout    Code = "REQUEST_TIMEOUT"
	CodeRequestConnection Code = "REQUEST_CONNECTION_ERROR"
	CodeRequestSSL        Code = "REQUEST_SSL_ERROR"
	CodeDBConnection      Code = "DB_CONNECTION_ERROR"
	CodeDBQuery           Code = "DB_QUERY_ERROR"
	CodeDBDatasourceMiss  Code = "DB_DATASOURCE_NOT_FOUND"
	CodeAssertionFailed   Code = "ASSERTION_FAILED"
	CodeExtractFailed     Code = "EXTRACT_FAILED"
	CodeKeywordNotFound   Code = "KEYWORD_NOT_FOUND"
	CodeKeywordExecution  Code = "KEYWORD_EXECUTION_ERROR"
	CodeVariableNotFound  Code = "VARIABLE_NOT_FOUND"
	CodeVariableRender    Code = "VARIABLE_RENDER_ERROR"
)

// CaseError is the canonical error type surfaced anywhere in a run. It mirrors
// the teacher's FlowError shape, extended with the classification above and
// an optional Path for loader errors (e.g. "teststeps[2].request.body").
type CaseError struct {
	Class   Class          `json:"-"`
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Step    string         `json:"step,omitempty"`
	Path    string         `json:"path,omitempty"`
	Detail  map[string]any `json:"detail,omitempty"`
}

func (e *CaseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, e.Path)
	}
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s (step: %s)", e.Code, e.Message, e.Step)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func New(class Class, code Code, message string) *CaseError {
	return &CaseError{Class: class, Code: code, Message: message}
}

func (e *CaseError) WithStep(step string) *CaseError {
	e.Step = step
	return e
}

func (e *CaseError) WithPath(path string) *CaseError {
	e.Path = path
	return e
}

func (e *CaseError) WithDetail(key string, value any) *CaseError {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// Retryable reports whether a code names a transient condition eligible for
// retry when a step's retryOn set includes it.
func (c Code) Retryable() bool {
	switch c {
	case CodeRequestTimeout, CodeRequestConnection, CodeDBConnection:
		return true
	default:
		return false
	}
}

// AsCaseError unwraps err into a *CaseError, wrapping it as an engine-internal
// error if it isn't one already (mirrors the teacher's toFlowError helper).
func AsCaseError(err error) *CaseError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*CaseError); ok {
		return ce
	}
	return &CaseError{Class: ClassEngine, Code: CodeEngineInternal, Message: err.Error()}
}
