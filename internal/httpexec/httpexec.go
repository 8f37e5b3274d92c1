// Package httpexec implements the HTTP Executor (C8) via resty.
//
// Grounded on the teacher's plugins/http/plugin.go (resty client
// construction, header/query/body arg handling), generalized from the
// teacher's map[string]any task-arg shape to the typed model.RequestStep,
// and extended with multipart file attachment from a content-addressed
// store, response JSON/string sniffing, and optional DNS/TCP/TLS timing
// splits via resty's request trace info.
package httpexec

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sisyphus-test/sisyphus/internal/errs"
	"github.com/sisyphus-test/sisyphus/internal/model"
)

// FileRef marks a multipart body field that should be fetched from the
// content-addressed object store rather than sent as a literal value.
type FileRef struct {
	Ref      string
	Filename string
}

// ContentStore resolves a FileRef to bytes, for multipart uploads that
// reference previously-stored content (e.g. an earlier step's downloaded
// attachment).
type ContentStore interface {
	Fetch(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Response is the normalized result of one HTTP executor call.
type Response struct {
	StatusCode int
	Headers    map[string][]string
	Cookies    map[string]string
	Body       any
	RawBody    []byte
	BodySize   int64
	DurationMs int64
	DNSMs      *int64
	TCPMs      *int64
	TLSMs      *int64
}

// Executor runs request steps, building a fresh resty client for each
// Execute call.
type Executor struct {
	store ContentStore
}

// Option configures an Executor.
type Option func(*Executor)

// WithContentStore installs the object store multipart file references are
// resolved against.
func WithContentStore(s ContentStore) Option { return func(e *Executor) { e.store = s } }

// New creates an Executor. Each Execute call builds its own resty client
// (see Execute) so the Executor itself holds no mutable client state.
func New(opts ...Option) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute sends one request step and returns its normalized response, or a
// classified *errs.CaseError on transport failure.
func (e *Executor) Execute(ctx context.Context, step model.RequestStep, baseURL string) (*Response, *errs.CaseError) {
	fullURL, err := joinURL(baseURL, step.URL)
	if err != nil {
		return nil, errs.New(errs.ClassStep, errs.CodeEngineInternal, err.Error())
	}

	timeout := step.Timeout()
	if timeout <= 0 {
		timeout = 30
	}

	// A fresh client per call, rather than one client shared across calls, because
	// redirect/TLS policy are client-scoped in resty and steps running
	// concurrently (Loop/Concurrent Driver) must not race on them.
	client := resty.New().EnableTrace().
		SetRedirectPolicy(redirectPolicy(step.Redirects())).
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: !step.Verify()})

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	req := client.R().SetContext(reqCtx)

	for k, v := range step.Headers {
		req.SetHeader(k, fmt.Sprintf("%v", v))
	}
	for k, v := range step.Params {
		req.SetQueryParam(k, fmt.Sprintf("%v", v))
	}
	for name, value := range step.Cookies {
		req.SetCookie(&http.Cookie{Name: name, Value: value})
	}

	if err := applyBody(ctx, req, step, e.store); err != nil {
		return nil, errs.New(errs.ClassStep, errs.CodeEngineInternal, err.Error())
	}

	start := time.Now()
	resp, err := req.Execute(strings.ToUpper(step.Method), fullURL)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		return nil, classifyTransportError(err)
	}

	return toResponse(resp, duration), nil
}

func joinURL(baseURL, stepURL string) (string, error) {
	u, err := url.Parse(stepURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", stepURL, err)
	}
	if u.IsAbs() {
		return stepURL, nil
	}
	if baseURL == "" {
		return "", fmt.Errorf("relative url %q with no environment.baseUrl", stepURL)
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(stepURL, "/"), nil
}

func redirectPolicy(allow bool) resty.RedirectPolicy {
	if allow {
		return resty.FlexibleRedirectPolicy(10)
	}
	return resty.NoRedirectPolicy()
}

func applyBody(ctx context.Context, req *resty.Request, step model.RequestStep, store ContentStore) error {
	switch step.BodyKind {
	case model.BodyJSON:
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(step.Body)
	case model.BodyForm:
		form, ok := step.Body.(map[string]any)
		if !ok {
			return fmt.Errorf("form body must be a map")
		}
		vals := make(map[string]string, len(form))
		for k, v := range form {
			vals[k] = fmt.Sprintf("%v", v)
		}
		req.SetFormData(vals)
	case model.BodyMultipart:
		fields, ok := step.Body.(map[string]any)
		if !ok {
			return fmt.Errorf("multipart body must be a map")
		}
		for k, v := range fields {
			ref, isFile := v.(FileRef)
			if !isFile {
				req.SetFormData(map[string]string{k: fmt.Sprintf("%v", v)})
				continue
			}
			if store == nil {
				return fmt.Errorf("multipart field %q references content store but none is configured", k)
			}
			rc, err := store.Fetch(ctx, ref.Ref)
			if err != nil {
				return fmt.Errorf("fetching multipart attachment %q: %w", ref.Ref, err)
			}
			tmp, err := writeTempFile(rc)
			rc.Close()
			if err != nil {
				return err
			}
			defer os.Remove(tmp)
			req.SetFile(k, tmp)
		}
	case model.BodyRaw:
		req.SetBody(fmt.Sprintf("%v", step.Body))
	case model.BodyNone, "":
		// no body
	}
	return nil
}

func writeTempFile(r io.Reader) (string, error) {
	f, err := os.CreateTemp("", "sisyphus-upload-*")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func toResponse(resp *resty.Response, durationMs int64) *Response {
	raw := resp.Body()
	headers := map[string][]string(resp.Header())
	cookies := make(map[string]string)
	for _, c := range resp.Cookies() {
		cookies[c.Name] = c.Value
	}

	var body any
	ct := resp.Header().Get("Content-Type")
	trimmed := strings.TrimSpace(string(raw))
	looksJSON := strings.Contains(ct, "json") || strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
	if looksJSON && len(trimmed) > 0 {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			body = decoded
		} else {
			body = string(raw)
		}
	} else {
		body = string(raw)
	}

	r := &Response{
		StatusCode: resp.StatusCode(),
		Headers:    headers,
		Cookies:    cookies,
		Body:       body,
		RawBody:    raw,
		BodySize:   int64(len(raw)),
		DurationMs: durationMs,
	}

	ti := resp.Request.TraceInfo()
	if ti.DNSLookup > 0 {
		v := ti.DNSLookup.Milliseconds()
		r.DNSMs = &v
	}
	if ti.TCPConnTime > 0 {
		v := ti.TCPConnTime.Milliseconds()
		r.TCPMs = &v
	}
	if ti.TLSHandshake > 0 {
		v := ti.TLSHandshake.Milliseconds()
		r.TLSMs = &v
	}
	return r
}

func classifyTransportError(err error) *errs.CaseError {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || errIsTimeout(err):
		return errs.New(errs.ClassStep, errs.CodeRequestTimeout, msg)
	case strings.Contains(msg, "certificate") || strings.Contains(msg, "x509") || strings.Contains(msg, "tls"):
		return errs.New(errs.ClassStep, errs.CodeRequestSSL, msg)
	default:
		return errs.New(errs.ClassStep, errs.CodeRequestConnection, msg)
	}
}

func errIsTimeout(err error) bool {
	var netErr net.Error
	if ne, ok := err.(net.Error); ok {
		netErr = ne
		return netErr.Timeout()
	}
	return false
}
