// Package mock implements the mock/record interception layer of §4.7:
// a MockRegistry matched against outgoing requests before they ever
// reach the pool transport, grounded on the same
// http.RoundTripper-as-interception-point pattern the teacher's
// Transport.RoundTrip uses for cache lookups in
// mchtech-httpcache/httpcache.go — here the registry takes the cache's
// place as the thing consulted before the real network call.
package mock

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
)

// StrayRequestError reports that a request matched no registered mock
// while the registry was in prevent-stray mode.
type StrayRequestError struct {
	Method string
	URL    string
}

func (e *StrayRequestError) Error() string {
	return fmt.Sprintf("gofetch/mock: stray request %s %s matched no registered mock", e.Method, e.URL)
}

// Responder produces a response for a matched request. Implementations
// may be static, callable, or a finite sequence (see StaticResponse, Func, and
// Sequence below).
type Responder interface {
	Respond(req *http.Request) (*http.Response, error)
}

// StaticResponse always returns the same status/body/headers.
type StaticResponse struct {
	Status  int
	Body    []byte
	Headers http.Header
}

func (s StaticResponse) Respond(req *http.Request) (*http.Response, error) {
	return buildResponse(req, s.Status, s.Body, s.Headers), nil
}

// Func computes a response per call, for handlers that need to inspect
// the request.
type Func func(req *http.Request) (*http.Response, error)

func (f Func) Respond(req *http.Request) (*http.Response, error) { return f(req) }

// Sequence returns successive responders in order, repeating the final
// one once exhausted, per §4.7's "sequence of responses" mock kind.
type Sequence struct {
	mu        sync.Mutex
	responses []Responder
	pos       int
}

func NewSequence(responses ...Responder) *Sequence {
	return &Sequence{responses: responses}
}

func (s *Sequence) Respond(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		return nil, fmt.Errorf("gofetch/mock: empty response sequence")
	}
	idx := s.pos
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	} else {
		s.pos++
	}
	return s.responses[idx].Respond(req)
}

func buildResponse(req *http.Request, status int, body []byte, headers http.Header) *http.Response {
	if headers == nil {
		headers = make(http.Header)
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     headers,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Request:    req,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
	}
}

// pattern is a compiled "METHOD URL-GLOB" mock registration. "*" in the
// URL glob matches any non-empty run of characters other than "/",
// matching §4.7's glob-style template syntax.
type pattern struct {
	method    string
	re        *regexp.Regexp
	responder Responder
}

func compilePattern(spec string, responder Responder) (*pattern, error) {
	method, urlGlob, ok := strings.Cut(spec, " ")
	if !ok {
		return nil, fmt.Errorf("gofetch/mock: pattern %q must be \"METHOD URL\"", spec)
	}
	method = strings.ToUpper(method)

	var b strings.Builder
	b.WriteString("^")
	for _, part := range strings.Split(urlGlob, "*") {
		b.WriteString(regexp.QuoteMeta(part))
		b.WriteString("[^/]+")
	}
	reStr := strings.TrimSuffix(b.String(), "[^/]+") + "$"
	if method == "*" {
		method = ""
	}
	re, err := regexp.Compile(reStr)
	if err != nil {
		return nil, err
	}
	return &pattern{method: method, re: re, responder: responder}, nil
}

// Registry is a MockRegistry: it matches outgoing requests against
// registered "METHOD URL" glob patterns and, on a hit, returns a
// responder-produced response instead of letting the request reach the
// network.
type Registry struct {
	mu           sync.Mutex
	patterns     []*pattern
	preventStray bool
	calls        []*http.Request
}

// New builds an empty Registry. preventStray controls whether an
// unmatched request returns a *StrayRequestError (true) or falls through
// to the real transport (false, the posture NewExecutor uses).
func New(preventStray bool) *Registry {
	return &Registry{preventStray: preventStray}
}

// Mock registers spec ("METHOD URL", "*" wildcards allowed in URL and
// method) against responder.
func (r *Registry) Mock(spec string, responder Responder) error {
	p, err := compilePattern(spec, responder)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, p)
	return nil
}

// MockStatus is a convenience for the common "just return this status
// and body" case.
func (r *Registry) MockStatus(spec string, status int, body []byte) error {
	return r.Mock(spec, StaticResponse{Status: status, Body: body})
}

// AllowStray switches the registry to let unmatched requests fall
// through to the real transport.
func (r *Registry) AllowStray() { r.preventStray = false }

// PreventStray switches the registry back to rejecting unmatched
// requests.
func (r *Registry) PreventStray() { r.preventStray = true }

// Match looks up a responder for req, recording the call for later
// assertions regardless of outcome. ok is false when no pattern
// matched; the caller (the executor, or Transport below) decides what
// to do based on preventStray.
func (r *Registry) Match(req *http.Request) (Responder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req.Clone(req.Context()))

	for _, p := range r.patterns {
		if p.method != "" && p.method != req.Method {
			continue
		}
		if p.re.MatchString(req.URL.String()) {
			return p.responder, true
		}
	}
	return nil, false
}

// PreventStrayEnabled reports the registry's current stray-request
// policy.
func (r *Registry) PreventStrayEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preventStray
}

// Reset clears registered patterns and recorded calls.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = nil
	r.calls = nil
}

// Calls returns every request the registry has seen via Match, in
// order, for use by assertion helpers.
func (r *Registry) Calls() []*http.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*http.Request, len(r.calls))
	copy(out, r.calls)
	return out
}

// AssertSent reports whether a request matching "METHOD URL-GLOB" spec
// was observed.
func (r *Registry) AssertSent(spec string) (bool, error) {
	p, err := compilePattern(spec, nil)
	if err != nil {
		return false, err
	}
	for _, req := range r.Calls() {
		if (p.method == "" || p.method == req.Method) && p.re.MatchString(req.URL.String()) {
			return true, nil
		}
	}
	return false, nil
}

// AssertNotSent is the negation of AssertSent.
func (r *Registry) AssertNotSent(spec string) (bool, error) {
	sent, err := r.AssertSent(spec)
	if err != nil {
		return false, err
	}
	return !sent, nil
}

// AssertSentCount counts how many observed requests matched spec.
func (r *Registry) AssertSentCount(spec string) (int, error) {
	p, err := compilePattern(spec, nil)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, req := range r.Calls() {
		if (p.method == "" || p.method == req.Method) && p.re.MatchString(req.URL.String()) {
			count++
		}
	}
	return count, nil
}

// Transport adapts a Registry into an http.RoundTripper, so it can sit
// in front of (or replace) pool.Pool's transport in the executor's
// RoundTripper chain, matching the teacher's pattern of composing
// interception as a RoundTripper rather than branching inside the
// caller.
type Transport struct {
	Registry *Registry
	Fallback http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	responder, ok := t.Registry.Match(req)
	if !ok {
		if t.Registry.PreventStrayEnabled() {
			return nil, &StrayRequestError{Method: req.Method, URL: req.URL.String()}
		}
		if t.Fallback == nil {
			return nil, &StrayRequestError{Method: req.Method, URL: req.URL.String()}
		}
		return t.Fallback.RoundTrip(req)
	}
	return responder.Respond(req)
}
