package gofetch

import (
	"encoding/json"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/mchtech/gofetch/debug"
)

// Response is the value Executor.Send returns: a decoded status/header
// view over the body bytes already read into memory, plus whatever cache
// and debug metadata the executor attached along the way.
type Response struct {
	StatusCode int
	Headers    http.Header
	body       []byte

	// CacheStatus is one of "", "HIT", "MISS", "STALE", "REVALIDATED",
	// "STALE-IF-ERROR", "BYPASS", "REFRESH" — surfaced as the
	// X-Cache-Status header per §4.3/§6.
	CacheStatus string

	// DebugInfo is non-nil only when the request ran with debug enabled
	// (§4.8); exported as response.debug_info.
	DebugInfo *debug.Snapshot
}

// NewResponse builds a Response from a status, headers, and the body
// already fully read.
func NewResponse(status int, headers http.Header, body []byte) *Response {
	return &Response{StatusCode: status, Headers: headers, body: append([]byte(nil), body...)}
}

// Body returns the raw response bytes.
func (r *Response) Body() []byte { return r.body }

// Text decodes the body as UTF-8 text.
func (r *Response) Text() string { return string(r.body) }

// JSON unmarshals the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.body, v)
}

// JSONPath evaluates a gjson path expression against the body without
// requiring the caller to unmarshal into a concrete type first — the same
// reason the examples reach for tidwall/gjson over encoding/json when all
// that's needed is one field out of a response.
func (r *Response) JSONPath(path string) gjson.Result {
	return gjson.GetBytes(r.body, path)
}

// OK reports whether the status is in the 200-299 range.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// IsClientError reports a 4xx status.
func (r *Response) IsClientError() bool { return r.StatusCode >= 400 && r.StatusCode < 500 }

// IsServerError reports a 5xx status.
func (r *Response) IsServerError() bool { return r.StatusCode >= 500 && r.StatusCode < 600 }

// Header returns the first value of the named response header.
func (r *Response) Header(name string) string { return r.Headers.Get(name) }

// WithDebugInfo attaches a debug snapshot, returning r for chaining in the
// executor's build-then-return sequence.
func (r *Response) WithDebugInfo(s *debug.Snapshot) *Response {
	r.DebugInfo = s
	return r
}

// WithCacheStatus attaches the X-Cache-Status value and mirrors it onto
// the response headers, matching the header the executor's cache-aware
// callers inspect (§4.9 step 4).
func (r *Response) WithCacheStatus(status string) *Response {
	r.CacheStatus = status
	if status != "" {
		if r.Headers == nil {
			r.Headers = make(http.Header)
		}
		r.Headers.Set("X-Cache-Status", status)
	}
	return r
}

// DebugExport returns the JSON-shaped debug_info map (§4.8/§6), or nil if
// no snapshot was attached.
func (r *Response) DebugExport() map[string]any {
	if r.DebugInfo == nil {
		return nil
	}
	return r.DebugInfo.Export()
}
