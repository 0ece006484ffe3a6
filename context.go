package gofetch

import (
	"net/http"
	"net/url"
	"time"
)

// RequestContext is the immutable per-call snapshot produced by merging
// library defaults, global defaults, handler-scoped defaults, per-call
// options, and a method override (§3). Every with* method returns a new
// instance; the receiver is left untouched. This is what lets concurrent
// async tasks sharing a handler avoid corrupting one another's state
// (§4.1) — there is no shared mutable struct for them to race on.
type RequestContext struct {
	method  string
	baseURI string
	uri     string
	headers http.Header
	query   url.Values
	body    Body

	timeout        time.Duration
	connectTimeout time.Duration

	retries             int
	retriesSet          bool
	retryDelay          time.Duration
	retryDelaySet       bool
	retryStatusCodes    map[int]struct{}
	retryStatusCodesSet bool
	retryExceptions     []string

	proxy          string
	cookies        map[string]string
	allowRedirects bool
	cert, sslKey   string
	stream         bool

	cache CacheOptions

	async    bool
	debug    bool
	profiler bool
}

// NewRequestContext builds an immutable context from a validated Options
// value. Build builds a RequestContext from merge layers in one step.
func NewRequestContext(o *Options) *RequestContext {
	return &RequestContext{
		method:           o.Method,
		baseURI:          o.BaseURI,
		uri:              o.URI,
		headers:          cloneHeader(o.Headers),
		query:            cloneValues(o.Query),
		body:             o.Body,
		timeout:          o.Timeout,
		connectTimeout:   o.ConnectTimeout,
		retries:             o.Retries,
		retriesSet:          o.RetriesSet,
		retryDelay:          o.RetryDelay,
		retryDelaySet:       o.RetryDelaySet,
		retryStatusCodes:    cloneIntSet(o.RetryStatusCodes),
		retryStatusCodesSet: o.RetryStatusCodesSet,
		retryExceptions:     append([]string(nil), o.RetryExceptions...),
		proxy:            o.Proxy,
		cookies:          cloneStringMap(o.Cookies),
		allowRedirects:   o.AllowRedirects,
		cert:             o.Cert,
		sslKey:           o.SSLKey,
		stream:           o.Stream,
		cache:            o.Cache,
		async:            o.Async,
		debug:            o.Debug,
		profiler:         o.Profiler,
	}
}

// Build merges layers (library defaults, global defaults, handler
// defaults, per-call options, method override — in that order) and
// returns the resulting immutable RequestContext.
func Build(layers ...RawOptions) (*RequestContext, error) {
	opts, err := MergeOptions(layers...)
	if err != nil {
		return nil, err
	}
	return NewRequestContext(opts), nil
}

func (c *RequestContext) Method() string                    { return c.method }
func (c *RequestContext) BaseURI() string                    { return c.baseURI }
func (c *RequestContext) URI() string                        { return c.uri }
func (c *RequestContext) Headers() http.Header                { return cloneHeader(c.headers) }
func (c *RequestContext) Query() url.Values                  { return cloneValues(c.query) }
func (c *RequestContext) Body() Body                          { return c.body }
func (c *RequestContext) Timeout() time.Duration             { return c.timeout }
func (c *RequestContext) ConnectTimeout() time.Duration       { return c.connectTimeout }
func (c *RequestContext) Retries() int                        { return c.retries }
func (c *RequestContext) RetryDelay() time.Duration           { return c.retryDelay }
func (c *RequestContext) Cache() CacheOptions                 { return c.cache }
func (c *RequestContext) Async() bool                          { return c.async }
func (c *RequestContext) Debug() bool                          { return c.debug }
func (c *RequestContext) Profiler() bool                       { return c.profiler }
func (c *RequestContext) AllowRedirects() bool                 { return c.allowRedirects }
func (c *RequestContext) Proxy() string                        { return c.proxy }
func (c *RequestContext) Cookies() map[string]string           { return cloneStringMap(c.cookies) }
func (c *RequestContext) Cert() (cert, key string)              { return c.cert, c.sslKey }
func (c *RequestContext) Stream() bool                          { return c.stream }

// RetriesSet reports whether this request explicitly supplied a
// "retries" option, distinguishing an explicit retries:0 (exactly one
// attempt, §8's boundary case) from "unset, use the handler default".
func (c *RequestContext) RetriesSet() bool { return c.retriesSet }

// RetryDelaySet reports whether this request explicitly supplied a
// "retry_delay" option, distinguishing an explicit retry_delay:0 from
// "unset, use the handler default".
func (c *RequestContext) RetryDelaySet() bool { return c.retryDelaySet }

// RetryStatusCodes returns the per-request override set, or nil if the
// request did not override the global classifier. A request that
// explicitly supplies an empty "retry_status_codes" list still reports
// RetryStatusCodesSet, so it is distinguished from an unset override.
func (c *RequestContext) RetryStatusCodes() map[int]struct{} {
	if !c.retryStatusCodesSet {
		return nil
	}
	return cloneIntSet(c.retryStatusCodes)
}

func (c *RequestContext) RetryExceptions() []string {
	return append([]string(nil), c.retryExceptions...)
}

func (c *RequestContext) clone() *RequestContext {
	cp := *c
	cp.headers = cloneHeader(c.headers)
	cp.query = cloneValues(c.query)
	cp.retryStatusCodes = cloneIntSet(c.retryStatusCodes)
	cp.retryExceptions = append([]string(nil), c.retryExceptions...)
	cp.cookies = cloneStringMap(c.cookies)
	return &cp
}

// WithHeader returns a new context with header set to value, leaving the
// receiver unchanged.
func (c *RequestContext) WithHeader(key, value string) *RequestContext {
	cp := c.clone()
	cp.headers.Set(key, value)
	return cp
}

// WithQueryParam returns a new context with an additional query parameter.
func (c *RequestContext) WithQueryParam(key, value string) *RequestContext {
	cp := c.clone()
	cp.query.Add(key, value)
	return cp
}

// WithMethod returns a new context with a different HTTP method.
func (c *RequestContext) WithMethod(method string) *RequestContext {
	cp := c.clone()
	cp.method = method
	return cp
}

// WithBody returns a new context carrying a different body.
func (c *RequestContext) WithBody(b Body) *RequestContext {
	cp := c.clone()
	cp.body = b
	return cp
}

// WithTimeout returns a new context with a different per-attempt timeout.
func (c *RequestContext) WithTimeout(d time.Duration) *RequestContext {
	cp := c.clone()
	cp.timeout = d
	return cp
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vv := range v {
		out[k] = append([]string(nil), vv...)
	}
	return out
}

func cloneIntSet(m map[int]struct{}) map[int]struct{} {
	out := make(map[int]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
