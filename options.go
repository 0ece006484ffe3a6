package gofetch

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RawOptions is the open, free-form mapping callers and handler config
// describe a request with. MergeOptions normalizes any number of these,
// applied in increasing precedence, into a single validated Options value.
type RawOptions map[string]any

// aliasKeys rewrites alternate spellings onto the canonical key recognized
// by the merger. Canonicalization happens before precedence is applied so
// that a later layer's alias correctly overrides an earlier layer's
// canonical key and vice versa.
var aliasKeys = map[string]string{
	"max_retries": "retries",
	"retry_count": "retries",
	"connectTimeout": "connect_timeout",
}

var knownMethods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true,
	http.MethodPut: true, http.MethodPatch: true, http.MethodDelete: true,
	http.MethodOptions: true,
}

// CacheOptions carries the per-request cache sub-options of §3.
type CacheOptions struct {
	Enabled        bool
	TTL            time.Duration
	ForceRefresh   bool
	Key            string
	CacheBody      bool
	RespectHeaders bool
	IsSharedCache  bool
}

// Options is the closed, validated set of recognized request options
// produced by merge. It is the input RequestContext is built from.
type Options struct {
	Method  string
	BaseURI string
	URI     string
	Headers http.Header
	Query   url.Values

	Body Body

	Timeout        time.Duration
	ConnectTimeout time.Duration

	Retries          int
	RetriesSet       bool
	RetryDelay       time.Duration
	RetryDelaySet    bool
	RetryStatusCodes map[int]struct{}
	RetryStatusCodesSet bool
	RetryExceptions  []string

	AuthUser, AuthPass string
	Token              string

	Proxy          string
	Cookies        map[string]string
	AllowRedirects bool
	Cert, SSLKey   string
	Stream         bool

	Cache CacheOptions

	Async    bool
	Debug    bool
	Profiler bool
}

// MergeOptions normalizes a sequence of RawOptions layers, each layer
// overriding the previous on conflicting keys, into a validated Options
// value. The expected call order is library defaults, global defaults,
// handler-scoped defaults, per-call options, method override — but merge
// itself is agnostic to the number or intent of layers; it is a pure
// function over its inputs (§8 invariant: deterministic, P wins on
// conflict, every recognized key of the last layer survives).
func MergeOptions(layers ...RawOptions) (*Options, error) {
	combined := make(map[string]any)
	for _, layer := range layers {
		for k, v := range layer {
			canon := k
			if alias, ok := aliasKeys[k]; ok {
				canon = alias
			}
			combined[canon] = v
		}
	}
	return buildOptions(combined)
}

func buildOptions(m map[string]any) (*Options, error) {
	opts := &Options{
		Headers:          make(http.Header),
		Query:            make(url.Values),
		RetryStatusCodes: map[int]struct{}{},
		Cookies:          map[string]string{},
	}

	if v, ok := m["method"]; ok {
		method, ok := v.(string)
		if !ok {
			return nil, &InvalidOption{Field: "method", Reason: "must be a string"}
		}
		method = strings.ToUpper(method)
		if !knownMethods[method] {
			return nil, &InvalidOption{Field: "method", Reason: fmt.Sprintf("unknown verb %q", method)}
		}
		opts.Method = method
	} else {
		opts.Method = http.MethodGet
	}

	if v, ok := m["base_uri"]; ok {
		base, ok := v.(string)
		if !ok {
			return nil, &InvalidOption{Field: "base_uri", Reason: "must be a string"}
		}
		if base != "" {
			parsed, err := url.Parse(base)
			if err != nil || !parsed.IsAbs() {
				return nil, &InvalidOption{Field: "base_uri", Reason: "must parse as an absolute URI"}
			}
		}
		opts.BaseURI = base
	}

	if v, ok := m["uri"]; ok {
		if s, ok := v.(string); ok {
			opts.URI = s
		}
	}
	if v, ok := m["url"]; ok {
		if s, ok := v.(string); ok && opts.URI == "" {
			opts.URI = s
		}
	}

	if v, ok := m["headers"]; ok {
		hdrs, ok := v.(map[string]string)
		if !ok {
			return nil, &InvalidOption{Field: "headers", Reason: "must be a string map"}
		}
		for k, val := range hdrs {
			// Case-insensitive mapping; last write wins is naturally
			// satisfied by http.Header.Set canonicalizing the key.
			opts.Headers.Set(k, val)
		}
	}

	if v, ok := m["query"]; ok {
		q, ok := v.(map[string]string)
		if !ok {
			return nil, &InvalidOption{Field: "query", Reason: "must be a string map"}
		}
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			opts.Query.Add(k, q[k])
		}
	}

	if err := mergeBody(m, opts); err != nil {
		return nil, err
	}
	applyImpliedHeaders(opts)

	timeout, err := durationSeconds(m, "timeout", 30*time.Second)
	if err != nil {
		return nil, err
	}
	opts.Timeout = timeout

	if _, hasConnect := m["connect_timeout"]; hasConnect {
		ct, err := durationSeconds(m, "connect_timeout", timeout)
		if err != nil {
			return nil, err
		}
		opts.ConnectTimeout = ct
	} else {
		opts.ConnectTimeout = timeout
	}

	retries := 0
	if v, ok := m["retries"]; ok {
		n, ok := toInt(v)
		if !ok || n < 0 {
			return nil, &InvalidOption{Field: "retries", Reason: "must be a non-negative integer"}
		}
		retries = n
		opts.RetriesSet = true
	}
	opts.Retries = retries

	retryDelay := 0 * time.Millisecond
	if v, ok := m["retry_delay"]; ok {
		n, ok := toInt(v)
		if !ok || n < 0 {
			return nil, &InvalidOption{Field: "retry_delay", Reason: "must be a non-negative integer of milliseconds"}
		}
		retryDelay = time.Duration(n) * time.Millisecond
		opts.RetryDelaySet = true
	}
	opts.RetryDelay = retryDelay

	if v, ok := m["retry_status_codes"]; ok {
		codes, ok := v.([]int)
		if !ok {
			return nil, &InvalidOption{Field: "retry_status_codes", Reason: "must be a list of ints"}
		}
		opts.RetryStatusCodesSet = true
		for _, c := range codes {
			opts.RetryStatusCodes[c] = struct{}{}
		}
	}
	if v, ok := m["retry_exceptions"]; ok {
		exs, ok := v.([]string)
		if !ok {
			return nil, &InvalidOption{Field: "retry_exceptions", Reason: "must be a list of strings"}
		}
		opts.RetryExceptions = exs
	}

	if v, ok := m["auth"]; ok {
		pair, ok := v.([2]string)
		if !ok {
			return nil, &InvalidOption{Field: "auth", Reason: "must be a [2]string{user, pass}"}
		}
		opts.AuthUser, opts.AuthPass = pair[0], pair[1]
		if opts.Headers.Get("Authorization") == "" {
			creds := base64.StdEncoding.EncodeToString([]byte(pair[0] + ":" + pair[1]))
			opts.Headers.Set("Authorization", "Basic "+creds)
		}
	}
	if v, ok := m["token"]; ok {
		token, ok := v.(string)
		if !ok {
			return nil, &InvalidOption{Field: "token", Reason: "must be a string"}
		}
		opts.Token = token
		if opts.Headers.Get("Authorization") == "" {
			opts.Headers.Set("Authorization", "Bearer "+token)
		}
	}

	if v, ok := m["proxy"]; ok {
		if s, ok := v.(string); ok {
			opts.Proxy = s
		}
	}
	if v, ok := m["cookies"]; ok {
		if cm, ok := v.(map[string]string); ok {
			opts.Cookies = cm
		}
	}
	opts.AllowRedirects = true
	if v, ok := m["allow_redirects"]; ok {
		if b, ok := v.(bool); ok {
			opts.AllowRedirects = b
		}
	}
	if v, ok := m["cert"]; ok {
		if s, ok := v.(string); ok {
			opts.Cert = s
		}
	}
	if v, ok := m["ssl_key"]; ok {
		if s, ok := v.(string); ok {
			opts.SSLKey = s
		}
	}
	if v, ok := m["stream"]; ok {
		if b, ok := v.(bool); ok {
			opts.Stream = b
		}
	}

	if err := mergeCacheOptions(m, opts); err != nil {
		return nil, err
	}

	if v, ok := m["async"]; ok {
		if b, ok := v.(bool); ok {
			opts.Async = b
		}
	}
	if v, ok := m["debug"]; ok {
		if b, ok := v.(bool); ok {
			opts.Debug = b
		}
	}
	if v, ok := m["profiler"]; ok {
		if b, ok := v.(bool); ok {
			opts.Profiler = b
		}
	}

	return opts, nil
}

func mergeCacheOptions(m map[string]any, opts *Options) error {
	opts.Cache.RespectHeaders = true
	v, ok := m["cache"]
	if !ok {
		return nil
	}
	sub, ok := v.(map[string]any)
	if !ok {
		return &InvalidOption{Field: "cache", Reason: "must be a sub-option map"}
	}
	if b, ok := sub["enabled"].(bool); ok {
		opts.Cache.Enabled = b
	}
	if n, ok := sub["ttl"]; ok {
		secs, ok := toInt(n)
		if !ok || secs < 0 {
			return &InvalidOption{Field: "cache.ttl", Reason: "must be a non-negative integer of seconds"}
		}
		opts.Cache.TTL = time.Duration(secs) * time.Second
	}
	if b, ok := sub["force_refresh"].(bool); ok {
		opts.Cache.ForceRefresh = b
	}
	if s, ok := sub["key"].(string); ok {
		opts.Cache.Key = s
	}
	if b, ok := sub["cache_body"].(bool); ok {
		opts.Cache.CacheBody = b
	}
	if b, ok := sub["respect_headers"].(bool); ok {
		opts.Cache.RespectHeaders = b
	}
	if b, ok := sub["is_shared_cache"].(bool); ok {
		opts.Cache.IsSharedCache = b
	}
	return nil
}

// mergeBody enforces the precedence json > form > multipart > raw_body,
// discarding lower-precedence sources once a higher one is present.
func mergeBody(m map[string]any, opts *Options) error {
	if v, ok := m["json"]; ok {
		opts.Body = Body{Kind: BodyJSON, JSONValue: v}
		return nil
	}
	if v, ok := m["form"]; ok {
		form, ok := v.(map[string]string)
		if !ok {
			return &InvalidOption{Field: "form", Reason: "must be a string map"}
		}
		opts.Body = Body{Kind: BodyForm, FormValue: form}
		return nil
	}
	if v, ok := m["multipart"]; ok {
		parts, ok := v.([]MultipartPart)
		if !ok {
			return &InvalidOption{Field: "multipart", Reason: "must be a []MultipartPart"}
		}
		opts.Body = Body{Kind: BodyMultipart, Parts: parts, Boundary: newBoundary()}
		return nil
	}
	if v, ok := m["body"]; ok {
		switch b := v.(type) {
		case []byte:
			ct, _ := m["content_type"].(string)
			opts.Body = Body{Kind: BodyRaw, Raw: b, RawType: ct}
		case string:
			ct, _ := m["content_type"].(string)
			opts.Body = Body{Kind: BodyRaw, Raw: []byte(b), RawType: ct}
		default:
			return &InvalidOption{Field: "body", Reason: "must be []byte or string"}
		}
		return nil
	}
	opts.Body = Body{Kind: BodyNone}
	return nil
}

// applyImpliedHeaders sets the Content-Type a body source implies, unless
// the caller already supplied an explicit override.
func applyImpliedHeaders(opts *Options) {
	if opts.Body.IsEmpty() {
		return
	}
	if opts.Headers.Get("Content-Type") == "" {
		if ct := opts.Body.ContentType(); ct != "" {
			opts.Headers.Set("Content-Type", ct)
		}
	}
}

func newBoundary() string {
	return "gofetch-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func durationSeconds(m map[string]any, key string, def time.Duration) (time.Duration, error) {
	v, ok := m[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case time.Duration:
		if n <= 0 {
			return 0, &InvalidOption{Field: key, Reason: "must be positive"}
		}
		return n, nil
	case int:
		if n <= 0 {
			return 0, &InvalidOption{Field: key, Reason: "must be a positive number of seconds"}
		}
		return time.Duration(n) * time.Second, nil
	case float64:
		if n <= 0 {
			return 0, &InvalidOption{Field: key, Reason: "must be a positive number of seconds"}
		}
		return time.Duration(n * float64(time.Second)), nil
	default:
		return 0, &InvalidOption{Field: key, Reason: "must be a number of seconds"}
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

