package gofetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mchtech/gofetch/cache"
	"github.com/mchtech/gofetch/cache/memcache"
	"github.com/mchtech/gofetch/cachekey"
	"github.com/mchtech/gofetch/debug"
	"github.com/mchtech/gofetch/dnscache"
	"github.com/mchtech/gofetch/mock"
	"github.com/mchtech/gofetch/pool"
	"github.com/mchtech/gofetch/retry"
)

// Executor is the choreographer of §4.9: it owns the collaborators a send
// wires together (mock registry, cache manager, connection pool, retry
// strategy, profiler) and runs one request through all of them in the
// documented order.
type Executor struct {
	Mock  *mock.Registry
	Cache *cache.Manager
	Pool  *pool.Pool
	Retry *retry.Strategy
	DNS   *dnscache.Cache

	DebugConfig debug.Config
	Profiler    *debug.Profiler

	CacheKeyPrefix string
	Logger         *slog.Logger

	// Defaults is the lowest-precedence RawOptions layer (library
	// defaults); callers supply handler-scoped and per-call layers to
	// Send.
	Defaults RawOptions

	// dedup coalesces concurrent identical in-flight requests registered
	// through Dedup (§4.1's async facade), grounded on cache/manager.go's
	// use of the same singleflight.Group for concurrent Lookup misses.
	dedup singleflight.Group
}

// NewExecutor builds an Executor with sensible defaults: an allow-stray
// mock registry (unmatched requests fall through to the network), an
// in-memory cache manager
// backed by memcache.Cache (§2's "in-memory LRU" default backend), a
// default connection pool, and the default retry strategy.
func NewExecutor() *Executor {
	return &Executor{
		Mock:        mock.New(false),
		Cache:       cache.NewManager(memcache.New(0, 0), cache.DefaultConfig(), nil),
		Pool:        pool.New(pool.Default()),
		Retry:       retry.New(retry.DefaultConfig()),
		DNS:         dnscache.New(nil, 0, 0),
		DebugConfig: debug.DefaultConfig(),
		Profiler:    debug.NewProfiler(),
		Logger:      slog.Default(),
	}
}

// transport returns the RoundTripper chain the executor sends through:
// mock registry -> NO_NETWORK guard -> real pool transport (a request
// reaches the guard only when no mock matched and stray requests are
// allowed).
func (ex *Executor) transport() http.RoundTripper {
	base := guardNetwork(ex.Pool.Transport())
	if ex.Mock == nil {
		return base
	}
	return &mock.Transport{Registry: ex.Mock, Fallback: base}
}

// Send runs one request through the full pipeline described by §4.9,
// merging layers (library defaults first, callOptions last) into a
// RequestContext before building the absolute URI and dispatching.
func (ex *Executor) Send(ctx context.Context, callOptions RawOptions) (*Response, error) {
	layers := make([]RawOptions, 0, 2)
	if ex.Defaults != nil {
		layers = append(layers, ex.Defaults)
	}
	layers = append(layers, callOptions)

	rc, err := Build(layers...)
	if err != nil {
		return nil, err
	}
	return ex.send(ctx, rc)
}

func (ex *Executor) send(ctx context.Context, rc *RequestContext) (*Response, error) {
	uri, err := BuildURI(rc.BaseURI(), rc.URI(), rc.Query())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	cacheOpts := rc.Cache()
	sync := !rc.Async()

	var keyReq cachekey.Request
	var key string
	var lookup cache.LookupResult
	cacheable := sync && cacheOpts.Enabled && ex.Cache != nil

	if cacheable {
		keyReq, key = ex.buildCacheKey(rc, uri)
		if !cacheOpts.ForceRefresh {
			lookup = ex.Cache.Lookup(ctx, key, start, keyReq.VaryValues)
		}
	}

	switch lookup.Status {
	case cache.Hit:
		return ex.respondFromCache(lookup.Entry).WithCacheStatus("HIT"), nil
	case cache.Stale:
		if lookup.StaleReason == cache.StaleReasonServeWhileRevalidating {
			go ex.revalidateInBackground(rc, uri, key, keyReq, lookup.Entry)
			return ex.respondFromCache(lookup.Entry).WithCacheStatus("STALE"), nil
		}
		rc = injectConditionalHeaders(rc, lookup.Entry)
	}

	resp, outcome, reused, timings := ex.attemptWithRetry(ctx, rc, uri)
	if outcome.Err != nil {
		if cacheable && ex.Cache.CanServeStaleIfError(lookup.Entry, time.Now()) {
			return ex.respondFromCache(lookup.Entry).WithCacheStatus("STALE-IF-ERROR"), nil
		}
		return nil, outcome.Err
	}

	if resp.StatusCode == http.StatusNotModified && lookup.Entry != nil {
		merged := cache.MergeNotModified(lookup.Entry, resp.Headers)
		directives := cachekey.ParseCacheControl(firstHeaderValue(merged.Headers, "Cache-Control"))
		now := time.Now()
		date := parseHTTPDate(firstHeaderValue(merged.Headers, "Date"))
		expires := parseHTTPDate(firstHeaderValue(merged.Headers, "Expires"))
		ttl := ex.Cache.DeriveTTL(cacheOpts.TTL, directives, date, expires, cacheOpts.IsSharedCache)
		merged.StoredAt = now
		merged.FreshUntil = now.Add(ttl)
		if secs, ok := directives.Int("stale-if-error"); ok {
			merged.StaleIfError = time.Duration(secs) * time.Second
		}
		resp = entryToResponse(merged)
		resp.WithCacheStatus("REVALIDATED")
		if cacheable {
			ex.Cache.Store(key, merged)
		}
	} else if cacheable {
		ex.maybeStore(rc, uri, key, keyReq, resp)
		if cacheOpts.ForceRefresh {
			resp.WithCacheStatus("REFRESH")
		} else {
			resp.WithCacheStatus("MISS")
		}
	} else if sync && !cacheOpts.Enabled {
		resp.WithCacheStatus("BYPASS")
	}

	// debug and profiler are independent activation flags (§3): a caller
	// may request a profiler recording without asking for a snapshot
	// attached to the response, or vice versa.
	if rc.Debug() || rc.Profiler() {
		timings.Start = start
		timings.Complete = time.Since(start)
		snap := debug.NewSnapshot(
			ex.DebugConfig, rc.Method(), uri, rc.Headers(), nil,
			resp.StatusCode, resp.Headers, resp.Body(),
			timings, 0, reused,
		)
		if rc.Debug() {
			resp.WithDebugInfo(snap)
		}
		if rc.Profiler() && ex.Profiler != nil {
			ex.Profiler.Record(rc.Method()+" "+uri, snap)
		}
	}

	return resp, nil
}

// buildCacheKey derives the cachekey.Request and string key for rc/uri,
// honoring an explicit per-request key override (§4.2).
func (ex *Executor) buildCacheKey(rc *RequestContext, uri string) (cachekey.Request, string) {
	parsed, _ := url.Parse(uri)
	host, port := cachekey.ParsePort(parsed.Host)
	vary := map[string]string{}
	for _, h := range ex.Cache.VaryHeaders() {
		if v := rc.Headers().Get(h); v != "" {
			vary[strings.ToLower(h)] = v
		}
	}

	var bodyBytes []byte
	if rc.Cache().CacheBody && !rc.Body().IsEmpty() {
		bodyBytes, _ = encodeBody(rc.Body())
	}

	kreq := cachekey.Request{
		Method:      rc.Method(),
		Scheme:      parsed.Scheme,
		Host:        host,
		Port:        port,
		Path:        parsed.Path,
		Query:       parsed.Query(),
		VaryHeaders: ex.Cache.VaryHeaders(),
		VaryValues:  vary,
		Body:        bodyBytes,
	}
	key := cachekey.Generate(kreq, cachekey.Options{Prefix: ex.CacheKeyPrefix, Explicit: rc.Cache().Key})
	return kreq, key
}

func injectConditionalHeaders(rc *RequestContext, entry *cache.CachedEntry) *RequestContext {
	if entry.ETag != "" {
		rc = rc.WithHeader("If-None-Match", entry.ETag)
	}
	if entry.LastModified != "" {
		rc = rc.WithHeader("If-Modified-Since", entry.LastModified)
	}
	return rc
}

func (ex *Executor) revalidateInBackground(rc *RequestContext, uri, key string, keyReq cachekey.Request, entry *cache.CachedEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), rc.Timeout())
	defer cancel()
	revalidated := injectConditionalHeaders(rc, entry)
	resp, outcome, _, _ := ex.attemptWithRetry(ctx, revalidated, uri)
	if outcome.Err != nil {
		ex.logger().Warn("gofetch: background revalidation failed", "uri", uri, "error", outcome.Err)
		return
	}
	ex.maybeStore(rc, uri, key, keyReq, resp)
}

func (ex *Executor) logger() *slog.Logger {
	if ex.Logger != nil {
		return ex.Logger
	}
	return slog.Default()
}

// maybeStore writes resp into the cache if CanStore allows it, recomputing
// the freshness window via DeriveTTL.
func (ex *Executor) maybeStore(rc *RequestContext, uri, key string, keyReq cachekey.Request, resp *Response) {
	directives := cachekey.ParseCacheControl(resp.Header("Cache-Control"))
	cacheOpts := rc.Cache()
	if !ex.Cache.CanStore(rc.Method(), resp.StatusCode, directives, cacheOpts.RespectHeaders, cacheOpts.IsSharedCache) {
		return
	}
	now := time.Now()
	date := parseHTTPDate(resp.Header("Date"))
	expires := parseHTTPDate(resp.Header("Expires"))
	ttl := ex.Cache.DeriveTTL(cacheOpts.TTL, directives, date, expires, cacheOpts.IsSharedCache)

	body := resp.Body()
	if !cacheOpts.CacheBody {
		body = nil
	}
	var sieWindow time.Duration
	if secs, ok := directives.Int("stale-if-error"); ok {
		sieWindow = time.Duration(secs) * time.Second
	}

	entry := &cache.CachedEntry{
		Status:       resp.StatusCode,
		Headers:      map[string][]string(resp.Headers),
		Body:         body,
		StoredAt:     now,
		FreshUntil:   now.Add(ttl),
		ETag:         resp.Header("Etag"),
		LastModified: resp.Header("Last-Modified"),
		Vary:         keyReq.VaryValues,
		StaleIfError: sieWindow,
	}
	ex.Cache.Store(key, entry)
}

// firstHeaderValue looks up name in a map[string][]string header set
// case-insensitively, returning its first value or "" if absent.
func firstHeaderValue(headers map[string][]string, name string) string {
	if v, ok := headers[name]; ok && len(v) > 0 {
		return v[0]
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func parseHTTPDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (ex *Executor) respondFromCache(entry *cache.CachedEntry) *Response {
	return entryToResponse(entry)
}

func entryToResponse(entry *cache.CachedEntry) *Response {
	headers := make(http.Header, len(entry.Headers))
	for k, v := range entry.Headers {
		headers[k] = append([]string(nil), v...)
	}
	return NewResponse(entry.Status, headers, entry.Body)
}

// strategyFor builds the retry.Strategy that should govern this call,
// overlaying rc's per-request retries/retry_delay/retry_status_codes/
// retry_exceptions overrides onto ex.Retry's configuration (§9: "always
// read from the immutable RequestContext; handler state is the default
// only, never mutated mid-send"). It returns ex.Retry unchanged when rc
// carries no overrides, so the common case allocates nothing new.
func (ex *Executor) strategyFor(rc *RequestContext) *retry.Strategy {
	if !rc.RetriesSet() && !rc.RetryDelaySet() && rc.RetryStatusCodes() == nil && len(rc.RetryExceptions()) == 0 {
		return ex.Retry
	}

	cfg := ex.Retry.Config()
	if rc.RetriesSet() {
		// retries is the count of extra attempts beyond the first
		// (§3), so MaxAttempts is one more; retries:0 means exactly
		// one attempt, the boundary case §8 names.
		cfg.MaxAttempts = rc.Retries() + 1
	}
	if rc.RetryDelaySet() {
		cfg.BaseDelay = rc.RetryDelay()
	}
	if codes := rc.RetryStatusCodes(); codes != nil {
		statusCodes := make(map[int]bool, len(codes))
		for c := range codes {
			statusCodes[c] = true
		}
		cfg.StatusCodes = statusCodes
	}
	if exceptions := rc.RetryExceptions(); len(exceptions) > 0 {
		cfg.IsRetryableErr = retryableErrByNames(exceptions)
	}
	return retry.New(cfg)
}

// retryableErrByNames builds an IsRetryableErr classifier that treats an
// error as retryable only if it unwraps to one of the named gofetch
// error types (§3's "retry_exceptions" option), instead of the default
// blanket classification of every transient network error.
func retryableErrByNames(names []string) func(error) bool {
	allow := make(map[string]bool, len(names))
	for _, n := range names {
		allow[n] = true
	}
	return func(err error) bool {
		if err == nil {
			return false
		}
		var netErr *NetworkError
		var timeoutErr *TimeoutError
		var reqErr *RequestError
		switch {
		case errors.As(err, &timeoutErr):
			return allow["TimeoutError"] || allow["timeout"]
		case errors.As(err, &netErr):
			return allow["NetworkError"] || allow["network"]
		case errors.As(err, &reqErr):
			return allow["RequestError"] || allow["request"]
		default:
			return false
		}
	}
}

// attemptWithRetry runs rc's send through the strategy strategyFor
// derives for it, checking out and releasing a pool connection on every
// attempt and honoring both rc.Timeout() and rc.ConnectTimeout() per
// §4.9 step 5b.
func (ex *Executor) attemptWithRetry(ctx context.Context, rc *RequestContext, uri string) (*Response, retry.Outcome, bool, debug.Timings) {
	var resp *Response
	var reused bool
	var timings debug.Timings

	outcome := ex.strategyFor(rc).Do(ctx, func(ctx context.Context, attemptNum int) retry.Outcome {
		checkoutCtx, checkoutCancel := context.WithTimeout(ctx, rc.ConnectTimeout())
		ex.warmDNS(checkoutCtx, uri)
		release, err := ex.Pool.Checkout(checkoutCtx, uri)
		checkoutCancel()
		if err != nil {
			return retry.Outcome{Err: &NetworkError{Method: rc.Method(), URI: uri, Err: err}}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, rc.Timeout())
		defer cancel()

		attemptStart := time.Now()
		r, conn, phases, err := ex.doOnce(attemptCtx, rc, uri)
		release(pool.ReleaseInfo{
			Reused:       conn.reused,
			Elapsed:      time.Since(attemptStart),
			Reusable:     conn.reusable,
			NegotiatedH2: conn.negotiatedH2,
		})
		reused = conn.reused
		timings = phases

		if err != nil {
			return classifyError(rc, uri, err)
		}
		resp = r
		return retry.Outcome{StatusCode: r.StatusCode}
	})

	return resp, outcome, reused, timings
}

// warmDNS resolves uri's host through ex.DNS, if configured, purely to
// warm the resolver cache ahead of pool checkout (§4.5): the transport
// still performs its own resolution regardless of the outcome here, so
// failures are ignored.
func (ex *Executor) warmDNS(ctx context.Context, uri string) {
	if ex.DNS == nil {
		return
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return
	}
	host := parsed.Hostname()
	if host == "" {
		return
	}
	_, _ = ex.DNS.Resolve(ctx, host)
}

func classifyError(rc *RequestContext, uri string, err error) retry.Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return retry.Outcome{Err: &TimeoutError{Method: rc.Method(), URI: uri, Err: err}}
	}
	return retry.Outcome{Err: &NetworkError{Method: rc.Method(), URI: uri, Err: err}}
}

// connInfo reports what doOnce learned about the physical connection an
// attempt ran over, for the pool's release accounting (§4.4): whether it
// was reused, whether the response leaves it eligible for reuse, and
// whether this attempt is the one that discovered the host negotiates
// HTTP/2.
type connInfo struct {
	reused       bool
	reusable     bool
	negotiatedH2 bool
}

// doOnce performs exactly one HTTP round trip for rc against uri, using
// an httptrace.ClientTrace to learn whether the connection was reused
// and to time the dns/connect/tls/first-byte phases §4.8's DebugSnapshot
// names (the stdlib transport does not surface any of this any other
// way).
func (ex *Executor) doOnce(ctx context.Context, rc *RequestContext, uri string) (*Response, connInfo, debug.Timings, error) {
	bodyBytes, err := encodeBody(rc.Body())
	if err != nil {
		return nil, connInfo{}, debug.Timings{}, err
	}

	var bodyReader io.Reader
	if bodyBytes != nil {
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, rc.Method(), uri, bodyReader)
	if err != nil {
		return nil, connInfo{}, debug.Timings{}, err
	}
	req.Header = rc.Headers()
	for name, value := range rc.Cookies() {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	var conn connInfo
	var dnsStart, connectStart, tlsStart, reqStart time.Time
	timings := debug.Timings{Start: time.Now()}
	reqStart = timings.Start
	trace := &httptrace.ClientTrace{
		GotConn:           func(info httptrace.GotConnInfo) { conn.reused = info.Reused },
		DNSStart:          func(httptrace.DNSStartInfo) { dnsStart = time.Now() },
		DNSDone:           func(httptrace.DNSDoneInfo) { timings.DNS = time.Since(dnsStart) },
		ConnectStart:      func(string, string) { connectStart = time.Now() },
		ConnectDone:       func(string, string, error) { timings.Connect = time.Since(connectStart) },
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			timings.TLS = time.Since(tlsStart)
			conn.negotiatedH2 = state.NegotiatedProtocol == "h2"
		},
		GotFirstResponseByte: func() { timings.FirstByte = time.Since(reqStart) },
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	client := &http.Client{
		Transport: ex.transport(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !rc.AllowRedirects() {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	if cert, key := rc.Cert(); cert != "" && key != "" {
		client.Transport = withClientCert(client.Transport, cert, key)
	}

	httpResp, err := client.Do(req)
	if err != nil {
		timings.Complete = time.Since(reqStart)
		return nil, conn, timings, err
	}
	defer httpResp.Body.Close()
	if httpResp.ProtoMajor >= 2 {
		conn.negotiatedH2 = true
	}
	conn.reusable = !httpResp.Close

	body, err := io.ReadAll(httpResp.Body)
	timings.Complete = time.Since(reqStart)
	if err != nil {
		return nil, conn, timings, err
	}

	return NewResponse(httpResp.StatusCode, httpResp.Header, body), conn, timings, nil
}

// withClientCert layers client-certificate TLS config onto a RoundTripper
// chain for mutual-TLS requests (§3's cert/ssl_key option pair). It
// unwraps the guard/mock layers Executor.transport composes to find the
// innermost *http.Transport; if none is found the certificate option is
// ignored and the chain is used unmodified.
func withClientCert(rt http.RoundTripper, certFile, keyFile string) http.RoundTripper {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return rt
	}

	switch t := rt.(type) {
	case *http.Transport:
		clone := t.Clone()
		if clone.TLSClientConfig == nil {
			clone.TLSClientConfig = &tls.Config{}
		}
		clone.TLSClientConfig.Certificates = append(clone.TLSClientConfig.Certificates, cert)
		return clone
	case *guardedTransport:
		return &guardedTransport{base: withClientCert(t.base, certFile, keyFile)}
	case *mock.Transport:
		clone := *t
		clone.Fallback = withClientCert(t.Fallback, certFile, keyFile)
		return &clone
	default:
		return rt
	}
}
