// Package pool implements the connection pool of §4.4: a process-global
// http.Transport wrapped with per-host reuse accounting, grounded on
// vasic-digital/SuperAgent's internal/http/pool.go HTTPClientPool (its
// per-host client map, PoolMetrics counters and atomic bookkeeping) and
// generalized from "one *http.Client per host" to the spec's
// "checkout/release against a shared transport, sized per host".
package pool

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

// ErrExhausted is returned by Checkout when neither an idle connection
// nor room under the per-host/global caps becomes available before ctx
// is done, per §4.4 step 3.
var ErrExhausted = errors.New("gofetch/pool: connection pool exhausted")

// Config configures the shared pool transport. Mirrors the fields the
// spec's §4.4 table names. Only MaxConnsPerHost (per-host admission, 10)
// and MaxConnections (100) fall back to a default when zero; every other
// zero field keeps its zero meaning (see MaxLifetime and StreamCap).
type Config struct {
	MaxConnsPerHost     int
	MaxConnections      int
	MaxIdleConnsPerHost int
	MaxIdleConns        int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	ConnectTimeout      time.Duration
	KeepAlive           time.Duration
	TLSHandshakeTimeout time.Duration
	EnableHTTP2         bool
	TLSConfig           *tls.Config

	// MaxLifetime bounds how long a logical Connection may live before it
	// must be discarded on release rather than returned to the idle
	// queue, per §3's Connection invariant ("now - created_at >
	// max_lifetime ... must be discarded on release"). Zero disables the
	// check (a connection is only ever discarded for being non-reusable).
	MaxLifetime time.Duration

	// StreamCap bounds how many concurrent requests may multiplex over a
	// single physical connection once a host is known to negotiate
	// HTTP/2 (§4.4: "the pool allows more than one concurrent request
	// per physical connection up to a configured stream cap"). Ignored
	// for hosts that haven't negotiated h2 yet.
	StreamCap int

	// PerHostRateLimit, when positive, paces Checkout admissions for a
	// single host through a token-bucket limiter ahead of the hard
	// MaxConnsPerHost cap; zero disables it.
	PerHostRateLimit rate.Limit
	PerHostBurst     int
}

// Default returns the pool configuration the spec lists as its defaults.
func Default() Config {
	return Config{
		MaxConnsPerHost:     10,
		MaxConnections:      100,
		MaxIdleConnsPerHost: 10,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		ConnectTimeout:      10 * time.Second,
		KeepAlive:           30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		EnableHTTP2:         true,
		MaxLifetime:         10 * time.Minute,
		StreamCap:           100,
	}
}

// Metrics reports the reuse counters §4.4 names: connections_created,
// connections_reused, total_requests, average_latency_ms, reuse_rate.
type Metrics struct {
	ConnectionsCreated int64
	ConnectionsReused  int64
	TotalRequests      int64
	AverageLatencyMs   float64
	ReuseRate          float64
}

// Connection is the logical per-checkout record named by §3: a host key,
// its creation time, last-used time, and whether it may still be reused.
// It models the pool's own bookkeeping of lifetime and reuse eligibility
// layered over the real socket lifecycle, which the stdlib *http.Transport
// continues to own and pool independently.
type Connection struct {
	HostKey    string
	CreatedAt  time.Time
	LastUsedAt time.Time
	Reusable   bool
}

// expired reports whether c has outlived maxLifetime as of now. A
// non-positive maxLifetime disables the check.
func (c *Connection) expired(maxLifetime time.Duration, now time.Time) bool {
	if maxLifetime <= 0 {
		return false
	}
	return now.Sub(c.CreatedAt) > maxLifetime
}

// ReleaseInfo carries one attempt's outcome back to the func Checkout
// returns: whether the connection was reused (per httptrace, since
// *http.Transport does not expose this any other way), how long the
// attempt took, whether the response leaves the connection reusable
// (status allows keep-alive and neither end sent Connection: close), and
// whether this attempt is the one that discovered the host negotiates
// HTTP/2.
type ReleaseInfo struct {
	Reused       bool
	Elapsed      time.Duration
	Reusable     bool
	NegotiatedH2 bool
}

// hostPool tracks per-host reuse counters atomically, grounded on the
// teacher example's atomic.Int64 fields in PoolMetrics, plus the idle
// FIFO queue of logical Connections and the admission semaphore(s) that
// implement §4.4's per-host cap. sem bounds HTTP/1-style "one concurrent
// request per physical connection"; once the host is known to multiplex
// (§4.4), streamSem (sized MaxConnsPerHost * StreamCap) takes over so a
// single connection can carry more than one in-flight request.
type hostPool struct {
	created      atomic.Int64
	reused       atomic.Int64
	requests     atomic.Int64
	totalLatency atomic.Int64 // microseconds
	active       atomic.Int64

	mu            sync.Mutex
	sem           chan struct{}
	streamSem     chan struct{}
	multiplexable bool
	idle          []*Connection
	limiter       *rate.Limiter
}

// admissionSem returns the channel Checkout should acquire from: the
// plain per-host semaphore until the host is known to multiplex, after
// which it lazily builds and returns the larger stream-cap semaphore.
func (h *hostPool) admissionSem(cfg Config) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.multiplexable {
		return h.sem
	}
	if h.streamSem == nil {
		perHost := cfg.MaxConnsPerHost
		if perHost <= 0 {
			perHost = 10
		}
		streamCap := cfg.StreamCap
		if streamCap <= 0 {
			streamCap = 1
		}
		h.streamSem = make(chan struct{}, perHost*streamCap)
	}
	return h.streamSem
}

// markMultiplexable records that this host has negotiated HTTP/2, so
// subsequent checkouts admit through the larger stream-cap semaphore.
func (h *hostPool) markMultiplexable() {
	h.mu.Lock()
	h.multiplexable = true
	h.mu.Unlock()
}

// popIdle pops the front of the idle FIFO queue, discarding any entries
// that have outlived maxLifetime along the way, and returns the first
// still-reusable Connection found (or nil if the queue is empty/stale).
func (h *hostPool) popIdle(maxLifetime time.Duration, now time.Time) *Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	for len(h.idle) > 0 {
		conn := h.idle[0]
		h.idle = h.idle[1:]
		if !conn.expired(maxLifetime, now) {
			return conn
		}
	}
	return nil
}

// pushIdle returns conn to the idle queue if it is still reusable and
// within its lifetime budget; otherwise it is discarded, per §4.4's
// release algorithm.
func (h *hostPool) pushIdle(conn *Connection, cfg Config) {
	if !conn.Reusable || conn.expired(cfg.MaxLifetime, time.Now()) {
		return
	}
	h.mu.Lock()
	h.idle = append(h.idle, conn)
	h.mu.Unlock()
}

func (h *hostPool) clearIdle() {
	h.mu.Lock()
	h.idle = nil
	h.mu.Unlock()
}

// Pool is the process-global connection pool: one shared *http.Transport
// with per-host checkout accounting layered on top. Safe for concurrent
// use; callers obtain it via Default/New and share the same instance for
// the lifetime of the process (§5).
type Pool struct {
	cfg       Config
	transport *http.Transport
	mu        sync.Mutex
	hosts     map[string]*hostPool
	dialer    *net.Dialer
	global    chan struct{}
}

// New builds a Pool from cfg, wiring HTTP/2 negotiation via
// golang.org/x/net/http2 when cfg.EnableHTTP2 is set, matching the
// teacher's pattern of configuring one shared *http.Transport up front
// rather than per host.
func New(cfg Config) *Pool {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: cfg.KeepAlive}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxIdleConns:          cfg.MaxIdleConns,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		TLSClientConfig:       cfg.TLSConfig,
		ExpectContinueTimeout: time.Second,
	}
	if cfg.EnableHTTP2 {
		_ = http2.ConfigureTransport(transport)
	}
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 100
	}
	return &Pool{
		cfg:       cfg,
		transport: transport,
		hosts:     make(map[string]*hostPool),
		dialer:    dialer,
		global:    make(chan struct{}, maxConns),
	}
}

// Transport returns the shared http.RoundTripper backing the pool. The
// executor wraps it in its NO_NETWORK guard and mock transport.
func (p *Pool) Transport() http.RoundTripper { return p.transport }

func (p *Pool) hostPoolFor(host string) *hostPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.hosts[host]
	if !ok {
		maxPerHost := p.cfg.MaxConnsPerHost
		if maxPerHost <= 0 {
			maxPerHost = 10
		}
		h = &hostPool{sem: make(chan struct{}, maxPerHost)}
		if p.cfg.PerHostRateLimit > 0 {
			burst := p.cfg.PerHostBurst
			if burst <= 0 {
				burst = 1
			}
			h.limiter = rate.NewLimiter(p.cfg.PerHostRateLimit, burst)
		}
		p.hosts[host] = h
	}
	return h
}

// Checkout implements §4.4's checkout algorithm: pop a still-valid idle
// Connection if one is queued; else admit a new one under the per-host
// and global caps (through the stream-cap semaphore instead of the
// plain per-host one once the host is known to multiplex); else block up
// to ctx (bounded by the caller's connect_timeout) for a release, and
// fail with ErrExhausted on timeout. The host.total <= max_per_host and
// global.total <= max_connections invariants (§8) hold at every
// observation point because both are bounded by buffered-channel
// capacity, acquired here and released by the returned func. It returns
// a release func the caller must invoke with the outcome once the round
// trip completes; releasing discards the Connection instead of queuing
// it when ReleaseInfo.Reusable is false or its lifetime budget (§3's
// max_lifetime) has elapsed.
func (p *Pool) Checkout(ctx context.Context, rawURL string) (release func(ReleaseInfo), err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	host := u.Host
	hp := p.hostPoolFor(host)

	if hp.limiter != nil {
		if err := hp.limiter.Wait(ctx); err != nil {
			return nil, ErrExhausted
		}
	}

	sem := hp.admissionSem(p.cfg)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrExhausted
	}
	select {
	case p.global <- struct{}{}:
	case <-ctx.Done():
		<-sem
		return nil, ErrExhausted
	}

	now := time.Now()
	conn := hp.popIdle(p.cfg.MaxLifetime, now)
	if conn == nil {
		conn = &Connection{HostKey: host, CreatedAt: now, Reusable: true}
	}

	hp.active.Inc()
	hp.requests.Inc()

	var released bool
	return func(info ReleaseInfo) {
		if released {
			return
		}
		released = true

		conn.LastUsedAt = time.Now()
		conn.Reusable = info.Reusable

		if info.Reused {
			hp.reused.Inc()
		} else {
			hp.created.Inc()
		}
		hp.totalLatency.Add(info.Elapsed.Microseconds())
		if info.NegotiatedH2 {
			hp.markMultiplexable()
		}
		hp.active.Dec()
		<-p.global
		<-sem

		hp.pushIdle(conn, p.cfg)
	}, nil
}

// Warmup dials host once with the pool's dialer and closes the
// connection. The connection is not handed to the transport's idle pool,
// so a later request does not reuse it.
func (p *Pool) Warmup(ctx context.Context, host string) error {
	conn, err := p.dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (h *hostPool) toMetrics() Metrics {
	requests := h.requests.Load()
	created := h.created.Load()
	reused := h.reused.Load()
	m := Metrics{
		ConnectionsCreated: created,
		ConnectionsReused:  reused,
		TotalRequests:      requests,
	}
	if requests > 0 {
		m.AverageLatencyMs = float64(h.totalLatency.Load()) / float64(requests) / 1000
	}
	if created+reused > 0 {
		m.ReuseRate = float64(reused) / float64(created+reused)
	}
	return m
}

// Metrics aggregates per-host counters into the process-wide totals §4.4
// names.
func (p *Pool) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	var created, reused, requests, totalLatencyUs int64
	for _, h := range p.hosts {
		created += h.created.Load()
		reused += h.reused.Load()
		requests += h.requests.Load()
		totalLatencyUs += h.totalLatency.Load()
	}

	m := Metrics{
		ConnectionsCreated: created,
		ConnectionsReused:  reused,
		TotalRequests:      requests,
	}
	if requests > 0 {
		m.AverageLatencyMs = float64(totalLatencyUs) / float64(requests) / 1000
	}
	if created+reused > 0 {
		m.ReuseRate = float64(reused) / float64(created+reused)
	}
	return m
}

// HostMetrics returns the counters scoped to a single host.
func (p *Pool) HostMetrics(host string) Metrics {
	p.mu.Lock()
	h, ok := p.hosts[host]
	p.mu.Unlock()
	if !ok {
		return Metrics{}
	}
	return h.toMetrics()
}

// CloseIdleConnections releases idle connections held by the pool's
// shared transport and clears every host's logical idle queue.
func (p *Pool) CloseIdleConnections() {
	p.transport.CloseIdleConnections()
	p.mu.Lock()
	hosts := make([]*hostPool, 0, len(p.hosts))
	for _, h := range p.hosts {
		hosts = append(hosts, h)
	}
	p.mu.Unlock()
	for _, h := range hosts {
		h.clearIdle()
	}
}
