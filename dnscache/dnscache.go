// Package dnscache provides the thin TTL-bounded hostname resolution
// cache of §4.5, grounded on github.com/patrickmn/go-cache (declared in
// sgtest-megarepo/grafana's go.mod) for its Set(key, val, ttl)-with-
// janitor expiry model — exactly the "mapping host -> (addresses,
// expires_at)" shape the spec names, without hand-rolling the sweep loop
// the teacher and pack otherwise leave to a library in this domain.
package dnscache

import (
	"context"
	"net"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Resolver is the platform resolver DnsCache wraps. *net.Resolver
// satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// DnsError reports that resolution failed and no cached result (positive
// or negative) was usable.
type DnsError struct {
	Host string
	Err  error
}

func (e *DnsError) Error() string { return "gofetch/dnscache: resolving " + e.Host + ": " + e.Err.Error() }
func (e *DnsError) Unwrap() error  { return e.Err }

const (
	defaultPositiveTTL = 60 * time.Second
	// defaultNegativeTTL is shorter than defaultPositiveTTL so a failing
	// host is retried sooner, bounding failure storms per §4.5 without
	// hammering a resolver that is persistently down.
	defaultNegativeTTL = 5 * time.Second
)

type entry struct {
	addrs []string
	err   error
}

// Cache is a process-global-capable TTL cache in front of a platform
// resolver. It is safe for concurrent use (§5: DnsCache is process-global
// under the same discipline as ConnectionPool).
type Cache struct {
	resolver    Resolver
	store       *gocache.Cache
	positiveTTL time.Duration
	negativeTTL time.Duration
}

// New builds a DnsCache wrapping resolver, with the given positive and
// negative TTLs. A zero resolver defaults to net.DefaultResolver; zero
// TTLs default to 60s positive / 5s negative.
func New(resolver Resolver, positiveTTL, negativeTTL time.Duration) *Cache {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if positiveTTL <= 0 {
		positiveTTL = defaultPositiveTTL
	}
	if negativeTTL <= 0 {
		negativeTTL = defaultNegativeTTL
	}
	return &Cache{
		resolver:    resolver,
		store:       gocache.New(positiveTTL, positiveTTL*2),
		positiveTTL: positiveTTL,
		negativeTTL: negativeTTL,
	}
}

// Resolve returns cached addresses for host if unexpired; otherwise it
// invokes the platform resolver, caches the result (positive or
// negative), and returns it. The executor uses this only to improve pool
// keying, never to override the transport's own resolver (§4.5).
func (c *Cache) Resolve(ctx context.Context, host string) ([]string, error) {
	if v, ok := c.store.Get(host); ok {
		e := v.(entry)
		if e.err != nil {
			return nil, &DnsError{Host: host, Err: e.err}
		}
		return e.addrs, nil
	}

	addrs, err := c.resolver.LookupHost(ctx, host)
	if err != nil {
		c.store.Set(host, entry{err: err}, c.negativeTTL)
		return nil, &DnsError{Host: host, Err: err}
	}
	c.store.Set(host, entry{addrs: addrs}, c.positiveTTL)
	return addrs, nil
}

// ResolveFirst returns the first resolved address for host, or a
// *DnsError.
func (c *Cache) ResolveFirst(ctx context.Context, host string) (string, error) {
	addrs, err := c.Resolve(ctx, host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", &DnsError{Host: host, Err: net.ErrClosed}
	}
	return addrs[0], nil
}

// Clear evicts host from the cache, or every entry if host is empty.
func (c *Cache) Clear(host string) {
	if host == "" {
		c.store.Flush()
		return
	}
	c.store.Delete(host)
}
