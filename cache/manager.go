package cache

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mchtech/gofetch/cachekey"
)

// Status is the three-way outcome of a Lookup (§4.3).
type Status int

const (
	Miss Status = iota
	Hit
	Stale
)

// StaleReason distinguishes why a Stale lookup needs different executor
// handling.
type StaleReason int

const (
	StaleReasonNone StaleReason = iota
	// StaleReasonServeWhileRevalidating: serve immediately, revalidate in
	// the background.
	StaleReasonServeWhileRevalidating
	// StaleReasonNeedsRevalidation: the executor must inject conditional
	// headers and perform a validating request before anything is
	// delivered.
	StaleReasonNeedsRevalidation
)

// LookupResult is returned by Manager.Lookup.
type LookupResult struct {
	Status      Status
	Entry       *CachedEntry
	StaleReason StaleReason
}

// Config governs cacheability and freshness-window policy. DefaultConfig
// supplies the RFC 7234 defaults; a zero Config has empty method and
// status sets, so nothing is cacheable under it.
type Config struct {
	CacheableMethods  map[string]bool
	CacheableStatuses map[int]bool
	DefaultTTL        time.Duration
	SWRWindow         time.Duration
	SIEWindow         time.Duration
	VaryHeaders       []string
}

// DefaultConfig returns the RFC 7234 defaults named in §4.3.
func DefaultConfig() Config {
	return Config{
		CacheableMethods: map[string]bool{"GET": true, "HEAD": true},
		CacheableStatuses: map[int]bool{
			200: true, 203: true, 204: true, 206: true,
			300: true, 301: true, 404: true, 410: true,
		},
		DefaultTTL: 0,
	}
}

// Manager is the policy layer: cacheability checks, TTL derivation,
// revalidation bookkeeping, stale-while-revalidate, stale-if-error, and
// 304 merging. Storage itself lives behind the Cache interface.
//
// Concurrent Lookup calls for the same key are coalesced with
// golang.org/x/sync/singleflight so that a stampede of simultaneous
// misses/stale-checks for one key only decodes the backend entry once —
// the same request-coalescing idiom O-tero-Distributed-Caching-System
// hand-rolls in cache-manager/singleflight.go, but using the real
// upstream package since it is already part of the pack's dependency
// graph.
type Manager struct {
	backend Cache
	cfg     Config
	group   singleflight.Group
	logger  *slog.Logger
}

// NewManager builds a CacheManager over backend using cfg. A nil logger
// defaults to slog.Default().
func NewManager(backend Cache, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{backend: backend, cfg: cfg, logger: logger}
}

// VaryHeaders returns the configured set of header names whose values
// participate in cache key derivation and stored-entry matching.
func (m *Manager) VaryHeaders() []string {
	return append([]string(nil), m.cfg.VaryHeaders...)
}

// Lookup implements §4.3's Lookup: MISS, HIT(entry) when now <= fresh
// until, or STALE(entry, reason) otherwise.
func (m *Manager) Lookup(ctx context.Context, key string, now time.Time, currentVary map[string]string) LookupResult {
	v, err, _ := m.group.Do("lookup:"+key, func() (any, error) {
		data, ok := m.backend.Get(key)
		if !ok {
			return (*CachedEntry)(nil), nil
		}
		entry, decodeErr := Decode(data)
		if decodeErr != nil {
			m.logger.Warn("gofetch: cache decode failed, degrading to miss", "key", key, "error", decodeErr)
			return (*CachedEntry)(nil), nil
		}
		return entry, nil
	})
	if err != nil {
		m.logger.Warn("gofetch: cache lookup failed, degrading to miss", "key", key, "error", err)
		return LookupResult{Status: Miss}
	}
	entry, _ := v.(*CachedEntry)
	if entry == nil {
		return LookupResult{Status: Miss}
	}
	if !varyMatches(entry, currentVary) {
		return LookupResult{Status: Miss}
	}
	if entry.Fresh(now) {
		return LookupResult{Status: Hit, Entry: entry}
	}
	if m.cfg.SWRWindow > 0 && entry.StaleFor(now) <= m.cfg.SWRWindow {
		return LookupResult{Status: Stale, Entry: entry, StaleReason: StaleReasonServeWhileRevalidating}
	}
	return LookupResult{Status: Stale, Entry: entry, StaleReason: StaleReasonNeedsRevalidation}
}

func varyMatches(entry *CachedEntry, currentVary map[string]string) bool {
	for header, stored := range entry.Vary {
		if currentVary[header] != stored {
			return false
		}
	}
	return true
}

// CanStore implements the cacheability conjunction of §4.3: method in the
// configured set, status in the configured set, and (when respectHeaders)
// neither no-store nor bare no-cache on the response, and (when
// isSharedCache) the response is not private.
func (m *Manager) CanStore(method string, status int, respDirectives cachekey.Directives, respectHeaders, isSharedCache bool) bool {
	if !m.cfg.CacheableMethods[strings.ToUpper(method)] {
		return false
	}
	if !m.cfg.CacheableStatuses[status] {
		return false
	}
	if respectHeaders {
		if respDirectives.Has("no-store") {
			return false
		}
		if respDirectives.Has("no-cache") && respDirectives["no-cache"] == "" {
			return false
		}
		if isSharedCache && respDirectives.Has("private") {
			return false
		}
	}
	return true
}

// DeriveTTL implements the precedence of §4.3: per-request override, then
// s-maxage (if shared)/max-age, then Expires relative to Date, then the
// configured default.
func (m *Manager) DeriveTTL(perRequestTTL time.Duration, respDirectives cachekey.Directives, date time.Time, expires time.Time, isSharedCache bool) time.Duration {
	if perRequestTTL > 0 {
		return perRequestTTL
	}
	if isSharedCache {
		if secs, ok := respDirectives.Int("s-maxage"); ok {
			return time.Duration(secs) * time.Second
		}
	}
	if secs, ok := respDirectives.Int("max-age"); ok {
		return time.Duration(secs) * time.Second
	}
	if !expires.IsZero() && !date.IsZero() {
		if d := expires.Sub(date); d > 0 {
			return d
		}
		return 0
	}
	return m.cfg.DefaultTTL
}

// Store saves entry under key, recovering from backend failures per §7
// (CacheStorageError: degrade to uncached behavior, log, never surface).
func (m *Manager) Store(key string, entry *CachedEntry) {
	data, err := Encode(entry)
	if err != nil {
		m.logger.Warn("gofetch: cache encode failed, not storing", "key", key, "error", err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("gofetch: cache backend panicked on Set, degrading to uncached", "key", key, "error", r)
		}
	}()
	m.backend.Set(key, data)
}

// Delete removes key from the backend, recovering from failures as Store
// does.
func (m *Manager) Delete(key string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("gofetch: cache backend panicked on Delete", "key", key, "error", r)
		}
	}()
	m.backend.Delete(key)
}

// notModifiedExcluded lists the headers a 304 response must never overlay
// onto the cached entry's headers (§4.3).
var notModifiedExcluded = map[string]bool{
	"Content-Length":    true,
	"Content-Encoding":  true,
	"Transfer-Encoding": true,
}

// MergeNotModified implements §4.3's 304 merging: the cached body is kept,
// headers are overlaid by the 304 response's headers excluding
// Content-Length/Content-Encoding/Transfer-Encoding, and the freshness
// window is recomputed by the caller from the merged headers via
// DeriveTTL. The returned entry is a copy; the original is untouched.
func MergeNotModified(entry *CachedEntry, notModifiedHeaders map[string][]string) *CachedEntry {
	merged := &CachedEntry{
		Status:       entry.Status,
		Body:         entry.Body,
		StoredAt:     entry.StoredAt,
		FreshUntil:   entry.FreshUntil,
		ETag:         entry.ETag,
		LastModified: entry.LastModified,
		Vary:         entry.Vary,
		StaleIfError: entry.StaleIfError,
		Headers:      make(map[string][]string, len(entry.Headers)),
	}
	for k, v := range entry.Headers {
		merged.Headers[k] = append([]string(nil), v...)
	}
	for k, v := range notModifiedHeaders {
		if notModifiedExcluded[k] {
			continue
		}
		merged.Headers[k] = append([]string(nil), v...)
	}
	if etag := firstHeader(notModifiedHeaders, "Etag"); etag != "" {
		merged.ETag = etag
	}
	if lm := firstHeader(notModifiedHeaders, "Last-Modified"); lm != "" {
		merged.LastModified = lm
	}
	return merged
}

func firstHeader(h map[string][]string, key string) string {
	for k, v := range h {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// CanServeStaleIfError implements §4.3's stale-if-error: an entry may be
// served when the transport/retry loop surfaces a terminal error, the
// entry exists, and now - fresh_until <= sie_window.
func (m *Manager) CanServeStaleIfError(entry *CachedEntry, now time.Time) bool {
	if entry == nil {
		return false
	}
	window := entry.StaleIfError
	if window <= 0 {
		window = m.cfg.SIEWindow
	}
	if window <= 0 {
		return false
	}
	return entry.StaleFor(now) <= window
}
