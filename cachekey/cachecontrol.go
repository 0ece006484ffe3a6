// Package cachekey implements RFC 7234 Cache-Control directive parsing and
// deterministic cache key derivation, grounded on the teacher's
// parseCacheControl (mchtech/httpcache httpcache.go) generalized to the
// full directive set §4.3 needs (s-maxage, stale-while-revalidate,
// stale-if-error, private/no-cache-with-fields) rather than the teacher's
// private-cache-only subset.
package cachekey

import "strings"

// Directives is a parsed Cache-Control header: directive name to its raw
// value (empty string if the directive carries none, e.g. "no-store").
type Directives map[string]string

// Has reports whether directive is present, regardless of value.
func (d Directives) Has(directive string) bool {
	_, ok := d[directive]
	return ok
}

// Int returns the directive's value parsed as seconds, and whether the
// directive was present with a parseable integer value.
func (d Directives) Int(directive string) (int, bool) {
	v, ok := d[directive]
	if !ok {
		return 0, false
	}
	return parseNonNegativeInt(v)
}

// ParseCacheControl parses a raw Cache-Control header value into
// Directives. Unlike the teacher's version (which only ever reads from
// http.Header), this takes the raw string directly so it can be reused
// against both request and response headers without an http.Header
// dependency in this package.
func ParseCacheControl(header string) Directives {
	cc := Directives{}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.IndexByte(part, '='); idx >= 0 {
			key := strings.TrimSpace(part[:idx])
			val := strings.Trim(strings.TrimSpace(part[idx+1:]), `"`)
			cc[strings.ToLower(key)] = val
		} else {
			cc[strings.ToLower(part)] = ""
		}
	}
	return cc
}

func parseNonNegativeInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
