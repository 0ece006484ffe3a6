package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Request is the minimal shape CacheKey needs to derive a key from — kept
// narrow and dependency-free (no net/http.Request) so it can be built from
// either a RequestContext or a constructed *http.Request uniformly.
type Request struct {
	Method string
	Scheme string
	Host   string
	Port   string // "" for scheme default
	Path   string
	Query  url.Values

	// VaryHeaders is the configured vary_headers set; VaryValues supplies
	// the present value for each header named there.
	VaryHeaders []string
	VaryValues  map[string]string

	// Body participates in the key only when the caller has determined
	// (unsafe method + cache_body:true) that it should; nil otherwise.
	Body []byte
}

// Options configures key derivation.
type Options struct {
	// Prefix is prepended to every derived or explicit key.
	Prefix string
	// Explicit, when non-empty, replaces the derived key verbatim (after
	// prefixing) per §4.2's "caller may supply an explicit key".
	Explicit string
}

// Generate computes the deterministic cache key for req. It is a pure
// function (§8: "CacheKey.generate(req) is a pure function").
func Generate(req Request, opts Options) string {
	if opts.Explicit != "" {
		return opts.Prefix + opts.Explicit
	}

	var sb strings.Builder
	sb.WriteString(strings.ToUpper(req.Method))
	sb.WriteByte('\n')
	sb.WriteString(strings.ToLower(req.Scheme))
	sb.WriteByte('\n')
	sb.WriteString(strings.ToLower(req.Host))
	sb.WriteByte('\n')
	sb.WriteString(defaultPort(req.Scheme, req.Port))
	sb.WriteByte('\n')
	sb.WriteString(normalizePath(req.Path))
	sb.WriteByte('\n')
	sb.WriteString(encodeSortedQuery(req.Query))

	if len(req.VaryHeaders) > 0 {
		names := append([]string(nil), req.VaryHeaders...)
		sort.Strings(names)
		for _, name := range names {
			lname := strings.ToLower(name)
			if val, present := req.VaryValues[lname]; present {
				sb.WriteByte('\n')
				sb.WriteString(lname)
				sb.WriteByte('=')
				sb.WriteString(val)
			}
		}
	}

	if req.Body != nil {
		sum := sha256.Sum256(req.Body)
		sb.WriteByte('\n')
		sb.WriteString(hex.EncodeToString(sum[:]))
	}

	digest := sha256.Sum256([]byte(sb.String()))
	return opts.Prefix + hex.EncodeToString(digest[:])
}

func defaultPort(scheme, port string) string {
	if port != "" {
		return port
	}
	switch strings.ToLower(scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	default:
		return ""
	}
}

// normalizePath percent-encoding-normalizes a URL path: it re-decodes then
// re-encodes so that equivalent percent-encodings (e.g. %2F vs %2f, or an
// unnecessarily-escaped unreserved character) collapse onto the same key.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	u := &url.URL{Path: path}
	if decoded, err := url.PathUnescape(path); err == nil {
		u.Path = decoded
	}
	return u.EscapedPath()
}

func encodeSortedQuery(v url.Values) string {
	if len(v) == 0 {
		return ""
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		vals := append([]string(nil), v[k]...)
		sort.Strings(vals)
		if i > 0 {
			sb.WriteByte('&')
		}
		for j, val := range vals {
			if j > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(val)
		}
	}
	return sb.String()
}

// ParsePort extracts an explicit port from a host:port string, returning
// "" if none is present.
func ParsePort(hostport string) (host, port string) {
	if idx := strings.LastIndexByte(hostport, ':'); idx >= 0 {
		// avoid misreading IPv6 literals without a bracketed form
		if !strings.Contains(hostport[idx+1:], "]") {
			if p, err := strconv.Atoi(hostport[idx+1:]); err == nil {
				return hostport[:idx], strconv.Itoa(p)
			}
		}
	}
	return hostport, ""
}
