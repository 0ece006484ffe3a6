package gofetch

import (
	"net/url"
	"sort"
	"strings"
)

// BuildURI implements §4.9 step 2: if the request URI is already absolute,
// it is used unchanged; otherwise it is joined onto baseURI with a single
// "/" separator (preserving any leading "/" on the relative part as a path
// segment, per §3); then query is appended honoring any query string the
// joined URI already carries, and any fragment is preserved.
func BuildURI(baseURI, requestURI string, query url.Values) (string, error) {
	joined, err := joinURI(baseURI, requestURI)
	if err != nil {
		return "", err
	}
	if len(query) == 0 {
		return joined, nil
	}
	return appendQuery(joined, query)
}

func joinURI(baseURI, requestURI string) (string, error) {
	parsedReq, err := url.Parse(requestURI)
	if err != nil {
		return "", &InvalidOption{Field: "uri", Reason: "not a valid URI: " + err.Error()}
	}
	if parsedReq.IsAbs() {
		return requestURI, nil
	}
	if baseURI == "" {
		return requestURI, nil
	}
	base := strings.TrimRight(baseURI, "/")
	rel := requestURI
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return base + rel, nil
}

// appendQuery merges extra query parameters into uriStr using "?" if it
// has none yet, or "&" if it already carries a query string, preserving
// any fragment by re-attaching it after the new query.
func appendQuery(uriStr string, extra url.Values) (string, error) {
	parsed, err := url.Parse(uriStr)
	if err != nil {
		return "", &InvalidOption{Field: "uri", Reason: "not a valid URI: " + err.Error()}
	}
	existing := parsed.Query()
	for k, vals := range extra {
		for _, v := range vals {
			existing.Add(k, v)
		}
	}
	parsed.RawQuery = encodeSortedValues(existing)
	return parsed.String(), nil
}

// encodeSortedValues renders url.Values deterministically (sorted by key,
// then by value) so the resulting query string — and, downstream, any
// cache key derived from it — is stable across calls with the same
// logical parameters.
func encodeSortedValues(v url.Values) string {
	if len(v) == 0 {
		return ""
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	first := true
	for _, k := range keys {
		vals := append([]string(nil), v[k]...)
		sort.Strings(vals)
		for _, val := range vals {
			if !first {
				sb.WriteByte('&')
			}
			first = false
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(val))
		}
	}
	return sb.String()
}
