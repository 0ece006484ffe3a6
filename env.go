package gofetch

import (
	"net/http"
	"os"
)

// guardedTransport refuses to perform a real network send when the
// NO_NETWORK environment variable is set, returning ErrNoNetwork instead.
// It wraps the pool transport underneath the executor's mock layer, so
// mocked requests never reach it, while every attempt (retries included)
// that falls through to the network passes through it.
type guardedTransport struct {
	base http.RoundTripper
}

// NoNetworkEnabled reports whether NO_NETWORK is set in the process
// environment, checked fresh on every call so tests can toggle it with
// t.Setenv without needing to rebuild the executor.
func NoNetworkEnabled() bool {
	v, ok := os.LookupEnv("NO_NETWORK")
	return ok && v != "" && v != "0" && v != "false"
}

func (t *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if NoNetworkEnabled() {
		return nil, &NetworkError{Method: req.Method, URI: req.URL.String(), Err: ErrNoNetwork}
	}
	return t.base.RoundTrip(req)
}

// guardNetwork wraps base so every round trip first checks NO_NETWORK.
func guardNetwork(base http.RoundTripper) http.RoundTripper {
	return &guardedTransport{base: base}
}
