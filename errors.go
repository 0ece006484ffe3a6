package gofetch

import (
	"errors"
	"fmt"

	"github.com/mchtech/gofetch/pool"
)

// InvalidOption reports an option mapping that failed validation before any
// I/O was attempted. It is never retried.
type InvalidOption struct {
	Field  string
	Reason string
}

func (e *InvalidOption) Error() string {
	return fmt.Sprintf("gofetch: invalid option %q: %s", e.Field, e.Reason)
}

// NetworkError wraps a transport-level failure to establish or complete a
// connection (DNS, connect timeout, TLS, pool exhaustion). Retryable by
// default.
type NetworkError struct {
	Method string
	URI    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gofetch: network error for %s %s: %v", e.Method, e.URI, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RequestError reports a protocol-level failure that nonetheless produced a
// response (malformed headers, unexpected EOF after partial headers).
// Retryable when the classifier matches the underlying cause.
type RequestError struct {
	Method string
	URI    string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("gofetch: request error for %s %s: %v", e.Method, e.URI, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// TimeoutError reports that the per-attempt timeout elapsed. Classified as
// retryable by default.
type TimeoutError struct {
	Method string
	URI    string
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("gofetch: timeout for %s %s: %v", e.Method, e.URI, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// CacheStorageError reports a cache backend failure. Callers should never
// see this surface: the executor recovers by degrading to uncached
// behavior and logging instead.
type CacheStorageError struct {
	Op  string
	Err error
}

func (e *CacheStorageError) Error() string {
	return fmt.Sprintf("gofetch: cache storage error during %s: %v", e.Op, e.Err)
}

func (e *CacheStorageError) Unwrap() error { return e.Err }

// ErrCancelled is the sentinel for cooperative cancellation. The executor
// does not return it: a cancelled request surfaces the context's own
// error, and a stale-while-revalidate background task runs on its own
// context, so cancelling the caller does not cancel that task.
var ErrCancelled = errors.New("gofetch: cancelled")

// MockStrayRequest describes a request that matched no mock pattern while
// stray requests are prevented. The mock layer itself reports that case
// as a *mock.StrayRequestError, which reaches Send's caller wrapped in a
// *NetworkError; this type is not constructed by the package.
type MockStrayRequest struct {
	Method string
	URI    string
}

func (e *MockStrayRequest) Error() string {
	return fmt.Sprintf("gofetch: stray request %s %s matched no mock pattern", e.Method, e.URI)
}

// ErrPoolExhausted is surfaced (wrapped in a NetworkError) when a
// connection pool checkout cannot be satisfied within connect_timeout;
// it is an alias of pool.ErrExhausted so callers can errors.Is against
// either identity.
var ErrPoolExhausted = pool.ErrExhausted

// ErrNoNetwork is returned by the transport when the NO_NETWORK
// environment variable is set and a real network send was attempted.
var ErrNoNetwork = errors.New("gofetch: network sends are disabled (NO_NETWORK is set)")
