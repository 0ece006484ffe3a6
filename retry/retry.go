// Package retry implements the retry strategy of §4.6: exponential
// backoff with full jitter over a classification of retryable status
// codes and exceptions, grounded on JailtonJunior94/devkit-go's
// pkg/httpclient retryTransport (its calculateBackoff formula and
// attempt-loop shape) generalized from an http.RoundTripper wrapper into
// a standalone strategy the executor drives explicitly around its own
// mock/cache/pool steps.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// DefaultRetryableStatusCodes is the status-code set §4.6 names as
// retryable by default.
var DefaultRetryableStatusCodes = map[int]bool{
	408: true, 429: true,
	500: true, 502: true, 503: true, 504: true,
	507: true, 509: true,
	520: true, 521: true, 522: true, 523: true,
	525: true, 527: true, 530: true,
}

// Config controls a RetryStrategy's attempt count and delay shape.
type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	StatusCodes   map[int]bool
	IsRetryableErr func(error) bool
}

// DefaultConfig returns §4.6's defaults: 3 attempts, 1s base delay
// capped at 30s, full jitter, the default status code set, and network
// errors classified as retryable via isTransientErr.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		StatusCodes:    DefaultRetryableStatusCodes,
		IsRetryableErr: isTransientErr,
	}
}

// isTransientErr classifies connection-level errors (timeouts, refused
// connections, DNS failures) as retryable. Every non-nil error is
// retryable except context.Canceled and context.DeadlineExceeded
// themselves (compared directly, not through wrappers).
func isTransientErr(err error) bool {
	if err == nil {
		return false
	}
	if err == context.Canceled || err == context.DeadlineExceeded {
		return false
	}
	// Anything else reaching here is a dial/transport-level failure
	// (connection refused, DNS failure, TLS handshake error); net.Error
	// wraps most of them but unwrapped errors are retried too.
	return true
}

// Strategy executes an ATTEMPT/BACKOFF/THROW/RETURN loop (§4.6) around
// attempt, a single try of the underlying operation that returns either
// a status code (for HTTP responses) or an error.
type Strategy struct {
	cfg Config
	rng *rand.Rand
}

// New builds a Strategy from cfg. A zero cfg.MaxAttempts means "no
// retries" (attempt once and return whatever happened).
func New(cfg Config) *Strategy {
	if cfg.StatusCodes == nil {
		cfg.StatusCodes = DefaultRetryableStatusCodes
	}
	if cfg.IsRetryableErr == nil {
		cfg.IsRetryableErr = isTransientErr
	}
	return &Strategy{cfg: cfg, rng: rand.New(rand.NewSource(jitterSeed()))}
}

// Config returns a copy of the strategy's configuration, so a caller can
// derive a new Strategy that overlays per-request overrides on top of a
// handler-wide default (§9: "handler state is the default only, never
// mutated mid-send").
func (s *Strategy) Config() Config {
	return s.cfg
}

// jitterSeed derives a backoff jitter seed from a random UUID rather than
// a fixed constant, so distinct Strategy instances (and distinct process
// runs) don't replay the identical jitter sequence.
func jitterSeed() int64 {
	id := uuid.New()
	var seed int64
	for i, b := range id {
		seed ^= int64(b) << uint((i%8)*8)
	}
	if seed == 0 {
		seed = 1
	}
	return seed
}

// Outcome is what a single attempt produced, for the strategy to judge
// retryability against.
type Outcome struct {
	StatusCode int
	Err        error
}

// shouldRetry reports whether o warrants another attempt under cfg.
func (s *Strategy) shouldRetry(o Outcome) bool {
	if o.Err != nil {
		return s.cfg.IsRetryableErr(o.Err)
	}
	return s.cfg.StatusCodes[o.StatusCode]
}

// Backoff computes the delay before attempt (1-indexed, where attempt 1
// is the first retry) per §4.6's formula:
//
//	delay = min(max_cap, base_delay * 2^(attempt-1) * (1 + rand[0,1]))
//
// which places the delay for the i-th retry (0-indexed) in
// [base*2^i, min(cap, base*2^(i+1))], the range §8's testable property
// names.
func (s *Strategy) Backoff(attempt int) time.Duration {
	if attempt <= 0 || s.cfg.BaseDelay <= 0 {
		return 0
	}
	window := s.cfg.BaseDelay * time.Duration(uint64(1)<<uint(attempt-1))
	delay := time.Duration(float64(window) * (1 + s.rng.Float64()))
	if s.cfg.MaxDelay > 0 && delay > s.cfg.MaxDelay {
		delay = s.cfg.MaxDelay
	}
	return delay
}

// Do runs attempt up to cfg.MaxAttempts times, sleeping with full-jitter
// backoff between retryable outcomes, and returns the final Outcome. It
// returns early if ctx is cancelled while waiting to retry.
func (s *Strategy) Do(ctx context.Context, attempt func(ctx context.Context, attemptNum int) Outcome) Outcome {
	maxAttempts := s.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var outcome Outcome
	for n := 1; n <= maxAttempts; n++ {
		outcome = attempt(ctx, n)
		if !s.shouldRetry(outcome) || n == maxAttempts {
			return outcome
		}

		delay := s.Backoff(n)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Outcome{Err: ctx.Err()}
		}
	}
	return outcome
}
