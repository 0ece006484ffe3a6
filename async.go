package gofetch

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Dedup dispatches callOptions like Go, but coalesces concurrent calls
// sharing the same key into a single underlying Send: callers that Dedup
// the same key while one is already in flight all observe that one
// call's result instead of each issuing their own request. Grounded on
// cache/manager.go's use of singleflight.Group to collapse concurrent
// Lookup misses onto one origin fetch, generalized here from the cache
// layer to the async facade.
func (ex *Executor) Dedup(ctx context.Context, key string, callOptions RawOptions) *Task {
	t := &Task{ex: ex, opts: callOptions, done: make(chan asyncResult, 1)}
	ch := ex.dedup.DoChan(key, func() (interface{}, error) {
		return ex.Send(ctx, callOptions)
	})
	go func() {
		select {
		case r := <-ch:
			var resp *Response
			if r.Val != nil {
				resp = r.Val.(*Response)
			}
			t.done <- asyncResult{resp: resp, err: r.Err}
		case <-ctx.Done():
			t.done <- asyncResult{err: ctx.Err()}
		}
	}()
	return t
}

// Task is a single in-flight asynchronous request produced by
// Executor.Go. Its result is available once Await returns; it must only
// be awaited once.
type Task struct {
	ex   *Executor
	opts RawOptions
	done chan asyncResult
}

type asyncResult struct {
	resp *Response
	err  error
}

// Go dispatches callOptions without blocking the caller (§4.1's async
// entry point), grounded on the errgroup.WithContext fan-out idiom
// sgtest-megarepo's internal/repos/packages.go uses for its concurrent
// Source listing, adapted here to a single cooperative task rather than
// a barrier over many. Cache lookups still apply; async only changes
// when the caller observes completion, not what gets cached.
func (ex *Executor) Go(ctx context.Context, callOptions RawOptions) *Task {
	t := &Task{ex: ex, opts: callOptions, done: make(chan asyncResult, 1)}
	go func() {
		resp, err := ex.Send(ctx, callOptions)
		t.done <- asyncResult{resp: resp, err: err}
	}()
	return t
}

// Await blocks until the task completes and returns its result. Safe to
// call from exactly one goroutine.
func (t *Task) Await(ctx context.Context) (*Response, error) {
	select {
	case r := <-t.done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Then registers a continuation run with the task's result once it
// completes successfully; errors short-circuit Then and propagate
// unchanged. Mirrors the promise-chaining shape of §4.1 while staying a
// blocking call under the hood, since gofetch has no event loop to defer
// the continuation onto.
func (t *Task) Then(ctx context.Context, fn func(*Response) (*Response, error)) *Task {
	next := &Task{ex: t.ex, done: make(chan asyncResult, 1)}
	go func() {
		resp, err := t.Await(ctx)
		if err != nil {
			next.done <- asyncResult{err: err}
			return
		}
		r, err := fn(resp)
		next.done <- asyncResult{resp: r, err: err}
	}()
	return next
}

// Catch registers a recovery run only when the task fails; a
// successful result passes through untouched.
func (t *Task) Catch(ctx context.Context, fn func(error) (*Response, error)) *Task {
	next := &Task{ex: t.ex, done: make(chan asyncResult, 1)}
	go func() {
		resp, err := t.Await(ctx)
		if err == nil {
			next.done <- asyncResult{resp: resp}
			return
		}
		r, rerr := fn(err)
		next.done <- asyncResult{resp: r, err: rerr}
	}()
	return next
}

// Finally runs fn once the task settles, regardless of outcome, and
// passes the original result (or error) through unchanged.
func (t *Task) Finally(ctx context.Context, fn func()) *Task {
	next := &Task{ex: t.ex, done: make(chan asyncResult, 1)}
	go func() {
		resp, err := t.Await(ctx)
		fn()
		next.done <- asyncResult{resp: resp, err: err}
	}()
	return next
}

// All waits for every task to complete and fails fast on the first
// error, cancelling the shared context so sibling tasks already
// in-flight stop work promptly. Grounded on errgroup.WithContext's
// Go/Wait pairing.
func All(ctx context.Context, optsList []RawOptions, ex *Executor) ([]*Response, error) {
	g, gctx := errgroup.WithContext(ctx)
	responses := make([]*Response, len(optsList))
	for i, opts := range optsList {
		i, opts := i, opts
		g.Go(func() error {
			resp, err := ex.Send(gctx, opts)
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

// raceResult pairs a completed response with the index of the request
// that produced it, so Race and Any can report which one won.
type raceResult struct {
	index int
	resp  *Response
	err   error
}

// Race returns the first request to complete, successful or not,
// cancelling the rest. The index identifies which entry of optsList won.
func Race(ctx context.Context, optsList []RawOptions, ex *Executor) (int, *Response, error) {
	if len(optsList) == 0 {
		return -1, nil, &InvalidOption{Field: "optsList", Reason: "must contain at least one request"}
	}
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raceResult, len(optsList))
	for i, opts := range optsList {
		i, opts := i, opts
		go func() {
			resp, err := ex.Send(rctx, opts)
			select {
			case results <- raceResult{index: i, resp: resp, err: err}:
			case <-rctx.Done():
			}
		}()
	}
	r := <-results
	return r.index, r.resp, r.err
}

// Any returns the first request to complete successfully, cancelling
// the rest. If every request fails, it returns the last error observed.
func Any(ctx context.Context, optsList []RawOptions, ex *Executor) (int, *Response, error) {
	if len(optsList) == 0 {
		return -1, nil, &InvalidOption{Field: "optsList", Reason: "must contain at least one request"}
	}
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raceResult, len(optsList))
	for i, opts := range optsList {
		i, opts := i, opts
		go func() {
			resp, err := ex.Send(rctx, opts)
			select {
			case results <- raceResult{index: i, resp: resp, err: err}:
			case <-rctx.Done():
			}
		}()
	}

	var lastErr error
	for range optsList {
		r := <-results
		if r.err == nil {
			return r.index, r.resp, nil
		}
		lastErr = r.err
	}
	return -1, nil, lastErr
}

// Map runs fn over every item with at most concurrency requests
// in flight at once, preserving input order in the returned slice. A
// concurrency of 0 or less means unbounded, matching errgroup.SetLimit's
// convention for "no limit".
func Map[T any](ctx context.Context, items []T, concurrency int, fn func(context.Context, T) (*Response, error)) ([]*Response, error) {
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	responses := make([]*Response, len(items))
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			resp, err := fn(gctx, item)
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

// Batch splits optsList into chunks of at most batchSize requests and
// runs each chunk through All sequentially, so at most batchSize
// requests are ever in flight at once. Unlike Map's per-item concurrency
// cap, Batch bounds concurrency by controlling how many requests are
// even submitted at a time, which matters when the caller wants to
// throttle load on a rate-limited origin rather than just cap parallel
// goroutines.
func Batch(ctx context.Context, optsList []RawOptions, batchSize int, ex *Executor) ([]*Response, error) {
	if batchSize <= 0 {
		batchSize = len(optsList)
	}
	responses := make([]*Response, 0, len(optsList))
	for start := 0; start < len(optsList); start += batchSize {
		end := start + batchSize
		if end > len(optsList) {
			end = len(optsList)
		}
		chunk, err := All(ctx, optsList[start:end], ex)
		if err != nil {
			return nil, err
		}
		responses = append(responses, chunk...)
	}
	return responses, nil
}

// BatchWithRate behaves like Batch but additionally paces chunk
// submission against limiter, so that in addition to the batchSize
// in-flight cap, no more than limiter's configured rate of chunks is
// started per second. Grounded on Amr-9-Sayl's internal/attacker engine,
// which drives its own request stages through a golang.org/x/time/rate
// Limiter rather than a bare sleep loop.
func BatchWithRate(ctx context.Context, optsList []RawOptions, batchSize int, limiter *rate.Limiter, ex *Executor) ([]*Response, error) {
	if batchSize <= 0 {
		batchSize = len(optsList)
	}
	responses := make([]*Response, 0, len(optsList))
	for start := 0; start < len(optsList); start += batchSize {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		end := start + batchSize
		if end > len(optsList) {
			end = len(optsList)
		}
		chunk, err := All(ctx, optsList[start:end], ex)
		if err != nil {
			return nil, err
		}
		responses = append(responses, chunk...)
	}
	return responses, nil
}
