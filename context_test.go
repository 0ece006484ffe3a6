package gofetch

import (
	"testing"
	"time"
)

func baseContext(t *testing.T) *RequestContext {
	t.Helper()
	opts, err := MergeOptions(RawOptions{"uri": "https://example.com/", "headers": map[string]string{"X-Original": "1"}})
	if err != nil {
		t.Fatalf("MergeOptions: %v", err)
	}
	return NewRequestContext(opts)
}

func TestWithHeaderDoesNotMutateReceiver(t *testing.T) {
	c := baseContext(t)
	c2 := c.WithHeader("X-New", "v")

	if c.Headers().Get("X-New") != "" {
		t.Fatal("receiver should be unchanged")
	}
	if c2.Headers().Get("X-New") != "v" {
		t.Fatal("new context should carry the added header")
	}
	if c2.Headers().Get("X-Original") != "1" {
		t.Fatal("new context should retain the original header")
	}
}

func TestWithQueryParamDoesNotMutateReceiver(t *testing.T) {
	c := baseContext(t)
	c2 := c.WithQueryParam("page", "2")

	if len(c.Query()) != 0 {
		t.Fatal("receiver query should be unchanged")
	}
	if c2.Query().Get("page") != "2" {
		t.Fatal("new context should carry the added query param")
	}
}

func TestWithMethodDoesNotMutateReceiver(t *testing.T) {
	c := baseContext(t)
	c2 := c.WithMethod("POST")

	if c.Method() != "GET" {
		t.Fatalf("receiver method changed: %q", c.Method())
	}
	if c2.Method() != "POST" {
		t.Fatalf("new context method = %q, want POST", c2.Method())
	}
}

func TestWithBodyDoesNotMutateReceiver(t *testing.T) {
	c := baseContext(t)
	c2 := c.WithBody(Body{Kind: BodyRaw, Raw: []byte("x")})

	if !c.Body().IsEmpty() {
		t.Fatal("receiver body should be unchanged")
	}
	if c2.Body().IsEmpty() {
		t.Fatal("new context should carry the new body")
	}
}

func TestWithTimeoutDoesNotMutateReceiver(t *testing.T) {
	c := baseContext(t)
	c2 := c.WithTimeout(5 * time.Second)

	if c2.Timeout() != 5*time.Second {
		t.Fatalf("new context timeout = %v, want 5s", c2.Timeout())
	}
	if c.Timeout() == 5*time.Second {
		t.Fatal("receiver timeout should be unchanged")
	}
}

func TestRetriesSetDistinguishesExplicitZeroFromUnset(t *testing.T) {
	opts, err := MergeOptions(RawOptions{"uri": "https://example.com/", "retries": 0})
	if err != nil {
		t.Fatalf("MergeOptions: %v", err)
	}
	c := NewRequestContext(opts)
	if !c.RetriesSet() {
		t.Fatal("an explicit retries:0 must report RetriesSet")
	}

	unset := baseContext(t)
	if unset.RetriesSet() {
		t.Fatal("RetriesSet must be false when retries was never supplied")
	}
}

func TestRetryStatusCodesNilWhenUnset(t *testing.T) {
	c := baseContext(t)
	if c.RetryStatusCodes() != nil {
		t.Fatal("RetryStatusCodes should be nil when the request never overrode it")
	}
}

func TestRetryStatusCodesReturnsDefensiveCopy(t *testing.T) {
	opts, err := MergeOptions(RawOptions{"uri": "https://example.com/", "retry_status_codes": []int{500}})
	if err != nil {
		t.Fatalf("MergeOptions: %v", err)
	}
	c := NewRequestContext(opts)
	codes := c.RetryStatusCodes()
	codes[999] = struct{}{}
	if _, ok := c.RetryStatusCodes()[999]; ok {
		t.Fatal("mutating the returned set should not affect the context")
	}
}

func TestHeadersAndQueryAccessorsReturnDefensiveCopies(t *testing.T) {
	c := baseContext(t)
	h := c.Headers()
	h.Set("X-Original", "mutated")
	if c.Headers().Get("X-Original") != "1" {
		t.Fatal("mutating the returned header map should not affect the context")
	}
}
