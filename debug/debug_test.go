package debug

import (
	"net/http"
	"testing"
	"time"
)

func TestRedactHeadersMasksSensitiveKeysCaseInsensitively(t *testing.T) {
	h := http.Header{
		"Authorization": {"Bearer secret"},
		"X-Api-Key":     {"abc123"},
		"Content-Type":  {"application/json"},
	}
	out := RedactHeaders(h)
	if out.Get("Authorization") != redacted {
		t.Fatalf("Authorization = %q, want %q", out.Get("Authorization"), redacted)
	}
	if out.Get("X-Api-Key") != redacted {
		t.Fatalf("X-Api-Key = %q, want %q", out.Get("X-Api-Key"), redacted)
	}
	if out.Get("Content-Type") != "application/json" {
		t.Fatalf("Content-Type was redacted unexpectedly: %q", out.Get("Content-Type"))
	}
}

func TestRedactQueryString(t *testing.T) {
	u := "https://api.example.com/search?token=secret&q=x"
	if got := RedactQueryString(u, false); got != u {
		t.Fatalf("disabled redaction changed URI: %q", got)
	}
	got := RedactQueryString(u, true)
	want := "https://api.example.com/search?***"
	if got != want {
		t.Fatalf("RedactQueryString = %q, want %q", got, want)
	}
}

func TestTruncateBody(t *testing.T) {
	body := []byte("0123456789")
	if got := truncate(body, 4); string(got) != "0123" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate(body, 0); string(got) != "0123456789" {
		t.Fatalf("truncate with max<=0 should return body unchanged, got %q", got)
	}
}

func TestNewSnapshotRedactsAndExports(t *testing.T) {
	cfg := Config{RedactQuery: true, MaxBodyBytes: 5}
	snap := NewSnapshot(
		cfg, "POST", "https://api.example.com/login?password=hunter2",
		http.Header{"Authorization": {"Bearer x"}}, []byte("full-request-body"),
		200, http.Header{"Set-Cookie": {"session=abc"}}, []byte("full-response-body"),
		Timings{Start: time.Now(), Complete: 42 * time.Millisecond}, 1024, true,
	)

	if snap.URI != "https://api.example.com/login?***" {
		t.Fatalf("URI = %q", snap.URI)
	}
	if snap.RequestHeaders.Get("Authorization") != redacted {
		t.Fatalf("request auth header not redacted")
	}
	if snap.ResponseHeaders.Get("Set-Cookie") != redacted {
		t.Fatalf("response cookie not redacted")
	}
	if len(snap.RequestBody) != 5 || len(snap.ResponseBody) != 5 {
		t.Fatalf("bodies not truncated: %d, %d", len(snap.RequestBody), len(snap.ResponseBody))
	}

	exported := snap.Export()
	if exported["method"] != "POST" {
		t.Fatalf("Export()[method] = %v", exported["method"])
	}
	if exported["request_id"] == "" {
		t.Fatal("expected non-empty request_id")
	}
}

func TestProfilerAggregatesByKey(t *testing.T) {
	p := NewProfiler()
	key := "GET https://api.example.com/users"

	for _, ms := range []int64{10, 20, 30} {
		snap := &Snapshot{Timings: Timings{Complete: time.Duration(ms) * time.Millisecond}, MemoryDeltaBytes: 100}
		p.Record(key, snap)
	}

	summary := p.Summary(key)
	if summary.Count != 3 {
		t.Fatalf("Count = %d, want 3", summary.Count)
	}
	if summary.TotalMemory != 300 {
		t.Fatalf("TotalMemory = %d, want 300", summary.TotalMemory)
	}
	if summary.MinMs > 11 || summary.MaxMs < 29 {
		t.Fatalf("unexpected min/max: %v/%v", summary.MinMs, summary.MaxMs)
	}
}

func TestProfilerSummaryUnknownKeyIsZeroValue(t *testing.T) {
	p := NewProfiler()
	summary := p.Summary("never-recorded")
	if summary.Count != 0 {
		t.Fatalf("expected zero-value summary, got %+v", summary)
	}
}

func TestProfilerReset(t *testing.T) {
	p := NewProfiler()
	p.Record("k", &Snapshot{Timings: Timings{Complete: time.Millisecond}})
	p.Reset()
	if p.Summary("k").Count != 0 {
		t.Fatal("expected Reset to clear aggregates")
	}
}
