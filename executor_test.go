package gofetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mchtech/gofetch/cache"
	"github.com/mchtech/gofetch/cache/memcache"
	"github.com/mchtech/gofetch/debug"
	"github.com/mchtech/gofetch/mock"
	"github.com/mchtech/gofetch/pool"
	"github.com/mchtech/gofetch/retry"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	backend := memcache.New(100, 1<<20)
	return &Executor{
		Mock:           mock.New(false),
		Cache:          cache.NewManager(backend, cache.DefaultConfig(), nil),
		Pool:           pool.New(pool.Default()),
		Retry:          retry.New(retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
		CacheKeyPrefix: "test:",
	}
}

func TestSendGetAgainstLiveServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	ex := newTestExecutor(t)
	resp, err := ex.Send(context.Background(), RawOptions{"uri": srv.URL})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.StatusCode != 200 || resp.Text() != "hello" {
		t.Fatalf("unexpected response: %d %q", resp.StatusCode, resp.Text())
	}
}

func TestSendCachesGetResponses(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Cache-Control", "max-age=60")
		w.WriteHeader(200)
		w.Write([]byte("cached-body"))
	}))
	defer srv.Close()

	ex := newTestExecutor(t)
	opts := RawOptions{"uri": srv.URL, "cache": map[string]any{"enabled": true, "cache_body": true}}

	resp1, err := ex.Send(context.Background(), opts)
	if err != nil {
		t.Fatalf("Send #1: %v", err)
	}
	if resp1.CacheStatus != "MISS" {
		t.Fatalf("expected first response to be a cache miss, got %q", resp1.CacheStatus)
	}

	resp2, err := ex.Send(context.Background(), opts)
	if err != nil {
		t.Fatalf("Send #2: %v", err)
	}
	if resp2.CacheStatus != "HIT" {
		t.Fatalf("expected second response to be served from cache, got %q", resp2.CacheStatus)
	}
	if hits != 1 {
		t.Fatalf("expected origin to be hit once, got %d", hits)
	}
	if resp2.Text() != "cached-body" {
		t.Fatalf("cached body mismatch: %q", resp2.Text())
	}
}

func TestSendMarksBypassWhenCacheDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("uncached"))
	}))
	defer srv.Close()

	ex := newTestExecutor(t)
	resp, err := ex.Send(context.Background(), RawOptions{"uri": srv.URL})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.CacheStatus != "BYPASS" {
		t.Fatalf("expected BYPASS, got %q", resp.CacheStatus)
	}
}

func TestSendRevalidatesWithConditionalHeaders(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("ETag", `"v1"`)
			w.Header().Set("Cache-Control", "max-age=0")
			w.WriteHeader(200)
			w.Write([]byte("original-body"))
			return
		}
		if r.Header.Get("If-None-Match") != `"v1"` {
			t.Fatalf("expected conditional request, got If-None-Match=%q", r.Header.Get("If-None-Match"))
		}
		w.Header().Set("Cache-Control", "max-age=60")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	ex := newTestExecutor(t)
	opts := RawOptions{"uri": srv.URL, "cache": map[string]any{"enabled": true, "cache_body": true}}

	resp1, err := ex.Send(context.Background(), opts)
	if err != nil {
		t.Fatalf("Send #1: %v", err)
	}
	if resp1.Text() != "original-body" {
		t.Fatalf("unexpected first body: %q", resp1.Text())
	}

	resp2, err := ex.Send(context.Background(), opts)
	if err != nil {
		t.Fatalf("Send #2: %v", err)
	}
	if resp2.CacheStatus != "REVALIDATED" {
		t.Fatalf("expected REVALIDATED, got %q", resp2.CacheStatus)
	}
	if resp2.Text() != "original-body" {
		t.Fatalf("expected cached body preserved across revalidation, got %q", resp2.Text())
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 origin calls, got %d", calls)
	}
}

func TestSendServesStaleIfErrorOnTransportFailure(t *testing.T) {
	var srv *httptest.Server
	fail := false
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			srv.CloseClientConnections()
			return
		}
		w.Header().Set("Cache-Control", "max-age=0, stale-if-error=300")
		w.WriteHeader(200)
		w.Write([]byte("stale-body"))
	}))
	defer srv.Close()

	ex := newTestExecutor(t)
	ex.Retry = retry.New(retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	opts := RawOptions{"uri": srv.URL, "cache": map[string]any{"enabled": true, "cache_body": true}}

	resp1, err := ex.Send(context.Background(), opts)
	if err != nil {
		t.Fatalf("Send #1: %v", err)
	}
	if resp1.Text() != "stale-body" {
		t.Fatalf("unexpected first body: %q", resp1.Text())
	}

	fail = true
	resp2, err := ex.Send(context.Background(), opts)
	if err != nil {
		t.Fatalf("Send #2: %v", err)
	}
	if resp2.CacheStatus != "STALE-IF-ERROR" {
		t.Fatalf("expected STALE-IF-ERROR, got %q", resp2.CacheStatus)
	}
	if resp2.Text() != "stale-body" {
		t.Fatalf("expected stale body served, got %q", resp2.Text())
	}
}

func TestSendConsultsMockRegistryBeforeNetwork(t *testing.T) {
	ex := newTestExecutor(t)
	if err := ex.Mock.MockStatus("GET https://mocked.example.com/ping", 200, []byte("mocked")); err != nil {
		t.Fatalf("MockStatus: %v", err)
	}

	resp, err := ex.Send(context.Background(), RawOptions{"uri": "https://mocked.example.com/ping"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Text() != "mocked" {
		t.Fatalf("expected mocked body, got %q", resp.Text())
	}
}

func TestSendRetriesRetryableStatus(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ex := newTestExecutor(t)
	ex.Retry = retry.New(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})

	resp, err := ex.Send(context.Background(), RawOptions{"uri": srv.URL})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.StatusCode != 200 || attempts != 2 {
		t.Fatalf("status=%d attempts=%d", resp.StatusCode, attempts)
	}
}

func TestSendHonorsPerRequestRetryOverride(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(503)
	}))
	defer srv.Close()

	ex := newTestExecutor(t)
	ex.Retry = retry.New(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	_, err := ex.Send(context.Background(), RawOptions{
		"uri":     srv.URL,
		"retries": 0,
		"cache":   map[string]any{"enabled": false},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("per-request retries:0 should force exactly one attempt despite the handler's default of 3, got %d", attempts)
	}
}

func TestSendPerRequestRetriesCanExceedHandlerDefault(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 4 {
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	ex := newTestExecutor(t)
	ex.Retry = retry.New(retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	resp, err := ex.Send(context.Background(), RawOptions{
		"uri":     srv.URL,
		"retries": 3,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.StatusCode != 200 || attempts != 4 {
		t.Fatalf("per-request retries:3 should allow 4 attempts total, got status=%d attempts=%d", resp.StatusCode, attempts)
	}
}

func TestSendPerRequestRetryStatusCodesOverridesDefault(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(404)
	}))
	defer srv.Close()

	ex := newTestExecutor(t)
	ex.Retry = retry.New(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	_, err := ex.Send(context.Background(), RawOptions{
		"uri":                srv.URL,
		"retry_status_codes": []int{404},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("retry_status_codes override should make 404 retryable up to the handler's 3 attempts, got %d", attempts)
	}
}

func TestSendProfilerRecordsIndependentlyOfDebug(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	ex := newTestExecutor(t)
	ex.Profiler = debug.NewProfiler()
	ex.DebugConfig = debug.DefaultConfig()

	resp, err := ex.Send(context.Background(), RawOptions{"uri": srv.URL, "profiler": true})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.DebugInfo != nil {
		t.Fatal("profiler:true without debug:true must not attach a snapshot to the response")
	}
	if summary := ex.Profiler.Summary("GET " + srv.URL); summary.Count == 0 {
		t.Fatal("expected profiler:true to record a snapshot even without debug:true")
	}
}

func TestSendRespectsNoNetworkGuard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	t.Setenv("NO_NETWORK", "1")
	ex := newTestExecutor(t)

	_, err := ex.Send(context.Background(), RawOptions{"uri": srv.URL})
	if err == nil {
		t.Fatal("expected error when NO_NETWORK is set")
	}
}
