package pool

import (
	"context"
	"testing"
	"time"
)

func TestCheckoutTracksCreatedAndReused(t *testing.T) {
	p := New(Default())

	release, err := p.Checkout(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	release(ReleaseInfo{Reused: false, Elapsed: 10 * time.Millisecond, Reusable: true})

	release2, err := p.Checkout(context.Background(), "https://example.com/b")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	release2(ReleaseInfo{Reused: true, Elapsed: 2 * time.Millisecond, Reusable: true})

	m := p.HostMetrics("example.com")
	if m.ConnectionsCreated != 1 {
		t.Fatalf("ConnectionsCreated = %d, want 1", m.ConnectionsCreated)
	}
	if m.ConnectionsReused != 1 {
		t.Fatalf("ConnectionsReused = %d, want 1", m.ConnectionsReused)
	}
	if m.TotalRequests != 2 {
		t.Fatalf("TotalRequests = %d, want 2", m.TotalRequests)
	}
	if m.ReuseRate != 0.5 {
		t.Fatalf("ReuseRate = %v, want 0.5", m.ReuseRate)
	}
}

func TestMetricsAggregatesAcrossHosts(t *testing.T) {
	p := New(Default())

	r1, _ := p.Checkout(context.Background(), "https://a.example/")
	r1(ReleaseInfo{Reused: false, Elapsed: time.Millisecond, Reusable: true})
	r2, _ := p.Checkout(context.Background(), "https://b.example/")
	r2(ReleaseInfo{Reused: false, Elapsed: time.Millisecond, Reusable: true})

	m := p.Metrics()
	if m.TotalRequests != 2 {
		t.Fatalf("TotalRequests = %d, want 2", m.TotalRequests)
	}
	if m.ConnectionsCreated != 2 {
		t.Fatalf("ConnectionsCreated = %d, want 2", m.ConnectionsCreated)
	}
}

func TestCheckoutInvalidURL(t *testing.T) {
	p := New(Default())
	if _, err := p.Checkout(context.Background(), "://bad-url"); err == nil {
		t.Fatal("expected error for malformed URL")
	}
}

func TestCheckoutBlocksAtPerHostCapAndFailsWithErrExhausted(t *testing.T) {
	cfg := Default()
	cfg.MaxConnsPerHost = 1
	cfg.MaxConnections = 5
	p := New(cfg)

	release, err := p.Checkout(context.Background(), "https://capped.example/")
	if err != nil {
		t.Fatalf("Checkout #1: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Checkout(ctx, "https://capped.example/")
	if err != ErrExhausted {
		t.Fatalf("expected ErrExhausted while at per-host cap, got %v", err)
	}

	release(ReleaseInfo{Reused: false, Elapsed: time.Millisecond, Reusable: true})

	release2, err := p.Checkout(context.Background(), "https://capped.example/")
	if err != nil {
		t.Fatalf("Checkout after release: %v", err)
	}
	release2(ReleaseInfo{Reused: true, Elapsed: time.Millisecond, Reusable: true})
}

func TestTransportNotNil(t *testing.T) {
	p := New(Default())
	if p.Transport() == nil {
		t.Fatal("expected non-nil Transport")
	}
}

func TestReleaseDiscardsNonReusableConnection(t *testing.T) {
	cfg := Default()
	cfg.MaxConnsPerHost = 1
	cfg.MaxConnections = 5
	p := New(cfg)

	release, err := p.Checkout(context.Background(), "https://closeme.example/")
	if err != nil {
		t.Fatalf("Checkout #1: %v", err)
	}
	release(ReleaseInfo{Reused: false, Elapsed: time.Millisecond, Reusable: false})

	hp := p.hostPoolFor("closeme.example")
	if conn := hp.popIdle(0, time.Now()); conn != nil {
		t.Fatal("a non-reusable connection must not be queued idle")
	}
}

func TestReleaseDiscardsExpiredConnection(t *testing.T) {
	cfg := Default()
	cfg.MaxLifetime = time.Millisecond
	p := New(cfg)

	release, err := p.Checkout(context.Background(), "https://expire.example/")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	release(ReleaseInfo{Reused: false, Elapsed: time.Millisecond, Reusable: true})

	hp := p.hostPoolFor("expire.example")
	if conn := hp.popIdle(cfg.MaxLifetime, time.Now()); conn != nil {
		t.Fatal("a connection past its max lifetime must be discarded on release, not queued idle")
	}
}

func TestHTTP2NegotiationRaisesStreamCap(t *testing.T) {
	cfg := Default()
	cfg.MaxConnsPerHost = 1
	cfg.StreamCap = 3
	cfg.MaxConnections = 10
	p := New(cfg)

	release, err := p.Checkout(context.Background(), "https://h2.example/")
	if err != nil {
		t.Fatalf("Checkout #1: %v", err)
	}
	release(ReleaseInfo{Reused: false, Elapsed: time.Millisecond, Reusable: true, NegotiatedH2: true})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	releases := make([]func(ReleaseInfo), 0, 3)
	for i := 0; i < 3; i++ {
		r, err := p.Checkout(ctx, "https://h2.example/")
		if err != nil {
			t.Fatalf("Checkout #%d after h2 negotiation: %v", i+2, err)
		}
		releases = append(releases, r)
	}
	for _, r := range releases {
		r(ReleaseInfo{Reused: true, Elapsed: time.Millisecond, Reusable: true, NegotiatedH2: true})
	}
}
