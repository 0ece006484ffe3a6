package gofetch

import (
	"errors"
	"net/http"
	"testing"
)

type stubRoundTripper struct{ called bool }

func (s *stubRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	s.called = true
	return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
}

func TestNoNetworkEnabledRecognizesTruthyValues(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"0", false},
		{"false", false},
		{"1", true},
		{"true", true},
		{"yes", true},
	}
	for _, c := range cases {
		t.Setenv("NO_NETWORK", c.value)
		if got := NoNetworkEnabled(); got != c.want {
			t.Fatalf("NoNetworkEnabled() with NO_NETWORK=%q = %v, want %v", c.value, got, c.want)
		}
	}
}

func TestGuardNetworkBlocksWhenEnabled(t *testing.T) {
	t.Setenv("NO_NETWORK", "1")
	base := &stubRoundTripper{}
	rt := guardNetwork(base)

	req, _ := http.NewRequest("GET", "https://example.com", nil)
	_, err := rt.RoundTrip(req)
	if err == nil {
		t.Fatal("expected an error when NO_NETWORK is set")
	}
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *NetworkError, got %T", err)
	}
	if base.called {
		t.Fatal("base transport should not have been invoked")
	}
}

func TestGuardNetworkPassesThroughWhenDisabled(t *testing.T) {
	t.Setenv("NO_NETWORK", "")
	base := &stubRoundTripper{}
	rt := guardNetwork(base)

	req, _ := http.NewRequest("GET", "https://example.com", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if !base.called {
		t.Fatal("expected base transport to be invoked")
	}
}
