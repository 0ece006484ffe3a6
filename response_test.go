package gofetch

import (
	"net/http"
	"testing"

	"github.com/mchtech/gofetch/debug"
)

func TestResponseTextAndJSON(t *testing.T) {
	r := NewResponse(200, nil, []byte(`{"name":"gofetch"}`))
	if r.Text() != `{"name":"gofetch"}` {
		t.Fatalf("unexpected text: %q", r.Text())
	}
	var v struct {
		Name string `json:"name"`
	}
	if err := r.JSON(&v); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if v.Name != "gofetch" {
		t.Fatalf("unexpected decoded name: %q", v.Name)
	}
}

func TestResponseJSONPath(t *testing.T) {
	r := NewResponse(200, nil, []byte(`{"user":{"id":42}}`))
	if got := r.JSONPath("user.id").Int(); got != 42 {
		t.Fatalf("JSONPath user.id = %d, want 42", got)
	}
}

func TestResponseStatusClassification(t *testing.T) {
	cases := []struct {
		status                   int
		ok, clientErr, serverErr bool
	}{
		{200, true, false, false},
		{404, false, true, false},
		{500, false, false, true},
	}
	for _, c := range cases {
		r := NewResponse(c.status, nil, nil)
		if r.OK() != c.ok || r.IsClientError() != c.clientErr || r.IsServerError() != c.serverErr {
			t.Fatalf("status %d: OK=%v ClientErr=%v ServerErr=%v", c.status, r.OK(), r.IsClientError(), r.IsServerError())
		}
	}
}

func TestResponseWithCacheStatusSetsHeader(t *testing.T) {
	r := NewResponse(200, nil, nil).WithCacheStatus("HIT")
	if r.CacheStatus != "HIT" {
		t.Fatalf("CacheStatus = %q", r.CacheStatus)
	}
	if r.Header("X-Cache-Status") != "HIT" {
		t.Fatalf("X-Cache-Status header = %q", r.Header("X-Cache-Status"))
	}
}

func TestResponseDebugExport(t *testing.T) {
	r := NewResponse(200, http.Header{}, nil)
	if r.DebugExport() != nil {
		t.Fatal("expected nil debug export when no snapshot attached")
	}
	snap := debug.NewSnapshot(debug.DefaultConfig(), "GET", "https://example.com", nil, nil, 200, nil, nil, debug.Timings{}, 0, false)
	r.WithDebugInfo(snap)
	if r.DebugExport() == nil {
		t.Fatal("expected a non-nil debug export once a snapshot is attached")
	}
}
