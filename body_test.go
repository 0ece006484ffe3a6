package gofetch

import "testing"

func TestBodyIsEmpty(t *testing.T) {
	if !(Body{Kind: BodyNone}).IsEmpty() {
		t.Fatal("BodyNone should be empty")
	}
	if (Body{Kind: BodyRaw, Raw: []byte("x")}).IsEmpty() {
		t.Fatal("BodyRaw should not be empty")
	}
}

func TestBodyContentType(t *testing.T) {
	cases := []struct {
		b    Body
		want string
	}{
		{Body{Kind: BodyNone}, ""},
		{Body{Kind: BodyJSON}, "application/json"},
		{Body{Kind: BodyForm}, "application/x-www-form-urlencoded"},
		{Body{Kind: BodyMultipart, Boundary: "xyz"}, "multipart/form-data; boundary=xyz"},
		{Body{Kind: BodyRaw, RawType: "text/plain"}, "text/plain"},
		{Body{Kind: BodyRaw}, ""},
	}
	for _, c := range cases {
		if got := c.b.ContentType(); got != c.want {
			t.Fatalf("ContentType() = %q, want %q", got, c.want)
		}
	}
}
