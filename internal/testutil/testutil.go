// Package testutil holds the shared Cache-backend conformance exerciser,
// adapted from the teacher's test/test.go (itself exercised against every
// backend subpackage, same as here).
package testutil

import (
	"bytes"
	"io"
	"testing"

	"github.com/mchtech/gofetch/cache"
)

// ExerciseCache runs the same Has/Get/Set/Delete lifecycle assertions
// against any cache.Cache implementation that the teacher's test.Cache
// ran against httpcache.Cache.
func ExerciseCache(t *testing.T, backend cache.Cache) {
	t.Helper()
	key := "testKey"

	if backend.Has(key) {
		t.Fatal("retrieved key before adding it")
	}
	if _, ok := backend.Get(key); ok {
		t.Fatal("retrieved key before adding it")
	}

	val := []byte("some bytes")
	backend.Set(key, io.NopCloser(bytes.NewReader(val)))

	if !backend.Has(key) {
		t.Fatal("could not retrieve an element we just added")
	}

	retStream, ok := backend.Get(key)
	if !ok {
		t.Fatal("could not retrieve an element we just added")
	}
	retVal, err := io.ReadAll(retStream)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !bytes.Equal(retVal, val) {
		t.Fatalf("retrieved %q, want %q", retVal, val)
	}

	backend.Delete(key)
	if _, ok := backend.Get(key); ok {
		t.Fatal("deleted key still present")
	}
}
