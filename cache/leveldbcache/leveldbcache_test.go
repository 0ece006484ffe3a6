package leveldbcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mchtech/gofetch/internal/testutil"
)

func TestLevelDBCache(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "gofetch-leveldbcache")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(tempDir)

	c, err := New(filepath.Join(tempDir, "db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	testutil.ExerciseCache(t, c)
}
