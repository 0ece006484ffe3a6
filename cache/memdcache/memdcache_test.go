package memdcache

import (
	"net"
	"testing"
	"time"

	"github.com/mchtech/gofetch/internal/testutil"
)

const testMemcacheAddr = "127.0.0.1:11211"

// TestMemdCache exercises the backend against a local memcached instance
// when one is reachable; otherwise it is skipped, mirroring the teacher's
// appengine_test.go build-tag-gated exerciser for an environment this
// suite cannot assume is present.
func TestMemdCache(t *testing.T) {
	conn, err := net.DialTimeout("tcp", testMemcacheAddr, 200*time.Millisecond)
	if err != nil {
		t.Skipf("no memcached reachable at %s: %v", testMemcacheAddr, err)
	}
	conn.Close()

	testutil.ExerciseCache(t, New(testMemcacheAddr))
}
