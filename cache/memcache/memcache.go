// Package memcache is the in-memory Cache backend. It is not to be
// confused with github.com/bradfitz/gomemcache's remote memcached client —
// that backend lives in cache/memdcache, renamed to leave this name for
// the in-process LRU the spec's §2 table calls for ("an in-memory LRU").
//
// Two indexes are kept, grounded on two different pack dependencies:
//   - github.com/hashicorp/golang-lru/v2 (seen in
//     sgtest-megarepo/sourcegraph's query_embeddings_cache.go) bounds the
//     cache by entry count with recency eviction.
//   - github.com/google/btree (the teacher's own indirect dependency)
//     orders entries by insertion sequence so pruneLocked can evict the
//     coldest-by-stored_at entries first when a byte budget is exceeded,
//     per §6's "LRU-by-stored_at policy" for size-bounded backends.
package memcache

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/btree"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mchtech/gofetch/cache"
)

// Cache is an in-memory httpcache-style backend bounded by both entry
// count (via the LRU index) and total bytes (via the btree stored_at
// index, when MaxBytes is configured).
type Cache struct {
	mu       sync.Mutex
	recency  *lru.Cache[string, []byte]
	order    *btree.BTree
	seq      atomic.Uint64
	keySeq   map[string]uint64
	maxBytes int
	curBytes int
}

type seqItem struct {
	seq  uint64
	key  string
	size int
}

func (a seqItem) Less(than btree.Item) bool {
	return a.seq < than.(seqItem).seq
}

// New returns a Cache bounded by maxEntries (LRU eviction) and, if
// maxBytes > 0, additionally pruned by total byte size using
// stored-order eviction.
func New(maxEntries, maxBytes int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	c := &Cache{
		order:    btree.New(32),
		keySeq:   make(map[string]uint64),
		maxBytes: maxBytes,
	}
	recency, _ := lru.NewWithEvict[string, []byte](maxEntries, func(key string, _ []byte) {
		// Invoked synchronously by the lru.Cache's own internal eviction,
		// always from inside a c.mu-locked method here — never lock again.
		c.removeFromOrderLocked(key)
	})
	c.recency = recency
	return c
}

func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Contains(key)
}

func (c *Cache) Get(key string) (io.ReadCloser, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.recency.Get(key)
	if !ok {
		return nil, false
	}
	return io.NopCloser(bytes.NewReader(data)), true
}

func (c *Cache) Set(key string, data io.ReadCloser) {
	buf, err := io.ReadAll(data)
	data.Close()
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeFromOrderLocked(key)
	seq := c.seq.Add(1)
	c.keySeq[key] = seq
	c.order.ReplaceOrInsert(seqItem{seq: seq, key: key, size: len(buf)})
	c.curBytes += len(buf)

	c.recency.Add(key, buf)
	c.pruneLocked()
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recency.Remove(key)
	c.removeFromOrderLocked(key)
}

func (c *Cache) removeFromOrderLocked(key string) {
	seq, ok := c.keySeq[key]
	if !ok {
		return
	}
	if item := c.order.Delete(seqItem{seq: seq}); item != nil {
		c.curBytes -= item.(seqItem).size
	}
	delete(c.keySeq, key)
}

// pruneLocked evicts the oldest-by-stored-sequence entries until curBytes
// is within maxBytes, mirroring §6's size-bounded LRU-by-stored_at policy.
func (c *Cache) pruneLocked() {
	if c.maxBytes <= 0 {
		return
	}
	for c.curBytes > c.maxBytes {
		oldest, ok := c.order.Min().(seqItem)
		if !ok {
			return
		}
		c.order.Delete(oldest)
		delete(c.keySeq, oldest.key)
		c.curBytes -= oldest.size
		c.recency.Remove(oldest.key)
	}
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

var _ cache.Cache = (*Cache)(nil)
