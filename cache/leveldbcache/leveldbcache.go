// Package leveldbcache provides a Cache backend over
// github.com/syndtr/goleveldb, adapted from the teacher's
// leveldbcache/leveldbcache.go.
package leveldbcache

import (
	"bytes"
	"io"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/mchtech/gofetch/cache"
)

// Cache is a Cache backend over an embedded leveldb instance.
type Cache struct {
	db *leveldb.DB
}

// New opens (or creates) a leveldb database at path.
func New(path string) (*Cache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// NewWithDB wraps an already-open leveldb database.
func NewWithDB(db *leveldb.DB) *Cache {
	return &Cache{db: db}
}

func (c *Cache) Has(key string) bool {
	ok, _ := c.db.Has([]byte(key), nil)
	return ok
}

func (c *Cache) Get(key string) (io.ReadCloser, bool) {
	data, err := c.db.Get([]byte(key), nil)
	if err != nil {
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
	c.db.Put([]byte(key), buf, nil)
}

func (c *Cache) Delete(key string) {
	c.db.Delete([]byte(key), nil)
}

// Close releases the underlying leveldb handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

var _ cache.Cache = (*Cache)(nil)
