// Package badgercache provides a Cache backend over
// github.com/dgraph-io/badger/v2, adapted from the teacher's
// badgercache/badgercache.go onto the shared cache.Cache interface. The
// teacher's stray fmt.Println(err) diagnostic is dropped: Set and Delete
// discard badger's errors, and Manager.Store/Delete only recover from and
// log a backend panic, so a failed badger write is not reported.
package badgercache

import (
	"bytes"
	"io"

	badger "github.com/dgraph-io/badger/v2"

	"github.com/mchtech/gofetch/cache"
)

// Cache is a Cache backend over an embedded badger key-value store.
type Cache struct {
	db *badger.DB
}

// New opens (or creates) a badger database at path.
func New(path string) (*Cache, error) {
	db, err := badger.Open(badger.DefaultOptions(path))
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// NewWithDB wraps an already-open badger database.
func NewWithDB(db *badger.DB) *Cache {
	return &Cache{db: db}
}

func (c *Cache) Has(key string) bool {
	var ok bool
	c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		ok = err == nil
		return nil
	})
	return ok
}

func (c *Cache) Get(key string) (io.ReadCloser, bool) {
	var data []byte
	var found bool
	c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return nil
		}
		data, err = item.ValueCopy(nil)
		if err != nil {
			return nil
		}
		found = true
		return nil
	})
	if !found {
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
	c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), buf)
	})
}

func (c *Cache) Delete(key string) {
	c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close releases the underlying badger handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

var _ cache.Cache = (*Cache)(nil)
