// Package redicache provides the redis-backed Cache, adapted from the
// teacher's redis/redis.go. Renamed from "redis" to avoid a package name
// collision with the redigo/redis import it wraps.
package redicache

import (
	"bytes"
	"io"

	"github.com/gomodule/redigo/redis"

	"github.com/mchtech/gofetch/cache"
)

// cacheKeyPrefix mirrors the teacher's "rediscache:" namespacing so
// gofetch's entries never collide with unrelated data sharing the same
// redis database.
const cacheKeyPrefix = "gofetch:cache:"

// Cache is a Cache backend over a single redigo connection.
type Cache struct {
	conn redis.Conn
}

// New wraps an established redigo connection.
func New(conn redis.Conn) *Cache {
	return &Cache{conn: conn}
}

func prefixed(key string) string { return cacheKeyPrefix + key }

func (c *Cache) Has(key string) bool {
	ok, _ := redis.Bool(c.conn.Do("EXISTS", prefixed(key)))
	return ok
}

func (c *Cache) Get(key string) (io.ReadCloser, bool) {
	data, err := redis.Bytes(c.conn.Do("GET", prefixed(key)))
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
	c.conn.Do("SET", prefixed(key), buf)
}

// SetTTL stores data under key with an expiry, for callers that want the
// backend itself (rather than CacheManager's freshness check) to reclaim
// space once an entry can no longer possibly be relevant.
func (c *Cache) SetTTL(key string, data io.ReadCloser, ttlSeconds int) {
	buf, err := io.ReadAll(data)
	data.Close()
	if err != nil {
		return
	}
	if ttlSeconds <= 0 {
		c.conn.Do("SET", prefixed(key), buf)
		return
	}
	c.conn.Do("SETEX", prefixed(key), ttlSeconds, buf)
}

func (c *Cache) Delete(key string) {
	c.conn.Do("DEL", prefixed(key))
}

var _ cache.Cache = (*Cache)(nil)
