package xfs

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// cacheKind namespaces cache entries so an inode number and a block number
// never collide in the same keyspace.
type cacheKind uint8

const (
	cacheInode cacheKind = iota
	cacheFSBlock
)

type cacheKey struct {
	kind cacheKind
	key  uint64
}

// metadataCache is the decoder's single shared cache of decoded structures:
// inode records and raw filesystem blocks. Misses are coalesced with
// singleflight so that N concurrent lookups of the same cold inode issue
// exactly one device read and one decode.
type metadataCache struct {
	lru    *lru.Cache[cacheKey, interface{}]
	flight singleflight.Group
}

func newMetadataCache(capacity int) *metadataCache {
	c, err := lru.New[cacheKey, interface{}](capacity)
	if err != nil {
		// Only returns an error for a non-positive size, which normalize()
		// already rules out.
		panic(fmt.Sprintf("xfs: invalid cache capacity: %v", err))
	}
	return &metadataCache{lru: c}
}

// getOrLoad returns the cached value for key, loading it via fn on a miss.
// Concurrent callers racing on the same key share one call to fn.
func getOrLoad[T any](c *metadataCache, kind cacheKind, key uint64, fn func() (T, error)) (T, error) {
	ck := cacheKey{kind: kind, key: key}

	if v, ok := c.lru.Get(ck); ok {
		return v.(T), nil
	}

	flightKey := fmt.Sprintf("%d:%d", kind, key)
	v, err, _ := c.flight.Do(flightKey, func() (interface{}, error) {
		if v, ok := c.lru.Get(ck); ok {
			return v, nil
		}
		val, err := fn()
		if err != nil {
			return nil, err
		}
		c.lru.Add(ck, val)
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (c *metadataCache) purge() {
	c.lru.Purge()
}
