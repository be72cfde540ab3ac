// Package rediscache is a distributed implementation of
// buildcoordinator.BinaryArchiveCache backed by Redis, using
// redis.UniversalClient so a single node, a sentinel set, or a cluster
// all work without a caller code change.
package rediscache

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/distribution/wheelcore/buildcoordinator"
)

// Cache is a Redis-backed BinaryArchiveCache.
type Cache struct {
	client    redis.UniversalClient
	keyPrefix string
}

// New constructs a Cache using the given client. keyPrefix namespaces
// this cache's keys within a shared Redis instance.
func New(client redis.UniversalClient, keyPrefix string) *Cache {
	return &Cache{client: client, keyPrefix: keyPrefix}
}

func (c *Cache) redisKey(key buildcoordinator.BuildCacheKey) string {
	return c.keyPrefix + ":" + key.String()
}

func (c *Cache) Get(ctx context.Context, key buildcoordinator.BuildCacheKey) (*buildcoordinator.BinaryArchive, bool, error) {
	raw, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	archive, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return archive, true, nil
}

func (c *Cache) Put(ctx context.Context, key buildcoordinator.BuildCacheKey, archive *buildcoordinator.BinaryArchive) error {
	return c.client.Set(ctx, c.redisKey(key), encode(archive), 0).Err()
}

// encode/decode use a trivial length-prefixed framing: the filename,
// length-prefixed, followed by the raw archive bytes. No need for a
// general-purpose serialization library for a two-field record.
func encode(a *buildcoordinator.BinaryArchive) []byte {
	nameLen := len(a.Filename)
	out := make([]byte, 4+nameLen+len(a.Bytes))
	binary.LittleEndian.PutUint32(out[:4], uint32(nameLen))
	copy(out[4:4+nameLen], a.Filename)
	copy(out[4+nameLen:], a.Bytes)
	return out
}

func decode(raw []byte) (*buildcoordinator.BinaryArchive, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("rediscache: truncated record")
	}
	nameLen := int(binary.LittleEndian.Uint32(raw[:4]))
	if 4+nameLen > len(raw) {
		return nil, fmt.Errorf("rediscache: truncated filename")
	}
	return &buildcoordinator.BinaryArchive{
		Filename: string(raw[4 : 4+nameLen]),
		Bytes:    raw[4+nameLen:],
	}, nil
}
