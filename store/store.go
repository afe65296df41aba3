package store

import (
	"context"
	"errors"
	"time"
)

/* Store is the contract every component expects from the external state store.
 * Small interfaces are composed into the full Store, so a component only
 * depends on the primitives it really uses.
 */

// ErrNotFound is returned when a key, field or list element does not exist
var ErrNotFound = errors.New("store: not found")

// KV provides plain key/value operations with optional expiration
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	/* Set stores value under key. A zero ttl means no expiration */
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	/* TTL returns the remaining time to live; zero when the key has none,
	 * ErrNotFound when the key does not exist */
	TTL(ctx context.Context, key string) (time.Duration, error)
	/* Scan returns every key matching a glob pattern */
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Counter provides the atomic increment primitive
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// Hash provides field level operations on hash records
type Hash interface {
	HSet(ctx context.Context, key string, fields map[string]any) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)
	HIncrByFloat(ctx context.Context, key, field string, incr float64) (float64, error)
}

// SortedSet provides ordered, score indexed sets
type SortedSet interface {
	ZAdd(ctx context.Context, key string, score float64, member string) error
	/* ZRangeByScore returns members with min <= score <= max in ascending order.
	 * A count <= 0 returns every match.
	 */
	ZRangeByScore(ctx context.Context, key string, min, max float64, offset, count int64) ([]string, error)
	/* ZRevRange returns members by rank, highest score first */
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	/* ZRem reports whether the member was present and removed */
	ZRem(ctx context.Context, key, member string) (bool, error)
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error
	ZCard(ctx context.Context, key string) (int64, error)
}

// List provides double ended lists
type List interface {
	RPush(ctx context.Context, key string, values ...string) error
	LPush(ctx context.Context, key string, values ...string) error
	/* LPop returns ErrNotFound when the list is empty */
	LPop(ctx context.Context, key string) (string, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	LLen(ctx context.Context, key string) (int64, error)
}

// Subscription is a live channel subscription
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// PubSub provides fire and forget publish/subscribe
type PubSub interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Locker provides ownership leases with a TTL
type Locker interface {
	/* Acquire takes key for token if nobody holds it */
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	/* Release drops key only while it is still owned by token */
	Release(ctx context.Context, key, token string) (bool, error)
}

// Store combines every primitive of the state store
type Store interface {
	KV
	Counter
	Hash
	SortedSet
	List
	PubSub
	Locker
	Ping(ctx context.Context) error
	Close() error
}
