package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/marcelsud/flowrelay/store"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of store.Store
 * Every component shares one client; all state lives in Redis
 */

// releaseScript deletes the lease key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type Store struct {
	client *redis.Client
}

// NewStore connects to Redis and verifies the connection
func NewStore(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Store{
		client: client,
	}, nil
}

// NewStoreFromClient wraps an existing client
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Get returns the raw value stored under key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", key, err)
	}
	return data, nil
}

// Set stores value under key, ttl 0 keeps it forever
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// Delete removes the given keys
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("deleting keys: %w", err)
	}
	return nil
}

// Expire sets a TTL on an existing key
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("setting TTL on %s: %w", key, err)
	}
	return nil
}

// TTL returns the remaining lifetime of key
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("getting TTL of %s: %w", key, err)
	}
	// go-redis reports a missing key as -2ns and a persistent one as -1ns
	if ttl == -2 {
		return 0, fmt.Errorf("getting TTL of %s: %w", key, store.ErrNotFound)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Scan walks the keyspace with SCAN, so it never blocks the server like KEYS
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string

	var cursor uint64
	for {
		batch, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning keys: %w", err)
		}
		keys = append(keys, batch...)

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// Incr atomically increments key
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing %s: %w", key, err)
	}
	return n, nil
}

// HSet writes fields into the hash at key
func (s *Store) HSet(ctx context.Context, key string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("writing hash %s: %w", key, err)
	}
	return nil
}

// HGet reads a single hash field
func (s *Store) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading hash field %s.%s: %w", key, field, err)
	}
	return v, nil
}

// HGetAll reads every field of the hash; a missing hash yields ErrNotFound
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	data, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading hash %s: %w", key, err)
	}
	if len(data) == 0 {
		return nil, store.ErrNotFound
	}
	return data, nil
}

// HIncrBy atomically increments an integer hash field
func (s *Store) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	n, err := s.client.HIncrBy(ctx, key, field, incr).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing %s.%s: %w", key, field, err)
	}
	return n, nil
}

// HIncrByFloat atomically increments a float hash field
func (s *Store) HIncrByFloat(ctx context.Context, key, field string, incr float64) (float64, error) {
	n, err := s.client.HIncrByFloat(ctx, key, field, incr).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing %s.%s: %w", key, field, err)
	}
	return n, nil
}

// ZAdd inserts or updates a sorted set member
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("adding to sorted set %s: %w", key, err)
	}
	return nil
}

// ZRangeByScore returns members in [min, max]
func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64, offset, count int64) ([]string, error) {
	by := &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}
	if count > 0 {
		by.Offset = offset
		by.Count = count
	}
	members, err := s.client.ZRangeByScore(ctx, key, by).Result()
	if err != nil {
		return nil, fmt.Errorf("ranging sorted set %s: %w", key, err)
	}
	return members, nil
}

// ZRevRange returns members by descending score
func (s *Store) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members, err := s.client.ZRevRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("ranging sorted set %s: %w", key, err)
	}
	return members, nil
}

// ZRem removes member, reporting whether it was present
func (s *Store) ZRem(ctx context.Context, key, member string) (bool, error) {
	n, err := s.client.ZRem(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("removing from sorted set %s: %w", key, err)
	}
	return n == 1, nil
}

// ZRemRangeByScore drops members in [min, max]
func (s *Store) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	if err := s.client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Err(); err != nil {
		return fmt.Errorf("trimming sorted set %s: %w", key, err)
	}
	return nil
}

// ZCard returns the sorted set size
func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("counting sorted set %s: %w", key, err)
	}
	return n, nil
}

// RPush appends values to the list tail
func (s *Store) RPush(ctx context.Context, key string, values ...string) error {
	if err := s.client.RPush(ctx, key, toArgs(values)...).Err(); err != nil {
		return fmt.Errorf("pushing to list %s: %w", key, err)
	}
	return nil
}

// LPush prepends values to the list head
func (s *Store) LPush(ctx context.Context, key string, values ...string) error {
	if err := s.client.LPush(ctx, key, toArgs(values)...).Err(); err != nil {
		return fmt.Errorf("pushing to list %s: %w", key, err)
	}
	return nil
}

// LPop removes and returns the list head
func (s *Store) LPop(ctx context.Context, key string) (string, error) {
	v, err := s.client.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("popping list %s: %w", key, err)
	}
	return v, nil
}

// LRange returns list elements between start and stop inclusive
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	values, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("ranging list %s: %w", key, err)
	}
	return values, nil
}

// LTrim keeps only the elements between start and stop
func (s *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := s.client.LTrim(ctx, key, start, stop).Err(); err != nil {
		return fmt.Errorf("trimming list %s: %w", key, err)
	}
	return nil
}

// LLen returns the list length
func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("measuring list %s: %w", key, err)
	}
	return n, nil
}

// Publish sends message to every subscriber of channel
func (s *Store) Publish(ctx context.Context, channel string, message []byte) error {
	if err := s.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a subscription on channel
func (s *Store) Subscribe(ctx context.Context, channel string) (store.Subscription, error) {
	ps := s.client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so no message published after
	// Subscribe returns is lost
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}
	return newSubscription(ps), nil
}

// Acquire takes the lease key for token
func (s *Store) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lease %s: %w", key, err)
	}
	return ok, nil
}

// Release drops the lease key if token still owns it
func (s *Store) Release(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, s.client, []string{key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("releasing lease %s: %w", key, err)
	}
	return n == 1, nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// GetClient returns the underlying Redis client for advanced operations
func (s *Store) GetClient() *redis.Client {
	return s.client
}

type subscription struct {
	ps   *redis.PubSub
	out  chan []byte
	done chan struct{}
	once sync.Once
	// closed once the forwarding goroutine has returned
	stopped chan struct{}
}

func newSubscription(ps *redis.PubSub) *subscription {
	sub := &subscription{
		ps:      ps,
		out:     make(chan []byte, 64),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go sub.forward()
	return sub
}

// forward copies payloads to out until the subscription is closed. A
// consumer that stops reading never pins the goroutine.
func (s *subscription) forward() {
	defer close(s.stopped)
	defer close(s.out)

	msgs := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(msg.Payload):
			case <-s.done:
				return
			}
		}
	}
}

func (s *subscription) Messages() <-chan []byte {
	return s.out
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

// Helper functions

func formatScore(v float64) string {
	switch {
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsInf(v, 1):
		return "+inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
