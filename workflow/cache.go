package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/marcelsud/flowrelay/event"
	"github.com/marcelsud/flowrelay/store"
	"github.com/rs/zerolog"
)

const (
	cachePrefix        = "workflow:cache:"
	cacheVersionPrefix = "workflow:version:"

	DefaultCacheTTL = time.Hour
)

// ErrCacheMiss is returned when no fresh result is cached
var ErrCacheMiss = errors.New("workflow cache miss")

type cacheEntry struct {
	Result   map[string]any `json:"result"`
	Version  int64          `json:"version"`
	CachedAt time.Time      `json:"cached_at"`
}

// Cache keeps the last execution result of each workflow. Every Put and
// Invalidate bumps the workflow version, so an older entry reads as stale.
type Cache struct {
	Store  Store
	Bus    event.Publisher
	Logger zerolog.Logger
	Now    func() time.Time
}

func NewCache(s Store, bus event.Publisher, logger zerolog.Logger) *Cache {
	return &Cache{
		Store:  s,
		Bus:    bus,
		Logger: logger,
		Now:    time.Now,
	}
}

// Put caches result for ttl (DefaultCacheTTL when zero) and returns its version
func (c *Cache) Put(ctx context.Context, workflowID string, result map[string]any, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	version, err := c.Store.Incr(ctx, cacheVersionPrefix+workflowID)
	if err != nil {
		return 0, fmt.Errorf("incrementing cache version: %w", err)
	}

	data, err := json.Marshal(cacheEntry{
		Result:   result,
		Version:  version,
		CachedAt: c.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("marshaling cache entry: %w", err)
	}
	if err := c.Store.Set(ctx, cachePrefix+workflowID, data, ttl); err != nil {
		return 0, fmt.Errorf("storing cache entry: %w", err)
	}

	publish(ctx, c.Bus, c.Logger, event.TopicCache, event.WorkflowCached, map[string]any{
		"workflow_id": workflowID,
		"version":     version,
	})

	return version, nil
}

// Get returns the cached result. With checkVersion set, an entry older than
// the current version is reported as ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, workflowID string, checkVersion bool) (map[string]any, error) {
	data, err := c.Store.Get(ctx, cachePrefix+workflowID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("getting cache entry: %w", err)
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshaling cache entry: %w", err)
	}

	if checkVersion {
		raw, err := c.Store.Get(ctx, cacheVersionPrefix+workflowID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("getting cache version: %w", err)
		}
		if err == nil {
			current, perr := strconv.ParseInt(string(raw), 10, 64)
			if perr != nil {
				return nil, fmt.Errorf("parsing cache version: %w", perr)
			}
			if current > entry.Version {
				return nil, ErrCacheMiss
			}
		}
	}

	return entry.Result, nil
}

// Invalidate drops the cached result and moves the version forward
func (c *Cache) Invalidate(ctx context.Context, workflowID string) error {
	if err := c.Store.Delete(ctx, cachePrefix+workflowID); err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	if _, err := c.Store.Incr(ctx, cacheVersionPrefix+workflowID); err != nil {
		return fmt.Errorf("incrementing cache version: %w", err)
	}

	publish(ctx, c.Bus, c.Logger, event.TopicCache, event.CacheInvalidated, map[string]any{
		"workflow_id": workflowID,
	})

	return nil
}
