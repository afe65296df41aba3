package activity

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

/* Activity layout in the state store
 * activity:recent                    list of every activity, newest first, capped at 1000
 * activity:user:{user_id}            list of one user's activities, capped at 100
 * metrics:daily:{YYYY-MM-DD}         hash of counts by type and by user:{id}
 * metrics:hourly:{YYYY-MM-DD:HH}     hash of counts by type
 */

const (
	recentKey     = "activity:recent"
	userPrefix    = "activity:user:"
	dailyPrefix   = "metrics:daily:"
	hourlyPrefix  = "metrics:hourly:"
	recentLimit   = 1000
	perUserLimit  = 100
	metricsMaxAge = 30 * 24 * time.Hour

	DefaultLimit = 20
)

// Activity is one audited event
type Activity struct {
	Type      string         `json:"type"`
	UserID    string         `json:"user_id"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

type Store interface {
	store.KV
	store.Hash
	store.List
}

type Tracker struct {
	Store  Store
	Bus    event.Publisher
	Logger zerolog.Logger
	Now    func() time.Time
}

func NewTracker(s Store, bus event.Publisher, logger zerolog.Logger) *Tracker {
	return &Tracker{
		Store:  s,
		Bus:    bus,
		Logger: logger,
		Now:    time.Now,
	}
}

// Track records an activity in the recent and per user lists, counts it and
// publishes it on activity_events
func (t *Tracker) Track(ctx context.Context, activityType, userID string, data map[string]any) error {
	a := Activity{
		Type:      activityType,
		UserID:    userID,
		Data:      data,
		Timestamp: t.Now().UTC(),
	}

	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshaling activity: %w", err)
	}

	if err := t.push(ctx, recentKey, string(raw), recentLimit); err != nil {
		return err
	}
	if userID != "" {
		if err := t.push(ctx, userPrefix+userID, string(raw), perUserLimit); err != nil {
			return err
		}
	}

	if err := t.count(ctx, a); err != nil {
		return fmt.Errorf("updating activity metrics: %w", err)
	}

	if t.Bus != nil {
		payload := map[string]any{
			"user_id": userID,
			"data":    data,
		}
		if err := t.Bus.Publish(ctx, event.TopicActivity, event.New(activityType, payload)); err != nil {
			t.Logger.Warn().Err(err).Str("event", activityType).Msg("Failed to publish activity event")
		}
	}

	return nil
}

// Recent returns the latest activities of a user, or of everyone when userID
// is empty. A non empty activityType keeps only matching entries.
func (t *Tracker) Recent(ctx context.Context, userID string, limit int, activityType string) ([]Activity, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	key := recentKey
	if userID != "" {
		key = userPrefix + userID
	}

	raw, err := t.Store.LRange(ctx, key, 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("reading activities: %w", err)
	}

	activities := make([]Activity, 0, len(raw))
	for _, item := range raw {
		var a Activity
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			continue
		}
		if activityType != "" && a.Type != activityType {
			continue
		}
		activities = append(activities, a)
	}
	return activities, nil
}

// Counts returns the daily activity counters of day
func (t *Tracker) Counts(ctx context.Context, day time.Time) (map[string]int64, error) {
	fields, err := t.Store.HGetAll(ctx, dailyPrefix+day.UTC().Format("2006-01-02"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return map[string]int64{}, nil
		}
		return nil, fmt.Errorf("reading activity counts: %w", err)
	}

	counts := make(map[string]int64, len(fields))
	for k, v := range fields {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			counts[k] = n
		}
	}
	return counts, nil
}

func (t *Tracker) push(ctx context.Context, key, value string, limit int64) error {
	if err := t.Store.LPush(ctx, key, value); err != nil {
		return fmt.Errorf("pushing activity: %w", err)
	}
	if err := t.Store.LTrim(ctx, key, 0, limit-1); err != nil {
		return fmt.Errorf("trimming activity list: %w", err)
	}
	return nil
}

// count bumps the daily and hourly hashes; both expire after 30 days
func (t *Tracker) count(ctx context.Context, a Activity) error {
	dayKey := dailyPrefix + a.Timestamp.Format("2006-01-02")
	if _, err := t.Store.HIncrBy(ctx, dayKey, a.Type, 1); err != nil {
		return err
	}
	if a.UserID != "" {
		if _, err := t.Store.HIncrBy(ctx, dayKey, "user:"+a.UserID, 1); err != nil {
			return err
		}
	}
	if err := t.Store.Expire(ctx, dayKey, metricsMaxAge); err != nil {
		return err
	}

	hourKey := hourlyPrefix + a.Timestamp.Format("2006-01-02:15")
	if _, err := t.Store.HIncrBy(ctx, hourKey, a.Type, 1); err != nil {
		return err
	}
	return t.Store.Expire(ctx, hourKey, metricsMaxAge)
}
