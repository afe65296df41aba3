package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marcelsud/flowrelay/store"
)

// ErrRateLimitExceeded is matched by every *ExceededError
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ErrUnknownPlan is returned when a plan name is not configured
var ErrUnknownPlan = errors.New("unknown plan")

// ExceededError describes a rejected call
type ExceededError struct {
	Action     string
	Plan       string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: limit %d calls per %d seconds",
		e.Action, e.Limit, int(e.Window.Seconds()))
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

const usageTTL = 35 * 24 * time.Hour

// Store is the subset of the state store the limiter needs
type Store interface {
	store.KV
	store.Counter
	store.Hash
}

/* Checker is the limiter contract used by the HTTP layer */
type Checker interface {
	Check(ctx context.Context, userID, action, plan string) error
}

type Limiter struct {
	Store Store
	Plans Plans
	Now   func() time.Time
}

// NewLimiter creates a limiter over plans; nil plans select the built-in tiers
func NewLimiter(s Store, plans Plans) *Limiter {
	if plans == nil {
		plans = DefaultPlans()
	}
	return &Limiter{
		Store: s,
		Plans: plans,
		Now:   time.Now,
	}
}

// Check counts one call of action for userID and rejects it once the window quota is spent.
// An empty plan is looked up from the user's stored plan.
func (l *Limiter) Check(ctx context.Context, userID, action, plan string) error {
	if plan == "" {
		stored, err := l.UserPlan(ctx, userID)
		if err != nil {
			return err
		}
		plan = stored
	}
	plan, limit := l.Plans.Resolve(plan, action)

	key := counterKey(userID, action)
	count, err := l.Store.Incr(ctx, key)
	if err != nil {
		return fmt.Errorf("incrementing rate limit counter: %w", err)
	}
	if count == 1 {
		if err := l.Store.Expire(ctx, key, limit.Window); err != nil {
			return fmt.Errorf("setting rate limit window: %w", err)
		}
	}

	if err := l.trackUsage(ctx, userID, action, plan); err != nil {
		return err
	}

	if count <= int64(limit.Calls) {
		return nil
	}

	retryAfter, err := l.Store.TTL(ctx, key)
	if err != nil || retryAfter <= 0 {
		retryAfter = limit.Window
	}

	return &ExceededError{
		Action:     action,
		Plan:       plan,
		Limit:      limit.Calls,
		Window:     limit.Window,
		RetryAfter: retryAfter,
	}
}

// UserPlan returns the stored plan of userID or the lowest tier
func (l *Limiter) UserPlan(ctx context.Context, userID string) (string, error) {
	data, err := l.Store.Get(ctx, planKey(userID))
	if errors.Is(err, store.ErrNotFound) {
		return LowestTier, nil
	}
	if err != nil {
		return "", fmt.Errorf("getting user plan: %w", err)
	}
	if len(data) == 0 {
		return LowestTier, nil
	}
	return string(data), nil
}

// SetUserPlan stores the plan used when callers pass no plan
func (l *Limiter) SetUserPlan(ctx context.Context, userID, plan string) error {
	if _, ok := l.Plans[plan]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlan, plan)
	}
	if err := l.Store.Set(ctx, planKey(userID), []byte(plan), 0); err != nil {
		return fmt.Errorf("setting user plan: %w", err)
	}
	return nil
}

// Usage is one day of the usage ledger
type Usage struct {
	Day   string
	Users map[string]map[string]int64 // user -> action -> calls
	Plans map[string]map[string]int64 // plan -> action -> calls
}

// Usage returns the ledger for day (UTC)
func (l *Limiter) Usage(ctx context.Context, day time.Time) (Usage, error) {
	u := Usage{
		Day:   day.UTC().Format(time.DateOnly),
		Users: make(map[string]map[string]int64),
		Plans: make(map[string]map[string]int64),
	}

	fields, err := l.Store.HGetAll(ctx, usageKey(day))
	if errors.Is(err, store.ErrNotFound) {
		return u, nil
	}
	if err != nil {
		return Usage{}, fmt.Errorf("reading usage ledger: %w", err)
	}

	for field, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if rest, ok := strings.CutPrefix(field, "plan:"); ok {
			plan, action, found := strings.Cut(rest, ":")
			if found {
				add(u.Plans, plan, action, n)
			}
			continue
		}
		// user ids may contain ':' so split on the last one
		idx := strings.LastIndex(field, ":")
		if idx < 0 {
			continue
		}
		add(u.Users, field[:idx], field[idx+1:], n)
	}

	return u, nil
}

func (l *Limiter) trackUsage(ctx context.Context, userID, action, plan string) error {
	key := usageKey(l.Now())
	if _, err := l.Store.HIncrBy(ctx, key, userID+":"+action, 1); err != nil {
		return fmt.Errorf("tracking usage: %w", err)
	}
	if _, err := l.Store.HIncrBy(ctx, key, "plan:"+plan+":"+action, 1); err != nil {
		return fmt.Errorf("tracking usage: %w", err)
	}
	if err := l.Store.Expire(ctx, key, usageTTL); err != nil {
		return fmt.Errorf("setting usage TTL: %w", err)
	}
	return nil
}

// Helper functions

func counterKey(userID, action string) string {
	return fmt.Sprintf("rate_limit:%s:%s", userID, action)
}

func planKey(userID string) string {
	return fmt.Sprintf("user:%s:plan", userID)
}

func usageKey(day time.Time) string {
	return "usage:" + day.UTC().Format(time.DateOnly)
}

func add(m map[string]map[string]int64, outer, inner string, n int64) {
	if m[outer] == nil {
		m[outer] = make(map[string]int64)
	}
	m[outer][inner] += n
}
