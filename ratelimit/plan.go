package ratelimit

import (
	"fmt"
	"sort"
	"time"
)

const (
	// DefaultAction is the bucket used for actions a plan does not configure
	DefaultAction = "default"
	// LowestTier is the fallback plan for unknown or missing plans
	LowestTier = "free"
)

// Limit is a quota of Calls per Window
type Limit struct {
	Calls  int
	Window time.Duration
}

func (l Limit) Validate() error {
	if l.Calls < 1 {
		return fmt.Errorf("calls must be at least 1 (got %d)", l.Calls)
	}
	if l.Window < time.Second {
		return fmt.Errorf("window must be at least 1 second (got %s)", l.Window)
	}
	return nil
}

/* Plans maps plan tier to action to limit
 * Every plan must define the default action and the lowest tier must exist
 */
type Plans map[string]map[string]Limit

// DefaultPlans returns the built-in tiers: free, premium (10x) and enterprise (100x)
func DefaultPlans() Plans {
	free := map[string]Limit{
		DefaultAction:        {Calls: 100, Window: time.Hour},
		"ai_process":         {Calls: 50, Window: time.Hour},
		"workflow_execution": {Calls: 20, Window: time.Hour},
	}
	return Plans{
		LowestTier:   free,
		"premium":    scale(free, 10),
		"enterprise": scale(free, 100),
	}
}

// Validate checks the table shape and every limit in it
func (p Plans) Validate() error {
	if _, ok := p[LowestTier]; !ok {
		return fmt.Errorf("plan %s is required as the lowest tier", LowestTier)
	}
	for plan, actions := range p {
		if _, ok := actions[DefaultAction]; !ok {
			return fmt.Errorf("plan %s has no %s action", plan, DefaultAction)
		}
		for action, limit := range actions {
			if err := limit.Validate(); err != nil {
				return fmt.Errorf("invalid limit for %s/%s: %w", plan, action, err)
			}
		}
	}
	return nil
}

// Resolve returns the effective plan name and limit for action.
// Unknown plans fall back to the lowest tier, unknown actions to the plan default.
func (p Plans) Resolve(plan, action string) (string, Limit) {
	actions, ok := p[plan]
	if !ok {
		plan = LowestTier
		actions = p[LowestTier]
	}
	limit, ok := actions[action]
	if !ok {
		limit = actions[DefaultAction]
	}
	return plan, limit
}

// Names returns the plan names sorted
func (p Plans) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func scale(base map[string]Limit, factor int) map[string]Limit {
	scaled := make(map[string]Limit, len(base))
	for action, l := range base {
		scaled[action] = Limit{Calls: l.Calls * factor, Window: l.Window}
	}
	return scaled
}
