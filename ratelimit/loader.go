package ratelimit

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

/* Loader reads the plans table from plans.yaml
 *
 * plans:
 *   free:
 *     default: {calls: 100, window_seconds: 3600}
 */

// Config represents the structure of plans.yaml
type Config struct {
	Plans map[string]map[string]LimitConfig `yaml:"plans"`
}

// LimitConfig represents a single action limit in the YAML file
type LimitConfig struct {
	Calls         int `yaml:"calls"`
	WindowSeconds int `yaml:"window_seconds"`
}

// LoadPlans reads and validates a plans file
func LoadPlans(filePath string) (Plans, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading plans file: %w", err)
	}

	return ParsePlans(data)
}

// ParsePlans decodes and validates a plans document
func ParsePlans(data []byte) (Plans, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing plans YAML: %w", err)
	}

	plans := make(Plans, len(config.Plans))
	for plan, actions := range config.Plans {
		limits := make(map[string]Limit, len(actions))
		for action, lc := range actions {
			limits[action] = Limit{
				Calls:  lc.Calls,
				Window: time.Duration(lc.WindowSeconds) * time.Second,
			}
		}
		plans[plan] = limits
	}

	if err := plans.Validate(); err != nil {
		return nil, fmt.Errorf("validating plans: %w", err)
	}

	return plans, nil
}
