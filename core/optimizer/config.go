package optimizer

import (
	"fmt"

	"github.com/kilianp07/evcorridor/core/model"
)

// Config defines the site-selection model parameters.
type Config struct {
	// RadiusKm is the maximum shortest-path distance between a station and a
	// segment it serves.
	RadiusKm float64 `json:"radius_km"`
	// NodeLimit caps branch and bound nodes.
	NodeLimit int `json:"node_limit"`
	// TimeLimitSeconds caps the search time of one plan.
	TimeLimitSeconds int `json:"time_limit_seconds"`
	// Capacity overrides the vehicles per day served by each tier, indexed
	// small, medium, large.
	Capacity []float64 `json:"capacity"`
}

// SetDefaults applies the corridor defaults.
func (c *Config) SetDefaults() {
	if c.RadiusKm == 0 {
		c.RadiusKm = 40
	}
	if c.NodeLimit == 0 {
		c.NodeLimit = 20000
	}
	if c.TimeLimitSeconds == 0 {
		c.TimeLimitSeconds = 30
	}
	if len(c.Capacity) == 0 {
		for _, t := range model.Tiers {
			c.Capacity = append(c.Capacity, model.DefaultCapacity[t])
		}
	}
}

// Validate checks the radius and that capacities increase with the tier.
func (c Config) Validate() error {
	if c.RadiusKm <= 0 {
		return fmt.Errorf("radius_km must be positive")
	}
	if c.NodeLimit < 0 {
		return fmt.Errorf("node_limit must not be negative")
	}
	if c.TimeLimitSeconds < 0 {
		return fmt.Errorf("time_limit_seconds must not be negative")
	}
	if len(c.Capacity) != len(model.Tiers) {
		return fmt.Errorf("capacity needs %d values, got %d", len(model.Tiers), len(c.Capacity))
	}
	prev := 0.0
	for i, v := range c.Capacity {
		if v <= prev {
			return fmt.Errorf("capacity of %s must exceed %v", model.Tier(i+1), prev)
		}
		prev = v
	}
	return nil
}

func (c Config) capacity(t model.Tier) float64 {
	if t < model.TierSmall || int(t) > len(c.Capacity) {
		return 0
	}
	return c.Capacity[t-1]
}
