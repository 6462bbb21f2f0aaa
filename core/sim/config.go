package sim

import "fmt"

// Config holds the simulation parameters.
type Config struct {
	HorizonMinutes int     `json:"horizon_minutes"`
	SpeedKmh       float64 `json:"speed_kmh"`
	ServiceMean    float64 `json:"service_mean"`
	ServiceStdDev  float64 `json:"service_stddev"`
	// Seed makes runs reproducible. Zero draws a fresh seed per run.
	Seed uint64 `json:"seed"`
}

// SetDefaults applies a one day horizon at highway speed with 20±5 minute charges.
func (c *Config) SetDefaults() {
	if c.HorizonMinutes == 0 {
		c.HorizonMinutes = 1440
	}
	if c.SpeedKmh == 0 {
		c.SpeedKmh = 100
	}
	if c.ServiceMean == 0 {
		c.ServiceMean = 20
	}
	if c.ServiceStdDev == 0 {
		c.ServiceStdDev = 5
	}
}

// Validate checks that all parameters are usable.
func (c Config) Validate() error {
	if c.HorizonMinutes <= 0 {
		return fmt.Errorf("horizon_minutes must be positive")
	}
	if c.SpeedKmh <= 0 {
		return fmt.Errorf("speed_kmh must be positive")
	}
	if c.ServiceMean <= 0 {
		return fmt.Errorf("service_mean must be positive")
	}
	if c.ServiceStdDev < 0 {
		return fmt.Errorf("service_stddev must not be negative")
	}
	return nil
}
