package config

import "fmt"

// DatasetConfig locates the segment table.
type DatasetConfig struct {
	Path string `json:"path"`
	// MaxLinkKm leaves consecutive rows unlinked when they are further apart,
	// which splits concatenated corridors. Zero links every row.
	MaxLinkKm float64 `json:"max_link_km"`
}

// SetDefaults applies the default segment file name.
func (c *DatasetConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "segments.csv"
	}
}

// Validate checks the link threshold.
func (c DatasetConfig) Validate() error {
	if c.MaxLinkKm < 0 {
		return fmt.Errorf("max_link_km must not be negative")
	}
	return nil
}

// StoreConfig enables the run history. An empty path disables it.
type StoreConfig struct {
	Path string `json:"path"`
}

// TraceConfig enables the car trace file. An empty path disables it.
type TraceConfig struct {
	Path string `json:"path"`
}

// APIConfig configures the HTTP server of the serve command.
type APIConfig struct {
	Addr string `json:"addr"`
}

// SetDefaults applies the default listen address.
func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks the level name.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "trace", "debug", "info", "warn", "error", "disabled":
		return nil
	}
	return fmt.Errorf("unknown level %s", c.Level)
}

// SentryConfig enables error reporting. An empty DSN disables it.
type SentryConfig struct {
	DSN              string  `json:"dsn"`
	Environment      string  `json:"environment"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	Release          string  `json:"release"`
}

// Validate checks the sample rate.
func (c SentryConfig) Validate() error {
	if c.TracesSampleRate < 0 || c.TracesSampleRate > 1 {
		return fmt.Errorf("traces_sample_rate must be within [0,1]")
	}
	return nil
}
