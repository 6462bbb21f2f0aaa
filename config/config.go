package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/evcorridor/core/metrics"
	"github.com/kilianp07/evcorridor/core/optimizer"
	"github.com/kilianp07/evcorridor/core/sim"
	"github.com/kilianp07/evcorridor/infra/mqtt"
)

// Config is the full planner configuration.
type Config struct {
	Dataset    DatasetConfig    `json:"dataset"`
	Optimizer  optimizer.Config `json:"optimizer"`
	Simulation sim.Config       `json:"simulation"`
	Metrics    metrics.Config   `json:"metrics"`
	MQTT       mqtt.Config      `json:"mqtt"`
	Store      StoreConfig      `json:"store"`
	Trace      TraceConfig      `json:"trace"`
	Logging    LoggingConfig    `json:"logging"`
	API        APIConfig        `json:"api"`
	Sentry     SentryConfig     `json:"sentry"`
}

// Load reads the YAML or JSON file at path and applies K_ prefixed
// environment overrides, for example K_OPTIMIZER__RADIUS_KM=30. An empty
// path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Dataset.SetDefaults()
	c.Optimizer.SetDefaults()
	c.Simulation.SetDefaults()
	c.MQTT.SetDefaults()
	c.Logging.SetDefaults()
	c.API.SetDefaults()
}

// Validate checks every section and names the failing one.
func (c Config) Validate() error {
	checks := []struct {
		name string
		err  error
	}{
		{"dataset", c.Dataset.Validate()},
		{"optimizer", c.Optimizer.Validate()},
		{"simulation", c.Simulation.Validate()},
		{"mqtt", c.MQTT.Validate()},
		{"logging", c.Logging.Validate()},
		{"sentry", c.Sentry.Validate()},
	}
	for _, ch := range checks {
		if ch.err != nil {
			return fmt.Errorf("%s: %w", ch.name, ch.err)
		}
	}
	return nil
}
