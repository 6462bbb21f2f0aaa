package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `dataset:
  path: "data/highway1.csv"
  max_link_km: 50
optimizer:
  radius_km: 35
  node_limit: 5000
  time_limit_seconds: 12
simulation:
  seed: 99
  speed_kmh: 90
metrics:
  sinks:
    - type: "nop"
  prometheus_addr: ":9100"
mqtt:
  broker: "tcp://localhost:1883"
  topic_prefix: "corridor"
  qos: 1
store:
  path: "runs.db"
trace:
  path: "sim_log.txt"
logging:
  level: "debug"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"dataset.path", cfg.Dataset.Path, "data/highway1.csv"},
		{"dataset.max_link_km", cfg.Dataset.MaxLinkKm, 50.0},
		{"optimizer.radius_km", cfg.Optimizer.RadiusKm, 35.0},
		{"optimizer.node_limit", cfg.Optimizer.NodeLimit, 5000},
		{"optimizer.time_limit_seconds", cfg.Optimizer.TimeLimitSeconds, 12},
		{"optimizer.capacity default", len(cfg.Optimizer.Capacity), 3},
		{"simulation.seed", cfg.Simulation.Seed, uint64(99)},
		{"simulation.speed_kmh", cfg.Simulation.SpeedKmh, 90.0},
		{"simulation.horizon default", cfg.Simulation.HorizonMinutes, 1440},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"metrics.prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"mqtt.broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"mqtt.qos", cfg.MQTT.QoS, byte(1)},
		{"store.path", cfg.Store.Path, "runs.db"},
		{"trace.path", cfg.Trace.Path, "sim_log.txt"},
		{"logging.level", cfg.Logging.Level, "debug"},
		{"api.addr default", cfg.API.Addr, ":8080"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeFile(t, "config.json", `{"optimizer":{"radius_km":40}}`)
	t.Setenv("K_OPTIMIZER__RADIUS_KM", "25")
	t.Setenv("K_SIMULATION__SEED", "7")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Optimizer.RadiusKm != 25 {
		t.Fatalf("env override not applied: %v", cfg.Optimizer.RadiusKm)
	}
	if cfg.Simulation.Seed != 7 {
		t.Fatalf("seed override not applied: %v", cfg.Simulation.Seed)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Optimizer.RadiusKm != 40 || cfg.Simulation.SpeedKmh != 100 || cfg.Dataset.Path != "segments.csv" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(writeFile(t, "config.toml", "")); err == nil {
		t.Fatal("expected unsupported format error")
	}
	if _, err := Load(writeFile(t, "config.yaml", "logging:\n  level: loud\n")); err == nil {
		t.Fatal("expected invalid level error")
	}
	if _, err := Load(writeFile(t, "config.yaml", "optimizer:\n  capacity: [96, 48, 192]\n")); err == nil {
		t.Fatal("expected invalid capacity error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected missing file error")
	}
}
