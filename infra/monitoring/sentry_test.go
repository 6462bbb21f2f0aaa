package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/kilianp07/evcorridor/config"
	coremon "github.com/kilianp07/evcorridor/core/monitoring"
)

func TestNewSentryMonitorWithoutDSN(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.(coremon.NopMonitor); !ok {
		t.Fatalf("expected NopMonitor, got %T", m)
	}
}

func TestNewSentryMonitorInvalidDSN(t *testing.T) {
	if _, err := NewSentryMonitor(config.SentryConfig{DSN: "not a dsn"}); err == nil {
		t.Fatal("expected DSN error")
	}
}

func TestSentryMonitorCapture(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{DSN: "http://public@127.0.0.1:1/1", Environment: "test"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, ok := m.(*sentryMonitor); !ok {
		t.Fatalf("expected sentry monitor, got %T", m)
	}
	m.CaptureException(nil, nil)
	m.CaptureException(errors.New("solve failed"), map[string]string{"path": "/api/v1/plan"})
	m.CapturePanic("boom")
	m.Flush(10 * time.Millisecond)
}
