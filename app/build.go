package app

import (
	"fmt"
	"os"

	"github.com/kilianp07/evcorridor/config"
	coremetrics "github.com/kilianp07/evcorridor/core/metrics"
	"github.com/kilianp07/evcorridor/core/trace"
	"github.com/kilianp07/evcorridor/infra/logger"
	"github.com/kilianp07/evcorridor/infra/mqtt"
	"github.com/kilianp07/evcorridor/infra/store"
	"github.com/kilianp07/evcorridor/pkg/dataset"
)

// NewFromConfig reads the dataset and connects the sinks, run store, MQTT
// publisher and trace file named in cfg. Extra opts are applied last.
func NewFromConfig(cfg *config.Config, opts ...Option) (p *Planner, err error) {
	log := logger.New("planner")
	table, err := dataset.ReadFile(cfg.Dataset.Path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	log.Infof("loaded %d segments from %s", len(table.Segments), cfg.Dataset.Path)

	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	if c, ok := sink.(interface{ Close() }); ok {
		closers = append(closers, func() error { c.Close(); return nil })
	}
	base := []Option{WithLogger(log), WithExisting(table.Existing), WithSink(sink)}

	if cfg.Store.Path != "" {
		st, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("run store: %w", err)
		}
		closers = append(closers, st.Close)
		base = append(base, WithStore(st))
	}
	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		closers = append(closers, func() error { pub.Disconnect(); return nil })
		base = append(base, WithPublisher(pub))
	}
	if cfg.Trace.Path != "" {
		f, err := os.Create(cfg.Trace.Path)
		if err != nil {
			return nil, fmt.Errorf("trace file: %w", err)
		}
		closers = append(closers, f.Close)
		base = append(base, WithTracer(trace.NewText(f)))
	}
	for _, c := range closers {
		base = append(base, WithCloser(c))
	}

	p, err = New(table.Segments, cfg, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return p, nil
}
