package metrics

import (
	"errors"

	"github.com/kilianp07/evcorridor/core/trace"
)

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordPlan forwards the plan to every sink. All sinks are tried and their
// errors joined.
func (m *MultiSink) RecordPlan(ev PlanEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordPlan(ev))
	}
	return errors.Join(errs...)
}

// RecordRun forwards the run to every sink.
func (m *MultiSink) RecordRun(ev RunEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordRun(ev))
	}
	return errors.Join(errs...)
}

// RecordCarEvent forwards the event to sinks that follow cars.
func (m *MultiSink) RecordCarEvent(ev trace.Event) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(CarEventRecorder); ok {
			errs = append(errs, r.RecordCarEvent(ev))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that has a Close method.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
