package metrics

import (
	"time"

	"github.com/kilianp07/evcorridor/core/model"
	"github.com/kilianp07/evcorridor/core/trace"
)

// PlanEvent describes one completed site selection.
type PlanEvent struct {
	RunID    string
	Year     int
	Budget   float64
	Credit   float64
	Spent    float64
	Served   float64
	Plan     model.SitePlan
	Nodes    int
	Status   string
	Duration time.Duration
	Time     time.Time
}

// RunEvent describes one completed simulation and its aggregated results.
type RunEvent struct {
	RunID        string
	Year         int
	Results      model.Results
	Generated    int
	Charged      int
	NotCharged   int
	Balked       int
	MeanCoverage float64
	Time         time.Time
}

// MetricsSink records planning outcomes.
type MetricsSink interface {
	RecordPlan(ev PlanEvent) error
	RecordRun(ev RunEvent) error
}

// CarEventRecorder is implemented by sinks that follow individual cars.
type CarEventRecorder interface {
	RecordCarEvent(ev trace.Event) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordPlan(PlanEvent) error       { return nil }
func (NopSink) RecordRun(RunEvent) error         { return nil }
func (NopSink) RecordCarEvent(trace.Event) error { return nil }
