package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/evcorridor/core/metrics"
	"github.com/kilianp07/evcorridor/core/model"
	"github.com/kilianp07/evcorridor/core/trace"
)

// PromSink exposes the latest plan and simulation results as Prometheus metrics.
type PromSink struct {
	coverage    *prometheus.GaugeVec
	utilization *prometheus.GaugeVec
	wait        *prometheus.GaugeVec
	stations    *prometheus.GaugeVec
	served      prometheus.Gauge
	spent       prometheus.Gauge
	solve       prometheus.Histogram
	runs        prometheus.Counter
	cars        *prometheus.CounterVec
}

// NewPromSink registers corridor metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.coverage, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evcorridor_segment_coverage_ratio",
		Help: "Share of cars charged per origin segment in the last simulation, -1 when no car appeared",
	}, []string{"segment"})); err != nil {
		return nil, err
	}
	if s.utilization, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evcorridor_station_utilization_ratio",
		Help: "Share of port minutes spent charging in the last simulation",
	}, []string{"station"})); err != nil {
		return nil, err
	}
	if s.wait, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evcorridor_station_wait_minutes",
		Help: "Average queueing time per station in the last simulation, -1 when nobody was served",
	}, []string{"station"})); err != nil {
		return nil, err
	}
	if s.stations, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evcorridor_plan_stations",
		Help: "Stations in the last plan by tier",
	}, []string{"tier"})); err != nil {
		return nil, err
	}
	if s.served, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "evcorridor_plan_served_vehicles",
		Help: "Daily charging demand assigned to stations in the last plan",
	})); err != nil {
		return nil, err
	}
	if s.spent, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "evcorridor_plan_spent",
		Help: "Build cost of the last plan",
	})); err != nil {
		return nil, err
	}
	if s.solve, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "evcorridor_plan_solve_seconds",
		Help:    "Time spent solving the site selection model",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})); err != nil {
		return nil, err
	}
	if s.runs, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evcorridor_simulation_runs_total",
		Help: "Number of completed simulations",
	})); err != nil {
		return nil, err
	}
	if s.cars, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evcorridor_car_events_total",
		Help: "Simulated car state transitions by kind",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordPlan replaces the plan gauges.
func (s *PromSink) RecordPlan(ev coremetrics.PlanEvent) error {
	s.served.Set(ev.Served)
	s.spent.Set(ev.Spent)
	s.solve.Observe(ev.Duration.Seconds())
	counts := make(map[model.Tier]int)
	for _, t := range ev.Plan {
		counts[t]++
	}
	for _, t := range model.Tiers {
		s.stations.WithLabelValues(t.String()).Set(float64(counts[t]))
	}
	return nil
}

// RecordRun replaces the per segment and per station gauges.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	s.runs.Inc()
	s.coverage.Reset()
	s.utilization.Reset()
	s.wait.Reset()
	for id, v := range ev.Results.Coverage {
		s.coverage.WithLabelValues(label(id)).Set(v)
	}
	for id, v := range ev.Results.Utilization {
		s.utilization.WithLabelValues(label(id)).Set(v)
	}
	for id, v := range ev.Results.AverageWait {
		s.wait.WithLabelValues(label(id)).Set(v)
	}
	return nil
}

// RecordCarEvent counts the transition.
func (s *PromSink) RecordCarEvent(ev trace.Event) error {
	s.cars.WithLabelValues(ev.Kind.String()).Inc()
	return nil
}

func label(id model.SegmentID) string { return strconv.FormatInt(int64(id), 10) }
