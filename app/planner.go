// Package app wires the corridor planner: it owns the road network and the
// optimizer for one dataset, runs simulations on request and fans the
// outcome out to metrics sinks, the run store and the MQTT publisher.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/evcorridor/config"
	"github.com/kilianp07/evcorridor/core/demand"
	"github.com/kilianp07/evcorridor/core/logger"
	coremetrics "github.com/kilianp07/evcorridor/core/metrics"
	"github.com/kilianp07/evcorridor/core/model"
	"github.com/kilianp07/evcorridor/core/network"
	"github.com/kilianp07/evcorridor/core/optimizer"
	"github.com/kilianp07/evcorridor/core/results"
	"github.com/kilianp07/evcorridor/core/sim"
	"github.com/kilianp07/evcorridor/core/trace"
	"github.com/kilianp07/evcorridor/infra/metrics"
	"github.com/kilianp07/evcorridor/infra/store"
	"github.com/kilianp07/evcorridor/internal/eventbus"
	"github.com/kilianp07/evcorridor/pkg/export"
)

// ErrNoStore is returned by history queries when no run store is configured.
var ErrNoStore = errors.New("run store not configured")

// liveBuffer is the per-subscriber buffer of the car event bus.
const liveBuffer = 4096

// RunStore persists planning runs.
type RunStore interface {
	Save(ctx context.Context, r store.Run) (string, error)
	Get(ctx context.Context, id string) (store.Run, error)
	List(ctx context.Context, limit int) ([]store.Run, error)
}

// ResultPublisher pushes plans, results and live car events to consumers.
type ResultPublisher interface {
	PublishPlan(ctx context.Context, runID string, plan any) error
	PublishResults(ctx context.Context, runID string, results any) error
	Forward(ctx context.Context, runID string, bus *eventbus.Bus[trace.Event]) <-chan struct{}
}

// Outcome is the output of one Optimize or Simulate call.
type Outcome struct {
	RunID    string
	Scenario Scenario
	// Solution is nil when the scenario carried its own plan.
	Solution *optimizer.Solution
	Plan     model.SitePlan
	Coverage model.CoverageMap
	Cached   bool
	// Counters, Results and Summary are set by Simulate only.
	Counters *sim.Counters
	Results  model.Results
	Summary  results.Summary
}

// Planner is the planning session over one corridor dataset. Calls to
// Optimize and Simulate are serialized.
type Planner struct {
	segments []model.Segment
	order    []model.SegmentID
	existing map[model.SegmentID]int
	net      *network.Network
	opt      *optimizer.Optimizer
	simCfg   sim.Config

	sink    coremetrics.MetricsSink
	store   RunStore
	pub     ResultPublisher
	tracer  *trace.TextTracer
	log     logger.Logger
	backend []optimizer.Option
	closers []func() error

	runMu sync.Mutex
	mu    sync.RWMutex
	cache map[string]*optimizer.Solution
	last  *Outcome
}

// Option customises a Planner.
type Option func(*Planner)

// WithExisting sets the installed port counts per segment.
func WithExisting(existing map[model.SegmentID]int) Option {
	return func(p *Planner) { p.existing = existing }
}

// WithSink records plan and run metrics.
func WithSink(s coremetrics.MetricsSink) Option {
	return func(p *Planner) {
		if s != nil {
			p.sink = s
		}
	}
}

// WithStore keeps a history of runs.
func WithStore(s RunStore) Option {
	return func(p *Planner) { p.store = s }
}

// WithPublisher publishes every plan, result and car event.
func WithPublisher(pub ResultPublisher) Option {
	return func(p *Planner) { p.pub = pub }
}

// WithTracer writes the car trace and the result maps of every run.
func WithTracer(t *trace.TextTracer) Option {
	return func(p *Planner) { p.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.log = l
		}
	}
}

// WithOptimizerOptions passes options such as a solver backend to the optimizer.
func WithOptimizerOptions(opts ...optimizer.Option) Option {
	return func(p *Planner) { p.backend = append(p.backend, opts...) }
}

// WithCloser registers a cleanup run by Close.
func WithCloser(f func() error) Option {
	return func(p *Planner) { p.closers = append(p.closers, f) }
}

// New builds the network and optimizer for segments.
func New(segments []model.Segment, cfg *config.Config, opts ...Option) (*Planner, error) {
	p := &Planner{
		segments: segments,
		sink:     coremetrics.NopSink{},
		log:      logger.NopLogger{},
		cache:    make(map[string]*optimizer.Solution),
	}
	for _, o := range opts {
		o(p)
	}
	simCfg := cfg.Simulation
	simCfg.SetDefaults()
	if err := simCfg.Validate(); err != nil {
		return nil, fmt.Errorf("simulation config: %w", err)
	}
	p.simCfg = simCfg

	net, err := network.Build(segments, network.WithMaxLink(cfg.Dataset.MaxLinkKm))
	if err != nil {
		return nil, err
	}
	if lone := net.Disconnected(); len(lone) > 0 {
		p.log.Warnf("%d segments have no link to the corridor: %v", len(lone), lone)
	}
	optOpts := append([]optimizer.Option{optimizer.WithLogger(p.log)}, p.backend...)
	opt, err := optimizer.New(net, segments, cfg.Optimizer, optOpts...)
	if err != nil {
		return nil, err
	}
	p.net, p.opt = net, opt
	p.order = make([]model.SegmentID, len(segments))
	for i, s := range segments {
		p.order[i] = s.ID
	}
	return p, nil
}

// Segments returns the corridor segments in dataset order.
func (p *Planner) Segments() []model.Segment { return p.segments }

// Years lists the supported forecast years.
func (p *Planner) Years() []int { return demand.Years() }

// Optimize selects station sites for sc. Identical inputs are answered from
// the cache until Reset.
func (p *Planner) Optimize(ctx context.Context, sc Scenario) (*Outcome, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	runID := store.NewRunID()
	sol, cached, err := p.solve(ctx, runID, sc)
	if err != nil {
		return nil, err
	}
	out := &Outcome{
		RunID:    runID,
		Scenario: sc,
		Solution: sol,
		Plan:     sol.Plan,
		Coverage: sol.Coverage,
		Cached:   cached,
	}
	p.persist(ctx, out)
	if p.pub != nil {
		if err := p.pub.PublishPlan(ctx, out.RunID, export.PlanRows(p.segments, out.Plan, out.Coverage)); err != nil {
			p.log.Warnf("publish plan: %v", err)
		}
	}
	return out, nil
}

// Simulate plans sc, unless it carries a plan, and simulates one horizon.
// The previous results are discarded as soon as the call starts.
func (p *Planner) Simulate(ctx context.Context, sc Scenario) (*Outcome, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.mu.Lock()
	p.last = nil
	p.mu.Unlock()

	out := &Outcome{RunID: store.NewRunID(), Scenario: sc}
	var rates map[model.SegmentID]float64
	if sc.Plan != nil {
		plan, err := p.completePlan(sc.Plan)
		if err != nil {
			return nil, err
		}
		if rates, err = demand.Rates(p.segments, sc.Year); err != nil {
			return nil, err
		}
		out.Plan, out.Coverage = plan, p.net.Within(plan, p.opt.Radius())
	} else {
		sol, cached, err := p.solve(ctx, out.RunID, sc)
		if err != nil {
			return nil, err
		}
		rates = sol.Demand
		out.Solution, out.Plan, out.Coverage, out.Cached = sol, sol.Plan, sol.Coverage, cached
	}

	c, err := p.run(ctx, out.RunID, sim.Input{Plan: out.Plan, Coverage: out.Coverage, Rates: rates, Segments: p.order})
	if err != nil {
		return nil, err
	}
	res, err := results.Aggregate(c)
	if err != nil {
		return nil, err
	}
	sum, err := results.Summarize(c, res)
	if err != nil {
		return nil, err
	}
	out.Counters, out.Results, out.Summary = c, res, sum
	p.log.Infof("run %s: %d cars, %d charged, %d not charged, %d balked", out.RunID, sum.Generated, sum.Charged, sum.NotCharged, sum.Balked)

	if p.tracer != nil {
		p.tracer.WriteResults(res)
		if err := p.tracer.Flush(); err != nil {
			p.log.Warnf("write trace: %v", err)
		}
	}
	if err := p.sink.RecordRun(coremetrics.RunEvent{
		RunID:        out.RunID,
		Year:         sc.Year,
		Results:      res,
		Generated:    sum.Generated,
		Charged:      sum.Charged,
		NotCharged:   sum.NotCharged,
		Balked:       sum.Balked,
		MeanCoverage: sum.MeanCoverage,
		Time:         time.Now(),
	}); err != nil {
		p.log.Warnf("record run: %v", err)
	}
	p.persist(ctx, out)
	if p.pub != nil {
		if err := p.pub.PublishResults(ctx, out.RunID, export.Round(res)); err != nil {
			p.log.Warnf("publish results: %v", err)
		}
	}

	p.mu.Lock()
	p.last = out
	p.mu.Unlock()
	return out, nil
}

// Results returns the outcome of the last completed simulation, or
// model.ErrPrematureQuery when none has completed since the last start.
func (p *Planner) Results() (*Outcome, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return nil, fmt.Errorf("%w: no simulation has completed", model.ErrPrematureQuery)
	}
	return p.last, nil
}

// Reset drops cached plans and the last results.
func (p *Planner) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]*optimizer.Solution)
	p.last = nil
}

// Runs lists stored runs, newest first.
func (p *Planner) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}
	return p.store.List(ctx, limit)
}

// Run returns a stored run.
func (p *Planner) Run(ctx context.Context, id string) (store.Run, error) {
	if p.store == nil {
		return store.Run{}, ErrNoStore
	}
	return p.store.Get(ctx, id)
}

// Close releases the resources registered with WithCloser.
func (p *Planner) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

func (p *Planner) solve(ctx context.Context, runID string, sc Scenario) (*optimizer.Solution, bool, error) {
	req := sc.request(p.existing)
	k := key(req)
	p.mu.RLock()
	sol, ok := p.cache[k]
	p.mu.RUnlock()
	if ok {
		p.log.Debugw("plan cache hit", map[string]any{"key": k})
		return sol, true, nil
	}

	start := time.Now()
	sol, err := p.opt.Plan(ctx, req)
	if err != nil {
		return nil, false, err
	}
	elapsed := time.Since(start)
	p.log.Infof("planned %d stations for year %d, served %.1f vehicles in %s", len(sol.Plan.Stations()), req.Year, sol.Served, elapsed)
	if err := p.sink.RecordPlan(coremetrics.PlanEvent{
		RunID:    runID,
		Year:     req.Year,
		Budget:   req.Budget,
		Credit:   sol.Credit,
		Spent:    sol.Spent,
		Served:   sol.Served,
		Plan:     sol.Plan,
		Nodes:    sol.Nodes,
		Status:   sol.Status.String(),
		Duration: elapsed,
		Time:     time.Now(),
	}); err != nil {
		p.log.Warnf("record plan: %v", err)
	}

	p.mu.Lock()
	p.cache[k] = sol
	p.mu.Unlock()
	return sol, false, nil
}

// run simulates in with a fresh event bus feeding the live consumers.
func (p *Planner) run(ctx context.Context, runID string, in sim.Input) (*sim.Counters, error) {
	opts := []sim.Option{sim.WithLogger(p.log)}
	if p.tracer != nil {
		opts = append(opts, sim.WithTracer(p.tracer))
	}
	var bus *eventbus.Bus[trace.Event]
	var waits []<-chan struct{}
	_, recordsCars := p.sink.(coremetrics.CarEventRecorder)
	if recordsCars || p.pub != nil {
		bus = eventbus.New[trace.Event](liveBuffer)
		waits = append(waits, metrics.StartEventCollector(ctx, bus, p.sink))
		if p.pub != nil {
			waits = append(waits, p.pub.Forward(ctx, runID, bus))
		}
		opts = append(opts, sim.WithPublisher(bus))
	}
	s, err := sim.New(p.simCfg, opts...)
	if err != nil {
		return nil, err
	}
	c, err := s.Run(ctx, in)
	if bus != nil {
		bus.Close()
		for _, w := range waits {
			<-w
		}
		if n := bus.Dropped(); n > 0 {
			p.log.Warnf("run %s: %d car events dropped by slow consumers", runID, n)
		}
	}
	return c, err
}

func (p *Planner) completePlan(in model.SitePlan) (model.SitePlan, error) {
	for id, t := range in {
		if !p.net.Has(id) {
			return nil, fmt.Errorf("%w: plan names unknown segment %d", model.ErrInvalidInput, id)
		}
		if !t.Valid() {
			return nil, fmt.Errorf("%w: segment %d has invalid tier %d", model.ErrInvalidInput, id, int(t))
		}
	}
	plan := make(model.SitePlan, len(p.order))
	for _, id := range p.order {
		plan[id] = in[id]
	}
	return plan, nil
}

func (p *Planner) persist(ctx context.Context, out *Outcome) {
	if p.store == nil {
		return
	}
	r := store.Run{
		ID:            out.RunID,
		Year:          out.Scenario.Year,
		Budget:        out.Scenario.Budget,
		CountExisting: out.Scenario.CountExisting,
		Plan:          out.Plan,
		Spent:         out.Plan.Cost(p.segments),
	}
	if out.Solution != nil {
		r.Served, r.Spent = out.Solution.Served, out.Solution.Spent
	}
	if out.Counters != nil {
		res := out.Results
		r.Results = &res
	}
	if raw, err := marshalScenario(out.Scenario); err == nil {
		r.Scenario = raw
	}
	if _, err := p.store.Save(ctx, r); err != nil {
		p.log.Warnf("save run %s: %v", out.RunID, err)
	}
}
