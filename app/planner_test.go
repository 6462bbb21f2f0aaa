package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evcorridor/config"
	coremetrics "github.com/kilianp07/evcorridor/core/metrics"
	"github.com/kilianp07/evcorridor/core/model"
	"github.com/kilianp07/evcorridor/core/optimizer"
	"github.com/kilianp07/evcorridor/core/trace"
	"github.com/kilianp07/evcorridor/infra/store"
	"github.com/kilianp07/evcorridor/internal/eventbus"
)

type recordingSink struct {
	mu    sync.Mutex
	plans []coremetrics.PlanEvent
	runs  []coremetrics.RunEvent
}

func (s *recordingSink) RecordPlan(ev coremetrics.PlanEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = append(s.plans, ev)
	return nil
}

func (s *recordingSink) RecordRun(ev coremetrics.RunEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, ev)
	return nil
}

type memStore struct {
	mu   sync.Mutex
	runs map[string]store.Run
}

func (m *memStore) Save(_ context.Context, r store.Run) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs == nil {
		m.runs = make(map[string]store.Run)
	}
	m.runs[r.ID] = r
	return r.ID, nil
}

func (m *memStore) Get(_ context.Context, id string) (store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return r, nil
}

func (m *memStore) List(context.Context, int) ([]store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	return out, nil
}

type fakePublisher struct {
	plans   atomic.Int32
	results atomic.Int32
	events  atomic.Int32
}

func (f *fakePublisher) PublishPlan(context.Context, string, any) error {
	f.plans.Add(1)
	return nil
}

func (f *fakePublisher) PublishResults(context.Context, string, any) error {
	f.results.Add(1)
	return nil
}

func (f *fakePublisher) Forward(_ context.Context, _ string, bus *eventbus.Bus[trace.Event]) <-chan struct{} {
	done := make(chan struct{})
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		for range sub {
			f.events.Add(1)
		}
	}()
	return done
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Simulation.Seed = 42
	cfg.SetDefaults()
	return cfg
}

func corridor() []model.Segment {
	segs := make([]model.Segment, 5)
	for i := range segs {
		segs[i] = model.Segment{
			ID:     model.SegmentID(i + 1),
			Length: 10,
			AADT:   30000,
			Costs:  [3]float64{100, 180, 300},
		}
	}
	return segs
}

func newPlanner(t *testing.T, opts ...Option) *Planner {
	t.Helper()
	p, err := New(corridor(), testConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestResultsBeforeRun(t *testing.T) {
	p := newPlanner(t)
	_, err := p.Results()
	if !errors.Is(err, model.ErrPrematureQuery) {
		t.Fatalf("expected ErrPrematureQuery, got %v", err)
	}
}

func TestSimulateRecordsEverywhere(t *testing.T) {
	sink := &recordingSink{}
	st := &memStore{}
	pub := &fakePublisher{}
	var buf bytes.Buffer
	p := newPlanner(t, WithSink(sink), WithStore(st), WithPublisher(pub), WithTracer(trace.NewText(&buf)))

	out, err := p.Simulate(context.Background(), Scenario{Year: 2029, Budget: 300})
	require.NoError(t, err)
	require.NotNil(t, out.Solution)
	assert.False(t, out.Cached)
	assert.Len(t, out.Plan, 5)
	assert.NotEmpty(t, out.Plan.Stations())
	assert.Equal(t, uint64(42), out.Counters.Seed)
	assert.Positive(t, out.Summary.Generated)
	assert.GreaterOrEqual(t, out.Summary.Generated, out.Summary.Charged+out.Summary.NotCharged)

	for _, st := range out.Plan.Stations() {
		u, ok := out.Results.Utilization[st]
		require.True(t, ok, "station %d has no utilization", st)
		assert.GreaterOrEqual(t, u, 0.0)
		assert.LessOrEqual(t, u, 1.0)
	}

	got, err := p.Results()
	require.NoError(t, err)
	assert.Same(t, out, got)

	assert.Len(t, sink.plans, 1)
	assert.Len(t, sink.runs, 1)
	assert.Equal(t, out.RunID, sink.runs[0].RunID)
	assert.Equal(t, out.RunID, sink.plans[0].RunID)

	saved, err := p.Run(context.Background(), out.RunID)
	require.NoError(t, err)
	require.NotNil(t, saved.Results)
	assert.Equal(t, 2029, saved.Year)
	assert.Contains(t, string(saved.Scenario), `"budget":300`)

	assert.Equal(t, int32(1), pub.results.Load())
	assert.Positive(t, pub.events.Load())
	assert.Contains(t, buf.String(), "Car appeared at")
	assert.Contains(t, buf.String(), "COVERAGE:")
}

func TestOptimizeCache(t *testing.T) {
	sink := &recordingSink{}
	pub := &fakePublisher{}
	p := newPlanner(t, WithSink(sink), WithPublisher(pub))
	ctx := context.Background()

	sc := Scenario{Year: 2024, Budget: 180, Pins: map[model.SegmentID]model.Tier{3: model.TierSmall}}
	first, err := p.Optimize(ctx, sc)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, model.TierSmall, first.Plan[3])

	second, err := p.Optimize(ctx, sc)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Same(t, first.Solution, second.Solution)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Len(t, sink.plans, 1)
	assert.Equal(t, int32(2), pub.plans.Load())

	p.Reset()
	third, err := p.Optimize(ctx, sc)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Len(t, sink.plans, 2)
}

func TestFailedRunClearsResults(t *testing.T) {
	p := newPlanner(t)
	ctx := context.Background()
	_, err := p.Simulate(ctx, Scenario{Year: 2024, Budget: 100})
	require.NoError(t, err)
	_, err = p.Results()
	require.NoError(t, err)

	_, err = p.Simulate(ctx, Scenario{Year: 2023, Budget: 100})
	require.ErrorIs(t, err, model.ErrInvalidYear)
	_, err = p.Results()
	require.ErrorIs(t, err, model.ErrPrematureQuery)
}

func TestSimulateGivenPlan(t *testing.T) {
	p := newPlanner(t)
	ctx := context.Background()
	out, err := p.Simulate(ctx, Scenario{Year: 2024, Plan: model.SitePlan{3: model.TierLarge}})
	require.NoError(t, err)
	assert.Nil(t, out.Solution)
	assert.Equal(t, []model.SegmentID{3}, out.Plan.Stations())
	assert.Equal(t, model.TierNone, out.Plan[1])
	assert.Len(t, out.Coverage, 5)

	_, err = p.Simulate(ctx, Scenario{Year: 2024, Plan: model.SitePlan{9: model.TierSmall}})
	require.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = p.Simulate(ctx, Scenario{Year: 2024, Plan: model.SitePlan{2: model.Tier(7)}})
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestInfeasibleScenario(t *testing.T) {
	p := newPlanner(t)
	_, err := p.Optimize(context.Background(), Scenario{
		Year:   2024,
		Budget: 299,
		Pins:   map[model.SegmentID]model.Tier{2: model.TierLarge},
	})
	require.ErrorIs(t, err, model.ErrInfeasible)
}

func TestExistingStationsFromDataset(t *testing.T) {
	p := newPlanner(t, WithExisting(map[model.SegmentID]int{2: 4}))
	ctx := context.Background()
	out, err := p.Optimize(ctx, Scenario{Year: 2024, CountExisting: true})
	require.NoError(t, err)
	assert.Equal(t, model.TierMedium, out.Plan[2])
	assert.InDelta(t, 180, out.Solution.Credit, 1e-9)

	// an explicit empty map overrides the dataset
	out, err = p.Optimize(ctx, Scenario{Year: 2024, CountExisting: true, Existing: map[model.SegmentID]int{}})
	require.NoError(t, err)
	assert.Empty(t, out.Plan.Stations())
}

func TestHistoryWithoutStore(t *testing.T) {
	p := newPlanner(t)
	_, err := p.Runs(context.Background(), 10)
	require.ErrorIs(t, err, ErrNoStore)
	_, err = p.Run(context.Background(), "x")
	require.ErrorIs(t, err, ErrNoStore)
}

func TestCloseRunsClosersInReverse(t *testing.T) {
	var order []string
	p, err := New(corridor(), testConfig(),
		WithCloser(func() error { order = append(order, "first"); return nil }),
		WithCloser(func() error { order = append(order, "second"); return errors.New("boom") }),
	)
	require.NoError(t, err)
	err = p.Close()
	require.Error(t, err)
	assert.Equal(t, []string{"second", "first"}, order)
	require.NoError(t, p.Close())
}

func TestCacheKeyIsCanonical(t *testing.T) {
	a := optimizer.Request{
		Year:     2024,
		Budget:   500,
		Pins:     map[model.SegmentID]model.Tier{5: model.TierSmall, 1: model.TierLarge},
		Existing: map[model.SegmentID]int{3: 2, 4: 0},
	}
	b := optimizer.Request{
		Year:     2024,
		Budget:   500,
		Pins:     map[model.SegmentID]model.Tier{1: model.TierLarge, 5: model.TierSmall},
		Existing: map[model.SegmentID]int{3: 2},
	}
	if key(a) != key(b) {
		t.Fatalf("keys differ: %q vs %q", key(a), key(b))
	}
	b.CountExisting = true
	if key(a) == key(b) {
		t.Fatal("count flag ignored by key")
	}
	if !strings.HasPrefix(key(a), "y=2024|b=500|") {
		t.Fatalf("unexpected key %q", key(a))
	}

	// a TierNone pin does not constrain the plan
	none := optimizer.Request{Year: 2024, Budget: 500, Pins: map[model.SegmentID]model.Tier{1: model.TierNone}}
	empty := optimizer.Request{Year: 2024, Budget: 500}
	if key(none) != key(empty) {
		t.Fatalf("TierNone pin changed the key: %q vs %q", key(none), key(empty))
	}
	a.Pins[2] = model.TierNone
	b.CountExisting = false
	if key(a) != key(b) {
		t.Fatalf("keys differ with a TierNone pin: %q vs %q", key(a), key(b))
	}
}
