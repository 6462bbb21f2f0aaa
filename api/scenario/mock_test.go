package scenario

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/kilianp07/evcorridor/app"
	"github.com/kilianp07/evcorridor/core/model"
	"github.com/kilianp07/evcorridor/infra/store"
)

type mockPlanner struct{ mock.Mock }

func (m *mockPlanner) Optimize(ctx context.Context, sc app.Scenario) (*app.Outcome, error) {
	args := m.Called(ctx, sc)
	out, _ := args.Get(0).(*app.Outcome)
	return out, args.Error(1)
}

func (m *mockPlanner) Simulate(ctx context.Context, sc app.Scenario) (*app.Outcome, error) {
	args := m.Called(ctx, sc)
	out, _ := args.Get(0).(*app.Outcome)
	return out, args.Error(1)
}

func (m *mockPlanner) Results() (*app.Outcome, error) {
	args := m.Called()
	out, _ := args.Get(0).(*app.Outcome)
	return out, args.Error(1)
}

func (m *mockPlanner) Reset() { m.Called() }

func (m *mockPlanner) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]store.Run)
	return runs, args.Error(1)
}

func (m *mockPlanner) Run(ctx context.Context, id string) (store.Run, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(store.Run)
	return run, args.Error(1)
}

func (m *mockPlanner) Years() []int { return m.Called().Get(0).([]int) }

func (m *mockPlanner) Segments() []model.Segment {
	segs, _ := m.Called().Get(0).([]model.Segment)
	return segs
}

type recordingMonitor struct {
	mu     sync.Mutex
	errs   []error
	tags   []map[string]string
	panics []any
}

func (r *recordingMonitor) CaptureException(err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

func (r *recordingMonitor) CapturePanic(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panics = append(r.panics, v)
}

func (r *recordingMonitor) Flush(time.Duration) {}

func TestServerErrorsAreReported(t *testing.T) {
	p := &mockPlanner{}
	mon := &recordingMonitor{}
	s := NewServer(p, nil, WithMonitor(mon))

	boom := errors.New("solver crashed")
	p.On("Optimize", mock.Anything, app.Scenario{Year: 2024, Budget: 10}).Return(nil, boom).Once()
	code, env := do(t, s, http.MethodPost, "/api/v1/plan", `{"year":2024,"budget":10}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "solver crashed", env.Error)
	if assert.Len(t, mon.errs, 1) {
		assert.ErrorIs(t, mon.errs[0], boom)
		assert.Equal(t, "/api/v1/plan", mon.tags[0]["path"])
	}

	p.On("Simulate", mock.Anything, mock.Anything).Return(nil, context.Canceled).Once()
	code, _ = do(t, s, http.MethodPost, "/api/v1/simulate", `{"year":2024}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Len(t, mon.errs, 1)

	p.On("Run", mock.Anything, "abc").Return(store.Run{}, store.ErrNotFound).Once()
	code, _ = do(t, s, http.MethodGet, "/api/v1/runs/abc", "")
	assert.Equal(t, http.StatusNotFound, code)

	p.On("Runs", mock.Anything, 20).Return([]store.Run{{ID: "a"}}, nil).Once()
	code, env = do(t, s, http.MethodGet, "/api/v1/runs", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"id":"a","created_at":"0001-01-01T00:00:00Z","year":0,"budget":0,"count_existing":false,"served":0,"spent":0,"plan":null}]`, string(env.Data))

	p.On("Reset").Return().Once()
	code, _ = do(t, s, http.MethodPost, "/api/v1/reset", "")
	assert.Equal(t, http.StatusOK, code)

	p.AssertExpectations(t)
}

func TestServerRecoversPanics(t *testing.T) {
	p := &mockPlanner{}
	mon := &recordingMonitor{}
	s := NewServer(p, nil, WithMonitor(mon))

	p.On("Results").Run(func(mock.Arguments) { panic("corrupt state") })
	code, env := do(t, s, http.MethodGet, "/api/v1/results", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal error", env.Error)
	assert.Equal(t, []any{"corrupt state"}, mon.panics)
}
