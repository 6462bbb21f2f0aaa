package metrics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evcorridor/core/factory"
	coremetrics "github.com/kilianp07/evcorridor/core/metrics"
	"github.com/kilianp07/evcorridor/core/model"
)

func TestJSONLSink_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "runs.jsonl")
	s, err := NewJSONLSink(path, 1, 2, 1)
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordPlan(coremetrics.PlanEvent{
		RunID:  "r1",
		Year:   2029,
		Budget: 500,
		Spent:  480,
		Served: 120.5,
		Status: "optimal",
		Plan:   model.SitePlan{1: model.TierNone, 2: model.TierLarge},
		Time:   now,
	}))
	require.NoError(t, s.RecordRun(coremetrics.RunEvent{
		RunID:      "r1",
		Year:       2029,
		Results:    model.Results{Coverage: map[model.SegmentID]float64{1: 0.5}},
		Charged:    10,
		NotCharged: 10,
		Balked:     2,
		Time:       now.Add(time.Second),
	}))
	s.Close()

	recs, err := ReadJSONL(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "plan", recs[0].Kind)
	assert.Equal(t, model.TierLarge, recs[0].Plan[2])
	assert.Equal(t, "optimal", recs[0].Status)
	assert.Equal(t, "run", recs[1].Kind)
	require.NotNil(t, recs[1].Results)
	assert.InDelta(t, 0.5, recs[1].Results.Coverage[1], 1e-9)
	assert.Equal(t, 2, recs[1].Balked)
}

func TestJSONLSinkFromFactory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	s, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "jsonl", Conf: map[string]any{"path": path, "max_size_mb": "5"}}})
	require.NoError(t, err)
	js, ok := s.(*JSONLSink)
	require.True(t, ok)
	assert.Equal(t, 5, js.out.MaxSize)
	require.NoError(t, s.RecordPlan(coremetrics.PlanEvent{RunID: "x", Year: 2024, Time: time.Now()}))
	js.Close()

	recs, err := ReadJSONL(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "x", recs[0].RunID)
}
