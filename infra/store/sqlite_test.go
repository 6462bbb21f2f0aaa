package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evcorridor/core/model"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	id, err := s.Save(ctx, Run{
		Year:     2034,
		Budget:   1e6,
		Served:   321.5,
		Spent:    900000,
		Plan:     model.SitePlan{1: model.TierNone, 4: model.TierLarge},
		Scenario: json.RawMessage(`{"budget":1000000}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2034, got.Year)
	assert.Equal(t, model.TierLarge, got.Plan[4])
	assert.Nil(t, got.Results)
	assert.JSONEq(t, `{"budget":1000000}`, string(got.Scenario))

	got.Results = &model.Results{
		Coverage:    map[model.SegmentID]float64{1: -1, 4: 0.8},
		Utilization: map[model.SegmentID]float64{4: 0.5},
		AverageWait: map[model.SegmentID]float64{4: 2.5},
	}
	_, err = s.Save(ctx, got)
	require.NoError(t, err)

	again, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, again.Results)
	assert.Equal(t, -1.0, again.Results.Coverage[1])
	assert.Equal(t, 2.5, again.Results.AverageWait[4])
}

func TestListNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		_, err := s.Save(ctx, Run{ID: id, Year: 2024, CreatedAt: base.Add(time.Duration(i) * time.Minute), Plan: model.SitePlan{}})
		require.NoError(t, err)
	}
	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
}

func TestMissingRun(t *testing.T) {
	s := openStore(t)
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	id, err := s.Save(ctx, Run{Plan: model.SitePlan{}})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}
