package demand

import (
	"errors"
	"math"
	"testing"

	"github.com/kilianp07/evcorridor/core/model"
)

func TestYearScalar(t *testing.T) {
	for _, y := range Years() {
		if _, err := YearScalar(y); err != nil {
			t.Fatalf("year %d: %v", y, err)
		}
	}
	if s, _ := YearScalar(2049); s != 16.6 {
		t.Fatalf("expected 16.6 got %v", s)
	}
}

func TestInvalidYear(t *testing.T) {
	seg := model.Segment{ID: 1, Length: 1, AADT: 1000}
	if _, err := Rate(seg, 2030); !errors.Is(err, model.ErrInvalidYear) {
		t.Fatalf("expected ErrInvalidYear, got %v", err)
	}
	if _, err := YearScalar(2030); !errors.Is(err, model.ErrInvalidYear) {
		t.Fatalf("expected ErrInvalidYear, got %v", err)
	}
	if _, err := Rates([]model.Segment{seg}, 2030); !errors.Is(err, model.ErrInvalidYear) {
		t.Fatalf("expected ErrInvalidYear, got %v", err)
	}
}

func TestRateFormula(t *testing.T) {
	seg := model.Segment{ID: 1, Length: 1, AADT: 100000, TruckPct: 20}
	got, err := Rate(seg, 2024)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	want := 100000 * 0.8 * 0.033 * 0.02072
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v got %v", want, got)
	}
	later, _ := Rate(seg, 2029)
	if math.Abs(later-want*4.12) > 1e-9 {
		t.Fatalf("expected scaled rate, got %v", later)
	}
}

func TestRatesRecomputedPerYear(t *testing.T) {
	segs := []model.Segment{
		{ID: 1, Length: 1, AADT: 50000},
		{ID: 2, Length: 1, AADT: 20000, TruckPct: 50},
	}
	a, err := Rates(segs, 2024)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Rates(segs, 2034)
	if err != nil {
		t.Fatal(err)
	}
	for id := range a {
		if math.Abs(b[id]-a[id]*7.24) > 1e-9 {
			t.Fatalf("segment %d not rescaled: %v vs %v", id, a[id], b[id])
		}
	}
}

func TestRatesRejectMalformed(t *testing.T) {
	segs := []model.Segment{{ID: 1, Length: math.NaN(), AADT: 10}}
	if _, err := Rates(segs, 2024); !errors.Is(err, model.ErrMalformedSegment) {
		t.Fatalf("expected ErrMalformedSegment, got %v", err)
	}
}
