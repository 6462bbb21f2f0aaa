// Package dataset reads the corridor segment table from CSV.
//
// The header row names the columns; order does not matter. Required columns
// are segment_id, length, aadt, truck_pct, latitude, longitude, cost_small,
// cost_medium and cost_large. The optional existing_ports column records
// stations already on the corridor. Rows must be in corridor order.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/kilianp07/evcorridor/core/model"
)

// Table is a parsed segment file.
type Table struct {
	Segments []model.Segment
	// Existing maps segments to their installed port count.
	Existing map[model.SegmentID]int
}

const (
	colID       = "segment_id"
	colLength   = "length"
	colAADT     = "aadt"
	colTruck    = "truck_pct"
	colLat      = "latitude"
	colLon      = "longitude"
	colSmall    = "cost_small"
	colMedium   = "cost_medium"
	colLarge    = "cost_large"
	colExisting = "existing_ports"
)

var required = []string{colID, colLength, colAADT, colTruck, colLat, colLon, colSmall, colMedium, colLarge}

// aliases maps the column names of highway inventory exports.
var aliases = map[string]string{
	"lhrs":    colID,
	"sec len": colLength,
	"truck %": colTruck,
	"cost 1":  colSmall,
	"cost 2":  colMedium,
	"cost 3":  colLarge,
}

// ReadFile parses the CSV file at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Read parses a segment table. Errors wrap model.ErrMalformedSegment and
// name the 1-based line of the offending row.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", model.ErrMalformedSegment)
		}
		return nil, fmt.Errorf("%w: header: %v", model.ErrMalformedSegment, err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if a, ok := aliases[name]; ok {
			name = a
		}
		idx[name] = i
	}
	for _, c := range required {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", model.ErrMalformedSegment, c)
		}
	}
	_, hasExisting := idx[colExisting]

	t := &Table{Existing: make(map[model.SegmentID]int)}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", model.ErrMalformedSegment, line, err)
		}
		p := rowParser{rec: rec, idx: idx}
		seg := model.Segment{
			ID:        model.SegmentID(p.integer(colID)),
			Length:    p.float(colLength),
			AADT:      int(p.integer(colAADT)),
			TruckPct:  p.float(colTruck),
			Latitude:  p.float(colLat),
			Longitude: p.float(colLon),
			Costs:     [3]float64{p.float(colSmall), p.float(colMedium), p.float(colLarge)},
		}
		if hasExisting && p.field(colExisting) != "" {
			if ports := int(p.integer(colExisting)); ports > 0 {
				t.Existing[seg.ID] = ports
			}
		}
		if p.err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", model.ErrMalformedSegment, line, p.err)
		}
		if err := seg.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t.Segments = append(t.Segments, seg)
	}
	if len(t.Segments) == 0 {
		return nil, fmt.Errorf("%w: no segments", model.ErrMalformedSegment)
	}
	return t, nil
}

// rowParser keeps the first conversion error of a row.
type rowParser struct {
	rec []string
	idx map[string]int
	err error
}

func (p *rowParser) field(col string) string {
	i := p.idx[col]
	if i >= len(p.rec) {
		return ""
	}
	return strings.TrimSpace(p.rec[i])
}

func (p *rowParser) float(col string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(p.field(col), 64)
	if err != nil {
		p.err = fmt.Errorf("column %s: %q is not a number", col, p.field(col))
	}
	return v
}

// integer accepts "12000" and "12000.0" but rejects fractional values and
// values outside the int64 range.
func (p *rowParser) integer(col string) int64 {
	v := p.float(col)
	if p.err != nil {
		return 0
	}
	if math.IsInf(v, 0) || v < math.MinInt64 || v >= math.MaxInt64 {
		p.err = fmt.Errorf("column %s: %v is out of range", col, v)
		return 0
	}
	if v != math.Trunc(v) {
		p.err = fmt.Errorf("column %s: %v is not a whole number", col, v)
		return 0
	}
	return int64(v)
}
