// Package export renders plans and results for people and spreadsheets.
// Display rounding happens here only: coverage and utilization to two
// decimals, waits to one.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/kilianp07/evcorridor/core/model"
)

// Round returns a copy of r rounded for display. The NoData sentinel is kept.
func Round(r model.Results) model.Results {
	return model.Results{
		Coverage:    roundMap(r.Coverage, 2),
		Utilization: roundMap(r.Utilization, 2),
		AverageWait: roundMap(r.AverageWait, 1),
	}
}

func roundMap(m map[model.SegmentID]float64, places int) map[model.SegmentID]float64 {
	if m == nil {
		return nil
	}
	p := math.Pow(10, float64(places))
	out := make(map[model.SegmentID]float64, len(m))
	for k, v := range m {
		if v == model.NoData {
			out[k] = v
			continue
		}
		out[k] = math.Round(v*p) / p
	}
	return out
}

// PlanRow is one line of an exported plan.
type PlanRow struct {
	SegmentID model.SegmentID `json:"segment_id"`
	Tier      model.Tier      `json:"tier"`
	Ports     int             `json:"ports"`
	Cost      float64         `json:"cost"`
	// Stations lists the stations within range of the segment.
	Stations []model.SegmentID `json:"stations,omitempty"`
}

// PlanRows lists every segment of the corridor in input order.
func PlanRows(segments []model.Segment, plan model.SitePlan, cov model.CoverageMap) []PlanRow {
	rows := make([]PlanRow, 0, len(segments))
	for _, s := range segments {
		t := plan[s.ID]
		rows = append(rows, PlanRow{
			SegmentID: s.ID,
			Tier:      t,
			Ports:     t.Ports(),
			Cost:      s.Cost(t),
			Stations:  sortedIDs(cov[s.ID]),
		})
	}
	return rows
}

// WritePlanJSON writes the plan rows as a JSON array.
func WritePlanJSON(w io.Writer, rows []PlanRow) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// WritePlanCSV writes segment_id,tier,ports,cost,stations with stations
// separated by spaces.
func WritePlanCSV(w io.Writer, rows []PlanRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"segment_id", "tier", "ports", "cost", "stations"}); err != nil {
		return err
	}
	for _, r := range rows {
		var stations []byte
		for i, id := range r.Stations {
			if i > 0 {
				stations = append(stations, ' ')
			}
			stations = strconv.AppendInt(stations, int64(id), 10)
		}
		rec := []string{
			strconv.FormatInt(int64(r.SegmentID), 10),
			r.Tier.String(),
			strconv.Itoa(r.Ports),
			strconv.FormatFloat(r.Cost, 'f', -1, 64),
			string(stations),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteResultsJSON writes the rounded result maps.
func WriteResultsJSON(w io.Writer, r model.Results) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Round(r))
}

// WriteResultsCSV writes one row per segment with coverage, utilization and
// average wait. Cells are empty where a segment has no station.
func WriteResultsCSV(w io.Writer, r model.Results) error {
	r = Round(r)
	ids := make(map[model.SegmentID]struct{})
	for _, m := range []map[model.SegmentID]float64{r.Coverage, r.Utilization, r.AverageWait} {
		for id := range m {
			ids[id] = struct{}{}
		}
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"segment_id", "coverage", "utilization", "average_wait"}); err != nil {
		return err
	}
	for _, id := range sortedIDs(ids) {
		rec := []string{
			strconv.FormatInt(int64(id), 10),
			cell(r.Coverage, id),
			cell(r.Utilization, id),
			cell(r.AverageWait, id),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(m map[model.SegmentID]float64, id model.SegmentID) string {
	v, ok := m[id]
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sortedIDs[V any](m map[model.SegmentID]V) []model.SegmentID {
	if len(m) == 0 {
		return nil
	}
	ids := make([]model.SegmentID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
