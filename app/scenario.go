package app

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kilianp07/evcorridor/core/model"
	"github.com/kilianp07/evcorridor/core/optimizer"
)

// Scenario is one planning request.
type Scenario struct {
	Year   int     `json:"year"`
	Budget float64 `json:"budget"`
	// Pins force a tier on a segment.
	Pins map[model.SegmentID]model.Tier `json:"pins,omitempty"`
	// Existing overrides the installed port counts of the dataset. Nil keeps them.
	Existing      map[model.SegmentID]int `json:"existing,omitempty"`
	CountExisting bool                    `json:"count_existing"`
	// Plan skips optimization and simulates the given placement. Segments it
	// does not mention get no station.
	Plan model.SitePlan `json:"plan,omitempty"`
}

func (s Scenario) request(existing map[model.SegmentID]int) optimizer.Request {
	if s.Existing != nil {
		existing = s.Existing
	}
	return optimizer.Request{
		Year:          s.Year,
		Budget:        s.Budget,
		Pins:          s.Pins,
		Existing:      existing,
		CountExisting: s.CountExisting,
	}
}

// key is the canonical cache key of the optimization inputs.
func key(r optimizer.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "y=%d|b=%g|c=%t|p=", r.Year, r.Budget, r.CountExisting)
	first := true
	for _, id := range sortedIDs(r.Pins) {
		if r.Pins[id] == model.TierNone {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&b, "%d:%d", id, int(r.Pins[id]))
	}
	b.WriteString("|e=")
	first = true
	for _, id := range sortedIDs(r.Existing) {
		if r.Existing[id] == 0 {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&b, "%d:%d", id, r.Existing[id])
	}
	return b.String()
}

func sortedIDs[V any](m map[model.SegmentID]V) []model.SegmentID {
	ids := make([]model.SegmentID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func marshalScenario(s Scenario) (json.RawMessage, error) {
	return json.Marshal(s)
}
