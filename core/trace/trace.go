// Package trace records the life of every simulated car.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/kilianp07/evcorridor/core/model"
)

// Kind is the lifecycle state a car enters.
type Kind int

const (
	Generated Kind = iota
	Traveling
	Queued
	Charging
	Departed
	NotCharged
	Balked
)

func (k Kind) String() string {
	switch k {
	case Generated:
		return "generated"
	case Traveling:
		return "traveling"
	case Queued:
		return "queued"
	case Charging:
		return "charging"
	case Departed:
		return "departed"
	case NotCharged:
		return "not_charged"
	case Balked:
		return "balked"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one state transition of a car at simulated minute Tick.
type Event struct {
	Tick    int             `json:"tick"`
	Car     int             `json:"car"`
	Kind    Kind            `json:"kind"`
	Origin  model.SegmentID `json:"origin"`
	Station model.SegmentID `json:"station,omitempty"`
	// Minutes is the travel time for Traveling and the service time for Charging.
	Minutes int `json:"minutes,omitempty"`
}

// Tracer receives car events in simulation order.
type Tracer interface {
	Trace(Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Trace(Event) {}

// TextTracer writes one human readable line per event.
type TextTracer struct {
	mu  sync.Mutex
	w   *bufio.Writer
	err error
}

// NewText returns a TextTracer writing to w. Call Flush when the run ends.
func NewText(w io.Writer) *TextTracer {
	return &TextTracer{w: bufio.NewWriter(w)}
}

// Trace implements Tracer. The first write error is kept and returned by Flush.
func (t *TextTracer) Trace(e Event) {
	line := Format(e)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintln(t.w, line)
}

// Format renders e as a trace line. Generated events have no line of their
// own because the following Traveling or NotCharged line describes them.
func Format(e Event) string {
	switch e.Kind {
	case Traveling:
		return fmt.Sprintf("T%d: Car appeared at %d, driving for %d mins to %d", e.Tick, e.Origin, e.Minutes, e.Station)
	case NotCharged:
		if e.Station == 0 {
			return fmt.Sprintf("T%d: Car appeared at %d, not in range", e.Tick, e.Origin)
		}
		return fmt.Sprintf("T%d: Car from %d not charged at station %d", e.Tick, e.Origin, e.Station)
	case Queued:
		return fmt.Sprintf("T%d: Car from %d arrived at station %d and entered queue", e.Tick, e.Origin, e.Station)
	case Charging:
		return fmt.Sprintf("T%d: Car from %d began charging at station %d for %d minutes", e.Tick, e.Origin, e.Station, e.Minutes)
	case Departed:
		return fmt.Sprintf("T%d: Car left station %d", e.Tick, e.Station)
	case Balked:
		return fmt.Sprintf("T%d: Car from %d arrived at station %d and balked", e.Tick, e.Origin, e.Station)
	default:
		return ""
	}
}

// WriteResults appends the three result maps after the event lines.
func (t *TextTracer) WriteResults(r model.Results) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}
	for _, sec := range []struct {
		title string
		m     map[model.SegmentID]float64
	}{
		{"COVERAGE", r.Coverage},
		{"UTILIZATION", r.Utilization},
		{"WAIT TIMES", r.AverageWait},
	} {
		if _, t.err = fmt.Fprintf(t.w, "\n%s:\n", sec.title); t.err != nil {
			return
		}
		ids := make([]model.SegmentID, 0, len(sec.m))
		for id := range sec.m {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if _, t.err = fmt.Fprintf(t.w, "%d: %g\n", id, sec.m[id]); t.err != nil {
				return
			}
		}
	}
}

// Flush writes buffered lines and reports the first error seen.
func (t *TextTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	return t.w.Flush()
}

// Multi fans events out to several tracers.
type Multi []Tracer

func (m Multi) Trace(e Event) {
	for _, t := range m {
		t.Trace(e)
	}
}
