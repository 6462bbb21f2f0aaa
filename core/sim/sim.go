// Package sim runs a minute-resolution discrete-event simulation of cars
// appearing on corridor segments, driving to the nearest station in range
// and charging there.
//
// Each minute is processed in three phases: car generation, departures from
// ports, then arrivals at stations. Cars still driving or waiting when the
// horizon ends are counted neither as charged nor as not charged.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/evcorridor/core/logger"
	"github.com/kilianp07/evcorridor/core/model"
	"github.com/kilianp07/evcorridor/core/trace"
)

// Publisher receives car events as they happen.
type Publisher interface {
	Publish(trace.Event)
}

// Input is everything one run needs.
type Input struct {
	Plan     model.SitePlan
	Coverage model.CoverageMap
	// Rates holds the expected vehicles per day needing a charge on each segment.
	Rates map[model.SegmentID]float64
	// Segments fixes the processing order. Empty means ascending ids of Rates.
	Segments []model.SegmentID
}

// StationStats are the counters of one station after a run.
type StationStats struct {
	Ports       int `json:"ports"`
	BusyMinutes int `json:"busy_minutes"`
	WaitMinutes int `json:"wait_minutes"`
	Served      int `json:"served"`
	MaxQueue    int `json:"max_queue"`
}

// Counters are the raw tallies of a completed run.
type Counters struct {
	Horizon    int
	Seed       uint64
	Segments   []model.SegmentID
	Generated  map[model.SegmentID]int
	Charged    map[model.SegmentID]int
	NotCharged map[model.SegmentID]int
	// Balked counts cars turned away by a full queue, by origin segment.
	// They are included in NotCharged.
	Balked   map[model.SegmentID]int
	Stations map[model.SegmentID]StationStats
}

// Simulator runs the queueing model. A Simulator holds no per-run state and
// can be reused.
type Simulator struct {
	cfg    Config
	tracer trace.Tracer
	pub    Publisher
	log    logger.Logger
}

// Option customises a Simulator.
type Option func(*Simulator)

// WithTracer records every car event.
func WithTracer(t trace.Tracer) Option {
	return func(s *Simulator) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithPublisher streams every car event, for example onto an event bus.
func WithPublisher(p Publisher) Option {
	return func(s *Simulator) { s.pub = p }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a Simulator for cfg.
func New(cfg Config, opts ...Option) (*Simulator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("simulation config: %w", err)
	}
	s := &Simulator{cfg: cfg, tracer: trace.Nop{}, log: logger.NopLogger{}}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Simulator) Config() Config { return s.cfg }

// Run simulates one horizon. Arrivals are drawn fresh on every call.
func (s *Simulator) Run(ctx context.Context, in Input) (*Counters, error) {
	segs, err := validate(in)
	if err != nil {
		return nil, err
	}
	seed := s.cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	arrivals := s.arrivals(segs, in.Rates, src)
	c, err := s.run(ctx, in, segs, arrivals, src)
	if err != nil {
		return nil, err
	}
	c.Seed = seed
	return c, nil
}

func validate(in Input) ([]model.SegmentID, error) {
	for id, t := range in.Plan {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: station %d has invalid tier %d", model.ErrInvalidInput, id, int(t))
		}
	}
	for seg, stations := range in.Coverage {
		for st, d := range stations {
			if in.Plan[st] == model.TierNone {
				return nil, fmt.Errorf("%w: segment %d covered by unbuilt station %d", model.ErrInvalidInput, seg, st)
			}
			if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
				return nil, fmt.Errorf("%w: distance %v from %d to %d", model.ErrInvalidInput, d, seg, st)
			}
		}
	}
	for id, r := range in.Rates {
		if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
			return nil, fmt.Errorf("%w: segment %d has demand %v", model.ErrInvalidInput, id, r)
		}
	}
	if len(in.Segments) > 0 {
		return in.Segments, nil
	}
	segs := make([]model.SegmentID, 0, len(in.Rates))
	for id := range in.Rates {
		segs = append(segs, id)
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i] < segs[j] })
	return segs, nil
}

// arrivals draws exponential inter-arrival times with mean 1440/rate minutes,
// rounded to whole minutes, until the horizon is reached.
func (s *Simulator) arrivals(segs []model.SegmentID, rates map[model.SegmentID]float64, src rand.Source) map[model.SegmentID][]int {
	out := make(map[model.SegmentID][]int, len(segs))
	for _, seg := range segs {
		r := rates[seg]
		if r <= 0 {
			continue
		}
		exp := distuv.Exponential{Rate: r / 1440, Src: src}
		var times []int
		for t := 0; ; {
			t += int(math.Round(exp.Rand()))
			if t >= s.cfg.HorizonMinutes {
				break
			}
			times = append(times, t)
		}
		out[seg] = times
	}
	return out
}

type stationArrival struct {
	station model.SegmentID
	car     car
}

type departure struct {
	station model.SegmentID
	car     car
}

func (s *Simulator) run(ctx context.Context, in Input, segs []model.SegmentID, arrivals map[model.SegmentID][]int, src rand.Source) (*Counters, error) {
	horizon := s.cfg.HorizonMinutes
	service := distuv.Normal{Mu: s.cfg.ServiceMean, Sigma: s.cfg.ServiceStdDev, Src: src}

	c := &Counters{
		Horizon:    horizon,
		Segments:   segs,
		Generated:  make(map[model.SegmentID]int, len(segs)),
		Charged:    make(map[model.SegmentID]int, len(segs)),
		NotCharged: make(map[model.SegmentID]int, len(segs)),
		Balked:     make(map[model.SegmentID]int),
		Stations:   make(map[model.SegmentID]StationStats),
	}
	for _, seg := range segs {
		c.Charged[seg] = 0
		c.NotCharged[seg] = 0
	}
	stations := make(map[model.SegmentID]*ChargingStation)
	for _, id := range in.Plan.Stations() {
		stations[id] = newStation(id, in.Plan[id].Ports())
	}

	pending := make(map[int][]stationArrival)
	departures := make(map[int][]departure)
	nextCar := 0

	serve := func(st *ChargingStation, now int) {
		if !st.FreePort() || st.QueueLen() == 0 {
			return
		}
		minutes := max(1, int(math.Round(service.Rand())))
		cr, _, _ := st.start(now, minutes, horizon)
		c.Charged[cr.origin]++
		departures[now+minutes] = append(departures[now+minutes], departure{station: st.id, car: cr})
		s.emit(trace.Event{Tick: now, Car: cr.id, Kind: trace.Charging, Origin: cr.origin, Station: st.id, Minutes: minutes})
	}

	for now := 0; now < horizon; now++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, seg := range segs {
			times := arrivals[seg]
			for len(times) > 0 && times[0] == now {
				times = times[1:]
				nextCar++
				cr := car{id: nextCar, origin: seg}
				c.Generated[seg]++
				s.emit(trace.Event{Tick: now, Car: cr.id, Kind: trace.Generated, Origin: seg})
				st, dist, ok := in.Coverage.Nearest(seg)
				if !ok {
					c.NotCharged[seg]++
					s.emit(trace.Event{Tick: now, Car: cr.id, Kind: trace.NotCharged, Origin: seg})
					continue
				}
				travel := int(math.Round(dist / s.cfg.SpeedKmh * 60))
				pending[now+travel] = append(pending[now+travel], stationArrival{station: st, car: cr})
				s.emit(trace.Event{Tick: now, Car: cr.id, Kind: trace.Traveling, Origin: seg, Station: st, Minutes: travel})
			}
			arrivals[seg] = times
		}

		for _, d := range departures[now] {
			st := stations[d.station]
			st.release()
			s.emit(trace.Event{Tick: now, Car: d.car.id, Kind: trace.Departed, Origin: d.car.origin, Station: d.station})
			serve(st, now)
		}
		delete(departures, now)

		for _, a := range pending[now] {
			st := stations[a.station]
			if !st.enqueue(a.car, now) {
				c.Balked[a.car.origin]++
				c.NotCharged[a.car.origin]++
				s.emit(trace.Event{Tick: now, Car: a.car.id, Kind: trace.Balked, Origin: a.car.origin, Station: a.station})
				continue
			}
			s.emit(trace.Event{Tick: now, Car: a.car.id, Kind: trace.Queued, Origin: a.car.origin, Station: a.station})
			serve(st, now)
		}
		delete(pending, now)
	}

	for id, st := range stations {
		c.Stations[id] = st.Stats()
	}
	s.log.Debugf("simulation finished: %d cars over %d minutes at %d stations", nextCar, horizon, len(stations))
	return c, nil
}

func (s *Simulator) emit(e trace.Event) {
	s.tracer.Trace(e)
	if s.pub != nil {
		s.pub.Publish(e)
	}
}
