package sim

import "github.com/kilianp07/evcorridor/core/model"

// car is a vehicle generated on a segment that wants a mid-trip charge.
type car struct {
	id       int
	origin   model.SegmentID
	queuedAt int
}

// ChargingStation is a multi-server queue. Both the number of servers and
// the waiting room equal the port count of the station tier.
type ChargingStation struct {
	id    model.SegmentID
	ports int

	ring []car
	head int
	size int

	busy int

	busyMinutes int
	waitMinutes int
	served      int
	maxQueue    int
}

func newStation(id model.SegmentID, ports int) *ChargingStation {
	return &ChargingStation{id: id, ports: ports, ring: make([]car, ports)}
}

// Ports returns the number of charging ports.
func (s *ChargingStation) Ports() int { return s.ports }

// QueueLen returns the number of waiting cars.
func (s *ChargingStation) QueueLen() int { return s.size }

// Busy returns the number of ports in use.
func (s *ChargingStation) Busy() int { return s.busy }

// FreePort reports whether a port is idle.
func (s *ChargingStation) FreePort() bool { return s.busy < s.ports }

func (s *ChargingStation) enqueue(c car, now int) bool {
	if s.size == len(s.ring) {
		return false
	}
	c.queuedAt = now
	s.ring[(s.head+s.size)%len(s.ring)] = c
	s.size++
	if s.size > s.maxQueue {
		s.maxQueue = s.size
	}
	return true
}

func (s *ChargingStation) dequeue() (car, bool) {
	if s.size == 0 {
		return car{}, false
	}
	c := s.ring[s.head]
	s.ring[s.head] = car{}
	s.head = (s.head + 1) % len(s.ring)
	s.size--
	return c, true
}

// start takes the head of the queue onto a port. The wait is recorded and the
// service time is added to the busy minutes, clipped to what is left of the
// horizon.
func (s *ChargingStation) start(now, service, horizon int) (car, int, bool) {
	if !s.FreePort() {
		return car{}, 0, false
	}
	c, ok := s.dequeue()
	if !ok {
		return car{}, 0, false
	}
	wait := now - c.queuedAt
	s.waitMinutes += wait
	s.served++
	s.busy++
	s.busyMinutes += min(service, horizon-now)
	return c, wait, true
}

func (s *ChargingStation) release() {
	if s.busy > 0 {
		s.busy--
	}
}

// Stats returns the accumulated counters of the station.
func (s *ChargingStation) Stats() StationStats {
	return StationStats{
		Ports:       s.ports,
		BusyMinutes: s.busyMinutes,
		WaitMinutes: s.waitMinutes,
		Served:      s.served,
		MaxQueue:    s.maxQueue,
	}
}
