package metrics

import (
	"context"

	coremetrics "github.com/kilianp07/evcorridor/core/metrics"
	"github.com/kilianp07/evcorridor/core/trace"
	"github.com/kilianp07/evcorridor/internal/eventbus"
)

// StartEventCollector subscribes to the car event bus and forwards events to
// sinks that follow cars. It stops when the context is canceled or the bus
// is closed; the returned channel is closed at that point.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[trace.Event], sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	rec, ok := sink.(coremetrics.CarEventRecorder)
	if bus == nil || !ok {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				_ = rec.RecordCarEvent(ev)
			}
		}
	}()
	return done
}
