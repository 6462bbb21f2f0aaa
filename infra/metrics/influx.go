package metrics

import (
	"context"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/evcorridor/core/metrics"
	"github.com/kilianp07/evcorridor/core/model"
	"github.com/kilianp07/evcorridor/infra/logger"
)

// InfluxSink writes plans and simulation results to InfluxDB using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordPlan writes one corridor_plan point.
func (s *InfluxSink) RecordPlan(ev coremetrics.PlanEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("corridor_plan").
		AddTag("run_id", ev.RunID).
		AddTag("year", strconv.Itoa(ev.Year)).
		AddTag("status", ev.Status).
		AddField("budget", round3(ev.Budget)).
		AddField("credit", round3(ev.Credit)).
		AddField("spent", round3(ev.Spent)).
		AddField("served", round3(ev.Served)).
		AddField("stations", len(ev.Plan.Stations())).
		AddField("nodes", ev.Nodes).
		AddField("solve_ms", round3(float64(ev.Duration.Microseconds())/1000)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRun writes a corridor_run summary point followed by one point per
// segment and per station.
func (s *InfluxSink) RecordRun(ev coremetrics.RunEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	year := strconv.Itoa(ev.Year)
	points := []*write.Point{
		write.NewPointWithMeasurement("corridor_run").
			AddTag("run_id", ev.RunID).
			AddTag("year", year).
			AddField("generated", ev.Generated).
			AddField("charged", ev.Charged).
			AddField("not_charged", ev.NotCharged).
			AddField("balked", ev.Balked).
			AddField("mean_coverage", round3(ev.MeanCoverage)).
			SetTime(ev.Time),
	}
	for _, id := range sortedKeys(ev.Results.Coverage) {
		points = append(points, write.NewPointWithMeasurement("segment_coverage").
			AddTag("run_id", ev.RunID).
			AddTag("segment", label(id)).
			AddField("coverage", round3(ev.Results.Coverage[id])).
			SetTime(ev.Time))
	}
	for _, id := range sortedKeys(ev.Results.Utilization) {
		points = append(points, write.NewPointWithMeasurement("station_result").
			AddTag("run_id", ev.RunID).
			AddTag("station", label(id)).
			AddField("utilization", round3(ev.Results.Utilization[id])).
			AddField("avg_wait_min", round3(ev.Results.AverageWait[id])).
			SetTime(ev.Time))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

func sortedKeys(m map[model.SegmentID]float64) []model.SegmentID {
	ids := make([]model.SegmentID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
