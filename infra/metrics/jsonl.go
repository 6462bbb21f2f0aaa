package metrics

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	coremetrics "github.com/kilianp07/evcorridor/core/metrics"
	"github.com/kilianp07/evcorridor/core/model"
)

// Record is one line of the JSONL run log.
type Record struct {
	Kind       string         `json:"kind"`
	RunID      string         `json:"run_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Year       int            `json:"year"`
	Budget     float64        `json:"budget,omitempty"`
	Spent      float64        `json:"spent,omitempty"`
	Served     float64        `json:"served,omitempty"`
	Status     string         `json:"status,omitempty"`
	Plan       model.SitePlan `json:"plan,omitempty"`
	Results    *model.Results `json:"results,omitempty"`
	Charged    int            `json:"charged,omitempty"`
	NotCharged int            `json:"not_charged,omitempty"`
	Balked     int            `json:"balked,omitempty"`
}

// JSONLSink appends plan and run records to a JSON lines file rotated by size.
type JSONLSink struct {
	mu  sync.Mutex
	out *lumberjack.Logger
}

// NewJSONLSink creates the sink. Sizes are in megabytes and ages in days;
// zero keeps the lumberjack defaults.
func NewJSONLSink(path string, maxSizeMB, maxBackups, maxAgeDays int) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &JSONLSink{out: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}}, nil
}

// RecordPlan appends a plan record.
func (s *JSONLSink) RecordPlan(ev coremetrics.PlanEvent) error {
	return s.append(Record{
		Kind:      "plan",
		RunID:     ev.RunID,
		Timestamp: ev.Time,
		Year:      ev.Year,
		Budget:    ev.Budget,
		Spent:     ev.Spent,
		Served:    ev.Served,
		Status:    ev.Status,
		Plan:      ev.Plan,
	})
}

// RecordRun appends a run record with the full result maps.
func (s *JSONLSink) RecordRun(ev coremetrics.RunEvent) error {
	res := ev.Results
	return s.append(Record{
		Kind:       "run",
		RunID:      ev.RunID,
		Timestamp:  ev.Time,
		Year:       ev.Year,
		Results:    &res,
		Charged:    ev.Charged,
		NotCharged: ev.NotCharged,
		Balked:     ev.Balked,
	})
}

func (s *JSONLSink) append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.NewEncoder(s.out).Encode(rec)
}

// Close closes the current file.
func (s *JSONLSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.out.Close()
}

// ReadJSONL reads the records of path and its rotated backups, oldest first.
// Lines that do not decode are skipped.
func ReadJSONL(path string) ([]Record, error) {
	files, err := filepath.Glob(path + "*")
	if err != nil {
		return nil, err
	}
	if backups, err := filepath.Glob(backupPattern(path)); err == nil {
		files = append(files, backups...)
	}
	seen := make(map[string]bool)
	var out []Record
	for _, f := range files {
		if seen[f] {
			continue
		}
		seen[f] = true
		recs, err := readFile(f)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// backupPattern matches lumberjack backups, which insert a timestamp before
// the extension: runs.jsonl becomes runs-2006-01-02T15-04-05.000.jsonl.
func backupPattern(path string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + "-*" + ext
}

func readFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var out []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
