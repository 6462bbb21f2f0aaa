// Package store keeps a history of planning runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kilianp07/evcorridor/core/model"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("store: run not found")

// Run is one persisted optimisation, optionally followed by a simulation.
type Run struct {
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	Year          int             `json:"year"`
	Budget        float64         `json:"budget"`
	CountExisting bool            `json:"count_existing"`
	Served        float64         `json:"served"`
	Spent         float64         `json:"spent"`
	Plan          model.SitePlan  `json:"plan"`
	Results       *model.Results  `json:"results,omitempty"`
	Scenario      json.RawMessage `json:"scenario,omitempty"`
}

// SQLiteStore persists runs in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS runs (
        id TEXT PRIMARY KEY,
        created_at INTEGER NOT NULL,
        year INTEGER NOT NULL,
        budget REAL NOT NULL,
        count_existing INTEGER NOT NULL,
        served REAL NOT NULL,
        spent REAL NOT NULL,
        plan TEXT NOT NULL,
        results TEXT,
        scenario TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Save inserts the run or replaces the one with the same id. An empty id
// gets a fresh one, which is returned.
func (s *SQLiteStore) Save(ctx context.Context, r Run) (string, error) {
	if r.ID == "" {
		r.ID = NewRunID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	plan, err := json.Marshal(r.Plan)
	if err != nil {
		return "", err
	}
	var results sql.NullString
	if r.Results != nil {
		b, err := json.Marshal(r.Results)
		if err != nil {
			return "", err
		}
		results = sql.NullString{String: string(b), Valid: true}
	}
	var scenario sql.NullString
	if len(r.Scenario) > 0 {
		scenario = sql.NullString{String: string(r.Scenario), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO runs
        (id, created_at, year, budget, count_existing, served, spent, plan, results, scenario)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            served = excluded.served,
            spent = excluded.spent,
            plan = excluded.plan,
            results = excluded.results,
            scenario = excluded.scenario`,
		r.ID, r.CreatedAt.UnixMilli(), r.Year, r.Budget, r.CountExisting, r.Served, r.Spent,
		string(plan), results, scenario)
	if err != nil {
		return "", fmt.Errorf("save run %s: %w", r.ID, err)
	}
	return r.ID, nil
}

// Get loads one run.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, created_at, year, budget, count_existing, served, spent, plan, results, scenario
        FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// List returns the most recent runs first, at most limit of them.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at, year, budget, count_existing, served, spent, plan, results, scenario
        FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes a run.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r        Run
		created  int64
		plan     string
		results  sql.NullString
		scenario sql.NullString
	)
	if err := sc.Scan(&r.ID, &created, &r.Year, &r.Budget, &r.CountExisting, &r.Served, &r.Spent, &plan, &results, &scenario); err != nil {
		return Run{}, err
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	if err := json.Unmarshal([]byte(plan), &r.Plan); err != nil {
		return Run{}, fmt.Errorf("decode plan of %s: %w", r.ID, err)
	}
	if results.Valid {
		r.Results = &model.Results{}
		if err := json.Unmarshal([]byte(results.String), r.Results); err != nil {
			return Run{}, fmt.Errorf("decode results of %s: %w", r.ID, err)
		}
	}
	if scenario.Valid {
		r.Scenario = json.RawMessage(scenario.String)
	}
	return r, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
