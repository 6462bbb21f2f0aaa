// Package scenario exposes the planner as a JSON HTTP API.
package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/kilianp07/evcorridor/app"
	"github.com/kilianp07/evcorridor/core/logger"
	"github.com/kilianp07/evcorridor/core/model"
	"github.com/kilianp07/evcorridor/core/monitoring"
	"github.com/kilianp07/evcorridor/core/results"
	"github.com/kilianp07/evcorridor/infra/store"
	"github.com/kilianp07/evcorridor/pkg/export"
)

// Planner is the part of app.Planner served over HTTP.
type Planner interface {
	Optimize(ctx context.Context, sc app.Scenario) (*app.Outcome, error)
	Simulate(ctx context.Context, sc app.Scenario) (*app.Outcome, error)
	Results() (*app.Outcome, error)
	Reset()
	Runs(ctx context.Context, limit int) ([]store.Run, error)
	Run(ctx context.Context, id string) (store.Run, error)
	Years() []int
	Segments() []model.Segment
}

// Server routes API requests to a Planner.
type Server struct {
	planner Planner
	router  *mux.Router
	log     logger.Logger
	mon     monitoring.Monitor
}

// Option customises a Server.
type Option func(*Server)

// WithMonitor reports server errors and panics.
func WithMonitor(m monitoring.Monitor) Option {
	return func(s *Server) {
		if m != nil {
			s.mon = m
		}
	}
}

// NewServer creates the API server.
func NewServer(p Planner, log logger.Logger, opts ...Option) *Server {
	if log == nil {
		log = logger.NopLogger{}
	}
	s := &Server{planner: p, router: mux.NewRouter(), log: log, mon: monitoring.NopMonitor{}}
	for _, o := range opts {
		o(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/api/v1/years", s.handleYears).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/segments", s.handleSegments).Methods(http.MethodGet)

	s.router.HandleFunc("/api/v1/plan", s.handlePlan).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/simulate", s.handleSimulate).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/results", s.handleResults).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/reset", s.handleReset).Methods(http.MethodPost)

	s.router.HandleFunc("/api/v1/runs", s.handleListRuns).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/runs/{id}", s.handleGetRun).Methods(http.MethodGet)

	s.router.Use(s.recoverMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(jsonMiddleware)
}

// Router returns the configured router.
func (s *Server) Router() *mux.Router { return s.router }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Infof("api listening on %s", addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debugw("request", map[string]any{"method": r.Method, "path": r.URL.Path, "duration_ms": time.Since(start).Milliseconds()})
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.log.Errorf("panic serving %s: %v", r.URL.Path, v)
				s.mon.CapturePanic(v)
				w.Header().Set("Content-Type", "application/json")
				respondError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

// statusFor maps planner errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, model.ErrInvalidYear), errors.Is(err, model.ErrMalformedSegment):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInfeasible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrPrematureQuery):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrNoStore):
		return http.StatusNotImplemented
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
		s.mon.CaptureException(err, map[string]string{"path": r.URL.Path})
	}
	respondError(w, status, err.Error())
}

// planView is the JSON form of a site selection.
type planView struct {
	RunID    string           `json:"run_id"`
	Cached   bool             `json:"cached"`
	Status   string           `json:"status,omitempty"`
	Budget   float64          `json:"budget"`
	Credit   float64          `json:"credit"`
	Spent    float64          `json:"spent"`
	Served   float64          `json:"served"`
	Stations []export.PlanRow `json:"stations"`
	Segments []export.PlanRow `json:"segments"`
}

// runView adds the simulation output to planView.
type runView struct {
	planView
	Seed    uint64          `json:"seed"`
	Results model.Results   `json:"results"`
	Summary results.Summary `json:"summary"`
}

func (s *Server) viewPlan(out *app.Outcome) planView {
	v := planView{RunID: out.RunID, Cached: out.Cached, Budget: out.Scenario.Budget}
	v.Segments = export.PlanRows(s.planner.Segments(), out.Plan, out.Coverage)
	v.Stations = make([]export.PlanRow, 0)
	for _, row := range v.Segments {
		if row.Tier != model.TierNone {
			v.Stations = append(v.Stations, row)
			v.Spent += row.Cost
		}
	}
	if sol := out.Solution; sol != nil {
		v.Status, v.Credit, v.Spent, v.Served = sol.Status.String(), sol.Credit, sol.Spent, sol.Served
	}
	return v
}

func (s *Server) viewRun(out *app.Outcome) runView {
	v := runView{planView: s.viewPlan(out), Results: export.Round(out.Results), Summary: out.Summary}
	if out.Counters != nil {
		v.Seed = out.Counters.Seed
	}
	return v
}

func decodeScenario(r *http.Request) (app.Scenario, error) {
	var sc app.Scenario
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sc); err != nil {
		return sc, err
	}
	return sc, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.planner.Years())
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.planner.Segments())
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	sc, err := decodeScenario(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	out, err := s.planner.Optimize(r.Context(), sc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.viewPlan(out))
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	sc, err := decodeScenario(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	out, err := s.planner.Simulate(r.Context(), sc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.viewRun(out))
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	out, err := s.planner.Results()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.viewRun(out))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.planner.Reset()
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.planner.Runs(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.planner.Run(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}
