package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/ballistics/internal/ballistics"
	"github.com/banshee-data/ballistics/internal/config"
	"github.com/banshee-data/ballistics/internal/httputil"
	"github.com/banshee-data/ballistics/internal/monitoring"
	"github.com/banshee-data/ballistics/internal/timeutil"
	"github.com/banshee-data/ballistics/internal/units"
	"github.com/banshee-data/ballistics/internal/version"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// RequestIDHeader carries the per-request identifier on requests and responses.
const RequestIDHeader = "X-Request-ID"

var logf = monitoring.Component("api")

// TrajectoryRequest is the body of POST /api/trajectory. Options falls back to
// the server's tuning config when omitted.
type TrajectoryRequest struct {
	Input   ballistics.Input    `json:"input"`
	Options *ballistics.Options `json:"options,omitempty"`
}

// TrajectoryResponse carries the solved rows. Velocity is expressed in
// VelocityUnits; every other field keeps its solver unit.
type TrajectoryResponse struct {
	RequestID     string                     `json:"request_id"`
	VelocityUnits string                     `json:"velocity_units"`
	Rows          []ballistics.TrajectoryRow `json:"rows"`
}

// BatchRequest is the body of POST /api/trajectory/batch.
type BatchRequest struct {
	Requests []TrajectoryRequest `json:"requests"`
}

// BatchResult is one entry of a batch response. Exactly one of Rows and
// Error is set.
type BatchResult struct {
	Rows  []ballistics.TrajectoryRow `json:"rows,omitempty"`
	Error string                     `json:"error,omitempty"`
}

// BatchResponse preserves the order of the batch request.
type BatchResponse struct {
	RequestID     string        `json:"request_id"`
	VelocityUnits string        `json:"velocity_units"`
	Results       []BatchResult `json:"results"`
}

// DragResponse answers GET /api/drag. Cd is set for a single Mach lookup,
// Table when no Mach was given.
type DragResponse struct {
	Model ballistics.DragModel `json:"model"`
	Mach  *float64             `json:"mach,omitempty"`
	Cd    *float64             `json:"cd,omitempty"`
	Table ballistics.DragTable `json:"table,omitempty"`
}

type Server struct {
	cfg   *config.TuningConfig
	clock timeutil.Clock
	// solutions holds rows in ft/s keyed by the resolved input and grid.
	// nil when cache_size is 0.
	solutions *expirable.LRU[string, []ballistics.TrajectoryRow]
}

// NewServer returns a server using cfg for grid and input defaults. A nil cfg
// behaves like an empty config.
func NewServer(cfg *config.TuningConfig) *Server {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	s := &Server{cfg: cfg, clock: timeutil.RealClock{}}
	if size := cfg.GetCacheSize(); size > 0 {
		s.solutions = expirable.NewLRU[string, []ballistics.TrajectoryRow](size, nil, cfg.GetCacheTTL())
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, request ID and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return loggingMiddleware(timeutil.RealClock{}, next)
}

func loggingMiddleware(clock timeutil.Clock, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := clock.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf(
			"[%s] %s %s%s%s %s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			w.Header().Get(RequestIDHeader),
			float64(clock.Since(start).Nanoseconds())/1e6,
		)
	})
}

type requestIDKey struct{}

// RequestIDFromContext returns the ID assigned by RequestIDMiddleware, or ""
// outside of it.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDMiddleware echoes a caller-supplied X-Request-ID or assigns a new
// UUID. The ID is set on the response before the handler runs and stored in
// the request context.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// requestIDHeader copies the context request ID onto w. http.TimeoutHandler
// gives the inner handler its own header map, so the ID set outside it is not
// visible to handlers.
func requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := RequestIDFromContext(r.Context()); id != "" {
			w.Header().Set(RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/trajectory", s.handleTrajectory)
	mux.HandleFunc("/api/trajectory/batch", s.handleBatch)
	mux.HandleFunc("/api/drag", s.handleDrag)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/version", s.handleVersion)
	return mux
}

// Handler returns the mux wrapped with request IDs, logging and the
// configured request timeout.
func (s *Server) Handler() http.Handler {
	return s.wrap(s.ServeMux())
}

// wrap applies the middleware chain. The request ID is assigned outside the
// timeout handler so its 503 response carries the header too.
func (s *Server) wrap(h http.Handler) http.Handler {
	timeout := s.cfg.GetRequestTimeout()
	h = http.TimeoutHandler(requestIDHeader(h), timeout, `{"error":"request timed out"}`)
	return loggingMiddleware(s.clock, RequestIDMiddleware(h))
}

// velocityUnits picks the ?units= override or the configured default.
func (s *Server) velocityUnits(r *http.Request) (string, error) {
	u := strings.ToLower(r.URL.Query().Get("units"))
	if u == "" {
		return s.cfg.GetVelocityUnits(), nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("invalid 'units' parameter %q (valid: %s)", u, units.GetValidUnitsString())
	}
	return u, nil
}

// Solve applies config defaults and runs the solver. Velocities are converted
// to velocityUnits. The returned slice is owned by the caller.
func (s *Server) Solve(req TrajectoryRequest, velocityUnits string) ([]ballistics.TrajectoryRow, error) {
	opts := s.cfg.ToOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	rows, err := s.compute(s.cfg.ApplyDefaults(req.Input), opts)
	if err != nil {
		return nil, err
	}
	out := make([]ballistics.TrajectoryRow, len(rows))
	for i, r := range rows {
		r.Velocity = units.ConvertSpeed(r.Velocity, velocityUnits)
		out[i] = r
	}
	return out, nil
}

// compute consults the solution cache before running the solver. Errors are
// never cached, and inputs that cannot be encoded as a key bypass the cache.
func (s *Server) compute(in ballistics.Input, opts ballistics.Options) ([]ballistics.TrajectoryRow, error) {
	if s.solutions == nil {
		return ballistics.ComputeTrajectoryWithOptions(in, opts)
	}
	key, keyErr := json.Marshal(struct {
		Input   ballistics.Input   `json:"input"`
		Options ballistics.Options `json:"options"`
	}{in, opts})
	if keyErr == nil {
		if rows, ok := s.solutions.Get(string(key)); ok {
			return rows, nil
		}
	}
	rows, err := ballistics.ComputeTrajectoryWithOptions(in, opts)
	if err != nil {
		return nil, err
	}
	if keyErr == nil {
		s.solutions.Add(string(key), rows)
	}
	return rows, nil
}

func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	velocityUnits, err := s.velocityUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var req TrajectoryRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	rows, err := s.Solve(req, velocityUnits)
	if err != nil {
		writeSolverError(w, err)
		return
	}

	httputil.WriteJSONOK(w, TrajectoryResponse{
		RequestID:     RequestIDFromContext(r.Context()),
		VelocityUnits: velocityUnits,
		Rows:          rows,
	})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	velocityUnits, err := s.velocityUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var batch BatchRequest
	if err := httputil.DecodeJSON(w, r, &batch); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if len(batch.Requests) == 0 {
		httputil.BadRequest(w, "batch contains no requests")
		return
	}
	if limit := s.cfg.GetMaxBatchSize(); len(batch.Requests) > limit {
		httputil.BadRequest(w, fmt.Sprintf("batch of %d exceeds max_batch_size %d", len(batch.Requests), limit))
		return
	}

	results, err := s.solveBatch(r.Context(), batch.Requests, velocityUnits)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	httputil.WriteJSONOK(w, BatchResponse{
		RequestID:     RequestIDFromContext(r.Context()),
		VelocityUnits: velocityUnits,
		Results:       results,
	})
}

// solveBatch solves every request concurrently. Solver errors are reported
// per entry; only cancellation of ctx fails the whole batch.
func (s *Server) solveBatch(ctx context.Context, reqs []TrajectoryRequest, velocityUnits string) ([]BatchResult, error) {
	results := make([]BatchResult, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows, err := s.Solve(req, velocityUnits)
			if err != nil {
				results[i] = BatchResult{Error: err.Error()}
				return nil
			}
			results[i] = BatchResult{Rows: rows}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch cancelled: %w", err)
	}
	return results, nil
}

func (s *Server) handleDrag(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	q := r.URL.Query()

	model := s.cfg.GetDragModel()
	if m := q.Get("model"); m != "" {
		parsed, err := ballistics.ParseDragModel(m)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		model = parsed
	}

	m := q.Get("mach")
	if m == "" {
		httputil.WriteJSONOK(w, DragResponse{Model: model, Table: model.Table()})
		return
	}
	mach, err := strconv.ParseFloat(m, 64)
	if err != nil || mach < 0 || math.IsNaN(mach) || math.IsInf(mach, 0) {
		httputil.BadRequest(w, "Invalid 'mach' parameter")
		return
	}
	cd := ballistics.DragCoefficient(model, mach)
	httputil.WriteJSONOK(w, DragResponse{Model: model, Mach: &mach, Cd: &cd})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"step_yards":      s.cfg.GetStepYards(),
		"max_range_yards": s.cfg.GetMaxRangeYards(),
		"drag_model":      s.cfg.GetDragModel(),
		"click_unit":      s.cfg.GetClickUnit(),
		"click_size":      s.cfg.GetClickSize(),
		"velocity_units":  s.cfg.GetVelocityUnits(),
		"request_timeout": s.cfg.GetRequestTimeout().String(),
		"max_batch_size":  s.cfg.GetMaxBatchSize(),
		"cache_size":      s.cfg.GetCacheSize(),
		"cache_ttl":       s.cfg.GetCacheTTL().String(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}

// writeSolverError maps solver errors onto status codes: rejected input and
// empty trajectories are 422, anything else is a 500.
func writeSolverError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ballistics.ErrInvalidRange),
		errors.Is(err, ballistics.ErrInvalidMuzzleVelocity),
		errors.Is(err, ballistics.ErrUnknownDragModel),
		errors.Is(err, ballistics.ErrUnknownClickUnit),
		errors.Is(err, ballistics.ErrUnknownTwistDirection),
		errors.Is(err, ballistics.ErrNonFiniteInput),
		errors.Is(err, ballistics.ErrInvalidClickSize),
		errors.Is(err, ballistics.ErrInvalidAtmosphere),
		errors.Is(err, ballistics.ErrInvalidOptions),
		errors.Is(err, ballistics.ErrNoTrajectory):
		httputil.UnprocessableEntity(w, err.Error())
	default:
		logf("unexpected solver error: %v", err)
		httputil.InternalServerError(w, err.Error())
	}
}
