package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ballistics/internal/ballistics"
	"github.com/banshee-data/ballistics/internal/config"
	"github.com/banshee-data/ballistics/internal/httputil"
	"github.com/banshee-data/ballistics/internal/monitoring"
	"github.com/banshee-data/ballistics/internal/testutil"
	"github.com/banshee-data/ballistics/internal/timeutil"
	"github.com/banshee-data/ballistics/internal/units"
	"github.com/banshee-data/ballistics/internal/version"
)

func ptrInt(v int) *int          { return &v }
func ptrString(v string) *string { return &v }

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := testutil.NewTestRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestTrajectory(t *testing.T) {
	s := NewServer(config.MustLoadDefaultConfig())
	rec := serve(s, testutil.NewJSONRequest(t, http.MethodPost, "/api/trajectory", TrajectoryRequest{Input: testInput()}))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp TrajectoryResponse
	testutil.DecodeJSON(t, rec, &resp)

	want, err := ballistics.ComputeTrajectory(testInput())
	require.NoError(t, err)
	assert.Equal(t, want, resp.Rows)
	assert.Equal(t, units.FPS, resp.VelocityUnits)

	require.NotEmpty(t, resp.RequestID)
	assert.Equal(t, rec.Header().Get(RequestIDHeader), resp.RequestID)
	_, err = uuid.Parse(resp.RequestID)
	assert.NoError(t, err)
}

func TestTrajectory_EchoesRequestID(t *testing.T) {
	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/trajectory", TrajectoryRequest{Input: testInput()})
	req.Header.Set(RequestIDHeader, "range-day-7")

	rec := serve(NewServer(nil), req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "range-day-7", rec.Header().Get(RequestIDHeader))

	var resp TrajectoryResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, "range-day-7", resp.RequestID)
}

func TestTrajectory_VelocityUnits(t *testing.T) {
	s := NewServer(nil)
	want, err := ballistics.ComputeTrajectory(testInput())
	require.NoError(t, err)

	for _, u := range []string{units.MPS, units.MPH, units.KMPH} {
		t.Run(u, func(t *testing.T) {
			rec := serve(s, testutil.NewJSONRequest(t, http.MethodPost, "/api/trajectory?units="+u, TrajectoryRequest{Input: testInput()}))
			testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

			var resp TrajectoryResponse
			testutil.DecodeJSON(t, rec, &resp)
			assert.Equal(t, u, resp.VelocityUnits)
			require.Len(t, resp.Rows, len(want))
			for i := range want {
				assert.InDelta(t, units.ConvertSpeed(want[i].Velocity, u), resp.Rows[i].Velocity, 1e-9)
				assert.Equal(t, want[i].Energy, resp.Rows[i].Energy)
			}
		})
	}

	cfg := &config.TuningConfig{VelocityUnits: ptrString(units.MPS)}
	rec := serve(NewServer(cfg), testutil.NewJSONRequest(t, http.MethodPost, "/api/trajectory", TrajectoryRequest{Input: testInput()}))
	var resp TrajectoryResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, units.MPS, resp.VelocityUnits)
}

func TestTrajectory_Options(t *testing.T) {
	s := NewServer(&config.TuningConfig{StepYards: ptrInt(50), MaxRangeYards: ptrInt(200)})

	rec := serve(s, testutil.NewJSONRequest(t, http.MethodPost, "/api/trajectory", TrajectoryRequest{Input: testInput()}))
	var resp TrajectoryResponse
	testutil.DecodeJSON(t, rec, &resp)
	require.Len(t, resp.Rows, 4)
	assert.Equal(t, 200, resp.Rows[3].Range)

	// request options win over the config
	opts := &ballistics.Options{StepYards: 100, MaxRangeYards: 300}
	rec = serve(s, testutil.NewJSONRequest(t, http.MethodPost, "/api/trajectory", TrajectoryRequest{Input: testInput(), Options: opts}))
	testutil.DecodeJSON(t, rec, &resp)
	require.Len(t, resp.Rows, 3)
	assert.Equal(t, 300, resp.Rows[2].Range)
}

func TestTrajectory_ConfigDefaults(t *testing.T) {
	cfg := &config.TuningConfig{DragModel: ptrString("G7")}
	in := testInput()
	in.DragModel = ""

	rec := serve(NewServer(cfg), testutil.NewJSONRequest(t, http.MethodPost, "/api/trajectory", TrajectoryRequest{Input: in}))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp TrajectoryResponse
	testutil.DecodeJSON(t, rec, &resp)
	want, err := ballistics.ComputeTrajectory(testInput())
	require.NoError(t, err)
	assert.Equal(t, want, resp.Rows)
}

func TestTrajectory_Errors(t *testing.T) {
	zeroRange := testInput()
	zeroRange.ZeroRange = 0
	slow := testInput()
	slow.MuzzleVelocity = 150
	badClick := testInput()
	badClick.ClickUnit = "degrees"
	tinyClick := testInput()
	tinyClick.ClickSize = 1e-300
	vacuum := testInput()
	vacuum.Pressure = floatPtr(-10)

	tests := []struct {
		name    string
		method  string
		path    string
		body    interface{}
		status  int
		message string
	}{
		{"wrong method", http.MethodGet, "/api/trajectory", nil, http.StatusMethodNotAllowed, "method not allowed"},
		{"malformed json", http.MethodPost, "/api/trajectory", `{"input":`, http.StatusBadRequest, "invalid JSON"},
		{"unknown field", http.MethodPost, "/api/trajectory", `{"inptu":{}}`, http.StatusBadRequest, "unknown field"},
		{"empty body", http.MethodPost, "/api/trajectory", ``, http.StatusBadRequest, "empty"},
		{"bad units", http.MethodPost, "/api/trajectory?units=knots", TrajectoryRequest{Input: testInput()}, http.StatusBadRequest, "units"},
		{"zero range", http.MethodPost, "/api/trajectory", TrajectoryRequest{Input: zeroRange}, http.StatusUnprocessableEntity, "invalid zero range"},
		{"no rows", http.MethodPost, "/api/trajectory", TrajectoryRequest{Input: slow}, http.StatusUnprocessableEntity, "no trajectory rows"},
		{"click unit", http.MethodPost, "/api/trajectory", TrajectoryRequest{Input: badClick}, http.StatusUnprocessableEntity, "unknown click unit"},
		{"bad options", http.MethodPost, "/api/trajectory", TrajectoryRequest{Input: testInput(), Options: &ballistics.Options{}}, http.StatusUnprocessableEntity, "invalid options"},
		{"huge grid", http.MethodPost, "/api/trajectory", `{"input":{"muzzle_velocity":2600,"ballistic_coefficient":0.5,"zero_range":100},"options":{"step_yards":25,"max_range_yards":500000000}}`, http.StatusUnprocessableEntity, "invalid options"},
		{"tiny click size", http.MethodPost, "/api/trajectory", TrajectoryRequest{Input: tinyClick}, http.StatusUnprocessableEntity, "invalid click size"},
		{"negative pressure", http.MethodPost, "/api/trajectory", TrajectoryRequest{Input: vacuum}, http.StatusUnprocessableEntity, "invalid atmosphere"},
	}

	s := NewServer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body == nil {
				req = testutil.NewTestRequest(tt.method, tt.path)
			} else {
				req = testutil.NewJSONRequest(t, tt.method, tt.path, tt.body)
			}
			rec := serve(s, req)
			testutil.AssertStatusCode(t, rec.Code, tt.status)

			var resp httputil.ErrorResponse
			testutil.DecodeJSON(t, rec, &resp)
			assert.Contains(t, resp.Error, tt.message)
			assert.Equal(t, rec.Header().Get(RequestIDHeader), resp.RequestID)
		})
	}
}

func TestSolve_Cache(t *testing.T) {
	s := NewServer(&config.TuningConfig{CacheSize: ptrInt(4)})
	want, err := ballistics.ComputeTrajectory(testInput())
	require.NoError(t, err)

	first, err := s.Solve(TrajectoryRequest{Input: testInput()}, units.MPS)
	require.NoError(t, err)
	assert.Equal(t, 1, s.solutions.Len())
	first[0].Velocity = -1

	// a hit in other units is converted from the cached ft/s rows
	second, err := s.Solve(TrajectoryRequest{Input: testInput()}, units.FPS)
	require.NoError(t, err)
	assert.Equal(t, 1, s.solutions.Len())
	assert.Equal(t, want, second)

	// the grid is part of the key
	_, err = s.Solve(TrajectoryRequest{Input: testInput(), Options: &ballistics.Options{StepYards: 50, MaxRangeYards: 500}}, units.FPS)
	require.NoError(t, err)
	assert.Equal(t, 2, s.solutions.Len())

	bad := testInput()
	bad.ZeroRange = 0
	_, err = s.Solve(TrajectoryRequest{Input: bad}, units.FPS)
	assert.ErrorIs(t, err, ballistics.ErrInvalidRange)
	assert.Equal(t, 2, s.solutions.Len())

	assert.Nil(t, NewServer(&config.TuningConfig{CacheSize: ptrInt(0)}).solutions)
}

func TestBatch(t *testing.T) {
	bad := testInput()
	bad.MuzzleVelocity = -1
	fast := testInput()
	fast.MuzzleVelocity = 3000

	body := BatchRequest{Requests: []TrajectoryRequest{
		{Input: testInput()},
		{Input: bad},
		{Input: fast},
	}}
	rec := serve(NewServer(nil), testutil.NewJSONRequest(t, http.MethodPost, "/api/trajectory/batch", body))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp BatchResponse
	testutil.DecodeJSON(t, rec, &resp)
	require.Len(t, resp.Results, 3)
	assert.NotEmpty(t, resp.RequestID)

	want, err := ballistics.ComputeTrajectory(testInput())
	require.NoError(t, err)
	assert.Equal(t, want, resp.Results[0].Rows)
	assert.Empty(t, resp.Results[0].Error)

	assert.Empty(t, resp.Results[1].Rows)
	assert.Contains(t, resp.Results[1].Error, "invalid muzzle velocity")

	require.NotEmpty(t, resp.Results[2].Rows)
	assert.Greater(t, resp.Results[2].Rows[0].Velocity, resp.Results[0].Rows[0].Velocity)
}

func TestBatch_Rejected(t *testing.T) {
	s := NewServer(&config.TuningConfig{MaxBatchSize: ptrInt(2)})
	three := BatchRequest{Requests: []TrajectoryRequest{{Input: testInput()}, {Input: testInput()}, {Input: testInput()}}}

	tests := []struct {
		name    string
		method  string
		body    interface{}
		status  int
		message string
	}{
		{"wrong method", http.MethodPut, BatchRequest{}, http.StatusMethodNotAllowed, "method not allowed"},
		{"empty batch", http.MethodPost, BatchRequest{}, http.StatusBadRequest, "no requests"},
		{"too large", http.MethodPost, three, http.StatusBadRequest, "max_batch_size 2"},
		{"malformed", http.MethodPost, `[`, http.StatusBadRequest, "invalid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, testutil.NewJSONRequest(t, tt.method, "/api/trajectory/batch", tt.body))
			testutil.AssertStatusCode(t, rec.Code, tt.status)

			var resp httputil.ErrorResponse
			testutil.DecodeJSON(t, rec, &resp)
			assert.Contains(t, resp.Error, tt.message)
		})
	}
}

func TestSolveBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewServer(nil).solveBatch(ctx, []TrajectoryRequest{{Input: testInput()}}, units.FPS)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDrag(t *testing.T) {
	s := NewServer(nil)

	rec := serve(s, testutil.NewTestRequest(http.MethodGet, "/api/drag?model=g7&mach=1.2"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var resp DragResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, ballistics.G7, resp.Model)
	require.NotNil(t, resp.Cd)
	assert.Equal(t, ballistics.DragCoefficient(ballistics.G7, 1.2), *resp.Cd)
	assert.Nil(t, resp.Table)

	// no mach returns the whole table for the configured default model
	rec = serve(s, testutil.NewTestRequest(http.MethodGet, "/api/drag"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	resp = DragResponse{}
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, ballistics.G1, resp.Model)
	assert.Equal(t, ballistics.G1Table, resp.Table)
	assert.Nil(t, resp.Cd)
}

func TestDrag_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"wrong method", http.MethodPost, "/api/drag", http.StatusMethodNotAllowed},
		{"unknown model", http.MethodGet, "/api/drag?model=g8", http.StatusBadRequest},
		{"non-numeric mach", http.MethodGet, "/api/drag?mach=fast", http.StatusBadRequest},
		{"negative mach", http.MethodGet, "/api/drag?mach=-1", http.StatusBadRequest},
		{"nan mach", http.MethodGet, "/api/drag?mach=NaN", http.StatusBadRequest},
		{"infinite mach", http.MethodGet, "/api/drag?mach=Inf", http.StatusBadRequest},
	}
	s := NewServer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, testutil.NewTestRequest(tt.method, tt.path))
			testutil.AssertStatusCode(t, rec.Code, tt.status)
		})
	}
}

func TestVersion(t *testing.T) {
	rec := serve(NewServer(nil), testutil.NewTestRequest(http.MethodGet, "/api/version"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var info version.Info
	testutil.DecodeJSON(t, rec, &info)
	assert.Equal(t, version.Get(), info)

	rec = serve(NewServer(nil), testutil.NewTestRequest(http.MethodDelete, "/api/version"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}

func TestConfig(t *testing.T) {
	rec := serve(NewServer(config.MustLoadDefaultConfig()), testutil.NewTestRequest(http.MethodGet, "/api/config"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var got map[string]interface{}
	testutil.DecodeJSON(t, rec, &got)
	assert.Equal(t, 25.0, got["step_yards"])
	assert.Equal(t, 1000.0, got["max_range_yards"])
	assert.Equal(t, "G1", got["drag_model"])
	assert.Equal(t, "10s", got["request_timeout"])

	rec = serve(NewServer(nil), testutil.NewTestRequest(http.MethodPost, "/api/config"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestWriteSolverError_Unexpected(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSolverError(rec, errors.New("integrator exploded"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusInternalServerError)

	rec = httptest.NewRecorder()
	writeSolverError(rec, fmt.Errorf("wrapped: %w", ballistics.ErrInvalidRange))
	testutil.AssertStatusCode(t, rec.Code, http.StatusUnprocessableEntity)
}

func TestStatusCodeColor(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, colorBoldGreen + "200" + colorReset},
		{304, colorYellow + "304" + colorReset},
		{404, colorBoldRed + "404" + colorReset},
		{503, colorBoldRed + "503" + colorReset},
		{101, "101"},
	}
	for _, tt := range tests {
		if got := statusCodeColor(tt.code); got != tt.want {
			t.Errorf("statusCodeColor(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestLoggingMiddleware(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()

	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	s := NewServer(nil)
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	clock.SetStep(1500 * time.Microsecond)
	s.clock = clock

	req := testutil.NewTestRequest(http.MethodGet, "/api/version")
	req.Header.Set(RequestIDHeader, "log-me")
	serve(s, req)

	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "[api] "), lines[0])
	assert.Contains(t, lines[0], "/api/version")
	assert.Contains(t, lines[0], "log-me")
	assert.Contains(t, lines[0], "200")
	assert.True(t, strings.HasSuffix(lines[0], " 1.5ms"), lines[0])
}

func TestRequestIDMiddleware_RejectsOversizedID(t *testing.T) {
	req := testutil.NewTestRequest(http.MethodGet, "/api/version")
	req.Header.Set(RequestIDHeader, strings.Repeat("a", 200))
	rec := serve(NewServer(nil), req)

	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)
}

func TestHandler_TimeoutCarriesRequestID(t *testing.T) {
	s := NewServer(&config.TuningConfig{RequestTimeout: ptrString("10ms")})
	release := make(chan struct{})
	defer close(release)
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})

	req := testutil.NewTestRequest(http.MethodGet, "/api/version")
	req.Header.Set(RequestIDHeader, "slow-shot")
	rec := testutil.NewTestRecorder()
	s.wrap(slow).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "slow-shot", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, rec.Body.String(), "request timed out")
}

func TestRequestIDFromContext(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))

	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	rec := testutil.NewTestRecorder()
	h.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/"))

	require.NotEmpty(t, seen)
	assert.Equal(t, rec.Header().Get(RequestIDHeader), seen)
}
