package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/watercolumn/internal/adcp"
	"github.com/banshee-data/watercolumn/internal/config"
	"github.com/banshee-data/watercolumn/internal/db"
	"github.com/banshee-data/watercolumn/internal/monitoring"
	"github.com/banshee-data/watercolumn/internal/testutil"
	"github.com/banshee-data/watercolumn/internal/timeutil"
	"github.com/banshee-data/watercolumn/internal/watercolumn"
)

// fakeADCP records commands and fails any command listed in fail.
type fakeADCP struct {
	mu   sync.Mutex
	sent []string
	fail map[string]bool
}

func (f *fakeADCP) Subscribe() (string, chan string)  { return "", make(chan string) }
func (f *fakeADCP) Unsubscribe(string)                {}
func (f *fakeADCP) Monitor(ctx context.Context) error { <-ctx.Done(); return nil }
func (f *fakeADCP) Close() error                      { return nil }
func (f *fakeADCP) AttachAdminRoutes(*http.ServeMux)  {}
func (f *fakeADCP) StartPinging(set string) error     { return adcp.StartPinging(f, set) }
func (f *fakeADCP) SendCommand(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[cmd] {
		return errors.New("port closed")
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeADCP) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type testEnv struct {
	server *Server
	proc   *watercolumn.Processor
	adcp   *fakeADCP
	db     *db.DB
	mux    http.Handler
}

func newTestEnv(t *testing.T, withDB bool, opts ...Option) *testEnv {
	t.Helper()
	testutil.CaptureLogs(t)

	clock := timeutil.NewMockClock(testutil.Epoch)
	proc, err := watercolumn.NewProcessor(watercolumn.Config{MaxRunningAverageCount: 3}, watercolumn.WithClock(clock))
	require.NoError(t, err)

	env := &testEnv{proc: proc, adcp: &fakeADCP{}}
	opts = append([]Option{WithClock(clock)}, opts...)
	if withDB {
		d, err := db.NewDB(filepath.Join(t.TempDir(), "watercolumn.db"))
		require.NoError(t, err)
		t.Cleanup(func() { d.Close() })
		env.db = d
		opts = append(opts, WithDB(d))
	}
	env.server = NewServer(proc, env.adcp, opts...)
	env.mux = env.server.ServeMux()
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if method == http.MethodPost && body != "" && !strings.HasPrefix(body, "{") {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func TestSnapshotEndpoint(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/api/snapshot", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.proc.OnEnsemble(testutil.UniformEnsemble(7, 1.0, 90, 4))

	rec = env.do(t, http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got snapshotResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "mps", got.Units)
	assert.Equal(t, 7, got.EnsembleNumber)
	assert.InDelta(t, 1.0, got.Average.AvgVel, 1e-9)
	assert.Equal(t, "$RTIAWC,7,1,90,1,0,4,1\n", got.Record)

	rec = env.do(t, http.MethodGet, "/api/snapshot?units=knots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "knots", got.Units)
	assert.InDelta(t, 1.943846, got.Average.AvgVel, 1e-5)
	// the stored record stays in m/s
	assert.Equal(t, "$RTIAWC,7,1,90,1,0,4,1\n", got.Record)

	rec = env.do(t, http.MethodGet, "/api/snapshot?units=furlongs", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/snapshot", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBinsEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	env.proc.OnEnsemble(testutil.UniformEnsemble(3, 0.5, 180, 2))

	rec := env.do(t, http.MethodGet, "/api/bins", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		EnsembleNumber int                  `json:"ensemble_number"`
		Bins           []watercolumn.BinRow `json:"bins"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 3, got.EnsembleNumber)
	assert.Equal(t, []watercolumn.BinRow{
		{Bin: 1, Mag: "0.50", Dir: "180.00"},
		{Bin: 2, Mag: "0.50", Dir: "180.00"},
	}, got.Bins)
}

func TestHistoryDisabledWithoutDB(t *testing.T) {
	env := newTestEnv(t, false)
	for _, path := range []string{"/api/reports", "/api/chart", "/api/commands"} {
		rec := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestReportsEndpoint(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	for i, v := range []float64{1, 2} {
		snap := env.proc.OnEnsemble(testutil.UniformEnsemble(10+i, v, 0, 4))
		require.NoError(t, env.db.RecordReport(ctx, snap))
	}

	rec := env.do(t, http.MethodGet, "/api/reports?limit=1&units=kph", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Units   string      `json:"units"`
		Reports []db.Report `json:"reports"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "kph", got.Units)
	require.Len(t, got.Reports, 1)
	assert.Equal(t, 11, got.Reports[0].EnsembleNumber)
	// smoothed average of 1 and 2 m/s
	assert.InDelta(t, 1.5*3.6, got.Reports[0].AvgVel, 1e-9)

	rec = env.do(t, http.MethodGet, "/api/reports?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChartEndpoint(t *testing.T) {
	env := newTestEnv(t, true)
	snap := env.proc.OnEnsemble(testutil.UniformEnsemble(42, 1.2, 10, 4))
	require.NoError(t, env.db.RecordReport(context.Background(), snap))

	rec := env.do(t, http.MethodGet, "/api/chart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "Water Column Speed")
	assert.Contains(t, body, "ensembles 42 to 42")
	assert.Contains(t, body, echartsAssetsHost)
}

func TestResetShipMax(t *testing.T) {
	env := newTestEnv(t, false)
	ens := testutil.UniformEnsemble(1, 1, 0, 4)
	ens.BottomTrack = &adcp.BottomTrack{EarthVelocity: [3]float64{3, 4, 0}, EarthVelocityGood: true}
	ens.Navigation = &adcp.Navigation{}
	snap := env.proc.OnEnsemble(ens)
	require.InDelta(t, 5.0, snap.Ship.ShipMaxVel, 1e-9)

	rec := env.do(t, http.MethodGet, "/api/ship/reset", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/ship/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	snap = env.proc.OnEnsemble(testutil.UniformEnsemble(2, 1, 0, 4))
	assert.Zero(t, snap.Ship.ShipMaxVel)
}

func TestConfigEndpoint(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got config.AveragingConfig
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 3, got.GetRunningAverageCount())

	rec = env.do(t, http.MethodPut, "/api/config", `{"running_average_count": 5, "min_bin": 1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cfg := env.proc.Config()
	assert.Equal(t, 5, cfg.MaxRunningAverageCount)
	assert.Equal(t, 1, cfg.MinBin)

	rec = env.do(t, http.MethodPut, "/api/config", `{"mark_bad_below_bottom": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.proc.Config().MarkBadBelowBottom)
	assert.False(t, env.proc.Config().RemoveShipSpeed)

	rec = env.do(t, http.MethodPut, "/api/config", `{"min_bin": -1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, env.proc.Config().MinBin)

	rec = env.do(t, http.MethodPut, "/api/config", `{"bogus": true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/config", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSendCommand(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/command", url.Values{"command": {"CWPBB 1"}}.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Command sent successfully", rec.Body.String())
	assert.Equal(t, []string{"CWPBB 1"}, env.adcp.commands())

	rec = env.do(t, http.MethodPost, "/command", url.Values{"command": {"  "}}.Encode())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.adcp.fail = map[string]bool{"CBOOM": true}
	rec = env.do(t, http.MethodPost, "/command", url.Values{"command": {"CBOOM"}}.Encode())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/commands", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []db.CommandLogEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "CBOOM", entries[0].Command)
	assert.Equal(t, "port closed", entries[0].Error)
	assert.Equal(t, "CWPBB 1", entries[1].Command)
	assert.Equal(t, testutil.Epoch, entries[1].SentAt)
}

func TestPinging(t *testing.T) {
	set := "CEI 00:00:01\nCWPBN 30\n"
	env := newTestEnv(t, false, WithConfig(&config.AveragingConfig{CommandSet: &set}))

	rec := env.do(t, http.MethodPost, "/api/pinging/start", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"commands":2`)

	rec = env.do(t, http.MethodPost, "/api/pinging/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"CEI 00:00:01", "CWPBN 30", "START", "STOP"}, env.adcp.commands())

	env.adcp.fail = map[string]bool{"CWPBN 30": true}
	rec = env.do(t, http.MethodPost, "/api/pinging/start", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "CWPBN 30")
}

func TestLiveHandlerMounted(t *testing.T) {
	called := false
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	env := newTestEnv(t, false, WithLiveHandler(h))
	env.do(t, http.MethodGet, "/ws", "")
	assert.True(t, called)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	monitoring.SetLogger(func(format string, v ...interface{}) {
		buf.WriteString(strings.TrimSpace(fmt.Sprintf(format, v...)))
	})
	defer monitoring.SetLogger(nil)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot?units=mph", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, buf.String(), colorBoldRed+"418"+colorReset)
	assert.Contains(t, buf.String(), "/api/snapshot?units=mph")
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"304"+colorReset, statusCodeColor(304))
	assert.Equal(t, colorBoldRed+"404"+colorReset, statusCodeColor(404))
	assert.Equal(t, colorBoldRed+"503"+colorReset, statusCodeColor(503))
	assert.Equal(t, "101", statusCodeColor(101))
}

func TestConfigPersisted(t *testing.T) {
	var saved []*config.AveragingConfig
	env := newTestEnv(t, false, WithConfigSaver(func(c *config.AveragingConfig) error {
		saved = append(saved, c)
		return nil
	}))

	rec := env.do(t, http.MethodPut, "/api/config", `{"direction_mean": "circular"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, saved, 1)
	assert.Equal(t, "circular", string(saved[0].GetDirectionMean()))

	// rejected updates are not saved
	env.do(t, http.MethodPut, "/api/config", `{"direction_mean": "median"}`)
	assert.Len(t, saved, 1)
}
