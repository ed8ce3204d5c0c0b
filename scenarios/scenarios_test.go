package scenarios

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkdmshk/agv-simulation/config"
	"github.com/fkdmshk/agv-simulation/events"
	"github.com/fkdmshk/agv-simulation/factory"
	"github.com/fkdmshk/agv-simulation/sensors"
	"github.com/fkdmshk/agv-simulation/simulation"
	"github.com/fkdmshk/agv-simulation/truck"
)

type fakeRunner struct {
	mu      sync.Mutex
	status  simulation.Status
	started []simulation.Params
	stopped int
	err     error
}

func (f *fakeRunner) Start(p simulation.Params) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.status.Running {
		return "", simulation.ErrAlreadyRunning
	}
	f.started = append(f.started, p)
	f.status = simulation.Status{Running: true, RunID: "run-1", Kind: p.Kind}
	return "run-1", nil
}

func (f *fakeRunner) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.status.Running {
		return simulation.ErrNotRunning
	}
	f.stopped++
	f.status = simulation.Status{Last: &simulation.Result{Kind: f.status.Kind, Outcome: simulation.OutcomeStopped, Steps: 4}}
	return nil
}

func (f *fakeRunner) Status() simulation.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func newTestMux(t *testing.T, runner Runner) *http.ServeMux {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	h := &Handlers{
		Runner:   runner,
		Layout:   factory.NewLayout(cfg.Layout),
		Settings: simulation.SettingsFromConfig(cfg),
	}
	mux := http.NewServeMux()
	h.SetupHandlers(mux)
	return mux
}

func post(mux *http.ServeMux, target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestParseParams(t *testing.T) {
	form := url.Values{
		"order_1":     {"3"},
		"order_2":     {"1"},
		"order_3":     {""},
		"order_4":     {"Machining"},
		"dwell_1":     {"5"},
		"dwell_3":     {"10"},
		"dwell_x":     {"9"},
		"source":      {"東京都"},
		"destination": {""},
	}
	cfg, err := config.Default()
	require.NoError(t, err)
	layout := factory.NewLayout(cfg.Layout)

	p, err := ParseParams(layout, simulation.KindTour, form)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 2}, p.Order)
	assert.Equal(t, map[int]time.Duration{1: 5 * time.Second, 3: 10 * time.Second}, p.Dwell)
	assert.Equal(t, "東京都", p.Source)
	assert.Empty(t, p.Destination)

	_, err = ParseParams(layout, simulation.KindTour, url.Values{"dwell_1": {"two"}})
	assert.ErrorIs(t, err, simulation.ErrInvalidParams)
	_, err = ParseParams(layout, simulation.KindTour, url.Values{"order_1": {"press"}})
	assert.ErrorIs(t, err, simulation.ErrInvalidParams)
	assert.ErrorIs(t, err, factory.ErrUnknownMachine)
}

func TestListAndSidebar(t *testing.T) {
	mux := newTestMux(t, &fakeRunner{})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scenarios/list", nil))
	body := w.Body.String()
	for _, d := range simulation.Catalogue {
		assert.Contains(t, body, `id="card-`+string(d.Kind)+`"`)
	}
	assert.Equal(t, len(simulation.Catalogue), strings.Count(body, ">Start</button>"))

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scenarios/sidebar", nil))
	body = w.Body.String()
	assert.Contains(t, body, `name="order_4"`)
	assert.Contains(t, body, `name="dwell_2" min="1" max="10" value="3"`)
	assert.Contains(t, body, "新潟県新潟市中央区")
}

func TestSidebarPreselectsTourOrder(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	settings := simulation.SettingsFromConfig(cfg)
	settings.TourOrder = []int{3, 1}

	var b strings.Builder
	require.NoError(t, Sidebar(factory.NewLayout(cfg.Layout), settings).Render(context.Background(), &b))
	body := b.String()

	assert.Equal(t, 2, strings.Count(body, " selected>"))
	assert.Contains(t, body, `<select name="order_1" class="border rounded"><option value="1">`)
	assert.Contains(t, body, `<option value="3" selected>`)
}

func TestScenarioCardOutcomeBadge(t *testing.T) {
	desc := simulation.Catalogue[0]
	status := simulation.Status{Last: &simulation.Result{Kind: desc.Kind, Outcome: simulation.OutcomeCompleted, Steps: 15}}

	var b strings.Builder
	require.NoError(t, ScenarioCard(desc, status).Render(context.Background(), &b))
	assert.Contains(t, b.String(), `<span class="px-2 rounded bg-indigo-100 text-indigo-800">completed (15 steps)</span>`)

	// an outcome of another scenario leaves this card idle
	status.Last.Kind = "other"
	b.Reset()
	require.NoError(t, ScenarioCard(desc, status).Render(context.Background(), &b))
	assert.Contains(t, b.String(), ">Idle</span>")
}

func TestLaunchAndKill(t *testing.T) {
	runner := &fakeRunner{}
	mux := newTestMux(t, runner)

	w := post(mux, "/scenarios/launch?name=agv-tour", url.Values{"order_1": {"4"}, "dwell_4": {"6"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Running")
	assert.Contains(t, w.Body.String(), ">STOP</button>")
	require.Len(t, runner.started, 1)
	assert.Equal(t, []int{4}, runner.started[0].Order)
	assert.Equal(t, 6*time.Second, runner.started[0].Dwell[4])

	w = post(mux, "/scenarios/launch?name=agv-path", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// stopping a scenario that is not the running one changes nothing
	w = post(mux, "/scenarios/kill?name=agv-path", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, runner.stopped)

	w = post(mux, "/scenarios/kill?name=agv-tour", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, runner.stopped)
	assert.Contains(t, w.Body.String(), "stopped (4 steps)")
}

func TestLaunchErrors(t *testing.T) {
	mux := newTestMux(t, &fakeRunner{err: errors.New("boom")})

	w := post(mux, "/scenarios/launch?name=nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scenarios/launch?name=truck", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = post(mux, "/scenarios/launch?name=agv-tour", url.Values{"dwell_1": {"x"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(mux, "/scenarios/launch?name=truck", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestLaunchRealRunnerRejectsDwellOutOfRange(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	runner := &simulation.Runner{
		Layout:   factory.NewLayout(cfg.Layout),
		Settings: simulation.SettingsFromConfig(cfg),
	}
	mux := newTestMux(t, runner)

	w := post(mux, "/scenarios/launch?name=agv-tour", url.Values{"dwell_1": {"11"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "between 1s and 10s")
}

type recordedReading struct {
	runID, scenario string
	reading         sensors.Reading
}

type fakeRecorder struct{ rows []recordedReading }

func (f *fakeRecorder) Record(_ context.Context, runID, scenario string, r sensors.Reading) error {
	f.rows = append(f.rows, recordedReading{runID, scenario, r})
	return nil
}

type fakeHub struct{ frames []any }

func (f *fakeHub) Broadcast(v any) { f.frames = append(f.frames, v) }

type fakeMetrics struct{ n int }

func (f *fakeMetrics) ObserveFrame(simulation.Frame) { f.n++ }

func TestSinksListener(t *testing.T) {
	rec := &fakeRecorder{}
	hub := &fakeHub{}
	metrics := &fakeMetrics{}
	tracker := truck.NewTracker()
	log, err := events.Open("")
	require.NoError(t, err)

	listen := Sinks{Readings: rec, Tracker: tracker, Metrics: metrics, Events: log, Hub: hub}.Listener()

	now := time.Now()
	listen(simulation.Frame{RunID: "r", Scenario: simulation.KindLogistics, Phase: simulation.PhaseTruck, Event: simulation.EventRunStarted, Time: now})
	listen(simulation.Frame{RunID: "r", Scenario: simulation.KindLogistics, Phase: simulation.PhaseTruck, Truck: &truck.Snapshot{Position: truck.Coordinate{Lat: 1, Lon: 2}}, Time: now})
	listen(simulation.Frame{RunID: "r", Scenario: simulation.KindLogistics, Phase: simulation.PhaseFactory, Reading: &sensors.Reading{Step: 0, Battery: 100}, Time: now})
	listen(simulation.Frame{RunID: "r", Scenario: simulation.KindLogistics, Done: true, Event: simulation.EventRunFailed, Message: "Simulation failed", Error: "geocoder down", Time: now})

	require.Len(t, rec.rows, 1)
	assert.Equal(t, "logistics", rec.rows[0].scenario)
	assert.Len(t, hub.frames, 4)
	assert.Equal(t, 4, metrics.n)

	scene, ok := tracker.Scene()
	require.True(t, ok)
	assert.Len(t, scene.Track, 1)

	evs := log.GetEvents()
	require.Len(t, evs, 2)
	assert.Equal(t, simulation.EventRunStarted, evs[0].Type)
	assert.Equal(t, "geocoder down", evs[1].Detail)
	assert.Equal(t, "r", evs[1].RunID)
}
