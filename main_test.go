package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/fkdmshk/agv-simulation/config"
	"github.com/fkdmshk/agv-simulation/logging"
	"github.com/fkdmshk/agv-simulation/observability"
	"github.com/fkdmshk/agv-simulation/simulation"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Events.LogDir = t.TempDir()
	cfg.Simulation.StepInterval = time.Millisecond
	cfg.Simulation.ProximityInterval = time.Millisecond
	return cfg
}

func TestRunHeadlessPath(t *testing.T) {
	var out bytes.Buffer
	res, err := runHeadless(context.Background(), testConfig(t), logging.Noop(),
		simulation.Params{Kind: simulation.KindPath}, 7, json.NewEncoder(&out))
	require.NoError(t, err)
	assert.Equal(t, simulation.OutcomeCompleted, res.Outcome)
	assert.Equal(t, 15, res.Steps)

	var frames []simulation.Frame
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var f simulation.Frame
		require.NoError(t, json.Unmarshal(sc.Bytes(), &f))
		frames = append(frames, f)
	}
	require.NotEmpty(t, frames)
	assert.Equal(t, simulation.EventRunStarted, frames[0].Event)
	last := frames[len(frames)-1]
	assert.True(t, last.Done)
	assert.Equal(t, res.RunID, last.RunID)
}

func TestRunHeadlessRejectsUnknownScenario(t *testing.T) {
	_, err := runHeadless(context.Background(), testConfig(t), logging.Noop(),
		simulation.Params{Kind: "forklift"}, 1, json.NewEncoder(&bytes.Buffer{}))
	assert.ErrorIs(t, err, simulation.ErrUnknownScenario)
}

func TestRoutes(t *testing.T) {
	a, err := newApp(testConfig(t), logging.Noop(), prometheus.NewRegistry(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background()) })

	srv := httptest.NewServer(logging.Middleware(logging.Noop(), a.routes()))
	t.Cleanup(srv.Close)

	for _, path := range []string{
		"/",
		"/scenarios/list",
		"/scenarios/sidebar",
		"/scenarios/status",
		"/charts/factory.png",
		"/truck/position",
		"/events/list",
		"/metrics",
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestGeocodeCommandExportsSpans(t *testing.T) {
	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"lat":"37.9161","lon":"139.0364","display_name":"Chuo Ward, Niigata"}]`))
	}))
	defer nominatim.Close()

	path := filepath.Join(t.TempDir(), "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("geocoder:\n  base_url: "+nominatim.URL+"\n"), 0o644))

	t.Setenv("SIM_TRACING_ENABLED", "true")
	t.Setenv("SIM_TRACING_EXPORTER", "stdout")

	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs([]string{"--config", path, "geocode", "新潟県新潟市中央区"})
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		configPath = ""
		shutdownTracing = nil
		otel.SetTracerProvider(noop.NewTracerProvider())
	})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	require.NotNil(t, shutdownTracing)
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logging.Noop())

	assert.Contains(t, stdout.String(), "37.916100,139.036400")
	assert.Contains(t, stderr.String(), "truck.Geocode")
	assert.NotContains(t, stdout.String(), "truck.Geocode")
}
