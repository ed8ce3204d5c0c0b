package events

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogWritesFile(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)
	require.NoError(t, l.LogEvent(Event{Type: "machine_arrived", Program: "agv-dwell", RunID: "r1", Detail: "Warehouse", Timestamp: at}))
	path := l.Path()
	require.NoError(t, l.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "=== Event Log Started at")
	assert.Contains(t, string(b), "[2024-05-01 09:30:00] MACHINE_ARRIVED: agv-dwell (r1) Warehouse\n")
}

func TestGetEventsKeepsLastFifty(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	assert.Empty(t, l.Path())

	for i := 0; i < 60; i++ {
		require.NoError(t, l.LogEvent(Event{Type: "run_started", Program: fmt.Sprint(i)}))
	}

	got := l.GetEvents()
	require.Len(t, got, 50)
	assert.Equal(t, "10", got[0].Program)
	assert.Equal(t, "59", got[49].Program)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestLogTrimsMemoryButKeepsFile(t *testing.T) {
	l, err := Open(t.TempDir())
	require.NoError(t, err)
	path := l.Path()

	for i := 0; i < 500; i++ {
		require.NoError(t, l.LogEvent(Event{Type: "machine_arrived", Program: "agv-tour", Detail: fmt.Sprint(i)}))
	}
	assert.Len(t, l.events, recentLimit)
	assert.Equal(t, "499", l.GetEvents()[recentLimit-1].Detail)
	require.NoError(t, l.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 500, strings.Count(string(b), "MACHINE_ARRIVED"))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "Machine Arrived", formatEventType("machine_arrived"))
	assert.Equal(t, "bg-red-100 text-red-800", getEventTypeClass("run_stopped"))
	assert.Equal(t, "bg-blue-100 text-blue-800", getEventTypeClass("note"))
}

func newTestMux(t *testing.T) (*Log, *http.ServeMux) {
	t.Helper()
	l, err := Open("")
	require.NoError(t, err)
	mux := http.NewServeMux()
	(&Handlers{Log: l}).SetupHandlers(mux)
	return l, mux
}

func TestManualEventHTMX(t *testing.T) {
	l, mux := newTestMux(t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/list", nil))
	assert.Contains(t, w.Body.String(), "No events yet")

	l.LogEvent(Event{Type: "run_started", Program: "agv-tour"})

	form := url.Values{"type": {"operator_note"}, "program": {"agv-tour"}, "detail": {"<b>check</b>"}}
	req := httptest.NewRequest(http.MethodPost, "/events/manual", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Operator Note")
	assert.Contains(t, body, "&lt;b&gt;check&lt;/b&gt;")
	// newest first
	assert.Less(t, strings.Index(body, "Operator Note"), strings.Index(body, "Run Started"))

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/events/manual", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/manual", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestManualEventJSON(t *testing.T) {
	l, mux := newTestMux(t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/manual-event", strings.NewReader(`{"type":"confused","program":"truck"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, l.GetEvents(), 1)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/manual-event", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Contains(t, w.Body.String(), `"type":"confused"`)
}
