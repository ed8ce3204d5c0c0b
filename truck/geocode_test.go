package truck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeNominatim(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "logistics_app", r.Header.Get("User-Agent"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeocodeFirstMatch(t *testing.T) {
	srv := fakeNominatim(t, `[{"lat":"37.9161","lon":"139.0364","display_name":"Chuo Ward, Niigata"},{"lat":"1","lon":"2"}]`, http.StatusOK)
	g := NewGeocoder(srv.URL+"/", "logistics_app", time.Second)

	var outcomes []string
	g.OnLookup = func(o string) { outcomes = append(outcomes, o) }

	got, err := g.Geocode(context.Background(), "新潟県新潟市中央区")
	require.NoError(t, err)
	assert.Equal(t, Coordinate{Lat: 37.9161, Lon: 139.0364}, got)
	assert.Equal(t, []string{"ok"}, outcomes)
}

func TestGeocodeNoMatch(t *testing.T) {
	srv := fakeNominatim(t, `[]`, http.StatusOK)
	g := NewGeocoder(srv.URL, "logistics_app", time.Second)

	var outcome string
	g.OnLookup = func(o string) { outcome = o }

	_, err := g.Geocode(context.Background(), "nowhere at all")
	assert.ErrorIs(t, err, ErrAddressNotFound)
	assert.Equal(t, "not_found", outcome)
}

func TestGeocodeServerError(t *testing.T) {
	srv := fakeNominatim(t, `oops`, http.StatusServiceUnavailable)
	g := NewGeocoder(srv.URL, "logistics_app", time.Second)

	_, err := g.Geocode(context.Background(), "大阪府堺市")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAddressNotFound)
}

func TestGeocodeEmptyAddress(t *testing.T) {
	g := NewGeocoder("http://127.0.0.1:0", "logistics_app", time.Second)
	_, err := g.Geocode(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrAddressNotFound)
}
