package truck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteDecodesGeoJSONGeometry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/route/v1/driving/"))
		assert.Equal(t, "geojson", r.URL.Query().Get("geometries"))
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":550000,"duration":21600,
			"geometry":{"type":"LineString","coordinates":[[139.0364,37.9161],[137.0,36.0],[135.4828,34.5733]]}}]}`))
	}))
	defer srv.Close()

	r := NewRouter(srv.URL, time.Second)
	route, err := r.Route(context.Background(), niigata, sakai)
	require.NoError(t, err)

	require.Len(t, route.Path, 3)
	assert.Equal(t, niigata, route.Path[0])
	assert.Equal(t, sakai, route.Path[2])
	assert.Equal(t, 550000.0, route.DistanceM)
	assert.Equal(t, 21600.0, route.DurationS)
}

func TestRouteNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","message":"Impossible route","routes":[]}`))
	}))
	defer srv.Close()

	_, err := NewRouter(srv.URL, time.Second).Route(context.Background(), niigata, sakai)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoRoute")
}

func TestRouteRejectsNonLineGeometry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"geometry":{"type":"Point","coordinates":[1,2]}}]}`))
	}))
	defer srv.Close()

	_, err := NewRouter(srv.URL, time.Second).Route(context.Background(), niigata, sakai)
	assert.Error(t, err)
}
