package truck

import (
	"testing"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkrajina/gpxgo/gpx"
)

func testScene() Scene {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	mid := Move(niigata, sakai, 0.5)
	return Scene{
		Snapshot: Snapshot{
			SourceAddress:      "新潟県新潟市中央区",
			DestinationAddress: "大阪府堺市",
			Source:             niigata,
			Destination:        sakai,
			Position:           mid,
			Step:               1,
			Route:              []Coordinate{niigata, mid, sakai},
		},
		Track: []TrackPoint{
			{Coordinate: niigata, Time: start},
			{Coordinate: mid, Time: start.Add(time.Second)},
		},
	}
}

func TestSceneGeoJSON(t *testing.T) {
	b, err := SceneGeoJSON(testScene())
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection(b)
	require.NoError(t, err)
	require.Len(t, fc.Features, 5)

	kinds := map[string]*geojson.Feature{}
	for _, f := range fc.Features {
		kind, err := f.PropertyString("type")
		require.NoError(t, err)
		kinds[kind] = f
	}
	require.Contains(t, kinds, "source")
	assert.Equal(t, []float64{niigata.Lon, niigata.Lat}, kinds["source"].Geometry.Point)
	require.Contains(t, kinds, "route")
	assert.Len(t, kinds["route"].Geometry.LineString, 3)
	require.Contains(t, kinds, "track")
	assert.Len(t, kinds["track"].Geometry.LineString, 2)
	assert.Contains(t, kinds, "truck")
	assert.Contains(t, kinds, "destination")
}

func TestSceneGeoJSONWithoutRoute(t *testing.T) {
	s := testScene()
	s.Route = nil
	s.Track = s.Track[:1]

	b, err := SceneGeoJSON(s)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(b)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 3)
}

func TestTrackGPX(t *testing.T) {
	b, err := TrackGPX(testScene())
	require.NoError(t, err)

	doc, err := gpx.ParseBytes(b)
	require.NoError(t, err)
	require.Len(t, doc.Tracks, 1)
	require.Len(t, doc.Tracks[0].Segments, 1)
	pts := doc.Tracks[0].Segments[0].Points
	require.Len(t, pts, 2)
	assert.InDelta(t, niigata.Lat, pts[0].Latitude, 1e-6)
	assert.InDelta(t, niigata.Lon, pts[0].Longitude, 1e-6)
}
