package truck

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	niigata = Coordinate{Lat: 37.9161, Lon: 139.0364}
	sakai   = Coordinate{Lat: 34.5733, Lon: 135.4828}
)

func TestMoveClosesFraction(t *testing.T) {
	got := Move(Coordinate{0, 0}, Coordinate{10, 20}, 0.05)
	assert.InDelta(t, 0.5, got.Lat, 1e-12)
	assert.InDelta(t, 1.0, got.Lon, 1e-12)

	got = Move(got, Coordinate{10, 20}, 1)
	assert.Equal(t, Coordinate{10, 20}, got)
}

func TestTruckEventuallyArrives(t *testing.T) {
	pos := niigata
	steps := 0
	for !Arrived(pos, sakai, 0.01) {
		pos = Move(pos, sakai, 0.02)
		steps++
		require.Less(t, steps, 1000)
	}
	assert.Greater(t, steps, 200)
	assert.Less(t, DistanceKm(pos, sakai), 2.0)
}

func TestArrivedNeedsBothAxes(t *testing.T) {
	dest := Coordinate{35, 135}
	assert.True(t, Arrived(Coordinate{35.005, 134.995}, dest, 0.01))
	assert.False(t, Arrived(Coordinate{35.005, 134.98}, dest, 0.01))
	assert.False(t, Arrived(Coordinate{35.01, 135}, dest, 0.01))
}

func TestDistanceKm(t *testing.T) {
	assert.InDelta(t, 111.19, DistanceKm(Coordinate{0, 0}, Coordinate{0, 1}), 0.01)
	assert.InDelta(t, DistanceKm(niigata, sakai), DistanceKm(sakai, niigata), 1e-9)
	assert.InDelta(t, 480, DistanceKm(niigata, sakai), 40)
	assert.Zero(t, DistanceKm(sakai, sakai))
}

func TestDegreesToDMS(t *testing.T) {
	assert.Equal(t, `54°55'39.00"N`, DegreesToDMS(54.9275, true))
	assert.Equal(t, `1°50'3.12"W`, DegreesToDMS(-1.8342, false))
	assert.Equal(t, `0°0'0.00"E`, DegreesToDMS(0, false))
}

func TestTrackerStartsNewSceneOnNewRoute(t *testing.T) {
	tr := NewTracker()
	_, ok := tr.Scene()
	assert.False(t, ok)

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	snap := Snapshot{Source: niigata, Destination: sakai, Position: niigata}
	tr.Record(snap, now)
	snap.Position = Move(niigata, sakai, 0.02)
	snap.Step = 1
	tr.Record(snap, now.Add(time.Second))

	scene, ok := tr.Scene()
	require.True(t, ok)
	assert.Len(t, scene.Track, 2)
	assert.Equal(t, 1, scene.Step)

	// the copy does not alias the tracker's track
	scene.Track[0].Lat = 0
	again, _ := tr.Scene()
	assert.Equal(t, niigata.Lat, again.Track[0].Lat)

	tr.Record(Snapshot{Source: sakai, Destination: niigata, Position: sakai}, now)
	scene, _ = tr.Scene()
	assert.Len(t, scene.Track, 1)

	tr.Clear()
	_, ok = tr.Scene()
	assert.False(t, ok)
}
