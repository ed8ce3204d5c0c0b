// Package truck moves a truck between two geocoded addresses. Each step
// closes a fixed fraction of the remaining latitude and longitude gap.
package truck

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const earthRadiusKm = 6371.0

// Move advances pos towards dest by fraction of the remaining gap on each axis.
func Move(pos, dest Coordinate, fraction float64) Coordinate {
	return Coordinate{
		Lat: pos.Lat + (dest.Lat-pos.Lat)*fraction,
		Lon: pos.Lon + (dest.Lon-pos.Lon)*fraction,
	}
}

// Arrived reports whether pos is within tol degrees of dest on both axes.
func Arrived(pos, dest Coordinate, tol float64) bool {
	return math.Abs(pos.Lat-dest.Lat) < tol && math.Abs(pos.Lon-dest.Lon) < tol
}

// DistanceKm is the great-circle distance between two coordinates.
func DistanceKm(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dlat := lat2 - lat1
	dlon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// DegreesToDMS formats decimal degrees as degrees, minutes and seconds with a
// hemisphere letter.
func DegreesToDMS(decimalDegrees float64, isLatitude bool) string {
	absolute := math.Abs(decimalDegrees)

	degrees := int(absolute)
	minutesNotTruncated := (absolute - float64(degrees)) * 60
	minutes := int(minutesNotTruncated)
	seconds := (minutesNotTruncated - float64(minutes)) * 60

	var direction string
	if isLatitude {
		if decimalDegrees >= 0 {
			direction = "N"
		} else {
			direction = "S"
		}
	} else {
		if decimalDegrees >= 0 {
			direction = "E"
		} else {
			direction = "W"
		}
	}

	return fmt.Sprintf("%d°%d'%.2f\"%s", degrees, minutes, seconds, direction)
}

// Tracker keeps the scene of the current truck run for the map, the
// position panel and the exports.
type Tracker struct {
	mu    sync.Mutex
	scene *Scene
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Record appends a snapshot to the track. A snapshot for a different
// source/destination pair starts a new scene.
func (t *Tracker) Record(s Snapshot, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.scene == nil || t.scene.Source != s.Source || t.scene.Destination != s.Destination {
		t.scene = &Scene{}
	}
	t.scene.Snapshot = s
	t.scene.Track = append(t.scene.Track, TrackPoint{Coordinate: s.Position, Time: at})
}

// Scene returns a copy of the current scene.
func (t *Tracker) Scene() (Scene, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.scene == nil {
		return Scene{}, false
	}
	s := *t.scene
	s.Track = append([]TrackPoint(nil), t.scene.Track...)
	return s, true
}

// Clear forgets the current scene.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.scene = nil
	t.mu.Unlock()
}
