package truck

import (
	"fmt"

	geojson "github.com/paulmach/go.geojson"
	"github.com/tkrajina/gpxgo/gpx"
)

// SceneGeoJSON renders the scene as a FeatureCollection: source, destination
// and truck points, plus the route and the driven track when present.
// Coordinates are [lon, lat] as GeoJSON requires.
func SceneGeoJSON(s Scene) ([]byte, error) {
	fc := geojson.NewFeatureCollection()

	addPoint := func(c Coordinate, kind, label string) {
		f := geojson.NewPointFeature([]float64{c.Lon, c.Lat})
		f.SetProperty("type", kind)
		f.SetProperty("label", label)
		fc.AddFeature(f)
	}
	addPoint(s.Source, "source", s.SourceAddress)
	addPoint(s.Destination, "destination", s.DestinationAddress)
	addPoint(s.Position, "truck", fmt.Sprintf("step %d", s.Step))

	if len(s.Route) > 1 {
		f := geojson.NewLineStringFeature(lineString(s.Route))
		f.SetProperty("type", "route")
		fc.AddFeature(f)
	}
	if len(s.Track) > 1 {
		coords := make([]Coordinate, 0, len(s.Track))
		for _, p := range s.Track {
			coords = append(coords, p.Coordinate)
		}
		f := geojson.NewLineStringFeature(lineString(coords))
		f.SetProperty("type", "track")
		fc.AddFeature(f)
	}

	return fc.MarshalJSON()
}

func lineString(coords []Coordinate) [][]float64 {
	line := make([][]float64, 0, len(coords))
	for _, c := range coords {
		line = append(line, []float64{c.Lon, c.Lat})
	}
	return line
}

// TrackGPX renders the driven track as a single-segment GPX 1.1 track.
func TrackGPX(s Scene) ([]byte, error) {
	seg := gpx.GPXTrackSegment{}
	for _, p := range s.Track {
		seg.Points = append(seg.Points, gpx.GPXPoint{
			Point:     gpx.Point{Latitude: p.Lat, Longitude: p.Lon},
			Timestamp: p.Time,
		})
	}

	doc := gpx.GPX{
		Version: "1.1",
		Creator: "agv-simulation",
		Tracks: []gpx.GPXTrack{{
			Name:     fmt.Sprintf("%s -> %s", s.SourceAddress, s.DestinationAddress),
			Segments: []gpx.GPXTrackSegment{seg},
		}},
	}
	b, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("encode gpx: %w", err)
	}
	return b, nil
}
