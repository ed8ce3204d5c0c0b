package truck

import "time"

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Snapshot is the truck state published with each simulation step.
type Snapshot struct {
	SourceAddress      string       `json:"source_address"`
	DestinationAddress string       `json:"destination_address"`
	Source             Coordinate   `json:"source"`
	Destination        Coordinate   `json:"destination"`
	Position           Coordinate   `json:"position"`
	Step               int          `json:"step"`
	Arrived            bool         `json:"arrived"`
	RemainingKm        float64      `json:"remaining_km"`
	Route              []Coordinate `json:"-"` // street route, display only
}

// TrackPoint is one recorded truck position.
type TrackPoint struct {
	Coordinate
	Time time.Time `json:"time"`
}

// Scene is everything drawn on the truck map for the current run.
type Scene struct {
	Snapshot
	Track []TrackPoint `json:"track"`
}
