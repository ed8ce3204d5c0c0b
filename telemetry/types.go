package telemetry

import "time"

// Run is one simulation run in the reading table.
type Run struct {
	RunID    string    `json:"run_id"`
	Scenario string    `json:"scenario"`
	Readings int       `json:"readings"`
	FirstAt  time.Time `json:"first_at"`
	LastAt   time.Time `json:"last_at"`
}

// DataStatistics represents statistical measures for a data series
type DataStatistics struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Range    float64 `json:"range"`
	Median   float64 `json:"median"`
}

// SensorStatistics holds one DataStatistics per sensor. Series without data
// are nil.
type SensorStatistics struct {
	RunID       string          `json:"run_id"`
	Battery     *DataStatistics `json:"battery,omitempty"`
	Temperature *DataStatistics `json:"temperature,omitempty"`
	Distance    *DataStatistics `json:"distance,omitempty"`
	Speed       *DataStatistics `json:"speed,omitempty"`
	Value       *DataStatistics `json:"value,omitempty"`

	// VarianceOverTime is set when a window is requested.
	VarianceOverTime map[string][]float64 `json:"variance_over_time,omitempty"`
	Window           int                  `json:"window,omitempty"`
}
