package telemetry

import (
	"math"
	"slices"

	"github.com/fkdmshk/agv-simulation/sensors"
)

// readingSeries splits a run into one slice per sensor. Unit-sensor readings
// (proximity scenario) only feed the value series.
type readingSeries struct {
	battery, temperature, distance, speed, value []float64
}

func splitSeries(readings []sensors.Reading) readingSeries {
	var s readingSeries
	for _, r := range readings {
		if r.IsUnit() {
			s.value = append(s.value, r.Value)
			continue
		}
		s.battery = append(s.battery, r.Battery)
		s.temperature = append(s.temperature, r.Temperature)
		s.distance = append(s.distance, r.Distance)
		s.speed = append(s.speed, r.Speed)
	}
	return s
}

// CalculateSensorStatistics computes per-sensor statistics for a run.
func CalculateSensorStatistics(runID string, readings []sensors.Reading) *SensorStatistics {
	s := splitSeries(readings)
	return &SensorStatistics{
		RunID:       runID,
		Battery:     calculateDataStatistics(s.battery),
		Temperature: calculateDataStatistics(s.temperature),
		Distance:    calculateDataStatistics(s.distance),
		Speed:       calculateDataStatistics(s.speed),
		Value:       calculateDataStatistics(s.value),
	}
}

// VarianceBySensor applies CalculateVarianceOverTime to every sensor series.
// Series shorter than the window are left out.
func VarianceBySensor(readings []sensors.Reading, windowSize int) map[string][]float64 {
	s := splitSeries(readings)
	out := make(map[string][]float64)
	for name, data := range map[string][]float64{
		"battery":     s.battery,
		"temperature": s.temperature,
		"distance":    s.distance,
		"speed":       s.speed,
		"value":       s.value,
	} {
		if v := CalculateVarianceOverTime(data, windowSize); len(v) > 0 {
			out[name] = v
		}
	}
	return out
}

// calculateDataStatistics calculates comprehensive statistics for a data series
func calculateDataStatistics(data []float64) *DataStatistics {
	if len(data) == 0 {
		return nil
	}

	sorted := slices.Clone(data)
	slices.Sort(sorted)

	count := len(data)
	lo, hi := sorted[0], sorted[count-1]

	sum := 0.0
	for _, v := range data {
		sum += v
	}
	mean := sum / float64(count)

	sumSquaredDiff := 0.0
	for _, v := range data {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	variance := sumSquaredDiff / float64(count)

	var median float64
	if count%2 == 0 {
		median = (sorted[count/2-1] + sorted[count/2]) / 2
	} else {
		median = sorted[count/2]
	}

	return &DataStatistics{
		Count:    count,
		Mean:     mean,
		Variance: variance,
		StdDev:   math.Sqrt(variance),
		Min:      lo,
		Max:      hi,
		Range:    hi - lo,
		Median:   median,
	}
}

// CalculateVarianceOverTime returns the population variance of every window
// of windowSize consecutive values, keeping running sums as the window slides.
func CalculateVarianceOverTime(data []float64, windowSize int) []float64 {
	if windowSize <= 1 || len(data) < windowSize {
		return nil
	}

	n := float64(windowSize)
	var sum, sumSq float64
	for _, v := range data[:windowSize] {
		sum += v
		sumSq += v * v
	}

	out := make([]float64, 0, len(data)-windowSize+1)
	for i := windowSize; ; i++ {
		mean := sum / n
		out = append(out, math.Max(sumSq/n-mean*mean, 0))
		if i == len(data) {
			return out
		}
		in, old := data[i], data[i-windowSize]
		sum += in - old
		sumSq += in*in - old*old
	}
}
