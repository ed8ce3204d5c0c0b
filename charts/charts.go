// Package charts renders the factory layout and the sensor time series as
// PNG images for the dashboard.
package charts

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/fkdmshk/agv-simulation/factory"
	"github.com/fkdmshk/agv-simulation/sensors"
)

const (
	Width  = 640
	Height = 360
)

var (
	colorNear  = chart.ColorGreen
	colorFar   = chart.ColorRed
	colorAGV   = chart.ColorBlue
	colorEmpty = drawing.ColorTransparent
)

// pointStyle renders points only, no connecting line.
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    8,
		DotColor:    col,
	}
}

// pad repeats a lone point; go-chart rejects single-value series.
func pad(xs, ys []float64) ([]float64, []float64) {
	if len(xs) == 1 {
		return []float64{xs[0], xs[0]}, []float64{ys[0], ys[0]}
	}
	return xs, ys
}

// padStep extends a lone point one step to the right so the x range is not
// empty.
func padStep(xs, ys []float64) ([]float64, []float64) {
	if len(xs) == 1 {
		return []float64{xs[0], xs[0] + 1}, []float64{ys[0], ys[0]}
	}
	return xs, ys
}

// FactoryLayout draws the machines (green when near the AGV, red otherwise)
// with their names above them, and the AGV as a blue dot. Axes are fixed to
// the layout ranges.
func FactoryLayout(layout *factory.Layout, states []factory.MachineState, agv *factory.Point) ([]byte, error) {
	if len(states) == 0 {
		states = layout.States(factory.Point{}, 0)
	}

	mx := make([]float64, 0, len(states))
	my := make([]float64, 0, len(states))
	labels := make([]chart.Value2, 0, len(states))
	for _, s := range states {
		mx = append(mx, s.Position.X)
		my = append(my, s.Position.Y)
		labels = append(labels, chart.Value2{XValue: s.Position.X, YValue: s.Position.Y + 0.3, Label: s.Name})
	}

	machineStyle := pointStyle(colorFar)
	machineStyle.DotColorProvider = func(_, _ chart.Range, index int, _, _ float64) drawing.Color {
		if index < len(states) && states[index].Near {
			return colorNear
		}
		return colorFar
	}
	mx, my = pad(mx, my)

	series := []chart.Series{
		chart.ContinuousSeries{Name: "Machines", XValues: mx, YValues: my, Style: machineStyle},
		chart.AnnotationSeries{Annotations: labels},
	}
	if agv != nil {
		ax, ay := pad([]float64{agv.X}, []float64{agv.Y})
		series = append(series, chart.ContinuousSeries{Name: "AGV", XValues: ax, YValues: ay, Style: pointStyle(colorAGV)})
	}

	ch := chart.Chart{
		Title:      "Factory layout",
		Width:      Width,
		Height:     Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:  "X",
			Range: &chart.ContinuousRange{Min: layout.XRange.Min, Max: layout.XRange.Max},
			Ticks: unitTicks(layout.XRange),
		},
		YAxis: chart.YAxis{
			Name:  "Y",
			Range: &chart.ContinuousRange{Min: layout.YRange.Min, Max: layout.YRange.Max},
			Ticks: unitTicks(layout.YRange),
		},
		Series: series,
	}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render factory layout: %w", err)
	}
	return buf.Bytes(), nil
}

func unitTicks(r factory.Range) []chart.Tick {
	var ticks []chart.Tick
	for v := r.Min; v <= r.Max; v++ {
		ticks = append(ticks, chart.Tick{Value: v, Label: fmt.Sprintf("%g", v)})
	}
	return ticks
}

type sensorLine struct {
	name  string
	color drawing.Color
	value func(sensors.Reading) float64
}

var sensorLines = []sensorLine{
	{"Battery (%)", chart.ColorGreen, func(r sensors.Reading) float64 { return r.Battery }},
	{"Temperature (C)", chart.ColorRed, func(r sensors.Reading) float64 { return r.Temperature }},
	{"Distance (m)", chart.ColorBlue, func(r sensors.Reading) float64 { return r.Distance }},
	{"Speed (m/s)", chart.ColorOrange, func(r sensors.Reading) float64 { return r.Speed }},
}

// SensorSeries draws one line per sensor over the step index. Unit-sensor
// runs are drawn as a single value line on [0, 1].
func SensorSeries(readings []sensors.Reading) ([]byte, error) {
	ch := chart.Chart{
		Title:      "Sensor data",
		Width:      Width,
		Height:     Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Name: "Step"},
		YAxis:      chart.YAxis{Name: "Value", Range: &chart.ContinuousRange{Min: 0, Max: 100}},
	}

	var four, unit []sensors.Reading
	for _, r := range readings {
		if r.IsUnit() {
			unit = append(unit, r)
		} else {
			four = append(four, r)
		}
	}

	switch {
	case len(four) > 0:
		xs := steps(four)
		for _, line := range sensorLines {
			ys := make([]float64, 0, len(four))
			for _, r := range four {
				ys = append(ys, line.value(r))
			}
			px, py := padStep(xs, ys)
			ch.Series = append(ch.Series, chart.ContinuousSeries{
				Name:    line.name,
				XValues: px,
				YValues: py,
				Style:   chart.Style{StrokeColor: line.color, StrokeWidth: 2},
			})
		}
	case len(unit) > 0:
		ys := make([]float64, 0, len(unit))
		for _, r := range unit {
			ys = append(ys, r.Value)
		}
		px, py := padStep(steps(unit), ys)
		ch.YAxis.Range = &chart.ContinuousRange{Min: 0, Max: 1}
		ch.Series = []chart.Series{chart.ContinuousSeries{
			Name:    "Sensor value",
			XValues: px,
			YValues: py,
			Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 2, DotWidth: 3, DotColor: chart.ColorBlue},
		}}
	default:
		ch.XAxis.Range = &chart.ContinuousRange{Min: 0, Max: 1}
		ch.Series = []chart.Series{chart.ContinuousSeries{
			XValues: []float64{0, 1},
			YValues: []float64{0, 0},
			Style:   chart.Style{StrokeColor: colorEmpty, StrokeWidth: 1},
		}}
	}

	if len(readings) > 0 {
		ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render sensor chart: %w", err)
	}
	return buf.Bytes(), nil
}

func steps(readings []sensors.Reading) []float64 {
	xs := make([]float64, 0, len(readings))
	for _, r := range readings {
		xs = append(xs, float64(r.Step))
	}
	return xs
}
