package telemetry

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fkdmshk/agv-simulation/sensors"
)

type series struct {
	file   string
	header string
	value  func(sensors.Reading) float64
}

var csvSeries = []series{
	{"battery.csv", "Battery (%)", func(r sensors.Reading) float64 { return r.Battery }},
	{"temperature.csv", "Temperature (C)", func(r sensors.Reading) float64 { return r.Temperature }},
	{"distance.csv", "Distance (m)", func(r sensors.Reading) float64 { return r.Distance }},
	{"speed.csv", "Speed (m/s)", func(r sensors.Reading) float64 { return r.Speed }},
}

// ExportReadingsToCSV writes a ZIP archive with one CSV file per sensor.
func ExportReadingsToCSV(readings []sensors.Reading) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	for _, s := range csvSeries {
		data, err := generateSeriesCSV(readings, s)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s: %w", s.file, err)
		}
		f, err := w.Create(s.file)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s in zip: %w", s.file, err)
		}
		if _, err := f.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", s.file, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip writer: %w", err)
	}
	return buf, nil
}

func generateSeriesCSV(readings []sensors.Reading, s series) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	if err := writer.Write([]string{"Step", s.header}); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range readings {
		if r.IsUnit() {
			continue
		}
		row := []string{fmt.Sprintf("%d", r.Step), fmt.Sprintf("%.2f", s.value(r))}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

const xlsxSheet = "Sheet1"

// ExportReadingsToXLSX writes the reading table as a single-sheet workbook.
func ExportReadingsToXLSX(readings []sensors.Reading) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	header := []interface{}{"Kind", "Step", "Battery (%)", "Temperature (C)", "Distance (m)", "Speed (m/s)", "Value", "Recorded at"}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header row: %w", err)
	}

	for i, r := range readings {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{string(r.Kind), r.Step, r.Battery, r.Temperature, r.Distance, r.Speed, r.Value, r.RecordedAt.Format(time.RFC3339)}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf, nil
}

// GenerateExportFilename builds the download name for a run export.
func GenerateExportFilename(runID, ext string) string {
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return fmt.Sprintf("readings_%s_%s.%s", runID, time.Now().Format("20060102_150405"), ext)
}
