// Package telemetry keeps the sensor-reading table of the current process and
// serves its statistics and exports. The table lives in an in-memory SQLite
// database and is gone when the process exits.
package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fkdmshk/agv-simulation/sensors"
)

var ErrNoReadings = errors.New("no readings recorded")

const schema = `
CREATE TABLE IF NOT EXISTS reading (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL,
	scenario    TEXT    NOT NULL,
	kind        TEXT    NOT NULL,
	step        INTEGER NOT NULL,
	battery     REAL    NOT NULL,
	temperature REAL    NOT NULL,
	distance    REAL    NOT NULL,
	speed       REAL    NOT NULL,
	value       REAL    NOT NULL,
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS reading_run ON reading(run_id, id);
`

// Store is the reading table.
type Store struct {
	db *sql.DB
}

// Open creates an empty in-memory table.
func Open() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open reading table: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping reading table: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create reading schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one reading to the run's rows.
func (s *Store) Record(ctx context.Context, runID, scenario string, r sensors.Reading) error {
	at := r.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}
	kind := r.Kind
	if kind == "" {
		kind = sensors.KindSample
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reading (run_id, scenario, kind, step, battery, temperature, distance, speed, value, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, scenario, string(kind), r.Step, r.Battery, r.Temperature, r.Distance, r.Speed, r.Value, at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record reading: %w", err)
	}
	return nil
}

// Readings returns the rows of runID in insertion order.
func (s *Store) Readings(ctx context.Context, runID string) ([]sensors.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, step, battery, temperature, distance, speed, value, recorded_at
		FROM reading WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []sensors.Reading
	for rows.Next() {
		var r sensors.Reading
		var kind string
		var at int64
		if err := rows.Scan(&kind, &r.Step, &r.Battery, &r.Temperature, &r.Distance, &r.Speed, &r.Value, &at); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Kind = sensors.Kind(kind)
		r.RecordedAt = time.Unix(0, at)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// Runs lists the recorded runs, most recent first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, scenario, COUNT(*), MIN(recorded_at), MAX(recorded_at), MAX(id) AS last_id
		FROM reading GROUP BY run_id, scenario ORDER BY last_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var first, last, lastID int64
		if err := rows.Scan(&run.RunID, &run.Scenario, &run.Readings, &first, &last, &lastID); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.FirstAt = time.Unix(0, first)
		run.LastAt = time.Unix(0, last)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the id of the run with the most recent reading.
func (s *Store) LatestRun(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `SELECT run_id FROM reading ORDER BY id DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoReadings
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest run: %w", err)
	}
	return runID, nil
}

// Reset drops every row.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reading`); err != nil {
		return fmt.Errorf("failed to reset readings: %w", err)
	}
	return nil
}
