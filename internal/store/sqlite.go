// Package store maintains a SQLite index of extraction results. The
// append-only results log stays the canonical record; the index exists so
// results can be queried without re-scanning the log.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"epicflow/config"
	"epicflow/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	observation     TEXT NOT NULL,
	candidate_id    TEXT NOT NULL,
	source_name     TEXT NOT NULL,
	instrument      TEXT NOT NULL,
	detection_level REAL NOT NULL,
	time_window     REAL NOT NULL,
	p_chi_square    REAL NOT NULL,
	p_ks            REAL NOT NULL,
	recorded_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_results_observation ON results(observation);
`

// Index is a queryable mirror of the results log.
type Index struct {
	db *sql.DB
}

// Open opens or creates the index database at path.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open results index: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize results index: %w", err)
	}
	return &Index{db: db}, nil
}

// Record inserts one extraction result.
func (i *Index) Record(res model.LightcurveResult) error {
	_, err := i.db.Exec(
		`INSERT INTO results (observation, candidate_id, source_name, instrument,
			detection_level, time_window, p_chi_square, p_ks)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.Observation, res.CandidateID, res.SourceName, string(res.Instrument),
		res.DetectionLevel, res.TimeWindow, res.PChiSquare, res.PKolmogorov,
	)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

// ByObservation returns every recorded result for one observation, in
// insertion order.
func (i *Index) ByObservation(obsID string) ([]model.LightcurveResult, error) {
	rows, err := i.db.Query(
		`SELECT observation, candidate_id, source_name, instrument,
			detection_level, time_window, p_chi_square, p_ks
		 FROM results WHERE observation = ? ORDER BY id`, obsID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	return collect(rows)
}

// Variable returns every result whose chi-square or KS probability of
// constancy falls below the threshold.
func (i *Index) Variable(maxProb float64) ([]model.LightcurveResult, error) {
	rows, err := i.db.Query(
		`SELECT observation, candidate_id, source_name, instrument,
			detection_level, time_window, p_chi_square, p_ks
		 FROM results WHERE p_chi_square < ? OR p_ks < ? ORDER BY id`, maxProb, maxProb)
	if err != nil {
		return nil, fmt.Errorf("query variable results: %w", err)
	}
	return collect(rows)
}

func (i *Index) Close() error {
	return i.db.Close()
}

func collect(rows *sql.Rows) ([]model.LightcurveResult, error) {
	defer rows.Close()

	var out []model.LightcurveResult
	for rows.Next() {
		var r model.LightcurveResult
		var inst string
		if err := rows.Scan(&r.Observation, &r.CandidateID, &r.SourceName, &inst,
			&r.DetectionLevel, &r.TimeWindow, &r.PChiSquare, &r.PKolmogorov); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		r.Instrument = config.Instrument(inst)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return out, nil
}
