// Package history persists per-round run metrics to a sqlite database so
// finished experiments can be compared across runs.
package history

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS rounds (
	run_id          TEXT    NOT NULL,
	round           INTEGER NOT NULL,
	train_loss      REAL    NOT NULL,
	train_accuracy  REAL    NOT NULL,
	eval_loss       REAL    NOT NULL,
	eval_accuracy   REAL    NOT NULL,
	cumulative_cost REAL    NOT NULL,
	created_at      TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (run_id, round)
);`

// RoundRecord is one persisted round of one run.
type RoundRecord struct {
	RunId          string
	Round          int
	TrainLoss      float64
	TrainAccuracy  float64
	EvalLoss       float64
	EvalAccuracy   float64
	CumulativeCost float64
}

// Store is a sqlite-backed record of run histories.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRound upserts one round of a run.
func (s *Store) RecordRound(record RoundRecord) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO rounds
			(run_id, round, train_loss, train_accuracy, eval_loss, eval_accuracy, cumulative_cost)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.RunId, record.Round, record.TrainLoss, record.TrainAccuracy,
		record.EvalLoss, record.EvalAccuracy, record.CumulativeCost,
	)
	if err != nil {
		return fmt.Errorf("recording round %d of run %s: %w", record.Round, record.RunId, err)
	}
	return nil
}

// RunRounds returns all rounds of one run in order.
func (s *Store) RunRounds(runId string) ([]RoundRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, round, train_loss, train_accuracy, eval_loss, eval_accuracy, cumulative_cost
		 FROM rounds WHERE run_id = ? ORDER BY round`, runId)
	if err != nil {
		return nil, fmt.Errorf("querying rounds of run %s: %w", runId, err)
	}
	defer rows.Close()

	records := []RoundRecord{}
	for rows.Next() {
		var r RoundRecord
		if err := rows.Scan(&r.RunId, &r.Round, &r.TrainLoss, &r.TrainAccuracy,
			&r.EvalLoss, &r.EvalAccuracy, &r.CumulativeCost); err != nil {
			return nil, fmt.Errorf("scanning round of run %s: %w", runId, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
