// Package history keeps a SQLite log of finished iterations so past runs
// can be inspected after the runtime directory's snapshots were overwritten.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/forgekit/forge/internal/domain"
)

// Store provides SQLite-backed iteration persistence
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the iteration database at dbPath
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one iteration row, assigning an id when the record has none
func (s *Store) Record(rec domain.IterationRecord) error {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO iterations (id, loop_number, progress, circuit_state, no_progress_count, summary, duration_ms, session_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		rec.Loop,
		rec.Progress,
		string(rec.CircuitState),
		rec.NoProgressCount,
		rec.Summary,
		rec.Duration.Milliseconds(),
		rec.SessionID,
		recordedAt.UTC(),
	)
	return err
}

// Recent returns up to limit iteration rows, newest first
func (s *Store) Recent(limit int) ([]domain.IterationRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, loop_number, progress, circuit_state, no_progress_count, summary, duration_ms, session_id, recorded_at
		FROM iterations ORDER BY recorded_at DESC, loop_number DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.IterationRecord
	for rows.Next() {
		var rec domain.IterationRecord
		var circuitState string
		var durationMs int64
		if err := rows.Scan(
			&rec.ID,
			&rec.Loop,
			&rec.Progress,
			&circuitState,
			&rec.NoProgressCount,
			&rec.Summary,
			&durationMs,
			&rec.SessionID,
			&rec.RecordedAt,
		); err != nil {
			return nil, err
		}
		rec.CircuitState = domain.CircuitState(circuitState)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountByOutcome returns how many recorded iterations made progress and how
// many did not
func (s *Store) CountByOutcome() (progressed, stalled int, err error) {
	err = s.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN progress THEN 1 END),
			COUNT(CASE WHEN NOT progress THEN 1 END)
		FROM iterations
	`).Scan(&progressed, &stalled)
	return progressed, stalled, err
}
