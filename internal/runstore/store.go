// Package runstore provides SQLite-backed persistence of pipeline runs,
// their attempts, and their event trail.
package runstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowsmith/flowsmith/internal/domain"
)

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun persists a finished run and its attempts. Saving the same run ID
// again replaces the previous record.
func (s *Store) SaveRun(res *domain.RunResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, repo, issue_number, issue_title, branch, outcome, plan, review, review_note, final_attempt, failing_gates, error, pr_url, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			outcome = excluded.outcome,
			branch = excluded.branch,
			review = excluded.review,
			review_note = excluded.review_note,
			final_attempt = excluded.final_attempt,
			failing_gates = excluded.failing_gates,
			error = excluded.error,
			pr_url = excluded.pr_url,
			finished_at = excluded.finished_at
	`,
		res.RunID,
		res.Repo,
		res.Issue.Number,
		res.Issue.Title,
		res.Branch,
		string(res.Outcome),
		res.Plan,
		res.Review,
		res.ReviewNote,
		res.FinalAttempt,
		strings.Join(res.FailingGates, ","),
		res.Error,
		res.PRURL,
		res.StartedAt,
		res.FinishedAt,
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM attempts WHERE run_id = ?`, res.RunID); err != nil {
		return err
	}
	for _, a := range res.Attempts {
		gatesJSON, err := json.Marshal(a.Gates)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO attempts (run_id, attempt_index, feedback, gates, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, res.RunID, a.Index, a.Feedback, string(gatesJSON), a.StartedAt, a.FinishedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run and its attempts by ID
func (s *Store) GetRun(id string) (*domain.RunResult, error) {
	row := s.db.QueryRow(`
		SELECT id, repo, issue_number, issue_title, branch, outcome, plan, review, review_note, final_attempt, failing_gates, error, pr_url, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)

	res, err := scanRun(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT attempt_index, feedback, gates, started_at, finished_at
		FROM attempts WHERE run_id = ? ORDER BY attempt_index
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.Attempt
		var gatesJSON string
		if err := rows.Scan(&a.Index, &a.Feedback, &gatesJSON, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, err
		}
		if gatesJSON != "" {
			if err := json.Unmarshal([]byte(gatesJSON), &a.Gates); err != nil {
				return nil, err
			}
		}
		res.Attempts = append(res.Attempts, a)
	}
	return res, rows.Err()
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(limit int) ([]*domain.RunResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, repo, issue_number, issue_title, branch, outcome, plan, review, review_note, final_attempt, failing_gates, error, pr_url, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.RunResult
	for rows.Next() {
		res, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, res)
	}
	return runs, rows.Err()
}

// ListRunsForIssue returns all runs for one issue, newest first
func (s *Store) ListRunsForIssue(repo string, issue int) ([]*domain.RunResult, error) {
	rows, err := s.db.Query(`
		SELECT id, repo, issue_number, issue_title, branch, outcome, plan, review, review_note, final_attempt, failing_gates, error, pr_url, started_at, finished_at
		FROM runs WHERE repo = ? AND issue_number = ? ORDER BY started_at DESC
	`, repo, issue)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.RunResult
	for rows.Next() {
		res, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, res)
	}
	return runs, rows.Err()
}

// AppendEvent persists one pipeline event
func (s *Store) AppendEvent(ev domain.Event) error {
	_, err := s.db.Exec(`
		INSERT INTO events (run_id, issue_number, state, attempt, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.RunID, ev.Issue, string(ev.State), ev.Attempt, ev.Message, ev.Timestamp)
	return err
}

// ListEvents returns a run's events in insertion order
func (s *Store) ListEvents(runID string) ([]domain.Event, error) {
	rows, err := s.db.Query(`
		SELECT run_id, issue_number, state, attempt, message, timestamp
		FROM events WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		var state string
		var ts time.Time
		if err := rows.Scan(&ev.RunID, &ev.Issue, &state, &ev.Attempt, &ev.Message, &ts); err != nil {
			return nil, err
		}
		ev.State = domain.State(state)
		ev.Timestamp = ts
		events = append(events, ev)
	}
	return events, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*domain.RunResult, error) {
	var res domain.RunResult
	var outcome, failingGates string
	err := row.Scan(
		&res.RunID,
		&res.Repo,
		&res.Issue.Number,
		&res.Issue.Title,
		&res.Branch,
		&outcome,
		&res.Plan,
		&res.Review,
		&res.ReviewNote,
		&res.FinalAttempt,
		&failingGates,
		&res.Error,
		&res.PRURL,
		&res.StartedAt,
		&res.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	res.Outcome = domain.Outcome(outcome)
	if failingGates != "" {
		res.FailingGates = strings.Split(failingGates, ",")
	}
	return &res, nil
}

// Sink adapts the store to the pipeline's event sink. Persistence failures
// are swallowed: losing an event row must never affect a run.
type Sink struct {
	Store *Store
}

// Handle persists the event
func (s *Sink) Handle(ev domain.Event) {
	_ = s.Store.AppendEvent(ev)
}
