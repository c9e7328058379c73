package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mtzanidakis/vigla/internal/swarm"
)

type Run struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	WindowFrom string     `json:"window_from"`
	WindowTo   string     `json:"window_to"`
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Partial    int        `json:"partial"`
	Failed     int        `json:"failed"`
	Ticketed   int        `json:"ticketed"`
	SummaryKey string     `json:"summary_key,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type RunResult struct {
	RunID     string `json:"run_id"`
	Service   string `json:"service"`
	Outcome   string `json:"outcome"`
	Severity  string `json:"severity"`
	TicketID  string `json:"ticket_id,omitempty"`
	ReportKey string `json:"report_key,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

func (s *Store) CreateRun(r *Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, status, window_from, window_to)
		VALUES (?, 'running', ?, ?)`,
		r.ID, r.WindowFrom, r.WindowTo)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) FinishRun(r *Run) error {
	_, err := s.db.Exec(`
		UPDATE runs SET
			status = ?, total = ?, succeeded = ?, partial = ?, failed = ?,
			ticketed = ?, summary_key = ?, error = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		r.Status, r.Total, r.Succeeded, r.Partial, r.Failed,
		r.Ticketed, r.SummaryKey, r.Error, r.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, status, window_from, window_to, total, succeeded, partial,
		       failed, ticketed, summary_key, error, started_at, finished_at
		FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, status, window_from, window_to, total, succeeded, partial,
		       failed, ticketed, summary_key, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// SaveResults inserts all pipeline results for a run in one transaction.
func (s *Store) SaveResults(runID string, results []swarm.PipelineResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, r := range results {
		if _, err := tx.Exec(`
			INSERT INTO run_results (run_id, service, outcome, severity, ticket_id, report_key, error, elapsed_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, r.Service, r.Outcome.String(), r.Severity.String(),
			r.TicketID, r.ReportKey, r.Err, r.Elapsed.Milliseconds()); err != nil {
			return fmt.Errorf("insert result for %s: %w", r.Service, err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetRunResults(runID string) ([]RunResult, error) {
	rows, err := s.db.Query(`
		SELECT run_id, service, outcome, severity, ticket_id, report_key, error, elapsed_ms
		FROM run_results WHERE run_id = ? ORDER BY service`, runID)
	if err != nil {
		return nil, fmt.Errorf("get run results: %w", err)
	}
	defer rows.Close()

	var results []RunResult
	for rows.Next() {
		var r RunResult
		var ticketID, reportKey, errText sql.NullString
		if err := rows.Scan(&r.RunID, &r.Service, &r.Outcome, &r.Severity,
			&ticketID, &reportKey, &errText, &r.ElapsedMs); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.TicketID = ticketID.String
		r.ReportKey = reportKey.String
		r.Error = errText.String
		results = append(results, r)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	r := &Run{}
	var summaryKey, errText sql.NullString
	var finishedAt sql.NullTime
	err := sc.Scan(&r.ID, &r.Status, &r.WindowFrom, &r.WindowTo, &r.Total,
		&r.Succeeded, &r.Partial, &r.Failed, &r.Ticketed,
		&summaryKey, &errText, &r.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	r.SummaryKey = summaryKey.String
	r.Error = errText.String
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	return r, nil
}
