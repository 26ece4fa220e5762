package bench

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// RunSummary is one row of the run history listing.
type RunSummary struct {
	ID           string
	Model        string
	Mode         string
	StartedAt    time.Time
	Rounds       int
	AvgEvalTPS   float64
	OutputTokens int
}

// Store keeps benchmark run history in a sqlite database under the data
// dir, so runs on different models and machines can be compared later.
type Store struct {
	db *sql.DB
}

func NewStore(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "bench.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bench_runs (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		mode TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		rounds INTEGER NOT NULL,
		avg_eval_tps REAL NOT NULL,
		output_tokens INTEGER NOT NULL,
		report_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bench_runs_model ON bench_runs(model);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save records a finished run, keeping the full report as JSON alongside
// the queryable summary columns.
func (s *Store) Save(report *Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO bench_runs (id, model, mode, started_at, rounds, avg_eval_tps, output_tokens, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.Model, report.Mode, report.StartedAt,
		len(report.Rounds), report.AvgEvalTPS(), report.TotalOutputTokens(), string(data))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(limit int) ([]RunSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, model, mode, started_at, rounds, avg_eval_tps, output_tokens
		FROM bench_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Model, &r.Mode, &r.StartedAt,
			&r.Rounds, &r.AvgEvalTPS, &r.OutputTokens); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get loads one full report back from history.
func (s *Store) Get(id string) (*Report, error) {
	var data string
	err := s.db.QueryRow(`SELECT report_json FROM bench_runs WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	var report Report
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &report, nil
}
