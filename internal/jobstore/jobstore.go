package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-transcoder/internal/logging"
	"media-transcoder/internal/metrics"
)

// Default timeout for ledger operations
const defaultTimeout = 5 * time.Second

// Record is the terminal outcome of one encode job.
type Record struct {
	JobID      string    `json:"jobId"`
	RequestID  string    `json:"requestId"`
	Position   int       `json:"position"` // index of the preset in the request
	Preset     string    `json:"preset"`
	State      string    `json:"state"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
	InputPath  string    `json:"inputPath"`
	OutputPath string    `json:"outputPath,omitempty"`
	ElapsedMs  int64     `json:"elapsedMs"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Store is the SQLite job ledger.
type Store struct {
	db     *sql.DB
	dbPath string
}

// New opens (creating if needed) the ledger at dbPath. The parent
// directory must exist and be writable.
func New(ctx context.Context, dbPath string) (*Store, error) {
	logging.Info("Job ledger path: %s", dbPath)

	if err := checkDirectory(dbPath); err != nil {
		return nil, err
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open job ledger: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close job ledger after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to job ledger: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close job ledger after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize job ledger schema: %w", err)
	}

	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS jobs (
		job_id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		preset TEXT NOT NULL,
		state TEXT NOT NULL,
		code TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		input_path TEXT NOT NULL,
		output_path TEXT NOT NULL DEFAULT '',
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		finished_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_request ON jobs(request_id, position);
	CREATE INDEX IF NOT EXISTS idx_jobs_finished ON jobs(finished_at);
	`)
	recordQuery("initialize_schema", start, err)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces the record for rec.JobID.
func (s *Store) Save(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}

	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO jobs
			(job_id, request_id, position, preset, state, code, message, input_path, output_path, elapsed_ms, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.RequestID, rec.Position, rec.Preset, rec.State, rec.Code, rec.Message,
		rec.InputPath, rec.OutputPath, rec.ElapsedMs, rec.FinishedAt.UnixMilli(),
	)
	recordQuery("record_job", start, err)
	if err != nil {
		return fmt.Errorf("failed to record job %s: %w", rec.JobID, err)
	}
	return nil
}

// JobsForRequest returns a request's records in request order.
func (s *Store) JobsForRequest(ctx context.Context, requestID string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, request_id, position, preset, state, code, message, input_path, output_path, elapsed_ms, finished_at
		FROM jobs WHERE request_id = ? ORDER BY position`, requestID)
	if err != nil {
		recordQuery("jobs_for_request", start, err)
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logging.Warn("failed to close rows: %v", cerr)
		}
	}()

	var records []Record
	for rows.Next() {
		var rec Record
		var finished int64
		if err := rows.Scan(&rec.JobID, &rec.RequestID, &rec.Position, &rec.Preset, &rec.State,
			&rec.Code, &rec.Message, &rec.InputPath, &rec.OutputPath, &rec.ElapsedMs, &finished); err != nil {
			recordQuery("jobs_for_request", start, err)
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		rec.FinishedAt = time.UnixMilli(finished)
		records = append(records, rec)
	}
	err = rows.Err()
	recordQuery("jobs_for_request", start, err)
	return records, err
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n)
	recordQuery("count_jobs", start, err)
	return n, err
}

// Prune deletes records finished before cutoff and returns how many.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE finished_at < ?`, cutoff.UnixMilli())
	recordQuery("prune", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	return res.RowsAffected()
}

func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func checkDirectory(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("cannot stat job ledger directory: %w", err)
	}

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("job ledger directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}
