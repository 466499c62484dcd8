package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"rebind/internal/config"
)

// ErrNotFound is returned when a job id does not exist.
var ErrNotFound = errors.New("job not found")

// ErrLocked is returned when another process holds the queue database.
var ErrLocked = errors.New("queue database locked by another process")

// ErrInvalidTransition is returned when a status update would move a job
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

// Open initializes or connects to the queue database, guards it with a file
// lock and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "queue.db")
	lock := flock.New(dbPath + ".lock")
	held, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire queue lock: %w", err)
	}
	if !held {
		return nil, ErrLocked
	}

	// The pragmas must ride the DSN: database/sql pools connections, and a
	// PRAGMA issued with Exec reaches only the one connection that ran it.
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, lock: lock}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return store, nil
}

// Close releases the database connection and the file lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// NewJob inserts a pending conversion job.
func (s *Store) NewJob(ctx context.Context, sourcePath, outputDir, deviceProfile string) (*Job, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            source_path, output_dir, device_profile, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?)`,
		sourcePath,
		outputDir,
		deviceProfile,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a single job.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, selectJobSQL+" WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return job, err
}

// UpdateJob persists the mutable fields of a job, enforcing the forward-only
// status lifecycle against the stored row.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	current, err := s.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if current.Status != job.Status && !current.Status.CanTransition(job.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, job.Status)
	}

	job.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE jobs SET
            output_path = ?, status = ?, progress_stage = ?, progress_percent = ?,
            progress_message = ?, page_count = ?, work_dir = ?, diagnostic_log = ?,
            error_message = ?, updated_at = ?
        WHERE id = ?`,
		job.OutputPath,
		job.Status,
		job.ProgressStage,
		job.ProgressPercent,
		job.ProgressMessage,
		job.PageCount,
		job.WorkDir,
		job.DiagnosticLog,
		job.ErrorMessage,
		job.UpdatedAt.Format(time.RFC3339Nano),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job %d: %w", job.ID, err)
	}
	return nil
}

// List returns all jobs ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, selectJobSQL+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListByStatus returns jobs in any of the given statuses, ordered by id.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Job, error) {
	if len(statuses) == 0 {
		return s.List(ctx)
	}
	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	rows, err := s.db.QueryContext(ctx,
		selectJobSQL+" WHERE status IN ("+placeholders+") ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// AppendErrorRecord attaches a structured failure to a job. Records are
// append-only.
func (s *Store) AppendErrorRecord(ctx context.Context, record *ErrorRecord) error {
	contextJSON := "{}"
	if len(record.Context) > 0 {
		data, err := json.Marshal(record.Context)
		if err != nil {
			return fmt.Errorf("marshal error context: %w", err)
		}
		contextJSON = string(data)
	}
	record.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO error_records (job_id, kind, stage, message, context_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		record.JobID,
		record.Kind,
		record.Stage,
		record.Message,
		contextJSON,
		record.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert error record: %w", err)
	}
	record.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return nil
}

// ErrorRecords returns a job's failures in insertion order.
func (s *Store) ErrorRecords(ctx context.Context, jobID int64) ([]*ErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, kind, stage, message, context_json, created_at
         FROM error_records WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list error records: %w", err)
	}
	defer rows.Close()

	var records []*ErrorRecord
	for rows.Next() {
		var rec ErrorRecord
		var contextJSON, createdAt string
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.Kind, &rec.Stage, &rec.Message, &contextJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		if contextJSON != "" && contextJSON != "{}" {
			if err := json.Unmarshal([]byte(contextJSON), &rec.Context); err != nil {
				return nil, fmt.Errorf("unmarshal error context: %w", err)
			}
		}
		rec.CreatedAt = parseTimestamp(createdAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// ClearFinished removes completed and failed jobs, returning the count.
func (s *Store) ClearFinished(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM jobs WHERE status IN (?, ?)", StatusCompleted, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear finished jobs: %w", err)
	}
	return res.RowsAffected()
}

// Health aggregates queue counts per lifecycle state.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM jobs GROUP BY status")
	if err != nil {
		return HealthSummary{}, fmt.Errorf("queue health: %w", err)
	}
	defer rows.Close()

	var summary HealthSummary
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return HealthSummary{}, fmt.Errorf("scan health row: %w", err)
		}
		summary.Total += count
		switch {
		case status == StatusPending:
			summary.Pending += count
		case status == StatusCompleted:
			summary.Completed += count
		case status == StatusFailed:
			summary.Failed += count
		case status.IsProcessing():
			summary.Processing += count
		}
	}
	return summary, rows.Err()
}

const selectJobSQL = `SELECT
    id, source_path, output_dir, output_path, device_profile, status,
    progress_stage, progress_percent, progress_message, page_count,
    work_dir, diagnostic_log, error_message, created_at, updated_at
FROM jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var status, createdAt, updatedAt string
	err := row.Scan(
		&job.ID,
		&job.SourcePath,
		&job.OutputDir,
		&job.OutputPath,
		&job.DeviceProfile,
		&status,
		&job.ProgressStage,
		&job.ProgressPercent,
		&job.ProgressMessage,
		&job.PageCount,
		&job.WorkDir,
		&job.DiagnosticLog,
		&job.ErrorMessage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = Status(status)
	job.CreatedAt = parseTimestamp(createdAt)
	job.UpdatedAt = parseTimestamp(updatedAt)
	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func parseTimestamp(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}
