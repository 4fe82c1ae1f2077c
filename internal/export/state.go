// Package export implements the resumable bulk-export engine: a durable
// status machine over an export_runs table, a sequential page orchestrator,
// and the CSV artifact it produces. At most one run is processing at a time,
// enforced in the database so the guarantee survives restarts.
package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/prospect/dbopen"
	"github.com/hazyhaar/prospect/idgen"
)

// Run statuses. StatusIdle is never stored; it is the synthetic status
// reported before any run exists.
const (
	StatusIdle       = "idle"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrRunInProgress is returned by Start when another run is still processing.
var ErrRunInProgress = errors.New("export: a run is already in progress")

// ErrNoRuns is returned by Snapshot when no run has ever been started.
var ErrNoRuns = errors.New("export: no runs recorded")

// Schema defines the export_runs table. Idempotent. Completed and failed
// rows are kept as an audit trail; Snapshot reads only the latest.
const Schema = `
CREATE TABLE IF NOT EXISTS export_runs (
    id                   TEXT PRIMARY KEY,
    status               TEXT NOT NULL CHECK (status IN ('processing','completed','failed')),
    filters_json         TEXT NOT NULL,
    page_size            INTEGER NOT NULL,
    start_page           INTEGER NOT NULL,
    current_page         INTEGER NOT NULL,
    last_successful_page INTEGER NOT NULL,
    total_companies      INTEGER NOT NULL DEFAULT 0,
    error_message        TEXT NOT NULL DEFAULT '',
    created_at           INTEGER NOT NULL,
    updated_at           INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_export_runs_status ON export_runs(status);
`

// Run is a snapshot of one export run.
type Run struct {
	ID                 string `json:"run_id"`
	Status             string `json:"status"`
	FiltersJSON        string `json:"-"`
	PageSize           int    `json:"-"`
	StartPage          int    `json:"start_page"`
	CurrentPage        int    `json:"current_page"`
	LastSuccessfulPage int    `json:"last_successful_page"`
	TotalCompanies     int    `json:"total_companies"`
	ErrorMessage       string `json:"error_message,omitempty"`
	CanResume          bool   `json:"can_resume"`
	CreatedAt          int64  `json:"created_at"`
	UpdatedAt          int64  `json:"updated_at"`
}

// ResumePage is the page a resumed run should start from.
func (r Run) ResumePage() int {
	return r.LastSuccessfulPage + 1
}

// Store persists export run state. Safe for concurrent use.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// NewStore creates a Store over db. The export_runs table must exist.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:    db,
		newID: idgen.Prefixed("exp_", idgen.UUIDv7()),
		now:   time.Now,
	}
}

// ApplySchema creates the export_runs table if it doesn't exist.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Start records a new processing run and returns its ID. It fails with
// ErrRunInProgress when another run is still processing; the check and the
// insert share one transaction so two concurrent starts cannot both win.
//
// last_successful_page is initialized to startPage-1: a resumed run that
// fails before completing any page keeps its earlier resume point.
func (s *Store) Start(ctx context.Context, filtersJSON string, pageSize, startPage int) (string, error) {
	id := s.newID()
	now := s.now().UnixMilli()

	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		var active int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM export_runs WHERE status = ?`, StatusProcessing,
		).Scan(&active); err != nil {
			return fmt.Errorf("export: count active runs: %w", err)
		}
		if active > 0 {
			return ErrRunInProgress
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO export_runs
				(id, status, filters_json, page_size, start_page,
				 current_page, last_successful_page, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, StatusProcessing, filtersJSON, pageSize, startPage,
			startPage, startPage-1, now, now)
		if err != nil {
			return fmt.Errorf("export: insert run: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecordPageSuccess checkpoints a successfully processed page.
// last_successful_page only ever increases.
func (s *Store) RecordPageSuccess(ctx context.Context, runID string, page, totalCompanies int) error {
	_, err := dbopen.Exec(ctx, s.db, `
		UPDATE export_runs SET
			current_page = ?,
			last_successful_page = MAX(last_successful_page, ?),
			total_companies = ?,
			updated_at = ?
		WHERE id = ?`,
		page, page, totalCompanies, s.now().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("export: record page success: %w", err)
	}
	return nil
}

// RecordFailure marks the run failed at page with a reason. The resume point
// (last_successful_page) is left untouched.
func (s *Store) RecordFailure(ctx context.Context, runID string, page int, reason string) error {
	_, err := dbopen.Exec(ctx, s.db, `
		UPDATE export_runs SET
			status = ?,
			current_page = ?,
			error_message = ?,
			updated_at = ?
		WHERE id = ?`,
		StatusFailed, page, reason, s.now().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("export: record failure: %w", err)
	}
	return nil
}

// Complete marks the run completed with its final company count.
func (s *Store) Complete(ctx context.Context, runID string, totalCompanies int) error {
	_, err := dbopen.Exec(ctx, s.db, `
		UPDATE export_runs SET
			status = ?,
			total_companies = ?,
			error_message = '',
			updated_at = ?
		WHERE id = ?`,
		StatusCompleted, totalCompanies, s.now().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("export: complete: %w", err)
	}
	return nil
}

// RecoverInterrupted marks every run left processing by a previous process
// as failed, preserving its resume point. Called once at startup before the
// server accepts export requests; without it a crash mid-export would hold
// the single-active-run slot forever.
func (s *Store) RecoverInterrupted(ctx context.Context) (int64, error) {
	res, err := dbopen.Exec(ctx, s.db, `
		UPDATE export_runs SET
			status = ?,
			error_message = ?,
			updated_at = ?
		WHERE status = ?`,
		StatusFailed, "interrupted by restart", s.now().UnixMilli(), StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("export: recover interrupted: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Snapshot returns the latest run. Reading is side-effect free.
func (s *Store) Snapshot(ctx context.Context) (Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, filters_json, page_size, start_page,
		       current_page, last_successful_page, total_companies,
		       error_message, created_at, updated_at
		FROM export_runs
		ORDER BY created_at DESC, id DESC
		LIMIT 1`).Scan(
		&r.ID, &r.Status, &r.FiltersJSON, &r.PageSize, &r.StartPage,
		&r.CurrentPage, &r.LastSuccessfulPage, &r.TotalCompanies,
		&r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return Run{}, ErrNoRuns
	}
	if err != nil {
		return Run{}, fmt.Errorf("export: snapshot: %w", err)
	}
	r.CanResume = r.Status == StatusFailed && r.LastSuccessfulPage > 0
	return r, nil
}
