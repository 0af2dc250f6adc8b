package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/russross/meddler"
	"github.com/workmesh/marketmirror/internal/logger"
	"github.com/workmesh/marketmirror/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist locally.
var ErrNotFound = errors.New("entity not found")

// Store is the canonical off-chain mirror of all marketplace entities. Every
// mutation happens through a caller-supplied transaction so that state changes
// and their idempotency records commit together.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// New creates a Store on an open database.
func New(db *sql.DB, log *logger.Logger) *Store {
	return &Store{
		db:  db,
		log: log.WithComponent("store"),
	}
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a single transaction. The connection uses
// BEGIN IMMEDIATE, so concurrent writers serialize here rather than failing
// at commit.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetJob loads a job by its ledger-assigned id.
func (s *Store) GetJob(q meddler.DB, id uint64) (*types.Job, error) {
	var job types.Job
	err := meddler.QueryRow(q, &job, `SELECT * FROM jobs WHERE job_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %d: %w", id, err)
	}
	return &job, nil
}

// InsertJob inserts a job with its ledger-assigned id. The id comes from the
// chain, so the usual autoincrement insert path does not apply.
func (s *Store) InsertJob(q meddler.DB, j *types.Job) error {
	var worker interface{}
	if j.Worker != nil {
		worker = j.Worker.Hex()
	}

	_, err := q.Exec(`
		INSERT INTO jobs (job_id, employer, worker, wages, duration_hours, category, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Employer.Hex(), worker, j.Wages, j.DurationHours, j.Category, j.Status, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %d: %w", j.ID, err)
	}
	return nil
}

// UpdateJob persists a mutated job.
func (s *Store) UpdateJob(q meddler.DB, j *types.Job) error {
	if err := meddler.Update(q, "jobs", j); err != nil {
		return fmt.Errorf("failed to update job %d: %w", j.ID, err)
	}
	return nil
}

// JobFilter narrows a ListJobs query. Zero values mean "no filter".
type JobFilter struct {
	Status   types.JobStatus
	Category string
	Cursor   uint64 // return jobs with job_id > Cursor
	Limit    int
}

// ListJobs returns jobs matching the filter ordered by id.
func (s *Store) ListJobs(q meddler.DB, f JobFilter) ([]*types.Job, error) {
	query := `SELECT * FROM jobs`
	conditions := []string{}
	args := []interface{}{}

	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, f.Category)
	}
	if f.Cursor > 0 {
		conditions = append(conditions, "job_id > ?")
		args = append(args, f.Cursor)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY job_id ASC LIMIT ?"
	args = append(args, limit)

	var jobs []*types.Job
	if err := meddler.QueryAll(q, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// GetEscrow loads an escrow by its ledger-assigned id.
func (s *Store) GetEscrow(q meddler.DB, id uint64) (*types.Escrow, error) {
	var escrow types.Escrow
	err := meddler.QueryRow(q, &escrow, `SELECT * FROM escrows WHERE escrow_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escrow %d: %w", id, err)
	}
	return &escrow, nil
}

// GetEscrowByJob loads the escrow tied to a job. Escrows are 1:1 with jobs.
func (s *Store) GetEscrowByJob(q meddler.DB, jobID uint64) (*types.Escrow, error) {
	var escrow types.Escrow
	err := meddler.QueryRow(q, &escrow, `SELECT * FROM escrows WHERE job_id = ?`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escrow for job %d: %w", jobID, err)
	}
	return &escrow, nil
}

// InsertEscrow inserts an escrow with its ledger-assigned id.
func (s *Store) InsertEscrow(q meddler.DB, e *types.Escrow) error {
	_, err := q.Exec(`
		INSERT INTO escrows (escrow_id, job_id, amount, funded_amount, released_amount,
			employer, worker, status, deadline, dispute_reason, resolved_to, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.JobID, e.Amount, e.FundedAmount, e.ReleasedAmount,
		e.Employer.Hex(), e.Worker.Hex(), e.Status, e.Deadline, e.DisputeReason, e.ResolvedTo, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert escrow %d: %w", e.ID, err)
	}
	return nil
}

// UpdateEscrow persists a mutated escrow.
func (s *Store) UpdateEscrow(q meddler.DB, e *types.Escrow) error {
	if err := meddler.Update(q, "escrows", e); err != nil {
		return fmt.Errorf("failed to update escrow %d: %w", e.ID, err)
	}
	return nil
}

// ListOpenEscrowsPastDeadline returns escrows still holding funds whose
// deadline passed before now. Used by the synthetic deadline-check pass.
func (s *Store) ListOpenEscrowsPastDeadline(q meddler.DB, now int64) ([]*types.Escrow, error) {
	var escrows []*types.Escrow
	err := meddler.QueryAll(q, &escrows, `
		SELECT * FROM escrows
		WHERE status IN (?, ?) AND deadline < ?
		ORDER BY escrow_id ASC`,
		types.EscrowFunded, types.EscrowLocked, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired escrows: %w", err)
	}
	return escrows, nil
}
