package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierly/backend/internal/models"
)

const jobColumns = `id, client_id, artist_id, title, brief, escrow_amount, escrow_locked, status, revision_count, submitted_work_ref, dispute_reason, hired_at, submitted_at, completed_at, cancelled_at, created_at, updated_at`

// JobRepo persists jobs. Every status change is a compare-and-write against
// the current status: a transition that matches zero rows either lost a race
// or was attempted from the wrong state, and the engine re-reads to decide.
type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, client_id, title, brief, status)
		VALUES ($1, $2, $3, $4, 'open')
		RETURNING created_at, updated_at
	`, j.ID, j.ClientID, j.Title, j.Brief).Scan(&j.CreatedAt, &j.UpdatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

func (r *JobRepo) List(ctx context.Context, userID uuid.UUID, role, status string) ([]*models.Job, error) {
	col := "client_id"
	if role == models.RoleArtist {
		col = "artist_id"
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE ` + col + ` = $1 ORDER BY created_at DESC`
	args := []any{userID}
	if status != "" {
		query = `SELECT ` + jobColumns + ` FROM jobs WHERE ` + col + ` = $1 AND status = $2 ORDER BY created_at DESC`
		args = append(args, status)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Job
	for rows.Next() {
		j, err := scanJobRows(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}

// MarkHired assigns the artist, records the escrow amount, and moves
// open -> in_progress. Returns false when the job was not in open.
func (r *JobRepo) MarkHired(ctx context.Context, tx pgx.Tx, jobID, artistID uuid.UUID, amount int64) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE jobs SET artist_id = $2, escrow_amount = $3, escrow_locked = true,
			status = 'in_progress', hired_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'open'
	`, jobID, artistID, amount)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkSubmitted moves in_progress|revision_requested -> submitted and records
// the deliverable reference.
func (r *JobRepo) MarkSubmitted(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, workRef string) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE jobs SET status = 'submitted', submitted_work_ref = $2, submitted_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ('in_progress', 'revision_requested')
	`, jobID, workRef)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkRevisionRequested moves submitted -> revision_requested and bumps the
// revision counter.
func (r *JobRepo) MarkRevisionRequested(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE jobs SET status = 'revision_requested', revision_count = revision_count + 1, updated_at = now()
		WHERE id = $1 AND status = 'submitted'
	`, jobID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkCompleted releases the escrow flag and moves fromStatus -> completed.
// fromStatus is submitted (approval) or disputed (arbiter release).
func (r *JobRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, fromStatus string) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE jobs SET status = 'completed', escrow_locked = false, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = $2
	`, jobID, fromStatus)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkDisputed moves submitted -> disputed and records the reason.
func (r *JobRepo) MarkDisputed(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, reason string) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE jobs SET status = 'disputed', dispute_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'submitted'
	`, jobID, reason)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkCancelled moves fromStatus -> cancelled and clears the escrow flag.
// The client's locked balance is settled separately: immediately on dispute
// refund, or when the arbiter resolves the refund request after a client
// cancellation.
func (r *JobRepo) MarkCancelled(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, fromStatus string) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE jobs SET status = 'cancelled', escrow_locked = false, cancelled_at = now(), updated_at = now()
		WHERE id = $1 AND status = $2
	`, jobID, fromStatus)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.ClientID, &j.ArtistID, &j.Title, &j.Brief, &j.EscrowAmount, &j.EscrowLocked, &j.Status, &j.RevisionCount, &j.SubmittedWorkRef, &j.DisputeReason, &j.HiredAt, &j.SubmittedAt, &j.CompletedAt, &j.CancelledAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func scanJobRows(rows pgx.Rows) (*models.Job, error) {
	var j models.Job
	err := rows.Scan(&j.ID, &j.ClientID, &j.ArtistID, &j.Title, &j.Brief, &j.EscrowAmount, &j.EscrowLocked, &j.Status, &j.RevisionCount, &j.SubmittedWorkRef, &j.DisputeReason, &j.HiredAt, &j.SubmittedAt, &j.CompletedAt, &j.CancelledAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
