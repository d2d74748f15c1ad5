package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierly/backend/internal/models"
)

const submissionColumns = `id, job_id, artist_id, client_id, deliverable_ref, preview_ref, status, note, submitted_at`

type SubmissionRepo struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepo(pool *pgxpool.Pool) *SubmissionRepo {
	return &SubmissionRepo{pool: pool}
}

// CreateTx inserts a submission row inside the given transaction.
func (r *SubmissionRepo) CreateTx(ctx context.Context, tx pgx.Tx, s *models.WorkSubmission) error {
	return tx.QueryRow(ctx, `
		INSERT INTO work_submissions (id, job_id, artist_id, client_id, deliverable_ref, preview_ref, status, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING submitted_at
	`, s.ID, s.JobID, s.ArtistID, s.ClientID, s.DeliverableRef, s.PreviewRef, s.Status, s.Note).Scan(&s.SubmittedAt)
}

// LatestReviewableTx returns the most recent non-rejected submission for the
// job, or pgx.ErrNoRows. Older rounds stay in the table for audit.
func (r *SubmissionRepo) LatestReviewableTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.WorkSubmission, error) {
	return scanSubmission(tx.QueryRow(ctx, `
		SELECT `+submissionColumns+` FROM work_submissions
		WHERE job_id = $1 AND status != 'rejected'
		ORDER BY submitted_at DESC LIMIT 1
	`, jobID))
}

// SetStatusTx updates one submission's review status.
func (r *SubmissionRepo) SetStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, note *string) error {
	_, err := tx.Exec(ctx, `
		UPDATE work_submissions SET status = $2, note = COALESCE($3, note) WHERE id = $1
	`, id, status, note)
	return err
}

func (r *SubmissionRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.WorkSubmission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+submissionColumns+` FROM work_submissions WHERE job_id = $1 ORDER BY submitted_at DESC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WorkSubmission
	for rows.Next() {
		var s models.WorkSubmission
		if err := rows.Scan(&s.ID, &s.JobID, &s.ArtistID, &s.ClientID, &s.DeliverableRef, &s.PreviewRef, &s.Status, &s.Note, &s.SubmittedAt); err != nil {
			return nil, err
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}

func scanSubmission(row pgx.Row) (*models.WorkSubmission, error) {
	var s models.WorkSubmission
	err := row.Scan(&s.ID, &s.JobID, &s.ArtistID, &s.ClientID, &s.DeliverableRef, &s.PreviewRef, &s.Status, &s.Note, &s.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
