package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierly/backend/internal/models"
)

const refundColumns = `id, job_id, client_id, artist_id, amount, reason, status, resolved_by, created_at, resolved_at`

type RefundRequestRepo struct {
	pool *pgxpool.Pool
}

func NewRefundRequestRepo(pool *pgxpool.Pool) *RefundRequestRepo {
	return &RefundRequestRepo{pool: pool}
}

func (r *RefundRequestRepo) CreateTx(ctx context.Context, tx pgx.Tx, req *models.RefundRequest) error {
	return tx.QueryRow(ctx, `
		INSERT INTO refund_requests (id, job_id, client_id, artist_id, amount, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, req.ID, req.JobID, req.ClientID, req.ArtistID, req.Amount, req.Reason, req.Status).Scan(&req.CreatedAt)
}

func (r *RefundRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error) {
	return scanRefund(r.pool.QueryRow(ctx, `SELECT `+refundColumns+` FROM refund_requests WHERE id = $1`, id))
}

// MarkResolvedTx flips a pending request to approved/rejected. Returns false
// when the request was already resolved (lost race).
func (r *RefundRequestRepo) MarkResolvedTx(ctx context.Context, tx pgx.Tx, id, resolvedBy uuid.UUID, status string) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE refund_requests SET status = $3, resolved_by = $2, resolved_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, resolvedBy, status)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *RefundRequestRepo) ListPending(ctx context.Context) ([]*models.RefundRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+refundColumns+` FROM refund_requests WHERE status = 'pending' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.RefundRequest
	for rows.Next() {
		var req models.RefundRequest
		if err := rows.Scan(&req.ID, &req.JobID, &req.ClientID, &req.ArtistID, &req.Amount, &req.Reason, &req.Status, &req.ResolvedBy, &req.CreatedAt, &req.ResolvedAt); err != nil {
			return nil, err
		}
		list = append(list, &req)
	}
	return list, rows.Err()
}

func scanRefund(row pgx.Row) (*models.RefundRequest, error) {
	var req models.RefundRequest
	err := row.Scan(&req.ID, &req.JobID, &req.ClientID, &req.ArtistID, &req.Amount, &req.Reason, &req.Status, &req.ResolvedBy, &req.CreatedAt, &req.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
