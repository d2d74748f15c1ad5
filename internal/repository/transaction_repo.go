package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierly/backend/internal/models"
)

const transactionColumns = `id, kind, user_id, counterparty_id, amount, job_id, description, idempotency_key, balance_after, created_at`

// TransactionRepo writes and reads the append-only ledger. There is no update
// or delete path: entries are immutable once written.
type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// CreateTx appends a ledger entry inside the given transaction.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO transactions (id, kind, user_id, counterparty_id, amount, job_id, description, idempotency_key, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, t.ID, t.Kind, t.UserID, t.CounterpartyID, t.Amount, t.JobID, t.Description, t.IdempotencyKey, t.BalanceAfter).Scan(&t.CreatedAt)
}

// GetByIdempotencyKey returns the entry previously written under key, or
// pgx.ErrNoRows when the key has not been seen.
func (r *TransactionRepo) GetByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1
	`, key))
}

// GetByIdempotencyKeyTx is GetByIdempotencyKey inside an open transaction.
func (r *TransactionRepo) GetByIdempotencyKeyTx(ctx context.Context, tx pgx.Tx, key string) (*models.Transaction, error) {
	return scanTransaction(tx.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1
	`, key))
}

func (r *TransactionRepo) ListByUser(ctx context.Context, userID uuid.UUID, kind string) ([]*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	if kind != "" {
		query = `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = $1 AND kind = $2 ORDER BY created_at DESC`
		args = append(args, kind)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *TransactionRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE job_id = $1 ORDER BY created_at DESC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// DailyEscrowSpend sums today's (UTC) escrow_lock amounts for the user. Used
// by the spend-limit middleware.
func (r *TransactionRepo) DailyEscrowSpend(ctx context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = $1 AND kind = 'escrow_lock'
		  AND created_at >= CURRENT_DATE
	`, userID).Scan(&total)
	return total, err
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.Kind, &t.UserID, &t.CounterpartyID, &t.Amount, &t.JobID, &t.Description, &t.IdempotencyKey, &t.BalanceAfter, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	var list []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.Kind, &t.UserID, &t.CounterpartyID, &t.Amount, &t.JobID, &t.Description, &t.IdempotencyKey, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
