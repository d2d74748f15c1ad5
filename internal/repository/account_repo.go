package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierly/backend/internal/models"
)

const accountColumns = `id, email, display_name, role, password_hash, available, locked, max_per_job, max_per_day, created_at, updated_at`

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, display_name, role, password_hash, available, locked, max_per_job, max_per_day)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.DisplayName, a.Role, a.PasswordHash, a.Available, a.Locked, a.MaxPerJob, a.MaxPerDay).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

// UpdateSettings persists the optional spend caps and profile fields. Balance
// columns are deliberately not touched here.
func (r *AccountRepo) UpdateSettings(ctx context.Context, a *models.Account) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET display_name = $2, max_per_job = $3, max_per_day = $4, updated_at = now()
		WHERE id = $1
	`, a.ID, a.DisplayName, a.MaxPerJob, a.MaxPerDay)
	return err
}

// AddAvailable adds amount to available and returns the new available balance.
func (r *AccountRepo) AddAvailable(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newAvailable int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET available = available + $1, updated_at = now()
		WHERE id = $2
		RETURNING available
	`, amount, id).Scan(&newAvailable)
	return newAvailable, err
}

// DeductAvailable atomically deducts amount if available >= amount. Returns
// pgx.ErrNoRows when the balance is too low.
func (r *AccountRepo) DeductAvailable(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newAvailable int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET available = available - $1, updated_at = now()
		WHERE id = $2 AND available >= $1
		RETURNING available
	`, amount, id).Scan(&newAvailable)
	return newAvailable, err
}

// LockFunds moves amount from available to locked. Returns false when
// available is too low (no rows matched the balance guard).
func (r *AccountRepo) LockFunds(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE accounts SET available = available - $1, locked = locked + $1, updated_at = now()
		WHERE id = $2 AND available >= $1
	`, amount, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// UnlockFunds moves amount from locked back to available. Returns false when
// locked is too low, which indicates a caller bug.
func (r *AccountRepo) UnlockFunds(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE accounts SET available = available + $1, locked = locked - $1, updated_at = now()
		WHERE id = $2 AND locked >= $1
	`, amount, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// DeductLocked removes amount from locked (escrow release towards a
// counterparty). Returns false when locked is too low.
func (r *AccountRepo) DeductLocked(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE accounts SET locked = locked - $1, updated_at = now()
		WHERE id = $2 AND locked >= $1
	`, amount, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *AccountRepo) scanOne(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.Role, &a.PasswordHash, &a.Available, &a.Locked, &a.MaxPerJob, &a.MaxPerDay, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
