package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/atelierly/backend/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountBalanceRepo is the minimal account repository interface for the
// account service.
type AccountBalanceRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	AddAvailable(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
	DeductAvailable(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
	LockFunds(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (bool, error)
	UnlockFunds(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (bool, error)
	DeductLocked(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (bool, error)
}

// LedgerRepo is the append-only transaction log interface.
type LedgerRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error)
	GetByIdempotencyKeyTx(ctx context.Context, tx pgx.Tx, key string) (*models.Transaction, error)
}

// AccountService is the sole mutation path for balances. Top-level operations
// (Credit, Debit, Transfer) open their own transaction; the Lock/Unlock/
// Release/Refund family runs inside an escrow engine transaction and must not
// be called elsewhere.
type AccountService struct {
	pool     TxBeginner
	accounts AccountBalanceRepo
	ledger   LedgerRepo
}

func NewAccountService(pool TxBeginner, accounts AccountBalanceRepo, ledger LedgerRepo) *AccountService {
	return &AccountService{pool: pool, accounts: accounts, ledger: ledger}
}

// GetBalance returns (available, locked). Absent accounts read as zero-value:
// accounts materialize on registration, but a balance query never fails.
func (s *AccountService) GetBalance(ctx context.Context, userID uuid.UUID) (available, locked int64, err error) {
	acc, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	return acc.Available, acc.Locked, nil
}

// Credit increases available and appends one credit ledger entry. A non-empty
// idempotencyKey makes the call safe under retry: a replayed key returns the
// original transaction ID without re-applying the credit.
func (s *AccountService) Credit(ctx context.Context, userID uuid.UUID, amount int64, description, idempotencyKey string) (uuid.UUID, error) {
	if amount <= 0 {
		return uuid.Nil, ErrInvalidAmount
	}
	return s.mutateAvailable(ctx, userID, amount, models.TxKindCredit, description, idempotencyKey)
}

// Debit decreases available and appends one debit ledger entry.
func (s *AccountService) Debit(ctx context.Context, userID uuid.UUID, amount int64, description, idempotencyKey string) (uuid.UUID, error) {
	if amount <= 0 {
		return uuid.Nil, ErrInvalidAmount
	}
	return s.mutateAvailable(ctx, userID, amount, models.TxKindDebit, description, idempotencyKey)
}

func (s *AccountService) mutateAvailable(ctx context.Context, userID uuid.UUID, amount int64, kind, description, idempotencyKey string) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback(ctx)

	if idempotencyKey != "" {
		prior, err := s.ledger.GetByIdempotencyKeyTx(ctx, tx, idempotencyKey)
		if err == nil {
			return prior.ID, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, err
		}
	}

	var newBalance int64
	switch kind {
	case models.TxKindCredit:
		newBalance, err = s.accounts.AddAvailable(ctx, tx, userID, amount)
	case models.TxKindDebit:
		newBalance, err = s.accounts.DeductAvailable(ctx, tx, userID, amount)
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrInsufficientFunds
		}
	}
	if err != nil {
		return uuid.Nil, err
	}

	entry := &models.Transaction{
		ID:           uuid.New(),
		Kind:         kind,
		UserID:       userID,
		Amount:       amount,
		Description:  description,
		BalanceAfter: &newBalance,
	}
	if idempotencyKey != "" {
		entry.IdempotencyKey = &idempotencyKey
	}
	if err := s.ledger.CreateTx(ctx, tx, entry); err != nil {
		// A concurrent call with the same idempotency key beat us to the
		// unique index; surface the winner's transaction.
		var pgErr *pgconn.PgError
		if idempotencyKey != "" && errors.As(err, &pgErr) && pgErr.Code == "23505" {
			_ = tx.Rollback(ctx)
			prior, err := s.ledger.GetByIdempotencyKey(ctx, idempotencyKey)
			if err != nil {
				return uuid.Nil, err
			}
			return prior.ID, nil
		}
		return uuid.Nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, err
	}
	return entry.ID, nil
}

// Lock moves amount from available to locked and appends one escrow_lock
// entry. Call only inside an escrow engine transaction.
func (s *AccountService) Lock(ctx context.Context, tx pgx.Tx, userID, counterpartyID, jobID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	ok, err := s.accounts.LockFunds(ctx, tx, userID, amount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientFunds
	}
	return s.ledger.CreateTx(ctx, tx, &models.Transaction{
		ID:             uuid.New(),
		Kind:           models.TxKindEscrowLock,
		UserID:         userID,
		CounterpartyID: &counterpartyID,
		Amount:         amount,
		JobID:          &jobID,
		Description:    "escrow lock",
	})
}

// Unlock moves amount from locked back to available and appends one
// escrow_refund entry. Used on refund/cancel resolution.
func (s *AccountService) Unlock(ctx context.Context, tx pgx.Tx, userID, jobID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	ok, err := s.accounts.UnlockFunds(ctx, tx, userID, amount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvariantViolation
	}
	return s.ledger.CreateTx(ctx, tx, &models.Transaction{
		ID:          uuid.New(),
		Kind:        models.TxKindEscrowRefund,
		UserID:      userID,
		Amount:      amount,
		JobID:       &jobID,
		Description: "escrow refund",
	})
}

// Release moves amount from the payer's locked balance into the payee's
// available balance and appends one escrow_release entry on the payee.
func (s *AccountService) Release(ctx context.Context, tx pgx.Tx, fromUserID, toUserID, jobID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	ok, err := s.accounts.DeductLocked(ctx, tx, fromUserID, amount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvariantViolation
	}
	newBalance, err := s.accounts.AddAvailable(ctx, tx, toUserID, amount)
	if err != nil {
		return err
	}
	return s.ledger.CreateTx(ctx, tx, &models.Transaction{
		ID:             uuid.New(),
		Kind:           models.TxKindEscrowRelease,
		UserID:         toUserID,
		CounterpartyID: &fromUserID,
		Amount:         amount,
		JobID:          &jobID,
		Description:    "escrow release",
		BalanceAfter:   &newBalance,
	})
}

// Transfer atomically debits one account's available balance and credits
// another's, writing two ledger entries (transfer_out, transfer_in).
func (s *AccountService) Transfer(ctx context.Context, fromUserID, toUserID uuid.UUID, amount int64, description string) (outID, inID uuid.UUID, err error) {
	if amount <= 0 {
		return uuid.Nil, uuid.Nil, ErrInvalidAmount
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	defer tx.Rollback(ctx)

	fromBalance, err := s.accounts.DeductAvailable(ctx, tx, fromUserID, amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, uuid.Nil, ErrInsufficientFunds
	}
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	toBalance, err := s.accounts.AddAvailable(ctx, tx, toUserID, amount)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	out := &models.Transaction{
		ID:             uuid.New(),
		Kind:           models.TxKindTransferOut,
		UserID:         fromUserID,
		CounterpartyID: &toUserID,
		Amount:         amount,
		Description:    description,
		BalanceAfter:   &fromBalance,
	}
	in := &models.Transaction{
		ID:             uuid.New(),
		Kind:           models.TxKindTransferIn,
		UserID:         toUserID,
		CounterpartyID: &fromUserID,
		Amount:         amount,
		Description:    description,
		BalanceAfter:   &toBalance,
	}
	if err := s.ledger.CreateTx(ctx, tx, out); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if err := s.ledger.CreateTx(ctx, tx, in); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return out.ID, in.ID, nil
}
