package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction kinds. credit/debit change the total credits in the system
// (top-up, withdrawal); everything else moves credits between sub-balances or
// between users.
const (
	TxKindCredit        = "credit"
	TxKindDebit         = "debit"
	TxKindTransferIn    = "transfer_in"
	TxKindTransferOut   = "transfer_out"
	TxKindEscrowLock    = "escrow_lock"
	TxKindEscrowRelease = "escrow_release"
	TxKindEscrowRefund  = "escrow_refund"
)

// Transaction is one immutable ledger entry. Rows are append-only; the
// account row stays authoritative for balances, the ledger is the audit trail.
type Transaction struct {
	ID             uuid.UUID  `json:"id"`
	Kind           string     `json:"kind"`
	UserID         uuid.UUID  `json:"user_id"`
	CounterpartyID *uuid.UUID `json:"counterparty_id,omitempty"`
	Amount         int64      `json:"amount"`
	JobID          *uuid.UUID `json:"job_id,omitempty"`
	Description    string     `json:"description"`
	IdempotencyKey *string    `json:"idempotency_key,omitempty"`
	BalanceAfter   *int64     `json:"balance_after,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
