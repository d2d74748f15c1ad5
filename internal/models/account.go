package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles. Arbiter is the platform-operator role that resolves disputes
// and refund requests.
const (
	RoleClient  = "client"
	RoleArtist  = "artist"
	RoleArbiter = "arbiter"
)

// Account holds a user's credit balances. Available is spendable; Locked is
// the sum of escrow amounts across the user's in-flight jobs. Both are
// non-negative at all times; every mutation goes through the account service.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	Available    int64     `json:"available"`
	Locked       int64     `json:"locked"`
	MaxPerJob    *int64    `json:"max_per_job,omitempty"`
	MaxPerDay    *int64    `json:"max_per_day,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
