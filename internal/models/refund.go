package models

import (
	"time"

	"github.com/google/uuid"
)

// RefundRequest statuses.
const (
	RefundPending  = "pending"
	RefundApproved = "approved"
	RefundRejected = "rejected"
)

// RefundRequest is filed when a client cancels a hired job. The refund is not
// automatic: an arbiter approves (escrow back to the client) or rejects
// (escrow released to the artist).
type RefundRequest struct {
	ID         uuid.UUID  `json:"id"`
	JobID      uuid.UUID  `json:"job_id"`
	ClientID   uuid.UUID  `json:"client_id"`
	ArtistID   uuid.UUID  `json:"artist_id"`
	Amount     int64      `json:"amount"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	ResolvedBy *uuid.UUID `json:"resolved_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
