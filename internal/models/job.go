package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job statuses. open -> in_progress -> submitted -> {completed |
// revision_requested | disputed}; revision_requested -> submitted;
// disputed -> {completed | cancelled}; in_progress|revision_requested ->
// cancelled. completed and cancelled are terminal.
const (
	JobStatusOpen              = "open"
	JobStatusInProgress        = "in_progress"
	JobStatusSubmitted         = "submitted"
	JobStatusRevisionRequested = "revision_requested"
	JobStatusDisputed          = "disputed"
	JobStatusCompleted         = "completed"
	JobStatusCancelled         = "cancelled"
)

// Dispute resolutions accepted by the escrow engine.
const (
	ResolutionRefundClient  = "refund_client"
	ResolutionReleaseArtist = "release_artist"
)

// Job is one commission. Status and escrow fields are owned exclusively by
// the escrow engine; EscrowAmount is set at hire time and immutable after.
type Job struct {
	ID               uuid.UUID       `json:"id"`
	ClientID         uuid.UUID       `json:"client_id"`
	ArtistID         *uuid.UUID      `json:"artist_id,omitempty"`
	Title            string          `json:"title"`
	Brief            json.RawMessage `json:"brief,omitempty"`
	EscrowAmount     int64           `json:"escrow_amount"`
	EscrowLocked     bool            `json:"escrow_locked"`
	Status           string          `json:"status"`
	RevisionCount    int             `json:"revision_count"`
	SubmittedWorkRef *string         `json:"submitted_work_ref,omitempty"`
	DisputeReason    *string         `json:"dispute_reason,omitempty"`
	HiredAt          *time.Time      `json:"hired_at,omitempty"`
	SubmittedAt      *time.Time      `json:"submitted_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
