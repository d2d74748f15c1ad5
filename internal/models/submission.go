package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkSubmission statuses.
const (
	SubmissionPending           = "pending"
	SubmissionApproved          = "approved"
	SubmissionRevisionRequested = "revision_requested"
	SubmissionRejected          = "rejected"
)

// WorkSubmission is one delivery round on a job. A job accumulates one row per
// round; the latest non-rejected row is the one under review.
type WorkSubmission struct {
	ID             uuid.UUID `json:"id"`
	JobID          uuid.UUID `json:"job_id"`
	ArtistID       uuid.UUID `json:"artist_id"`
	ClientID       uuid.UUID `json:"client_id"`
	DeliverableRef string    `json:"deliverable_ref"`
	PreviewRef     string    `json:"preview_ref"`
	Status         string    `json:"status"`
	Note           *string   `json:"note,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}
