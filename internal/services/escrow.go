package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelierly/backend/internal/models"
	"github.com/atelierly/backend/internal/notify"
)

// maxTransitionRetries bounds the engine's internal retries on concurrent
// job modifications before ErrConflict surfaces to the caller.
const maxTransitionRetries = 3

// errTransitionRace marks a compare-and-write that matched zero rows while
// the pre-checked status was eligible: another transition committed first.
var errTransitionRace = errors.New("transition lost race")

// EscrowAccounts is the account-service surface the engine mutates balances
// through. The engine never writes balances directly.
type EscrowAccounts interface {
	Lock(ctx context.Context, tx pgx.Tx, userID, counterpartyID, jobID uuid.UUID, amount int64) error
	Unlock(ctx context.Context, tx pgx.Tx, userID, jobID uuid.UUID, amount int64) error
	Release(ctx context.Context, tx pgx.Tx, fromUserID, toUserID, jobID uuid.UUID, amount int64) error
}

// JobStore is the job repository interface for the engine.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	MarkHired(ctx context.Context, tx pgx.Tx, jobID, artistID uuid.UUID, amount int64) (bool, error)
	MarkSubmitted(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, workRef string) (bool, error)
	MarkRevisionRequested(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, fromStatus string) (bool, error)
	MarkDisputed(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, reason string) (bool, error)
	MarkCancelled(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, fromStatus string) (bool, error)
}

// SubmissionStore is the work-submission repository interface for the engine.
type SubmissionStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, s *models.WorkSubmission) error
	LatestReviewableTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.WorkSubmission, error)
	SetStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, note *string) error
}

// RefundStore is the refund-request repository interface for the engine.
type RefundStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, req *models.RefundRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error)
	MarkResolvedTx(ctx context.Context, tx pgx.Tx, id, resolvedBy uuid.UUID, status string) (bool, error)
}

// EnqueueNotificationTxFunc enqueues a notification delivery within the given
// transaction. Provided by main as a closure over river.Client.InsertTx, so
// the event becomes visible exactly when the transition commits.
type EnqueueNotificationTxFunc func(ctx context.Context, tx pgx.Tx, args notify.NotificationArgs) error

// EscrowEngine owns the job state machine. Each transition validates the
// caller and the current status, then applies all effects — job update,
// balance mutation, ledger entries, notification enqueue — in one database
// transaction. Concurrent transitions on the same job serialize through the
// compare-and-write on jobs.status.
type EscrowEngine struct {
	pool        TxBeginner
	accounts    EscrowAccounts
	jobs        JobStore
	submissions SubmissionStore
	refunds     RefundStore
	enqueue     EnqueueNotificationTxFunc
	logger      *slog.Logger
}

func NewEscrowEngine(
	pool TxBeginner,
	accounts EscrowAccounts,
	jobs JobStore,
	submissions SubmissionStore,
	refunds RefundStore,
	enqueue EnqueueNotificationTxFunc,
	logger *slog.Logger,
) *EscrowEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &EscrowEngine{
		pool:        pool,
		accounts:    accounts,
		jobs:        jobs,
		submissions: submissions,
		refunds:     refunds,
		enqueue:     enqueue,
		logger:      logger,
	}
}

// Hire locks amount of the client's credits against the job, assigns the
// artist, and moves the job to in_progress.
func (e *EscrowEngine) Hire(ctx context.Context, caller *models.Account, jobID, artistID uuid.UUID, amount int64) (*models.Job, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return e.withRetry(ctx, func(ctx context.Context) (*models.Job, error) {
		job, err := e.loadJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.ClientID != caller.ID {
			return nil, ErrUnauthorized
		}
		if job.Status != models.JobStatusOpen {
			return nil, ErrInvalidState
		}

		tx, err := e.pool.Begin(ctx)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback(ctx)

		ok, err := e.jobs.MarkHired(ctx, tx, jobID, artistID, amount)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errTransitionRace
		}
		if err := e.accounts.Lock(ctx, tx, caller.ID, artistID, jobID, amount); err != nil {
			return nil, err
		}
		if err := e.notifyTx(ctx, tx, artistID, notify.EventJobHired, map[string]any{
			"job_id": jobID, "client_id": caller.ID, "amount": amount,
		}); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return e.jobs.GetByID(ctx, jobID)
	})
}

// SubmitWork records a new delivery round and moves the job to submitted.
func (e *EscrowEngine) SubmitWork(ctx context.Context, caller *models.Account, jobID uuid.UUID, deliverableRef, previewRef string) (*models.Job, error) {
	return e.withRetry(ctx, func(ctx context.Context) (*models.Job, error) {
		job, err := e.loadJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.ArtistID == nil || *job.ArtistID != caller.ID {
			return nil, ErrUnauthorized
		}
		if job.Status != models.JobStatusInProgress && job.Status != models.JobStatusRevisionRequested {
			return nil, ErrInvalidState
		}

		tx, err := e.pool.Begin(ctx)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback(ctx)

		ok, err := e.jobs.MarkSubmitted(ctx, tx, jobID, deliverableRef)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errTransitionRace
		}
		submission := &models.WorkSubmission{
			ID:             uuid.New(),
			JobID:          jobID,
			ArtistID:       caller.ID,
			ClientID:       job.ClientID,
			DeliverableRef: deliverableRef,
			PreviewRef:     previewRef,
			Status:         models.SubmissionPending,
		}
		if err := e.submissions.CreateTx(ctx, tx, submission); err != nil {
			return nil, err
		}
		if err := e.notifyTx(ctx, tx, job.ClientID, notify.EventWorkSubmitted, map[string]any{
			"job_id": jobID, "submission_id": submission.ID, "preview_ref": previewRef,
		}); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return e.jobs.GetByID(ctx, jobID)
	})
}

// RequestRevision sends the latest submission back to the artist and moves
// the job to revision_requested. No balances change.
func (e *EscrowEngine) RequestRevision(ctx context.Context, caller *models.Account, jobID uuid.UUID, note string) (*models.Job, error) {
	return e.withRetry(ctx, func(ctx context.Context) (*models.Job, error) {
		job, err := e.loadJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.ClientID != caller.ID {
			return nil, ErrUnauthorized
		}
		if job.Status != models.JobStatusSubmitted {
			return nil, ErrInvalidState
		}
		if job.ArtistID == nil {
			return nil, ErrInvariantViolation
		}

		tx, err := e.pool.Begin(ctx)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback(ctx)

		ok, err := e.jobs.MarkRevisionRequested(ctx, tx, jobID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errTransitionRace
		}
		if err := e.reviewLatestSubmission(ctx, tx, jobID, models.SubmissionRevisionRequested, &note); err != nil {
			return nil, err
		}
		if err := e.notifyTx(ctx, tx, *job.ArtistID, notify.EventRevisionRequested, map[string]any{
			"job_id": jobID, "note": note,
		}); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return e.jobs.GetByID(ctx, jobID)
	})
}

// Approve releases the escrowed amount to the artist and completes the job.
func (e *EscrowEngine) Approve(ctx context.Context, caller *models.Account, jobID uuid.UUID) (*models.Job, error) {
	return e.withRetry(ctx, func(ctx context.Context) (*models.Job, error) {
		job, err := e.loadJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.ClientID != caller.ID {
			return nil, ErrUnauthorized
		}
		if job.Status != models.JobStatusSubmitted {
			return nil, ErrInvalidState
		}
		if !job.EscrowLocked || job.ArtistID == nil {
			return nil, ErrInvariantViolation
		}

		tx, err := e.pool.Begin(ctx)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback(ctx)

		ok, err := e.jobs.MarkCompleted(ctx, tx, jobID, models.JobStatusSubmitted)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errTransitionRace
		}
		if err := e.accounts.Release(ctx, tx, job.ClientID, *job.ArtistID, jobID, job.EscrowAmount); err != nil {
			return nil, err
		}
		if err := e.reviewLatestSubmission(ctx, tx, jobID, models.SubmissionApproved, nil); err != nil {
			return nil, err
		}
		if err := e.notifyTx(ctx, tx, *job.ArtistID, notify.EventJobApproved, map[string]any{
			"job_id": jobID, "amount": job.EscrowAmount,
		}); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return e.jobs.GetByID(ctx, jobID)
	})
}

// Dispute freezes the job pending arbitration. Balances are untouched until
// an arbiter resolves.
func (e *EscrowEngine) Dispute(ctx context.Context, caller *models.Account, jobID uuid.UUID, reason string) (*models.Job, error) {
	return e.withRetry(ctx, func(ctx context.Context) (*models.Job, error) {
		job, err := e.loadJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.ClientID != caller.ID {
			return nil, ErrUnauthorized
		}
		if job.Status != models.JobStatusSubmitted {
			return nil, ErrInvalidState
		}
		if job.ArtistID == nil {
			return nil, ErrInvariantViolation
		}

		tx, err := e.pool.Begin(ctx)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback(ctx)

		ok, err := e.jobs.MarkDisputed(ctx, tx, jobID, reason)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errTransitionRace
		}
		if err := e.notifyTx(ctx, tx, *job.ArtistID, notify.EventJobDisputed, map[string]any{
			"job_id": jobID, "reason": reason,
		}); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return e.jobs.GetByID(ctx, jobID)
	})
}

// ResolveDispute settles a disputed job. refund_client unlocks the escrow
// back to the client and cancels the job; release_artist pays the artist and
// completes it.
func (e *EscrowEngine) ResolveDispute(ctx context.Context, caller *models.Account, jobID uuid.UUID, decision string) (*models.Job, error) {
	if caller.Role != models.RoleArbiter {
		return nil, ErrUnauthorized
	}
	if decision != models.ResolutionRefundClient && decision != models.ResolutionReleaseArtist {
		return nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidState, decision)
	}
	return e.withRetry(ctx, func(ctx context.Context) (*models.Job, error) {
		job, err := e.loadJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status != models.JobStatusDisputed {
			return nil, ErrInvalidState
		}
		if !job.EscrowLocked || job.ArtistID == nil {
			return nil, ErrInvariantViolation
		}

		tx, err := e.pool.Begin(ctx)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback(ctx)

		if decision == models.ResolutionRefundClient {
			ok, err := e.jobs.MarkCancelled(ctx, tx, jobID, models.JobStatusDisputed)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errTransitionRace
			}
			if err := e.accounts.Unlock(ctx, tx, job.ClientID, jobID, job.EscrowAmount); err != nil {
				return nil, err
			}
		} else {
			ok, err := e.jobs.MarkCompleted(ctx, tx, jobID, models.JobStatusDisputed)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errTransitionRace
			}
			if err := e.accounts.Release(ctx, tx, job.ClientID, *job.ArtistID, jobID, job.EscrowAmount); err != nil {
				return nil, err
			}
		}

		payload := map[string]any{"job_id": jobID, "decision": decision, "amount": job.EscrowAmount}
		if err := e.notifyTx(ctx, tx, job.ClientID, notify.EventDisputeResolved, payload); err != nil {
			return nil, err
		}
		if err := e.notifyTx(ctx, tx, *job.ArtistID, notify.EventDisputeResolved, payload); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return e.jobs.GetByID(ctx, jobID)
	})
}

// Cancel lets the client abandon a hired job before approval. The escrow is
// not refunded automatically: a pending refund request is filed for arbiter
// review, and the client's credits stay locked until it is resolved.
func (e *EscrowEngine) Cancel(ctx context.Context, caller *models.Account, jobID uuid.UUID, reason string) (*models.Job, error) {
	return e.withRetry(ctx, func(ctx context.Context) (*models.Job, error) {
		job, err := e.loadJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.ClientID != caller.ID {
			return nil, ErrUnauthorized
		}
		if job.Status != models.JobStatusInProgress && job.Status != models.JobStatusRevisionRequested {
			return nil, ErrInvalidState
		}
		if job.ArtistID == nil {
			return nil, ErrInvariantViolation
		}

		tx, err := e.pool.Begin(ctx)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback(ctx)

		ok, err := e.jobs.MarkCancelled(ctx, tx, jobID, job.Status)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errTransitionRace
		}
		if err := e.refunds.CreateTx(ctx, tx, &models.RefundRequest{
			ID:       uuid.New(),
			JobID:    jobID,
			ClientID: job.ClientID,
			ArtistID: *job.ArtistID,
			Amount:   job.EscrowAmount,
			Reason:   reason,
			Status:   models.RefundPending,
		}); err != nil {
			return nil, err
		}
		if err := e.notifyTx(ctx, tx, *job.ArtistID, notify.EventJobCancelled, map[string]any{
			"job_id": jobID, "reason": reason,
		}); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return e.jobs.GetByID(ctx, jobID)
	})
}

// ResolveRefundRequest settles a refund request filed by Cancel. approve
// unlocks the escrow back to the client; reject releases it to the artist.
func (e *EscrowEngine) ResolveRefundRequest(ctx context.Context, caller *models.Account, requestID uuid.UUID, approve bool) (*models.RefundRequest, error) {
	if caller.Role != models.RoleArbiter {
		return nil, ErrUnauthorized
	}
	req, err := e.refunds.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if req.Status != models.RefundPending {
		return nil, ErrInvalidState
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	status := models.RefundApproved
	if !approve {
		status = models.RefundRejected
	}
	ok, err := e.refunds.MarkResolvedTx(ctx, tx, requestID, caller.ID, status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	if approve {
		if err := e.accounts.Unlock(ctx, tx, req.ClientID, req.JobID, req.Amount); err != nil {
			return nil, err
		}
	} else {
		if err := e.accounts.Release(ctx, tx, req.ClientID, req.ArtistID, req.JobID, req.Amount); err != nil {
			return nil, err
		}
	}
	if err := e.notifyTx(ctx, tx, req.ClientID, notify.EventRefundResolved, map[string]any{
		"job_id": req.JobID, "request_id": requestID, "approved": approve,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	req.Status = status
	req.ResolvedBy = &caller.ID
	return req, nil
}

// --- helpers ---

// withRetry runs one transition attempt up to maxTransitionRetries times.
// Attempts re-read the job, so a lost race either becomes a clean
// ErrInvalidState on the next pass or succeeds against the new status.
func (e *EscrowEngine) withRetry(ctx context.Context, attempt func(ctx context.Context) (*models.Job, error)) (*models.Job, error) {
	for i := 0; i < maxTransitionRetries; i++ {
		job, err := attempt(ctx)
		if errors.Is(err, errTransitionRace) {
			e.logger.Warn("job transition lost race, retrying", "attempt", i+1)
			continue
		}
		return job, err
	}
	return nil, ErrConflict
}

func (e *EscrowEngine) loadJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	job, err := e.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// reviewLatestSubmission updates the latest non-rejected submission's review
// status. Missing submissions are tolerated: the job status is what drives
// the state machine.
func (e *EscrowEngine) reviewLatestSubmission(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, status string, note *string) error {
	sub, err := e.submissions.LatestReviewableTx(ctx, tx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	return e.submissions.SetStatusTx(ctx, tx, sub.ID, status, note)
}

func (e *EscrowEngine) notifyTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, eventType string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return e.enqueue(ctx, tx, notify.NotificationArgs{UserID: userID, Type: eventType, Payload: body})
}
