package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/atelierly/backend/internal/middleware"
	"github.com/atelierly/backend/internal/models"
)

// Engine is the job state machine surface the escrow handler drives.
type Engine interface {
	Hire(ctx context.Context, caller *models.Account, jobID, artistID uuid.UUID, amount int64) (*models.Job, error)
	SubmitWork(ctx context.Context, caller *models.Account, jobID uuid.UUID, deliverableRef, previewRef string) (*models.Job, error)
	RequestRevision(ctx context.Context, caller *models.Account, jobID uuid.UUID, note string) (*models.Job, error)
	Approve(ctx context.Context, caller *models.Account, jobID uuid.UUID) (*models.Job, error)
	Dispute(ctx context.Context, caller *models.Account, jobID uuid.UUID, reason string) (*models.Job, error)
	ResolveDispute(ctx context.Context, caller *models.Account, jobID uuid.UUID, decision string) (*models.Job, error)
	Cancel(ctx context.Context, caller *models.Account, jobID uuid.UUID, reason string) (*models.Job, error)
	ResolveRefundRequest(ctx context.Context, caller *models.Account, requestID uuid.UUID, approve bool) (*models.RefundRequest, error)
}

// RefundLister lists refund requests awaiting arbitration.
type RefundLister interface {
	ListPending(ctx context.Context) ([]*models.RefundRequest, error)
}

type EscrowHandler struct {
	engine  Engine
	refunds RefundLister
	log     *slog.Logger
}

func NewEscrowHandler(engine Engine, refunds RefundLister, log *slog.Logger) *EscrowHandler {
	if log == nil {
		log = slog.Default()
	}
	return &EscrowHandler{engine: engine, refunds: refunds, log: log}
}

func jobIDFromPath(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

// Hire handles POST /api/v1/jobs/{id}/hire.
func (h *EscrowHandler) Hire(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	jobID, ok := jobIDFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}
	var req struct {
		ArtistID uuid.UUID `json:"artist_id"`
		Amount   int64     `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ArtistID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "artist_id is required")
		return
	}
	job, err := h.engine.Hire(r.Context(), acc, jobID, req.ArtistID, req.Amount)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// SubmitWork handles POST /api/v1/jobs/{id}/submissions.
func (h *EscrowHandler) SubmitWork(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	jobID, ok := jobIDFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}
	var req struct {
		DeliverableRef string `json:"deliverable_ref"`
		PreviewRef     string `json:"preview_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.DeliverableRef == "" {
		writeError(w, http.StatusBadRequest, "deliverable_ref is required")
		return
	}
	job, err := h.engine.SubmitWork(r.Context(), acc, jobID, req.DeliverableRef, req.PreviewRef)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// RequestRevision handles POST /api/v1/jobs/{id}/revision.
func (h *EscrowHandler) RequestRevision(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	jobID, ok := jobIDFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := h.engine.RequestRevision(r.Context(), acc, jobID, req.Note)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Approve handles POST /api/v1/jobs/{id}/approve.
func (h *EscrowHandler) Approve(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	jobID, ok := jobIDFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}
	job, err := h.engine.Approve(r.Context(), acc, jobID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Dispute handles POST /api/v1/jobs/{id}/dispute.
func (h *EscrowHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	jobID, ok := jobIDFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}
	job, err := h.engine.Dispute(r.Context(), acc, jobID, req.Reason)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ResolveDispute handles POST /api/v1/jobs/{id}/resolve. Arbiter only,
// enforced both by routing and by the engine.
func (h *EscrowHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	jobID, ok := jobIDFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}
	var req struct {
		Decision string `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := h.engine.ResolveDispute(r.Context(), acc, jobID, req.Decision)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Cancel handles POST /api/v1/jobs/{id}/cancel.
func (h *EscrowHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	jobID, ok := jobIDFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := h.engine.Cancel(r.Context(), acc, jobID, req.Reason)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListRefundRequests handles GET /api/v1/refund-requests. Arbiter only.
func (h *EscrowHandler) ListRefundRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.refunds.ListPending(r.Context())
	if err != nil {
		h.log.Error("list refund requests failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if reqs == nil {
		reqs = []*models.RefundRequest{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

// ResolveRefundRequest handles POST /api/v1/refund-requests/{id}/resolve.
func (h *EscrowHandler) ResolveRefundRequest(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	requestID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request ID")
		return
	}
	var req struct {
		Decision string `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Decision != "approve" && req.Decision != "reject" {
		writeError(w, http.StatusBadRequest, "decision must be approve or reject")
		return
	}
	resolved, err := h.engine.ResolveRefundRequest(r.Context(), acc, requestID, req.Decision == "approve")
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}
