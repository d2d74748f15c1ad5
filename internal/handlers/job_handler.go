package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelierly/backend/internal/middleware"
	"github.com/atelierly/backend/internal/models"
	"github.com/atelierly/backend/internal/services"
)

// JobReader is the read-side job repository surface.
type JobReader interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	List(ctx context.Context, userID uuid.UUID, role, status string) ([]*models.Job, error)
}

// SubmissionReader lists a job's delivery rounds.
type SubmissionReader interface {
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.WorkSubmission, error)
}

// BriefChecker validates a commission brief against its schema.
type BriefChecker interface {
	ValidateBrief(kind string, brief json.RawMessage) error
}

type JobHandler struct {
	jobs        JobReader
	submissions SubmissionReader
	briefs      BriefChecker
	log         *slog.Logger
}

func NewJobHandler(jobs JobReader, submissions SubmissionReader, briefs BriefChecker, log *slog.Logger) *JobHandler {
	if log == nil {
		log = slog.Default()
	}
	return &JobHandler{jobs: jobs, submissions: submissions, briefs: briefs, log: log}
}

type CreateJobRequest struct {
	Title string          `json:"title"`
	Brief json.RawMessage `json:"brief"`
}

// Create handles POST /api/v1/jobs. Only clients open commissions; the brief
// must match the commission schema.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc.Role != models.RoleClient {
		writeError(w, http.StatusForbidden, "only clients can open commissions")
		return
	}
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Title == "" || len(req.Brief) == 0 {
		writeError(w, http.StatusBadRequest, "title and brief are required")
		return
	}
	if err := h.briefs.ValidateBrief(services.BriefKindCommission, req.Brief); err != nil {
		if errors.Is(err, services.ErrValidation) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeServiceError(w, h.log, err)
		return
	}

	job := &models.Job{
		ID:       uuid.New(),
		ClientID: acc.ID,
		Title:    req.Title,
		Brief:    req.Brief,
		Status:   models.JobStatusOpen,
	}
	if err := h.jobs.Create(r.Context(), job); err != nil {
		h.log.Error("create job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// Get handles GET /api/v1/jobs/{id}. Visible to the client, the assigned
// artist, and arbiters.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}
	job, err := h.jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.log.Error("get job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !canViewJob(acc, job) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// List handles GET /api/v1/jobs?role=client|artist&status=. Defaults to the
// caller's own role.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	role := r.URL.Query().Get("role")
	if role == "" {
		role = acc.Role
	}
	if role != models.RoleClient && role != models.RoleArtist {
		writeError(w, http.StatusBadRequest, "role must be client or artist")
		return
	}
	jobs, err := h.jobs.List(r.Context(), acc.ID, role, r.URL.Query().Get("status"))
	if err != nil {
		h.log.Error("list jobs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// ListSubmissions handles GET /api/v1/jobs/{id}/submissions.
func (h *JobHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}
	job, err := h.jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.log.Error("get job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !canViewJob(acc, job) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	subs, err := h.submissions.ListByJob(r.Context(), jobID)
	if err != nil {
		h.log.Error("list submissions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if subs == nil {
		subs = []*models.WorkSubmission{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func canViewJob(acc *models.Account, job *models.Job) bool {
	if acc.Role == models.RoleArbiter {
		return true
	}
	if job.ClientID == acc.ID {
		return true
	}
	return job.ArtistID != nil && *job.ArtistID == acc.ID
}
