package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierly/backend/internal/models"
	"github.com/atelierly/backend/internal/services"
)

type mockJobReader struct {
	created []*models.Job
	jobs    map[uuid.UUID]*models.Job
}

func (m *mockJobReader) Create(ctx context.Context, j *models.Job) error {
	m.created = append(m.created, j)
	return nil
}

func (m *mockJobReader) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return j, nil
}

func (m *mockJobReader) List(ctx context.Context, userID uuid.UUID, role, status string) ([]*models.Job, error) {
	var out []*models.Job
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out, nil
}

type mockSubmissionReader struct{}

func (mockSubmissionReader) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.WorkSubmission, error) {
	return nil, nil
}

type mockBriefChecker struct {
	err error
}

func (m *mockBriefChecker) ValidateBrief(kind string, brief json.RawMessage) error { return m.err }

func TestJobHandlerCreate(t *testing.T) {
	client := &models.Account{ID: uuid.New(), Role: models.RoleClient}
	jobs := &mockJobReader{jobs: map[uuid.UUID]*models.Job{}}
	h := NewJobHandler(jobs, mockSubmissionReader{}, &mockBriefChecker{}, testLogger())

	body := `{"title":"cat portrait","brief":{"summary":"my cat","medium":"ink"}}`
	rr := httptest.NewRecorder()
	h.Create(rr, authedRequest(http.MethodPost, "/api/v1/jobs", body, client))

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Len(t, jobs.created, 1)
	assert.Equal(t, models.JobStatusOpen, jobs.created[0].Status)
	assert.Equal(t, client.ID, jobs.created[0].ClientID)
}

func TestJobHandlerCreateRejectsArtists(t *testing.T) {
	artist := &models.Account{ID: uuid.New(), Role: models.RoleArtist}
	h := NewJobHandler(&mockJobReader{}, mockSubmissionReader{}, &mockBriefChecker{}, testLogger())

	body := `{"title":"x","brief":{}}`
	rr := httptest.NewRecorder()
	h.Create(rr, authedRequest(http.MethodPost, "/api/v1/jobs", body, artist))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestJobHandlerCreateInvalidBrief(t *testing.T) {
	client := &models.Account{ID: uuid.New(), Role: models.RoleClient}
	checker := &mockBriefChecker{err: fmt.Errorf("%w: missing medium", services.ErrValidation)}
	h := NewJobHandler(&mockJobReader{}, mockSubmissionReader{}, checker, testLogger())

	body := `{"title":"x","brief":{"summary":"no medium"}}`
	rr := httptest.NewRecorder()
	h.Create(rr, authedRequest(http.MethodPost, "/api/v1/jobs", body, client))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestJobHandlerGetVisibility(t *testing.T) {
	client := &models.Account{ID: uuid.New(), Role: models.RoleClient}
	artist := &models.Account{ID: uuid.New(), Role: models.RoleArtist}
	stranger := &models.Account{ID: uuid.New(), Role: models.RoleClient}
	arbiter := &models.Account{ID: uuid.New(), Role: models.RoleArbiter}

	job := &models.Job{ID: uuid.New(), ClientID: client.ID, ArtistID: &artist.ID, Status: models.JobStatusInProgress}
	jobs := &mockJobReader{jobs: map[uuid.UUID]*models.Job{job.ID: job}}
	h := NewJobHandler(jobs, mockSubmissionReader{}, &mockBriefChecker{}, testLogger())

	cases := []struct {
		name string
		acc  *models.Account
		want int
	}{
		{"client", client, http.StatusOK},
		{"artist", artist, http.StatusOK},
		{"arbiter", arbiter, http.StatusOK},
		{"stranger", stranger, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := authedRequest(http.MethodGet, "/x", "", tc.acc)
			req.SetPathValue("id", job.ID.String())
			rr := httptest.NewRecorder()
			h.Get(rr, req)
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestJobHandlerGetNotFound(t *testing.T) {
	client := &models.Account{ID: uuid.New(), Role: models.RoleClient}
	h := NewJobHandler(&mockJobReader{jobs: map[uuid.UUID]*models.Job{}}, mockSubmissionReader{}, &mockBriefChecker{}, testLogger())

	req := authedRequest(http.MethodGet, "/x", "", client)
	req.SetPathValue("id", uuid.NewString())
	rr := httptest.NewRecorder()
	h.Get(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
