package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierly/backend/internal/models"
	"github.com/atelierly/backend/internal/payments"
)

type mockIntentCreator struct {
	intent *payments.PaymentIntent
	err    error
}

func (m *mockIntentCreator) CreatePaymentIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*payments.PaymentIntent, error) {
	return m.intent, m.err
}

type mockCreditor struct {
	credited map[string]int64 // idempotency key -> amount
}

func (m *mockCreditor) Credit(ctx context.Context, userID uuid.UUID, amount int64, description, idempotencyKey string) (uuid.UUID, error) {
	if m.credited == nil {
		m.credited = map[string]int64{}
	}
	m.credited[idempotencyKey] = amount
	return uuid.New(), nil
}

func TestTopupCreate(t *testing.T) {
	client := &models.Account{ID: uuid.New(), Role: models.RoleClient}
	processor := &mockIntentCreator{intent: &payments.PaymentIntent{ID: "pi_1", ClientSecret: "sec_1", Amount: 500}}
	h := NewTopupHandler(processor, &mockCreditor{}, "whsec", testLogger())

	rr := httptest.NewRecorder()
	h.Create(rr, authedRequest(http.MethodPost, "/api/v1/topups", `{"amount":500}`, client))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "pi_1")
	assert.Contains(t, rr.Body.String(), "sec_1")
}

func TestTopupCreateRejectsBadAmount(t *testing.T) {
	client := &models.Account{ID: uuid.New(), Role: models.RoleClient}
	h := NewTopupHandler(&mockIntentCreator{}, &mockCreditor{}, "whsec", testLogger())

	rr := httptest.NewRecorder()
	h.Create(rr, authedRequest(http.MethodPost, "/api/v1/topups", `{"amount":-5}`, client))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func webhookBody(userID uuid.UUID, status string) string {
	return `{"payment_intent_id":"pi_9","status":"` + status + `","amount":500,"metadata":{"user_id":"` + userID.String() + `"}}`
}

func TestTopupConfirmCreditsWithIntentKey(t *testing.T) {
	userID := uuid.New()
	creditor := &mockCreditor{}
	h := NewTopupHandler(&mockIntentCreator{}, creditor, "whsec", testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/topups/confirm",
		strings.NewReader(webhookBody(userID, "succeeded")))
	req.Header.Set("X-Webhook-Secret", "whsec")

	rr := httptest.NewRecorder()
	h.Confirm(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.EqualValues(t, 500, creditor.credited["pi_9"])
}

func TestTopupConfirmRejectsBadSecret(t *testing.T) {
	creditor := &mockCreditor{}
	h := NewTopupHandler(&mockIntentCreator{}, creditor, "whsec", testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/topups/confirm", strings.NewReader(webhookBody(uuid.New(), "succeeded")))
	req.Header.Set("X-Webhook-Secret", "wrong")

	rr := httptest.NewRecorder()
	h.Confirm(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, creditor.credited)
}

func TestTopupConfirmIgnoresNonSettlement(t *testing.T) {
	creditor := &mockCreditor{}
	h := NewTopupHandler(&mockIntentCreator{}, creditor, "whsec", testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/topups/confirm", strings.NewReader(webhookBody(uuid.New(), "processing")))
	req.Header.Set("X-Webhook-Secret", "whsec")

	rr := httptest.NewRecorder()
	h.Confirm(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, creditor.credited)
}
