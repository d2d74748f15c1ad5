package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/atelierly/backend/internal/middleware"
	"github.com/atelierly/backend/internal/payments"
)

// webhookSecretHeader carries the shared secret on processor callbacks.
const webhookSecretHeader = "X-Webhook-Secret"

// IntentCreator opens charges with the payment processor.
type IntentCreator interface {
	CreatePaymentIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*payments.PaymentIntent, error)
}

// Creditor mints platform credits once a charge settles.
type Creditor interface {
	Credit(ctx context.Context, userID uuid.UUID, amount int64, description, idempotencyKey string) (uuid.UUID, error)
}

type TopupHandler struct {
	processor     IntentCreator
	balances      Creditor
	webhookSecret string
	log           *slog.Logger
}

func NewTopupHandler(processor IntentCreator, balances Creditor, webhookSecret string, log *slog.Logger) *TopupHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TopupHandler{processor: processor, balances: balances, webhookSecret: webhookSecret, log: log}
}

// Create handles POST /api/v1/topups. Opens a payment intent with the
// processor; the frontend completes the charge with the client secret.
func (h *TopupHandler) Create(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be > 0")
		return
	}
	intent, err := h.processor.CreatePaymentIntent(r.Context(), req.Amount, "usd", map[string]string{
		"user_id": acc.ID.String(),
	})
	if err != nil {
		h.log.Error("create payment intent failed", "error", err)
		writeError(w, http.StatusBadGateway, "payment processor unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"payment_intent_id": intent.ID,
		"client_secret":     intent.ClientSecret,
		"amount":            intent.Amount,
	})
}

type topupWebhook struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Metadata        struct {
		UserID string `json:"user_id"`
	} `json:"metadata"`
}

// Confirm handles POST /api/v1/topups/confirm: the processor's settlement
// webhook. Credits the account using the intent ID as idempotency key, so
// webhook redelivery never double-credits.
func (h *TopupHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get(webhookSecretHeader)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.webhookSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "bad webhook secret")
		return
	}
	var hook topupWebhook
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if hook.Status != "succeeded" {
		// Acknowledge but ignore non-settlement events.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	userID, err := uuid.Parse(hook.Metadata.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id in metadata")
		return
	}
	txID, err := h.balances.Credit(r.Context(), userID, hook.Amount,
		fmt.Sprintf("top-up %s", hook.PaymentIntentID), hook.PaymentIntentID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction_id": txID})
}
