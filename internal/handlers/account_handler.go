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

// AccountStore persists account settings changes.
type AccountStore interface {
	UpdateSettings(ctx context.Context, a *models.Account) error
}

// LedgerReader lists a user's ledger entries.
type LedgerReader interface {
	ListByUser(ctx context.Context, userID uuid.UUID, kind string) ([]*models.Transaction, error)
}

// BalanceMover moves available credits between accounts.
type BalanceMover interface {
	Transfer(ctx context.Context, fromUserID, toUserID uuid.UUID, amount int64, description string) (outID, inID uuid.UUID, err error)
}

type AccountHandler struct {
	accounts AccountStore
	ledger   LedgerReader
	balances BalanceMover
	log      *slog.Logger
}

func NewAccountHandler(accounts AccountStore, ledger LedgerReader, balances BalanceMover, log *slog.Logger) *AccountHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AccountHandler{accounts: accounts, ledger: ledger, balances: balances, log: log}
}

// Get handles GET /api/v1/account.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           acc.ID,
		"email":        acc.Email,
		"display_name": acc.DisplayName,
		"role":         acc.Role,
		"available":    acc.Available,
		"locked":       acc.Locked,
		"max_per_job":  acc.MaxPerJob,
		"max_per_day":  acc.MaxPerDay,
		"created_at":   acc.CreatedAt,
	})
}

// UpdateSettings handles PATCH /api/v1/account/settings. Only the provided
// fields change; a null cap clears the limit.
func (h *AccountHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	var body struct {
		DisplayName *string `json:"display_name"`
		MaxPerJob   *int64  `json:"max_per_job"`
		MaxPerDay   *int64  `json:"max_per_day"`
	}
	raw := map[string]json.RawMessage{}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	apply := func(key string, dst any) bool {
		v, ok := raw[key]
		if !ok {
			return false
		}
		return json.Unmarshal(v, dst) == nil
	}
	if apply("display_name", &body.DisplayName) && body.DisplayName != nil {
		acc.DisplayName = *body.DisplayName
	}
	if apply("max_per_job", &body.MaxPerJob) {
		acc.MaxPerJob = body.MaxPerJob
	}
	if apply("max_per_day", &body.MaxPerDay) {
		acc.MaxPerDay = body.MaxPerDay
	}
	if (acc.MaxPerJob != nil && *acc.MaxPerJob < 0) || (acc.MaxPerDay != nil && *acc.MaxPerDay < 0) {
		writeError(w, http.StatusBadRequest, "limits must be >= 0")
		return
	}
	if err := h.accounts.UpdateSettings(r.Context(), acc); err != nil {
		h.log.Error("update settings failed", "error", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListTransactions handles GET /api/v1/transactions?kind=.
func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	entries, err := h.ledger.ListByUser(r.Context(), acc.ID, r.URL.Query().Get("kind"))
	if err != nil {
		h.log.Error("list transactions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Transfer handles POST /api/v1/transfers: a direct available-to-available
// credit transfer outside any escrow, e.g. a tip.
func (h *AccountHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	var req struct {
		ToUserID    uuid.UUID `json:"to_user_id"`
		Amount      int64     `json:"amount"`
		Description string    `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ToUserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "to_user_id is required")
		return
	}
	if req.ToUserID == acc.ID {
		writeError(w, http.StatusBadRequest, "cannot transfer to yourself")
		return
	}
	outID, inID, err := h.balances.Transfer(r.Context(), acc.ID, req.ToUserID, req.Amount, req.Description)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"transfer_out_id": outID,
		"transfer_in_id":  inID,
	})
}
