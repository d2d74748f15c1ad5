package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

const ctxSpendKey contextKey = "parsed_spend"

// parsedSpend is stored in context so the handler can read the hire amount
// without re-parsing the body.
type parsedSpend struct {
	Amount int64 `json:"amount"`
}

// AmountFromCtx returns the amount parsed by SpendLimit, or 0 if not set.
func AmountFromCtx(ctx context.Context) int64 {
	if s, ok := ctx.Value(ctxSpendKey).(*parsedSpend); ok {
		return s.Amount
	}
	return 0
}

// DailySpendFunc computes today's escrow spend for an account.
type DailySpendFunc func(ctx context.Context, userID uuid.UUID) (int64, error)

// SpendLimit enforces the account's optional per-job and daily escrow caps
// on hire requests. Reads the body to extract "amount", then replaces r.Body
// so the handler can re-read it.
func SpendLimit(dailySpend DailySpendFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc := AccountFromCtx(r.Context())
			if acc == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek parsedSpend
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if peek.Amount <= 0 {
				http.Error(w, `{"error":"amount must be > 0"}`, http.StatusBadRequest)
				return
			}

			if acc.MaxPerJob != nil && peek.Amount > *acc.MaxPerJob {
				http.Error(w, fmt.Sprintf(`{"error":"amount %d exceeds per-job limit %d"}`, peek.Amount, *acc.MaxPerJob), http.StatusForbidden)
				return
			}

			if acc.MaxPerDay != nil {
				spent, err := dailySpend(r.Context(), acc.ID)
				if err != nil {
					http.Error(w, `{"error":"failed to check daily spend"}`, http.StatusInternalServerError)
					return
				}
				if spent+peek.Amount > *acc.MaxPerDay {
					http.Error(w, fmt.Sprintf(`{"error":"daily spend %d + amount %d exceeds daily limit %d"}`, spent, peek.Amount, *acc.MaxPerDay), http.StatusForbidden)
					return
				}
			}

			ctx := context.WithValue(r.Context(), ctxSpendKey, &peek)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
