package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// Notification event types emitted by the escrow engine.
const (
	EventJobHired          = "job.hired"
	EventWorkSubmitted     = "job.work_submitted"
	EventRevisionRequested = "job.revision_requested"
	EventJobApproved       = "job.approved"
	EventJobDisputed       = "job.disputed"
	EventDisputeResolved   = "job.dispute_resolved"
	EventJobCancelled      = "job.cancelled"
	EventRefundResolved    = "refund.resolved"
)

// NotificationArgs is the queue payload for one notification delivery.
type NotificationArgs struct {
	UserID  uuid.UUID       `json:"user_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (NotificationArgs) Kind() string { return "deliver_notification" }

// Worker posts notifications to the configured sink. Delivery is
// at-least-once: the queue retries transient failures, and a failed delivery
// never touches ledger state.
type Worker struct {
	river.WorkerDefaults[NotificationArgs]
	sinkURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWorker(sinkURL string, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		sinkURL:    sinkURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[NotificationArgs]) error {
	args := job.Args

	if w.sinkURL == "" {
		w.logger.Info("notification sink not configured, dropping", "user_id", args.UserID, "type", args.Type)
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"user_id": args.UserID,
		"type":    args.Type,
		"payload": args.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.sinkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification sink returned status %d", resp.StatusCode)
	}

	w.logger.Info("notification delivered", "user_id", args.UserID, "type", args.Type)
	return nil
}
