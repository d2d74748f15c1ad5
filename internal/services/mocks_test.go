package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/atelierly/backend/internal/models"
	"github.com/atelierly/backend/internal/notify"
)

// noopTx satisfies pgx.Tx for services that thread a transaction through
// repository calls. The in-memory repositories ignore it.
type noopTx struct{}

func (noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(ctx context.Context) error          { return nil }
func (noopTx) Rollback(ctx context.Context) error        { return nil }
func (noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (noopTx) Conn() *pgx.Conn                                               { return nil }

type fakePool struct{}

func (fakePool) Begin(ctx context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// memTx mimics real transaction semantics for the in-memory stores: each
// mutation registers an undo, and Rollback before Commit reverts them all.
type memTx struct {
	noopTx
	undos     []func()
	committed bool
}

func (t *memTx) Commit(ctx context.Context) error { t.committed = true; return nil }

func (t *memTx) Rollback(ctx context.Context) error {
	if !t.committed {
		for i := len(t.undos) - 1; i >= 0; i-- {
			t.undos[i]()
		}
		t.undos = nil
	}
	return nil
}

type memPool struct{}

func (memPool) Begin(ctx context.Context) (pgx.Tx, error) { return &memTx{}, nil }

func onRollback(tx pgx.Tx, undo func()) {
	if mt, ok := tx.(*memTx); ok {
		mt.undos = append(mt.undos, undo)
	}
}

// memAccountRepo is an in-memory AccountBalanceRepo.
type memAccountRepo struct {
	accounts map[uuid.UUID]*models.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: make(map[uuid.UUID]*models.Account)}
}

func (m *memAccountRepo) add(role string, available, locked int64) *models.Account {
	a := &models.Account{ID: uuid.New(), Role: role, Available: available, Locked: locked}
	m.accounts[a.ID] = a
	return a
}

func (m *memAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return a, nil
}

func (m *memAccountRepo) AddAvailable(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	a, ok := m.accounts[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	a.Available += amount
	onRollback(tx, func() { a.Available -= amount })
	return a.Available, nil
}

func (m *memAccountRepo) DeductAvailable(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	a, ok := m.accounts[id]
	if !ok || a.Available < amount {
		return 0, pgx.ErrNoRows
	}
	a.Available -= amount
	onRollback(tx, func() { a.Available += amount })
	return a.Available, nil
}

func (m *memAccountRepo) LockFunds(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (bool, error) {
	a, ok := m.accounts[id]
	if !ok || a.Available < amount {
		return false, nil
	}
	a.Available -= amount
	a.Locked += amount
	onRollback(tx, func() { a.Available += amount; a.Locked -= amount })
	return true, nil
}

func (m *memAccountRepo) UnlockFunds(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (bool, error) {
	a, ok := m.accounts[id]
	if !ok || a.Locked < amount {
		return false, nil
	}
	a.Locked -= amount
	a.Available += amount
	onRollback(tx, func() { a.Locked += amount; a.Available -= amount })
	return true, nil
}

func (m *memAccountRepo) DeductLocked(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (bool, error) {
	a, ok := m.accounts[id]
	if !ok || a.Locked < amount {
		return false, nil
	}
	a.Locked -= amount
	onRollback(tx, func() { a.Locked += amount })
	return true, nil
}

// memLedger is an in-memory LedgerRepo enforcing the idempotency-key unique
// index the way Postgres does.
type memLedger struct {
	entries []*models.Transaction
}

func (m *memLedger) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	if t.IdempotencyKey != nil {
		for _, e := range m.entries {
			if e.IdempotencyKey != nil && *e.IdempotencyKey == *t.IdempotencyKey {
				return &pgconn.PgError{Code: "23505"}
			}
		}
	}
	t.CreatedAt = time.Now()
	m.entries = append(m.entries, t)
	onRollback(tx, func() { m.entries = m.entries[:len(m.entries)-1] })
	return nil
}

func (m *memLedger) GetByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	for _, e := range m.entries {
		if e.IdempotencyKey != nil && *e.IdempotencyKey == key {
			return e, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memLedger) GetByIdempotencyKeyTx(ctx context.Context, tx pgx.Tx, key string) (*models.Transaction, error) {
	return m.GetByIdempotencyKey(ctx, key)
}

func (m *memLedger) byKind(kind string) []*models.Transaction {
	var out []*models.Transaction
	for _, e := range m.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// memJobStore is an in-memory JobStore with the same compare-and-write
// semantics as the SQL repository.
type memJobStore struct {
	jobs map[uuid.UUID]*models.Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[uuid.UUID]*models.Job)}
}

func (m *memJobStore) addOpen(clientID uuid.UUID) *models.Job {
	j := &models.Job{ID: uuid.New(), ClientID: clientID, Title: "test commission", Status: models.JobStatusOpen}
	m.jobs[j.ID] = j
	return j
}

func (m *memJobStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *j
	return &cp, nil
}

// restoreOnRollback snapshots the job before a transition mutates it.
func (m *memJobStore) restoreOnRollback(tx pgx.Tx, j *models.Job) {
	snapshot := *j
	onRollback(tx, func() { *j = snapshot })
}

func (m *memJobStore) MarkHired(ctx context.Context, tx pgx.Tx, jobID, artistID uuid.UUID, amount int64) (bool, error) {
	j, ok := m.jobs[jobID]
	if !ok || j.Status != models.JobStatusOpen {
		return false, nil
	}
	m.restoreOnRollback(tx, j)
	now := time.Now()
	j.ArtistID = &artistID
	j.EscrowAmount = amount
	j.EscrowLocked = true
	j.Status = models.JobStatusInProgress
	j.HiredAt = &now
	return true, nil
}

func (m *memJobStore) MarkSubmitted(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, workRef string) (bool, error) {
	j, ok := m.jobs[jobID]
	if !ok || (j.Status != models.JobStatusInProgress && j.Status != models.JobStatusRevisionRequested) {
		return false, nil
	}
	m.restoreOnRollback(tx, j)
	now := time.Now()
	j.Status = models.JobStatusSubmitted
	j.SubmittedWorkRef = &workRef
	j.SubmittedAt = &now
	return true, nil
}

func (m *memJobStore) MarkRevisionRequested(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (bool, error) {
	j, ok := m.jobs[jobID]
	if !ok || j.Status != models.JobStatusSubmitted {
		return false, nil
	}
	m.restoreOnRollback(tx, j)
	j.Status = models.JobStatusRevisionRequested
	j.RevisionCount++
	return true, nil
}

func (m *memJobStore) MarkCompleted(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, fromStatus string) (bool, error) {
	j, ok := m.jobs[jobID]
	if !ok || j.Status != fromStatus {
		return false, nil
	}
	m.restoreOnRollback(tx, j)
	now := time.Now()
	j.Status = models.JobStatusCompleted
	j.EscrowLocked = false
	j.CompletedAt = &now
	return true, nil
}

func (m *memJobStore) MarkDisputed(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, reason string) (bool, error) {
	j, ok := m.jobs[jobID]
	if !ok || j.Status != models.JobStatusSubmitted {
		return false, nil
	}
	m.restoreOnRollback(tx, j)
	j.Status = models.JobStatusDisputed
	j.DisputeReason = &reason
	return true, nil
}

func (m *memJobStore) MarkCancelled(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, fromStatus string) (bool, error) {
	j, ok := m.jobs[jobID]
	if !ok || j.Status != fromStatus {
		return false, nil
	}
	m.restoreOnRollback(tx, j)
	now := time.Now()
	j.Status = models.JobStatusCancelled
	j.EscrowLocked = false
	j.CancelledAt = &now
	return true, nil
}

// memSubmissionStore is an in-memory SubmissionStore.
type memSubmissionStore struct {
	subs []*models.WorkSubmission
}

func (m *memSubmissionStore) CreateTx(ctx context.Context, tx pgx.Tx, s *models.WorkSubmission) error {
	s.SubmittedAt = time.Now()
	m.subs = append(m.subs, s)
	onRollback(tx, func() { m.subs = m.subs[:len(m.subs)-1] })
	return nil
}

func (m *memSubmissionStore) LatestReviewableTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.WorkSubmission, error) {
	for i := len(m.subs) - 1; i >= 0; i-- {
		s := m.subs[i]
		if s.JobID == jobID && s.Status != models.SubmissionRejected {
			return s, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memSubmissionStore) SetStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, note *string) error {
	for _, s := range m.subs {
		if s.ID == id {
			prevStatus, prevNote := s.Status, s.Note
			onRollback(tx, func() { s.Status, s.Note = prevStatus, prevNote })
			s.Status = status
			if note != nil {
				s.Note = note
			}
			return nil
		}
	}
	return pgx.ErrNoRows
}

// memRefundStore is an in-memory RefundStore.
type memRefundStore struct {
	reqs map[uuid.UUID]*models.RefundRequest
}

func newMemRefundStore() *memRefundStore {
	return &memRefundStore{reqs: make(map[uuid.UUID]*models.RefundRequest)}
}

func (m *memRefundStore) CreateTx(ctx context.Context, tx pgx.Tx, req *models.RefundRequest) error {
	req.CreatedAt = time.Now()
	m.reqs[req.ID] = req
	onRollback(tx, func() { delete(m.reqs, req.ID) })
	return nil
}

func (m *memRefundStore) GetByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error) {
	r, ok := m.reqs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (m *memRefundStore) MarkResolvedTx(ctx context.Context, tx pgx.Tx, id, resolvedBy uuid.UUID, status string) (bool, error) {
	r, ok := m.reqs[id]
	if !ok || r.Status != models.RefundPending {
		return false, nil
	}
	snapshot := *r
	onRollback(tx, func() { *r = snapshot })
	now := time.Now()
	r.Status = status
	r.ResolvedBy = &resolvedBy
	r.ResolvedAt = &now
	return true, nil
}

// notifyRecorder captures what the engine enqueued.
type notifyRecorder struct {
	sent []notify.NotificationArgs
}

func (n *notifyRecorder) enqueue(ctx context.Context, tx pgx.Tx, args notify.NotificationArgs) error {
	n.sent = append(n.sent, args)
	onRollback(tx, func() { n.sent = n.sent[:len(n.sent)-1] })
	return nil
}

func (n *notifyRecorder) byType(eventType string) []notify.NotificationArgs {
	var out []notify.NotificationArgs
	for _, a := range n.sent {
		if a.Type == eventType {
			out = append(out, a)
		}
	}
	return out
}
