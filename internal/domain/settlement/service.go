package settlement

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/ledger"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/platform/metrics"
)

type Auditor interface {
	Record(ctx context.Context, action, entityType, entityID string, before, after any) error
}

// JobQueue runs work in the background. It is satisfied by platform/jobs.
type JobQueue interface {
	Enqueue(jobType, subjectID string, run func(context.Context) (any, error))
}

type Deps struct {
	Store   StoreAPI
	Drafts  DraftStore
	Locker  PayeeLocker
	Audit   Auditor
	Metrics *metrics.Collector
	Jobs    JobQueue
	Cipher  Cipher
}

type Options struct {
	Policy            Policy
	DraftTTL          time.Duration
	LockTTL           time.Duration
	CommitMaxAttempts int
	StatementDir      string
}

type Service struct {
	store   StoreAPI
	drafts  DraftStore
	locker  PayeeLocker
	audit   Auditor
	metrics *metrics.Collector
	jobs    JobQueue
	cipher  Cipher
	opts    Options
	now     func() time.Time
	newID   func() string
}

func NewService(deps Deps, opts Options) *Service {
	if deps.Drafts == nil {
		deps.Drafts = NewMemoryDrafts()
	}
	if deps.Locker == nil {
		deps.Locker = NewLocalLocker()
	}
	if opts.DraftTTL <= 0 {
		opts.DraftTTL = 30 * time.Minute
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.CommitMaxAttempts < 1 {
		opts.CommitMaxAttempts = 1
	}
	if opts.StatementDir == "" {
		opts.StatementDir = "storage/statements"
	}
	return &Service{
		store:   deps.Store,
		drafts:  deps.Drafts,
		locker:  deps.Locker,
		audit:   deps.Audit,
		metrics: deps.Metrics,
		jobs:    deps.Jobs,
		cipher:  deps.Cipher,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// Draft computes a settlement from one versioned read and keeps it for
// confirmation. Nothing in the ledger changes until Commit.
func (s *Service) Draft(ctx context.Context, req DraftRequest) (Draft, error) {
	draft, err := s.build(ctx, req)
	if err != nil {
		return Draft{}, err
	}
	if err := s.drafts.Save(ctx, draft, s.opts.DraftTTL); err != nil {
		return Draft{}, err
	}
	return draft, nil
}

// Commit finalizes a stored draft. A stale obligation version fails the
// commit with ledger.ErrConcurrentModification and discards the draft.
func (s *Service) Commit(ctx context.Context, draftID string) (Settlement, error) {
	draft, err := s.drafts.Load(ctx, draftID)
	if err != nil {
		return Settlement{}, err
	}
	release, err := s.locker.Lock(ctx, draft.Settlement.PayeeID, s.opts.LockTTL)
	if err != nil {
		s.metrics.CommitOutcome("busy")
		return Settlement{}, err
	}
	defer release()

	st, err := s.commit(ctx, draft)
	if err == nil || errors.Is(err, ledger.ErrConcurrentModification) || errors.Is(err, ErrJobAlreadySettled) {
		if delErr := s.drafts.Delete(ctx, draftID); delErr != nil {
			slog.Warn("settlement draft delete failed", "draftId", draftID, "err", delErr)
		}
	}
	return st, err
}

// Settle builds and commits in one call, rebuilding from a fresh snapshot
// when another settlement wins the race for an obligation.
func (s *Service) Settle(ctx context.Context, req DraftRequest) (Settlement, error) {
	release, err := s.locker.Lock(ctx, strings.TrimSpace(req.PayeeID), s.opts.LockTTL)
	if err != nil {
		s.metrics.CommitOutcome("busy")
		return Settlement{}, err
	}
	defer release()

	var lastErr error
	for attempt := 1; attempt <= s.opts.CommitMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Settlement{}, err
		}
		draft, err := s.build(ctx, req)
		if err != nil {
			return Settlement{}, err
		}
		st, err := s.commit(ctx, draft)
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, ledger.ErrConcurrentModification) {
			return Settlement{}, err
		}
		lastErr = err
		if attempt < s.opts.CommitMaxAttempts {
			s.metrics.CommitRetry()
			slog.Info("settlement commit retry", "payeeId", req.PayeeID, "attempt", attempt)
		}
	}
	return Settlement{}, lastErr
}

// Reverse voids a finalized settlement and restores every obligation it
// touched. Either all obligations are restored or none are.
func (s *Service) Reverse(ctx context.Context, settlementID string) (Settlement, error) {
	st, err := s.store.Get(ctx, settlementID)
	if err != nil {
		return Settlement{}, err
	}
	switch st.Status {
	case StatusVoid:
		return Settlement{}, ErrAlreadyVoid
	case StatusFinalized:
	default:
		return Settlement{}, ErrNotFinalized
	}

	release, err := s.locker.Lock(ctx, st.PayeeID, s.opts.LockTTL)
	if err != nil {
		return Settlement{}, err
	}
	defer release()

	deltas, err := s.reversalDeltas(ctx, st)
	if err != nil {
		s.metrics.ReversalOutcome(reversalOutcome(err))
		return Settlement{}, err
	}

	voidedAt := s.now()
	if err := s.store.Void(ctx, st.ID, deltas, voidedAt); err != nil {
		s.metrics.ReversalOutcome(reversalOutcome(err))
		return Settlement{}, err
	}

	before := st
	st.Status = StatusVoid
	st.VoidedAt = &voidedAt
	s.metrics.ReversalOutcome("reversed")
	s.record(ctx, ActionReverse, st.ID, before, st)
	return st, nil
}

func (s *Service) reversalDeltas(ctx context.Context, st Settlement) ([]ledger.Delta, error) {
	ids := make([]string, 0, len(st.Allocations))
	for _, a := range st.Allocations {
		ids = append(ids, a.ObligationID)
	}
	current, err := s.store.Obligations(ctx, ids)
	if err != nil {
		return nil, err
	}
	deltas, err := ledger.Reverse(st.ID, st.Allocations, current)
	if err != nil {
		return nil, err
	}
	if st.CarriedDebtObligationID == "" {
		return deltas, nil
	}
	carried, err := s.store.CarriedDebtFrom(ctx, st.ID)
	if err != nil {
		return nil, err
	}
	for _, o := range carried {
		delta, err := ledger.ReverseOrigin(st.ID, o)
		if err != nil {
			return nil, err
		}
		deltas = append(deltas, delta)
	}
	return deltas, nil
}

func (s *Service) Get(ctx context.Context, settlementID string) (Settlement, error) {
	return s.store.Get(ctx, settlementID)
}

func (s *Service) List(ctx context.Context, payeeID string, limit, offset int) ([]Settlement, int, error) {
	total, err := s.store.Count(ctx, payeeID)
	if err != nil {
		return nil, 0, err
	}
	settlements, err := s.store.List(ctx, payeeID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return settlements, total, nil
}

// Statement returns the statement PDF, rendering and storing it when the
// background job has not produced one yet.
func (s *Service) Statement(ctx context.Context, settlementID string) ([]byte, error) {
	st, err := s.store.Get(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if st.StatementPath != "" {
		data, err := readStatement(st.StatementPath, s.cipher)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	pdf, _, err := s.storeStatement(ctx, st)
	return pdf, err
}

// BackfillStatements renders statements the queue dropped or failed on.
func (s *Service) BackfillStatements(ctx context.Context) (any, error) {
	pending, err := s.store.MissingStatements(ctx, backfillBatch)
	if err != nil {
		return nil, err
	}
	written := 0
	for _, st := range pending {
		if _, _, err := s.storeStatement(ctx, st); err != nil {
			slog.Warn("statement backfill failed", "settlementId", st.ID, "err", err)
			continue
		}
		written++
	}
	return map[string]any{"pending": len(pending), "written": written}, nil
}

func (s *Service) Register(ctx context.Context, filter RegisterFilter) ([]byte, error) {
	settlements, err := s.store.Register(ctx, filter)
	if err != nil {
		return nil, err
	}
	return RenderRegister(settlements)
}

func (s *Service) build(ctx context.Context, req DraftRequest) (Draft, error) {
	req = normalizeRequest(req)
	if req.PayeeID == "" {
		return Draft{}, ledger.ErrPayeeRequired
	}
	payee, err := s.store.GetPayee(ctx, req.PayeeID)
	if err != nil {
		return Draft{}, err
	}
	jobs, err := s.store.JobsByID(ctx, req.JobIDs)
	if err != nil {
		return Draft{}, err
	}
	snapshot, err := s.store.Snapshot(ctx, payee.ID)
	if err != nil {
		return Draft{}, err
	}

	now := s.now()
	draft, err := Build(BuildInput{
		SettlementID:         s.newID(),
		Payee:                payee,
		Jobs:                 jobs,
		ManualDeductions:     req.ManualDeductions,
		StatutoryWithholding: payee.StatutoryWithholding(),
		Policy:               s.opts.Policy,
		Snapshot:             snapshot,
		NewID:                s.newID,
		Now:                  now,
	})
	if err != nil {
		return Draft{}, err
	}
	draft.Request = req
	draft.ExpiresAt = now.Add(s.opts.DraftTTL)
	s.metrics.DraftBuilt(len(draft.Settlement.Warnings))
	return draft, nil
}

func (s *Service) commit(ctx context.Context, draft Draft) (Settlement, error) {
	finalizedAt := s.now()
	if err := s.store.Create(ctx, draft, finalizedAt); err != nil {
		s.metrics.CommitOutcome(commitOutcome(err))
		return Settlement{}, err
	}

	st := draft.Settlement
	st.Status = StatusFinalized
	st.FinalizedAt = &finalizedAt

	byCategory := make(map[string]decimal.Decimal, len(st.Deductions.Obligations))
	for category, amount := range st.Deductions.Obligations {
		byCategory[string(category)] = amount
	}
	s.metrics.Committed(byCategory, st.CarriedDebt)
	s.record(ctx, ActionCommit, st.ID, nil, st)

	if s.jobs != nil {
		committed := st
		s.jobs.Enqueue(JobStatement, st.ID, func(ctx context.Context) (any, error) {
			_, path, err := s.storeStatement(ctx, committed)
			return map[string]any{"settlementId": committed.ID, "path": path}, err
		})
	}
	return st, nil
}

func (s *Service) storeStatement(ctx context.Context, st Settlement) ([]byte, string, error) {
	pdf, err := RenderStatement(st)
	if err != nil {
		return nil, "", err
	}
	path, err := writeStatement(s.opts.StatementDir, st.ID, pdf, s.cipher)
	if err != nil {
		return nil, "", err
	}
	if err := s.store.SetStatementPath(ctx, st.ID, path); err != nil {
		slog.Warn("statement path update failed", "settlementId", st.ID, "err", err)
	}
	return pdf, path, nil
}

func (s *Service) record(ctx context.Context, action, id string, before, after any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, action, EntitySettlement, id, before, after); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}
}

func normalizeRequest(req DraftRequest) DraftRequest {
	req.PayeeID = strings.TrimSpace(req.PayeeID)
	jobIDs := make([]string, 0, len(req.JobIDs))
	for _, id := range req.JobIDs {
		if id = strings.TrimSpace(id); id != "" {
			jobIDs = append(jobIDs, id)
		}
	}
	req.JobIDs = jobIDs
	return req
}

func commitOutcome(err error) string {
	switch {
	case errors.Is(err, ledger.ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, ErrJobAlreadySettled):
		return "job_already_settled"
	default:
		return "error"
	}
}

func reversalOutcome(err error) string {
	switch {
	case errors.Is(err, ledger.ErrOrderingViolation):
		return "ordering_violation"
	case errors.Is(err, ledger.ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, ErrAlreadyVoid):
		return "already_void"
	default:
		return "error"
	}
}
