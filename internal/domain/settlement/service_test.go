package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/driverpay"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/ledger"
)

// fakeStore keeps everything in maps and applies deltas with the same
// version checks as the SQL store.
type fakeStore struct {
	mu          sync.Mutex
	payees      map[string]Payee
	jobs        map[string]driverpay.Job
	obligations map[string]ledger.Obligation
	settlements map[string]Settlement
	settledJobs map[string]string
	paths       map[string]string
	creates     int
	// beforeCreate runs inside Create before the version checks.
	beforeCreate func(f *fakeStore)
}

func newFakeStore() *fakeStore {
	payee := contractor()
	return &fakeStore{
		payees:      map[string]Payee{payee.ID: payee},
		jobs:        map[string]driverpay.Job{},
		obligations: map[string]ledger.Obligation{},
		settlements: map[string]Settlement{},
		settledJobs: map[string]string{},
		paths:       map[string]string{},
	}
}

func (f *fakeStore) addJobs(ids ...string) {
	for _, id := range ids {
		f.jobs[id] = flatJob(id)
	}
}

func (f *fakeStore) GetPayee(_ context.Context, payeeID string) (Payee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payees[payeeID]
	if !ok {
		return Payee{}, ErrPayeeNotFound
	}
	return p, nil
}

func (f *fakeStore) JobsByID(_ context.Context, jobIDs []string) ([]driverpay.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]driverpay.Job, 0, len(jobIDs))
	for _, id := range jobIDs {
		job, ok := f.jobs[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		out = append(out, job)
	}
	return out, nil
}

func (f *fakeStore) Snapshot(_ context.Context, payeeID string) (ledger.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := ledger.Snapshot{PayeeID: payeeID, TakenAt: buildNow}
	for _, o := range f.obligations {
		if o.PayeeID != payeeID {
			continue
		}
		if linked, ok := f.settlements[o.LinkedSettlementID]; ok {
			o.LinkedSettlementFinalized = linked.Status == StatusFinalized
		}
		snap.Obligations = append(snap.Obligations, o)
	}
	sort.Slice(snap.Obligations, func(i, j int) bool { return snap.Obligations[i].ID < snap.Obligations[j].ID })
	return snap, nil
}

func (f *fakeStore) Obligations(_ context.Context, ids []string) (map[string]ledger.Obligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]ledger.Obligation, len(ids))
	for _, id := range ids {
		if o, ok := f.obligations[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

func (f *fakeStore) CarriedDebtFrom(_ context.Context, settlementID string) ([]ledger.Obligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.Obligation
	for _, o := range f.obligations {
		if o.SourceSettlementID == settlementID {
			out = append(out, o)
		}
	}
	return out, nil
}

// applyAll returns the updated obligations, or an error with nothing changed.
func (f *fakeStore) applyAll(deltas []ledger.Delta) (map[string]ledger.Obligation, error) {
	next := make(map[string]ledger.Obligation, len(f.obligations))
	for id, o := range f.obligations {
		next[id] = o
	}
	for _, d := range deltas {
		o, ok := next[d.ObligationID]
		if !ok {
			return nil, ledger.ErrConcurrentModification
		}
		updated, err := ledger.Apply(o, d)
		if err != nil {
			return nil, err
		}
		next[d.ObligationID] = updated
	}
	return next, nil
}

func (f *fakeStore) Create(_ context.Context, draft Draft, finalizedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.beforeCreate != nil {
		f.beforeCreate(f)
	}
	for _, jobID := range draft.Settlement.JobIDs {
		if _, taken := f.settledJobs[jobID]; taken {
			return fmt.Errorf("%w: %s", ErrJobAlreadySettled, jobID)
		}
	}
	next, err := f.applyAll(draft.Deltas)
	if err != nil {
		return err
	}
	if draft.CarriedObligation != nil {
		next[draft.CarriedObligation.ID] = *draft.CarriedObligation
	}
	f.obligations = next
	st := draft.Settlement
	st.Status = StatusFinalized
	st.FinalizedAt = &finalizedAt
	f.settlements[st.ID] = st
	for _, jobID := range st.JobIDs {
		f.settledJobs[jobID] = st.ID
	}
	return nil
}

func (f *fakeStore) Void(_ context.Context, settlementID string, deltas []ledger.Delta, voidedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.settlements[settlementID]
	if !ok || st.Status != StatusFinalized {
		return ErrAlreadyVoid
	}
	next, err := f.applyAll(deltas)
	if err != nil {
		return err
	}
	f.obligations = next
	st.Status = StatusVoid
	st.VoidedAt = &voidedAt
	f.settlements[settlementID] = st
	for _, jobID := range st.JobIDs {
		delete(f.settledJobs, jobID)
	}
	return nil
}

func (f *fakeStore) Get(_ context.Context, settlementID string) (Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.settlements[settlementID]
	if !ok {
		return Settlement{}, ErrSettlementNotFound
	}
	st.StatementPath = f.paths[settlementID]
	return st, nil
}

func (f *fakeStore) Count(_ context.Context, payeeID string) (int, error) {
	list, _ := f.List(context.Background(), payeeID, 1000, 0)
	return len(list), nil
}

func (f *fakeStore) List(_ context.Context, payeeID string, limit, offset int) ([]Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Settlement
	for _, st := range f.settlements {
		if st.PayeeID == payeeID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) Register(ctx context.Context, filter RegisterFilter) ([]Settlement, error) {
	return f.List(ctx, filter.PayeeID, 1000, 0)
}

func (f *fakeStore) SetStatementPath(_ context.Context, settlementID, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths[settlementID] = path
	return nil
}

func (f *fakeStore) MissingStatements(_ context.Context, limit int) ([]Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Settlement
	for id, st := range f.settlements {
		if st.Status == StatusFinalized && f.paths[id] == "" && len(out) < limit {
			out = append(out, st)
		}
	}
	return out, nil
}

type fakeAuditor struct {
	actions []string
}

func (a *fakeAuditor) Record(_ context.Context, action, _ string, _ string, _, _ any) error {
	a.actions = append(a.actions, action)
	return nil
}

func newTestService(t *testing.T, store *fakeStore, opts Options) (*Service, *fakeAuditor) {
	t.Helper()
	audit := &fakeAuditor{}
	if opts.Policy.Withholding == nil {
		opts.Policy = defaultPolicy()
	}
	if opts.StatementDir == "" {
		opts.StatementDir = t.TempDir()
	}
	svc := NewService(Deps{Store: store, Audit: audit}, opts)
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%02d", seq)
	}
	svc.now = func() time.Time { return buildNow }
	return svc, audit
}

func TestServiceDraftCommitSpillover(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addJobs("j1", "j2")
	store.obligations["o1"] = activeObligation("o1", "1000", "0")
	svc, audit := newTestService(t, store, Options{})

	draft, err := svc.Draft(ctx, DraftRequest{PayeeID: " payee-x ", JobIDs: []string{"j1", " "}})
	require.NoError(t, err)
	assert.Equal(t, []string{"j1"}, draft.Settlement.JobIDs)
	assert.Equal(t, int64(1), store.obligations["o1"].Version, "draft must not touch the ledger")

	first, err := svc.Commit(ctx, draft.Settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, first.Status)
	require.NotNil(t, first.FinalizedAt)
	assert.True(t, first.Deductions.ObligationTotal.Equal(dec("600")))
	assert.True(t, first.NetPayable.IsZero())

	o := store.obligations["o1"]
	assert.True(t, o.Remaining().Equal(dec("400")))
	assert.Equal(t, ledger.StatusActive, o.Status)
	assert.Equal(t, int64(2), o.Version)

	_, err = svc.Commit(ctx, draft.Settlement.ID)
	assert.ErrorIs(t, err, ErrDraftNotFound)

	second, err := svc.Settle(ctx, DraftRequest{PayeeID: "payee-x", JobIDs: []string{"j2"}})
	require.NoError(t, err)
	assert.True(t, second.Deductions.ObligationTotal.Equal(dec("400")))
	assert.True(t, second.NetPayable.Equal(dec("200")))
	assertBalanced(t, second)

	o = store.obligations["o1"]
	assert.Equal(t, ledger.StatusPaid, o.Status)
	assert.True(t, o.Remaining().IsZero())
	assert.Equal(t, second.ID, o.LinkedSettlementID)
	assert.Equal(t, []string{ActionCommit, ActionCommit}, audit.actions)
}

func TestServiceCommitStaleDraftConflicts(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addJobs("j1", "j2")
	store.obligations["o1"] = activeObligation("o1", "1000", "0")
	svc, _ := newTestService(t, store, Options{})

	a, err := svc.Draft(ctx, DraftRequest{PayeeID: "payee-x", JobIDs: []string{"j1"}})
	require.NoError(t, err)
	b, err := svc.Draft(ctx, DraftRequest{PayeeID: "payee-x", JobIDs: []string{"j2"}})
	require.NoError(t, err)

	_, err = svc.Commit(ctx, a.Settlement.ID)
	require.NoError(t, err)

	_, err = svc.Commit(ctx, b.Settlement.ID)
	require.ErrorIs(t, err, ledger.ErrConcurrentModification)
	assert.True(t, store.obligations["o1"].AmountPaid.Equal(dec("600")), "stale draft must not double-allocate")
	_, err = svc.Commit(ctx, b.Settlement.ID)
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestServiceSettleRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addJobs("j1")
	store.obligations["o1"] = activeObligation("o1", "1000", "0")
	store.beforeCreate = func(f *fakeStore) {
		if f.creates == 1 {
			o := f.obligations["o1"]
			o.AmountPaid = dec("900")
			o.LastSettlementID = "elsewhere"
			o.Version++
			f.obligations["o1"] = o
		}
	}
	svc, _ := newTestService(t, store, Options{CommitMaxAttempts: 3})

	st, err := svc.Settle(ctx, DraftRequest{PayeeID: "payee-x", JobIDs: []string{"j1"}})
	require.NoError(t, err)
	assert.Equal(t, 2, store.creates)
	assert.True(t, st.Deductions.ObligationTotal.Equal(dec("100")), "rebuilt from the fresh snapshot")
	assert.True(t, st.NetPayable.Equal(dec("500")))
	assert.Equal(t, ledger.StatusPaid, store.obligations["o1"].Status)
}

func TestServiceSettleGivesUp(t *testing.T) {
	store := newFakeStore()
	store.addJobs("j1")
	store.obligations["o1"] = activeObligation("o1", "1000", "0")
	store.beforeCreate = func(f *fakeStore) {
		o := f.obligations["o1"]
		o.Version++
		f.obligations["o1"] = o
	}
	svc, _ := newTestService(t, store, Options{CommitMaxAttempts: 3})

	_, err := svc.Settle(context.Background(), DraftRequest{PayeeID: "payee-x", JobIDs: []string{"j1"}})
	require.ErrorIs(t, err, ledger.ErrConcurrentModification)
	assert.Equal(t, 3, store.creates)
	assert.Empty(t, store.settlements)
}

func TestServiceRejectsSettledJob(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addJobs("j1")
	svc, _ := newTestService(t, store, Options{})

	_, err := svc.Settle(ctx, DraftRequest{PayeeID: "payee-x", JobIDs: []string{"j1"}})
	require.NoError(t, err)
	_, err = svc.Settle(ctx, DraftRequest{PayeeID: "payee-x", JobIDs: []string{"j1"}})
	assert.ErrorIs(t, err, ErrJobAlreadySettled)
}

func TestServicePayeeBusy(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addJobs("j1")
	locker := NewLocalLocker()
	svc := NewService(Deps{Store: store, Locker: locker}, Options{Policy: defaultPolicy(), StatementDir: t.TempDir()})

	draft, err := svc.Draft(ctx, DraftRequest{PayeeID: "payee-x", JobIDs: []string{"j1"}})
	require.NoError(t, err)

	release, err := locker.Lock(ctx, "payee-x", time.Second)
	require.NoError(t, err)
	_, err = svc.Commit(ctx, draft.Settlement.ID)
	assert.ErrorIs(t, err, ErrPayeeBusy)
	release()

	_, err = svc.Commit(ctx, draft.Settlement.ID)
	assert.NoError(t, err)
}

func TestServiceReverseInOrder(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addJobs("j1", "j2")
	store.obligations["o1"] = activeObligation("o1", "1000", "0")
	svc, audit := newTestService(t, store, Options{})

	a, err := svc.Settle(ctx, DraftRequest{PayeeID: "payee-x", JobIDs: []string{"j1"}})
	require.NoError(t, err)
	b, err := svc.Settle(ctx, DraftRequest{PayeeID: "payee-x", JobIDs: []string{"j2"}})
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, a.ID)
	var violation *ledger.OrderingViolationError
	require.True(t, errors.As(err, &violation), "got %v", err)
	assert.Equal(t, b.ID, violation.ConflictingSettlementID)
	assert.Equal(t, StatusFinalized, store.settlements[a.ID].Status)
	assert.Equal(t, ledger.StatusPaid, store.obligations["o1"].Status)

	reversedB, err := svc.Reverse(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVoid, reversedB.Status)
	o := store.obligations["o1"]
	assert.True(t, o.Remaining().Equal(dec("400")))
	assert.Equal(t, ledger.StatusActive, o.Status)
	assert.Equal(t, a.ID, o.LastSettlementID)
	assert.Empty(t, o.LinkedSettlementID)

	_, err = svc.Reverse(ctx, a.ID)
	require.NoError(t, err)
	o = store.obligations["o1"]
	assert.True(t, o.AmountPaid.IsZero())
	assert.Empty(t, o.LastSettlementID)

	_, err = svc.Reverse(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAlreadyVoid)
	assert.Equal(t, []string{ActionCommit, ActionCommit, ActionReverse, ActionReverse}, audit.actions)

	again, err := svc.Settle(ctx, DraftRequest{PayeeID: "payee-x", JobIDs: []string{"j1"}})
	require.NoError(t, err, "a voided settlement releases its jobs")
	assert.True(t, again.Deductions.ObligationTotal.Equal(dec("600")))
}

func TestServiceReverseCancelsCarriedDebt(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addJobs("j1")
	svc, _ := newTestService(t, store, Options{})

	st, err := svc.Settle(ctx, DraftRequest{
		PayeeID: "payee-x",
		JobIDs:  []string{"j1"},
		ManualDeductions: []ManualDeduction{
			{Kind: DeductionAdvance, Amount: dec("750")},
		},
	})
	require.NoError(t, err)
	assert.True(t, st.CarriedDebt.Equal(dec("150")))
	require.NotEmpty(t, st.CarriedDebtObligationID)
	carried := store.obligations[st.CarriedDebtObligationID]
	assert.True(t, carried.TotalAmount.Equal(dec("150")))
	assert.True(t, carried.Floating())

	_, err = svc.Reverse(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCancelled, store.obligations[st.CarriedDebtObligationID].Status)
}

func TestServiceReverseBlockedOnceCarriedDebtIsRecovered(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addJobs("j1", "j2")
	svc, _ := newTestService(t, store, Options{})

	first, err := svc.Settle(ctx, DraftRequest{
		PayeeID:          "payee-x",
		JobIDs:           []string{"j1"},
		ManualDeductions: []ManualDeduction{{Kind: DeductionThirdPartyFee, Amount: dec("700")}},
	})
	require.NoError(t, err)
	second, err := svc.Settle(ctx, DraftRequest{PayeeID: "payee-x", JobIDs: []string{"j2"}})
	require.NoError(t, err)
	assert.True(t, second.Deductions.ObligationTotal.Equal(dec("100")))

	_, err = svc.Reverse(ctx, first.ID)
	var violation *ledger.OrderingViolationError
	require.True(t, errors.As(err, &violation), "got %v", err)
	assert.Equal(t, second.ID, violation.ConflictingSettlementID)
}

func TestServiceStatementAndRegister(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addJobs("j1")
	svc, _ := newTestService(t, store, Options{})

	st, err := svc.Settle(ctx, DraftRequest{PayeeID: "payee-x", JobIDs: []string{"j1"}})
	require.NoError(t, err)

	pdf, err := svc.Statement(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(pdf[:4]))
	assert.NotEmpty(t, store.paths[st.ID])

	cached, err := svc.Statement(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, pdf, cached)

	xlsx, err := svc.Register(ctx, RegisterFilter{PayeeID: "payee-x"})
	require.NoError(t, err)
	assert.NotEmpty(t, xlsx)

	list, total, err := svc.List(ctx, "payee-x", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)
}

func TestServiceBackfillStatements(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addJobs("j1", "j2")
	svc, _ := newTestService(t, store, Options{})

	a, err := svc.Settle(ctx, DraftRequest{PayeeID: "payee-x", JobIDs: []string{"j1"}})
	require.NoError(t, err)
	b, err := svc.Settle(ctx, DraftRequest{PayeeID: "payee-x", JobIDs: []string{"j2"}})
	require.NoError(t, err)

	details, err := svc.BackfillStatements(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"pending": 2, "written": 2}, details)
	assert.NotEmpty(t, store.paths[a.ID])
	assert.NotEmpty(t, store.paths[b.ID])

	details, err = svc.BackfillStatements(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"pending": 0, "written": 0}, details)
}

func TestServiceDraftRequiresPayee(t *testing.T) {
	svc, _ := newTestService(t, newFakeStore(), Options{})
	_, err := svc.Draft(context.Background(), DraftRequest{JobIDs: []string{"j1"}})
	assert.ErrorIs(t, err, ledger.ErrPayeeRequired)

	_, err = svc.Draft(context.Background(), DraftRequest{PayeeID: "nobody"})
	assert.ErrorIs(t, err, ErrPayeeNotFound)
}
