package ledger

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/taxonomy"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/platform/metrics"
)

type memStore struct {
	mu          sync.Mutex
	obligations map[string]Obligation
}

func newMemStore() *memStore {
	return &memStore{obligations: map[string]Obligation{}}
}

func (m *memStore) Snapshot(_ context.Context, payeeID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{PayeeID: payeeID}
	for _, o := range m.obligations {
		if o.PayeeID == payeeID {
			snap.Obligations = append(snap.Obligations, o)
		}
	}
	return snap, nil
}

func (m *memStore) Get(_ context.Context, id string) (Obligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.obligations[id]
	if !ok {
		return Obligation{}, ErrObligationNotFound
	}
	return o, nil
}

func (m *memStore) GetMany(_ context.Context, ids []string) (map[string]Obligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]Obligation{}
	for _, id := range ids {
		if o, ok := m.obligations[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

func (m *memStore) BySourceSettlement(_ context.Context, settlementID string) ([]Obligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Obligation
	for _, o := range m.obligations {
		if o.SourceSettlementID == settlementID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) Count(_ context.Context, payeeID string) (int, error) {
	list, _ := m.List(context.Background(), payeeID, 1000, 0)
	return len(list), nil
}

func (m *memStore) List(_ context.Context, payeeID string, limit, offset int) ([]Obligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Obligation
	for _, o := range m.obligations {
		if o.PayeeID == payeeID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Insert(_ context.Context, o Obligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obligations[o.ID] = o
	return nil
}

func (m *memStore) ApplyDelta(_ context.Context, d Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	updated, err := Apply(m.obligations[d.ObligationID], d)
	if err != nil {
		return err
	}
	m.obligations[d.ObligationID] = updated
	return nil
}

type recordedEvent struct {
	action   string
	entityID string
}

type fakeAuditor struct {
	events []recordedEvent
}

func (f *fakeAuditor) Record(_ context.Context, action, _ string, entityID string, _, _ any) error {
	f.events = append(f.events, recordedEvent{action: action, entityID: entityID})
	return nil
}

func TestServiceRecordAndList(t *testing.T) {
	store := newMemStore()
	auditor := &fakeAuditor{}
	svc := NewService(store, auditor, metrics.New())

	o, err := svc.Record(context.Background(), RecordInput{
		PayeeID: "payee-1",
		JobID:   "job-9",
		Cost:    taxonomy.CostRecord{Type: "Tire replacement", Amount: dec("640"), PaidBy: "company"},
	})
	require.NoError(t, err)
	assert.Equal(t, taxonomy.CategoryMaintenance, o.Category)
	assert.False(t, o.Floating())

	list, total, err := svc.List(context.Background(), "payee-1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, o.ID, list[0].ID)

	require.Len(t, auditor.events, 1)
	assert.Equal(t, ActionObligationRecord, auditor.events[0].action)
}

func TestServiceCancelChecksVersion(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, nil)
	o, err := svc.Record(context.Background(), RecordInput{
		PayeeID: "payee-1",
		Cost:    taxonomy.CostRecord{Type: "fuel advance", Amount: dec("100"), PaidBy: taxonomy.PayerEmployer},
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), o.ID, o.Version+1)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	cancelled, err := svc.Cancel(context.Background(), o.ID, o.Version)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, o.Version+1, cancelled.Version)

	_, err = svc.Cancel(context.Background(), o.ID, 0)
	assert.ErrorIs(t, err, ErrObligationNotActive)

	_, err = svc.Cancel(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, ErrObligationNotFound)
}
