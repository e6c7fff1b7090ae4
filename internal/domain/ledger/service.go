package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/platform/metrics"
)

type Auditor interface {
	Record(ctx context.Context, action, entityType, entityID string, before, after any) error
}

type Service struct {
	store   StoreAPI
	audit   Auditor
	metrics *metrics.Collector
	now     func() time.Time
}

func NewService(store StoreAPI, audit Auditor, collector *metrics.Collector) *Service {
	return &Service{
		store:   store,
		audit:   audit,
		metrics: collector,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Record(ctx context.Context, in RecordInput) (Obligation, error) {
	o, err := NewObligationFromCost(in, s.now())
	if err != nil {
		return Obligation{}, err
	}
	if err := s.store.Insert(ctx, o); err != nil {
		return Obligation{}, err
	}
	s.metrics.ObligationEvent("recorded")
	s.record(ctx, ActionObligationRecord, o.ID, nil, o)
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (Obligation, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, payeeID string, limit, offset int) ([]Obligation, int, error) {
	total, err := s.store.Count(ctx, payeeID)
	if err != nil {
		return nil, 0, err
	}
	obligations, err := s.store.List(ctx, payeeID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return obligations, total, nil
}

// Cancel stops further recovery of an obligation. A non-zero expectedVersion
// must match the stored version.
func (s *Service) Cancel(ctx context.Context, id string, expectedVersion int64) (Obligation, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Obligation{}, err
	}
	if expectedVersion > 0 && expectedVersion != current.Version {
		return Obligation{}, ErrConcurrentModification
	}
	delta, err := Cancel(current)
	if err != nil {
		return Obligation{}, err
	}
	if err := s.store.ApplyDelta(ctx, delta); err != nil {
		return Obligation{}, err
	}
	updated, err := Apply(current, delta)
	if err != nil {
		return Obligation{}, err
	}
	s.metrics.ObligationEvent("cancelled")
	s.record(ctx, ActionObligationCancel, id, current, updated)
	return updated, nil
}

func (s *Service) record(ctx context.Context, action, id string, before, after any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, action, EntityObligation, id, before, after); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}
}
