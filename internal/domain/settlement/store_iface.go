package settlement

import (
	"context"
	"time"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/driverpay"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/ledger"
)

type StoreAPI interface {
	GetPayee(ctx context.Context, payeeID string) (Payee, error)
	JobsByID(ctx context.Context, jobIDs []string) ([]driverpay.Job, error)
	Snapshot(ctx context.Context, payeeID string) (ledger.Snapshot, error)
	Obligations(ctx context.Context, ids []string) (map[string]ledger.Obligation, error)
	CarriedDebtFrom(ctx context.Context, settlementID string) ([]ledger.Obligation, error)
	// Create persists a finalized settlement, its job links and allocations,
	// the obligation deltas and any carried-debt obligation in one
	// transaction. A stale delta aborts everything with
	// ledger.ErrConcurrentModification.
	Create(ctx context.Context, draft Draft, finalizedAt time.Time) error
	// Void marks a finalized settlement void and applies the compensating
	// deltas in one transaction.
	Void(ctx context.Context, settlementID string, deltas []ledger.Delta, voidedAt time.Time) error
	Get(ctx context.Context, settlementID string) (Settlement, error)
	Count(ctx context.Context, payeeID string) (int, error)
	List(ctx context.Context, payeeID string, limit, offset int) ([]Settlement, error)
	Register(ctx context.Context, filter RegisterFilter) ([]Settlement, error)
	SetStatementPath(ctx context.Context, settlementID, path string) error
	// MissingStatements lists finalized settlements with no stored statement.
	MissingStatements(ctx context.Context, limit int) ([]Settlement, error)
}
