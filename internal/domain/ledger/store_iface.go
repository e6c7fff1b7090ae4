package ledger

import "context"

type StoreAPI interface {
	Snapshot(ctx context.Context, payeeID string) (Snapshot, error)
	Get(ctx context.Context, id string) (Obligation, error)
	GetMany(ctx context.Context, ids []string) (map[string]Obligation, error)
	BySourceSettlement(ctx context.Context, settlementID string) ([]Obligation, error)
	Count(ctx context.Context, payeeID string) (int, error)
	List(ctx context.Context, payeeID string, limit, offset int) ([]Obligation, error)
	Insert(ctx context.Context, o Obligation) error
	ApplyDelta(ctx context.Context, d Delta) error
}
