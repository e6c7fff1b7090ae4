package ledger

import "github.com/Abdihaliim1/tmsv3-sub004/internal/platform/querier"

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}
