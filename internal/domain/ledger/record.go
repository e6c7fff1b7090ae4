package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/taxonomy"
)

// NewObligationFromCost classifies a cost record and builds the active
// obligation it gives rise to.
func NewObligationFromCost(in RecordInput, now time.Time) (Obligation, error) {
	if strings.TrimSpace(in.PayeeID) == "" {
		return Obligation{}, ErrPayeeRequired
	}
	amount := in.Cost.Amount.Round(2)
	if !amount.IsPositive() {
		return Obligation{}, ErrInvalidAmount
	}
	category, employerPaid := taxonomy.Classify(in.Cost)
	originated := in.OriginatedAt
	if originated.IsZero() {
		originated = now
	}
	description := strings.TrimSpace(in.Cost.Description)
	if description == "" {
		description = strings.TrimSpace(in.Cost.Type)
	}
	return Obligation{
		ID:           uuid.NewString(),
		PayeeID:      in.PayeeID,
		JobID:        strings.TrimSpace(in.JobID),
		Category:     category,
		Description:  description,
		TotalAmount:  amount,
		AmountPaid:   decimal.Zero,
		Status:       StatusActive,
		EmployerPaid: employerPaid,
		OriginatedAt: originated.UTC(),
		Version:      InitialVersion,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NewCarriedDebt builds the floating obligation that carries a settlement
// shortfall into later settlements.
func NewCarriedDebt(id, payeeID, settlementID string, amount decimal.Decimal, now time.Time) Obligation {
	return Obligation{
		ID:                 id,
		PayeeID:            payeeID,
		Category:           taxonomy.CategoryCarriedDebt,
		Description:        "carried debt from settlement " + settlementID,
		TotalAmount:        amount,
		AmountPaid:         decimal.Zero,
		Status:             StatusActive,
		EmployerPaid:       true,
		OriginatedAt:       now,
		Version:            InitialVersion,
		SourceSettlementID: settlementID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
