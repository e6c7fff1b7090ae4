package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/taxonomy"
)

// Obligation is a recoverable cost incurred on a payee's behalf. An empty
// JobID marks a floating obligation; allocation treats both kinds the same.
type Obligation struct {
	ID           string            `json:"id"`
	PayeeID      string            `json:"payeeId"`
	JobID        string            `json:"jobId,omitempty"`
	Category     taxonomy.Category `json:"category"`
	Description  string            `json:"description,omitempty"`
	TotalAmount  decimal.Decimal   `json:"totalAmount"`
	AmountPaid   decimal.Decimal   `json:"amountPaid"`
	Status       Status            `json:"status"`
	EmployerPaid bool              `json:"employerPaid"`
	OriginatedAt time.Time         `json:"originatedAt"`
	Version      int64             `json:"version"`

	LastSettlementID          string `json:"lastSettlementId,omitempty"`
	LinkedSettlementID        string `json:"linkedSettlementId,omitempty"`
	LinkedSettlementFinalized bool   `json:"-"`
	// SourceSettlementID is set on carried-debt obligations created by a
	// settlement shortfall.
	SourceSettlementID string `json:"sourceSettlementId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (o Obligation) Remaining() decimal.Decimal {
	return o.TotalAmount.Sub(o.AmountPaid)
}

func (o Obligation) Floating() bool {
	return o.JobID == ""
}

// Snapshot is one versioned read of a payee's obligations. Every Version in
// it is the token a commit must match.
type Snapshot struct {
	PayeeID     string       `json:"payeeId"`
	Obligations []Obligation `json:"obligations"`
	TakenAt     time.Time    `json:"takenAt"`
}

// Allocation records what one settlement took from one obligation, with
// enough of the prior state to undo it.
type Allocation struct {
	ObligationID         string            `json:"obligationId"`
	Category             taxonomy.Category `json:"category"`
	TotalAmount          decimal.Decimal   `json:"totalAmount"`
	Amount               decimal.Decimal   `json:"amount"`
	RemainingBefore      decimal.Decimal   `json:"remainingBefore"`
	RemainingAfter       decimal.Decimal   `json:"remainingAfter"`
	StatusBefore         Status            `json:"statusBefore"`
	StatusAfter          Status            `json:"statusAfter"`
	ExpectedVersion      int64             `json:"expectedVersion"`
	PreviousSettlementID string            `json:"previousSettlementId,omitempty"`
	PreviousLinkID       string            `json:"previousLinkId,omitempty"`
}

func (a Allocation) AmountPaidAfter() decimal.Decimal {
	return a.TotalAmount.Sub(a.RemainingAfter)
}

type Result struct {
	TotalAllocated decimal.Decimal                       `json:"totalAllocated"`
	Allocations    []Allocation                          `json:"allocations"`
	ByCategory     map[taxonomy.Category]decimal.Decimal `json:"byCategory"`
}

// Delta is a compare-and-swap mutation: it applies only while the stored
// version still equals ExpectedVersion, and bumps the version by one.
type Delta struct {
	ObligationID       string          `json:"obligationId"`
	ExpectedVersion    int64           `json:"expectedVersion"`
	AmountPaid         decimal.Decimal `json:"amountPaid"`
	Status             Status          `json:"status"`
	LastSettlementID   string          `json:"lastSettlementId,omitempty"`
	LinkedSettlementID string          `json:"linkedSettlementId,omitempty"`
}

type RecordInput struct {
	PayeeID      string              `json:"payeeId"`
	JobID        string              `json:"jobId,omitempty"`
	Cost         taxonomy.CostRecord `json:"cost"`
	OriginatedAt time.Time           `json:"originatedAt"`
}
