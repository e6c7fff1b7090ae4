package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/driverpay"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/ledger"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/taxonomy"
)

type Payee struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	Classification Classification        `json:"classification"`
	Profile        *driverpay.PayProfile `json:"profile,omitempty"`
}

func (p Payee) StatutoryWithholding() bool {
	return p.Classification == ClassificationStatutoryEmployee
}

type ManualDeduction struct {
	Kind        DeductionKind   `json:"kind"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

type WithholdingComponent struct {
	Name string          `json:"name"`
	Rate decimal.Decimal `json:"rate"`
}

// Policy is externally configured; rates are fractions of gross pay.
type Policy struct {
	Withholding []WithholdingComponent `json:"withholding"`
	// ExclusiveWithholding skips obligation recovery when withholding applies.
	ExclusiveWithholding bool `json:"exclusiveWithholding"`
	// CarryDebtForward turns a shortfall into a new floating obligation.
	CarryDebtForward bool `json:"carryDebtForward"`
}

type Deductions struct {
	Advances         decimal.Decimal                       `json:"advances"`
	ThirdPartyFees   decimal.Decimal                       `json:"thirdPartyFees"`
	Manual           []ManualDeduction                     `json:"manual,omitempty"`
	Obligations      map[taxonomy.Category]decimal.Decimal `json:"obligations"`
	ObligationTotal  decimal.Decimal                       `json:"obligationTotal"`
	Withholding      map[string]decimal.Decimal            `json:"withholding"`
	WithholdingTotal decimal.Decimal                       `json:"withholdingTotal"`
	Total            decimal.Decimal                       `json:"total"`
}

type Settlement struct {
	ID             string         `json:"id"`
	PayeeID        string         `json:"payeeId"`
	PayeeName      string         `json:"payeeName"`
	Classification Classification `json:"classification"`
	Status         Status         `json:"status"`

	JobIDs         []string           `json:"jobIds"`
	JobPay         []driverpay.JobPay `json:"jobPay"`
	BasePay        decimal.Decimal    `json:"basePay"`
	AccessorialPay decimal.Decimal    `json:"accessorialPay"`
	GrossPay       decimal.Decimal    `json:"grossPay"`
	Deductions     Deductions         `json:"deductions"`
	NetPayable     decimal.Decimal    `json:"netPayable"`
	CarriedDebt    decimal.Decimal    `json:"carriedDebt"`

	Warnings                []driverpay.Warning `json:"warnings,omitempty"`
	Allocations             []ledger.Allocation `json:"allocations,omitempty"`
	CarriedDebtObligationID string              `json:"carriedDebtObligationId,omitempty"`
	StatementPath           string              `json:"-"`

	CreatedAt   time.Time  `json:"createdAt"`
	FinalizedAt *time.Time `json:"finalizedAt,omitempty"`
	VoidedAt    *time.Time `json:"voidedAt,omitempty"`
}

// Difference is the unclamped gross minus deductions that NetPayable and
// CarriedDebt are both derived from.
func (s Settlement) Difference() decimal.Decimal {
	return s.GrossPay.Sub(s.Deductions.Total)
}

// Draft is a computed settlement plus the ledger mutations it depends on.
// Nothing is persisted until it is committed.
type Draft struct {
	Settlement        Settlement         `json:"settlement"`
	Deltas            []ledger.Delta     `json:"deltas"`
	CarriedObligation *ledger.Obligation `json:"carriedObligation,omitempty"`
	SnapshotTakenAt   time.Time          `json:"snapshotTakenAt"`
	Request           DraftRequest       `json:"request"`
	ExpiresAt         time.Time          `json:"expiresAt"`
}

type DraftRequest struct {
	PayeeID          string            `json:"payeeId"`
	JobIDs           []string          `json:"jobIds"`
	ManualDeductions []ManualDeduction `json:"manualDeductions,omitempty"`
}

type BuildInput struct {
	SettlementID         string
	Payee                Payee
	Jobs                 []driverpay.Job
	ManualDeductions     []ManualDeduction
	StatutoryWithholding bool
	Policy               Policy
	Snapshot             ledger.Snapshot
	// NewID names the carried-debt obligation, if one is created.
	NewID func() string
	Now   time.Time
}

type RegisterFilter struct {
	PayeeID string
	From    time.Time
	To      time.Time
}
