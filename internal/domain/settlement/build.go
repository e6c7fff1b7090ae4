package settlement

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/driverpay"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/ledger"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/taxonomy"
)

// Build computes a draft settlement from a fixed snapshot. It performs no
// I/O; the returned deltas must be committed together with the settlement.
func Build(in BuildInput) (Draft, error) {
	if err := checkBatch(in); err != nil {
		return Draft{}, err
	}
	manual, err := normalizeDeductions(in.ManualDeductions)
	if err != nil {
		return Draft{}, err
	}

	s := Settlement{
		ID:             in.SettlementID,
		PayeeID:        in.Payee.ID,
		PayeeName:      in.Payee.Name,
		Classification: in.Payee.Classification,
		Status:         StatusDraft,
		JobIDs:         make([]string, 0, len(in.Jobs)),
		JobPay:         make([]driverpay.JobPay, 0, len(in.Jobs)),
		CreatedAt:      in.Now,
	}

	for _, job := range in.Jobs {
		pay := driverpay.ComputeJobPay(job, in.Payee.Profile)
		s.JobIDs = append(s.JobIDs, job.ID)
		s.JobPay = append(s.JobPay, pay)
		s.Warnings = append(s.Warnings, pay.Warnings...)
	}
	s.BasePay, s.AccessorialPay = driverpay.Totals(s.JobPay)
	s.GrossPay = s.BasePay.Add(s.AccessorialPay)

	d := Deductions{
		Advances:         decimal.Zero,
		ThirdPartyFees:   decimal.Zero,
		Manual:           manual,
		Obligations:      map[taxonomy.Category]decimal.Decimal{},
		ObligationTotal:  decimal.Zero,
		Withholding:      map[string]decimal.Decimal{},
		WithholdingTotal: decimal.Zero,
	}

	if in.StatutoryWithholding {
		for _, component := range in.Policy.Withholding {
			amount := s.GrossPay.Mul(component.Rate).Round(2)
			d.Withholding[component.Name] = d.Withholding[component.Name].Add(amount)
			d.WithholdingTotal = d.WithholdingTotal.Add(amount)
		}
	}

	var deltas []ledger.Delta
	if !(in.StatutoryWithholding && in.Policy.ExclusiveWithholding) {
		result := ledger.Allocate(in.Snapshot, s.ID, s.GrossPay)
		d.Obligations = result.ByCategory
		d.ObligationTotal = result.TotalAllocated
		s.Allocations = result.Allocations
		deltas = ledger.Deltas(s.ID, result.Allocations)
	}

	for _, m := range manual {
		switch m.Kind {
		case DeductionAdvance:
			d.Advances = d.Advances.Add(m.Amount)
		case DeductionThirdPartyFee:
			d.ThirdPartyFees = d.ThirdPartyFees.Add(m.Amount)
		}
	}

	d.Total = d.ObligationTotal.Add(d.Advances).Add(d.ThirdPartyFees).Add(d.WithholdingTotal)
	s.Deductions = d

	diff := s.GrossPay.Sub(d.Total)
	s.NetPayable = decimal.Max(decimal.Zero, diff)
	s.CarriedDebt = decimal.Max(decimal.Zero, diff.Neg())

	draft := Draft{
		Settlement:      s,
		Deltas:          deltas,
		SnapshotTakenAt: in.Snapshot.TakenAt,
	}

	if s.CarriedDebt.IsPositive() && in.Policy.CarryDebtForward {
		newID := in.NewID
		if newID == nil {
			newID = uuid.NewString
		}
		carried := ledger.NewCarriedDebt(newID(), s.PayeeID, s.ID, s.CarriedDebt, in.Now)
		draft.CarriedObligation = &carried
		draft.Settlement.CarriedDebtObligationID = carried.ID
	}

	return draft, nil
}

func checkBatch(in BuildInput) error {
	if in.Snapshot.PayeeID != "" && in.Snapshot.PayeeID != in.Payee.ID {
		return &PayeeMismatchError{PayeeID: in.Payee.ID, JobPayeeID: in.Snapshot.PayeeID}
	}
	seen := make(map[string]bool, len(in.Jobs))
	for _, job := range in.Jobs {
		if job.PayeeID != in.Payee.ID {
			return &PayeeMismatchError{PayeeID: in.Payee.ID, JobID: job.ID, JobPayeeID: job.PayeeID}
		}
		if seen[job.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
		}
		seen[job.ID] = true
	}
	return nil
}

func normalizeDeductions(in []ManualDeduction) ([]ManualDeduction, error) {
	out := make([]ManualDeduction, 0, len(in))
	for i, m := range in {
		kind := DeductionKind(strings.ToLower(strings.TrimSpace(string(m.Kind))))
		if kind != DeductionAdvance && kind != DeductionThirdPartyFee {
			return nil, fmt.Errorf("%w: item %d has unknown kind %q", ErrInvalidDeduction, i, m.Kind)
		}
		if m.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: item %d is negative", ErrInvalidDeduction, i)
		}
		out = append(out, ManualDeduction{Kind: kind, Description: strings.TrimSpace(m.Description), Amount: m.Amount.Round(2)})
	}
	return out, nil
}
