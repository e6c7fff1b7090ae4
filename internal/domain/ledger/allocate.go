package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/taxonomy"
)

// Eligible returns the snapshot obligations that settlementID may recover
// from, oldest first with ties broken by id.
func Eligible(snapshot Snapshot, settlementID string) []Obligation {
	out := make([]Obligation, 0, len(snapshot.Obligations))
	for _, o := range snapshot.Obligations {
		if o.PayeeID != snapshot.PayeeID {
			continue
		}
		if o.Status != StatusActive || !o.EmployerPaid {
			continue
		}
		if !o.Remaining().IsPositive() {
			continue
		}
		if o.LinkedSettlementID != "" && o.LinkedSettlementID != settlementID && o.LinkedSettlementFinalized {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OriginatedAt.Equal(out[j].OriginatedAt) {
			return out[i].OriginatedAt.Before(out[j].OriginatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Allocate walks the eligible obligations oldest first, taking
// min(remaining, available) from each until available is exhausted.
// It has no side effects; commit the deltas from Deltas atomically with the
// settlement.
func Allocate(snapshot Snapshot, settlementID string, available decimal.Decimal) Result {
	result := Result{
		TotalAllocated: decimal.Zero,
		ByCategory:     map[taxonomy.Category]decimal.Decimal{},
	}
	for _, o := range Eligible(snapshot, settlementID) {
		if !available.IsPositive() {
			break
		}
		remaining := o.Remaining()
		amount := decimal.Min(remaining, available)
		after := remaining.Sub(amount)
		status := StatusActive
		if after.IsZero() {
			status = StatusPaid
		}

		result.Allocations = append(result.Allocations, Allocation{
			ObligationID:         o.ID,
			Category:             o.Category,
			TotalAmount:          o.TotalAmount,
			Amount:               amount,
			RemainingBefore:      remaining,
			RemainingAfter:       after,
			StatusBefore:         o.Status,
			StatusAfter:          status,
			ExpectedVersion:      o.Version,
			PreviousSettlementID: o.LastSettlementID,
			PreviousLinkID:       o.LinkedSettlementID,
		})
		result.TotalAllocated = result.TotalAllocated.Add(amount)
		result.ByCategory[o.Category] = result.ByCategory[o.Category].Add(amount)
		available = available.Sub(amount)
	}
	return result
}

// Deltas turns allocations into compare-and-swap mutations. An obligation
// retired by this settlement is linked to it.
func Deltas(settlementID string, allocations []Allocation) []Delta {
	deltas := make([]Delta, 0, len(allocations))
	for _, a := range allocations {
		link := a.PreviousLinkID
		if a.StatusAfter == StatusPaid {
			link = settlementID
		}
		deltas = append(deltas, Delta{
			ObligationID:       a.ObligationID,
			ExpectedVersion:    a.ExpectedVersion,
			AmountPaid:         a.AmountPaidAfter(),
			Status:             a.StatusAfter,
			LastSettlementID:   settlementID,
			LinkedSettlementID: link,
		})
	}
	return deltas
}

// Apply performs a delta against an in-memory obligation.
func Apply(o Obligation, d Delta) (Obligation, error) {
	if o.ID != d.ObligationID {
		return o, ErrObligationNotFound
	}
	if o.Version != d.ExpectedVersion {
		return o, ErrConcurrentModification
	}
	if d.AmountPaid.IsNegative() || d.AmountPaid.GreaterThan(o.TotalAmount) {
		return o, ErrOverAllocation
	}
	o.AmountPaid = d.AmountPaid
	o.Status = d.Status
	o.LastSettlementID = d.LastSettlementID
	o.LinkedSettlementID = d.LinkedSettlementID
	o.Version++
	return o, nil
}

// Cancel returns the delta that cancels an active obligation at its current
// version.
func Cancel(o Obligation) (Delta, error) {
	if o.Status != StatusActive {
		return Delta{}, ErrObligationNotActive
	}
	return Delta{
		ObligationID:       o.ID,
		ExpectedVersion:    o.Version,
		AmountPaid:         o.AmountPaid,
		Status:             StatusCancelled,
		LastSettlementID:   o.LastSettlementID,
		LinkedSettlementID: o.LinkedSettlementID,
	}, nil
}
