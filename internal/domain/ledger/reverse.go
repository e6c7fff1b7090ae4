package ledger

// Reverse computes the deltas that undo exactly what settlementID allocated.
// Each obligation must still be in the state that settlement left it in;
// otherwise nothing is undone and an *OrderingViolationError names the
// obligation and the later settlement that touched it.
func Reverse(settlementID string, allocations []Allocation, current map[string]Obligation) ([]Delta, error) {
	deltas := make([]Delta, 0, len(allocations))
	for i := len(allocations) - 1; i >= 0; i-- {
		a := allocations[i]
		o, ok := current[a.ObligationID]
		if !ok {
			return nil, ErrObligationNotFound
		}
		if o.LastSettlementID != settlementID {
			return nil, &OrderingViolationError{ObligationID: o.ID, ConflictingSettlementID: o.LastSettlementID}
		}
		if o.Status != a.StatusAfter || !o.Remaining().Equal(a.RemainingAfter) {
			return nil, &OrderingViolationError{ObligationID: o.ID}
		}
		restored := o.AmountPaid.Sub(a.Amount)
		if restored.IsNegative() {
			return nil, ErrOverAllocation
		}
		deltas = append(deltas, Delta{
			ObligationID:       o.ID,
			ExpectedVersion:    o.Version,
			AmountPaid:         restored,
			Status:             a.StatusBefore,
			LastSettlementID:   a.PreviousSettlementID,
			LinkedSettlementID: a.PreviousLinkID,
		})
	}
	return deltas, nil
}

// ReverseOrigin cancels a carried-debt obligation that settlementID created.
// It fails if any later settlement has already recovered part of it.
func ReverseOrigin(settlementID string, o Obligation) (Delta, error) {
	if o.SourceSettlementID != settlementID {
		return Delta{}, ErrObligationNotFound
	}
	if o.LastSettlementID != "" {
		return Delta{}, &OrderingViolationError{ObligationID: o.ID, ConflictingSettlementID: o.LastSettlementID}
	}
	if o.Status != StatusActive || !o.AmountPaid.IsZero() {
		return Delta{}, &OrderingViolationError{ObligationID: o.ID}
	}
	return Cancel(o)
}
