package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrentModification means an obligation's version token was stale
	// at commit. Re-read the snapshot and retry.
	ErrConcurrentModification = errors.New("obligation was modified concurrently")
	// ErrOrderingViolation means a reversal would undo allocations that a
	// later change already built upon.
	ErrOrderingViolation = errors.New("settlement reversal out of order")

	ErrObligationNotFound  = errors.New("obligation not found")
	ErrObligationNotActive = errors.New("obligation is not active")
	ErrOverAllocation      = errors.New("allocation exceeds obligation total")
	ErrInvalidAmount       = errors.New("obligation amount must be positive")
	ErrPayeeRequired       = errors.New("payee id is required")
)

type OrderingViolationError struct {
	ObligationID string
	// ConflictingSettlementID is empty when the obligation was changed outside
	// any settlement, for example by a cancellation.
	ConflictingSettlementID string
}

func (e *OrderingViolationError) Error() string {
	if e.ConflictingSettlementID == "" {
		return fmt.Sprintf("obligation %s was modified after this settlement", e.ObligationID)
	}
	return fmt.Sprintf("obligation %s was modified by later settlement %s", e.ObligationID, e.ConflictingSettlementID)
}

func (e *OrderingViolationError) Unwrap() error {
	return ErrOrderingViolation
}
