package settlement

import (
	"errors"
	"fmt"
)

var (
	// ErrPayeeMismatch rejects a job batch that spans more than one payee.
	ErrPayeeMismatch = errors.New("job batch spans more than one payee")

	ErrSettlementNotFound = errors.New("settlement not found")
	ErrDraftNotFound      = errors.New("settlement draft not found or expired")
	ErrAlreadyVoid        = errors.New("settlement is already void")
	ErrNotFinalized       = errors.New("settlement is not finalized")
	ErrPayeeNotFound      = errors.New("payee not found")
	ErrJobNotFound        = errors.New("job not found")
	ErrDuplicateJob       = errors.New("job listed more than once")
	ErrJobAlreadySettled  = errors.New("job already belongs to a finalized settlement")
	ErrInvalidDeduction   = errors.New("manual deduction is invalid")
	ErrPayeeBusy          = errors.New("another settlement for this payee is being committed")
)

type PayeeMismatchError struct {
	PayeeID    string
	JobID      string
	JobPayeeID string
}

func (e *PayeeMismatchError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("obligation snapshot belongs to payee %s, not %s", e.JobPayeeID, e.PayeeID)
	}
	return fmt.Sprintf("job %s belongs to payee %s, not %s", e.JobID, e.JobPayeeID, e.PayeeID)
}

func (e *PayeeMismatchError) Unwrap() error {
	return ErrPayeeMismatch
}
