package ledger

type Status string

const (
	StatusActive    Status = "active"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// InitialVersion is the version token of a freshly recorded obligation.
const InitialVersion int64 = 1

const (
	ActionObligationRecord = "ledger.obligation.record"
	ActionObligationCancel = "ledger.obligation.cancel"

	EntityObligation = "obligation"
)
