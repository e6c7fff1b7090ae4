package settlement

type Classification string

const (
	ClassificationStatutoryEmployee Classification = "statutory_employee"
	ClassificationContractor        Classification = "contractor"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusFinalized Status = "finalized"
	StatusVoid      Status = "void"
)

type DeductionKind string

const (
	DeductionAdvance       DeductionKind = "advance"
	DeductionThirdPartyFee DeductionKind = "third_party_fee"
)

const (
	ActionCommit  = "settlement.commit"
	ActionReverse = "settlement.reverse"

	EntitySettlement = "settlement"

	JobStatement         = "settlement_statement"
	JobStatementBackfill = "settlement_statement_backfill"

	backfillBatch = 50
)
