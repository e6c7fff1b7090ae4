package shared

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/ledger"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/settlement"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/transport/http/api"
)

type domainFailure struct {
	err     error
	status  int
	code    string
	message string
}

var domainFailures = []domainFailure{
	{settlement.ErrSettlementNotFound, http.StatusNotFound, "settlement_not_found", "settlement not found"},
	{settlement.ErrDraftNotFound, http.StatusNotFound, "draft_not_found", "settlement draft not found or expired"},
	{settlement.ErrPayeeNotFound, http.StatusNotFound, "payee_not_found", "payee not found"},
	{settlement.ErrJobNotFound, http.StatusNotFound, "job_not_found", "job not found or not completed"},
	{ledger.ErrObligationNotFound, http.StatusNotFound, "obligation_not_found", "obligation not found"},
	{ledger.ErrConcurrentModification, http.StatusConflict, "concurrent_modification", "obligations changed since the draft was built"},
	{settlement.ErrJobAlreadySettled, http.StatusConflict, "job_already_settled", "job already belongs to a finalized settlement"},
	{settlement.ErrPayeeBusy, http.StatusConflict, "payee_busy", "another settlement for this payee is being committed"},
	{settlement.ErrAlreadyVoid, http.StatusConflict, "settlement_void", "settlement is already void"},
	{settlement.ErrNotFinalized, http.StatusConflict, "settlement_not_finalized", "settlement is not finalized"},
	{ledger.ErrObligationNotActive, http.StatusConflict, "obligation_not_active", "obligation is not active"},
	{settlement.ErrDuplicateJob, http.StatusUnprocessableEntity, "duplicate_job", "job listed more than once"},
	{settlement.ErrInvalidDeduction, http.StatusUnprocessableEntity, "invalid_deduction", "manual deduction is invalid"},
	{ledger.ErrPayeeRequired, http.StatusUnprocessableEntity, "payee_required", "payee id is required"},
	{ledger.ErrInvalidAmount, http.StatusUnprocessableEntity, "invalid_amount", "amount must be positive"},
	{ledger.ErrOverAllocation, http.StatusUnprocessableEntity, "over_allocation", "allocation exceeds obligation total"},
}

// FailDomain writes the envelope for a settlement or ledger error. Unknown
// errors are logged and reported as 500 with fallbackCode.
func FailDomain(w http.ResponseWriter, err error, fallbackCode, requestID string) {
	var mismatch *settlement.PayeeMismatchError
	if errors.As(err, &mismatch) {
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "payee_mismatch", mismatch.Error(), map[string]any{
			"payeeId":    mismatch.PayeeID,
			"jobId":      mismatch.JobID,
			"jobPayeeId": mismatch.JobPayeeID,
		}, requestID)
		return
	}
	var ordering *ledger.OrderingViolationError
	if errors.As(err, &ordering) {
		api.FailWithDetails(w, http.StatusConflict, "ordering_violation", ordering.Error(), map[string]any{
			"obligationId":            ordering.ObligationID,
			"conflictingSettlementId": ordering.ConflictingSettlementID,
		}, requestID)
		return
	}
	for _, f := range domainFailures {
		if errors.Is(err, f.err) {
			api.Fail(w, f.status, f.code, f.message, requestID)
			return
		}
	}
	slog.Error("request failed", "code", fallbackCode, "err", err, "requestId", requestID)
	api.Fail(w, http.StatusInternalServerError, fallbackCode, "internal error", requestID)
}
