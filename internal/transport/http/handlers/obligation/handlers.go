package obligationhandler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/auth"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/ledger"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/taxonomy"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/transport/http/api"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/transport/http/middleware"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/transport/http/shared"
)

type ObligationService interface {
	Record(ctx context.Context, in ledger.RecordInput) (ledger.Obligation, error)
	List(ctx context.Context, payeeID string, limit, offset int) ([]ledger.Obligation, int, error)
	Cancel(ctx context.Context, id string, expectedVersion int64) (ledger.Obligation, error)
}

type Handler struct {
	Service ObligationService
}

func NewHandler(service ObligationService) *Handler {
	return &Handler{Service: service}
}

type costPayload struct {
	JobID        string `json:"jobId"`
	Type         string `json:"type"`
	Description  string `json:"description"`
	Amount       string `json:"amount"`
	PaidBy       string `json:"paidBy"`
	OriginatedAt string `json:"originatedAt"`
}

type cancelPayload struct {
	ExpectedVersion int64 `json:"expectedVersion"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermObligationsWrite)).Post("/payees/{payeeID}/obligations", h.handleRecord)
	r.With(middleware.RequirePermission(auth.PermObligationsRead)).Get("/payees/{payeeID}/obligations", h.handleList)
	r.With(middleware.RequirePermission(auth.PermObligationsWrite)).Post("/obligations/{obligationID}/cancel", h.handleCancel)
}

// handleRecord turns a cost record into an obligation. Costs the payee
// paid directly are classified but never recovered.
func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload costPayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}

	v := shared.NewValidator()
	v.Required("type", payload.Type, "is required")
	v.Required("paidBy", payload.PaidBy, "is required")
	amount, ok := shared.ParseMoney(v, "amount", payload.Amount)
	if ok {
		v.Positive("amount", amount)
	}
	var originated time.Time
	if payload.OriginatedAt != "" {
		originated, _ = v.Date("originatedAt", payload.OriginatedAt)
	}
	if v.Reject(w, reqID) {
		return
	}

	o, err := h.Service.Record(r.Context(), ledger.RecordInput{
		PayeeID: chi.URLParam(r, "payeeID"),
		JobID:   payload.JobID,
		Cost: taxonomy.CostRecord{
			Type:        payload.Type,
			Description: payload.Description,
			Amount:      amount,
			PaidBy:      taxonomy.Payer(payload.PaidBy),
		},
		OriginatedAt: originated,
	})
	if err != nil {
		shared.FailDomain(w, err, "obligation_record_failed", reqID)
		return
	}
	api.Created(w, o, reqID)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	page := shared.ParsePagination(r, 50, 200)
	obligations, total, err := h.Service.List(r.Context(), chi.URLParam(r, "payeeID"), page.Limit, page.Offset)
	if err != nil {
		shared.FailDomain(w, err, "obligation_list_failed", reqID)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, obligations, reqID)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload cancelPayload
	if r.ContentLength != 0 && !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	o, err := h.Service.Cancel(r.Context(), chi.URLParam(r, "obligationID"), payload.ExpectedVersion)
	if err != nil {
		shared.FailDomain(w, err, "obligation_cancel_failed", reqID)
		return
	}
	api.Success(w, o, reqID)
}
