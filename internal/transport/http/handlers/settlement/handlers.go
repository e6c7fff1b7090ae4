package settlementhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/auth"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/settlement"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/transport/http/api"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/transport/http/middleware"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/transport/http/shared"
)

const commitEndpoint = "POST /settlements"

type SettlementService interface {
	Draft(ctx context.Context, req settlement.DraftRequest) (settlement.Draft, error)
	Commit(ctx context.Context, draftID string) (settlement.Settlement, error)
	Settle(ctx context.Context, req settlement.DraftRequest) (settlement.Settlement, error)
	Reverse(ctx context.Context, settlementID string) (settlement.Settlement, error)
	Get(ctx context.Context, settlementID string) (settlement.Settlement, error)
	List(ctx context.Context, payeeID string, limit, offset int) ([]settlement.Settlement, int, error)
	Statement(ctx context.Context, settlementID string) ([]byte, error)
	Register(ctx context.Context, filter settlement.RegisterFilter) ([]byte, error)
}

type IdempotencyStore interface {
	Check(ctx context.Context, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error)
	Save(ctx context.Context, userID, endpoint, key, requestHash string, response json.RawMessage) error
}

type Handler struct {
	Service     SettlementService
	Idempotency IdempotencyStore
}

func NewHandler(service SettlementService, idempotency IdempotencyStore) *Handler {
	return &Handler{Service: service, Idempotency: idempotency}
}

type deductionPayload struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

type draftPayload struct {
	PayeeID          string             `json:"payeeId"`
	JobIDs           []string           `json:"jobIds"`
	ManualDeductions []deductionPayload `json:"manualDeductions"`
}

type commitPayload struct {
	DraftID string `json:"draftId"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/settlements", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermSettlementsWrite)).Post("/drafts", h.handleDraft)
		r.With(middleware.RequirePermission(auth.PermSettlementsWrite)).Post("/", h.handleCommit)
		r.With(middleware.RequirePermission(auth.PermSettlementsWrite)).Post("/settle", h.handleSettle)
		r.With(middleware.RequirePermission(auth.PermSettlementsRead)).Get("/{settlementID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermSettlementsReverse)).Post("/{settlementID}/reverse", h.handleReverse)
		r.With(middleware.RequirePermission(auth.PermSettlementsRead)).Get("/{settlementID}/statement", h.handleStatement)
	})
	r.With(middleware.RequirePermission(auth.PermSettlementsRead)).Get("/payees/{payeeID}/settlements", h.handleList)
	r.With(middleware.RequirePermission(auth.PermSettlementsRead)).Get("/payees/{payeeID}/settlements/export", h.handleExport)
}

func (h *Handler) handleDraft(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	req, ok := decodeDraftRequest(w, r, reqID)
	if !ok {
		return
	}
	draft, err := h.Service.Draft(r.Context(), req)
	if err != nil {
		shared.FailDomain(w, err, "settlement_draft_failed", reqID)
		return
	}
	api.Created(w, draft, reqID)
}

// handleCommit finalizes a draft. A repeated Idempotency-Key with the same
// body replays the first response instead of committing again.
func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", reqID)
			return
		}
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body could not be read", reqID)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	hash := middleware.RequestHash(raw)
	if key != "" && h.Idempotency != nil {
		stored, found, err := h.Idempotency.Check(r.Context(), user.UserID, commitEndpoint, key, hash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key reused with a different request", reqID)
			return
		}
		if err != nil {
			slog.Warn("idempotency check failed", "err", err)
		} else if found {
			w.Header().Set("Idempotent-Replay", "true")
			api.Created(w, stored, reqID)
			return
		}
	}

	var payload commitPayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	v := shared.NewValidator()
	v.Required("draftId", payload.DraftID, "is required")
	if v.Reject(w, reqID) {
		return
	}

	st, err := h.Service.Commit(r.Context(), payload.DraftID)
	if err != nil {
		shared.FailDomain(w, err, "settlement_commit_failed", reqID)
		return
	}
	if key != "" && h.Idempotency != nil {
		if body, err := json.Marshal(st); err == nil {
			if err := h.Idempotency.Save(r.Context(), user.UserID, commitEndpoint, key, hash, body); err != nil {
				slog.Warn("idempotency save failed", "err", err)
			}
		}
	}
	api.Created(w, st, reqID)
}

func (h *Handler) handleSettle(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	req, ok := decodeDraftRequest(w, r, reqID)
	if !ok {
		return
	}
	st, err := h.Service.Settle(r.Context(), req)
	if err != nil {
		shared.FailDomain(w, err, "settlement_settle_failed", reqID)
		return
	}
	api.Created(w, st, reqID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	st, err := h.Service.Get(r.Context(), chi.URLParam(r, "settlementID"))
	if err != nil {
		shared.FailDomain(w, err, "settlement_get_failed", reqID)
		return
	}
	api.Success(w, st, reqID)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	page := shared.ParsePagination(r, 50, 200)
	settlements, total, err := h.Service.List(r.Context(), chi.URLParam(r, "payeeID"), page.Limit, page.Offset)
	if err != nil {
		shared.FailDomain(w, err, "settlement_list_failed", reqID)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, settlements, reqID)
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	st, err := h.Service.Reverse(r.Context(), chi.URLParam(r, "settlementID"))
	if err != nil {
		shared.FailDomain(w, err, "settlement_reverse_failed", reqID)
		return
	}
	api.Success(w, st, reqID)
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	settlementID := chi.URLParam(r, "settlementID")
	pdf, err := h.Service.Statement(r.Context(), settlementID)
	if err != nil {
		shared.FailDomain(w, err, "settlement_statement_failed", reqID)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=settlement-"+settlementID+".pdf")
	if _, err := w.Write(pdf); err != nil {
		slog.Warn("statement write failed", "err", err)
	}
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	filter := settlement.RegisterFilter{PayeeID: chi.URLParam(r, "payeeID")}
	if raw := r.URL.Query().Get("from"); raw != "" {
		filter.From, _ = v.Date("from", raw)
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		filter.To, _ = v.Date("to", raw)
	}
	v.DateOrder("from", filter.From, "to", filter.To)
	if v.Reject(w, reqID) {
		return
	}

	data, err := h.Service.Register(r.Context(), filter)
	if err != nil {
		shared.FailDomain(w, err, "settlement_export_failed", reqID)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=settlements-"+filter.PayeeID+".xlsx")
	if _, err := w.Write(data); err != nil {
		slog.Warn("register write failed", "err", err)
	}
}

func decodeDraftRequest(w http.ResponseWriter, r *http.Request, reqID string) (settlement.DraftRequest, bool) {
	var payload draftPayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return settlement.DraftRequest{}, false
	}

	v := shared.NewValidator()
	v.Required("payeeId", payload.PayeeID, "is required")
	req := settlement.DraftRequest{PayeeID: payload.PayeeID, JobIDs: payload.JobIDs}
	for i, d := range payload.ManualDeductions {
		field := "manualDeductions[" + strconv.Itoa(i) + "]"
		v.Enum(field+".kind", d.Kind, []string{string(settlement.DeductionAdvance), string(settlement.DeductionThirdPartyFee)}, "must be advance or third_party_fee")
		v.Required(field+".kind", d.Kind, "is required")
		amount, ok := shared.ParseMoney(v, field+".amount", d.Amount)
		if ok {
			v.Positive(field+".amount", amount)
		}
		req.ManualDeductions = append(req.ManualDeductions, settlement.ManualDeduction{
			Kind:        settlement.DeductionKind(strings.ToLower(strings.TrimSpace(d.Kind))),
			Description: strings.TrimSpace(d.Description),
			Amount:      amount,
		})
	}
	if v.Reject(w, reqID) {
		return settlement.DraftRequest{}, false
	}
	return req, true
}
