package obligationhandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/ledger"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/requestctx"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/transport/http/api"
)

type fakeLedger struct {
	recorded ledger.RecordInput
	version  int64
}

func (f *fakeLedger) Record(_ context.Context, in ledger.RecordInput) (ledger.Obligation, error) {
	f.recorded = in
	return ledger.Obligation{ID: "o-1", PayeeID: in.PayeeID, TotalAmount: in.Cost.Amount}, nil
}

func (f *fakeLedger) List(_ context.Context, payeeID string, limit, offset int) ([]ledger.Obligation, int, error) {
	return nil, 0, nil
}

func (f *fakeLedger) Cancel(_ context.Context, id string, expectedVersion int64) (ledger.Obligation, error) {
	f.version = expectedVersion
	if id == "paid" {
		return ledger.Obligation{}, ledger.ErrObligationNotActive
	}
	return ledger.Obligation{ID: id, Status: ledger.StatusCancelled}, nil
}

func serve(t *testing.T, svc *fakeLedger, method, path, body string) (*httptest.ResponseRecorder, api.Envelope) {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(svc).RegisterRoutes(r)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(requestctx.WithActor(req.Context(), requestctx.Actor{UserID: "u-1", Role: "admin"}))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env api.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestRecordObligation(t *testing.T) {
	svc := &fakeLedger{}
	rec, _ := serve(t, svc, http.MethodPost, "/payees/p1/obligations",
		`{"type":"Fuel card","amount":"250.25","paidBy":"employer","originatedAt":"2026-03-01"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "p1", svc.recorded.PayeeID)
	assert.Equal(t, "250.25", svc.recorded.Cost.Amount.StringFixed(2))
	assert.Equal(t, 2026, svc.recorded.OriginatedAt.Year())

	rec, env := serve(t, svc, http.MethodPost, "/payees/p1/obligations", `{"type":"fuel","amount":"-5","paidBy":"employer"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestCancelObligation(t *testing.T) {
	svc := &fakeLedger{}
	rec, _ := serve(t, svc, http.MethodPost, "/obligations/o-1/cancel", `{"expectedVersion":3}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), svc.version)

	rec, env := serve(t, svc, http.MethodPost, "/obligations/paid/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "obligation_not_active", env.Error.Code)
}
