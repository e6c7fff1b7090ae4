package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/ledger"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/settlement"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/transport/http/api"
)

func TestFailDomain(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"mismatch", &settlement.PayeeMismatchError{PayeeID: "p1", JobID: "j1", JobPayeeID: "p2"}, http.StatusUnprocessableEntity, "payee_mismatch"},
		{"ordering", &ledger.OrderingViolationError{ObligationID: "o1", ConflictingSettlementID: "s2"}, http.StatusConflict, "ordering_violation"},
		{"stale", fmt.Errorf("commit: %w", ledger.ErrConcurrentModification), http.StatusConflict, "concurrent_modification"},
		{"missing job", fmt.Errorf("%w: j9", settlement.ErrJobNotFound), http.StatusNotFound, "job_not_found"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "settlement_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FailDomain(rec, tc.err, "settlement_failed", "req-1")
			assert.Equal(t, tc.status, rec.Code)

			var env api.Envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
			assert.Equal(t, "req-1", env.RequestID)
		})
	}
}

func TestFailDomainOrderingDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	FailDomain(rec, &ledger.OrderingViolationError{ObligationID: "o1", ConflictingSettlementID: "s2"}, "x", "")

	var env api.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "s2", env.Error.Details["conflictingSettlementId"])
}
