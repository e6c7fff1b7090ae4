package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/auth"
)

const testSecret = "test-secret-test-secret-test-secret"

func bearer(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, auth.Claims{UserID: "u-1", Role: role}, time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuthAttachesActor(t *testing.T) {
	var seen string
	handler := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := GetUser(r.Context()); ok {
			seen = user.UserID + "/" + user.Role
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settlements/s1", nil)
	req.Header.Set("Authorization", bearer(t, auth.RolePayrollClerk))
	req.RemoteAddr = "10.0.0.1:5000"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "u-1/payroll_clerk", seen)
}

func TestAuthIgnoresBadToken(t *testing.T) {
	called := false
	handler := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := GetUser(r.Context())
		assert.False(t, ok)
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, called)
}

func TestRequirePermission(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := Auth(testSecret)(RequirePermission(auth.PermSettlementsReverse)(ok))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"clerk cannot reverse", bearer(t, auth.RolePayrollClerk), http.StatusForbidden},
		{"manager can reverse", bearer(t, auth.RolePayrollManager), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/settlements/s1/reverse", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
