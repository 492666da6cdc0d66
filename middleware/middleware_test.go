package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admsserver/models"
	"admsserver/utils"
)

func protected(roles ...string) http.HandlerFunc {
	return ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Context().Value("username").(string)))
	}, AuthMiddleware, RequireRoles(roles...))
}

func TestAuthMiddleware(t *testing.T) {
	utils.SetJWTSecret("middleware-test-secret")
	token, _, err := utils.GenerateToken("admin-1", "alice", models.AdminRoleOperator, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
		{"ok", "Bearer " + token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			protected(models.AdminRoleOperator, models.AdminRoleSuperAdmin)(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRequireRoles(t *testing.T) {
	utils.SetJWTSecret("middleware-test-secret")
	token, _, err := utils.GenerateToken("admin-1", "alice", models.AdminRoleOperator, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/keys", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected(models.AdminRoleSuperAdmin)(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// without AuthMiddleware there is no admin in the context
	rec = httptest.NewRecorder()
	RequireRoles(models.AdminRoleSuperAdmin)(func(http.ResponseWriter, *http.Request) {})(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoggingMiddlewareSetsRequestID(t *testing.T) {
	var seen string
	h := LoggingMiddleware(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value("request_id").(string)
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Regexp(t, `^req-[0-9a-f]{16}$`, seen)
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORSMiddleware(func(http.ResponseWriter, *http.Request) { called = true })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodOptions, "/api/admin/commands", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4312"
	assert.Equal(t, "10.0.0.5", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
