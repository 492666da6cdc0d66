package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admsserver/models"
)

func decode(t *testing.T, body []byte) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newServer(t, defaultLimits())

	rec := s.do(t, "GET", "/api/admin/commands/catalog", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, "GET", "/api/admin/commands/catalog", "", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, "GET", "/api/admin/commands/catalog", "", token(t, models.AdminRoleOperator))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decode(t, rec.Body.Bytes()).Status)
}

func TestGetMeReturnsTokenIdentity(t *testing.T) {
	s := newServer(t, defaultLimits())
	rec := s.do(t, "GET", "/api/admin/me", "", token(t, models.AdminRoleOperator))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data models.AdminIdentity `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.AdminIdentity{ID: "admin-1", Username: "alice", Role: models.AdminRoleOperator}, resp.Data)
}

func TestKeyRoutesAreSuperAdminOnly(t *testing.T) {
	s := newServer(t, defaultLimits())

	rec := s.do(t, "GET", "/api/admin/tenants/acme/keys", "", token(t, models.AdminRoleOperator))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, "GET", "/api/admin/tenants/acme/keys", "", token(t, models.AdminRoleSuperAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateCommand(t *testing.T) {
	s := newServer(t, defaultLimits())
	tok := token(t, models.AdminRoleOperator)

	rec := s.do(t, "POST", "/api/admin/tenants/acme/devices/SN001/commands",
		`{"name":"add_user","params":{"PIN":"7","Pri":"0","Card":""}}`, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data models.Command `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.CommandStatusPending, resp.Data.Status)
	assert.Equal(t, "PIN=7\tPri=0\tCard=", resp.Data.Params.Wire())

	rec = s.do(t, "GET", "/api/admin/tenants/acme/devices/SN001/commands?status=pending", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []models.Command `json:"data"`
		Meta models.ListMeta  `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, resp.Data.ID, list.Data[0].ID)
	assert.Equal(t, 1, list.Meta.Count)

	logs, err := s.audit.Recent(s.ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AdminActionCreateCommand, logs[0].Action)
	assert.Equal(t, "alice", logs[0].Username)
	assert.Equal(t, s.acme.ID, logs[0].TenantID)
}

func TestCreateCommandErrors(t *testing.T) {
	s := newServer(t, defaultLimits())
	tok := token(t, models.AdminRoleOperator)

	cases := []struct {
		name   string
		target string
		body   string
		code   int
	}{
		{"not in catalog", "/api/admin/tenants/acme/devices/SN001/commands", `{"name":"format_disk"}`, http.StatusBadRequest},
		{"bad params", "/api/admin/tenants/acme/devices/SN001/commands", `{"name":"add_user","params":{"Name":"Kim"}}`, http.StatusBadRequest},
		{"line break in param", "/api/admin/tenants/acme/devices/SN001/commands", `{"name":"add_user","params":{"PIN":"7","Name":"x\r\nC:1:CLEAR DATA"}}`, http.StatusBadRequest},
		{"missing name", "/api/admin/tenants/acme/devices/SN001/commands", `{"params":{}}`, http.StatusBadRequest},
		{"bad json", "/api/admin/tenants/acme/devices/SN001/commands", `{`, http.StatusBadRequest},
		{"unknown device", "/api/admin/tenants/acme/devices/SN999/commands", `{"name":"reboot"}`, http.StatusNotFound},
		{"unknown tenant", "/api/admin/tenants/nobody/devices/SN001/commands", `{"name":"reboot"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, "POST", tc.target, tc.body, tok)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
			assert.Equal(t, "error", decode(t, rec.Body.Bytes()).Status)
		})
	}
}

func TestDeviceLifecycle(t *testing.T) {
	s := newServer(t, defaultLimits())
	tok := token(t, models.AdminRoleOperator)

	rec := s.do(t, "POST", "/api/admin/tenants/acme/devices",
		`{"serial_number":"SN002","name":"Back door","is_approved":true,"settings":{"Delay":"20"}}`, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, "POST", "/api/admin/tenants/acme/devices", `{"serial_number":"SN002"}`, tok)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, "POST", "/api/admin/tenants/acme/devices", `{"serial_number":"bad sn"}`, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// the new terminal is served immediately
	rec = s.do(t, "GET", "/iclock/acme/cdata?SN=SN002", "", "")
	assert.Contains(t, rec.Body.String(), "Delay=20\r")

	rec = s.do(t, "PUT", "/api/admin/tenants/acme/devices/SN002/status", `{"is_approved":true,"is_active":false}`, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, "GET", "/iclock/acme/cdata?SN=SN002", "", "")
	assert.Equal(t, errorReply, rec.Body.String())

	rec = s.do(t, "PUT", "/api/admin/tenants/acme/devices/SN404/status", `{"is_approved":true,"is_active":true}`, tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, "DELETE", "/api/admin/tenants/acme/devices/SN002", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, "DELETE", "/api/admin/tenants/acme/devices/SN002", "", tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, "GET", "/api/admin/tenants/acme/devices", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []models.Device `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "SN001", list.Data[0].SerialNumber)
}

func TestInvalidateDeviceCache(t *testing.T) {
	s := newServer(t, defaultLimits())
	rec := s.do(t, "POST", "/api/admin/cache/devices/invalidate", "", token(t, models.AdminRoleSuperAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)

	logs, err := s.audit.Recent(s.ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AdminActionInvalidateDevice, logs[0].Action)
	assert.Zero(t, logs[0].TenantID)
}

func TestGenerateAndDeleteKeys(t *testing.T) {
	s := newServer(t, defaultLimits())
	tok := token(t, models.AdminRoleSuperAdmin)

	rec := s.do(t, "POST", "/api/admin/tenants/acme/keys", `{"activate":true}`, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data models.EncryptionKey `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Data.IsActive)

	rec = s.do(t, "GET", "/api/admin/tenants/acme/keys", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	var keys struct {
		Data []models.EncryptionKey `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keys))
	require.Len(t, keys.Data, 2)

	rec = s.do(t, "DELETE", "/api/admin/tenants/acme/keys/"+created.Data.Version, "", tok)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, "DELETE", "/api/admin/tenants/acme/keys/v999", "", tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboardAndHealth(t *testing.T) {
	s := newServer(t, defaultLimits())
	tok := token(t, models.AdminRoleOperator)

	_, err := s.commands.Create(s.ctx, s.acme.ID, "SN001", "reboot", models.CommandParams{})
	require.NoError(t, err)

	rec := s.do(t, "GET", "/api/admin/dashboard/stats", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Data map[string]int64 `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.Data["total_tenants"])
	assert.EqualValues(t, 1, stats.Data["approved_devices"])
	assert.EqualValues(t, 1, stats.Data["pending_commands"])

	rec = s.do(t, "GET", "/api/admin/dashboard/activities?limit=5", "", tok)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decode(t, rec.Body.Bytes()).Status)
}
